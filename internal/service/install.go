package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/candidate"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/deploy"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/fetch"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/listing"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/report"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/selection"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/transaction"
)

// InstallRequest identifies the app to install.
type InstallRequest struct {
	Type       listing.IdentifierType
	Identifier string
}

// InstallOutcome is everything one install run produced. Fields are filled
// as far as the run got, so they are useful on failure too.
type InstallOutcome struct {
	Selected    []candidate.Candidate
	Artifacts   []fetch.Artifact
	Summary     deploy.Summary
	Result      *report.InstallResult
	ResultPath  string
	JournalPath string
}

// Install resolves, downloads, and installs an app, then writes the result
// document. It succeeds when the app is found installed afterwards, even if
// some packages of the batch failed.
func (s *Service) Install(ctx context.Context, req InstallRequest) (*InstallOutcome, error) {
	if req.Type == "" {
		req.Type = listing.ProductID
	}
	journal := s.newJournal(transaction.OperationInstall, req.Identifier)
	out := &InstallOutcome{}
	defer func() { out.JournalPath = s.saveJournal(journal) }()

	s.logger.Info("resolving packages", "type", req.Type, "identifier", req.Identifier)
	links, err := s.lister.Links(ctx, listing.Request{Type: req.Type, Identifier: req.Identifier})
	if err != nil {
		return out, fmt.Errorf("list packages: %w", err)
	}

	selected := selection.Selector{PreferredArch: s.preferredArch(ctx)}.Select(candidate.ClassifyAll(links))
	if len(selected) == 0 {
		return out, fmt.Errorf("%s %q: %w", req.Type, req.Identifier, listing.ErrNoCandidates)
	}
	out.Selected = selected
	for _, c := range selected {
		s.logger.Debug("selected package", "file", c.FileName, "priority", c.Priority, "dependency", c.IsDependency)
	}

	fetcher := fetch.New(s.cfg.CacheDir, fetch.Options{
		Timeout:    s.cfg.Fetch.Timeout,
		Retries:    s.cfg.Fetch.Retries,
		MaxBytes:   s.cfg.Fetch.MaxBytes,
		HTTPClient: s.client,
		Logger:     s.logger,
		Journal:    journal,
	})
	artifacts, err := fetcher.FetchAll(ctx, selected)
	out.Artifacts = artifacts
	if err != nil {
		return out, fmt.Errorf("fetch packages: %w", err)
	}

	driver := s.driver(journal)
	summary, err := driver.InstallAll(ctx, artifacts)
	out.Summary = summary
	if err != nil {
		return out, fmt.Errorf("install packages: %w", err)
	}
	for _, f := range summary.Failed {
		s.logger.Warn("package did not install", "file", f.Name, "error", f.Err)
	}

	family := selected[0].FamilyName
	if family == "" && req.Type == listing.PackageFamilyName {
		family = req.Identifier
	}

	result, err := report.NewReporter(driver).Report(ctx, family)
	if err != nil {
		journal.Record(family, transaction.StageReport, transaction.StateFailed, "", err)
		if len(summary.Failed) > 0 {
			return out, fmt.Errorf("%d of %d packages failed to install: %w",
				len(summary.Failed), len(summary.Failed)+len(summary.Installed), errors.Join(err, summary.Failed[0].Err))
		}
		return out, err
	}
	out.Result = result

	format, err := report.ParseFormat(s.cfg.Output.Format)
	if err != nil {
		return out, err
	}
	path := s.cfg.Output.Path
	if path == "" {
		path = report.DefaultPath
	}
	if err := report.Write(path, format, result); err != nil {
		journal.Record(family, transaction.StageReport, transaction.StateFailed, "", err)
		return out, err
	}
	journal.Record(family, transaction.StageReport, transaction.StateCompleted, "", nil)
	out.ResultPath = path

	s.logger.Info("install complete", "package", result.FullName, "version", result.Version)
	return out, nil
}
