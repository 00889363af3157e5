// Package service wires the pipeline components into the operations exposed
// by the CLI: install, uninstall, install-certificate and
// install-local-package.
package service

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/candidate"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/config"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/deploy"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/listing"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/logging"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/platform"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/transaction"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/trust"
)

// Lister returns the package links published for an app identifier.
type Lister interface {
	Links(ctx context.Context, req listing.Request) ([]string, error)
}

// Deps are the collaborators of a Service. Lister, Platform and Store are
// required.
type Deps struct {
	Lister   Lister
	Platform deploy.Platform
	Store    trust.Store
	// Counter counts running instances before forced shutdowns; optional.
	Counter platform.InstanceCounter
	// Detector resolves the preferred architecture "auto"; optional.
	Detector   platform.Detector
	HTTPClient *http.Client
	Clock      Clock
	Logger     *slog.Logger
}

// Service runs storeagent operations against one configuration.
type Service struct {
	cfg      *config.Config
	lister   Lister
	platform deploy.Platform
	store    trust.Store
	counter  platform.InstanceCounter
	detector platform.Detector
	client   *http.Client
	clock    Clock
	logger   *slog.Logger
}

// New creates a Service. A nil cfg means config.Defaults.
func New(cfg *config.Config, deps Deps) *Service {
	if cfg == nil {
		cfg = config.Defaults()
	}
	clock := deps.Clock
	if clock == nil {
		clock = RealClock{}
	}
	return &Service{
		cfg:      cfg,
		lister:   deps.Lister,
		platform: deps.Platform,
		store:    deps.Store,
		counter:  deps.Counter,
		detector: deps.Detector,
		client:   deps.HTTPClient,
		clock:    clock,
		logger:   logging.Ensure(deps.Logger),
	}
}

func (s *Service) newJournal(op transaction.Operation, identifier string) *transaction.Run {
	run := transaction.New(op, identifier)
	run.Timestamp = s.clock.Now().UTC()
	return run
}

// saveJournal writes run under the journal directory and returns its path.
// Failures are logged; a journal never fails an operation.
func (s *Service) saveJournal(run *transaction.Run) string {
	if s.cfg.CacheDir == "" {
		return ""
	}
	path, err := run.Save(s.cfg.JournalDir())
	if err != nil {
		s.logger.Warn("cannot save run journal", "error", err)
		return ""
	}
	s.logger.Debug("saved run journal", "path", path)
	return path
}

func (s *Service) ensurer() *trust.Ensurer {
	return trust.NewEnsurer(s.store, s.logger)
}

func (s *Service) driver(journal *transaction.Run) *deploy.Driver {
	return deploy.NewDriver(s.platform, deploy.Options{
		Timeout: s.cfg.Deploy.Timeout,
		User:    s.cfg.Deploy.User,
		Trust:   s.ensurer(),
		Counter: s.counter,
		Logger:  s.logger,
		Journal: journal,
	})
}

// preferredArch resolves the configured architecture, detecting the host
// for "auto". Detection failures fall back to x64.
func (s *Service) preferredArch(ctx context.Context) candidate.Architecture {
	arch := s.cfg.Select.PreferredArch
	if arch != config.ArchAuto {
		return candidate.Architecture(arch)
	}
	if s.detector == nil {
		return candidate.ArchX64
	}
	info, err := s.detector.Detect(ctx)
	if err != nil || info == nil || info.Arch == "" {
		s.logger.Warn("cannot detect host architecture, preferring x64", "error", err)
		return candidate.ArchX64
	}
	return candidate.Architecture(info.Arch)
}
