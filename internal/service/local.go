package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/deploy"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/transaction"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/trust"
)

// InstallCertificate trusts a standalone .cer file. added is false when the
// store already held the certificate.
func (s *Service) InstallCertificate(ctx context.Context, path string) (added bool, err error) {
	added, err = s.ensurer().InstallCertificate(ctx, path)
	if err != nil {
		return false, fmt.Errorf("install certificate %s: %w", filepath.Base(path), err)
	}
	return added, nil
}

// LocalPackageRequest describes a package file already on disk.
type LocalPackageRequest struct {
	Path string
	// Signature is an optional detached OpenPGP signature of the file,
	// checked against Keyring before anything is deployed.
	Signature string
	Keyring   string
}

// InstallLocalPackage deploys a package file. Certificate trust is best
// effort; every other failure is returned.
func (s *Service) InstallLocalPackage(ctx context.Context, req LocalPackageRequest) error {
	name := filepath.Base(req.Path)
	journal := s.newJournal(transaction.OperationLocalPackage, req.Path)
	defer s.saveJournal(journal)

	if _, err := os.Stat(req.Path); err != nil {
		journal.Record(name, transaction.StageInstall, transaction.StateFailed, "missing", err)
		return fmt.Errorf("package file: %w", err)
	}

	if req.Signature != "" {
		if req.Keyring == "" {
			return fmt.Errorf("a keyring is required to check %s", filepath.Base(req.Signature))
		}
		if err := trust.VerifyDetached(req.Path, req.Signature, req.Keyring); err != nil {
			journal.Record(name, transaction.StageVerify, transaction.StateFailed, "", err)
			return fmt.Errorf("verify %s: %w", name, err)
		}
		journal.Record(name, transaction.StageVerify, transaction.StateCompleted, "", nil)
		s.logger.Info("signature verified", "file", name)
	}

	if s.ensurer().EnsureForPackage(ctx, req.Path) {
		journal.Record(name, transaction.StageTrust, transaction.StateCompleted, "", nil)
	} else {
		s.logger.Warn("certificate not trusted, continuing", "file", name)
		journal.Record(name, transaction.StageTrust, transaction.StateFailed, "certificate not trusted", nil)
	}

	if err := s.driver(journal).Install(ctx, req.Path, deploy.ModeForceShutdown); err != nil {
		journal.Record(name, transaction.StageInstall, transaction.StateFailed, "", err)
		return fmt.Errorf("install %s: %w", name, err)
	}
	journal.Record(name, transaction.StageInstall, transaction.StateCompleted, "", nil)
	s.logger.Info("installed package", "file", name)
	return nil
}
