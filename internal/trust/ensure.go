package trust

import (
	"context"
	"crypto/x509"
	"fmt"
	"log/slog"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/logging"
)

// Ensurer adds signer certificates to a Store when they are missing.
type Ensurer struct {
	store  Store
	logger *slog.Logger
}

// NewEnsurer creates an Ensurer backed by store.
func NewEnsurer(store Store, logger *slog.Logger) *Ensurer {
	return &Ensurer{store: store, logger: logging.Ensure(logger)}
}

// EnsureForPackage trusts the certificate embedded in the package at path.
// It reports false on any failure; callers treat that as a warning.
func (e *Ensurer) EnsureForPackage(ctx context.Context, path string) bool {
	cert, err := ExtractCertificate(path)
	if err != nil {
		e.logger.Warn("cannot read package certificate", "path", path, "error", err)
		return false
	}

	if _, err := e.Ensure(ctx, cert); err != nil {
		e.logger.Warn("cannot trust package certificate", "path", path, "subject", cert.Subject.String(), "error", err)
		return false
	}
	return true
}

// InstallCertificate trusts a standalone certificate file. added is false
// when the store already held it.
func (e *Ensurer) InstallCertificate(ctx context.Context, path string) (added bool, err error) {
	cert, err := LoadCertificateFile(path)
	if err != nil {
		return false, err
	}
	return e.Ensure(ctx, cert)
}

// Ensure adds cert unless a certificate with the same thumbprint is present.
func (e *Ensurer) Ensure(ctx context.Context, cert *x509.Certificate) (added bool, err error) {
	thumb := Thumbprint(cert)

	existing, err := e.store.FindByThumbprint(ctx, thumb)
	if err != nil {
		return false, fmt.Errorf("look up certificate %s: %w", thumb, err)
	}
	if len(existing) > 0 {
		e.logger.Debug("certificate already trusted", "thumbprint", thumb)
		return false, nil
	}

	if err := e.store.Add(ctx, cert); err != nil {
		return false, fmt.Errorf("add certificate %s: %w", thumb, err)
	}
	e.logger.Info("trusted certificate", "thumbprint", thumb, "subject", cert.Subject.String())
	return true, nil
}
