package trust

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/tool"
)

// Store is a certificate trust store.
type Store interface {
	// FindByThumbprint returns the certificates with the given thumbprint,
	// or none.
	FindByThumbprint(ctx context.Context, thumbprint string) ([]*x509.Certificate, error)
	// Add trusts cert.
	Add(ctx context.Context, cert *x509.Certificate) error
}

// DefaultStoreName is the system store packages are trusted through.
const DefaultStoreName = "TrustedPeople"

// CertutilStore manages a Windows certificate store with certutil.exe.
type CertutilStore struct {
	runner tool.Runner
	name   string
	user   bool
}

// NewCertutilStore manages the named store in the local machine location, or
// the current user location when user is set.
func NewCertutilStore(runner tool.Runner, name string, user bool) *CertutilStore {
	if name == "" {
		name = DefaultStoreName
	}
	return &CertutilStore{runner: runner, name: name, user: user}
}

func (s *CertutilStore) args(args ...string) []string {
	if s.user {
		return append([]string{"-user"}, args...)
	}
	return args
}

// FindByThumbprint exports the matching certificate to a temporary file and
// parses it. certutil exits non-zero when nothing matches.
func (s *CertutilStore) FindByThumbprint(ctx context.Context, thumbprint string) ([]*x509.Certificate, error) {
	tmpDir, err := os.MkdirTemp("", "storeagent-cert-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	out := filepath.Join(tmpDir, "match.cer")
	_, err = s.runner.Run(ctx, "certutil", s.args("-store", s.name, NormalizeThumbprint(thumbprint), out)...)
	if err != nil {
		var exitErr *tool.ExitError
		if errors.As(err, &exitErr) {
			return nil, nil
		}
		return nil, fmt.Errorf("query %s store: %w", s.name, err)
	}

	cert, err := LoadCertificateFile(out)
	if err != nil {
		return nil, fmt.Errorf("read exported certificate: %w", err)
	}
	return []*x509.Certificate{cert}, nil
}

// Add imports cert into the store.
func (s *CertutilStore) Add(ctx context.Context, cert *x509.Certificate) error {
	tmpDir, err := os.MkdirTemp("", "storeagent-cert-*")
	if err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	path := filepath.Join(tmpDir, Thumbprint(cert)+".cer")
	if err := os.WriteFile(path, cert.Raw, 0600); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}

	if _, err := s.runner.Run(ctx, "certutil", s.args("-addstore", s.name, path)...); err != nil {
		return fmt.Errorf("add to %s store: %w", s.name, err)
	}
	return nil
}

// DirStore keeps trusted certificates as <THUMBPRINT>.cer files in a
// directory. It backs tests and non-Windows dry runs.
type DirStore struct {
	dir string
}

// NewDirStore creates a store rooted at dir.
func NewDirStore(dir string) *DirStore {
	return &DirStore{dir: dir}
}

// Dir returns the store directory.
func (s *DirStore) Dir() string {
	return s.dir
}

// FindByThumbprint implements Store.
func (s *DirStore) FindByThumbprint(ctx context.Context, thumbprint string) ([]*x509.Certificate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, NormalizeThumbprint(thumbprint)+".cer")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	cert, err := LoadCertificateFile(path)
	if err != nil {
		return nil, err
	}
	return []*x509.Certificate{cert}, nil
}

// Add implements Store.
func (s *DirStore) Add(ctx context.Context, cert *x509.Certificate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("create store dir: %w", err)
	}

	finalPath := filepath.Join(s.dir, Thumbprint(cert)+".cer")
	tmpPath := finalPath + ".tmp"
	if err := os.WriteFile(tmpPath, cert.Raw, 0644); err != nil {
		return fmt.Errorf("write certificate: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename certificate: %w", err)
	}
	return nil
}

// Count returns how many certificates the store holds.
func (s *DirStore) Count() (int, error) {
	matches, err := filepath.Glob(filepath.Join(s.dir, "*.cer"))
	if err != nil {
		return 0, err
	}
	return len(matches), nil
}
