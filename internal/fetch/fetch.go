// Package fetch materializes selected candidates into the local package
// cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/candidate"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/logging"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/transaction"
)

const (
	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 30 * time.Minute
	// DefaultUserAgent is the User-Agent header sent with requests
	DefaultUserAgent = "storeagent/1.0"
	// DefaultMaxBytes bounds a single artifact download.
	DefaultMaxBytes int64 = 8 << 30
)

var (
	// ErrNothingFetched means no candidate could be downloaded or found cached.
	ErrNothingFetched = errors.New("no packages were fetched")
	// ErrTooLarge means a response body exceeded the configured limit.
	ErrTooLarge = errors.New("response exceeds size limit")
)

// Artifact is a candidate present on disk.
type Artifact struct {
	Path   string
	Source *candidate.Candidate
	Cached bool
}

// FileName returns the artifact's base name.
func (a Artifact) FileName() string {
	return filepath.Base(a.Path)
}

// Options tunes a Fetcher. Zero values take the package defaults; Retries
// defaults to none.
type Options struct {
	Timeout    time.Duration
	Retries    int
	MaxBytes   int64
	UserAgent  string
	HTTPClient *http.Client
	Logger     *slog.Logger
	Journal    *transaction.Run
}

// Fetcher downloads candidates into a flat cache directory keyed by file name.
type Fetcher struct {
	client    *http.Client
	cacheDir  string
	userAgent string
	retries   int
	maxBytes  int64
	backoff   func(attempt int) time.Duration
	logger    *slog.Logger
	journal   *transaction.Run
}

// New creates a fetcher writing into cacheDir.
func New(cacheDir string, opts Options) *Fetcher {
	f := &Fetcher{
		client:    opts.HTTPClient,
		cacheDir:  cacheDir,
		userAgent: opts.UserAgent,
		retries:   opts.Retries,
		maxBytes:  opts.MaxBytes,
		backoff:   exponentialBackoff,
		logger:    logging.Ensure(opts.Logger),
		journal:   opts.Journal,
	}
	if f.client == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		f.client = &http.Client{
			Timeout: timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				// Allow up to 10 redirects
				if len(via) >= 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		}
	}
	if f.userAgent == "" {
		f.userAgent = DefaultUserAgent
	}
	if f.retries < 0 {
		f.retries = 0
	}
	if f.maxBytes <= 0 {
		f.maxBytes = DefaultMaxBytes
	}
	return f
}

// CacheDir returns the directory artifacts are written to.
func (f *Fetcher) CacheDir() string {
	return f.cacheDir
}

// FetchAll materializes every candidate in order. Per-candidate failures are
// logged, journaled and skipped. ErrNothingFetched is returned only when no
// artifact ended up on disk; context cancellation aborts the batch.
func (f *Fetcher) FetchAll(ctx context.Context, cands []candidate.Candidate) ([]Artifact, error) {
	artifacts := make([]Artifact, 0, len(cands))

	for i := range cands {
		c := &cands[i]
		if err := ctx.Err(); err != nil {
			return artifacts, err
		}

		art, err := f.Fetch(ctx, c)
		if err != nil {
			if ctx.Err() != nil {
				return artifacts, ctx.Err()
			}
			f.logger.Warn("download failed", "file", c.FileName, "error", err)
			f.journal.Record(c.FileName, transaction.StageFetch, transaction.StateFailed, "", err)
			continue
		}

		if art.Cached {
			f.logger.Info("using cached package", "file", c.FileName)
			f.journal.Record(c.FileName, transaction.StageFetch, transaction.StateSkipped, "cached", nil)
		} else {
			f.logger.Info("downloaded package", "file", c.FileName)
			f.journal.Record(c.FileName, transaction.StageFetch, transaction.StateCompleted, "", nil)
		}
		artifacts = append(artifacts, art)
	}

	if len(artifacts) == 0 {
		return nil, ErrNothingFetched
	}
	return artifacts, nil
}

// Fetch materializes one candidate, reusing a non-empty cached file.
func (f *Fetcher) Fetch(ctx context.Context, c *candidate.Candidate) (Artifact, error) {
	if c == nil || c.URL == nil {
		return Artifact{}, fmt.Errorf("candidate has no URL")
	}
	if c.FileName == "" || filepath.Base(c.FileName) != c.FileName {
		return Artifact{}, fmt.Errorf("invalid file name %q", c.FileName)
	}

	cachePath := filepath.Join(f.cacheDir, c.FileName)
	if fileExists(cachePath) {
		return Artifact{Path: cachePath, Source: c, Cached: true}, nil
	}

	f.logger.Debug("downloading package", "file", c.FileName, "url", c.URL.Redacted())
	if err := f.DownloadToFile(ctx, c.URL.String(), cachePath); err != nil {
		return Artifact{}, err
	}
	return Artifact{Path: cachePath, Source: c}, nil
}

// DownloadToFile downloads a URL to a specific file path, retrying with
// exponential backoff when retries are configured.
func (f *Fetcher) DownloadToFile(ctx context.Context, url, destPath string) error {
	var lastErr error

	for attempt := 0; attempt <= f.retries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if attempt > 0 {
			select {
			case <-time.After(f.backoff(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
			f.logger.Debug("retrying download", "attempt", attempt, "error", lastErr)
		}

		err := f.downloadOnce(ctx, url, destPath)
		if err == nil {
			return nil
		}

		lastErr = err

		if ctx.Err() != nil {
			return ctx.Err()
		}
		var perm *statusError
		if errors.As(err, &perm) && perm.permanent() {
			break
		}
	}

	if f.retries == 0 {
		return lastErr
	}
	return fmt.Errorf("download failed after %d retries: %w", f.retries, lastErr)
}

// downloadOnce performs a single download attempt
func (f *Fetcher) downloadOnce(ctx context.Context, url, destPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &statusError{code: resp.StatusCode}
	}
	if resp.ContentLength > f.maxBytes {
		return fmt.Errorf("%w: %d bytes", ErrTooLarge, resp.ContentLength)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("create dest dir: %w", err)
	}

	// Partial downloads never appear under the final name.
	tmpPath := destPath + ".tmp"
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	cleanupNeeded := true
	defer func() {
		tmpFile.Close()
		if cleanupNeeded {
			os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmpFile, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return fmt.Errorf("copy response body: %w", err)
	}
	if n > f.maxBytes {
		return fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	if n == 0 {
		return fmt.Errorf("empty response body")
	}

	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	cleanupNeeded = false
	return nil
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d", e.code)
}

// permanent reports client errors that a retry cannot fix.
func (e *statusError) permanent() bool {
	return e.code >= 400 && e.code < 500 && e.code != http.StatusTooManyRequests && e.code != http.StatusRequestTimeout
}

// exponentialBackoff: 1s, 2s, 4s...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(1<<uint(attempt-1)) * time.Second
}

// fileExists checks if a file exists and is not empty
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}
