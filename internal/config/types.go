package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config is the complete storeagent configuration.
type Config struct {
	// CacheDir holds downloaded packages and run journals.
	CacheDir string

	Listing ListingConfig
	Fetch   FetchConfig
	Deploy  DeployConfig
	Trust   TrustConfig
	Select  SelectConfig
	Output  OutputConfig
}

// ListingConfig configures the store listing client.
type ListingConfig struct {
	Endpoint  string
	Ring      string
	UserAgent string
	Timeout   time.Duration
}

// FetchConfig configures package downloads.
type FetchConfig struct {
	Timeout  time.Duration
	Retries  int
	MaxBytes int64
}

// DeployConfig configures the deployment backend.
type DeployConfig struct {
	// Backend is powershell or pwsh.
	Backend string
	// Timeout bounds each deployment; zero waits indefinitely.
	Timeout time.Duration
	// User scopes installed package lookups; empty is the current user.
	User string
}

// TrustConfig configures the certificate store.
type TrustConfig struct {
	// Backend is certutil or dir.
	Backend string
	// Store is the certutil store name.
	Store string
	// UserStore selects the current user location instead of the machine.
	UserStore bool
	// Dir is the directory of the dir backend.
	Dir string
}

// SelectConfig tunes candidate selection.
type SelectConfig struct {
	// PreferredArch is x64, x86, arm64 or auto.
	PreferredArch string
}

// OutputConfig sets where the result document goes.
type OutputConfig struct {
	Path   string
	Format string
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		CacheDir: DefaultCacheDir(),
		Listing: ListingConfig{
			Endpoint:  "https://store.rg-adguard.net/api/GetFiles",
			Ring:      "Retail",
			UserAgent: "",
			Timeout:   60 * time.Second,
		},
		Fetch: FetchConfig{
			Timeout:  30 * time.Minute,
			Retries:  0,
			MaxBytes: 8 << 30,
		},
		Deploy: DeployConfig{
			Backend: DeployPowerShell,
			Timeout: 30 * time.Minute,
		},
		Trust: TrustConfig{
			Backend: TrustCertutil,
			Store:   "TrustedPeople",
		},
		Select: SelectConfig{
			PreferredArch: "x64",
		},
		Output: OutputConfig{
			Path:   "install_result.json",
			Format: "json",
		},
	}
}

// JournalDir is where run journals are saved.
func (c *Config) JournalDir() string {
	return filepath.Join(c.CacheDir, "runs")
}

// Validate checks field values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.CacheDir) == "" {
		return &ValidationError{Field: luaFieldCacheDir, Message: "cannot be empty"}
	}

	u, err := url.Parse(c.Listing.Endpoint)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return &ValidationError{Field: "listing.endpoint", Message: fmt.Sprintf("must be an http(s) URL (got %q)", c.Listing.Endpoint)}
	}

	for field, d := range map[string]time.Duration{
		"listing.timeout": c.Listing.Timeout,
		"fetch.timeout":   c.Fetch.Timeout,
		"deploy.timeout":  c.Deploy.Timeout,
	} {
		if d < 0 {
			return &ValidationError{Field: field, Message: "cannot be negative"}
		}
	}

	if c.Fetch.Retries < 0 || c.Fetch.Retries > MaxRetries {
		return &ValidationError{Field: "fetch.retries", Message: fmt.Sprintf("must be between 0 and %d", MaxRetries)}
	}
	if c.Fetch.MaxBytes < 0 {
		return &ValidationError{Field: "fetch.max_bytes", Message: "cannot be negative"}
	}

	switch c.Deploy.Backend {
	case DeployPowerShell, DeployPowerShellCore:
	default:
		return &ValidationError{Field: "deploy.backend", Message: fmt.Sprintf("unknown backend %q (expected powershell or pwsh)", c.Deploy.Backend)}
	}

	switch c.Trust.Backend {
	case TrustCertutil:
		if c.Trust.Store == "" {
			return &ValidationError{Field: "trust.store", Message: "cannot be empty"}
		}
	case TrustDir:
		if c.Trust.Dir == "" {
			return &ValidationError{Field: "trust.dir", Message: "required by the dir backend"}
		}
	default:
		return &ValidationError{Field: "trust.backend", Message: fmt.Sprintf("unknown backend %q (expected certutil or dir)", c.Trust.Backend)}
	}

	switch c.Select.PreferredArch {
	case "x64", "x86", "arm64", ArchAuto:
	default:
		return &ValidationError{Field: "select.preferred_arch", Message: fmt.Sprintf("unknown architecture %q", c.Select.PreferredArch)}
	}

	switch strings.ToLower(c.Output.Format) {
	case "json", "yaml", "yml":
	default:
		return &ValidationError{Field: "output.format", Message: fmt.Sprintf("unknown format %q (expected json or yaml)", c.Output.Format)}
	}

	return nil
}

// ValidationError represents a config validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return "config validation failed for " + e.Field + ": " + e.Message
	}
	return "config validation failed: " + e.Message
}

// ConfigDir returns the directory holding storeagent.lua.
// $STOREAGENT_CONFIG_DIR overrides the user config directory.
func ConfigDir() (string, error) {
	if dir := os.Getenv("STOREAGENT_CONFIG_DIR"); dir != "" {
		return dir, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("determine config directory: %w", err)
	}
	return filepath.Join(base, "storeagent"), nil
}

// DefaultCacheDir returns the package cache directory.
// $STOREAGENT_CACHE_DIR overrides the user cache directory.
func DefaultCacheDir() string {
	if dir := os.Getenv("STOREAGENT_CACHE_DIR"); dir != "" {
		return dir
	}
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "storeagent", "packages")
	}
	return filepath.Join(os.TempDir(), "storeagent", "packages")
}
