// Package report builds and writes the result document of a successful
// install.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/deploy"
)

// DefaultPath is where the result document is written when no path is given.
const DefaultPath = "install_result.json"

// ErrNotFound means the installed package could not be located.
var ErrNotFound = errors.New("installed package not found")

// Format is a result document encoding.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a format name. Empty means JSON.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q (expected json or yaml)", s)
	}
}

// InstallResult describes the installed package.
type InstallResult struct {
	FullName    string `json:"full_name" yaml:"full_name"`
	Version     string `json:"version" yaml:"version"`
	InstallPath string `json:"install_path" yaml:"install_path"`
}

// Finder looks up installed packages.
type Finder interface {
	Find(ctx context.Context, familyName string) (*deploy.Package, error)
}

// Reporter produces InstallResults from installed package lookups.
type Reporter struct {
	finder Finder
}

// NewReporter creates a Reporter.
func NewReporter(finder Finder) *Reporter {
	return &Reporter{finder: finder}
}

// Report looks up familyName, returning ErrNotFound when it is not installed.
func (r *Reporter) Report(ctx context.Context, familyName string) (*InstallResult, error) {
	if familyName == "" {
		return nil, fmt.Errorf("%w: no package family name", ErrNotFound)
	}

	pkg, err := r.finder.Find(ctx, familyName)
	if err != nil {
		if errors.Is(err, deploy.ErrPackageNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, familyName)
		}
		return nil, fmt.Errorf("look up %s: %w", familyName, err)
	}

	return &InstallResult{
		FullName:    pkg.FullName,
		Version:     pkg.Version.String(),
		InstallPath: pkg.InstallLocation,
	}, nil
}

// Encode renders result in format.
func Encode(result *InstallResult, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		data, err := yaml.Marshal(result)
		if err != nil {
			return nil, fmt.Errorf("marshal yaml: %w", err)
		}
		return data, nil
	case FormatJSON, "":
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("marshal json: %w", err)
		}
		return append(data, '\n'), nil
	default:
		return nil, fmt.Errorf("unknown output format %q", format)
	}
}

// Write encodes result to path (DefaultPath when empty), replacing any
// previous document.
func Write(path string, format Format, result *InstallResult) error {
	if path == "" {
		path = DefaultPath
	}

	data, err := Encode(result, format)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create output directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write result: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename result: %w", err)
	}
	return nil
}
