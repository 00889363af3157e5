package report

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/deploy"
)

type finderFunc func(ctx context.Context, familyName string) (*deploy.Package, error)

func (f finderFunc) Find(ctx context.Context, familyName string) (*deploy.Package, error) {
	return f(ctx, familyName)
}

var calculator = &deploy.Package{
	FullName:        "Microsoft.WindowsCalculator_11.2210.0.0_x64__8wekyb3d8bbwe",
	FamilyName:      "Microsoft.WindowsCalculator_8wekyb3d8bbwe",
	Version:         deploy.Version{Major: 11, Minor: 2210},
	InstallLocation: `C:\Program Files\WindowsApps\Microsoft.WindowsCalculator_11.2210.0.0_x64__8wekyb3d8bbwe`,
}

func TestReport(t *testing.T) {
	r := NewReporter(finderFunc(func(_ context.Context, family string) (*deploy.Package, error) {
		if family != calculator.FamilyName {
			t.Errorf("unexpected family %q", family)
		}
		return calculator, nil
	}))

	res, err := r.Report(context.Background(), calculator.FamilyName)
	if err != nil {
		t.Fatalf("Report failed: %v", err)
	}
	if res.FullName != calculator.FullName || res.Version != "11.2210.0.0" || res.InstallPath != calculator.InstallLocation {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestReport_NotFound(t *testing.T) {
	r := NewReporter(finderFunc(func(context.Context, string) (*deploy.Package, error) {
		return nil, deploy.ErrPackageNotFound
	}))

	if _, err := r.Report(context.Background(), "Missing_8wekyb3d8bbwe"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := r.Report(context.Background(), ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty family, got %v", err)
	}
}

func TestReport_LookupError(t *testing.T) {
	r := NewReporter(finderFunc(func(context.Context, string) (*deploy.Package, error) {
		return nil, errors.New("powershell not available")
	}))

	_, err := r.Report(context.Background(), "App_8wekyb3d8bbwe")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected a lookup error, got %v", err)
	}
}

func TestWrite_JSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "result.json")
	res := &InstallResult{FullName: calculator.FullName, Version: "11.2210.0.0", InstallPath: calculator.InstallLocation}

	if err := Write(path, FormatJSON, res); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "\n  \"full_name\"") {
		t.Errorf("expected indented snake_case JSON, got:\n%s", data)
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if raw["version"] != "11.2210.0.0" || raw["install_path"] != calculator.InstallLocation {
		t.Errorf("unexpected fields %v", raw)
	}
}

func TestWrite_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "result.yaml")
	res := &InstallResult{FullName: "A_1.0.0.0_x64__8wekyb3d8bbwe", Version: "1.0.0.0", InstallPath: "/apps/a"}

	if err := Write(path, FormatYAML, res); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var got InstallResult
	if err := yaml.Unmarshal(data, &got); err != nil {
		t.Fatalf("invalid YAML: %v", err)
	}
	if got != *res {
		t.Errorf("got %+v, want %+v", got, *res)
	}
}

func TestWrite_DefaultPath(t *testing.T) {
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	if err := Write("", "", &InstallResult{FullName: "A"}); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(DefaultPath); err != nil {
		t.Errorf("expected %s: %v", DefaultPath, err)
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"JSON", FormatJSON, false},
		{"yaml", FormatYAML, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}
	for _, tt := range tests {
		got, err := ParseFormat(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFormat(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
