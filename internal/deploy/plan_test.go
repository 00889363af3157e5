package deploy

import (
	"path/filepath"
	"testing"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/candidate"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/fetch"
)

func artifact(t *testing.T, dir, name string) fetch.Artifact {
	t.Helper()
	c, ok := candidate.Classify("https://dl.example.com/" + name)
	if !ok {
		t.Fatalf("Classify(%q) skipped", name)
	}
	return fetch.Artifact{Path: filepath.Join(dir, name), Source: &c}
}

func TestPlan_DependenciesFirst(t *testing.T) {
	dir := t.TempDir()
	arts := []fetch.Artifact{
		artifact(t, dir, "App_1.0.0.0_neutral_~_8wekyb3d8bbwe.msixbundle"),
		artifact(t, dir, "Microsoft.VCLibs.140.00_14.0_x64__8wekyb3d8bbwe.appx"),
		artifact(t, dir, "App_1.0.0.0_x64__8wekyb3d8bbwe.msix"),
		artifact(t, dir, "Microsoft.NET.Native.Framework.2.2_2.2_x64__8wekyb3d8bbwe.msix"),
	}

	steps := Plan(arts)
	want := []struct {
		name string
		dep  bool
		mode Mode
	}{
		{"Microsoft.VCLibs.140.00_14.0_x64__8wekyb3d8bbwe.appx", true, ModeNone},
		{"Microsoft.NET.Native.Framework.2.2_2.2_x64__8wekyb3d8bbwe.msix", true, ModeNone},
		{"App_1.0.0.0_neutral_~_8wekyb3d8bbwe.msixbundle", false, ModeForceShutdown},
		{"App_1.0.0.0_x64__8wekyb3d8bbwe.msix", false, ModeForceShutdown},
	}

	if len(steps) != len(want) {
		t.Fatalf("expected %d steps, got %d", len(want), len(steps))
	}
	for i, w := range want {
		s := steps[i]
		if s.Artifact.FileName() != w.name || s.Dependency != w.dep || s.Mode != w.mode {
			t.Errorf("step %d = {%s dep=%v mode=%s}, want {%s dep=%v mode=%s}",
				i, s.Artifact.FileName(), s.Dependency, s.Mode, w.name, w.dep, w.mode)
		}
	}
}

func TestPlan_FrameworkMarkerIsCaseSensitive(t *testing.T) {
	dir := t.TempDir()
	steps := Plan([]fetch.Artifact{artifact(t, dir, "Contoso.framework_1_x64__abc.msix")})
	if len(steps) != 1 || steps[0].Dependency {
		t.Errorf("lower-case framework should be a main package: %+v", steps)
	}
}

func TestPlan_WithoutSource(t *testing.T) {
	arts := []fetch.Artifact{
		{Path: "/cache/b.MSIX"},
		{Path: "/cache/a.appx"},
		{Path: "/cache/readme.txt"},
	}
	steps := Plan(arts)
	if len(steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(steps))
	}
	if steps[0].Artifact.Path != "/cache/a.appx" || !steps[0].Dependency {
		t.Errorf("unexpected first step %+v", steps[0])
	}
	if steps[1].Artifact.Path != "/cache/b.MSIX" || steps[1].Mode != ModeForceShutdown {
		t.Errorf("unexpected second step %+v", steps[1])
	}
}

func TestPlan_Empty(t *testing.T) {
	if steps := Plan(nil); len(steps) != 0 {
		t.Errorf("expected no steps, got %d", len(steps))
	}
}
