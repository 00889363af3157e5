package backup

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/logging"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/tool"
)

const testManifest = `<?xml version="1.0" encoding="utf-8"?>
<Package xmlns="http://schemas.microsoft.com/appx/manifest/foundation/windows10">
  <Identity Name="Contoso.Notes" Publisher="CN=Contoso" Version="1.2.3.0" ProcessorArchitecture="x64" />
  <Properties><DisplayName>Notes</DisplayName></Properties>
</Package>`

type fixture struct {
	app   string
	out   string
	tools string
}

func newFixture(t *testing.T, withTools bool) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{
		app:   filepath.Join(root, "Contoso.Notes_1.2.3.0_x64__abc"),
		out:   filepath.Join(root, "out"),
		tools: filepath.Join(root, "tools"),
	}
	for _, dir := range []string{f.app, f.out, f.tools} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(f.app, ManifestFile), []byte(testManifest), 0644); err != nil {
		t.Fatal(err)
	}
	if withTools {
		for _, name := range RequiredTools {
			if err := os.WriteFile(filepath.Join(f.tools, name), []byte("stub"), 0755); err != nil {
				t.Fatal(err)
			}
		}
	}
	return f
}

// succeedingTools answers every tool the way the SDK tools print success.
func succeedingTools(name string, _ []string) (tool.Output, error) {
	switch filepath.Base(name) {
	case MakeAppx:
		return tool.Output{Stdout: "Processing...\nPackage creation succeeded.\n"}, nil
	case MakeCert:
		return tool.Output{Stdout: "Succeeded\n"}, nil
	case Pvk2Pfx:
		return tool.Output{}, nil
	case SignTool:
		return tool.Output{Stdout: "Done Adding Additional Store\nSuccessfully signed: x.appx\n"}, nil
	}
	return tool.Output{}, errors.New("unexpected tool")
}

func stepOf(t *testing.T, err error) Step {
	t.Helper()
	var se *StepError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StepError, got %v", err)
	}
	return se.Step
}

func TestReadManifest(t *testing.T) {
	f := newFixture(t, false)
	id, err := ReadManifest(f.app)
	if err != nil {
		t.Fatalf("ReadManifest() error = %v", err)
	}
	want := Identity{Name: "Contoso.Notes", Publisher: "CN=Contoso", Version: "1.2.3.0", ProcessorArchitecture: "x64"}
	if id != want {
		t.Errorf("ReadManifest() = %+v, want %+v", id, want)
	}
}

func TestParseIdentity_Errors(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{name: "no identity", xml: `<Package><Properties/></Package>`},
		{name: "no publisher", xml: `<Package><Identity Name="A"/></Package>`},
		{name: "malformed", xml: `<Package><Identity`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseIdentity(strings.NewReader(tt.xml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestNewSession(t *testing.T) {
	f := newFixture(t, false)

	s, err := NewSession(`"`+f.app+`"`, f.out, f.tools)
	if err != nil {
		t.Fatalf("NewSession() error = %v", err)
	}
	if s.BaseName() != "Contoso.Notes_1.2.3.0_x64__abc" {
		t.Errorf("BaseName() = %q", s.BaseName())
	}
	if s.Identity.Publisher != "CN=Contoso" {
		t.Errorf("Publisher = %q", s.Identity.Publisher)
	}

	_, err = NewSession(f.out, f.out, f.tools)
	if got := stepOf(t, err); got != StepAppPath {
		t.Errorf("missing manifest step = %s, want %s", got, StepAppPath)
	}

	_, err = NewSession(f.app, filepath.Join(f.out, "missing"), f.tools)
	if got := stepOf(t, err); got != StepOutputPath {
		t.Errorf("missing output step = %s, want %s", got, StepOutputPath)
	}
}

func TestVerifyTools(t *testing.T) {
	f := newFixture(t, false)
	s, err := NewSession(f.app, f.out, f.tools)
	if err != nil {
		t.Fatal(err)
	}

	p := NewPackager(&tool.FakeRunner{}, logging.Discard())
	if got := stepOf(t, p.VerifyTools(s)); got != StepTools {
		t.Errorf("step = %s, want %s", got, StepTools)
	}
}

func TestRun_Success(t *testing.T) {
	f := newFixture(t, true)
	s, err := NewSession(f.app, f.out, f.tools)
	if err != nil {
		t.Fatal(err)
	}

	runner := &tool.FakeRunner{Respond: succeedingTools}
	final, err := NewPackager(runner, logging.Discard()).Run(context.Background(), s)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !final.Signed {
		t.Error("expected session to be signed")
	}
	if final.PackagePath != filepath.Join(f.out, s.BaseName()+".appx") {
		t.Errorf("PackagePath = %q", final.PackagePath)
	}
	if s.PackagePath != "" || s.Signed {
		t.Error("Run modified the input session")
	}

	calls := runner.Calls()
	if len(calls) != 4 {
		t.Fatalf("got %d tool calls, want 4", len(calls))
	}
	order := []string{MakeAppx, MakeCert, Pvk2Pfx, SignTool}
	for i, name := range order {
		if filepath.Base(calls[i].Name) != name {
			t.Errorf("call %d = %s, want %s", i, filepath.Base(calls[i].Name), name)
		}
	}
	if !strings.Contains(calls[1].Joined(), "-n CN=Contoso") {
		t.Errorf("MakeCert args missing publisher: %s", calls[1].Joined())
	}
	if !strings.Contains(calls[1].Joined(), "-eku "+codeSigningEKU) {
		t.Errorf("MakeCert args missing code signing EKU: %s", calls[1].Joined())
	}
	if !strings.HasPrefix(calls[3].Joined(), "sign -fd SHA256 -a -f "+final.PFXPath) {
		t.Errorf("SignTool args = %s", calls[3].Joined())
	}
}

func TestRun_StepFailures(t *testing.T) {
	tests := []struct {
		name     string
		failTool string
		output   tool.Output
		err      error
		want     Step
		code     int
	}{
		{name: "pack", failTool: MakeAppx, output: tool.Output{Stdout: "MakeAppx : error: bad manifest\n"}, want: StepPack, code: 5},
		{name: "certificate", failTool: MakeCert, output: tool.Output{Stdout: "Error: CryptCertStrToNameW failed\n"}, want: StepCert, code: 6},
		{name: "convert", failTool: Pvk2Pfx, output: tool.Output{Stdout: "ERROR: password mismatch\n"}, want: StepConvert, code: 7},
		{name: "sign", failTool: SignTool, output: tool.Output{Stdout: "SignTool Error: no certificates\n"}, want: StepSign, code: 8},
		{name: "exit code", failTool: MakeAppx, err: &tool.ExitError{Name: MakeAppx, ExitCode: 1}, want: StepPack, code: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			s, err := NewSession(f.app, f.out, f.tools)
			if err != nil {
				t.Fatal(err)
			}

			runner := &tool.FakeRunner{Respond: func(name string, args []string) (tool.Output, error) {
				if filepath.Base(name) == tt.failTool {
					return tt.output, tt.err
				}
				return succeedingTools(name, args)
			}}

			_, err = NewPackager(runner, logging.Discard()).Run(context.Background(), s)
			step := stepOf(t, err)
			if step != tt.want {
				t.Errorf("step = %s, want %s", step, tt.want)
			}
			if step.ExitCode() != tt.code {
				t.Errorf("ExitCode() = %d, want %d", step.ExitCode(), tt.code)
			}
		})
	}
}

func TestPack_RemovesStaleOutput(t *testing.T) {
	f := newFixture(t, true)
	s, err := NewSession(f.app, f.out, f.tools)
	if err != nil {
		t.Fatal(err)
	}
	stale := filepath.Join(f.out, s.BaseName()+".appx")
	if err := os.WriteFile(stale, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	runner := &tool.FakeRunner{Respond: func(name string, args []string) (tool.Output, error) {
		if _, err := os.Stat(stale); err == nil {
			t.Error("stale package still present when MakeAppx ran")
		}
		return succeedingTools(name, args)
	}}
	if _, err := NewPackager(runner, logging.Discard()).Pack(context.Background(), s); err != nil {
		t.Fatalf("Pack() error = %v", err)
	}
}

func TestSign_RequiresPriorSteps(t *testing.T) {
	f := newFixture(t, true)
	s, err := NewSession(f.app, f.out, f.tools)
	if err != nil {
		t.Fatal(err)
	}

	runner := &tool.FakeRunner{}
	_, err = NewPackager(runner, logging.Discard()).Sign(context.Background(), s)
	if got := stepOf(t, err); got != StepSign {
		t.Errorf("step = %s, want %s", got, StepSign)
	}
	if len(runner.Calls()) != 0 {
		t.Error("SignTool ran without a package")
	}
}
