package backup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/logging"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/tool"
)

// SDK tools the backup needs, looked up in the tools directory.
const (
	MakeAppx = "MakeAppx.exe"
	MakeCert = "MakeCert.exe"
	Pvk2Pfx  = "Pvk2Pfx.exe"
	SignTool = "SignTool.exe"
)

// RequiredTools lists every tool VerifyTools checks.
var RequiredTools = []string{MakeAppx, MakeCert, Pvk2Pfx, SignTool}

// codeSigningEKU is the extended key usage OID for code signing.
const codeSigningEKU = "1.3.6.1.5.5.7.3.3"

// Session is the state of one backup. Steps never modify a Session; they
// return an updated copy.
type Session struct {
	AppPath    string
	OutputPath string
	ToolsDir   string
	Identity   Identity

	// Set by the steps that produce them.
	PackagePath string
	KeyPath     string
	CertPath    string
	PFXPath     string
	Signed      bool
}

// NewSession validates the app and output directories and reads the app
// manifest.
func NewSession(appPath, outputPath, toolsDir string) (Session, error) {
	appPath = trimQuotes(appPath)
	outputPath = trimQuotes(outputPath)

	if _, err := os.Stat(filepath.Join(appPath, ManifestFile)); err != nil {
		return Session{}, stepErr(StepAppPath, "%s not found in %q", ManifestFile, appPath)
	}
	if info, err := os.Stat(outputPath); err != nil || !info.IsDir() {
		return Session{}, stepErr(StepOutputPath, "output directory %q does not exist", outputPath)
	}

	id, err := ReadManifest(appPath)
	if err != nil {
		return Session{}, &StepError{Step: StepAppPath, Err: err}
	}

	return Session{
		AppPath:    appPath,
		OutputPath: outputPath,
		ToolsDir:   toolsDir,
		Identity:   id,
	}, nil
}

// BaseName is the app directory name, used for every output file.
func (s Session) BaseName() string {
	return filepath.Base(filepath.Clean(s.AppPath))
}

func (s Session) output(ext string) string {
	return filepath.Join(s.OutputPath, s.BaseName()+ext)
}

func (s Session) tool(name string) string {
	return filepath.Join(s.ToolsDir, name)
}

// Packager runs the SDK tools.
type Packager struct {
	runner tool.Runner
	logger *slog.Logger
}

// NewPackager creates a Packager.
func NewPackager(runner tool.Runner, logger *slog.Logger) *Packager {
	return &Packager{runner: runner, logger: logging.Ensure(logger)}
}

// Run performs every step in order and returns the final session.
func (p *Packager) Run(ctx context.Context, s Session) (Session, error) {
	if err := p.VerifyTools(s); err != nil {
		return s, err
	}

	steps := []func(context.Context, Session) (Session, error){
		p.Pack,
		p.CreateCertificate,
		p.ConvertCertificate,
		p.Sign,
	}
	for _, step := range steps {
		next, err := step(ctx, s)
		if err != nil {
			return s, err
		}
		s = next
	}
	return s, nil
}

// VerifyTools checks that every required tool is present.
func (p *Packager) VerifyTools(s Session) error {
	for _, name := range RequiredTools {
		info, err := os.Stat(s.tool(name))
		if err != nil || info.IsDir() {
			return stepErr(StepTools, "required tool not found: %s", s.tool(name))
		}
	}
	return nil
}

// Pack builds <name>.appx from the app directory.
func (p *Packager) Pack(ctx context.Context, s Session) (Session, error) {
	out := s.output(".appx")
	if err := removeIfExists(out); err != nil {
		return s, &StepError{Step: StepPack, Err: err}
	}

	p.logger.Info("creating package", "package", filepath.Base(out))
	last, err := p.run(ctx, s.tool(MakeAppx), "pack", "-d", s.AppPath, "-p", out, "-l")
	if err != nil {
		return s, &StepError{Step: StepPack, Err: err}
	}
	if !strings.Contains(strings.ToLower(last), "succeeded") {
		return s, stepErr(StepPack, "package %s creation failed: %s", filepath.Base(out), last)
	}

	s.PackagePath = out
	return s, nil
}

// CreateCertificate makes a self-signed code signing certificate for the
// manifest publisher.
func (p *Packager) CreateCertificate(ctx context.Context, s Session) (Session, error) {
	pvk, cer := s.output(".pvk"), s.output(".cer")
	for _, path := range []string{pvk, cer} {
		if err := removeIfExists(path); err != nil {
			return s, &StepError{Step: StepCert, Err: err}
		}
	}

	p.logger.Info("creating certificate", "publisher", s.Identity.Publisher)
	last, err := p.run(ctx, s.tool(MakeCert),
		"-n", s.Identity.Publisher,
		"-r",
		"-a", "sha256",
		"-len", "2048",
		"-cy", "end",
		"-h", "0",
		"-eku", codeSigningEKU,
		"-b", "01/01/2000",
		"-sv", pvk,
		cer,
	)
	if err != nil {
		return s, &StepError{Step: StepCert, Err: err}
	}
	if !strings.Contains(strings.ToLower(last), "succeeded") {
		return s, stepErr(StepCert, "certificate creation failed: %s", last)
	}

	s.KeyPath, s.CertPath = pvk, cer
	return s, nil
}

// ConvertCertificate combines the key and certificate into a .pfx. Pvk2Pfx
// prints nothing on success.
func (p *Packager) ConvertCertificate(ctx context.Context, s Session) (Session, error) {
	if s.KeyPath == "" || s.CertPath == "" {
		return s, stepErr(StepConvert, "no certificate to convert")
	}
	pfx := s.output(".pfx")
	if err := removeIfExists(pfx); err != nil {
		return s, &StepError{Step: StepConvert, Err: err}
	}

	p.logger.Info("converting certificate", "pfx", filepath.Base(pfx))
	last, err := p.run(ctx, s.tool(Pvk2Pfx), "-pvk", s.KeyPath, "-spc", s.CertPath, "-pfx", pfx)
	if err != nil {
		return s, &StepError{Step: StepConvert, Err: err}
	}
	if last != "" {
		return s, stepErr(StepConvert, "certificate conversion failed: %s", last)
	}

	s.PFXPath = pfx
	return s, nil
}

// Sign signs the package with the converted certificate.
func (p *Packager) Sign(ctx context.Context, s Session) (Session, error) {
	if s.PackagePath == "" || s.PFXPath == "" {
		return s, stepErr(StepSign, "package and certificate are required")
	}

	p.logger.Info("signing package", "package", filepath.Base(s.PackagePath))
	last, err := p.run(ctx, s.tool(SignTool), "sign", "-fd", "SHA256", "-a", "-f", s.PFXPath, s.PackagePath)
	if err != nil {
		return s, &StepError{Step: StepSign, Err: err}
	}
	if !strings.Contains(strings.ToLower(last), "successfully signed") {
		return s, stepErr(StepSign, "signing failed: %s", last)
	}

	s.Signed = true
	return s, nil
}

// run executes a tool and returns its last non-empty output line. Tool
// stderr is logged.
func (p *Packager) run(ctx context.Context, path string, args ...string) (string, error) {
	out, err := p.runner.Run(ctx, path, args...)
	for _, line := range strings.Split(out.Stderr, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			p.logger.Warn("tool error output", "tool", filepath.Base(path), "line", line)
		}
	}
	if err != nil {
		return "", fmt.Errorf("run %s: %w", filepath.Base(path), err)
	}
	return tool.LastLine(out.Stdout), nil
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove %s: %w", filepath.Base(path), err)
	}
	return nil
}

// trimQuotes strips one pair of surrounding double quotes, as pasted paths
// often carry them.
func trimQuotes(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && strings.HasPrefix(s, `"`) && strings.HasSuffix(s, `"`) {
		return s[1 : len(s)-1]
	}
	return s
}
