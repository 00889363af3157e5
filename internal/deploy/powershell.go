package deploy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/tool"
)

// PowerShell executables accepted as deployment backends.
const (
	WindowsPowerShell = "powershell"
	PowerShellCore    = "pwsh"
)

var hresultPattern = regexp.MustCompile(`0x[0-9A-Fa-f]{8}`)

// PowerShellPlatform implements Platform with the Appx PowerShell cmdlets.
// Each add or remove runs in its own goroutine and completes the returned
// Operation when the cmdlet exits.
type PowerShellPlatform struct {
	runner tool.Runner
	exe    string
}

// NewPowerShellPlatform runs cmdlets through exe (powershell or pwsh).
func NewPowerShellPlatform(runner tool.Runner, exe string) *PowerShellPlatform {
	if exe == "" {
		exe = WindowsPowerShell
	}
	return &PowerShellPlatform{runner: runner, exe: exe}
}

// AddPackage implements Platform.
func (p *PowerShellPlatform) AddPackage(ctx context.Context, path string, mode Mode) (Operation, error) {
	script := "Add-AppxPackage -Path " + quote(path)
	if mode == ModeForceShutdown {
		script += " -ForceApplicationShutdown"
	}
	return p.start(ctx, script), nil
}

// RemovePackage implements Platform.
func (p *PowerShellPlatform) RemovePackage(ctx context.Context, fullName string) (Operation, error) {
	if fullName == "" {
		return nil, fmt.Errorf("package full name is required")
	}
	return p.start(ctx, "Remove-AppxPackage -Package "+quote(fullName)), nil
}

// FindPackage implements Platform.
func (p *PowerShellPlatform) FindPackage(ctx context.Context, user, familyName string) (*Package, error) {
	if familyName == "" {
		return nil, ErrPackageNotFound
	}

	script := "Get-AppxPackage"
	if user != "" {
		script += " -User " + quote(user)
	}
	script += " | Where-Object { $_.PackageFamilyName -eq " + quote(familyName) + " }" +
		" | Select-Object Name,PackageFullName,PackageFamilyName,Version,InstallLocation" +
		" | ConvertTo-Json -Compress"

	out, err := p.run(ctx, script)
	if err != nil {
		return nil, fmt.Errorf("query installed packages: %w", err)
	}
	return parsePackages(out.Stdout)
}

func (p *PowerShellPlatform) run(ctx context.Context, script string) (tool.Output, error) {
	return p.runner.Run(ctx, p.exe, "-NoProfile", "-NonInteractive", "-Command", "$ErrorActionPreference = 'Stop'; "+script)
}

func (p *PowerShellPlatform) start(ctx context.Context, script string) *AsyncOperation {
	op := NewOperation()
	go func() {
		out, err := p.run(ctx, script)
		switch {
		case err == nil:
			op.Complete(StatusCompleted, Result{})
		case ctx.Err() != nil:
			op.Complete(StatusCanceled, Result{Message: ctx.Err().Error()})
		default:
			op.Complete(StatusError, failureResult(out, err))
		}
	}()
	return op
}

// failureResult extracts the HRESULT the cmdlet printed, falling back to the
// process exit code.
func failureResult(out tool.Output, err error) Result {
	msg := tool.LastLine(out.Stderr)
	if msg == "" {
		msg = err.Error()
	}

	if m := hresultPattern.FindString(out.Stderr + "\n" + out.Stdout); m != "" {
		if n, perr := strconv.ParseUint(m[2:], 16, 32); perr == nil {
			return Result{Code: int(int32(uint32(n))), Message: msg}
		}
	}

	code := 1
	var exitErr *tool.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode != 0 {
		code = exitErr.ExitCode
	}
	return Result{Code: code, Message: msg}
}

type psPackage struct {
	Name              string `json:"Name"`
	PackageFullName   string `json:"PackageFullName"`
	PackageFamilyName string `json:"PackageFamilyName"`
	Version           string `json:"Version"`
	InstallLocation   string `json:"InstallLocation"`
}

// parsePackages decodes ConvertTo-Json output, which is empty, one object or
// an array. The first entry wins.
func parsePackages(stdout string) (*Package, error) {
	data := strings.TrimSpace(stdout)
	if data == "" {
		return nil, ErrPackageNotFound
	}

	var list []psPackage
	if strings.HasPrefix(data, "[") {
		if err := json.Unmarshal([]byte(data), &list); err != nil {
			return nil, fmt.Errorf("decode package list: %w", err)
		}
	} else {
		var one psPackage
		if err := json.Unmarshal([]byte(data), &one); err != nil {
			return nil, fmt.Errorf("decode package: %w", err)
		}
		list = append(list, one)
	}
	if len(list) == 0 {
		return nil, ErrPackageNotFound
	}

	first := list[0]
	version, err := ParseVersion(first.Version)
	if err != nil {
		return nil, err
	}
	return &Package{
		Name:            first.Name,
		FullName:        first.PackageFullName,
		FamilyName:      first.PackageFamilyName,
		Version:         version,
		InstallLocation: first.InstallLocation,
	}, nil
}

// quote renders s as a PowerShell single-quoted literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
