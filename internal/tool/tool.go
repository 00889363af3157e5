// Package tool runs external programs (PowerShell, certutil, the SDK packaging
// tools) behind a small interface so callers can be tested with a fake.
package tool

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Runner executes a program and returns its standard output.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (Output, error)
}

// Output holds the captured streams of a finished program.
type Output struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// ExitError is returned when a program ran but exited with a non-zero code.
type ExitError struct {
	Name     string
	ExitCode int
	Stderr   string
}

func (e *ExitError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s exited with code %d: %s", e.Name, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("%s exited with code %d", e.Name, e.ExitCode)
}

// ExecRunner implements Runner with os/exec.
type ExecRunner struct {
	// Env replaces the process environment when non-nil.
	Env []string
}

// Run starts name with args and waits for it to exit. Output is returned even
// when the program fails so callers can inspect what it printed.
func (r ExecRunner) Run(ctx context.Context, name string, args ...string) (Output, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if r.Env != nil {
		cmd.Env = r.Env
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			out.ExitCode = exitErr.ExitCode()
			return out, &ExitError{Name: name, ExitCode: out.ExitCode, Stderr: trim(out.Stderr)}
		}
		return out, fmt.Errorf("run %s: %w", name, err)
	}

	return out, nil
}

// LastLine returns the last non-empty line of s.
func LastLine(s string) string {
	lines := bytes.Split([]byte(s), []byte("\n"))
	for i := len(lines) - 1; i >= 0; i-- {
		line := bytes.TrimSpace(lines[i])
		if len(line) > 0 {
			return string(line)
		}
	}
	return ""
}

func trim(s string) string {
	return string(bytes.TrimSpace([]byte(s)))
}
