package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/backup"
)

// Version will be set at build time via -ldflags
var Version = "v0.1.0"

// Exit codes.
const (
	exitOK          = 0
	exitFailure     = 1
	exitInstall     = 2
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps)
	stop()
	os.Exit(code)
}

// exitError carries a specific process exit code.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	return e.err.Error()
}

func (e *exitError) Unwrap() error {
	return e.err
}

// run executes the CLI and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, deps depsFunc) int {
	a := newApp(stdout, stderr, deps)
	root := a.rootCommand()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	if errors.Is(err, context.Canceled) {
		a.logger.Warn("command interrupted", "error", err)
		return exitInterrupted
	}

	code := exitFailure
	var ee *exitError
	var se *backup.StepError
	switch {
	case errors.As(err, &se):
		code = se.Step.ExitCode()
	case errors.As(err, &ee):
		code = ee.code
	}

	if a.configured {
		a.logger.Error("command failed", "error", err)
	} else {
		fmt.Fprintf(stderr, "Error: %v\n", err)
	}
	return code
}
