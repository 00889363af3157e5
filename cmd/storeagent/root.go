package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/config"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/logging"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/platform"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/service"
)

// app holds the state shared by every command of one invocation.
type app struct {
	stdout io.Writer
	stderr io.Writer
	deps   depsFunc
	logger *slog.Logger

	// configured is set once the logger reflects the log flags.
	configured bool

	configPath   string
	outputPath   string
	outputFormat string
	arch         string
	logLevel     string
	logFormat    string
}

func newApp(stdout, stderr io.Writer, deps depsFunc) *app {
	return &app{
		stdout: stdout,
		stderr: stderr,
		deps:   deps,
		logger: logging.New(logging.FormatText, stderr, slog.LevelInfo),
	}
}

func (a *app) rootCommand() *cobra.Command {
	var install installOptions

	root := &cobra.Command{
		Use:   "storeagent",
		Short: "Resolve, download and install store app packages",
		Long: `storeagent looks up the packages published for a store app, downloads the
ones that fit this machine and installs them, dependencies first.

Running storeagent without a subcommand performs an install.`,
		Version:       Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInstall(cmd, install)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "Config file (default: <config dir>/"+config.FileName+")")
	flags.StringVar(&a.outputPath, "output", "", "Result document path (default: ./install_result.json)")
	flags.StringVar(&a.outputFormat, "output-format", "", "Result document format (json, yaml)")
	flags.StringVar(&a.arch, "arch", "", "Preferred package architecture (x64, x86, arm64, auto)")
	flags.StringVar(&a.logLevel, "log-level", "info", "Set log verbosity (debug, info, warning, error)")
	flags.StringVar(&a.logFormat, "log-format", "text", "Log format (text, json)")

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		_ = cmd.Usage()
		return err
	})
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		return a.configureLogging()
	}

	addInstallFlags(root, &install)
	root.AddCommand(
		a.installCommand(),
		a.uninstallCommand(),
		a.certificateCommand(),
		a.localPackageCommand(),
		a.backupCommand(),
	)
	return root
}

func (a *app) configureLogging() error {
	level, err := logging.ParseLevel(a.logLevel)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(a.logFormat)
	if err != nil {
		return err
	}
	a.logger = logging.New(format, a.stderr, level)
	slog.SetDefault(a.logger)
	a.configured = true
	return nil
}

// loadConfig reads the config file and applies the persistent flag
// overrides.
func (a *app) loadConfig(ctx context.Context) (*config.Config, error) {
	parser := config.NewParser(platform.NewDetector(), a.logger)
	cfg, err := parser.Load(ctx, a.configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %s", config.FormatError(err, false))
	}

	if a.outputPath != "" {
		cfg.Output.Path = a.outputPath
	}
	if a.outputFormat != "" {
		cfg.Output.Format = a.outputFormat
	}
	if a.arch != "" {
		cfg.Select.PreferredArch = a.arch
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// service builds the service for one command.
func (a *app) service(ctx context.Context) (*service.Service, error) {
	cfg, err := a.loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	deps, err := a.deps(cfg, a.logger)
	if err != nil {
		return nil, err
	}
	return service.New(cfg, deps), nil
}
