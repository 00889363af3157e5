package deploy

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/fetch"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/logging"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/platform"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/transaction"
)

// TrustEnsurer pre-seeds the certificate of a package.
type TrustEnsurer interface {
	EnsureForPackage(ctx context.Context, path string) bool
}

// Options configures a Driver.
type Options struct {
	// Timeout bounds each deployment wait; zero waits without limit.
	Timeout time.Duration
	// User scopes installed package lookups; empty means the current user.
	User    string
	Trust   TrustEnsurer
	Counter platform.InstanceCounter
	Logger  *slog.Logger
	Journal *transaction.Run
}

// Driver installs planned artifacts one at a time.
type Driver struct {
	platform Platform
	timeout  time.Duration
	user     string
	trust    TrustEnsurer
	counter  platform.InstanceCounter
	logger   *slog.Logger
	journal  *transaction.Run
}

// NewDriver creates a driver for p.
func NewDriver(p Platform, opts Options) *Driver {
	return &Driver{
		platform: p,
		timeout:  opts.Timeout,
		user:     opts.User,
		trust:    opts.Trust,
		counter:  opts.Counter,
		logger:   logging.Ensure(opts.Logger),
		journal:  opts.Journal,
	}
}

// Summary is the per-artifact outcome of InstallAll.
type Summary struct {
	Installed []string
	Failed    []Failure
	// Untrusted lists packages whose certificate could not be pre-seeded.
	Untrusted []string
}

// Failure is one artifact that did not install.
type Failure struct {
	Name string
	Err  error
}

// OK reports whether every attempted step installed.
func (s Summary) OK() bool {
	return len(s.Failed) == 0 && len(s.Installed) > 0
}

// InstallAll plans and installs artifacts in order. Per-artifact failures are
// collected and the loop continues; only context cancellation stops it early.
func (d *Driver) InstallAll(ctx context.Context, artifacts []fetch.Artifact) (Summary, error) {
	var sum Summary
	for _, step := range Plan(artifacts) {
		if err := ctx.Err(); err != nil {
			return sum, err
		}

		name := step.Artifact.FileName()
		if d.trust != nil {
			if d.trust.EnsureForPackage(ctx, step.Artifact.Path) {
				d.journal.Record(name, transaction.StageTrust, transaction.StateCompleted, "", nil)
			} else {
				d.logger.Warn("certificate not trusted, continuing", "file", name)
				d.journal.Record(name, transaction.StageTrust, transaction.StateFailed, "certificate not trusted", nil)
				sum.Untrusted = append(sum.Untrusted, name)
			}
		}

		if !step.Dependency {
			d.warnRunning(ctx, step)
		}

		err := d.Install(ctx, step.Artifact.Path, step.Mode)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			d.logger.Error("install failed", "file", name, "error", err)
			d.journal.Record(name, transaction.StageInstall, transaction.StateFailed, "", err)
			sum.Failed = append(sum.Failed, Failure{Name: name, Err: err})
			continue
		}

		d.logger.Info("installed package", "file", name, "dependency", step.Dependency)
		d.journal.Record(name, transaction.StageInstall, transaction.StateCompleted, "", nil)
		sum.Installed = append(sum.Installed, name)
	}
	return sum, nil
}

// Install deploys one package file and waits for the outcome.
func (d *Driver) Install(ctx context.Context, path string, mode Mode) error {
	d.logger.Debug("adding package", "path", path, "mode", mode)
	op, err := d.platform.AddPackage(ctx, path, mode)
	if err != nil {
		return err
	}
	return Await(ctx, op, d.timeout)
}

// Remove uninstalls a package by full name and waits for the outcome.
func (d *Driver) Remove(ctx context.Context, fullName string) error {
	op, err := d.platform.RemovePackage(ctx, fullName)
	if err != nil {
		return err
	}
	return Await(ctx, op, d.timeout)
}

// Find looks up an installed package for the configured user.
func (d *Driver) Find(ctx context.Context, familyName string) (*Package, error) {
	return d.platform.FindPackage(ctx, d.user, familyName)
}

// warnRunning logs running instances that a forced shutdown will close.
func (d *Driver) warnRunning(ctx context.Context, step Step) {
	if d.counter == nil || step.Artifact.Source == nil || step.Artifact.Source.FamilyName == "" {
		return
	}

	pkg, err := d.Find(ctx, step.Artifact.Source.FamilyName)
	if err != nil {
		if !errors.Is(err, ErrPackageNotFound) {
			d.logger.Debug("installed package lookup failed", "family", step.Artifact.Source.FamilyName, "error", err)
		}
		return
	}

	n, err := d.counter.CountUnder(ctx, pkg.InstallLocation)
	if err != nil {
		d.logger.Debug("process scan failed", "error", err)
		return
	}
	if n > 0 {
		d.logger.Warn("running instances will be closed", "package", pkg.FullName, "version", pkg.Version.String(), "instances", n)
	}
}
