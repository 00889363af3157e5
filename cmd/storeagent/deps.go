package main

import (
	"fmt"
	"log/slog"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/config"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/deploy"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/listing"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/platform"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/service"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/tool"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/trust"
)

// depsFunc builds the service collaborators for a configuration.
type depsFunc func(cfg *config.Config, logger *slog.Logger) (service.Deps, error)

// defaultDeps wires the real listing site, PowerShell and certificate store.
func defaultDeps(cfg *config.Config, logger *slog.Logger) (service.Deps, error) {
	runner := tool.ExecRunner{}

	store, err := newStore(cfg, runner)
	if err != nil {
		return service.Deps{}, err
	}

	return service.Deps{
		Lister: listing.NewClient(listing.Options{
			Endpoint:  cfg.Listing.Endpoint,
			UserAgent: cfg.Listing.UserAgent,
			Ring:      cfg.Listing.Ring,
			Timeout:   cfg.Listing.Timeout,
			Logger:    logger,
		}),
		Platform: deploy.NewPowerShellPlatform(runner, cfg.Deploy.Backend),
		Store:    store,
		Counter:  platform.ProcessScanner{},
		Detector: platform.NewDetector(),
		Logger:   logger,
	}, nil
}

func newStore(cfg *config.Config, runner tool.Runner) (trust.Store, error) {
	switch cfg.Trust.Backend {
	case config.TrustCertutil:
		return trust.NewCertutilStore(runner, cfg.Trust.Store, cfg.Trust.UserStore), nil
	case config.TrustDir:
		return trust.NewDirStore(cfg.Trust.Dir), nil
	default:
		return nil, fmt.Errorf("unknown trust backend %q", cfg.Trust.Backend)
	}
}
