package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/listing"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/service"
)

type installOptions struct {
	productID  string
	familyName string
}

func addInstallFlags(cmd *cobra.Command, opts *installOptions) {
	cmd.Flags().StringVar(&opts.productID, "product-id", "", "Store product id, e.g. 9NBLGGH4NNS1")
	cmd.Flags().StringVar(&opts.familyName, "pfn", "", "Package family name, e.g. Microsoft.DesktopAppInstaller_8wekyb3d8bbwe")
	cmd.MarkFlagsMutuallyExclusive("product-id", "pfn")
}

func (opts installOptions) request() (service.InstallRequest, error) {
	switch {
	case strings.TrimSpace(opts.productID) != "":
		return service.InstallRequest{Type: listing.ProductID, Identifier: strings.TrimSpace(opts.productID)}, nil
	case strings.TrimSpace(opts.familyName) != "":
		return service.InstallRequest{Type: listing.PackageFamilyName, Identifier: strings.TrimSpace(opts.familyName)}, nil
	default:
		return service.InstallRequest{}, errors.New("one of --product-id or --pfn is required")
	}
}

func (a *app) installCommand() *cobra.Command {
	var opts installOptions
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install a store app and its dependencies",
		Example: `  storeagent install --product-id 9NBLGGH4NNS1
  storeagent install --pfn Microsoft.DesktopAppInstaller_8wekyb3d8bbwe --output result.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runInstall(cmd, opts)
		},
	}
	addInstallFlags(cmd, &opts)
	return cmd
}

func (a *app) runInstall(cmd *cobra.Command, opts installOptions) error {
	req, err := opts.request()
	if err != nil {
		_ = cmd.Usage()
		return err
	}

	svc, err := a.service(cmd.Context())
	if err != nil {
		return err
	}

	out, err := svc.Install(cmd.Context(), req)
	if out != nil {
		printInstallSummary(cmd, out)
	}
	if err != nil {
		return &exitError{code: exitInstall, err: err}
	}
	return nil
}

func printInstallSummary(cmd *cobra.Command, out *service.InstallOutcome) {
	w := cmd.OutOrStdout()
	sum := out.Summary

	if len(sum.Installed) > 0 {
		_, _ = fmt.Fprintln(w, color.GreenString("Installed %d package(s)", len(sum.Installed)))
		for _, name := range sum.Installed {
			_, _ = fmt.Fprintf(w, "  %s\n", name)
		}
	}
	if len(sum.Untrusted) > 0 {
		_, _ = fmt.Fprintln(w, color.YellowString("Certificate not trusted for %d package(s)", len(sum.Untrusted)))
	}
	if len(sum.Failed) > 0 {
		_, _ = fmt.Fprintln(w, color.RedString("Failed to install %d package(s)", len(sum.Failed)))
		for _, f := range sum.Failed {
			_, _ = fmt.Fprintf(w, "  %s: %v\n", f.Name, f.Err)
		}
	}
	if out.Result != nil {
		_, _ = fmt.Fprintf(w, "%s %s\n", out.Result.FullName, out.Result.Version)
		_, _ = fmt.Fprintf(w, "Result written to %s\n", out.ResultPath)
	}
}
