package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/service"
)

func requireFlag(cmd *cobra.Command, name, value string) error {
	if strings.TrimSpace(value) == "" {
		_ = cmd.Usage()
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}

func (a *app) uninstallCommand() *cobra.Command {
	var familyName string
	cmd := &cobra.Command{
		Use:     "uninstall",
		Short:   "Remove an installed app by package family name",
		Example: "  storeagent uninstall --pfn Microsoft.DesktopAppInstaller_8wekyb3d8bbwe",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag(cmd, "pfn", familyName); err != nil {
				return err
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			pkg, err := svc.Uninstall(cmd.Context(), strings.TrimSpace(familyName))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Removed %s", pkg.FullName))
			return nil
		},
	}
	cmd.Flags().StringVar(&familyName, "pfn", "", "Package family name")
	return cmd
}

func (a *app) certificateCommand() *cobra.Command {
	var certPath string
	cmd := &cobra.Command{
		Use:     "install-certificate",
		Short:   "Trust a certificate file for package installs",
		Example: "  storeagent install-certificate --cert-path contoso.cer",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag(cmd, "cert-path", certPath); err != nil {
				return err
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			added, err := svc.InstallCertificate(cmd.Context(), certPath)
			if err != nil {
				return err
			}
			if added {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Certificate installed"))
			} else {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Certificate already trusted")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&certPath, "cert-path", "", "Certificate file (.cer, DER or PEM)")
	return cmd
}

func (a *app) localPackageCommand() *cobra.Command {
	var req service.LocalPackageRequest
	cmd := &cobra.Command{
		Use:   "install-local-package",
		Short: "Install a package file from disk",
		Example: `  storeagent install-local-package --pkg-path App_1.0.0.0_x64.msix
  storeagent install-local-package --pkg-path App.msix --signature App.msix.asc --keyring release.asc`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag(cmd, "pkg-path", req.Path); err != nil {
				return err
			}
			if req.Signature != "" && req.Keyring == "" {
				_ = cmd.Usage()
				return errors.New("--keyring is required with --signature")
			}
			svc, err := a.service(cmd.Context())
			if err != nil {
				return err
			}
			if err := svc.InstallLocalPackage(cmd.Context(), req); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Package installed"))
			return nil
		},
	}
	cmd.Flags().StringVar(&req.Path, "pkg-path", "", "Package file (.msix, .msixbundle, .appx)")
	cmd.Flags().StringVar(&req.Signature, "signature", "", "Detached OpenPGP signature of the package")
	cmd.Flags().StringVar(&req.Keyring, "keyring", "", "OpenPGP public keyring for --signature")
	return cmd
}
