package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ZebulonRouseFrantzich/storeagent/internal/backup"
	"github.com/ZebulonRouseFrantzich/storeagent/internal/tool"
)

// defaultToolsDir is looked up in the working directory.
const defaultToolsDir = "tools"

func (a *app) backupCommand() *cobra.Command {
	var appPath, outputPath, toolsDir string
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Package an installed app directory into a signed .appx",
		Long: `backup repacks an installed app with MakeAppx, signs it with a fresh self-signed
certificate for the manifest publisher and writes <name>.appx, .cer, .pvk and
.pfx into the output directory. The SDK tools are looked up in --tools-dir.

Exit codes: 2 tools missing, 3 bad app path, 4 bad output path, 5 pack,
6 certificate, 7 convert, 8 sign.`,
		Example: `  storeagent backup --app-path "C:\Program Files\WindowsApps\App_1.0.0.0_x64__8wekyb3d8bbwe" --output-path D:\backup`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFlag(cmd, "app-path", appPath); err != nil {
				return err
			}
			if err := requireFlag(cmd, "output-path", outputPath); err != nil {
				return err
			}
			if toolsDir == "" {
				wd, err := os.Getwd()
				if err != nil {
					return err
				}
				toolsDir = filepath.Join(wd, defaultToolsDir)
			}

			session, err := backup.NewSession(appPath, outputPath, toolsDir)
			if err != nil {
				return err
			}
			a.logger.Info("backing up app", "name", session.Identity.Name, "version", session.Identity.Version, "arch", session.Identity.ProcessorArchitecture)

			final, err := backup.NewPackager(tool.ExecRunner{}, a.logger).Run(cmd.Context(), session)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), color.GreenString("Signed package written to %s", final.PackagePath))
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Certificate: %s\n", final.CertPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&appPath, "app-path", "", "Installed app directory containing AppxManifest.xml")
	cmd.Flags().StringVar(&outputPath, "output-path", "", "Existing directory for the package and certificate files")
	cmd.Flags().StringVar(&toolsDir, "tools-dir", "", "Directory holding MakeAppx, MakeCert, Pvk2Pfx and SignTool (default: ./"+defaultToolsDir+")")
	return cmd
}
