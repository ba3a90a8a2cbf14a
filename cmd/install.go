package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samhoang/ccx/internal/installer"
)

var (
	installForce bool
	installJSON  bool
)

var installCmd = &cobra.Command{
	Use:   "install <github-url>",
	Short: "Install an extension from a GitHub repository",
	Long: `Download the latest release of a GitHub repository, validate its
extension manifest and unpack it into the extensions directory.

Examples:
  ccx install https://github.com/acme/lint-skill
  ccx install https://github.com/acme/lint-skill --force`,
	Args: cobra.ExactArgs(1),
	RunE: runInstall,
}

func init() {
	installCmd.Flags().BoolVarP(&installForce, "force", "f", false, "Reinstall if already installed")
	installCmd.Flags().BoolVarP(&installJSON, "json", "j", false, "Output the installed record as JSON")
	rootCmd.AddCommand(installCmd)
}

func runInstall(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	if err := a.initialize(cmd.Context()); err != nil {
		return err
	}

	rec, err := a.installer.Install(cmd.Context(), args[0], installer.InstallOptions{Force: installForce})
	if err != nil {
		return err
	}

	if installJSON {
		return printJSON(rec)
	}

	fmt.Printf("%s Installed %s %s (%s)\n", okStyle.Render("✓"), rec.ID, deref(rec.InstalledVersion), rec.Type)
	if len(rec.Permissions) > 0 {
		fmt.Println(warnStyle.Render("  requests permissions:"), rec.Permissions)
	}
	fmt.Println(dimStyle.Render("  " + a.paths.ExtensionDir(rec.ID)))
	return nil
}
