package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/samhoang/ccx/internal/config"
)

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the ccx directory, config and registry",
	Long: `Create ~/.ccx (or $CCX_DIR) with an empty registry.json, the extensions
directory and a default ccx.toml. Existing files are left alone unless
--force is given, which rewrites ccx.toml with the defaults.`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVar(&initForce, "force", false, "Rewrite ccx.toml with defaults")
	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}

	if err := a.initialize(cmd.Context()); err != nil {
		return err
	}

	if _, err := os.Stat(a.paths.ConfigPath()); os.IsNotExist(err) || initForce {
		if err := config.DefaultConfig().Save(a.paths.CcxDir); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Wrote %s\n", a.paths.ConfigPath())
	}

	fmt.Println(okStyle.Render("✓") + " ccx initialized at " + a.paths.CcxDir)
	fmt.Println()
	fmt.Println("Next:")
	fmt.Println("  ccx search            Browse extensions")
	fmt.Println("  ccx install <url>     Install from a GitHub repository")
	return nil
}
