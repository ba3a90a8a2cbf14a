package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samhoang/ccx/internal/installer"
	"github.com/samhoang/ccx/internal/picker"
)

var uninstallPurge bool

var uninstallCmd = &cobra.Command{
	Use:     "uninstall [id...]",
	Aliases: []string{"rm", "remove"},
	Short:   "Uninstall extensions",
	Long: `Remove installed extensions from disk. Without ids an interactive picker
lists the installed extensions. The registry keeps the record (marked not
installed) unless --purge is given.`,
	RunE: runUninstall,
}

func init() {
	uninstallCmd.Flags().BoolVar(&uninstallPurge, "purge", false, "Also remove the registry record")
	rootCmd.AddCommand(uninstallCmd)
}

func runUninstall(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}

	ids := args
	if len(ids) == 0 {
		installed := a.store.ListInstalled()
		if len(installed) == 0 {
			fmt.Println("No extensions installed")
			return nil
		}

		items := make([]picker.Item, 0, len(installed))
		for _, rec := range installed {
			items = append(items, picker.Item{
				ID:     rec.ID,
				Label:  rec.ID,
				Detail: fmt.Sprintf("%s %s", deref(rec.InstalledVersion), rec.Type),
			})
		}
		ids, err = picker.Run("Uninstall extensions", items)
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			fmt.Println("Nothing selected")
			return nil
		}
	}

	var errs []error
	for _, id := range ids {
		if err := a.installer.Uninstall(cmd.Context(), id, installer.UninstallOptions{Purge: uninstallPurge}); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Printf("%s Uninstalled %s\n", okStyle.Render("✓"), id)
	}
	return errors.Join(errs...)
}
