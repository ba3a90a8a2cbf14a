package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samhoang/ccx/internal/installer"
)

var outdatedJSON bool

var outdatedCmd = &cobra.Command{
	Use:   "outdated",
	Short: "Check installed extensions for newer releases",
	Long: `Refresh stars, last-updated dates and latest release versions for every
installed extension and list those with a newer release. Metadata is fetched
in batches of up to 10 repositories per GraphQL query.`,
	RunE: runOutdated,
}

func init() {
	outdatedCmd.Flags().BoolVarP(&outdatedJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(outdatedCmd)
}

func runOutdated(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}

	if len(a.store.ListInstalled()) == 0 {
		if outdatedJSON {
			fmt.Println("[]")
			return nil
		}
		fmt.Println("No extensions installed")
		return nil
	}

	updates, err := a.installer.CheckUpdates(cmd.Context())
	if err != nil {
		return err
	}

	if outdatedJSON {
		if updates == nil {
			updates = []installer.Update{}
		}
		return printJSON(updates)
	}

	if len(updates) == 0 {
		fmt.Println(okStyle.Render("✓") + " All extensions are up to date")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tINSTALLED\tLATEST\n")
	for _, u := range updates {
		fmt.Fprintf(w, "%s\t%s\t%s\n", u.ID, u.Installed, warnStyle.Render(u.Latest))
	}
	w.Flush()

	fmt.Println()
	fmt.Println("Update with: ccx install --force https://github.com/<id>")
	return nil
}
