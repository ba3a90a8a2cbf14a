package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samhoang/ccx/internal/registry"
)

var (
	listJSON      bool
	listInstalled bool
	listType      string
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List extensions in the registry",
	RunE:    runList,
}

func init() {
	listCmd.Flags().BoolVarP(&listJSON, "json", "j", false, "Output as JSON")
	listCmd.Flags().BoolVarP(&listInstalled, "installed", "i", false, "Only installed extensions")
	listCmd.Flags().StringVarP(&listType, "type", "t", "", "Filter by type (plugin, skill, command, agent)")
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	if listType != "" && !validType(listType) {
		return fmt.Errorf("unknown extension type %q (valid: %v)", listType, registry.AllTypes())
	}

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}

	records := a.store.List()
	if listInstalled {
		records = a.store.ListInstalled()
	}
	if listType != "" {
		var filtered []registry.ExtensionRecord
		for _, rec := range records {
			if string(rec.Type) == listType {
				filtered = append(filtered, rec)
			}
		}
		records = filtered
	}

	if listJSON {
		if records == nil {
			records = []registry.ExtensionRecord{}
		}
		return printJSON(records)
	}

	if len(records) == 0 {
		fmt.Println("No extensions found")
		fmt.Println()
		fmt.Println("Find some with:")
		fmt.Println("  ccx search")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tTYPE\tVERSION\tINSTALLED\tSTARS\tUPDATED\n")
	for _, rec := range records {
		installed := "-"
		if rec.IsInstalled {
			installed = deref(rec.InstalledVersion)
			if rec.HasUpdate {
				installed += " (update)"
			}
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			rec.ID,
			rec.Type,
			rec.Version,
			installed,
			rec.Stars,
			formatDate(rec.LastUpdated),
		)
	}
	w.Flush()

	return nil
}

func validType(t string) bool {
	for _, known := range registry.AllTypes() {
		if string(known) == t {
			return true
		}
	}
	return false
}
