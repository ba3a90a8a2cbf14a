package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/samhoang/ccx/internal/registry"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Summarize the registry",
	RunE:  runStats,
}

func init() {
	statsCmd.Flags().BoolVarP(&statsJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}

	stats := a.store.Stats()
	if statsJSON {
		return printJSON(map[string]any{
			"total":     stats.Total,
			"installed": stats.Installed,
			"byType":    stats.ByType,
		})
	}

	fmt.Println(headingStyle.Render("Registry"))
	fmt.Println(labelStyle.Render("Path") + a.store.Path())
	fmt.Println(labelStyle.Render("Known") + fmt.Sprint(stats.Total))
	fmt.Println(labelStyle.Render("Installed") + fmt.Sprint(stats.Installed))
	for _, t := range registry.AllTypes() {
		if n := stats.ByType[t]; n > 0 {
			fmt.Println(labelStyle.Render("  "+string(t)) + fmt.Sprint(n))
		}
	}
	return nil
}
