package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/samhoang/ccx/internal/github"
)

var rateLimitJSON bool

var rateLimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Show the GitHub API rate limit for the current token",
	RunE:  runRateLimit,
}

func init() {
	rateLimitCmd.Flags().BoolVarP(&rateLimitJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(rateLimitCmd)
}

func runRateLimit(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}

	status, err := a.gh.GetRateLimitStatus(cmd.Context())
	if err != nil {
		return err
	}

	if rateLimitJSON {
		return printJSON(status)
	}

	auth := "anonymous"
	if a.gh.HasToken() {
		auth = "token"
	}
	fmt.Println(headingStyle.Render("GitHub rate limit") + dimStyle.Render(" ("+auth+")"))

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "RESOURCE\tREMAINING\tLIMIT\tRESETS\n")
	for _, row := range []struct {
		name string
		rl   github.RateLimit
	}{
		{"core", status.Core},
		{"search", status.Search},
		{"graphql", status.GraphQL},
	} {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\n", row.name, row.rl.Remaining, row.rl.Limit, resetIn(row.rl.Reset))
	}
	w.Flush()
	return nil
}

func resetIn(t time.Time) string {
	if t.IsZero() || t.Unix() == 0 {
		return "-"
	}
	d := time.Until(t).Round(time.Minute)
	if d <= 0 {
		return "now"
	}
	return "in " + d.String()
}
