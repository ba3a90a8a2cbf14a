package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samhoang/ccx/internal/github"
)

var (
	searchQuery string
	searchSort  string
	searchLimit int
	searchPage  int
	searchJSON  bool
)

var searchCmd = &cobra.Command{
	Use:     "search [topic]",
	Aliases: []string{"find"},
	Short:   "Search GitHub for extensions by topic",
	Long: `Search GitHub repositories tagged with a topic. The topic defaults to the
one in ccx.toml (claude-code-extension).

Examples:
  ccx search
  ccx search --query lint
  ccx search claude-code-skill --sort updated --limit 5`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVarP(&searchQuery, "query", "q", "", "Extra search terms")
	searchCmd.Flags().StringVarP(&searchSort, "sort", "s", "stars", "Sort by stars or updated")
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "l", 30, "Results per page")
	searchCmd.Flags().IntVarP(&searchPage, "page", "p", 1, "Page number")
	searchCmd.Flags().BoolVarP(&searchJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}

	topic := a.cfg.GitHub.Topic
	if len(args) == 1 {
		topic = args[0]
	}

	res, err := a.gh.SearchRepositories(cmd.Context(), topic, github.SearchOptions{
		Query:   searchQuery,
		Sort:    searchSort,
		PerPage: searchLimit,
		Page:    searchPage,
	})
	if err != nil {
		return err
	}

	if searchJSON {
		return printJSON(res)
	}

	if len(res.Items) == 0 {
		fmt.Println("No extensions found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "REPOSITORY\tSTARS\tUPDATED\tDESCRIPTION\n")
	for _, repo := range res.Items {
		name := repo.FullName
		if a.store.IsInstalled(repo.FullName) {
			name += " ✓"
		}
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			name,
			repo.StargazersCount,
			formatDate(repo.UpdatedAt),
			truncate(repo.Description, 50),
		)
	}
	w.Flush()

	fmt.Println()
	fmt.Println(dimStyle.Render(fmt.Sprintf("%d of %d results", len(res.Items), res.TotalCount)))
	fmt.Println("Install with: ccx install https://github.com/<repository>")
	return nil
}
