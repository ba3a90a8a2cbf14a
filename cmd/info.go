package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/samhoang/ccx/internal/github"
	"github.com/samhoang/ccx/internal/registry"
)

var infoJSON bool

var infoCmd = &cobra.Command{
	Use:   "info <owner/repo>",
	Short: "Show registry and GitHub details for an extension",
	Args:  cobra.ExactArgs(1),
	RunE:  runInfo,
}

func init() {
	infoCmd.Flags().BoolVarP(&infoJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(infoCmd)
}

type infoOutput struct {
	Record  *registry.ExtensionRecord `json:"record,omitempty"`
	Repo    *github.Repository        `json:"repository,omitempty"`
	Release *github.Release           `json:"latestRelease,omitempty"`
}

func runInfo(cmd *cobra.Command, args []string) error {
	id := args[0]
	owner, repo, ok := strings.Cut(id, "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return fmt.Errorf("expected owner/repo, got %q", id)
	}

	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	var out infoOutput
	if rec, ok := a.store.Get(id); ok {
		out.Record = &rec
	}

	ghRepo, err := a.gh.GetRepository(ctx, owner, repo)
	if err != nil {
		if out.Record == nil {
			return err
		}
		a.logger.Warn("could not refresh from GitHub", zap.String("id", id), zap.Error(err))
	}
	out.Repo = ghRepo
	if ghRepo != nil {
		if rel, err := a.gh.GetLatestRelease(ctx, owner, repo); err == nil {
			out.Release = rel
		} else {
			a.logger.Debug("no latest release", zap.String("id", id), zap.Error(err))
		}
	}

	if infoJSON {
		return printJSON(out)
	}

	fmt.Println(headingStyle.Render(id))
	field := func(label, value string) {
		if value == "" {
			return
		}
		fmt.Println(labelStyle.Render(label) + value)
	}

	if rec := out.Record; rec != nil {
		field("Type", string(rec.Type))
		field("Name", rec.DisplayName)
		field("Author", rec.Author)
		field("Description", rec.Description)
		field("Version", rec.Version)
		if rec.IsInstalled {
			installed := deref(rec.InstalledVersion)
			if rec.HasUpdate {
				installed += " " + warnStyle.Render("(update available)")
			}
			field("Installed", installed)
		} else {
			field("Installed", dimStyle.Render("no"))
		}
		if len(rec.Permissions) > 0 {
			field("Permissions", strings.Join(rec.Permissions, ", "))
		}
		if len(rec.Keywords) > 0 {
			field("Keywords", strings.Join(rec.Keywords, ", "))
		}
	}
	if r := out.Repo; r != nil {
		if out.Record == nil {
			field("Description", r.Description)
		}
		field("Stars", strconv.Itoa(r.StargazersCount))
		field("Updated", formatDate(r.UpdatedAt))
		field("Repository", r.HTMLURL)
		if r.Archived {
			field("Status", warnStyle.Render("archived"))
		}
	}
	if rel := out.Release; rel != nil {
		field("Latest", rel.TagName+" ("+formatDate(rel.PublishedAt)+")")
	}

	if out.Record == nil || !out.Record.IsInstalled {
		fmt.Println()
		fmt.Printf("Install with: ccx install https://github.com/%s\n", id)
	}
	return nil
}
