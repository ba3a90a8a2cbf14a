package cmd

import (
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/samhoang/ccx/internal/registry"
	"github.com/samhoang/ccx/internal/symlink"
)

var linkCheck bool

var linkCmd = &cobra.Command{
	Use:   "link [id...]",
	Short: "Link installed extensions into the Claude config directory",
	Long: `Create or repair the links that expose installed extensions to Claude Code
under $CLAUDE_CONFIG_DIR (default ~/.claude): skills/, agents/, commands/ and
plugins/. Without ids every installed extension is linked. Paths that ccx
did not create are never replaced.

Use --check to report link state without changing anything.`,
	RunE: runLink,
}

func init() {
	linkCmd.Flags().BoolVar(&linkCheck, "check", false, "Only report link state")
	rootCmd.AddCommand(linkCmd)
}

func runLink(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd.Context())
	if err != nil {
		return err
	}

	var records []registry.ExtensionRecord
	if len(args) == 0 {
		records = a.store.ListInstalled()
	} else {
		for _, id := range args {
			rec, ok := a.store.Get(id)
			if !ok || !rec.IsInstalled {
				return fmt.Errorf("%s is not installed", id)
			}
			records = append(records, rec)
		}
	}
	if len(records) == 0 {
		fmt.Println("No extensions installed")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "ID\tSTATE\tLINK\n")

	var errs []error
	for _, rec := range records {
		target := a.paths.ExtensionDir(rec.ID)
		path, err := a.linker.LinkPath(string(rec.Type), target)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.ID, err))
			continue
		}

		if !linkCheck {
			if _, err := a.linker.Link(string(rec.Type), target); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", rec.ID, err))
			}
		}

		info, err := a.linker.Info(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", rec.ID, err))
			continue
		}
		state := string(info.State)
		if info.State == symlink.StateLinked {
			state = okStyle.Render(state)
		} else {
			state = warnStyle.Render(state)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.ID, state, path)
	}
	w.Flush()

	return errors.Join(errs...)
}
