package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/samhoang/ccx/internal/config"
	"github.com/samhoang/ccx/internal/manifest"
	"github.com/samhoang/ccx/internal/semver"
)

var validateJSON bool

var validateCmd = &cobra.Command{
	Use:   "validate <manifest|dir>",
	Short: "Validate an extension manifest",
	Long: `Validate extension.json, extension.yaml or extension.yml. Given a directory,
the first manifest found in it is checked. When claude_code_version is set in
ccx.toml the engines range is checked against it.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVarP(&validateJSON, "json", "j", false, "Output as JSON")
	rootCmd.AddCommand(validateCmd)
}

type validateOutput struct {
	Path     string             `json:"path"`
	Valid    bool               `json:"valid"`
	Errors   []string           `json:"errors,omitempty"`
	Warnings []string           `json:"warnings,omitempty"`
	Manifest *manifest.Manifest `json:"manifest,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	path := args[0]
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		found, ok := manifest.Find(path)
		if !ok {
			return fmt.Errorf("no manifest in %s (expected one of %s)", path, strings.Join(manifest.FileNames, ", "))
		}
		path = found
	}

	res, err := manifest.ParseFile(path)
	if err != nil {
		return err
	}

	out := validateOutput{Path: path, Valid: res.Valid, Errors: res.Errors, Manifest: res.Manifest}
	if res.Valid {
		out.Warnings = engineWarnings(res.Manifest)
	}

	if validateJSON {
		if err := printJSON(out); err != nil {
			return err
		}
	} else {
		printValidation(out)
	}

	if !out.Valid {
		return fmt.Errorf("%s: %d validation error(s)", path, len(out.Errors))
	}
	return nil
}

// engineWarnings checks the engines range against the configured host version
func engineWarnings(m *manifest.Manifest) []string {
	rng := m.EngineRange()
	if rng == "" {
		return nil
	}

	host := ""
	if paths, err := config.ResolvePaths(); err == nil {
		if cfg, err := config.LoadConfig(paths.CcxDir); err == nil {
			host = cfg.ClaudeCodeVersion
		}
	}
	if host == "" || semver.IsCompatible(rng, host) {
		return nil
	}
	return []string{fmt.Sprintf("requires claude-code %s, configured version is %s", rng, host)}
}

func printValidation(out validateOutput) {
	if !out.Valid {
		fmt.Println(warnStyle.Render("✗ ") + out.Path)
		for _, e := range out.Errors {
			fmt.Println("  - " + e)
		}
		return
	}

	m := out.Manifest
	fmt.Printf("%s %s: %s %s@%s\n", okStyle.Render("✓"), out.Path, m.Type, m.Name, m.Version)
	for _, w := range out.Warnings {
		fmt.Println(warnStyle.Render("  warning: ") + w)
	}
}
