package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/samhoang/ccx/internal/config"
	"github.com/samhoang/ccx/internal/github"
)

var Version = "dev"

var (
	logLevel    string
	showMetrics bool
)

var rootCmd = &cobra.Command{
	Use:   "ccx",
	Short: "Claude Code extension manager",
	Long: `ccx discovers, installs and tracks extensions (plugins, skills, commands
and agents) for Claude Code. Extensions are GitHub repositories tagged with
the claude-code-extension topic and shipped as release archives.`,
	Version:       Version,
	SilenceErrors: true,
	SilenceUsage:  true,
	Run:           runRoot,
}

func runRoot(cmd *cobra.Command, args []string) {
	paths, err := config.ResolvePaths()
	if err != nil {
		cmd.Help()
		return
	}

	if !paths.IsInitialized() {
		fmt.Println("ccx - Claude Code Extension Manager")
		fmt.Println()
		fmt.Println("Not initialized. Get started with:")
		fmt.Println()
		fmt.Println("  ccx init       Create ~/.ccx and an empty registry")
		fmt.Println("  ccx search     Browse extensions on GitHub")
		fmt.Println("  ccx --help     Show all commands")
		return
	}

	cmd.Help()
}

// Execute runs the root command and exits 1 on error
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if current != nil {
		current.close()
	}
	if err != nil {
		printError(err)
		os.Exit(1)
	}
}

func printError(err error) {
	red := color.New(color.FgRed, color.Bold)
	red.Fprint(os.Stderr, "Error: ")
	fmt.Fprintln(os.Stderr, err)

	var rl *github.RateLimitError
	if errors.As(err, &rl) {
		color.New(color.FgYellow).Fprintln(os.Stderr, "Set GITHUB_TOKEN to raise the GitHub rate limit.")
	}
}

func init() {
	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&showMetrics, "metrics", false, "Print collected metrics after the command")
}
