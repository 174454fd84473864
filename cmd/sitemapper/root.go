package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nao1215/sitemapper/internal/config"
)

// NewRootCmd creates the root command. Run without a subcommand it starts
// the interactive prompt.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sitemapper",
		Short: "Generate sitemaps by crawling a website",
		Long: `sitemapper crawls a website from a seed URL, follows the links that stay
on the same origin down to a bounded depth, and writes the pages it found
as a sitemaps.org XML document. robots.txt is obeyed.

Run without a subcommand to enter URLs at an interactive prompt.
Use 'sitemapper crawl' for scripts and CI.`,
		Version:       getVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runRootCmd,
	}

	// Global flags that apply to all commands
	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose logging")

	// Interactive session flags
	cmd.Flags().IntP("depth", "d", config.DefaultCrawlDepth,
		"Maximum number of link expansions below each entered URL")
	cmd.Flags().StringP("output", "o", config.DefaultOutputFile,
		"Sitemap file path")
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .sitemapper in current or home directory)")
	cmd.Flags().Bool("no-history", false,
		"Do not record crawls in the history database")
	cmd.Flags().String("data-dir", "",
		"Directory of the history database (default: XDG data directory)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewHistoryCmd())
	cmd.AddCommand(NewInitCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
