package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nao1215/sitemapper/internal/config"
	"github.com/nao1215/sitemapper/internal/database"
	"github.com/nao1215/sitemapper/internal/weburl"
)

// Prompt texts of the interactive session.
const (
	promptMessage     = "Enter a valid URL (or 'q' to quit): "
	invalidURLMessage = "Invalid URL. Please enter a valid format (e.g., https://some_url.com)"
)

// seedFunc crawls one seed and writes its sitemap.
type seedFunc func(ctx context.Context, seed string) error

func runRootCmd(cmd *cobra.Command, _ []string) error {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.CrawlDepth, err = flags.GetInt("depth"); err != nil {
		return err
	}
	if cfg.OutputFile, err = flags.GetString("output"); err != nil {
		return err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return err
	}
	noHistory, err := flags.GetBool("no-history")
	if err != nil {
		return err
	}
	if cfg.DBDir, err = dataDir(cmd); err != nil {
		return err
	}
	cfg.Verbose = getVerboseFlag(cmd)
	if err := cfg.LoadSiteConfigs(); err != nil {
		return err
	}
	if err := cfg.ValidateSettings(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logger := setupLogger(cmd.ErrOrStderr(), cfg.Verbose)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	r := &crawlRunner{
		cfg:    cfg,
		logger: logger,
		status: cmd.OutOrStdout(),
	}

	if !noHistory {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			logger.Warn("crawl history disabled", "error", err)
		} else {
			defer db.Close()
			r.db = db
		}
	}

	crawl := func(ctx context.Context, seed string) error {
		cfg.Targets = []string{seed}
		if err := cfg.Validate(); err != nil {
			color.New(color.FgRed).Fprintf(cmd.OutOrStdout(), "Cannot crawl %s: %v\n", seed, err)
			return err
		}
		return r.run(ctx, cfg.Targets)
	}
	return interruptedError(runInteractive(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), crawl))
}

// runInteractive prompts for URLs until the user enters q or Q, input
// ends, or ctx is cancelled. Invalid URLs are rejected with a format hint
// and the prompt repeats. A failed crawl is reported and the prompt
// repeats; crawl prints its own outcome.
func runInteractive(ctx context.Context, in io.Reader, out io.Writer, crawl seedFunc) error {
	done := make(chan struct{})
	defer close(done)
	lines := readLines(in, done)

	for {
		fmt.Fprint(out, promptMessage)

		var line string
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return ctx.Err()
		case l, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				return nil
			}
			line = strings.TrimSpace(l)
		}

		switch {
		case line == "q" || line == "Q":
			return nil
		case line == "":
			continue
		case !weburl.Validate(line):
			color.New(color.FgRed).Fprintln(out, invalidURLMessage)
			continue
		}

		// crawl prints its own outcome, failures included.
		if err := crawl(ctx, line); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// readLines delivers the lines of in until EOF or done is closed.
func readLines(in io.Reader, done <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
	}()
	return lines
}
