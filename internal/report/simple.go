package report

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nao1215/sitemapper/internal/model"
)

const ruleWidth = 70

// SimpleWriter outputs human-readable text reports for the terminal.
// Plain ASCII keeps the output safe to pipe into files.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections with no content are shown.
	showEmpty bool

	// verbose adds lastmod values and event messages.
	verbose bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the crawl summary in human-readable format.
func (w *SimpleWriter) Write(report *model.CrawlReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeURLs(&sb, report)
	w.writeEvents(&sb, report)
	w.writeRobotsSitemaps(&sb, report)
	w.writeFooter(&sb)

	return io.WriteString(w.output, sb.String())
}

func section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", ruleWidth))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *model.CrawlReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("                         SITEMAPPER REPORT\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Seed:           %s\n", report.Seed)
	fmt.Fprintf(sb, "Crawl Date:     %s\n", report.StartedAt.Format(timeLayout))
	fmt.Fprintf(sb, "Max Depth:      %d\n", report.MaxDepth)
	fmt.Fprintf(sb, "Duration:       %s\n", report.Duration().Round(time.Millisecond))
	fmt.Fprintf(sb, "Pages Fetched:  %d\n", report.PagesFetched)
	fmt.Fprintf(sb, "URLs Found:     %d\n", len(report.URLs))
	fmt.Fprintf(sb, "With lastmod:   %d\n", report.LastModifiedCount())
	if report.OutputFile != "" {
		fmt.Fprintf(sb, "Sitemap:        %s\n", report.OutputFile)
	}

	switch Status(report) {
	case StatusDenied:
		sb.WriteString("Status:         DENIED by robots.txt\n")
	case StatusTimedOut:
		sb.WriteString("Status:         TIMED OUT (partial results)\n")
	case StatusError:
		fmt.Fprintf(sb, "Status:         ERROR - %s\n", errorText(report))
	default:
		sb.WriteString("Status:         Complete\n")
	}

	sb.WriteString("\n")
}

func (w *SimpleWriter) writeURLs(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.URLs) == 0 && !w.showEmpty {
		return
	}

	section(sb, "DISCOVERED URLS")

	if len(report.URLs) == 0 {
		sb.WriteString("  No URLs discovered\n\n")
		return
	}

	lastmod := lastModified(report)
	for _, u := range report.URLs {
		fmt.Fprintf(sb, "  [+] %s\n", u)
		if w.verbose {
			if lm, ok := lastmod[u]; ok {
				fmt.Fprintf(sb, "      Last-Modified: %s\n", lm)
			}
		}
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeEvents(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.Events) == 0 && !w.showEmpty {
		return
	}

	section(sb, "PROBLEMS")

	if len(report.Events) == 0 {
		sb.WriteString("  No problems\n\n")
		return
	}

	for _, kind := range eventKinds {
		events := report.EventsOf(kind)
		if len(events) == 0 && !w.showEmpty {
			continue
		}

		fmt.Fprintf(sb, "[%s] %s (%d)\n", eventIndicator(kind), kind, len(events))
		for _, e := range events {
			fmt.Fprintf(sb, "  * %s\n", e.URL)
			if w.verbose && e.Message != "" {
				fmt.Fprintf(sb, "    Reason: %s\n", e.Message)
			}
		}
		sb.WriteString("\n")
	}
}

// eventIndicator returns a visual indicator for the event kind.
func eventIndicator(kind model.EventKind) string {
	switch kind {
	case model.EventFetchFailed:
		return "!!"
	case model.EventPolicyDenied:
		return "x"
	case model.EventParseFailed:
		return "!"
	default:
		return "?"
	}
}

func (w *SimpleWriter) writeRobotsSitemaps(sb *strings.Builder, report *model.CrawlReport) {
	if len(report.RobotsSitemaps) == 0 && !w.showEmpty {
		return
	}

	section(sb, "SITEMAPS ADVERTISED BY ROBOTS.TXT")

	if len(report.RobotsSitemaps) == 0 {
		sb.WriteString("  None\n\n")
		return
	}
	for _, s := range report.RobotsSitemaps {
		fmt.Fprintf(sb, "  [>] %s\n", s)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
	sb.WriteString("Report generated by sitemapper\n")
	sb.WriteString("https://github.com/nao1215/sitemapper\n")
	sb.WriteString(strings.Repeat("=", ruleWidth))
	sb.WriteString("\n")
}

// WriteHistory outputs one line per run, newest first.
func (w *SimpleWriter) WriteHistory(runs []model.RunSummary) (int, error) {
	var sb strings.Builder

	if len(runs) == 0 {
		sb.WriteString("No crawl history found.\n")
		return io.WriteString(w.output, sb.String())
	}

	fmt.Fprintf(&sb, "%-6s %-20s %-6s %-6s %-7s %-10s %s\n",
		"ID", "STARTED", "DEPTH", "URLS", "EVENTS", "STATUS", "SEED")
	for _, run := range runs {
		fmt.Fprintf(&sb, "%-6d %-20s %-6d %-6d %-7d %-10s %s\n",
			run.ID,
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.MaxDepth,
			run.URLCount,
			run.EventCount,
			runStatus(run),
			run.Seed,
		)
	}

	return io.WriteString(w.output, sb.String())
}

// WriteDiff outputs added URLs prefixed with "+" and removed URLs with "-".
func (w *SimpleWriter) WriteDiff(diff *model.RunDiff) (int, error) {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Changes for %s\n", diff.Seed)
	fmt.Fprintf(&sb, "  run %d (%s) -> run %d (%s)\n\n",
		diff.Older.ID, diff.Older.StartedAt.Local().Format("2006-01-02 15:04:05"),
		diff.Newer.ID, diff.Newer.StartedAt.Local().Format("2006-01-02 15:04:05"))

	if diff.Unchanged() {
		sb.WriteString("No changes.\n")
		return io.WriteString(w.output, sb.String())
	}

	for _, u := range diff.Added {
		fmt.Fprintf(&sb, "+ %s\n", u)
	}
	for _, u := range diff.Removed {
		fmt.Fprintf(&sb, "- %s\n", u)
	}
	fmt.Fprintf(&sb, "\n%d added, %d removed\n", len(diff.Added), len(diff.Removed))

	return io.WriteString(w.output, sb.String())
}
