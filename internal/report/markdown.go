package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/sitemapper/internal/model"
)

// MarkdownWriter outputs reports in Markdown format for sharing, for
// example as a CI job summary.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the crawl summary in Markdown format.
func (w *MarkdownWriter) Write(report *model.CrawlReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeOutcome(md, report)
	w.writeURLs(md, report)
	w.writeEvents(md, report)
	w.writeRobotsSitemaps(md, report)
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *model.CrawlReport) {
	md.H1("Sitemapper Report")
	md.PlainText("")

	rows := [][]string{
		{"Seed", markdown.Code(report.Seed)},
		{"Crawl Date", report.StartedAt.Format(timeLayout)},
		{"Max Depth", strconv.Itoa(report.MaxDepth)},
		{"Duration", report.Duration().Round(time.Millisecond).String()},
		{"Pages Fetched", strconv.Itoa(report.PagesFetched)},
		{"URLs Found", strconv.Itoa(len(report.URLs))},
		{"With lastmod", strconv.Itoa(report.LastModifiedCount())},
	}
	if report.OutputFile != "" {
		rows = append(rows, []string{"Sitemap", markdown.Code(report.OutputFile)})
	}
	rows = append(rows, []string{"Status", statusText(report)})

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows:   rows,
	})
	md.PlainText("")
}

func statusText(report *model.CrawlReport) string {
	switch Status(report) {
	case StatusDenied:
		return "⛔ Denied by robots.txt"
	case StatusTimedOut:
		return "⚠️ Timed Out (partial results)"
	case StatusError:
		return "❌ Error - " + errorText(report)
	default:
		return "✅ Complete"
	}
}

// writeOutcome writes the per-page outcome chart and an alert.
func (w *MarkdownWriter) writeOutcome(md *markdown.Markdown, report *model.CrawlReport) {
	fetchFailed := len(report.EventsOf(model.EventFetchFailed))
	denied := len(report.EventsOf(model.EventPolicyDenied))
	parseFailed := len(report.EventsOf(model.EventParseFailed))

	if report.PagesFetched+fetchFailed+denied+parseFailed > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("Page Outcomes"),
			piechart.WithShowData(true),
		)
		if report.PagesFetched > 0 {
			chart.LabelAndIntValue("Fetched", uint64(report.PagesFetched))
		}
		if fetchFailed > 0 {
			chart.LabelAndIntValue("Fetch failed", uint64(fetchFailed))
		}
		if denied > 0 {
			chart.LabelAndIntValue("Denied by robots.txt", uint64(denied))
		}
		if parseFailed > 0 {
			chart.LabelAndIntValue("Parse failed", uint64(parseFailed))
		}

		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case report.Denied:
		md.Caution("robots.txt does not allow crawling the seed URL. The sitemap is empty.")
	case report.TimedOut:
		md.Warningf("The crawl was interrupted. %d URL(s) were discovered before it stopped.", len(report.URLs))
	case fetchFailed > 0:
		md.Importantf("%d page(s) could not be fetched. Their links were not followed.", fetchFailed)
	case len(report.URLs) == 0:
		md.Note("No same-origin links were found.")
	default:
		md.Tip("Crawl completed without fetch errors.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeURLs(md *markdown.Markdown, report *model.CrawlReport) {
	md.H2("Discovered URLs")
	md.PlainText("")

	if len(report.URLs) == 0 {
		md.PlainText("No URLs discovered.")
		md.PlainText("")
		return
	}

	lastmod := lastModified(report)
	rows := make([][]string, len(report.URLs))
	for i, u := range report.URLs {
		lm := lastmod[u]
		if lm == "" {
			lm = "-"
		}
		rows[i] = []string{strconv.Itoa(i + 1), u, lm}
	}

	md.Table(markdown.TableSet{
		Header: []string{"#", "URL", "Last-Modified"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeEvents(md *markdown.Markdown, report *model.CrawlReport) {
	if len(report.Events) == 0 {
		return
	}

	md.H2("Problems")
	md.PlainText("")

	headers := map[model.EventKind]string{
		model.EventFetchFailed:  "🔴 Fetch failed",
		model.EventPolicyDenied: "⛔ Denied by robots.txt",
		model.EventParseFailed:  "🟡 Parse failed",
	}

	for _, kind := range eventKinds {
		events := report.EventsOf(kind)
		if len(events) == 0 {
			continue
		}

		md.H3(headers[kind])
		md.PlainText("")

		rows := make([][]string, len(events))
		for i, e := range events {
			msg := e.Message
			if msg == "" {
				msg = "-"
			}
			rows[i] = []string{e.URL, truncateString(msg, 80)}
		}
		md.Table(markdown.TableSet{
			Header: []string{"URL", "Reason"},
			Rows:   rows,
		})
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeRobotsSitemaps(md *markdown.Markdown, report *model.CrawlReport) {
	if len(report.RobotsSitemaps) == 0 {
		return
	}

	md.H2("Sitemaps Advertised by robots.txt")
	md.PlainText("")
	links := make([]string, len(report.RobotsSitemaps))
	for i, s := range report.RobotsSitemaps {
		links[i] = markdown.Link(s, s)
	}
	md.BulletList(links...)
	md.PlainText("")
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [sitemapper](https://github.com/nao1215/sitemapper)*")
}

// WriteHistory outputs the runs as a Markdown table.
func (w *MarkdownWriter) WriteHistory(runs []model.RunSummary) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Crawl History")
	md.PlainText("")

	if len(runs) == 0 {
		md.PlainText("No crawl history found.")
		return len(md.String()), md.Build()
	}

	rows := make([][]string, len(runs))
	for i, run := range runs {
		rows[i] = []string{
			strconv.FormatInt(run.ID, 10),
			run.StartedAt.Local().Format("2006-01-02 15:04:05"),
			run.Seed,
			strconv.Itoa(run.MaxDepth),
			strconv.Itoa(run.URLCount),
			strconv.Itoa(run.EventCount),
			runStatus(run),
		}
	}
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Started", "Seed", "Depth", "URLs", "Events", "Status"},
		Rows:   rows,
	})

	return len(md.String()), md.Build()
}

// WriteDiff outputs added and removed URLs as two lists.
func (w *MarkdownWriter) WriteDiff(diff *model.RunDiff) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1f("Changes for %s", diff.Seed)
	md.PlainText("")
	md.PlainTextf("Run %d (%s) compared with run %d (%s).",
		diff.Older.ID, diff.Older.StartedAt.Local().Format("2006-01-02 15:04:05"),
		diff.Newer.ID, diff.Newer.StartedAt.Local().Format("2006-01-02 15:04:05"))
	md.PlainText("")

	if diff.Unchanged() {
		md.Note("No URLs were added or removed.")
		return len(md.String()), md.Build()
	}

	md.H2f("Added (%d)", len(diff.Added))
	md.PlainText("")
	if len(diff.Added) > 0 {
		md.BulletList(diff.Added...)
		md.PlainText("")
	}

	md.H2f("Removed (%d)", len(diff.Removed))
	md.PlainText("")
	if len(diff.Removed) > 0 {
		md.BulletList(diff.Removed...)
		md.PlainText("")
	}

	return len(md.String()), md.Build()
}

// truncateString truncates a string to maxLen bytes with an ellipsis.
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
