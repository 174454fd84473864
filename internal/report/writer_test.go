package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/sitemapper/internal/model"
)

// createTestReport creates a report with sample data for testing.
func createTestReport() *model.CrawlReport {
	report := model.NewCrawlReport("https://example.com", 2)
	report.StartedAt = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	report.FinishedAt = report.StartedAt.Add(2 * time.Second)
	report.URLs = []string{
		"https://example.com/about",
		"https://example.com/team",
		"https://example.com/private/data",
	}
	report.Entries = []model.SitemapEntry{
		{Location: "https://example.com/about", LastModified: "Wed, 21 Oct 2015 07:28:00 GMT"},
		{Location: "https://example.com/team"},
		{Location: "https://example.com/private/data"},
	}
	report.PagesFetched = 2
	report.AddEvent(model.EventPolicyDenied, "https://example.com/private/data", "")
	report.AddEvent(model.EventFetchFailed, "https://example.com/team", "unexpected status 404")
	report.RobotsSitemaps = []string{"https://example.com/sitemap_index.xml"}
	report.OutputFile = "sitemap.xml"
	return report
}

func createTestRuns() []model.RunSummary {
	started := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []model.RunSummary{
		{ID: 2, Seed: "https://example.com", MaxDepth: 2, StartedAt: started.Add(time.Hour), URLCount: 4},
		{ID: 1, Seed: "https://example.com", MaxDepth: 2, StartedAt: started, URLCount: 3, EventCount: 1, TimedOut: true},
	}
}

func createTestDiff() *model.RunDiff {
	runs := createTestRuns()
	return &model.RunDiff{
		Seed:    "https://example.com",
		Older:   runs[1],
		Newer:   runs[0],
		Added:   []string{"https://example.com/new"},
		Removed: []string{"https://example.com/old"},
	}
}

func TestStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(r *model.CrawlReport)
		want   string
	}{
		{"complete", func(*model.CrawlReport) {}, StatusComplete},
		{"denied", func(r *model.CrawlReport) { r.Denied = true }, StatusDenied},
		{"timed out", func(r *model.CrawlReport) {
			r.TimedOut = true
			r.Error = context.DeadlineExceeded
		}, StatusTimedOut},
		{"error", func(r *model.CrawlReport) { r.Error = errors.New("disk full") }, StatusError},
		{"stored error message", func(r *model.CrawlReport) { r.ErrorMessage = "disk full" }, StatusError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := createTestReport()
			tt.modify(r)
			if got := Status(r); got != tt.want {
				t.Errorf("Status() = %q, want %q", got, tt.want)
			}
		})
	}
}

// TestSimpleWriter tests the human-readable report writer.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes report header", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"SITEMAPPER REPORT",
			"Seed:           https://example.com",
			"Pages Fetched:  2",
			"URLs Found:     3",
			"With lastmod:   1",
			"Sitemap:        sitemap.xml",
			"Status:         Complete",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected output to contain %q\n%s", want, output)
			}
		}
	})

	t.Run("lists urls in discovery order", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		about := strings.Index(output, "[+] https://example.com/about")
		team := strings.Index(output, "[+] https://example.com/team")
		if about < 0 || team < 0 || about > team {
			t.Errorf("expected about before team\n%s", output)
		}
	})

	t.Run("groups problems by kind", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "[!!] fetch_failed (1)") {
			t.Errorf("expected fetch_failed group\n%s", output)
		}
		if !strings.Contains(output, "[x] policy_denied (1)") {
			t.Errorf("expected policy_denied group\n%s", output)
		}
		if strings.Contains(output, "parse_failed") {
			t.Errorf("expected empty group to be hidden\n%s", output)
		}
		if strings.Contains(output, "Reason:") {
			t.Errorf("expected reasons only in verbose mode\n%s", output)
		}
	})

	t.Run("verbose mode includes lastmod and reasons", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf, WithVerbose(true)).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "Last-Modified: Wed, 21 Oct 2015 07:28:00 GMT") {
			t.Errorf("expected lastmod in verbose output\n%s", output)
		}
		if !strings.Contains(output, "Reason: unexpected status 404") {
			t.Errorf("expected reason in verbose output\n%s", output)
		}
	})

	t.Run("lists robots sitemaps", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "[>] https://example.com/sitemap_index.xml") {
			t.Errorf("expected robots sitemap\n%s", buf.String())
		}
	})

	t.Run("empty report hides sections unless showEmpty", func(t *testing.T) {
		t.Parallel()

		report := model.NewCrawlReport("https://example.com", 2)

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Contains(buf.String(), "DISCOVERED URLS") {
			t.Errorf("expected no url section\n%s", buf.String())
		}

		buf.Reset()
		if _, err := NewSimpleWriter(&buf, WithShowEmpty(true)).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"No URLs discovered", "No problems", "None"} {
			if !strings.Contains(buf.String(), want) {
				t.Errorf("expected %q with showEmpty\n%s", want, buf.String())
			}
		}
	})

	t.Run("status lines", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			modify func(r *model.CrawlReport)
			want   string
		}{
			{func(r *model.CrawlReport) { r.Denied = true }, "DENIED by robots.txt"},
			{func(r *model.CrawlReport) { r.TimedOut = true }, "TIMED OUT (partial results)"},
			{func(r *model.CrawlReport) { r.Error = errors.New("disk full") }, "ERROR - disk full"},
		}
		for _, tt := range tests {
			report := createTestReport()
			tt.modify(report)

			var buf bytes.Buffer
			if _, err := NewSimpleWriter(&buf).Write(report); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q\n%s", tt.want, buf.String())
			}
		}
	})

	t.Run("history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteHistory(createTestRuns()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		if len(lines) != 3 {
			t.Fatalf("expected header and 2 rows, got %d lines\n%s", len(lines), buf.String())
		}
		if !strings.HasPrefix(lines[0], "ID") || !strings.HasPrefix(lines[1], "2 ") {
			t.Errorf("unexpected history layout\n%s", buf.String())
		}
		if !strings.Contains(lines[2], StatusTimedOut) {
			t.Errorf("expected timed out status on run 1\n%s", buf.String())
		}
	})

	t.Run("empty history", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteHistory(nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if buf.String() != "No crawl history found.\n" {
			t.Errorf("unexpected output %q", buf.String())
		}
	})

	t.Run("diff", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteDiff(createTestDiff()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"Changes for https://example.com",
			"+ https://example.com/new",
			"- https://example.com/old",
			"1 added, 1 removed",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected %q\n%s", want, output)
			}
		}
	})

	t.Run("unchanged diff", func(t *testing.T) {
		t.Parallel()

		diff := createTestDiff()
		diff.Added, diff.Removed = nil, nil

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).WriteDiff(diff); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "No changes.") {
			t.Errorf("expected no changes\n%s", buf.String())
		}
	})
}

// TestJSONWriter tests the JSON report writer.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes valid JSON", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded model.CrawlReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if decoded.Seed != "https://example.com" || len(decoded.URLs) != 3 {
			t.Errorf("unexpected decoded report %+v", decoded)
		}
		if len(decoded.Events) != 2 || decoded.Events[0].Kind != model.EventPolicyDenied {
			t.Errorf("unexpected decoded events %+v", decoded.Events)
		}
	})

	t.Run("compact by default", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if strings.Count(buf.String(), "\n") != 1 {
			t.Errorf("expected a single line of compact JSON, got %q", buf.String())
		}
	})

	t.Run("pretty print", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithPrettyPrint()).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n  \"seed\"") {
			t.Errorf("expected indented output, got %s", buf.String())
		}
	})

	t.Run("custom indent", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithIndent(">", "\t")).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "\n>\t\"seed\"") {
			t.Errorf("expected prefix and tab indent, got %s", buf.String())
		}
	})

	t.Run("error is serialized as text", func(t *testing.T) {
		t.Parallel()

		report := createTestReport()
		report.Error = errors.New("disk full")

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).Write(report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), `"error":"disk full"`) {
			t.Errorf("expected error message, got %s", buf.String())
		}
	})

	t.Run("version envelope", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf, WithVersion("v1.2.3")).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded JSONReport
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if decoded.Version != "v1.2.3" || decoded.Status != StatusComplete {
			t.Errorf("unexpected envelope %+v", decoded)
		}
		if decoded.Report == nil || decoded.Report.Seed != "https://example.com" {
			t.Errorf("expected wrapped report, got %+v", decoded.Report)
		}
	})

	t.Run("empty history is an empty array", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteHistory(nil); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if buf.String() != "[]\n" {
			t.Errorf("expected [], got %q", buf.String())
		}
	})

	t.Run("diff", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewJSONWriter(&buf).WriteDiff(createTestDiff()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		var decoded model.RunDiff
		if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
			t.Fatalf("invalid JSON output: %v", err)
		}
		if decoded.Newer.ID != 2 || len(decoded.Added) != 1 || len(decoded.Removed) != 1 {
			t.Errorf("unexpected decoded diff %+v", decoded)
		}
	})
}

// TestMarkdownWriter tests the Markdown report writer.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes summary table", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		n, err := NewMarkdownWriter(&buf).Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != buf.Len() {
			t.Errorf("reported %d bytes, wrote %d", n, buf.Len())
		}

		output := buf.String()
		for _, want := range []string{
			"# Sitemapper Report",
			"`https://example.com`",
			"✅ Complete",
			"## Discovered URLs",
			"Wed, 21 Oct 2015 07:28:00 GMT",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected %q\n%s", want, output)
			}
		}
	})

	t.Run("outcome pie chart", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		if !strings.Contains(output, "```mermaid") {
			t.Errorf("expected mermaid block\n%s", output)
		}
		for _, want := range []string{`"Fetched" : 2`, `"Fetch failed" : 1`, `"Denied by robots.txt" : 1`} {
			if !strings.Contains(output, want) {
				t.Errorf("expected slice %s\n%s", want, output)
			}
		}
		if strings.Contains(output, `"Parse failed"`) {
			t.Errorf("expected zero slices to be omitted\n%s", output)
		}
	})

	t.Run("alerts", func(t *testing.T) {
		t.Parallel()

		tests := []struct {
			name   string
			modify func(r *model.CrawlReport)
			want   string
		}{
			{"fetch failures", func(*model.CrawlReport) {}, "[!IMPORTANT]"},
			{"denied seed", func(r *model.CrawlReport) { r.Denied = true }, "[!CAUTION]"},
			{"timed out", func(r *model.CrawlReport) { r.TimedOut = true }, "[!WARNING]"},
			{"clean", func(r *model.CrawlReport) { r.Events = nil }, "[!TIP]"},
			{"nothing found", func(r *model.CrawlReport) {
				r.Events = nil
				r.URLs = nil
			}, "[!NOTE]"},
		}
		for _, tt := range tests {
			report := createTestReport()
			tt.modify(report)

			var buf bytes.Buffer
			if _, err := NewMarkdownWriter(&buf).Write(report); err != nil {
				t.Fatalf("%s: unexpected error: %v", tt.name, err)
			}
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("%s: expected %s\n%s", tt.name, tt.want, buf.String())
			}
		}
	})

	t.Run("problems and robots sitemaps", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{
			"## Problems",
			"### 🔴 Fetch failed",
			"unexpected status 404",
			"- [https://example.com/sitemap_index.xml](https://example.com/sitemap_index.xml)",
		} {
			if !strings.Contains(output, want) {
				t.Errorf("expected %q\n%s", want, output)
			}
		}
	})

	t.Run("history table", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteHistory(createTestRuns()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "# Crawl History") || !strings.Contains(buf.String(), "| ID") {
			t.Errorf("unexpected history\n%s", buf.String())
		}
	})

	t.Run("diff lists", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).WriteDiff(createTestDiff()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		output := buf.String()
		for _, want := range []string{"## Added (1)", "- https://example.com/new", "## Removed (1)", "- https://example.com/old"} {
			if !strings.Contains(output, want) {
				t.Errorf("expected %q\n%s", want, output)
			}
		}
	})
}

// failingWriter fails every write.
type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("write failed") }

func TestMultiWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes to all writers", func(t *testing.T) {
		t.Parallel()

		var text, js bytes.Buffer
		mw := NewMultiWriter(NewSimpleWriter(&text), NewJSONWriter(&js))

		n, err := mw.Write(createTestReport())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != text.Len()+js.Len() {
			t.Errorf("expected total %d, got %d", text.Len()+js.Len(), n)
		}
		if text.Len() == 0 || js.Len() == 0 {
			t.Error("expected both writers to receive output")
		}

		if _, err := mw.WriteHistory(createTestRuns()); err != nil {
			t.Fatalf("WriteHistory: %v", err)
		}
		if _, err := mw.WriteDiff(createTestDiff()); err != nil {
			t.Fatalf("WriteDiff: %v", err)
		}
	})

	t.Run("stops on first error", func(t *testing.T) {
		t.Parallel()

		var after bytes.Buffer
		mw := NewMultiWriter(NewSimpleWriter(failingWriter{}), NewSimpleWriter(&after))

		if _, err := mw.Write(createTestReport()); err == nil {
			t.Fatal("expected error")
		}
		if after.Len() != 0 {
			t.Error("expected later writers to be skipped")
		}
	})
}

func TestTruncateString(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"short", 10, "short"},
		{"exactly10!", 10, "exactly10!"},
		{"this is too long", 10, "this is..."},
		{"abc", 2, "ab"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%d", tt.input, tt.maxLen), func(t *testing.T) {
			t.Parallel()

			if got := truncateString(tt.input, tt.maxLen); got != tt.want {
				t.Errorf("truncateString(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
