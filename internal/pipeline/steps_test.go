package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/temoto/robotstxt"

	"github.com/nao1215/sitemapper/internal/fetch"
	"github.com/nao1215/sitemapper/internal/model"
	"github.com/nao1215/sitemapper/internal/robots"
	"github.com/nao1215/sitemapper/internal/sitemap"
)

const lastModified = "Wed, 21 Oct 2015 07:28:00 GMT"

func links(hrefs ...string) string {
	var sb strings.Builder
	sb.WriteString("<html><body>")
	for _, h := range hrefs {
		fmt.Fprintf(&sb, `<a href="%s">link</a>`, h)
	}
	sb.WriteString("</body></html>")
	return sb.String()
}

// memFetcher serves pages from memory and records SlowDown calls.
type memFetcher struct {
	pages map[string]string

	mu    sync.Mutex
	delay time.Duration
	heads []string
}

func (f *memFetcher) Fetch(_ context.Context, rawURL string) (*fetch.Response, error) {
	body, ok := f.pages[rawURL]
	if !ok {
		return nil, &fetch.Error{URL: rawURL, StatusCode: http.StatusNotFound, Err: fetch.ErrUnexpectedStatus}
	}
	return &fetch.Response{
		URL:        rawURL,
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/html"}},
		Body:       []byte(body),
	}, nil
}

func (f *memFetcher) Head(_ context.Context, rawURL string) (http.Header, error) {
	f.mu.Lock()
	f.heads = append(f.heads, rawURL)
	f.mu.Unlock()
	return http.Header{"Last-Modified": []string{lastModified}}, nil
}

func (f *memFetcher) SlowDown(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
}

// staticSource returns the same robots.txt for every origin.
type staticSource string

func (s staticSource) FetchPolicy(context.Context, string) (*robotstxt.RobotsData, error) {
	return robotstxt.FromString(string(s))
}

// fakeRecorder stores saved reports in memory.
type fakeRecorder struct {
	err   error
	saved []*model.CrawlReport
}

func (r *fakeRecorder) SaveCrawlReport(_ context.Context, report *model.CrawlReport) (int64, error) {
	if r.err != nil {
		return 0, r.err
	}
	r.saved = append(r.saved, report)
	return int64(len(r.saved)), nil
}

func TestCrawlStep(t *testing.T) {
	t.Parallel()

	pages := map[string]string{
		"https://example.com/":  links("/a", "/private/x", "/b#top"),
		"https://example.com/a": links("/b", "https://other.com/"),
		"https://example.com/b": links(),
	}

	t.Run("applies robots policy and crawl delay", func(t *testing.T) {
		t.Parallel()

		fetcher := &memFetcher{pages: pages}
		gate := robots.NewGate(
			staticSource("User-agent: *\nDisallow: /private\nCrawl-delay: 3\nSitemap: https://example.com/sitemap_index.xml\n"),
			robots.WithLogger(quietLogger()),
		)
		step := NewCrawlStep(fetcher, WithCrawlGate(gate), WithCrawlConcurrency(1), WithCrawlLogger(quietLogger()))

		report := model.NewCrawlReport("https://example.com/", 2)
		if err := step.Do(t.Context(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		want := []string{"https://example.com/a", "https://example.com/private/x", "https://example.com/b"}
		if !slices.Equal(report.URLs, want) {
			t.Errorf("got %v, want %v", report.URLs, want)
		}
		if n := len(report.EventsOf(model.EventPolicyDenied)); n != 1 {
			t.Errorf("expected 1 policy_denied event, got %d", n)
		}
		if fetcher.delay != 3*time.Second {
			t.Errorf("expected crawl delay 3s, got %v", fetcher.delay)
		}
		if !slices.Equal(report.RobotsSitemaps, []string{"https://example.com/sitemap_index.xml"}) {
			t.Errorf("unexpected robots sitemaps: %v", report.RobotsSitemaps)
		}
	})

	t.Run("denied seed", func(t *testing.T) {
		t.Parallel()

		gate := robots.NewGate(staticSource("User-agent: *\nDisallow: /\n"), robots.WithLogger(quietLogger()))
		step := NewCrawlStep(&memFetcher{pages: pages}, WithCrawlGate(gate), WithCrawlLogger(quietLogger()))

		report := model.NewCrawlReport("https://example.com/", 2)
		if err := step.Do(t.Context(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !report.Denied {
			t.Error("expected Denied to be set")
		}
		if len(report.URLs) != 0 {
			t.Errorf("expected no URLs, got %v", report.URLs)
		}
	})

	t.Run("invalid seed fails", func(t *testing.T) {
		t.Parallel()

		step := NewCrawlStep(&memFetcher{pages: pages}, WithCrawlLogger(quietLogger()))
		report := model.NewCrawlReport("not a url", 2)
		if err := step.Do(t.Context(), report); err == nil {
			t.Error("expected error for invalid seed")
		}
	})

	t.Run("cancelled crawl keeps partial result", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		step := NewCrawlStep(&memFetcher{pages: pages}, WithCrawlLogger(quietLogger()))
		report := model.NewCrawlReport("https://example.com/", 2)
		if err := step.Do(ctx, report); err != nil {
			t.Fatalf("expected nil error, got %v", err)
		}
		if !report.TimedOut {
			t.Error("expected TimedOut to be set")
		}
	})
}

func TestBuildStep(t *testing.T) {
	t.Parallel()

	fetcher := &memFetcher{}
	step := NewBuildStep(sitemap.NewBuilder(fetcher, sitemap.WithLogger(quietLogger())))

	report := model.NewCrawlReport("https://example.com/", 2)
	report.URLs = []string{"https://example.com/a", "https://example.com/private", "https://example.com/b"}
	report.AddEvent(model.EventPolicyDenied, "https://example.com/private", "disallowed by robots.txt")

	if err := step.Do(t.Context(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []model.SitemapEntry{
		{Location: "https://example.com/a", LastModified: lastModified},
		{Location: "https://example.com/private"},
		{Location: "https://example.com/b", LastModified: lastModified},
	}
	if !slices.Equal(report.Entries, want) {
		t.Errorf("got %v, want %v", report.Entries, want)
	}
	if slices.Contains(fetcher.heads, "https://example.com/private") {
		t.Error("robots.txt denied URL was requested")
	}
}

func TestWriteStep(t *testing.T) {
	t.Parallel()

	t.Run("writes sitemap and creates directories", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "out", "sitemap.xml")
		report := model.NewCrawlReport("https://example.com/", 2)
		report.Entries = []model.SitemapEntry{{Location: "https://example.com/a", LastModified: lastModified}}

		if err := NewWriteStep(path, quietLogger()).Do(t.Context(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if report.OutputFile != path {
			t.Errorf("expected OutputFile %q, got %q", path, report.OutputFile)
		}

		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("failed to read sitemap: %v", err)
		}
		for _, want := range []string{
			"<loc>https://example.com/a</loc>",
			"<lastmod>" + lastModified + "</lastmod>",
		} {
			if !strings.Contains(string(data), want) {
				t.Errorf("sitemap should contain %q, got:\n%s", want, data)
			}
		}
	})

	t.Run("no path", func(t *testing.T) {
		t.Parallel()

		err := NewWriteStep("", quietLogger()).Do(t.Context(), model.NewCrawlReport("https://example.com/", 2))
		if !errors.Is(err, ErrNoOutputPath) {
			t.Errorf("expected ErrNoOutputPath, got %v", err)
		}
	})

	t.Run("unwritable path", func(t *testing.T) {
		t.Parallel()

		blocker := filepath.Join(t.TempDir(), "file")
		if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}

		report := model.NewCrawlReport("https://example.com/", 2)
		err := NewWriteStep(filepath.Join(blocker, "sitemap.xml"), quietLogger()).Do(t.Context(), report)
		if !errors.Is(err, sitemap.ErrSerialization) {
			t.Errorf("expected ErrSerialization, got %v", err)
		}
		if report.OutputFile != "" {
			t.Errorf("OutputFile should stay empty, got %q", report.OutputFile)
		}
	})
}

func TestHistoryStep(t *testing.T) {
	t.Parallel()

	t.Run("saves report", func(t *testing.T) {
		t.Parallel()

		rec := &fakeRecorder{}
		report := model.NewCrawlReport("https://example.com/", 2)
		if err := NewHistoryStep(rec, quietLogger()).Do(t.Context(), report); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(rec.saved) != 1 || rec.saved[0] != report {
			t.Errorf("expected report to be saved once, got %d", len(rec.saved))
		}
		if report.FinishedAt.IsZero() {
			t.Error("expected FinishedAt to be set before saving")
		}
	})

	t.Run("save failure is not fatal", func(t *testing.T) {
		t.Parallel()

		rec := &fakeRecorder{err: errors.New("disk full")}
		report := model.NewCrawlReport("https://example.com/", 2)
		if err := NewHistoryStep(rec, quietLogger()).Do(t.Context(), report); err != nil {
			t.Errorf("expected nil error, got %v", err)
		}
	})
}

func TestDefaultPipeline(t *testing.T) {
	t.Parallel()

	var (
		mu    sync.Mutex
		heads []string
	)
	mux := http.NewServeMux()
	var server *httptest.Server
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, "User-agent: *\nDisallow: /private\nSitemap: %s/sitemap_index.xml\n", server.URL)
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			mu.Lock()
			heads = append(heads, r.URL.Path)
			mu.Unlock()
		}
		w.Header().Set("Content-Type", "text/html")
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(links("/about", "/private/data", "/team")))
		case "/about":
			w.Header().Set("Last-Modified", lastModified)
			_, _ = w.Write([]byte(links("/team", "/")))
		case "/team":
			_, _ = w.Write([]byte(links()))
		default:
			http.NotFound(w, r)
		}
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	rec := &fakeRecorder{}
	output := filepath.Join(t.TempDir(), "sitemap.xml")
	p := DefaultPipeline(
		[]Option{WithLogger(quietLogger())},
		WithPipelineOutput(output),
		WithPipelineHTTPClient(server.Client()),
		WithPipelineCrawlDelay(0),
		WithPipelineTimeout(5*time.Second),
		WithPipelineRecorder(rec),
	)

	if got := p.StepNames(); !slices.Equal(got, []string{"crawl", "build", "write", "history"}) {
		t.Errorf("unexpected steps: %v", got)
	}

	report := model.NewCrawlReport(server.URL+"/", 2)
	if err := p.Execute(t.Context(), report); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{server.URL + "/about", server.URL + "/private/data", server.URL + "/team"}
	if !slices.Equal(report.URLs, want) {
		t.Errorf("got %v, want %v", report.URLs, want)
	}
	if report.LastModifiedCount() != 1 {
		t.Errorf("expected 1 entry with lastmod, got %d", report.LastModifiedCount())
	}
	if !slices.Equal(report.RobotsSitemaps, []string{server.URL + "/sitemap_index.xml"}) {
		t.Errorf("unexpected robots sitemaps: %v", report.RobotsSitemaps)
	}
	if len(rec.saved) != 1 {
		t.Errorf("expected report to be recorded, got %d saves", len(rec.saved))
	}

	mu.Lock()
	if slices.Contains(heads, "/private/data") {
		t.Error("robots.txt denied URL was requested")
	}
	mu.Unlock()

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("failed to read sitemap: %v", err)
	}
	for _, want := range []string{
		"<loc>" + server.URL + "/about</loc>",
		"<lastmod>" + lastModified + "</lastmod>",
		"<loc>" + server.URL + "/private/data</loc>",
	} {
		if !strings.Contains(string(data), want) {
			t.Errorf("sitemap should contain %q", want)
		}
	}
}

func TestDefaultPipelineWithoutRecorder(t *testing.T) {
	t.Parallel()

	p := DefaultPipeline(nil)
	if got := p.StepNames(); !slices.Equal(got, []string{"crawl", "build", "write"}) {
		t.Errorf("unexpected steps: %v", got)
	}
}

func TestDefaultPipelineKeepsSuppliedClientTimeout(t *testing.T) {
	t.Parallel()

	shared := &http.Client{Timeout: 7 * time.Second}
	DefaultPipeline(nil,
		WithPipelineHTTPClient(shared),
		WithPipelineTimeout(time.Second),
	)
	if shared.Timeout != 7*time.Second {
		t.Errorf("supplied client timeout changed to %v", shared.Timeout)
	}
}
