package model

import "time"

// CrawlReport is the result of crawling one seed URL and building its
// sitemap. The pipeline fills it step by step; writers and the history
// database read it.
type CrawlReport struct {
	// Seed is the URL the crawl started from.
	Seed string `json:"seed"`

	// MaxDepth is the depth limit the crawl ran with.
	MaxDepth int `json:"max_depth"`

	// StartedAt is when the crawl began.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when the last pipeline step completed.
	FinishedAt time.Time `json:"finished_at"`

	// URLs lists the discovered pages in discovery order, without
	// duplicates. The seed itself is not included.
	URLs []string `json:"urls"`

	// Entries is the sitemap content built from URLs.
	Entries []SitemapEntry `json:"entries,omitempty"`

	// Events lists per-URL problems encountered along the way.
	Events []Event `json:"events,omitempty"`

	// PagesFetched counts documents successfully retrieved.
	PagesFetched int `json:"pages_fetched"`

	// RobotsSitemaps lists Sitemap: URLs advertised by robots.txt.
	RobotsSitemaps []string `json:"robots_sitemaps,omitempty"`

	// OutputFile is where the sitemap was written.
	OutputFile string `json:"output_file,omitempty"`

	// Denied is true when robots.txt refused the seed itself.
	Denied bool `json:"denied"`

	// TimedOut is true when the crawl was cancelled before completion.
	TimedOut bool `json:"timed_out"`

	// Error is the error that stopped the pipeline, if any.
	Error error `json:"-"`

	// ErrorMessage is Error as text, for serialization.
	ErrorMessage string `json:"error,omitempty"`
}

// NewCrawlReport creates an empty report for seed.
func NewCrawlReport(seed string, maxDepth int) *CrawlReport {
	return &CrawlReport{
		Seed:      seed,
		MaxDepth:  maxDepth,
		StartedAt: time.Now(),
		URLs:      make([]string, 0),
		Events:    make([]Event, 0),
	}
}

// AddEvent appends a per-URL event.
func (r *CrawlReport) AddEvent(kind EventKind, url, message string) {
	r.Events = append(r.Events, Event{Kind: kind, URL: url, Message: message})
}

// EventsOf returns the events of the given kind, in recording order.
func (r *CrawlReport) EventsOf(kind EventKind) []Event {
	out := make([]Event, 0)
	for _, e := range r.Events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// LastModifiedCount returns how many entries carry a lastmod value.
func (r *CrawlReport) LastModifiedCount() int {
	n := 0
	for _, e := range r.Entries {
		if e.LastModified != "" {
			n++
		}
	}
	return n
}

// Duration returns how long the crawl took, or zero if it has not finished.
func (r *CrawlReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Succeeded reports whether the pipeline finished without a fatal error.
func (r *CrawlReport) Succeeded() bool {
	return r.Error == nil && r.ErrorMessage == ""
}
