package model

import "time"

// RunSummary describes one stored crawl run without its URL list.
type RunSummary struct {
	// ID identifies the run in the history database.
	ID int64 `json:"id"`

	// Seed is the URL the run started from.
	Seed string `json:"seed"`

	// MaxDepth is the depth limit of the run.
	MaxDepth int `json:"max_depth"`

	// StartedAt and FinishedAt bound the run.
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	// URLCount is the number of discovered URLs.
	URLCount int `json:"url_count"`

	// EventCount is the number of per-URL problems.
	EventCount int `json:"event_count"`

	// OutputFile is the sitemap path written by the run.
	OutputFile string `json:"output_file,omitempty"`

	// Denied and TimedOut mirror the CrawlReport flags.
	Denied   bool `json:"denied"`
	TimedOut bool `json:"timed_out"`
}

// RunDiff lists the URLs that changed between two runs of the same seed.
type RunDiff struct {
	Seed  string     `json:"seed"`
	Older RunSummary `json:"older"`
	Newer RunSummary `json:"newer"`

	// Added are URLs present only in Newer, in Newer's discovery order.
	Added []string `json:"added"`

	// Removed are URLs present only in Older, in Older's discovery order.
	Removed []string `json:"removed"`
}

// Unchanged reports whether both runs discovered the same URL set.
func (d *RunDiff) Unchanged() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// DiffURLs compares two URL lists. Order within each result follows the
// list the URL came from.
func DiffURLs(older, newer []string) (added, removed []string) {
	inOlder := make(map[string]struct{}, len(older))
	for _, u := range older {
		inOlder[u] = struct{}{}
	}
	inNewer := make(map[string]struct{}, len(newer))
	for _, u := range newer {
		inNewer[u] = struct{}{}
	}

	added = make([]string, 0)
	for _, u := range newer {
		if _, ok := inOlder[u]; !ok {
			added = append(added, u)
		}
	}
	removed = make([]string, 0)
	for _, u := range older {
		if _, ok := inNewer[u]; !ok {
			removed = append(removed, u)
		}
	}
	return added, removed
}
