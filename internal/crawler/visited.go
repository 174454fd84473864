package crawler

import (
	"net/url"
	"strings"
	"sync"
)

// VisitedSet holds the URLs already discovered or attempted during one
// crawl. It only grows. Create one per crawl with NewVisitedSet; it is
// safe for concurrent use.
type VisitedSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewVisitedSet returns an empty set.
func NewVisitedSet() *VisitedSet {
	return &VisitedSet{seen: make(map[string]struct{})}
}

// Claim marks rawURL as visited and reports whether this call was the
// first to do so. Two goroutines claiming the same URL never both win.
func (v *VisitedSet) Claim(rawURL string) bool {
	key := normalizeURL(rawURL)

	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.seen[key]; ok {
		return false
	}
	v.seen[key] = struct{}{}
	return true
}

// Contains reports whether rawURL has been claimed.
func (v *VisitedSet) Contains(rawURL string) bool {
	key := normalizeURL(rawURL)

	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.seen[key]
	return ok
}

// Len returns the number of claimed URLs.
func (v *VisitedSet) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.seen)
}

// normalizeURL returns the set key for a URL. The fragment is dropped,
// scheme and host are lower-cased and an empty path becomes "/", so
// "HTTPS://Example.com#top" and "https://example.com/" share a key.
func normalizeURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	if u.Path == "" && u.Opaque == "" {
		u.Path = "/"
	}

	return u.String()
}

// stripFragment removes a "#..." suffix without re-encoding the rest of
// the URL.
func stripFragment(rawURL string) string {
	before, _, _ := strings.Cut(rawURL, "#")
	return before
}
