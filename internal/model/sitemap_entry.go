package model

// SitemapEntry is one page listed in a sitemap.
type SitemapEntry struct {
	// Location is the absolute URL exactly as discovered.
	Location string `json:"loc"`

	// LastModified is the raw Last-Modified header value of the page.
	// Empty when the server did not send one or the lookup failed.
	LastModified string `json:"lastmod,omitempty"`
}
