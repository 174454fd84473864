// Package model defines the data structures shared by the crawler, the
// sitemap builder, the report writers and the history database.
//
// The main types are:
//   - CrawlReport: everything known about one crawl of one seed URL
//   - Event: a per-URL problem recorded during a crawl
//   - SitemapEntry: one <url> element of the generated sitemap
//   - RunSummary and RunDiff: stored crawl runs and their comparison
//
// All types serialize to JSON; the history database stores reports in
// that form.
package model
