// Package pipeline runs the crawl of one seed URL as a sequence of steps
// and runs several seeds concurrently.
//
// The default pipeline is:
//
//	crawl  -> build -> write -> history
//
// crawl discovers same-origin URLs under the robots.txt policy, build turns
// them into sitemap entries with lastmod values, write serializes the
// sitemap file and history records the run in the database. Every step
// receives the same *model.CrawlReport and fills in its part.
//
// Per-URL problems are recorded in the report and never stop a step. A
// step returns an error only when the crawl cannot produce or write its
// output.
package pipeline
