// Package report renders crawl results for people and tools.
//
// Three formats are provided:
//   - SimpleWriter: plain text for the terminal
//   - JSONWriter: structured JSON for scripts
//   - MarkdownWriter: Markdown with tables and a mermaid pie chart
//
// Every Writer renders a single crawl report, a list of stored runs and
// the diff between two runs of the same seed.
package report
