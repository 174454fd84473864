// Package main provides the entry point for the sitemapper CLI.
//
// sitemapper crawls a website from a seed URL, follows same-origin links
// down to a bounded depth while obeying robots.txt, and writes the pages it
// found as a sitemaps.org XML document.
//
// Usage:
//
//	sitemapper                       # interactive prompt
//	sitemapper crawl https://example.com
//	sitemapper history --diff https://example.com
//
// See --help for all available options.
package main

func main() {
	Execute()
}
