// Package sitemap turns a list of discovered URLs into a sitemaps.org
// document.
//
// Builder creates one entry per URL, in input order, and tries to fill in
// lastmod from the raw Last-Modified header of a HEAD request. A failed
// HEAD request leaves lastmod empty; it never stops the build.
//
// The resulting URLSet serializes to UTF-8 XML with an XML declaration and
// a urlset root in the http://www.sitemaps.org/schemas/sitemap/0.9
// namespace. Sitemap index files are not produced.
package sitemap
