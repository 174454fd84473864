// Package weburl validates, resolves and compares web URLs.
//
// Everything here is pure string work on top of net/url: no function in
// this package performs network I/O. The crawler relies on three rules:
//
//   - a crawlable URL has both a scheme and an authority (Validate)
//   - links are made absolute against the page they were found on (Resolve)
//   - scope is the (scheme, authority) pair of the seed (SameOrigin)
package weburl
