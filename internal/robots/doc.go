// Package robots implements the crawl policy gate.
//
// A Gate fetches "<origin>/robots.txt" once per origin, caches the parsed
// ruleset and evaluates paths against it using github.com/temoto/robotstxt.
//
// # Unavailable policies
//
// When robots.txt cannot be obtained at all (DNS failure, refused
// connection, timeout, unparseable body) the Gate does not guess. It
// applies its FailurePolicy, logs one warning per origin and caches the
// outcome for the rest of the crawl:
//
//   - FailClosed (default): every path on the origin is refused
//   - FailOpen: every path on the origin is allowed
//
// HTTP answers are not failures: 4xx means "no rules" and 5xx means
// "disallow everything", as described in RFC 9309.
package robots
