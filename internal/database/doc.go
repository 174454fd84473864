// Package database stores crawl history in SQLite.
//
// Every finished crawl is saved as a run: the seed, the depth limit, the
// timing, the discovered URLs in discovery order and the full report as
// JSON. The history command lists runs and compares the latest two runs
// of a seed to show which pages appeared or disappeared.
//
// The driver is modernc.org/sqlite, a CGO-free SQLite, so the database is a
// single file under the XDG data directory and cross-compilation keeps
// working.
package database
