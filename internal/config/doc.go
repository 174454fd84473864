// Package config provides configuration structures and utilities for
// sitemapper. It defines crawl limits, politeness settings, output
// locations and the per-site overrides read from a .sitemapper file.
package config
