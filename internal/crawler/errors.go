package crawler

import "errors"

// Sentinel errors returned by Crawl.
var (
	// ErrInvalidURL is returned when the seed lacks a scheme or host.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrNegativeDepth is returned when MaxDepth is below zero.
	ErrNegativeDepth = errors.New("max depth must not be negative")
)
