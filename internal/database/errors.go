package database

import "errors"

var (
	// ErrDatabaseNotFound is returned by Open when the database file does
	// not exist and CreateIfNotExists is false.
	ErrDatabaseNotFound = errors.New("database not found")

	// ErrNotEnoughRuns is returned by DiffLatest when the seed has fewer
	// than two stored runs.
	ErrNotEnoughRuns = errors.New("at least two runs are needed for a diff")

	// ErrRunNotFound is returned when a run ID does not exist.
	ErrRunNotFound = errors.New("run not found")

	// ErrNilReport is returned by SaveCrawlReport for a nil report.
	ErrNilReport = errors.New("report is nil")
)
