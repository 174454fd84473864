package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nao1215/sitemapper/internal/model"
)

// FileName is the name of the database file inside the data directory.
const FileName = "sitemapper.db"

// CrawlDB provides SQLite-based storage for crawl runs.
type CrawlDB struct {
	// db is the underlying SQL database connection.
	db *sql.DB

	// dbPath is the path to the SQLite database file.
	dbPath string
}

// Options configures CrawlDB behavior.
type Options struct {
	// CreateIfNotExists creates the database file if it doesn't exist.
	CreateIfNotExists bool

	// EnableWAL enables Write-Ahead Logging.
	EnableWAL bool
}

// DefaultOptions returns the default database options.
func DefaultOptions() Options {
	return Options{
		CreateIfNotExists: true,
		EnableWAL:         true,
	}
}

// Open opens or creates a CrawlDB in dbDir.
// If CreateIfNotExists is false and the database doesn't exist,
// ErrDatabaseNotFound is returned and nothing is created.
func Open(dbDir string, opts Options) (*CrawlDB, error) {
	dbPath := filepath.Join(dbDir, FileName)

	if !opts.CreateIfNotExists {
		if _, err := os.Stat(dbPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("%w at %s", ErrDatabaseNotFound, dbPath)
		} else if err != nil {
			return nil, fmt.Errorf("failed to check database path: %w", err)
		}
	} else if err := os.MkdirAll(dbDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// mode=rw refuses to create a missing file; mode=rwc allows it.
	dsn := dbPath + "?mode=rw"
	if opts.CreateIfNotExists {
		dsn = dbPath + "?mode=rwc"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	cdb := &CrawlDB{
		db:     db,
		dbPath: dbPath,
	}

	if opts.EnableWAL {
		if _, err := db.ExecContext(context.Background(), "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if err := cdb.createTables(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return cdb, nil
}

// Path returns the database file path.
func (cdb *CrawlDB) Path() string {
	return cdb.dbPath
}

// Close closes the database connection.
func (cdb *CrawlDB) Close() error {
	return cdb.db.Close()
}

func (cdb *CrawlDB) createTables() error {
	schema := `
	-- One row per finished crawl of one seed
	CREATE TABLE IF NOT EXISTS crawl_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seed TEXT NOT NULL,
		max_depth INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		url_count INTEGER NOT NULL,
		event_count INTEGER NOT NULL,
		output_file TEXT,
		denied INTEGER NOT NULL DEFAULT 0,
		timed_out INTEGER NOT NULL DEFAULT 0,
		report_json TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_seed ON crawl_runs(seed);

	-- Discovered URLs of each run, in discovery order
	CREATE TABLE IF NOT EXISTS run_urls (
		run_id INTEGER NOT NULL REFERENCES crawl_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		url TEXT NOT NULL,
		lastmod TEXT,
		PRIMARY KEY (run_id, position)
	);
	`

	_, err := cdb.db.ExecContext(context.Background(), schema)
	return err
}

// SaveCrawlReport stores report as a new run and returns its ID.
// The run row and its URLs are written in one transaction.
func (cdb *CrawlDB) SaveCrawlReport(ctx context.Context, report *model.CrawlReport) (int64, error) {
	if report == nil {
		return 0, ErrNilReport
	}

	reportJSON, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("failed to serialize report: %w", err)
	}

	finished := report.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}

	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after Commit

	result, err := tx.ExecContext(ctx, `
	INSERT INTO crawl_runs (seed, max_depth, started_at, finished_at, url_count, event_count, output_file, denied, timed_out, report_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		report.Seed,
		report.MaxDepth,
		formatTimestamp(report.StartedAt),
		formatTimestamp(finished),
		len(report.URLs),
		len(report.Events),
		report.OutputFile,
		report.Denied,
		report.TimedOut,
		string(reportJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save crawl run: %w", err)
	}

	runID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read run id: %w", err)
	}

	lastmod := make(map[string]string, len(report.Entries))
	for _, e := range report.Entries {
		lastmod[e.Location] = e.LastModified
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO run_urls (run_id, position, url, lastmod) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare url insert: %w", err)
	}
	defer stmt.Close()

	for i, u := range report.URLs {
		if _, err := stmt.ExecContext(ctx, runID, i, u, lastmod[u]); err != nil {
			return 0, fmt.Errorf("failed to save url %s: %w", u, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit crawl run: %w", err)
	}
	return runID, nil
}

// ListSeeds returns every seed with at least one stored run.
func (cdb *CrawlDB) ListSeeds(ctx context.Context) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT DISTINCT seed FROM crawl_runs ORDER BY seed`)
	if err != nil {
		return nil, fmt.Errorf("failed to list seeds: %w", err)
	}
	defer rows.Close()

	var seeds []string
	for rows.Next() {
		var seed string
		if err := rows.Scan(&seed); err != nil {
			return nil, fmt.Errorf("failed to scan seed: %w", err)
		}
		seeds = append(seeds, seed)
	}
	return seeds, rows.Err()
}

const runColumns = `id, seed, max_depth, started_at, finished_at, url_count, event_count, output_file, denied, timed_out`

// ListRuns returns run summaries, newest first. An empty seed lists the
// runs of every seed. limit <= 0 returns all runs.
func (cdb *CrawlDB) ListRuns(ctx context.Context, seed string, limit int) ([]model.RunSummary, error) {
	query := `SELECT ` + runColumns + ` FROM crawl_runs WHERE 1=1`
	args := make([]any, 0, 2)

	if seed != "" {
		query += " AND seed = ?"
		args = append(args, seed)
	}
	query += " ORDER BY id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := cdb.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []model.RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.RunSummary, error) {
	var (
		run        model.RunSummary
		startedAt  string
		finishedAt string
		outputFile sql.NullString
	)
	err := row.Scan(
		&run.ID,
		&run.Seed,
		&run.MaxDepth,
		&startedAt,
		&finishedAt,
		&run.URLCount,
		&run.EventCount,
		&outputFile,
		&run.Denied,
		&run.TimedOut,
	)
	if err != nil {
		return model.RunSummary{}, fmt.Errorf("failed to scan run: %w", err)
	}
	run.StartedAt = parseTimestamp(startedAt)
	run.FinishedAt = parseTimestamp(finishedAt)
	run.OutputFile = outputFile.String
	return run, nil
}

// GetRun returns the summary of run id.
func (cdb *CrawlDB) GetRun(ctx context.Context, id int64) (model.RunSummary, error) {
	row := cdb.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM crawl_runs WHERE id = ?`, id)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.RunSummary{}, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	return run, err
}

// GetReport returns the full report stored for run id.
func (cdb *CrawlDB) GetReport(ctx context.Context, id int64) (*model.CrawlReport, error) {
	var reportJSON string
	err := cdb.db.QueryRowContext(ctx, `SELECT report_json FROM crawl_runs WHERE id = ?`, id).Scan(&reportJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get report: %w", err)
	}

	var report model.CrawlReport
	if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
		return nil, fmt.Errorf("failed to parse report: %w", err)
	}
	return &report, nil
}

// RunURLs returns the URLs discovered by run id, in discovery order.
func (cdb *CrawlDB) RunURLs(ctx context.Context, id int64) ([]string, error) {
	rows, err := cdb.db.QueryContext(ctx, `SELECT url FROM run_urls WHERE run_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get run urls: %w", err)
	}
	defer rows.Close()

	urls := make([]string, 0)
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("failed to scan url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// Diff compares two runs. The result is expressed from older to newer.
func (cdb *CrawlDB) Diff(ctx context.Context, olderID, newerID int64) (*model.RunDiff, error) {
	older, err := cdb.GetRun(ctx, olderID)
	if err != nil {
		return nil, err
	}
	newer, err := cdb.GetRun(ctx, newerID)
	if err != nil {
		return nil, err
	}

	olderURLs, err := cdb.RunURLs(ctx, olderID)
	if err != nil {
		return nil, err
	}
	newerURLs, err := cdb.RunURLs(ctx, newerID)
	if err != nil {
		return nil, err
	}

	added, removed := model.DiffURLs(olderURLs, newerURLs)
	return &model.RunDiff{
		Seed:    newer.Seed,
		Older:   older,
		Newer:   newer,
		Added:   added,
		Removed: removed,
	}, nil
}

// DiffLatest compares the two most recent runs of seed.
func (cdb *CrawlDB) DiffLatest(ctx context.Context, seed string) (*model.RunDiff, error) {
	runs, err := cdb.ListRuns(ctx, seed, 2)
	if err != nil {
		return nil, err
	}
	if len(runs) < 2 {
		return nil, fmt.Errorf("%w (seed %s has %d)", ErrNotEnoughRuns, seed, len(runs))
	}
	return cdb.Diff(ctx, runs[1].ID, runs[0].ID)
}

// DeleteRuns removes every run of seed and returns how many were deleted.
func (cdb *CrawlDB) DeleteRuns(ctx context.Context, seed string) (int64, error) {
	tx, err := cdb.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }() //nolint:errcheck // no-op after Commit

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM run_urls WHERE run_id IN (SELECT id FROM crawl_runs WHERE seed = ?)`, seed); err != nil {
		return 0, fmt.Errorf("failed to delete run urls: %w", err)
	}
	result, err := tx.ExecContext(ctx, `DELETE FROM crawl_runs WHERE seed = ?`, seed)
	if err != nil {
		return 0, fmt.Errorf("failed to delete runs: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted runs: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return n, nil
}

// timestampFormats contains the timestamp formats that may be stored.
// More specific formats come first.
var timestampFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
}

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// parseTimestamp returns the zero time when no format matches.
func parseTimestamp(s string) time.Time {
	for _, format := range timestampFormats {
		if t, err := time.Parse(format, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
