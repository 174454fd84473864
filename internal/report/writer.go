package report

import (
	"io"

	"github.com/nao1215/sitemapper/internal/model"
)

// Writer defines the interface for report output.
type Writer interface {
	// Write outputs the summary of one crawl.
	// Returns the number of bytes written and any error encountered.
	Write(report *model.CrawlReport) (int, error)

	// WriteHistory outputs a list of stored runs.
	WriteHistory(runs []model.RunSummary) (int, error)

	// WriteDiff outputs the URL changes between two runs.
	WriteDiff(diff *model.RunDiff) (int, error)
}

// MultiWriter writes to multiple Writers in order.
// It stops on the first error.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the report to all configured Writers.
func (m *MultiWriter) Write(report *model.CrawlReport) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.Write(report) })
}

// WriteHistory outputs the runs to all configured Writers.
func (m *MultiWriter) WriteHistory(runs []model.RunSummary) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteHistory(runs) })
}

// WriteDiff outputs the diff to all configured Writers.
func (m *MultiWriter) WriteDiff(diff *model.RunDiff) (int, error) {
	return m.each(func(w Writer) (int, error) { return w.WriteDiff(diff) })
}

func (m *MultiWriter) each(write func(Writer) (int, error)) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := write(w)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// Status values shared by every format.
const (
	StatusComplete = "complete"
	StatusTimedOut = "timed_out"
	StatusDenied   = "denied"
	StatusError    = "error"
)

// Status classifies how a crawl ended. A refused seed wins over a
// timeout, and a timeout over any other error.
func Status(report *model.CrawlReport) string {
	switch {
	case report.Denied:
		return StatusDenied
	case report.TimedOut:
		return StatusTimedOut
	case !report.Succeeded():
		return StatusError
	default:
		return StatusComplete
	}
}

func runStatus(run model.RunSummary) string {
	switch {
	case run.Denied:
		return StatusDenied
	case run.TimedOut:
		return StatusTimedOut
	default:
		return StatusComplete
	}
}

// errorText returns the error message of report, preferring the live error.
func errorText(report *model.CrawlReport) string {
	if report.Error != nil {
		return report.Error.Error()
	}
	return report.ErrorMessage
}

// lastModified maps each sitemap location to its lastmod value.
func lastModified(report *model.CrawlReport) map[string]string {
	m := make(map[string]string, len(report.Entries))
	for _, e := range report.Entries {
		if e.LastModified != "" {
			m[e.Location] = e.LastModified
		}
	}
	return m
}

// eventKinds is the order in which event groups are rendered.
var eventKinds = []model.EventKind{
	model.EventFetchFailed,
	model.EventPolicyDenied,
	model.EventParseFailed,
}

const timeLayout = "2006-01-02 15:04:05 MST"
