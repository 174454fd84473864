package model

import (
	"fmt"
	"strings"
)

// EventKind classifies a per-URL problem that did not stop the crawl.
type EventKind int

const (
	// EventFetchFailed means the page could not be retrieved: timeout,
	// DNS failure, refused connection or a non-2xx status.
	EventFetchFailed EventKind = iota

	// EventPolicyDenied means robots.txt refused the page, so it was not
	// fetched and none of its links were followed.
	EventPolicyDenied

	// EventParseFailed means the page was retrieved but no links could be
	// extracted from it.
	EventParseFailed
)

// String returns the name used in logs and reports.
func (k EventKind) String() string {
	switch k {
	case EventFetchFailed:
		return "fetch_failed"
	case EventPolicyDenied:
		return "policy_denied"
	case EventParseFailed:
		return "parse_failed"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *EventKind) UnmarshalText(text []byte) error {
	switch strings.ToLower(string(text)) {
	case "fetch_failed":
		*k = EventFetchFailed
	case "policy_denied":
		*k = EventPolicyDenied
	case "parse_failed":
		*k = EventParseFailed
	default:
		return fmt.Errorf("unknown event kind %q", text)
	}
	return nil
}

// Event records a problem with a single URL.
type Event struct {
	// Kind says what went wrong.
	Kind EventKind `json:"kind"`

	// URL is the page concerned.
	URL string `json:"url"`

	// Message is the error text, if any.
	Message string `json:"message,omitempty"`
}
