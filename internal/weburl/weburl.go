package weburl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrNotAbsolute is returned when a URL lacks a scheme or an authority.
var ErrNotAbsolute = errors.New("url is not absolute: scheme and host are required")

// Validate reports whether raw parses into a URL that has both a scheme
// and an authority (host[:port]). It never touches the network and
// returns false for input that cannot be parsed at all.
func Validate(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Scheme != "" && u.Host != ""
}

// Resolve turns candidate into an absolute URL using base as the reference.
//
// A candidate that already carries a scheme and an authority is returned
// byte-for-byte unchanged. Anything else is treated as an RFC 3986
// relative reference: dot segments are removed, and the candidate's own
// query and fragment are kept. Protocol-relative references ("//host/x")
// inherit the scheme of base.
func Resolve(base, candidate string) (string, error) {
	ref := strings.TrimSpace(candidate)

	c, err := url.Parse(ref)
	if err != nil {
		return "", fmt.Errorf("parse link %q: %w", candidate, err)
	}
	if c.Scheme != "" && c.Host != "" {
		return ref, nil
	}

	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse base %q: %w", base, err)
	}
	if b.Scheme == "" || b.Host == "" {
		return "", fmt.Errorf("base %q: %w", base, ErrNotAbsolute)
	}

	resolved := b.ResolveReference(c)
	if resolved.Scheme == "" || resolved.Host == "" {
		// e.g. "mailto:x@y" or "javascript:void(0)" keep their own opaque scheme
		return "", fmt.Errorf("link %q: %w", candidate, ErrNotAbsolute)
	}
	return resolved.String(), nil
}

// Origin returns the "scheme://authority" part of raw. The scheme and
// host are lower-cased; the port is kept as written.
func Origin(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("%q: %w", raw, ErrNotAbsolute)
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), nil
}

// SameOrigin reports whether a and b share scheme and authority.
// Scheme and host compare case-insensitively, the port must match
// exactly, so "http://example.com" and "http://example.com:80" differ.
func SameOrigin(a, b string) bool {
	oa, err := Origin(a)
	if err != nil {
		return false
	}
	ob, err := Origin(b)
	if err != nil {
		return false
	}
	return oa == ob
}

// Path returns the path plus query of raw, suitable for robots.txt
// evaluation. An empty path is reported as "/".
func Path(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "/"
	}
	p := u.EscapedPath()
	if p == "" {
		p = "/"
	}
	if u.RawQuery != "" {
		p += "?" + u.RawQuery
	}
	return p
}
