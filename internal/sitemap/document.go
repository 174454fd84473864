package sitemap

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/nao1215/sitemapper/internal/model"
)

// Namespace is the sitemaps.org schema namespace of the urlset element.
const Namespace = "http://www.sitemaps.org/schemas/sitemap/0.9"

// ErrSerialization is wrapped by every failure to encode or write a
// sitemap document.
var ErrSerialization = errors.New("sitemap serialization failed")

// URL is a <url> element.
type URL struct {
	Loc     string `xml:"loc"`
	LastMod string `xml:"lastmod,omitempty"`
}

// URLSet is the <urlset> root element.
type URLSet struct {
	XMLName xml.Name `xml:"urlset"`
	XMLNS   string   `xml:"xmlns,attr"`
	URLs    []URL    `xml:"url"`
}

// NewURLSet returns an empty document.
func NewURLSet() *URLSet {
	return &URLSet{XMLNS: Namespace, URLs: make([]URL, 0)}
}

// FromEntries returns a document listing entries in order.
func FromEntries(entries []model.SitemapEntry) *URLSet {
	set := NewURLSet()
	for _, e := range entries {
		set.URLs = append(set.URLs, URL{Loc: e.Location, LastMod: e.LastModified})
	}
	return set
}

// Entries returns the document content as model entries.
func (s *URLSet) Entries() []model.SitemapEntry {
	entries := make([]model.SitemapEntry, 0, len(s.URLs))
	for _, u := range s.URLs {
		entries = append(entries, model.SitemapEntry{Location: u.Loc, LastModified: u.LastMod})
	}
	return entries
}

// Marshal encodes the document, XML declaration included.
func (s *URLSet) Marshal() ([]byte, error) {
	body, err := xml.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	var buf bytes.Buffer
	buf.Grow(len(xml.Header) + len(body) + 1)
	buf.WriteString(xml.Header)
	buf.Write(body)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// WriteTo writes the encoded document to w.
func (s *URLSet) WriteTo(w io.Writer) (int64, error) {
	data, err := s.Marshal()
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	if err != nil {
		return int64(n), fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return int64(n), nil
}

// WriteFile writes the encoded document to path, replacing any existing
// file. Sitemaps are published, so the file is world-readable.
func (s *URLSet) WriteFile(path string) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil { //nolint:gosec // public document
		return fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return nil
}
