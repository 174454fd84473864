package crawler

import (
	"fmt"
	"io"
	"mime"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// LinkExtractor turns a fetched document into the href values of its
// anchors. The values are returned raw: possibly relative, possibly
// malformed. Resolution is the spider's job.
type LinkExtractor interface {
	ExtractLinks(body io.Reader, contentType string) ([]string, error)
}

// HTMLExtractor extracts anchor hrefs with golang.org/x/net/html.
//
// Documents are decoded to UTF-8 first using the charset from the
// Content-Type header or from a <meta> declaration in the document.
// Non-HTML content types yield no links and no error.
type HTMLExtractor struct{}

// ExtractLinks implements LinkExtractor.
func (HTMLExtractor) ExtractLinks(body io.Reader, contentType string) ([]string, error) {
	if !isHTML(contentType) {
		return nil, nil
	}

	reader, err := charset.NewReader(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}

	doc, err := html.Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("parse document: %w", err)
	}

	links := make([]string, 0)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href, ok := getAttr(n, "href"); ok && strings.TrimSpace(href) != "" {
				links = append(links, href)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return links, nil
}

// isHTML reports whether contentType names an HTML document. A missing
// header is treated as HTML, which is what browsers do for most servers
// that omit it.
func isHTML(contentType string) bool {
	if strings.TrimSpace(contentType) == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == "text/html" || mediaType == "application/xhtml+xml"
}

// getAttr retrieves an attribute value from an HTML node.
func getAttr(n *html.Node, key string) (string, bool) {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val, true
		}
	}
	return "", false
}
