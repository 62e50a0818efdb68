package page

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
)

// Document is a parsed HTML page owned by a single archive request.
type Document struct {
	doc *goquery.Document
}

// Parse builds a Document from raw HTML.
func Parse(html string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: parse html: %v", archive.ErrMetadataExtraction, err)
	}
	return &Document{doc: doc}, nil
}

// Find exposes goquery selection for callers that need ad-hoc queries.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Render serializes the (possibly rewritten) document back to HTML.
func (d *Document) Render() (string, error) {
	if d == nil || d.doc == nil {
		return "", fmt.Errorf("%w: nil document", archive.ErrMetadataExtraction)
	}
	out, err := goquery.OuterHtml(d.doc.Selection)
	if err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return out, nil
}
