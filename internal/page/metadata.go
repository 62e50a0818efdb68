package page

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
)

// UntitledTitle is used when the page has no usable <title>.
const UntitledTitle = "Untitled"

// coverSources are consulted in order; the first non-empty value wins.
var coverSources = []struct {
	selector string
	attr     string
}{
	{selector: `meta[property="og:image"]`, attr: "content"},
	{selector: `meta[name="twitter:image"]`, attr: "content"},
	{selector: `link[rel~="image_src"]`, attr: "href"},
}

// DeriveMetadata computes the archive filename, title, cover image and domain
// tag for doc. The returned Artifact has no HTML; callers render the document
// separately. Missing fields degrade to fallbacks rather than errors.
func DeriveMetadata(doc *Document, u CanonicalURL) (archive.Artifact, error) {
	if doc == nil || doc.doc == nil {
		return archive.Artifact{}, fmt.Errorf("%w: no document", archive.ErrMetadataExtraction)
	}
	return archive.Artifact{
		Filename:  Filename(u),
		Title:     Title(doc),
		CoverURL:  CoverImage(doc, u),
		DomainTag: u.Host(),
		SourceURL: u.String(),
	}, nil
}

// Title returns the first non-empty <title> text, trimmed.
func Title(doc *Document) string {
	title := ""
	doc.doc.Find("title").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		title = strings.TrimSpace(s.Text())
		return title == ""
	})
	if title == "" {
		return UntitledTitle
	}
	return title
}

// CoverImage returns the absolute social-preview image URL, or "" if none.
func CoverImage(doc *Document, u CanonicalURL) string {
	for _, source := range coverSources {
		value := ""
		doc.doc.Find(source.selector).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			value = strings.TrimSpace(s.AttrOr(source.attr, ""))
			return value == ""
		})
		if value != "" {
			return u.Resolve(value)
		}
	}
	return ""
}
