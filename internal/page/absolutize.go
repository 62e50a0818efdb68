package page

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type resourceRule struct {
	selector string
	attr     string
	srcset   bool
}

var resourceRules = []resourceRule{
	{selector: "img[src]", attr: "src"},
	{selector: "img[srcset]", attr: "srcset", srcset: true},
	{selector: "script[src]", attr: "src"},
	{selector: "link[href]", attr: "href"},
	{selector: "source[src]", attr: "src"},
	{selector: "source[srcset]", attr: "srcset", srcset: true},
	{selector: "video[src]", attr: "src"},
	{selector: "video[poster]", attr: "poster"},
	{selector: "audio[src]", attr: "src"},
	{selector: "iframe[src]", attr: "src"},
	{selector: "embed[src]", attr: "src"},
	{selector: "object[data]", attr: "data"},
	{selector: "input[src]", attr: "src"},
}

// skippedPrefixes never point at a fetchable resource relative to the page.
var skippedPrefixes = []string{"data:", "javascript:", "mailto:", "blob:", "about:", "tel:"}

// Absolutize rewrites resource-bearing attributes so they resolve without the
// original page location. It mutates and returns doc. Running it twice yields
// the same document.
func Absolutize(doc *Document, base CanonicalURL) *Document {
	if doc == nil || doc.doc == nil {
		return doc
	}
	for _, rule := range resourceRules {
		doc.doc.Find(rule.selector).Each(func(_ int, s *goquery.Selection) {
			value, ok := s.Attr(rule.attr)
			if !ok {
				return
			}
			var rewritten string
			if rule.srcset {
				rewritten = absolutizeSrcset(value, base)
			} else {
				rewritten = absolutizeRef(value, base)
			}
			if rewritten != value {
				s.SetAttr(rule.attr, rewritten)
			}
		})
	}
	return doc
}

func absolutizeRef(value string, base CanonicalURL) string {
	ref := strings.TrimSpace(value)
	if ref == "" || strings.HasPrefix(ref, "#") || hasSkippedPrefix(ref) {
		return value
	}
	return base.Resolve(ref)
}

// absolutizeSrcset resolves each candidate of a srcset list and keeps the
// width/density descriptors.
func absolutizeSrcset(value string, base CanonicalURL) string {
	candidates := parseSrcset(value)
	if len(candidates) == 0 {
		return value
	}
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		ref := absolutizeRef(c.url, base)
		if c.descriptor != "" {
			ref += " " + c.descriptor
		}
		out = append(out, ref)
	}
	return strings.Join(out, ", ")
}

type srcsetCandidate struct {
	url        string
	descriptor string
}

// parseSrcset splits a srcset value the way browsers do: a URL runs to the
// next whitespace (so commas inside it survive), trailing commas end the
// candidate, and a descriptor runs to the next comma outside parentheses.
func parseSrcset(value string) []srcsetCandidate {
	var candidates []srcsetCandidate
	pos := 0
	for pos < len(value) {
		for pos < len(value) && (isSrcsetSpace(value[pos]) || value[pos] == ',') {
			pos++
		}
		if pos >= len(value) {
			break
		}
		start := pos
		for pos < len(value) && !isSrcsetSpace(value[pos]) {
			pos++
		}
		rawURL := value[start:pos]
		trimmed := strings.TrimRight(rawURL, ",")
		if trimmed != rawURL {
			candidates = append(candidates, srcsetCandidate{url: trimmed})
			continue
		}

		for pos < len(value) && isSrcsetSpace(value[pos]) {
			pos++
		}
		start = pos
		depth := 0
		for pos < len(value) {
			ch := value[pos]
			if ch == '(' {
				depth++
			} else if ch == ')' && depth > 0 {
				depth--
			} else if ch == ',' && depth == 0 {
				break
			}
			pos++
		}
		descriptor := strings.Join(strings.Fields(value[start:pos]), " ")
		if pos < len(value) {
			pos++
		}
		candidates = append(candidates, srcsetCandidate{url: rawURL, descriptor: descriptor})
	}
	return candidates
}

func isSrcsetSpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r', '\f':
		return true
	}
	return false
}

func hasSkippedPrefix(ref string) bool {
	lower := strings.ToLower(ref)
	for _, prefix := range skippedPrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}
