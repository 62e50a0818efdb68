package page

import (
	"regexp"
	"strings"

	"github.com/joalvis1996/archive-saver-web/internal/hash/sha256"
)

const (
	documentIDParam = "document_srl"
	archiveSuffix   = ".html"
	maxPathChars    = 150
	hashChars       = 8
)

var (
	invalidFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)
	documentIDPattern    = regexp.MustCompile(`^[a-zA-Z0-9]+$`)
	hasher               = sha256.New()
)

// Filename derives the storage object name for u. Board-style URLs carrying a
// document_srl reuse one slot per document; everything else is keyed by host,
// path and a short digest of the full URL. The result never contains '/'.
func Filename(u CanonicalURL) string {
	host := sanitize(u.Host())
	if id := u.Query().Get(documentIDParam); documentIDPattern.MatchString(id) {
		return host + "_" + id + archiveSuffix
	}

	path := sanitize(strings.ReplaceAll(u.URL().Path, "/", "_"))
	if len(path) > maxPathChars {
		path = path[:maxPathChars]
	}
	digest := hasher.HashString(u.String())
	return host + path + "_" + digest[:hashChars] + archiveSuffix
}

func sanitize(s string) string {
	return invalidFilenameChars.ReplaceAllString(s, "_")
}
