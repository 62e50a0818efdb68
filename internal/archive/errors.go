package archive

import "errors"

// Error categories surfaced by the archive flow. Implementations wrap one of
// these so callers can branch with errors.Is.
var (
	// ErrInvalidURL reports malformed or missing caller input (URL or collection id).
	ErrInvalidURL = errors.New("invalid url")
	// ErrFetch reports that the page could not be retrieved.
	ErrFetch = errors.New("fetch failed")
	// ErrMetadataExtraction reports a document that could not be parsed at all.
	ErrMetadataExtraction = errors.New("metadata extraction failed")
	// ErrStorage reports an upload or link failure in the object store.
	ErrStorage = errors.New("storage failed")
	// ErrBookmark reports a failed bookmarking service call.
	ErrBookmark = errors.New("bookmark failed")
)
