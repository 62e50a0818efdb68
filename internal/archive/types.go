package archive

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// Request is a single archive submission.
type Request struct {
	URL          string `json:"url"`
	CollectionID string `json:"collectionId"`
	// HTML, when set, is archived as-is and the fetch step is skipped.
	HTML string `json:"html,omitempty"`
}

// Validate rejects requests missing the URL or the collection id.
func (r Request) Validate() error {
	if strings.TrimSpace(r.URL) == "" || strings.TrimSpace(r.CollectionID) == "" {
		return fmt.Errorf("%w: missing url or collectionId", ErrInvalidURL)
	}
	if _, err := r.Collection(); err != nil {
		return err
	}
	return nil
}

// Collection parses the collection id. Negative ids name system collections.
func (r Request) Collection() (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.CollectionID), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: collectionId %q is not an integer", ErrInvalidURL, r.CollectionID)
	}
	return id, nil
}

// Artifact is the normalized page ready to be uploaded and bookmarked.
type Artifact struct {
	Filename  string
	HTML      string
	Title     string
	CoverURL  string // empty when the page carries no preview image
	DomainTag string
	SourceURL string
}

// HasCover reports whether a cover image was found.
func (a Artifact) HasCover() bool {
	return a.CoverURL != ""
}

// Result summarizes a completed archive.
type Result struct {
	SourceURL    string `json:"source_url"`
	Link         string `json:"link"`
	Path         string `json:"path"`
	Title        string `json:"title"`
	DomainTag    string `json:"domain"`
	CoverURL     string `json:"cover,omitempty"`
	ContentHash  string `json:"content_hash"`
	UsedHeadless bool   `json:"used_headless"`
	BookmarkID   string `json:"bookmark_id,omitempty"`
}

// Collection is a bookmark collection as exposed by the bookmarking service.
type Collection struct {
	ID     int64          `json:"_id"`
	Title  string         `json:"title"`
	Count  int            `json:"count"`
	Parent *CollectionRef `json:"parent,omitempty"`
}

// CollectionRef points at a parent collection.
type CollectionRef struct {
	ID int64 `json:"$id"`
}

// Bookmark is the entry registered for an archived page.
type Bookmark struct {
	Link         string
	Title        string
	Excerpt      string
	Tags         []string
	CollectionID int64
	Cover        string
}

// Event is published after a page has been archived and bookmarked.
type Event struct {
	ID          string    `json:"id"`
	SourceURL   string    `json:"source_url"`
	Link        string    `json:"link"`
	Path        string    `json:"path"`
	Domain      string    `json:"domain"`
	Title       string    `json:"title"`
	ContentHash string    `json:"content_hash"`
	ArchivedAt  time.Time `json:"archived_at"`
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the result returned by a Fetcher implementation.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}
