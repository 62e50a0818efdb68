package archive

import (
	"context"
	"time"
)

// Fetcher retrieves the raw HTML of a page.
type Fetcher interface {
	Fetch(ctx context.Context, request FetchRequest) (FetchResponse, error)
}

// HeadlessDetector decides whether a headless fetch is warranted.
type HeadlessDetector interface {
	ShouldPromote(probe FetchResponse) bool
}

// ObjectStore persists archived pages and hands out links to them.
type ObjectStore interface {
	Upload(ctx context.Context, path string, contentType string, data []byte) error
	ShareableLink(ctx context.Context, path string) (string, error)
	// Delete removes the object at path. Missing objects are not an error.
	Delete(ctx context.Context, path string) error
}

// BookmarkService registers archived pages with the bookmarking service.
type BookmarkService interface {
	ListCollections(ctx context.Context) ([]Collection, error)
	CreateBookmark(ctx context.Context, bookmark Bookmark) (string, error)
}

// Publisher pushes completion events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes content digests.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces event IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// LinkPolicy selects how ObjectStore links are minted.
type LinkPolicy string

// Supported link policies.
const (
	// LinkPermanent yields a stable public link to the object.
	LinkPermanent LinkPolicy = "permanent"
	// LinkTemporary yields an expiring signed link.
	LinkTemporary LinkPolicy = "temporary"
)

// FetchMode selects the Fetcher composition.
type FetchMode string

// Supported fetch modes.
const (
	FetchDirect   FetchMode = "direct"
	FetchHeadless FetchMode = "headless"
	FetchAuto     FetchMode = "auto"
)
