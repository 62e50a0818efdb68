// Package service runs the archive pipeline: canonicalize, fetch, normalize,
// upload, share and bookmark a single web page.
package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
	"github.com/joalvis1996/archive-saver-web/internal/metrics"
	"github.com/joalvis1996/archive-saver-web/internal/page"
)

const rollbackTimeout = 10 * time.Second

// Config controls Archiver behavior.
type Config struct {
	ContentType  string
	Prefix       string
	Topic        string
	FetchTimeout time.Duration
}

// Archiver executes archive requests against its collaborators.
type Archiver struct {
	canonicalizer *page.Canonicalizer
	fetcher       archive.Fetcher
	store         archive.ObjectStore
	bookmarks     archive.BookmarkService
	publisher     archive.Publisher
	hasher        archive.Hasher
	clock         archive.Clock
	ids           archive.IDGenerator
	cfg           Config
	logger        *zap.Logger
}

// New constructs an Archiver. The publisher may be nil.
func New(
	canonicalizer *page.Canonicalizer,
	fetcher archive.Fetcher,
	store archive.ObjectStore,
	bookmarks archive.BookmarkService,
	publisher archive.Publisher,
	hasher archive.Hasher,
	clock archive.Clock,
	ids archive.IDGenerator,
	cfg Config,
	logger *zap.Logger,
) *Archiver {
	if cfg.ContentType == "" {
		cfg.ContentType = "text/html; charset=utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Archiver{
		canonicalizer: canonicalizer,
		fetcher:       fetcher,
		store:         store,
		bookmarks:     bookmarks,
		publisher:     publisher,
		hasher:        hasher,
		clock:         clock,
		ids:           ids,
		cfg:           cfg,
		logger:        logger.Named("archiver"),
	}
}

// Save archives the requested page and registers it as a bookmark.
func (a *Archiver) Save(ctx context.Context, req archive.Request) (archive.Result, error) {
	start := time.Now()
	result, trace, err := a.save(ctx, req)
	status := Outcome(err)
	site := trace.site
	if site == "" {
		site = req.URL
	}
	metrics.ObserveArchive(site, status, trace.uploaded, time.Since(start))
	if err != nil {
		a.logger.Warn("archive failed",
			zap.String("url", req.URL),
			zap.String("outcome", status),
			zap.Error(err))
		return archive.Result{}, err
	}
	a.logger.Info("page archived",
		zap.String("url", result.SourceURL),
		zap.String("domain", result.DomainTag),
		zap.String("path", result.Path),
		zap.Bool("headless", result.UsedHeadless),
		zap.Duration("elapsed", time.Since(start)))
	return result, nil
}

// saveTrace carries what a save got through for metrics, even when it fails.
type saveTrace struct {
	site     string
	uploaded int
}

func (a *Archiver) save(ctx context.Context, req archive.Request) (archive.Result, saveTrace, error) {
	var trace saveTrace
	if err := req.Validate(); err != nil {
		return archive.Result{}, trace, err
	}
	collectionID, err := req.Collection()
	if err != nil {
		return archive.Result{}, trace, err
	}
	canonical, err := a.canonicalizer.Canonicalize(req.URL)
	if err != nil {
		return archive.Result{}, trace, fmt.Errorf("canonicalize: %w", err)
	}
	trace.site = canonical.Host()
	logger := a.logger.With(zap.String("url", canonical.String()))

	html, usedHeadless, err := a.pageHTML(ctx, req, canonical)
	if err != nil {
		return archive.Result{}, trace, err
	}

	doc, err := page.Parse(html)
	if err != nil {
		return archive.Result{}, trace, err
	}
	doc = page.Absolutize(doc, canonical)
	artifact, err := page.DeriveMetadata(doc, canonical)
	if err != nil {
		return archive.Result{}, trace, err
	}
	rendered, err := doc.Render()
	if err != nil {
		return archive.Result{}, trace, fmt.Errorf("%w: %w", archive.ErrMetadataExtraction, err)
	}
	artifact.HTML = rendered
	logger.Debug("artifact derived",
		zap.String("filename", artifact.Filename),
		zap.String("title", artifact.Title),
		zap.Bool("cover", artifact.HasCover()))

	data := []byte(artifact.HTML)
	hash, err := a.hasher.Hash(data)
	if err != nil {
		return archive.Result{}, trace, fmt.Errorf("hash artifact: %w", err)
	}

	objectPath := a.objectPath(artifact.Filename)
	if err := a.store.Upload(ctx, objectPath, a.cfg.ContentType, data); err != nil {
		return archive.Result{}, trace, fmt.Errorf("upload %s: %w", objectPath, err)
	}
	link, err := a.store.ShareableLink(ctx, objectPath)
	if err != nil {
		a.rollback(ctx, logger, objectPath)
		return archive.Result{}, trace, fmt.Errorf("share %s: %w", objectPath, err)
	}

	bookmarkID, err := a.bookmarks.CreateBookmark(ctx, archive.Bookmark{
		Link:         link,
		Title:        artifact.Title,
		Excerpt:      artifact.SourceURL,
		Tags:         []string{artifact.DomainTag},
		CollectionID: collectionID,
		Cover:        artifact.CoverURL,
	})
	if err != nil {
		a.rollback(ctx, logger, objectPath)
		return archive.Result{}, trace, fmt.Errorf("create bookmark: %w", err)
	}

	result := archive.Result{
		SourceURL:    artifact.SourceURL,
		Link:         link,
		Path:         objectPath,
		Title:        artifact.Title,
		DomainTag:    artifact.DomainTag,
		CoverURL:     artifact.CoverURL,
		ContentHash:  hash,
		UsedHeadless: usedHeadless,
		BookmarkID:   bookmarkID,
	}
	a.publishResult(ctx, result)
	trace.uploaded = len(data)
	return result, trace, nil
}

// rollback removes an uploaded object whose archive did not complete. It runs
// even when ctx is already done.
func (a *Archiver) rollback(ctx context.Context, logger *zap.Logger, objectPath string) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()
	if err := a.store.Delete(ctx, objectPath); err != nil {
		logger.Error("rollback of uploaded object failed",
			zap.String("path", objectPath),
			zap.Error(err))
		return
	}
	logger.Debug("uploaded object rolled back", zap.String("path", objectPath))
}

func (a *Archiver) pageHTML(ctx context.Context, req archive.Request, u page.CanonicalURL) (string, bool, error) {
	if req.HTML != "" {
		return req.HTML, false, nil
	}
	fetchCtx := ctx
	if a.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, a.cfg.FetchTimeout)
		defer cancel()
	}
	resp, err := a.fetcher.Fetch(fetchCtx, archive.FetchRequest{URL: u.String()})
	if err != nil {
		if !errors.Is(err, archive.ErrFetch) {
			err = fmt.Errorf("%w: %w", archive.ErrFetch, err)
		}
		return "", false, fmt.Errorf("fetch page: %w", err)
	}
	return string(resp.Body), resp.UsedHeadless, nil
}

func (a *Archiver) objectPath(filename string) string {
	if a.cfg.Prefix == "" {
		return filename
	}
	return path.Join(a.cfg.Prefix, filename)
}

// publishResult announces the archive. Failures never undo a completed archive.
func (a *Archiver) publishResult(ctx context.Context, result archive.Result) {
	if a.cfg.Topic == "" || a.publisher == nil {
		return
	}
	id, err := a.ids.NewID()
	if err != nil {
		a.logger.Warn("event id generation failed", zap.Error(err))
		return
	}
	event := archive.Event{
		ID:          id,
		SourceURL:   result.SourceURL,
		Link:        result.Link,
		Path:        result.Path,
		Domain:      result.DomainTag,
		Title:       result.Title,
		ContentHash: result.ContentHash,
		ArchivedAt:  a.clock.Now(),
	}
	if _, err := a.publisher.Publish(ctx, a.cfg.Topic, event); err != nil {
		a.logger.Warn("publish archived event failed",
			zap.String("url", result.SourceURL),
			zap.String("topic", a.cfg.Topic),
			zap.Error(err))
		return
	}
	a.logger.Debug("archived event published", zap.String("event_id", id), zap.String("topic", a.cfg.Topic))
}

// Collections lists the bookmark collections available to archive into.
func (a *Archiver) Collections(ctx context.Context) ([]archive.Collection, error) {
	cols, err := a.bookmarks.ListCollections(ctx)
	if err != nil {
		a.logger.Warn("list collections failed", zap.Error(err))
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return cols, nil
}

// Outcome labels err for metrics and logs.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, archive.ErrInvalidURL):
		return "invalid"
	case errors.Is(err, archive.ErrFetch):
		return "fetch_error"
	case errors.Is(err, archive.ErrMetadataExtraction):
		return "metadata_error"
	case errors.Is(err, archive.ErrStorage):
		return "storage_error"
	case errors.Is(err, archive.ErrBookmark):
		return "bookmark_error"
	default:
		return "error"
	}
}
