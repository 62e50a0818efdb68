// Package gcs provides an archive.ObjectStore backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
)

const (
	defaultPublicBaseURL = "https://storage.googleapis.com"
	defaultSignedURLTTL  = 7 * 24 * time.Hour
)

// Config captures the parameters required to write to GCS and mint links.
type Config struct {
	Bucket        string
	LinkPolicy    archive.LinkPolicy
	PublicBaseURL string
	CacheControl  string
	// SignedURLTTL bounds temporary links. V4 signing caps it at seven days.
	SignedURLTTL time.Duration
	// GoogleAccessID and PrivateKey sign temporary links. When empty the
	// client's own credentials are used.
	GoogleAccessID string
	PrivateKey     []byte
}

// BlobStore writes archived pages to a configured GCS bucket.
type BlobStore struct {
	client *storage.Client
	cfg    Config
	now    func() time.Time
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	switch cfg.LinkPolicy {
	case "":
		cfg.LinkPolicy = archive.LinkPermanent
	case archive.LinkPermanent, archive.LinkTemporary:
	default:
		return nil, fmt.Errorf("unsupported link policy %q", cfg.LinkPolicy)
	}
	if cfg.PublicBaseURL == "" {
		cfg.PublicBaseURL = defaultPublicBaseURL
	}
	if cfg.SignedURLTTL <= 0 || cfg.SignedURLTTL > defaultSignedURLTTL {
		cfg.SignedURLTTL = defaultSignedURLTTL
	}
	return &BlobStore{
		client: client,
		cfg:    cfg,
		now:    time.Now,
	}, nil
}

// Upload writes data to the object at path, replacing any previous version.
func (s *BlobStore) Upload(ctx context.Context, path string, contentType string, data []byte) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path is required", archive.ErrStorage)
	}
	writer := s.client.Bucket(s.cfg.Bucket).Object(path).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if s.cfg.CacheControl != "" {
		writer.CacheControl = s.cfg.CacheControl
	}
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		return fmt.Errorf("%w: write object %s: %w", archive.ErrStorage, path, errors.Join(err, closeErr))
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("%w: close writer for %s: %w", archive.ErrStorage, path, err)
	}
	return nil
}

// ShareableLink returns a link to path according to the configured link policy.
func (s *BlobStore) ShareableLink(_ context.Context, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: path is required", archive.ErrStorage)
	}
	if s.cfg.LinkPolicy == archive.LinkTemporary {
		return s.signedURL(path)
	}
	link, err := url.JoinPath(s.cfg.PublicBaseURL, s.cfg.Bucket, path)
	if err != nil {
		return "", fmt.Errorf("%w: build public link: %w", archive.ErrStorage, err)
	}
	return link, nil
}

// Delete removes the object at path.
func (s *BlobStore) Delete(ctx context.Context, path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("%w: path is required", archive.ErrStorage)
	}
	err := s.client.Bucket(s.cfg.Bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: delete object %s: %w", archive.ErrStorage, path, err)
	}
	return nil
}

func (s *BlobStore) signedURL(path string) (string, error) {
	opts := &storage.SignedURLOptions{
		Scheme:  storage.SigningSchemeV4,
		Method:  "GET",
		Expires: s.now().Add(s.cfg.SignedURLTTL),
	}
	if s.cfg.GoogleAccessID != "" {
		opts.GoogleAccessID = s.cfg.GoogleAccessID
		opts.PrivateKey = s.cfg.PrivateKey
	}
	link, err := s.client.Bucket(s.cfg.Bucket).SignedURL(path, opts)
	if err != nil {
		return "", fmt.Errorf("%w: sign url for %s: %w", archive.ErrStorage, path, err)
	}
	return link, nil
}
