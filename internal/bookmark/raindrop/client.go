// Package raindrop is a client for the Raindrop.io REST API covering the
// calls the archiver needs: listing collections and creating bookmarks.
package raindrop

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
	"github.com/joalvis1996/archive-saver-web/internal/metrics"
)

// DefaultBaseURL is the production REST endpoint.
const DefaultBaseURL = "https://api.raindrop.io/rest/v1"

const maxErrorBody = 512

// Config configures the client.
type Config struct {
	BaseURL string
	Token   string
	Timeout time.Duration
	// IncludeChildren also lists nested collections.
	IncludeChildren bool
}

// Client talks to the Raindrop REST API with a bearer token.
type Client struct {
	baseURL         string
	token           string
	includeChildren bool
	http            *http.Client
	logger          *zap.Logger
}

// New builds a Client. A nil httpClient gets one with the configured timeout.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("raindrop token is required")
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:         baseURL,
		token:           cfg.Token,
		includeChildren: cfg.IncludeChildren,
		http:            httpClient,
		logger:          logger.Named("raindrop"),
	}, nil
}

type collectionsResponse struct {
	Result       bool                 `json:"result"`
	Items        []archive.Collection `json:"items"`
	ErrorMessage string               `json:"errorMessage"`
}

type raindropRequest struct {
	Link       string                `json:"link"`
	Title      string                `json:"title"`
	Excerpt    string                `json:"excerpt"`
	Tags       []string              `json:"tags"`
	Collection archive.CollectionRef `json:"collection"`
	Cover      string                `json:"cover,omitempty"`
}

type raindropResponse struct {
	Result bool `json:"result"`
	Item   struct {
		ID int64 `json:"_id"`
	} `json:"item"`
	ErrorMessage string `json:"errorMessage"`
}

// ListCollections returns the user's collections.
func (c *Client) ListCollections(ctx context.Context) ([]archive.Collection, error) {
	roots, err := c.collections(ctx, "/collections")
	if err != nil {
		return nil, err
	}
	if !c.includeChildren {
		return roots, nil
	}
	children, err := c.collections(ctx, "/collections/childrens")
	if err != nil {
		return nil, err
	}
	return append(roots, children...), nil
}

func (c *Client) collections(ctx context.Context, path string) ([]archive.Collection, error) {
	var out collectionsResponse
	if err := c.do(ctx, "list_collections", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if !out.Result {
		return nil, fmt.Errorf("%w: list collections rejected: %s", archive.ErrBookmark, out.ErrorMessage)
	}
	if out.Items == nil {
		return []archive.Collection{}, nil
	}
	return out.Items, nil
}

// CreateBookmark registers a bookmark and returns its id.
func (c *Client) CreateBookmark(ctx context.Context, bookmark archive.Bookmark) (string, error) {
	payload := raindropRequest{
		Link:       bookmark.Link,
		Title:      bookmark.Title,
		Excerpt:    bookmark.Excerpt,
		Tags:       bookmark.Tags,
		Collection: archive.CollectionRef{ID: bookmark.CollectionID},
		Cover:      bookmark.Cover,
	}
	if payload.Tags == nil {
		payload.Tags = []string{}
	}
	var out raindropResponse
	if err := c.do(ctx, "create_bookmark", http.MethodPost, "/raindrop", payload, &out); err != nil {
		return "", err
	}
	if !out.Result {
		return "", fmt.Errorf("%w: create bookmark rejected: %s", archive.ErrBookmark, out.ErrorMessage)
	}
	id := strconv.FormatInt(out.Item.ID, 10)
	c.logger.Debug("bookmark created", zap.String("id", id), zap.Int64("collection", bookmark.CollectionID))
	return id, nil
}

func (c *Client) do(ctx context.Context, operation, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: marshal %s request: %w", archive.ErrBookmark, operation, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: build %s request: %w", archive.ErrBookmark, operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveBookmarkRequest(operation, 0)
		return fmt.Errorf("%w: %s: %w", archive.ErrBookmark, operation, err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Warn("close response body", zap.Error(cerr))
		}
	}()
	metrics.ObserveBookmarkRequest(operation, resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		c.logger.Warn("raindrop request failed",
			zap.String("operation", operation),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", snippet))
		return fmt.Errorf("%w: %s returned status %d", archive.ErrBookmark, operation, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %w", archive.ErrBookmark, operation, err)
	}
	return nil
}
