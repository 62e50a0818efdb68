// Package collyfetcher implements archive.Fetcher with a plain HTTP GET through gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
)

const defaultTimeout = 15 * time.Second

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	MaxBodyBytes  int
}

// Fetcher implements archive.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config) *Fetcher {
	// The same page may be archived repeatedly; clones share the visited store.
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	c.WithTransport(newHTTPTransport())
	if cfg.MaxBodyBytes > 0 {
		c.MaxBodySize = cfg.MaxBodyBytes
	}
	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Fetch executes a single HTTP GET using Colly. Non-2xx responses are errors.
func (f *Fetcher) Fetch(ctx context.Context, request archive.FetchRequest) (archive.FetchResponse, error) {
	var (
		result   archive.FetchResponse
		fetchErr error
	)
	start := time.Now()
	collector := f.buildCollector(request, start, &result, &fetchErr)
	return f.runCollector(ctx, collector, request.URL, &result, &fetchErr)
}

func (f *Fetcher) buildCollector(
	request archive.FetchRequest,
	start time.Time,
	result *archive.FetchResponse,
	fetchErr *error,
) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	collector.SetRequestTimeout(timeout)

	f.configureCollectorHooks(collector, request, start, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	request archive.FetchRequest,
	start time.Time,
	result *archive.FetchResponse,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		f.copyHeaders(request, r)
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = toFetchResponse(r, start)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode != 0 {
			*result = toFetchResponse(r, start)
		}
		*fetchErr = err
	})
}

// runCollector returns the captured response alongside any error so callers
// can inspect the status of a rejected fetch. On cancellation the visit may
// still be running, so nothing captured is returned.
func (f *Fetcher) runCollector(
	ctx context.Context,
	collector *colly.Collector,
	url string,
	result *archive.FetchResponse,
	fetchErr *error,
) (archive.FetchResponse, error) {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return archive.FetchResponse{}, fmt.Errorf("%w: colly fetch canceled: %w", archive.ErrFetch, ctx.Err())
	case err := <-done:
		resp := *result
		if err == nil {
			err = *fetchErr
		}
		if err != nil {
			if resp.StatusCode != 0 {
				return resp, fmt.Errorf("%w: %s returned status %d: %w", archive.ErrFetch, url, resp.StatusCode, err)
			}
			return resp, fmt.Errorf("%w: colly visit %s: %w", archive.ErrFetch, url, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return resp, fmt.Errorf("%w: %s returned status %d", archive.ErrFetch, url, resp.StatusCode)
		}
		// Colly truncates at MaxBodySize without reporting it.
		if limit := collector.MaxBodySize; limit > 0 && len(resp.Body) >= limit {
			return archive.FetchResponse{}, fmt.Errorf("%w: %s body reached the %d byte limit", archive.ErrFetch, url, limit)
		}
		return resp, nil
	}
}

func (f *Fetcher) copyHeaders(request archive.FetchRequest, r *colly.Request) {
	if request.Headers == nil {
		return
	}
	for key, values := range request.Headers {
		for _, v := range values {
			r.Headers.Add(key, v)
		}
	}
}

func toFetchResponse(r *colly.Response, start time.Time) archive.FetchResponse {
	resp := archive.FetchResponse{
		StatusCode:   r.StatusCode,
		Body:         append([]byte(nil), r.Body...),
		Duration:     time.Since(start),
		UsedHeadless: false,
	}
	if r.Request != nil && r.Request.URL != nil {
		resp.URL = r.Request.URL.String()
	}
	if r.Headers != nil {
		resp.Headers = r.Headers.Clone()
	}
	return resp
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
