// Package auto composes a direct fetcher with a headless one, promoting
// pages to the browser when the direct response looks incomplete or blocked.
package auto

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"

	"go.uber.org/zap"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
	"github.com/joalvis1996/archive-saver-web/internal/metrics"
)

// blockedStatuses are probe statuses that usually mean bot protection rather than a missing page.
var blockedStatuses = []int{
	http.StatusForbidden,
	http.StatusNotAcceptable,
	http.StatusTooManyRequests,
	http.StatusServiceUnavailable,
}

// Fetcher probes with a direct fetch and promotes to headless when needed.
type Fetcher struct {
	probe    archive.Fetcher
	headless archive.Fetcher
	detector archive.HeadlessDetector
	logger   *zap.Logger
}

// New builds an auto-promoting Fetcher. A nil detector only promotes blocked probes.
func New(probe, headless archive.Fetcher, detector archive.HeadlessDetector, logger *zap.Logger) (*Fetcher, error) {
	if probe == nil || headless == nil {
		return nil, errors.New("auto fetcher requires probe and headless fetchers")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{
		probe:    probe,
		headless: headless,
		detector: detector,
		logger:   logger.Named("auto_fetcher"),
	}, nil
}

// Fetch implements archive.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, req archive.FetchRequest) (archive.FetchResponse, error) {
	resp, err := f.probe.Fetch(ctx, req)
	if err != nil {
		if ctx.Err() != nil || !isBlocked(resp.StatusCode) {
			metrics.ObserveFetch(string(archive.FetchDirect), "error")
			return resp, fmt.Errorf("probe fetch: %w", err)
		}
		metrics.ObserveFetch(string(archive.FetchDirect), "blocked")
		f.logger.Info("probe blocked, promoting to headless",
			zap.String("url", req.URL), zap.Int("status", resp.StatusCode))
		return f.promote(ctx, req, "blocked")
	}
	metrics.ObserveFetch(string(archive.FetchDirect), "ok")

	if f.detector == nil || !f.detector.ShouldPromote(resp) {
		return resp, nil
	}

	promoted, err := f.promote(ctx, req, "heuristic")
	if err != nil {
		// The probe body is still a usable archive.
		f.logger.Warn("headless promotion failed", zap.String("url", req.URL), zap.Error(err))
		return resp, nil
	}
	f.logger.Info("headless promotion applied", zap.String("url", req.URL))
	return promoted, nil
}

func (f *Fetcher) promote(ctx context.Context, req archive.FetchRequest, reason string) (archive.FetchResponse, error) {
	metrics.ObserveHeadlessPromotion(reason)
	resp, err := f.headless.Fetch(ctx, req)
	if err != nil {
		metrics.ObserveFetch(string(archive.FetchHeadless), "error")
		return resp, fmt.Errorf("headless fetch: %w", err)
	}
	metrics.ObserveFetch(string(archive.FetchHeadless), "ok")
	resp.UsedHeadless = true
	return resp, nil
}

func isBlocked(status int) bool {
	return slices.Contains(blockedStatuses, status)
}
