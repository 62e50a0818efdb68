package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joalvis1996/archive-saver-web/internal/archive"
)

type countingFetcher struct {
	calls int
	err   error
}

func (c *countingFetcher) Fetch(_ context.Context, req archive.FetchRequest) (archive.FetchResponse, error) {
	c.calls++
	if c.err != nil {
		return archive.FetchResponse{URL: req.URL}, c.err
	}
	return archive.FetchResponse{URL: req.URL, StatusCode: 200, Body: []byte("ok")}, nil
}

func TestLimiter_Wait(t *testing.T) {
	// 10 RPS with burst 1 means one token every 100ms.
	l := New(Config{DefaultRPS: 10, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://test.com"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://test.com/other"))
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestLimiter_DomainsAreIndependent(t *testing.T) {
	l := New(Config{DefaultRPS: 1, DefaultBurst: 1})
	ctx := context.Background()

	require.NoError(t, l.Wait(ctx, "https://a.example.com/x"))

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "https://b.example.com/x"))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_Unlimited(t *testing.T) {
	l := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for range 50 {
		require.NoError(t, l.Wait(ctx, "https://example.com"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestLimiter_ContextCanceled(t *testing.T) {
	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://slow.example.com"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx, "https://slow.example.com"))
}

func TestWrap(t *testing.T) {
	next := &countingFetcher{}
	f := New(Config{}).Wrap(next)

	resp, err := f.Fetch(context.Background(), archive.FetchRequest{URL: "https://example.com/a"})
	require.NoError(t, err)
	assert.Equal(t, 1, next.calls)
	assert.Equal(t, "ok", string(resp.Body))
}

func TestWrap_CanceledContextSkipsFetch(t *testing.T) {
	next := &countingFetcher{}
	l := New(Config{DefaultRPS: 0.1, DefaultBurst: 1})
	require.NoError(t, l.Wait(context.Background(), "https://example.com"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Wrap(next).Fetch(ctx, archive.FetchRequest{URL: "https://example.com/b"})
	require.ErrorIs(t, err, archive.ErrFetch)
	assert.Zero(t, next.calls)
}

func TestWrap_PropagatesFetchError(t *testing.T) {
	next := &countingFetcher{err: errors.Join(archive.ErrFetch, errors.New("boom"))}
	_, err := New(Config{}).Wrap(next).Fetch(context.Background(), archive.FetchRequest{URL: "https://example.com"})
	require.ErrorIs(t, err, archive.ErrFetch)
}
