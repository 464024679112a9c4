package data

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeedge/signalcore/internal/domain"
)

type stubSource struct {
	mu    sync.Mutex
	bars  []domain.Bar
	err   error
	calls int
}

func (s *stubSource) Name() string { return "stub" }

func (s *stubSource) Bars(_ context.Context, _ string, _ int) ([]domain.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.bars, nil
}

func (s *stubSource) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func recentBars(n int, last time.Time) []domain.Bar {
	bars := make([]domain.Bar, n)
	for i := range bars {
		bars[i] = domain.Bar{
			Time:   last.AddDate(0, 0, i-n+1),
			Open:   100, High: 101, Low: 99, Close: 100,
			Volume: 1_000_000,
		}
	}
	return bars
}

func newTestFetcher(src Source) *Fetcher {
	cfg := DefaultConfig()
	cfg.RatePerSec = 1000
	cfg.Burst = 1000
	return NewFetcher(cfg, src, nil)
}

func TestFetcher_ServesFreshBars(t *testing.T) {
	src := &stubSource{bars: recentBars(10, time.Now().UTC())}
	f := newTestFetcher(src)

	bars, err := f.Bars(context.Background(), "AAPL")
	require.NoError(t, err)
	assert.Len(t, bars, 10)
}

func TestFetcher_CacheHitSkipsSource(t *testing.T) {
	src := &stubSource{bars: recentBars(10, time.Now().UTC())}
	f := newTestFetcher(src)

	_, err := f.Bars(context.Background(), "AAPL")
	require.NoError(t, err)
	_, err = f.Bars(context.Background(), "AAPL")
	require.NoError(t, err)

	assert.Equal(t, 1, src.callCount())
}

func TestFetcher_StaleBarsRejected(t *testing.T) {
	src := &stubSource{bars: recentBars(10, time.Now().UTC().Add(-72*time.Hour))}
	f := newTestFetcher(src)

	_, err := f.Bars(context.Background(), "AAPL")
	assert.ErrorIs(t, err, domain.ErrStale)
}

func TestFetcher_FreshnessUsesInjectedClock(t *testing.T) {
	last := time.Date(2026, 8, 28, 0, 0, 0, 0, time.UTC)
	src := &stubSource{bars: recentBars(10, last)}
	f := newTestFetcher(src)

	f.now = func() time.Time { return last.Add(47 * time.Hour) }
	_, err := f.Bars(context.Background(), "AAPL")
	assert.NoError(t, err)

	f.cache = newBarCache(nil, f.cfg.GetCacheTTL())
	f.now = func() time.Time { return last.Add(49 * time.Hour) }
	_, err = f.Bars(context.Background(), "AAPL")
	assert.ErrorIs(t, err, domain.ErrStale)
}

func TestFetcher_EmptyHistory(t *testing.T) {
	src := &stubSource{bars: nil}
	f := newTestFetcher(src)

	_, err := f.Bars(context.Background(), "NEWIPO")
	assert.ErrorIs(t, err, domain.ErrInsufficientHistory)
}

func TestFetcher_UpstreamFailure(t *testing.T) {
	src := &stubSource{err: errors.New("connection refused")}
	f := newTestFetcher(src)

	_, err := f.Bars(context.Background(), "AAPL")
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
}

func TestFetcher_BreakerTripsAfterRepeatedFailures(t *testing.T) {
	src := &stubSource{err: errors.New("connection refused")}
	f := newTestFetcher(src)

	for i := 0; i < 6; i++ {
		_, err := f.Bars(context.Background(), "AAPL")
		assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	}

	calls := src.callCount()
	_, err := f.Bars(context.Background(), "AAPL")
	assert.ErrorIs(t, err, domain.ErrSourceUnavailable)
	assert.Equal(t, calls, src.callCount(), "open breaker must not reach the source")
}

func TestMemCache_Expiry(t *testing.T) {
	c := newMemCache(20 * time.Millisecond)
	bars := recentBars(3, time.Now().UTC())

	c.put("AAPL", bars)
	got, ok := c.get("AAPL")
	require.True(t, ok)
	assert.Len(t, got, 3)

	time.Sleep(30 * time.Millisecond)
	_, ok = c.get("AAPL")
	assert.False(t, ok)

	_, ok = c.get("MSFT")
	assert.False(t, ok)
}
