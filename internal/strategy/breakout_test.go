package strategy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeedge/signalcore/internal/domain"
	"github.com/tradeedge/signalcore/internal/regime"
)

type stubBars struct {
	bars []domain.Bar
	err  error
}

func (s stubBars) Bars(context.Context, string) ([]domain.Bar, error) {
	return s.bars, s.err
}

func barsFromCloses(closes []float64) []domain.Bar {
	last := time.Now().UTC()
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Time:   last.AddDate(0, 0, i-len(closes)+1),
			Open:   c,
			High:   c * 1.01,
			Low:    c * 0.99,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	return bars
}

// risingCloses climbs 1% per bar so the last close presses the window high.
func risingCloses(n int) []float64 {
	closes := make([]float64, n)
	p := 100.0
	for i := range closes {
		closes[i] = p
		p *= 1.01
	}
	return closes
}

func trendingFeatures() domain.FeatureVector {
	return domain.FeatureVector{TrendStrength: 30, EMASlope: 0.02, BarCount: 30}
}

func TestBreakout_EmitsLongCandidate(t *testing.T) {
	closes := risingCloses(30)
	b := NewBreakout(stubBars{bars: barsFromCloses(closes)}, func(string) string { return "tech" })

	c, err := b.Candidate(context.Background(), "AAPL", trendingFeatures(), regime.Estimate{})
	require.NoError(t, err)
	require.NotNil(t, c)

	assert.Equal(t, "AAPL", c.Symbol)
	assert.Equal(t, "momentum_breakout", c.Strategy)
	assert.Equal(t, "tech", c.Sector)
	assert.Equal(t, domain.Long, c.Direction)
	assert.True(t, c.TrendAligned)

	// Entry band sits on the 20-bar high, stop at the window low.
	windowHigh := closes[28] * 1.01
	windowLow := closes[9] * 0.99
	assert.InDelta(t, windowHigh, c.EntryLow, 1e-9)
	assert.InDelta(t, windowHigh*1.005, c.EntryHigh, 1e-9)
	assert.InDelta(t, windowLow, c.StopLoss, 1e-9)

	require.Len(t, c.Targets, 2)
	entry := c.Entry()
	risk := entry - c.StopLoss
	assert.InDelta(t, entry+2.5*risk, c.Targets[0], 1e-9)
	assert.InDelta(t, entry+4*risk, c.Targets[1], 1e-9)
	assert.GreaterOrEqual(t, c.RiskReward(), 2.0)
}

func TestBreakout_NoCandidateFarFromHigh(t *testing.T) {
	closes := risingCloses(30)
	closes[29] = closes[28] * 0.90 // last bar sells off hard
	b := NewBreakout(stubBars{bars: barsFromCloses(closes)}, nil)

	c, err := b.Candidate(context.Background(), "AAPL", trendingFeatures(), regime.Estimate{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestBreakout_NoCandidateAgainstTrend(t *testing.T) {
	b := NewBreakout(stubBars{bars: barsFromCloses(risingCloses(30))}, nil)
	fv := trendingFeatures()
	fv.EMASlope = -0.01

	c, err := b.Candidate(context.Background(), "AAPL", fv, regime.Estimate{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestBreakout_TrendAlignmentNeedsStrength(t *testing.T) {
	b := NewBreakout(stubBars{bars: barsFromCloses(risingCloses(30))}, nil)
	fv := trendingFeatures()
	fv.TrendStrength = 10

	c, err := b.Candidate(context.Background(), "AAPL", fv, regime.Estimate{})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.False(t, c.TrendAligned)
}

func TestBreakout_ShortHistory(t *testing.T) {
	b := NewBreakout(stubBars{bars: barsFromCloses(risingCloses(15))}, nil)

	c, err := b.Candidate(context.Background(), "AAPL", trendingFeatures(), regime.Estimate{})
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestBreakout_PropagatesFetchError(t *testing.T) {
	wantErr := errors.New("source down")
	b := NewBreakout(stubBars{err: wantErr}, nil)

	_, err := b.Candidate(context.Background(), "AAPL", trendingFeatures(), regime.Estimate{})
	assert.ErrorIs(t, err, wantErr)
}

func TestBreakout_NilSectorLookup(t *testing.T) {
	b := NewBreakout(stubBars{bars: barsFromCloses(risingCloses(30))}, nil)

	c, err := b.Candidate(context.Background(), "AAPL", trendingFeatures(), regime.Estimate{})
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Empty(t, c.Sector)
}
