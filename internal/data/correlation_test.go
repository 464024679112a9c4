package data

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeedge/signalcore/internal/domain"
)

func barsFromCloses(closes []float64) []domain.Bar {
	last := time.Now().UTC()
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Time:   last.AddDate(0, 0, i-len(closes)+1),
			Open:   c, High: c, Low: c, Close: c,
			Volume: 1_000_000,
		}
	}
	return bars
}

func TestPearson_PerfectPositive(t *testing.T) {
	a := []float64{0.01, 0.02, -0.01, 0.03, -0.02}
	b := []float64{0.02, 0.04, -0.02, 0.06, -0.04}
	assert.InDelta(t, 1.0, pearson(a, b), 1e-9)
}

func TestPearson_PerfectNegative(t *testing.T) {
	a := []float64{0.01, 0.02, -0.01, 0.03, -0.02}
	b := []float64{-0.01, -0.02, 0.01, -0.03, 0.02}
	assert.InDelta(t, -1.0, pearson(a, b), 1e-9)
}

func TestPearson_ConstantSeriesIsZero(t *testing.T) {
	a := []float64{0.01, 0.02, 0.03}
	b := []float64{0.01, 0.01, 0.01}
	assert.Zero(t, pearson(a, b))
}

func TestPearson_UnequalLengthsUseTail(t *testing.T) {
	a := []float64{0.5, 0.01, 0.02, -0.01}
	b := []float64{0.01, 0.02, -0.01}
	assert.InDelta(t, 1.0, pearson(a, b), 1e-9)
}

func TestPearson_TooShort(t *testing.T) {
	assert.Zero(t, pearson([]float64{0.01}, []float64{0.02}))
	assert.Zero(t, pearson(nil, nil))
}

func TestDailyReturns(t *testing.T) {
	bars := barsFromCloses([]float64{100, 102, 101, 101})
	rets := dailyReturns(bars, 60)
	require.Len(t, rets, 3)
	assert.InDelta(t, 0.02, rets[0], 1e-9)
	assert.InDelta(t, -1.0/102, rets[1], 1e-9)
	assert.Zero(t, rets[2])
}

func TestDailyReturns_LookbackTruncates(t *testing.T) {
	closes := make([]float64, 100)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	rets := dailyReturns(barsFromCloses(closes), 10)
	assert.Len(t, rets, 10)
}

func TestCorrelator_SameSymbolIsOne(t *testing.T) {
	src := &stubSource{bars: barsFromCloses([]float64{100, 101, 102, 101, 103})}
	c := NewCorrelator(newTestFetcher(src))

	corr, err := c.MaxCorrelation(context.Background(), "AAPL", []string{"AAPL"})
	require.NoError(t, err)
	assert.Equal(t, 1.0, corr)
}

func TestCorrelator_IdenticalHistories(t *testing.T) {
	// Same stub behind every symbol, so the histories match exactly.
	src := &stubSource{bars: barsFromCloses([]float64{100, 101, 99, 103, 102, 105})}
	c := NewCorrelator(newTestFetcher(src))

	corr, err := c.MaxCorrelation(context.Background(), "AAPL", []string{"MSFT"})
	require.NoError(t, err)
	assert.InDelta(t, 1.0, corr, 1e-9)
}

func TestCorrelator_NoOpenPositions(t *testing.T) {
	src := &stubSource{bars: barsFromCloses([]float64{100, 101, 99, 103})}
	c := NewCorrelator(newTestFetcher(src))

	corr, err := c.MaxCorrelation(context.Background(), "AAPL", nil)
	require.NoError(t, err)
	assert.Zero(t, corr)
}
