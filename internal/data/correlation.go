package data

import (
	"context"
	"math"

	"github.com/tradeedge/signalcore/internal/domain"
)

// correlationLookback is the number of daily returns compared.
const correlationLookback = 60

// Correlator computes pairwise return correlations from cached bar history.
// It satisfies the risk governor's CorrelationProvider contract.
type Correlator struct {
	fetcher *Fetcher
}

func NewCorrelator(f *Fetcher) *Correlator {
	return &Correlator{fetcher: f}
}

// MaxCorrelation returns the highest absolute Pearson correlation between
// the candidate's daily returns and each open symbol's. Symbols whose
// history cannot be loaded are skipped rather than failing the check.
func (c *Correlator) MaxCorrelation(ctx context.Context, symbol string, open []string) (float64, error) {
	base, err := c.fetcher.Bars(ctx, symbol)
	if err != nil {
		return 0, err
	}
	baseReturns := dailyReturns(base, correlationLookback)
	if len(baseReturns) < 2 {
		return 0, nil
	}

	var maxCorr float64
	for _, other := range open {
		if other == symbol {
			return 1, nil
		}
		bars, err := c.fetcher.Bars(ctx, other)
		if err != nil {
			continue
		}
		r := pearson(baseReturns, dailyReturns(bars, correlationLookback))
		if a := math.Abs(r); a > maxCorr {
			maxCorr = a
		}
	}
	return maxCorr, nil
}

func dailyReturns(bars []domain.Bar, limit int) []float64 {
	if len(bars) > limit+1 {
		bars = bars[len(bars)-limit-1:]
	}
	out := make([]float64, 0, len(bars))
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev == 0 {
			continue
		}
		out = append(out, (bars[i].Close-prev)/prev)
	}
	return out
}

// pearson truncates both series to the shorter length before correlating.
func pearson(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n < 2 {
		return 0
	}
	a, b = a[len(a)-n:], b[len(b)-n:]

	var sumA, sumB float64
	for i := 0; i < n; i++ {
		sumA += a[i]
		sumB += b[i]
	}
	meanA, meanB := sumA/float64(n), sumB/float64(n)

	var cov, varA, varB float64
	for i := 0; i < n; i++ {
		da, db := a[i]-meanA, b[i]-meanB
		cov += da * db
		varA += da * da
		varB += db * db
	}
	if varA == 0 || varB == 0 {
		return 0
	}
	return cov / math.Sqrt(varA*varB)
}
