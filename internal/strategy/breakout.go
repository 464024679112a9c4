// Package strategy supplies candidate signals to the scan pipeline. The
// governance core treats strategies as interchangeable; this package ships
// a momentum breakout as the built-in generator.
package strategy

import (
	"context"

	"github.com/tradeedge/signalcore/internal/domain"
	"github.com/tradeedge/signalcore/internal/regime"
)

// SectorLookup maps symbols to sectors. Unknown symbols map to "".
type SectorLookup func(symbol string) string

// Breakout generates long candidates when price presses against the recent
// high with an intact trend. A quiet or hostile tape yields no candidate.
type Breakout struct {
	lookback int
	sectors  SectorLookup
	bars     BarReader
}

// BarReader re-reads the bar history the pipeline already fetched. Served
// from cache, so the second read is cheap.
type BarReader interface {
	Bars(ctx context.Context, symbol string) ([]domain.Bar, error)
}

func NewBreakout(bars BarReader, sectors SectorLookup) *Breakout {
	if sectors == nil {
		sectors = func(string) string { return "" }
	}
	return &Breakout{lookback: 20, sectors: sectors, bars: bars}
}

// Candidate returns at most one long breakout candidate for the symbol.
func (b *Breakout) Candidate(ctx context.Context, symbol string, fv domain.FeatureVector, est regime.Estimate) (*domain.CandidateSignal, error) {
	bars, err := b.bars.Bars(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if len(bars) < b.lookback+1 {
		return nil, nil
	}

	last := bars[len(bars)-1]
	window := bars[len(bars)-1-b.lookback : len(bars)-1]

	var high, low float64
	low = window[0].Low
	for _, bar := range window {
		if bar.High > high {
			high = bar.High
		}
		if bar.Low < low {
			low = bar.Low
		}
	}

	// Setup: close within 2% of the lookback high, trending up.
	if last.Close < high*0.98 || fv.EMASlope <= 0 {
		return nil, nil
	}

	entryLow := high
	entryHigh := high * 1.005
	entry := (entryLow + entryHigh) / 2
	stop := low
	risk := entry - stop
	if risk <= 0 {
		return nil, nil
	}

	return &domain.CandidateSignal{
		Symbol:    symbol,
		Strategy:  "momentum_breakout",
		Class:     "stock",
		Sector:    b.sectors(symbol),
		Direction: domain.Long,
		EntryLow:  entryLow,
		EntryHigh: entryHigh,
		StopLoss:  stop,
		Targets:   []float64{entry + 2.5*risk, entry + 4*risk},

		TrendAligned:   fv.EMASlope > 0 && fv.TrendStrength >= 20,
		SectorMomentum: 1.0,
	}, nil
}
