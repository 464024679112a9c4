package risk

import (
	"context"
	"sync"
	"time"

	"github.com/tradeedge/signalcore/internal/domain"
)

// Book is the in-memory bookkeeping collaborator. It owns all portfolio
// mutations and hands out versioned snapshots; the governor never writes.
type Book struct {
	mu    sync.RWMutex
	state domain.PortfolioState
	now   func() time.Time
	day   time.Time
	week  time.Time
}

// NewBook starts a book at the given capital with an empty position set.
func NewBook(capital float64) *Book {
	b := &Book{
		state: domain.PortfolioState{
			Version:        1,
			TotalCapital:   capital,
			PeakCapital:    capital,
			CurrentCapital: capital,
		},
		now: time.Now,
	}
	b.day = startOfDay(b.now().UTC())
	b.week = startOfWeek(b.now().UTC())
	return b
}

// Snapshot returns a deep copy so callers can never observe a mutation
// mid-evaluation.
func (b *Book) Snapshot(_ context.Context) (domain.PortfolioState, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := b.state
	s.Positions = append([]domain.Position(nil), b.state.Positions...)
	return s, nil
}

// Open records an accepted position.
func (b *Book) Open(p domain.Position) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollClocks()
	b.state.Positions = append(b.state.Positions, p)
	b.state.Version++
}

// Close settles a position by symbol and folds its result into the PnL
// counters and the loss streak.
func (b *Book) Close(symbol string, resultR float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rollClocks()

	kept := b.state.Positions[:0]
	for _, p := range b.state.Positions {
		if p.Symbol != symbol {
			kept = append(kept, p)
		}
	}
	b.state.Positions = kept

	b.state.DailyPnLR += resultR
	b.state.WeeklyPnLR += resultR
	if resultR < 0 {
		b.state.ConsecutiveLosses++
	} else if resultR > 0 {
		b.state.ConsecutiveLosses = 0
	}

	riskPerR := b.state.TotalCapital * 0.01
	b.state.CurrentCapital += resultR * riskPerR
	if b.state.CurrentCapital > b.state.PeakCapital {
		b.state.PeakCapital = b.state.CurrentCapital
	}
	b.state.Version++
}

// SetRegime records the regime observed this cycle so the next cycle can
// detect transitions.
func (b *Book) SetRegime(regime string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state.PrevRegime != regime {
		b.state.PrevRegime = regime
		b.state.Version++
	}
}

// rollClocks resets the daily and weekly counters across boundaries.
// Callers hold the write lock.
func (b *Book) rollClocks() {
	now := b.now().UTC()
	if d := startOfDay(now); d.After(b.day) {
		b.day = d
		b.state.DailyPnLR = 0
		b.state.Version++
	}
	if w := startOfWeek(now); w.After(b.week) {
		b.week = w
		b.state.WeeklyPnLR = 0
		b.state.Version++
	}
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func startOfWeek(t time.Time) time.Time {
	d := startOfDay(t)
	offset := (int(d.Weekday()) + 6) % 7 // Monday start
	return d.AddDate(0, 0, -offset)
}
