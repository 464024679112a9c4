package risk

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeedge/signalcore/internal/domain"
)

func TestBook_InitialState(t *testing.T) {
	b := NewBook(100_000)
	s, err := b.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), s.Version)
	assert.Equal(t, 100_000.0, s.TotalCapital)
	assert.Equal(t, 100_000.0, s.PeakCapital)
	assert.Equal(t, 100_000.0, s.CurrentCapital)
	assert.Empty(t, s.Positions)
}

func TestBook_SnapshotIsolation(t *testing.T) {
	b := NewBook(100_000)
	b.Open(domain.Position{Symbol: "AAPL", Sector: "tech", RiskR: 1, Value: 10_000})

	s1, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	s1.Positions[0].Symbol = "MUTATED"

	s2, err := b.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AAPL", s2.Positions[0].Symbol)
}

func TestBook_OpenBumpsVersion(t *testing.T) {
	b := NewBook(100_000)
	b.Open(domain.Position{Symbol: "AAPL"})
	b.Open(domain.Position{Symbol: "MSFT"})

	s, _ := b.Snapshot(context.Background())
	assert.Equal(t, int64(3), s.Version)
	assert.Len(t, s.Positions, 2)
}

func TestBook_CloseSettlesPnL(t *testing.T) {
	b := NewBook(100_000)
	b.Open(domain.Position{Symbol: "AAPL", RiskR: 1})
	b.Close("AAPL", 2.5)

	s, _ := b.Snapshot(context.Background())
	assert.Empty(t, s.Positions)
	assert.Equal(t, 2.5, s.DailyPnLR)
	assert.Equal(t, 2.5, s.WeeklyPnLR)
	// 1R = 1% of total capital.
	assert.Equal(t, 102_500.0, s.CurrentCapital)
	assert.Equal(t, 102_500.0, s.PeakCapital)
	assert.Zero(t, s.ConsecutiveLosses)
}

func TestBook_LossStreak(t *testing.T) {
	b := NewBook(100_000)
	for _, sym := range []string{"A", "B", "C"} {
		b.Open(domain.Position{Symbol: sym, RiskR: 1})
	}

	b.Close("A", -1)
	b.Close("B", -1)
	s, _ := b.Snapshot(context.Background())
	assert.Equal(t, 2, s.ConsecutiveLosses)

	b.Close("C", 2)
	s, _ = b.Snapshot(context.Background())
	assert.Zero(t, s.ConsecutiveLosses)
	assert.Equal(t, 98_000.0+2_000.0, s.CurrentCapital)
	// Peak never dropped below the starting capital.
	assert.Equal(t, 100_000.0, s.PeakCapital)
}

func TestBook_BreakevenKeepsStreak(t *testing.T) {
	b := NewBook(100_000)
	b.Open(domain.Position{Symbol: "A", RiskR: 1})
	b.Open(domain.Position{Symbol: "B", RiskR: 1})

	b.Close("A", -1)
	b.Close("B", 0)

	s, _ := b.Snapshot(context.Background())
	assert.Equal(t, 1, s.ConsecutiveLosses)
}

func TestBook_DailyClockRollsAtMidnightUTC(t *testing.T) {
	b := NewBook(100_000)
	// Wednesday mid-week, so the weekly counter survives the day roll.
	current := time.Date(2026, 8, 26, 15, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return current }
	b.day = startOfDay(current)
	b.week = startOfWeek(current)

	b.Open(domain.Position{Symbol: "A", RiskR: 1})
	b.Close("A", -2)

	s, _ := b.Snapshot(context.Background())
	assert.Equal(t, -2.0, s.DailyPnLR)
	assert.Equal(t, -2.0, s.WeeklyPnLR)

	current = current.Add(24 * time.Hour)
	b.Open(domain.Position{Symbol: "B", RiskR: 1})

	s, _ = b.Snapshot(context.Background())
	assert.Zero(t, s.DailyPnLR)
	assert.Equal(t, -2.0, s.WeeklyPnLR)
}

func TestBook_WeeklyClockRollsOnMonday(t *testing.T) {
	b := NewBook(100_000)
	// Friday.
	current := time.Date(2026, 8, 28, 15, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return current }
	b.day = startOfDay(current)
	b.week = startOfWeek(current)

	b.Open(domain.Position{Symbol: "A", RiskR: 1})
	b.Close("A", -3)

	// Following Monday.
	current = time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	b.Open(domain.Position{Symbol: "B", RiskR: 1})

	s, _ := b.Snapshot(context.Background())
	assert.Zero(t, s.DailyPnLR)
	assert.Zero(t, s.WeeklyPnLR)
}

func TestBook_SetRegimeTracksTransitions(t *testing.T) {
	b := NewBook(100_000)
	b.SetRegime("TRENDING")
	s, _ := b.Snapshot(context.Background())
	v := s.Version
	assert.Equal(t, "TRENDING", s.PrevRegime)

	// Same regime again is not a state change.
	b.SetRegime("TRENDING")
	s, _ = b.Snapshot(context.Background())
	assert.Equal(t, v, s.Version)

	b.SetRegime("RANGING")
	s, _ = b.Snapshot(context.Background())
	assert.Equal(t, "RANGING", s.PrevRegime)
	assert.Equal(t, v+1, s.Version)
}

func TestStartOfWeek(t *testing.T) {
	// Sunday 2026-08-30 belongs to the week starting Monday 2026-08-24.
	sunday := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC), startOfWeek(sunday))

	monday := time.Date(2026, 8, 24, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, startOfWeek(monday))
}
