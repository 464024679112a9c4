// Package expectancy maintains rolling, confidence-weighted win/loss
// statistics keyed by (strategy, regime, instrument class). Reads during a
// scan cycle observe atomic snapshots; writes arrive from asynchronous
// trade-closure events.
package expectancy

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradeedge/signalcore/internal/domain"
)

// Estimate is the current read of one rolling window.
type Estimate struct {
	Key        domain.ExpectancyKey `json:"key"`
	Samples    int                  `json:"samples"`
	WinRate    float64              `json:"win_rate"`
	AvgWinR    float64              `json:"avg_win_r"`
	AvgLossR   float64              `json:"avg_loss_r"`
	Expectancy float64              `json:"expectancy"`
	Confidence float64              `json:"confidence"`
	Weighted   float64              `json:"weighted_expectancy"`
	Adequate   bool                 `json:"sample_size_adequate"`
}

// Journal is the durable log behind the in-memory windows. Windows are the
// source of truth at runtime; the journal replays them across restarts.
type Journal interface {
	Append(ctx context.Context, outcome domain.TradeOutcome) error
	RecentByKey(ctx context.Context, window int) (map[domain.ExpectancyKey][]domain.TradeOutcome, error)
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// Config tunes the tracker's window and sample thresholds.
type Config struct {
	Window     int `yaml:"window"`      // rolling window size W
	MinSamples int `yaml:"min_samples"` // below this, defaults are returned
	FullSample int `yaml:"full_sample"` // confidence reaches 1.0 here
}

// DefaultConfig matches the production calibration: 50-trade windows,
// defaults under 20 samples, full confidence at 50.
func DefaultConfig() Config {
	return Config{Window: 50, MinSamples: 20, FullSample: 50}
}

// Validate rejects thresholds that would break the confidence ramp.
func (c Config) Validate() error {
	if c.MinSamples > c.Window {
		return fmt.Errorf("min_samples %d exceeds window %d", c.MinSamples, c.Window)
	}
	if c.FullSample > c.Window {
		return fmt.Errorf("full_sample %d exceeds window %d", c.FullSample, c.Window)
	}
	return nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Window <= 0 {
		c.Window = def.Window
	}
	if c.MinSamples <= 0 {
		c.MinSamples = def.MinSamples
	}
	if c.FullSample <= 0 {
		c.FullSample = def.FullSample
	}
}

// Tracker holds the rolling windows. Safe for concurrent use: Estimate takes
// a read lock over immutable window slices, Record swaps in a fresh slice
// under the write lock, so readers never see a partially updated window.
type Tracker struct {
	cfg     Config
	journal Journal

	mu      sync.RWMutex
	windows map[domain.ExpectancyKey][]domain.TradeOutcome
}

// NewTracker builds a tracker. journal may be nil for ephemeral use (tests).
func NewTracker(cfg Config, journal Journal) *Tracker {
	cfg.applyDefaults()
	return &Tracker{
		cfg:     cfg,
		journal: journal,
		windows: make(map[domain.ExpectancyKey][]domain.TradeOutcome),
	}
}

// Restore replays the last W outcomes per key from the journal.
func (t *Tracker) Restore(ctx context.Context) error {
	if t.journal == nil {
		return nil
	}
	windows, err := t.journal.RecentByKey(ctx, t.cfg.Window)
	if err != nil {
		return fmt.Errorf("failed to restore expectancy windows: %w", err)
	}
	t.mu.Lock()
	t.windows = windows
	t.mu.Unlock()

	log.Info().Int("keys", len(windows)).Msg("Expectancy windows restored")
	return nil
}

// Record appends a realized trade outcome to its key's window, evicting the
// oldest entry once the window exceeds W. The journal write happens outside
// the lock; a journal failure is logged, not fatal, since the in-memory
// window already advanced.
func (t *Tracker) Record(ctx context.Context, outcome domain.TradeOutcome) {
	t.mu.Lock()
	old := t.windows[outcome.Key]
	// Copy-on-write: readers may still hold the old slice.
	next := make([]domain.TradeOutcome, 0, len(old)+1)
	next = append(next, old...)
	next = append(next, outcome)
	if len(next) > t.cfg.Window {
		next = next[len(next)-t.cfg.Window:]
	}
	t.windows[outcome.Key] = next
	t.mu.Unlock()

	if t.journal != nil {
		if err := t.journal.Append(ctx, outcome); err != nil {
			log.Error().Err(err).
				Str("strategy", outcome.Key.Strategy).
				Str("regime", outcome.Key.Regime).
				Msg("Failed to journal trade outcome")
		}
	}
}

// Estimate computes the current statistics for a key from the live window.
// Below MinSamples it returns the configured conservative defaults (zero
// expectancy, zero confidence).
func (t *Tracker) Estimate(key domain.ExpectancyKey) Estimate {
	t.mu.RLock()
	window := t.windows[key]
	t.mu.RUnlock()

	n := len(window)
	if n < t.cfg.MinSamples {
		return Estimate{
			Key:      key,
			Samples:  n,
			WinRate:  0.40,
			AvgWinR:  2.0,
			AvgLossR: 1.0,
		}
	}

	var wins int
	var winSum, lossSum float64
	for _, o := range window {
		if o.Won {
			wins++
			winSum += o.RMultiple
		} else {
			r := o.RMultiple
			if r < 0 {
				r = -r
			}
			lossSum += r
		}
	}

	winRate := float64(wins) / float64(n)
	avgWin := 2.0
	if wins > 0 {
		avgWin = winSum / float64(wins)
	}
	avgLoss := 1.0
	if losses := n - wins; losses > 0 {
		avgLoss = lossSum / float64(losses)
	}

	expectancy := winRate*avgWin - (1-winRate)*avgLoss
	confidence := float64(n) / float64(t.cfg.FullSample)
	if confidence > 1 {
		confidence = 1
	}

	return Estimate{
		Key:        key,
		Samples:    n,
		WinRate:    winRate,
		AvgWinR:    avgWin,
		AvgLossR:   avgLoss,
		Expectancy: expectancy,
		Confidence: confidence,
		Weighted:   expectancy * confidence,
		Adequate:   true,
	}
}

// Snapshot returns estimates for every key with at least one sample, for
// display and reporting.
func (t *Tracker) Snapshot() []Estimate {
	t.mu.RLock()
	keys := make([]domain.ExpectancyKey, 0, len(t.windows))
	for k := range t.windows {
		keys = append(keys, k)
	}
	t.mu.RUnlock()

	out := make([]Estimate, 0, len(keys))
	for _, k := range keys {
		out = append(out, t.Estimate(k))
	}
	return out
}

// Sweep prunes journal rows older than the retention horizon.
func (t *Tracker) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	if t.journal == nil {
		return 0, nil
	}
	n, err := t.journal.Prune(ctx, time.Now().Add(-retention))
	if err != nil {
		return 0, fmt.Errorf("expectancy journal prune failed: %w", err)
	}
	if n > 0 {
		log.Info().Int64("rows", n).Msg("Pruned old trade outcomes")
	}
	return n, nil
}
