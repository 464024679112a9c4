package domain

import "time"

// Regime classifies current market behavior. The ordinal order is load-bearing:
// dominant-label ties break toward the lower ordinal.
type Regime int

const (
	Trending Regime = iota
	Ranging
	Volatile
	Dead
)

// Regimes lists all regimes in tie-break order.
var Regimes = [4]Regime{Trending, Ranging, Volatile, Dead}

func (r Regime) String() string {
	switch r {
	case Trending:
		return "TRENDING"
	case Ranging:
		return "RANGING"
	case Volatile:
		return "VOLATILE"
	case Dead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// ParseRegime maps a regime label back to its enum value. Unknown labels
// resolve to Ranging, the most defensive assumption short of Dead.
func ParseRegime(s string) Regime {
	switch s {
	case "TRENDING":
		return Trending
	case "VOLATILE":
		return Volatile
	case "DEAD":
		return Dead
	default:
		return Ranging
	}
}

// Direction is the side of a candidate signal.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Bar is a single OHLCV bar, monotonically increasing in time within a series.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// FeatureVector is the per-instrument, per-cycle snapshot consumed by the
// regime classifier and the risk governor. Immutable once computed.
type FeatureVector struct {
	TrendStrength float64 `json:"trend_strength"` // ADX-style 0-100
	Choppiness    float64 `json:"choppiness"`     // 0-100, high = consolidation
	Persistence   float64 `json:"persistence"`    // Hurst exponent, 0.5 = random walk
	VolPercentile float64 `json:"vol_percentile"` // ATR rank vs trailing year, 0-100
	EMASlope      float64 `json:"ema_slope"`      // 10-bar relative slope of EMA20
	VolumeRatio   float64 `json:"volume_ratio"`   // last bar vs 20-bar average
	WorstGapPct   float64 `json:"worst_gap_pct"`  // worst overnight gap %, trailing year
	BarCount      int     `json:"bar_count"`
}

// CandidateSignal is a directional trade idea supplied by a strategy
// collaborator. Read-only input to the governance pipeline.
type CandidateSignal struct {
	Symbol    string    `json:"symbol"`
	Strategy  string    `json:"strategy"`
	Class     string    `json:"class"` // instrument class, e.g. "stock" or "index"
	Sector    string    `json:"sector"`
	Direction Direction `json:"direction"`
	EntryLow  float64   `json:"entry_low"`
	EntryHigh float64   `json:"entry_high"`
	StopLoss  float64   `json:"stop_loss"`
	Targets   []float64 `json:"targets"`

	// Strategy-supplied technicals consumed by the scorer.
	TrendAligned   bool    `json:"trend_aligned"`
	SectorMomentum float64 `json:"sector_momentum"`
}

// Entry returns the candidate's reference entry price (mid of the entry band).
func (c CandidateSignal) Entry() float64 {
	return (c.EntryLow + c.EntryHigh) / 2
}

// RiskReward computes the ratio of the nearest target's reward to the stop
// distance. Returns 0 when the candidate has no target or a degenerate stop.
func (c CandidateSignal) RiskReward() float64 {
	if len(c.Targets) == 0 {
		return 0
	}
	entry := c.Entry()
	risk := entry - c.StopLoss
	reward := c.Targets[0] - entry
	if c.Direction == Short {
		risk = c.StopLoss - entry
		reward = entry - c.Targets[0]
	}
	if risk <= 0 {
		return 0
	}
	return reward / risk
}

// StopDistancePct is the stop-loss distance as a percentage of entry.
func (c CandidateSignal) StopDistancePct() float64 {
	entry := c.Entry()
	if entry <= 0 {
		return 0
	}
	d := entry - c.StopLoss
	if d < 0 {
		d = -d
	}
	return d / entry * 100
}

// ExpectancyKey identifies a rolling expectancy window.
type ExpectancyKey struct {
	Strategy string `json:"strategy"`
	Regime   string `json:"regime"`
	Class    string `json:"class"`
}

// TradeOutcome is a realized trade result delivered by the bookkeeping
// collaborator when a position closes.
type TradeOutcome struct {
	Key       ExpectancyKey `json:"key"`
	Symbol    string        `json:"symbol"`
	Won       bool          `json:"won"`
	RMultiple float64       `json:"r_multiple"`
	ClosedAt  time.Time     `json:"closed_at"`
}

// VersionContract pins the component versions that produced a decision. It is
// embedded in every audit entry so decisions stay attributable after upgrades.
type VersionContract struct {
	Engine    string `json:"engine"`
	Strategy  string `json:"strategy"`
	RiskRules string `json:"risk_rules"`
}

// CurrentVersions is the version contract compiled into this binary.
var CurrentVersions = VersionContract{
	Engine:    "2.0.0",
	Strategy:  "1.1.0",
	RiskRules: "2.0.0",
}
