package domain

import "time"

// ReasonCode is the single canonical rejection reason attached to a rejected
// candidate. The evaluation order in the risk governor is fixed, so two
// candidates failing different rules always report deterministically.
type ReasonCode string

const (
	// Position-level gate, in evaluation order.
	ReasonPoorRiskReward     ReasonCode = "POOR_RISK_REWARD"
	ReasonStopTooWide        ReasonCode = "STOP_TOO_WIDE"
	ReasonGapRiskExceeded    ReasonCode = "GAP_RISK_EXCEEDED"
	ReasonNegativeExpectancy ReasonCode = "NEGATIVE_EXPECTANCY"

	// Portfolio-level gate, in evaluation order.
	ReasonDailyLossLimit       ReasonCode = "DAILY_LOSS_LIMIT"
	ReasonWeeklyLossLimit      ReasonCode = "WEEKLY_LOSS_LIMIT"
	ReasonCircuitBreaker       ReasonCode = "CIRCUIT_BREAKER"
	ReasonCorrelationLimit     ReasonCode = "CORRELATION_LIMIT"
	ReasonSectorCap            ReasonCode = "SECTOR_CAP"
	ReasonCapitalConcentration ReasonCode = "CAPITAL_CONCENTRATION"
)

// RiskAdvice is a non-gating hint attached to a decision, e.g. on regime
// transitions that warrant tightening stops on open positions.
type RiskAdvice string

const (
	AdviceNone      RiskAdvice = ""
	AdviceTightenSL RiskAdvice = "TIGHTEN_SL"
)

// Position is one open position as reported by the bookkeeping collaborator.
type Position struct {
	Symbol    string    `json:"symbol"`
	Sector    string    `json:"sector"`
	Direction Direction `json:"direction"`
	RiskR     float64   `json:"risk_r"` // capital at risk, in R units
	Value     float64   `json:"value"`  // position value in account currency
}

// PortfolioState is a versioned, immutable snapshot of live portfolio
// exposure. The governor only ever reads it; mutations happen through the
// bookkeeping collaborator, which bumps Version on every change.
type PortfolioState struct {
	Version           int64      `json:"version"`
	Positions         []Position `json:"positions"`
	DailyPnLR         float64    `json:"daily_pnl_r"`
	WeeklyPnLR        float64    `json:"weekly_pnl_r"`
	ConsecutiveLosses int        `json:"consecutive_losses"`
	TotalCapital      float64    `json:"total_capital"`
	PeakCapital       float64    `json:"peak_capital"`
	CurrentCapital    float64    `json:"current_capital"`
	PrevRegime        string     `json:"prev_regime"`
}

// DrawdownPct is the peak-to-trough decline as a percentage of peak capital.
func (p PortfolioState) DrawdownPct() float64 {
	if p.PeakCapital <= 0 {
		return 0
	}
	dd := (p.PeakCapital - p.CurrentCapital) / p.PeakCapital * 100
	if dd < 0 {
		return 0
	}
	return dd
}

// SectorValue sums open position value in the given sector.
func (p PortfolioState) SectorValue(sector string) float64 {
	var v float64
	for _, pos := range p.Positions {
		if pos.Sector == sector {
			v += pos.Value
		}
	}
	return v
}

// RiskDecision is the terminal outcome of governance for one candidate.
// Written exactly once to the audit ledger.
type RiskDecision struct {
	Symbol       string     `json:"symbol"`
	Strategy     string     `json:"strategy"`
	Accepted     bool       `json:"accepted"`
	Reason       ReasonCode `json:"reason,omitempty"`
	Detail       string     `json:"detail,omitempty"`
	Size         float64    `json:"size"` // resolved risk fraction, 0 when rejected
	Score        int        `json:"score"`
	Regime       string     `json:"regime"`
	RegimeConf   float64    `json:"regime_confidence"`
	RiskReward   float64    `json:"risk_reward"`
	Expectancy   float64    `json:"weighted_expectancy"`
	StateVersion int64      `json:"portfolio_version"`
	Advice       RiskAdvice `json:"advice,omitempty"`
	EvaluatedAt  time.Time  `json:"evaluated_at"`
}
