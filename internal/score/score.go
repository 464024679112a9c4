// Package score turns a candidate's technical features and the cycle's
// regime estimate into a 0-100 score with an itemized breakdown. The score
// is a ranking and explainability artifact only; gating belongs to the risk
// governor.
package score

import (
	"github.com/tradeedge/signalcore/internal/domain"
	"github.com/tradeedge/signalcore/internal/regime"
)

// BaseScore is the starting value before deductions and bonuses.
const BaseScore = 100

// softCeiling caps scores outside a TRENDING-dominant regime; the clamp is
// itself recorded as a named deduction so the breakdown identity holds.
const softCeiling = 92

// Breakdown itemizes how a final score was reached:
// final = clamp(base - sum(deductions) + sum(bonuses), 0, 100).
type Breakdown struct {
	Base       int            `json:"base"`
	Deductions map[string]int `json:"deductions"`
	Bonuses    map[string]int `json:"bonuses"`
	Final      int            `json:"final"`
}

// rule is one entry of the fixed scoring table. Each rule is evaluated
// independently against the inputs; evaluation order never changes the sum.
type rule struct {
	name   string
	points int // positive for bonuses, positive magnitude for deductions
	match  func(c domain.CandidateSignal, fv domain.FeatureVector, est regime.Estimate) bool
}

var deductionRules = []rule{
	{"Weak Volume", 15, func(c domain.CandidateSignal, fv domain.FeatureVector, _ regime.Estimate) bool {
		return fv.VolumeRatio < 1.2
	}},
	{"Poor Trend Alignment", 20, func(c domain.CandidateSignal, _ domain.FeatureVector, _ regime.Estimate) bool {
		return !c.TrendAligned
	}},
	{"Low Trend Strength", 10, func(_ domain.CandidateSignal, fv domain.FeatureVector, _ regime.Estimate) bool {
		return fv.TrendStrength < 20
	}},
	{"Elevated Volatility", 10, func(_ domain.CandidateSignal, fv domain.FeatureVector, _ regime.Estimate) bool {
		return fv.VolPercentile > 80
	}},
	{"Sideways Regime", 20, func(_ domain.CandidateSignal, _ domain.FeatureVector, est regime.Estimate) bool {
		return est.Dominant == domain.Ranging
	}},
	{"Low R:R", 15, func(c domain.CandidateSignal, _ domain.FeatureVector, _ regime.Estimate) bool {
		return c.RiskReward() > 0 && c.RiskReward() < 2.0
	}},
}

var bonusRules = []rule{
	{"Strong Trend", 10, func(_ domain.CandidateSignal, fv domain.FeatureVector, _ regime.Estimate) bool {
		return fv.TrendStrength > 40
	}},
	{"Volume Spike", 5, func(_ domain.CandidateSignal, fv domain.FeatureVector, _ regime.Estimate) bool {
		return fv.VolumeRatio > 2.0
	}},
	{"Sector Momentum", 5, func(c domain.CandidateSignal, _ domain.FeatureVector, _ regime.Estimate) bool {
		return c.SectorMomentum > 1.2
	}},
	{"Excellent R:R", 10, func(c domain.CandidateSignal, _ domain.FeatureVector, _ regime.Estimate) bool {
		return c.RiskReward() >= 3.0
	}},
	{"Persistent Trend", 5, func(_ domain.CandidateSignal, fv domain.FeatureVector, _ regime.Estimate) bool {
		return fv.Persistence > 0.6
	}},
}

// Score evaluates the fixed rule table and the regime adjustment for one
// candidate. Deterministic for identical inputs; no side effects.
func Score(c domain.CandidateSignal, est regime.Estimate) Breakdown {
	b := Breakdown{
		Base:       BaseScore,
		Deductions: make(map[string]int),
		Bonuses:    make(map[string]int),
	}
	fv := est.Features

	for _, r := range deductionRules {
		if r.match(c, fv, est) {
			b.Deductions[r.name] = r.points
		}
	}
	for _, r := range bonusRules {
		if r.match(c, fv, est) {
			b.Bonuses[r.name] = r.points
		}
	}

	// Regime adjustment lands after the base rules, as a named bonus or
	// deduction depending on sign.
	if adj := est.ScoreAdjustment; adj > 0 {
		b.Bonuses["Regime Adjustment"] = adj
	} else if adj < 0 {
		b.Deductions["Regime Adjustment"] = -adj
	}

	raw := b.Base - sum(b.Deductions) + sum(b.Bonuses)
	if est.Dominant != domain.Trending && raw > softCeiling {
		b.Deductions["Soft Ceiling (Non-Trending)"] = raw - softCeiling
		raw = softCeiling
	}
	b.Final = clampScore(raw)

	return b
}

func sum(m map[string]int) int {
	var total int
	for _, v := range m {
		total += v
	}
	return total
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
