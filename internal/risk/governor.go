// Package risk implements the two-tier risk governor: a cheap candidate-local
// position gate followed by a portfolio gate reading live portfolio state.
// Rules short-circuit at the first failure, in a fixed order, so every
// rejection carries exactly one canonical reason code.
package risk

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradeedge/signalcore/internal/domain"
	"github.com/tradeedge/signalcore/internal/expectancy"
	"github.com/tradeedge/signalcore/internal/regime"
)

// CorrelationProvider reports the maximum absolute return correlation between
// a candidate symbol and the given open symbols. External collaborator.
type CorrelationProvider interface {
	MaxCorrelation(ctx context.Context, symbol string, open []string) (float64, error)
}

// Governor gates scored candidates. It never mutates portfolio state; on
// acceptance the bookkeeping collaborator opens the trade and updates state.
type Governor struct {
	cfg  Config
	corr CorrelationProvider
}

// NewGovernor builds a governor. corr may be nil, disabling the correlation
// gate (it passes vacuously, as with an empty portfolio).
func NewGovernor(cfg Config, corr CorrelationProvider) *Governor {
	cfg.applyDefaults()
	return &Governor{cfg: cfg, corr: corr}
}

// Input bundles everything one evaluation needs. State is a versioned
// snapshot: the governor sees a single consistent read per evaluation.
type Input struct {
	Candidate domain.CandidateSignal
	Regime    regime.Estimate
	Exp       expectancy.Estimate
	State     domain.PortfolioState
	Score     int
}

// Evaluate runs the position gate then the portfolio gate and resolves the
// position size on acceptance.
func (g *Governor) Evaluate(ctx context.Context, in Input) domain.RiskDecision {
	d := domain.RiskDecision{
		Symbol:       in.Candidate.Symbol,
		Strategy:     in.Candidate.Strategy,
		Score:        in.Score,
		Regime:       in.Regime.Dominant.String(),
		RegimeConf:   in.Regime.Confidence,
		RiskReward:   in.Candidate.RiskReward(),
		Expectancy:   in.Exp.Weighted,
		StateVersion: in.State.Version,
		Advice:       transitionAdvice(in.State.PrevRegime, in.Regime.Dominant),
		EvaluatedAt:  time.Now().UTC(),
	}

	if reason, detail := g.evaluatePosition(in); reason != "" {
		d.Reason, d.Detail = reason, detail
		logRejection(d)
		return d
	}
	if reason, detail := g.evaluatePortfolio(ctx, in); reason != "" {
		d.Reason, d.Detail = reason, detail
		logRejection(d)
		return d
	}

	d.Accepted = true
	d.Size = g.resolveSize(in)

	log.Info().
		Str("symbol", d.Symbol).
		Float64("size", d.Size).
		Float64("rr", d.RiskReward).
		Str("regime", d.Regime).
		Msg("Candidate accepted")
	return d
}

// evaluatePosition is the candidate-local tier. Order is fixed:
// risk/reward, stop width, gap stress, expectancy.
func (g *Governor) evaluatePosition(in Input) (domain.ReasonCode, string) {
	c := in.Candidate

	if rr := c.RiskReward(); rr < g.cfg.MinRiskReward {
		return domain.ReasonPoorRiskReward,
			fmt.Sprintf("R:R %.2f below minimum %.2f", rr, g.cfg.MinRiskReward)
	}

	ceiling := g.cfg.stopCeiling(in.Regime.Dominant)
	if sl := c.StopDistancePct(); sl > ceiling {
		return domain.ReasonStopTooWide,
			fmt.Sprintf("stop %.2f%% exceeds %s ceiling %.2f%%", sl, in.Regime.Dominant, ceiling)
	}

	tolerance := g.cfg.gapTolerance(in.Regime.Dominant)
	if gap := in.Regime.Features.WorstGapPct; gap > tolerance {
		return domain.ReasonGapRiskExceeded,
			fmt.Sprintf("worst gap %.2f%% exceeds %s tolerance %.2f%%", gap, in.Regime.Dominant, tolerance)
	}

	if in.Exp.Weighted <= 0 {
		return domain.ReasonNegativeExpectancy,
			fmt.Sprintf("weighted expectancy %.3f not positive (n=%d)", in.Exp.Weighted, in.Exp.Samples)
	}

	return "", ""
}

// evaluatePortfolio is the portfolio tier, only reached when the position
// tier passed. Order: daily kill, weekly kill, circuit breaker, correlation,
// sector cap, capital concentration.
func (g *Governor) evaluatePortfolio(ctx context.Context, in Input) (domain.ReasonCode, string) {
	st := in.State

	// A zero limit means no tolerance for losses, not a ban on flat days:
	// a 0R day under a 0R limit still passes.
	dailyLimit := g.cfg.dailyLimit(in.Regime.Dominant)
	switch {
	case dailyLimit > 0 && st.DailyPnLR <= -dailyLimit:
		return domain.ReasonDailyLossLimit,
			fmt.Sprintf("daily %.1fR breaches -%.1fR limit (%s)", st.DailyPnLR, dailyLimit, in.Regime.Dominant)
	case dailyLimit <= 0 && st.DailyPnLR < 0:
		return domain.ReasonDailyLossLimit,
			fmt.Sprintf("daily %.1fR with zero tolerance (%s)", st.DailyPnLR, in.Regime.Dominant)
	}

	if st.WeeklyPnLR <= -g.cfg.WeeklyLossLimitR {
		return domain.ReasonWeeklyLossLimit,
			fmt.Sprintf("weekly %.1fR breaches -%.1fR limit", st.WeeklyPnLR, g.cfg.WeeklyLossLimitR)
	}

	if st.ConsecutiveLosses >= g.cfg.ConsecutiveLossLimit {
		return domain.ReasonCircuitBreaker,
			fmt.Sprintf("%d consecutive losses (limit %d)", st.ConsecutiveLosses, g.cfg.ConsecutiveLossLimit)
	}

	if reason, detail := g.checkCorrelation(ctx, in); reason != "" {
		return reason, detail
	}

	if reason, detail := g.checkSectorCap(in); reason != "" {
		return reason, detail
	}

	if reason, detail := g.checkConcentration(in); reason != "" {
		return reason, detail
	}

	return "", ""
}

func (g *Governor) checkCorrelation(ctx context.Context, in Input) (domain.ReasonCode, string) {
	if g.corr == nil || len(in.State.Positions) == 0 {
		return "", ""
	}
	open := make([]string, 0, len(in.State.Positions))
	for _, p := range in.State.Positions {
		open = append(open, p.Symbol)
	}
	maxCorr, err := g.corr.MaxCorrelation(ctx, in.Candidate.Symbol, open)
	if err != nil {
		// Fail open: a broken correlation feed must not block the cycle.
		log.Warn().Err(err).Str("symbol", in.Candidate.Symbol).
			Msg("Correlation check unavailable, gate passes")
		return "", ""
	}
	if maxCorr > g.cfg.CorrelationThreshold {
		return domain.ReasonCorrelationLimit,
			fmt.Sprintf("correlation %.2f with open position exceeds %.2f", maxCorr, g.cfg.CorrelationThreshold)
	}
	return "", ""
}

func (g *Governor) checkSectorCap(in Input) (domain.ReasonCode, string) {
	st := in.State
	if st.TotalCapital <= 0 || in.Candidate.Sector == "" {
		return "", ""
	}
	// Hypothetical position value from the resolved risk fraction and the
	// candidate's stop distance.
	slPct := in.Candidate.StopDistancePct()
	if slPct <= 0 {
		return "", ""
	}
	riskAmount := st.TotalCapital * g.resolveSize(in) / 100
	newValue := riskAmount / (slPct / 100)

	total := st.SectorValue(in.Candidate.Sector) + newValue
	limit := st.TotalCapital * g.cfg.MaxSectorFraction
	if total > limit {
		return domain.ReasonSectorCap,
			fmt.Sprintf("sector %s exposure %.0f exceeds cap %.0f", in.Candidate.Sector, total, limit)
	}
	return "", ""
}

// checkConcentration rejects when the three largest positions, including the
// candidate hypothetically, would exceed the configured share of total risk.
func (g *Governor) checkConcentration(in Input) (domain.ReasonCode, string) {
	if len(in.State.Positions) == 0 {
		return "", ""
	}
	risks := make([]float64, 0, len(in.State.Positions)+1)
	var total float64
	for _, p := range in.State.Positions {
		risks = append(risks, p.RiskR)
		total += p.RiskR
	}
	candidateRisk := g.resolveSize(in)
	risks = append(risks, candidateRisk)
	total += candidateRisk
	if total <= 0 {
		return "", ""
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(risks)))
	var top3 float64
	for i := 0; i < 3 && i < len(risks); i++ {
		top3 += risks[i]
	}
	share := top3 / total * 100
	if share > g.cfg.MaxTop3ConcentrationPct {
		return domain.ReasonCapitalConcentration,
			fmt.Sprintf("top-3 positions %.1f%% of risk exceeds %.1f%%", share, g.cfg.MaxTop3ConcentrationPct)
	}
	return "", ""
}

// resolveSize applies drawdown-adaptive scaling then the regime multiplier
// to the base risk fraction.
func (g *Governor) resolveSize(in Input) float64 {
	return g.cfg.BaseRiskPct *
		g.cfg.drawdownMultiplier(in.State.DrawdownPct()) *
		in.Regime.PositionMultiplier
}

// transitionAdvice flags regime shifts that warrant tightening stops on open
// positions. Advisory only; never gates.
func transitionAdvice(prev string, current domain.Regime) domain.RiskAdvice {
	switch {
	case prev == "TRENDING" && (current == domain.Ranging || current == domain.Dead):
		return domain.AdviceTightenSL
	case prev == "RANGING" && current == domain.Volatile:
		return domain.AdviceTightenSL
	default:
		return domain.AdviceNone
	}
}

func logRejection(d domain.RiskDecision) {
	log.Warn().
		Str("symbol", d.Symbol).
		Str("reason", string(d.Reason)).
		Str("detail", d.Detail).
		Msg("Candidate rejected")
}
