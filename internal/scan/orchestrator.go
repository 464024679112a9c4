// Package scan runs the per-cycle pipeline: fetch history, classify regime,
// generate and score candidates, govern, audit. Symbols fan out across a
// bounded worker pool; a failure monitor degrades the cycle to sequential
// scanning when the upstream is struggling.
package scan

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradeedge/signalcore/internal/domain"
	"github.com/tradeedge/signalcore/internal/expectancy"
	"github.com/tradeedge/signalcore/internal/features"
	"github.com/tradeedge/signalcore/internal/ledger"
	"github.com/tradeedge/signalcore/internal/metrics"
	"github.com/tradeedge/signalcore/internal/regime"
	"github.com/tradeedge/signalcore/internal/risk"
	"github.com/tradeedge/signalcore/internal/score"
)

// BarProvider is the guarded data layer.
type BarProvider interface {
	Bars(ctx context.Context, symbol string) ([]domain.Bar, error)
}

// CandidateSource turns a classified symbol into at most one candidate.
// A nil candidate with nil error means no setup; the symbol is skipped.
type CandidateSource interface {
	Candidate(ctx context.Context, symbol string, fv domain.FeatureVector, est regime.Estimate) (*domain.CandidateSignal, error)
}

// StateProvider hands the governor an immutable portfolio snapshot.
type StateProvider interface {
	Snapshot(ctx context.Context) (domain.PortfolioState, error)
}

// Config tunes the orchestrator.
type Config struct {
	MaxWorkers       int     `yaml:"max_workers"`
	FailureWindow    int     `yaml:"failure_window"`
	FailureThreshold float64 `yaml:"failure_threshold"`
}

func DefaultConfig() Config {
	return Config{MaxWorkers: 8, FailureWindow: 20, FailureThreshold: 0.5}
}

// SymbolResult is what one symbol produced, or why it produced nothing.
// Est carries the regime estimate for every symbol that classified, even
// when no candidate followed.
type SymbolResult struct {
	Symbol   string
	Decision *domain.RiskDecision
	Est      *regime.Estimate
	Skipped  bool
	Err      error
}

// CycleReport summarizes one scan cycle. MarketRegime is the dominant
// regime across the classified universe, empty when nothing classified.
type CycleReport struct {
	StartedAt    time.Time
	Duration     time.Duration
	Universe     int
	Completed    int
	Skipped      int
	Failed       int
	Accepted     int
	Rejected     int
	Sequential   bool
	MarketRegime string
}

// Orchestrator owns one scan cycle at a time.
type Orchestrator struct {
	cfg        Config
	bars       BarProvider
	candidates CandidateSource
	classifier *regime.Classifier
	tracker    *expectancy.Tracker
	governor   *risk.Governor
	state      StateProvider
	audit      *ledger.Ledger
	metrics    *metrics.Collector
	monitor    *FailureMonitor
}

func NewOrchestrator(
	cfg Config,
	bars BarProvider,
	candidates CandidateSource,
	classifier *regime.Classifier,
	tracker *expectancy.Tracker,
	governor *risk.Governor,
	state StateProvider,
	audit *ledger.Ledger,
	collector *metrics.Collector,
) *Orchestrator {
	if cfg.MaxWorkers == 0 {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		cfg:        cfg,
		bars:       bars,
		candidates: candidates,
		classifier: classifier,
		tracker:    tracker,
		governor:   governor,
		state:      state,
		audit:      audit,
		metrics:    collector,
		monitor:    NewFailureMonitor(cfg.FailureWindow, cfg.FailureThreshold),
	}
}

// workerCount bounds concurrency by the configured cap, the universe size,
// and available parallelism, with a floor of two.
func (o *Orchestrator) workerCount(universe int) int {
	n := o.cfg.MaxWorkers
	if p := runtime.GOMAXPROCS(0); p > 2 && p < n {
		n = p
	}
	if n < 2 {
		n = 2
	}
	if universe < n {
		n = universe
	}
	return n
}

// Run scans the universe and streams results to out (which may be nil).
// Cancellation abandons unprocessed symbols; a symbol is either fully
// governed and audited or it contributes nothing to the ledger.
func (o *Orchestrator) Run(ctx context.Context, universe []string, out chan<- SymbolResult) (CycleReport, error) {
	start := time.Now()
	report := CycleReport{StartedAt: start.UTC(), Universe: len(universe)}

	if len(universe) == 0 {
		return report, nil
	}

	log.Info().Int("universe", len(universe)).Msg("Scan cycle starting")

	sequential := o.monitor.Degraded()
	if o.metrics != nil {
		if sequential {
			o.metrics.FallbackMode.Set(1)
		} else {
			o.metrics.FallbackMode.Set(0)
		}
	}

	// The pool stops dispatching as soon as the monitor trips mid-cycle;
	// the remainder of the universe finishes sequentially.
	results := make([]SymbolResult, len(universe))
	next := 0
	if !sequential {
		next = o.runPool(ctx, universe, results)
	}
	for ; next < len(universe); next++ {
		if ctx.Err() != nil {
			break
		}
		results[next] = o.processSymbol(ctx, universe[next])
	}

	report.Sequential = sequential || o.monitor.Degraded()
	if o.metrics != nil && report.Sequential {
		o.metrics.FallbackMode.Set(1)
	}

	var regimeCounts [4]int
	for _, r := range results {
		if r.Symbol == "" {
			continue // abandoned by cancellation
		}
		if r.Est != nil {
			regimeCounts[int(r.Est.Dominant)]++
		}
		if out != nil {
			out <- r
		}
		switch {
		case r.Err != nil:
			report.Failed++
		case r.Skipped:
			report.Skipped++
			report.Completed++
		default:
			report.Completed++
			if r.Decision.Accepted {
				report.Accepted++
			} else {
				report.Rejected++
			}
		}
	}
	report.MarketRegime = majorityRegime(regimeCounts)

	report.Duration = time.Since(start)
	if o.metrics != nil {
		o.metrics.ScanDuration.Observe(report.Duration.Seconds())
		o.metrics.ScanSymbols.Add(float64(report.Completed + report.Failed))
	}

	log.Info().
		Int("completed", report.Completed).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Int("accepted", report.Accepted).
		Dur("duration", report.Duration).
		Bool("sequential", report.Sequential).
		Msg("Scan cycle finished")

	return report, ctx.Err()
}

// runPool fans the universe out across workers and returns the index of the
// first symbol it did not dispatch. Dispatch stops early when the failure
// monitor trips or the context is cancelled; dispatched symbols always
// finish before return.
func (o *Orchestrator) runPool(ctx context.Context, universe []string, results []SymbolResult) int {
	jobs := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < o.workerCount(len(universe)); w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results[i] = o.processSymbol(ctx, universe[i])
			}
		}()
	}

	next := 0
dispatch:
	for i := range universe {
		if o.monitor.Degraded() {
			break
		}
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- i:
			next = i + 1
		}
	}
	close(jobs)
	wg.Wait()
	return next
}

// processSymbol runs the full pipeline for one symbol.
func (o *Orchestrator) processSymbol(ctx context.Context, symbol string) SymbolResult {
	res := SymbolResult{Symbol: symbol}

	bars, err := o.bars.Bars(ctx, symbol)
	o.monitor.Record(err != nil && !errors.Is(err, context.Canceled))
	if err != nil {
		if ctx.Err() != nil {
			return SymbolResult{}
		}
		o.recordFetchFailure(err)
		res.Err = fmt.Errorf("fetch: %w", err)
		return res
	}

	fv, err := features.Compute(bars)
	if err != nil {
		res.Skipped = errors.Is(err, domain.ErrInsufficientHistory)
		if !res.Skipped {
			res.Err = fmt.Errorf("features: %w", err)
		}
		return res
	}

	est, err := o.classifier.Classify(fv)
	if err != nil {
		res.Skipped = errors.Is(err, domain.ErrInsufficientHistory)
		if !res.Skipped {
			res.Err = fmt.Errorf("classify: %w", err)
		}
		return res
	}
	res.Est = &est
	o.publishRegime(symbol, est)

	candidate, err := o.candidates.Candidate(ctx, symbol, fv, est)
	if err != nil {
		res.Err = fmt.Errorf("candidate: %w", err)
		return res
	}
	if candidate == nil {
		res.Skipped = true
		return res
	}

	breakdown := score.Score(*candidate, est)
	exp := o.tracker.Estimate(domain.ExpectancyKey{
		Strategy: candidate.Strategy,
		Regime:   est.Dominant.String(),
		Class:    candidate.Class,
	})

	state, err := o.state.Snapshot(ctx)
	if err != nil {
		res.Err = fmt.Errorf("portfolio snapshot: %w", err)
		return res
	}

	decision := o.governor.Evaluate(ctx, risk.Input{
		Candidate: *candidate,
		Regime:    est,
		Exp:       exp,
		State:     state,
		Score:     breakdown.Final,
	})

	// Cancellation between governing and audit abandons the symbol rather
	// than leaving a decision with no ledger entry.
	if ctx.Err() != nil {
		return SymbolResult{}
	}
	if err := o.auditDecision(ctx, decision, breakdown); err != nil {
		res.Err = err
		return res
	}

	if o.metrics != nil {
		o.metrics.RecordDecision(decision.Accepted, string(decision.Reason))
	}
	res.Decision = &decision
	return res
}

func (o *Orchestrator) auditDecision(ctx context.Context, d domain.RiskDecision, b score.Breakdown) error {
	payload := map[string]any{
		"symbol":        d.Symbol,
		"strategy":      d.Strategy,
		"accepted":      d.Accepted,
		"reason":        string(d.Reason),
		"detail":        d.Detail,
		"size":          d.Size,
		"score":         b,
		"regime":        d.Regime,
		"regime_conf":   d.RegimeConf,
		"risk_reward":   d.RiskReward,
		"expectancy":    d.Expectancy,
		"state_version": d.StateVersion,
		"advice":        string(d.Advice),
	}
	if _, err := o.audit.Append(ctx, ledger.EventDecision, payload); err != nil {
		return fmt.Errorf("audit: %w", err)
	}
	if o.metrics != nil {
		o.metrics.LedgerAppends.Inc()
	}
	return nil
}

func (o *Orchestrator) recordFetchFailure(err error) {
	if o.metrics == nil {
		return
	}
	kind := "error"
	switch {
	case errors.Is(err, domain.ErrSourceUnavailable):
		kind = "unavailable"
	case errors.Is(err, domain.ErrStale):
		kind = "stale"
	case errors.Is(err, context.DeadlineExceeded):
		kind = "timeout"
	}
	o.metrics.FetchFailures.WithLabelValues(kind).Inc()
}

// majorityRegime picks the most frequent dominant regime, breaking ties in
// favor of the lower ordinal. Empty when nothing classified this cycle.
func majorityRegime(counts [4]int) string {
	best, total := 0, 0
	for i, c := range counts {
		total += c
		if c > counts[best] {
			best = i
		}
	}
	if total == 0 {
		return ""
	}
	return domain.Regime(best).String()
}

func (o *Orchestrator) publishRegime(symbol string, est regime.Estimate) {
	if o.metrics == nil {
		return
	}
	for _, r := range domain.Regimes {
		o.metrics.RegimeGauge.WithLabelValues(symbol, r.String()).Set(est.Prob(r))
	}
}
