package domain

import "errors"

// Non-fatal, per-instrument errors. The scan orchestrator skips the
// instrument for the cycle and moves on.
var (
	// ErrInsufficientHistory means the feature window is shorter than the
	// configured minimum; no regime estimate can be produced.
	ErrInsufficientHistory = errors.New("insufficient price history")

	// ErrSourceUnavailable means the market-data collaborator could not serve
	// the request. Feeds the orchestrator's failure-rate monitor.
	ErrSourceUnavailable = errors.New("data source unavailable")

	// ErrStale means the most recent bar is older than the freshness ceiling.
	ErrStale = errors.New("stale market data")
)
