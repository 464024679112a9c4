package httpapi

import (
	"sort"
	"sync"
	"time"

	"github.com/tradeedge/signalcore/internal/domain"
	"github.com/tradeedge/signalcore/internal/regime"
)

// SymbolStatus is the latest scan outcome for one symbol.
type SymbolStatus struct {
	Symbol    string               `json:"symbol"`
	Regime    string               `json:"regime"`
	Probs     map[string]float64   `json:"probabilities"`
	Conf      float64              `json:"confidence"`
	Decision  *domain.RiskDecision `json:"decision,omitempty"`
	ScannedAt time.Time            `json:"scanned_at"`
}

// StatusBoard caches per-symbol scan state for the read API. The scan loop
// writes; handlers read.
type StatusBoard struct {
	mu       sync.RWMutex
	statuses map[string]SymbolStatus
}

func NewStatusBoard() *StatusBoard {
	return &StatusBoard{statuses: make(map[string]SymbolStatus)}
}

// SetRegime records the latest classification for a symbol.
func (b *StatusBoard) SetRegime(symbol string, est regime.Estimate) {
	probs := make(map[string]float64, len(domain.Regimes))
	for _, r := range domain.Regimes {
		probs[r.String()] = est.Prob(r)
	}
	b.mu.Lock()
	s := b.statuses[symbol]
	s.Symbol = symbol
	s.Regime = est.Dominant.String()
	s.Probs = probs
	s.Conf = est.Confidence
	s.ScannedAt = time.Now().UTC()
	b.statuses[symbol] = s
	b.mu.Unlock()
}

// SetDecision records the latest governing decision for a symbol.
func (b *StatusBoard) SetDecision(d domain.RiskDecision) {
	b.mu.Lock()
	s := b.statuses[d.Symbol]
	s.Symbol = d.Symbol
	s.Decision = &d
	s.ScannedAt = time.Now().UTC()
	b.statuses[d.Symbol] = s
	b.mu.Unlock()
}

func (b *StatusBoard) Get(symbol string) (SymbolStatus, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.statuses[symbol]
	return s, ok
}

// All returns every symbol's status sorted by symbol.
func (b *StatusBoard) All() []SymbolStatus {
	b.mu.RLock()
	out := make([]SymbolStatus, 0, len(b.statuses))
	for _, s := range b.statuses {
		out = append(out, s)
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Decisions returns only symbols that have a governing decision.
func (b *StatusBoard) Decisions() []domain.RiskDecision {
	b.mu.RLock()
	out := make([]domain.RiskDecision, 0, len(b.statuses))
	for _, s := range b.statuses {
		if s.Decision != nil {
			out = append(out, *s.Decision)
		}
	}
	b.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}
