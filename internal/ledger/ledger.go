// Package ledger provides the append-only, hash-chained audit trail.
// Every governing decision, regime flip, and kill-switch event lands here
// with enough context to reproduce the decision later.
package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/tradeedge/signalcore/internal/domain"
)

// GenesisHash anchors the chain before the first entry.
const GenesisHash = "0000000000000000000000000000000000000000000000000000000000000000"

// Event types recorded on the chain.
const (
	EventDecision         = "DECISION"
	EventRegimeTransition = "REGIME_TRANSITION"
	EventKillSwitch       = "KILL_SWITCH"
	EventCorrection       = "CORRECTION"
	EventOutcome          = "TRADE_OUTCOME"
)

// Entry is one link in the chain. Hash covers PrevHash plus the canonical
// JSON encoding of the entry body, so any later edit to a stored entry
// breaks verification from that sequence onward.
type Entry struct {
	ID        uuid.UUID              `json:"id" db:"id"`
	Seq       uint64                 `json:"seq" db:"seq"`
	Timestamp time.Time              `json:"timestamp" db:"ts"`
	EventType string                 `json:"event_type" db:"event_type"`
	Versions  domain.VersionContract `json:"versions" db:"-"`
	Payload   json.RawMessage        `json:"payload" db:"payload"`
	PrevHash  string                 `json:"prev_hash" db:"prev_hash"`
	Hash      string                 `json:"hash" db:"hash"`
}

// IntegrityError reports the first sequence whose stored hash no longer
// matches its recomputed value.
type IntegrityError struct {
	Seq      uint64
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("ledger integrity violation at seq %d: expected %s, got %s",
		e.Seq, e.Expected, e.Actual)
}

// Store is the persistence behind the ledger. Implementations must return
// entries in ascending sequence order. There is deliberately no delete
// operation: entries are append-only for the life of the chain.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	Range(ctx context.Context, fromSeq, toSeq uint64) ([]Entry, error)
	Last(ctx context.Context) (Entry, bool, error)
}

// Ledger serializes appends so the chain never forks. Reads go straight to
// the store.
type Ledger struct {
	mu       sync.Mutex
	store    Store
	nextSeq  uint64
	lastHash string
	now      func() time.Time
}

// Open restores chain position from the store's last entry.
func Open(ctx context.Context, store Store) (*Ledger, error) {
	l := &Ledger{store: store, nextSeq: 1, lastHash: GenesisHash, now: time.Now}
	last, ok, err := store.Last(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to restore ledger head: %w", err)
	}
	if ok {
		l.nextSeq = last.Seq + 1
		l.lastHash = last.Hash
	}
	log.Info().Uint64("next_seq", l.nextSeq).Msg("Audit ledger opened")
	return l, nil
}

// Append records a payload under the given event type and returns the sealed
// entry. The payload is canonicalized before hashing so map iteration order
// can never change the hash.
func (l *Ledger) Append(ctx context.Context, eventType string, payload any) (Entry, error) {
	raw, err := canonicalJSON(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode ledger payload: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	e := Entry{
		ID:  uuid.New(),
		Seq: l.nextSeq,
		// Sealed at microsecond precision: a TIMESTAMPTZ column cannot hold
		// nanoseconds, and the hash must cover bytes the store reproduces.
		Timestamp: l.now().UTC().Truncate(time.Microsecond),
		EventType: eventType,
		Versions:  domain.CurrentVersions,
		Payload:   raw,
		PrevHash:  l.lastHash,
	}
	e.Hash = chainHash(e.PrevHash, e.bodyBytes())

	if err := l.store.Insert(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("failed to persist ledger entry %d: %w", e.Seq, err)
	}
	l.nextSeq++
	l.lastHash = e.Hash
	return e, nil
}

// Correct appends a CORRECTION entry superseding an earlier sequence. The
// original entry is never touched; readers resolve the latest correction.
func (l *Ledger) Correct(ctx context.Context, supersedes uint64, reason string, payload any) (Entry, error) {
	raw, err := canonicalJSON(payload)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to encode correction payload: %w", err)
	}
	body := map[string]any{
		"supersedes": supersedes,
		"reason":     reason,
		"corrected":  json.RawMessage(raw),
	}
	return l.Append(ctx, EventCorrection, body)
}

// Verify recomputes hashes over [fromSeq, toSeq] and checks linkage. It
// returns an *IntegrityError for the first broken entry, or nil when the
// range is intact. A zero toSeq means the current head.
func (l *Ledger) Verify(ctx context.Context, fromSeq, toSeq uint64) error {
	if fromSeq == 0 {
		fromSeq = 1
	}
	entries, err := l.store.Range(ctx, fromSeq, toSeq)
	if err != nil {
		return fmt.Errorf("failed to load ledger range: %w", err)
	}
	prev := GenesisHash
	if fromSeq > 1 {
		prior, err := l.store.Range(ctx, fromSeq-1, fromSeq-1)
		if err != nil {
			return fmt.Errorf("failed to load prior entry: %w", err)
		}
		if len(prior) == 1 {
			prev = prior[0].Hash
		}
	}
	for _, e := range entries {
		if e.PrevHash != prev {
			return &IntegrityError{Seq: e.Seq, Expected: prev, Actual: e.PrevHash}
		}
		if got := chainHash(e.PrevHash, e.bodyBytes()); got != e.Hash {
			return &IntegrityError{Seq: e.Seq, Expected: got, Actual: e.Hash}
		}
		prev = e.Hash
	}
	return nil
}

// Entries exposes a raw range read for the query API.
func (l *Ledger) Entries(ctx context.Context, fromSeq, toSeq uint64) ([]Entry, error) {
	if fromSeq == 0 {
		fromSeq = 1
	}
	return l.store.Range(ctx, fromSeq, toSeq)
}

// ComplianceSummary aggregates decisions over a time window for reporting.
type ComplianceSummary struct {
	From       time.Time      `json:"from"`
	To         time.Time      `json:"to"`
	Entries    int            `json:"entries"`
	Accepted   int            `json:"accepted"`
	Rejected   int            `json:"rejected"`
	ByReason   map[string]int `json:"by_reason"`
	KillEvents int            `json:"kill_events"`
}

// Summarize scans the chain and tallies decision outcomes between two
// instants.
func (l *Ledger) Summarize(ctx context.Context, from, to time.Time) (ComplianceSummary, error) {
	entries, err := l.store.Range(ctx, 1, 0)
	if err != nil {
		return ComplianceSummary{}, fmt.Errorf("failed to load ledger for summary: %w", err)
	}
	s := ComplianceSummary{From: from, To: to, ByReason: map[string]int{}}
	for _, e := range entries {
		if e.Timestamp.Before(from) || e.Timestamp.After(to) {
			continue
		}
		s.Entries++
		switch e.EventType {
		case EventDecision:
			var d struct {
				Accepted bool   `json:"accepted"`
				Reason   string `json:"reason"`
			}
			if err := json.Unmarshal(e.Payload, &d); err != nil {
				continue
			}
			if d.Accepted {
				s.Accepted++
			} else {
				s.Rejected++
				s.ByReason[d.Reason]++
			}
		case EventKillSwitch:
			s.KillEvents++
		}
	}
	return s, nil
}

// bodyBytes is the hashed portion of an entry: everything except the hash
// itself and the prev hash, which is mixed in separately.
func (e Entry) bodyBytes() []byte {
	b, _ := json.Marshal(struct {
		ID        uuid.UUID              `json:"id"`
		Seq       uint64                 `json:"seq"`
		Timestamp time.Time              `json:"timestamp"`
		EventType string                 `json:"event_type"`
		Versions  domain.VersionContract `json:"versions"`
		Payload   json.RawMessage        `json:"payload"`
	}{e.ID, e.Seq, e.Timestamp, e.EventType, e.Versions, e.Payload})
	return b
}

func chainHash(prevHash string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(prevHash))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON encodes a value with lexicographically sorted object keys at
// every level.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return marshalCanonical(decoded)
}

func marshalCanonical(v any) ([]byte, error) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, _ := json.Marshal(k)
			vb, err := marshalCanonical(t[k])
			if err != nil {
				return nil, err
			}
			out = append(out, kb...)
			out = append(out, ':')
			out = append(out, vb...)
		}
		return append(out, '}'), nil
	case []any:
		out := []byte{'['}
		for i, item := range t {
			if i > 0 {
				out = append(out, ',')
			}
			vb, err := marshalCanonical(item)
			if err != nil {
				return nil, err
			}
			out = append(out, vb...)
		}
		return append(out, ']'), nil
	default:
		return json.Marshal(v)
	}
}
