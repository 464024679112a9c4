package ledger

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestLedger(t *testing.T) (*Ledger, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	l, err := Open(context.Background(), store)
	require.NoError(t, err)
	return l, store
}

func TestLedger_AppendChainsHashes(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	e1, err := l.Append(ctx, EventDecision, map[string]any{"symbol": "AAPL", "accepted": true})
	require.NoError(t, err)
	e2, err := l.Append(ctx, EventDecision, map[string]any{"symbol": "MSFT", "accepted": false})
	require.NoError(t, err)

	assert.Equal(t, uint64(1), e1.Seq)
	assert.Equal(t, GenesisHash, e1.PrevHash)
	assert.Equal(t, e1.Hash, e2.PrevHash)
	assert.Len(t, e1.Hash, 64)
	assert.NotEqual(t, e1.Hash, e2.Hash)
	assert.NotEmpty(t, e1.Versions.Engine)
}

func TestLedger_VerifyIntactChain(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		_, err := l.Append(ctx, EventDecision, map[string]any{"i": i})
		require.NoError(t, err)
	}
	assert.NoError(t, l.Verify(ctx, 1, 0))
	assert.NoError(t, l.Verify(ctx, 4, 8))
}

func TestLedger_VerifyDetectsTampering(t *testing.T) {
	l, store := openTestLedger(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := l.Append(ctx, EventDecision, map[string]any{"i": i})
		require.NoError(t, err)
	}

	store.Tamper(3, func(e *Entry) {
		e.Payload = json.RawMessage(`{"i":99}`)
	})

	err := l.Verify(ctx, 1, 0)
	var iErr *IntegrityError
	require.ErrorAs(t, err, &iErr)
	assert.Equal(t, uint64(3), iErr.Seq)
}

func TestLedger_VerifyDetectsBrokenLink(t *testing.T) {
	l, store := openTestLedger(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := l.Append(ctx, EventDecision, map[string]any{"i": i})
		require.NoError(t, err)
	}

	store.Tamper(4, func(e *Entry) {
		e.PrevHash = GenesisHash
	})

	err := l.Verify(ctx, 1, 0)
	var iErr *IntegrityError
	require.ErrorAs(t, err, &iErr)
	assert.Equal(t, uint64(4), iErr.Seq)
}

func TestLedger_CanonicalPayloadHashing(t *testing.T) {
	// Two map payloads with the same keys and values must hash identically
	// regardless of insertion order.
	a := map[string]any{"b": 2, "a": 1, "c": map[string]any{"y": 2, "x": 1}}
	b := map[string]any{"c": map[string]any{"x": 1, "y": 2}, "a": 1, "b": 2}

	ra, err := canonicalJSON(a)
	require.NoError(t, err)
	rb, err := canonicalJSON(b)
	require.NoError(t, err)
	assert.Equal(t, string(ra), string(rb))
}

func TestLedger_ReopenContinuesChain(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	l1, err := Open(ctx, store)
	require.NoError(t, err)
	e1, err := l1.Append(ctx, EventDecision, map[string]any{"n": 1})
	require.NoError(t, err)

	l2, err := Open(ctx, store)
	require.NoError(t, err)
	e2, err := l2.Append(ctx, EventDecision, map[string]any{"n": 2})
	require.NoError(t, err)

	assert.Equal(t, uint64(2), e2.Seq)
	assert.Equal(t, e1.Hash, e2.PrevHash)
	assert.NoError(t, l2.Verify(ctx, 1, 0))
}

func TestLedger_Correction(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	orig, err := l.Append(ctx, EventDecision, map[string]any{"symbol": "AAPL", "size": 1.0})
	require.NoError(t, err)

	corr, err := l.Correct(ctx, orig.Seq, "size recorded wrong", map[string]any{"symbol": "AAPL", "size": 0.5})
	require.NoError(t, err)
	assert.Equal(t, EventCorrection, corr.EventType)

	var body struct {
		Supersedes uint64 `json:"supersedes"`
		Reason     string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(corr.Payload, &body))
	assert.Equal(t, orig.Seq, body.Supersedes)

	// The original entry stays untouched and the chain stays intact.
	entries, err := l.Entries(ctx, orig.Seq, orig.Seq)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, orig.Hash, entries[0].Hash)
	assert.NoError(t, l.Verify(ctx, 1, 0))
}

func TestLedger_Summarize(t *testing.T) {
	l, _ := openTestLedger(t)
	ctx := context.Background()

	_, err := l.Append(ctx, EventDecision, map[string]any{"accepted": true})
	require.NoError(t, err)
	_, err = l.Append(ctx, EventDecision, map[string]any{"accepted": false, "reason": "DAILY_LOSS_LIMIT"})
	require.NoError(t, err)
	_, err = l.Append(ctx, EventDecision, map[string]any{"accepted": false, "reason": "DAILY_LOSS_LIMIT"})
	require.NoError(t, err)
	_, err = l.Append(ctx, EventKillSwitch, map[string]any{"trigger": "DAILY_LOSS_LIMIT"})
	require.NoError(t, err)

	s, err := l.Summarize(ctx, time.Now().Add(-time.Hour), time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 4, s.Entries)
	assert.Equal(t, 1, s.Accepted)
	assert.Equal(t, 2, s.Rejected)
	assert.Equal(t, 1, s.KillEvents)
	assert.Equal(t, 2, s.ByReason["DAILY_LOSS_LIMIT"])
}

func TestLedger_HashSurvivesStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	l, err := Open(ctx, store)
	require.NoError(t, err)

	// A clock with sub-microsecond residue: the sealed timestamp must be
	// truncated so that a TIMESTAMPTZ column reproduces the hashed bytes.
	base := time.Date(2026, 8, 30, 12, 0, 0, 123456789, time.UTC)
	l.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		e, err := l.Append(ctx, EventDecision, map[string]any{"n": i})
		require.NoError(t, err)
		assert.True(t, e.Timestamp.Equal(e.Timestamp.Truncate(time.Microsecond)))
	}

	// Rebuild the store the way a database reload would: microsecond
	// timestamps and verbatim payload bytes.
	entries, err := l.Entries(ctx, 1, 0)
	require.NoError(t, err)
	reloaded := NewMemoryStore()
	for _, e := range entries {
		e.Timestamp = e.Timestamp.Truncate(time.Microsecond)
		e.Payload = append(json.RawMessage(nil), e.Payload...)
		require.NoError(t, reloaded.Insert(ctx, e))
	}

	l2, err := Open(ctx, reloaded)
	require.NoError(t, err)
	assert.NoError(t, l2.Verify(ctx, 1, 0))
}
