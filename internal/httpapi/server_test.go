package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradeedge/signalcore/internal/domain"
	"github.com/tradeedge/signalcore/internal/expectancy"
	"github.com/tradeedge/signalcore/internal/ledger"
	"github.com/tradeedge/signalcore/internal/metrics"
	"github.com/tradeedge/signalcore/internal/regime"
)

type stubExpectancy struct {
	estimates []expectancy.Estimate
}

func (s stubExpectancy) Snapshot() []expectancy.Estimate { return s.estimates }

func newTestServer(t *testing.T) (*Server, *ledger.Ledger, *StatusBoard) {
	t.Helper()
	audit, err := ledger.Open(context.Background(), ledger.NewMemoryStore())
	require.NoError(t, err)

	board := NewStatusBoard()
	s := NewServer(
		DefaultServerConfig(),
		audit,
		stubExpectancy{},
		board,
		NewHub(),
		metrics.NewCollector(),
		"test",
	)
	return s, audit, board
}

func doRequest(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestServer_Health(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "test", body["version"])
}

func TestServer_LedgerRange(t *testing.T) {
	s, audit, _ := newTestServer(t)
	for i := 0; i < 3; i++ {
		_, err := audit.Append(context.Background(), ledger.EventDecision, map[string]any{"n": i})
		require.NoError(t, err)
	}

	rec := doRequest(s, http.MethodGet, "/ledger?from=2")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Count   int            `json:"count"`
		Entries []ledger.Entry `json:"entries"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, uint64(2), body.Entries[0].Seq)
}

func TestServer_LedgerVerify(t *testing.T) {
	s, audit, _ := newTestServer(t)
	_, err := audit.Append(context.Background(), ledger.EventDecision, map[string]any{"ok": true})
	require.NoError(t, err)

	rec := doRequest(s, http.MethodGet, "/ledger/verify")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	decodeBody(t, rec, &body)
	assert.Equal(t, true, body["intact"])
}

func TestServer_LedgerVerifyTampered(t *testing.T) {
	store := ledger.NewMemoryStore()
	audit, err := ledger.Open(context.Background(), store)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := audit.Append(context.Background(), ledger.EventDecision, map[string]any{"n": i})
		require.NoError(t, err)
	}
	store.Tamper(2, func(e *ledger.Entry) {
		e.Payload = json.RawMessage(`{"n":99}`)
	})

	s := NewServer(DefaultServerConfig(), audit, stubExpectancy{}, NewStatusBoard(), NewHub(), metrics.NewCollector(), "test")

	rec := doRequest(s, http.MethodGet, "/ledger/verify")
	assert.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Intact   bool   `json:"intact"`
		FirstBad uint64 `json:"first_bad"`
	}
	decodeBody(t, rec, &body)
	assert.False(t, body.Intact)
	assert.Equal(t, uint64(2), body.FirstBad)
}

func TestServer_RegimeEndpoints(t *testing.T) {
	s, _, board := newTestServer(t)
	board.SetRegime("AAPL", regime.Estimate{
		Probabilities: [4]float64{0.7, 0.2, 0.05, 0.05},
		Dominant:      domain.Trending,
		Confidence:    0.7,
	})

	rec := doRequest(s, http.MethodGet, "/regime/AAPL")
	assert.Equal(t, http.StatusOK, rec.Code)

	var status SymbolStatus
	decodeBody(t, rec, &status)
	assert.Equal(t, "TRENDING", status.Regime)
	assert.InDelta(t, 0.7, status.Probs["TRENDING"], 1e-9)

	rec = doRequest(s, http.MethodGet, "/regime/UNKNOWN")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(s, http.MethodGet, "/regime")
	assert.Equal(t, http.StatusOK, rec.Code)
	var all []SymbolStatus
	decodeBody(t, rec, &all)
	require.Len(t, all, 1)
	assert.Equal(t, "AAPL", all[0].Symbol)
}

func TestServer_Decisions(t *testing.T) {
	s, _, board := newTestServer(t)
	board.SetDecision(domain.RiskDecision{Symbol: "MSFT", Accepted: true, Size: 0.85})
	board.SetRegime("AAPL", regime.Estimate{Dominant: domain.Ranging})

	rec := doRequest(s, http.MethodGet, "/decisions")
	assert.Equal(t, http.StatusOK, rec.Code)

	var decisions []domain.RiskDecision
	decodeBody(t, rec, &decisions)
	require.Len(t, decisions, 1)
	assert.Equal(t, "MSFT", decisions[0].Symbol)
}

func TestServer_Metrics(t *testing.T) {
	s, _, _ := newTestServer(t)

	rec := doRequest(s, http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_Expectancy(t *testing.T) {
	audit, err := ledger.Open(context.Background(), ledger.NewMemoryStore())
	require.NoError(t, err)
	exp := stubExpectancy{estimates: []expectancy.Estimate{{
		Key:      domain.ExpectancyKey{Strategy: "momentum_breakout", Regime: "TRENDING", Class: "stock"},
		Samples:  30,
		WinRate:  0.5,
		Weighted: 0.3,
	}}}
	s := NewServer(DefaultServerConfig(), audit, exp, NewStatusBoard(), NewHub(), metrics.NewCollector(), "test")

	rec := doRequest(s, http.MethodGet, "/expectancy")
	assert.Equal(t, http.StatusOK, rec.Code)

	var estimates []expectancy.Estimate
	decodeBody(t, rec, &estimates)
	require.Len(t, estimates, 1)
	assert.Equal(t, "momentum_breakout", estimates[0].Key.Strategy)
}

func TestStatusBoard_MergesRegimeAndDecision(t *testing.T) {
	board := NewStatusBoard()
	board.SetRegime("AAPL", regime.Estimate{Dominant: domain.Trending, Confidence: 0.8})
	board.SetDecision(domain.RiskDecision{Symbol: "AAPL", Accepted: false, Reason: domain.ReasonStopTooWide})

	status, ok := board.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, "TRENDING", status.Regime)
	require.NotNil(t, status.Decision)
	assert.Equal(t, domain.ReasonStopTooWide, status.Decision.Reason)
}

func TestStatusBoard_AllSorted(t *testing.T) {
	board := NewStatusBoard()
	for _, sym := range []string{"NVDA", "AAPL", "MSFT"} {
		board.SetRegime(sym, regime.Estimate{Dominant: domain.Ranging})
	}

	all := board.All()
	require.Len(t, all, 3)
	assert.Equal(t, "AAPL", all[0].Symbol)
	assert.Equal(t, "MSFT", all[1].Symbol)
	assert.Equal(t, "NVDA", all[2].Symbol)
}
