// Package httpapi exposes the read-only operational surface: health,
// Prometheus metrics, ledger queries and verification, regime and
// expectancy snapshots, and a websocket feed of governing decisions.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/tradeedge/signalcore/internal/expectancy"
	"github.com/tradeedge/signalcore/internal/ledger"
	"github.com/tradeedge/signalcore/internal/metrics"
)

// ExpectancySource provides the expectancy table snapshot.
type ExpectancySource interface {
	Snapshot() []expectancy.Estimate
}

// Server is the read-only HTTP server. It never mutates engine state.
type Server struct {
	router *mux.Router
	server *http.Server

	audit      *ledger.Ledger
	exp        ExpectancySource
	board      *StatusBoard
	hub        *Hub
	collector  *metrics.Collector
	startedAt  time.Time
	appVersion string
}

// Config holds server listen settings.
type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

func DefaultServerConfig() Config {
	return Config{
		Addr:         ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// NewServer wires routes against live engine components.
func NewServer(cfg Config, audit *ledger.Ledger, exp ExpectancySource, board *StatusBoard, hub *Hub, collector *metrics.Collector, appVersion string) *Server {
	if cfg.Addr == "" {
		cfg = DefaultServerConfig()
	}
	s := &Server{
		router:     mux.NewRouter(),
		audit:      audit,
		exp:        exp,
		board:      board,
		hub:        hub,
		collector:  collector,
		startedAt:  time.Now().UTC(),
		appVersion: appVersion,
	}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.requestLoggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.Handle("/metrics", promhttp.HandlerFor(s.collector.Registry(), promhttp.HandlerOpts{})).Methods("GET")

	s.router.HandleFunc("/ledger", s.handleLedgerRange).Methods("GET")
	s.router.HandleFunc("/ledger/verify", s.handleLedgerVerify).Methods("GET")
	s.router.HandleFunc("/ledger/summary", s.handleLedgerSummary).Methods("GET")

	s.router.HandleFunc("/regime", s.handleRegime).Methods("GET")
	s.router.HandleFunc("/regime/{symbol}", s.handleRegimeSymbol).Methods("GET")
	s.router.HandleFunc("/expectancy", s.handleExpectancy).Methods("GET")
	s.router.HandleFunc("/decisions", s.handleDecisions).Methods("GET")

	s.router.HandleFunc("/ws", s.hub.HandleWS)
}

// Start blocks serving requests until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("HTTP server starting")
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.hub.Close()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.appVersion,
		"uptime":  time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleLedgerRange(w http.ResponseWriter, r *http.Request) {
	from := parseUint(r.URL.Query().Get("from"), 1)
	to := parseUint(r.URL.Query().Get("to"), 0)
	entries, err := s.audit.Entries(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"from":    from,
		"to":      to,
		"count":   len(entries),
		"entries": entries,
	})
}

func (s *Server) handleLedgerVerify(w http.ResponseWriter, r *http.Request) {
	from := parseUint(r.URL.Query().Get("from"), 1)
	to := parseUint(r.URL.Query().Get("to"), 0)
	err := s.audit.Verify(r.Context(), from, to)
	var iErr *ledger.IntegrityError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]any{"intact": true})
	case errors.As(err, &iErr):
		writeJSON(w, http.StatusOK, map[string]any{
			"intact":    false,
			"first_bad": iErr.Seq,
			"detail":    iErr.Error(),
		})
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleLedgerSummary(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.Add(-30 * 24 * time.Hour)
	if v := r.URL.Query().Get("from"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			from = t
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			to = t
		}
	}
	summary, err := s.audit.Summarize(r.Context(), from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) handleRegime(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.board.All())
}

func (s *Server) handleRegimeSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	status, ok := s.board.Get(symbol)
	if !ok {
		writeError(w, http.StatusNotFound, errors.New("symbol not scanned"))
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleExpectancy(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.exp.Snapshot())
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.board.Decisions())
}

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := uuid.New().String()[:8]
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requestLoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debug().Err(err).Msg("Failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func parseUint(s string, def uint64) uint64 {
	if s == "" {
		return def
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return def
	}
	return v
}
