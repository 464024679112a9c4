package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tradeedge/signalcore/internal/config"
	"github.com/tradeedge/signalcore/internal/data"
	"github.com/tradeedge/signalcore/internal/expectancy"
	"github.com/tradeedge/signalcore/internal/ledger"
	"github.com/tradeedge/signalcore/internal/metrics"
	"github.com/tradeedge/signalcore/internal/regime"
	"github.com/tradeedge/signalcore/internal/risk"
	"github.com/tradeedge/signalcore/internal/scan"
	"github.com/tradeedge/signalcore/internal/strategy"
)

// engine is the assembled runtime: every component the commands need.
type engine struct {
	cfg          config.Config
	db           *sqlx.DB
	orchestrator *scan.Orchestrator
	tracker      *expectancy.Tracker
	audit        *ledger.Ledger
	book         *risk.Book
	collector    *metrics.Collector
	fetcher      *data.Fetcher
}

// loadConfig resolves the config path flag and loads the file, falling back
// to built-in defaults when the file does not exist.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	setLogLevel(cmd)
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("Config not loaded, using defaults")
		cfg = config.Defaults()
	}
	return cfg, nil
}

// buildEngine wires the full pipeline. dryRun keeps the ledger and the
// expectancy journal in memory; otherwise both persist to PostgreSQL.
func buildEngine(ctx context.Context, cfg config.Config, dryRun bool) (*engine, error) {
	e := &engine{cfg: cfg, collector: metrics.NewCollector()}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" && !dryRun {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Msg("Redis unavailable, caching in memory only")
			rdb = nil
		}
	}

	e.fetcher = data.NewFetcher(cfg.Data, data.NewCSVSource(cfg.Data.BarsDir), rdb)

	var journal expectancy.Journal
	var auditStore ledger.Store
	if dryRun || cfg.Postgres.DSN == "" {
		auditStore = ledger.NewMemoryStore()
	} else {
		db, err := sqlx.ConnectContext(ctx, "postgres", cfg.Postgres.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		e.db = db
		journal, err = expectancy.NewPGJournal(db, 10*time.Second)
		if err != nil {
			return nil, err
		}
		auditStore, err = ledger.NewPGStore(ctx, db)
		if err != nil {
			return nil, err
		}
	}

	e.tracker = expectancy.NewTracker(cfg.Expectancy, journal)
	if journal != nil {
		if err := e.tracker.Restore(ctx); err != nil {
			log.Warn().Err(err).Msg("Expectancy restore failed, starting cold")
		}
	}

	audit, err := ledger.Open(ctx, auditStore)
	if err != nil {
		return nil, err
	}
	e.audit = audit

	classifier := regime.NewClassifier(cfg.Regime)
	e.book = risk.NewBook(100_000)
	governor := risk.NewGovernor(cfg.Risk, data.NewCorrelator(e.fetcher))
	candidates := strategy.NewBreakout(e.fetcher, nil)

	e.orchestrator = scan.NewOrchestrator(
		cfg.Scan, e.fetcher, candidates, classifier,
		e.tracker, governor, e.book, audit, e.collector,
	)
	return e, nil
}

func (e *engine) close() {
	if e.db != nil {
		if err := e.db.Close(); err != nil {
			log.Debug().Err(err).Msg("Failed to close database")
		}
	}
}
