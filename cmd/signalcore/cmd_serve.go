package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tradeedge/signalcore/internal/httpapi"
	"github.com/tradeedge/signalcore/internal/scan"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	interval, _ := cmd.Flags().GetDuration("interval")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer eng.close()

	board := httpapi.NewStatusBoard()
	hub := httpapi.NewHub()
	srvCfg := httpapi.DefaultServerConfig()
	srvCfg.Addr = cfg.HTTP.Addr
	server := httpapi.NewServer(srvCfg, eng.audit, eng.tracker, board, hub, eng.collector, version)

	serverErr := make(chan error, 1)
	go func() { serverErr <- server.Start() }()

	results := make(chan scan.SymbolResult, 64)
	go func() {
		for r := range results {
			if r.Est != nil {
				board.SetRegime(r.Symbol, *r.Est)
			}
			if r.Decision == nil {
				continue
			}
			board.SetDecision(*r.Decision)
			hub.Broadcast(*r.Decision)
		}
	}()

	sweepTicker := time.NewTicker(24 * time.Hour)
	defer sweepTicker.Stop()

	log.Info().Dur("interval", interval).Int("universe", len(cfg.Universe)).
		Msg("Scan loop starting")

	for {
		report, err := eng.orchestrator.Run(ctx, cfg.Universe, results)
		if err != nil {
			break
		}
		if report.MarketRegime != "" {
			eng.book.SetRegime(report.MarketRegime)
		}

		select {
		case <-ctx.Done():
		case err := <-serverErr:
			if err != nil {
				close(results)
				return err
			}
		case <-sweepTicker.C:
			runSweeps(ctx, eng)
			continue
		case <-time.After(interval):
			continue
		}
		break
	}

	close(results)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown failed")
	}
	log.Info().Msg("Shutdown complete")
	return nil
}

func runSweeps(ctx context.Context, eng *engine) {
	// Only the trade journal is pruned. The audit ledger is append-only and
	// sweeping it would break every chain verification after the cut.
	if _, err := eng.tracker.Sweep(ctx, eng.cfg.GetJournalRetention()); err != nil {
		log.Warn().Err(err).Msg("Expectancy sweep failed")
	}
}
