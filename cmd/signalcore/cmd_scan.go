package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tradeedge/signalcore/internal/scan"
)

func runScan(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if symbols, _ := cmd.Flags().GetStringSlice("symbols"); len(symbols) > 0 {
		cfg.Universe = symbols
	}
	if len(cfg.Universe) == 0 {
		return fmt.Errorf("no universe configured; set universe in config or pass --symbols")
	}
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := buildEngine(ctx, cfg, dryRun)
	if err != nil {
		return err
	}
	defer eng.close()

	results := make(chan scan.SymbolResult, len(cfg.Universe))
	done := make(chan struct{})
	go func() {
		defer close(done)
		for r := range results {
			printResult(r)
		}
	}()

	report, err := eng.orchestrator.Run(ctx, cfg.Universe, results)
	close(results)
	<-done
	if err != nil {
		return err
	}

	fmt.Printf("\nScanned %d symbols in %s: %d accepted, %d rejected, %d skipped, %d failed\n",
		report.Universe, report.Duration.Round(time.Millisecond), report.Accepted,
		report.Rejected, report.Skipped, report.Failed)
	return nil
}

func printResult(r scan.SymbolResult) {
	switch {
	case r.Err != nil:
		fmt.Printf("  %-8s ERROR    %v\n", r.Symbol, r.Err)
	case r.Skipped:
		fmt.Printf("  %-8s skipped\n", r.Symbol)
	case r.Decision.Accepted:
		fmt.Printf("  %-8s ACCEPT   score=%d rr=%.2f size=%.2f%% regime=%s\n",
			r.Symbol, r.Decision.Score, r.Decision.RiskReward, r.Decision.Size, r.Decision.Regime)
	default:
		fmt.Printf("  %-8s REJECT   %s: %s\n", r.Symbol, r.Decision.Reason, r.Decision.Detail)
	}
	if r.Decision != nil && r.Decision.Advice != "" {
		log.Info().Str("symbol", r.Symbol).Str("advice", string(r.Decision.Advice)).
			Msg("Risk advice")
	}
}
