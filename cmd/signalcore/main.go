package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const (
	appName = "signalcore"
	version = "v2.0.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
	}

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Trading signal governance engine",
		Version: version,
		Long: `signalcore scans an instrument universe, classifies the market regime per
symbol, scores candidate signals, and governs each one through a two-tier
risk gate. Every decision lands on a hash-chained audit ledger.`,
	}
	rootCmd.PersistentFlags().String("config", "config/signalcore.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace|debug|info|warn|error)")

	scanCmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one scan cycle over the configured universe",
		RunE:  runScan,
	}
	scanCmd.Flags().StringSlice("symbols", nil, "Override the configured universe")
	scanCmd.Flags().Bool("dry-run", false, "Audit to memory instead of PostgreSQL")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run continuous scan cycles with the HTTP API",
		RunE:  runServe,
	}
	serveCmd.Flags().Duration("interval", 5*time.Minute, "Delay between scan cycles")

	verifyCmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify audit ledger hash-chain integrity",
		RunE:  runVerify,
	}
	verifyCmd.Flags().Uint64("from", 1, "First sequence to verify")
	verifyCmd.Flags().Uint64("to", 0, "Last sequence to verify (0 = head)")

	expectancyCmd := &cobra.Command{
		Use:   "expectancy",
		Short: "Print the current expectancy table",
		RunE:  runExpectancy,
	}

	summaryCmd := &cobra.Command{
		Use:   "summary",
		Short: "Print a compliance summary of recent decisions",
		RunE:  runSummary,
	}
	summaryCmd.Flags().Int("days", 30, "Window size in days")

	rootCmd.AddCommand(scanCmd, serveCmd, verifyCmd, expectancyCmd, summaryCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("Command failed")
		os.Exit(1)
	}
}

func setLogLevel(cmd *cobra.Command) {
	level, _ := cmd.Flags().GetString("log-level")
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(parsed)
}
