package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spf13/cobra"
)

func runExpectancy(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	eng, err := buildEngine(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer eng.close()

	estimates := eng.tracker.Snapshot()
	if len(estimates) == 0 {
		fmt.Println("No trade outcomes recorded yet")
		return nil
	}
	sort.Slice(estimates, func(i, j int) bool {
		return estimates[i].Weighted > estimates[j].Weighted
	})

	fmt.Printf("%-20s %-10s %-8s %5s %6s %7s %7s %6s %8s\n",
		"STRATEGY", "REGIME", "CLASS", "N", "WIN%", "AVGWIN", "AVGLOSS", "CONF", "WEIGHTED")
	for _, e := range estimates {
		fmt.Printf("%-20s %-10s %-8s %5d %5.1f%% %6.2fR %6.2fR %6.2f %8.3f\n",
			e.Key.Strategy, e.Key.Regime, e.Key.Class, e.Samples,
			e.WinRate*100, e.AvgWinR, e.AvgLossR, e.Confidence, e.Weighted)
	}
	return nil
}

func runSummary(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	days, _ := cmd.Flags().GetInt("days")

	ctx := context.Background()
	eng, err := buildEngine(ctx, cfg, false)
	if err != nil {
		return err
	}
	defer eng.close()

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -days)
	summary, err := eng.audit.Summarize(ctx, from, to)
	if err != nil {
		return err
	}

	fmt.Printf("Compliance summary %s to %s\n", from.Format("2006-01-02"), to.Format("2006-01-02"))
	fmt.Printf("  entries:     %d\n", summary.Entries)
	fmt.Printf("  accepted:    %d\n", summary.Accepted)
	fmt.Printf("  rejected:    %d\n", summary.Rejected)
	fmt.Printf("  kill events: %d\n", summary.KillEvents)
	if len(summary.ByReason) > 0 {
		fmt.Println("  rejections by reason:")
		reasons := make([]string, 0, len(summary.ByReason))
		for r := range summary.ByReason {
			reasons = append(reasons, r)
		}
		sort.Strings(reasons)
		for _, r := range reasons {
			fmt.Printf("    %-24s %d\n", r, summary.ByReason[r])
		}
	}
	return nil
}
