package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"confluenceBot/internal/adapters/logger"
	"confluenceBot/internal/adapters/sqlite"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/strategy/analytics"
)

func main() {
	dbPath := flag.String("db", "./data/confluence_bot.db", "SQLite journal path")
	runs := flag.String("run", "", "comma separated run IDs (required)")
	flag.Parse()

	if *runs == "" {
		log.Fatalf("-run is required")
	}

	appLogger := logger.New(logger.Config{Level: logger.LevelWarn, Format: "console"})
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
	if err != nil {
		log.Fatalf("Error opening journal: %v", err)
	}
	defer repo.Close()

	ctx := context.Background()

	// Create a tabwriter for formatted output
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Run\tMode\tSignals\tTrades\tWinRate\tNetPnL\tPF\tTotalR\tAvgR\tMaxDD\t")

	reports := make(map[string]*analytics.Report)
	var order []string
	for _, runID := range strings.Split(*runs, ",") {
		runID = strings.TrimSpace(runID)
		run, err := repo.FindRun(ctx, runID)
		if err != nil {
			log.Printf("Error loading run %s: %v", runID, err)
			continue
		}
		signals, err := repo.FindSignals(ctx, runID)
		if err != nil {
			log.Printf("Error loading signals for %s: %v", runID, err)
			continue
		}
		stored, err := repo.FindByRun(ctx, runID)
		if err != nil {
			log.Printf("Error loading trades for %s: %v", runID, err)
			continue
		}

		trades := make([]domain.Trade, 0, len(stored))
		for _, t := range stored {
			trades = append(trades, *t)
		}
		report := analytics.AnalyzePerformance(trades)
		reports[runID] = report
		order = append(order, runID)

		m := report.Overall
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t\n",
			runID,
			run.Mode,
			len(signals),
			m.TotalTrades,
			m.WinRate*100,
			m.NetPnL,
			m.ProfitFactor,
			m.TotalR,
			m.AverageR,
			m.MaxDrawdown,
		)
	}
	w.Flush()

	for _, runID := range order {
		printBreakdown(runID, reports[runID])
	}
}

// printBreakdown prints per-leg, per-signal and per-exit tables for one run.
func printBreakdown(runID string, report *analytics.Report) {
	fmt.Printf("\n## %s by leg\n", runID)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Label\tTrades\tWinRate\tNetPnL\tTotalR\tAvgDuration\t")
	for _, label := range report.Labels() {
		m := report.ByLabel[label]
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t%s\t\n", label, m.TotalTrades, m.WinRate*100, m.NetPnL, m.TotalR, m.AverageTradeDuration)
	}
	w.Flush()

	fmt.Printf("\n## %s by signal\n", runID)
	w = tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	fmt.Fprintln(w, "Signal\tTrades\tWinRate\tNetPnL\tAvgR\t")
	for _, st := range report.SignalTypes() {
		m := report.BySignalType[st]
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.2f\t%.2f\t\n", st, m.TotalTrades, m.WinRate*100, m.NetPnL, m.AverageR)
	}
	w.Flush()

	reasons := make([]string, 0, len(report.ByCloseReason))
	for reason := range report.ByCloseReason {
		reasons = append(reasons, string(reason))
	}
	sort.Strings(reasons)
	fmt.Printf("\n## %s exits\n", runID)
	for _, reason := range reasons {
		fmt.Printf("%-12s %d\n", reason, report.ByCloseReason[domain.CloseReason(reason)])
	}
}
