package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"
	"sync"

	"confluenceBot/config"
	"confluenceBot/internal/adapters/draw"
	"confluenceBot/internal/adapters/logger"
	"confluenceBot/internal/adapters/metrics"
	"confluenceBot/internal/adapters/sqlite"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
	"confluenceBot/internal/strategy/backtesting"
	"confluenceBot/internal/utils"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	primaryFile := flag.String("primary", "", "CSV file with primary timeframe bars (required)")
	higherFile := flag.String("higher", "", "CSV file with higher timeframe bars")
	compare := flag.String("compare", "", "comparison bars as SYMBOL=file, comma separated")
	paramsFile := flag.String("params", cfg.StrategyParamsPath, "strategy parameter YAML file")
	dbPath := flag.String("db", "", "SQLite journal path, empty keeps the run in memory")
	tradesFile := flag.String("trades", "data/backtest_trades.csv", "output CSV for closed legs")
	flag.Parse()

	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx := context.Background()

	if *primaryFile == "" {
		log.Fatalf("FATAL: -primary is required")
	}

	// 2. Load strategy parameters
	params, adjustments, err := config.LoadParams(*paramsFile)
	if err != nil {
		appLogger.Error(ctx, err, "Failed to load strategy parameters")
		log.Fatalf("FATAL: Failed to load strategy parameters: %v", err)
	}
	for _, adj := range adjustments {
		appLogger.Warn(ctx, "Strategy parameter clamped", map[string]interface{}{"adjustment": adj.String()})
	}

	// 3. Load bars from CSV
	files := map[string]string{"primary": *primaryFile}
	if *higherFile != "" {
		files["higher"] = *higherFile
	}
	comparison, err := parseComparison(*compare)
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	for symbol, file := range comparison {
		files[symbol] = file
	}

	loaded := make(map[string][]*domain.Bar)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var loadErr error

	for key, file := range files {
		wg.Add(1)
		go func(key, file string) {
			defer wg.Done()

			bars, err := utils.ReadBarsFromCSV(file)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				appLogger.Error(ctx, err, "Error loading bars", map[string]interface{}{"series": key, "file": file})
				loadErr = err
				return
			}
			loaded[key] = bars
			appLogger.Info(ctx, "Loaded bars", map[string]interface{}{"series": key, "count": len(bars)})
		}(key, file)
	}
	wg.Wait()
	if loadErr != nil {
		log.Fatalf("FATAL: Failed to load bars: %v", loadErr)
	}

	data := backtesting.Data{
		Primary:    loaded["primary"],
		Higher:     loaded["higher"],
		Comparison: make(map[string][]*domain.Bar),
	}
	for symbol := range comparison {
		data.Comparison[symbol] = loaded[symbol]
	}

	symbol, interval := cfg.Symbol, cfg.Interval
	if len(data.Primary) > 0 {
		symbol, interval = data.Primary[0].Symbol, data.Primary[0].Interval
	}

	// 4. Journal
	deps := backtesting.Dependencies{
		Logger:   appLogger,
		Draws:    draw.NewScene(appLogger),
		Observer: metrics.New(),
	}
	if *dbPath != "" {
		repo, err := sqlite.NewRepository(sqlite.Config{DBPath: *dbPath, Logger: appLogger})
		if err != nil {
			appLogger.Error(ctx, err, "Failed to initialize database repository")
			log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
		}
		defer repo.Close()
		deps.Journal, deps.Trades = repo, repo
	}

	// 5. Run
	result, err := backtesting.Backtest(ctx, backtesting.BacktestConfig{
		Symbol:   symbol,
		Interval: interval,
		TickSize: cfg.TickSize,
	}, params, data, deps)
	if err != nil {
		appLogger.Error(ctx, err, "Backtest error")
		log.Fatalf("FATAL: Backtest error: %v", err)
	}

	// 6. Report
	overall := result.Report.Overall
	appLogger.Info(ctx, "Backtest result", map[string]interface{}{
		"runID":        result.RunID,
		"signals":      result.Stats.Signals,
		"entries":      result.Stats.Entries,
		"blocked":      result.Stats.Blocked,
		"trades":       overall.TotalTrades,
		"winRate":      overall.WinRate * 100,
		"netPnL":       overall.NetPnL,
		"profitFactor": overall.ProfitFactor,
		"totalR":       overall.TotalR,
		"averageR":     overall.AverageR,
		"maxDD":        overall.MaxDrawdown,
		"duration":     result.Duration.String(),
	})
	for _, label := range result.Report.Labels() {
		m := result.Report.ByLabel[label]
		appLogger.Info(ctx, "Leg result", map[string]interface{}{
			"label":   label,
			"trades":  m.TotalTrades,
			"winRate": m.WinRate * 100,
			"netPnL":  m.NetPnL,
			"totalR":  m.TotalR,
		})
	}
	for _, mr := range result.Report.GetMonthlyReturns() {
		appLogger.Info(ctx, "Monthly result", map[string]interface{}{"month": mr.Month.Format("2006-01"), "pnl": mr.Return})
	}
	if scene, ok := deps.Draws.(*draw.Scene); ok {
		adds, removes := scene.Counts()
		appLogger.Info(ctx, "Chart objects", map[string]interface{}{"live": scene.Len(), "adds": adds, "removes": removes})
	}

	if err := utils.WriteTradesToCSV(result.Trades, *tradesFile); err != nil {
		appLogger.Error(ctx, err, "Error writing trades CSV")
		log.Fatalf("FATAL: Error writing trades CSV: %v", err)
	}
	appLogger.Info(ctx, "Trades saved to", map[string]interface{}{"filename": *tradesFile})
}

// parseComparison parses "ETHUSDT=eth.csv,SOLUSDT=sol.csv".
func parseComparison(s string) (map[string]string, error) {
	out := make(map[string]string)
	if s == "" {
		return out, nil
	}
	for _, part := range strings.Split(s, ",") {
		symbol, file, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok || symbol == "" || file == "" {
			return nil, fmt.Errorf("%w: bad -compare entry %q", ports.ErrConfigurationError, part)
		}
		out[strings.ToUpper(symbol)] = file
	}
	if len(out) > 2 {
		return nil, fmt.Errorf("%w: at most two comparison symbols", ports.ErrConfigurationError)
	}
	return out, nil
}
