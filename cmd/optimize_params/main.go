package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"confluenceBot/config"
	"confluenceBot/internal/adapters/logger"
	"confluenceBot/internal/strategy/backtesting"
	"confluenceBot/internal/strategy/optimization"
	"confluenceBot/internal/utils"
)

// rangeFlags collects repeated -range name=min:max:step values.
type rangeFlags []optimization.ParameterRange

func (r *rangeFlags) String() string { return fmt.Sprint(len(*r)) }

func (r *rangeFlags) Set(s string) error {
	name, bounds, ok := strings.Cut(s, "=")
	if !ok {
		return fmt.Errorf("expected name=min:max:step, got %q", s)
	}
	parts := strings.Split(bounds, ":")
	if len(parts) != 3 {
		return fmt.Errorf("expected min:max:step for %s, got %q", name, bounds)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		v[i] = f
	}
	isInt := v[0] == math.Trunc(v[0]) && v[1] == math.Trunc(v[1]) && v[2] == math.Trunc(v[2])
	*r = append(*r, optimization.ParameterRange{Name: name, Min: v[0], Max: v[1], Step: v[2], IsInt: isInt})
	return nil
}

func main() {
	// 1. Load Configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	var ranges rangeFlags
	primaryFile := flag.String("primary", "", "CSV file with primary timeframe bars (required)")
	higherFile := flag.String("higher", "", "CSV file with higher timeframe bars")
	paramsFile := flag.String("params", cfg.StrategyParamsPath, "base strategy parameter YAML file")
	workers := flag.Int("workers", 0, "parallel backtests, 0 uses all CPUs")
	top := flag.Int("top", 10, "number of results to print")
	flag.Var(&ranges, "range", "parameter range as name=min:max:step, repeatable")
	flag.Parse()

	appLogger := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	ctx := context.Background()

	if *primaryFile == "" || len(ranges) == 0 {
		log.Fatalf("FATAL: -primary and at least one -range are required")
	}

	// 2. Load parameters and bars
	base, _, err := config.LoadParams(*paramsFile)
	if err != nil {
		log.Fatalf("FATAL: Failed to load strategy parameters: %v", err)
	}
	data := backtesting.Data{}
	if data.Primary, err = utils.ReadBarsFromCSV(*primaryFile); err != nil {
		log.Fatalf("FATAL: Failed to load primary bars: %v", err)
	}
	if *higherFile != "" {
		if data.Higher, err = utils.ReadBarsFromCSV(*higherFile); err != nil {
			log.Fatalf("FATAL: Failed to load higher timeframe bars: %v", err)
		}
	}

	// 3. Optimize
	optimizer, err := optimization.NewOptimizer(optimization.OptimizerConfig{
		ParameterRanges: ranges,
		Backtest:        backtesting.BacktestConfig{Symbol: cfg.Symbol, Interval: cfg.Interval, TickSize: cfg.TickSize},
		Logger:          appLogger,
		Workers:         *workers,
	})
	if err != nil {
		log.Fatalf("FATAL: %v", err)
	}
	results, err := optimizer.Optimize(ctx, base, data)
	if err != nil {
		appLogger.Error(ctx, err, "Optimization failed")
		log.Fatalf("FATAL: Optimization failed: %v", err)
	}
	appLogger.Info(ctx, "Optimization finished", map[string]interface{}{"combinations": len(results)})

	// 4. Report
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.AlignRight|tabwriter.Debug)
	header := "Score\tTrades\tWinRate\tPF\tAvgR\t"
	for _, r := range ranges {
		header += r.Name + "\t"
	}
	fmt.Fprintln(w, header)
	for i, res := range results {
		if i == *top {
			break
		}
		row := fmt.Sprintf("%.3f\t%d\t%.2f\t%.2f\t%.2f\t", res.Score, res.Metrics.TotalTrades, res.Metrics.WinRate*100, res.Metrics.ProfitFactor, res.Metrics.AverageR)
		for _, r := range ranges {
			row += strconv.FormatFloat(res.Parameters[r.Name], 'f', -1, 64) + "\t"
		}
		fmt.Fprintln(w, row)
	}
	w.Flush()
}
