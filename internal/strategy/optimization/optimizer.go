package optimization

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"

	"confluenceBot/config"
	"confluenceBot/internal/ports"
	"confluenceBot/internal/strategy/analytics"
	"confluenceBot/internal/strategy/backtesting"
)

// ParameterRange defines a range for a parameter to optimize
type ParameterRange struct {
	Name  string // key of Setters
	Min   float64
	Max   float64
	Step  float64
	IsInt bool
}

// OptimizationResult holds the results of a parameter optimization
type OptimizationResult struct {
	Parameters map[string]float64
	Metrics    *analytics.PerformanceMetrics
	Score      float64
}

// OptimizerConfig holds configuration for the optimizer
type OptimizerConfig struct {
	ParameterRanges []ParameterRange
	Backtest        backtesting.BacktestConfig
	Logger          ports.Logger
	Workers         int // defaults to GOMAXPROCS
	ScoreFunction   func(*analytics.PerformanceMetrics) float64
}

// Setters maps a parameter name to the field it writes.
var Setters = map[string]func(p *config.Params, v float64){
	"bos.pivot_left_bars":           func(p *config.Params, v float64) { p.BOS.PivotLeftBars = int(v) },
	"bos.pivot_right_bars":          func(p *config.Params, v float64) { p.BOS.PivotRightBars = int(v) },
	"bos.max_bars_to_break":         func(p *config.Params, v float64) { p.BOS.MaxBarsToBreak = int(v) },
	"bos.stop_loss_plus_ticks":      func(p *config.Params, v float64) { p.BOS.StopLossPlusTicks = int(v) },
	"fvg.max_bars_to_retest":        func(p *config.Params, v float64) { p.FVG.MaxBarsToRetest = int(v) },
	"fvg.max_bars_after_retest":     func(p *config.Params, v float64) { p.FVG.MaxBarsAfterRetest = int(v) },
	"ifvg.max_pending_bars":         func(p *config.Params, v float64) { p.IFVG.MaxPendingBars = int(v) },
	"smt.pivot_lookback":            func(p *config.Params, v float64) { p.SMT.PivotLookback = int(v) },
	"heiken_ashi.smoothing_period":  func(p *config.Params, v float64) { p.HeikenAshi.SmoothingPeriod = int(v) },
	"premium_discount.swing_length": func(p *config.Params, v float64) { p.PremiumDiscount.SwingLength = int(v) },
	"premium_discount.zone_percent": func(p *config.Params, v float64) { p.PremiumDiscount.ZonePercent = v },
	"leg1.custom_stop_ticks":        func(p *config.Params, v float64) { p.Leg1.CustomStopTicks = int(v) },
	"leg1.custom_target_ticks":      func(p *config.Params, v float64) { p.Leg1.CustomTargetTicks = int(v) },
}

// Optimizer runs one backtest per parameter combination.
type Optimizer struct {
	config OptimizerConfig
}

// NewOptimizer creates a new optimizer instance
func NewOptimizer(cfg OptimizerConfig) (*Optimizer, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for optimizer")
	}
	for _, r := range cfg.ParameterRanges {
		if _, ok := Setters[r.Name]; !ok {
			return nil, fmt.Errorf("%w: unknown parameter %q", ports.ErrConfigurationError, r.Name)
		}
		if r.Step <= 0 || r.Max < r.Min {
			return nil, fmt.Errorf("%w: bad range for %q", ports.ErrConfigurationError, r.Name)
		}
	}
	if cfg.ScoreFunction == nil {
		cfg.ScoreFunction = DefaultScoreFunction
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Optimizer{config: cfg}, nil
}

// Optimize backtests every combination on top of base and returns the
// results by descending score. Combinations the parameter rules reject are
// skipped.
func (o *Optimizer) Optimize(ctx context.Context, base *config.Params, data backtesting.Data) ([]OptimizationResult, error) {
	combinations := o.generateParameterCombinations()
	results := make([]OptimizationResult, 0, len(combinations))

	resultChan := make(chan OptimizationResult, len(combinations))
	errChan := make(chan error, len(combinations))
	sem := make(chan struct{}, o.config.Workers)
	var wg sync.WaitGroup

	for _, values := range combinations {
		params, err := apply(base, values)
		if err != nil {
			o.config.Logger.Debug(ctx, "Skipping invalid parameter combination", map[string]interface{}{"params": values, "error": err.Error()})
			continue
		}

		wg.Add(1)
		go func(values map[string]float64, params *config.Params) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			result, err := backtesting.Backtest(ctx, o.config.Backtest, params, data, backtesting.Dependencies{Logger: o.config.Logger})
			if err != nil {
				errChan <- err
				return
			}
			metrics := result.Report.Overall
			resultChan <- OptimizationResult{
				Parameters: values,
				Metrics:    metrics,
				Score:      o.config.ScoreFunction(metrics),
			}
		}(values, params)
	}

	wg.Wait()
	close(resultChan)
	close(errChan)

	if err := <-errChan; err != nil {
		return nil, fmt.Errorf("optimization backtest failed: %w", err)
	}
	for result := range resultChan {
		results = append(results, result)
	}

	sortResultsByScore(results)
	return results, nil
}

// apply copies base and writes values into it.
func apply(base *config.Params, values map[string]float64) (*config.Params, error) {
	params := *base
	for name, v := range values {
		Setters[name](&params, v)
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &params, nil
}

// generateParameterCombinations generates all possible parameter combinations
func (o *Optimizer) generateParameterCombinations() []map[string]float64 {
	var combinations []map[string]float64
	current := make(map[string]float64)

	var generate func(int)
	generate = func(paramIndex int) {
		if paramIndex == len(o.config.ParameterRanges) {
			combination := make(map[string]float64, len(current))
			for k, v := range current {
				combination[k] = v
			}
			combinations = append(combinations, combination)
			return
		}

		param := o.config.ParameterRanges[paramIndex]
		steps := int(math.Floor((param.Max-param.Min)/param.Step + 1e-9))
		for i := 0; i <= steps; i++ {
			value := param.Min + float64(i)*param.Step
			if param.IsInt {
				value = math.Round(value)
			} else {
				value = math.Round(value*1e9) / 1e9
			}
			current[param.Name] = value
			generate(paramIndex + 1)
		}
	}

	generate(0)
	return combinations
}

// sortResultsByScore sorts optimization results by score in descending order
func sortResultsByScore(results []OptimizationResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// DefaultScoreFunction weighs hit rate, profit factor (capped at 10) and
// average R.
func DefaultScoreFunction(metrics *analytics.PerformanceMetrics) float64 {
	score := 0.0
	score += metrics.WinRate * 0.3
	score += math.Min(metrics.ProfitFactor, 10) * 0.2
	score += metrics.AverageR * 0.5
	return score
}
