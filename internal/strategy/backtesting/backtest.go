package backtesting

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
	"confluenceBot/internal/strategy"
	"confluenceBot/internal/strategy/analytics"
)

// BacktestConfig holds configuration for backtesting
type BacktestConfig struct {
	RunID             string // generated when empty
	Symbol            string
	Interval          string
	ComparisonSymbols []string // defaults to the keys of Data.Comparison
	TickSize          float64  // overrides the parameter file when > 0
}

// Data is the bar history replayed by Backtest. Each slice must be in
// chronological order.
type Data struct {
	Primary    []*domain.Bar
	Higher     []*domain.Bar
	Comparison map[string][]*domain.Bar
}

// Dependencies are the collaborators of a backtest. Only Logger is required.
type Dependencies struct {
	Logger   ports.Logger
	Journal  ports.SignalJournal
	Trades   ports.TradeRepository
	Draws    ports.DrawSink
	Observer ports.EngineObserver
}

// BacktestResult holds the results of a backtest
type BacktestResult struct {
	RunID    string
	Stats    strategy.Stats
	Signals  []*domain.Signal
	Orders   []*domain.EntryOrder
	Trades   []domain.Trade
	Report   *analytics.Report
	Duration time.Duration
}

// Backtest replays data through a fresh engine and simulates every entry
// leg with a Broker.
func Backtest(ctx context.Context, cfg BacktestConfig, params *config.Params, data Data, deps Dependencies) (*BacktestResult, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required for backtest")
	}
	if len(data.Primary) == 0 {
		return nil, fmt.Errorf("%w: no primary bars", ports.ErrInsufficientData)
	}
	started := time.Now()
	if cfg.RunID == "" {
		cfg.RunID = uuid.NewString()
	}
	if len(cfg.ComparisonSymbols) == 0 {
		cfg.ComparisonSymbols = sortedKeys(data.Comparison)
	}

	// 1. Journal
	if deps.Journal != nil {
		err := deps.Journal.StartRun(ctx, &ports.Run{
			ID:        cfg.RunID,
			Mode:      "backtest",
			Symbol:    cfg.Symbol,
			Interval:  cfg.Interval,
			StartedAt: started.UTC(),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to start run: %w", err)
		}
	}

	// 2. Broker and engine
	broker, err := NewBroker(BrokerConfig{Logger: deps.Logger, Journal: deps.Journal, Trades: deps.Trades})
	if err != nil {
		return nil, err
	}
	engine, err := strategy.New(strategy.Config{
		RunID:             cfg.RunID,
		Symbol:            cfg.Symbol,
		ComparisonSymbols: cfg.ComparisonSymbols,
		HigherTimeframe:   len(data.Higher) > 0,
		TickSize:          cfg.TickSize,
	}, params, strategy.Dependencies{
		Logger:    deps.Logger,
		Sink:      broker,
		Positions: broker,
		Observer:  deps.Observer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	deps.Logger.Info(ctx, "Backtest started", map[string]interface{}{
		"runID":      cfg.RunID,
		"symbol":     cfg.Symbol,
		"primary":    len(data.Primary),
		"higher":     len(data.Higher),
		"comparison": cfg.ComparisonSymbols,
	})

	// 3. Replay
	result := &BacktestResult{RunID: cfg.RunID}
	for _, ev := range MergeEvents(data) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("backtest interrupted: %w", err)
		}
		if ev.Series == domain.SeriesPrimary {
			bar := ev.Bar
			bar.Index = engine.Stats().PrimaryBars
			broker.OnBar(ctx, bar)
		}
		// Faults are logged and counted by the engine; the replay goes on.
		out, _ := engine.OnBar(ctx, ev)
		result.Signals = append(result.Signals, out.Signals...)
		result.Orders = append(result.Orders, out.Orders...)
		record(ctx, deps, cfg.RunID, out)
	}
	broker.CloseAll(ctx, domain.CloseReasonEndOfData)

	// 4. Results
	result.Stats = engine.Stats()
	result.Trades = broker.Trades()
	result.Report = analytics.AnalyzePerformance(result.Trades)
	result.Duration = time.Since(started)

	deps.Logger.Info(ctx, "Backtest finished", map[string]interface{}{
		"runID":    cfg.RunID,
		"bars":     result.Stats.PrimaryBars,
		"signals":  result.Stats.Signals,
		"entries":  result.Stats.Entries,
		"blocked":  result.Stats.Blocked,
		"faults":   result.Stats.Faults,
		"trades":   len(result.Trades),
		"netPnL":   result.Report.Overall.NetPnL,
		"duration": result.Duration.String(),
	})
	return result, nil
}

// record forwards one bar's signals and draws to the journal and draw sink.
func record(ctx context.Context, deps Dependencies, runID string, out strategy.BarOutput) {
	if deps.Journal != nil {
		for _, sig := range out.Signals {
			if err := deps.Journal.RecordSignal(ctx, runID, sig); err != nil {
				deps.Logger.Error(ctx, err, "Failed to journal signal", map[string]interface{}{"signal": sig.ID})
			}
		}
	}
	for _, cmd := range out.Draws {
		if deps.Draws != nil {
			if err := deps.Draws.Draw(ctx, cmd); err != nil {
				deps.Logger.Warn(ctx, "Draw command rejected", map[string]interface{}{"tag": cmd.Tag, "error": err.Error()})
			}
		}
		if deps.Journal != nil {
			if err := deps.Journal.RecordDraw(ctx, runID, cmd); err != nil {
				deps.Logger.Error(ctx, err, "Failed to journal draw command", map[string]interface{}{"tag": cmd.Tag})
			}
		}
	}
}

// seriesRank orders events that close at the same instant: context series
// come before the primary bar so it sees everything that closed with it.
var seriesRank = map[domain.SeriesKind]int{
	domain.SeriesHigher:     0,
	domain.SeriesComparison: 1,
	domain.SeriesPrimary:    2,
}

// MergeEvents interleaves all series by close time.
func MergeEvents(data Data) []domain.BarEvent {
	n := len(data.Primary) + len(data.Higher)
	for _, bars := range data.Comparison {
		n += len(bars)
	}
	events := make([]domain.BarEvent, 0, n)
	add := func(kind domain.SeriesKind, symbol string, bars []*domain.Bar) {
		for _, b := range bars {
			if b == nil {
				continue
			}
			bar := *b
			bar.Series = kind
			if symbol != "" {
				bar.Symbol = symbol
			}
			events = append(events, domain.BarEvent{Series: kind, Bar: bar})
		}
	}
	add(domain.SeriesPrimary, "", data.Primary)
	add(domain.SeriesHigher, "", data.Higher)
	for _, symbol := range sortedKeys(data.Comparison) {
		add(domain.SeriesComparison, symbol, data.Comparison[symbol])
	}

	sort.SliceStable(events, func(i, j int) bool {
		a, b := events[i], events[j]
		if !a.Bar.CloseTime.Equal(b.Bar.CloseTime) {
			return a.Bar.CloseTime.Before(b.Bar.CloseTime)
		}
		return seriesRank[a.Series] < seriesRank[b.Series]
	})
	return events
}

func sortedKeys(m map[string][]*domain.Bar) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
