package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
	"confluenceBot/internal/strategy"
	"confluenceBot/internal/strategy/backtesting"
)

const (
	eventBufferSize = 256
	shutdownTimeout = 5 * time.Second
)

// ServiceConfig is the live service's slice of the application config.
type ServiceConfig struct {
	Mode              string // config.ModePaper or config.ModeLive
	Symbol            string
	Interval          string
	HTFInterval       string // empty disables the higher timeframe
	ComparisonSymbols []string
	TickSize          float64
	QuantityStep      float64
	WarmupBars        int
}

// ServiceDeps are the collaborators of the live service.
type ServiceDeps struct {
	Logger   ports.Logger
	Market   ports.MarketData
	Exchange ports.ExchangeClient // required in live mode
	Journal  ports.SignalJournal  // optional
	Trades   ports.TradeRepository
	Draws    ports.DrawSink
	Observer ports.EngineObserver
}

// LiveService feeds streamed bars into one engine. All stream callbacks are
// funnelled through a channel into the goroutine running Start, so the
// engine is only ever touched by that goroutine.
type LiveService struct {
	cfg    ServiceConfig
	deps   ServiceDeps
	logger ports.Logger
	runID  string

	engine *strategy.Engine
	broker *backtesting.Broker // paper mode only
	sink   *warmupSink

	events   chan domain.BarEvent
	lastSeen map[string]time.Time

	statsMu sync.Mutex
	stats   strategy.Stats
}

// warmupSink drops entries while history is replayed so that old bars never
// reach the exchange or the simulated book.
type warmupSink struct {
	next      ports.OrderSink
	positions ports.PositionReader
	warming   bool
}

func (w *warmupSink) SubmitEntry(ctx context.Context, order *domain.EntryOrder) error {
	if w.warming {
		return nil
	}
	return w.next.SubmitEntry(ctx, order)
}

func (w *warmupSink) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	if w.warming {
		return false, nil
	}
	return w.positions.HasOpenPosition(ctx, symbol)
}

// NewLiveService validates the configuration and builds the engine.
func NewLiveService(cfg ServiceConfig, params *config.Params, deps ServiceDeps) (*LiveService, error) {
	if deps.Logger == nil || deps.Market == nil || params == nil {
		return nil, fmt.Errorf("missing required dependencies for LiveService")
	}
	if cfg.Symbol == "" || cfg.Interval == "" {
		return nil, fmt.Errorf("%w: symbol and interval are required", ports.ErrConfigurationError)
	}

	s := &LiveService{
		cfg:      cfg,
		deps:     deps,
		logger:   deps.Logger,
		runID:    uuid.NewString(),
		events:   make(chan domain.BarEvent, eventBufferSize),
		lastSeen: make(map[string]time.Time),
		sink:     &warmupSink{},
	}

	switch cfg.Mode {
	case config.ModePaper:
		broker, err := backtesting.NewBroker(backtesting.BrokerConfig{Logger: deps.Logger, Journal: deps.Journal, Trades: deps.Trades})
		if err != nil {
			return nil, err
		}
		s.broker = broker
		s.sink.next, s.sink.positions = broker, broker
	case config.ModeLive:
		if deps.Exchange == nil {
			return nil, fmt.Errorf("%w: live mode requires an exchange client", ports.ErrConfigurationError)
		}
		router, err := NewExchangeRouter(RouterConfig{TickSize: cfg.TickSize, QuantityStep: cfg.QuantityStep}, deps.Logger, deps.Exchange, deps.Journal)
		if err != nil {
			return nil, err
		}
		s.sink.next, s.sink.positions = router, router
	default:
		return nil, fmt.Errorf("%w: unknown trading mode %q", ports.ErrConfigurationError, cfg.Mode)
	}

	engine, err := strategy.New(strategy.Config{
		RunID:             s.runID,
		Symbol:            cfg.Symbol,
		ComparisonSymbols: cfg.ComparisonSymbols,
		HigherTimeframe:   cfg.HTFInterval != "",
		TickSize:          cfg.TickSize,
	}, params, strategy.Dependencies{
		Logger:    deps.Logger,
		Sink:      s.sink,
		Positions: s.sink,
		Observer:  deps.Observer,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}
	s.engine = engine
	return s, nil
}

// RunID returns the journal ID of this session.
func (s *LiveService) RunID() string { return s.runID }

// Stats returns the engine counters as of the last processed bar.
func (s *LiveService) Stats() strategy.Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

type stream struct {
	series   domain.SeriesKind
	symbol   string
	interval string
	doneCh   chan struct{}
	stopCh   chan struct{}
}

// Start warms the engine up and processes streamed bars until ctx is
// cancelled, SIGINT/SIGTERM arrives or a stream gives up.
func (s *LiveService) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting live service...", map[string]interface{}{"mode": s.cfg.Mode, "runID": s.runID})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	// 1. Journal the run
	if s.deps.Journal != nil {
		err := s.deps.Journal.StartRun(ctx, &ports.Run{
			ID:        s.runID,
			Mode:      s.cfg.Mode,
			Symbol:    s.cfg.Symbol,
			Interval:  s.cfg.Interval,
			StartedAt: time.Now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("failed to start run: %w", err)
		}
	}

	// 2. Warm-up
	if err := s.warmUp(ctx); err != nil {
		s.logger.Error(ctx, err, "Failed to load warm-up history")
		return fmt.Errorf("failed to load warm-up history: %w", err)
	}

	// 3. Streams
	streams, err := s.startStreams(ctx)
	defer s.stopStreams(ctx, streams)
	if err != nil {
		s.logger.Error(ctx, err, "Failed to start WebSocket stream")
		return fmt.Errorf("failed to start WebSocket stream: %w", err)
	}

	streamDone := make(chan stream, len(streams))
	for _, st := range streams {
		go func(st stream) {
			select {
			case <-st.doneCh:
				streamDone <- st
			case <-ctx.Done():
			}
		}(st)
	}

	// 4. Main loop
	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "Main context cancelled, initiating shutdown...")
			s.logStats(context.Background(), "Live service stopped")
			return nil
		case st := <-streamDone:
			if ctx.Err() != nil {
				continue
			}
			err := fmt.Errorf("websocket stream %s %s stopped unexpectedly", st.symbol, st.interval)
			s.logger.Error(ctx, err, "WebSocket stream stopped")
			return err
		case ev := <-s.events:
			s.handleEvent(ctx, ev)
		}
	}
}

func (s *LiveService) warmUp(ctx context.Context) error {
	if s.cfg.WarmupBars <= 0 {
		return nil
	}
	data := backtesting.Data{Comparison: make(map[string][]*domain.Bar)}
	var err error
	if data.Primary, err = s.deps.Market.GetKlines(ctx, s.cfg.Symbol, s.cfg.Interval, s.cfg.WarmupBars); err != nil {
		return err
	}
	if s.cfg.HTFInterval != "" {
		if data.Higher, err = s.deps.Market.GetKlines(ctx, s.cfg.Symbol, s.cfg.HTFInterval, s.cfg.WarmupBars); err != nil {
			return err
		}
	}
	for _, sym := range s.cfg.ComparisonSymbols {
		if data.Comparison[sym], err = s.deps.Market.GetKlines(ctx, sym, s.cfg.Interval, s.cfg.WarmupBars); err != nil {
			return err
		}
	}

	s.sink.warming = true
	events := backtesting.MergeEvents(data)
	for _, ev := range events {
		s.handleEvent(ctx, ev)
	}
	s.sink.warming = false
	s.logStats(ctx, "Warm-up complete")
	return nil
}

func (s *LiveService) startStreams(ctx context.Context) ([]stream, error) {
	wanted := []stream{{series: domain.SeriesPrimary, symbol: s.cfg.Symbol, interval: s.cfg.Interval}}
	if s.cfg.HTFInterval != "" {
		wanted = append(wanted, stream{series: domain.SeriesHigher, symbol: s.cfg.Symbol, interval: s.cfg.HTFInterval})
	}
	for _, sym := range s.cfg.ComparisonSymbols {
		wanted = append(wanted, stream{series: domain.SeriesComparison, symbol: sym, interval: s.cfg.Interval})
	}

	started := make([]stream, 0, len(wanted))
	for _, st := range wanted {
		series := st.series
		handler := func(bar *domain.Bar) {
			if bar == nil || !bar.IsFinal {
				return
			}
			select {
			case s.events <- domain.BarEvent{Series: series, Bar: *bar}:
			case <-ctx.Done():
			}
		}
		doneCh, stopCh, err := s.deps.Market.StreamKlines(ctx, st.symbol, st.interval, handler, s.handleWsError)
		if err != nil {
			return started, err
		}
		st.doneCh, st.stopCh = doneCh, stopCh
		started = append(started, st)
		s.logger.Info(ctx, "WebSocket stream started", map[string]interface{}{"series": st.series, "symbol": st.symbol, "interval": st.interval})
	}
	return started, nil
}

func (s *LiveService) stopStreams(ctx context.Context, streams []stream) {
	for _, st := range streams {
		select {
		case st.stopCh <- struct{}{}:
		default:
		}
		select {
		case <-st.doneCh:
		case <-time.After(shutdownTimeout):
			s.logger.Warn(ctx, "Timeout waiting for WebSocket stream to shut down", map[string]interface{}{"symbol": st.symbol, "interval": st.interval})
		}
	}
}

// handleWsError handles errors reported by the WebSocket stream. Reconnects
// are handled by the adapter.
func (s *LiveService) handleWsError(err error) {
	s.logger.Warn(context.Background(), "WebSocket stream error reported", map[string]interface{}{"error": err.Error()})
}

// handleEvent runs one bar through the simulated book (paper mode) and the
// engine, then publishes what the engine produced.
func (s *LiveService) handleEvent(ctx context.Context, ev domain.BarEvent) {
	key := string(ev.Series) + "/" + ev.Bar.Symbol
	if last, ok := s.lastSeen[key]; ok && !ev.Bar.CloseTime.After(last) {
		s.logger.Debug(ctx, "Dropping stale bar", map[string]interface{}{"series": ev.Series, "closeTime": ev.Bar.CloseTime})
		return
	}
	s.lastSeen[key] = ev.Bar.CloseTime

	if s.broker != nil && ev.Series == domain.SeriesPrimary && !s.sink.warming {
		bar := ev.Bar
		bar.Index = s.engine.Stats().PrimaryBars
		for _, tr := range s.broker.OnBar(ctx, bar) {
			s.logger.Info(ctx, "Paper leg closed", map[string]interface{}{
				"label":     tr.Label,
				"reason":    tr.CloseReason,
				"exitPrice": tr.ExitPrice,
				"rMultiple": tr.RMultiple,
			})
		}
	}

	out, err := s.engine.OnBar(ctx, ev)
	s.statsMu.Lock()
	s.stats = s.engine.Stats()
	s.statsMu.Unlock()
	if err != nil {
		return
	}
	s.publish(ctx, out)
}

func (s *LiveService) publish(ctx context.Context, out strategy.BarOutput) {
	journal := s.deps.Journal != nil && !s.sink.warming
	if journal {
		for _, sig := range out.Signals {
			if err := s.deps.Journal.RecordSignal(ctx, s.runID, sig); err != nil {
				s.logger.Error(ctx, err, "Failed to journal signal", map[string]interface{}{"signal": sig.ID})
			}
		}
	}
	if !s.sink.warming {
		for _, o := range out.Orders {
			s.logger.Info(ctx, "Entry leg submitted", map[string]interface{}{
				"label":     o.Label,
				"direction": o.Direction,
				"entry":     o.EntryPrice,
				"stop":      o.StopLoss,
				"target":    o.Target,
			})
		}
	}
	for _, cmd := range out.Draws {
		if s.deps.Draws != nil {
			if err := s.deps.Draws.Draw(ctx, cmd); err != nil {
				s.logger.Warn(ctx, "Draw command rejected", map[string]interface{}{"tag": cmd.Tag, "error": err.Error()})
			}
		}
		if journal {
			if err := s.deps.Journal.RecordDraw(ctx, s.runID, cmd); err != nil {
				s.logger.Error(ctx, err, "Failed to journal draw command", map[string]interface{}{"tag": cmd.Tag})
			}
		}
	}
}

func (s *LiveService) logStats(ctx context.Context, msg string) {
	st := s.Stats()
	fields := map[string]interface{}{
		"bars":    st.PrimaryBars,
		"signals": st.Signals,
		"entries": st.Entries,
		"blocked": st.Blocked,
		"faults":  st.Faults,
	}
	if s.broker != nil {
		fields["openLegs"] = s.broker.OpenPositions()
		fields["closedLegs"] = len(s.broker.Trades())
	}
	s.logger.Info(ctx, msg, fields)
}
