// Package strategy runs the detectors bar by bar and turns their signals
// into entries.
package strategy

import (
	"context"
	"errors"
	"fmt"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
	"confluenceBot/internal/risk"
	"confluenceBot/internal/strategy/detectors"
	"confluenceBot/internal/strategy/execution"
	"confluenceBot/internal/strategy/indicators"
	"confluenceBot/internal/strategy/signals"
)

// Config identifies the instrument and run the engine trades.
type Config struct {
	RunID             string
	Symbol            string
	ComparisonSymbols []string // correlated symbols fed as comparison bars
	HigherTimeframe   bool     // whether higher-timeframe bars will arrive
	TickSize          float64  // overrides params.General.TickSize when > 0
}

// Dependencies are the collaborators reached through ports.
type Dependencies struct {
	Logger    ports.Logger
	Sink      ports.OrderSink
	Positions ports.PositionReader // required unless multiple trades are allowed
	Observer  ports.EngineObserver // optional
}

// BarOutput is everything one bar event produced.
type BarOutput struct {
	Signals []*domain.Signal
	Orders  []*domain.EntryOrder
	Draws   []domain.DrawCommand
}

// Stats counts engine activity over the run.
type Stats struct {
	PrimaryBars int
	Signals     int
	Entries     int
	Blocked     int
	Faults      int
}

// Engine is the per-bar pipeline. It is not safe for concurrent use.
type Engine struct {
	cfg      Config
	params   *config.Params
	logger   ports.Logger
	observer ports.EngineObserver

	primary    *indicators.Series
	higher     *indicators.Series
	comparison map[string]*indicators.Series

	detectors []detectors.Detector
	zones     *detectors.PremiumDiscount
	session   *risk.Session
	gate      *risk.EntryGate
	registry  *signals.Registry
	validator *signals.Validator
	executor  *execution.Executor

	stats Stats
}

// New builds a ready engine: it validates the dependencies, allocates the
// series buffers, creates only the enabled detectors and wires the
// validator and executor.
func New(cfg Config, params *config.Params, deps Dependencies) (*Engine, error) {
	// 1. Dependencies
	if deps.Logger == nil {
		return nil, errors.New("logger is required for engine")
	}
	if params == nil {
		return nil, fmt.Errorf("%w: strategy params are required", ports.ErrConfigurationError)
	}
	if cfg.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol is required", ports.ErrConfigurationError)
	}
	if len(cfg.ComparisonSymbols) > 2 {
		return nil, fmt.Errorf("%w: at most two comparison symbols", ports.ErrConfigurationError)
	}
	if cfg.TickSize <= 0 {
		cfg.TickSize = params.General.TickSize
	}
	observer := deps.Observer
	if observer == nil {
		observer = ports.NopObserver{}
	}

	e := &Engine{
		cfg:        cfg,
		params:     params,
		logger:     deps.Logger,
		observer:   observer,
		comparison: make(map[string]*indicators.Series),
	}

	// 2. Series buffers
	lookback := params.General.MaxLookback
	e.primary = indicators.NewSeries(domain.SeriesPrimary, cfg.Symbol, lookback)
	if cfg.HigherTimeframe {
		e.higher = indicators.NewSeries(domain.SeriesHigher, cfg.Symbol, lookback)
	}
	for _, sym := range cfg.ComparisonSymbols {
		e.comparison[sym] = indicators.NewSeries(domain.SeriesComparison, sym, lookback)
	}

	// 3. Detectors, in processing order
	e.buildDetectors()

	// 4. Session, gate, registry, validator, executor
	session, err := risk.NewSession(params.Session)
	if err != nil {
		return nil, err
	}
	e.session = session

	gateCfg := risk.GateConfig{
		Symbol:              cfg.Symbol,
		AllowMultipleTrades: params.General.AllowMultipleTrades,
		Positions:           deps.Positions,
		Logger:              deps.Logger,
	}
	if e.zones != nil {
		gateCfg.Zones = e.zones
	}
	if e.gate, err = risk.NewEntryGate(gateCfg); err != nil {
		return nil, fmt.Errorf("failed to create entry gate: %w", err)
	}

	e.registry = signals.NewRegistry()
	e.validator = signals.NewValidator(e.registry)

	e.executor, err = execution.New(execution.Config{
		RunID:    cfg.RunID,
		Symbol:   cfg.Symbol,
		TickSize: cfg.TickSize,
		Legs:     params.Legs(),
		Gate:     e.gate,
		Sink:     deps.Sink,
		Logger:   deps.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	e.logger.Info(context.Background(), "Strategy engine initialized", map[string]interface{}{
		"runID":      cfg.RunID,
		"symbol":     cfg.Symbol,
		"detectors":  e.Detectors(),
		"comparison": cfg.ComparisonSymbols,
		"higherTF":   cfg.HigherTimeframe,
		"tickSize":   cfg.TickSize,
	})
	return e, nil
}

func (e *Engine) buildDetectors() {
	p := e.params
	if p.BOS.Active() {
		e.detectors = append(e.detectors, detectors.NewBOS(p.BOS))
	}
	if p.CISD.Active() {
		e.detectors = append(e.detectors, detectors.NewCISD(p.CISD))
	}
	if p.FVG.Active() {
		e.detectors = append(e.detectors, detectors.NewFVG(p.FVG))
	}
	if p.IFVG.Active() {
		e.detectors = append(e.detectors, detectors.NewIFVG(p.IFVG))
	}
	if p.HeikenAshi.LTFToggles().Active() {
		e.detectors = append(e.detectors, detectors.NewHeikenAshi(p.HeikenAshi))
	}
	if e.higher != nil && p.HeikenAshi.HTFToggles().Active() {
		e.detectors = append(e.detectors, detectors.NewHigherHeikenAshi(p.HeikenAshi))
	}
	if len(e.comparison) > 0 && p.SMT.Active() {
		e.detectors = append(e.detectors, detectors.NewSMT(p.SMT))
	}
	if p.PremiumDiscount.Enabled {
		e.zones = detectors.NewPremiumDiscount(p.PremiumDiscount)
		e.detectors = append(e.detectors, e.zones)
	}
	if p.Sweep.LTF().Active() || (e.higher != nil && p.Sweep.HTF().Active()) {
		e.detectors = append(e.detectors, detectors.NewSweep(p.Sweep))
	}
}

func (e *Engine) detectorContext() *detectors.Context {
	return &detectors.Context{
		Symbol:   e.cfg.Symbol,
		Primary:  e.primary,
		Higher:   e.higher,
		TickSize: e.cfg.TickSize,
		Colors:   e.params.Draw,
	}
}

// OnBar processes one closed bar. Errors and panics raised while handling
// the bar are logged, counted as faults and returned; the engine stays
// usable for the next bar.
func (e *Engine) OnBar(ctx context.Context, ev domain.BarEvent) (out BarOutput, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing %s bar %s: %v", ev.Series, ev.Bar.CloseTime, r)
			out = BarOutput{}
			e.fault(ctx, ev, err)
		}
	}()

	switch ev.Series {
	case domain.SeriesPrimary:
		err = e.onPrimary(ctx, ev.Bar, &out)
	case domain.SeriesHigher:
		err = e.onHigher(ev.Bar, &out)
	case domain.SeriesComparison:
		err = e.onComparison(ev.Bar, &out)
	default:
		err = fmt.Errorf("%w: %q", ports.ErrUnknownSeries, ev.Series)
	}
	if err != nil {
		e.fault(ctx, ev, err)
	}
	return out, err
}

func (e *Engine) fault(ctx context.Context, ev domain.BarEvent, err error) {
	e.stats.Faults++
	e.observer.BarFault(ev.Series)
	e.logger.Error(ctx, err, "Bar processing failed, bar skipped", map[string]interface{}{
		"series":    ev.Series,
		"symbol":    ev.Bar.Symbol,
		"closeTime": ev.Bar.CloseTime,
		"barIndex":  e.primary.CurrentBar(),
	})
}

func (e *Engine) onPrimary(ctx context.Context, b domain.Bar, out *BarOutput) error {
	bar, err := e.primary.Append(b)
	if err != nil {
		return err
	}
	e.stats.PrimaryBars++

	dc := e.detectorContext()
	for _, d := range e.detectors {
		if t, ok := d.(detectors.PrimaryTracker); ok {
			t.TrackPrimary(dc)
		}
	}

	if bar.Index < e.params.General.BarsRequiredToTrade {
		return nil
	}
	if !e.session.Contains(bar.CloseTime) {
		return nil
	}

	if expired := e.registry.Expire(bar.Index); len(expired) > 0 {
		e.logger.Debug(ctx, "Signals expired", map[string]interface{}{"count": len(expired), "bar": bar.Index})
	}

	det := &detectors.Output{}
	for _, d := range e.detectors {
		d.OnPrimary(dc, det)
	}
	out.Draws = append(out.Draws, det.Draws...)

	for _, sig := range det.Signals {
		e.registry.Add(sig)
		e.stats.Signals++
		e.observer.SignalEmitted(sig)
		out.Signals = append(out.Signals, sig)
		e.logger.Info(ctx, "Signal emitted", map[string]interface{}{
			"id":        sig.ID,
			"type":      sig.Type,
			"direction": sig.Direction,
			"bar":       sig.Bar,
			"entry":     sig.EntryPrice,
			"stop":      sig.StopLoss,
			"combined":  sig.Combined,
		})
	}
	// Combined signals stay pending across bars, so every untraded signal is
	// revisited, oldest first.
	for _, sig := range e.registry.Pending() {
		e.validateAndExecute(ctx, sig, bar.Index, out)
	}
	return nil
}

// validateAndExecute routes a pending signal: display-only signals are
// drawn, standalone ones trade alone, combined ones trade once the validator
// assembles a set around them.
func (e *Engine) validateAndExecute(ctx context.Context, sig *domain.Signal, currentBar int, out *BarOutput) {
	if sig.TradeGenerated {
		return
	}
	switch {
	case sig.DisplayOnly:
		e.registry.MarkTraded(sig)
		out.Draws = append(out.Draws, detectors.Annotate(sig, e.params.Draw)...)
	case sig.Standalone:
		e.execute(ctx, []*domain.Signal{sig}, out)
	case sig.Combined:
		set, ok := e.validator.Validate(sig, currentBar)
		if !ok {
			return
		}
		e.execute(ctx, set, out)
	}
}

// execute submits the trigger set. The set is consumed whether or not the
// gate let it through.
func (e *Engine) execute(ctx context.Context, set []*domain.Signal, out *BarOutput) {
	orders, err := e.executor.Execute(ctx, set)
	e.registry.MarkTraded(set...)

	lead := set[0]
	if errors.Is(err, ports.ErrEntryBlocked) {
		e.stats.Blocked++
		e.observer.EntryBlocked(lead.Direction, err.Error())
		e.logger.Info(ctx, "Entry blocked", map[string]interface{}{
			"signal":    lead.ID,
			"direction": lead.Direction,
			"reason":    err.Error(),
		})
		return
	}
	if err != nil {
		e.logger.Error(ctx, err, "Entry execution failed", map[string]interface{}{
			"signal":    lead.ID,
			"submitted": len(orders),
		})
	}
	if len(orders) == 0 {
		return
	}

	e.stats.Entries++
	for _, o := range orders {
		e.observer.EntrySubmitted(o)
	}
	out.Orders = append(out.Orders, orders...)
	for _, s := range set {
		out.Draws = append(out.Draws, detectors.Annotate(s, e.params.Draw)...)
	}
}

func (e *Engine) onHigher(b domain.Bar, out *BarOutput) error {
	if e.higher == nil {
		return fmt.Errorf("%w: higher timeframe not configured", ports.ErrUnknownSeries)
	}
	if _, err := e.higher.Append(b); err != nil {
		return err
	}
	dc := e.detectorContext()
	det := &detectors.Output{}
	for _, d := range e.detectors {
		if h, ok := d.(detectors.HigherTimeframeObserver); ok {
			h.OnHigher(dc, det)
		}
	}
	out.Draws = append(out.Draws, det.Draws...)
	return nil
}

func (e *Engine) onComparison(b domain.Bar, out *BarOutput) error {
	s, ok := e.comparison[b.Symbol]
	if !ok {
		return fmt.Errorf("%w: comparison symbol %q", ports.ErrUnknownSeries, b.Symbol)
	}
	if _, err := s.Append(b); err != nil {
		return err
	}
	dc := e.detectorContext()
	det := &detectors.Output{}
	for _, d := range e.detectors {
		if c, ok := d.(detectors.ComparisonObserver); ok {
			c.OnComparison(dc, b.Symbol, s, det)
		}
	}
	out.Draws = append(out.Draws, det.Draws...)
	return nil
}

// Stats returns the activity counters.
func (e *Engine) Stats() Stats { return e.stats }

// Zones returns the premium/discount zones when the filter is enabled and
// formed.
func (e *Engine) Zones() (indicators.Zones, bool) {
	if e.zones == nil {
		return indicators.Zones{}, false
	}
	return e.zones.Zones()
}

// GateStats returns the entry gate counters.
func (e *Engine) GateStats() risk.GateStats { return e.gate.GetStats() }

// PendingSignals returns registered signals not yet consumed by an entry.
func (e *Engine) PendingSignals() []*domain.Signal { return e.registry.Pending() }

// Detectors returns the names of the enabled detectors in processing order.
func (e *Engine) Detectors() []string {
	names := make([]string, 0, len(e.detectors))
	for _, d := range e.detectors {
		names = append(names, d.Name())
	}
	return names
}
