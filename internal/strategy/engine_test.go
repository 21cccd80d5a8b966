package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
	"confluenceBot/internal/strategy/detectors"
	"confluenceBot/internal/strategy/indicators"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct {
	infoMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.errorMsgs = append(m.errorMsgs, msg)
}

type mockSink struct {
	orders []*domain.EntryOrder
}

func (m *mockSink) SubmitEntry(ctx context.Context, o *domain.EntryOrder) error {
	m.orders = append(m.orders, o)
	return nil
}

type mockPositions struct {
	open bool
}

func (m *mockPositions) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	return m.open, nil
}

type recordingObserver struct {
	signals int
	entries int
	blocked []domain.Direction
	faults  []domain.SeriesKind
}

func (o *recordingObserver) SignalEmitted(*domain.Signal) { o.signals++ }

func (o *recordingObserver) EntrySubmitted(*domain.EntryOrder) { o.entries++ }

func (o *recordingObserver) EntryBlocked(d domain.Direction, _ string) {
	o.blocked = append(o.blocked, d)
}

func (o *recordingObserver) BarFault(s domain.SeriesKind) {
	o.faults = append(o.faults, s)
}

// stubDetector emits prepared signals on chosen primary bars.
type stubDetector struct {
	emit            map[int][]domain.Signal
	panicAt         int
	primaryCalls    int
	higherCalls     int
	comparisonCalls int
}

func newStub() *stubDetector {
	return &stubDetector{emit: make(map[int][]domain.Signal), panicAt: -1}
}

func (d *stubDetector) Name() string { return "stub" }

func (d *stubDetector) OnPrimary(c *detectors.Context, out *detectors.Output) {
	d.primaryCalls++
	bar := c.Primary.Last()
	if bar.Index == d.panicAt {
		panic("detector failure")
	}
	for _, s := range d.emit[bar.Index] {
		sig := s
		sig.Bar = bar.Index
		sig.Time = bar.CloseTime
		sig.EntryPrice = bar.Close
		out.Emit(&sig)
	}
}

func (d *stubDetector) OnHigher(c *detectors.Context, out *detectors.Output) { d.higherCalls++ }

func (d *stubDetector) OnComparison(c *detectors.Context, symbol string, s *indicators.Series, out *detectors.Output) {
	d.comparisonCalls++
}

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func testParams(t *testing.T) *config.Params {
	t.Helper()
	p, err := config.DefaultParams()
	require.NoError(t, err)
	p.General.BarsRequiredToTrade = 0
	return p
}

type harness struct {
	engine    *Engine
	stub      *stubDetector
	sink      *mockSink
	positions *mockPositions
	observer  *recordingObserver
	logger    *mockLogger
}

func newHarness(t *testing.T, cfg Config, params *config.Params) *harness {
	t.Helper()
	h := &harness{
		stub:      newStub(),
		sink:      &mockSink{},
		positions: &mockPositions{},
		observer:  &recordingObserver{},
		logger:    &mockLogger{},
	}
	if cfg.Symbol == "" {
		cfg.Symbol = "BTCUSDT"
	}
	e, err := New(cfg, params, Dependencies{
		Logger:    h.logger,
		Sink:      h.sink,
		Positions: h.positions,
		Observer:  h.observer,
	})
	require.NoError(t, err)
	e.detectors = append(e.detectors, h.stub)
	h.engine = e
	return h
}

func barAt(series domain.SeriesKind, symbol string, closeTime time.Time, o, hi, lo, c float64) domain.BarEvent {
	return domain.BarEvent{Series: series, Bar: domain.Bar{
		Symbol:    symbol,
		OpenTime:  closeTime.Add(-5 * time.Minute),
		CloseTime: closeTime,
		Open:      o,
		High:      hi,
		Low:       lo,
		Close:     c,
		IsFinal:   true,
	}}
}

// primary returns the i-th five-minute primary bar.
func primary(i int, b [4]float64) domain.BarEvent {
	return barAt(domain.SeriesPrimary, "BTCUSDT", t0.Add(time.Duration(i+1)*5*time.Minute), b[0], b[1], b[2], b[3])
}

var flat = [4]float64{100, 101, 99, 100}

// feed sends n flat primary bars starting at index from and returns the
// outputs in order.
func (h *harness) feed(t *testing.T, from, n int) []BarOutput {
	t.Helper()
	outs := make([]BarOutput, 0, n)
	for i := from; i < from+n; i++ {
		out, err := h.engine.OnBar(context.Background(), primary(i, flat))
		require.NoError(t, err)
		outs = append(outs, out)
	}
	return outs
}

func TestNew(t *testing.T) {
	params := testParams(t)

	tests := []struct {
		name    string
		cfg     Config
		params  *config.Params
		deps    Dependencies
		wantErr bool
	}{
		{
			name:   "valid",
			cfg:    Config{Symbol: "BTCUSDT"},
			params: params,
			deps:   Dependencies{Logger: &mockLogger{}, Sink: &mockSink{}, Positions: &mockPositions{}},
		},
		{
			name:    "nil logger",
			cfg:     Config{Symbol: "BTCUSDT"},
			params:  params,
			deps:    Dependencies{Sink: &mockSink{}, Positions: &mockPositions{}},
			wantErr: true,
		},
		{
			name:    "nil params",
			cfg:     Config{Symbol: "BTCUSDT"},
			deps:    Dependencies{Logger: &mockLogger{}, Sink: &mockSink{}, Positions: &mockPositions{}},
			wantErr: true,
		},
		{
			name:    "missing position reader",
			cfg:     Config{Symbol: "BTCUSDT"},
			params:  params,
			deps:    Dependencies{Logger: &mockLogger{}, Sink: &mockSink{}},
			wantErr: true,
		},
		{
			name:    "missing sink",
			cfg:     Config{Symbol: "BTCUSDT"},
			params:  params,
			deps:    Dependencies{Logger: &mockLogger{}, Positions: &mockPositions{}},
			wantErr: true,
		},
		{
			name:    "too many comparison symbols",
			cfg:     Config{Symbol: "BTCUSDT", ComparisonSymbols: []string{"ETHUSDT", "SOLUSDT", "BNBUSDT"}},
			params:  params,
			deps:    Dependencies{Logger: &mockLogger{}, Sink: &mockSink{}, Positions: &mockPositions{}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg, tt.params, tt.deps)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Nil(t, e)
				return
			}
			require.NoError(t, err)
			assert.Empty(t, e.Detectors(), "every detector is off by default")
		})
	}
}

func TestNew_BuildsEnabledDetectorsInOrder(t *testing.T) {
	params := testParams(t)
	params.BOS.Entry = true
	params.FVG.Combined = true
	params.HeikenAshi.LTF.DisplayOnly = true
	params.HeikenAshi.HTF.Entry = true
	params.SMT.Entry = true
	params.Sweep.LTFEntry = true
	params.PremiumDiscount.Enabled = true

	deps := Dependencies{Logger: &mockLogger{}, Sink: &mockSink{}, Positions: &mockPositions{}}

	e, err := New(Config{Symbol: "BTCUSDT"}, params, deps)
	require.NoError(t, err)
	assert.Equal(t, []string{"bos", "fvg", "ltf_heiken_ashi", "premium_discount", "sweep"}, e.Detectors(),
		"higher-timeframe and SMT detectors need their series")

	e, err = New(Config{Symbol: "BTCUSDT", HigherTimeframe: true, ComparisonSymbols: []string{"ETHUSDT"}}, params, deps)
	require.NoError(t, err)
	assert.Equal(t, []string{"bos", "fvg", "ltf_heiken_ashi", "htf_heiken_ashi", "smt", "premium_discount", "sweep"}, e.Detectors())
}

func TestOnBar_StandaloneEntry(t *testing.T) {
	h := newHarness(t, Config{RunID: "run-1"}, testParams(t))
	h.stub.emit[2] = []domain.Signal{{
		Type: domain.SignalBOS, Direction: domain.Long, Standalone: true,
		StopLoss: 98, UseStopLossRR: true, MaxBarsBetween: 10,
	}}

	outs := h.feed(t, 0, 3)

	out := outs[2]
	require.Len(t, out.Signals, 1)
	require.Len(t, out.Orders, 1)
	o := out.Orders[0]
	assert.Equal(t, "BOS_1", o.Label)
	assert.Equal(t, "run-1", o.RunID)
	assert.Equal(t, 100.0, o.EntryPrice)
	assert.Equal(t, 98.0, o.StopLoss)
	assert.Equal(t, 104.0, o.Target)
	assert.Equal(t, []string{"sig-1"}, o.SignalIDs)
	assert.NotEmpty(t, out.Draws, "traded signal is annotated")

	assert.Equal(t, h.sink.orders, out.Orders)
	assert.True(t, out.Signals[0].TradeGenerated)
	assert.Equal(t, 1, h.observer.signals)
	assert.Equal(t, 1, h.observer.entries)
	assert.Equal(t, Stats{PrimaryBars: 3, Signals: 1, Entries: 1}, h.engine.Stats())
}

func TestOnBar_CombinedEntry(t *testing.T) {
	h := newHarness(t, Config{}, testParams(t))
	h.stub.emit[3] = []domain.Signal{{
		Type: domain.SignalBOS, Direction: domain.Long, Combined: true,
		StopLoss: 97, UseStopLossRR: true, MaxBarsBetween: 10,
	}}
	h.stub.emit[5] = []domain.Signal{{
		Type: domain.SignalCISD, Direction: domain.Long, Combined: true, MaxBarsBetween: 10,
	}}

	outs := h.feed(t, 0, 6)

	assert.Empty(t, outs[3].Orders, "one detector type is not enough")
	out := outs[5]
	require.Len(t, out.Orders, 1)
	o := out.Orders[0]
	assert.Equal(t, "CombinedEntry_1", o.Label)
	assert.True(t, o.Combined)
	assert.Equal(t, []string{"sig-2", "sig-1"}, o.SignalIDs)
	assert.Equal(t, domain.SignalCISD, o.SignalType)
	assert.Equal(t, 97.0, o.StopLoss, "stop from the newest signal that supplies one")
	assert.Equal(t, 106.0, o.Target)
	assert.Empty(t, h.engine.PendingSignals(), "the whole set is consumed")
}

func TestOnBar_PendingCombinedSignalCompletedLater(t *testing.T) {
	h := newHarness(t, Config{}, testParams(t))
	h.stub.emit[5] = []domain.Signal{{
		Type: domain.SignalFVG, Direction: domain.Long, Combined: true, MaxBarsBetween: 10,
	}}
	h.stub.emit[6] = []domain.Signal{{
		Type: domain.SignalBOS, Direction: domain.Long, Combined: true, OrderPosition: 2,
		StopLoss: 97, UseStopLossRR: true, MaxBarsBetween: 10,
	}}

	outs := h.feed(t, 0, 7)

	assert.Empty(t, outs[5].Orders)
	out := outs[6]
	require.Len(t, out.Orders, 1, "the waiting order-0 signal picks up the new one")
	o := out.Orders[0]
	assert.True(t, o.Combined)
	assert.Equal(t, []string{"sig-2", "sig-1"}, o.SignalIDs)
	assert.Equal(t, domain.SignalBOS, o.SignalType)
	assert.Empty(t, h.engine.PendingSignals())
	assert.Equal(t, 1, h.engine.Stats().Entries)
}

func TestOnBar_CombinedSignalExpires(t *testing.T) {
	h := newHarness(t, Config{}, testParams(t))
	h.stub.emit[1] = []domain.Signal{{
		Type: domain.SignalBOS, Direction: domain.Long, Combined: true, StopLoss: 97, UseStopLossRR: true, MaxBarsBetween: 2,
	}}
	h.stub.emit[4] = []domain.Signal{{
		Type: domain.SignalFVG, Direction: domain.Long, Combined: true, MaxBarsBetween: 2,
	}}

	outs := h.feed(t, 0, 5)

	assert.Empty(t, outs[4].Orders)
	pending := h.engine.PendingSignals()
	require.Len(t, pending, 1)
	assert.Equal(t, domain.SignalFVG, pending[0].Type)
}

func TestOnBar_BlockedEntryConsumesSignal(t *testing.T) {
	h := newHarness(t, Config{}, testParams(t))
	h.positions.open = true
	h.stub.emit[1] = []domain.Signal{{
		Type: domain.SignalLTFSweep, Direction: domain.Short, Standalone: true, StopLoss: 102, MaxBarsBetween: 10,
	}}

	outs := h.feed(t, 0, 2)

	assert.Empty(t, outs[1].Orders)
	assert.Empty(t, h.sink.orders)
	assert.Equal(t, []domain.Direction{domain.Short}, h.observer.blocked)
	assert.Empty(t, h.engine.PendingSignals())
	assert.Equal(t, 1, h.engine.Stats().Blocked)
	assert.Equal(t, 1, h.engine.GateStats().BlockedPosition)
	assert.Contains(t, h.logger.infoMsgs, "Entry blocked")
}

func TestOnBar_DisplayOnlyDrawsWithoutTrading(t *testing.T) {
	h := newHarness(t, Config{}, testParams(t))
	h.stub.emit[1] = []domain.Signal{{
		Type: domain.SignalFVG, Direction: domain.Long, DisplayOnly: true, MaxBarsBetween: 10,
		GapTop: 101, GapBottom: 99,
	}}

	outs := h.feed(t, 0, 2)

	out := outs[1]
	assert.Empty(t, out.Orders)
	require.Len(t, out.Draws, 1)
	assert.Equal(t, domain.DrawRectangle, out.Draws[0].Kind)
	assert.Equal(t, 101.0, out.Draws[0].StartPrice)
	assert.True(t, out.Signals[0].TradeGenerated)
	assert.Empty(t, h.sink.orders)
}

func TestOnBar_DisplayOnlyTakesPrecedence(t *testing.T) {
	h := newHarness(t, Config{}, testParams(t))
	h.stub.emit[1] = []domain.Signal{{
		Type: domain.SignalBOS, Direction: domain.Long, Standalone: true, DisplayOnly: true,
		StopLoss: 98, MaxBarsBetween: 10, ReferencePrice: 101,
	}}

	outs := h.feed(t, 0, 2)

	assert.Empty(t, outs[1].Orders)
	assert.Empty(t, h.sink.orders)
	assert.NotEmpty(t, outs[1].Draws)
	assert.True(t, outs[1].Signals[0].TradeGenerated)
	assert.Zero(t, h.engine.Stats().Entries)
}

func TestOnBar_WarmupSkipsDetection(t *testing.T) {
	params := testParams(t)
	params.General.BarsRequiredToTrade = 5
	h := newHarness(t, Config{}, params)

	h.feed(t, 0, 5)
	assert.Zero(t, h.stub.primaryCalls)

	h.feed(t, 5, 1)
	assert.Equal(t, 1, h.stub.primaryCalls)
	assert.Equal(t, 6, h.engine.Stats().PrimaryBars)
}

func TestOnBar_SessionFilter(t *testing.T) {
	params := testParams(t)
	params.Session = config.SessionParams{Enabled: true, Location: "America/New_York", StartHour: 9, StartMinute: 30, EndHour: 16}
	h := newHarness(t, Config{}, params)

	// 13:00 UTC is 08:00 in New York before the March DST switch.
	_, err := h.engine.OnBar(context.Background(), barAt(domain.SeriesPrimary, "BTCUSDT",
		time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC), 100, 101, 99, 100))
	require.NoError(t, err)
	assert.Zero(t, h.stub.primaryCalls)

	_, err = h.engine.OnBar(context.Background(), barAt(domain.SeriesPrimary, "BTCUSDT",
		time.Date(2024, 3, 4, 15, 0, 0, 0, time.UTC), 100, 101, 99, 100))
	require.NoError(t, err)
	assert.Equal(t, 1, h.stub.primaryCalls)
}

func TestOnBar_HeikenAshiFollowsBarsOutsideSession(t *testing.T) {
	params := testParams(t)
	params.Session = config.SessionParams{Enabled: true, Location: "America/New_York", StartHour: 9, StartMinute: 30, EndHour: 16}
	params.HeikenAshi.LTF.DisplayOnly = true
	h := newHarness(t, Config{}, params)

	bars := []domain.BarEvent{
		barAt(domain.SeriesPrimary, "BTCUSDT", time.Date(2024, 3, 4, 13, 0, 0, 0, time.UTC), 100, 102, 99, 101.5),
		barAt(domain.SeriesPrimary, "BTCUSDT", time.Date(2024, 3, 4, 13, 5, 0, 0, time.UTC), 101.5, 103, 101, 102.8),
		barAt(domain.SeriesPrimary, "BTCUSDT", time.Date(2024, 3, 4, 13, 10, 0, 0, time.UTC), 102.8, 103, 100, 100.4),
		barAt(domain.SeriesPrimary, "BTCUSDT", time.Date(2024, 3, 4, 14, 35, 0, 0, time.UTC), 100.4, 101, 98, 98.6),
	}
	ref := indicators.NewHeikenAshi(params.HeikenAshi.SmoothingPeriod)
	var want indicators.HACandle
	var out BarOutput
	for _, ev := range bars {
		want, _, _ = ref.Update(ev.Bar)
		var err error
		out, err = h.engine.OnBar(context.Background(), ev)
		require.NoError(t, err)
	}

	assert.Equal(t, 1, h.stub.primaryCalls, "only the session bar runs detection")
	var colored []domain.DrawCommand
	for _, d := range out.Draws {
		if d.Kind == domain.DrawBarColor {
			colored = append(colored, d)
		}
	}
	require.Len(t, colored, 1)
	assert.InDelta(t, want.Open, colored[0].StartPrice, 1e-9)
	assert.InDelta(t, want.Close, colored[0].EndPrice, 1e-9)
}

func TestOnBar_PanicIsIsolated(t *testing.T) {
	h := newHarness(t, Config{}, testParams(t))
	h.stub.panicAt = 1

	h.feed(t, 0, 1)
	out, err := h.engine.OnBar(context.Background(), primary(1, flat))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "detector failure")
	assert.Empty(t, out.Signals)

	h.feed(t, 2, 1)
	assert.Equal(t, 3, h.stub.primaryCalls, "the engine keeps running after a fault")
	assert.Equal(t, 1, h.engine.Stats().Faults)
	assert.Equal(t, []domain.SeriesKind{domain.SeriesPrimary}, h.observer.faults)
	assert.Contains(t, h.logger.errorMsgs, "Bar processing failed, bar skipped")
}

func TestOnBar_OutOfOrderBar(t *testing.T) {
	h := newHarness(t, Config{}, testParams(t))
	h.feed(t, 0, 2)

	_, err := h.engine.OnBar(context.Background(), primary(1, flat))

	assert.ErrorIs(t, err, ports.ErrOutOfOrderBar)
	assert.Equal(t, 1, h.engine.Stats().Faults)
}

func TestOnBar_Routing(t *testing.T) {
	h := newHarness(t, Config{HigherTimeframe: true, ComparisonSymbols: []string{"ETHUSDT"}}, testParams(t))
	ctx := context.Background()

	_, err := h.engine.OnBar(ctx, barAt(domain.SeriesHigher, "BTCUSDT", t0.Add(time.Hour), 100, 101, 99, 100))
	require.NoError(t, err)
	_, err = h.engine.OnBar(ctx, barAt(domain.SeriesComparison, "ETHUSDT", t0.Add(5*time.Minute), 10, 11, 9, 10))
	require.NoError(t, err)

	assert.Equal(t, 1, h.stub.higherCalls)
	assert.Equal(t, 1, h.stub.comparisonCalls)
	assert.Zero(t, h.stub.primaryCalls)

	_, err = h.engine.OnBar(ctx, barAt(domain.SeriesComparison, "SOLUSDT", t0.Add(5*time.Minute), 10, 11, 9, 10))
	assert.ErrorIs(t, err, ports.ErrUnknownSeries)

	_, err = h.engine.OnBar(ctx, domain.BarEvent{Series: "weekly"})
	assert.ErrorIs(t, err, ports.ErrUnknownSeries)
}

func TestOnBar_HigherTimeframeNotConfigured(t *testing.T) {
	h := newHarness(t, Config{}, testParams(t))

	_, err := h.engine.OnBar(context.Background(), barAt(domain.SeriesHigher, "BTCUSDT", t0, 100, 101, 99, 100))

	assert.ErrorIs(t, err, ports.ErrUnknownSeries)
}

func TestOnBar_BreakOfStructureEndToEnd(t *testing.T) {
	params := testParams(t)
	params.BOS.Entry = true
	params.BOS.PivotLeftBars = 2
	params.BOS.PivotRightBars = 2

	sink := &mockSink{}
	e, err := New(Config{Symbol: "BTCUSDT"}, params, Dependencies{
		Logger: &mockLogger{}, Sink: sink, Positions: &mockPositions{},
	})
	require.NoError(t, err)

	bars := [][4]float64{
		{10, 11, 9, 10},
		{10, 12, 9.5, 11},
		{11, 15, 10, 14}, // swing high 15
		{14, 14.5, 12, 13},
		{13, 14, 11, 12},
		{12, 16, 11.5, 15.5}, // close above 15
	}
	var last BarOutput
	for i, b := range bars {
		last, err = e.OnBar(context.Background(), primary(i, b))
		require.NoError(t, err)
	}

	require.Len(t, last.Orders, 1)
	o := last.Orders[0]
	assert.Equal(t, "BOS_1", o.Label)
	assert.Equal(t, 15.5, o.EntryPrice)
	assert.Equal(t, 9.5, o.StopLoss, "lowest low 10 less two ticks of 0.25")
	assert.Equal(t, 27.5, o.Target)
	assert.Len(t, sink.orders, 1)
}
