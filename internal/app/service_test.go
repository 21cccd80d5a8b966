package app

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
)

// Mock implementations
type mockLogger struct {
	mu        sync.Mutex
	debugMsgs []string
	infoMsgs  []string
	warnMsgs  []string
	errorMsgs []string
}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.debugMsgs = append(m.debugMsgs, msg)
}

func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.infoMsgs = append(m.infoMsgs, msg)
}

func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.warnMsgs = append(m.warnMsgs, msg)
}

func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorMsgs = append(m.errorMsgs, msg)
}

type placedOrder struct {
	kind     string
	side     domain.OrderSide
	quantity string
	price    string
}

type mockExchange struct {
	orderResponses  map[string]*ports.OrderResponse
	orderErrors     map[string]error
	positionRisk    *ports.PositionRisk
	positionRiskErr error
	placed          []placedOrder
	cancelled       []int64
}

func (m *mockExchange) record(kind string, side domain.OrderSide, quantity, price string) (*ports.OrderResponse, error) {
	m.placed = append(m.placed, placedOrder{kind: kind, side: side, quantity: quantity, price: price})
	key := kind + "_" + string(side)
	if err := m.orderErrors[key]; err != nil {
		return nil, err
	}
	if resp, ok := m.orderResponses[key]; ok {
		return resp, nil
	}
	return &ports.OrderResponse{OrderID: int64(len(m.placed)), Status: "NEW"}, nil
}

func (m *mockExchange) SetServerTime(ctx context.Context) error { return nil }
func (m *mockExchange) Ping(ctx context.Context) error          { return nil }

func (m *mockExchange) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	return m.record("market", side, quantity, "")
}

func (m *mockExchange) PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*ports.OrderResponse, error) {
	return m.record("stop", side, quantity, stopPrice)
}

func (m *mockExchange) PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*ports.OrderResponse, error) {
	return m.record("tp", side, quantity, stopPrice)
}

func (m *mockExchange) GetPositionRisk(ctx context.Context, symbol string) (*ports.PositionRisk, error) {
	return m.positionRisk, m.positionRiskErr
}

func (m *mockExchange) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	m.cancelled = append(m.cancelled, orderID)
	key := "cancel_" + strconv.FormatInt(orderID, 10)
	return m.orderResponses[key], m.orderErrors[key]
}

func (m *mockExchange) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Bar, error) {
	return nil, nil
}

func (m *mockExchange) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Bar, error) {
	return nil, nil
}

func (m *mockExchange) StreamKlines(ctx context.Context, symbol string, interval string, handler func(*domain.Bar), errHandler func(error)) (chan struct{}, chan struct{}, error) {
	return make(chan struct{}), make(chan struct{}), nil
}

// mockMarket serves warm-up bars and hands stream handlers to the test.
type mockMarket struct {
	klines    map[string][]*domain.Bar // keyed by symbol/interval
	klinesErr error
	streamErr error
	handlers  chan func(*domain.Bar)
}

func (m *mockMarket) GetKlines(ctx context.Context, symbol string, interval string, limit int) ([]*domain.Bar, error) {
	return m.klines[symbol+"/"+interval], m.klinesErr
}

func (m *mockMarket) GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Bar, error) {
	return m.klines[symbol+"/"+interval], m.klinesErr
}

func (m *mockMarket) StreamKlines(ctx context.Context, symbol string, interval string, handler func(*domain.Bar), errHandler func(error)) (chan struct{}, chan struct{}, error) {
	if m.streamErr != nil {
		return nil, nil, m.streamErr
	}
	doneCh := make(chan struct{})
	stopCh := make(chan struct{}, 1)
	go func() {
		<-stopCh
		close(doneCh)
	}()
	m.handlers <- handler
	return doneCh, stopCh, nil
}

type mockJournal struct {
	mu      sync.Mutex
	runs    []*ports.Run
	entries []*domain.EntryOrder
}

func (m *mockJournal) StartRun(ctx context.Context, run *ports.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, run)
	return nil
}

func (m *mockJournal) RecordSignal(ctx context.Context, runID string, sig *domain.Signal) error {
	return nil
}

func (m *mockJournal) RecordEntry(ctx context.Context, order *domain.EntryOrder) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, order)
	return int64(len(m.entries)), nil
}

func (m *mockJournal) RecordDraw(ctx context.Context, runID string, cmd domain.DrawCommand) error {
	return nil
}

func (m *mockJournal) FindSignals(ctx context.Context, runID string) ([]*domain.Signal, error) {
	return nil, nil
}

func (m *mockJournal) FindEntries(ctx context.Context, runID string) ([]*domain.EntryOrder, error) {
	return nil, nil
}

func longLeg() *domain.EntryOrder {
	return &domain.EntryOrder{
		Leg:        1,
		Label:      "BOS_1",
		Symbol:     "BTCUSDT",
		Direction:  domain.Long,
		Quantity:   0.0125,
		EntryPrice: 100.13,
		StopLoss:   98.07,
		Target:     104.26,
	}
}

func newTestRouter(t *testing.T, exchange *mockExchange, journal ports.SignalJournal) (*ExchangeRouter, *mockLogger) {
	t.Helper()
	logger := &mockLogger{}
	router, err := NewExchangeRouter(RouterConfig{TickSize: 0.1, QuantityStep: 0.001}, logger, exchange, journal)
	require.NoError(t, err)
	return router, logger
}

func TestNewExchangeRouter(t *testing.T) {
	_, err := NewExchangeRouter(RouterConfig{TickSize: 0.1, QuantityStep: 0.001}, nil, &mockExchange{}, nil)
	assert.Error(t, err)

	_, err = NewExchangeRouter(RouterConfig{TickSize: 0, QuantityStep: 0.001}, &mockLogger{}, &mockExchange{}, nil)
	assert.ErrorIs(t, err, ports.ErrConfigurationError)
}

func TestExchangeRouter_SubmitEntry_Long(t *testing.T) {
	exchange := &mockExchange{}
	journal := &mockJournal{}
	router, logger := newTestRouter(t, exchange, journal)

	require.NoError(t, router.SubmitEntry(context.Background(), longLeg()))

	assert.Equal(t, []placedOrder{
		{kind: "market", side: domain.Buy, quantity: "0.012"},
		{kind: "stop", side: domain.Sell, quantity: "0.012", price: "98.1"},
		{kind: "tp", side: domain.Sell, quantity: "0.012", price: "104.3"},
	}, exchange.placed)
	assert.Len(t, journal.entries, 1)
	assert.Empty(t, logger.errorMsgs)
}

func TestExchangeRouter_SubmitEntry_Short(t *testing.T) {
	exchange := &mockExchange{}
	router, _ := newTestRouter(t, exchange, nil)

	order := longLeg()
	order.Direction = domain.Short
	order.StopLoss, order.Target = 102.02, 96
	require.NoError(t, router.SubmitEntry(context.Background(), order))

	require.Len(t, exchange.placed, 3)
	assert.Equal(t, domain.Sell, exchange.placed[0].side)
	assert.Equal(t, placedOrder{kind: "stop", side: domain.Buy, quantity: "0.012", price: "102"}, exchange.placed[1])
	assert.Equal(t, placedOrder{kind: "tp", side: domain.Buy, quantity: "0.012", price: "96"}, exchange.placed[2])
}

func TestExchangeRouter_SubmitEntry_Unprotected(t *testing.T) {
	exchange := &mockExchange{}
	router, _ := newTestRouter(t, exchange, nil)

	order := longLeg()
	order.StopLoss, order.Target = 0, 0
	require.NoError(t, router.SubmitEntry(context.Background(), order))

	require.Len(t, exchange.placed, 1)
	assert.Equal(t, "market", exchange.placed[0].kind)
}

func TestExchangeRouter_SubmitEntry_QuantityBelowStep(t *testing.T) {
	exchange := &mockExchange{}
	router, _ := newTestRouter(t, exchange, nil)

	order := longLeg()
	order.Quantity = 0.0004
	err := router.SubmitEntry(context.Background(), order)

	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
	assert.Empty(t, exchange.placed)
}

func TestExchangeRouter_SubmitEntry_EntryFails(t *testing.T) {
	exchange := &mockExchange{orderErrors: map[string]error{"market_BUY": ports.ErrInsufficientFunds}}
	journal := &mockJournal{}
	router, _ := newTestRouter(t, exchange, journal)

	err := router.SubmitEntry(context.Background(), longLeg())

	assert.ErrorIs(t, err, ports.ErrInsufficientFunds)
	assert.Len(t, exchange.placed, 1)
	assert.Empty(t, journal.entries)
}

func TestExchangeRouter_SubmitEntry_StopFails(t *testing.T) {
	exchange := &mockExchange{orderErrors: map[string]error{"stop_SELL": errors.New("rejected")}}
	router, logger := newTestRouter(t, exchange, nil)

	err := router.SubmitEntry(context.Background(), longLeg())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "stop loss order failed")
	require.Len(t, exchange.placed, 3)
	assert.Equal(t, placedOrder{kind: "market", side: domain.Sell, quantity: "0.012"}, exchange.placed[2])
	assert.Contains(t, logger.warnMsgs, "emergencyClose: Placing emergency closing order")
}

func TestExchangeRouter_SubmitEntry_TakeProfitFails(t *testing.T) {
	exchange := &mockExchange{
		orderResponses: map[string]*ports.OrderResponse{"stop_SELL": {OrderID: 42}},
		orderErrors: map[string]error{
			"tp_SELL":   errors.New("rejected"),
			"cancel_42": ports.ErrOrderNotFound,
		},
	}
	router, logger := newTestRouter(t, exchange, nil)

	err := router.SubmitEntry(context.Background(), longLeg())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "take profit order failed")
	assert.Equal(t, []int64{42}, exchange.cancelled)
	require.Len(t, exchange.placed, 4)
	assert.Equal(t, "market", exchange.placed[3].kind)
	assert.Equal(t, domain.Sell, exchange.placed[3].side)
	assert.Contains(t, logger.warnMsgs, "cancelOrderWarn: Order not found, likely already filled or cancelled")
}

func TestExchangeRouter_HasOpenPosition(t *testing.T) {
	tests := []struct {
		name    string
		risk    *ports.PositionRisk
		riskErr error
		want    bool
		wantErr bool
	}{
		{"no position", nil, nil, false, false},
		{"flat", &ports.PositionRisk{PositionAmt: 0}, nil, false, false},
		{"short", &ports.PositionRisk{PositionAmt: -0.5}, nil, true, false},
		{"error", nil, ports.ErrConnectionFailed, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := newTestRouter(t, &mockExchange{positionRisk: tt.risk, positionRiskErr: tt.riskErr}, nil)
			got, err := router.HasOpenPosition(context.Background(), "BTCUSDT")
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func testBar(i int, c float64) *domain.Bar {
	closeTime := t0.Add(time.Duration(i+1) * 5 * time.Minute)
	return &domain.Bar{
		Symbol:    "BTCUSDT",
		Interval:  "5m",
		OpenTime:  closeTime.Add(-5 * time.Minute),
		CloseTime: closeTime,
		Open:      c,
		High:      c + 1,
		Low:       c - 1,
		Close:     c,
		IsFinal:   true,
	}
}

func paperConfig() ServiceConfig {
	return ServiceConfig{
		Mode:         config.ModePaper,
		Symbol:       "BTCUSDT",
		Interval:     "5m",
		TickSize:     0.1,
		QuantityStep: 0.001,
		WarmupBars:   3,
	}
}

func TestNewLiveService(t *testing.T) {
	params, err := config.DefaultParams()
	require.NoError(t, err)

	tests := []struct {
		name    string
		cfg     func() ServiceConfig
		deps    ServiceDeps
		wantErr error
	}{
		{"missing logger", paperConfig, ServiceDeps{Market: &mockMarket{}}, nil},
		{"missing symbol", func() ServiceConfig { c := paperConfig(); c.Symbol = ""; return c }, ServiceDeps{Logger: &mockLogger{}, Market: &mockMarket{}}, ports.ErrConfigurationError},
		{"unknown mode", func() ServiceConfig { c := paperConfig(); c.Mode = "demo"; return c }, ServiceDeps{Logger: &mockLogger{}, Market: &mockMarket{}}, ports.ErrConfigurationError},
		{"live without exchange", func() ServiceConfig { c := paperConfig(); c.Mode = config.ModeLive; return c }, ServiceDeps{Logger: &mockLogger{}, Market: &mockMarket{}}, ports.ErrConfigurationError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLiveService(tt.cfg(), params, tt.deps)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}

	t.Run("live", func(t *testing.T) {
		cfg := paperConfig()
		cfg.Mode = config.ModeLive
		svc, err := NewLiveService(cfg, params, ServiceDeps{Logger: &mockLogger{}, Market: &mockMarket{}, Exchange: &mockExchange{}})
		require.NoError(t, err)
		assert.NotEmpty(t, svc.RunID())
	})
}

func TestWarmupSink_DropsEntriesWhileWarming(t *testing.T) {
	exchange := &mockExchange{positionRisk: &ports.PositionRisk{PositionAmt: 1}}
	router, _ := newTestRouter(t, exchange, nil)
	sink := &warmupSink{next: router, positions: router, warming: true}

	require.NoError(t, sink.SubmitEntry(context.Background(), longLeg()))
	open, err := sink.HasOpenPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.False(t, open)
	assert.Empty(t, exchange.placed)

	sink.warming = false
	require.NoError(t, sink.SubmitEntry(context.Background(), longLeg()))
	open, err = sink.HasOpenPosition(context.Background(), "BTCUSDT")
	require.NoError(t, err)
	assert.True(t, open)
	assert.Len(t, exchange.placed, 3)
}

func TestLiveService_Start_Paper(t *testing.T) {
	params, err := config.DefaultParams()
	require.NoError(t, err)

	market := &mockMarket{
		klines: map[string][]*domain.Bar{
			"BTCUSDT/5m": {testBar(0, 100), testBar(1, 101), testBar(2, 102)},
		},
		handlers: make(chan func(*domain.Bar), 1),
	}
	journal := &mockJournal{}
	logger := &mockLogger{}
	svc, err := NewLiveService(paperConfig(), params, ServiceDeps{Logger: logger, Market: market, Journal: journal})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := make(chan error, 1)
	go func() { errCh <- svc.Start(ctx) }()

	var handler func(*domain.Bar)
	select {
	case handler = <-market.handlers:
	case <-time.After(2 * time.Second):
		t.Fatal("stream was not started")
	}
	assert.Equal(t, 3, svc.Stats().PrimaryBars)

	// A replayed bar is ignored, a forming bar never reaches the engine.
	handler(testBar(2, 102))
	forming := testBar(4, 104)
	forming.IsFinal = false
	handler(forming)
	handler(testBar(3, 103))

	assert.Eventually(t, func() bool { return svc.Stats().PrimaryBars == 4 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("service did not stop")
	}
	assert.Equal(t, 4, svc.Stats().PrimaryBars)
	require.Len(t, journal.runs, 1)
	assert.Equal(t, config.ModePaper, journal.runs[0].Mode)
}

func TestLiveService_Start_WarmupFailure(t *testing.T) {
	params, err := config.DefaultParams()
	require.NoError(t, err)

	market := &mockMarket{klinesErr: ports.ErrConnectionFailed, handlers: make(chan func(*domain.Bar), 1)}
	svc, err := NewLiveService(paperConfig(), params, ServiceDeps{Logger: &mockLogger{}, Market: market})
	require.NoError(t, err)

	err = svc.Start(context.Background())
	assert.ErrorIs(t, err, ports.ErrConnectionFailed)
}

func TestLiveService_Start_StreamFailure(t *testing.T) {
	params, err := config.DefaultParams()
	require.NoError(t, err)

	market := &mockMarket{streamErr: errors.New("dial tcp: refused"), handlers: make(chan func(*domain.Bar), 1)}
	svc, err := NewLiveService(paperConfig(), params, ServiceDeps{Logger: &mockLogger{}, Market: market})
	require.NoError(t, err)

	err = svc.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to start WebSocket stream")
}
