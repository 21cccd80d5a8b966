package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type mockSink struct {
	orders []*domain.EntryOrder
	err    error
}

func (m *mockSink) SubmitEntry(ctx context.Context, o *domain.EntryOrder) error {
	if m.err != nil {
		return m.err
	}
	m.orders = append(m.orders, o)
	return nil
}

type gateFunc func(ctx context.Context, dir domain.Direction) error

func (f gateFunc) Allow(ctx context.Context, dir domain.Direction) error { return f(ctx, dir) }

func newExecutor(t *testing.T, legs [LegCount]config.LegParams, sink *mockSink, gate Gate) *Executor {
	t.Helper()
	e, err := New(Config{
		RunID:    "run-1",
		Symbol:   "BTCUSDT",
		TickSize: 0.25,
		Legs:     legs,
		Gate:     gate,
		Sink:     sink,
		Logger:   &mockLogger{},
	})
	require.NoError(t, err)
	return e
}

func signal(typ domain.SignalType, dir domain.Direction, bar int, entry, stop float64) *domain.Signal {
	return &domain.Signal{
		ID:            string(typ),
		Type:          typ,
		Direction:     dir,
		Bar:           bar,
		EntryPrice:    entry,
		StopLoss:      stop,
		UseStopLossRR: true,
	}
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Config{Sink: &mockSink{}, TickSize: 1})
	assert.Error(t, err)
	_, err = New(Config{Logger: &mockLogger{}, TickSize: 1})
	assert.Error(t, err)
	_, err = New(Config{Logger: &mockLogger{}, Sink: &mockSink{}})
	assert.ErrorIs(t, err, ports.ErrInvalidRequest)
}

func TestBuild_OneToTwoTarget(t *testing.T) {
	legs := [LegCount]config.LegParams{{Quantity: 1, RR2: true}}
	e := newExecutor(t, legs, &mockSink{}, nil)

	orders := e.Build([]*domain.Signal{signal(domain.SignalBOS, domain.Long, 10, 100, 98)})

	require.Len(t, orders, 1)
	o := orders[0]
	assert.Equal(t, "BOS_1", o.Label)
	assert.Equal(t, 100.0, o.EntryPrice)
	assert.Equal(t, 98.0, o.StopLoss)
	assert.Equal(t, 104.0, o.Target)
	assert.False(t, o.Combined)
	assert.Equal(t, "run-1", o.RunID)
}

func TestBuild_StopBufferAwayFromEntry(t *testing.T) {
	legs := [LegCount]config.LegParams{{Quantity: 1, RR1: true}}
	e := newExecutor(t, legs, &mockSink{}, nil)

	long := signal(domain.SignalBOS, domain.Long, 10, 100, 98)
	long.StopLossPlusTicks = 2
	short := signal(domain.SignalBOS, domain.Short, 10, 100, 102)
	short.StopLossPlusTicks = 2

	lo := e.Build([]*domain.Signal{long})[0]
	so := e.Build([]*domain.Signal{short})[0]

	assert.Equal(t, 97.5, lo.StopLoss)
	assert.Equal(t, 102.5, lo.Target)
	assert.Equal(t, 102.5, so.StopLoss)
	assert.Equal(t, 97.5, so.Target)
}

func TestBuild_Legs(t *testing.T) {
	legs := [LegCount]config.LegParams{
		{Quantity: 1, RR1_5: true, RR3: true},
		{Quantity: 0, RR2: true},
		{Quantity: 2, UseCustomStop: true, CustomStopTicks: 8, UseCustomTarget: true, CustomTargetTicks: 12},
		{Quantity: 3},
	}
	e := newExecutor(t, legs, &mockSink{}, nil)

	orders := e.Build([]*domain.Signal{signal(domain.SignalFVG, domain.Short, 10, 100, 104)})

	require.Len(t, orders, 3, "zero-quantity leg is skipped")

	assert.Equal(t, "FVG_1", orders[0].Label)
	assert.Equal(t, 104.0, orders[0].StopLoss)
	assert.Equal(t, 94.0, orders[0].Target, "first enabled preset wins")

	assert.Equal(t, "FVG_3", orders[1].Label)
	assert.Equal(t, 3, orders[1].Leg)
	assert.Equal(t, 102.0, orders[1].StopLoss)
	assert.Equal(t, 97.0, orders[1].Target)

	assert.Equal(t, "FVG_4", orders[2].Label)
	assert.Equal(t, 104.0, orders[2].StopLoss)
	assert.False(t, orders[2].HasTarget())
}

func TestBuild_NoStopMeansNoRTarget(t *testing.T) {
	legs := [LegCount]config.LegParams{{Quantity: 1, RR2: true}}
	e := newExecutor(t, legs, &mockSink{}, nil)

	orders := e.Build([]*domain.Signal{signal(domain.SignalLTFHeikenAshi, domain.Long, 10, 100, 0)})

	require.Len(t, orders, 1)
	assert.False(t, orders[0].HasStop())
	assert.False(t, orders[0].HasTarget())
}

func TestTriggerStop_Combined(t *testing.T) {
	e := newExecutor(t, [LegCount]config.LegParams{{Quantity: 1}}, &mockSink{}, nil)

	older := signal(domain.SignalLTFSweep, domain.Long, 5, 100, 95)
	newer := signal(domain.SignalBOS, domain.Long, 8, 101, 97)
	newer.UseStopLossRR = false
	newest := signal(domain.SignalLTFHeikenAshi, domain.Long, 9, 102, 0)

	assert.Equal(t, 95.0, e.TriggerStop([]*domain.Signal{newest, newer, older}),
		"newest signal that opted in with a stop")

	older.UseStopLossRR = false
	assert.Zero(t, e.TriggerStop([]*domain.Signal{newest, newer, older}))
}

func TestBuild_CombinedLabelsAndIDs(t *testing.T) {
	legs := [LegCount]config.LegParams{{Quantity: 1, RR1: true}, {Quantity: 1, RR2: true}}
	e := newExecutor(t, legs, &mockSink{}, nil)

	lead := signal(domain.SignalBOS, domain.Long, 8, 101, 99)
	other := signal(domain.SignalCISD, domain.Long, 6, 100, 98)

	orders := e.Build([]*domain.Signal{lead, other})

	require.Len(t, orders, 2)
	assert.Equal(t, "CombinedEntry_1", orders[0].Label)
	assert.Equal(t, "CombinedEntry_2", orders[1].Label)
	assert.True(t, orders[0].Combined)
	assert.Equal(t, []string{"BOS", "CISD"}, orders[0].SignalIDs)
	assert.Equal(t, 101.0, orders[0].EntryPrice)
	assert.Equal(t, 99.0, orders[0].StopLoss)
	assert.Equal(t, 103.0, orders[0].Target)
	assert.Equal(t, 105.0, orders[1].Target)
}

func TestExecute_SubmitsThroughSink(t *testing.T) {
	sink := &mockSink{}
	legs := [LegCount]config.LegParams{{Quantity: 1, RR2: true}, {Quantity: 0.5, RR4: true}}
	e := newExecutor(t, legs, sink, gateFunc(func(context.Context, domain.Direction) error { return nil }))

	orders, err := e.Execute(context.Background(), []*domain.Signal{signal(domain.SignalBOS, domain.Long, 10, 100, 98)})

	require.NoError(t, err)
	assert.Len(t, orders, 2)
	assert.Equal(t, orders, sink.orders)
}

func TestExecute_GateBlocks(t *testing.T) {
	sink := &mockSink{}
	legs := [LegCount]config.LegParams{{Quantity: 1, RR2: true}}
	var asked domain.Direction
	e := newExecutor(t, legs, sink, gateFunc(func(_ context.Context, dir domain.Direction) error {
		asked = dir
		return ports.ErrEntryBlocked
	}))

	orders, err := e.Execute(context.Background(), []*domain.Signal{signal(domain.SignalBOS, domain.Short, 10, 100, 102)})

	assert.ErrorIs(t, err, ports.ErrEntryBlocked)
	assert.Empty(t, orders)
	assert.Empty(t, sink.orders)
	assert.Equal(t, domain.Short, asked)
}

func TestExecute_SinkError(t *testing.T) {
	sink := &mockSink{err: errors.New("rejected")}
	e := newExecutor(t, [LegCount]config.LegParams{{Quantity: 1}}, sink, nil)

	_, err := e.Execute(context.Background(), []*domain.Signal{signal(domain.SignalBOS, domain.Long, 10, 100, 98)})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "BOS_1")
}
