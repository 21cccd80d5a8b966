// Package execution turns a validated trigger into sized entry legs.
package execution

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
)

// LegCount is the number of independently configured entry legs.
const LegCount = 4

// Gate decides whether a new entry may be opened at all.
type Gate interface {
	Allow(ctx context.Context, dir domain.Direction) error
}

// Config holds the executor's dependencies and leg settings.
type Config struct {
	RunID    string
	Symbol   string
	TickSize float64
	Legs     [LegCount]config.LegParams
	Gate     Gate
	Sink     ports.OrderSink
	Logger   ports.Logger
}

// Executor builds and submits entry legs.
type Executor struct {
	cfg  Config
	tick decimal.Decimal
}

// New creates an executor.
func New(cfg Config) (*Executor, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if cfg.Sink == nil {
		return nil, errors.New("order sink is required")
	}
	if cfg.TickSize <= 0 {
		return nil, fmt.Errorf("%w: tick size must be positive", ports.ErrInvalidRequest)
	}
	return &Executor{cfg: cfg, tick: decimal.NewFromFloat(cfg.TickSize)}, nil
}

// Execute checks the gate, builds the legs for the trigger set and submits
// them. A closed gate returns ports.ErrEntryBlocked.
func (e *Executor) Execute(ctx context.Context, trigger []*domain.Signal) ([]*domain.EntryOrder, error) {
	if len(trigger) == 0 {
		return nil, fmt.Errorf("%w: empty trigger", ports.ErrInvalidRequest)
	}
	lead := trigger[0]
	if e.cfg.Gate != nil {
		if err := e.cfg.Gate.Allow(ctx, lead.Direction); err != nil {
			return nil, err
		}
	}

	orders := e.Build(trigger)
	submitted := make([]*domain.EntryOrder, 0, len(orders))
	for _, o := range orders {
		if err := e.cfg.Sink.SubmitEntry(ctx, o); err != nil {
			return submitted, fmt.Errorf("failed to submit %s: %w", o.Label, err)
		}
		submitted = append(submitted, o)
		e.cfg.Logger.Info(ctx, "Entry leg submitted", map[string]interface{}{
			"label":     o.Label,
			"direction": o.Direction,
			"quantity":  o.Quantity,
			"entry":     o.EntryPrice,
			"stop":      o.StopLoss,
			"target":    o.Target,
			"bar":       o.Bar,
		})
	}
	return submitted, nil
}

// Build computes the legs for a trigger set without submitting them. The
// first signal of a multi-signal set is the newest and supplies the entry.
func (e *Executor) Build(trigger []*domain.Signal) []*domain.EntryOrder {
	if len(trigger) == 0 {
		return nil
	}
	lead := trigger[0]
	combined := len(trigger) > 1
	stop := e.TriggerStop(trigger)
	entry := decimal.NewFromFloat(lead.EntryPrice)
	sign := decimal.NewFromFloat(lead.Direction.Sign())

	ids := make([]string, len(trigger))
	for i, s := range trigger {
		ids[i] = s.ID
	}

	var orders []*domain.EntryOrder
	for i, leg := range e.cfg.Legs {
		if leg.Quantity <= 0 {
			continue
		}
		n := i + 1
		label := fmt.Sprintf("%s_%d", lead.Type, n)
		if combined {
			label = fmt.Sprintf("CombinedEntry_%d", n)
		}

		legStop := decimal.NewFromFloat(stop)
		if leg.UseCustomStop {
			legStop = entry.Sub(sign.Mul(e.ticks(leg.CustomStopTicks)))
		}

		legTarget := decimal.Zero
		switch rr, ok := leg.RRMultiple(); {
		case leg.UseCustomTarget:
			legTarget = entry.Add(sign.Mul(e.ticks(leg.CustomTargetTicks)))
		case ok && !legStop.IsZero():
			risk := entry.Sub(legStop).Abs()
			legTarget = entry.Add(sign.Mul(risk.Mul(decimal.NewFromFloat(rr))))
		}

		orders = append(orders, &domain.EntryOrder{
			RunID:      e.cfg.RunID,
			Leg:        n,
			Label:      label,
			Symbol:     e.cfg.Symbol,
			Direction:  lead.Direction,
			Quantity:   leg.Quantity,
			EntryPrice: lead.EntryPrice,
			StopLoss:   legStop.InexactFloat64(),
			Target:     legTarget.InexactFloat64(),
			SignalType: lead.Type,
			SignalIDs:  ids,
			Combined:   combined,
			Bar:        lead.Bar,
			Time:       lead.Time,
		})
	}
	return orders
}

// TriggerStop returns the stop a trigger set trades with, buffered away from
// entry by the supplying signal's tick offset. A single signal supplies its
// own stop; a combined set takes the newest signal that opted in through
// UseStopLossRR. Zero means no stop.
func (e *Executor) TriggerStop(trigger []*domain.Signal) float64 {
	if len(trigger) == 0 {
		return 0
	}
	if len(trigger) == 1 {
		return e.buffered(trigger[0])
	}
	ordered := append([]*domain.Signal(nil), trigger...)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Bar > ordered[j].Bar })
	for _, s := range ordered {
		if s.UseStopLossRR && s.StopLoss != 0 {
			return e.buffered(s)
		}
	}
	return 0
}

func (e *Executor) buffered(s *domain.Signal) float64 {
	if s.StopLoss == 0 {
		return 0
	}
	offset := decimal.NewFromFloat(s.Direction.Sign()).Mul(e.ticks(s.StopLossPlusTicks))
	return decimal.NewFromFloat(s.StopLoss).Sub(offset).InexactFloat64()
}

func (e *Executor) ticks(n int) decimal.Decimal {
	return e.tick.Mul(decimal.NewFromInt(int64(n)))
}
