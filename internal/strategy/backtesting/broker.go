package backtesting

import (
	"context"
	"errors"

	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
)

// BrokerConfig configures the simulated broker.
type BrokerConfig struct {
	Logger  ports.Logger
	Journal ports.SignalJournal   // optional, receives every entry leg
	Trades  ports.TradeRepository // optional, receives every closed leg
}

// Broker fills entry legs at their entry price and closes them against later
// bars. It implements ports.OrderSink and ports.PositionReader. Not safe for
// concurrent use.
type Broker struct {
	cfg    BrokerConfig
	logger ports.Logger
	nextID int64
	open   []*domain.Position
	closed []domain.Trade
	last   domain.Bar
}

// NewBroker creates a simulated broker.
func NewBroker(cfg BrokerConfig) (*Broker, error) {
	if cfg.Logger == nil {
		return nil, errors.New("logger is required for broker")
	}
	return &Broker{cfg: cfg, logger: cfg.Logger}, nil
}

// SubmitEntry opens a leg at the order's entry price.
func (b *Broker) SubmitEntry(ctx context.Context, order *domain.EntryOrder) error {
	if order.Quantity <= 0 {
		return ports.ErrInvalidRequest
	}
	if b.cfg.Journal != nil {
		if _, err := b.cfg.Journal.RecordEntry(ctx, order); err != nil {
			b.logger.Error(ctx, err, "Failed to journal entry leg", map[string]interface{}{"label": order.Label})
		}
	}

	b.nextID++
	pos := &domain.Position{
		ID:         b.nextID,
		Order:      *order,
		EntryPrice: order.EntryPrice,
		EntryBar:   order.Bar,
		EntryTime:  order.Time,
		Status:     domain.StatusOpen,
	}
	b.open = append(b.open, pos)
	b.logger.Debug(ctx, "Simulated leg opened", map[string]interface{}{
		"label":     order.Label,
		"direction": order.Direction,
		"entry":     order.EntryPrice,
		"stop":      order.StopLoss,
		"target":    order.Target,
		"quantity":  order.Quantity,
	})
	return nil
}

// HasOpenPosition reports whether any leg for symbol is open.
func (b *Broker) HasOpenPosition(_ context.Context, symbol string) (bool, error) {
	for _, p := range b.open {
		if p.Order.Symbol == symbol {
			return true, nil
		}
	}
	return false, nil
}

// OnBar checks every leg opened before bar against its stop, then its
// target, and returns the legs it closed.
func (b *Broker) OnBar(ctx context.Context, bar domain.Bar) []domain.Trade {
	b.last = bar
	var closed []domain.Trade
	remaining := b.open[:0]
	for _, p := range b.open {
		if !bar.CloseTime.After(p.EntryTime) {
			remaining = append(remaining, p)
			continue
		}
		price, reason, hit := exitFor(p.Order, bar)
		if !hit {
			remaining = append(remaining, p)
			continue
		}
		closed = append(closed, b.close(ctx, p, price, bar, reason))
	}
	b.open = remaining
	return closed
}

// CloseAll closes every open leg at the close of the last bar seen.
func (b *Broker) CloseAll(ctx context.Context, reason domain.CloseReason) []domain.Trade {
	var closed []domain.Trade
	for _, p := range b.open {
		closed = append(closed, b.close(ctx, p, b.last.Close, b.last, reason))
	}
	b.open = nil
	return closed
}

// Trades returns every closed leg in closing order.
func (b *Broker) Trades() []domain.Trade { return b.closed }

// OpenPositions returns the number of open legs.
func (b *Broker) OpenPositions() int { return len(b.open) }

func (b *Broker) close(ctx context.Context, p *domain.Position, price float64, bar domain.Bar, reason domain.CloseReason) domain.Trade {
	trade := p.Close(price, bar.Index, bar.CloseTime, reason)
	if b.cfg.Trades != nil {
		id, err := b.cfg.Trades.CreateTrade(ctx, &trade)
		if err != nil {
			b.logger.Error(ctx, err, "Failed to store closed leg", map[string]interface{}{"label": trade.Label})
		} else {
			trade.ID = id
		}
	}
	b.closed = append(b.closed, trade)
	b.logger.Debug(ctx, "Simulated leg closed", map[string]interface{}{
		"label":     trade.Label,
		"reason":    reason,
		"exitPrice": price,
		"rMultiple": trade.RMultiple,
	})
	return trade
}

// exitFor decides whether bar takes the leg out. The stop wins when both
// levels trade inside the same bar.
func exitFor(o domain.EntryOrder, bar domain.Bar) (float64, domain.CloseReason, bool) {
	if o.Direction == domain.Short {
		if o.HasStop() && bar.High >= o.StopLoss {
			return o.StopLoss, domain.CloseReasonStopLoss, true
		}
		if o.HasTarget() && bar.Low <= o.Target {
			return o.Target, domain.CloseReasonTakeProfit, true
		}
		return 0, "", false
	}
	if o.HasStop() && bar.Low <= o.StopLoss {
		return o.StopLoss, domain.CloseReasonStopLoss, true
	}
	if o.HasTarget() && bar.High >= o.Target {
		return o.Target, domain.CloseReasonTakeProfit, true
	}
	return 0, "", false
}
