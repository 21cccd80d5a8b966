package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
)

// RouterConfig holds the instrument filters used to format orders.
type RouterConfig struct {
	TickSize     float64
	QuantityStep float64
}

// ExchangeRouter sends entry legs to the exchange: a market entry followed
// by a reduce-only stop-market and take-profit-market order. It implements
// ports.OrderSink and ports.PositionReader.
type ExchangeRouter struct {
	tick     decimal.Decimal
	step     decimal.Decimal
	logger   ports.Logger
	exchange ports.ExchangeClient
	journal  ports.SignalJournal
}

// NewExchangeRouter creates a router. journal may be nil.
func NewExchangeRouter(cfg RouterConfig, logger ports.Logger, exchange ports.ExchangeClient, journal ports.SignalJournal) (*ExchangeRouter, error) {
	if logger == nil || exchange == nil {
		return nil, fmt.Errorf("missing required dependencies for ExchangeRouter")
	}
	if cfg.TickSize <= 0 || cfg.QuantityStep <= 0 {
		return nil, fmt.Errorf("%w: tick size and quantity step must be positive", ports.ErrConfigurationError)
	}
	return &ExchangeRouter{
		tick:     decimal.NewFromFloat(cfg.TickSize),
		step:     decimal.NewFromFloat(cfg.QuantityStep),
		logger:   logger,
		exchange: exchange,
		journal:  journal,
	}, nil
}

// formatPrice rounds a price to the nearest tick.
func (r *ExchangeRouter) formatPrice(price float64) string {
	return decimal.NewFromFloat(price).Div(r.tick).Round(0).Mul(r.tick).String()
}

// formatQuantity truncates a quantity to the lot step.
func (r *ExchangeRouter) formatQuantity(quantity float64) (string, bool) {
	q := decimal.NewFromFloat(quantity).Div(r.step).Floor().Mul(r.step)
	return q.String(), q.IsPositive()
}

// SubmitEntry places one leg. When a protective order fails after the entry
// filled, the leg is flattened with a market order and the error returned.
func (r *ExchangeRouter) SubmitEntry(ctx context.Context, order *domain.EntryOrder) error {
	op := "SubmitEntry"
	quantity, ok := r.formatQuantity(order.Quantity)
	if !ok {
		return fmt.Errorf("%w: quantity %v below lot step %s", ports.ErrInvalidRequest, order.Quantity, r.step)
	}
	fields := map[string]interface{}{
		"label":     order.Label,
		"symbol":    order.Symbol,
		"direction": order.Direction,
		"quantity":  quantity,
	}

	// 1. Entry
	entry, err := r.exchange.PlaceMarketOrder(ctx, order.Symbol, order.Direction.EntrySide(), quantity)
	if err != nil {
		r.logger.Error(ctx, err, op+": Failed to place entry market order", fields)
		return fmt.Errorf("entry market order failed: %w", err)
	}
	fields["orderID"] = entry.OrderID
	fields["avgPrice"] = entry.AvgPrice
	r.logger.Info(ctx, op+": Entry order placed", fields)

	// 2. Stop
	var stopOrder *ports.OrderResponse
	if order.HasStop() {
		stopOrder, err = r.exchange.PlaceStopMarketOrder(ctx, order.Symbol, order.Direction.ExitSide(), quantity, r.formatPrice(order.StopLoss))
		if err != nil {
			r.logger.Error(ctx, err, op+": Failed to place stop loss order", fields)
			r.emergencyClose(ctx, order, quantity)
			return fmt.Errorf("stop loss order failed after entry: %w (emergency close attempted)", err)
		}
	}

	// 3. Target
	if order.HasTarget() {
		_, err = r.exchange.PlaceTakeProfitMarketOrder(ctx, order.Symbol, order.Direction.ExitSide(), quantity, r.formatPrice(order.Target))
		if err != nil {
			r.logger.Error(ctx, err, op+": Failed to place take profit order", fields)
			if stopOrder != nil {
				_ = r.cancelOrderWarn(ctx, order.Symbol, stopOrder.OrderID, "SL")
			}
			r.emergencyClose(ctx, order, quantity)
			return fmt.Errorf("take profit order failed after entry: %w (emergency close attempted)", err)
		}
	}

	// 4. Journal
	if r.journal != nil {
		if _, err := r.journal.RecordEntry(ctx, order); err != nil {
			r.logger.Error(ctx, err, op+": Failed to journal entry leg", fields)
		}
	}
	return nil
}

// HasOpenPosition implements ports.PositionReader.
func (r *ExchangeRouter) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	pos, err := r.exchange.GetPositionRisk(ctx, symbol)
	if err != nil {
		return false, err
	}
	return pos != nil && pos.PositionAmt != 0, nil
}

// emergencyClose flattens a leg whose protection could not be placed.
func (r *ExchangeRouter) emergencyClose(ctx context.Context, order *domain.EntryOrder, quantity string) {
	op := "emergencyClose"
	side := order.Direction.ExitSide()
	r.logger.Warn(ctx, op+": Placing emergency closing order", map[string]interface{}{"side": side, "quantity": quantity, "label": order.Label})
	if _, err := r.exchange.PlaceMarketOrder(ctx, order.Symbol, side, quantity); err != nil {
		r.logger.Error(ctx, err, op+": FAILED TO PLACE EMERGENCY CLOSE ORDER", map[string]interface{}{"label": order.Label})
		return
	}
	r.logger.Info(ctx, op+": Emergency close order placed successfully")
}

// cancelOrderWarn attempts to cancel an order and logs a warning on failure.
func (r *ExchangeRouter) cancelOrderWarn(ctx context.Context, symbol string, orderID int64, orderType string) error {
	op := "cancelOrderWarn"
	_, err := r.exchange.CancelOrder(ctx, symbol, orderID)
	if err != nil {
		// Already filled or cancelled.
		if errors.Is(err, ports.ErrOrderNotFound) {
			r.logger.Warn(ctx, op+": Order not found, likely already filled or cancelled", map[string]interface{}{"orderID": orderID, "type": orderType})
			return nil
		}
		r.logger.Error(ctx, err, op+": Failed to cancel order", map[string]interface{}{"orderID": orderID, "type": orderType})
		return err
	}
	r.logger.Info(ctx, op+": Order cancelled successfully", map[string]interface{}{"orderID": orderID, "type": orderType})
	return nil
}
