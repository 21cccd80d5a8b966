package binanceclient

import (
	"context"
	"strconv"

	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"

	"github.com/adshao/go-binance/v2/futures"
)

// PlaceMarketOrder places a market order.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*ports.OrderResponse, error) {
	op := "PlaceMarketOrder"
	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(futures.OrderTypeMarket).
		Quantity(quantity).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "side": side, "quantity": quantity, "orderID": resp.OrderID, "avgPrice": resp.AvgPrice})
	return resp, nil
}

// PlaceStopMarketOrder places a reduce-only stop-market order for one leg.
func (c *Client) PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*ports.OrderResponse, error) {
	return c.placeProtective(ctx, "PlaceStopMarketOrder", futures.OrderTypeStopMarket, symbol, side, quantity, stopPrice)
}

// PlaceTakeProfitMarketOrder places a reduce-only take-profit-market order for one leg.
func (c *Client) PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*ports.OrderResponse, error) {
	return c.placeProtective(ctx, "PlaceTakeProfitMarketOrder", futures.OrderTypeTakeProfitMarket, symbol, side, quantity, stopPrice)
}

// placeProtective uses ReduceOnly with an explicit quantity instead of
// ClosePosition, so each leg's exit only closes that leg.
func (c *Client) placeProtective(ctx context.Context, op string, orderType futures.OrderType, symbol string, side domain.OrderSide, quantity, stopPrice string) (*ports.OrderResponse, error) {
	fields := map[string]interface{}{
		"symbol":    symbol,
		"side":      side,
		"quantity":  quantity,
		"stopPrice": stopPrice,
		"type":      string(orderType),
	}
	c.logger.Debug(ctx, op+": Attempting to place order", fields)

	order, err := c.futuresClient.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(side)).
		Type(orderType).
		Quantity(quantity).
		StopPrice(stopPrice).
		ReduceOnly(true).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(order)
	fields["orderID"] = resp.OrderID
	fields["status"] = resp.Status
	c.logger.Info(ctx, op+" successful", fields)
	return resp, nil
}

// GetPositionRisk retrieves the risk information for a specific position symbol.
// Returns nil when the symbol holds no position.
func (c *Client) GetPositionRisk(ctx context.Context, symbol string) (*ports.PositionRisk, error) {
	op := "GetPositionRisk"
	positions, err := c.futuresClient.NewGetPositionRiskService().Symbol(symbol).Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}
	if len(positions) == 0 {
		c.logger.Debug(ctx, op+": No position found for symbol", map[string]interface{}{"symbol": symbol})
		return nil, nil
	}

	binancePos := positions[0]
	qty, _ := strconv.ParseFloat(binancePos.PositionAmt, 64)
	if qty == 0 {
		return nil, nil
	}
	return translatePositionRisk(binancePos), nil
}

// HasOpenPosition implements ports.PositionReader.
func (c *Client) HasOpenPosition(ctx context.Context, symbol string) (bool, error) {
	pos, err := c.GetPositionRisk(ctx, symbol)
	if err != nil {
		return false, err
	}
	return pos != nil, nil
}

// CancelOrder cancels an open order on Binance.
func (c *Client) CancelOrder(ctx context.Context, symbol string, orderID int64) (*ports.OrderResponse, error) {
	op := "CancelOrder"
	c.logger.Debug(ctx, "Attempting to cancel order", map[string]interface{}{"symbol": symbol, "orderID": orderID})

	res, err := c.futuresClient.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return nil, c.handleError(ctx, err, op)
	}

	resp := translateOrderResponse(&futures.CreateOrderResponse{
		OrderID:       res.OrderID,
		Symbol:        res.Symbol,
		ClientOrderID: res.ClientOrderID,
		Price:         res.Price,
		OrigQuantity:  res.OrigQuantity,
		Status:        res.Status,
		Type:          res.Type,
		Side:          res.Side,
	})
	c.logger.Info(ctx, op+" successful", map[string]interface{}{"symbol": symbol, "orderID": orderID, "status": resp.Status})
	return resp, nil
}
