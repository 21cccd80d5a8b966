package ports

import (
	"context"
	"time"

	"confluenceBot/internal/domain"
)

// OrderResponse represents the essential details returned after placing an order.
type OrderResponse struct {
	OrderID       int64     // Exchange's order ID
	Symbol        string    // Symbol for the order
	ClientOrderID string    // User-defined order ID
	Price         float64   // Price of the order (might be 0 for market orders initially)
	AvgPrice      float64   // Average filled price
	OrigQuantity  float64   // Original quantity requested
	ExecutedQty   float64   // Quantity filled
	Status        string    // Order status (e.g., NEW, FILLED, CANCELED)
	Type          string    // Order type (e.g., MARKET, STOP_MARKET)
	Side          string    // Order side (BUY, SELL)
	Timestamp     time.Time // Time the order response was generated
}

// PositionRisk represents the risk details for an open position.
type PositionRisk struct {
	Symbol           string  // Symbol of the position
	PositionAmt      float64 // Positive for long, negative for short
	EntryPrice       float64 // Average entry price of the position
	MarkPrice        float64 // Current mark price
	UnRealizedProfit float64
	Leverage         int
}

// MarketData is the bar feed consumed by the engine runners.
type MarketData interface {
	// GetKlines retrieves the most recent closed bars for the given symbol.
	GetKlines(ctx context.Context, symbol, interval string, limit int) ([]*domain.Bar, error)

	// GetKlinesRange retrieves all bars between start and end.
	GetKlinesRange(ctx context.Context, symbol, interval string, start, end time.Time) ([]*domain.Bar, error)

	// StreamKlines starts a WebSocket stream for bar updates.
	// Returns channels to control the stream (doneCh, stopCh) or an error if connection fails.
	StreamKlines(ctx context.Context, symbol, interval string, handler func(bar *domain.Bar), errHandler func(err error)) (doneCh chan struct{}, stopCh chan struct{}, err error)
}

// ExchangeClient defines the interface for interacting with a futures exchange.
type ExchangeClient interface {
	MarketData

	// SetServerTime synchronizes the client's time with the server's time.
	SetServerTime(ctx context.Context) error

	// Ping checks the connectivity to the exchange API.
	Ping(ctx context.Context) error

	// PlaceMarketOrder places a market order.
	PlaceMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string) (*OrderResponse, error)

	// PlaceStopMarketOrder places a reduce-only stop-market order.
	PlaceStopMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*OrderResponse, error)

	// PlaceTakeProfitMarketOrder places a reduce-only take-profit-market order.
	PlaceTakeProfitMarketOrder(ctx context.Context, symbol string, side domain.OrderSide, quantity string, stopPrice string) (*OrderResponse, error)

	// GetPositionRisk retrieves the risk information for a symbol.
	// Returns nil if no position exists for the symbol.
	GetPositionRisk(ctx context.Context, symbol string) (*PositionRisk, error)

	// CancelOrder cancels an existing open order by its ID.
	CancelOrder(ctx context.Context, symbol string, orderID int64) (*OrderResponse, error)
}
