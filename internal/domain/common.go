package domain

// Direction is the trade direction a signal or entry points to.
type Direction string

const (
	Long  Direction = "LONG"
	Short Direction = "SHORT"
)

// Opposite returns the reversed direction.
func (d Direction) Opposite() Direction {
	if d == Long {
		return Short
	}
	return Long
}

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == Short {
		return -1
	}
	return 1
}

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// EntrySide maps a trade direction to the side of its entry order.
func (d Direction) EntrySide() OrderSide {
	if d == Short {
		return Sell
	}
	return Buy
}

// ExitSide maps a trade direction to the side of its protective orders.
func (d Direction) ExitSide() OrderSide {
	if d == Short {
		return Buy
	}
	return Sell
}

// PositionStatus represents the status of a simulated leg.
type PositionStatus string

const (
	StatusOpen   PositionStatus = "open"
	StatusClosed PositionStatus = "closed"
)

// CloseReason indicates why a leg was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonEndOfData  CloseReason = "END_OF_DATA"
	CloseReasonUnknown    CloseReason = "Unknown"
)
