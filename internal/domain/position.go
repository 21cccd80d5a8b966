package domain

import "time"

// Position is an open leg held by the simulated broker.
type Position struct {
	ID         int64
	Order      EntryOrder
	EntryPrice float64
	EntryBar   int
	EntryTime  time.Time
	Status     PositionStatus
}

// IsOpen checks if the leg is still open.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen
}

// Close converts the leg into a closed trade at the given price.
func (p *Position) Close(price float64, bar int, at time.Time, reason CloseReason) Trade {
	p.Status = StatusClosed
	o := p.Order
	t := Trade{
		RunID:       o.RunID,
		Symbol:      o.Symbol,
		Label:       o.Label,
		Leg:         o.Leg,
		SignalType:  o.SignalType,
		Combined:    o.Combined,
		Direction:   o.Direction,
		Quantity:    o.Quantity,
		EntryPrice:  p.EntryPrice,
		ExitPrice:   price,
		StopLoss:    o.StopLoss,
		Target:      o.Target,
		EntryBar:    p.EntryBar,
		ExitBar:     bar,
		EntryTime:   p.EntryTime,
		ExitTime:    at,
		CloseReason: reason,
	}
	t.PriceMove = (price - p.EntryPrice) * o.Direction.Sign()
	if o.StopLoss > 0 {
		if risk := abs(p.EntryPrice - o.StopLoss); risk > 0 {
			t.RMultiple = t.PriceMove / risk
		}
	}
	return t
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
