package domain

import "time"

// Trade represents a closed leg.
type Trade struct {
	ID          int64
	RunID       string
	Symbol      string
	Label       string // e.g. "CombinedEntry_1", "FVG_2"
	Leg         int
	SignalType  SignalType
	Combined    bool
	Direction   Direction
	Quantity    float64
	EntryPrice  float64
	ExitPrice   float64
	StopLoss    float64
	Target      float64
	PriceMove   float64 // exit minus entry in the trade's favour, per unit
	RMultiple   float64 // PriceMove over initial risk, 0 without a stop
	EntryBar    int
	ExitBar     int
	EntryTime   time.Time
	ExitTime    time.Time
	CloseReason CloseReason
}
