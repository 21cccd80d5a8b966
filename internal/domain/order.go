package domain

import "time"

// EntryOrder is one leg of an entry. Stop and target of 0 mean none.
type EntryOrder struct {
	RunID      string
	Leg        int // 1..4
	Label      string
	Symbol     string
	Direction  Direction
	Quantity   float64
	EntryPrice float64
	StopLoss   float64
	Target     float64
	SignalType SignalType // type of the triggering signal
	SignalIDs  []string
	Combined   bool
	Bar        int
	Time       time.Time
}

// HasStop reports whether the leg carries a protective stop.
func (o *EntryOrder) HasStop() bool { return o.StopLoss > 0 }

// HasTarget reports whether the leg carries a profit target.
func (o *EntryOrder) HasTarget() bool { return o.Target > 0 }
