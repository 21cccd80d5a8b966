package domain

import "time"

// SwingPoint is a confirmed local extreme used by structure-break detection.
type SwingPoint struct {
	Price  float64
	Bar    int
	Time   time.Time
	Broken bool
}

// GapLevel is a fair-value gap or an inversion gap.
type GapLevel struct {
	Top       float64
	Bottom    float64
	Direction Direction
	StartBar  int
	StartTime time.Time

	Retested   bool
	RetestBar  int
	RetestTime time.Time

	Mitigated      bool
	MitigationBar  int
	MitigationTime time.Time

	SignalEmitted bool
	DrawTag       string
}

// Contains reports whether price lies inside the gap, edges included.
func (g *GapLevel) Contains(price float64) bool {
	return price >= g.Bottom && price <= g.Top
}

// StructureLevel is a change-in-state-of-delivery level.
type StructureLevel struct {
	Price       float64
	Direction   Direction
	CreatedBar  int
	CreatedTime time.Time
	StartBar    int // candle the level was taken from
	StartTime   time.Time
	Triggered   bool
	DrawTag     string
}

// PivotLevel is a swing point watched for liquidity sweeps.
type PivotLevel struct {
	Price           float64
	Bar             int
	Time            time.Time
	High            bool
	Wick            bool
	Broken          bool
	Mitigated       bool
	SignalEmitted   bool
	HigherTimeframe bool
}
