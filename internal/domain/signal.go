package domain

import "time"

// SignalType names the pattern that produced a signal.
type SignalType string

const (
	SignalBOS           SignalType = "BOS"
	SignalCISD          SignalType = "CISD"
	SignalFVG           SignalType = "FVG"
	SignalIFVG          SignalType = "IFVG"
	SignalLTFSweep      SignalType = "LTF_Sweep"
	SignalHTFSweep      SignalType = "HTF_Sweep"
	SignalLTFHeikenAshi SignalType = "LTF_HeikenAshi"
	SignalHTFHeikenAshi SignalType = "HTF_HeikenAshi"
	SignalSMT           SignalType = "SMT"
)

// Signal is a detector's announcement that an entry condition occurred.
type Signal struct {
	ID            string
	Type          SignalType
	Direction     Direction
	OrderPosition int // 0 = any order in a combination, k > 0 = rank
	Bar           int // primary bar index the signal fired on
	Time          time.Time

	EntryPrice        float64
	StopLoss          float64 // structural stop, 0 when none
	UseStopLossRR     bool    // eligible to supply the stop of a combined entry
	StopLossPlusTicks int     // buffer applied away from entry
	MaxBarsBetween    int

	Combined       bool
	Standalone     bool
	DisplayOnly    bool
	TradeGenerated bool

	// Reference to the level that produced the signal.
	ReferencePrice  float64
	ReferenceBar    int
	ReferenceTime   time.Time
	GapTop          float64
	GapBottom       float64
	HigherTimeframe bool
}

// Age returns the number of bars elapsed since the signal fired.
func (s *Signal) Age(currentBar int) int {
	return currentBar - s.Bar
}
