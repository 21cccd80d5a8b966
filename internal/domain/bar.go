package domain

import "time"

// SeriesKind tags which bar stream an event belongs to.
type SeriesKind string

const (
	SeriesPrimary    SeriesKind = "primary"    // chart timeframe, drives entries
	SeriesHigher     SeriesKind = "higher"     // higher timeframe of the same symbol
	SeriesComparison SeriesKind = "comparison" // correlated symbol used for SMT
)

// Bar represents a single OHLCV candle.
type Bar struct {
	Series    SeriesKind
	Symbol    string    // Trading symbol
	Interval  string    // Bar interval (e.g., "1m", "1h")
	Index     int       // Position within its series, assigned on append
	OpenTime  time.Time // Start time of the interval
	CloseTime time.Time // End time of the interval
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	IsFinal   bool // Whether this bar is closed
}

// IsGreen reports whether the bar closed above its open.
func (b Bar) IsGreen() bool { return b.Close > b.Open }

// IsRed reports whether the bar closed below its open.
func (b Bar) IsRed() bool { return b.Close < b.Open }

// BarEvent is one closed bar delivered to the engine.
type BarEvent struct {
	Series SeriesKind
	Bar    Bar
}
