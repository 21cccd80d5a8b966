package indicators

import (
	"math"

	"confluenceBot/internal/domain"
)

// Trend is the Heiken-Ashi colour state.
type Trend int

const (
	TrendNone Trend = iota
	TrendBullish
	TrendBearish
)

func (t Trend) String() string {
	switch t {
	case TrendBullish:
		return "bullish"
	case TrendBearish:
		return "bearish"
	default:
		return "none"
	}
}

// HACandle is one smoothed candle.
type HACandle struct {
	Open, High, Low, Close float64
}

// HeikenAshi computes smoothed candles and their colour trend. With a
// smoothing period above 1 the raw OHLC is EMA-filtered first.
type HeikenAshi struct {
	smooth  [4]*MovingAverage
	prev    HACandle
	started bool
	trend   Trend
}

// NewHeikenAshi creates the indicator.
func NewHeikenAshi(smoothingPeriod int) *HeikenAshi {
	h := &HeikenAshi{}
	if smoothingPeriod > 1 {
		for i := range h.smooth {
			h.smooth[i], _ = NewMovingAverage(MovingAverageConfig{Period: smoothingPeriod, Type: ExponentialMovingAverage})
		}
	}
	return h
}

// Trend returns the current trend.
func (h *HeikenAshi) Trend() Trend { return h.trend }

// Update consumes a bar and returns the new candle, the trend before the bar
// and the trend after it.
func (h *HeikenAshi) Update(b domain.Bar) (HACandle, Trend, Trend) {
	o, hi, lo, c := b.Open, b.High, b.Low, b.Close
	if h.smooth[0] != nil {
		o = h.smooth[0].Update(o)
		hi = h.smooth[1].Update(hi)
		lo = h.smooth[2].Update(lo)
		c = h.smooth[3].Update(c)
	}

	var ha HACandle
	ha.Close = (o + hi + lo + c) / 4
	if h.started {
		ha.Open = (h.prev.Open + h.prev.Close) / 2
	} else {
		ha.Open = (o + c) / 2
	}
	ha.High = math.Max(hi, math.Max(ha.Open, ha.Close))
	ha.Low = math.Min(lo, math.Min(ha.Open, ha.Close))

	before := h.trend
	switch {
	case ha.Close > ha.Open:
		h.trend = TrendBullish
	case ha.Close < ha.Open:
		h.trend = TrendBearish
	}
	h.prev = ha
	h.started = true
	return ha, before, h.trend
}

// Flip maps a trend transition to a trade direction: bearish to bullish is
// long, bullish to bearish is short.
func Flip(before, after Trend) (domain.Direction, bool) {
	switch {
	case before == TrendBearish && after == TrendBullish:
		return domain.Long, true
	case before == TrendBullish && after == TrendBearish:
		return domain.Short, true
	}
	return "", false
}
