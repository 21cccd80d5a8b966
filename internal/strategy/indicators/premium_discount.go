package indicators

import (
	talib "github.com/markcheno/go-talib"
)

// Zones are the premium/discount bands of the active dealing range.
type Zones struct {
	SwingHigh      float64
	SwingLow       float64
	SwingHighBar   int
	SwingLowBar    int
	PremiumTop     float64
	PremiumBottom  float64
	Equilibrium    float64
	DiscountTop    float64
	DiscountBottom float64
	InPremium      bool
	InDiscount     bool
}

const (
	pdTrendUnset = -1
	pdTrendHigh  = 0 // last swing was a high
	pdTrendLow   = 1 // last swing was a low
)

// PremiumDiscount tracks the latest swing high and low and classifies the
// close against their range.
type PremiumDiscount struct {
	length      int
	zonePercent float64
	trend       int

	swingHigh, swingLow       float64
	swingHighBar, swingLowBar int

	zones Zones
	ready bool
}

// NewPremiumDiscount creates the zone tracker.
func NewPremiumDiscount(swingLength int, zonePercent float64) *PremiumDiscount {
	if swingLength < 1 {
		swingLength = 1
	}
	return &PremiumDiscount{length: swingLength, zonePercent: zonePercent, trend: pdTrendUnset}
}

// Update consumes the latest bar of s and reports whether zones are defined.
func (p *PremiumDiscount) Update(s *Series) bool {
	if s.CurrentBar() < p.length || !s.Has(p.length) {
		return p.ready
	}

	upper := rollingMax(s.Highs(p.length), p.length)
	lower := rollingMin(s.Lows(p.length), p.length)

	if s.High(p.length) >= upper && p.trend != pdTrendHigh {
		p.trend = pdTrendHigh
		p.swingHigh = s.High(p.length)
		p.swingHighBar = s.CurrentBar() - p.length
	}
	if s.Low(p.length) <= lower && p.trend != pdTrendLow {
		p.trend = pdTrendLow
		p.swingLow = s.Low(p.length)
		p.swingLowBar = s.CurrentBar() - p.length
	}

	switch p.trend {
	case pdTrendHigh:
		if h := s.High(0); h > p.swingHigh {
			p.swingHigh = h
		}
	case pdTrendLow:
		if l := s.Low(0); l < p.swingLow {
			p.swingLow = l
		}
	}

	if p.swingHigh <= 0 || p.swingLow <= 0 {
		return false
	}

	rng := p.swingHigh - p.swingLow
	z := Zones{
		SwingHigh:      p.swingHigh,
		SwingLow:       p.swingLow,
		SwingHighBar:   p.swingHighBar,
		SwingLowBar:    p.swingLowBar,
		PremiumTop:     p.swingHigh,
		PremiumBottom:  p.swingHigh - rng*p.zonePercent,
		Equilibrium:    (p.swingHigh + p.swingLow) / 2,
		DiscountTop:    p.swingLow + rng*p.zonePercent,
		DiscountBottom: p.swingLow,
	}
	c := s.Close(0)
	z.InPremium = c >= z.Equilibrium && c <= z.PremiumTop
	z.InDiscount = c <= z.Equilibrium && c >= z.DiscountBottom
	p.zones = z
	p.ready = true
	return true
}

// Zones returns the last computed zones and whether they are defined.
func (p *PremiumDiscount) Zones() (Zones, bool) { return p.zones, p.ready }

// rollingMax returns the maximum of the last period values.
func rollingMax(values []float64, period int) float64 {
	if period < 2 || len(values) < period {
		return maxOf(values)
	}
	out := talib.Max(values, period)
	return out[len(out)-1]
}

// rollingMin returns the minimum of the last period values.
func rollingMin(values []float64, period int) float64 {
	if period < 2 || len(values) < period {
		return minOf(values)
	}
	out := talib.Min(values, period)
	return out[len(out)-1]
}

func maxOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func minOf(values []float64) float64 {
	m := values[0]
	for _, v := range values[1:] {
		if v < m {
			m = v
		}
	}
	return m
}
