package detectors

import (
	"time"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/strategy/indicators"
)

const (
	pdPremiumTag     = "PD_Premium"
	pdDiscountTag    = "PD_Discount"
	pdEquilibriumTag = "PD_Equilibrium"
)

// PremiumDiscount keeps the dealing-range zones current and redraws them
// whenever the range moves. It never emits signals; the entry gate reads
// its zones.
type PremiumDiscount struct {
	pd        *indicators.PremiumDiscount
	lastHigh  float64
	lastLow   float64
	drawnOnce bool
}

// NewPremiumDiscount creates the zone detector.
func NewPremiumDiscount(params config.PremiumDiscountParams) *PremiumDiscount {
	return &PremiumDiscount{pd: indicators.NewPremiumDiscount(params.SwingLength, params.ZonePercent)}
}

func (d *PremiumDiscount) Name() string { return "premium_discount" }

// Zones returns the latest zones and whether they are formed.
func (d *PremiumDiscount) Zones() (indicators.Zones, bool) { return d.pd.Zones() }

// OnPrimary updates the zones with the new bar.
func (d *PremiumDiscount) OnPrimary(c *Context, out *Output) {
	if !d.pd.Update(c.Primary) {
		return
	}
	z, _ := d.pd.Zones()
	if d.drawnOnce && z.SwingHigh == d.lastHigh && z.SwingLow == d.lastLow {
		return
	}
	d.lastHigh, d.lastLow, d.drawnOnce = z.SwingHigh, z.SwingLow, true

	bar := c.Primary.Last()
	start := bar.CloseTime
	if z.SwingHighBar < z.SwingLowBar {
		start = barTime(c.Primary, z.SwingHighBar, start)
	} else {
		start = barTime(c.Primary, z.SwingLowBar, start)
	}
	out.Draw(
		domain.DrawCommand{Action: domain.DrawAdd, Kind: domain.DrawRectangle, Tag: pdPremiumTag, Bar: bar.Index,
			StartTime: start, EndTime: bar.CloseTime, StartPrice: z.PremiumTop, EndPrice: z.PremiumBottom,
			Color: c.Colors.BearishColor, Opacity: c.Colors.Opacity},
		domain.DrawCommand{Action: domain.DrawAdd, Kind: domain.DrawRectangle, Tag: pdDiscountTag, Bar: bar.Index,
			StartTime: start, EndTime: bar.CloseTime, StartPrice: z.DiscountTop, EndPrice: z.DiscountBottom,
			Color: c.Colors.BullishColor, Opacity: c.Colors.Opacity},
		domain.DrawCommand{Action: domain.DrawAdd, Kind: domain.DrawLine, Tag: pdEquilibriumTag, Bar: bar.Index,
			StartTime: start, EndTime: bar.CloseTime, StartPrice: z.Equilibrium, EndPrice: z.Equilibrium,
			Color: c.Colors.NeutralColor, Style: "dash", Width: 1},
	)
}

// barTime returns the close time of the bar with the given index when it is
// still retained, else fallback.
func barTime(s *indicators.Series, index int, fallback time.Time) time.Time {
	ago := s.BarsAgo(index)
	if ago < 0 || !s.Has(ago) {
		return fallback
	}
	return s.Ago(ago).CloseTime
}
