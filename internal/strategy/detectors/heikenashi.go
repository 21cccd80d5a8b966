package detectors

import (
	"fmt"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/strategy/indicators"
)

// HeikenAshi emits a signal when the smoothed-candle colour flips. The chart
// instance follows primary bars and colours them; the higher-timeframe
// instance follows higher bars and emits its flip on the next primary bar.
type HeikenAshi struct {
	toggles config.SignalToggles
	higher  bool
	ha      *indicators.HeikenAshi
	pending *domain.Direction

	// last chart update
	tracked       int
	candle        indicators.HACandle
	before, after indicators.Trend
}

// NewHeikenAshi creates the chart-timeframe instance.
func NewHeikenAshi(params config.HeikenAshiParams) *HeikenAshi {
	return &HeikenAshi{
		toggles: params.LTFToggles(),
		ha:      indicators.NewHeikenAshi(params.SmoothingPeriod),
		tracked: -1,
	}
}

// NewHigherHeikenAshi creates the higher-timeframe instance.
func NewHigherHeikenAshi(params config.HeikenAshiParams) *HeikenAshi {
	return &HeikenAshi{
		toggles: params.HTFToggles(),
		higher:  true,
		ha:      indicators.NewHeikenAshi(params.SmoothingPeriod),
		tracked: -1,
	}
}

func (d *HeikenAshi) Name() string {
	if d.higher {
		return "htf_heiken_ashi"
	}
	return "ltf_heiken_ashi"
}

// Trend returns the current smoothed-candle trend.
func (d *HeikenAshi) Trend() indicators.Trend { return d.ha.Trend() }

// signals reports whether flips become signals at all; pure display mode
// only colours bars.
func (d *HeikenAshi) signals() bool {
	return d.toggles.Entry || d.toggles.Combined
}

func (d *HeikenAshi) signalType() domain.SignalType {
	if d.higher {
		return domain.SignalHTFHeikenAshi
	}
	return domain.SignalLTFHeikenAshi
}

// OnHigher updates the higher-timeframe candles and remembers a flip.
func (d *HeikenAshi) OnHigher(c *Context, _ *Output) {
	if !d.higher || c.Higher == nil {
		return
	}
	_, before, after := d.ha.Update(c.Higher.Last())
	if dir, ok := indicators.Flip(before, after); ok {
		d.pending = &dir
	}
}

// TrackPrimary feeds the latest primary bar to the chart candles. Each bar
// is consumed once.
func (d *HeikenAshi) TrackPrimary(c *Context) {
	if d.higher {
		return
	}
	bar := c.Primary.Last()
	if bar.Index == d.tracked {
		return
	}
	d.tracked = bar.Index
	d.candle, d.before, d.after = d.ha.Update(bar)
}

// OnPrimary colours the bar (chart instance) and emits any flip.
func (d *HeikenAshi) OnPrimary(c *Context, out *Output) {
	if d.higher {
		if d.pending != nil {
			dir := *d.pending
			d.pending = nil
			d.emit(c, dir, out)
		}
		return
	}

	d.TrackPrimary(c)
	bar := c.Primary.Last()
	out.Draw(d.barColor(c, bar, d.candle, d.after))
	if dir, ok := indicators.Flip(d.before, d.after); ok {
		d.emit(c, dir, out)
	}
}

func (d *HeikenAshi) emit(c *Context, dir domain.Direction, out *Output) {
	if !d.signals() {
		return
	}
	sig := newSignal(c, d.signalType(), dir, d.toggles, config.StopParams{})
	sig.HigherTimeframe = d.higher
	out.Emit(sig)
}

func (d *HeikenAshi) barColor(c *Context, bar domain.Bar, candle indicators.HACandle, trend indicators.Trend) domain.DrawCommand {
	color := c.Colors.NeutralColor
	switch trend {
	case indicators.TrendBullish:
		color = c.Colors.BullishColor
	case indicators.TrendBearish:
		color = c.Colors.BearishColor
	}
	return domain.DrawCommand{
		Action:     domain.DrawAdd,
		Kind:       domain.DrawBarColor,
		Tag:        fmt.Sprintf("HA_%d", bar.Index),
		Bar:        bar.Index,
		StartTime:  bar.CloseTime,
		StartPrice: candle.Open,
		EndPrice:   candle.Close,
		Color:      color,
	}
}
