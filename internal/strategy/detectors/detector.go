// Package detectors turns bar history into trade signals and chart draws.
package detectors

import (
	"fmt"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/strategy/indicators"
)

// Context is the read-only view a detector gets on every event.
type Context struct {
	Symbol   string
	Primary  *indicators.Series
	Higher   *indicators.Series
	TickSize float64
	Colors   config.DrawParams
}

// Output collects what detectors produce for one event.
type Output struct {
	Signals []*domain.Signal
	Draws   []domain.DrawCommand
}

// Emit queues a signal.
func (o *Output) Emit(s *domain.Signal) {
	o.Signals = append(o.Signals, s)
}

// Draw queues chart commands.
func (o *Output) Draw(cmds ...domain.DrawCommand) {
	o.Draws = append(o.Draws, cmds...)
}

// Detector runs on every primary bar.
type Detector interface {
	Name() string
	OnPrimary(c *Context, out *Output)
}

// PrimaryTracker is implemented by detectors whose indicators follow every
// primary bar, including warm-up and out-of-session bars that skip detection.
type PrimaryTracker interface {
	TrackPrimary(c *Context)
}

// HigherTimeframeObserver is implemented by detectors that also consume
// higher-timeframe bars.
type HigherTimeframeObserver interface {
	OnHigher(c *Context, out *Output)
}

// ComparisonObserver is implemented by detectors that consume correlated
// symbols.
type ComparisonObserver interface {
	OnComparison(c *Context, symbol string, s *indicators.Series, out *Output)
}

// newSignal fills the fields every detector sets the same way from the
// current primary bar.
func newSignal(c *Context, typ domain.SignalType, dir domain.Direction, t config.SignalToggles, stop config.StopParams) *domain.Signal {
	bar := c.Primary.Last()
	return &domain.Signal{
		Type:              typ,
		Direction:         dir,
		OrderPosition:     t.OrderPosition,
		Bar:               bar.Index,
		Time:              bar.CloseTime,
		EntryPrice:        bar.Close + dir.Sign()*float64(t.EntryPlusTicks)*c.TickSize,
		UseStopLossRR:     stop.UseStopLossRR,
		StopLossPlusTicks: stop.StopLossPlusTicks,
		MaxBarsBetween:    t.MaxBarsBetween,
		Combined:          t.Combined,
		Standalone:        t.Standalone(),
		DisplayOnly:       t.DisplayOnly,
	}
}

func (c *Context) color(dir domain.Direction) string {
	if dir == domain.Long {
		return c.Colors.BullishColor
	}
	return c.Colors.BearishColor
}

// Annotate returns the chart objects that mark a signal's pattern. The engine
// draws them when the signal is traded or shown in display-only mode.
func Annotate(sig *domain.Signal, colors config.DrawParams) []domain.DrawCommand {
	color := colors.BearishColor
	if sig.Direction == domain.Long {
		color = colors.BullishColor
	}
	tag := fmt.Sprintf("%s_%s_%d", sig.Type, sig.Direction, sig.Bar)

	switch sig.Type {
	case domain.SignalBOS:
		return []domain.DrawCommand{
			{Action: domain.DrawAdd, Kind: domain.DrawLine, Tag: tag, Bar: sig.Bar,
				StartTime: sig.ReferenceTime, EndTime: sig.Time,
				StartPrice: sig.ReferencePrice, EndPrice: sig.ReferencePrice,
				Color: color, Style: "solid", Width: 2},
			{Action: domain.DrawAdd, Kind: domain.DrawText, Tag: tag + "_label", Bar: sig.Bar,
				StartTime: sig.Time, StartPrice: sig.ReferencePrice, Color: color, Text: "BOS"},
		}
	case domain.SignalFVG, domain.SignalIFVG:
		return []domain.DrawCommand{
			{Action: domain.DrawAdd, Kind: domain.DrawRectangle, Tag: tag, Bar: sig.Bar,
				StartTime: sig.ReferenceTime, EndTime: sig.Time,
				StartPrice: sig.GapTop, EndPrice: sig.GapBottom,
				Color: color, Opacity: colors.Opacity},
		}
	case domain.SignalLTFSweep, domain.SignalHTFSweep:
		kind, text := domain.DrawArrowUp, "Sweep Low"
		if sig.Direction == domain.Short {
			kind, text = domain.DrawArrowDown, "Sweep High"
		}
		if sig.HigherTimeframe {
			text = "HTF " + text
		}
		return []domain.DrawCommand{
			{Action: domain.DrawAdd, Kind: kind, Tag: tag, Bar: sig.Bar,
				StartTime: sig.Time, StartPrice: sig.ReferencePrice, Color: color},
			{Action: domain.DrawAdd, Kind: domain.DrawText, Tag: tag + "_label", Bar: sig.Bar,
				StartTime: sig.Time, StartPrice: sig.ReferencePrice, Color: color, Text: text},
		}
	}
	return nil
}
