package detectors

import (
	"fmt"
	"math"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
)

// CISD tracks change-in-state-of-delivery levels. A structure break creates a
// level at the open of the pullback that preceded it; a later close through
// the level emits the signal. Only the latest level per direction is kept.
type CISD struct {
	params config.CISDParams

	structureHigh float64
	structureLow  float64

	detectingBearish bool // up-candle pullback, feeds bullish levels
	detectingBullish bool // down-candle pullback, feeds bearish levels
	candidateHigh    float64
	candidateLow     float64
	bullCandidateBar int
	bearCandidateBar int
	latest           map[domain.Direction]*domain.StructureLevel
}

// NewCISD creates the detector.
func NewCISD(params config.CISDParams) *CISD {
	return &CISD{
		params:           params,
		candidateHigh:    math.NaN(),
		candidateLow:     math.NaN(),
		bullCandidateBar: -1,
		bearCandidateBar: -1,
		latest:           make(map[domain.Direction]*domain.StructureLevel),
	}
}

func (d *CISD) Name() string { return "cisd" }

// OnPrimary updates the state machine, then checks the live levels for a
// close through them.
func (d *CISD) OnPrimary(c *Context, out *Output) {
	d.detect(c, out)
	if !d.params.DisplayOnly {
		d.crosses(c, out)
	}
}

// Level returns the latest level for a direction.
func (d *CISD) Level(dir domain.Direction) (domain.StructureLevel, bool) {
	l, ok := d.latest[dir]
	if !ok {
		return domain.StructureLevel{}, false
	}
	return *l, true
}

func (d *CISD) detect(c *Context, out *Output) {
	s := c.Primary
	cur := s.CurrentBar()
	if cur < 2 {
		return
	}
	prev := s.Ago(1)
	bar := s.Ago(0)

	if prev.IsGreen() && !d.detectingBearish {
		d.detectingBearish = true
		d.candidateHigh = prev.Open
		d.bullCandidateBar = cur - 1
	}
	if prev.IsRed() && !d.detectingBullish {
		d.detectingBullish = true
		d.candidateLow = prev.Open
		d.bearCandidateBar = cur - 1
	}

	if d.detectingBullish {
		if bar.Open < d.candidateLow {
			d.candidateLow, d.bearCandidateBar = bar.Open, cur
		}
		if bar.IsRed() && bar.Open > d.candidateLow {
			d.candidateLow, d.bearCandidateBar = bar.Open, cur
		}
	}
	if d.detectingBearish {
		if bar.Open > d.candidateHigh {
			d.candidateHigh, d.bullCandidateBar = bar.Open, cur
		}
		if bar.IsGreen() && bar.Open < d.candidateHigh {
			d.candidateHigh, d.bullCandidateBar = bar.Open, cur
		}
	}

	if bar.Low < d.structureLow {
		d.structureLow = bar.Low
		if d.detectingBearish && cur != d.bullCandidateBar {
			back := cur - d.bullCandidateBar
			d.structureHigh = pairExtreme(back, cur, math.Max, s.High)
			d.detectingBearish = false
			d.createLevel(c, domain.Long, d.candidateHigh, d.bullCandidateBar, out)
		} else if prev.IsGreen() && bar.IsRed() {
			d.structureHigh = prev.High
			d.detectingBearish = false
			d.createLevel(c, domain.Long, d.candidateHigh, d.bullCandidateBar, out)
		}
	}

	if bar.High > d.structureHigh {
		d.structureHigh = bar.High
		if d.detectingBullish && cur != d.bearCandidateBar {
			back := cur - d.bearCandidateBar
			d.structureLow = pairExtreme(back, cur, math.Min, s.Low)
			d.detectingBullish = false
			d.createLevel(c, domain.Short, d.candidateLow, d.bearCandidateBar, out)
		} else if prev.IsRed() && bar.IsGreen() {
			d.structureLow = prev.Low
			d.detectingBullish = false
			d.createLevel(c, domain.Short, d.candidateLow, d.bearCandidateBar, out)
		}
	}
}

// pairExtreme combines the candidate candle with the one before it, when
// that one exists.
func pairExtreme(back, cur int, pick func(a, b float64) float64, price func(int) float64) float64 {
	if back+1 < cur {
		return pick(price(back), price(back+1))
	}
	return price(back)
}

func (d *CISD) createLevel(c *Context, dir domain.Direction, price float64, startBar int, out *Output) {
	if math.IsNaN(price) {
		return
	}
	s := c.Primary
	bar := s.Last()
	level := &domain.StructureLevel{
		Price:       price,
		Direction:   dir,
		CreatedBar:  bar.Index,
		CreatedTime: bar.CloseTime,
		StartBar:    startBar,
		StartTime:   s.Ago(s.BarsAgo(startBar)).CloseTime,
	}
	level.DrawTag = fmt.Sprintf("CISD_Level_%s_%d", dir, bar.Index)

	if old, ok := d.latest[dir]; ok && old.DrawTag != "" {
		out.Draw(domain.RemoveCommand(old.DrawTag))
	}
	d.latest[dir] = level

	out.Draw(domain.DrawCommand{
		Action: domain.DrawAdd, Kind: domain.DrawLine, Tag: level.DrawTag, Bar: bar.Index,
		StartTime: level.StartTime, EndTime: level.CreatedTime,
		StartPrice: price, EndPrice: price,
		Color: c.color(dir), Style: "solid", Width: 2,
	})
}

func (d *CISD) crosses(c *Context, out *Output) {
	s := c.Primary
	closePrice := s.Close(0)

	if l, ok := d.latest[domain.Long]; ok && !l.Triggered && closePrice > l.Price {
		l.Triggered = true
		sig := newSignal(c, domain.SignalCISD, domain.Long, d.params.SignalToggles, d.params.StopParams)
		sig.StopLoss = s.LowestLow(0, s.BarsAgo(l.StartBar))
		levelReference(sig, l)
		out.Emit(sig)
	}
	if l, ok := d.latest[domain.Short]; ok && !l.Triggered && closePrice < l.Price {
		l.Triggered = true
		sig := newSignal(c, domain.SignalCISD, domain.Short, d.params.SignalToggles, d.params.StopParams)
		sig.StopLoss = s.HighestHigh(0, s.BarsAgo(l.StartBar))
		levelReference(sig, l)
		out.Emit(sig)
	}
}

func levelReference(sig *domain.Signal, l *domain.StructureLevel) {
	sig.ReferencePrice = l.Price
	sig.ReferenceBar = l.StartBar
	sig.ReferenceTime = l.StartTime
}
