package detectors

import (
	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/strategy/indicators"
)

// detectGap looks for a three-candle imbalance between the bars one and
// three bars ago. A bullish gap has the newer low above the older high.
func detectGap(s *indicators.Series) (*domain.GapLevel, bool) {
	b3, b1 := s.Ago(3), s.Ago(1)
	gap := &domain.GapLevel{StartBar: s.CurrentBar() - 3, StartTime: b3.CloseTime}
	switch {
	case b1.Low > b3.High:
		gap.Direction = domain.Long
		gap.Top, gap.Bottom = b1.Low, b3.High
	case b1.High < b3.Low:
		gap.Direction = domain.Short
		gap.Top, gap.Bottom = b3.Low, b1.High
	default:
		return nil, false
	}
	return gap, true
}

func gapReference(sig *domain.Signal, g *domain.GapLevel) {
	sig.GapTop = g.Top
	sig.GapBottom = g.Bottom
	sig.ReferenceBar = g.StartBar
	sig.ReferenceTime = g.StartTime
	if g.Direction == domain.Long {
		sig.ReferencePrice = g.Top
	} else {
		sig.ReferencePrice = g.Bottom
	}
}

// FVG trades fair-value gaps that are retested and then left again by a
// strong close.
type FVG struct {
	params config.FVGParams
	gaps   []*domain.GapLevel
}

// NewFVG creates the detector.
func NewFVG(params config.FVGParams) *FVG {
	return &FVG{params: params}
}

func (d *FVG) Name() string { return "fvg" }

// OnPrimary detects new gaps, then advances retests and entries.
func (d *FVG) OnPrimary(c *Context, out *Output) {
	s := c.Primary
	if s.CurrentBar() < 3 {
		return
	}
	d.detect(s)
	d.retests(s)
	d.entries(c, out)
}

// Gaps returns the gaps still being tracked.
func (d *FVG) Gaps() []domain.GapLevel {
	out := make([]domain.GapLevel, 0, len(d.gaps))
	for _, g := range d.gaps {
		out = append(out, *g)
	}
	return out
}

func (d *FVG) detect(s *indicators.Series) {
	gap, ok := detectGap(s)
	if !ok {
		return
	}
	for _, g := range d.gaps {
		if g.StartTime.Equal(gap.StartTime) && g.Direction == gap.Direction {
			return
		}
	}
	d.gaps = append(d.gaps, gap)
}

func (d *FVG) retests(s *indicators.Series) {
	bar := s.Last()
	kept := d.gaps[:0]
	for _, g := range d.gaps {
		if g.Retested || g.SignalEmitted {
			kept = append(kept, g)
			continue
		}
		if bar.Index-g.StartBar > d.params.MaxBarsToRetest {
			continue
		}
		if g.Direction == domain.Long {
			if bar.Low <= g.Top && bar.Close > g.Bottom {
				g.Retested, g.RetestBar, g.RetestTime = true, bar.Index, bar.CloseTime
			} else if bar.Close < g.Bottom {
				continue
			}
		} else {
			if bar.High >= g.Bottom && bar.Close < g.Top {
				g.Retested, g.RetestBar, g.RetestTime = true, bar.Index, bar.CloseTime
			} else if bar.Close > g.Top {
				continue
			}
		}
		kept = append(kept, g)
	}
	d.gaps = kept
}

func (d *FVG) entries(c *Context, out *Output) {
	s := c.Primary
	bar, prev := s.Ago(0), s.Ago(1)
	kept := d.gaps[:0]
	for _, g := range d.gaps {
		if !g.Retested || g.SignalEmitted {
			kept = append(kept, g)
			continue
		}
		if bar.Index-g.RetestBar > d.params.MaxBarsAfterRetest {
			continue
		}
		if g.Direction == domain.Long {
			if bar.Close < g.Bottom {
				continue
			}
			if bar.IsGreen() && bar.Close > prev.High && bar.Close > g.Top {
				g.SignalEmitted = true
				out.Emit(d.signal(c, g, g.Bottom))
			}
		} else {
			if bar.Close > g.Top {
				continue
			}
			if bar.IsRed() && bar.Close < prev.Low && bar.Close < g.Bottom {
				g.SignalEmitted = true
				out.Emit(d.signal(c, g, g.Top))
			}
		}
		if !g.SignalEmitted {
			kept = append(kept, g)
		}
	}
	d.gaps = kept
}

func (d *FVG) signal(c *Context, g *domain.GapLevel, stop float64) *domain.Signal {
	sig := newSignal(c, domain.SignalFVG, g.Direction, d.params.SignalToggles, d.params.StopParams)
	sig.StopLoss = stop
	gapReference(sig, g)
	return sig
}
