package detectors

import (
	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/strategy/indicators"
)

const maxActiveInversions = 50

// IFVG trades inversion gaps: a fair-value gap that price closes through
// flips polarity and emits an entry in the new direction at once.
type IFVG struct {
	params  config.IFVGParams
	pending []*domain.GapLevel
	active  []*domain.GapLevel
}

// NewIFVG creates the detector.
func NewIFVG(params config.IFVGParams) *IFVG {
	return &IFVG{params: params}
}

func (d *IFVG) Name() string { return "ifvg" }

// OnPrimary records candidate gaps and checks pending ones for inversion.
func (d *IFVG) OnPrimary(c *Context, out *Output) {
	s := c.Primary
	if s.CurrentBar() < 4 {
		return
	}
	d.detect(s)
	d.mitigations(c, out)
}

// Pending returns the gaps waiting to be inverted.
func (d *IFVG) Pending() []domain.GapLevel {
	out := make([]domain.GapLevel, 0, len(d.pending))
	for _, g := range d.pending {
		out = append(out, *g)
	}
	return out
}

// Active returns the most recent inverted gaps.
func (d *IFVG) Active() []domain.GapLevel {
	out := make([]domain.GapLevel, 0, len(d.active))
	for _, g := range d.active {
		out = append(out, *g)
	}
	return out
}

func (d *IFVG) detect(s *indicators.Series) {
	gap, ok := detectGap(s)
	if !ok {
		return
	}
	// A bullish gap inverts into a short setup and vice versa.
	gap.Direction = gap.Direction.Opposite()
	for _, g := range d.pending {
		if g.StartTime.Equal(gap.StartTime) && g.Direction == gap.Direction {
			return
		}
	}
	d.pending = append(d.pending, gap)
}

func (d *IFVG) mitigations(c *Context, out *Output) {
	bar := c.Primary.Last()
	kept := d.pending[:0]
	for _, g := range d.pending {
		inverted := (g.Direction == domain.Long && bar.Close > g.Top) ||
			(g.Direction == domain.Short && bar.Close < g.Bottom)
		if !inverted {
			if bar.Index-g.StartBar <= d.params.MaxPendingBars {
				kept = append(kept, g)
			}
			continue
		}
		g.Mitigated, g.MitigationBar, g.MitigationTime = true, bar.Index, bar.CloseTime
		g.SignalEmitted = true
		d.active = append(d.active, g)

		sig := newSignal(c, domain.SignalIFVG, g.Direction, d.params.SignalToggles, d.params.Stop())
		if g.Direction == domain.Long {
			sig.StopLoss = g.Bottom
		} else {
			sig.StopLoss = g.Top
		}
		gapReference(sig, g)
		out.Emit(sig)
	}
	d.pending = kept
	if len(d.active) > maxActiveInversions {
		d.active = d.active[len(d.active)-maxActiveInversions:]
	}
}
