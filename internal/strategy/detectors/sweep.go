package detectors

import (
	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/strategy/indicators"
)

const (
	// SweepSwingLength is the pivot strength for sweep levels and stops.
	SweepSwingLength = 5
	sweepPurgeBars   = 2000
	maxSweepPivots   = 500
)

// pivotBook holds the watched pivots of one timeframe, newest first.
type pivotBook struct {
	higher bool
	highs  []*domain.PivotLevel
	lows   []*domain.PivotLevel
}

func (b *pivotBook) update(s *indicators.Series) {
	if s.CurrentBar() < SweepSwingLength*2+1 {
		return
	}
	pivot := s.Ago(SweepSwingLength)
	if indicators.IsPivotHigh(s, SweepSwingLength, SweepSwingLength) && !containsPivot(b.highs, pivot.Index) {
		b.highs = prependPivot(b.highs, &domain.PivotLevel{Price: pivot.High, Bar: pivot.Index, Time: pivot.CloseTime, High: true, HigherTimeframe: b.higher})
	}
	if indicators.IsPivotLow(s, SweepSwingLength, SweepSwingLength) && !containsPivot(b.lows, pivot.Index) {
		b.lows = prependPivot(b.lows, &domain.PivotLevel{Price: pivot.Low, Bar: pivot.Index, Time: pivot.CloseTime, HigherTimeframe: b.higher})
	}
}

func containsPivot(list []*domain.PivotLevel, bar int) bool {
	for _, p := range list {
		if p.Bar == bar {
			return true
		}
	}
	return false
}

func prependPivot(list []*domain.PivotLevel, p *domain.PivotLevel) []*domain.PivotLevel {
	list = append([]*domain.PivotLevel{p}, list...)
	if len(list) > maxSweepPivots {
		list = list[:maxSweepPivots]
	}
	return list
}

// Sweep emits liquidity-sweep signals: a bar wicks through a pivot and closes
// back on the other side. Chart-timeframe pivots come from the primary series,
// higher-timeframe pivots from the higher series; both are tested against
// every primary bar.
type Sweep struct {
	params  config.SweepParams
	ltfOn   bool
	htfOn   bool
	ltf     pivotBook
	htf     pivotBook
	swings  *indicators.SwingTracker
	tracked int
}

// NewSweep creates the detector.
func NewSweep(params config.SweepParams) *Sweep {
	return &Sweep{
		params:  params,
		ltfOn:   params.LTF().Active(),
		htfOn:   params.HTF().Active(),
		htf:     pivotBook{higher: true},
		swings:  indicators.NewSwingTracker(SweepSwingLength),
		tracked: -1,
	}
}

func (d *Sweep) Name() string { return "sweep" }

// OnHigher records higher-timeframe pivots.
func (d *Sweep) OnHigher(c *Context, _ *Output) {
	if d.htfOn && c.Higher != nil {
		d.htf.update(c.Higher)
	}
}

// TrackPrimary updates the swing used for sweep stops. Each bar is consumed
// once.
func (d *Sweep) TrackPrimary(c *Context) {
	if idx := c.Primary.CurrentBar(); idx != d.tracked {
		d.tracked = idx
		d.swings.Update(c.Primary)
	}
}

// Swing returns the tracked stop swing.
func (d *Sweep) Swing() *indicators.SwingTracker { return d.swings }

// OnPrimary records chart pivots and tests the bar against both books.
func (d *Sweep) OnPrimary(c *Context, out *Output) {
	s := c.Primary
	d.TrackPrimary(c)
	if s.CurrentBar() < SweepSwingLength*2+1 {
		return
	}
	if d.ltfOn {
		d.ltf.update(s)
		d.process(c, &d.ltf, s.CurrentBar(), domain.SignalLTFSweep, d.params.LTF(), out)
	}
	if d.htfOn && c.Higher != nil {
		d.process(c, &d.htf, c.Higher.CurrentBar(), domain.SignalHTFSweep, d.params.HTF(), out)
	}
}

// Pivots returns the watched pivots of one timeframe.
func (d *Sweep) Pivots(higher bool) (highs, lows []domain.PivotLevel) {
	book := &d.ltf
	if higher {
		book = &d.htf
	}
	for _, p := range book.highs {
		highs = append(highs, *p)
	}
	for _, p := range book.lows {
		lows = append(lows, *p)
	}
	return highs, lows
}

func (d *Sweep) process(c *Context, book *pivotBook, bookBar int, typ domain.SignalType, t config.SignalToggles, out *Output) {
	bar := c.Primary.Last()
	book.highs = d.scan(book.highs, bookBar, func(p *domain.PivotLevel) {
		if !p.Wick && bar.High > p.Price && bar.Close < p.Price {
			p.Wick, p.SignalEmitted = true, true
			stop, ok := d.swings.LastHigh()
			if !ok {
				stop = p.Price
			}
			out.Emit(d.signal(c, typ, domain.Short, t, stop, p))
		}
		if bar.Close > p.Price && !p.Wick {
			p.Mitigated = true
		}
	})
	book.lows = d.scan(book.lows, bookBar, func(p *domain.PivotLevel) {
		if !p.Wick && bar.Low < p.Price && bar.Close > p.Price {
			p.Wick, p.SignalEmitted = true, true
			stop, ok := d.swings.LastLow()
			if !ok {
				stop = p.Price
			}
			out.Emit(d.signal(c, typ, domain.Long, t, stop, p))
		}
		if bar.Close < p.Price && !p.Wick {
			p.Mitigated = true
		}
	})
}

// scan visits pivots oldest first, dropping finished ones once they are old.
func (d *Sweep) scan(list []*domain.PivotLevel, bookBar int, check func(*domain.PivotLevel)) []*domain.PivotLevel {
	purged := make(map[*domain.PivotLevel]bool)
	for i := len(list) - 1; i >= 0; i-- {
		p := list[i]
		if p.SignalEmitted || p.Mitigated {
			if bookBar-p.Bar > sweepPurgeBars {
				purged[p] = true
			}
			continue
		}
		check(p)
	}
	if len(purged) == 0 {
		return list
	}
	kept := list[:0]
	for _, p := range list {
		if !purged[p] {
			kept = append(kept, p)
		}
	}
	return kept
}

func (d *Sweep) signal(c *Context, typ domain.SignalType, dir domain.Direction, t config.SignalToggles, stop float64, p *domain.PivotLevel) *domain.Signal {
	sig := newSignal(c, typ, dir, t, d.params.StopParams)
	sig.StopLoss = stop
	sig.ReferencePrice = p.Price
	sig.ReferenceBar = p.Bar
	sig.ReferenceTime = p.Time
	sig.HigherTimeframe = p.HigherTimeframe
	return sig
}
