package detectors

import (
	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/strategy/indicators"
)

// BOS emits a break-of-structure signal when the close crosses a recent
// confirmed swing. Breaking a swing high is long, a swing low short.
type BOS struct {
	params config.BOSParams
	highs  []*domain.SwingPoint
	lows   []*domain.SwingPoint
}

// NewBOS creates the detector.
func NewBOS(params config.BOSParams) *BOS {
	return &BOS{params: params}
}

func (d *BOS) Name() string { return "bos" }

// OnPrimary runs pivot detection, expiry and break checks on the latest bar.
func (d *BOS) OnPrimary(c *Context, out *Output) {
	d.detect(c.Primary)
	d.expire(c.Primary.CurrentBar())
	d.breaks(c, out)
}

func (d *BOS) detect(s *indicators.Series) {
	left, right := d.params.PivotLeftBars, d.params.PivotRightBars
	if s.CurrentBar() < left+right {
		return
	}
	pivot := s.Ago(right)
	if indicators.IsPivotHigh(s, left, right) && !containsSwing(d.highs, pivot.Index) {
		d.highs = append(d.highs, &domain.SwingPoint{Price: pivot.High, Bar: pivot.Index, Time: pivot.CloseTime})
	}
	if indicators.IsPivotLow(s, left, right) && !containsSwing(d.lows, pivot.Index) {
		d.lows = append(d.lows, &domain.SwingPoint{Price: pivot.Low, Bar: pivot.Index, Time: pivot.CloseTime})
	}
}

func (d *BOS) expire(current int) {
	keep := func(sp *domain.SwingPoint) bool {
		return sp.Broken || current-sp.Bar <= d.params.MaxBarsToBreak
	}
	d.highs = filterSwings(d.highs, keep)
	d.lows = filterSwings(d.lows, keep)
}

func (d *BOS) breaks(c *Context, out *Output) {
	s := c.Primary
	closePrice := s.Close(0)

	for _, sp := range d.highs {
		if sp.Broken || closePrice <= sp.Price {
			continue
		}
		sp.Broken = true
		sig := newSignal(c, domain.SignalBOS, domain.Long, d.params.SignalToggles, d.params.StopParams)
		sig.StopLoss = s.LowestLow(0, s.BarsAgo(sp.Bar))
		d.reference(sig, sp)
		out.Emit(sig)
	}
	for _, sp := range d.lows {
		if sp.Broken || closePrice >= sp.Price {
			continue
		}
		sp.Broken = true
		sig := newSignal(c, domain.SignalBOS, domain.Short, d.params.SignalToggles, d.params.StopParams)
		sig.StopLoss = s.HighestHigh(0, s.BarsAgo(sp.Bar))
		d.reference(sig, sp)
		out.Emit(sig)
	}

	unbroken := func(sp *domain.SwingPoint) bool { return !sp.Broken }
	d.highs = filterSwings(d.highs, unbroken)
	d.lows = filterSwings(d.lows, unbroken)
}

func (d *BOS) reference(sig *domain.Signal, sp *domain.SwingPoint) {
	sig.ReferencePrice = sp.Price
	sig.ReferenceBar = sp.Bar
	sig.ReferenceTime = sp.Time
}

// Swings returns the live swing highs and lows.
func (d *BOS) Swings() (highs, lows []domain.SwingPoint) {
	for _, sp := range d.highs {
		highs = append(highs, *sp)
	}
	for _, sp := range d.lows {
		lows = append(lows, *sp)
	}
	return highs, lows
}

func containsSwing(list []*domain.SwingPoint, bar int) bool {
	for _, sp := range list {
		if sp.Bar == bar {
			return true
		}
	}
	return false
}

func filterSwings(list []*domain.SwingPoint, keep func(*domain.SwingPoint) bool) []*domain.SwingPoint {
	out := list[:0]
	for _, sp := range list {
		if keep(sp) {
			out = append(out, sp)
		}
	}
	return out
}
