package indicators

import (
	"time"

	"confluenceBot/internal/domain"
)

// SMTSwing is a pivot on one of the correlated series.
type SMTSwing struct {
	Price   float64
	Bar     int
	Time    time.Time
	High    bool
	Bearish bool // pivot candle closed below its open
}

// Divergence is a disagreement between the primary swing sequence and a
// comparison symbol.
type Divergence struct {
	High           bool // divergence between swing highs, bearish bias
	Symbol         string
	Previous       SMTSwing
	Current        SMTSwing
	OutermostPrice float64
	LineTag        string
}

// SMTConfig configures divergence detection.
type SMTConfig struct {
	PivotLookback             int
	CandleDirectionValidation bool
	RemoveBroken              bool
}

// SMT detects swing divergences between a primary series and up to two
// comparison series.
type SMT struct {
	cfg        SMTConfig
	highs      []SMTSwing
	lows       []SMTSwing
	compHighs  map[string][]SMTSwing
	compLows   map[string][]SMTSwing
	symbols    []string
	active     []*Divergence
	maxHistory int
}

// NewSMT creates the detector.
func NewSMT(cfg SMTConfig) *SMT {
	if cfg.PivotLookback < 1 {
		cfg.PivotLookback = 1
	}
	return &SMT{
		cfg:        cfg,
		compHighs:  make(map[string][]SMTSwing),
		compLows:   make(map[string][]SMTSwing),
		maxHistory: 500,
	}
}

func (m *SMT) swings(s *Series) (high, low *SMTSwing) {
	lb := m.cfg.PivotLookback
	if s.CurrentBar() < lb*2+1 {
		return nil, nil
	}
	pivot := s.Ago(lb)
	mk := func(price float64, isHigh bool) *SMTSwing {
		return &SMTSwing{Price: price, Bar: pivot.Index, Time: pivot.CloseTime, High: isHigh, Bearish: pivot.IsRed()}
	}
	if IsPivotHigh(s, lb, lb) {
		high = mk(pivot.High, true)
	}
	if IsPivotLow(s, lb, lb) {
		low = mk(pivot.Low, false)
	}
	return high, low
}

// UpdateComparison records swings of a comparison symbol.
func (m *SMT) UpdateComparison(symbol string, s *Series) {
	if _, ok := m.compHighs[symbol]; !ok {
		m.compHighs[symbol] = nil
		m.compLows[symbol] = nil
		m.symbols = append(m.symbols, symbol)
	}
	high, low := m.swings(s)
	if high != nil {
		m.compHighs[symbol] = trimSwings(append(m.compHighs[symbol], *high), m.maxHistory)
	}
	if low != nil {
		m.compLows[symbol] = trimSwings(append(m.compLows[symbol], *low), m.maxHistory)
	}
}

// UpdatePrimary processes the latest primary bar. It returns divergences that
// were broken by the close (when removal is enabled) and new divergences.
func (m *SMT) UpdatePrimary(s *Series) (broken []*Divergence, found []*Divergence) {
	if m.cfg.RemoveBroken {
		broken = m.removeBroken(s.Close(0))
	}

	high, low := m.swings(s)
	if high != nil {
		found = append(found, m.check(*high, m.highs, m.compHighs)...)
		m.highs = trimSwings(append(m.highs, *high), m.maxHistory)
	}
	if low != nil {
		found = append(found, m.check(*low, m.lows, m.compLows)...)
		m.lows = trimSwings(append(m.lows, *low), m.maxHistory)
	}
	if m.cfg.RemoveBroken {
		m.active = append(m.active, found...)
	}
	return broken, found
}

func (m *SMT) check(curr SMTSwing, primary []SMTSwing, comparison map[string][]SMTSwing) []*Divergence {
	if len(primary) == 0 {
		return nil
	}
	last := primary[len(primary)-1]

	var out []*Divergence
	for _, symbol := range m.symbols {
		swings := comparison[symbol]
		if len(swings) < 2 {
			continue
		}
		lastComp := closestSwing(last.Time, swings)
		currComp := closestSwing(curr.Time, swings)

		if (curr.Price-last.Price)*(currComp.Price-lastComp.Price) >= 0 {
			continue
		}
		if m.cfg.CandleDirectionValidation {
			if curr.High && (!curr.Bearish || !currComp.Bearish) {
				continue
			}
			if !curr.High && (curr.Bearish || currComp.Bearish) {
				continue
			}
		}

		d := &Divergence{High: curr.High, Symbol: symbol, Previous: last, Current: curr}
		if curr.High {
			d.OutermostPrice = max(last.Price, curr.Price)
		} else {
			d.OutermostPrice = min(last.Price, curr.Price)
		}
		out = append(out, d)
	}
	return out
}

func (m *SMT) removeBroken(closePrice float64) []*Divergence {
	var broken []*Divergence
	kept := m.active[:0]
	for _, d := range m.active {
		if (d.High && closePrice > d.OutermostPrice) || (!d.High && closePrice < d.OutermostPrice) {
			broken = append(broken, d)
			continue
		}
		kept = append(kept, d)
	}
	m.active = kept
	return broken
}

// Direction is the trade bias of a divergence: short for highs, long for lows.
func (d *Divergence) Direction() domain.Direction {
	if d.High {
		return domain.Short
	}
	return domain.Long
}

func closestSwing(target time.Time, swings []SMTSwing) SMTSwing {
	closest := swings[0]
	minDiff := absDuration(target.Sub(closest.Time))
	for _, s := range swings[1:] {
		if diff := absDuration(target.Sub(s.Time)); diff < minDiff {
			minDiff = diff
			closest = s
		}
	}
	return closest
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func trimSwings(s []SMTSwing, limit int) []SMTSwing {
	if len(s) > limit {
		return s[len(s)-limit:]
	}
	return s
}
