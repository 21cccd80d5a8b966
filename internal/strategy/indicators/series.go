package indicators

import (
	"fmt"
	"math"

	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
)

// DefaultCapacity is the number of bars a Series retains by default.
const DefaultCapacity = 2048

// Series is an append-only bar history addressed by bars-ago offsets, where 0
// is the most recent bar. Only the last capacity bars are retained; look-backs
// past the retained window are clamped to the oldest retained bar.
type Series struct {
	Kind     domain.SeriesKind
	Symbol   string
	capacity int
	bars     []domain.Bar
	total    int
}

// NewSeries creates an empty series.
func NewSeries(kind domain.SeriesKind, symbol string, capacity int) *Series {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Series{
		Kind:     kind,
		Symbol:   symbol,
		capacity: capacity,
		bars:     make([]domain.Bar, 0, capacity),
	}
}

// Append adds a closed bar, assigns its index and returns the stored copy.
func (s *Series) Append(b domain.Bar) (domain.Bar, error) {
	if n := len(s.bars); n > 0 {
		last := s.bars[n-1]
		if !b.CloseTime.After(last.CloseTime) {
			return domain.Bar{}, fmt.Errorf("%w: %s %s at %s (last %s)",
				ports.ErrOutOfOrderBar, s.Kind, s.Symbol, b.CloseTime, last.CloseTime)
		}
	}
	b.Series = s.Kind
	b.Index = s.total
	s.total++
	s.bars = append(s.bars, b)
	if len(s.bars) > 2*s.capacity {
		kept := make([]domain.Bar, s.capacity, 2*s.capacity)
		copy(kept, s.bars[len(s.bars)-s.capacity:])
		s.bars = kept
	}
	return b, nil
}

// CurrentBar returns the index of the most recent bar, -1 when empty.
func (s *Series) CurrentBar() int { return s.total - 1 }

// Count returns the number of bars ever appended.
func (s *Series) Count() int { return s.total }

// Retained returns the number of bars currently addressable.
func (s *Series) Retained() int { return len(s.bars) }

// Has reports whether the bar barsAgo back is retained.
func (s *Series) Has(barsAgo int) bool {
	return barsAgo >= 0 && barsAgo < len(s.bars)
}

// Ago returns the bar barsAgo back, clamped to the retained window.
func (s *Series) Ago(barsAgo int) domain.Bar {
	n := len(s.bars)
	if n == 0 {
		return domain.Bar{}
	}
	if barsAgo < 0 {
		barsAgo = 0
	}
	if barsAgo >= n {
		barsAgo = n - 1
	}
	return s.bars[n-1-barsAgo]
}

// Last returns the most recent bar.
func (s *Series) Last() domain.Bar { return s.Ago(0) }

func (s *Series) Open(barsAgo int) float64  { return s.Ago(barsAgo).Open }
func (s *Series) High(barsAgo int) float64  { return s.Ago(barsAgo).High }
func (s *Series) Low(barsAgo int) float64   { return s.Ago(barsAgo).Low }
func (s *Series) Close(barsAgo int) float64 { return s.Ago(barsAgo).Close }

// BarsAgo converts an absolute bar index into a bars-ago offset.
func (s *Series) BarsAgo(index int) int { return s.CurrentBar() - index }

// HighestHigh returns the highest high between two bars-ago offsets, inclusive.
func (s *Series) HighestHigh(fromAgo, toAgo int) float64 {
	lo, hi := s.clampRange(fromAgo, toAgo)
	out := math.Inf(-1)
	for i := lo; i <= hi; i++ {
		out = math.Max(out, s.High(i))
	}
	return out
}

// LowestLow returns the lowest low between two bars-ago offsets, inclusive.
func (s *Series) LowestLow(fromAgo, toAgo int) float64 {
	lo, hi := s.clampRange(fromAgo, toAgo)
	out := math.Inf(1)
	for i := lo; i <= hi; i++ {
		out = math.Min(out, s.Low(i))
	}
	return out
}

func (s *Series) clampRange(a, b int) (int, int) {
	if a > b {
		a, b = b, a
	}
	if a < 0 {
		a = 0
	}
	if last := len(s.bars) - 1; b > last {
		b = last
	}
	return a, b
}

// Highs returns the last n highs, oldest first.
func (s *Series) Highs(n int) []float64 {
	return s.values(n, func(b domain.Bar) float64 { return b.High })
}

// Lows returns the last n lows, oldest first.
func (s *Series) Lows(n int) []float64 {
	return s.values(n, func(b domain.Bar) float64 { return b.Low })
}

func (s *Series) values(n int, f func(domain.Bar) float64) []float64 {
	if n > len(s.bars) {
		n = len(s.bars)
	}
	out := make([]float64, n)
	for i, b := range s.bars[len(s.bars)-n:] {
		out[i] = f(b)
	}
	return out
}
