package indicators

import (
	"errors"
	"testing"
	"time"

	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
)

var baseTime = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

// ohlc builds the i-th one-minute bar.
func ohlc(i int, o, h, l, c float64) domain.Bar {
	open := baseTime.Add(time.Duration(i) * time.Minute)
	return domain.Bar{
		Symbol:    "TEST",
		OpenTime:  open,
		CloseTime: open.Add(time.Minute - time.Millisecond),
		Open:      o,
		High:      h,
		Low:       l,
		Close:     c,
		IsFinal:   true,
	}
}

// seriesOf appends bars given as {open, high, low, close}.
func seriesOf(t *testing.T, capacity int, bars ...[4]float64) *Series {
	t.Helper()
	s := NewSeries(domain.SeriesPrimary, "TEST", capacity)
	for i, b := range bars {
		if _, err := s.Append(ohlc(i, b[0], b[1], b[2], b[3])); err != nil {
			t.Fatalf("append bar %d: %v", i, err)
		}
	}
	return s
}

// highsOnly builds bars whose high is given and low is one below.
func highsOnly(highs ...float64) [][4]float64 {
	out := make([][4]float64, len(highs))
	for i, h := range highs {
		out[i] = [4]float64{h - 0.5, h, h - 1, h - 0.5}
	}
	return out
}

func TestSeries_AppendAssignsIndex(t *testing.T) {
	s := seriesOf(t, 0, highsOnly(10, 11, 12)...)

	if got := s.CurrentBar(); got != 2 {
		t.Errorf("CurrentBar() = %d, want 2", got)
	}
	if got := s.Last().Index; got != 2 {
		t.Errorf("Last().Index = %d, want 2", got)
	}
	if got := s.Last().Series; got != domain.SeriesPrimary {
		t.Errorf("Last().Series = %s, want primary", got)
	}
	if got := s.High(2); got != 10 {
		t.Errorf("High(2) = %v, want 10", got)
	}
}

func TestSeries_RejectsOutOfOrder(t *testing.T) {
	s := seriesOf(t, 0, highsOnly(10, 11)...)

	_, err := s.Append(ohlc(1, 1, 1, 1, 1))
	if !errors.Is(err, ports.ErrOutOfOrderBar) {
		t.Fatalf("Append duplicate time error = %v, want ErrOutOfOrderBar", err)
	}
	_, err = s.Append(ohlc(0, 1, 1, 1, 1))
	if !errors.Is(err, ports.ErrOutOfOrderBar) {
		t.Fatalf("Append older time error = %v, want ErrOutOfOrderBar", err)
	}
	if s.Count() != 2 {
		t.Errorf("Count() = %d after rejected appends, want 2", s.Count())
	}
}

func TestSeries_Extremes(t *testing.T) {
	s := seriesOf(t, 0,
		[4]float64{10, 12, 9, 11},
		[4]float64{11, 15, 10, 14},
		[4]float64{14, 14, 7, 8},
		[4]float64{8, 9, 8, 9},
	)

	tests := []struct {
		name     string
		from, to int
		wantHigh float64
		wantLow  float64
	}{
		{"current only", 0, 0, 9, 8},
		{"whole range", 3, 0, 15, 7},
		{"reversed bounds", 0, 3, 15, 7},
		{"clamped past history", 10, 1, 15, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.HighestHigh(tt.from, tt.to); got != tt.wantHigh {
				t.Errorf("HighestHigh(%d,%d) = %v, want %v", tt.from, tt.to, got, tt.wantHigh)
			}
			if got := s.LowestLow(tt.from, tt.to); got != tt.wantLow {
				t.Errorf("LowestLow(%d,%d) = %v, want %v", tt.from, tt.to, got, tt.wantLow)
			}
		})
	}
}

func TestSeries_CapacityTrim(t *testing.T) {
	s := NewSeries(domain.SeriesPrimary, "TEST", 4)
	for i := 0; i < 20; i++ {
		if _, err := s.Append(ohlc(i, 1, float64(i), 0, 1)); err != nil {
			t.Fatal(err)
		}
	}
	if s.Count() != 20 {
		t.Errorf("Count() = %d, want 20", s.Count())
	}
	if s.Retained() < 4 || s.Retained() > 8 {
		t.Errorf("Retained() = %d, want between 4 and 8", s.Retained())
	}
	if got := s.High(0); got != 19 {
		t.Errorf("High(0) = %v, want 19", got)
	}
	if got := s.Ago(100).Index; got != 20-s.Retained() {
		t.Errorf("Ago(100).Index = %d, want oldest retained %d", got, 20-s.Retained())
	}
	highs := s.Highs(3)
	if len(highs) != 3 || highs[0] != 17 || highs[2] != 19 {
		t.Errorf("Highs(3) = %v, want [17 18 19]", highs)
	}
}
