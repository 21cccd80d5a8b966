package detectors

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/strategy/indicators"
)

var t0 = time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)

func newContext(t *testing.T) *Context {
	t.Helper()
	p, err := config.DefaultParams()
	require.NoError(t, err)
	return &Context{
		Symbol:   "BTCUSDT",
		Primary:  indicators.NewSeries(domain.SeriesPrimary, "BTCUSDT", 0),
		Higher:   indicators.NewSeries(domain.SeriesHigher, "BTCUSDT", 0),
		TickSize: 0.25,
		Colors:   p.Draw,
	}
}

// push appends a five-minute bar {open, high, low, close} to the series.
func push(t *testing.T, s *indicators.Series, b [4]float64) {
	t.Helper()
	open := t0.Add(time.Duration(s.Count()) * 5 * time.Minute)
	_, err := s.Append(domain.Bar{
		Symbol:    s.Symbol,
		OpenTime:  open,
		CloseTime: open.Add(5*time.Minute - time.Millisecond),
		Open:      b[0],
		High:      b[1],
		Low:       b[2],
		Close:     b[3],
		IsFinal:   true,
	})
	require.NoError(t, err)
}

// run feeds primary bars through a detector and collects everything it
// produced.
func run(t *testing.T, c *Context, d Detector, bars ...[4]float64) *Output {
	t.Helper()
	all := &Output{}
	for _, b := range bars {
		push(t, c.Primary, b)
		d.OnPrimary(c, all)
	}
	return all
}

func draws(out *Output, kind domain.DrawKind) []domain.DrawCommand {
	var found []domain.DrawCommand
	for _, d := range out.Draws {
		if d.Kind == kind {
			found = append(found, d)
		}
	}
	return found
}

// mirror reflects bars around level/2 so a bullish pattern becomes its
// bearish twin.
func mirror(level float64, bars ...[4]float64) [][4]float64 {
	out := make([][4]float64, len(bars))
	for i, b := range bars {
		out[i] = [4]float64{level - b[0], level - b[2], level - b[1], level - b[3]}
	}
	return out
}
