package detectors

import (
	"fmt"

	"confluenceBot/config"
	"confluenceBot/internal/domain"
	"confluenceBot/internal/strategy/indicators"
)

// SMT emits divergence signals between the primary symbol and its
// comparison symbols. Divergent highs are short, divergent lows long.
type SMT struct {
	params config.SMTParams
	smt    *indicators.SMT
}

// NewSMT creates the detector.
func NewSMT(params config.SMTParams) *SMT {
	return &SMT{
		params: params,
		smt: indicators.NewSMT(indicators.SMTConfig{
			PivotLookback:             params.PivotLookback,
			CandleDirectionValidation: params.CandleDirectionValidation,
			RemoveBroken:              params.RemoveBrokenSMTs,
		}),
	}
}

func (d *SMT) Name() string { return "smt" }

// OnComparison records swings of a correlated symbol.
func (d *SMT) OnComparison(_ *Context, symbol string, s *indicators.Series, _ *Output) {
	d.smt.UpdateComparison(symbol, s)
}

// OnPrimary removes broken divergences and reports new ones.
func (d *SMT) OnPrimary(c *Context, out *Output) {
	broken, found := d.smt.UpdatePrimary(c.Primary)
	for _, div := range broken {
		if div.LineTag != "" {
			out.Draw(domain.RemoveCommand(div.LineTag))
		}
	}

	bar := c.Primary.Last()
	for _, div := range found {
		dir := div.Direction()
		div.LineTag = fmt.Sprintf("SMT_%s_%s_%d", dir, div.Symbol, div.Current.Bar)
		out.Draw(domain.DrawCommand{
			Action: domain.DrawAdd, Kind: domain.DrawLine, Tag: div.LineTag, Bar: bar.Index,
			StartTime: div.Previous.Time, EndTime: div.Current.Time,
			StartPrice: div.Previous.Price, EndPrice: div.Current.Price,
			Color: c.color(dir), Style: "solid", Width: 2,
		}, domain.DrawCommand{
			Action: domain.DrawAdd, Kind: domain.DrawText, Tag: div.LineTag + "_label", Bar: bar.Index,
			StartTime: div.Current.Time, StartPrice: div.Current.Price,
			Color: c.color(dir), Text: "SMT " + div.Symbol,
		})

		if !d.params.Entry && !d.params.Combined {
			continue
		}
		sig := newSignal(c, domain.SignalSMT, dir, d.params.SignalToggles, d.params.StopParams)
		sig.StopLoss = div.OutermostPrice
		sig.MaxBarsBetween = d.window(dir)
		sig.ReferencePrice = div.Current.Price
		sig.ReferenceBar = div.Current.Bar
		sig.ReferenceTime = div.Current.Time
		out.Emit(sig)
	}
}

// window maps the signal-bar count onto the registry expiry: a signal stays
// usable on its own bar and the following bars-1 bars.
func (d *SMT) window(dir domain.Direction) int {
	n := d.params.LongSignalBars
	if dir == domain.Short {
		n = d.params.ShortSignalBars
	}
	if n < 1 {
		return 0
	}
	return n - 1
}
