package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"confluenceBot/internal/ports"
)

var validate = validator.New()

// SignalToggles route a detector's signals into standalone entries, combined
// entries or chart display.
type SignalToggles struct {
	Entry          bool `yaml:"entry"`
	Combined       bool `yaml:"combined"`
	DisplayOnly    bool `yaml:"display_only"`
	OrderPosition  int  `yaml:"order_position" validate:"min=0,max=10"` // 0 = any
	MaxBarsBetween int  `yaml:"max_bars_between" default:"10" validate:"min=1,max=500"`
	EntryPlusTicks int  `yaml:"entry_plus_ticks" validate:"min=0,max=1000"`
}

// Active reports whether the detector has to run at all.
func (t SignalToggles) Active() bool {
	return t.Entry || t.Combined || t.DisplayOnly
}

// Standalone reports whether signals trade on their own.
func (t SignalToggles) Standalone() bool {
	return t.Entry && !t.Combined
}

// StopParams control how a detector's structural stop feeds the executor.
type StopParams struct {
	UseStopLossRR     bool `yaml:"use_stop_loss_rr" default:"true"`
	StopLossPlusTicks int  `yaml:"stop_loss_plus_ticks" default:"2" validate:"min=0,max=1000"`
}

type GeneralParams struct {
	TickSize            float64 `yaml:"tick_size" default:"0.25" validate:"gt=0"`
	AllowMultipleTrades bool    `yaml:"allow_multiple_trades"`
	BarsRequiredToTrade int     `yaml:"bars_required_to_trade" default:"20" validate:"min=0,max=5000"`
	MaxLookback         int     `yaml:"max_lookback" default:"2048" validate:"min=256,max=100000"`
}

type SessionParams struct {
	Enabled     bool   `yaml:"enabled"`
	Location    string `yaml:"location" default:"America/New_York"`
	StartHour   int    `yaml:"start_hour" default:"9" validate:"min=0,max=23"`
	StartMinute int    `yaml:"start_minute" default:"30" validate:"min=0,max=59"`
	EndHour     int    `yaml:"end_hour" default:"16" validate:"min=0,max=23"`
	EndMinute   int    `yaml:"end_minute" validate:"min=0,max=59"`
}

type BOSParams struct {
	SignalToggles  `yaml:",inline"`
	StopParams     `yaml:",inline"`
	PivotLeftBars  int `yaml:"pivot_left_bars" default:"5" validate:"min=1,max=50"`
	PivotRightBars int `yaml:"pivot_right_bars" default:"5" validate:"min=1,max=50"`
	MaxBarsToBreak int `yaml:"max_bars_to_break" default:"30" validate:"min=1,max=500"`
}

type CISDParams struct {
	SignalToggles `yaml:",inline"`
	StopParams    `yaml:",inline"`
}

type FVGParams struct {
	SignalToggles      `yaml:",inline"`
	StopParams         `yaml:",inline"`
	MaxBarsToRetest    int `yaml:"max_bars_to_retest" default:"20" validate:"min=1,max=500"`
	MaxBarsAfterRetest int `yaml:"max_bars_after_retest" default:"10" validate:"min=1,max=500"`
}

type IFVGParams struct {
	SignalToggles     `yaml:",inline"`
	UseStopLossRR     bool `yaml:"use_stop_loss_rr"`
	StopLossPlusTicks int  `yaml:"stop_loss_plus_ticks" default:"5" validate:"min=0,max=1000"`
	MaxPendingBars    int  `yaml:"max_pending_bars" default:"100" validate:"min=1,max=5000"`
}

// Stop returns the IFVG stop settings.
func (p IFVGParams) Stop() StopParams {
	return StopParams{UseStopLossRR: p.UseStopLossRR, StopLossPlusTicks: p.StopLossPlusTicks}
}

type SweepParams struct {
	LTFEntry       bool `yaml:"ltf_entry"`
	LTFCombined    bool `yaml:"ltf_combined"`
	HTFEntry       bool `yaml:"htf_entry"`
	HTFCombined    bool `yaml:"htf_combined"`
	DisplayOnly    bool `yaml:"display_only"`
	OrderPosition  int  `yaml:"order_position" validate:"min=0,max=10"`
	MaxBarsBetween int  `yaml:"max_bars_between" default:"10" validate:"min=1,max=500"`
	EntryPlusTicks int  `yaml:"entry_plus_ticks" validate:"min=0,max=1000"`
	StopParams     `yaml:",inline"`
}

// LTF returns the chart-timeframe sweep routing.
func (p SweepParams) LTF() SignalToggles {
	return SignalToggles{Entry: p.LTFEntry, Combined: p.LTFCombined, DisplayOnly: p.DisplayOnly,
		OrderPosition: p.OrderPosition, MaxBarsBetween: p.MaxBarsBetween, EntryPlusTicks: p.EntryPlusTicks}
}

// HTF returns the higher-timeframe sweep routing.
func (p SweepParams) HTF() SignalToggles {
	return SignalToggles{Entry: p.HTFEntry, Combined: p.HTFCombined, DisplayOnly: p.DisplayOnly,
		OrderPosition: p.OrderPosition, MaxBarsBetween: p.MaxBarsBetween, EntryPlusTicks: p.EntryPlusTicks}
}

type HeikenAshiModeParams struct {
	Entry       bool `yaml:"entry"`
	Combined    bool `yaml:"combined"`
	DisplayOnly bool `yaml:"display_only"`
}

type HeikenAshiParams struct {
	LTF             HeikenAshiModeParams `yaml:"ltf"`
	HTF             HeikenAshiModeParams `yaml:"htf"`
	OrderPosition   int                  `yaml:"order_position" validate:"min=0,max=10"`
	MaxBarsBetween  int                  `yaml:"max_bars_between" default:"10" validate:"min=1,max=500"`
	EntryPlusTicks  int                  `yaml:"entry_plus_ticks" validate:"min=0,max=1000"`
	SmoothingPeriod int                  `yaml:"smoothing_period" default:"1" validate:"min=1,max=200"`
}

func (p HeikenAshiParams) toggles(m HeikenAshiModeParams) SignalToggles {
	return SignalToggles{Entry: m.Entry, Combined: m.Combined, DisplayOnly: m.DisplayOnly,
		OrderPosition: p.OrderPosition, MaxBarsBetween: p.MaxBarsBetween, EntryPlusTicks: p.EntryPlusTicks}
}

// LTFToggles returns the chart-timeframe routing.
func (p HeikenAshiParams) LTFToggles() SignalToggles { return p.toggles(p.LTF) }

// HTFToggles returns the higher-timeframe routing.
func (p HeikenAshiParams) HTFToggles() SignalToggles { return p.toggles(p.HTF) }

type SMTParams struct {
	SignalToggles             `yaml:",inline"`
	StopParams                `yaml:",inline"`
	PivotLookback             int  `yaml:"pivot_lookback" default:"3" validate:"min=1,max=50"`
	CandleDirectionValidation bool `yaml:"candle_direction_validation"`
	RemoveBrokenSMTs          bool `yaml:"remove_broken"`
	LongSignalBars            int  `yaml:"long_signal_bars" default:"10" validate:"min=1,max=500"`
	ShortSignalBars           int  `yaml:"short_signal_bars" default:"10" validate:"min=1,max=500"`
}

type PremiumDiscountParams struct {
	Enabled     bool    `yaml:"enabled"`
	SwingLength int     `yaml:"swing_length" default:"20" validate:"min=1,max=500"`
	ZonePercent float64 `yaml:"zone_percent" default:"0.05" validate:"gt=0,lte=0.5"`
}

// LegParams configure one of the four entry legs.
type LegParams struct {
	Quantity          float64 `yaml:"quantity" validate:"min=0"`
	RR1               bool    `yaml:"rr_1_1"`
	RR1_5             bool    `yaml:"rr_1_1_5"`
	RR2               bool    `yaml:"rr_1_2"`
	RR2_5             bool    `yaml:"rr_1_2_5"`
	RR3               bool    `yaml:"rr_1_3"`
	RR3_5             bool    `yaml:"rr_1_3_5"`
	RR4               bool    `yaml:"rr_1_4"`
	UseCustomStop     bool    `yaml:"use_custom_stop"`
	CustomStopTicks   int     `yaml:"custom_stop_ticks" default:"25" validate:"min=1,max=100000"`
	UseCustomTarget   bool    `yaml:"use_custom_target"`
	CustomTargetTicks int     `yaml:"custom_target_ticks" default:"50" validate:"min=1,max=100000"`
}

// RRMultiple returns the first enabled reward multiple, in ascending order.
func (l LegParams) RRMultiple() (float64, bool) {
	presets := []struct {
		on bool
		r  float64
	}{{l.RR1, 1}, {l.RR1_5, 1.5}, {l.RR2, 2}, {l.RR2_5, 2.5}, {l.RR3, 3}, {l.RR3_5, 3.5}, {l.RR4, 4}}
	for _, p := range presets {
		if p.on {
			return p.r, true
		}
	}
	return 0, false
}

type DrawParams struct {
	BullishColor string `yaml:"bullish_color" default:"#26a69a"`
	BearishColor string `yaml:"bearish_color" default:"#ef5350"`
	NeutralColor string `yaml:"neutral_color" default:"#9e9e9e"`
	Opacity      int    `yaml:"opacity" default:"30" validate:"min=0,max=100"`
}

// Params is the full strategy parameter set.
type Params struct {
	General         GeneralParams         `yaml:"general"`
	Session         SessionParams         `yaml:"session"`
	BOS             BOSParams             `yaml:"bos"`
	CISD            CISDParams            `yaml:"cisd"`
	FVG             FVGParams             `yaml:"fvg"`
	IFVG            IFVGParams            `yaml:"ifvg"`
	Sweep           SweepParams           `yaml:"sweep"`
	HeikenAshi      HeikenAshiParams      `yaml:"heiken_ashi"`
	SMT             SMTParams             `yaml:"smt"`
	PremiumDiscount PremiumDiscountParams `yaml:"premium_discount"`
	Leg1            LegParams             `yaml:"leg1"`
	Leg2            LegParams             `yaml:"leg2"`
	Leg3            LegParams             `yaml:"leg3"`
	Leg4            LegParams             `yaml:"leg4"`
	Draw            DrawParams            `yaml:"draw"`
}

// Legs returns the four leg configurations in order.
func (p *Params) Legs() [4]LegParams {
	return [4]LegParams{p.Leg1, p.Leg2, p.Leg3, p.Leg4}
}

// DefaultParams returns the built-in parameter set: one leg of quantity 1
// with a 1:2 target and every detector switched off.
func DefaultParams() (*Params, error) {
	p := &Params{}
	if err := defaults.Set(p); err != nil {
		return nil, fmt.Errorf("failed to apply parameter defaults: %w", err)
	}
	p.Leg1.Quantity = 1
	p.Leg1.RR2 = true
	return p, nil
}

// Adjustment records a parameter that was clamped into range.
type Adjustment struct {
	Field string
	From  interface{}
	To    interface{}
}

func (a Adjustment) String() string {
	return fmt.Sprintf("%s: %v -> %v", a.Field, a.From, a.To)
}

// LoadParams reads a YAML parameter file on top of the defaults, clamps
// out-of-range values and validates the result. Clamping is reported, not
// fatal; unreadable or malformed files are.
func LoadParams(path string) (*Params, []Adjustment, error) {
	p, err := DefaultParams()
	if err != nil {
		return nil, nil, err
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read strategy params %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, p); err != nil {
			return nil, nil, fmt.Errorf("%w: failed to parse strategy params %s: %v", ports.ErrConfigurationError, path, err)
		}
	}
	adjustments := p.Normalize()
	if err := p.Validate(); err != nil {
		return nil, adjustments, err
	}
	return p, adjustments, nil
}

// Validate checks the parameter set against its field rules.
func (p *Params) Validate() error {
	err := validate.Struct(p)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		msgs := make([]string, 0, len(validationErrors))
		for _, e := range validationErrors {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", e.Namespace(), e.Tag(), e.Param(), e.Value()))
		}
		return fmt.Errorf("%w: %s", ports.ErrConfigurationError, strings.Join(msgs, "; "))
	}
	return fmt.Errorf("%w: %v", ports.ErrConfigurationError, err)
}

type clamper struct {
	adjustments []Adjustment
}

func (c *clamper) int(field string, v *int, lo, hi int) {
	orig := *v
	if *v < lo {
		*v = lo
	} else if *v > hi {
		*v = hi
	}
	if *v != orig {
		c.adjustments = append(c.adjustments, Adjustment{Field: field, From: orig, To: *v})
	}
}

func (c *clamper) float(field string, v *float64, lo, hi float64) {
	orig := *v
	if *v < lo {
		*v = lo
	} else if *v > hi {
		*v = hi
	}
	if *v != orig {
		c.adjustments = append(c.adjustments, Adjustment{Field: field, From: orig, To: *v})
	}
}

func (c *clamper) toggles(prefix string, t *SignalToggles) {
	c.int(prefix+".order_position", &t.OrderPosition, 0, 10)
	c.int(prefix+".max_bars_between", &t.MaxBarsBetween, 1, 500)
	c.int(prefix+".entry_plus_ticks", &t.EntryPlusTicks, 0, 1000)
}

func (c *clamper) stop(prefix string, s *StopParams) {
	c.int(prefix+".stop_loss_plus_ticks", &s.StopLossPlusTicks, 0, 1000)
}

// Normalize clamps every numeric parameter into its valid range and
// returns the list of changes.
func (p *Params) Normalize() []Adjustment {
	c := &clamper{}

	if p.General.TickSize <= 0 {
		c.adjustments = append(c.adjustments, Adjustment{Field: "general.tick_size", From: p.General.TickSize, To: 0.25})
		p.General.TickSize = 0.25
	}
	c.int("general.bars_required_to_trade", &p.General.BarsRequiredToTrade, 0, 5000)
	c.int("general.max_lookback", &p.General.MaxLookback, 256, 100000)

	c.int("session.start_hour", &p.Session.StartHour, 0, 23)
	c.int("session.start_minute", &p.Session.StartMinute, 0, 59)
	c.int("session.end_hour", &p.Session.EndHour, 0, 23)
	c.int("session.end_minute", &p.Session.EndMinute, 0, 59)
	if p.Session.Location == "" {
		p.Session.Location = "America/New_York"
	}

	c.toggles("bos", &p.BOS.SignalToggles)
	c.stop("bos", &p.BOS.StopParams)
	c.int("bos.pivot_left_bars", &p.BOS.PivotLeftBars, 1, 50)
	c.int("bos.pivot_right_bars", &p.BOS.PivotRightBars, 1, 50)
	c.int("bos.max_bars_to_break", &p.BOS.MaxBarsToBreak, 1, 500)

	c.toggles("cisd", &p.CISD.SignalToggles)
	c.stop("cisd", &p.CISD.StopParams)

	c.toggles("fvg", &p.FVG.SignalToggles)
	c.stop("fvg", &p.FVG.StopParams)
	c.int("fvg.max_bars_to_retest", &p.FVG.MaxBarsToRetest, 1, 500)
	c.int("fvg.max_bars_after_retest", &p.FVG.MaxBarsAfterRetest, 1, 500)

	c.toggles("ifvg", &p.IFVG.SignalToggles)
	c.int("ifvg.stop_loss_plus_ticks", &p.IFVG.StopLossPlusTicks, 0, 1000)
	c.int("ifvg.max_pending_bars", &p.IFVG.MaxPendingBars, 1, 5000)

	c.int("sweep.order_position", &p.Sweep.OrderPosition, 0, 10)
	c.int("sweep.max_bars_between", &p.Sweep.MaxBarsBetween, 1, 500)
	c.int("sweep.entry_plus_ticks", &p.Sweep.EntryPlusTicks, 0, 1000)
	c.stop("sweep", &p.Sweep.StopParams)

	c.int("heiken_ashi.order_position", &p.HeikenAshi.OrderPosition, 0, 10)
	c.int("heiken_ashi.max_bars_between", &p.HeikenAshi.MaxBarsBetween, 1, 500)
	c.int("heiken_ashi.entry_plus_ticks", &p.HeikenAshi.EntryPlusTicks, 0, 1000)
	c.int("heiken_ashi.smoothing_period", &p.HeikenAshi.SmoothingPeriod, 1, 200)

	c.toggles("smt", &p.SMT.SignalToggles)
	c.stop("smt", &p.SMT.StopParams)
	c.int("smt.pivot_lookback", &p.SMT.PivotLookback, 1, 50)
	c.int("smt.long_signal_bars", &p.SMT.LongSignalBars, 1, 500)
	c.int("smt.short_signal_bars", &p.SMT.ShortSignalBars, 1, 500)

	c.int("premium_discount.swing_length", &p.PremiumDiscount.SwingLength, 1, 500)
	c.float("premium_discount.zone_percent", &p.PremiumDiscount.ZonePercent, 0.001, 0.5)

	legs := []*LegParams{&p.Leg1, &p.Leg2, &p.Leg3, &p.Leg4}
	for i, l := range legs {
		prefix := fmt.Sprintf("leg%d", i+1)
		c.float(prefix+".quantity", &l.Quantity, 0, 1e9)
		c.int(prefix+".custom_stop_ticks", &l.CustomStopTicks, 1, 100000)
		c.int(prefix+".custom_target_ticks", &l.CustomTargetTicks, 1, 100000)
	}

	c.int("draw.opacity", &p.Draw.Opacity, 0, 100)

	return c.adjustments
}
