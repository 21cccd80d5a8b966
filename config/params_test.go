package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"confluenceBot/internal/ports"
)

func writeParams(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "params.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultParams(t *testing.T) {
	p, err := DefaultParams()
	require.NoError(t, err)

	assert.Equal(t, 20, p.General.BarsRequiredToTrade)
	assert.Equal(t, 5, p.BOS.PivotLeftBars)
	assert.Equal(t, 5, p.BOS.PivotRightBars)
	assert.Equal(t, 30, p.BOS.MaxBarsToBreak)
	assert.Equal(t, 10, p.BOS.MaxBarsBetween)
	assert.True(t, p.BOS.UseStopLossRR)
	assert.Equal(t, 2, p.BOS.StopLossPlusTicks)
	assert.Equal(t, 20, p.FVG.MaxBarsToRetest)
	assert.Equal(t, 10, p.FVG.MaxBarsAfterRetest)
	assert.False(t, p.IFVG.UseStopLossRR)
	assert.Equal(t, 5, p.IFVG.StopLossPlusTicks)
	assert.Equal(t, 3, p.SMT.PivotLookback)
	assert.Equal(t, 20, p.PremiumDiscount.SwingLength)
	assert.Equal(t, 9, p.Session.StartHour)
	assert.Equal(t, 30, p.Session.StartMinute)
	assert.Equal(t, 16, p.Session.EndHour)

	assert.Equal(t, 1.0, p.Leg1.Quantity)
	assert.Equal(t, 0.0, p.Leg2.Quantity)
	r, ok := p.Leg1.RRMultiple()
	assert.True(t, ok)
	assert.Equal(t, 2.0, r)
	_, ok = p.Leg2.RRMultiple()
	assert.False(t, ok)
	assert.Equal(t, 25, p.Leg3.CustomStopTicks)
	assert.Equal(t, 50, p.Leg4.CustomTargetTicks)

	assert.False(t, p.BOS.Active())
	assert.NoError(t, p.Validate())
}

func TestLoadParams_OverridesDefaults(t *testing.T) {
	path := writeParams(t, `
general:
  tick_size: 0.1
  allow_multiple_trades: true
bos:
  entry: true
  use_stop_loss_rr: false
  pivot_left_bars: 3
fvg:
  combined: true
  order_position: 2
leg1:
  quantity: 2
  rr_1_2: false
  rr_1_3: true
`)
	p, adj, err := LoadParams(path)
	require.NoError(t, err)
	assert.Empty(t, adj)

	assert.Equal(t, 0.1, p.General.TickSize)
	assert.True(t, p.General.AllowMultipleTrades)
	assert.True(t, p.BOS.Entry)
	assert.True(t, p.BOS.Standalone())
	assert.False(t, p.BOS.UseStopLossRR, "explicit false must survive defaults")
	assert.Equal(t, 3, p.BOS.PivotLeftBars)
	assert.Equal(t, 5, p.BOS.PivotRightBars)
	assert.True(t, p.FVG.Combined)
	assert.False(t, p.FVG.Standalone())
	assert.Equal(t, 2, p.FVG.OrderPosition)
	assert.Equal(t, 2.0, p.Leg1.Quantity)
	r, ok := p.Leg1.RRMultiple()
	assert.True(t, ok)
	assert.Equal(t, 3.0, r)
}

func TestLoadParams_ClampsOutOfRange(t *testing.T) {
	path := writeParams(t, `
bos:
  pivot_left_bars: 0
  max_bars_between: 9999
fvg:
  order_position: -4
leg2:
  quantity: -1
draw:
  opacity: 250
`)
	p, adj, err := LoadParams(path)
	require.NoError(t, err)

	assert.Equal(t, 1, p.BOS.PivotLeftBars)
	assert.Equal(t, 500, p.BOS.MaxBarsBetween)
	assert.Equal(t, 0, p.FVG.OrderPosition)
	assert.Equal(t, 0.0, p.Leg2.Quantity)
	assert.Equal(t, 100, p.Draw.Opacity)

	fields := make(map[string]bool)
	for _, a := range adj {
		fields[a.Field] = true
	}
	assert.True(t, fields["bos.pivot_left_bars"])
	assert.True(t, fields["bos.max_bars_between"])
	assert.True(t, fields["fvg.order_position"])
	assert.True(t, fields["leg2.quantity"])
	assert.True(t, fields["draw.opacity"])
}

func TestLoadParams_Errors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
		is   error
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") },
		},
		{
			name: "malformed yaml",
			path: func(t *testing.T) string { return writeParams(t, "bos: [unterminated") },
			is:   ports.ErrConfigurationError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := LoadParams(tt.path(t))
			require.Error(t, err)
			if tt.is != nil {
				assert.True(t, errors.Is(err, tt.is))
			}
		})
	}
}

func TestLoadParams_EmptyPathUsesDefaults(t *testing.T) {
	p, adj, err := LoadParams("")
	require.NoError(t, err)
	assert.Empty(t, adj)
	assert.Equal(t, 0.25, p.General.TickSize)
}

func TestSignalToggles(t *testing.T) {
	tests := []struct {
		name       string
		toggles    SignalToggles
		active     bool
		standalone bool
	}{
		{"all off", SignalToggles{}, false, false},
		{"entry only", SignalToggles{Entry: true}, true, true},
		{"entry and combined", SignalToggles{Entry: true, Combined: true}, true, false},
		{"combined only", SignalToggles{Combined: true}, true, false},
		{"display only", SignalToggles{DisplayOnly: true}, true, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.active, tt.toggles.Active())
			assert.Equal(t, tt.standalone, tt.toggles.Standalone())
		})
	}
}
