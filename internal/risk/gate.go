package risk

import (
	"context"
	"errors"
	"fmt"

	"confluenceBot/internal/domain"
	"confluenceBot/internal/ports"
	"confluenceBot/internal/strategy/indicators"
)

// ZoneSource supplies the current premium/discount zones.
type ZoneSource interface {
	Zones() (indicators.Zones, bool)
}

// GateConfig holds configuration for the entry gate
type GateConfig struct {
	Symbol              string
	AllowMultipleTrades bool
	Positions           ports.PositionReader
	Zones               ZoneSource // nil disables the zone filter
	Logger              ports.Logger
}

// EntryGate blocks entries while a position is open (unless multiple trades
// are allowed) and, when a zone source is set, keeps longs in the discount
// zone and shorts in the premium zone.
type EntryGate struct {
	config GateConfig
	stats  GateStats
}

// GateStats counts gate decisions.
type GateStats struct {
	Allowed         int
	BlockedPosition int
	BlockedZone     int
}

// NewEntryGate creates a new entry gate instance
func NewEntryGate(config GateConfig) (*EntryGate, error) {
	if config.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if config.Positions == nil && !config.AllowMultipleTrades {
		return nil, errors.New("position reader is required unless multiple trades are allowed")
	}
	return &EntryGate{config: config}, nil
}

// Allow returns nil when an entry in dir may be opened, or an error wrapping
// ports.ErrEntryBlocked.
func (g *EntryGate) Allow(ctx context.Context, dir domain.Direction) error {
	if !g.config.AllowMultipleTrades {
		open, err := g.config.Positions.HasOpenPosition(ctx, g.config.Symbol)
		if err != nil {
			return fmt.Errorf("failed to check open position for %s: %w", g.config.Symbol, err)
		}
		if open {
			g.stats.BlockedPosition++
			return fmt.Errorf("%w: position already open on %s", ports.ErrEntryBlocked, g.config.Symbol)
		}
	}

	if g.config.Zones != nil {
		if zones, ok := g.config.Zones.Zones(); ok {
			if dir == domain.Long && !zones.InDiscount {
				g.stats.BlockedZone++
				return fmt.Errorf("%w: long outside discount zone", ports.ErrEntryBlocked)
			}
			if dir == domain.Short && !zones.InPremium {
				g.stats.BlockedZone++
				return fmt.Errorf("%w: short outside premium zone", ports.ErrEntryBlocked)
			}
		} else {
			g.config.Logger.Debug(ctx, "Premium/discount zones not formed yet, zone filter skipped")
		}
	}

	g.stats.Allowed++
	return nil
}

// GetStats returns the gate counters
func (g *EntryGate) GetStats() GateStats {
	return g.stats
}
