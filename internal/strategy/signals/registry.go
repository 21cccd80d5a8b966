// Package signals keeps emitted signals alive for their bar window and
// decides when a set of them justifies a combined entry.
package signals

import (
	"fmt"

	"confluenceBot/internal/domain"
)

// Registry owns every live signal. Signals stay registered until their age
// exceeds their own MaxBarsBetween, whether traded or not.
type Registry struct {
	signals []*domain.Signal
	seq     int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add registers a signal and assigns its ID.
func (r *Registry) Add(s *domain.Signal) *domain.Signal {
	r.seq++
	s.ID = fmt.Sprintf("sig-%d", r.seq)
	r.signals = append(r.signals, s)
	return s
}

// Expire drops signals older than their window and returns them.
func (r *Registry) Expire(currentBar int) []*domain.Signal {
	var expired []*domain.Signal
	kept := r.signals[:0]
	for _, s := range r.signals {
		if s.Age(currentBar) > s.MaxBarsBetween {
			expired = append(expired, s)
			continue
		}
		kept = append(kept, s)
	}
	// Clear the tail so expired signals can be collected.
	for i := len(kept); i < len(r.signals); i++ {
		r.signals[i] = nil
	}
	r.signals = kept
	return expired
}

// Pending returns untraded signals in registration order.
func (r *Registry) Pending() []*domain.Signal {
	var out []*domain.Signal
	for _, s := range r.signals {
		if !s.TradeGenerated {
			out = append(out, s)
		}
	}
	return out
}

// Combined returns untraded combined signals pointing in dir, in
// registration order.
func (r *Registry) Combined(dir domain.Direction) []*domain.Signal {
	var out []*domain.Signal
	for _, s := range r.signals {
		if s.Combined && !s.TradeGenerated && s.Direction == dir {
			out = append(out, s)
		}
	}
	return out
}

// MarkTraded consumes signals.
func (r *Registry) MarkTraded(sigs ...*domain.Signal) {
	for _, s := range sigs {
		s.TradeGenerated = true
	}
}

// Get looks a signal up by ID.
func (r *Registry) Get(id string) (*domain.Signal, bool) {
	for _, s := range r.signals {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Len returns the number of registered signals.
func (r *Registry) Len() int { return len(r.signals) }
