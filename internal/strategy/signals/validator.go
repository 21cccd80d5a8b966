package signals

import (
	"sort"

	"confluenceBot/internal/domain"
)

// MinDistinctTypes is the number of different detectors a combined entry
// needs.
const MinDistinctTypes = 2

// Validator decides whether a combined signal completes an entry.
type Validator struct {
	registry *Registry
}

// NewValidator creates a validator over the registry.
func NewValidator(registry *Registry) *Validator {
	return &Validator{registry: registry}
}

// Validate assembles the signal set that sig completes. Order position 0
// takes every live combined signal in the same direction; order position k
// needs one signal at each rank 1..k-1 that fired strictly earlier and is
// still inside its own window. Either way the set must span at least two
// detector types. The returned set is newest first.
func (v *Validator) Validate(sig *domain.Signal, currentBar int) ([]*domain.Signal, bool) {
	var set []*domain.Signal
	if sig.OrderPosition == 0 {
		set = v.anyOrder(sig)
	} else {
		var ok bool
		if set, ok = v.ranked(sig, currentBar); !ok {
			return nil, false
		}
	}
	if DistinctTypes(set) < MinDistinctTypes {
		return nil, false
	}
	sortNewestFirst(set)
	return set, true
}

func (v *Validator) anyOrder(sig *domain.Signal) []*domain.Signal {
	seen := map[string]bool{sig.ID: true}
	set := []*domain.Signal{sig}
	for _, s := range v.registry.Combined(sig.Direction) {
		if seen[s.ID] {
			continue
		}
		seen[s.ID] = true
		set = append(set, s)
	}
	return set
}

func (v *Validator) ranked(sig *domain.Signal, currentBar int) ([]*domain.Signal, bool) {
	candidates := v.registry.Combined(sig.Direction)
	set := make([]*domain.Signal, 0, sig.OrderPosition)
	for rank := 1; rank < sig.OrderPosition; rank++ {
		prev := firstAtRank(candidates, rank, sig.ID)
		if prev == nil {
			return nil, false
		}
		if prev.Bar >= sig.Bar {
			return nil, false
		}
		if currentBar-prev.Bar > prev.MaxBarsBetween {
			return nil, false
		}
		set = append(set, prev)
	}
	return append(set, sig), true
}

func firstAtRank(candidates []*domain.Signal, rank int, exclude string) *domain.Signal {
	for _, s := range candidates {
		if s.OrderPosition == rank && s.ID != exclude {
			return s
		}
	}
	return nil
}

// DistinctTypes counts the detector types in a set.
func DistinctTypes(set []*domain.Signal) int {
	types := make(map[domain.SignalType]struct{}, len(set))
	for _, s := range set {
		types[s.Type] = struct{}{}
	}
	return len(types)
}

func sortNewestFirst(set []*domain.Signal) {
	sort.SliceStable(set, func(i, j int) bool { return set[i].Bar > set[j].Bar })
}
