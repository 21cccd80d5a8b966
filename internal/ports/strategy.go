package ports

import "confluenceBot/internal/domain"

// EngineObserver is notified of engine activity, e.g. for metrics.
type EngineObserver interface {
	SignalEmitted(sig *domain.Signal)
	EntrySubmitted(order *domain.EntryOrder)
	EntryBlocked(direction domain.Direction, reason string)
	BarFault(series domain.SeriesKind)
}

// NopObserver discards all notifications.
type NopObserver struct{}

func (NopObserver) SignalEmitted(*domain.Signal)          {}
func (NopObserver) EntrySubmitted(*domain.EntryOrder)     {}
func (NopObserver) EntryBlocked(domain.Direction, string) {}
func (NopObserver) BarFault(domain.SeriesKind)            {}
