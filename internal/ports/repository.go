package ports

import (
	"context"
	"time"

	"confluenceBot/internal/domain"
)

// Run describes one engine session (backtest or live).
type Run struct {
	ID        string
	Mode      string // backtest, paper, live
	Symbol    string
	Interval  string
	StartedAt time.Time
}

// SignalJournal persists what the engine emitted during a run.
type SignalJournal interface {
	// StartRun registers a new run.
	StartRun(ctx context.Context, run *Run) error
	// RecordSignal stores an emitted signal.
	RecordSignal(ctx context.Context, runID string, sig *domain.Signal) error
	// RecordEntry stores an entry leg and returns its assigned ID.
	RecordEntry(ctx context.Context, order *domain.EntryOrder) (int64, error)
	// RecordDraw stores a draw command.
	RecordDraw(ctx context.Context, runID string, cmd domain.DrawCommand) error
	// FindSignals retrieves the signals of a run ordered by bar.
	FindSignals(ctx context.Context, runID string) ([]*domain.Signal, error)
	// FindEntries retrieves the entry legs of a run ordered by bar and leg.
	FindEntries(ctx context.Context, runID string) ([]*domain.EntryOrder, error)
}

// TradeRepository defines the interface for storing and retrieving closed legs.
type TradeRepository interface {
	// CreateTrade saves a new trade record and returns its assigned ID.
	CreateTrade(ctx context.Context, trade *domain.Trade) (int64, error)
	// FindByRun retrieves the trades of a run ordered by exit time.
	FindByRun(ctx context.Context, runID string) ([]*domain.Trade, error)
	// FindBySymbol retrieves the most recent trades for a given symbol, up to a limit.
	FindBySymbol(ctx context.Context, symbol string, limit int) ([]*domain.Trade, error)
}
