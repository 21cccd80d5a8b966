package ports

import (
	"context"

	"confluenceBot/internal/domain"
)

// OrderSink receives entry legs produced by the executor.
type OrderSink interface {
	SubmitEntry(ctx context.Context, order *domain.EntryOrder) error
}

// PositionReader reports whether the instrument currently holds a position.
type PositionReader interface {
	HasOpenPosition(ctx context.Context, symbol string) (bool, error)
}

// DrawSink receives chart side effects.
type DrawSink interface {
	Draw(ctx context.Context, cmd domain.DrawCommand) error
}
