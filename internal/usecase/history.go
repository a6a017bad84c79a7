package usecase

import (
	"context"
	"errors"
	"fmt"

	"hospital-chat/internal/domain"
)

const DefaultHistoryLimit = 5

// TurnReader returns the newest turns of the message store, newest first.
type TurnReader interface {
	Latest(ctx context.Context, limit int) ([]domain.ChatTurn, error)
}

// HistoryWindow selects the most recent turns used as conversation context.
type HistoryWindow struct {
	store TurnReader
}

func NewHistoryWindow(store TurnReader) (*HistoryWindow, error) {
	if store == nil {
		return nil, errors.New("usecase: turn reader must not be nil")
	}
	return &HistoryWindow{store: store}, nil
}

// RecentTurns returns at most limit turns in chronological order. Fewer
// stored turns are returned as they are, without padding.
func (h *HistoryWindow) RecentTurns(ctx context.Context, limit int) ([]domain.ChatTurn, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	latest, err := h.store.Latest(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("usecase: load recent turns: %w", err)
	}
	if len(latest) > limit {
		latest = latest[:limit]
	}

	turns := make([]domain.ChatTurn, len(latest))
	for i, t := range latest {
		turns[len(latest)-1-i] = t
	}
	return turns, nil
}
