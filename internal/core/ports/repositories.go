package ports

import (
	"context"

	"peercall/internal/core/domain"
)

// HistoryRepository records terminal call outcomes. The call service writes
// exactly one entry per completed session.
type HistoryRepository interface {
	Save(ctx context.Context, entry *domain.CallHistoryEntry) error
	List(ctx context.Context, limit int) ([]*domain.CallHistoryEntry, error)
}

// ContactRepository resolves known remote parties for outgoing calls.
type ContactRepository interface {
	Upsert(ctx context.Context, contact *domain.Contact) error
	GetByID(ctx context.Context, id string) (*domain.Contact, error)
	List(ctx context.Context) ([]*domain.Contact, error)
}
