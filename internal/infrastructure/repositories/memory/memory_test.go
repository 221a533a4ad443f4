package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"peercall/internal/core/domain"

	"github.com/stretchr/testify/require"
)

func TestHistoryRepository_NewestFirst(t *testing.T) {
	repo := NewMemoryHistoryRepository()
	ctx := context.Background()

	base := time.Now()
	for i := 0; i < 3; i++ {
		err := repo.Save(ctx, &domain.CallHistoryEntry{
			ID:        fmt.Sprintf("h%d", i),
			Type:      domain.OutcomeOutgoing,
			Timestamp: base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	entries, err := repo.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "h2", entries[0].ID)
	require.Equal(t, "h0", entries[2].ID)
}

func TestHistoryRepository_LimitAndRetention(t *testing.T) {
	repo := NewMemoryHistoryRepository()
	ctx := context.Background()

	for i := 0; i < maxHistoryEntries+10; i++ {
		require.NoError(t, repo.Save(ctx, &domain.CallHistoryEntry{ID: fmt.Sprintf("h%d", i)}))
	}

	entries, err := repo.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, maxHistoryEntries)

	limited, err := repo.List(ctx, 5)
	require.NoError(t, err)
	require.Len(t, limited, 5)
}

func TestHistoryRepository_SaveCopies(t *testing.T) {
	repo := NewMemoryHistoryRepository()
	ctx := context.Background()

	entry := &domain.CallHistoryEntry{ID: "h1", ContactName: "Alice"}
	require.NoError(t, repo.Save(ctx, entry))
	entry.ContactName = "mutated"

	entries, err := repo.List(ctx, 1)
	require.NoError(t, err)
	require.Equal(t, "Alice", entries[0].ContactName)
}

func TestContactRepository_UpsertAndGet(t *testing.T) {
	repo := NewMemoryContactRepository()
	ctx := context.Background()

	contact := &domain.Contact{ID: "c1", Name: "Alice", Address: "device-1"}
	require.NoError(t, repo.Upsert(ctx, contact))

	got, err := repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "Alice", got.Name)

	contact.Name = "Alice B"
	require.NoError(t, repo.Upsert(ctx, contact))
	got, err = repo.GetByID(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, "Alice B", got.Name)
}

func TestContactRepository_NotFound(t *testing.T) {
	repo := NewMemoryContactRepository()
	_, err := repo.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrContactNotFound)
}

func TestContactRepository_ListSortedByName(t *testing.T) {
	repo := NewMemoryContactRepository()
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, &domain.Contact{ID: "c2", Name: "Bob"}))
	require.NoError(t, repo.Upsert(ctx, &domain.Contact{ID: "c1", Name: "Alice"}))

	contacts, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, contacts, 2)
	require.Equal(t, "Alice", contacts[0].Name)
	require.Equal(t, "Bob", contacts[1].Name)
}
