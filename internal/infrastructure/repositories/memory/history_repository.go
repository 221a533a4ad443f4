package memory

import (
	"context"
	"sync"

	"peercall/internal/core/domain"
	"peercall/internal/core/ports"
)

// maxHistoryEntries bounds the in-memory log; oldest entries fall off.
const maxHistoryEntries = 500

type MemoryHistoryRepository struct {
	entries []*domain.CallHistoryEntry
	mu      sync.RWMutex
}

func NewMemoryHistoryRepository() ports.HistoryRepository {
	return &MemoryHistoryRepository{}
}

func (r *MemoryHistoryRepository) Save(ctx context.Context, entry *domain.CallHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *entry
	// Newest first.
	r.entries = append([]*domain.CallHistoryEntry{&cp}, r.entries...)
	if len(r.entries) > maxHistoryEntries {
		r.entries = r.entries[:maxHistoryEntries]
	}
	return nil
}

func (r *MemoryHistoryRepository) List(ctx context.Context, limit int) ([]*domain.CallHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 || limit > len(r.entries) {
		limit = len(r.entries)
	}
	out := make([]*domain.CallHistoryEntry, limit)
	for i := 0; i < limit; i++ {
		cp := *r.entries[i]
		out[i] = &cp
	}
	return out, nil
}
