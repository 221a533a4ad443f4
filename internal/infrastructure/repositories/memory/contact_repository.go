package memory

import (
	"context"
	"sort"
	"sync"

	"peercall/internal/core/domain"
	"peercall/internal/core/ports"
)

type MemoryContactRepository struct {
	contacts map[string]*domain.Contact
	mu       sync.RWMutex
}

func NewMemoryContactRepository() ports.ContactRepository {
	return &MemoryContactRepository{
		contacts: make(map[string]*domain.Contact),
	}
}

func (r *MemoryContactRepository) Upsert(ctx context.Context, contact *domain.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *contact
	r.contacts[contact.ID] = &cp
	return nil
}

func (r *MemoryContactRepository) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contact, exists := r.contacts[id]
	if !exists {
		return nil, domain.ErrContactNotFound
	}
	cp := *contact
	return &cp, nil
}

func (r *MemoryContactRepository) List(ctx context.Context) ([]*domain.Contact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Contact, 0, len(r.contacts))
	for _, contact := range r.contacts {
		cp := *contact
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
