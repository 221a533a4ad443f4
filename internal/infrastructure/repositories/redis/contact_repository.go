package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"peercall/internal/core/domain"
	"peercall/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

type RedisContactRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisContactRepository(client *redis.Client) ports.ContactRepository {
	return &RedisContactRepository{
		client: client,
		prefix: "peercall:contact:",
	}
}

func (r *RedisContactRepository) contactKey(id string) string {
	return r.prefix + id
}

func (r *RedisContactRepository) allKey() string {
	return r.prefix + "all"
}

func (r *RedisContactRepository) Upsert(ctx context.Context, contact *domain.Contact) error {
	data, err := json.Marshal(contact)
	if err != nil {
		return fmt.Errorf("failed to marshal contact: %w", err)
	}

	if err := r.client.Set(ctx, r.contactKey(contact.ID), data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set contact in Redis: %w", err)
	}
	if err := r.client.SAdd(ctx, r.allKey(), contact.ID).Err(); err != nil {
		return fmt.Errorf("failed to add contact to index: %w", err)
	}
	return nil
}

func (r *RedisContactRepository) GetByID(ctx context.Context, id string) (*domain.Contact, error) {
	data, err := r.client.Get(ctx, r.contactKey(id)).Result()
	if err == redis.Nil {
		return nil, domain.ErrContactNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get contact from Redis: %w", err)
	}

	var contact domain.Contact
	if err := json.Unmarshal([]byte(data), &contact); err != nil {
		return nil, fmt.Errorf("failed to unmarshal contact: %w", err)
	}
	return &contact, nil
}

func (r *RedisContactRepository) List(ctx context.Context) ([]*domain.Contact, error) {
	ids, err := r.client.SMembers(ctx, r.allKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read contact index from Redis: %w", err)
	}

	var contacts []*domain.Contact
	for _, id := range ids {
		contact, err := r.GetByID(ctx, id)
		if err != nil {
			// Skip contacts that no longer exist.
			continue
		}
		contacts = append(contacts, contact)
	}
	sort.Slice(contacts, func(i, j int) bool { return contacts[i].Name < contacts[j].Name })
	return contacts, nil
}
