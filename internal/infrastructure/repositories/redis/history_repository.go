package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"peercall/internal/core/domain"
	"peercall/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

// historyRetention bounds the persisted log per device.
const historyRetention = 500

type RedisHistoryRepository struct {
	client *redis.Client
	prefix string
}

func NewRedisHistoryRepository(client *redis.Client) ports.HistoryRepository {
	return &RedisHistoryRepository{
		client: client,
		prefix: "peercall:history:",
	}
}

func (r *RedisHistoryRepository) entryKey(id string) string {
	return r.prefix + id
}

func (r *RedisHistoryRepository) indexKey() string {
	return r.prefix + "index"
}

func (r *RedisHistoryRepository) Save(ctx context.Context, entry *domain.CallHistoryEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal history entry: %w", err)
	}

	key := r.entryKey(entry.ID)
	if err := r.client.Set(ctx, key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to set history entry in Redis: %w", err)
	}

	// Timestamp-scored index keeps List in reverse chronological order.
	idx := r.indexKey()
	member := redis.Z{Score: float64(entry.Timestamp.UnixMilli()), Member: entry.ID}
	if err := r.client.ZAdd(ctx, idx, member).Err(); err != nil {
		return fmt.Errorf("failed to index history entry: %w", err)
	}

	// Trim entries beyond the retention window, oldest first.
	evicted, err := r.client.ZRange(ctx, idx, 0, int64(-historyRetention-1)).Result()
	if err != nil {
		return fmt.Errorf("failed to read eviction candidates: %w", err)
	}
	for _, id := range evicted {
		r.client.Del(ctx, r.entryKey(id))
		r.client.ZRem(ctx, idx, id)
	}

	return nil
}

func (r *RedisHistoryRepository) List(ctx context.Context, limit int) ([]*domain.CallHistoryEntry, error) {
	if limit <= 0 {
		limit = historyRetention
	}

	ids, err := r.client.ZRevRange(ctx, r.indexKey(), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history index from Redis: %w", err)
	}

	var entries []*domain.CallHistoryEntry
	for _, id := range ids {
		data, err := r.client.Get(ctx, r.entryKey(id)).Result()
		if err == redis.Nil {
			// Index may briefly outlive a trimmed entry.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get history entry from Redis: %w", err)
		}

		var entry domain.CallHistoryEntry
		if err := json.Unmarshal([]byte(data), &entry); err != nil {
			return nil, fmt.Errorf("failed to unmarshal history entry: %w", err)
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}
