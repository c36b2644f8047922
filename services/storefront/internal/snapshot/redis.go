package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/storefront/services/storefront/internal/domain"
)

const keyPrefix = "storefront:cart:"

// RedisStore implements Store with one JSON document per session expiring
// after ttl.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisStore creates a Redis-backed snapshot store.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func snapshotKey(sessionID string) string {
	return keyPrefix + sessionID
}

// Load reads the items stored for sessionID.
func (s *RedisStore) Load(ctx context.Context, sessionID string) ([]domain.LineItem, error) {
	data, err := s.client.Get(ctx, snapshotKey(sessionID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis get snapshot: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return domain.CloneItems(doc.Items), nil
}

// Save overwrites the items stored for sessionID and refreshes the TTL.
func (s *RedisStore) Save(ctx context.Context, sessionID string, items []domain.LineItem) error {
	data, err := json.Marshal(document{Items: domain.CloneItems(items), SavedAt: s.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, snapshotKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set snapshot: %w", err)
	}
	return nil
}
