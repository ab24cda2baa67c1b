package auth

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RevocationStore remembers token ids that were logged out before expiry
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, until time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// MemoryRevocations keeps revoked ids in process memory
type MemoryRevocations struct {
	mu      sync.Mutex
	entries map[string]time.Time
	now     func() time.Time
}

// NewMemoryRevocations creates an empty in-process revocation list
func NewMemoryRevocations() *MemoryRevocations {
	return &MemoryRevocations{entries: make(map[string]time.Time), now: time.Now}
}

func (m *MemoryRevocations) Revoke(_ context.Context, tokenID string, until time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	for id, exp := range m.entries {
		if !exp.After(now) {
			delete(m.entries, id)
		}
	}
	m.entries[tokenID] = until
	return nil
}

func (m *MemoryRevocations) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp, ok := m.entries[tokenID]
	return ok && exp.After(m.now()), nil
}

const redisKeyPrefix = "revoked_token:"

// RedisRevocations stores revoked ids in redis with the token's remaining lifetime
type RedisRevocations struct {
	client *redis.Client
}

// NewRedisRevocations connects to the redis instance at url
func NewRedisRevocations(url string) (*RedisRevocations, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisRevocations{client: redis.NewClient(opts)}, nil
}

// Ping checks connectivity
func (r *RedisRevocations) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the connection pool
func (r *RedisRevocations) Close() error {
	return r.client.Close()
}

func (r *RedisRevocations) Revoke(ctx context.Context, tokenID string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	return r.client.Set(ctx, redisKeyPrefix+tokenID, "1", ttl).Err()
}

func (r *RedisRevocations) IsRevoked(ctx context.Context, tokenID string) (bool, error) {
	n, err := r.client.Exists(ctx, redisKeyPrefix+tokenID).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
