package api

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const webhookDedupTTL = 24 * time.Hour

// Deduper remembers webhook delivery ids so retried deliveries are not applied twice.
// Claim reports false when the id was already claimed. Release forgets a claim so a
// failed delivery can be retried.
type Deduper interface {
	Claim(ctx context.Context, id string) (bool, error)
	Release(ctx context.Context, id string) error
}

type memoryDeduper struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewMemoryDeduper keeps delivery ids in process memory.
func NewMemoryDeduper() Deduper {
	return &memoryDeduper{
		seen: make(map[string]time.Time),
		ttl:  webhookDedupTTL,
		now:  time.Now,
	}
}

func (d *memoryDeduper) Claim(ctx context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.now()
	for key, at := range d.seen {
		if now.Sub(at) > d.ttl {
			delete(d.seen, key)
		}
	}

	if _, exists := d.seen[id]; exists {
		return false, nil
	}
	d.seen[id] = now
	return true, nil
}

func (d *memoryDeduper) Release(ctx context.Context, id string) error {
	d.mu.Lock()
	delete(d.seen, id)
	d.mu.Unlock()
	return nil
}

type redisDeduper struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisDeduper shares delivery ids across replicas through SET NX keys.
func NewRedisDeduper(client redis.UniversalClient, prefix string) Deduper {
	if prefix == "" {
		prefix = "wayfarer:clerk_webhook"
	}
	return &redisDeduper{client: client, prefix: prefix}
}

func (d *redisDeduper) Claim(ctx context.Context, id string) (bool, error) {
	return d.client.SetNX(ctx, d.prefix+":"+id, "1", webhookDedupTTL).Result()
}

func (d *redisDeduper) Release(ctx context.Context, id string) error {
	return d.client.Del(ctx, d.prefix+":"+id).Err()
}
