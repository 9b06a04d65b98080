/**
 * @description
 * Per-tenant sync locking. At most one sync run may touch a tenant at a time,
 * otherwise two runs could interleave cache writes and double-publish
 * completion events. The Redis locker covers multi-instance deployments; the
 * local locker is the single-instance fallback when Redis is unavailable.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Distributed lock via SET NX PX.
 */

package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrSyncInProgress means another sync run currently holds the tenant's lock.
var ErrSyncInProgress = errors.New("sync already in progress for tenant")

// TenantLocker serializes sync runs per tenant. Acquire returns a release
// function on success.
type TenantLocker interface {
	Acquire(ctx context.Context, tenantID uuid.UUID) (func(), error)
}

// releaseScript deletes the lock key only if this holder still owns it, so a
// run that outlived its TTL cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisTenantLocker implements TenantLocker on a shared Redis instance.
type RedisTenantLocker struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisTenantLocker creates a Redis-backed locker. The TTL bounds how long
// a crashed holder can block a tenant.
func NewRedisTenantLocker(client *redis.Client, prefix string, ttl time.Duration) *RedisTenantLocker {
	if prefix == "" {
		prefix = "psp-fee-service:sync-lock:"
	}
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &RedisTenantLocker{client: client, prefix: prefix, ttl: ttl}
}

func (l *RedisTenantLocker) Acquire(ctx context.Context, tenantID uuid.UUID) (func(), error) {
	key := l.prefix + tenantID.String()
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrSyncInProgress
	}

	release := func() {
		// Release runs during cleanup; a short detached context keeps it from
		// being cancelled along with the batch.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
	}
	return release, nil
}

// LocalTenantLocker implements TenantLocker in process memory.
type LocalTenantLocker struct {
	mu   sync.Mutex
	held map[uuid.UUID]bool
}

// NewLocalTenantLocker creates an in-process locker.
func NewLocalTenantLocker() *LocalTenantLocker {
	return &LocalTenantLocker{held: make(map[uuid.UUID]bool)}
}

func (l *LocalTenantLocker) Acquire(ctx context.Context, tenantID uuid.UUID) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[tenantID] {
		return nil, ErrSyncInProgress
	}
	l.held[tenantID] = true

	release := func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.held, tenantID)
	}
	return release, nil
}
