// Package lease guards against two cycles running concurrently for the same
// account. The redis-backed registry keeps the "already running" record
// durable across process restarts and visible to monitoring; the in-memory
// registry serves single-process and test use.
package lease

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrHeld is returned when another cycle already owns the account.
var ErrHeld = errors.New("lease: account cycle already running")

type Lease struct {
	AccountID string
	Token     string
}

type Registry interface {
	// Acquire claims the account for ttl, returning ErrHeld if someone else
	// owns it.
	Acquire(ctx context.Context, accountID string, ttl time.Duration) (*Lease, error)
	// Release frees the account if the lease token still owns it. Releasing
	// an expired or stolen lease is a no-op.
	Release(ctx context.Context, l *Lease) error
}

// releaseScript deletes the key only when the stored token matches, so a
// slow cycle cannot free a lease that already expired and was re-acquired.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

type redisRegistry struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) Registry {
	return &redisRegistry{rdb: rdb}
}

func key(accountID string) string { return "leadbot:cycle-lease:" + accountID }

func (r *redisRegistry) Acquire(ctx context.Context, accountID string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	ok, err := r.rdb.SetNX(ctx, key(accountID), token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lease{AccountID: accountID, Token: token}, nil
}

func (r *redisRegistry) Release(ctx context.Context, l *Lease) error {
	return r.rdb.Eval(ctx, releaseScript, []string{key(l.AccountID)}, l.Token).Err()
}

type memoryRegistry struct {
	mu     sync.Mutex
	leases map[string]memoryLease
}

type memoryLease struct {
	token     string
	expiresAt time.Time
}

func NewMemory() Registry {
	return &memoryRegistry{leases: make(map[string]memoryLease)}
}

func (m *memoryRegistry) Acquire(ctx context.Context, accountID string, ttl time.Duration) (*Lease, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if held, ok := m.leases[accountID]; ok && now.Before(held.expiresAt) {
		return nil, ErrHeld
	}
	token := uuid.NewString()
	m.leases[accountID] = memoryLease{token: token, expiresAt: now.Add(ttl)}
	return &Lease{AccountID: accountID, Token: token}, nil
}

func (m *memoryRegistry) Release(ctx context.Context, l *Lease) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if held, ok := m.leases[l.AccountID]; ok && held.token == l.Token {
		delete(m.leases, l.AccountID)
	}
	return nil
}
