package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Locker grants a short exclusive lease on a key.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// RedisLocker coordinates several worker processes. Leases are stored with
// the locker's owner token and only the owner can release them.
type RedisLocker struct {
	client *redis.Client
	prefix string
	owner  string
}

var _ Locker = (*RedisLocker)(nil)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func NewRedisLocker(client *redis.Client, prefix string) *RedisLocker {
	return &RedisLocker{client: client, prefix: prefix, owner: uuid.NewString()}
}

func (l *RedisLocker) key(name string) string {
	return fmt.Sprintf("%s:lock:%s", l.prefix, name)
}

// Acquire returns true if the lock was acquired, false if already held.
func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(key), l.owner, ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

// Release drops the lease if this locker still holds it.
func (l *RedisLocker) Release(ctx context.Context, key string) error {
	return releaseScript.Run(ctx, l.client, []string{l.key(key)}, l.owner).Err()
}

// LocalLocker is used when a single worker process runs without Redis.
type LocalLocker struct {
	mu     sync.Mutex
	leases map[string]time.Time
	now    func() time.Time
}

var _ Locker = (*LocalLocker)(nil)

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{leases: make(map[string]time.Time), now: time.Now}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if until, held := l.leases[key]; held && now.Before(until) {
		return false, nil
	}
	l.leases[key] = now.Add(ttl)
	return true, nil
}

func (l *LocalLocker) Release(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.leases, key)
	return nil
}
