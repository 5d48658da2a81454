package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/marketsettle-backend/pkg/instance"
	"github.com/angelmondragon/marketsettle-backend/pkg/redis"
)

const defaultLockTTL = 5 * time.Minute

// Locker hands out exclusive leases per job name.
type Locker interface {
	Acquire(ctx context.Context, name string) (Lease, bool, error)
}

// Lease is a held lock.
type Lease interface {
	Release(ctx context.Context) error
}

type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(name string) string
}

// RedisLocker implements Locker with SETNX plus a TTL so a crashed worker
// cannot hold a job forever.
type RedisLocker struct {
	store redisStore
	ttl   time.Duration
}

func NewRedisLocker(store redisStore, ttl time.Duration) (*RedisLocker, error) {
	if store == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLocker{store: store, ttl: ttl}, nil
}

func (l *RedisLocker) Acquire(ctx context.Context, name string) (Lease, bool, error) {
	if name == "" {
		return nil, false, errors.New("lock name is required")
	}
	key := l.store.LockKey(name)
	owner := instance.ID() + "/" + uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, owner, l.ttl)
	if err != nil {
		return nil, false, fmt.Errorf("setnx %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{store: l.store, key: key, owner: owner}, true, nil
}

type redisLease struct {
	store redisStore
	key   string
	owner string
}

// Release deletes the key only while this lease still owns it.
func (l *redisLease) Release(ctx context.Context) error {
	value, err := l.store.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != l.owner {
		return nil
	}
	if err := l.store.Del(ctx, l.key); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}
