package cron

import (
	"context"
	"time"
)

// leaseStore is the slice of the redis client the cron runner needs for
// single-runner job leases.
type leaseStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Del(ctx context.Context, keys ...string) error
	LockKey(scope string) string
}

// locker hands out short redis leases so only one cron worker runs a given
// job per tick.
type locker struct {
	store leaseStore
	ttl   time.Duration
}

func newLocker(store leaseStore, ttl time.Duration) *locker {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &locker{store: store, ttl: ttl}
}

// acquire returns a release func when the lease was won, or nil when another
// worker holds it.
func (l *locker) acquire(ctx context.Context, job string) (func(), error) {
	key := l.store.LockKey("cron:" + job)
	ok, err := l.store.SetNX(ctx, key, "1", l.ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return func() {
		_ = l.store.Del(context.Background(), key)
	}, nil
}
