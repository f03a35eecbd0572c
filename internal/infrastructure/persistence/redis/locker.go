package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"

	"github.com/yuzvak/crowdfund-service/internal/application/ports"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/monitoring"
)

var ErrLockNotHeld = errors.New("lock was not held or already expired")

type LockOptions struct {
	Tries       int
	RetryDelay  time.Duration
	DriftFactor float64
}

func DefaultLockOptions() LockOptions {
	return LockOptions{
		Tries:       64,
		RetryDelay:  50 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

// Locker is a redsync backed ports.Locker shared by every replica.
type Locker struct {
	rs   *redsync.Redsync
	opts LockOptions
}

func NewLocker(conn *Connection, opts LockOptions) *Locker {
	if opts.Tries <= 0 {
		opts.Tries = DefaultLockOptions().Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultLockOptions().RetryDelay
	}
	return &Locker{
		rs:   redsync.New(goredis.NewPool(conn.GetClient())),
		opts: opts,
	}
}

func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.Unlock, error) {
	metrics := monitoring.NewDistributedLockMetrics(key)
	metrics.RecordAttempt()
	done := metrics.TimeOperation()
	defer done()

	mutex := l.rs.NewMutex("lock:"+key,
		redsync.WithExpiry(ttl),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
		redsync.WithDriftFactor(l.opts.DriftFactor),
	)

	if err := mutex.LockContext(ctx); err != nil {
		reason := "error"
		if errors.Is(err, redsync.ErrFailed) {
			reason = "contention"
		}
		metrics.RecordFailure(reason)
		return nil, fmt.Errorf("distributed lock %s: %w", key, err)
	}
	metrics.RecordSuccess()

	return func(ctx context.Context) error {
		ok, err := mutex.UnlockContext(ctx)
		if err != nil {
			return fmt.Errorf("distributed lock %s: unlock: %w", key, err)
		}
		if !ok {
			return ErrLockNotHeld
		}
		return nil
	}, nil
}
