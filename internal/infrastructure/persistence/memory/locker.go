package memory

import (
	"context"
	"sync"
	"time"

	"github.com/yuzvak/crowdfund-service/internal/application/ports"
)

// Locker is a process-local ports.Locker. The ttl is ignored: a lock is held
// until released.
type Locker struct {
	mu    sync.Mutex
	locks map[string]chan struct{}
}

func NewLocker() *Locker {
	return &Locker{locks: map[string]chan struct{}{}}
}

func (l *Locker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.Unlock, error) {
	l.mu.Lock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	l.mu.Unlock()

	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func(context.Context) error {
		once.Do(func() { <-ch })
		return nil
	}, nil
}
