package ports

import (
	"context"
	"time"
)

// Locker serialises calls across every process sharing the crowdfund.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (Unlock, error)
}

type Unlock func(ctx context.Context) error

// Publisher hands a dispatched outbox message to downstream consumers.
type Publisher interface {
	Publish(ctx context.Context, msg *OutboxMessage) error
}
