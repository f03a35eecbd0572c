package monitoring

import (
	"context"
	"net"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisHook struct{}

var _ redis.Hook = RedisHook{}

func (RedisHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		duration := time.Since(start).Seconds()
		RedisCommandDuration.WithLabelValues(cmd.Name()).Observe(duration)
		return err
	}
}

func (RedisHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		duration := time.Since(start).Seconds()
		RedisCommandDuration.WithLabelValues("pipeline").Observe(duration)
		return err
	}
}

func (RedisHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		start := time.Now()
		conn, err := next(ctx, network, addr)
		duration := time.Since(start).Seconds()
		RedisCommandDuration.WithLabelValues("dial").Observe(duration)
		return conn, err
	}
}

func InstrumentRedisClient(client *redis.Client) *redis.Client {
	client.AddHook(RedisHook{})
	return client
}

type DistributedLockMetrics struct {
	lockKey string
}

func NewDistributedLockMetrics(lockKey string) *DistributedLockMetrics {
	return &DistributedLockMetrics{
		lockKey: lockKey,
	}
}

func (m *DistributedLockMetrics) RecordAttempt() {
	RecordLockAttempt(m.lockKey)
}

func (m *DistributedLockMetrics) RecordSuccess() {
	RecordLockSuccess(m.lockKey)
}

func (m *DistributedLockMetrics) RecordFailure(reason string) {
	RecordLockFailure(m.lockKey, reason)
}

func (m *DistributedLockMetrics) TimeOperation() func() {
	return TimeRedisLock(m.lockKey)
}
