package redis

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"

	"github.com/yuzvak/crowdfund-service/internal/application/ports"
)

// StreamPublisher appends dispatched messages to a Redis stream for
// downstream consumers such as a bank or chain relayer.
type StreamPublisher struct {
	client *redis.Client
	stream string
	maxLen int64
}

func NewStreamPublisher(conn *Connection, stream string, maxLen int64) *StreamPublisher {
	return &StreamPublisher{client: conn.GetClient(), stream: stream, maxLen: maxLen}
}

func (p *StreamPublisher) Publish(ctx context.Context, msg *ports.OutboxMessage) error {
	payload, err := json.Marshal(msg.Message)
	if err != nil {
		return err
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"id":      msg.ID,
			"action":  msg.Action,
			"kind":    string(msg.Message.Kind),
			"message": string(payload),
		},
	}
	if p.maxLen > 0 {
		args.MaxLen = p.maxLen
		args.Approx = true
	}

	return p.client.XAdd(ctx, args).Err()
}

var _ ports.Publisher = (*StreamPublisher)(nil)
