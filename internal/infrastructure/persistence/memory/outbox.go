package memory

import (
	"context"
	"errors"

	"github.com/yuzvak/crowdfund-service/internal/application/ports"
)

var errOutboxMessageNotFound = errors.New("outbox message not found")

// AppendOutbox queues msgs. Inside a transaction they become visible on commit.
func (r *CrowdfundRepository) AppendOutbox(ctx context.Context, msgs ...*ports.OutboxMessage) error {
	if r.isTx {
		if r.done {
			return errors.New("transaction already finished")
		}
		r.pending = append(r.pending, msgs...)
		return nil
	}
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	r.store.outbox = append(r.store.outbox, msgs...)
	return nil
}

func (r *CrowdfundRepository) PendingOutbox(ctx context.Context, limit, maxAttempts int) ([]*ports.OutboxMessage, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var out []*ports.OutboxMessage
	for _, msg := range r.store.outbox {
		if len(out) >= limit {
			break
		}
		if msg.Status != ports.OutboxPending || msg.Attempts >= maxAttempts {
			continue
		}
		cp := *msg
		out = append(out, &cp)
	}
	return out, nil
}

func (r *CrowdfundRepository) MarkPublished(ctx context.Context, id string) error {
	return r.updateOutbox(id, func(msg *ports.OutboxMessage) {
		msg.Status = ports.OutboxPublished
		msg.LastError = ""
	})
}

func (r *CrowdfundRepository) MarkFailed(ctx context.Context, id string, cause error, maxAttempts int) error {
	return r.updateOutbox(id, func(msg *ports.OutboxMessage) {
		msg.Attempts++
		if cause != nil {
			msg.LastError = cause.Error()
		}
		if msg.Attempts >= maxAttempts {
			msg.Status = ports.OutboxFailed
		}
	})
}

func (r *CrowdfundRepository) updateOutbox(id string, fn func(msg *ports.OutboxMessage)) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	for _, msg := range r.store.outbox {
		if msg.ID == id {
			fn(msg)
			return nil
		}
	}
	return errOutboxMessageNotFound
}

// Outbox returns a copy of every queued message in emission order.
func (s *Store) Outbox() []ports.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ports.OutboxMessage, 0, len(s.outbox))
	for _, msg := range s.outbox {
		out = append(out, *msg)
	}
	return out
}
