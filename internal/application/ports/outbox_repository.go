package ports

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
)

type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxPublished OutboxStatus = "published"
	OutboxFailed    OutboxStatus = "failed"
)

// OutboxMessage is a message emitted by a committed call, waiting to be dispatched.
type OutboxMessage struct {
	ID        string            `json:"id"`
	Action    string            `json:"action"`
	Message   crowdfund.Message `json:"message"`
	Status    OutboxStatus      `json:"status"`
	Attempts  int               `json:"attempts"`
	LastError string            `json:"last_error,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// NewOutboxMessage stamps msg with a time-ordered id so dispatch preserves emission order.
func NewOutboxMessage(action string, msg crowdfund.Message, now time.Time) (*OutboxMessage, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		ID:        id.String(),
		Action:    action,
		Message:   msg,
		Status:    OutboxPending,
		CreatedAt: now.UTC(),
	}, nil
}

type OutboxRepository interface {
	// PendingOutbox returns up to limit pending messages that have been tried
	// fewer than maxAttempts times, oldest first.
	PendingOutbox(ctx context.Context, limit, maxAttempts int) ([]*OutboxMessage, error)
	MarkPublished(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, cause error, maxAttempts int) error
}
