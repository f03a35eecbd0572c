package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/yuzvak/crowdfund-service/internal/application/ports"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/monitoring"
)

func (r *CrowdfundRepository) AppendOutbox(ctx context.Context, msgs ...*ports.OutboxMessage) error {
	query := `
		INSERT INTO outbox (id, action, message, status, attempts, last_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	for _, msg := range msgs {
		payload, err := json.Marshal(msg.Message)
		if err != nil {
			return err
		}
		_, err = r.exec(ctx, "INSERT", "outbox", query,
			msg.ID, msg.Action, string(payload), string(msg.Status), msg.Attempts, msg.LastError, msg.CreatedAt,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *CrowdfundRepository) PendingOutbox(ctx context.Context, limit, maxAttempts int) ([]*ports.OutboxMessage, error) {
	query := `
		SELECT id, action, message, status, attempts, last_error, created_at
		FROM outbox
		WHERE status = $1 AND attempts < $2
		ORDER BY id
		LIMIT $3
	`

	rows, err := monitoring.InstrumentQuery(ctx, r.q(), "SELECT", "outbox", query, string(ports.OutboxPending), maxAttempts, limit)
	if err != nil {
		return nil, translate(err)
	}
	defer rows.Close()

	var out []*ports.OutboxMessage
	for rows.Next() {
		var (
			msg     ports.OutboxMessage
			payload string
			status  string
		)
		if err := rows.Scan(&msg.ID, &msg.Action, &payload, &status, &msg.Attempts, &msg.LastError, &msg.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(payload), &msg.Message); err != nil {
			return nil, err
		}
		msg.Status = ports.OutboxStatus(status)
		out = append(out, &msg)
	}
	return out, translate(rows.Err())
}

func (r *CrowdfundRepository) MarkPublished(ctx context.Context, id string) error {
	query := `UPDATE outbox SET status = $1, last_error = '' WHERE id = $2`
	return r.updateOutbox(ctx, id, query, string(ports.OutboxPublished), id)
}

func (r *CrowdfundRepository) MarkFailed(ctx context.Context, id string, cause error, maxAttempts int) error {
	query := `
		UPDATE outbox
		SET attempts = attempts + 1,
			last_error = $1,
			status = CASE WHEN attempts + 1 >= $2 THEN $3 ELSE status END
		WHERE id = $4
	`
	lastError := ""
	if cause != nil {
		lastError = cause.Error()
	}
	return r.updateOutbox(ctx, id, query, lastError, maxAttempts, string(ports.OutboxFailed), id)
}

func (r *CrowdfundRepository) updateOutbox(ctx context.Context, id, query string, args ...any) error {
	result, err := r.exec(ctx, "UPDATE", "outbox", query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return fmt.Errorf("outbox message %s not found", id)
	}
	return nil
}
