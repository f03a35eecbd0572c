package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/yuzvak/crowdfund-service/internal/application/ports"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/monitoring"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

type DispatcherOptions struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// OutboxDispatcher delivers committed messages in emission order. Registry
// messages are applied to the registry before being published; a failed
// message stops the batch so later messages never overtake it.
type OutboxDispatcher struct {
	outbox    ports.OutboxRepository
	registry  crowdfund.Registry
	publisher ports.Publisher
	logger    *logger.Logger
	opts      DispatcherOptions
	stopChan  chan struct{}
}

func NewOutboxDispatcher(
	outbox ports.OutboxRepository,
	registry crowdfund.Registry,
	publisher ports.Publisher,
	logger *logger.Logger,
	opts DispatcherOptions,
) *OutboxDispatcher {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 5
	}
	return &OutboxDispatcher{
		outbox:    outbox,
		registry:  registry,
		publisher: publisher,
		logger:    logger,
		opts:      opts,
		stopChan:  make(chan struct{}),
	}
}

func (d *OutboxDispatcher) Start(ctx context.Context) {
	d.logger.Info("Starting outbox dispatcher", "interval", d.opts.Interval.String(), "batch_size", d.opts.BatchSize)

	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("Outbox dispatcher stopped")
			return
		case <-d.stopChan:
			d.logger.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			if _, err := d.DispatchOnce(ctx); err != nil {
				d.logger.Warn("Outbox dispatch incomplete", "error", err)
			}
		}
	}
}

func (d *OutboxDispatcher) Stop() {
	close(d.stopChan)
}

// DispatchOnce sends up to one batch and returns how many messages were published.
func (d *OutboxDispatcher) DispatchOnce(ctx context.Context) (int, error) {
	pending, err := d.outbox.PendingOutbox(ctx, d.opts.BatchSize, d.opts.MaxAttempts)
	if err != nil {
		return 0, fmt.Errorf("failed to load outbox: %w", err)
	}

	published := 0
	for _, msg := range pending {
		kind := string(msg.Message.Kind)

		if err := d.deliver(ctx, msg); err != nil {
			monitoring.RecordOutboxDispatch(kind, string(ports.OutboxFailed))
			if markErr := d.outbox.MarkFailed(ctx, msg.ID, err, d.opts.MaxAttempts); markErr != nil {
				d.logger.Error("Failed to record dispatch failure", "id", msg.ID, "error", markErr)
			}
			return published, fmt.Errorf("message %s (%s): %w", msg.ID, kind, err)
		}

		if err := d.outbox.MarkPublished(ctx, msg.ID); err != nil {
			return published, fmt.Errorf("failed to mark %s published: %w", msg.ID, err)
		}
		monitoring.RecordOutboxDispatch(kind, string(ports.OutboxPublished))
		published++
	}

	if published > 0 {
		d.logger.Debug("Outbox batch dispatched", "published", published)
	}
	return published, nil
}

func (d *OutboxDispatcher) deliver(ctx context.Context, msg *ports.OutboxMessage) error {
	if msg.Message.IsRegistryMessage() && d.registry != nil {
		if err := crowdfund.Deliver(ctx, d.registry, msg.Message); err != nil {
			return err
		}
	}
	if d.publisher != nil {
		return d.publisher.Publish(ctx, msg)
	}
	return nil
}
