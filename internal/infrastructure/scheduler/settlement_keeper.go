package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/yuzvak/crowdfund-service/internal/application/use_cases"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

type SettlementRunner interface {
	Phase(ctx context.Context) (crowdfund.Phase, error)
	EndSale(ctx context.Context, caller use_cases.Caller, limit *uint32) (*crowdfund.Response, error)
}

type KeeperOptions struct {
	Interval   time.Duration
	BatchLimit uint32
	Sender     string
	// MaxBatches bounds the EndSale calls made in one tick.
	MaxBatches int
}

// SettlementKeeper drives a closing sale to completion by calling EndSale in
// batches until the sale clears.
type SettlementKeeper struct {
	runner   SettlementRunner
	logger   *logger.Logger
	opts     KeeperOptions
	stopChan chan struct{}
}

func NewSettlementKeeper(runner SettlementRunner, logger *logger.Logger, opts KeeperOptions) *SettlementKeeper {
	if opts.Interval <= 0 {
		opts.Interval = 30 * time.Second
	}
	if opts.BatchLimit == 0 {
		opts.BatchLimit = crowdfund.DefaultLimit
	}
	if opts.Sender == "" {
		opts.Sender = "keeper"
	}
	if opts.MaxBatches <= 0 {
		opts.MaxBatches = 100
	}
	return &SettlementKeeper{
		runner:   runner,
		logger:   logger,
		opts:     opts,
		stopChan: make(chan struct{}),
	}
}

func (k *SettlementKeeper) Start(ctx context.Context) {
	k.logger.Info("Starting settlement keeper", "interval", k.opts.Interval.String(), "batch_limit", k.opts.BatchLimit)

	if _, err := k.Settle(ctx); err != nil {
		k.logger.Error("Initial settlement failed", "error", err)
	}

	ticker := time.NewTicker(k.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			k.logger.Info("Settlement keeper stopped")
			return
		case <-k.stopChan:
			k.logger.Info("Settlement keeper stopped")
			return
		case <-ticker.C:
			if _, err := k.Settle(ctx); err != nil {
				k.logger.Error("Scheduled settlement failed", "error", err)
			}
		}
	}
}

func (k *SettlementKeeper) Stop() {
	close(k.stopChan)
}

// Settle runs EndSale batches while the sale is closing. It reports whether
// the sale cleared during this run.
func (k *SettlementKeeper) Settle(ctx context.Context) (bool, error) {
	phase, err := k.runner.Phase(ctx)
	if err != nil {
		return false, err
	}
	if phase != crowdfund.PhaseClosing {
		return false, nil
	}

	limit := k.opts.BatchLimit
	caller := use_cases.Caller{Sender: k.opts.Sender}

	for batch := 1; batch <= k.opts.MaxBatches; batch++ {
		resp, err := k.runner.EndSale(ctx, caller, &limit)
		if err != nil {
			if errors.Is(err, domainErrors.ErrNoOngoingSale) {
				return true, nil
			}
			return false, err
		}

		k.logger.Info("Settlement batch completed",
			"batch", batch,
			"messages", len(resp.Messages),
			"sale_cleared", resp.Attribute("sale_cleared"),
		)

		if resp.Attribute("sale_cleared") == "true" {
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
	}

	k.logger.Warn("Settlement not finished within batch budget", "max_batches", k.opts.MaxBatches)
	return false, nil
}
