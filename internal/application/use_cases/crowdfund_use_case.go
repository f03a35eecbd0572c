package use_cases

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yuzvak/crowdfund-service/internal/application/ports"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/monitoring"
	"github.com/yuzvak/crowdfund-service/internal/pkg/clock"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

const CallLockKey = "crowdfund:call"

type BlockSource interface {
	Current() clock.Block
}

type Options struct {
	// Contract is the address the crowdfund itself holds tokens under.
	Contract      string
	LockTTL       time.Duration
	RetryAttempts int
}

// Caller identifies who invokes an operation and what they attached to it.
type Caller struct {
	Sender string
	Funds  []crowdfund.Coin
}

type operation func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error)

// CrowdfundUseCase runs every mutating operation under the call lock inside a
// single store transaction, queueing the emitted messages in the same transaction.
type CrowdfundUseCase struct {
	repo   ports.CrowdfundRepository
	locker ports.Locker
	engine *crowdfund.Engine
	blocks BlockSource
	log    *logger.Logger

	contract      string
	lockTTL       time.Duration
	retryAttempts int
}

func NewCrowdfundUseCase(
	repo ports.CrowdfundRepository,
	locker ports.Locker,
	engine *crowdfund.Engine,
	blocks BlockSource,
	log *logger.Logger,
	opts Options,
) *CrowdfundUseCase {
	if opts.LockTTL <= 0 {
		opts.LockTTL = 10 * time.Second
	}
	if opts.RetryAttempts <= 0 {
		opts.RetryAttempts = 3
	}
	return &CrowdfundUseCase{
		repo:          repo,
		locker:        locker,
		engine:        engine,
		blocks:        blocks,
		log:           log,
		contract:      opts.Contract,
		lockTTL:       opts.LockTTL,
		retryAttempts: opts.RetryAttempts,
	}
}

func (uc *CrowdfundUseCase) Instantiate(ctx context.Context, caller Caller, params crowdfund.InstantiateParams) (*crowdfund.Response, error) {
	return uc.execute(ctx, "instantiate", caller, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return uc.engine.Instantiate(ctx, repo, env, params)
	})
}

func (uc *CrowdfundUseCase) UpdateConfig(ctx context.Context, caller Caller, params crowdfund.UpdateConfigParams) (*crowdfund.Response, error) {
	return uc.execute(ctx, "update_config", caller, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return uc.engine.UpdateConfig(ctx, repo, env, params)
	})
}

func (uc *CrowdfundUseCase) Mint(ctx context.Context, caller Caller, mints []crowdfund.MintRequest) (*crowdfund.Response, error) {
	return uc.execute(ctx, "mint", caller, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return uc.engine.Mint(ctx, repo, env, mints)
	})
}

func (uc *CrowdfundUseCase) StartSale(ctx context.Context, caller Caller, params crowdfund.StartSaleParams) (*crowdfund.Response, error) {
	return uc.execute(ctx, "start_sale", caller, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return uc.engine.StartSale(ctx, repo, env, params)
	})
}

func (uc *CrowdfundUseCase) Purchase(ctx context.Context, caller Caller, numberOfTokens *uint32) (*crowdfund.Response, error) {
	return uc.execute(ctx, "purchase", caller, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return uc.engine.Purchase(ctx, repo, env, numberOfTokens)
	})
}

func (uc *CrowdfundUseCase) PurchaseByTokenID(ctx context.Context, caller Caller, tokenID string) (*crowdfund.Response, error) {
	return uc.execute(ctx, "purchase_by_token_id", caller, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return uc.engine.PurchaseByTokenID(ctx, repo, env, tokenID)
	})
}

func (uc *CrowdfundUseCase) ClaimRefund(ctx context.Context, caller Caller) (*crowdfund.Response, error) {
	return uc.execute(ctx, "claim_refund", caller, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return uc.engine.ClaimRefund(ctx, repo, env)
	})
}

func (uc *CrowdfundUseCase) EndSale(ctx context.Context, caller Caller, limit *uint32) (*crowdfund.Response, error) {
	return uc.execute(ctx, "end_sale", caller, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return uc.engine.EndSale(ctx, repo, env, limit)
	})
}

func (uc *CrowdfundUseCase) execute(ctx context.Context, action string, caller Caller, op operation) (*crowdfund.Response, error) {
	metrics := monitoring.NewOperationMetrics(action)

	unlock, err := uc.locker.Lock(ctx, CallLockKey, uc.lockTTL)
	if err != nil {
		uc.log.Error("Failed to acquire call lock", "error", err, "action", action)
		metrics.RecordFailure(err)
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			uc.log.Error("Failed to release call lock", "error", err, "action", action)
		}
	}()

	var resp *crowdfund.Response
	for attempt := 0; attempt < uc.retryAttempts; attempt++ {
		resp, err = uc.attempt(ctx, action, caller, op)
		if err == nil || !errors.Is(err, domainErrors.ErrTransactionFailed) {
			break
		}

		uc.log.Warn("Operation attempt failed", "attempt", attempt+1, "error", err.Error(), "action", action)
		monitoring.RecordRetry(action)

		if attempt < uc.retryAttempts-1 {
			time.Sleep(time.Millisecond * time.Duration(50*(attempt+1)))
		}
	}

	if err != nil {
		metrics.RecordFailure(err)
		if domainErrors.ClassOf(err) == domainErrors.ClassInternal {
			uc.log.Error("Operation failed", "action", action, "sender", caller.Sender, "error", err)
		} else {
			uc.log.Info("Operation rejected", "action", action, "sender", caller.Sender, "error", err.Error())
		}
		return nil, err
	}

	metrics.RecordSuccess(resp)
	uc.refreshGauges(ctx)

	uc.log.Info("Operation completed",
		"action", action,
		"sender", caller.Sender,
		"messages", len(resp.Messages),
	)

	return resp, nil
}

func (uc *CrowdfundUseCase) attempt(ctx context.Context, action string, caller Caller, op operation) (_ *crowdfund.Response, err error) {
	txRepo, err := uc.repo.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = txRepo.RollbackTx(ctx)
		}
	}()

	block := uc.currentBlock()
	resp, err := op(ctx, txRepo, crowdfund.Env{
		Block:    block,
		Contract: uc.contract,
		Sender:   caller.Sender,
		Funds:    caller.Funds,
	})
	if err != nil {
		return nil, err
	}

	outbox := make([]*ports.OutboxMessage, 0, len(resp.Messages))
	for _, msg := range resp.Messages {
		queued, err := ports.NewOutboxMessage(action, msg, block.Time)
		if err != nil {
			return nil, fmt.Errorf("failed to create outbox message: %w", err)
		}
		outbox = append(outbox, queued)
	}
	if len(outbox) > 0 {
		if err = txRepo.AppendOutbox(ctx, outbox...); err != nil {
			return nil, fmt.Errorf("failed to queue messages: %w", err)
		}
	}

	if err = txRepo.CommitTx(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return resp, nil
}

func (uc *CrowdfundUseCase) refreshGauges(ctx context.Context) {
	available, err := uc.repo.CountAvailableTokens(ctx)
	if err != nil {
		uc.log.Warn("Failed to read inventory size", "error", err)
		return
	}
	var sold uint64
	if state, err := uc.repo.GetState(ctx); err == nil && state != nil {
		sold = state.AmountSold
	}
	monitoring.UpdateSaleCounts(available, sold)
}

func (uc *CrowdfundUseCase) currentBlock() crowdfund.BlockInfo {
	b := uc.blocks.Current()
	return crowdfund.BlockInfo{Height: b.Height, Time: b.Time}
}

func (uc *CrowdfundUseCase) Block() crowdfund.BlockInfo {
	return uc.currentBlock()
}

func (uc *CrowdfundUseCase) State(ctx context.Context) (*crowdfund.State, error) {
	return uc.engine.State(ctx, uc.repo)
}

func (uc *CrowdfundUseCase) Config(ctx context.Context) (*crowdfund.Config, error) {
	return uc.engine.Config(ctx, uc.repo)
}

func (uc *CrowdfundUseCase) Phase(ctx context.Context) (crowdfund.Phase, error) {
	return uc.engine.Phase(ctx, uc.repo, uc.currentBlock())
}

func (uc *CrowdfundUseCase) AvailableTokens(ctx context.Context, startAfter string, limit *uint32) ([]string, error) {
	return uc.engine.AvailableTokens(ctx, uc.repo, startAfter, limit)
}

func (uc *CrowdfundUseCase) IsTokenAvailable(ctx context.Context, tokenID string) (bool, error) {
	return uc.engine.IsTokenAvailable(ctx, uc.repo, tokenID)
}

func (uc *CrowdfundUseCase) Purchases(ctx context.Context, purchaser string) ([]crowdfund.Purchase, error) {
	return uc.engine.Purchases(ctx, uc.repo, purchaser)
}

func (uc *CrowdfundUseCase) OwnedTokens(ctx context.Context, owner, startAfter string, limit *uint32) ([]string, error) {
	return uc.engine.OwnedTokens(ctx, uc.repo, owner, startAfter, limit)
}
