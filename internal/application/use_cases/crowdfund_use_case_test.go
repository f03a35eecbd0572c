package use_cases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzvak/crowdfund-service/internal/application/ports"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/persistence/memory"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/registry"
	"github.com/yuzvak/crowdfund-service/internal/pkg/clock"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

var (
	genesis = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	one     = uint32(1)
)

// flakyRepo fails the next commits with ErrTransactionFailed.
type flakyRepo struct {
	ports.CrowdfundRepository
	mu       sync.Mutex
	failures int
	commits  int
}

func (r *flakyRepo) BeginTx(ctx context.Context) (ports.CrowdfundRepository, error) {
	tx, err := r.CrowdfundRepository.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &flakyTx{CrowdfundRepository: tx, parent: r}, nil
}

type flakyTx struct {
	ports.CrowdfundRepository
	parent *flakyRepo
}

func (tx *flakyTx) CommitTx(ctx context.Context) error {
	tx.parent.mu.Lock()
	tx.parent.commits++
	fail := tx.parent.failures > 0
	if fail {
		tx.parent.failures--
	}
	tx.parent.mu.Unlock()

	if fail {
		_ = tx.CrowdfundRepository.RollbackTx(ctx)
		return domainErrors.ErrTransactionFailed
	}
	return tx.CrowdfundRepository.CommitTx(ctx)
}

type testEnv struct {
	uc    *CrowdfundUseCase
	store *memory.Store
	repo  *flakyRepo
	clock *clock.MockClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	repo := &flakyRepo{CrowdfundRepository: memory.NewCrowdfundRepository(store)}
	mock := clock.NewMockClock(genesis)
	engine := crowdfund.NewEngine(nil, nil, registry.NewMemoryRegistry())

	uc := NewCrowdfundUseCase(repo, memory.NewLocker(), engine, clock.NewBlockOracle(mock, genesis, 1, time.Second), logger.Nop(), Options{
		Contract:      "crowdfund",
		RetryAttempts: 3,
	})

	_, err := uc.Instantiate(context.Background(), Caller{Sender: "owner"}, crowdfund.InstantiateParams{TokenAddress: "registry"})
	require.NoError(t, err)

	return &testEnv{uc: uc, store: store, repo: repo, clock: mock}
}

func (e *testEnv) startSale(t *testing.T, tokens int, minSold uint64) {
	t.Helper()
	ctx := context.Background()

	mints := make([]crowdfund.MintRequest, 0, tokens)
	for i := 0; i < tokens; i++ {
		mints = append(mints, crowdfund.MintRequest{TokenID: string(rune('a' + i))})
	}
	_, err := e.uc.Mint(ctx, Caller{Sender: "owner"}, mints)
	require.NoError(t, err)

	max := uint32(5)
	_, err = e.uc.StartSale(ctx, Caller{Sender: "owner"}, crowdfund.StartSaleParams{
		Expiration:         crowdfund.ExpiresAtTime(genesis.Add(time.Hour)),
		Price:              crowdfund.NewCoin(10, "uusd"),
		MinTokensSold:      minSold,
		MaxAmountPerWallet: &max,
		Recipient:          crowdfund.Recipient{Address: "recipient"},
	})
	require.NoError(t, err)
}

func TestUseCaseQueuesEmittedMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.startSale(t, 3, 1)

	before := len(env.store.Outbox())
	resp, err := env.uc.Purchase(ctx, Caller{Sender: "alice", Funds: []crowdfund.Coin{crowdfund.NewCoin(25, "uusd")}}, &one)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)

	outbox := env.store.Outbox()
	require.Len(t, outbox, before+1)
	queued := outbox[len(outbox)-1]
	assert.Equal(t, "purchase", queued.Action)
	assert.Equal(t, ports.OutboxPending, queued.Status)
	assert.Equal(t, resp.Messages[0], queued.Message)
	assert.NotEmpty(t, queued.ID)
}

func TestUseCaseRejectedCallLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.startSale(t, 3, 1)

	before := len(env.store.Outbox())
	_, err := env.uc.Purchase(ctx, Caller{Sender: "alice", Funds: []crowdfund.Coin{crowdfund.NewCoin(5, "uusd")}}, &one)
	require.ErrorIs(t, err, domainErrors.ErrInsufficientFunds)

	assert.Len(t, env.store.Outbox(), before)
	state, err := env.uc.State(ctx)
	require.NoError(t, err)
	assert.Zero(t, state.AmountSold)
}

func TestUseCaseRetriesFailedCommits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.startSale(t, 3, 1)

	env.repo.failures = 2
	env.repo.commits = 0
	_, err := env.uc.Purchase(ctx, Caller{Sender: "alice", Funds: []crowdfund.Coin{crowdfund.NewCoin(10, "uusd")}}, &one)
	require.NoError(t, err)
	assert.Equal(t, 3, env.repo.commits)

	purchases, err := env.uc.Purchases(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, purchases, 1, "retried call applies exactly once")

	env.repo.failures = 3
	_, err = env.uc.Purchase(ctx, Caller{Sender: "bob", Funds: []crowdfund.Coin{crowdfund.NewCoin(10, "uusd")}}, &one)
	assert.ErrorIs(t, err, domainErrors.ErrTransactionFailed)
}

func TestUseCaseFollowsBlockClock(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.startSale(t, 2, 5)

	phase, err := env.uc.Phase(ctx)
	require.NoError(t, err)
	assert.Equal(t, crowdfund.PhaseActive, phase)

	_, err = env.uc.EndSale(ctx, Caller{Sender: "keeper"}, nil)
	assert.ErrorIs(t, err, domainErrors.ErrSaleNotEnded)

	env.clock.Advance(2 * time.Hour)
	assert.Equal(t, uint64(1+7200), env.uc.Block().Height)

	phase, err = env.uc.Phase(ctx)
	require.NoError(t, err)
	assert.Equal(t, crowdfund.PhaseClosing, phase)

	resp, err := env.uc.EndSale(ctx, Caller{Sender: "keeper"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "true", resp.Attribute("sale_cleared"))

	_, err = env.uc.State(ctx)
	assert.ErrorIs(t, err, domainErrors.ErrNoOngoingSale)
}

func TestUseCaseSerializesConcurrentPurchases(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.startSale(t, 10, 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			buyer := "buyer-" + string(rune('a'+i))
			_, _ = env.uc.Purchase(ctx, Caller{Sender: buyer, Funds: []crowdfund.Coin{crowdfund.NewCoin(10, "uusd")}}, &one)
		}(i)
	}
	wg.Wait()

	state, err := env.uc.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), state.AmountSold)

	available, err := env.uc.AvailableTokens(ctx, "", nil)
	require.NoError(t, err)
	assert.Empty(t, available)
}
