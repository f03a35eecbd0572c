package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzvak/crowdfund-service/internal/application/ports"
	"github.com/yuzvak/crowdfund-service/internal/application/use_cases"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/persistence/memory"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/registry"
	"github.com/yuzvak/crowdfund-service/internal/pkg/clock"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

const (
	contract      = "crowdfund"
	tokenContract = "registry"
)

var genesis = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []*ports.OutboxMessage
	fail error
}

func (p *recordingPublisher) Publish(ctx context.Context, msg *ports.OutboxMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		err := p.fail
		p.fail = nil
		return err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

type stack struct {
	uc         *use_cases.CrowdfundUseCase
	repo       *memory.CrowdfundRepository
	registry   *registry.MemoryRegistry
	publisher  *recordingPublisher
	dispatcher *OutboxDispatcher
	clock      *clock.MockClock
}

func newStack(t *testing.T) *stack {
	t.Helper()

	repo := memory.NewCrowdfundRepository(memory.NewStore())
	reg := registry.NewMemoryRegistry()
	mock := clock.NewMockClock(genesis)
	engine := crowdfund.NewEngine(nil, nil, reg)
	uc := use_cases.NewCrowdfundUseCase(repo, memory.NewLocker(), engine,
		clock.NewBlockOracle(mock, genesis, 1, time.Second), logger.Nop(),
		use_cases.Options{Contract: contract})

	publisher := &recordingPublisher{}
	s := &stack{
		uc:         uc,
		repo:       repo,
		registry:   reg,
		publisher:  publisher,
		dispatcher: NewOutboxDispatcher(repo, reg, publisher, logger.Nop(), DispatcherOptions{BatchSize: 100, MaxAttempts: 3}),
		clock:      mock,
	}

	ctx := context.Background()
	_, err := uc.Instantiate(ctx, use_cases.Caller{Sender: "owner"}, crowdfund.InstantiateParams{TokenAddress: tokenContract})
	require.NoError(t, err)

	mints := []crowdfund.MintRequest{{TokenID: "t1"}, {TokenID: "t2"}, {TokenID: "t3"}, {TokenID: "t4"}, {TokenID: "t5"}}
	_, err = uc.Mint(ctx, use_cases.Caller{Sender: "owner"}, mints)
	require.NoError(t, err)

	max := uint32(2)
	_, err = uc.StartSale(ctx, use_cases.Caller{Sender: "owner"}, crowdfund.StartSaleParams{
		Expiration:         crowdfund.ExpiresAtTime(genesis.Add(time.Hour)),
		Price:              crowdfund.NewCoin(10, "uusd"),
		MinTokensSold:      2,
		MaxAmountPerWallet: &max,
		Recipient:          crowdfund.Recipient{Address: "recipient"},
	})
	require.NoError(t, err)
	return s
}

func (s *stack) buy(t *testing.T, buyer string, n uint32) {
	t.Helper()
	_, err := s.uc.Purchase(context.Background(), use_cases.Caller{
		Sender: buyer,
		Funds:  []crowdfund.Coin{crowdfund.NewCoin(uint64(n)*10, "uusd")},
	}, &n)
	require.NoError(t, err)
}

func TestKeeperSettlesClosingSale(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	s.buy(t, "alice", 2)
	s.buy(t, "bob", 1)

	keeper := NewSettlementKeeper(s.uc, logger.Nop(), KeeperOptions{BatchLimit: 1})

	cleared, err := keeper.Settle(ctx)
	require.NoError(t, err)
	assert.False(t, cleared, "nothing to do while the sale is active")

	s.clock.Advance(2 * time.Hour)
	cleared, err = keeper.Settle(ctx)
	require.NoError(t, err)
	assert.True(t, cleared)

	phase, err := s.uc.Phase(ctx)
	require.NoError(t, err)
	assert.Equal(t, crowdfund.PhaseIdle, phase)

	_, err = s.dispatcher.DispatchOnce(ctx)
	require.NoError(t, err)

	owned, err := s.registry.Tokens(ctx, tokenContract, "alice", "", 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1", "t2"}, owned)
	owner, ok := s.registry.OwnerOf(tokenContract, "t3")
	require.True(t, ok)
	assert.Equal(t, "bob", owner)
	for _, id := range []string{"t4", "t5"} {
		_, ok := s.registry.OwnerOf(tokenContract, id)
		assert.False(t, ok, "unsold %s is burned", id)
	}

	var paid uint64
	for _, msg := range s.publisher.msgs {
		if msg.Message.Kind == crowdfund.MessageBankSend && msg.Message.To == "recipient" {
			paid += msg.Message.Funds[0].Amount
		}
	}
	assert.Equal(t, uint64(30), paid)
}

func TestKeeperRefundsFailedSale(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)
	s.buy(t, "alice", 1)
	s.clock.Advance(2 * time.Hour)

	keeper := NewSettlementKeeper(s.uc, logger.Nop(), KeeperOptions{BatchLimit: 2})
	cleared, err := keeper.Settle(ctx)
	require.NoError(t, err)
	assert.True(t, cleared)

	_, err = s.dispatcher.DispatchOnce(ctx)
	require.NoError(t, err)

	for _, id := range []string{"t1", "t2", "t3", "t4", "t5"} {
		_, ok := s.registry.OwnerOf(tokenContract, id)
		assert.False(t, ok)
	}

	var refunded uint64
	for _, msg := range s.publisher.msgs {
		if msg.Message.Kind == crowdfund.MessageBankSend && msg.Message.To == "alice" {
			refunded += msg.Message.Funds[0].Amount
		}
	}
	assert.Equal(t, uint64(10), refunded)
}

func TestDispatcherStopsAtFailureAndRetries(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	s.registry.FailNext(crowdfund.MessageRegistryMint, errors.New("registry unavailable"))

	published, err := s.dispatcher.DispatchOnce(ctx)
	require.Error(t, err)
	assert.Zero(t, published)
	_, ok := s.registry.OwnerOf(tokenContract, "t1")
	assert.False(t, ok)

	pending, err := s.repo.PendingOutbox(ctx, 10, 3)
	require.NoError(t, err)
	require.Len(t, pending, 5)
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "registry unavailable", pending[0].LastError)

	published, err = s.dispatcher.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, published)

	owner, ok := s.registry.OwnerOf(tokenContract, "t1")
	require.True(t, ok)
	assert.Equal(t, contract, owner)

	pending, err = s.repo.PendingOutbox(ctx, 10, 3)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestDispatcherRedeliveryIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	s.publisher.fail = errors.New("stream unavailable")
	_, err := s.dispatcher.DispatchOnce(ctx)
	require.Error(t, err)

	_, ok := s.registry.OwnerOf(tokenContract, "t1")
	require.True(t, ok, "registry applied before publishing failed")

	published, err := s.dispatcher.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, published)
	assert.Len(t, s.publisher.msgs, 5)
}

func TestDispatcherGivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	s := newStack(t)

	for i := 0; i < 3; i++ {
		s.registry.FailNext(crowdfund.MessageRegistryMint, errors.New("rejected"))
		_, err := s.dispatcher.DispatchOnce(ctx)
		require.Error(t, err)
	}

	published, err := s.dispatcher.DispatchOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, published, "the dead message no longer blocks the rest")
}
