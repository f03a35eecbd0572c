package crowdfund_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/persistence/memory"
)

const (
	owner     = "owner"
	contract  = "crowdfund"
	registry  = "registry"
	recipient = "recipient"
	taxman    = "taxman"
	denom     = "uusd"

	startHeight = 100
	endHeight   = 200
)

// feeRates charges a fixed additive fee on top of the price and a fixed
// deductive fee taken out of the seller's share, both paid to taxman.
type feeRates struct {
	additive  uint64
	deductive uint64
}

func (r feeRates) OnFundsTransfer(ctx context.Context, payer string, amount crowdfund.Coin) (*crowdfund.RatesResult, error) {
	var msgs []crowdfund.Message
	if r.additive > 0 {
		msgs = append(msgs, crowdfund.BankSend(taxman, crowdfund.NewCoin(r.additive, amount.Denom)))
	}
	if r.deductive > 0 {
		msgs = append(msgs, crowdfund.BankSend(taxman, crowdfund.NewCoin(r.deductive, amount.Denom)))
	}
	return &crowdfund.RatesResult{
		Msgs:      msgs,
		Remainder: crowdfund.NewCoin(amount.Amount-r.deductive, amount.Denom),
	}, nil
}

type stubRegistry struct {
	owned map[string][]string
}

func (r *stubRegistry) Mint(ctx context.Context, contract, tokenID, owner, tokenURI string, extension json.RawMessage) error {
	return nil
}

func (r *stubRegistry) Burn(ctx context.Context, contract, tokenID string) error { return nil }

func (r *stubRegistry) TransferTo(ctx context.Context, contract, recipient, tokenID string) error {
	return nil
}

func (r *stubRegistry) Tokens(ctx context.Context, contract, owner, startAfter string, limit int) ([]string, error) {
	return r.owned[owner], nil
}

type fixture struct {
	t      *testing.T
	engine *crowdfund.Engine
	store  *memory.Store
	repo   *memory.CrowdfundRepository
	block  crowdfund.BlockInfo
}

func newFixture(t *testing.T, rates crowdfund.Rates) *fixture {
	t.Helper()

	store := memory.NewStore()
	f := &fixture{
		t:      t,
		engine: crowdfund.NewEngine(rates, nil, &stubRegistry{}),
		store:  store,
		repo:   memory.NewCrowdfundRepository(store),
		block: crowdfund.BlockInfo{
			Height: startHeight,
			Time:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	_, err := f.exec(owner, nil, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return f.engine.Instantiate(ctx, repo, env, crowdfund.InstantiateParams{TokenAddress: registry})
	})
	require.NoError(t, err)
	return f
}

type operation func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error)

// exec runs op in its own transaction and commits only when it succeeds.
func (f *fixture) exec(sender string, funds []crowdfund.Coin, op operation) (*crowdfund.Response, error) {
	ctx := context.Background()

	tx, err := f.repo.BeginTx(ctx)
	require.NoError(f.t, err)

	resp, err := op(ctx, tx, crowdfund.Env{
		Block:    f.block,
		Contract: contract,
		Sender:   sender,
		Funds:    funds,
	})
	if err != nil {
		require.NoError(f.t, tx.RollbackTx(ctx))
		return nil, err
	}
	require.NoError(f.t, tx.CommitTx(ctx))
	return resp, nil
}

func (f *fixture) mint(ids ...string) *crowdfund.Response {
	f.t.Helper()
	reqs := make([]crowdfund.MintRequest, 0, len(ids))
	for _, id := range ids {
		reqs = append(reqs, crowdfund.MintRequest{TokenID: id})
	}
	resp, err := f.exec(owner, nil, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return f.engine.Mint(ctx, repo, env, reqs)
	})
	require.NoError(f.t, err)
	return resp
}

func (f *fixture) mintRange(n int) {
	f.t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		ids = append(ids, tokenID(i))
		if len(ids) == crowdfund.MaxMintLimit {
			f.mint(ids...)
			ids = ids[:0]
		}
	}
	if len(ids) > 0 {
		f.mint(ids...)
	}
}

func (f *fixture) startSale(price, minSold uint64, maxPerWallet uint32) {
	f.t.Helper()
	_, err := f.exec(owner, nil, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return f.engine.StartSale(ctx, repo, env, crowdfund.StartSaleParams{
			Expiration:         crowdfund.ExpiresAtHeight(endHeight),
			Price:              crowdfund.NewCoin(price, denom),
			MinTokensSold:      minSold,
			MaxAmountPerWallet: &maxPerWallet,
			Recipient:          crowdfund.Recipient{Address: recipient},
		})
	})
	require.NoError(f.t, err)
}

func (f *fixture) purchase(buyer string, n *uint32, paid uint64) (*crowdfund.Response, error) {
	return f.exec(buyer, coins(paid), func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return f.engine.Purchase(ctx, repo, env, n)
	})
}

func (f *fixture) endSale(limit *uint32) (*crowdfund.Response, error) {
	return f.exec("keeper", nil, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return f.engine.EndSale(ctx, repo, env, limit)
	})
}

func (f *fixture) expire() {
	f.block.Height = endHeight
	f.block.Time = f.block.Time.Add(time.Hour)
}

func (f *fixture) state() *crowdfund.State {
	f.t.Helper()
	state, err := f.repo.GetState(context.Background())
	require.NoError(f.t, err)
	return state
}

func (f *fixture) available() uint64 {
	f.t.Helper()
	n, err := f.repo.CountAvailableTokens(context.Background())
	require.NoError(f.t, err)
	return n
}

func coins(amount uint64) []crowdfund.Coin {
	if amount == 0 {
		return nil
	}
	return []crowdfund.Coin{crowdfund.NewCoin(amount, denom)}
}

func u32(v uint32) *uint32 { return &v }

func tokenID(i int) string { return fmt.Sprintf("token-%04d", i) }

func buyerID(i int) string { return fmt.Sprintf("buyer-%04d", i) }

// paidTo sums the bank sends and forwards addressed to addr in msgs.
func paidTo(msgs []crowdfund.Message, addr string) uint64 {
	var total uint64
	for _, m := range msgs {
		if (m.Kind != crowdfund.MessageBankSend && m.Kind != crowdfund.MessageForward) || m.To != addr {
			continue
		}
		for _, c := range m.Funds {
			total += c.Amount
		}
	}
	return total
}

func totalPaid(msgs []crowdfund.Message) uint64 {
	var total uint64
	for _, m := range msgs {
		if m.Kind != crowdfund.MessageBankSend && m.Kind != crowdfund.MessageForward {
			continue
		}
		for _, c := range m.Funds {
			total += c.Amount
		}
	}
	return total
}

func tokenIDs(msgs []crowdfund.Message) []string {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.TokenID)
	}
	return ids
}
