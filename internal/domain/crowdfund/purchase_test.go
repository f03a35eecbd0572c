package crowdfund_test

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

func TestPurchase(t *testing.T) {
	t.Run("reserves the lowest ids and records tax", func(t *testing.T) {
		f := newFixture(t, feeRates{additive: 1})
		f.mint("token-3", "token-1", "token-2")
		f.startSale(10, 1, 5)

		resp, err := f.purchase("alice", u32(2), 22)
		require.NoError(t, err)
		assert.Equal(t, "2", resp.Attribute("number_of_tokens_purchased"))
		assert.Equal(t, "2", resp.Attribute("tax"))
		assert.Empty(t, resp.Messages, "exact payment leaves no change")

		purchases, err := f.engine.Purchases(context.Background(), f.repo, "alice")
		require.NoError(t, err)
		require.Len(t, purchases, 2)
		assert.Equal(t, "token-1", purchases[0].TokenID)
		assert.Equal(t, "token-2", purchases[1].TokenID)
		assert.Equal(t, uint64(1), purchases[0].TaxAmount)
		require.Len(t, purchases[0].Msgs, 1)
		assert.Equal(t, taxman, purchases[0].Msgs[0].To)

		state := f.state()
		assert.Equal(t, uint64(2), state.AmountSold)
		assert.Equal(t, uint64(20), state.AmountToSend)
		assert.Equal(t, uint64(1), f.available())
	})

	t.Run("refunds overpayment", func(t *testing.T) {
		f := newFixture(t, feeRates{additive: 1})
		f.mint("token-1", "token-2")
		f.startSale(10, 1, 5)

		resp, err := f.purchase("alice", u32(1), 50)
		require.NoError(t, err)
		require.Len(t, resp.Messages, 1)
		assert.Equal(t, crowdfund.BankSend("alice", crowdfund.NewCoin(39, denom)), resp.Messages[0])
	})

	t.Run("buys the remaining allowance when no count is given", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mintRange(10)
		f.startSale(10, 1, 3)

		_, err := f.purchase("alice", u32(1), 10)
		require.NoError(t, err)
		resp, err := f.purchase("alice", nil, 100)
		require.NoError(t, err)
		assert.Equal(t, "2", resp.Attribute("number_of_tokens_purchased"))
		assert.Equal(t, uint64(80), paidTo(resp.Messages, "alice"))
	})

	t.Run("caps at what is left", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mint("token-1", "token-2")
		f.startSale(10, 1, 5)

		resp, err := f.purchase("alice", u32(5), 50)
		require.NoError(t, err)
		assert.Equal(t, "2", resp.Attribute("number_of_tokens_purchased"))
		assert.Equal(t, uint64(30), paidTo(resp.Messages, "alice"))

		_, err = f.purchase("bob", u32(1), 10)
		assert.ErrorIs(t, err, domainErrors.ErrAllTokensPurchased)
	})

	t.Run("purchase limit", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mintRange(5)
		f.startSale(10, 1, 1)

		resp, err := f.purchase("alice", u32(2), 20)
		require.NoError(t, err)
		assert.Equal(t, "1", resp.Attribute("number_of_tokens_purchased"))

		_, err = f.purchase("alice", u32(1), 10)
		assert.ErrorIs(t, err, domainErrors.ErrPurchaseLimitReached)
	})

	t.Run("rejects", func(t *testing.T) {
		f := newFixture(t, feeRates{additive: 1})
		f.mintRange(5)
		f.startSale(10, 1, 5)

		cases := []struct {
			name  string
			n     *uint32
			funds []crowdfund.Coin
			want  error
		}{
			{"zero tokens", u32(0), coins(10), domainErrors.ErrInvalidNumberOfTokens},
			{"no funds", u32(1), nil, domainErrors.ErrInsufficientFunds},
			{"below price", u32(2), coins(19), domainErrors.ErrInsufficientFunds},
			{"price without tax", u32(2), coins(21), domainErrors.ErrInsufficientFunds},
			{"wrong denom", u32(1), []crowdfund.Coin{crowdfund.NewCoin(100, "uluna")}, domainErrors.ErrInvalidFunds},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				_, err := f.exec("alice", tc.funds, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
					return f.engine.Purchase(ctx, repo, env, tc.n)
				})
				assert.ErrorIs(t, err, tc.want)
			})
		}

		assert.Equal(t, uint64(5), f.available(), "failed calls leave no trace")
		assert.Zero(t, f.state().AmountSold)
	})

	t.Run("no ongoing sale", func(t *testing.T) {
		f := newFixture(t, nil)
		f.mintRange(2)

		_, err := f.purchase("alice", nil, 10)
		assert.ErrorIs(t, err, domainErrors.ErrNoOngoingSale)

		f.startSale(10, 1, 1)
		f.expire()
		_, err = f.purchase("alice", nil, 10)
		assert.ErrorIs(t, err, domainErrors.ErrNoOngoingSale)
	})
}

func TestPurchaseByTokenID(t *testing.T) {
	f := newFixture(t, nil)
	f.mint("token-1", "token-2", "token-3")
	f.startSale(10, 1, 2)

	buy := func(buyer, id string, paid uint64) (*crowdfund.Response, error) {
		return f.exec(buyer, coins(paid), func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
			return f.engine.PurchaseByTokenID(ctx, repo, env, id)
		})
	}

	_, err := buy("alice", "token-2", 10)
	require.NoError(t, err)

	_, err = buy("bob", "token-2", 10)
	assert.ErrorIs(t, err, domainErrors.ErrTokenNotAvailable)

	_, err = buy("bob", "token-9", 10)
	assert.ErrorIs(t, err, domainErrors.ErrTokenNotAvailable)

	_, err = buy("alice", "token-3", 10)
	require.NoError(t, err)

	_, err = buy("alice", "token-1", 10)
	assert.ErrorIs(t, err, domainErrors.ErrPurchaseLimitReached)

	ids, err := f.engine.AvailableTokens(context.Background(), f.repo, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"token-1"}, ids)
}

func TestPurchaseNeverExceedsWalletLimit(t *testing.T) {
	const maxPerWallet = 3

	f := newFixture(t, nil)
	f.mintRange(40)
	f.startSale(10, 1, maxPerWallet)

	wants := []uint32{1, 2, 5, 1, 3, 1, 2}
	for _, buyer := range []string{"alice", "bob"} {
		for _, n := range wants {
			_, err := f.purchase(buyer, u32(n), uint64(n)*10)
			if err != nil {
				assert.ErrorIs(t, err, domainErrors.ErrPurchaseLimitReached)
			}
			purchases, err := f.engine.Purchases(context.Background(), f.repo, buyer)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(purchases), maxPerWallet)
		}
	}
}

func TestPurchaseAccounting(t *testing.T) {
	const minted = 30

	f := newFixture(t, feeRates{additive: 2, deductive: 1})
	f.mintRange(minted)
	f.startSale(10, 1, 4)

	for i := 0; i < 12; i++ {
		n := uint32(i%4 + 1)
		_, err := f.purchase(buyerID(i%5), u32(n), uint64(n)*12)
		if err != nil {
			require.ErrorIs(t, err, domainErrors.ErrPurchaseLimitReached)
		}

		state := f.state()
		entries, err := f.repo.GetLedgerEntries(context.Background(), crowdfund.MaxLimit)
		require.NoError(t, err)

		var outstanding uint64
		for _, e := range entries {
			outstanding += uint64(len(e.Purchases))
		}
		assert.Equal(t, state.AmountSold, outstanding)
		assert.Equal(t, uint64(minted), f.available()+state.AmountSold)
	}
}

func TestPurchaseRejectsOverflowingFees(t *testing.T) {
	f := newFixture(t, feeRates{additive: math.MaxUint64, deductive: 1})
	f.mintRange(2)
	f.startSale(10, 1, 1)

	_, err := f.purchase("alice", nil, 10)
	require.ErrorIs(t, err, domainErrors.ErrAmountOverflow)

	assert.Zero(t, f.state().AmountSold)
	assert.Equal(t, uint64(2), f.available())
}

func TestClaimRefund(t *testing.T) {
	f := newFixture(t, feeRates{additive: 1})
	f.mintRange(5)
	f.startSale(10, 3, 2)

	claim := func(buyer string, funds []crowdfund.Coin) (*crowdfund.Response, error) {
		return f.exec(buyer, funds, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
			return f.engine.ClaimRefund(ctx, repo, env)
		})
	}

	_, err := f.purchase("alice", u32(2), 22)
	require.NoError(t, err)

	_, err = claim("alice", nil)
	assert.ErrorIs(t, err, domainErrors.ErrSaleNotEnded)

	f.expire()

	_, err = claim("alice", coins(1))
	assert.ErrorIs(t, err, domainErrors.ErrNonPayable)

	_, err = claim("bob", nil)
	assert.ErrorIs(t, err, domainErrors.ErrNoPurchases)

	resp, err := claim("alice", nil)
	require.NoError(t, err)
	assert.Equal(t, uint64(22), paidTo(resp.Messages, "alice"))
	assert.Equal(t, []string{tokenID(0), tokenID(1)}, tokenIDs(resp.MessagesOf(crowdfund.MessageRegistryBurn)))
	assert.Equal(t, uint64(2), f.state().AmountRefunded)

	_, err = claim("alice", nil)
	assert.ErrorIs(t, err, domainErrors.ErrNoPurchases)
}

func TestClaimRefundAfterSuccessfulSale(t *testing.T) {
	f := newFixture(t, nil)
	f.mintRange(5)
	f.startSale(10, 1, 2)

	_, err := f.purchase("alice", u32(1), 10)
	require.NoError(t, err)
	f.expire()

	_, err = f.exec("alice", nil, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return f.engine.ClaimRefund(ctx, repo, env)
	})
	assert.ErrorIs(t, err, domainErrors.ErrMinSalesExceeded)
}

func TestClaimRefundWithoutSale(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.exec("alice", nil, func(ctx context.Context, repo crowdfund.Repository, env crowdfund.Env) (*crowdfund.Response, error) {
		return f.engine.ClaimRefund(ctx, repo, env)
	})
	assert.ErrorIs(t, err, domainErrors.ErrNoOngoingSale)
}
