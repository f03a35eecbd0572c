package crowdfund

import (
	"context"

	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

// Purchase reserves up to numberOfTokens of the lowest available token ids
// for the sender. A nil numberOfTokens buys the sender's full remaining allowance.
func (e *Engine) Purchase(ctx context.Context, repo Repository, env Env, numberOfTokens *uint32) (*Response, error) {
	state, err := e.ongoingSale(ctx, repo, env)
	if err != nil {
		return nil, err
	}

	purchases, allowance, err := e.allowance(ctx, repo, env.Sender, state)
	if err != nil {
		return nil, err
	}

	wanted := allowance
	if numberOfTokens != nil {
		if *numberOfTokens == 0 {
			return nil, domainErrors.ErrInvalidNumberOfTokens
		}
		wanted = min(uint64(*numberOfTokens), allowance)
	}

	tokenIDs, err := repo.GetAvailableTokens(ctx, "", int(wanted))
	if err != nil {
		return nil, err
	}

	resp, err := e.purchaseTokens(ctx, repo, env, state, purchases, tokenIDs)
	if err != nil {
		return nil, err
	}

	resp.AddUintAttribute("number_of_tokens_wanted", wanted)
	return resp, nil
}

func (e *Engine) PurchaseByTokenID(ctx context.Context, repo Repository, env Env, tokenID string) (*Response, error) {
	state, err := e.ongoingSale(ctx, repo, env)
	if err != nil {
		return nil, err
	}
	if tokenID == "" {
		return nil, domainErrors.ErrInvalidTokenID
	}

	available, err := repo.IsTokenAvailable(ctx, tokenID)
	if err != nil {
		return nil, err
	}
	if !available {
		return nil, domainErrors.ErrTokenNotAvailable
	}

	purchases, _, err := e.allowance(ctx, repo, env.Sender, state)
	if err != nil {
		return nil, err
	}

	return e.purchaseTokens(ctx, repo, env, state, purchases, []string{tokenID})
}

func (e *Engine) ongoingSale(ctx context.Context, repo Repository, env Env) (*State, error) {
	state, err := repo.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil || state.IsExpired(env.Block) {
		return nil, domainErrors.ErrNoOngoingSale
	}
	return state, nil
}

func (e *Engine) allowance(ctx context.Context, repo Repository, purchaser string, state *State) ([]Purchase, uint64, error) {
	purchases, err := repo.GetPurchases(ctx, purchaser)
	if err != nil {
		return nil, 0, err
	}
	allowance := subSaturating(uint64(state.MaxAmountPerWallet), uint64(len(purchases)))
	if allowance == 0 {
		return nil, 0, domainErrors.ErrPurchaseLimitReached
	}
	return purchases, allowance, nil
}

func (e *Engine) purchaseTokens(ctx context.Context, repo Repository, env Env, state *State, purchases []Purchase, tokenIDs []string) (*Response, error) {
	if len(tokenIDs) == 0 {
		return nil, domainErrors.ErrAllTokensPurchased
	}
	units := uint64(len(tokenIDs))

	paid, err := amountOf(env.Funds, state.Price.Denom)
	if err != nil {
		return nil, err
	}
	cost, err := mulAmount(state.Price.Amount, units)
	if err != nil {
		return nil, err
	}
	if paid < cost {
		return nil, domainErrors.ErrInsufficientFunds
	}

	// Rates are computed once for the unit price and applied to every unit.
	fees, remainder, err := e.unitFees(ctx, env.Sender, state.Price)
	if err != nil {
		return nil, err
	}
	tax, err := taxAmount(fees, state.Price, remainder)
	if err != nil {
		return nil, err
	}

	for _, tokenID := range tokenIDs {
		if err := repo.RemoveAvailableToken(ctx, tokenID); err != nil {
			return nil, err
		}
		purchases = append(purchases, Purchase{
			TokenID:   tokenID,
			Purchaser: env.Sender,
			TaxAmount: tax,
			Msgs:      append([]Message(nil), fees...),
		})
		if state.AmountToSend, err = addAmount(state.AmountToSend, remainder.Amount); err != nil {
			return nil, err
		}
		if state.AmountSold, err = addAmount(state.AmountSold, 1); err != nil {
			return nil, err
		}
	}

	totalTax, err := mulAmount(tax, units)
	if err != nil {
		return nil, err
	}
	required, err := addAmount(cost, totalTax)
	if err != nil {
		return nil, err
	}
	if paid < required {
		return nil, domainErrors.ErrInsufficientFunds
	}

	if err := repo.SavePurchases(ctx, env.Sender, purchases); err != nil {
		return nil, err
	}
	if err := repo.SaveState(ctx, state); err != nil {
		return nil, err
	}

	resp := NewResponse().
		AddAttribute("action", "purchase").
		AddUintAttribute("number_of_tokens_purchased", units).
		AddUintAttribute("tax", totalTax)

	if change := paid - required; change > 0 {
		resp.AddMessages(BankSend(env.Sender, NewCoin(change, state.Price.Denom)))
	}

	return resp, nil
}

func (e *Engine) unitFees(ctx context.Context, payer string, price Coin) ([]Message, Coin, error) {
	if e.rates == nil {
		return nil, price, nil
	}
	result, err := e.rates.OnFundsTransfer(ctx, payer, price)
	if err != nil {
		return nil, Coin{}, err
	}
	if result == nil {
		return nil, price, nil
	}
	remainder := result.Remainder
	if remainder.Denom == "" {
		remainder.Denom = price.Denom
	}
	if remainder.Denom != price.Denom || remainder.Amount > price.Amount {
		return nil, Coin{}, domainErrors.ErrInvalidFunds
	}
	return result.Msgs, remainder, nil
}

// taxAmount is what fees cost on top of the price: everything the fee
// messages pay out minus what was deducted from the seller's share.
func taxAmount(fees []Message, price, remainder Coin) (uint64, error) {
	deducted := price.Amount - remainder.Amount
	var (
		total uint64
		err   error
	)
	for _, msg := range fees {
		if msg.Kind != MessageBankSend {
			continue
		}
		for _, c := range msg.Funds {
			if c.Denom != price.Denom {
				continue
			}
			if total, err = addAmount(total, c.Amount); err != nil {
				return 0, err
			}
		}
	}
	return subSaturating(total, deducted), nil
}

// ClaimRefund pays back the sender's purchases of a sale that expired below its minimum.
func (e *Engine) ClaimRefund(ctx context.Context, repo Repository, env Env) (*Response, error) {
	if err := nonPayable(env.Funds); err != nil {
		return nil, err
	}

	state, err := repo.GetState(ctx)
	if err != nil {
		return nil, err
	}
	if state == nil {
		return nil, domainErrors.ErrNoOngoingSale
	}
	if !state.IsExpired(env.Block) {
		return nil, domainErrors.ErrSaleNotEnded
	}
	if state.MinimumReached() {
		return nil, domainErrors.ErrMinSalesExceeded
	}

	purchases, err := repo.GetPurchases(ctx, env.Sender)
	if err != nil {
		return nil, err
	}
	if len(purchases) == 0 {
		return nil, domainErrors.ErrNoPurchases
	}

	registry, err := e.settlementRegistry(ctx, repo)
	if err != nil {
		return nil, err
	}

	msgs, err := e.processRefund(ctx, repo, state, registry, env.Sender, purchases)
	if err != nil {
		return nil, err
	}
	if err := repo.SaveState(ctx, state); err != nil {
		return nil, err
	}

	return NewResponse().
		AddAttribute("action", "claim_refund").
		AddUintAttribute("refunded_tokens", uint64(len(purchases))).
		AddMessages(msgs...), nil
}

// processRefund removes purchaser's ledger entry and returns one bank send of
// price plus tax for every record, followed by a burn of each refunded token.
func (e *Engine) processRefund(ctx context.Context, repo Repository, state *State, registry, purchaser string, purchases []Purchase) ([]Message, error) {
	var (
		amount uint64
		burns  = make([]Message, 0, len(purchases))
		err    error
	)
	for _, p := range purchases {
		if amount, err = addAmount(amount, state.Price.Amount); err != nil {
			return nil, err
		}
		if amount, err = addAmount(amount, p.TaxAmount); err != nil {
			return nil, err
		}
		burns = append(burns, RegistryBurn(registry, p.TokenID))
	}

	if err := repo.RemovePurchases(ctx, purchaser); err != nil {
		return nil, err
	}
	state.AmountRefunded += uint64(len(purchases))

	msgs := make([]Message, 0, len(burns)+1)
	if amount > 0 {
		msgs = append(msgs, BankSend(purchaser, NewCoin(amount, state.Price.Denom)))
	}
	return append(msgs, burns...), nil
}

func (e *Engine) settlementRegistry(ctx context.Context, repo Repository) (string, error) {
	config, err := repo.GetConfig(ctx)
	if err != nil {
		return "", err
	}
	return e.registryAddress(ctx, config)
}
