package crowdfund

import (
	"context"
	"fmt"

	domainErrors "github.com/yuzvak/crowdfund-service/internal/domain/errors"
)

// EndSale settles a closed sale in batches of at most limit ledger entries
// (or records) and limit burned tokens per call. It must be called repeatedly
// until the response carries sale_cleared=true.
func (e *Engine) EndSale(ctx context.Context, repo Repository, env Env, limit *uint32) (*Response, error) {
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

	available, err := repo.CountAvailableTokens(ctx)
	if err != nil {
		return nil, err
	}
	if !state.IsExpired(env.Block) && available > 0 {
		return nil, domainErrors.ErrSaleNotEnded
	}

	batch := resolveLimit(limit)
	if batch == 0 {
		return nil, domainErrors.ErrLimitMustNotBeZero
	}

	registry, err := e.settlementRegistry(ctx, repo)
	if err != nil {
		return nil, err
	}

	if !state.MinimumReached() {
		return e.issueRefundsAndBurnTokens(ctx, repo, state, registry, batch)
	}
	return e.transferTokensAndSendFunds(ctx, repo, state, registry, batch)
}

func (e *Engine) issueRefundsAndBurnTokens(ctx context.Context, repo Repository, state *State, registry string, limit int) (*Response, error) {
	resp := NewResponse().AddAttribute("action", "issue_refunds_and_burn_tokens")

	entries, err := repo.GetLedgerEntries(ctx, limit)
	if err != nil {
		return nil, err
	}
	for _, entry := range entries {
		msgs, err := e.processRefund(ctx, repo, state, registry, entry.Purchaser, entry.Purchases)
		if err != nil {
			return nil, err
		}
		resp.AddMessages(msgs...)
	}

	burns, err := burnTokens(ctx, repo, registry, limit)
	if err != nil {
		return nil, err
	}
	resp.AddMessages(burns...).
		AddUintAttribute("refunded_purchasers", uint64(len(entries))).
		AddUintAttribute("burned_tokens", uint64(len(burns)))

	remaining, err := repo.GetLedgerEntries(ctx, 1)
	if err != nil {
		return nil, err
	}
	available, err := repo.CountAvailableTokens(ctx)
	if err != nil {
		return nil, err
	}

	if err := finish(ctx, repo, state, resp, len(remaining) == 0 && available == 0); err != nil {
		return nil, err
	}
	return resp, nil
}

func (e *Engine) transferTokensAndSendFunds(ctx context.Context, repo Repository, state *State, registry string, limit int) (*Response, error) {
	resp := NewResponse().AddAttribute("action", "transfer_tokens_and_send_funds")

	if state.AmountToSend > 0 {
		payout, err := e.payout(ctx, state)
		if err != nil {
			return nil, err
		}
		resp.AddMessages(payout).AddUintAttribute("amount_sent", state.AmountToSend)
		state.AmountToSend = 0
	}

	if state.AmountTransferred >= state.AmountSold {
		burns, err := burnTokens(ctx, repo, registry, limit)
		if err != nil {
			return nil, err
		}
		resp.AddMessages(burns...).AddUintAttribute("burned_tokens", uint64(len(burns)))

		available, err := repo.CountAvailableTokens(ctx)
		if err != nil {
			return nil, err
		}
		if err := finish(ctx, repo, state, resp, available == 0); err != nil {
			return nil, err
		}
		return resp, nil
	}

	transfers, fees, err := deliverPurchases(ctx, repo, state, registry, limit)
	if err != nil {
		return nil, err
	}
	merged, err := MergeBankSends(fees)
	if err != nil {
		return nil, err
	}
	resp.AddMessages(transfers...).
		AddMessages(merged...).
		AddUintAttribute("transferred_tokens", uint64(len(transfers)))

	done := false
	if state.AmountTransferred >= state.AmountSold {
		available, err := repo.CountAvailableTokens(ctx)
		if err != nil {
			return nil, err
		}
		done = available == 0
	}
	if err := finish(ctx, repo, state, resp, done); err != nil {
		return nil, err
	}
	return resp, nil
}

// deliverPurchases takes the next limit records in ledger order. One record
// past the window is read so a buyer whose records straddle the batch
// boundary keeps the undelivered tail of their entry.
func deliverPurchases(ctx context.Context, repo Repository, state *State, registry string, limit int) ([]Message, []Message, error) {
	window, err := repo.TakePurchases(ctx, limit+1)
	if err != nil {
		return nil, nil, err
	}
	if len(window) == 0 {
		return nil, nil, fmt.Errorf("%d sold tokens are undelivered but the ledger is empty: %w",
			state.AmountSold-state.AmountTransferred, domainErrors.ErrLedgerInconsistent)
	}

	var next *Purchase
	if len(window) > limit {
		next = &window[limit]
		window = window[:limit]
	}
	last := window[len(window)-1].Purchaser

	var (
		transfers   = make([]Message, 0, len(window))
		fees        []Message
		removed     = make(map[string]bool)
		deliveredOf = 0
	)
	for _, p := range window {
		transfers = append(transfers, RegistryTransfer(registry, p.Purchaser, p.TokenID))
		fees = append(fees, p.Msgs...)
		state.AmountTransferred++

		if p.Purchaser == last {
			deliveredOf++
			continue
		}
		if !removed[p.Purchaser] {
			if err := repo.RemovePurchases(ctx, p.Purchaser); err != nil {
				return nil, nil, err
			}
			removed[p.Purchaser] = true
		}
	}

	if next == nil || next.Purchaser != last {
		if err := repo.RemovePurchases(ctx, last); err != nil {
			return nil, nil, err
		}
		return transfers, fees, nil
	}

	entry, err := repo.GetPurchases(ctx, last)
	if err != nil {
		return nil, nil, err
	}
	if err := repo.SavePurchases(ctx, last, entry[deliveredOf:]); err != nil {
		return nil, nil, err
	}
	return transfers, fees, nil
}

func (e *Engine) payout(ctx context.Context, state *State) (Message, error) {
	addr, err := e.resolve(ctx, state.Recipient.Address)
	if err != nil {
		return Message{}, err
	}
	amount := NewCoin(state.AmountToSend, state.Price.Denom)
	if state.Recipient.HasMsg() {
		return Forward(Recipient{Address: addr, Msg: state.Recipient.Msg}, amount), nil
	}
	return BankSend(addr, amount), nil
}

func burnTokens(ctx context.Context, repo Repository, registry string, limit int) ([]Message, error) {
	tokenIDs, err := repo.GetAvailableTokens(ctx, "", limit)
	if err != nil {
		return nil, err
	}
	burns := make([]Message, 0, len(tokenIDs))
	for _, tokenID := range tokenIDs {
		if err := repo.RemoveAvailableToken(ctx, tokenID); err != nil {
			return nil, err
		}
		burns = append(burns, RegistryBurn(registry, tokenID))
	}
	return burns, nil
}

func finish(ctx context.Context, repo Repository, state *State, resp *Response, clear bool) error {
	if clear {
		resp.AddAttribute("sale_cleared", "true")
		return repo.ClearState(ctx)
	}
	resp.AddAttribute("sale_cleared", "false")
	return repo.SaveState(ctx, state)
}
