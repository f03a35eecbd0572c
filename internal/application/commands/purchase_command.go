package commands

import (
	"context"

	"github.com/yuzvak/crowdfund-service/internal/application/use_cases"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

type PurchaseCommand struct {
	Sender         string
	Funds          []crowdfund.Coin
	NumberOfTokens *uint32
	// TokenID selects a specific token. NumberOfTokens is ignored when set.
	TokenID string
}

type ClaimRefundCommand struct {
	Sender string
	Funds  []crowdfund.Coin
}

type PurchaseHandler struct {
	crowdfundUseCase *use_cases.CrowdfundUseCase
	log              *logger.Logger
}

func NewPurchaseHandler(
	crowdfundUseCase *use_cases.CrowdfundUseCase,
	log *logger.Logger,
) *PurchaseHandler {
	return &PurchaseHandler{
		crowdfundUseCase: crowdfundUseCase,
		log:              log,
	}
}

func (h *PurchaseHandler) Handle(ctx context.Context, cmd PurchaseCommand) (*crowdfund.Response, error) {
	caller := use_cases.Caller{Sender: cmd.Sender, Funds: cmd.Funds}

	h.log.Info("Processing purchase request", "sender", cmd.Sender, "token_id", cmd.TokenID)

	var (
		resp *crowdfund.Response
		err  error
	)
	if cmd.TokenID != "" {
		resp, err = h.crowdfundUseCase.PurchaseByTokenID(ctx, caller, cmd.TokenID)
	} else {
		resp, err = h.crowdfundUseCase.Purchase(ctx, caller, cmd.NumberOfTokens)
	}
	if err != nil {
		return nil, err
	}

	h.log.Info("Purchase completed successfully",
		"sender", cmd.Sender,
		"number_of_tokens_purchased", resp.Attribute("number_of_tokens_purchased"),
		"tax", resp.Attribute("tax"),
	)

	return resp, nil
}

func (h *PurchaseHandler) HandleClaimRefund(ctx context.Context, cmd ClaimRefundCommand) (*crowdfund.Response, error) {
	resp, err := h.crowdfundUseCase.ClaimRefund(ctx, use_cases.Caller{Sender: cmd.Sender, Funds: cmd.Funds})
	if err != nil {
		return nil, err
	}

	h.log.Info("Refund claimed", "sender", cmd.Sender, "refunded_tokens", resp.Attribute("refunded_tokens"))
	return resp, nil
}
