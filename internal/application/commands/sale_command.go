package commands

import (
	"context"

	"github.com/yuzvak/crowdfund-service/internal/application/use_cases"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

type InstantiateCommand struct {
	Sender string
	Params crowdfund.InstantiateParams
}

type UpdateConfigCommand struct {
	Sender string
	Funds  []crowdfund.Coin
	Params crowdfund.UpdateConfigParams
}

type MintCommand struct {
	Sender string
	Funds  []crowdfund.Coin
	Tokens []crowdfund.MintRequest
}

type StartSaleCommand struct {
	Sender string
	Funds  []crowdfund.Coin
	Params crowdfund.StartSaleParams
}

type EndSaleCommand struct {
	Sender string
	Funds  []crowdfund.Coin
	Limit  *uint32
}

// SaleHandler runs the owner and settlement operations.
type SaleHandler struct {
	crowdfundUseCase *use_cases.CrowdfundUseCase
	log              *logger.Logger
}

func NewSaleHandler(
	crowdfundUseCase *use_cases.CrowdfundUseCase,
	log *logger.Logger,
) *SaleHandler {
	return &SaleHandler{
		crowdfundUseCase: crowdfundUseCase,
		log:              log,
	}
}

func (h *SaleHandler) HandleInstantiate(ctx context.Context, cmd InstantiateCommand) (*crowdfund.Response, error) {
	return h.crowdfundUseCase.Instantiate(ctx, use_cases.Caller{Sender: cmd.Sender}, cmd.Params)
}

func (h *SaleHandler) HandleUpdateConfig(ctx context.Context, cmd UpdateConfigCommand) (*crowdfund.Response, error) {
	return h.crowdfundUseCase.UpdateConfig(ctx, use_cases.Caller{Sender: cmd.Sender, Funds: cmd.Funds}, cmd.Params)
}

func (h *SaleHandler) HandleMint(ctx context.Context, cmd MintCommand) (*crowdfund.Response, error) {
	h.log.Info("Processing mint request", "sender", cmd.Sender, "tokens", len(cmd.Tokens))

	return h.crowdfundUseCase.Mint(ctx, use_cases.Caller{Sender: cmd.Sender, Funds: cmd.Funds}, cmd.Tokens)
}

func (h *SaleHandler) HandleStartSale(ctx context.Context, cmd StartSaleCommand) (*crowdfund.Response, error) {
	resp, err := h.crowdfundUseCase.StartSale(ctx, use_cases.Caller{Sender: cmd.Sender, Funds: cmd.Funds}, cmd.Params)
	if err != nil {
		return nil, err
	}

	h.log.Info("Sale started",
		"expiration", cmd.Params.Expiration.String(),
		"price", cmd.Params.Price.String(),
		"min_tokens_sold", cmd.Params.MinTokensSold,
	)
	return resp, nil
}

func (h *SaleHandler) HandleEndSale(ctx context.Context, cmd EndSaleCommand) (*crowdfund.Response, error) {
	resp, err := h.crowdfundUseCase.EndSale(ctx, use_cases.Caller{Sender: cmd.Sender, Funds: cmd.Funds}, cmd.Limit)
	if err != nil {
		return nil, err
	}

	h.log.Info("Settlement batch processed",
		"sender", cmd.Sender,
		"sale_cleared", resp.Attribute("sale_cleared"),
		"messages", len(resp.Messages),
	)
	return resp, nil
}
