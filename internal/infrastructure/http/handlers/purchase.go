package handlers

import (
	"net/http"
	"strings"

	"github.com/yuzvak/crowdfund-service/internal/application/commands"
	"github.com/yuzvak/crowdfund-service/internal/application/use_cases"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/http/response"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

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

type purchaseRequest struct {
	fundsRequest
	NumberOfTokens *uint32 `json:"number_of_tokens,omitempty"`
}

type PurchasesResponse struct {
	Purchaser string               `json:"purchaser"`
	Purchases []crowdfund.Purchase `json:"purchases"`
}

func (h *PurchaseHandler) HandlePurchase() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sender, verr := senderOf(r)
		if verr != nil {
			h.log.Warn("Purchase validation failed", "error", verr["sender"])
			response.WriteValidationError(w, "Validation failed", verr)
			return
		}

		var req purchaseRequest
		if err := decodeBody(r, &req); err != nil {
			response.WriteValidationError(w, "Invalid request body", map[string]string{"body": err.Error()})
			return
		}

		cmd := commands.PurchaseCommand{
			Sender:         sender,
			Funds:          req.Funds,
			NumberOfTokens: req.NumberOfTokens,
			TokenID:        strings.TrimSpace(r.PathValue("id")),
		}

		h.log.Info("Purchase request received",
			"sender", sender,
			"token_id", cmd.TokenID,
			"url", r.URL.String(),
		)

		handler := commands.NewPurchaseHandler(h.crowdfundUseCase, h.log)

		resp, err := handler.Handle(r.Context(), cmd)
		if err != nil {
			h.log.Error("Purchase command failed",
				"sender", sender,
				"error", err.Error(),
			)
			response.WriteDomainError(w, err)
			return
		}

		response.WriteSuccess(w, resp, "Purchase completed successfully")
	}
}

func (h *PurchaseHandler) HandleClaimRefund() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sender, verr := senderOf(r)
		if verr != nil {
			response.WriteValidationError(w, "Validation failed", verr)
			return
		}

		var req fundsRequest
		if err := decodeBody(r, &req); err != nil {
			response.WriteValidationError(w, "Invalid request body", map[string]string{"body": err.Error()})
			return
		}

		handler := commands.NewPurchaseHandler(h.crowdfundUseCase, h.log)

		resp, err := handler.HandleClaimRefund(r.Context(), commands.ClaimRefundCommand{Sender: sender, Funds: req.Funds})
		if err != nil {
			h.log.Warn("Refund rejected", "sender", sender, "error", err.Error())
			response.WriteDomainError(w, err)
			return
		}

		response.WriteSuccess(w, resp, "Refund issued")
	}
}

func (h *PurchaseHandler) HandleGetPurchases() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		buyer := r.PathValue("buyer")

		purchases, err := h.crowdfundUseCase.Purchases(r.Context(), buyer)
		if err != nil {
			response.WriteDomainError(w, err)
			return
		}

		if purchases == nil {
			purchases = []crowdfund.Purchase{}
		}
		response.WriteSuccess(w, PurchasesResponse{Purchaser: buyer, Purchases: purchases})
	}
}
