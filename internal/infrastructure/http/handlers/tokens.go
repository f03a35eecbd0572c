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

type TokenHandler struct {
	crowdfundUseCase *use_cases.CrowdfundUseCase
	log              *logger.Logger
}

func NewTokenHandler(crowdfundUseCase *use_cases.CrowdfundUseCase, log *logger.Logger) *TokenHandler {
	return &TokenHandler{
		crowdfundUseCase: crowdfundUseCase,
		log:              log,
	}
}

type mintRequest struct {
	fundsRequest
	Tokens []crowdfund.MintRequest `json:"tokens"`
}

type TokenListResponse struct {
	Tokens []string `json:"tokens"`
}

type TokenAvailabilityResponse struct {
	TokenID   string `json:"token_id"`
	Available bool   `json:"available"`
}

func (h *TokenHandler) HandleMint() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sender, verr := senderOf(r)
		if verr != nil {
			response.WriteValidationError(w, "Validation failed", verr)
			return
		}

		var req mintRequest
		if err := decodeBody(r, &req); err != nil {
			response.WriteValidationError(w, "Invalid request body", map[string]string{"body": err.Error()})
			return
		}
		if len(req.Tokens) == 0 {
			response.WriteValidationError(w, "Validation failed", map[string]string{"tokens": "at least one token is required"})
			return
		}

		handler := commands.NewSaleHandler(h.crowdfundUseCase, h.log)
		resp, err := handler.HandleMint(r.Context(), commands.MintCommand{
			Sender: sender,
			Funds:  req.Funds,
			Tokens: req.Tokens,
		})
		if err != nil {
			h.log.Warn("Mint rejected", "sender", sender, "error", err.Error())
			response.WriteDomainError(w, err)
			return
		}

		response.WriteSuccess(w, resp, "Tokens minted")
	}
}

func (h *TokenHandler) HandleAvailableTokens() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startAfter, limit, err := pagination(r)
		if err != nil {
			response.WriteValidationError(w, "Validation failed", map[string]string{"limit": err.Error()})
			return
		}

		tokens, err := h.crowdfundUseCase.AvailableTokens(r.Context(), startAfter, limit)
		if err != nil {
			response.WriteDomainError(w, err)
			return
		}

		response.WriteSuccess(w, TokenListResponse{Tokens: nonNil(tokens)})
	}
}

func (h *TokenHandler) HandleIsTokenAvailable() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tokenID := strings.TrimSpace(r.PathValue("id"))

		available, err := h.crowdfundUseCase.IsTokenAvailable(r.Context(), tokenID)
		if err != nil {
			response.WriteDomainError(w, err)
			return
		}

		response.WriteSuccess(w, TokenAvailabilityResponse{TokenID: tokenID, Available: available})
	}
}

func (h *TokenHandler) HandleOwnedTokens() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startAfter, limit, err := pagination(r)
		if err != nil {
			response.WriteValidationError(w, "Validation failed", map[string]string{"limit": err.Error()})
			return
		}

		tokens, err := h.crowdfundUseCase.OwnedTokens(r.Context(), r.PathValue("owner"), startAfter, limit)
		if err != nil {
			response.WriteDomainError(w, err)
			return
		}

		response.WriteSuccess(w, TokenListResponse{Tokens: nonNil(tokens)})
	}
}

func nonNil(tokens []string) []string {
	if tokens == nil {
		return []string{}
	}
	return tokens
}
