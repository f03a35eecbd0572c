package handlers

import (
	"net/http"
	"time"

	"github.com/yuzvak/crowdfund-service/internal/application/commands"
	"github.com/yuzvak/crowdfund-service/internal/application/use_cases"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/http/response"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

const timeLayout = time.RFC3339

type AdminHandler struct {
	crowdfundUseCase *use_cases.CrowdfundUseCase
	logger           *logger.Logger
}

func NewAdminHandler(crowdfundUseCase *use_cases.CrowdfundUseCase, logger *logger.Logger) *AdminHandler {
	return &AdminHandler{
		crowdfundUseCase: crowdfundUseCase,
		logger:           logger,
	}
}

type updateConfigRequest struct {
	fundsRequest
	crowdfund.UpdateConfigParams
}

// HandleInstantiate records the sender as owner unless the body names one.
func (h *AdminHandler) HandleInstantiate(w http.ResponseWriter, r *http.Request) {
	sender, verr := senderOf(r)
	if verr != nil {
		response.WriteValidationError(w, "Validation failed", verr)
		return
	}

	var params crowdfund.InstantiateParams
	if err := decodeBody(r, &params); err != nil {
		response.WriteValidationError(w, "Invalid request body", map[string]string{"body": err.Error()})
		return
	}
	if params.TokenAddress == "" {
		response.WriteValidationError(w, "Validation failed", map[string]string{"token_address": "token address is required"})
		return
	}

	handler := commands.NewSaleHandler(h.crowdfundUseCase, h.logger)
	resp, err := handler.HandleInstantiate(r.Context(), commands.InstantiateCommand{Sender: sender, Params: params})
	if err != nil {
		h.logger.Error("Failed to instantiate crowdfund", "error", err.Error())
		response.WriteDomainError(w, err)
		return
	}

	h.logger.Info("Crowdfund instantiated", "owner", resp.Attribute("owner"), "token_address", params.TokenAddress)
	response.WriteJSON(w, http.StatusCreated, response.Success(resp, "Crowdfund instantiated"))
}

func (h *AdminHandler) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	sender, verr := senderOf(r)
	if verr != nil {
		response.WriteValidationError(w, "Validation failed", verr)
		return
	}

	var req updateConfigRequest
	if err := decodeBody(r, &req); err != nil {
		response.WriteValidationError(w, "Invalid request body", map[string]string{"body": err.Error()})
		return
	}

	handler := commands.NewSaleHandler(h.crowdfundUseCase, h.logger)
	resp, err := handler.HandleUpdateConfig(r.Context(), commands.UpdateConfigCommand{
		Sender: sender,
		Funds:  req.Funds,
		Params: req.UpdateConfigParams,
	})
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.WriteSuccess(w, resp, "Config updated")
}

func (h *AdminHandler) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.crowdfundUseCase.Config(r.Context())
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.WriteSuccess(w, cfg)
}
