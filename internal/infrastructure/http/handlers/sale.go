package handlers

import (
	"net/http"

	"github.com/yuzvak/crowdfund-service/internal/application/commands"
	"github.com/yuzvak/crowdfund-service/internal/application/use_cases"
	"github.com/yuzvak/crowdfund-service/internal/domain/crowdfund"
	"github.com/yuzvak/crowdfund-service/internal/infrastructure/http/response"
	"github.com/yuzvak/crowdfund-service/internal/pkg/logger"
)

type SaleHandler struct {
	crowdfundUseCase *use_cases.CrowdfundUseCase
	logger           *logger.Logger
}

func NewSaleHandler(crowdfundUseCase *use_cases.CrowdfundUseCase, logger *logger.Logger) *SaleHandler {
	return &SaleHandler{
		crowdfundUseCase: crowdfundUseCase,
		logger:           logger,
	}
}

type startSaleRequest struct {
	fundsRequest
	crowdfund.StartSaleParams
}

type endSaleRequest struct {
	fundsRequest
	Limit *uint32 `json:"limit,omitempty"`
}

type PhaseResponse struct {
	Phase       crowdfund.Phase `json:"phase"`
	BlockHeight uint64          `json:"block_height"`
	BlockTime   string          `json:"block_time"`
}

func (h *SaleHandler) HandleStartSale(w http.ResponseWriter, r *http.Request) {
	sender, verr := senderOf(r)
	if verr != nil {
		response.WriteValidationError(w, "Validation failed", verr)
		return
	}

	var req startSaleRequest
	if err := decodeBody(r, &req); err != nil {
		response.WriteValidationError(w, "Invalid request body", map[string]string{"body": err.Error()})
		return
	}

	handler := commands.NewSaleHandler(h.crowdfundUseCase, h.logger)
	resp, err := handler.HandleStartSale(r.Context(), commands.StartSaleCommand{
		Sender: sender,
		Funds:  req.Funds,
		Params: req.StartSaleParams,
	})
	if err != nil {
		h.logger.Warn("Start sale rejected", "sender", sender, "error", err.Error())
		response.WriteDomainError(w, err)
		return
	}

	response.WriteSuccess(w, resp, "Sale started")
}

func (h *SaleHandler) HandleEndSale(w http.ResponseWriter, r *http.Request) {
	sender, verr := senderOf(r)
	if verr != nil {
		response.WriteValidationError(w, "Validation failed", verr)
		return
	}

	var req endSaleRequest
	if err := decodeBody(r, &req); err != nil {
		response.WriteValidationError(w, "Invalid request body", map[string]string{"body": err.Error()})
		return
	}

	handler := commands.NewSaleHandler(h.crowdfundUseCase, h.logger)
	resp, err := handler.HandleEndSale(r.Context(), commands.EndSaleCommand{
		Sender: sender,
		Funds:  req.Funds,
		Limit:  req.Limit,
	})
	if err != nil {
		h.logger.Warn("End sale rejected", "sender", sender, "error", err.Error())
		response.WriteDomainError(w, err)
		return
	}

	response.WriteSuccess(w, resp)
}

func (h *SaleHandler) HandleGetState(w http.ResponseWriter, r *http.Request) {
	state, err := h.crowdfundUseCase.State(r.Context())
	if err != nil {
		response.WriteDomainError(w, err)
		return
	}

	response.WriteSuccess(w, state)
}

func (h *SaleHandler) HandleGetPhase(w http.ResponseWriter, r *http.Request) {
	phase, err := h.crowdfundUseCase.Phase(r.Context())
	if err != nil {
		h.logger.Error("Failed to derive phase", "error", err.Error())
		response.WriteDomainError(w, err)
		return
	}

	block := h.crowdfundUseCase.Block()
	response.WriteSuccess(w, PhaseResponse{
		Phase:       phase,
		BlockHeight: block.Height,
		BlockTime:   block.Time.Format(timeLayout),
	})
}
