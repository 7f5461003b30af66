package handler

import (
	"nfc-card-ledger/internal/adapter/http/dto"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/pkg/apperror"
	"nfc-card-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// CardHandler handles card registration, probing and history.
type CardHandler struct {
	paymentSvc   ports.PaymentService
	reportingSvc ports.ReportingService
	present      dto.Presenter
}

func NewCardHandler(paymentSvc ports.PaymentService, reportingSvc ports.ReportingService, present dto.Presenter) *CardHandler {
	return &CardHandler{paymentSvc: paymentSvc, reportingSvc: reportingSvc, present: present}
}

// Register handles POST /api/v1/cards.
func (h *CardHandler) Register(c *gin.Context) {
	var req dto.RegisterCardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	card, err := h.paymentSvc.RegisterCard(c.Request.Context(), req.TagID, req.OpeningBalance)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, h.present.Card(card))
}

// Get handles GET /api/v1/cards/:tag_id. It never registers the tag.
func (h *CardHandler) Get(c *gin.Context) {
	card, err := h.paymentSvc.TestRead(c.Request.Context(), c.Param("tag_id"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, h.present.Card(card))
}

// SetStatus handles PATCH /api/v1/cards/:tag_id/status.
func (h *CardHandler) SetStatus(c *gin.Context) {
	var req dto.SetCardStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	card, err := h.paymentSvc.SetCardActive(c.Request.Context(), c.Param("tag_id"), *req.Active)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, h.present.Card(card))
}

// History handles GET /api/v1/cards/:tag_id/transactions.
func (h *CardHandler) History(c *gin.Context) {
	page, pageSize := pagination(c)

	txs, total, err := h.reportingSvc.CardHistory(c.Request.Context(), c.Param("tag_id"), page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, h.present.TransactionList(txs, total, page, pageSize))
}
