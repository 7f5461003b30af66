package handler

import (
	"nfc-card-ledger/internal/adapter/http/dto"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/pkg/apperror"
	"nfc-card-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// PaymentHandler handles manual-entry purchases and top-ups. These bypass
// the tag read debouncer.
type PaymentHandler struct {
	paymentSvc ports.PaymentService
	present    dto.Presenter
}

func NewPaymentHandler(paymentSvc ports.PaymentService, present dto.Presenter) *PaymentHandler {
	return &PaymentHandler{paymentSvc: paymentSvc, present: present}
}

// Pay handles POST /api/v1/payments.
func (h *PaymentHandler) Pay(c *gin.Context) {
	var req dto.PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.paymentSvc.Pay(c.Request.Context(), ports.PayRequest{
		TagID:       req.TagID,
		ShopID:      req.ShopID,
		Amount:      req.Amount,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, h.present.Payment(result))
}

// TopUp handles POST /api/v1/topups.
func (h *PaymentHandler) TopUp(c *gin.Context) {
	var req dto.TopUpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.paymentSvc.TopUp(c.Request.Context(), ports.TopUpRequest{
		TagID:       req.TagID,
		Amount:      req.Amount,
		ShopID:      req.ShopID,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, h.present.TopUp(result))
}
