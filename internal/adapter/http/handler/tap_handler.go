package handler

import (
	"nfc-card-ledger/internal/adapter/http/dto"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/pkg/apperror"
	"nfc-card-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

// TapHandler accepts tag reads forwarded by reader clients.
type TapHandler struct {
	tapSvc  ports.TapService
	present dto.Presenter
}

func NewTapHandler(tapSvc ports.TapService, present dto.Presenter) *TapHandler {
	return &TapHandler{tapSvc: tapSvc, present: present}
}

// HandleTap handles POST /api/v1/taps.
func (h *TapHandler) HandleTap(c *gin.Context) {
	var req dto.TapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, apperror.Validation(err.Error()))
		return
	}

	result, err := h.tapSvc.HandleTap(c.Request.Context(), ports.TapRequest{
		TagID:  req.TagID,
		Mode:   ports.TapMode(req.Mode),
		ShopID: req.ShopID,
		Amount: req.Amount,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Created(c, h.present.Tap(req.Mode, result))
}
