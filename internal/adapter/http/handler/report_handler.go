package handler

import (
	"strconv"

	"nfc-card-ledger/internal/adapter/http/dto"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/pkg/apperror"
	"nfc-card-ledger/pkg/response"

	"github.com/gin-gonic/gin"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ReportHandler handles per-shop transaction reports.
type ReportHandler struct {
	reportingSvc ports.ReportingService
	present      dto.Presenter
}

func NewReportHandler(reportingSvc ports.ReportingService, present dto.Presenter) *ReportHandler {
	return &ReportHandler{reportingSvc: reportingSvc, present: present}
}

// ShopTransactions handles GET /api/v1/shops/:shop_id/transactions.
func (h *ReportHandler) ShopTransactions(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}
	page, pageSize := pagination(c)

	txs, total, err := h.reportingSvc.ShopTransactions(c.Request.Context(), shopID, page, pageSize)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, h.present.TransactionList(txs, total, page, pageSize))
}

// ShopStats handles GET /api/v1/shops/:shop_id/stats.
func (h *ReportHandler) ShopStats(c *gin.Context) {
	shopID, ok := shopIDParam(c)
	if !ok {
		return
	}

	period := c.DefaultQuery("period", "all")
	stats, err := h.reportingSvc.ShopStats(c.Request.Context(), shopID, period)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, h.present.ShopStats(shopID, period, stats))
}

func shopIDParam(c *gin.Context) (int64, bool) {
	shopID, err := strconv.ParseInt(c.Param("shop_id"), 10, 64)
	if err != nil || shopID <= 0 {
		response.Error(c, apperror.Validation("shop_id must be a positive integer"))
		return 0, false
	}
	return shopID, true
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > maxPageSize {
		pageSize = defaultPageSize
	}
	return page, pageSize
}
