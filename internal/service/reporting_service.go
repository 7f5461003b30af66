package service

import (
	"context"
	"fmt"
	"time"

	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/pkg/apperror"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// reportingService implements ports.ReportingService.
type reportingService struct {
	directory ports.CardDirectory
	txRepo    ports.TransactionRepository
	shops     ports.ShopRepository
	now       func() time.Time
}

// NewReportingService creates a new reporting service.
func NewReportingService(
	directory ports.CardDirectory,
	txRepo ports.TransactionRepository,
	shops ports.ShopRepository,
) ports.ReportingService {
	return &reportingService{
		directory: directory,
		txRepo:    txRepo,
		shops:     shops,
		now:       time.Now,
	}
}

// CardHistory returns the card's transactions, oldest first.
func (s *reportingService) CardHistory(ctx context.Context, tagID string, page, pageSize int) ([]domain.Transaction, int64, error) {
	tagID, err := normalizeTag(tagID)
	if err != nil {
		return nil, 0, err
	}
	card, err := s.directory.FindByTagID(ctx, tagID)
	if err != nil {
		return nil, 0, err
	}

	page, pageSize = clampPage(page, pageSize)
	txns, total, err := s.txRepo.List(ctx, ports.TransactionListParams{
		CardID:   &card.ID,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, 0, apperror.ErrStore(fmt.Errorf("list card transactions: %w", err))
	}
	return txns, total, nil
}

// ShopTransactions returns the transactions recorded against a shop.
func (s *reportingService) ShopTransactions(ctx context.Context, shopID int64, page, pageSize int) ([]domain.Transaction, int64, error) {
	if err := s.requireShop(ctx, shopID); err != nil {
		return nil, 0, err
	}

	page, pageSize = clampPage(page, pageSize)
	txns, total, err := s.txRepo.List(ctx, ports.TransactionListParams{
		ShopID:   &shopID,
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		return nil, 0, apperror.ErrStore(fmt.Errorf("list shop transactions: %w", err))
	}
	return txns, total, nil
}

// ShopStats returns aggregated transaction stats for the shop.
func (s *reportingService) ShopStats(ctx context.Context, shopID int64, period string) (*ports.TransactionStats, error) {
	var since *time.Time

	now := s.now()
	switch period {
	case "day":
		t := now.AddDate(0, 0, -1)
		since = &t
	case "week":
		t := now.AddDate(0, 0, -7)
		since = &t
	case "month":
		t := now.AddDate(0, -1, 0)
		since = &t
	case "all", "":
		// No time filter
	default:
		return nil, apperror.Validation("invalid period: must be day, week, month, or all")
	}

	if err := s.requireShop(ctx, shopID); err != nil {
		return nil, err
	}

	stats, err := s.txRepo.GetStats(ctx, ports.StatsParams{ShopID: &shopID, Since: since})
	if err != nil {
		return nil, apperror.ErrStore(fmt.Errorf("shop stats: %w", err))
	}
	return stats, nil
}

// requireShop accepts inactive shops; their history stays readable.
func (s *reportingService) requireShop(ctx context.Context, shopID int64) error {
	shop, err := s.shops.GetByID(ctx, shopID)
	if err != nil {
		return apperror.ErrStore(fmt.Errorf("get shop: %w", err))
	}
	if shop == nil {
		return apperror.ErrShopNotFound().WithDetails(map[string]any{"shop_id": shopID})
	}
	return nil
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return page, pageSize
}
