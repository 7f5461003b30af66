package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/internal/core/ports/mocks"
	"nfc-card-ledger/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupReportingService(t *testing.T) (*reportingService, *mocks.MockCardDirectory, *mocks.MockTransactionRepository, *mocks.MockShopRepository) {
	ctrl := gomock.NewController(t)
	dir := mocks.NewMockCardDirectory(ctrl)
	txRepo := mocks.NewMockTransactionRepository(ctrl)
	shops := mocks.NewMockShopRepository(ctrl)
	svc := NewReportingService(dir, txRepo, shops).(*reportingService)
	svc.now = func() time.Time { return fixedNow }
	return svc, dir, txRepo, shops
}

func TestReportingService_CardHistory(t *testing.T) {
	svc, dir, txRepo, _ := setupReportingService(t)
	ctx := context.Background()
	cardID := int64(1)

	dir.EXPECT().FindByTagID(ctx, "NFC001").Return(&domain.Card{ID: cardID}, nil)
	txRepo.EXPECT().List(ctx, ports.TransactionListParams{CardID: &cardID, Page: 1, PageSize: defaultPageSize}).
		Return([]domain.Transaction{{ID: 1}, {ID: 2}}, int64(2), nil)

	txns, total, err := svc.CardHistory(ctx, "nfc001", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Len(t, txns, 2)
}

func TestReportingService_CardHistory_UnknownCard(t *testing.T) {
	svc, dir, _, _ := setupReportingService(t)
	ctx := context.Background()

	dir.EXPECT().FindByTagID(ctx, "NFC404").Return(nil, apperror.ErrCardNotFound())

	_, _, err := svc.CardHistory(ctx, "NFC404", 1, 10)
	assert.ErrorIs(t, err, apperror.ErrCardNotFound())
}

func TestReportingService_ShopTransactions_PageSizeClamped(t *testing.T) {
	svc, _, txRepo, shops := setupReportingService(t)
	ctx := context.Background()
	shopID := int64(3)

	shops.EXPECT().GetByID(ctx, shopID).Return(&domain.Shop{ID: 3, Status: domain.ShopStatusInactive}, nil)
	txRepo.EXPECT().List(ctx, ports.TransactionListParams{ShopID: &shopID, Page: 2, PageSize: maxPageSize}).
		Return(nil, int64(0), nil)

	_, _, err := svc.ShopTransactions(ctx, shopID, 2, 1000)
	require.NoError(t, err)
}

func TestReportingService_ShopTransactions_StoreError(t *testing.T) {
	svc, _, txRepo, shops := setupReportingService(t)
	ctx := context.Background()

	shops.EXPECT().GetByID(ctx, int64(1)).Return(cafeteria, nil)
	txRepo.EXPECT().List(ctx, gomock.Any()).Return(nil, int64(0), errors.New("boom"))

	_, _, err := svc.ShopTransactions(ctx, 1, 1, 10)
	assert.ErrorIs(t, err, apperror.ErrStore(nil))
}

func TestReportingService_ShopStats_All(t *testing.T) {
	svc, _, txRepo, shops := setupReportingService(t)
	ctx := context.Background()
	shopID := int64(1)
	expected := &ports.TransactionStats{Purchases: 10, PurchaseTotal: 1200}

	shops.EXPECT().GetByID(ctx, shopID).Return(cafeteria, nil)
	txRepo.EXPECT().GetStats(ctx, ports.StatsParams{ShopID: &shopID}).Return(expected, nil)

	result, err := svc.ShopStats(ctx, shopID, "all")
	require.NoError(t, err)
	assert.Equal(t, expected, result)
}

func TestReportingService_ShopStats_WithPeriod(t *testing.T) {
	svc, _, txRepo, shops := setupReportingService(t)
	ctx := context.Background()
	shopID := int64(1)
	since := fixedNow.AddDate(0, 0, -7)

	shops.EXPECT().GetByID(ctx, shopID).Return(cafeteria, nil)
	txRepo.EXPECT().GetStats(ctx, ports.StatsParams{ShopID: &shopID, Since: &since}).Return(&ports.TransactionStats{}, nil)

	_, err := svc.ShopStats(ctx, shopID, "week")
	require.NoError(t, err)
}

func TestReportingService_ShopStats_InvalidPeriod(t *testing.T) {
	svc, _, _, _ := setupReportingService(t)

	_, err := svc.ShopStats(context.Background(), 1, "year")
	assert.ErrorIs(t, err, apperror.Validation(""))
}

func TestReportingService_ShopStats_UnknownShop(t *testing.T) {
	svc, _, _, shops := setupReportingService(t)
	ctx := context.Background()

	shops.EXPECT().GetByID(ctx, int64(77)).Return(nil, nil)

	_, err := svc.ShopStats(ctx, 77, "day")
	assert.ErrorIs(t, err, apperror.ErrShopNotFound())
}
