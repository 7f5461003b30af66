package dto

import (
	"math"
	"time"

	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/pkg/money"
)

// Amounts and opening balances are capped at 10^12 minor units.

// PayRequest is the request body for a purchase.
type PayRequest struct {
	TagID       string `json:"tag_id" binding:"required,tag_id"`
	ShopID      int64  `json:"shop_id" binding:"required,gt=0"`
	Amount      int64  `json:"amount" binding:"required,gt=0,lte=1000000000000"`
	ReferenceID string `json:"reference_id,omitempty" binding:"omitempty,max=100,safe_id"`
}

// TopUpRequest is the request body for crediting a card.
type TopUpRequest struct {
	TagID       string `json:"tag_id" binding:"required,tag_id"`
	Amount      int64  `json:"amount" binding:"required,gt=0,lte=1000000000000"`
	ShopID      *int64 `json:"shop_id,omitempty" binding:"omitempty,gt=0"`
	ReferenceID string `json:"reference_id,omitempty" binding:"omitempty,max=100,safe_id"`
}

// TapRequest is the request body for a tag read forwarded by a reader client.
type TapRequest struct {
	TagID  string `json:"tag_id" binding:"required,tag_id"`
	Mode   string `json:"mode" binding:"required,oneof=pay topup"`
	ShopID *int64 `json:"shop_id,omitempty" binding:"omitempty,gt=0"`
	Amount int64  `json:"amount" binding:"required,gt=0,lte=1000000000000"`
}

type RegisterCardRequest struct {
	TagID          string `json:"tag_id" binding:"required,tag_id"`
	OpeningBalance int64  `json:"opening_balance" binding:"gte=0,lte=1000000000000"`
}

type SetCardStatusRequest struct {
	Active *bool `json:"active" binding:"required"`
}

// CardResponse is a card with its balance rendered in major units.
type CardResponse struct {
	ID             int64   `json:"id"`
	TagID          string  `json:"tag_id"`
	Balance        int64   `json:"balance"`
	BalanceDisplay string  `json:"balance_display"`
	Active         bool    `json:"active"`
	LastUsedAt     *string `json:"last_used_at,omitempty"`
	CreatedAt      string  `json:"created_at"`
}

type TransactionResponse struct {
	ID              int64   `json:"id"`
	CardID          int64   `json:"card_id"`
	ShopID          *int64  `json:"shop_id,omitempty"`
	Kind            string  `json:"kind"`
	Amount          int64   `json:"amount"`
	AmountDisplay   string  `json:"amount_display"`
	PreviousBalance int64   `json:"previous_balance"`
	NewBalance      int64   `json:"new_balance"`
	Status          string  `json:"status"`
	CreatedAt       string  `json:"created_at"`
}

type PaymentResponse struct {
	Card                    CardResponse        `json:"card"`
	Transaction             TransactionResponse `json:"transaction"`
	RemainingBalance        int64               `json:"remaining_balance"`
	RemainingBalanceDisplay string              `json:"remaining_balance_display"`
	Registered              bool                `json:"registered"`
}

type TopUpResponse struct {
	Card              CardResponse        `json:"card"`
	Transaction       TransactionResponse `json:"transaction"`
	NewBalance        int64               `json:"new_balance"`
	NewBalanceDisplay string              `json:"new_balance_display"`
}

type TapResponse struct {
	Mode    string           `json:"mode"`
	Payment *PaymentResponse `json:"payment,omitempty"`
	TopUp   *TopUpResponse   `json:"topup,omitempty"`
}

// TransactionListResponse wraps a paginated transaction list.
type TransactionListResponse struct {
	Items      []TransactionResponse `json:"items"`
	Total      int64                 `json:"total"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
	TotalPages int                   `json:"total_pages"`
}

type ShopStatsResponse struct {
	ShopID               int64  `json:"shop_id"`
	Period               string `json:"period"`
	Purchases            int64  `json:"purchases"`
	Topups               int64  `json:"topups"`
	PurchaseTotal        int64  `json:"purchase_total"`
	PurchaseTotalDisplay string `json:"purchase_total_display"`
	TopupTotal           int64  `json:"topup_total"`
	TopupTotalDisplay    string `json:"topup_total_display"`
}

// Presenter converts domain values to responses. Exponent is the number of
// minor-unit digits of the currency (2 for cents).
type Presenter struct {
	Exponent int32
}

func (p Presenter) Card(c *domain.Card) CardResponse {
	resp := CardResponse{
		ID:             c.ID,
		TagID:          c.TagID,
		Balance:        c.Balance,
		BalanceDisplay: money.Format(c.Balance, p.Exponent),
		Active:         c.Active,
		CreatedAt:      c.CreatedAt.Format(time.RFC3339),
	}
	if c.LastUsedAt != nil {
		s := c.LastUsedAt.Format(time.RFC3339)
		resp.LastUsedAt = &s
	}
	return resp
}

func (p Presenter) Transaction(tx *domain.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:              tx.ID,
		CardID:          tx.CardID,
		ShopID:          tx.ShopID,
		Kind:            string(tx.Kind),
		Amount:          tx.Amount,
		AmountDisplay:   money.Format(tx.Amount, p.Exponent),
		PreviousBalance: tx.PreviousBalance,
		NewBalance:      tx.NewBalance,
		Status:          string(tx.Status),
		CreatedAt:       tx.CreatedAt.Format(time.RFC3339),
	}
}

func (p Presenter) Payment(r *ports.PaymentResult) PaymentResponse {
	return PaymentResponse{
		Card:                    p.Card(r.Card),
		Transaction:             p.Transaction(r.Transaction),
		RemainingBalance:        r.RemainingBalance,
		RemainingBalanceDisplay: money.Format(r.RemainingBalance, p.Exponent),
		Registered:              r.Registered,
	}
}

func (p Presenter) TopUp(r *ports.TopUpResult) TopUpResponse {
	return TopUpResponse{
		Card:              p.Card(r.Card),
		Transaction:       p.Transaction(r.Transaction),
		NewBalance:        r.NewBalance,
		NewBalanceDisplay: money.Format(r.NewBalance, p.Exponent),
	}
}

func (p Presenter) Tap(mode string, r *ports.TapResult) TapResponse {
	resp := TapResponse{Mode: mode}
	if r.Payment != nil {
		pay := p.Payment(r.Payment)
		resp.Payment = &pay
	}
	if r.TopUp != nil {
		top := p.TopUp(r.TopUp)
		resp.TopUp = &top
	}
	return resp
}

func (p Presenter) TransactionList(txs []domain.Transaction, total int64, page, pageSize int) TransactionListResponse {
	items := make([]TransactionResponse, 0, len(txs))
	for i := range txs {
		items = append(items, p.Transaction(&txs[i]))
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(pageSize)))
	}
	return TransactionListResponse{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}
}

func (p Presenter) ShopStats(shopID int64, period string, s *ports.TransactionStats) ShopStatsResponse {
	return ShopStatsResponse{
		ShopID:               shopID,
		Period:               period,
		Purchases:            s.Purchases,
		Topups:               s.Topups,
		PurchaseTotal:        s.PurchaseTotal,
		PurchaseTotalDisplay: money.Format(s.PurchaseTotal, p.Exponent),
		TopupTotal:           s.TopupTotal,
		TopupTotalDisplay:    money.Format(s.TopupTotal, p.Exponent),
	}
}
