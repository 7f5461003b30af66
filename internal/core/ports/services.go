package ports

import (
	"context"
	"time"

	"nfc-card-ledger/internal/core/domain"
)

//go:generate mockgen -destination=mocks/mock_services.go -package=mocks nfc-card-ledger/internal/core/ports CardDirectory,Ledger,PaymentService,TapService,ReportingService,TokenService,IdempotencyCache

// TokenService handles operator JWT operations.
type TokenService interface {
	Generate(operatorID string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	OperatorID string
	TokenID    string
}

// IdempotencyCache stores results of requests carrying a client reference id.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Reserve claims key for an in-progress request. false means another
	// request already holds it.
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

// --- Service Ports (Business Logic) ---

// CardDirectory owns tag identifier -> card resolution and card creation.
type CardDirectory interface {
	FindByTagID(ctx context.Context, tagID string) (*domain.Card, error)
	Register(ctx context.Context, tagID string, openingBalance int64) (*domain.Card, error)
	// ResolveOrCreate registers unknown tags with openingBalance. Payment path only.
	ResolveOrCreate(ctx context.Context, tagID string, openingBalance int64) (*domain.Card, bool, error)
	SetActive(ctx context.Context, tagID string, active bool) (*domain.Card, error)
}

// Ledger exclusively owns card balance mutation.
type Ledger interface {
	Debit(ctx context.Context, cardID int64, amount int64, shopID *int64) (*domain.Transaction, error)
	Credit(ctx context.Context, cardID int64, amount int64, shopID *int64) (*domain.Transaction, error)
}

// PaymentService is the boundary used by the UI and catalog layers.
type PaymentService interface {
	Pay(ctx context.Context, req PayRequest) (*PaymentResult, error)
	TopUp(ctx context.Context, req TopUpRequest) (*TopUpResult, error)
	RegisterCard(ctx context.Context, tagID string, openingBalance int64) (*domain.Card, error)
	// TestRead is a read-only probe: it never creates a card.
	TestRead(ctx context.Context, tagID string) (*domain.Card, error)
	SetCardActive(ctx context.Context, tagID string, active bool) (*domain.Card, error)
}

// PayRequest holds input for a purchase against a shop.
type PayRequest struct {
	TagID       string
	ShopID      int64
	Amount      int64
	ReferenceID string // optional client idempotency key
}

// PaymentResult is returned by a successful purchase.
type PaymentResult struct {
	Card             *domain.Card        `json:"card"`
	Transaction      *domain.Transaction `json:"transaction"`
	RemainingBalance int64               `json:"remaining_balance"`
	Registered       bool                `json:"registered"` // card was created by this payment
}

// TopUpRequest holds input for crediting a card.
type TopUpRequest struct {
	TagID       string
	Amount      int64
	ShopID      *int64 // nil outside a shop context
	ReferenceID string
}

// TopUpResult is returned by a successful top-up.
type TopUpResult struct {
	Card        *domain.Card        `json:"card"`
	Transaction *domain.Transaction `json:"transaction"`
	NewBalance  int64               `json:"new_balance"`
}

// TapMode selects what a tag read does.
type TapMode string

const (
	TapModePay   TapMode = "pay"
	TapModeTopup TapMode = "topup"
)

// TapRequest is a tag-triggered operation; it passes through the read debouncer.
type TapRequest struct {
	TagID  string
	Mode   TapMode
	ShopID *int64
	Amount int64
}

// TapResult carries the outcome of the operation a tap triggered.
type TapResult struct {
	Payment *PaymentResult `json:"payment,omitempty"`
	TopUp   *TopUpResult   `json:"topup,omitempty"`
}

// TapService routes tag reads through the debouncer.
type TapService interface {
	HandleTap(ctx context.Context, req TapRequest) (*TapResult, error)
}

// ReportingService answers read-only transaction log queries.
type ReportingService interface {
	CardHistory(ctx context.Context, tagID string, page, pageSize int) ([]domain.Transaction, int64, error)
	ShopTransactions(ctx context.Context, shopID int64, page, pageSize int) ([]domain.Transaction, int64, error)
	ShopStats(ctx context.Context, shopID int64, period string) (*TransactionStats, error)
}
