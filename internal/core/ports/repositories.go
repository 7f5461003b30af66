package ports

import (
	"context"
	"time"

	"nfc-card-ledger/internal/core/domain"
)

//go:generate mockgen -destination=mocks/mock_repositories.go -package=mocks nfc-card-ledger/internal/core/ports Store,CardRepository,TransactionRepository,ShopRepository

// Store is the backing-store gateway: one implementation is bound per process.
type Store interface {
	Cards() CardRepository
	Transactions() TransactionRepository
	Shops() ShopRepository
	// ApplyTransaction moves the card from t.PreviousBalance to t.NewBalance,
	// sets its last-used time to t.CreatedAt and appends t, as one atomic
	// unit: either both writes land or neither does. It assigns t.ID.
	// Returns ErrConflict if the stored balance no longer equals
	// t.PreviousBalance, ErrNotFound if the card is gone.
	ApplyTransaction(ctx context.Context, t *domain.Transaction) error
}

// HealthChecker is a dependency probed by GET /health.
type HealthChecker interface {
	Ping(ctx context.Context) error
	Name() string
}

// CardRepository defines persistence operations for cards.
// Getters return nil, nil when the card does not exist.
type CardRepository interface {
	// Create inserts the card and assigns card.ID. Returns ErrDuplicate if the
	// tag identifier is already registered.
	Create(ctx context.Context, card *domain.Card) error
	GetByID(ctx context.Context, id int64) (*domain.Card, error)
	GetByTagID(ctx context.Context, tagID string) (*domain.Card, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// TransactionRepository reads the append-only transaction log. Entries are
// only ever written by Store.ApplyTransaction.
type TransactionRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Transaction, error)
	// List returns matching transactions ordered by (created_at, id) ascending.
	List(ctx context.Context, params TransactionListParams) ([]domain.Transaction, int64, error)
	GetStats(ctx context.Context, params StatsParams) (*TransactionStats, error)
}

// ShopRepository reads shops owned by the catalog subsystem.
type ShopRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.Shop, error)
	List(ctx context.Context) ([]domain.Shop, error)
}

// TransactionListParams holds filter + pagination for listing transactions.
type TransactionListParams struct {
	CardID   *int64
	ShopID   *int64
	Kind     *domain.TransactionKind
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// StatsParams scopes transaction statistics.
type StatsParams struct {
	ShopID *int64
	CardID *int64
	Since  *time.Time
}

// TransactionStats holds aggregated statistics for dashboards.
type TransactionStats struct {
	Purchases     int64 `json:"purchases"`
	Topups        int64 `json:"topups"`
	PurchaseTotal int64 `json:"purchase_total"`
	TopupTotal    int64 `json:"topup_total"`
}
