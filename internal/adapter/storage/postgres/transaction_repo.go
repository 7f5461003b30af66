package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const txColumnList = `id, card_id, shop_id, kind, amount, previous_balance, new_balance, status, created_at`

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// insertTransaction appends t and assigns its id. Only ApplyTransaction
// calls it, inside the balance update's SQL transaction.
func insertTransaction(ctx context.Context, q rowQuerier, t *domain.Transaction) error {
	query := `INSERT INTO transactions (card_id, shop_id, kind, amount, previous_balance, new_balance, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`

	err := q.QueryRow(ctx, query,
		t.CardID, t.ShopID, t.Kind, t.Amount,
		t.PreviousBalance, t.NewBalance, t.Status, t.CreatedAt,
	).Scan(&t.ID)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by id.
func (r *TransactionRepo) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	query := `SELECT ` + txColumnList + ` FROM transactions WHERE id = $1`

	t := &domain.Transaction{}
	err := scanTransaction(r.pool.QueryRow(ctx, query, id), t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// List fetches transactions with filtering and pagination, oldest first.
func (r *TransactionRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	if params.CardID != nil {
		conditions = append(conditions, fmt.Sprintf("card_id = $%d", argIdx))
		args = append(args, *params.CardID)
		argIdx++
	}
	if params.ShopID != nil {
		conditions = append(conditions, fmt.Sprintf("shop_id = $%d", argIdx))
		args = append(args, *params.ShopID)
		argIdx++
	}
	if params.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, *params.Kind)
		argIdx++
	}
	if params.From != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.From)
		argIdx++
	}
	if params.To != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argIdx))
		args = append(args, *params.To)
		argIdx++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	// Count total
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM transactions %s", where)
	var total int64
	err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	// Fetch page
	dataQuery := fmt.Sprintf(`SELECT %s FROM transactions %s ORDER BY created_at ASC, id ASC`, txColumnList, where)
	if params.PageSize > 0 {
		page := params.Page
		if page < 1 {
			page = 1
		}
		dataQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, params.PageSize, (page-1)*params.PageSize)
	}

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	txns := []domain.Transaction{}
	for rows.Next() {
		var t domain.Transaction
		if err := scanTransaction(rows, &t); err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, total, nil
}

// GetStats aggregates completed transactions.
func (r *TransactionRepo) GetStats(ctx context.Context, params ports.StatsParams) (*ports.TransactionStats, error) {
	conditions := []string{"status = 'completed'"}
	var args []any
	argIdx := 1

	if params.ShopID != nil {
		conditions = append(conditions, fmt.Sprintf("shop_id = $%d", argIdx))
		args = append(args, *params.ShopID)
		argIdx++
	}
	if params.CardID != nil {
		conditions = append(conditions, fmt.Sprintf("card_id = $%d", argIdx))
		args = append(args, *params.CardID)
		argIdx++
	}
	if params.Since != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argIdx))
		args = append(args, *params.Since)
	}

	query := fmt.Sprintf(`SELECT
		COUNT(*) FILTER (WHERE kind = 'purchase') AS purchases,
		COUNT(*) FILTER (WHERE kind = 'topup') AS topups,
		COALESCE(SUM(amount) FILTER (WHERE kind = 'purchase'), 0) AS purchase_total,
		COALESCE(SUM(amount) FILTER (WHERE kind = 'topup'), 0) AS topup_total
		FROM transactions WHERE %s`, strings.Join(conditions, " AND "))

	stats := &ports.TransactionStats{}
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.Purchases, &stats.Topups, &stats.PurchaseTotal, &stats.TopupTotal,
	)
	if err != nil {
		return nil, fmt.Errorf("get transaction stats: %w", err)
	}
	return stats, nil
}

func scanTransaction(row pgx.Row, t *domain.Transaction) error {
	return row.Scan(
		&t.ID, &t.CardID, &t.ShopID, &t.Kind, &t.Amount,
		&t.PreviousBalance, &t.NewBalance, &t.Status, &t.CreatedAt,
	)
}
