package postgres

import (
	"context"
	"errors"
	"fmt"

	"nfc-card-ledger/internal/core/domain"

	"github.com/jackc/pgx/v5"
)

// ShopRepo implements ports.ShopRepository. The shops table is owned by the
// catalog subsystem; this repository only reads it.
type ShopRepo struct {
	pool Pool
}

// NewShopRepo creates a new ShopRepo.
func NewShopRepo(pool Pool) *ShopRepo {
	return &ShopRepo{pool: pool}
}

// GetByID fetches a shop by id.
func (r *ShopRepo) GetByID(ctx context.Context, id int64) (*domain.Shop, error) {
	s := &domain.Shop{}
	err := r.pool.QueryRow(ctx, `SELECT id, name, status FROM shops WHERE id = $1`, id).
		Scan(&s.ID, &s.Name, &s.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get shop by id: %w", err)
	}
	return s, nil
}

// List returns all shops ordered by id.
func (r *ShopRepo) List(ctx context.Context) ([]domain.Shop, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, status FROM shops ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list shops: %w", err)
	}
	defer rows.Close()

	var shops []domain.Shop
	for rows.Next() {
		var s domain.Shop
		if err := rows.Scan(&s.ID, &s.Name, &s.Status); err != nil {
			return nil, fmt.Errorf("scan shop row: %w", err)
		}
		shops = append(shops, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate shop rows: %w", err)
	}
	return shops, nil
}
