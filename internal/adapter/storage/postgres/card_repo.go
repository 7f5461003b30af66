package postgres

import (
	"context"
	"errors"
	"fmt"

	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
)

const cardColumns = `id, tag_id, balance, active, last_used_at, created_at`

// CardRepo implements ports.CardRepository.
type CardRepo struct {
	pool Pool
}

// NewCardRepo creates a new CardRepo.
func NewCardRepo(pool Pool) *CardRepo {
	return &CardRepo{pool: pool}
}

// Create inserts a new card and assigns its id.
func (r *CardRepo) Create(ctx context.Context, c *domain.Card) error {
	query := `INSERT INTO cards (tag_id, balance, active, last_used_at, created_at)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`

	err := r.pool.QueryRow(ctx, query,
		c.TagID, c.Balance, c.Active, c.LastUsedAt, c.CreatedAt,
	).Scan(&c.ID)
	if err != nil {
		if hasPgCode(err, pgUniqueViolation) {
			return ports.ErrDuplicate
		}
		return fmt.Errorf("insert card: %w", err)
	}
	return nil
}

// GetByID fetches a card by internal id.
func (r *CardRepo) GetByID(ctx context.Context, id int64) (*domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE id = $1`
	return r.scanCard(r.pool.QueryRow(ctx, query, id))
}

// GetByTagID fetches a card by tag identifier.
func (r *CardRepo) GetByTagID(ctx context.Context, tagID string) (*domain.Card, error) {
	query := `SELECT ` + cardColumns + ` FROM cards WHERE tag_id = $1`
	return r.scanCard(r.pool.QueryRow(ctx, query, tagID))
}

// SetActive flips the active flag.
func (r *CardRepo) SetActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE cards SET active = $1 WHERE id = $2`, active, id)
	if err != nil {
		return fmt.Errorf("update card active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ports.ErrNotFound
	}
	return nil
}

func (r *CardRepo) scanCard(row pgx.Row) (*domain.Card, error) {
	c := &domain.Card{}
	err := row.Scan(&c.ID, &c.TagID, &c.Balance, &c.Active, &c.LastUsedAt, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan card: %w", err)
	}
	return c, nil
}
