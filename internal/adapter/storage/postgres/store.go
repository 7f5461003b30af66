package postgres

import (
	"context"
	"fmt"

	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"
)

// Store implements ports.Store on a PostgreSQL pool.
type Store struct {
	pool  Pool
	cards *CardRepo
	txs   *TransactionRepo
	shops *ShopRepo
}

// NewStore creates a Store whose repositories share pool.
func NewStore(pool Pool) *Store {
	return &Store{
		pool:  pool,
		cards: NewCardRepo(pool),
		txs:   NewTransactionRepo(pool),
		shops: NewShopRepo(pool),
	}
}

func (s *Store) Cards() ports.CardRepository               { return s.cards }
func (s *Store) Transactions() ports.TransactionRepository { return s.txs }
func (s *Store) Shops() ports.ShopRepository               { return s.shops }

// ApplyTransaction runs the balance compare-and-set and the log insert in one
// database transaction. Any failure rolls both back.
func (s *Store) ApplyTransaction(ctx context.Context, t *domain.Transaction) error {
	dbTx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger transaction: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	tag, err := dbTx.Exec(ctx,
		`UPDATE cards SET balance = $1, last_used_at = $2 WHERE id = $3 AND balance = $4`,
		t.NewBalance, t.CreatedAt, t.CardID, t.PreviousBalance,
	)
	if err != nil {
		if hasPgCode(err, pgCheckViolation) {
			return ports.ErrConflict
		}
		return fmt.Errorf("update card balance: %w", err)
	}
	if tag.RowsAffected() != 1 {
		var exists bool
		if err := dbTx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM cards WHERE id = $1)`, t.CardID).Scan(&exists); err != nil {
			return fmt.Errorf("check card exists: %w", err)
		}
		if !exists {
			return ports.ErrNotFound
		}
		return ports.ErrConflict
	}

	if err := insertTransaction(ctx, dbTx, t); err != nil {
		t.ID = 0
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		t.ID = 0
		return fmt.Errorf("commit ledger transaction: %w", err)
	}
	return nil
}
