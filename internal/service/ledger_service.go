package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	defaultOperationTimeout = 10 * time.Second
	// maxConflictRetries bounds re-running read-validate-write when the CAS
	// loses to a writer outside this process.
	maxConflictRetries = 3
)

// LedgerServiceImpl implements ports.Ledger. It is the only writer of card
// balances: every mutation runs read-validate-write under a per-card token.
type LedgerServiceImpl struct {
	store       ports.Store
	locks       *cardLocks
	readRetries int
	opTimeout   time.Duration
	now         func() time.Time
	log         zerolog.Logger
}

// NewLedgerService creates a new LedgerServiceImpl.
func NewLedgerService(store ports.Store, readRetries int, opTimeout time.Duration, log zerolog.Logger) *LedgerServiceImpl {
	if readRetries < 0 {
		readRetries = 0
	}
	if opTimeout <= 0 {
		opTimeout = defaultOperationTimeout
	}
	return &LedgerServiceImpl{
		store:       store,
		locks:       newCardLocks(),
		readRetries: readRetries,
		opTimeout:   opTimeout,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log,
	}
}

// Debit subtracts amount from the card balance and records a purchase.
func (s *LedgerServiceImpl) Debit(ctx context.Context, cardID int64, amount int64, shopID *int64) (*domain.Transaction, error) {
	return s.apply(ctx, cardID, domain.TransactionKindPurchase, amount, shopID)
}

// Credit adds amount to the card balance and records a top-up.
func (s *LedgerServiceImpl) Credit(ctx context.Context, cardID int64, amount int64, shopID *int64) (*domain.Transaction, error) {
	return s.apply(ctx, cardID, domain.TransactionKindTopup, amount, shopID)
}

type ledgerResult struct {
	tx  *domain.Transaction
	err error
}

// apply waits for the card token with the caller's context. Once the token is
// held the mutation runs detached from the caller, so a caller that gives up
// never leaves a half-applied operation behind.
func (s *LedgerServiceImpl) apply(ctx context.Context, cardID int64, kind domain.TransactionKind, amount int64, shopID *int64) (*domain.Transaction, error) {
	if amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	release, err := s.locks.acquire(ctx, cardID)
	if err != nil {
		return nil, apperror.ErrTimeout(fmt.Errorf("waiting for card %d: %w", cardID, err))
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opTimeout)
	done := make(chan ledgerResult, 1)
	go func() {
		defer release()
		defer cancel()
		tx, err := s.mutate(opCtx, cardID, kind, amount, shopID)
		done <- ledgerResult{tx: tx, err: err}
	}()

	select {
	case r := <-done:
		return r.tx, r.err
	case <-ctx.Done():
		s.log.Warn().
			Int64("card_id", cardID).
			Str("kind", string(kind)).
			Int64("amount", amount).
			Msg("caller stopped waiting, ledger operation continues")
		return nil, apperror.ErrTimeout(ctx.Err())
	}
}

func (s *LedgerServiceImpl) mutate(ctx context.Context, cardID int64, kind domain.TransactionKind, amount int64, shopID *int64) (*domain.Transaction, error) {
	for attempt := 0; ; attempt++ {
		card, err := s.readCard(ctx, cardID)
		if err != nil {
			return nil, err
		}
		if card == nil {
			return nil, apperror.ErrCardNotFound()
		}
		if kind == domain.TransactionKindPurchase && !card.CanCover(amount) {
			return nil, apperror.ErrInsufficientBalance(card.Balance, amount)
		}
		if kind == domain.TransactionKindTopup && !card.CanAccept(amount) {
			return nil, apperror.ErrBalanceLimit()
		}

		tx := &domain.Transaction{
			CardID:          card.ID,
			ShopID:          shopID,
			Kind:            kind,
			Amount:          amount,
			PreviousBalance: card.Balance,
			NewBalance:      kind.ApplyTo(card.Balance, amount),
			Status:          domain.TransactionStatusCompleted,
			CreatedAt:       s.now(),
		}
		err = s.store.ApplyTransaction(ctx, tx)
		switch {
		case err == nil:
		case errors.Is(err, ports.ErrConflict):
			if attempt+1 < maxConflictRetries {
				s.log.Warn().Int64("card_id", cardID).Int("attempt", attempt+1).Msg("balance changed concurrently, re-reading")
				continue
			}
			return nil, apperror.ErrStore(fmt.Errorf("apply transaction: %w", err))
		case errors.Is(err, ports.ErrNotFound):
			return nil, apperror.ErrCardNotFound()
		default:
			return nil, apperror.ErrStore(fmt.Errorf("apply transaction: %w", err))
		}

		s.log.Info().
			Int64("tx_id", tx.ID).
			Int64("card_id", card.ID).
			Str("kind", string(kind)).
			Int64("amount", amount).
			Int64("new_balance", tx.NewBalance).
			Msg("ledger transaction recorded")
		return tx, nil
	}
}

// readCard is a fresh read of the card, retried on store failure.
func (s *LedgerServiceImpl) readCard(ctx context.Context, cardID int64) (*domain.Card, error) {
	var lastErr error
	for attempt := 0; attempt <= s.readRetries; attempt++ {
		card, err := s.store.Cards().GetByID(ctx, cardID)
		if err == nil {
			return card, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		s.log.Warn().Err(err).Int64("card_id", cardID).Int("attempt", attempt+1).Msg("card read failed")
	}
	return nil, apperror.ErrStore(fmt.Errorf("read card: %w", lastErr))
}
