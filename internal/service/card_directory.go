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

// cardDirectory implements ports.CardDirectory. Tag identifiers are expected
// to be normalized by the caller.
type cardDirectory struct {
	cards ports.CardRepository
	now   func() time.Time
	log   zerolog.Logger
}

// NewCardDirectory creates a new card directory.
func NewCardDirectory(store ports.Store, log zerolog.Logger) ports.CardDirectory {
	return &cardDirectory{
		cards: store.Cards(),
		now:   func() time.Time { return time.Now().UTC() },
		log:   log,
	}
}

func (d *cardDirectory) FindByTagID(ctx context.Context, tagID string) (*domain.Card, error) {
	card, err := d.cards.GetByTagID(ctx, tagID)
	if err != nil {
		return nil, apperror.ErrStore(fmt.Errorf("get card by tag: %w", err))
	}
	if card == nil {
		return nil, apperror.ErrCardNotFound()
	}
	return card, nil
}

func (d *cardDirectory) Register(ctx context.Context, tagID string, openingBalance int64) (*domain.Card, error) {
	if openingBalance < 0 {
		return nil, apperror.Validation("opening balance must not be negative")
	}

	card := &domain.Card{
		TagID:     tagID,
		Balance:   openingBalance,
		Active:    true,
		CreatedAt: d.now(),
	}
	if err := d.cards.Create(ctx, card); err != nil {
		if errors.Is(err, ports.ErrDuplicate) {
			return nil, apperror.ErrDuplicateCard()
		}
		return nil, apperror.ErrStore(fmt.Errorf("create card: %w", err))
	}

	d.log.Info().
		Int64("card_id", card.ID).
		Str("tag_id", tagID).
		Int64("opening_balance", openingBalance).
		Msg("card registered")
	return card, nil
}

// ResolveOrCreate returns the card for tagID, registering it with
// openingBalance on first sighting. Any physical tag can be activated by
// spending against it; callers gate this behind configuration.
func (d *cardDirectory) ResolveOrCreate(ctx context.Context, tagID string, openingBalance int64) (*domain.Card, bool, error) {
	card, err := d.cards.GetByTagID(ctx, tagID)
	if err != nil {
		return nil, false, apperror.ErrStore(fmt.Errorf("get card by tag: %w", err))
	}
	if card != nil {
		return card, false, nil
	}

	card, err = d.Register(ctx, tagID, openingBalance)
	if err == nil {
		return card, true, nil
	}
	if !errors.Is(err, apperror.ErrDuplicateCard()) {
		return nil, false, err
	}

	// Lost a registration race with a concurrent first tap.
	card, err = d.FindByTagID(ctx, tagID)
	if err != nil {
		return nil, false, err
	}
	return card, false, nil
}

func (d *cardDirectory) SetActive(ctx context.Context, tagID string, active bool) (*domain.Card, error) {
	card, err := d.FindByTagID(ctx, tagID)
	if err != nil {
		return nil, err
	}
	if card.Active == active {
		return card, nil
	}
	if err := d.cards.SetActive(ctx, card.ID, active); err != nil {
		if errors.Is(err, ports.ErrNotFound) {
			return nil, apperror.ErrCardNotFound()
		}
		return nil, apperror.ErrStore(fmt.Errorf("set card active: %w", err))
	}
	card.Active = active

	d.log.Info().Int64("card_id", card.ID).Bool("active", active).Msg("card status changed")
	return card, nil
}
