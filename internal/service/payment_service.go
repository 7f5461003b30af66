package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/pkg/apperror"

	"github.com/rs/zerolog"
)

const (
	defaultIdempotencyTTL = 24 * time.Hour
	// reservationTTL bounds how long a crashed request can block its
	// reference id. It must outlast a settle timeout plus the ledger
	// operation timeout, so a reservation kept after a timeout is not
	// dropped while the mutation can still land.
	reservationTTL = 30 * time.Second
	// defaultSettleTimeout bounds a keyed request that runs on after its
	// caller stopped waiting.
	defaultSettleTimeout = 10 * time.Second
	// DefaultOpeningBalance is credited to cards registered implicitly on
	// their first payment.
	DefaultOpeningBalance int64 = 100
)

// PaymentPolicy holds the tunables of the payment boundary.
type PaymentPolicy struct {
	// AutoRegister lets Pay create unknown cards with DefaultOpeningBalance.
	AutoRegister          bool
	DefaultOpeningBalance int64
	IdempotencyTTL        time.Duration
	// SettleTimeout bounds requests carrying a reference id once they are
	// detached from the caller.
	SettleTimeout time.Duration
}

// PaymentServiceImpl implements ports.PaymentService.
type PaymentServiceImpl struct {
	directory  ports.CardDirectory
	ledger     ports.Ledger
	shops      ports.ShopRepository
	idempCache ports.IdempotencyCache // optional
	policy     PaymentPolicy
	log        zerolog.Logger
}

// NewPaymentService creates a new PaymentServiceImpl. idempCache may be nil.
func NewPaymentService(
	directory ports.CardDirectory,
	ledger ports.Ledger,
	shops ports.ShopRepository,
	idempCache ports.IdempotencyCache,
	policy PaymentPolicy,
	log zerolog.Logger,
) *PaymentServiceImpl {
	if policy.IdempotencyTTL <= 0 {
		policy.IdempotencyTTL = defaultIdempotencyTTL
	}
	if policy.SettleTimeout <= 0 {
		policy.SettleTimeout = defaultSettleTimeout
	}
	return &PaymentServiceImpl{
		directory:  directory,
		ledger:     ledger,
		shops:      shops,
		idempCache: idempCache,
		policy:     policy,
		log:        log,
	}
}

// Pay charges amount to the card at shopID. Unknown cards are registered on
// the spot when AutoRegister is set; otherwise they fail with CardNotFound.
func (s *PaymentServiceImpl) Pay(ctx context.Context, req ports.PayRequest) (*ports.PaymentResult, error) {
	tagID, err := normalizeTag(req.TagID)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.ShopID <= 0 {
		return nil, apperror.Validation("shop_id must be a positive integer")
	}

	idempKey := ""
	if req.ReferenceID != "" {
		idempKey = fmt.Sprintf("pay:%d:%s", req.ShopID, req.ReferenceID)
	}
	return settle(ctx, s, idempKey, func(ctx context.Context) (*ports.PaymentResult, error) {
		return s.pay(ctx, tagID, req)
	})
}

func (s *PaymentServiceImpl) pay(ctx context.Context, tagID string, req ports.PayRequest) (*ports.PaymentResult, error) {
	if err := s.requireShop(ctx, req.ShopID); err != nil {
		return nil, err
	}

	var (
		card       *domain.Card
		registered bool
		err        error
	)
	if s.policy.AutoRegister {
		card, registered, err = s.directory.ResolveOrCreate(ctx, tagID, s.policy.DefaultOpeningBalance)
	} else {
		card, err = s.directory.FindByTagID(ctx, tagID)
	}
	if err != nil {
		return nil, err
	}
	if !card.Active {
		return nil, apperror.ErrCardInactive()
	}

	shopID := req.ShopID
	tx, err := s.ledger.Debit(ctx, card.ID, req.Amount, &shopID)
	if err != nil {
		return nil, err
	}
	applyTransaction(card, tx)

	s.log.Info().
		Int64("tx_id", tx.ID).
		Str("tag_id", tagID).
		Int64("shop_id", shopID).
		Int64("amount", req.Amount).
		Bool("registered", registered).
		Msg("payment processed successfully")
	return &ports.PaymentResult{
		Card:             card,
		Transaction:      tx,
		RemainingBalance: tx.NewBalance,
		Registered:       registered,
	}, nil
}

// TopUp credits amount to an existing card. It never registers cards.
func (s *PaymentServiceImpl) TopUp(ctx context.Context, req ports.TopUpRequest) (*ports.TopUpResult, error) {
	tagID, err := normalizeTag(req.TagID)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, apperror.ErrInvalidAmount()
	}

	idempKey := ""
	if req.ReferenceID != "" {
		idempKey = fmt.Sprintf("topup:%s:%s", tagID, req.ReferenceID)
	}
	return settle(ctx, s, idempKey, func(ctx context.Context) (*ports.TopUpResult, error) {
		return s.topUp(ctx, tagID, req)
	})
}

func (s *PaymentServiceImpl) topUp(ctx context.Context, tagID string, req ports.TopUpRequest) (*ports.TopUpResult, error) {
	if req.ShopID != nil {
		if err := s.requireShop(ctx, *req.ShopID); err != nil {
			return nil, err
		}
	}

	card, err := s.directory.FindByTagID(ctx, tagID)
	if err != nil {
		return nil, err
	}
	if !card.Active {
		return nil, apperror.ErrCardInactive()
	}

	tx, err := s.ledger.Credit(ctx, card.ID, req.Amount, req.ShopID)
	if err != nil {
		return nil, err
	}
	applyTransaction(card, tx)

	s.log.Info().
		Int64("tx_id", tx.ID).
		Str("tag_id", tagID).
		Int64("amount", req.Amount).
		Msg("top-up processed successfully")
	return &ports.TopUpResult{
		Card:        card,
		Transaction: tx,
		NewBalance:  tx.NewBalance,
	}, nil
}

type settled[T any] struct {
	res *T
	err error
}

// settle runs op at most once per idempotency key. With a key, op runs
// detached from ctx under the key's reservation and its result is cached
// when it completes, even if the caller has already given up. A retry
// meanwhile gets RequestInProgress, afterwards the cached result.
func settle[T any](ctx context.Context, s *PaymentServiceImpl, key string, op func(context.Context) (*T, error)) (*T, error) {
	if key == "" {
		return op(ctx)
	}

	var cached T
	if s.lookupCached(ctx, key, &cached) {
		return &cached, nil
	}
	if !s.reserve(ctx, key) {
		return nil, apperror.ErrRequestInProgress()
	}
	// A request holding the key may have finished between the lookup and
	// the reservation.
	if s.lookupCached(ctx, key, &cached) {
		s.release(ctx, key)
		return &cached, nil
	}

	opCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.policy.SettleTimeout)
	done := make(chan settled[T], 1)
	go func() {
		defer cancel()
		res, err := op(opCtx)
		if err == nil {
			s.storeCached(context.WithoutCancel(opCtx), key, res)
		}
		// A timed out ledger call may still commit; the reservation stays
		// until it expires so a retry cannot apply the operation twice.
		if errors.Is(err, apperror.ErrTimeout(nil)) {
			s.log.Warn().Str("key", key).Msg("outcome unknown, keeping idempotency reservation")
		} else {
			s.release(opCtx, key)
		}
		done <- settled[T]{res: res, err: err}
	}()

	select {
	case r := <-done:
		return r.res, r.err
	case <-ctx.Done():
		s.log.Warn().Str("key", key).Msg("caller stopped waiting, request continues")
		return nil, apperror.ErrTimeout(ctx.Err())
	}
}

// RegisterCard creates a card with an explicit opening balance.
func (s *PaymentServiceImpl) RegisterCard(ctx context.Context, tagID string, openingBalance int64) (*domain.Card, error) {
	tagID, err := normalizeTag(tagID)
	if err != nil {
		return nil, err
	}
	if openingBalance < 0 {
		return nil, apperror.Validation("opening balance must not be negative")
	}
	return s.directory.Register(ctx, tagID, openingBalance)
}

// TestRead looks a card up without side effects.
func (s *PaymentServiceImpl) TestRead(ctx context.Context, tagID string) (*domain.Card, error) {
	tagID, err := normalizeTag(tagID)
	if err != nil {
		return nil, err
	}
	return s.directory.FindByTagID(ctx, tagID)
}

// SetCardActive blocks or unblocks a card.
func (s *PaymentServiceImpl) SetCardActive(ctx context.Context, tagID string, active bool) (*domain.Card, error) {
	tagID, err := normalizeTag(tagID)
	if err != nil {
		return nil, err
	}
	return s.directory.SetActive(ctx, tagID, active)
}

func (s *PaymentServiceImpl) requireShop(ctx context.Context, shopID int64) error {
	shop, err := s.shops.GetByID(ctx, shopID)
	if err != nil {
		return apperror.ErrStore(fmt.Errorf("get shop: %w", err))
	}
	if shop == nil || !shop.IsActive() {
		return apperror.ErrShopNotFound().WithDetails(map[string]any{"shop_id": shopID})
	}
	return nil
}

// lookupCached reports whether a cached result for key was decoded into dst.
// Cache failures are logged and treated as a miss.
func (s *PaymentServiceImpl) lookupCached(ctx context.Context, key string, dst any) bool {
	if s.idempCache == nil {
		return false
	}
	cached, err := s.idempCache.Get(ctx, key)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("idempotency cache lookup failed")
		return false
	}
	if cached == nil {
		return false
	}
	if err := json.Unmarshal(cached, dst); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("discarding unreadable cached result")
		return false
	}
	s.log.Info().Str("key", key).Msg("returning cached result for repeated reference id")
	return true
}

// reserve claims the reference id. A cache failure degrades to no
// reservation rather than rejecting the request.
func (s *PaymentServiceImpl) reserve(ctx context.Context, key string) bool {
	if s.idempCache == nil {
		return true
	}
	ok, err := s.idempCache.Reserve(ctx, key, reservationTTL)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("idempotency reservation failed")
		return true
	}
	return ok
}

func (s *PaymentServiceImpl) release(ctx context.Context, key string) {
	if s.idempCache == nil {
		return
	}
	if err := s.idempCache.Release(context.WithoutCancel(ctx), key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to release idempotency reservation")
	}
}

func (s *PaymentServiceImpl) storeCached(ctx context.Context, key string, result any) {
	if s.idempCache == nil || key == "" {
		return
	}
	data, err := json.Marshal(result)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to marshal result for cache")
		return
	}
	if err := s.idempCache.Set(ctx, key, data, s.policy.IdempotencyTTL); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("failed to cache idempotency result")
	}
}

func normalizeTag(raw string) (string, error) {
	tagID := domain.NormalizeTagID(raw)
	if !domain.ValidTagID(tagID) {
		return "", apperror.ErrInvalidTagID()
	}
	return tagID, nil
}

// applyTransaction reflects a committed transaction on the in-hand card copy.
func applyTransaction(card *domain.Card, tx *domain.Transaction) {
	card.Balance = tx.NewBalance
	at := tx.CreatedAt
	card.LastUsedAt = &at
}
