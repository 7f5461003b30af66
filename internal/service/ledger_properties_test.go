package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"nfc-card-ledger/internal/adapter/storage/memory"
	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"
	"nfc-card-ledger/pkg/apperror"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// engine wires the real services over a memory store.
type engine struct {
	store    ports.Store
	ledger   *LedgerServiceImpl
	payments *PaymentServiceImpl
	taps     *tapService
	clock    *fakeClock
}

func newEngine(t *testing.T, store ports.Store) *engine {
	t.Helper()
	return newCachedEngine(t, store, nil)
}

// newCachedEngine is newEngine with an idempotency cache.
func newCachedEngine(t *testing.T, store ports.Store, cache ports.IdempotencyCache) *engine {
	t.Helper()
	log := zerolog.Nop()
	ledger := NewLedgerService(store, 1, 5*time.Second, log)
	dir := NewCardDirectory(store, log)
	payments := NewPaymentService(dir, ledger, store.Shops(), cache, PaymentPolicy{
		AutoRegister:          true,
		DefaultOpeningBalance: DefaultOpeningBalance,
	}, log)
	clock := &fakeClock{t: t0}
	taps := NewTapService(payments, NewDebouncer(DefaultDebounceCooldown), log).(*tapService)
	taps.now = clock.now
	return &engine{store: store, ledger: ledger, payments: payments, taps: taps, clock: clock}
}

func (e *engine) card(t *testing.T, tagID string) *domain.Card {
	t.Helper()
	c, err := e.store.Cards().GetByTagID(context.Background(), tagID)
	require.NoError(t, err)
	require.NotNil(t, c)
	return c
}

func (e *engine) history(t *testing.T, cardID int64) []domain.Transaction {
	t.Helper()
	txs, _, err := e.store.Transactions().List(context.Background(), ports.TransactionListParams{CardID: &cardID})
	require.NoError(t, err)
	return txs
}

// assertReplayConsistent replays the card's log from opening and checks it
// lands on the stored balance.
func assertReplayConsistent(t *testing.T, e *engine, tagID string, opening int64) {
	t.Helper()
	card := e.card(t, tagID)
	running := opening
	for _, tx := range e.history(t, card.ID) {
		assert.True(t, tx.IsConsistent(), "tx %d inconsistent", tx.ID)
		assert.Equal(t, running, tx.PreviousBalance, "tx %d previous balance", tx.ID)
		running = tx.NewBalance
	}
	assert.Equal(t, running, card.Balance)
}

// ==================== Scenarios ====================

func TestScenario_PayDebitsCard(t *testing.T) {
	e := newEngine(t, memory.New(memory.WithDemoData()))

	res, err := e.payments.Pay(context.Background(), ports.PayRequest{TagID: "NFC001", ShopID: 1, Amount: 120})
	require.NoError(t, err)

	assert.Equal(t, int64(380), res.RemainingBalance)
	assert.Equal(t, int64(500), res.Transaction.PreviousBalance)
	assert.Equal(t, int64(380), res.Transaction.NewBalance)
	assert.Equal(t, int64(120), res.Transaction.Amount)
	assert.Equal(t, domain.TransactionKindPurchase, res.Transaction.Kind)
	assert.Equal(t, int64(380), e.card(t, "NFC001").Balance)
}

func TestScenario_InsufficientBalance(t *testing.T) {
	store := memory.New(memory.WithDemoData())
	e := newEngine(t, store)
	ctx := context.Background()

	// Bring NFC001 down to 50.
	_, err := e.payments.Pay(ctx, ports.PayRequest{TagID: "NFC001", ShopID: 1, Amount: 450})
	require.NoError(t, err)
	before := len(e.history(t, e.card(t, "NFC001").ID))

	_, err = e.payments.Pay(ctx, ports.PayRequest{TagID: "NFC001", ShopID: 1, Amount: 120})
	var appErr *apperror.AppError
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "PAY_001", appErr.Code)
	assert.Equal(t, int64(50), appErr.Details["current_balance"])
	assert.Equal(t, int64(120), appErr.Details["needed"])

	card := e.card(t, "NFC001")
	assert.Equal(t, int64(50), card.Balance)
	assert.Len(t, e.history(t, card.ID), before)
}

func TestScenario_UnknownTagAutoRegistered(t *testing.T) {
	e := newEngine(t, memory.New(memory.WithDemoData()))

	res, err := e.payments.Pay(context.Background(), ports.PayRequest{TagID: "NEWTAG", ShopID: 1, Amount: 30})
	require.NoError(t, err)

	assert.True(t, res.Registered)
	assert.Equal(t, int64(70), res.RemainingBalance)
	assert.Equal(t, int64(100), res.Transaction.PreviousBalance)
	assert.Equal(t, int64(70), e.card(t, "NEWTAG").Balance)
}

func TestScenario_DuplicateTapInsideCooldown(t *testing.T) {
	e := newEngine(t, memory.New(memory.WithDemoData()))
	ctx := context.Background()
	shopID := int64(1)
	req := ports.TapRequest{TagID: "NFC002", Mode: ports.TapModePay, ShopID: &shopID, Amount: 10}

	_, err := e.taps.HandleTap(ctx, req)
	require.NoError(t, err)

	e.clock.advance(200 * time.Millisecond)
	_, err = e.taps.HandleTap(ctx, req)
	assert.ErrorIs(t, err, apperror.ErrTapSuppressed(""))

	card := e.card(t, "NFC002")
	assert.Equal(t, int64(240), card.Balance)
	assert.Len(t, e.history(t, card.ID), 1)
}

func TestScenario_TopUpCreditsCard(t *testing.T) {
	e := newEngine(t, memory.New(memory.WithDemoData()))
	ctx := context.Background()

	_, err := e.payments.Pay(ctx, ports.PayRequest{TagID: "NFC001", ShopID: 1, Amount: 120})
	require.NoError(t, err)

	res, err := e.payments.TopUp(ctx, ports.TopUpRequest{TagID: "NFC001", Amount: 200})
	require.NoError(t, err)
	assert.Equal(t, int64(580), res.NewBalance)
	assert.Equal(t, int64(380), res.Transaction.PreviousBalance)
	assert.Equal(t, int64(580), res.Transaction.NewBalance)
	assert.Equal(t, domain.TransactionKindTopup, res.Transaction.Kind)
	assert.Nil(t, res.Transaction.ShopID)
}

// faultyStore slows down or fails the ledger writes of an otherwise working
// store.
type faultyStore struct {
	ports.Store
	failApply  bool
	applyDelay time.Duration
}

func (f *faultyStore) ApplyTransaction(ctx context.Context, t *domain.Transaction) error {
	if f.applyDelay > 0 {
		time.Sleep(f.applyDelay)
	}
	if f.failApply {
		return &ports.StoreError{Op: "apply transaction", Err: errors.New("write timeout")}
	}
	return f.Store.ApplyTransaction(ctx, t)
}

func TestScenario_StoreWriteFailureLeavesBalance(t *testing.T) {
	e := newEngine(t, &faultyStore{Store: memory.New(memory.WithDemoData()), failApply: true})
	before := e.card(t, "NFC001")

	_, err := e.payments.Pay(context.Background(), ports.PayRequest{TagID: "NFC001", ShopID: 1, Amount: 120})
	assert.ErrorIs(t, err, apperror.ErrStore(nil))

	after := e.card(t, "NFC001")
	assert.Equal(t, before.Balance, after.Balance)
	assert.Equal(t, before.LastUsedAt, after.LastUsedAt)
	assert.Empty(t, e.history(t, after.ID))
}

// ==================== Properties ====================

func TestProperty_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	e := newEngine(t, memory.New(memory.WithDemoData()))
	card := e.card(t, "NFC002") // 250
	ctx := context.Background()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int64
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx, err := e.ledger.Debit(ctx, card.ID, 20, nil)
			if err != nil {
				assert.ErrorIs(t, err, apperror.ErrInsufficientBalance(0, 0))
				return
			}
			assert.GreaterOrEqual(t, tx.NewBalance, int64(0))
			mu.Lock()
			succeeded++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(12), succeeded)
	assert.Equal(t, int64(10), e.card(t, "NFC002").Balance)
	assertReplayConsistent(t, e, "NFC002", 250)
}

func TestProperty_ConcurrentMixedOperationsLinearizable(t *testing.T) {
	e := newEngine(t, memory.New(memory.WithDemoData()))
	card := e.card(t, "NFC003") // 1000
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		debits  int64
		credits int64
	)
	for i := 0; i < 60; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			amount := int64(i%7 + 1)
			if i%3 == 0 {
				if _, err := e.ledger.Credit(ctx, card.ID, amount, nil); assert.NoError(t, err) {
					mu.Lock()
					credits += amount
					mu.Unlock()
				}
				return
			}
			if _, err := e.ledger.Debit(ctx, card.ID, amount, nil); assert.NoError(t, err) {
				mu.Lock()
				debits += amount
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1000+credits-debits, e.card(t, "NFC003").Balance)
	assert.Len(t, e.history(t, card.ID), 60)
	assertReplayConsistent(t, e, "NFC003", 1000)
}

func TestProperty_DifferentCardsProceedIndependently(t *testing.T) {
	e := newEngine(t, memory.New(memory.WithDemoData()))
	ctx := context.Background()
	a := e.card(t, "NFC001")
	b := e.card(t, "NFC003")

	release, err := e.ledger.locks.acquire(ctx, a.ID)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	_, err = e.ledger.Debit(ctx, b.ID, 10, nil)
	require.NoError(t, err)
}

func TestProperty_ConcurrentFirstTapsRegisterOnce(t *testing.T) {
	e := newEngine(t, memory.New(memory.WithDemoData()))
	ctx := context.Background()

	var wg sync.WaitGroup
	registered := make(chan bool, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := e.payments.Pay(ctx, ports.PayRequest{TagID: "FRESH1", ShopID: 2, Amount: 5})
			if assert.NoError(t, err) {
				registered <- res.Registered
			}
		}()
	}
	wg.Wait()
	close(registered)

	created := 0
	for r := range registered {
		if r {
			created++
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, int64(50), e.card(t, "FRESH1").Balance)
	assertReplayConsistent(t, e, "FRESH1", 100)
}

func TestProperty_IdempotentRegistration(t *testing.T) {
	e := newEngine(t, memory.New(memory.WithDemoData()))
	ctx := context.Background()

	_, err := e.payments.RegisterCard(ctx, "CARD77", 40)
	require.NoError(t, err)
	_, err = e.payments.TopUp(ctx, ports.TopUpRequest{TagID: "CARD77", Amount: 10})
	require.NoError(t, err)

	_, err = e.payments.RegisterCard(ctx, "CARD77", 999)
	assert.ErrorIs(t, err, apperror.ErrDuplicateCard())
	assert.Equal(t, int64(50), e.card(t, "CARD77").Balance)
}

func TestProperty_TestReadHasNoSideEffects(t *testing.T) {
	e := newEngine(t, memory.New(memory.WithDemoData()))
	ctx := context.Background()

	_, err := e.payments.TestRead(ctx, "GHOST")
	assert.ErrorIs(t, err, apperror.ErrCardNotFound())

	c, err := e.store.Cards().GetByTagID(ctx, "GHOST")
	require.NoError(t, err)
	assert.Nil(t, c)
}
