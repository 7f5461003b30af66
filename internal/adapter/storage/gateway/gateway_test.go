package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"nfc-card-ledger/config"
	"nfc-card-ledger/internal/adapter/storage/memory"
	"nfc-card-ledger/internal/adapter/storage/postgres"
	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func storeConfig(driver string, seed bool) *config.Config {
	return &config.Config{Store: config.StoreConfig{
		Driver:         driver,
		SeedDemoData:   seed,
		ConnectTimeout: time.Second,
	}}
}

func failingConnector(calls *int) Connector {
	return func(ctx context.Context, _ config.DatabaseConfig, _ zerolog.Logger) (postgres.Pool, func(), error) {
		*calls++
		return nil, nil, errors.New("connection refused")
	}
}

func mockConnector(t *testing.T) (Connector, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return func(ctx context.Context, _ config.DatabaseConfig, _ zerolog.Logger) (postgres.Pool, func(), error) {
		_, hasDeadline := ctx.Deadline()
		assert.True(t, hasDeadline, "dial should be bounded by connect_timeout")
		return mock, func() {}, nil
	}, mock
}

func TestOpen_MemoryDriver(t *testing.T) {
	calls := 0
	g := Open(context.Background(), storeConfig("memory", true), failingConnector(&calls), zerolog.Nop())
	defer g.Close()

	assert.Equal(t, ModeMemory, g.Mode())
	assert.Zero(t, calls, "memory driver must not dial")

	card, err := g.Cards().GetByTagID(context.Background(), "NFC001")
	require.NoError(t, err)
	require.NotNil(t, card)
	assert.Equal(t, int64(500), card.Balance)

	require.Len(t, g.HealthCheckers(), 1)
	assert.Equal(t, "memory", g.HealthCheckers()[0].Name())
}

func TestOpen_MemoryWithoutSeed(t *testing.T) {
	g := Open(context.Background(), storeConfig("memory", false), nil, zerolog.Nop())

	card, err := g.Cards().GetByTagID(context.Background(), "NFC001")
	require.NoError(t, err)
	assert.Nil(t, card)
}

func TestOpen_PostgresFallsBackToMemory(t *testing.T) {
	calls := 0
	g := Open(context.Background(), storeConfig("postgres", true), failingConnector(&calls), zerolog.Nop())

	assert.Equal(t, ModeMemory, g.Mode())
	assert.Equal(t, 1, calls)

	shops, err := g.Shops().List(context.Background())
	require.NoError(t, err)
	assert.Len(t, shops, 3)
}

func TestOpen_Postgres(t *testing.T) {
	connect, mock := mockConnector(t)
	g := Open(context.Background(), storeConfig("postgres", true), connect, zerolog.Nop())

	assert.Equal(t, ModePostgres, g.Mode())
	require.Len(t, g.HealthCheckers(), 1)
	assert.Equal(t, "postgresql", g.HealthCheckers()[0].Name())

	mock.ExpectQuery("SELECT (.+) FROM shops WHERE id").
		WithArgs(int64(1)).
		WillReturnError(errors.New("connection reset by peer"))

	_, err := g.Shops().GetByID(context.Background(), 1)
	require.Error(t, err)
	var se *ports.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "get shop", se.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGateway_DomainErrorsPassThrough(t *testing.T) {
	connect, mock := mockConnector(t)
	g := Open(context.Background(), storeConfig("postgres", false), connect, zerolog.Nop())

	mock.ExpectQuery("INSERT INTO cards").
		WillReturnError(&pgconn.PgError{Code: "23505"})

	err := g.Cards().Create(context.Background(), &domain.Card{TagID: "NFC001", Active: true})
	assert.ErrorIs(t, err, ports.ErrDuplicate)
	assert.False(t, ports.IsStoreError(err))
}

func TestGateway_MemoryConditionsPassThrough(t *testing.T) {
	g := Wrap(ModeMemory, memory.New(memory.WithDemoData()))
	ctx := context.Background()

	card, err := g.Cards().GetByTagID(ctx, "NFC002")
	require.NoError(t, err)

	err = g.ApplyTransaction(ctx, &domain.Transaction{
		CardID: card.ID, Kind: domain.TransactionKindPurchase, Amount: 10,
		PreviousBalance: 999, NewBalance: 989, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ports.ErrConflict)

	err = g.ApplyTransaction(ctx, &domain.Transaction{
		CardID: 404, Kind: domain.TransactionKindTopup, Amount: 1,
		PreviousBalance: 0, NewBalance: 1, CreatedAt: time.Now(),
	})
	assert.ErrorIs(t, err, ports.ErrNotFound)

	err = g.Cards().Create(ctx, &domain.Card{TagID: "NFC002"})
	assert.ErrorIs(t, err, ports.ErrDuplicate)
}

func TestGateway_ApplyTransactionFailureIsStoreError(t *testing.T) {
	connect, mock := mockConnector(t)
	g := Open(context.Background(), storeConfig("postgres", false), connect, zerolog.Nop())

	mock.ExpectBegin().WillReturnError(errors.New("connection refused"))

	err := g.ApplyTransaction(context.Background(), &domain.Transaction{
		CardID: 1, Kind: domain.TransactionKindPurchase, Amount: 120,
		PreviousBalance: 500, NewBalance: 380, CreatedAt: time.Now(),
	})
	var se *ports.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "apply transaction", se.Op)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))

	existing := &ports.StoreError{Op: "inner", Err: errors.New("x")}
	assert.Same(t, existing, classify("outer", existing))

	err := classify("list transactions", context.DeadlineExceeded)
	var se *ports.StoreError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "list transactions", se.Op)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
