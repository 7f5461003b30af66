// Package gateway binds the process to exactly one backing store and
// classifies its failures.
package gateway

import (
	"context"
	"errors"

	"nfc-card-ledger/config"
	"nfc-card-ledger/internal/adapter/storage/memory"
	"nfc-card-ledger/internal/adapter/storage/postgres"
	"nfc-card-ledger/internal/core/domain"
	"nfc-card-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

// Mode names the backend a Gateway is bound to.
type Mode string

const (
	ModePostgres Mode = "postgres"
	ModeMemory   Mode = "memory"
)

// Connector opens a PostgreSQL pool and returns a func that closes it.
type Connector func(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (postgres.Pool, func(), error)

// DefaultConnector dials a pgx pool.
func DefaultConnector(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (postgres.Pool, func(), error) {
	pool, err := postgres.NewPool(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}
	return pool, pool.Close, nil
}

// Gateway implements ports.Store over the bound backend. Every backend error
// that is not a domain condition comes back as *ports.StoreError.
type Gateway struct {
	mode    Mode
	store   ports.Store
	cards   cardRepo
	txs     txRepo
	shops   shopRepo
	health  []ports.HealthChecker
	closeFn func()
}

// Open selects the backend once. A postgres driver that cannot connect
// binds the memory store for the rest of the process.
func Open(ctx context.Context, cfg *config.Config, connect Connector, log zerolog.Logger) *Gateway {
	if cfg.Store.Driver == string(ModePostgres) {
		dialCtx := ctx
		if cfg.Store.ConnectTimeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(ctx, cfg.Store.ConnectTimeout)
			defer cancel()
		}

		pool, closeFn, err := connect(dialCtx, cfg.Database, log)
		if err == nil {
			log.Info().Str("store", string(ModePostgres)).Msg("backing store bound")
			return newGateway(ModePostgres, postgres.NewStore(pool), closeFn, postgres.NewHealthCheck(pool))
		}
		log.Warn().Err(err).Msg("PostgreSQL unavailable, falling back to in-memory store")
	}

	var opts []memory.Option
	if cfg.Store.SeedDemoData {
		opts = append(opts, memory.WithDemoData())
	}
	log.Info().
		Str("store", string(ModeMemory)).
		Bool("demo_data", cfg.Store.SeedDemoData).
		Msg("backing store bound")
	return newGateway(ModeMemory, memory.New(opts...), func() {}, memory.NewHealthCheck())
}

// Wrap classifies errors from an already constructed store.
func Wrap(mode Mode, store ports.Store, health ...ports.HealthChecker) *Gateway {
	return newGateway(mode, store, func() {}, health...)
}

func newGateway(mode Mode, store ports.Store, closeFn func(), health ...ports.HealthChecker) *Gateway {
	return &Gateway{
		mode:    mode,
		store:   store,
		cards:   cardRepo{store.Cards()},
		txs:     txRepo{store.Transactions()},
		shops:   shopRepo{store.Shops()},
		health:  health,
		closeFn: closeFn,
	}
}

func (g *Gateway) Mode() Mode { return g.mode }

// HealthCheckers returns the checkers of the bound backend.
func (g *Gateway) HealthCheckers() []ports.HealthChecker { return g.health }

// Close releases the backend's connections.
func (g *Gateway) Close() { g.closeFn() }

func (g *Gateway) Cards() ports.CardRepository               { return g.cards }
func (g *Gateway) Transactions() ports.TransactionRepository { return g.txs }
func (g *Gateway) Shops() ports.ShopRepository               { return g.shops }

func (g *Gateway) ApplyTransaction(ctx context.Context, t *domain.Transaction) error {
	return classify("apply transaction", g.store.ApplyTransaction(ctx, t))
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ports.ErrDuplicate) || errors.Is(err, ports.ErrConflict) || errors.Is(err, ports.ErrNotFound) {
		return err
	}
	var se *ports.StoreError
	if errors.As(err, &se) {
		return err
	}
	return &ports.StoreError{Op: op, Err: err}
}

type cardRepo struct{ inner ports.CardRepository }

func (r cardRepo) Create(ctx context.Context, card *domain.Card) error {
	return classify("create card", r.inner.Create(ctx, card))
}

func (r cardRepo) GetByID(ctx context.Context, id int64) (*domain.Card, error) {
	card, err := r.inner.GetByID(ctx, id)
	return card, classify("get card", err)
}

func (r cardRepo) GetByTagID(ctx context.Context, tagID string) (*domain.Card, error) {
	card, err := r.inner.GetByTagID(ctx, tagID)
	return card, classify("get card by tag", err)
}

func (r cardRepo) SetActive(ctx context.Context, id int64, active bool) error {
	return classify("set card active", r.inner.SetActive(ctx, id, active))
}

type txRepo struct{ inner ports.TransactionRepository }

func (r txRepo) GetByID(ctx context.Context, id int64) (*domain.Transaction, error) {
	tx, err := r.inner.GetByID(ctx, id)
	return tx, classify("get transaction", err)
}

func (r txRepo) List(ctx context.Context, params ports.TransactionListParams) ([]domain.Transaction, int64, error) {
	txs, total, err := r.inner.List(ctx, params)
	return txs, total, classify("list transactions", err)
}

func (r txRepo) GetStats(ctx context.Context, params ports.StatsParams) (*ports.TransactionStats, error) {
	stats, err := r.inner.GetStats(ctx, params)
	return stats, classify("transaction stats", err)
}

type shopRepo struct{ inner ports.ShopRepository }

func (r shopRepo) GetByID(ctx context.Context, id int64) (*domain.Shop, error) {
	shop, err := r.inner.GetByID(ctx, id)
	return shop, classify("get shop", err)
}

func (r shopRepo) List(ctx context.Context) ([]domain.Shop, error) {
	shops, err := r.inner.List(ctx)
	return shops, classify("list shops", err)
}
