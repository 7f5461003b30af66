package postgres

import (
	"context"
	"errors"
	"fmt"

	"nfc-card-ledger/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

const applicationName = "nfc-card-ledger"

// ErrSchemaMissing means the ledger tables have not been migrated.
var ErrSchemaMissing = errors.New("ledger schema not migrated")

const schemaQuery = `SELECT to_regclass('shops') IS NOT NULL
	AND to_regclass('cards') IS NOT NULL
	AND to_regclass('transactions') IS NOT NULL`

// NewPool dials PostgreSQL and refuses a database without the ledger
// tables. ctx bounds the dial, the ping and the schema probe.
func NewPool(ctx context.Context, cfg config.DatabaseConfig, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	if cfg.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime
	}
	poolCfg.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if err := checkSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("host", cfg.Host).
		Str("dbname", cfg.DBName).
		Int32("max_conns", cfg.MaxConns).
		Msg("ledger database ready")

	return pool, nil
}

func checkSchema(ctx context.Context, pool Pool) error {
	var ok bool
	if err := pool.QueryRow(ctx, schemaQuery).Scan(&ok); err != nil {
		return fmt.Errorf("probing ledger schema: %w", err)
	}
	if !ok {
		return ErrSchemaMissing
	}
	return nil
}

// HealthCheck reports the database healthy when it answers and still holds
// the ledger tables.
type HealthCheck struct {
	pool Pool
}

func NewHealthCheck(pool Pool) *HealthCheck {
	return &HealthCheck{pool: pool}
}

func (h *HealthCheck) Ping(ctx context.Context) error {
	return checkSchema(ctx, h.pool)
}

func (h *HealthCheck) Name() string { return "postgresql" }
