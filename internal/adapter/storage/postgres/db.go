package postgres

import (
	"context"
	"errors"
	"fmt"

	"reseller-ledger/config"
	"reseller-ledger/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Pool is the subset of *pgxpool.Pool the repositories use. pgxmock satisfies it in tests.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolationCode = "23505"

// NewPool creates a PostgreSQL connection pool using pgx.
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

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("dbname", cfg.DBName).
		Int32("max_conns", cfg.MaxConns).
		Msg("PostgreSQL connection pool established")

	return pool, nil
}

// SchemaProbe checks that the database answers and the ledger schema has been migrated.
func SchemaProbe(pool Pool) ports.NamedCheck {
	return ports.NamedCheck{
		Dependency: "postgresql",
		Probe: func(ctx context.Context) error {
			var migrated bool
			if err := pool.QueryRow(ctx, "SELECT to_regclass('public.wallet_movements') IS NOT NULL").Scan(&migrated); err != nil {
				return fmt.Errorf("probe postgresql: %w", err)
			}
			if !migrated {
				return errors.New("ledger schema not migrated")
			}
			return nil
		},
	}
}

// mapWriteError turns a unique violation into ports.ErrUniqueViolation and wraps anything else.
func mapWriteError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%s: %w", op, ports.ErrUniqueViolation)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// noRows reports whether err means the lookup matched nothing.
func noRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
