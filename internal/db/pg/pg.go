// Package pg opens PostgreSQL connection pools.
package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/willemschots/newsletter/internal/krypto"
)

// Config configures a PostgreSQL pool.
type Config struct {
	// DSN is a connection string as accepted by pgxpool.ParseConfig.
	DSN krypto.Secret
	// MaxConns is the maximum size of the pool. Zero uses the pgx default.
	MaxConns int32
}

// Open creates a connection pool and verifies the database is reachable.
// Connection errors never include the DSN.
func Open(ctx context.Context, cfg Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(string(cfg.DSN.SecretValue()))
	if err != nil {
		// pgx errors may echo the connection string.
		return nil, errors.New("failed to parse postgres dsn")
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	err = pool.Ping(ctx)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	return pool, nil
}
