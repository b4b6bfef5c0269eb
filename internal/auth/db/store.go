// Package db implements auth.Store on SQLite.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/newsletter/internal/auth"
	"github.com/willemschots/newsletter/internal/krypto"
)

// Config configures a Store.
type Config struct {
	// AcquireTimeout is the max duration a call waits for a connection.
	// Zero means a call waits as long as its context allows.
	AcquireTimeout time.Duration
}

// Store is an auth.Store backed by SQLite. Reads and writes use separate
// pools, see db.OpenSQLite.
type Store struct {
	readDB  *sql.DB
	writeDB *sql.DB
	cfg     Config

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

// New creates a new Store.
func New(readDB, writeDB *sql.DB, cfg Config) *Store {
	return &Store{
		readDB:  readDB,
		writeDB: writeDB,
		cfg:     cfg,
		NowFunc: time.Now,
	}
}

// withConn acquires a connection from pool, runs f and releases the connection.
func withConn[T any](ctx context.Context, pool *sql.DB, timeout time.Duration, f func(conn *sql.Conn) (T, error)) (T, error) {
	var zero T

	acquireCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn, err := pool.Conn(acquireCtx)
	if err != nil {
		return zero, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	return f(conn)
}

func (s *Store) FindCredentials(ctx context.Context, username string) (auth.StoredCredentials, error) {
	return withConn(ctx, s.readDB, s.cfg.AcquireTimeout, func(conn *sql.Conn) (auth.StoredCredentials, error) {
		return selectCredentials(ctx, conn.QueryRowContext, username)
	})
}

func (s *Store) FindUsername(ctx context.Context, userID uuid.UUID) (string, error) {
	return withConn(ctx, s.readDB, s.cfg.AcquireTimeout, func(conn *sql.Conn) (string, error) {
		return selectUsername(ctx, conn.QueryRowContext, userID)
	})
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, hash krypto.Argon2Hash) error {
	_, err := withConn(ctx, s.writeDB, s.cfg.AcquireTimeout, func(conn *sql.Conn) (struct{}, error) {
		return struct{}{}, updatePasswordHash(ctx, conn.ExecContext, userID, hash, s.now())
	})
	return err
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	_, err := withConn(ctx, s.writeDB, s.cfg.AcquireTimeout, func(conn *sql.Conn) (struct{}, error) {
		return struct{}{}, insertUser(ctx, conn.ExecContext, u)
	})
	return err
}

// now returns the current time in UTC, without a monotonic clock reading.
func (s *Store) now() time.Time {
	return s.NowFunc().UTC().Round(0)
}
