// Package pg implements auth.Store on PostgreSQL.
//
// The store expects the following table, the schema itself is managed
// outside of this application:
//
//	CREATE TABLE users (
//		user_id       uuid PRIMARY KEY,
//		username      TEXT NOT NULL UNIQUE,
//		password_hash TEXT NOT NULL
//	);
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/willemschots/newsletter/internal/auth"
	"github.com/willemschots/newsletter/internal/db"
	"github.com/willemschots/newsletter/internal/errorz"
	"github.com/willemschots/newsletter/internal/krypto"
)

// Config configures a Store.
type Config struct {
	// AcquireTimeout is the max duration a call waits for a connection.
	// Zero means a call waits as long as its context allows.
	AcquireTimeout time.Duration
}

// Store is an auth.Store backed by a PostgreSQL pool.
type Store struct {
	pool *pgxpool.Pool
	cfg  Config
}

// New creates a new Store.
func New(pool *pgxpool.Pool, cfg Config) *Store {
	return &Store{
		pool: pool,
		cfg:  cfg,
	}
}

func (s *Store) acquire(ctx context.Context) (*pgxpool.Conn, error) {
	acquireCtx := ctx
	if s.cfg.AcquireTimeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, s.cfg.AcquireTimeout)
		defer cancel()
	}

	conn, err := s.pool.Acquire(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	return conn, nil
}

func (s *Store) FindCredentials(ctx context.Context, username string) (auth.StoredCredentials, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return auth.StoredCredentials{}, err
	}
	defer conn.Release()

	q := db.Query{Numbered: true}
	q.Unsafe(`SELECT user_id, password_hash FROM users WHERE username = `)
	q.Param(username)

	query, params := q.Get()

	var (
		id   pgtype.UUID
		hash string
	)
	err = conn.QueryRow(ctx, query, params...).Scan(&id, &hash)
	if err != nil {
		return auth.StoredCredentials{}, errorz.MapDBErr(err)
	}

	return auth.StoredCredentials{
		UserID:       uuid.UUID(id.Bytes),
		PasswordHash: krypto.NewSecret(hash),
	}, nil
}

func (s *Store) FindUsername(ctx context.Context, userID uuid.UUID) (string, error) {
	conn, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer conn.Release()

	q := db.Query{Numbered: true}
	q.Unsafe(`SELECT username FROM users WHERE user_id = `)
	q.Param(pgUUID(userID))

	query, params := q.Get()

	var username string
	err = conn.QueryRow(ctx, query, params...).Scan(&username)
	if err != nil {
		return "", errorz.MapDBErr(err)
	}

	return username, nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, userID uuid.UUID, hash krypto.Argon2Hash) error {
	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	q := db.Query{Numbered: true}
	q.Unsafe(`UPDATE users SET password_hash = `)
	q.Param(hash.Encode())
	q.Unsafe(` WHERE user_id = `)
	q.Param(pgUUID(userID))

	query, params := q.Get()

	tag, err := conn.Exec(ctx, query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("user not found: %w", errorz.ErrNotFound)
	}

	return nil
}

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	if u.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	conn, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	q := db.Query{Numbered: true}
	q.Unsafe(`INSERT INTO users (user_id, username, password_hash) VALUES (`)
	q.Params(pgUUID(u.ID), u.Username, u.PasswordHash.Encode())
	q.Unsafe(`)`)

	query, params := q.Get()

	_, err = conn.Exec(ctx, query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func pgUUID(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}
