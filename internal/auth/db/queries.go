package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/willemschots/newsletter/internal/auth"
	"github.com/willemschots/newsletter/internal/db"
	"github.com/willemschots/newsletter/internal/errorz"
	"github.com/willemschots/newsletter/internal/krypto"
)

type execFunc func(ctx context.Context, query string, params ...any) (sql.Result, error)
type queryRowFunc func(ctx context.Context, query string, params ...any) *sql.Row

func insertUser(ctx context.Context, ef execFunc, u *auth.User) error {
	if u.ID == uuid.Nil {
		return fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	var q db.Query
	q.Unsafe(`INSERT INTO users (id, username, password_hash, created_at, updated_at) VALUES (`)
	q.Params(u.ID.String(), u.Username, u.PasswordHash, u.CreatedAt.UTC(), u.UpdatedAt.UTC())
	q.Unsafe(`)`)

	s, params := q.Get()
	_, err := ef(ctx, s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	return nil
}

func updatePasswordHash(ctx context.Context, ef execFunc, userID uuid.UUID, hash krypto.Argon2Hash, now time.Time) error {
	var q db.Query
	q.Unsafe(`UPDATE users SET password_hash = `)
	q.Param(hash)
	q.Unsafe(`, updated_at = `)
	q.Param(now)
	q.Unsafe(` WHERE id = `)
	q.Param(userID.String())

	s, params := q.Get()
	result, err := ef(ctx, s, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if rows == 0 {
		return fmt.Errorf("user not found: %w", errorz.ErrNotFound)
	}

	return nil
}

func selectCredentials(ctx context.Context, qf queryRowFunc, username string) (auth.StoredCredentials, error) {
	var q db.Query
	q.Unsafe(`SELECT id, password_hash FROM users WHERE username = `)
	q.Param(username)

	s, params := q.Get()

	var (
		id   string
		hash string
	)
	err := qf(ctx, s, params...).Scan(&id, &hash)
	if err != nil {
		return auth.StoredCredentials{}, errorz.MapDBErr(err)
	}

	userID, err := uuid.Parse(id)
	if err != nil {
		return auth.StoredCredentials{}, fmt.Errorf("failed to parse user id: %w", err)
	}

	return auth.StoredCredentials{
		UserID:       userID,
		PasswordHash: krypto.NewSecret(hash),
	}, nil
}

func selectUsername(ctx context.Context, qf queryRowFunc, userID uuid.UUID) (string, error) {
	var q db.Query
	q.Unsafe(`SELECT username FROM users WHERE id = `)
	q.Param(userID.String())

	s, params := q.Get()

	var username string
	err := qf(ctx, s, params...).Scan(&username)
	if err != nil {
		return "", errorz.MapDBErr(err)
	}

	return username, nil
}
