package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/willemschots/newsletter/internal/krypto"
)

// Store provides access to stored credentials.
//
// Implementations return errorz.ErrNotFound when a user does not exist and
// any other error when the store itself failed. A connection is acquired
// for every call and released before it returns.
type Store interface {
	// FindCredentials finds the credentials stored for an exact username.
	FindCredentials(ctx context.Context, username string) (StoredCredentials, error)
	// UpdatePasswordHash overwrites the password hash of a user.
	UpdatePasswordHash(ctx context.Context, userID uuid.UUID, hash krypto.Argon2Hash) error
	// CreateUser creates a new user. It returns errorz.ErrConstraintViolated
	// if the username is taken.
	CreateUser(ctx context.Context, u *User) error
	// FindUsername finds the username of a user.
	FindUsername(ctx context.Context, userID uuid.UUID) (string, error)
}
