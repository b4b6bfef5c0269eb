package auth

import (
	"errors"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/willemschots/newsletter/internal/krypto"
)

const maxUsernameBytes = 256

var (
	// ErrInvalidCredentials is returned for every failed validation, no matter
	// the underlying cause.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnexpected wraps failures that can not be attributed to the provided credentials.
	ErrUnexpected      = errors.New("unexpected error")
	ErrDuplicateUser   = errors.New("duplicate user")
	ErrInvalidUsername = errors.New("invalid username")
)

// Credentials are submitted by someone trying to log in.
type Credentials struct {
	Username string   `schema:"username"`
	Password Password `schema:"password"`
}

// User is an administrator account.
type User struct {
	ID           uuid.UUID
	Username     string
	PasswordHash krypto.Argon2Hash
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// StoredCredentials is what the store knows about a username.
// The password hash is returned as stored, it is parsed by the Service.
type StoredCredentials struct {
	UserID       uuid.UUID
	PasswordHash krypto.Secret
}

// ParseUsername validates a username for a new account.
// Lookups of existing usernames are never validated, they are matched exactly.
func ParseUsername(s string) (string, error) {
	if s == "" || len(s) > maxUsernameBytes || strings.TrimSpace(s) != s {
		return "", ErrInvalidUsername
	}

	for _, r := range s {
		if unicode.IsControl(r) {
			return "", ErrInvalidUsername
		}
	}

	return s, nil
}
