package auth

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"

	"github.com/willemschots/newsletter/internal/krypto"
)

const (
	// We put a generous upper cap on password length, so people can use
	// passphrases but we don't allow MBs of data as a password.
	maxPasswordBytes = 512
)

var ErrInvalidPassword = errors.New("invalid password")

// Password is a plaintext password.
//
// It should never be persisted, logged or exposed in any other way. To
// protect ourselves from accidentally doing so, the type implements
// several common interfaces that would allow it to be used inappropriately.
//
// The operations allowed on a Password:
// - Converting it to a hash.
// - Comparing it with an existing hash to see if they match.
// - Comparing it with another password in constant time.
//
// No strength policy is applied. The zero value is an empty password.
type Password struct {
	plain []byte
}

// ParsePassword creates a new Password from a plaintext string.
// It errors if the password is empty or too long.
func ParsePassword(pwd string) (Password, error) {
	if len(pwd) == 0 || len(pwd) > maxPasswordBytes {
		return Password{}, ErrInvalidPassword
	}

	return Password{
		plain: []byte(pwd),
	}, nil
}

// IsZero reports whether the password is empty.
func (p Password) IsZero() bool {
	return len(p.plain) == 0
}

// Match checks if the plaintext password matches the given hash.
func (p Password) Match(h krypto.Argon2Hash) bool {
	return h.MatchBytes(p.plain)
}

// Hash hashes the plaintext password with a fresh salt.
func (p Password) Hash(params krypto.Argon2Params) (krypto.Argon2Hash, error) {
	return krypto.HashArgon2(p.plain, params)
}

// Equal compares two passwords in constant time.
func (p Password) Equal(other Password) bool {
	return subtle.ConstantTimeCompare(p.plain, other.plain) == 1
}

func (p Password) Format(f fmt.State, verb rune) {
	f.Write([]byte(krypto.SecretMarker))
}

func (p Password) MarshalText() ([]byte, error) {
	return []byte(krypto.SecretMarker), nil
}

// LogValue implements the slog.LogValuer interface.
func (p Password) LogValue() slog.Value {
	return slog.StringValue(krypto.SecretMarker)
}

// UnmarshalText allows passwords to be decoded from forms.
// An empty field results in the zero Password.
func (p *Password) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*p = Password{}
		return nil
	}

	pwd, err := ParsePassword(string(b))
	if err != nil {
		return err
	}

	*p = pwd
	return nil
}
