package krypto

import (
	"fmt"
	"log/slog"
)

const tokenLen = 32

// Token is a random value that is never exposed. It is used as input
// for hashes that should never match any user provided value.
type Token [tokenLen]byte

// GenerateToken creates a new random token.
func GenerateToken() (Token, error) {
	b, err := genRandomBytes(tokenLen)
	if err != nil {
		return Token{}, err
	}
	return Token(b), nil
}

func (t Token) Format(f fmt.State, verb rune) {
	f.Write([]byte(SecretMarker))
}

// LogValue implements the slog.LogValuer interface.
func (t Token) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}
