package krypto

import (
	"crypto/rand"
	"crypto/subtle"
	"database/sql/driver"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Variant = "argon2id"

	// Lower bounds are those of the argon2 algorithm itself, the upper bound on
	// memory keeps a corrupted stored hash from allocating unbounded memory.
	minSaltBytes = 8
	minHashBytes = 4
	maxMemoryKiB = 1 << 21
)

var (
	// ErrInvalidInput indicates the input to a hashing operation was not valid.
	ErrInvalidInput = errors.New("invalid input")
)

// Argon2Params are the cost parameters used to compute a new Argon2id hash.
type Argon2Params struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltBytes   uint32
	HashBytes   uint32
}

// DefaultArgon2Params are used for every password hash computed by the application.
var DefaultArgon2Params = Argon2Params{
	MemoryKiB:   15000,
	Iterations:  2,
	Parallelism: 1,
	SaltBytes:   16,
	HashBytes:   32,
}

func (p Argon2Params) validate() error {
	if p.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be at least 1", ErrInvalidInput)
	}

	if p.Parallelism < 1 {
		return fmt.Errorf("%w: parallelism must be at least 1", ErrInvalidInput)
	}

	if p.MemoryKiB < 8*uint32(p.Parallelism) || p.MemoryKiB > maxMemoryKiB {
		return fmt.Errorf("%w: memory must be in range [%d, %d] KiB", ErrInvalidInput, 8*uint32(p.Parallelism), maxMemoryKiB)
	}

	if p.SaltBytes < minSaltBytes {
		return fmt.Errorf("%w: salt must be at least %d bytes", ErrInvalidInput, minSaltBytes)
	}

	if p.HashBytes < minHashBytes {
		return fmt.Errorf("%w: hash must be at least %d bytes", ErrInvalidInput, minHashBytes)
	}

	return nil
}

// Argon2Hash is an Argon2id hash together with the parameters and salt that
// were used to compute it.
//
// The encoded form is the PHC string format used by the reference implementation:
//
//	$argon2id$v=19$m=15000,t=2,p=1$<salt>$<hash>
//
// where salt and hash are encoded as unpadded standard base64.
//
// A hash is sensitive, fmt and slog output is redacted. Use Encode to
// get the value that is persisted.
type Argon2Hash struct {
	Variant     string
	Version     int
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Hash        []byte
}

// HashArgon2 hashes data with a fresh random salt using the provided parameters.
func HashArgon2(data []byte, p Argon2Params) (Argon2Hash, error) {
	if len(data) == 0 {
		return Argon2Hash{}, fmt.Errorf("%w: no data to hash", ErrInvalidInput)
	}

	if err := p.validate(); err != nil {
		return Argon2Hash{}, err
	}

	salt, err := genRandomBytes(int(p.SaltBytes))
	if err != nil {
		return Argon2Hash{}, err
	}

	return Argon2Hash{
		Variant:     argon2Variant,
		Version:     argon2.Version,
		MemoryKiB:   p.MemoryKiB,
		Iterations:  p.Iterations,
		Parallelism: p.Parallelism,
		Salt:        salt,
		Hash:        argon2.IDKey(data, salt, p.Iterations, p.MemoryKiB, p.Parallelism, p.HashBytes),
	}, nil
}

// ParseArgon2Hash parses a hash in the PHC string format.
//
// Returned errors wrap ErrInvalidInput and never contain (parts of) the input.
func ParseArgon2Hash(s string) (Argon2Hash, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Argon2Hash{}, fmt.Errorf("%w: expected 5 sections in argon2 hash", ErrInvalidInput)
	}

	if parts[1] != argon2Variant {
		return Argon2Hash{}, fmt.Errorf("%w: unsupported argon2 variant", ErrInvalidInput)
	}

	version, ok := strings.CutPrefix(parts[2], "v=")
	if !ok {
		return Argon2Hash{}, fmt.Errorf("%w: missing argon2 version", ErrInvalidInput)
	}

	v, err := parseDecimal(version, 32)
	if err != nil || v != argon2.Version {
		return Argon2Hash{}, fmt.Errorf("%w: unsupported argon2 version", ErrInvalidInput)
	}

	h := Argon2Hash{
		Variant: argon2Variant,
		Version: int(v),
	}

	var memory, iterations, parallelism uint64
	params := strings.Split(parts[3], ",")
	if len(params) != 3 {
		return Argon2Hash{}, fmt.Errorf("%w: expected 3 argon2 parameters", ErrInvalidInput)
	}

	for i, p := range []struct {
		key     string
		bitSize int
		tgt     *uint64
	}{
		{"m", 32, &memory},
		{"t", 32, &iterations},
		{"p", 8, &parallelism},
	} {
		raw, ok := strings.CutPrefix(params[i], p.key+"=")
		if !ok {
			return Argon2Hash{}, fmt.Errorf("%w: expected argon2 parameter %q", ErrInvalidInput, p.key)
		}

		*p.tgt, err = parseDecimal(raw, p.bitSize)
		if err != nil {
			return Argon2Hash{}, fmt.Errorf("%w: argon2 parameter %q is not a number", ErrInvalidInput, p.key)
		}
	}

	h.MemoryKiB = uint32(memory)
	h.Iterations = uint32(iterations)
	h.Parallelism = uint8(parallelism)

	h.Salt, err = base64.RawStdEncoding.Strict().DecodeString(parts[4])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: argon2 salt is not valid base64", ErrInvalidInput)
	}

	h.Hash, err = base64.RawStdEncoding.Strict().DecodeString(parts[5])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: argon2 hash is not valid base64", ErrInvalidInput)
	}

	if err := h.params().validate(); err != nil {
		return Argon2Hash{}, err
	}

	return h, nil
}

// parseDecimal only accepts the canonical form of a number, so that a
// parsed hash encodes to the exact same string.
func parseDecimal(s string, bitSize int) (uint64, error) {
	if s == "" || s[0] < '0' || s[0] > '9' || (s[0] == '0' && len(s) > 1) {
		return 0, strconv.ErrSyntax
	}

	return strconv.ParseUint(s, 10, bitSize)
}

func (h Argon2Hash) params() Argon2Params {
	return Argon2Params{
		MemoryKiB:   h.MemoryKiB,
		Iterations:  h.Iterations,
		Parallelism: h.Parallelism,
		SaltBytes:   uint32(len(h.Salt)),
		HashBytes:   uint32(len(h.Hash)),
	}
}

// MatchBytes reports whether data hashes to h using the parameters and salt
// embedded in h. The comparison is constant time.
//
// A hash that could never have been produced by HashArgon2 matches nothing.
func (h Argon2Hash) MatchBytes(data []byte) bool {
	if h.Variant != argon2Variant || h.Version != argon2.Version || h.params().validate() != nil {
		return false
	}

	other := argon2.IDKey(data, h.Salt, h.Iterations, h.MemoryKiB, h.Parallelism, uint32(len(h.Hash)))
	return subtle.ConstantTimeCompare(h.Hash, other) == 1
}

// Encode returns the PHC string representation of the hash.
func (h Argon2Hash) Encode() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.Variant,
		h.Version,
		h.MemoryKiB,
		h.Iterations,
		h.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.Salt),
		base64.RawStdEncoding.EncodeToString(h.Hash),
	)
}

// Value implements the driver.Valuer interface.
func (h Argon2Hash) Value() (driver.Value, error) {
	return h.Encode(), nil
}

func (h Argon2Hash) Format(f fmt.State, verb rune) {
	f.Write([]byte(SecretMarker))
}

// LogValue implements the slog.LogValuer interface.
func (h Argon2Hash) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}

func genRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	if err != nil {
		return nil, err
	}

	return b, nil
}
