package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/willemschots/newsletter/internal/errorz"
	"github.com/willemschots/newsletter/internal/krypto"
	"github.com/willemschots/newsletter/internal/observability/metrics"
	"github.com/willemschots/newsletter/internal/worker"
)

// Reasons a validation failed, only used in logs and metrics.
const (
	reasonNone          = "none"
	reasonUnknownUser   = "unknown_username"
	reasonWrongPassword = "wrong_password"
	reasonMalformedHash = "malformed_stored_hash"
	reasonLookupFailed  = "lookup_failed"
	reasonVerifyFailed  = "verify_failed"
)

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	// HashParams are used to hash new passwords. Existing hashes are
	// verified with the parameters they were created with.
	HashParams krypto.Argon2Params
}

// Service validates credentials and changes passwords.
//
// Hashing is CPU heavy and is done on the worker pool, never on the
// goroutine of the caller.
type Service struct {
	store   Store
	pool    *worker.Pool
	logger  *slog.Logger
	metrics *metrics.Metrics
	cfg     ServiceConfig

	// comparisonHash is used to compare passwords when no user was found.
	comparisonHash krypto.Argon2Hash

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time

	// VerifyFunc compares a password against a hash.
	// Exposed for testing purposes.
	VerifyFunc func(h krypto.Argon2Hash, p Password) bool
}

func NewService(s Store, pool *worker.Pool, logger *slog.Logger, m *metrics.Metrics, cfg ServiceConfig) (*Service, error) {
	tok, err := krypto.GenerateToken()
	if err != nil {
		return nil, err
	}

	// The token is never exposed, so no password will ever match this hash.
	hash, err := krypto.HashArgon2(tok[:], cfg.HashParams)
	if err != nil {
		return nil, fmt.Errorf("failed to create comparison hash: %w", err)
	}

	svc := &Service{
		store:          s,
		pool:           pool,
		logger:         logger,
		metrics:        m,
		cfg:            cfg,
		comparisonHash: hash,
		NowFunc:        time.Now,
		VerifyFunc: func(h krypto.Argon2Hash, p Password) bool {
			return p.Match(h)
		},
	}

	return svc, nil
}

// ValidateCredentials returns the ID of the user if the credentials are valid.
//
// An unknown username, a wrong password and a malformed stored hash all result
// in ErrInvalidCredentials. A password is compared against a hash in each of
// these cases, so they take the same amount of time.
//
// If the store fails, an error wrapping ErrUnexpected is returned and no
// comparison is made.
func (s *Service) ValidateCredentials(ctx context.Context, c Credentials) (uuid.UUID, error) {
	stored, err := s.store.FindCredentials(ctx, c.Username)
	found := err == nil
	if err != nil && !errors.Is(err, errorz.ErrNotFound) {
		s.recordValidation(metrics.ResultError, reasonLookupFailed)
		return uuid.Nil, fmt.Errorf("%w: failed to find credentials: %w", ErrUnexpected, err)
	}

	hash := s.comparisonHash
	reason := reasonUnknownUser

	if found {
		reason = reasonWrongPassword

		parsed, err := krypto.ParseArgon2Hash(string(stored.PasswordHash.SecretValue()))
		if err != nil {
			// The user can't do anything about this, but the password is still compared.
			s.logger.Error("stored password hash is malformed", "user_id", stored.UserID, "error", err)
			reason = reasonMalformedHash
		} else {
			hash = parsed
		}
	}

	match, err := s.verify(ctx, hash, c.Password)
	if err != nil {
		s.recordValidation(metrics.ResultError, reasonVerifyFailed)
		return uuid.Nil, fmt.Errorf("%w: failed to verify password: %w", ErrUnexpected, err)
	}

	if !match || reason != reasonWrongPassword {
		s.logger.Info("invalid credentials", "username", c.Username, "reason", reason)
		s.recordValidation(metrics.ResultFailure, reason)
		return uuid.Nil, ErrInvalidCredentials
	}

	s.recordValidation(metrics.ResultSuccess, reasonNone)
	return stored.UserID, nil
}

// ChangePassword hashes the new password with a fresh salt and stores it.
//
// If ctx is done while hashing, the hash is discarded and nothing is stored.
func (s *Service) ChangePassword(ctx context.Context, userID uuid.UUID, p Password) error {
	if p.IsZero() {
		return ErrInvalidPassword
	}

	hash, err := s.hash(ctx, p)
	if err != nil {
		s.metrics.PasswordChangesTotal.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("%w: failed to hash password: %w", ErrUnexpected, err)
	}

	err = s.store.UpdatePasswordHash(ctx, userID, hash)
	if err != nil {
		s.metrics.PasswordChangesTotal.WithLabelValues(metrics.ResultError).Inc()
		return fmt.Errorf("%w: failed to update password hash: %w", ErrUnexpected, err)
	}

	s.logger.Info("password changed", "user_id", userID)
	s.metrics.PasswordChangesTotal.WithLabelValues(metrics.ResultSuccess).Inc()

	return nil
}

// CreateUser creates a new user with the provided username and password.
// ErrDuplicateUser is returned if the username is taken.
func (s *Service) CreateUser(ctx context.Context, username string, p Password) (uuid.UUID, error) {
	username, err := ParseUsername(username)
	if err != nil {
		return uuid.Nil, err
	}

	if p.IsZero() {
		return uuid.Nil, ErrInvalidPassword
	}

	hash, err := s.hash(ctx, p)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: failed to hash password: %w", ErrUnexpected, err)
	}

	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, err
	}

	now := s.NowFunc()
	user := &User{
		ID:           id,
		Username:     username,
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	err = s.store.CreateUser(ctx, user)
	if err != nil {
		if errors.Is(err, errorz.ErrConstraintViolated) {
			return uuid.Nil, ErrDuplicateUser
		}
		return uuid.Nil, fmt.Errorf("%w: failed to create user: %w", ErrUnexpected, err)
	}

	s.logger.Info("user created", "user_id", user.ID, "username", user.Username)

	return user.ID, nil
}

// Username returns the username of a user.
func (s *Service) Username(ctx context.Context, userID uuid.UUID) (string, error) {
	username, err := s.store.FindUsername(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to find username: %w", err)
	}

	return username, nil
}

func (s *Service) verify(ctx context.Context, h krypto.Argon2Hash, p Password) (bool, error) {
	return worker.Run(ctx, s.pool, func() bool {
		timer := prometheus.NewTimer(s.metrics.PasswordHashDuration.WithLabelValues(metrics.OpVerify))
		defer timer.ObserveDuration()

		return s.VerifyFunc(h, p)
	})
}

type hashResult struct {
	hash krypto.Argon2Hash
	err  error
}

func (s *Service) hash(ctx context.Context, p Password) (krypto.Argon2Hash, error) {
	res, err := worker.Run(ctx, s.pool, func() hashResult {
		timer := prometheus.NewTimer(s.metrics.PasswordHashDuration.WithLabelValues(metrics.OpHash))
		defer timer.ObserveDuration()

		h, err := p.Hash(s.cfg.HashParams)
		return hashResult{hash: h, err: err}
	})
	if err != nil {
		return krypto.Argon2Hash{}, err
	}

	return res.hash, res.err
}

func (s *Service) recordValidation(result, reason string) {
	s.metrics.CredentialValidationsTotal.WithLabelValues(result, reason).Inc()
}
