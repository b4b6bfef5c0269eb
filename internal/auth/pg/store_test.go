package pg_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/willemschots/newsletter/internal/auth"
	"github.com/willemschots/newsletter/internal/auth/pg"
	dbpg "github.com/willemschots/newsletter/internal/db/pg"
	"github.com/willemschots/newsletter/internal/errorz"
	"github.com/willemschots/newsletter/internal/krypto"
)

const testHash = "$argon2id$v=19$m=47104,t=1,p=1$vP9U4C5jsOzFQLj0gvUkYw$YLrSb2dGfcVohlm8syynqHs6/NHxXS9rt/t6TjL7pi0"

func Test_Store(t *testing.T) {
	pool := poolForTest(t, 4)
	store := pg.New(pool, pg.Config{AcquireTimeout: time.Second})
	ctx := context.Background()

	user := auth.User{
		ID:           uuid.New(),
		Username:     "alice",
		PasswordHash: must(krypto.ParseArgon2Hash(testHash)),
	}

	t.Run("ok, create user", func(t *testing.T) {
		err := store.CreateUser(ctx, &user)
		if err != nil {
			t.Fatalf("failed to create user: %v", err)
		}
	})

	t.Run("ok, find credentials", func(t *testing.T) {
		got, err := store.FindCredentials(ctx, "alice")
		if err != nil {
			t.Fatalf("failed to find credentials: %v", err)
		}

		if got.UserID != user.ID || string(got.PasswordHash.SecretValue()) != testHash {
			t.Errorf("got unexpected credentials for user %s", got.UserID)
		}
	})

	t.Run("ok, find username", func(t *testing.T) {
		got, err := store.FindUsername(ctx, user.ID)
		if err != nil {
			t.Fatalf("failed to find username: %v", err)
		}

		if got != "alice" {
			t.Errorf("got %q want %q", got, "alice")
		}
	})

	t.Run("ok, update password hash", func(t *testing.T) {
		h := must(krypto.HashArgon2([]byte("newpass"), krypto.DefaultArgon2Params))
		err := store.UpdatePasswordHash(ctx, user.ID, h)
		if err != nil {
			t.Fatalf("failed to update password hash: %v", err)
		}

		got, err := store.FindCredentials(ctx, "alice")
		if err != nil {
			t.Fatalf("failed to find credentials: %v", err)
		}

		if string(got.PasswordHash.SecretValue()) != h.Encode() {
			t.Errorf("password hash was not updated")
		}
	})

	t.Run("fail, duplicate username", func(t *testing.T) {
		other := user
		other.ID = uuid.New()

		err := store.CreateUser(ctx, &other)
		if !errors.Is(err, errorz.ErrConstraintViolated) {
			t.Fatalf("expected %v, got %v (via errors.Is)", errorz.ErrConstraintViolated, err)
		}
	})

	t.Run("fail, unknown username", func(t *testing.T) {
		_, err := store.FindCredentials(ctx, "Alice")
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
		}
	})

	t.Run("fail, update unknown user", func(t *testing.T) {
		err := store.UpdatePasswordHash(ctx, uuid.New(), user.PasswordHash)
		if !errors.Is(err, errorz.ErrNotFound) {
			t.Fatalf("expected %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
		}
	})
}

func Test_Store_AcquireTimeout(t *testing.T) {
	pool := poolForTest(t, 1)
	store := pg.New(pool, pg.Config{AcquireTimeout: 20 * time.Millisecond})

	conn, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("failed to acquire connection: %v", err)
	}
	defer conn.Release()

	_, err = store.FindCredentials(context.Background(), "alice")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected %v, got %v (via errors.Is)", context.DeadlineExceeded, err)
	}
}

func Test_Store_ZeroAcquireTimeout(t *testing.T) {
	pool := poolForTest(t, 1)
	store := pg.New(pool, pg.Config{})

	conn, err := pool.Acquire(context.Background())
	if err != nil {
		t.Fatalf("failed to acquire connection: %v", err)
	}

	go func() {
		time.Sleep(50 * time.Millisecond)
		conn.Release()
	}()

	_, err = store.FindCredentials(context.Background(), "alice")
	if !errors.Is(err, errorz.ErrNotFound) {
		t.Fatalf("expected %v, got %v (via errors.Is)", errorz.ErrNotFound, err)
	}
}

// poolForTest connects to the database in TEST_POSTGRES_DSN and recreates
// an empty users table. Never point it at a database you care about.
func poolForTest(t *testing.T, maxConns int32) *pgxpool.Pool {
	t.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := dbpg.Open(ctx, dbpg.Config{
		DSN:      krypto.NewSecret(dsn),
		MaxConns: maxConns,
	})
	if err != nil {
		t.Fatalf("failed to open postgres: %v", err)
	}
	t.Cleanup(pool.Close)

	queries := []string{
		`DROP TABLE IF EXISTS users`,
		`CREATE TABLE users (
			user_id       uuid PRIMARY KEY,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL
		)`,
	}
	for _, q := range queries {
		_, err := pool.Exec(ctx, q)
		if err != nil {
			t.Fatalf("failed to prepare schema: %v", err)
		}
	}

	return pool
}

func must[T any](t T, err error) T {
	if err != nil {
		panic(err)
	}
	return t
}
