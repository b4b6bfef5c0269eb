package main

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/willemschots/newsletter/internal/db/pg"
	"github.com/willemschots/newsletter/internal/errorz"
	"github.com/willemschots/newsletter/internal/krypto"
)

const (
	driverSQLite   = "sqlite"
	driverPostgres = "postgres"
)

// httpConfig is the configuration for the HTTP server.
type httpConfig struct {
	addr            string
	readTimeout     time.Duration
	writeTimeout    time.Duration
	idleTimeout     time.Duration
	shutdownTimeout time.Duration
	cookieKeys      []krypto.Key
	secureCookie    bool
	csrfKey         krypto.Key
}

// dbConfig is the configuration for the credential store.
type dbConfig struct {
	driver         string
	file           string
	migrate        bool
	postgres       pg.Config
	acquireTimeout time.Duration
}

type authConfig struct {
	hashWorkers int
}

// config is the configuration for the server command.
type config struct {
	http     httpConfig
	db       dbConfig
	auth     authConfig
	logLevel slog.Level
}

// defaultConfig returns a config with sane default values.
func defaultConfig() config {
	return config{
		http: httpConfig{
			addr:            ":8888",
			readTimeout:     time.Second * 5,
			writeTimeout:    time.Second * 10,
			idleTimeout:     time.Second * 120,
			shutdownTimeout: time.Second * 15,
			secureCookie:    true,
		},
		db: dbConfig{
			driver:  driverSQLite,
			file:    "newsletter.db",
			migrate: true,
			postgres: pg.Config{
				MaxConns: 10,
			},
			acquireTimeout: time.Second * 2,
		},
		auth: authConfig{
			hashWorkers: runtime.GOMAXPROCS(0),
		},
		logLevel: slog.LevelInfo,
	}
}

// requiredKeys need to be present in the environment.
var requiredKeys = []string{
	"HTTP_COOKIE_KEYS",
	"HTTP_CSRF_KEY",
}

// envMap maps environment variable names to fields in the config struct.
var envMap = map[string]func(v string, c *config) error{
	"HTTP_ADDR": func(v string, c *config) error {
		c.http.addr = v
		return nil
	},
	"HTTP_READ_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.readTimeout, 0, math.MaxInt64)
	},
	"HTTP_WRITE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.writeTimeout, 0, math.MaxInt64)
	},
	"HTTP_IDLE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.idleTimeout, 0, math.MaxInt64)
	},
	"HTTP_SHUTDOWN_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.http.shutdownTimeout, 0, math.MaxInt64)
	},
	"HTTP_COOKIE_KEYS": func(v string, c *config) error {
		keys, err := krypto.ParseKeys(v)
		if err != nil {
			return err
		}

		if len(keys)%2 != 0 {
			return errors.New("expected pairs of authentication and encryption keys")
		}

		c.http.cookieKeys = keys
		return nil
	},
	"HTTP_SECURE_COOKIE": func(v string, c *config) error {
		return confBool(v, &c.http.secureCookie)
	},
	"HTTP_CSRF_KEY": func(v string, c *config) error {
		key, err := krypto.ParseKey(v)
		if err != nil {
			return err
		}

		c.http.csrfKey = key
		return nil
	},
	"DB_DRIVER": func(v string, c *config) error {
		if v != driverSQLite && v != driverPostgres {
			return fmt.Errorf("unknown driver %q, expected %q or %q", v, driverSQLite, driverPostgres)
		}

		c.db.driver = v
		return nil
	},
	"DB_FILENAME": func(v string, c *config) error {
		if v == "" {
			return errors.New("filename can't be empty")
		}

		c.db.file = v
		return nil
	},
	"DB_MIGRATE": func(v string, c *config) error {
		return confBool(v, &c.db.migrate)
	},
	"DB_POSTGRES_DSN": func(v string, c *config) error {
		// Never include v in the error, it contains credentials.
		if v == "" {
			return errors.New("dsn can't be empty")
		}

		c.db.postgres.DSN = krypto.NewSecret(v)
		return nil
	},
	"DB_MAX_CONNS": func(v string, c *config) error {
		n, err := confInt(v, 1, 1000)
		if err != nil {
			return err
		}

		c.db.postgres.MaxConns = int32(n)
		return nil
	},
	"DB_ACQUIRE_TIMEOUT": func(v string, c *config) error {
		return confDuration(v, &c.db.acquireTimeout, time.Millisecond, time.Minute)
	},
	"AUTH_HASH_WORKERS": func(v string, c *config) error {
		n, err := confInt(v, 1, 1024)
		if err != nil {
			return err
		}

		c.auth.hashWorkers = n
		return nil
	},
	"LOG_LEVEL": func(v string, c *config) error {
		return c.logLevel.UnmarshalText([]byte(v))
	},
}

// configFromEnv returns a config with values from the environment. It falls
// back to default values for any missing environment variables.
//
// All invalid and missing variables are reported in the returned error.
// There is no guarantee that a returned config will work.
func configFromEnv() (config, error) {
	c := defaultConfig()

	var errs []error
	for _, key := range requiredKeys {
		if _, ok := os.LookupEnv(key); !ok {
			errs = append(errs, fmt.Errorf("missing required env variable %s", key))
		}
	}

	for key, mf := range envMap {
		if val, ok := os.LookupEnv(key); ok {
			if err := mf(val, &c); err != nil {
				errs = append(errs, fmt.Errorf("invalid env variable %w", errorz.Keyed{Key: key, Err: err}))
			}
		}
	}

	if c.db.driver == driverPostgres && c.db.postgres.DSN.IsZero() {
		errs = append(errs, errors.New("env variable DB_POSTGRES_DSN is required when DB_DRIVER is postgres"))
	}

	return c, errors.Join(errs...)
}

// confDuration attempts to parse v into tgt and checks if the result is in
// the provided range (inclusive).
func confDuration(v string, tgt *time.Duration, min, max time.Duration) error {
	dur, err := time.ParseDuration(v)
	if err != nil {
		return err
	}

	if dur < min || dur > max {
		return fmt.Errorf("duration %s not in range [%s, %s] (inclusive)", dur, min, max)
	}

	*tgt = dur

	return nil
}

func confBool(v string, tgt *bool) error {
	b, err := strconv.ParseBool(v)
	if err != nil {
		return err
	}

	*tgt = b

	return nil
}

func confInt(v string, min, max int) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, err
	}

	if n < min || n > max {
		return 0, fmt.Errorf("%d not in range [%d, %d] (inclusive)", n, min, max)
	}

	return n, nil
}
