package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/willemschots/newsletter/internal"
	"github.com/willemschots/newsletter/internal/auth"
	authdb "github.com/willemschots/newsletter/internal/auth/db"
	authpg "github.com/willemschots/newsletter/internal/auth/pg"
	"github.com/willemschots/newsletter/internal/db"
	"github.com/willemschots/newsletter/internal/db/pg"
	"github.com/willemschots/newsletter/internal/krypto"
	"github.com/willemschots/newsletter/internal/migrate"
	"github.com/willemschots/newsletter/internal/observability/metrics"
	"github.com/willemschots/newsletter/internal/web"
	"github.com/willemschots/newsletter/internal/worker"
	"github.com/willemschots/newsletter/migrations"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Stderr))
}

func run(ctx context.Context, w io.Writer) int {
	logger := slog.New(slog.NewTextHandler(w, nil))

	// Variables that are already set take precedence over the .env file.
	err := godotenv.Load()
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		logger.Error("failed to load .env file", "error", err)
		return 1
	}

	cfg, err := configFromEnv()
	if err != nil {
		logger.Error("failed to get config from environment", "error", err)
		return 1
	}

	logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: cfg.logLevel,
	}))

	build := internal.ReadBuild()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m, err := metrics.New(reg, build)
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		return 1
	}

	store, closeStore, err := openStore(ctx, cfg.db, build, logger)
	if err != nil {
		logger.Error("failed to open credential store", "driver", cfg.db.driver, "error", err)
		return 1
	}
	defer closeStore()

	pool, err := worker.NewPool(cfg.auth.hashWorkers, m.HashJobsInFlight)
	if err != nil {
		logger.Error("failed to create hash worker pool", "error", err)
		return 1
	}

	authSvc, err := auth.NewService(store, pool, logger, m, auth.ServiceConfig{
		HashParams: krypto.DefaultArgon2Params,
	})
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		return 1
	}

	sessionStore, err := web.NewCookieStore(cfg.http.cookieKeys, cfg.http.secureCookie)
	if err != nil {
		logger.Error("failed to create session store", "error", err)
		return 1
	}

	server, err := web.NewServer(&web.ServerDeps{
		Logger:         logger,
		AuthService:    authSvc,
		SessionStore:   sessionStore,
		Metrics:        m,
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
	}, web.ServerConfig{
		CSRFKey:      cfg.http.csrfKey,
		SecureCookie: cfg.http.secureCookie,
	})
	if err != nil {
		logger.Error("failed to create web server", "error", err)
		return 1
	}

	srv := &http.Server{
		Addr:         cfg.http.addr,
		ReadTimeout:  cfg.http.readTimeout,
		WriteTimeout: cfg.http.writeTimeout,
		IdleTimeout:  cfg.http.idleTimeout,
		Handler:      server,
	}

	// We need to run two tasks concurrently:
	// - Listen and serving of the HTTP server.
	// - Waiting for a signal to stop the server.

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting http server",
			"addr", cfg.http.addr,
			"hashWorkers", cfg.auth.hashWorkers,
			"build", build,
		)
		// ListenAndServe always returns a non-nil error,
		// g will cancel gCtx when an error is returned, so
		// this will also stop the other goroutine.
		return srv.ListenAndServe()
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("stopping http server")

		shutCtx, cancel := context.WithTimeout(context.Background(), cfg.http.shutdownTimeout)
		defer cancel()

		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()

	// Requests that gave up on a hash computation leave the job running.
	logger.Info("waiting for hash jobs to finish")
	pool.Wait()

	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server stopped with error", "error", err)
		return 1
	}

	logger.Info("http server stopped successfully")

	return 0
}

// openStore opens the credential store for the configured driver.
// The returned func releases its resources.
func openStore(ctx context.Context, cfg dbConfig, build internal.Build, logger *slog.Logger) (auth.Store, func(), error) {
	if cfg.driver == driverPostgres {
		connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		pgPool, err := pg.Open(connCtx, cfg.postgres)
		if err != nil {
			return nil, nil, err
		}

		logger.Info("connected to postgres", "maxConns", cfg.postgres.MaxConns)

		return authpg.New(pgPool, authpg.Config{AcquireTimeout: cfg.acquireTimeout}), pgPool.Close, nil
	}

	writeDB, err := db.OpenSQLite(cfg.file, true)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open write pool: %w", err)
	}

	readDB, err := db.OpenSQLite(cfg.file, false)
	if err != nil {
		return nil, nil, errors.Join(fmt.Errorf("failed to open read pool: %w", err), writeDB.Close())
	}

	closeFunc := func() {
		err := errors.Join(readDB.Close(), writeDB.Close())
		if err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}

	if cfg.migrate {
		logger.Info("attempting to migrate database", "file", cfg.file)

		applied, err := migrate.NewRunner(writeDB, migrations.FS, logger).Run(ctx, migrate.Metadata{
			AppVersion: build.Revision,
			Timestamp:  time.Now(),
		})
		if err != nil {
			closeFunc()
			return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
		}

		logger.Info("migration ran", "applied", len(applied))
	}

	return authdb.New(readDB, writeDB, authdb.Config{AcquireTimeout: cfg.acquireTimeout}), closeFunc, nil
}
