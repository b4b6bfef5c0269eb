// Command useradd creates an administrator account in a SQLite database.
//
// The password is read from the first line of stdin, so it never shows up
// in the process list or shell history.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/willemschots/newsletter/internal"
	"github.com/willemschots/newsletter/internal/auth"
	authdb "github.com/willemschots/newsletter/internal/auth/db"
	"github.com/willemschots/newsletter/internal/db"
	"github.com/willemschots/newsletter/internal/krypto"
	"github.com/willemschots/newsletter/internal/migrate"
	"github.com/willemschots/newsletter/internal/observability/metrics"
	"github.com/willemschots/newsletter/internal/worker"
	"github.com/willemschots/newsletter/migrations"
)

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dbFile := fs.String("db", "newsletter.db", "SQLite database `file`")
	rawUsername := fs.String("username", "", "username of the new admin")
	doMigrate := fs.Bool("migrate", true, "migrate the database before creating the user")

	err := fs.Parse(args)
	if err != nil {
		return 2
	}

	username, err := auth.ParseUsername(*rawUsername)
	if err != nil {
		logger.Error("invalid -username", "error", err)
		return 2
	}

	password, err := readPassword(stdin)
	if err != nil {
		logger.Error("failed to read password from stdin", "error", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	sqlDB, err := db.OpenSQLite(*dbFile, true)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		return 1
	}
	defer sqlDB.Close()

	if *doMigrate {
		_, err = migrate.NewRunner(sqlDB, migrations.FS, logger).Run(ctx, migrate.Metadata{
			AppVersion: internal.ReadBuild().Revision,
			Timestamp:  time.Now(),
		})
		if err != nil {
			logger.Error("failed to migrate database", "error", err)
			return 1
		}
	}

	m, err := metrics.New(prometheus.NewRegistry(), internal.ReadBuild())
	if err != nil {
		logger.Error("failed to create metrics", "error", err)
		return 1
	}

	pool, err := worker.NewPool(1, m.HashJobsInFlight)
	if err != nil {
		logger.Error("failed to create worker pool", "error", err)
		return 1
	}
	defer pool.Wait()

	store := authdb.New(sqlDB, sqlDB, authdb.Config{AcquireTimeout: 5 * time.Second})
	svc, err := auth.NewService(store, pool, logger, m, auth.ServiceConfig{
		HashParams: krypto.DefaultArgon2Params,
	})
	if err != nil {
		logger.Error("failed to create auth service", "error", err)
		return 1
	}

	id, err := svc.CreateUser(ctx, username, password)
	if err != nil {
		logger.Error("failed to create user", "username", username, "error", err)
		return 1
	}

	fmt.Fprintln(stdout, id)

	return 0
}

func readPassword(r io.Reader) (auth.Password, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return auth.Password{}, err
	}

	return auth.ParsePassword(strings.TrimRight(line, "\r\n"))
}
