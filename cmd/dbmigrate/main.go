package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/willemschots/newsletter/internal"
	"github.com/willemschots/newsletter/internal/db"
	"github.com/willemschots/newsletter/internal/migrate"
	"github.com/willemschots/newsletter/migrations"
)

const helpText = `Usage: dbmigrate [sqlite_file]`

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, helpText)
		os.Exit(1)
	}

	dbFile := os.Args[1]

	sqlDB, err := db.OpenSQLite(dbFile, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer sqlDB.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*60)
	defer cancel()

	build := internal.ReadBuild()
	meta := migrate.Metadata{
		AppVersion: build.Revision,
		Timestamp:  time.Now(),
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	applied, err := migrate.NewRunner(sqlDB, migrations.FS, logger).Run(ctx, meta)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to run migrations: %v\n", err)
		os.Exit(1)
	}

	for _, m := range applied {
		fmt.Printf("%d: %s\n", m.Sequence, m.Filename)
	}
}
