// Package migrate applies .sql migrations to a SQLite database.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"
)

// Migration is a migration that was applied.
type Migration struct {
	// Sequence is the number of the migration. Starts at 0.
	Sequence int
	Filename string
	Checksum string
	Metadata Metadata
}

// Equal checks if two migrations are equal.
func (m Migration) Equal(other Migration) bool {
	return m.Sequence == other.Sequence &&
		m.Filename == other.Filename &&
		m.Checksum == other.Checksum &&
		m.Metadata.AppVersion == other.Metadata.AppVersion &&
		m.Metadata.Timestamp.Equal(other.Metadata.Timestamp)
}

// Metadata is stored alongside every applied migration.
type Metadata struct {
	AppVersion string
	Timestamp  time.Time
}

const migrationsTableQuery = `CREATE TABLE IF NOT EXISTS schema_migrations (
	sequence    INTEGER PRIMARY KEY,
	filename    TEXT NOT NULL,
	checksum    TEXT NOT NULL,
	app_version TEXT NOT NULL,
	applied_at  TIMESTAMP NOT NULL
)
`

var (
	// ErrNoTable indicates the migrations table does not exist.
	ErrNoTable = errors.New("migrations table does not exist")
	// ErrMigrationsMismatch indicates applied migrations differ from the available ones.
	ErrMigrationsMismatch = errors.New("migrations mismatch")
)

// MigrationError is returned when the statements of a migration fail.
type MigrationError struct {
	Sequence int
	Filename string
	Err      error
}

func (m MigrationError) Error() string {
	return fmt.Sprintf("migration [%d] %q failed: %v", m.Sequence, m.Filename, m.Err)
}

func (m MigrationError) Unwrap() error {
	return m.Err
}

// Runner applies migrations from a file system.
type Runner struct {
	db     *sql.DB
	fs     fs.FS
	logger *slog.Logger
}

// NewRunner creates a runner for the .sql files in the root of fileSys.
func NewRunner(db *sql.DB, fileSys fs.FS, logger *slog.Logger) *Runner {
	return &Runner{
		db:     db,
		fs:     fileSys,
		logger: logger,
	}
}

// Run applies all migrations that were not applied before, in lexical
// order of their filenames, in a single transaction. It returns the
// migrations that were applied by this call.
//
// Previously applied migrations must still be present with the same
// name and content, otherwise ErrMigrationsMismatch is returned.
func (r *Runner) Run(ctx context.Context, meta Metadata) ([]Migration, error) {
	files, err := loadFiles(r.fs)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	_, err = tx.ExecContext(ctx, migrationsTableQuery)
	if err != nil {
		return nil, rollback(tx, fmt.Errorf("failed to create migrations table: %w", err))
	}

	before, err := queryWith(func(q string) (*sql.Rows, error) {
		return tx.QueryContext(ctx, q)
	})
	if err != nil {
		return nil, rollback(tx, err)
	}

	err = verify(before, files)
	if err != nil {
		return nil, rollback(tx, err)
	}

	applied := make([]Migration, 0, len(files)-len(before))
	for i, f := range files[len(before):] {
		m := Migration{
			Sequence: len(before) + i,
			Filename: f.name,
			Checksum: f.checksum,
			Metadata: meta,
		}

		err := apply(ctx, tx, m, f.content)
		if err != nil {
			return nil, rollback(tx, err)
		}

		r.logger.Info("applied migration", "sequence", m.Sequence, "filename", m.Filename)
		applied = append(applied, m)
	}

	err = tx.Commit()
	if err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return applied, nil
}

func verify(before []Migration, files []file) error {
	if len(before) > len(files) {
		return fmt.Errorf(
			"found %d applied migrations but only %d files: %w",
			len(before), len(files), ErrMigrationsMismatch,
		)
	}

	for i, m := range before {
		if i != m.Sequence {
			return fmt.Errorf("migration sequence mismatch, wanted %d got %d", i, m.Sequence)
		}

		if m.Filename != files[i].name {
			return fmt.Errorf(
				"migration %d was applied as %s, but now found %s: %w",
				i, m.Filename, files[i].name, ErrMigrationsMismatch,
			)
		}

		if m.Checksum != files[i].checksum {
			return fmt.Errorf("migration %s was modified after it was applied: %w", m.Filename, ErrMigrationsMismatch)
		}
	}

	return nil
}

func apply(ctx context.Context, tx *sql.Tx, m Migration, content string) error {
	_, err := tx.ExecContext(ctx, content)
	if err != nil {
		return MigrationError{
			Sequence: m.Sequence,
			Filename: m.Filename,
			Err:      err,
		}
	}

	const q = `INSERT INTO schema_migrations (sequence, filename, checksum, app_version, applied_at) VALUES (?, ?, ?, ?, ?)`
	_, err = tx.ExecContext(ctx, q, m.Sequence, m.Filename, m.Checksum, m.Metadata.AppVersion, m.Metadata.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.Filename, err)
	}

	return nil
}

// Applied returns all migrations that were applied to db.
// If the migrations table does not exist, it returns ErrNoTable.
func Applied(ctx context.Context, db *sql.DB) ([]Migration, error) {
	return queryWith(func(q string) (*sql.Rows, error) {
		return db.QueryContext(ctx, q)
	})
}

func queryWith(rowsFunc func(q string) (*sql.Rows, error)) ([]Migration, error) {
	const q = `SELECT sequence, filename, checksum, app_version, applied_at FROM schema_migrations ORDER BY sequence`
	rows, err := rowsFunc(q)
	if err != nil {
		if strings.Contains(err.Error(), "no such table") {
			return nil, ErrNoTable
		}
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	migrations := make([]Migration, 0)
	for rows.Next() {
		var m Migration
		err := rows.Scan(&m.Sequence, &m.Filename, &m.Checksum, &m.Metadata.AppVersion, &m.Metadata.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("failed to scan migration: %w", err)
		}

		migrations = append(migrations, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate over rows: %w", err)
	}

	return migrations, nil
}

type file struct {
	name     string
	content  string
	checksum string
}

// loadFiles reads all .sql files in the root of fileSys. fs.ReadDir
// returns entries sorted by filename.
func loadFiles(fileSys fs.FS) ([]file, error) {
	entries, err := fs.ReadDir(fileSys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	files := make([]file, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		content, err := fs.ReadFile(fileSys, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %q: %w", entry.Name(), err)
		}

		sum := sha256.Sum256(content)
		files = append(files, file{
			name:     entry.Name(),
			content:  string(content),
			checksum: hex.EncodeToString(sum[:]),
		})
	}

	return files, nil
}

func rollback(tx *sql.Tx, err error) error {
	rErr := tx.Rollback()
	if rErr != nil {
		return errors.Join(err, rErr)
	}

	return err
}
