package db

import (
	"database/sql"
	"net/url"

	_ "github.com/mattn/go-sqlite3"
)

// Both pools use WAL mode, enforce foreign keys and wait up to 5 seconds
// for a lock. Writes use immediate transactions so a transaction that starts
// reading never has to upgrade its lock.
//
// See https://github.com/mattn/go-sqlite3/issues/1179#issuecomment-1638083995
var (
	writeOptions = url.Values{
		"mode":          {"rwc"},
		"_foreign_keys": {"on"},
		"_journal_mode": {"wal"},
		"_busy_timeout": {"5000"},
		"_txlock":       {"immediate"},
	}
	readOptions = url.Values{
		"mode":          {"ro"},
		"_foreign_keys": {"on"},
		"_journal_mode": {"wal"},
		"_busy_timeout": {"5000"},
	}
)

// OpenSQLite opens a pool of SQLite connections. Different settings
// are appropriate for reading and writing, so this function needs to know
// what the sql.DB will be used for.
//
// A write pool has exactly one connection that is never closed.
func OpenSQLite(dbFile string, write bool) (*sql.DB, error) {
	opts := readOptions
	if write {
		opts = writeOptions
	}

	db, err := sql.Open("sqlite3", "file:"+dbFile+"?"+opts.Encode())
	if err != nil {
		return nil, err
	}

	if write {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		db.SetConnMaxIdleTime(0)
	}

	return db, nil
}
