package store

import (
	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDriver builds the embedded-file store driver for the given
// database file path. Binary fields are stored as native BLOBs; b64 is
// always false.
func NewSQLiteDriver(path string) Driver {
	return &sqlStore{
		driver:  "sqlite3",
		dsn:     path,
		dialect: sqliteDialect,
		b64:     false,
	}
}
