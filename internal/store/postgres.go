package store

import (
	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgresDriver builds the networked store driver for the given
// postgres connection string. Binary fields are base64-wrapped text
// columns at the storage layer, matching the legacy acapy postgres
// connection's convention; b64 is always true.
func NewPostgresDriver(connString string) Driver {
	return &sqlStore{
		driver:  "pgx",
		dsn:     connString,
		dialect: postgresDialect,
		b64:     true,
	}
}
