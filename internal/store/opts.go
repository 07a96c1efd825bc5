package store

import (
	"strings"
	"time"
)

// Opts holds configuration options for store backends.
type Opts struct {
	DSN   string
	Clock func() time.Time
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string (SQLite path or Postgres URL).
func WithDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithClock overrides the reference clock used for updated_at stamps.
// Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// DetectDSNType reports "postgres" for PostgreSQL-looking connection
// strings and "sqlite" otherwise (a bare file path).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") ||
		strings.Contains(dsn, "host=") || strings.Contains(dsn, "dbname=") {
		return "postgres"
	}
	return "sqlite"
}
