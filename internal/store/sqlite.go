// Package store provides storage backends for timer records.
//
// This file implements the SQLite-backed TimerStore.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/viewassist/timerd/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// Constants for SQLite store configuration
const (
	// DefaultDirPermissions defines the default permissions for database directories
	DefaultDirPermissions = 0755
)

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a TimerStore backed by a SQLite database file.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &SQLiteStore{db: db, now: now}, nil
}

// Insert adds a new record, failing on id collision.
func (s *SQLiteStore) Insert(t models.TimerRecord) error {
	extraJSON, err := marshalExtraInfo(t.ExtraInfo)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO timers
		(id, device_id, timer_class, timer_type, name, expires, original_expiry, pre_expire_warning, created_at, updated_at, status, extra_info)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.DeviceID, t.TimerClass, t.TimerType, nilIfEmpty(t.Name),
		t.Expires, t.OriginalExpiry, t.PreExpireWarning, t.CreatedAt, t.UpdatedAt, t.Status, extraJSON)
	if err != nil {
		slog.Error("SQLiteStore.Insert failed", "error", err, "id", t.ID)
		return fmt.Errorf("failed to insert timer %s: %w", t.ID, err)
	}
	slog.Debug("SQLiteStore.Insert succeeded", "id", t.ID, "device_id", t.DeviceID)
	return nil
}

// Get returns the record for id.
func (s *SQLiteStore) Get(id string) (*models.TimerRecord, error) {
	row := s.db.QueryRow(`SELECT id, device_id, timer_class, timer_type, name, expires, original_expiry, pre_expire_warning, created_at, updated_at, status, extra_info
		FROM timers WHERE id = ?`, id)
	t, err := scanTimer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTimerNotFound
	}
	if err != nil {
		slog.Error("SQLiteStore.Get scan failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get timer %s: %w", id, err)
	}
	return &t, nil
}

// Update applies mutate inside a transaction and returns the new record.
func (s *SQLiteStore) Update(id string, mutate Mutator) (*models.TimerRecord, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin update transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT id, device_id, timer_class, timer_type, name, expires, original_expiry, pre_expire_warning, created_at, updated_at, status, extra_info
		FROM timers WHERE id = ?`, id)
	t, err := scanTimer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTimerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read timer %s for update: %w", id, err)
	}

	if err := mutate(&t); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.now()
	extraJSON, err := marshalExtraInfo(t.ExtraInfo)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(`UPDATE timers SET device_id = ?, timer_class = ?, timer_type = ?, name = ?, expires = ?, original_expiry = ?, pre_expire_warning = ?, updated_at = ?, status = ?, extra_info = ?
		WHERE id = ?`,
		t.DeviceID, t.TimerClass, t.TimerType, nilIfEmpty(t.Name), t.Expires, t.OriginalExpiry,
		t.PreExpireWarning, t.UpdatedAt, t.Status, extraJSON, id); err != nil {
		slog.Error("SQLiteStore.Update failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to update timer %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit timer update: %w", err)
	}
	slog.Debug("SQLiteStore.Update succeeded", "id", id, "status", t.Status)
	return &t, nil
}

// Remove deletes the record for id.
func (s *SQLiteStore) Remove(id string) error {
	res, err := s.db.Exec(`DELETE FROM timers WHERE id = ?`, id)
	if err != nil {
		slog.Error("SQLiteStore.Remove failed", "error", err, "id", id)
		return fmt.Errorf("failed to remove timer %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check removed rows: %w", err)
	}
	if affected == 0 {
		return models.ErrTimerNotFound
	}
	slog.Debug("SQLiteStore.Remove succeeded", "id", id)
	return nil
}

// Query returns all records matching the predicate, in creation order.
// UUIDv7 ids sort lexicographically by creation time.
func (s *SQLiteStore) Query(predicate Predicate) ([]models.TimerRecord, error) {
	rows, err := s.db.Query(`SELECT id, device_id, timer_class, timer_type, name, expires, original_expiry, pre_expire_warning, created_at, updated_at, status, extra_info
		FROM timers ORDER BY id`)
	if err != nil {
		slog.Error("SQLiteStore.Query failed", "error", err)
		return nil, fmt.Errorf("failed to query timers: %w", err)
	}
	defer rows.Close()

	var result []models.TimerRecord
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			slog.Error("SQLiteStore.Query scan failed", "error", err)
			return nil, fmt.Errorf("failed to scan timer row: %w", err)
		}
		if predicate == nil || predicate(t) {
			result = append(result, t)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate timer rows: %w", err)
	}
	return result, nil
}

// List returns all records in creation order.
func (s *SQLiteStore) List() ([]models.TimerRecord, error) {
	return s.Query(nil)
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ TimerStore = (*SQLiteStore)(nil)
