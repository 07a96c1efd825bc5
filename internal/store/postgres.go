// Package store provides storage backends for timer records.
//
// This file implements the PostgreSQL-backed TimerStore.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	_ "github.com/lib/pq"
	"github.com/viewassist/timerd/internal/models"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a TimerStore backed by PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresStore creates a new Postgres store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &PostgresStore{db: db, now: now}, nil
}

// Insert adds a new record, failing on id collision.
func (s *PostgresStore) Insert(t models.TimerRecord) error {
	extraJSON, err := marshalExtraInfo(t.ExtraInfo)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(`INSERT INTO timers
		(id, device_id, timer_class, timer_type, name, expires, original_expiry, pre_expire_warning, created_at, updated_at, status, extra_info)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		t.ID, t.DeviceID, t.TimerClass, t.TimerType, nilIfEmpty(t.Name),
		t.Expires, t.OriginalExpiry, t.PreExpireWarning, t.CreatedAt, t.UpdatedAt, t.Status, extraJSON)
	if err != nil {
		slog.Error("PostgresStore.Insert failed", "error", err, "id", t.ID)
		return fmt.Errorf("failed to insert timer %s: %w", t.ID, err)
	}
	slog.Debug("PostgresStore.Insert succeeded", "id", t.ID, "device_id", t.DeviceID)
	return nil
}

// Get returns the record for id.
func (s *PostgresStore) Get(id string) (*models.TimerRecord, error) {
	row := s.db.QueryRow(`SELECT id, device_id, timer_class, timer_type, name, expires, original_expiry, pre_expire_warning, created_at, updated_at, status, extra_info
		FROM timers WHERE id = $1`, id)
	t, err := scanTimer(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.ErrTimerNotFound
	}
	if err != nil {
		slog.Error("PostgresStore.Get scan failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to get timer %s: %w", id, err)
	}
	return &t, nil
}

// Update applies mutate inside a transaction, locking the row so concurrent
// service calls and the scheduler callback serialize per record.
func (s *PostgresStore) Update(id string, mutate Mutator) (*models.TimerRecord, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin update transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRow(`SELECT id, device_id, timer_class, timer_type, name, expires, original_expiry, pre_expire_warning, created_at, updated_at, status, extra_info
		FROM timers WHERE id = $1 FOR UPDATE`, id)
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
	if _, err := tx.Exec(`UPDATE timers SET device_id = $1, timer_class = $2, timer_type = $3, name = $4, expires = $5, original_expiry = $6, pre_expire_warning = $7, updated_at = $8, status = $9, extra_info = $10
		WHERE id = $11`,
		t.DeviceID, t.TimerClass, t.TimerType, nilIfEmpty(t.Name), t.Expires, t.OriginalExpiry,
		t.PreExpireWarning, t.UpdatedAt, t.Status, extraJSON, id); err != nil {
		slog.Error("PostgresStore.Update failed", "error", err, "id", id)
		return nil, fmt.Errorf("failed to update timer %s: %w", id, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit timer update: %w", err)
	}
	slog.Debug("PostgresStore.Update succeeded", "id", id, "status", t.Status)
	return &t, nil
}

// Remove deletes the record for id.
func (s *PostgresStore) Remove(id string) error {
	res, err := s.db.Exec(`DELETE FROM timers WHERE id = $1`, id)
	if err != nil {
		slog.Error("PostgresStore.Remove failed", "error", err, "id", id)
		return fmt.Errorf("failed to remove timer %s: %w", id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check removed rows: %w", err)
	}
	if affected == 0 {
		return models.ErrTimerNotFound
	}
	slog.Debug("PostgresStore.Remove succeeded", "id", id)
	return nil
}

// Query returns all records matching the predicate, in creation order.
func (s *PostgresStore) Query(predicate Predicate) ([]models.TimerRecord, error) {
	rows, err := s.db.Query(`SELECT id, device_id, timer_class, timer_type, name, expires, original_expiry, pre_expire_warning, created_at, updated_at, status, extra_info
		FROM timers ORDER BY id`)
	if err != nil {
		slog.Error("PostgresStore.Query failed", "error", err)
		return nil, fmt.Errorf("failed to query timers: %w", err)
	}
	defer rows.Close()

	var result []models.TimerRecord
	for rows.Next() {
		t, err := scanTimer(rows)
		if err != nil {
			slog.Error("PostgresStore.Query scan failed", "error", err)
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
func (s *PostgresStore) List() ([]models.TimerRecord, error) {
	return s.Query(nil)
}

// Close closes the underlying database.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ TimerStore = (*PostgresStore)(nil)
