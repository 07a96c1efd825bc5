// Package store provides storage backends for timer records.
//
// The default backend is in-memory; SQLite and Postgres backends implement
// the same interface so timers can survive a process restart.
package store

import (
	"log/slog"
	"sync"
	"time"

	"github.com/viewassist/timerd/internal/models"
)

// Mutator applies an in-place mutation to a timer record inside Update.
// Returning an error aborts the update and leaves the record unmodified.
type Mutator func(*models.TimerRecord) error

// Predicate selects records in Query.
type Predicate func(models.TimerRecord) bool

// TimerStore owns the mapping of timer id to record. Implementations are
// safe for concurrent use from service calls and the scheduler callback;
// every mutation refreshes updated_at.
type TimerStore interface {
	// Insert adds a new record, failing on id collision.
	Insert(record models.TimerRecord) error
	// Get returns the record for id or models.ErrTimerNotFound.
	Get(id string) (*models.TimerRecord, error)
	// Update applies mutate atomically and returns the new record.
	Update(id string, mutate Mutator) (*models.TimerRecord, error)
	// Remove deletes the record for id or returns models.ErrTimerNotFound.
	Remove(id string) error
	// Query returns all records matching the predicate, in creation order.
	Query(predicate Predicate) ([]models.TimerRecord, error)
	// List returns all records in creation order.
	List() ([]models.TimerRecord, error)
	// Close releases backend resources.
	Close() error
}

// MemoryStore is the in-memory TimerStore. Records live for the process
// lifetime; only Remove (or restart) evicts them.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.TimerRecord
	order   []string
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	slog.Debug("NewMemoryStore: created")
	return &MemoryStore{
		records: make(map[string]*models.TimerRecord),
		now:     now,
	}
}

// Insert adds a new record, failing on id collision.
func (s *MemoryStore) Insert(record models.TimerRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.ID]; exists {
		slog.Error("MemoryStore.Insert: duplicate id", "id", record.ID)
		return models.ErrDuplicateTimerID
	}
	stored := record.Clone()
	s.records[record.ID] = &stored
	s.order = append(s.order, record.ID)
	slog.Debug("MemoryStore.Insert: stored record", "id", record.ID, "device_id", record.DeviceID)
	return nil
}

// Get returns a copy of the record for id.
func (s *MemoryStore) Get(id string) (*models.TimerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, exists := s.records[id]
	if !exists {
		return nil, models.ErrTimerNotFound
	}
	out := record.Clone()
	return &out, nil
}

// Update applies mutate under the store lock so concurrent set/cancel/
// snooze/fire calls never interleave into an inconsistent record.
func (s *MemoryStore) Update(id string, mutate Mutator) (*models.TimerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, exists := s.records[id]
	if !exists {
		return nil, models.ErrTimerNotFound
	}
	updated := record.Clone()
	if err := mutate(&updated); err != nil {
		return nil, err
	}
	updated.UpdatedAt = s.now()
	*record = updated
	out := record.Clone()
	slog.Debug("MemoryStore.Update: mutated record", "id", id, "status", record.Status)
	return &out, nil
}

// Remove deletes the record for id.
func (s *MemoryStore) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[id]; !exists {
		return models.ErrTimerNotFound
	}
	delete(s.records, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	slog.Debug("MemoryStore.Remove: removed record", "id", id)
	return nil
}

// Query returns copies of all records matching the predicate, in creation order.
func (s *MemoryStore) Query(predicate Predicate) ([]models.TimerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []models.TimerRecord
	for _, id := range s.order {
		record := s.records[id]
		if predicate == nil || predicate(*record) {
			result = append(result, record.Clone())
		}
	}
	return result, nil
}

// List returns copies of all records in creation order.
func (s *MemoryStore) List() ([]models.TimerRecord, error) {
	return s.Query(nil)
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error {
	return nil
}

var _ TimerStore = (*MemoryStore)(nil)
