// Package events publishes timer lifecycle events to the platform.
//
// The in-process Bus fans events out to subscriber channels; slow consumers
// are dropped-with-log rather than blocking the service or scheduler path.
package events

import (
	"log/slog"
	"sync"
	"time"

	"github.com/viewassist/timerd/internal/models"
)

// Default channel configuration.
const (
	// DefaultChannelBufferSize is the buffer size per subscriber channel.
	DefaultChannelBufferSize = 64
	// DefaultEmitTimeout bounds how long Emit waits on a full subscriber.
	DefaultEmitTimeout = 100 * time.Millisecond
)

// Event is one lifecycle transition. Timer is the full record at the moment
// of the transition.
type Event struct {
	Name  string             `json:"name"`
	Timer models.TimerRecord `json:"timer"`
	Time  time.Time          `json:"time"`
}

// Emitter publishes lifecycle events. The platform event bus is an external
// collaborator; Bus is the in-process implementation.
type Emitter interface {
	Emit(event Event)
}

// Bus is a fan-out emitter with per-subscriber buffered channels.
type Bus struct {
	mu          sync.RWMutex
	subscribers []chan Event
	stopped     bool
}

// NewBus creates an event bus with no subscribers.
func NewBus() *Bus {
	slog.Debug("NewBus: created event bus")
	return &Bus{}
}

// Subscribe registers a new subscriber and returns its event channel.
// The channel is closed when the bus closes.
func (b *Bus) Subscribe() <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, DefaultChannelBufferSize)
	if b.stopped {
		close(ch)
		return ch
	}
	b.subscribers = append(b.subscribers, ch)
	slog.Debug("Bus.Subscribe: subscriber added", "count", len(b.subscribers))
	return ch
}

// Emit publishes an event to every subscriber. A subscriber that stays full
// past the emit timeout misses the event; the authoritative state lives in
// the store, not the bus. The read lock is held across delivery so Close
// cannot close a channel mid-send.
func (b *Bus) Emit(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.stopped {
		slog.Warn("Bus.Emit: dropping event, bus closed", "name", event.Name, "timer_id", event.Timer.ID)
		return
	}

	slog.Info("Bus.Emit: publishing lifecycle event", "name", event.Name, "timer_id", event.Timer.ID, "status", event.Timer.Status)
	for _, ch := range b.subscribers {
		select {
		case ch <- event:
		case <-time.After(DefaultEmitTimeout):
			slog.Warn("Bus.Emit: subscriber channel blocked, dropping event", "name", event.Name, "timer_id", event.Timer.ID)
		}
	}
}

// Close closes all subscriber channels. Emit becomes a logged no-op. The
// write lock waits out any in-flight delivery, which is bounded by the emit
// timeout per subscriber.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.stopped = true
	for _, ch := range b.subscribers {
		close(ch)
	}
	b.subscribers = nil
	slog.Debug("Bus.Close: event bus closed")
}

var _ Emitter = (*Bus)(nil)

// NopEmitter discards all events. Useful for tests.
type NopEmitter struct{}

// Emit discards the event.
func (NopEmitter) Emit(Event) {}

var _ Emitter = NopEmitter{}
