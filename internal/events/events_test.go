package events

import (
	"testing"
	"time"

	"github.com/viewassist/timerd/internal/models"
)

func TestBusFansOutToSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub1 := bus.Subscribe()
	sub2 := bus.Subscribe()

	event := Event{
		Name:  "va_timer_started",
		Timer: models.TimerRecord{ID: "t1", Status: models.TimerStatusRunning},
		Time:  time.Now(),
	}
	bus.Emit(event)

	for i, sub := range []<-chan Event{sub1, sub2} {
		select {
		case got := <-sub:
			if got.Name != event.Name || got.Timer.ID != "t1" {
				t.Errorf("subscriber %d received wrong event: %+v", i, got)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %d did not receive event", i)
		}
	}
}

func TestBusCloseClosesSubscribers(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()
	bus.Close()

	select {
	case _, ok := <-sub:
		if ok {
			t.Error("expected closed channel after bus close")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber channel not closed")
	}

	// Emit after close is a logged no-op, and Close is idempotent.
	bus.Emit(Event{Name: "va_timer_expired"})
	bus.Close()
}

func TestBusSubscribeAfterClose(t *testing.T) {
	bus := NewBus()
	bus.Close()
	sub := bus.Subscribe()
	if _, ok := <-sub; ok {
		t.Error("subscribe after close should return a closed channel")
	}
}

func TestBusCloseDuringBlockedEmit(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe()

	// Saturate the subscriber so the next delivery blocks on the timeout.
	for i := 0; i < DefaultChannelBufferSize; i++ {
		bus.Emit(Event{Name: "va_timer_started"})
	}

	panicked := make(chan interface{}, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() { panicked <- recover() }()
		bus.Emit(Event{Name: "va_timer_expired"})
	}()

	// Close while the emit above is parked on the full channel.
	time.Sleep(10 * time.Millisecond)
	bus.Close()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("emit did not return after close")
	}
	if p := <-panicked; p != nil {
		t.Fatalf("emit panicked during concurrent close: %v", p)
	}
	// The subscriber channel must still drain its buffered events and close.
	drained := 0
	for range sub {
		drained++
	}
	if drained < DefaultChannelBufferSize {
		t.Errorf("drained %d events, want at least %d", drained, DefaultChannelBufferSize)
	}
}

func TestBusFullSubscriberDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	full := bus.Subscribe()
	healthy := bus.Subscribe()

	// Saturate the first subscriber's buffer and never drain it.
	for i := 0; i < DefaultChannelBufferSize+1; i++ {
		bus.Emit(Event{Name: "va_timer_started"})
	}
	_ = full

	select {
	case <-healthy:
	case <-time.After(5 * time.Second):
		t.Fatal("healthy subscriber starved by a full one")
	}
}
