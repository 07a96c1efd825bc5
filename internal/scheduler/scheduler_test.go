package scheduler

import (
	"context"
	"testing"
	"time"
)

func collectFired(buffer int) (FireFunc, <-chan WakePoint) {
	ch := make(chan WakePoint, buffer)
	return func(wp WakePoint) { ch <- wp }, ch
}

func waitFired(t *testing.T, ch <-chan WakePoint, timeout time.Duration) WakePoint {
	t.Helper()
	select {
	case wp := <-ch:
		return wp
	case <-time.After(timeout):
		t.Fatal("timed out waiting for wake point to fire")
		return WakePoint{}
	}
}

func TestSchedulerFiresInOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	onFire, fired := collectFired(8)
	s := New(ctx, onFire)

	now := time.Now()
	s.Schedule(WakePoint{TimerID: "b", Kind: WakeKindExpiry, At: now.Add(80 * time.Millisecond)})
	s.Schedule(WakePoint{TimerID: "a", Kind: WakeKindExpiry, At: now.Add(30 * time.Millisecond)})

	first := waitFired(t, fired, time.Second)
	second := waitFired(t, fired, time.Second)
	if first.TimerID != "a" || second.TimerID != "b" {
		t.Errorf("fired out of order: %s then %s", first.TimerID, second.TimerID)
	}
}

func TestSchedulerEarlierPointWakesLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	onFire, fired := collectFired(8)
	s := New(ctx, onFire)

	now := time.Now()
	// The loop arms for the far point first; the near point must pre-empt it.
	s.Schedule(WakePoint{TimerID: "far", Kind: WakeKindExpiry, At: now.Add(5 * time.Second)})
	s.Schedule(WakePoint{TimerID: "near", Kind: WakeKindExpiry, At: now.Add(30 * time.Millisecond)})

	wp := waitFired(t, fired, time.Second)
	if wp.TimerID != "near" {
		t.Errorf("expected near point to fire first, got %s", wp.TimerID)
	}
}

func TestSchedulerTieBreaksByInsertionOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	onFire, fired := collectFired(8)
	s := New(ctx, onFire)

	at := time.Now().Add(40 * time.Millisecond)
	s.Schedule(WakePoint{TimerID: "t1", Kind: WakeKindWarning, At: at})
	s.Schedule(WakePoint{TimerID: "t1", Kind: WakeKindExpiry, At: at})

	first := waitFired(t, fired, time.Second)
	second := waitFired(t, fired, time.Second)
	if first.Kind != WakeKindWarning || second.Kind != WakeKindExpiry {
		t.Errorf("tie broke out of insertion order: %s then %s", first.Kind, second.Kind)
	}
}

func TestSchedulerCancelTombstonesAllPoints(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	onFire, fired := collectFired(8)
	s := New(ctx, onFire)

	now := time.Now()
	s.Schedule(WakePoint{TimerID: "dead", Kind: WakeKindWarning, At: now.Add(50 * time.Millisecond)})
	s.Schedule(WakePoint{TimerID: "dead", Kind: WakeKindExpiry, At: now.Add(60 * time.Millisecond)})
	s.Schedule(WakePoint{TimerID: "live", Kind: WakeKindExpiry, At: now.Add(70 * time.Millisecond)})
	s.CancelTimer("dead")

	wp := waitFired(t, fired, time.Second)
	if wp.TimerID != "live" {
		t.Errorf("cancelled point fired: %+v", wp)
	}
	select {
	case wp := <-fired:
		t.Errorf("unexpected extra wake point: %+v", wp)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSchedulerTombstoneClearsAfterDrain(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	onFire, fired := collectFired(8)
	s := New(ctx, onFire)

	now := time.Now()
	s.Schedule(WakePoint{TimerID: "t1", Kind: WakeKindExpiry, At: now.Add(30 * time.Millisecond)})
	s.CancelTimer("t1")

	// Once the cancelled point drains, the id can be reused (a snooze does this).
	time.Sleep(100 * time.Millisecond)
	s.Schedule(WakePoint{TimerID: "t1", Kind: WakeKindExpiry, At: time.Now().Add(30 * time.Millisecond)})

	wp := waitFired(t, fired, time.Second)
	if wp.TimerID != "t1" {
		t.Errorf("re-scheduled point did not fire: %+v", wp)
	}
}

func TestSchedulerStopsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	onFire, _ := collectFired(1)
	s := New(ctx, onFire)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after context cancellation")
	}
}
