// Package scheduler fires timer wake points at the correct wall-clock moment.
//
// A single dispatch goroutine owns a min-heap of wake points ordered by
// absolute fire time. It sleeps until the earliest point, fires everything
// due, and re-arms. Scheduling a point earlier than the current wait target
// wakes the loop immediately, and cancellation tombstones queued points by
// timer id instead of removing them from the heap.
package scheduler

import (
	"container/heap"
	"context"
	"log/slog"
	"time"
)

// WakeKind distinguishes the two wake points a timer can have.
type WakeKind string

const (
	// WakeKindWarning is the pre-expiry warning point.
	WakeKindWarning WakeKind = "warning"
	// WakeKindExpiry is the expiry point.
	WakeKindExpiry WakeKind = "expiry"
)

// WakePoint is one (timer id, kind, fire time) entry the scheduler acts on.
// ExpiresAt snapshots the record's expiry when the point was enqueued so the
// firing path can drop points made stale by a snooze.
type WakePoint struct {
	TimerID   string
	Kind      WakeKind
	At        time.Time
	ExpiresAt time.Time
	seq       uint64
}

// FireFunc receives due wake points. It runs on the dispatch goroutine and
// must re-check authoritative record state before acting; the scheduler
// itself never escalates failures.
type FireFunc func(WakePoint)

const channelBufferSize = 64

// schedOp is one queued mutation. CancelID set means tombstone, otherwise
// the wake point is enqueued. A single channel keeps Schedule and CancelTimer
// calls in submission order.
type schedOp struct {
	wp       WakePoint
	cancelID string
}

// Scheduler dispatches wake points for all live timers with one goroutine,
// independent of how many timers exist.
type Scheduler struct {
	opCh    chan schedOp
	ctx     context.Context
	stopped chan struct{}
	now     func() time.Time
}

// Opts holds configuration options for the scheduler.
type Opts struct {
	Clock func() time.Time
}

// Option defines a configuration option for the scheduler.
type Option func(*Opts)

// WithClock overrides the reference clock. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// New creates and starts a scheduler. The onFire callback is invoked for
// each due wake point. The dispatch goroutine exits when ctx is cancelled.
func New(ctx context.Context, onFire FireFunc, opts ...Option) *Scheduler {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	s := &Scheduler{
		opCh:    make(chan schedOp, channelBufferSize),
		ctx:     ctx,
		stopped: make(chan struct{}),
		now:     now,
	}
	go s.run(onFire)
	return s
}

// Schedule enqueues a wake point. If the point precedes the loop's current
// wait target the loop re-arms immediately.
func (s *Scheduler) Schedule(wp WakePoint) {
	select {
	case s.opCh <- schedOp{wp: wp}:
		slog.Debug("Scheduler.Schedule: wake point enqueued", "timer_id", wp.TimerID, "kind", wp.Kind, "at", wp.At)
	case <-s.ctx.Done():
	}
}

// CancelTimer tombstones all queued wake points for a timer id. Queued
// points become no-ops; an in-flight fire is never interrupted.
func (s *Scheduler) CancelTimer(timerID string) {
	select {
	case s.opCh <- schedOp{cancelID: timerID}:
		slog.Debug("Scheduler.CancelTimer: tombstone enqueued", "timer_id", timerID)
	case <-s.ctx.Done():
	}
}

// Done is closed when the dispatch goroutine has exited.
func (s *Scheduler) Done() <-chan struct{} {
	return s.stopped
}

// run is the dispatch loop. It owns the heap, the tombstone set and the
// per-timer pending counts; all mutation arrives over channels so the
// "next wake time" target and the tombstone set always change together.
func (s *Scheduler) run(onFire FireFunc) {
	defer close(s.stopped)

	h := &wakeHeap{}
	heap.Init(h)
	tombstones := make(map[string]struct{})
	pending := make(map[string]int)
	var seq uint64

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	resetTimer := func() <-chan time.Time {
		if timer != nil {
			timer.Stop()
		}
		if h.Len() == 0 {
			// No wake points; block on the channels alone.
			return nil
		}
		dur := (*h)[0].At.Sub(s.now())
		if dur < 0 {
			dur = 0
		}
		timer = time.NewTimer(dur)
		return timer.C
	}

	pop := func() (WakePoint, bool) {
		wp := heap.Pop(h).(WakePoint)
		pending[wp.TimerID]--
		if pending[wp.TimerID] <= 0 {
			delete(pending, wp.TimerID)
			if _, dead := tombstones[wp.TimerID]; dead {
				delete(tombstones, wp.TimerID)
				slog.Debug("Scheduler.run: dropped tombstoned wake point", "timer_id", wp.TimerID, "kind", wp.Kind)
				return wp, false
			}
			return wp, true
		}
		if _, dead := tombstones[wp.TimerID]; dead {
			slog.Debug("Scheduler.run: dropped tombstoned wake point", "timer_id", wp.TimerID, "kind", wp.Kind)
			return wp, false
		}
		return wp, true
	}

	timerCh := resetTimer()

	for {
		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler.run: context cancelled, exiting", "pending_points", h.Len())
			return

		case op := <-s.opCh:
			if op.cancelID != "" {
				if pending[op.cancelID] > 0 {
					tombstones[op.cancelID] = struct{}{}
				}
			} else {
				seq++
				op.wp.seq = seq
				heap.Push(h, op.wp)
				pending[op.wp.TimerID]++
			}
			timerCh = resetTimer()

		case <-timerCh:
			// Fire everything due, ties in insertion order.
			now := s.now()
			for h.Len() > 0 && !(*h)[0].At.After(now) {
				wp, live := pop()
				if !live {
					continue
				}
				slog.Debug("Scheduler.run: firing wake point", "timer_id", wp.TimerID, "kind", wp.Kind, "at", wp.At)
				onFire(wp)
			}
			timerCh = resetTimer()
		}
	}
}
