package timers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/viewassist/timerd/internal/events"
	"github.com/viewassist/timerd/internal/models"
	"github.com/viewassist/timerd/internal/store"
	"github.com/viewassist/timerd/internal/timeparse"
)

func timeparseResolver() timeparse.Resolver {
	return timeparse.NewSentenceResolver()
}

// captureEmitter records emitted events for assertions.
type captureEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (c *captureEmitter) Emit(e events.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func (c *captureEmitter) all() []events.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]events.Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *captureEmitter) names() []string {
	var names []string
	for _, e := range c.all() {
		names = append(names, e.Name)
	}
	return names
}

func (c *captureEmitter) waitFor(t *testing.T, name string, timeout time.Duration) events.Event {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, e := range c.all() {
			if e.Name == name {
				return e
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("event %q was not emitted within %v; saw %v", name, timeout, c.names())
	return events.Event{}
}

type fixture struct {
	svc     *Service
	st      *store.MemoryStore
	emitter *captureEmitter
	now     time.Time
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	f := &fixture{
		st:      store.NewMemoryStore(),
		emitter: &captureEmitter{},
		now:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	resolver := timeparseResolver()
	allOpts := append([]Option{WithClock(func() time.Time { return f.now })}, opts...)
	f.svc = NewService(ctx, f.st, resolver, f.emitter, allOpts...)
	return f
}

func TestSetTimerInterval(t *testing.T) {
	f := newFixture(t)
	result, err := f.svc.SetTimer(context.Background(), SetTimerRequest{
		DeviceID: "kitchen",
		Class:    models.TimerClassTimer,
		Time:     "10 minutes",
		Name:     "tea",
	})
	if err != nil {
		t.Fatalf("set timer: %v", err)
	}

	record := result.Timer
	if record.ID == "" || result.TimerID != record.ID {
		t.Errorf("result ids inconsistent: %q vs %q", result.TimerID, record.ID)
	}
	wantExpires := f.now.Add(10 * time.Minute)
	if !record.Expires.Equal(wantExpires) {
		t.Errorf("expires = %v, want created_at + 10m = %v", record.Expires, wantExpires)
	}
	if !record.OriginalExpiry.Equal(wantExpires) {
		t.Errorf("original_expiry = %v, want %v", record.OriginalExpiry, wantExpires)
	}
	if record.Status != models.TimerStatusRunning {
		t.Errorf("status = %q, want running", record.Status)
	}
	if record.TimerType != models.TimerTypeInterval {
		t.Errorf("timer_type = %q, want relative_interval", record.TimerType)
	}
	if record.PreExpireWarning != DefaultPreExpireWarning {
		t.Errorf("pre_expire_warning = %d, want default %d", record.PreExpireWarning, DefaultPreExpireWarning)
	}
	if record.ExpiresInSeconds != 600 {
		t.Errorf("expires_in_seconds = %d, want 600", record.ExpiresInSeconds)
	}
	if record.ExtraInfo[models.ExtraKeySentence] != "10 minutes" {
		t.Errorf("extra_info missing sentence echo: %+v", record.ExtraInfo)
	}
	if result.Response != "Timer tea set for 10 minutes" {
		t.Errorf("response = %q", result.Response)
	}

	stored, err := f.st.Get(record.ID)
	if err != nil {
		t.Fatalf("record not in store: %v", err)
	}
	if stored.Status != models.TimerStatusRunning {
		t.Errorf("stored status = %q", stored.Status)
	}

	names := f.emitter.names()
	if len(names) != 1 || names[0] != "va_timer_started" {
		t.Errorf("events = %v, want [va_timer_started]", names)
	}
}

func TestSetTimerCommandClassEventPrefix(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.SetTimer(context.Background(), SetTimerRequest{
		DeviceID: "kitchen",
		Class:    models.TimerClassCommand,
		Time:     "5 minutes",
	})
	if err != nil {
		t.Fatalf("set timer: %v", err)
	}
	names := f.emitter.names()
	if len(names) != 1 || names[0] != "va_timer_command_started" {
		t.Errorf("events = %v, want [va_timer_command_started]", names)
	}
}

func TestSetTimerValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.SetTimer(ctx, SetTimerRequest{Class: models.TimerClassTimer, Time: "5 minutes"})
	if !errors.Is(err, models.ErrEmptyDeviceID) {
		t.Errorf("missing device: err = %v, want ErrEmptyDeviceID", err)
	}

	_, err = f.svc.SetTimer(ctx, SetTimerRequest{DeviceID: "kitchen", Class: "stopwatch", Time: "5 minutes"})
	if !errors.Is(err, models.ErrInvalidTimerClass) {
		t.Errorf("bad class: err = %v, want ErrInvalidTimerClass", err)
	}

	_, err = f.svc.SetTimer(ctx, SetTimerRequest{DeviceID: "kitchen", Class: models.TimerClassTimer, Time: "gibberish"})
	if !errors.Is(err, models.ErrTimeParse) {
		t.Errorf("bad time: err = %v, want ErrTimeParse", err)
	}

	if len(f.emitter.all()) != 0 {
		t.Errorf("failed set_timer calls must not emit events: %v", f.emitter.names())
	}
}

func TestCancelTimerByID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result, err := f.svc.SetTimer(ctx, SetTimerRequest{DeviceID: "kitchen", Class: models.TimerClassTimer, Time: "10 minutes"})
	if err != nil {
		t.Fatalf("set timer: %v", err)
	}

	removed, err := f.svc.CancelTimer(ctx, result.TimerID, "", false)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !removed {
		t.Error("cancel of existing timer should report true")
	}
	if _, err := f.st.Get(result.TimerID); !errors.Is(err, models.ErrTimerNotFound) {
		t.Error("cancelled record should be removed from the store")
	}

	names := f.emitter.names()
	if len(names) != 2 || names[1] != "va_timer_cancelled" {
		t.Errorf("events = %v, want started then cancelled", names)
	}
	cancelled := f.emitter.all()[1]
	if cancelled.Timer.Status != models.TimerStatusCancelled {
		t.Errorf("cancelled event status = %q", cancelled.Timer.Status)
	}
}

func TestCancelTimerNoMatchIsNotAnError(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	removed, err := f.svc.CancelTimer(ctx, "no-such-id", "", false)
	if err != nil {
		t.Fatalf("cancel unknown id: %v", err)
	}
	if removed {
		t.Error("cancel of unknown id should report false")
	}

	removed, err = f.svc.CancelTimer(ctx, "", "empty-room", false)
	if err != nil {
		t.Fatalf("cancel empty device: %v", err)
	}
	if removed {
		t.Error("cancel with no device matches should report false")
	}
}

func TestCancelTimerSelectionPrecedence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r1, _ := f.svc.SetTimer(ctx, SetTimerRequest{DeviceID: "kitchen", Class: models.TimerClassTimer, Time: "10 minutes"})
	r2, _ := f.svc.SetTimer(ctx, SetTimerRequest{DeviceID: "kitchen", Class: models.TimerClassTimer, Time: "20 minutes"})
	r3, _ := f.svc.SetTimer(ctx, SetTimerRequest{DeviceID: "bedroom", Class: models.TimerClassAlarm, Time: "30 minutes"})

	// remove_all wins over the other selectors.
	removed, err := f.svc.CancelTimer(ctx, r1.TimerID, "bedroom", true)
	if err != nil {
		t.Fatalf("cancel all: %v", err)
	}
	if !removed {
		t.Error("remove_all with timers present should report true")
	}
	remaining, _ := f.st.List()
	if len(remaining) != 0 {
		t.Errorf("remove_all left %d records", len(remaining))
	}
	_ = r2
	_ = r3
}

func TestCancelTimerByDevice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc.SetTimer(ctx, SetTimerRequest{DeviceID: "kitchen", Class: models.TimerClassTimer, Time: "10 minutes"})
	f.svc.SetTimer(ctx, SetTimerRequest{DeviceID: "kitchen", Class: models.TimerClassTimer, Time: "20 minutes"})
	keep, _ := f.svc.SetTimer(ctx, SetTimerRequest{DeviceID: "bedroom", Class: models.TimerClassAlarm, Time: "30 minutes"})

	removed, err := f.svc.CancelTimer(ctx, "", "kitchen", false)
	if err != nil {
		t.Fatalf("cancel by device: %v", err)
	}
	if !removed {
		t.Error("device cancel with matches should report true")
	}
	remaining, _ := f.st.List()
	if len(remaining) != 1 || remaining[0].ID != keep.TimerID {
		t.Errorf("device cancel removed wrong records: %+v", remaining)
	}
}

func TestCancelTimerNoSelection(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CancelTimer(context.Background(), "", "", false)
	if !errors.Is(err, models.ErrInvalidSelection) {
		t.Errorf("err = %v, want ErrInvalidSelection", err)
	}
}

func TestGetTimersFilters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	r1, _ := f.svc.SetTimer(ctx, SetTimerRequest{DeviceID: "kitchen", Class: models.TimerClassTimer, Time: "10 minutes"})
	f.svc.SetTimer(ctx, SetTimerRequest{DeviceID: "bedroom", Class: models.TimerClassAlarm, Time: "20 minutes"})

	// Expire the first record out of band.
	if _, err := f.st.Update(r1.TimerID, func(t *models.TimerRecord) error {
		t.Status = models.TimerStatusExpired
		return nil
	}); err != nil {
		t.Fatalf("mark expired: %v", err)
	}

	active, err := f.svc.GetTimers(ctx, "", "", false)
	if err != nil {
		t.Fatalf("get active: %v", err)
	}
	if len(active) != 1 || active[0].DeviceID != "bedroom" {
		t.Errorf("active filter wrong: %+v", active)
	}

	all, err := f.svc.GetTimers(ctx, "", "", true)
	if err != nil {
		t.Fatalf("get all: %v", err)
	}
	if len(all) != 2 {
		t.Errorf("include_expired should return both records, got %d", len(all))
	}

	byDevice, err := f.svc.GetTimers(ctx, "", "bedroom", false)
	if err != nil {
		t.Fatalf("get by device: %v", err)
	}
	if len(byDevice) != 1 || byDevice[0].DeviceID != "bedroom" {
		t.Errorf("device filter wrong: %+v", byDevice)
	}

	byID, err := f.svc.GetTimers(ctx, r1.TimerID, "", true)
	if err != nil {
		t.Fatalf("get by id: %v", err)
	}
	if len(byID) != 1 || byID[0].ID != r1.TimerID {
		t.Errorf("id filter wrong: %+v", byID)
	}

	if _, err := f.svc.GetTimers(ctx, "no-such-id", "", true); !errors.Is(err, models.ErrTimerNotFound) {
		t.Errorf("unknown id: err = %v, want ErrTimerNotFound", err)
	}
}

func TestSnoozeTimer(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	result, err := f.svc.SetTimer(ctx, SetTimerRequest{DeviceID: "kitchen", Class: models.TimerClassAlarm, Time: "10 minutes"})
	if err != nil {
		t.Fatalf("set timer: %v", err)
	}

	// Snoozing a running timer is rejected.
	if _, err := f.svc.SnoozeTimer(ctx, result.TimerID, "5 minutes"); !errors.Is(err, models.ErrInvalidTimerState) {
		t.Errorf("snooze running: err = %v, want ErrInvalidTimerState", err)
	}

	// Expire it, then snooze.
	if _, err := f.st.Update(result.TimerID, func(t *models.TimerRecord) error {
		t.Status = models.TimerStatusExpired
		return nil
	}); err != nil {
		t.Fatalf("mark expired: %v", err)
	}

	snoozed, err := f.svc.SnoozeTimer(ctx, result.TimerID, "5 minutes")
	if err != nil {
		t.Fatalf("snooze: %v", err)
	}
	record := snoozed.Timer
	if record.Status != models.TimerStatusRunning {
		t.Errorf("snoozed status = %q, want running", record.Status)
	}
	wantExpires := f.now.Add(5 * time.Minute)
	if !record.Expires.Equal(wantExpires) {
		t.Errorf("snoozed expires = %v, want %v", record.Expires, wantExpires)
	}
	if !record.OriginalExpiry.Equal(result.Timer.OriginalExpiry) {
		t.Errorf("snooze must preserve original_expiry: %v vs %v", record.OriginalExpiry, result.Timer.OriginalExpiry)
	}
	if record.ExtraInfo[models.ExtraKeySnoozeDuration] != int64(300) {
		t.Errorf("snooze_duration = %v, want 300", record.ExtraInfo[models.ExtraKeySnoozeDuration])
	}

	names := f.emitter.names()
	if names[len(names)-1] != "va_timer_snoozed" {
		t.Errorf("events = %v, want trailing va_timer_snoozed", names)
	}
}

func TestSnoozeTimerErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.svc.SnoozeTimer(ctx, "no-such-id", "5 minutes"); !errors.Is(err, models.ErrTimerNotFound) {
		t.Errorf("unknown id: err = %v, want ErrTimerNotFound", err)
	}
	if _, err := f.svc.SnoozeTimer(ctx, "whatever", "gibberish"); !errors.Is(err, models.ErrTimeParse) {
		t.Errorf("bad time: err = %v, want ErrTimeParse", err)
	}
}

func TestWarningThenExpiry(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real-time lifecycle test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemoryStore()
	emitter := &captureEmitter{}
	svc := NewService(ctx, st, timeparseResolver(), emitter)

	warning := 1
	result, err := svc.SetTimer(ctx, SetTimerRequest{
		DeviceID:         "kitchen",
		Class:            models.TimerClassTimer,
		Time:             "2 seconds",
		PreExpireWarning: &warning,
	})
	if err != nil {
		t.Fatalf("set timer: %v", err)
	}

	warnEvent := emitter.waitFor(t, "va_timer_warning", 3*time.Second)
	if warnEvent.Timer.Status != models.TimerStatusWarningFired {
		t.Errorf("warning event status = %q, want warning_fired", warnEvent.Timer.Status)
	}
	expireEvent := emitter.waitFor(t, "va_timer_expired", 3*time.Second)
	if expireEvent.Timer.Status != models.TimerStatusExpired {
		t.Errorf("expired event status = %q, want expired", expireEvent.Timer.Status)
	}

	names := emitter.names()
	want := []string{"va_timer_started", "va_timer_warning", "va_timer_expired"}
	if len(names) != len(want) {
		t.Fatalf("events = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("events = %v, want %v", names, want)
		}
	}

	stored, err := st.Get(result.TimerID)
	if err != nil {
		t.Fatalf("get after expiry: %v", err)
	}
	if stored.Status != models.TimerStatusExpired {
		t.Errorf("stored status = %q, want expired", stored.Status)
	}
	if !stored.Expires.Equal(result.Timer.Expires) {
		t.Error("expiry must not rewrite the deadline")
	}
}

func TestCancelledTimerNeverFires(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real-time lifecycle test in short mode")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := store.NewMemoryStore()
	emitter := &captureEmitter{}
	svc := NewService(ctx, st, timeparseResolver(), emitter)

	result, err := svc.SetTimer(ctx, SetTimerRequest{DeviceID: "kitchen", Class: models.TimerClassTimer, Time: "1 second"})
	if err != nil {
		t.Fatalf("set timer: %v", err)
	}
	if _, err := svc.CancelTimer(ctx, result.TimerID, "", false); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	time.Sleep(1500 * time.Millisecond)
	for _, name := range emitter.names() {
		if name == "va_timer_warning" || name == "va_timer_expired" {
			t.Errorf("cancelled timer fired event %q", name)
		}
	}
}

func TestRestore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	lapsed := models.TimerRecord{
		ID:         "018e0001-0000-7000-8000-0000000000aa",
		DeviceID:   "kitchen",
		TimerClass: models.TimerClassTimer,
		TimerType:  models.TimerTypeInterval,
		Expires:    f.now.Add(-time.Minute),
		Status:     models.TimerStatusRunning,
	}
	future := models.TimerRecord{
		ID:         "018e0001-0000-7000-8000-0000000000ab",
		DeviceID:   "kitchen",
		TimerClass: models.TimerClassTimer,
		TimerType:  models.TimerTypeInterval,
		Expires:    f.now.Add(time.Hour),
		Status:     models.TimerStatusRunning,
	}
	if err := f.st.Insert(lapsed); err != nil {
		t.Fatalf("insert lapsed: %v", err)
	}
	if err := f.st.Insert(future); err != nil {
		t.Fatalf("insert future: %v", err)
	}

	if err := f.svc.Restore(ctx); err != nil {
		t.Fatalf("restore: %v", err)
	}

	got, _ := f.st.Get(lapsed.ID)
	if got.Status != models.TimerStatusExpired {
		t.Errorf("lapsed record status = %q, want expired", got.Status)
	}
	got, _ = f.st.Get(future.ID)
	if got.Status != models.TimerStatusRunning {
		t.Errorf("future record status = %q, want running", got.Status)
	}
	// Lapsed deadlines are marked, never announced late.
	if len(f.emitter.all()) != 0 {
		t.Errorf("restore must not emit events, saw %v", f.emitter.names())
	}
}
