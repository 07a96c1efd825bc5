// Package timers implements the timer service: the public operation surface
// for setting, cancelling, snoozing and querying timers, and the lifecycle
// state machine driven by scheduler wake points.
package timers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/viewassist/timerd/internal/events"
	"github.com/viewassist/timerd/internal/models"
	"github.com/viewassist/timerd/internal/scheduler"
	"github.com/viewassist/timerd/internal/store"
	"github.com/viewassist/timerd/internal/timeparse"
	"github.com/viewassist/timerd/internal/util"
)

// DefaultPreExpireWarning is the warning lead time in seconds applied when
// set_timer does not specify one.
const DefaultPreExpireWarning = 10

// Service orchestrates resolver, store, scheduler and event emitter.
// All operations are safe for arbitrary concurrent callers.
type Service struct {
	store    store.TimerStore
	resolver timeparse.Resolver
	emitter  events.Emitter
	sched    *scheduler.Scheduler
	now      func() time.Time
}

// Opts holds configuration options for the timer service.
type Opts struct {
	Clock func() time.Time
}

// Option defines a configuration option for the timer service.
type Option func(*Opts)

// WithClock overrides the reference clock. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(o *Opts) {
		o.Clock = clock
	}
}

// NewService creates the timer service and starts its wake scheduler.
// The scheduler goroutine exits when ctx is cancelled.
func NewService(ctx context.Context, st store.TimerStore, resolver timeparse.Resolver, emitter events.Emitter, opts ...Option) *Service {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	s := &Service{
		store:    st,
		resolver: resolver,
		emitter:  emitter,
		now:      now,
	}
	s.sched = scheduler.New(ctx, s.handleWake, scheduler.WithClock(now))
	slog.Debug("NewService: timer service created")
	return s
}

// SetTimerRequest carries the inputs of the set_timer operation.
type SetTimerRequest struct {
	DeviceID         string            `json:"device_id"`
	Class            models.TimerClass `json:"type"`
	Time             string            `json:"time"`
	Name             string            `json:"name,omitempty"`
	Extra            map[string]any    `json:"extra,omitempty"`
	PreExpireWarning *int              `json:"pre_expire_warning,omitempty"`
}

// SetTimer resolves the time expression, creates a running timer record,
// registers its wake points and publishes the started event.
func (s *Service) SetTimer(ctx context.Context, req SetTimerRequest) (*models.SetTimerResult, error) {
	if req.DeviceID == "" {
		return nil, models.ErrEmptyDeviceID
	}
	if !models.IsValidTimerClass(req.Class) {
		return nil, fmt.Errorf("%w: %q", models.ErrInvalidTimerClass, req.Class)
	}

	res, err := s.resolver.Resolve(req.Time)
	if err != nil {
		slog.Warn("Service.SetTimer: time resolution failed", "device_id", req.DeviceID, "time", req.Time, "error", err)
		return nil, err
	}
	now := s.now()
	expires, timerType, err := timeparse.ExpiryFromResolution(res, now)
	if err != nil {
		return nil, err
	}

	warning := DefaultPreExpireWarning
	if req.PreExpireWarning != nil {
		warning = *req.PreExpireWarning
	}
	if warning < 0 {
		warning = 0
	}

	record := models.TimerRecord{
		ID:               util.GenerateTimerID(),
		DeviceID:         req.DeviceID,
		TimerClass:       req.Class,
		TimerType:        timerType,
		Name:             req.Name,
		Expires:          expires,
		OriginalExpiry:   expires,
		PreExpireWarning: warning,
		CreatedAt:        now,
		UpdatedAt:        now,
		Status:           models.TimerStatusRunning,
		ExtraInfo:        map[string]any{models.ExtraKeySentence: res.Sentence},
	}
	if res.Time != nil {
		record.ExtraInfo[models.ExtraKeyResolvedTime] = *res.Time
	}
	if res.Interval != nil {
		record.ExtraInfo[models.ExtraKeyResolvedInterval] = *res.Interval
	}
	record.MergeExtra(req.Extra)
	record.RefreshExpiresIn(now)

	if err := s.store.Insert(record); err != nil {
		slog.Error("Service.SetTimer: insert failed", "id", record.ID, "error", err)
		return nil, err
	}
	s.registerWakePoints(record, now)
	s.emit(record, models.TimerActionStarted)

	responseText := renderResponse(record, res)
	slog.Info("Service.SetTimer: timer created", "id", record.ID, "device_id", record.DeviceID,
		"class", record.TimerClass, "expires", record.Expires, "expires_in_seconds", record.ExpiresInSeconds)
	return &models.SetTimerResult{TimerID: record.ID, Timer: record, Response: responseText}, nil
}

// CancelTimer removes timers by selection: remove_all beats timer_id beats
// device_id. It returns true iff at least one record was removed; an empty
// match is a valid outcome, not an error.
func (s *Service) CancelTimer(ctx context.Context, timerID, deviceID string, removeAll bool) (bool, error) {
	var targets []models.TimerRecord
	switch {
	case removeAll:
		all, err := s.store.List()
		if err != nil {
			return false, err
		}
		targets = all
	case timerID != "":
		record, err := s.store.Get(timerID)
		if err != nil {
			if errors.Is(err, models.ErrTimerNotFound) {
				slog.Debug("Service.CancelTimer: no such timer", "timer_id", timerID)
				return false, nil
			}
			return false, err
		}
		targets = []models.TimerRecord{*record}
	case deviceID != "":
		matched, err := s.store.Query(func(t models.TimerRecord) bool {
			return t.DeviceID == deviceID
		})
		if err != nil {
			return false, err
		}
		targets = matched
	default:
		return false, models.ErrInvalidSelection
	}

	removed := 0
	now := s.now()
	for _, record := range targets {
		s.sched.CancelTimer(record.ID)
		if err := s.store.Remove(record.ID); err != nil {
			// Lost a race with another cancel; the wake points are
			// already tombstoned either way.
			slog.Debug("Service.CancelTimer: record vanished during cancel", "id", record.ID, "error", err)
			continue
		}
		record.Status = models.TimerStatusCancelled
		record.UpdatedAt = now
		record.RefreshExpiresIn(now)
		s.emit(record, models.TimerActionCancelled)
		removed++
	}
	slog.Info("Service.CancelTimer: cancellation done", "removed", removed,
		"remove_all", removeAll, "timer_id", timerID, "device_id", deviceID)
	return removed > 0, nil
}

// SnoozeTimer re-arms an expired timer with a new relative deadline. The
// original expiry is preserved; any other starting status is an error.
func (s *Service) SnoozeTimer(ctx context.Context, timerID, timeExpression string) (*models.SnoozeTimerResult, error) {
	res, err := s.resolver.Resolve(timeExpression)
	if err != nil {
		slog.Warn("Service.SnoozeTimer: time resolution failed", "timer_id", timerID, "time", timeExpression, "error", err)
		return nil, err
	}
	now := s.now()
	duration, err := timeparse.DurationFromResolution(res, now)
	if err != nil {
		return nil, err
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: snooze duration must be in the future", models.ErrTimeParse)
	}

	newExpires := now.Add(duration)
	updated, err := s.store.Update(timerID, func(t *models.TimerRecord) error {
		if t.Status != models.TimerStatusExpired {
			return fmt.Errorf("%w: cannot snooze timer in status %q", models.ErrInvalidTimerState, t.Status)
		}
		t.Status = models.TimerStatusRunning
		t.Expires = newExpires
		if t.ExtraInfo == nil {
			t.ExtraInfo = make(map[string]any)
		}
		t.ExtraInfo[models.ExtraKeySnoozeDuration] = int64(duration.Seconds())
		return nil
	})
	if err != nil {
		slog.Warn("Service.SnoozeTimer: snooze rejected", "timer_id", timerID, "error", err)
		return nil, err
	}

	record := *updated
	record.RefreshExpiresIn(now)
	s.registerWakePoints(record, now)
	s.emit(record, models.TimerActionSnoozed)
	slog.Info("Service.SnoozeTimer: timer re-armed", "id", record.ID, "expires", record.Expires, "snooze_seconds", int64(duration.Seconds()))
	return &models.SnoozeTimerResult{TimerID: record.ID, Timer: record}, nil
}

// GetTimers is a pure read over the store. Terminal records are excluded
// unless includeExpired is set. Results are in creation order.
func (s *Service) GetTimers(ctx context.Context, timerID, deviceID string, includeExpired bool) ([]models.TimerRecord, error) {
	if timerID != "" {
		if _, err := s.store.Get(timerID); err != nil {
			return nil, err
		}
	}
	matched, err := s.store.Query(func(t models.TimerRecord) bool {
		if timerID != "" && t.ID != timerID {
			return false
		}
		if deviceID != "" && t.DeviceID != deviceID {
			return false
		}
		if !includeExpired && t.Status.IsTerminal() {
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range matched {
		matched[i].RefreshExpiresIn(now)
	}
	slog.Debug("Service.GetTimers: query done", "timer_id", timerID, "device_id", deviceID,
		"include_expired", includeExpired, "count", len(matched))
	return matched, nil
}

// Restore re-arms persisted non-terminal records at startup. Records whose
// deadline passed while the process was down are marked expired without
// firing their events late.
func (s *Service) Restore(ctx context.Context) error {
	records, err := s.store.List()
	if err != nil {
		return fmt.Errorf("failed to load persisted timers: %w", err)
	}
	now := s.now()
	restored, lapsed := 0, 0
	for _, record := range records {
		if record.Status.IsTerminal() {
			continue
		}
		if !record.Expires.After(now) {
			if _, err := s.store.Update(record.ID, func(t *models.TimerRecord) error {
				t.Status = models.TimerStatusExpired
				return nil
			}); err != nil {
				slog.Warn("Service.Restore: failed to expire lapsed timer", "id", record.ID, "error", err)
				continue
			}
			lapsed++
			continue
		}
		s.registerWakePoints(record, now)
		restored++
	}
	if restored > 0 || lapsed > 0 {
		slog.Info("Service.Restore: persisted timers processed", "restored", restored, "lapsed", lapsed)
	}
	return nil
}

// registerWakePoints enqueues the expiry point and, when a warning lead is
// configured and still in the future, the warning point.
func (s *Service) registerWakePoints(t models.TimerRecord, now time.Time) {
	if t.PreExpireWarning > 0 {
		warnAt := t.Expires.Add(-time.Duration(t.PreExpireWarning) * time.Second)
		if warnAt.After(now) {
			s.sched.Schedule(scheduler.WakePoint{
				TimerID:   t.ID,
				Kind:      scheduler.WakeKindWarning,
				At:        warnAt,
				ExpiresAt: t.Expires,
			})
		}
	}
	s.sched.Schedule(scheduler.WakePoint{
		TimerID:   t.ID,
		Kind:      scheduler.WakeKindExpiry,
		At:        t.Expires,
		ExpiresAt: t.Expires,
	})
}

// handleWake runs on the scheduler goroutine. The store is authoritative:
// points for cancelled, already-progressed or snoozed records are dropped
// silently.
func (s *Service) handleWake(wp scheduler.WakePoint) {
	record, err := s.store.Get(wp.TimerID)
	if err != nil {
		slog.Debug("Service.handleWake: record vanished, dropping wake point", "timer_id", wp.TimerID, "kind", wp.Kind)
		return
	}
	if record.Status.IsTerminal() {
		slog.Debug("Service.handleWake: record terminal, dropping wake point", "timer_id", wp.TimerID, "kind", wp.Kind, "status", record.Status)
		return
	}
	if !record.Expires.Equal(wp.ExpiresAt) {
		// Expiry was rewritten by a snooze after this point was enqueued.
		slog.Debug("Service.handleWake: stale wake point, dropping", "timer_id", wp.TimerID, "kind", wp.Kind)
		return
	}

	switch wp.Kind {
	case scheduler.WakeKindWarning:
		updated, err := s.store.Update(wp.TimerID, func(t *models.TimerRecord) error {
			if t.Status != models.TimerStatusRunning || !t.Expires.Equal(wp.ExpiresAt) {
				return fmt.Errorf("%w: warning wake in status %q", models.ErrInvalidTimerState, t.Status)
			}
			t.Status = models.TimerStatusWarningFired
			return nil
		})
		if err != nil {
			slog.Debug("Service.handleWake: warning transition skipped", "timer_id", wp.TimerID, "error", err)
			return
		}
		result := *updated
		result.RefreshExpiresIn(s.now())
		s.emit(result, models.TimerActionWarning)

	case scheduler.WakeKindExpiry:
		updated, err := s.store.Update(wp.TimerID, func(t *models.TimerRecord) error {
			if t.Status != models.TimerStatusRunning && t.Status != models.TimerStatusWarningFired {
				return fmt.Errorf("%w: expiry wake in status %q", models.ErrInvalidTimerState, t.Status)
			}
			if !t.Expires.Equal(wp.ExpiresAt) {
				return fmt.Errorf("%w: expiry wake is stale", models.ErrInvalidTimerState)
			}
			t.Status = models.TimerStatusExpired
			return nil
		})
		if err != nil {
			slog.Debug("Service.handleWake: expiry transition skipped", "timer_id", wp.TimerID, "error", err)
			return
		}
		result := *updated
		result.RefreshExpiresIn(s.now())
		s.emit(result, models.TimerActionExpired)
	}
}

func (s *Service) emit(record models.TimerRecord, action models.TimerAction) {
	s.emitter.Emit(events.Event{
		Name:  models.EventName(record.TimerClass, action),
		Timer: record,
		Time:  s.now(),
	})
}

// renderResponse builds the spoken confirmation from the resolver output.
func renderResponse(t models.TimerRecord, res *timeparse.Resolution) string {
	label := strings.ToUpper(string(t.TimerClass)[:1]) + string(t.TimerClass)[1:]
	if t.Name != "" {
		label = label + " " + t.Name
	}
	return fmt.Sprintf("%s set for %s", label, timeparse.DescribeResolution(res))
}
