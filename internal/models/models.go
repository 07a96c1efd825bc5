// Package models defines the core data structures for the timer engine.
//
// It includes the timer record, the closed enumerations that drive event
// naming and scheduling semantics, and the shared error variables returned
// by the service layer.
package models

import (
	"errors"
	"time"
)

// TimerClass is the semantic category of a scheduled item. It controls the
// lifecycle event name prefix and default UX conventions only.
type TimerClass string

const (
	// TimerClassAlarm is an alarm set for a wall-clock time.
	TimerClassAlarm TimerClass = "alarm"
	// TimerClassTimer is a countdown timer.
	TimerClassTimer TimerClass = "timer"
	// TimerClassReminder is a reminder with an optional label.
	TimerClassReminder TimerClass = "reminder"
	// TimerClassCommand runs a platform command when it fires.
	TimerClassCommand TimerClass = "command"
)

// IsValidTimerClass checks if the given timer class is supported.
func IsValidTimerClass(tc TimerClass) bool {
	switch tc {
	case TimerClassAlarm, TimerClassTimer, TimerClassReminder, TimerClassCommand:
		return true
	default:
		return false
	}
}

// TimerType records how the expiry was computed from the time expression.
type TimerType string

const (
	// TimerTypeAbsolute means the expression resolved to a wall-clock time.
	TimerTypeAbsolute TimerType = "absolute_time"
	// TimerTypeInterval means the expression resolved to a duration from now.
	TimerTypeInterval TimerType = "relative_interval"
)

// TimerStatus is the lifecycle state of a timer record.
type TimerStatus string

const (
	// TimerStatusRunning indicates the timer is armed and counting down.
	TimerStatusRunning TimerStatus = "running"
	// TimerStatusWarningFired indicates the pre-expiry warning has fired.
	TimerStatusWarningFired TimerStatus = "warning_fired"
	// TimerStatusExpired indicates the timer has fired. Terminal for the
	// scheduler; a snooze re-arms the record back to running.
	TimerStatusExpired TimerStatus = "expired"
	// TimerStatusCancelled indicates the timer was cancelled by a caller.
	TimerStatusCancelled TimerStatus = "cancelled"
	// TimerStatusSnoozed exists for records produced by other platform
	// components; the engine itself re-arms snoozed timers to running.
	TimerStatusSnoozed TimerStatus = "snoozed"
)

// IsTerminal reports whether a timer in this status has no scheduler
// registration and never fires again.
func (s TimerStatus) IsTerminal() bool {
	return s == TimerStatusExpired || s == TimerStatusCancelled
}

// Error variables for the service operation surface.
var (
	// ErrTimeParse indicates the time expression could not be resolved.
	ErrTimeParse = errors.New("unable to decode time or interval information")
	// ErrTimerNotFound indicates the timer id resolved to no record.
	ErrTimerNotFound = errors.New("timer not found")
	// ErrInvalidTimerState indicates an operation was attempted in a status
	// that does not permit it (e.g. snoozing a running timer).
	ErrInvalidTimerState = errors.New("invalid timer state for operation")
	// ErrInvalidSelection indicates cancel_timer was called with no
	// timer_id, device_id or remove_all selector.
	ErrInvalidSelection = errors.New("no timer id, device id or remove_all supplied")
	// ErrDuplicateTimerID indicates an insert collided on id.
	ErrDuplicateTimerID = errors.New("timer id already exists")
	// ErrEmptyDeviceID indicates set_timer was called without a device.
	ErrEmptyDeviceID = errors.New("device_id is required")
	// ErrInvalidTimerClass indicates an unknown timer class was supplied.
	ErrInvalidTimerClass = errors.New("invalid timer class")
)

// TimerInterval is a duration broken down for callers, derived by integer
// subtraction and floor division from the reference clock.
type TimerInterval struct {
	Days    int `json:"days"`
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// IsZero reports whether the interval carries no time at all.
func (i TimerInterval) IsZero() bool {
	return i.Days == 0 && i.Hours == 0 && i.Minutes == 0 && i.Seconds == 0
}

// Duration converts the interval breakdown to a time.Duration.
func (i TimerInterval) Duration() time.Duration {
	return time.Duration(i.Days)*24*time.Hour +
		time.Duration(i.Hours)*time.Hour +
		time.Duration(i.Minutes)*time.Minute +
		time.Duration(i.Seconds)*time.Second
}

// IntervalFromDuration breaks a duration down into days/hours/minutes/seconds
// using floor division. Negative durations clamp to zero.
func IntervalFromDuration(d time.Duration) TimerInterval {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return TimerInterval{
		Days:    int(total / 86400),
		Hours:   int(total % 86400 / 3600),
		Minutes: int(total % 3600 / 60),
		Seconds: int(total % 60),
	}
}

// TimerTime is the structured echo of an absolute time expression.
type TimerTime struct {
	Day      string `json:"day,omitempty"` // "", "today" or "tomorrow"
	Hour     int    `json:"hour"`
	Minute   int    `json:"minute"`
	Second   int    `json:"second"`
	Meridiem string `json:"meridiem,omitempty"` // "", "am" or "pm"
}

// TimerRecord is the persisted state of one scheduled item.
type TimerRecord struct {
	ID                string         `json:"id"`
	DeviceID          string         `json:"device_id"`
	TimerClass        TimerClass     `json:"timer_class"`
	TimerType         TimerType      `json:"timer_type"`
	Name              string         `json:"name,omitempty"`
	Expires           time.Time      `json:"expires"`
	OriginalExpiry    time.Time      `json:"original_expiry"`
	PreExpireWarning  int            `json:"pre_expire_warning"` // seconds; 0 disables
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	Status            TimerStatus    `json:"status"`
	ExpiresInSeconds  int64          `json:"expires_in_seconds"`
	ExpiresInInterval TimerInterval  `json:"expires_in_interval"`
	ExtraInfo         map[string]any `json:"extra_info,omitempty"`
}

// Keys the engine attaches to ExtraInfo alongside caller-supplied pairs.
const (
	// ExtraKeySentence echoes the parsed time expression.
	ExtraKeySentence = "sentence"
	// ExtraKeyResolvedTime carries the resolver's TimerTime echo.
	ExtraKeyResolvedTime = "resolved_time"
	// ExtraKeyResolvedInterval carries the resolver's TimerInterval echo.
	ExtraKeyResolvedInterval = "resolved_interval"
	// ExtraKeySnoozeDuration records the last snooze duration in seconds.
	ExtraKeySnoozeDuration = "snooze_duration"
)

// RefreshExpiresIn recomputes the derived countdown fields against now.
// Expired or cancelled records report zero remaining time.
func (t *TimerRecord) RefreshExpiresIn(now time.Time) {
	remaining := t.Expires.Unix() - now.Unix()
	if remaining < 0 || t.Status.IsTerminal() {
		remaining = 0
	}
	t.ExpiresInSeconds = remaining
	t.ExpiresInInterval = IntervalFromDuration(time.Duration(remaining) * time.Second)
}

// Clone returns a deep copy so callers cannot mutate stored state through
// the ExtraInfo map.
func (t TimerRecord) Clone() TimerRecord {
	if t.ExtraInfo != nil {
		extra := make(map[string]any, len(t.ExtraInfo))
		for k, v := range t.ExtraInfo {
			extra[k] = v
		}
		t.ExtraInfo = extra
	}
	return t
}

// MergeExtra merges caller-supplied key/value pairs into ExtraInfo,
// preserving existing keys not named in extra.
func (t *TimerRecord) MergeExtra(extra map[string]any) {
	if len(extra) == 0 {
		return
	}
	if t.ExtraInfo == nil {
		t.ExtraInfo = make(map[string]any, len(extra))
	}
	for k, v := range extra {
		t.ExtraInfo[k] = v
	}
}
