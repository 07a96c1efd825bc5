// Package timeparse resolves natural-language time expressions into
// structured time descriptors for the timer engine.
//
// The engine only depends on the Resolver interface; the platform's own
// sentence parser can be plugged in. SentenceResolver is the built-in
// implementation covering the expression shapes the voice grammar produces
// ("10 seconds", "1 hour 30 minutes", "tomorrow at 4pm", "16:30").
package timeparse

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/viewassist/timerd/internal/models"
)

// Resolution is the outcome of resolving a time expression. Exactly one of
// Time or Interval is set: Time for absolute wall-clock expressions,
// Interval for durations from now. Sentence echoes the parsed expression.
type Resolution struct {
	Sentence string
	Time     *models.TimerTime
	Interval *models.TimerInterval
}

// Resolver converts a time expression into a structured descriptor.
// Implementations must return quickly and synchronously; resolution failure
// is reported with models.ErrTimeParse, never retried.
type Resolver interface {
	Resolve(sentence string) (*Resolution, error)
}

// SentenceResolver is the built-in expression parser.
type SentenceResolver struct{}

// NewSentenceResolver creates the built-in resolver.
func NewSentenceResolver() *SentenceResolver {
	return &SentenceResolver{}
}

var intervalUnits = map[string]time.Duration{
	"second": time.Second, "seconds": time.Second, "sec": time.Second, "secs": time.Second,
	"minute": time.Minute, "minutes": time.Minute, "min": time.Minute, "mins": time.Minute,
	"hour": time.Hour, "hours": time.Hour, "hr": time.Hour, "hrs": time.Hour,
	"day": 24 * time.Hour, "days": 24 * time.Hour,
}

// Resolve parses a time expression. Interval phrases win over clock times
// because the voice grammar never mixes the two in one sentence.
func (r *SentenceResolver) Resolve(sentence string) (*Resolution, error) {
	normalized := strings.ToLower(strings.TrimSpace(sentence))
	if normalized == "" {
		return nil, models.ErrTimeParse
	}
	// Leading prepositions carry no information.
	for _, prefix := range []string{"in ", "for ", "at "} {
		if strings.HasPrefix(normalized, prefix) {
			normalized = strings.TrimSpace(strings.TrimPrefix(normalized, prefix))
			break
		}
	}

	if interval, ok := parseInterval(normalized); ok {
		slog.Debug("SentenceResolver.Resolve: resolved interval", "sentence", sentence, "interval", interval)
		return &Resolution{Sentence: sentence, Interval: &interval}, nil
	}
	if tt, ok := parseClockTime(normalized); ok {
		slog.Debug("SentenceResolver.Resolve: resolved time", "sentence", sentence, "time", tt)
		return &Resolution{Sentence: sentence, Time: &tt}, nil
	}
	slog.Debug("SentenceResolver.Resolve: unable to resolve", "sentence", sentence)
	return nil, fmt.Errorf("%w: %q", models.ErrTimeParse, sentence)
}

// parseInterval matches sequences of "<number> <unit>" with optional "and"
// joiners, e.g. "10 seconds", "1 hour and 30 minutes", "an hour".
func parseInterval(s string) (models.TimerInterval, bool) {
	fields := strings.Fields(s)
	var total time.Duration
	matched := false
	i := 0
	for i < len(fields) {
		word := fields[i]
		if word == "and" {
			i++
			continue
		}
		var n int
		switch word {
		case "a", "an":
			n = 1
		case "half":
			// "half an hour" / "half a minute"
			if i+2 < len(fields) {
				if unit, ok := intervalUnits[fields[i+2]]; ok {
					total += unit / 2
					matched = true
					i += 3
					continue
				}
			}
			return models.TimerInterval{}, false
		default:
			parsed, err := strconv.Atoi(word)
			if err != nil || parsed < 0 {
				return models.TimerInterval{}, false
			}
			n = parsed
		}
		if i+1 >= len(fields) {
			return models.TimerInterval{}, false
		}
		unit, ok := intervalUnits[fields[i+1]]
		if !ok {
			return models.TimerInterval{}, false
		}
		total += time.Duration(n) * unit
		matched = true
		i += 2
	}
	if !matched || total <= 0 {
		return models.TimerInterval{}, false
	}
	return models.IntervalFromDuration(total), true
}

// parseClockTime matches "[today|tomorrow] [at] H[:MM[:SS]][am|pm]",
// "noon" and "midnight".
func parseClockTime(s string) (models.TimerTime, bool) {
	var tt models.TimerTime
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return tt, false
	}
	if fields[0] == "today" || fields[0] == "tomorrow" {
		tt.Day = fields[0]
		fields = fields[1:]
	}
	if len(fields) > 0 && fields[0] == "at" {
		fields = fields[1:]
	}
	if len(fields) == 0 {
		return tt, false
	}
	rest := strings.Join(fields, " ")

	switch rest {
	case "noon", "midday":
		tt.Hour = 12
		return tt, true
	case "midnight":
		return tt, true
	}

	// Split a trailing meridiem, attached ("4pm") or spaced ("4 pm").
	if strings.HasSuffix(rest, "am") || strings.HasSuffix(rest, "pm") {
		tt.Meridiem = rest[len(rest)-2:]
		rest = strings.TrimSpace(strings.TrimSuffix(rest, tt.Meridiem))
		rest = strings.TrimSuffix(rest, ".")
	}
	if rest == "" {
		return models.TimerTime{}, false
	}

	parts := strings.Split(rest, ":")
	if len(parts) > 3 {
		return models.TimerTime{}, false
	}
	nums := make([]int, 0, 3)
	for _, p := range parts {
		n, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil || n < 0 {
			return models.TimerTime{}, false
		}
		nums = append(nums, n)
	}
	tt.Hour = nums[0]
	if len(nums) > 1 {
		tt.Minute = nums[1]
	}
	if len(nums) > 2 {
		tt.Second = nums[2]
	}
	if tt.Hour > 23 || tt.Minute > 59 || tt.Second > 59 {
		return models.TimerTime{}, false
	}
	if tt.Meridiem != "" && (tt.Hour < 1 || tt.Hour > 12) {
		return models.TimerTime{}, false
	}
	return tt, true
}

// ExpiryFromResolution computes the absolute expiry for a resolution against
// the reference clock, and reports which timer type the computation used.
// Absolute times already passed today roll over to the next day.
func ExpiryFromResolution(res *Resolution, now time.Time) (time.Time, models.TimerType, error) {
	switch {
	case res == nil:
		return time.Time{}, "", models.ErrTimeParse
	case res.Interval != nil:
		d := res.Interval.Duration()
		if d <= 0 {
			return time.Time{}, "", models.ErrTimeParse
		}
		return now.Add(d), models.TimerTypeInterval, nil
	case res.Time != nil:
		tt := res.Time
		hour := tt.Hour
		switch tt.Meridiem {
		case "pm":
			if hour < 12 {
				hour += 12
			}
		case "am":
			if hour == 12 {
				hour = 0
			}
		}
		expires := time.Date(now.Year(), now.Month(), now.Day(), hour, tt.Minute, tt.Second, 0, now.Location())
		if tt.Day == "tomorrow" {
			expires = expires.AddDate(0, 0, 1)
		} else if !expires.After(now) && tt.Day == "" {
			// Alarm semantics: a time already passed today means tomorrow.
			expires = expires.AddDate(0, 0, 1)
		}
		if !expires.After(now) {
			return time.Time{}, "", fmt.Errorf("%w: resolved time %q is in the past", models.ErrTimeParse, res.Sentence)
		}
		return expires, models.TimerTypeAbsolute, nil
	default:
		return time.Time{}, "", models.ErrTimeParse
	}
}

// DurationFromResolution computes a snooze duration from now. Intervals map
// directly; absolute times use the span from now to the resolved instant.
func DurationFromResolution(res *Resolution, now time.Time) (time.Duration, error) {
	if res != nil && res.Interval != nil {
		d := res.Interval.Duration()
		if d <= 0 {
			return 0, models.ErrTimeParse
		}
		return d, nil
	}
	expires, _, err := ExpiryFromResolution(res, now)
	if err != nil {
		return 0, err
	}
	return expires.Sub(now), nil
}
