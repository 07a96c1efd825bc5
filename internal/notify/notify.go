// Package notify delivers timer announcements over a messaging backend.
//
// A Runner subscribes to the lifecycle event bus and sends the warning and
// expiry announcements for a device to its configured recipient. Delivery
// failures are logged and never retried; the event bus remains the
// authoritative notification channel.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/viewassist/timerd/internal/events"
	"github.com/viewassist/timerd/internal/models"
)

// DefaultSendTimeout bounds a single announcement delivery.
const DefaultSendTimeout = 10 * time.Second

// Sender delivers one announcement message to a recipient.
type Sender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Opts holds configuration options for the announcement runner.
type Opts struct {
	// Recipients maps device_id to a messaging recipient.
	Recipients map[string]string
	// DefaultRecipient receives announcements for unmapped devices.
	// Empty means unmapped devices are skipped.
	DefaultRecipient string
}

// Option defines a configuration option for the announcement runner.
type Option func(*Opts)

// WithRecipients sets the device_id to recipient mapping.
func WithRecipients(recipients map[string]string) Option {
	return func(o *Opts) {
		o.Recipients = recipients
	}
}

// WithDefaultRecipient sets the fallback recipient for unmapped devices.
func WithDefaultRecipient(to string) Option {
	return func(o *Opts) {
		o.DefaultRecipient = to
	}
}

// Runner consumes lifecycle events and sends announcements.
type Runner struct {
	sender     Sender
	recipients map[string]string
	defaultTo  string
}

// NewRunner creates an announcement runner for the given sender.
func NewRunner(sender Sender, opts ...Option) *Runner {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runner{
		sender:     sender,
		recipients: cfg.Recipients,
		defaultTo:  cfg.DefaultRecipient,
	}
}

// Run processes events until the channel closes or ctx is cancelled.
// Call it on its own goroutine.
func (r *Runner) Run(ctx context.Context, ch <-chan events.Event) {
	slog.Info("Runner.Run: announcement runner started")
	for {
		select {
		case <-ctx.Done():
			slog.Debug("Runner.Run: context cancelled, exiting")
			return
		case event, ok := <-ch:
			if !ok {
				slog.Debug("Runner.Run: event channel closed, exiting")
				return
			}
			r.handle(ctx, event)
		}
	}
}

func (r *Runner) handle(ctx context.Context, event events.Event) {
	body := announcementText(event)
	if body == "" {
		return
	}
	to := r.recipients[event.Timer.DeviceID]
	if to == "" {
		to = r.defaultTo
	}
	if to == "" {
		slog.Debug("Runner.handle: no recipient for device, skipping", "device_id", event.Timer.DeviceID, "event", event.Name)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, DefaultSendTimeout)
	defer cancel()
	if err := r.sender.SendMessage(sendCtx, to, body); err != nil {
		slog.Error("Runner.handle: announcement delivery failed", "error", err, "to", to, "timer_id", event.Timer.ID)
		return
	}
	slog.Debug("Runner.handle: announcement sent", "to", to, "timer_id", event.Timer.ID, "event", event.Name)
}

// announcementText renders the spoken announcement for warning and expiry
// transitions; other transitions produce no announcement.
func announcementText(event events.Event) string {
	t := event.Timer
	label := string(t.TimerClass)
	if t.Name != "" {
		label = label + " " + t.Name
	}
	switch {
	case event.Name == models.EventName(t.TimerClass, models.TimerActionExpired):
		return fmt.Sprintf("Your %s has finished", label)
	case event.Name == models.EventName(t.TimerClass, models.TimerActionWarning):
		return fmt.Sprintf("Your %s will finish in %d seconds", label, t.PreExpireWarning)
	default:
		return ""
	}
}

// MockSender records sent messages for tests.
type MockSender struct {
	Sent []SentMessage
}

// SentMessage is one recorded delivery.
type SentMessage struct {
	To   string
	Body string
}

// SendMessage records the message.
func (m *MockSender) SendMessage(ctx context.Context, to string, body string) error {
	m.Sent = append(m.Sent, SentMessage{To: to, Body: body})
	return nil
}

var _ Sender = (*MockSender)(nil)
