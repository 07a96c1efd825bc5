// Package notify delivers timer announcements over a messaging backend.
//
// This file implements the Twilio SMS sender.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/twilio/twilio-go"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

// TwilioOpts holds configuration options for the Twilio sender.
type TwilioOpts struct {
	AccountSID string
	AuthToken  string
	FromNumber string
}

// TwilioOption defines a configuration option for the Twilio sender.
type TwilioOption func(*TwilioOpts)

// WithAccountSID sets the Twilio account SID.
func WithAccountSID(sid string) TwilioOption {
	return func(o *TwilioOpts) { o.AccountSID = sid }
}

// WithAuthToken sets the Twilio auth token.
func WithAuthToken(token string) TwilioOption {
	return func(o *TwilioOpts) { o.AuthToken = token }
}

// WithFromNumber sets the sending phone number.
func WithFromNumber(from string) TwilioOption {
	return func(o *TwilioOpts) { o.FromNumber = from }
}

// TwilioSender sends announcements as SMS via the Twilio REST API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender creates a Twilio sender, falling back to the
// TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER environment
// variables for unset options.
func NewTwilioSender(opts ...TwilioOption) (*TwilioSender, error) {
	var cfg TwilioOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.AccountSID == "" {
		cfg.AccountSID = os.Getenv("TWILIO_ACCOUNT_SID")
	}
	if cfg.AuthToken == "" {
		cfg.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	}
	if cfg.FromNumber == "" {
		cfg.FromNumber = os.Getenv("TWILIO_FROM_NUMBER")
	}
	slog.Debug("NewTwilioSender: config loaded",
		"AccountSID_set", cfg.AccountSID != "",
		"AuthToken_set", cfg.AuthToken != "",
		"FromNumber_set", cfg.FromNumber != "")

	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("account SID and auth token must be provided")
	}
	if cfg.FromNumber == "" {
		return nil, fmt.Errorf("from number must be provided")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return &TwilioSender{client: client, from: cfg.FromNumber}, nil
}

// SendMessage sends one SMS announcement.
func (s *TwilioSender) SendMessage(ctx context.Context, to string, body string) error {
	params := &twilioApi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	if _, err := s.client.Api.CreateMessage(params); err != nil {
		slog.Error("TwilioSender.SendMessage failed", "to", to, "error", err)
		return fmt.Errorf("failed to send announcement to %s: %w", to, err)
	}
	slog.Debug("TwilioSender.SendMessage succeeded", "to", to)
	return nil
}

var _ Sender = (*TwilioSender)(nil)
