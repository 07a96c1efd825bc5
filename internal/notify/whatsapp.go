// Package notify delivers timer announcements over a messaging backend.
//
// This file implements the WhatsApp sender on top of whatsmeow, including
// the QR / numeric-code login flow.
package notify

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mdp/qrterminal/v3"
	"github.com/viewassist/timerd/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
)

// WhatsApp sender configuration constants.
const (
	// DefaultWhatsAppDBPath is the default path for the whatsmeow SQLite database.
	DefaultWhatsAppDBPath = "/var/lib/timerd/whatsmeow.db"
	// JIDSuffix is the WhatsApp JID suffix for regular users.
	JIDSuffix = "s.whatsapp.net"
)

// WhatsAppOpts holds configuration options for the WhatsApp sender.
type WhatsAppOpts struct {
	DBDSN       string // whatsmeow session database connection string
	QRPath      string // path to write the login QR code
	NumericCode bool   // use a numeric login code instead of a QR code
}

// WhatsAppOption defines a configuration option for the WhatsApp sender.
type WhatsAppOption func(*WhatsAppOpts)

// WithWhatsAppDBDSN sets the whatsmeow session database connection string.
func WithWhatsAppDBDSN(dsn string) WhatsAppOption {
	return func(o *WhatsAppOpts) { o.DBDSN = dsn }
}

// WithQRCodeOutput writes the login QR code to the specified path.
func WithQRCodeOutput(path string) WhatsAppOption {
	return func(o *WhatsAppOpts) { o.QRPath = path }
}

// WithNumericCode uses a numeric login code instead of a QR code.
func WithNumericCode() WhatsAppOption {
	return func(o *WhatsAppOpts) { o.NumericCode = true }
}

// WhatsAppSender sends announcements over WhatsApp via whatsmeow.
type WhatsAppSender struct {
	waClient *whatsmeow.Client
}

// NewWhatsAppSender creates and connects a WhatsApp sender, running the
// login flow when no session exists yet.
func NewWhatsAppSender(opts ...WhatsAppOption) (*WhatsAppSender, error) {
	var cfg WhatsAppOpts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewWhatsAppSender: options set", "DBDSN_set", cfg.DBDSN != "", "QRPath_set", cfg.QRPath != "", "NumericCode", cfg.NumericCode)

	dbDSN := cfg.DBDSN
	if dbDSN == "" {
		dbDSN = DefaultWhatsAppDBPath
		slog.Debug("NewWhatsAppSender: no database DSN provided, using default SQLite path", "default_path", dbDSN)
	}
	var dbDriver string
	if store.DetectDSNType(dbDSN) == "postgres" {
		dbDriver = "postgres"
	} else {
		dbDriver = "sqlite3"
	}

	logger := waLog.Stdout("Database", "INFO", true)
	ctx := context.Background()
	container, err := sqlstore.New(ctx, dbDriver, dbDSN, logger)
	if err != nil {
		slog.Error("NewWhatsAppSender: failed to initialize session store", "error", err)
		return nil, fmt.Errorf("failed to initialize WhatsApp session store: %w", err)
	}
	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		slog.Error("NewWhatsAppSender: failed to get device from store", "error", err)
		return nil, fmt.Errorf("failed to get device from WhatsApp store: %w", err)
	}

	clientLog := waLog.Stdout("Client", "INFO", true)
	waClient := whatsmeow.NewClient(deviceStore, clientLog)

	if waClient.Store.ID == nil {
		slog.Info("NewWhatsAppSender: login required, starting QR code flow")
		qrChan, _ := waClient.GetQRChannel(context.Background())
		if err := waClient.Connect(); err != nil {
			slog.Error("NewWhatsAppSender: failed to connect during login", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp during login: %w", err)
		}
		writer := io.Writer(os.Stdout)
		if cfg.QRPath != "" {
			f, ferr := os.Create(cfg.QRPath)
			if ferr != nil {
				slog.Error("NewWhatsAppSender: failed to create QR file", "error", ferr)
				return nil, fmt.Errorf("failed to create QR file: %w", ferr)
			}
			defer f.Close()
			writer = f
		}
		for evt := range qrChan {
			if evt.Event == "code" {
				if cfg.NumericCode {
					fmt.Fprintln(writer, evt.Code)
				} else {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, writer)
				}
			} else {
				slog.Debug("NewWhatsAppSender: login event", "event", evt.Event)
			}
		}
	} else {
		slog.Debug("NewWhatsAppSender: already logged in, connecting")
		if err := waClient.Connect(); err != nil {
			slog.Error("NewWhatsAppSender: failed to connect", "error", err)
			return nil, fmt.Errorf("failed to connect to WhatsApp server: %w", err)
		}
	}
	slog.Info("NewWhatsAppSender: WhatsApp sender connected")
	return &WhatsAppSender{waClient: waClient}, nil
}

// SendMessage sends one WhatsApp announcement.
func (s *WhatsAppSender) SendMessage(ctx context.Context, to string, body string) error {
	if s.waClient == nil {
		return fmt.Errorf("whatsapp client not initialized")
	}
	if to == "" {
		return fmt.Errorf("recipient cannot be empty")
	}
	if body == "" {
		return fmt.Errorf("message body cannot be empty")
	}

	jid := types.NewJID(to, JIDSuffix)
	msg := &waE2E.Message{Conversation: &body}
	if _, err := s.waClient.SendMessage(ctx, jid, msg); err != nil {
		slog.Error("WhatsAppSender.SendMessage failed", "error", err, "to", to)
		return fmt.Errorf("failed to send announcement to %s: %w", to, err)
	}
	slog.Debug("WhatsAppSender.SendMessage succeeded", "to", to)
	return nil
}

// Disconnect closes the WhatsApp connection.
func (s *WhatsAppSender) Disconnect() {
	if s.waClient != nil {
		s.waClient.Disconnect()
	}
}

var _ Sender = (*WhatsAppSender)(nil)
