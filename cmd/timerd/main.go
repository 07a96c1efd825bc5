package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/viewassist/timerd/internal/api"
	"github.com/viewassist/timerd/internal/events"
	"github.com/viewassist/timerd/internal/notify"
	"github.com/viewassist/timerd/internal/store"
	"github.com/viewassist/timerd/internal/timeparse"
	"github.com/viewassist/timerd/internal/timers"
	"github.com/viewassist/timerd/internal/util"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for timerd state data
	DefaultStateDir = "/var/lib/timerd"
	// DefaultWhatsAppDBFileName is the WhatsApp session database filename
	// placed under the state directory when no DSN is configured
	DefaultWhatsAppDBFileName = "whatsmeow.db"
)

func main() {
	// Initialize structured logger
	initializeLogger()

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Open the timer store backend
	st, err := buildStore(flags)
	if err != nil {
		slog.Error("Failed to open timer store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	// Lifecycle event bus and optional announcement delivery
	bus := events.NewBus()
	defer bus.Close()
	runner, cleanup, err := buildNotifyRunner(flags)
	if err != nil {
		slog.Error("Failed to configure announcement backend", "error", err)
		os.Exit(1)
	}
	if runner != nil {
		go runner.Run(ctx, bus.Subscribe())
	}
	if cleanup != nil {
		defer cleanup()
	}

	svc := timers.NewService(ctx, st, timeparse.NewSentenceResolver(), bus)
	if *flags.dbDSN != "" {
		// Persistent backends may hold timers from a previous run.
		if err := svc.Restore(ctx); err != nil {
			slog.Error("Failed to restore persisted timers", "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Bootstrapping timerd with configured modules",
		"store_backend", storeBackendName(*flags.dbDSN),
		"notify_backend", *flags.notifyBackend,
		"api_addr", *flags.apiAddr)

	server := api.NewServer(svc, api.WithAddr(*flags.apiAddr))
	if err := server.Run(ctx); err != nil {
		slog.Error("timerd failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("timerd exited successfully")
}

// Config holds environment configuration
type Config struct {
	DatabaseURL     string
	StateDir        string
	APIAddr         string
	NotifyBackend   string
	NotifyRecipient string
	WhatsAppDSN     string
	WhatsAppQRPath  string
	WhatsAppNumCode bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir        *string
	dbDSN           *string
	apiAddr         *string
	notifyBackend   *string
	notifyRecipient *string
	waDSN           *string
	waQRPath        *string
	waNumeric       *bool
}

// initializeLogger sets up structured logging, honoring $LOG_LEVEL.
func initializeLogger() {
	level := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		StateDir:        os.Getenv("TIMERD_STATE_DIR"),
		APIAddr:         os.Getenv("API_ADDR"),
		NotifyBackend:   os.Getenv("NOTIFY_BACKEND"),
		NotifyRecipient: os.Getenv("NOTIFY_DEFAULT_RECIPIENT"),
		WhatsAppDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		WhatsAppQRPath:  os.Getenv("WHATSAPP_QR_OUTPUT"),
		WhatsAppNumCode: util.ParseBoolEnv("WHATSAPP_NUMERIC_CODE", false),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No TIMERD_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.NotifyBackend == "" {
		config.NotifyBackend = "none"
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"TIMERD_STATE_DIR", config.StateDir,
		"API_ADDR", config.APIAddr,
		"NOTIFY_BACKEND", config.NotifyBackend,
		"WHATSAPP_DB_DSN_SET", config.WhatsAppDSN != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:        flag.String("state-dir", config.StateDir, "state directory for timerd data (overrides $TIMERD_STATE_DIR)"),
		dbDSN:           flag.String("db-dsn", config.DatabaseURL, "timer store DSN; empty keeps timers in memory (overrides $DATABASE_URL)"),
		apiAddr:         flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		notifyBackend:   flag.String("notify-backend", config.NotifyBackend, "announcement backend: none, twilio or whatsapp (overrides $NOTIFY_BACKEND)"),
		notifyRecipient: flag.String("notify-recipient", config.NotifyRecipient, "default announcement recipient (overrides $NOTIFY_DEFAULT_RECIPIENT)"),
		waDSN:           flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "WhatsApp session database DSN (overrides $WHATSAPP_DB_DSN)"),
		waQRPath:        flag.String("qr-output", config.WhatsAppQRPath, "path to write WhatsApp login QR code"),
		waNumeric:       flag.Bool("numeric-code", config.WhatsAppNumCode, "use numeric WhatsApp login code instead of QR code (overrides $WHATSAPP_NUMERIC_CODE)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"apiAddr", *flags.apiAddr,
		"notifyBackend", *flags.notifyBackend)

	return flags
}

func storeBackendName(dsn string) string {
	if dsn == "" {
		return "memory"
	}
	return store.DetectDSNType(dsn)
}

// whatsappSessionDSN resolves the WhatsApp session database location: an
// explicit DSN wins, otherwise a SQLite file under the state directory.
func whatsappSessionDSN(flagDSN, stateDir string) string {
	if flagDSN != "" {
		return flagDSN
	}
	return filepath.Join(stateDir, DefaultWhatsAppDBFileName)
}

// buildStore opens the configured timer store backend. An empty DSN selects
// the in-memory store; otherwise the DSN scheme selects SQLite or Postgres.
func buildStore(flags Flags) (store.TimerStore, error) {
	dsn := *flags.dbDSN
	if dsn == "" {
		slog.Debug("buildStore: no DSN provided, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	if store.DetectDSNType(dsn) == "postgres" {
		return store.NewPostgresStore(store.WithDSN(dsn))
	}
	return store.NewSQLiteStore(store.WithDSN(dsn))
}

// buildNotifyRunner constructs the announcement runner for the selected
// backend. A nil runner means announcements are disabled.
func buildNotifyRunner(flags Flags) (*notify.Runner, func(), error) {
	switch *flags.notifyBackend {
	case "", "none":
		return nil, nil, nil
	case "twilio":
		sender, err := notify.NewTwilioSender()
		if err != nil {
			return nil, nil, err
		}
		return notify.NewRunner(sender, notify.WithDefaultRecipient(*flags.notifyRecipient)), nil, nil
	case "whatsapp":
		dsn := whatsappSessionDSN(*flags.waDSN, *flags.stateDir)
		if store.DetectDSNType(dsn) == "sqlite" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, nil, err
			}
		}
		opts := []notify.WhatsAppOption{notify.WithWhatsAppDBDSN(dsn)}
		if *flags.waQRPath != "" {
			opts = append(opts, notify.WithQRCodeOutput(*flags.waQRPath))
		}
		if *flags.waNumeric {
			opts = append(opts, notify.WithNumericCode())
		}
		sender, err := notify.NewWhatsAppSender(opts...)
		if err != nil {
			return nil, nil, err
		}
		runner := notify.NewRunner(sender, notify.WithDefaultRecipient(*flags.notifyRecipient))
		return runner, sender.Disconnect, nil
	default:
		slog.Warn("buildNotifyRunner: unknown announcement backend, disabling", "backend", *flags.notifyBackend)
		return nil, nil, nil
	}
}
