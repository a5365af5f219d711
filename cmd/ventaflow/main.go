package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/impulsalabs/ventaflow/internal/advisor"
	"github.com/impulsalabs/ventaflow/internal/api"
	"github.com/impulsalabs/ventaflow/internal/catalog"
	"github.com/impulsalabs/ventaflow/internal/flow"
	"github.com/impulsalabs/ventaflow/internal/genai"
	"github.com/impulsalabs/ventaflow/internal/lockfile"
	"github.com/impulsalabs/ventaflow/internal/messaging"
	"github.com/impulsalabs/ventaflow/internal/models"
	"github.com/impulsalabs/ventaflow/internal/scheduler"
	"github.com/impulsalabs/ventaflow/internal/store"
	"github.com/impulsalabs/ventaflow/internal/twiliowhatsapp"
	"github.com/impulsalabs/ventaflow/internal/util"
	"github.com/impulsalabs/ventaflow/internal/validator"
	"github.com/impulsalabs/ventaflow/internal/whatsapp"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for VentaFlow state data
	DefaultStateDir = "/var/lib/ventaflow"
	// DefaultDBFileName is the default SQLite database filename for user state
	DefaultDBFileName = "ventaflow.db"
	// DefaultCatalogFileName is the default SQLite database filename for the offering catalog
	DefaultCatalogFileName = "catalog.db"
	// DefaultWhatsAppDBFileName is the default whatsmeow database filename
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// BackendTwilio selects the Twilio WhatsApp gateway
	BackendTwilio = "twilio"
	// BackendWhatsmeow selects the direct whatsmeow gateway
	BackendWhatsmeow = "whatsmeow"
)

func main() {
	initializeLogger()

	config := loadEnvironmentConfig()
	flags := parseCommandLineFlags(config)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	slog.Info("Bootstrapping VentaFlow")
	if err := run(flags); err != nil {
		slog.Error("VentaFlow failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("VentaFlow exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir      string
	DatabaseDSN   string
	CatalogDSN    string
	WhatsAppDSN   string
	OpenAIKey     string
	APIAddr       string
	Backend       string
	AdvisorNumber string
	DigestCron    string
	GenAIEnabled  bool
}

// Flags holds command line flag values
type Flags struct {
	stateDir      *string
	dbDSN         *string
	catalogDSN    *string
	whatsappDSN   *string
	openaiKey     *string
	apiAddr       *string
	backend       *string
	advisorNumber *string
	digestCron    *string
	qrOutput      *string
	numeric       *bool
	genaiEnabled  *bool
}

// initializeLogger sets up structured logging
func initializeLogger() {
	level := slog.LevelInfo
	if util.ParseBoolEnv("VENTAFLOW_DEBUG", false) {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	config := Config{
		StateDir:      os.Getenv("VENTAFLOW_STATE_DIR"),
		DatabaseDSN:   os.Getenv("DATABASE_URL"),
		CatalogDSN:    os.Getenv("CATALOG_DB_DSN"),
		WhatsAppDSN:   os.Getenv("WHATSAPP_DB_DSN"),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		APIAddr:       os.Getenv("API_ADDR"),
		Backend:       os.Getenv("MESSAGING_BACKEND"),
		AdvisorNumber: os.Getenv("ADVISOR_NUMBER"),
		DigestCron:    os.Getenv("DIGEST_CRON"),
		GenAIEnabled:  util.ParseBoolEnv("GENAI_ENABLED", true),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.DatabaseDSN == "" {
		config.DatabaseDSN = filepath.Join(config.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", config.DatabaseDSN)
	}
	if config.CatalogDSN == "" {
		config.CatalogDSN = filepath.Join(config.StateDir, DefaultCatalogFileName)
	}
	if config.WhatsAppDSN == "" {
		config.WhatsAppDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}
	if config.Backend == "" {
		config.Backend = BackendTwilio
	}

	slog.Debug("environment variables loaded",
		"VENTAFLOW_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", config.DatabaseDSN != "",
		"CATALOG_DB_DSN_SET", config.CatalogDSN != "",
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"API_ADDR", config.APIAddr,
		"MESSAGING_BACKEND", config.Backend,
		"ADVISOR_NUMBER_SET", config.AdvisorNumber != "")

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:      flag.String("state-dir", config.StateDir, "state directory for VentaFlow data (overrides $VENTAFLOW_STATE_DIR)"),
		dbDSN:         flag.String("db-dsn", config.DatabaseDSN, "database DSN for the user state store (overrides $DATABASE_URL)"),
		catalogDSN:    flag.String("catalog-dsn", config.CatalogDSN, "SQLite DSN for the offering catalog (overrides $CATALOG_DB_DSN)"),
		whatsappDSN:   flag.String("whatsapp-db-dsn", config.WhatsAppDSN, "database DSN for the whatsmeow session store (overrides $WHATSAPP_DB_DSN)"),
		openaiKey:     flag.String("openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)"),
		apiAddr:       flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR)"),
		backend:       flag.String("backend", config.Backend, "messaging backend: twilio or whatsmeow (overrides $MESSAGING_BACKEND)"),
		advisorNumber: flag.String("advisor-number", config.AdvisorNumber, "WhatsApp number for human handoff notifications (overrides $ADVISOR_NUMBER)"),
		digestCron:    flag.String("digest-cron", config.DigestCron, "cron expression for the advisor consent digest, empty disables it (overrides $DIGEST_CRON)"),
		qrOutput:      flag.String("qr-output", "", "path to write login QR code (whatsmeow backend)"),
		numeric:       flag.Bool("numeric-code", false, "use numeric login code instead of QR code (whatsmeow backend)"),
		genaiEnabled:  flag.Bool("genai", config.GenAIEnabled, "enable OpenAI-backed classification and drafting (overrides $GENAI_ENABLED)"),
	}

	flag.Parse()

	slog.Debug("flags parsed",
		"stateDir", *flags.stateDir,
		"dbDSN_set", *flags.dbDSN != "",
		"backend", *flags.backend,
		"apiAddr", *flags.apiAddr,
		"genaiEnabled", *flags.genaiEnabled)

	return flags
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(flags Flags) error {
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		return nil
	}
	stateDir := filepath.Dir(*flags.dbDSN)
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return err
	}
	return nil
}

// run wires the modules together and blocks until shutdown.
func run(flags Flags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One instance per state directory.
	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		return err
	}
	defer lock.Release()

	// User state store, driver picked from the DSN.
	var st store.Store
	if store.DetectDSNType(*flags.dbDSN) == "postgres" {
		st, err = store.NewPostgresStore(store.WithDSN(*flags.dbDSN))
	} else {
		st, err = store.NewSQLiteStore(store.WithDSN(*flags.dbDSN))
	}
	if err != nil {
		return err
	}
	defer st.Close()

	// Offering catalog; the engine falls back to the static listing when the
	// catalog database cannot be opened.
	var cat catalog.Catalog
	sqliteCatalog, err := catalog.NewSQLiteCatalog(*flags.catalogDSN)
	if err != nil {
		slog.Error("Failed to open offering catalog, using static fallback", "error", err)
		cat = catalog.NewStaticCatalog()
	} else {
		cat = sqliteCatalog
		defer sqliteCatalog.Close()
	}

	// GenAI collaborators are optional; without them the FAQ fallback owns
	// generic conversation.
	var classifier flow.Classifier
	var generator flow.Generator
	if *flags.genaiEnabled && *flags.openaiKey != "" {
		genaiClient, err := genai.NewClient(genai.WithAPIKey(*flags.openaiKey))
		if err != nil {
			slog.Error("Failed to create GenAI client, continuing without it", "error", err)
		} else {
			classifier = genaiClient
			generator = genaiClient
		}
	}

	// Messaging backend.
	msgService, webhook, err := buildMessagingService(flags)
	if err != nil {
		return err
	}
	defer msgService.Stop()

	// Advisor notifier shares the messaging service.
	var notifier advisor.Notifier
	if *flags.advisorNumber != "" {
		notifier = advisor.NewMessagingNotifier(msgService, *flags.advisorNumber)
	} else {
		slog.Info("No advisor number configured, handoffs will only be logged")
		notifier = advisor.NewLogNotifier()
	}

	// Scheduled advisor digest summarizing the consent funnel.
	if *flags.digestCron != "" {
		sched := scheduler.NewScheduler()
		defer sched.Stop()
		if err := sched.AddJob(*flags.digestCron, func() {
			sendConsentDigest(context.Background(), st, msgService, *flags.advisorNumber)
		}); err != nil {
			return fmt.Errorf("invalid digest cron expression %q: %w", *flags.digestCron, err)
		}
		slog.Info("Advisor digest scheduled", "cron", *flags.digestCron)
	}

	registry := flow.DefaultRegistry(flow.RegistryConfig{
		Catalog:    cat,
		Classifier: classifier,
		Generator:  generator,
	})
	engine := flow.NewEngine(st, cat, validator.New(), notifier, registry)

	if err := msgService.Start(ctx); err != nil {
		return err
	}

	dispatcher := messaging.NewDispatcher(msgService, engine)
	go dispatcher.Run(ctx)

	var apiOpts []api.Option
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	server := api.NewServer(st, cat, webhook, apiOpts...)
	return server.Start(ctx)
}

// buildMessagingService constructs the configured gateway backend. The
// returned webhook handler is nil for backends that do not receive messages
// over HTTP.
func buildMessagingService(flags Flags) (messaging.Service, func(w http.ResponseWriter, r *http.Request), error) {
	switch *flags.backend {
	case BackendTwilio:
		client, err := twiliowhatsapp.NewClient()
		if err != nil {
			return nil, nil, err
		}
		service := messaging.NewTwilioService(client)
		return service, service.WebhookHandler, nil
	case BackendWhatsmeow:
		var waOpts []whatsapp.Option
		if *flags.whatsappDSN != "" {
			waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.whatsappDSN))
		}
		if *flags.qrOutput != "" {
			waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
		}
		if *flags.numeric {
			waOpts = append(waOpts, whatsapp.WithNumericCode())
		}
		client, err := whatsapp.NewClient(waOpts...)
		if err != nil {
			return nil, nil, err
		}
		return messaging.NewWhatsAppService(client), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown messaging backend %q", *flags.backend)
	}
}

// sendConsentDigest reports the consent funnel to the advisor. Without an
// advisor number the digest only reaches the log.
func sendConsentDigest(ctx context.Context, st store.Store, sender messaging.Service, advisorNumber string) {
	counts, err := st.CountUsersByConsent()
	if err != nil {
		slog.Error("Consent digest query failed", "error", err)
		return
	}

	total := 0
	for _, n := range counts {
		total += n
	}
	slog.Info("Consent digest",
		"total", total,
		"accepted", counts[models.ConsentAccepted],
		"requested", counts[models.ConsentRequested],
		"declined", counts[models.ConsentDeclined])

	if advisorNumber == "" {
		return
	}
	body := fmt.Sprintf("📊 Resumen VentaFlow\nContactos: %d\nAceptaron: %d\nPendientes: %d\nDeclinaron: %d",
		total, counts[models.ConsentAccepted], counts[models.ConsentRequested], counts[models.ConsentDeclined])
	if err := sender.SendMessage(ctx, advisorNumber, body); err != nil {
		slog.Error("Consent digest delivery failed", "error", err)
	}
}
