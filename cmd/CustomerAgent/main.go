package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/aytida12/Customer-Interaction-Agent/internal/api"
	"github.com/aytida12/Customer-Interaction-Agent/internal/calendar"
	"github.com/aytida12/Customer-Interaction-Agent/internal/conversation"
	"github.com/aytida12/Customer-Interaction-Agent/internal/flow"
	"github.com/aytida12/Customer-Interaction-Agent/internal/genai"
	"github.com/aytida12/Customer-Interaction-Agent/internal/googleauth"
	"github.com/aytida12/Customer-Interaction-Agent/internal/lockfile"
	"github.com/aytida12/Customer-Interaction-Agent/internal/messaging"
	"github.com/aytida12/Customer-Interaction-Agent/internal/metrics"
	"github.com/aytida12/Customer-Interaction-Agent/internal/models"
	"github.com/aytida12/Customer-Interaction-Agent/internal/scheduler"
	"github.com/aytida12/Customer-Interaction-Agent/internal/sheets"
	"github.com/aytida12/Customer-Interaction-Agent/internal/store"
	"github.com/aytida12/Customer-Interaction-Agent/internal/util"
	"github.com/aytida12/Customer-Interaction-Agent/internal/whatsapp"
	"github.com/joho/godotenv"
	twilioclient "github.com/twilio/twilio-go/client"
)

// Default configuration constants
const (
	// DefaultStateDir holds the lock file and the SQLite databases.
	DefaultStateDir = "/var/lib/customer-agent"
	// DefaultAppDBFileName is the SQLite file for leads, jobs and dedup.
	DefaultAppDBFileName = "agent.db"
	// DefaultWhatsAppDBFileName is the SQLite file for the whatsmeow device store.
	DefaultWhatsAppDBFileName = "whatsmeow.db"
	// DefaultJobPollInterval is how often due reminders are claimed.
	DefaultJobPollInterval = 10 * time.Second
)

// Lead store kinds accepted by LEAD_STORE.
const (
	LeadStoreSheets = "sheets"
	LeadStoreSQL    = "sql"
	LeadStoreMemory = "memory"
)

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides $LOG_LEVEL)")

	// Load environment configuration
	config := loadEnvironmentConfig()

	// Parse command line flags
	flags := parseCommandLineFlags(config)

	initializeLogger(config.LogLevel, *debug)
	slog.Debug("Final configuration", "state_dir", *flags.stateDir, "app_dsn_set", *flags.appDSN != "", "api_addr", *flags.apiAddr, "lead_store", *flags.leadStore)

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	lock, err := lockfile.AcquireLock(*flags.stateDir)
	if err != nil {
		slog.Error("Failed to acquire state directory lock", "error", err)
		os.Exit(1)
	}
	defer lock.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Bootstrapping customer agent")
	if err := run(ctx, config, flags); err != nil {
		slog.Error("Customer agent failed to run", "error", err)
		lock.Release()
		os.Exit(1)
	}
	slog.Info("Customer agent exited successfully")
}

// Config holds environment configuration
type Config struct {
	StateDir          string
	AppDBDSN          string
	WhatsAppDBDSN     string
	LeadStore         string
	APIAddr           string
	TimeZone          string
	WebhookURL        string
	ValidateSignature bool
	WhatsAppEnabled   bool
	HoldTTL           time.Duration
	SweepInterval     time.Duration
	TurnTimeout       time.Duration
	LogLevel          string
}

// Flags holds command line flag values
type Flags struct {
	stateDir  *string
	appDSN    *string
	leadStore *string
	apiAddr   *string
	timeZone  *string
	whatsapp  *bool
	waDSN     *string
	qrOutput  *string
	numeric   *bool
}

// initializeLogger installs the default slog handler. level is one of
// debug, info, warn, error; debug forces debug.
func initializeLogger(level string, debug bool) {
	lvl := parseLogLevel(level)
	if debug {
		lvl = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// loadEnvironmentConfig loads configuration from environment variables and .env file
func loadEnvironmentConfig() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	} else {
		slog.Debug("successfully loaded .env file")
	}

	config := Config{
		StateDir:          os.Getenv("AGENT_STATE_DIR"),
		AppDBDSN:          os.Getenv("DATABASE_URL"),
		WhatsAppDBDSN:     os.Getenv("WHATSAPP_DB_DSN"),
		LeadStore:         strings.ToLower(strings.TrimSpace(os.Getenv("LEAD_STORE"))),
		APIAddr:           os.Getenv("API_ADDR"),
		TimeZone:          os.Getenv("CALENDAR_TIMEZONE"),
		WebhookURL:        os.Getenv("TWILIO_WEBHOOK_URL"),
		ValidateSignature: util.ParseBoolEnv("VALIDATE_TWILIO_SIGNATURE", true),
		WhatsAppEnabled:   util.ParseBoolEnv("WHATSAPP_ENABLED", false),
		HoldTTL:           util.ParseDurationEnv("HOLD_TTL", conversation.DefaultHoldTTL),
		SweepInterval:     util.ParseDurationEnv("HOLD_SWEEP_INTERVAL", conversation.DefaultSweepInterval),
		TurnTimeout:       util.ParseDurationEnv("TURN_TIMEOUT", api.DefaultTurnTimeout),
		LogLevel:          os.Getenv("LOG_LEVEL"),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
	}
	if config.APIAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			config.APIAddr = ":" + port
		}
	}
	if config.TimeZone == "" {
		config.TimeZone = calendar.DefaultTimeZone
	}

	// Without a database URL everything lives in SQLite under the state directory.
	if config.AppDBDSN == "" {
		config.AppDBDSN = filepath.Join(config.StateDir, DefaultAppDBFileName)
	}
	if config.WhatsAppDBDSN == "" {
		config.WhatsAppDBDSN = "file:" + filepath.Join(config.StateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
	}

	// Sheets is the lead store of record when a spreadsheet is configured.
	if config.LeadStore == "" {
		if os.Getenv("GOOGLE_SHEETS_ID") != "" {
			config.LeadStore = LeadStoreSheets
		} else {
			config.LeadStore = LeadStoreSQL
		}
	}

	slog.Debug("environment variables loaded",
		"AGENT_STATE_DIR", config.StateDir,
		"DATABASE_URL_SET", os.Getenv("DATABASE_URL") != "",
		"LEAD_STORE", config.LeadStore,
		"API_ADDR", config.APIAddr,
		"CALENDAR_TIMEZONE", config.TimeZone,
		"TWILIO_WEBHOOK_URL_SET", config.WebhookURL != "",
		"VALIDATE_TWILIO_SIGNATURE", config.ValidateSignature,
		"WHATSAPP_ENABLED", config.WhatsAppEnabled)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(config Config) Flags {
	flags := Flags{
		stateDir:  flag.String("state-dir", config.StateDir, "state directory for agent data (overrides $AGENT_STATE_DIR)"),
		appDSN:    flag.String("db-dsn", config.AppDBDSN, "database DSN for leads, jobs and dedup (overrides $DATABASE_URL)"),
		leadStore: flag.String("lead-store", config.LeadStore, "lead store: sheets, sql or memory (overrides $LEAD_STORE)"),
		apiAddr:   flag.String("api-addr", config.APIAddr, "API server address (overrides $API_ADDR and $PORT)"),
		timeZone:  flag.String("timezone", config.TimeZone, "business time zone (overrides $CALENDAR_TIMEZONE)"),
		whatsapp:  flag.Bool("whatsapp", config.WhatsAppEnabled, "enable the WhatsApp channel (overrides $WHATSAPP_ENABLED)"),
		waDSN:     flag.String("whatsapp-db-dsn", config.WhatsAppDBDSN, "whatsmeow device store DSN (overrides $WHATSAPP_DB_DSN)"),
		qrOutput:  flag.String("qr-output", "", "path to write the WhatsApp login QR code"),
		numeric:   flag.Bool("numeric-code", false, "print the raw WhatsApp login code instead of a QR code"),
	}

	flag.Parse()

	// Follow a -state-dir override for DSNs that were only defaulted from the state directory.
	if *flags.stateDir != config.StateDir {
		if *flags.appDSN == filepath.Join(config.StateDir, DefaultAppDBFileName) {
			*flags.appDSN = filepath.Join(*flags.stateDir, DefaultAppDBFileName)
		}
		if *flags.waDSN == "file:"+filepath.Join(config.StateDir, DefaultWhatsAppDBFileName)+"?_foreign_keys=on" {
			*flags.waDSN = "file:" + filepath.Join(*flags.stateDir, DefaultWhatsAppDBFileName) + "?_foreign_keys=on"
		}
	}

	return flags
}

// ensureDirectoriesExist creates the state directory and the parent of a
// file-based application database.
func ensureDirectoriesExist(flags Flags) error {
	dirs := []string{*flags.stateDir}
	if store.DetectDSNType(*flags.appDSN) == "sqlite3" {
		dirs = append(dirs, filepath.Dir(strings.TrimPrefix(*flags.appDSN, "file:")))
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return nil
}

// sqlBackend is what both SQL stores provide: leads, the reminder queue and
// inbound dedup.
type sqlBackend interface {
	store.LeadStore
	store.JobRepo
	store.DedupRepo
	Close() error
}

// openSQLBackend opens Postgres for postgres DSNs and SQLite otherwise.
func openSQLBackend(dsn string) (sqlBackend, error) {
	if store.DetectDSNType(dsn) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_set", true)
		s, err := store.NewPostgresStore(store.WithPostgresDSN(dsn))
		if err != nil {
			return nil, err
		}
		return s, nil
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", dsn)
	s, err := store.NewSQLiteStore(store.WithSQLiteDSN(dsn))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// selectLeadStore returns the lead store named by kind. The SQL backend is
// reused for "sql".
func selectLeadStore(ctx context.Context, kind string, backend sqlBackend, sheetOpts ...sheets.Option) (store.LeadStore, error) {
	switch kind {
	case LeadStoreSheets:
		return sheets.NewLeadStore(ctx, sheetOpts...)
	case LeadStoreSQL:
		return backend, nil
	case LeadStoreMemory:
		return store.NewInMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown lead store %q (want sheets, sql or memory)", kind)
	}
}

// run wires every component and blocks until ctx is cancelled or the HTTP
// server fails.
func run(ctx context.Context, config Config, flags Flags) error {
	loc, err := time.LoadLocation(*flags.timeZone)
	if err != nil {
		return fmt.Errorf("invalid time zone %q: %w", *flags.timeZone, err)
	}
	if config.ValidateSignature && strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN")) == "" {
		return ErrMissingTwilioAuthToken
	}

	backend, err := openSQLBackend(*flags.appDSN)
	if err != nil {
		return fmt.Errorf("failed to open application database: %w", err)
	}
	defer backend.Close()

	auth, err := googleauth.New()
	if err != nil {
		return err
	}
	tokens, err := auth.TokenSource(ctx)
	if err != nil {
		if errors.Is(err, googleauth.ErrRefreshTokenMissing) {
			slog.Error("No Google refresh token; run the authtoken helper and set GOOGLE_REFRESH_TOKEN")
		}
		return err
	}

	cal, err := calendar.NewGoogleCalendar(ctx, calendar.WithTokenSource(tokens), calendar.WithTimeZone(*flags.timeZone))
	if err != nil {
		return err
	}

	leads, err := selectLeadStore(ctx, *flags.leadStore, backend, sheets.WithTokenSource(tokens))
	if err != nil {
		return err
	}
	if *flags.leadStore != LeadStoreSheets {
		// The sheet's header row is written on demand through /init.
		if err := leads.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize lead store: %w", err)
		}
	}
	if *flags.leadStore != LeadStoreSQL {
		// Jobs and dedup still need their tables.
		if err := backend.Initialize(ctx); err != nil {
			return fmt.Errorf("failed to initialize application database: %w", err)
		}
	}

	model, err := genai.NewClient()
	if err != nil {
		return err
	}
	sms, err := messaging.NewTwilioSender()
	if err != nil {
		return err
	}

	m := metrics.NewMetrics(metrics.DefaultNamespace)
	convo := conversation.NewMemoryStore(conversation.WithHoldTTL(config.HoldTTL))

	dispatcher := flow.NewDispatcher(model, convo, cal, leads, sms,
		flow.WithLocation(loc),
		flow.WithReminders(backend),
		flow.WithRecorder(m),
	)

	senders := map[string]messaging.Sender{models.DefaultLeadSource: sms}

	if *flags.whatsapp {
		wa, err := startWhatsApp(ctx, flags, model, convo, cal, leads, loc, backend, m)
		if err != nil {
			return err
		}
		defer wa.Close()
		senders[whatsappSource] = wa
	}

	runner := store.NewJobRunner(backend, util.ParseDurationEnv("JOB_POLL_INTERVAL", DefaultJobPollInterval))
	flow.RegisterJobHandlers(runner, senders, loc)
	if err := runner.RecoverStaleJobs(ctx); err != nil {
		slog.Warn("Failed to recover stale reminder jobs", "error", err)
	}
	go runner.Run(ctx)

	sched := scheduler.NewScheduler()
	if err := sched.Every(config.SweepInterval, "hold-sweep", func() {
		removed := convo.Sweep()
		convs, holds := convo.Stats()
		m.RecordSweep(removed, convs, holds)
	}); err != nil {
		return err
	}
	go sched.Run(ctx)

	apiOpts, err := buildAPIOptions(config, flags, cal, backend, auth, m, convo)
	if err != nil {
		return err
	}
	return api.NewServer(dispatcher, convo, leads, apiOpts...).Run(ctx)
}

const whatsappSource = "whatsapp"

// startWhatsApp connects the WhatsApp channel and routes its messages through
// a dispatcher that records leads with the whatsapp source.
func startWhatsApp(ctx context.Context, flags Flags, model flow.Decider, convo conversation.Store, cal calendar.Service,
	leads store.LeadStore, loc *time.Location, backend sqlBackend, m *metrics.Metrics) (*whatsapp.Client, error) {
	wa, err := whatsapp.NewClient(ctx, buildWhatsAppOptions(flags)...)
	if err != nil {
		return nil, fmt.Errorf("failed to start WhatsApp: %w", err)
	}

	dispatcher := flow.NewDispatcher(model, convo, cal, leads, wa,
		flow.WithSource(whatsappSource),
		flow.WithLocation(loc),
		flow.WithReminders(backend),
		flow.WithRecorder(m),
	)

	wa.Listen(ctx, func(ctx context.Context, in whatsapp.Inbound) {
		m.IncInbound(whatsappSource)
		if first, err := backend.RecordInbound(ctx, in.ID, in.From); err != nil {
			slog.Warn("whatsapp inbound: dedup check failed, processing anyway", "id", in.ID, "error", err)
		} else if !first {
			m.IncDuplicate()
			slog.Info("whatsapp inbound: duplicate delivery skipped", "id", in.ID, "from", in.From)
			return
		}
		dispatcher.Handle(ctx, in.From, in.Text)
		if err := backend.MarkProcessed(ctx, in.ID); err != nil {
			slog.Warn("whatsapp inbound: mark processed failed", "id", in.ID, "error", err)
		}
	})
	slog.Info("WhatsApp channel enabled")
	return wa, nil
}

// buildWhatsAppOptions constructs WhatsApp configuration options
func buildWhatsAppOptions(flags Flags) []whatsapp.Option {
	var waOpts []whatsapp.Option
	if *flags.qrOutput != "" {
		waOpts = append(waOpts, whatsapp.WithQRCodeOutput(*flags.qrOutput))
	}
	if *flags.numeric {
		waOpts = append(waOpts, whatsapp.WithNumericCode())
	}
	if *flags.waDSN != "" {
		waOpts = append(waOpts, whatsapp.WithDBDSN(*flags.waDSN))
	}
	return waOpts
}

// ErrMissingTwilioAuthToken is returned at startup when webhook signature
// validation is on but there is no token to validate with.
var ErrMissingTwilioAuthToken = errors.New("TWILIO_AUTH_TOKEN is required when VALIDATE_TWILIO_SIGNATURE is enabled")

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(config Config, flags Flags, cal calendar.Service, backend sqlBackend,
	auth api.TokenExchanger, m *metrics.Metrics, stats api.StatsReporter) ([]api.Option, error) {
	apiOpts := []api.Option{
		api.WithCalendar(cal),
		api.WithDedup(backend),
		api.WithJobs(backend),
		api.WithTokenExchanger(auth),
		api.WithMetrics(m),
		api.WithStats(stats),
		api.WithTurnTimeout(config.TurnTimeout),
	}
	if *flags.apiAddr != "" {
		apiOpts = append(apiOpts, api.WithAddr(*flags.apiAddr))
	}
	if !config.ValidateSignature {
		slog.Warn("Twilio signature validation disabled; /webhook/sms accepts unsigned requests")
		return apiOpts, nil
	}
	token := strings.TrimSpace(os.Getenv("TWILIO_AUTH_TOKEN"))
	if token == "" {
		return nil, ErrMissingTwilioAuthToken
	}
	validator := twilioclient.NewRequestValidator(token)
	apiOpts = append(apiOpts, api.WithSignatureValidation(&validator, config.WebhookURL))
	slog.Info("Twilio signature validation enabled", "webhook_url_set", config.WebhookURL != "")
	return apiOpts, nil
}
