package main

import (
	"errors"
	"flag"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/BTreeMap/SkinPipe/internal/analysis"
	"github.com/BTreeMap/SkinPipe/internal/api"
	"github.com/BTreeMap/SkinPipe/internal/flow"
	"github.com/BTreeMap/SkinPipe/internal/lockfile"
	"github.com/BTreeMap/SkinPipe/internal/notify"
	"github.com/BTreeMap/SkinPipe/internal/store"
	"github.com/BTreeMap/SkinPipe/internal/util"
	"github.com/joho/godotenv"
)

// Default configuration constants
const (
	// DefaultStateDir is the default directory for SkinPipe state data
	DefaultStateDir = "/var/lib/skinpipe"
	// DefaultDBFileName is the default SQLite database filename
	DefaultDBFileName = "skinpipe.db"
)

func main() {
	config := loadEnvironmentConfig()
	initializeLogger(config.Debug)

	flags, err := parseCommandLineFlags(flag.CommandLine, os.Args[1:], config)
	if err != nil {
		slog.Error("Failed to parse flags", "error", err)
		os.Exit(2)
	}

	if err := ensureDirectoriesExist(flags); err != nil {
		slog.Error("Failed to create required directories", "error", err)
		os.Exit(1)
	}

	var lock *lockfile.Lock
	if usesLocalDatabase(flags) {
		lock, err = lockfile.AcquireLock(flags.StateDir)
		if err != nil {
			slog.Error("Failed to lock state directory", "error", err)
			os.Exit(1)
		}
	}

	storeOpts := buildStoreOptions(flags)
	analyzerOpts := buildAnalyzerOptions(flags)
	notifyOpts := buildNotifyOptions(flags)
	apiOpts := buildAPIOptions(flags)

	slog.Info("Bootstrapping SkinPipe with configured modules")
	slog.Debug("Final configuration",
		"state_dir", flags.StateDir,
		"dsn_set", flags.DSN != "",
		"redis", flags.RedisAddr != "",
		"api_addr", flags.APIAddr,
		"analyzer", flags.Analyzer,
		"notifier", flags.Notifier)
	err = api.Run(storeOpts, analyzerOpts, notifyOpts, apiOpts)
	if lock != nil {
		if rerr := lock.Release(); rerr != nil {
			slog.Warn("Failed to release state directory lock", "error", rerr)
		}
	}
	if err != nil {
		slog.Error("SkinPipe failed to run", "error", err)
		os.Exit(1)
	}
	slog.Info("SkinPipe exited successfully")
}

// Config holds environment configuration
type Config struct {
	Debug         bool
	StateDir      string
	DatabaseURL   string
	RedisAddr     string
	RedisDB       int
	APIAddr       string
	Analyzer      string
	AnalysisDelay time.Duration
	OpenAIKey     string
	OpenAIModel   string
	Notifier      string
	TwilioSID     string
	TwilioToken   string
	TwilioFrom    string
	SessionTTL    time.Duration
	OutboxPoll    time.Duration
}

// Flags holds the effective configuration after command line overrides
type Flags struct {
	StateDir      string
	DSN           string
	RedisAddr     string
	RedisDB       int
	APIAddr       string
	Analyzer      string
	AnalysisDelay time.Duration
	OpenAIKey     string
	OpenAIModel   string
	Notifier      string
	TwilioSID     string
	TwilioToken   string
	TwilioFrom    string
	SessionTTL    time.Duration
	OutboxPoll    time.Duration
}

// initializeLogger sets up structured logging
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
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
		Debug:         util.ParseBoolEnv("SKINPIPE_DEBUG", false),
		StateDir:      os.Getenv("SKINPIPE_STATE_DIR"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisDB:       util.ParseIntEnv("REDIS_DB", 0),
		APIAddr:       os.Getenv("API_ADDR"),
		Analyzer:      os.Getenv("ANALYZER"),
		AnalysisDelay: util.ParseDurationEnv("ANALYSIS_DELAY", 0),
		OpenAIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:   os.Getenv("OPENAI_MODEL"),
		Notifier:      os.Getenv("NOTIFIER"),
		TwilioSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioToken:   os.Getenv("TWILIO_AUTH_TOKEN"),
		TwilioFrom:    os.Getenv("TWILIO_FROM_NUMBER"),
		SessionTTL:    util.ParseDurationEnv("SESSION_TTL", flow.DefaultSessionTTL),
		OutboxPoll:    util.ParseDurationEnv("OUTBOX_POLL_INTERVAL", api.DefaultOutboxPoll),
	}

	if config.StateDir == "" {
		config.StateDir = DefaultStateDir
		slog.Debug("No SKINPIPE_STATE_DIR set, using default", "default_state_dir", config.StateDir)
	}
	if config.Analyzer == "" {
		config.Analyzer = api.AnalyzerMock
	}
	if config.Notifier == "" {
		config.Notifier = api.NotifierLog
		if config.TwilioSID != "" && config.TwilioToken != "" {
			config.Notifier = api.NotifierTwilio
		}
	}

	slog.Debug("environment variables loaded",
		"DATABASE_URL_SET", config.DatabaseURL != "",
		"REDIS_ADDR", config.RedisAddr,
		"SKINPIPE_STATE_DIR", config.StateDir,
		"OPENAI_API_KEY_SET", config.OpenAIKey != "",
		"TWILIO_ACCOUNT_SID_SET", config.TwilioSID != "",
		"API_ADDR", config.APIAddr,
		"ANALYZER", config.Analyzer,
		"NOTIFIER", config.Notifier)

	return config
}

// parseCommandLineFlags parses command line arguments with environment defaults
func parseCommandLineFlags(fs *flag.FlagSet, args []string, config Config) (Flags, error) {
	var f Flags
	fs.StringVar(&f.StateDir, "state-dir", config.StateDir, "state directory for SkinPipe data (overrides $SKINPIPE_STATE_DIR)")
	fs.StringVar(&f.DSN, "db-dsn", config.DatabaseURL, "database DSN; empty means SQLite in the state directory (overrides $DATABASE_URL)")
	fs.StringVar(&f.RedisAddr, "redis-addr", config.RedisAddr, "Redis address; takes precedence over the database (overrides $REDIS_ADDR)")
	fs.IntVar(&f.RedisDB, "redis-db", config.RedisDB, "Redis database number (overrides $REDIS_DB)")
	fs.StringVar(&f.APIAddr, "api-addr", config.APIAddr, "API server address (overrides $API_ADDR)")
	fs.StringVar(&f.Analyzer, "analyzer", config.Analyzer, "photo analyzer: mock or openai (overrides $ANALYZER)")
	fs.DurationVar(&f.AnalysisDelay, "analysis-delay", config.AnalysisDelay, "simulated mock analysis latency (overrides $ANALYSIS_DELAY)")
	fs.StringVar(&f.OpenAIKey, "openai-api-key", config.OpenAIKey, "OpenAI API key (overrides $OPENAI_API_KEY)")
	fs.StringVar(&f.OpenAIModel, "openai-model", config.OpenAIModel, "OpenAI vision model (overrides $OPENAI_MODEL)")
	fs.StringVar(&f.Notifier, "notifier", config.Notifier, "message transport: log or twilio (overrides $NOTIFIER)")
	fs.StringVar(&f.TwilioFrom, "twilio-from", config.TwilioFrom, "Twilio sender number, prefix whatsapp: for WhatsApp (overrides $TWILIO_FROM_NUMBER)")
	fs.DurationVar(&f.SessionTTL, "session-ttl", config.SessionTTL, "idle widget session lifetime (overrides $SESSION_TTL)")
	fs.DurationVar(&f.OutboxPoll, "outbox-poll", config.OutboxPoll, "outbox delivery interval (overrides $OUTBOX_POLL_INTERVAL)")
	f.TwilioSID = config.TwilioSID
	f.TwilioToken = config.TwilioToken

	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}
	if f.DSN == "" && f.RedisAddr == "" {
		f.DSN = filepath.Join(f.StateDir, DefaultDBFileName)
		slog.Debug("No database DSN provided, defaulting to SQLite", "sqlite_path", f.DSN)
	}
	if f.Analyzer == api.AnalyzerOpenAI && f.OpenAIKey == "" {
		return Flags{}, errors.New("the openai analyzer needs an API key")
	}

	slog.Debug("flags parsed",
		"stateDir", f.StateDir,
		"dbDSN_set", f.DSN != "",
		"redisAddr", f.RedisAddr,
		"apiAddr", f.APIAddr,
		"analyzer", f.Analyzer,
		"notifier", f.Notifier,
		"sessionTTL", f.SessionTTL)
	return f, nil
}

// usesLocalDatabase reports whether the store lives in the state directory.
func usesLocalDatabase(f Flags) bool {
	return f.RedisAddr == "" && f.DSN != "" && store.DetectDSNType(f.DSN) == "sqlite"
}

// ensureDirectoriesExist creates necessary directories for file-based storage
func ensureDirectoriesExist(f Flags) error {
	if !usesLocalDatabase(f) {
		return nil
	}
	dir := filepath.Dir(f.DSN)
	slog.Debug("Creating state directory for file-based database", "state_dir", dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	return os.MkdirAll(f.StateDir, 0o755)
}

// buildStoreOptions constructs store configuration options
func buildStoreOptions(f Flags) []store.Option {
	var opts []store.Option
	if f.RedisAddr != "" {
		slog.Debug("Configuring Redis store", "addr", f.RedisAddr, "db", f.RedisDB)
		return append(opts,
			store.WithRedisAddr(f.RedisAddr),
			store.WithRedisDB(f.RedisDB),
			store.WithFlowStateTTL(f.SessionTTL))
	}
	if f.DSN == "" {
		slog.Debug("No database DSN provided, will use in-memory store")
		return opts
	}
	if store.DetectDSNType(f.DSN) == "postgres" {
		slog.Debug("Detected PostgreSQL DSN, configuring PostgreSQL store", "dsn_type", "postgresql")
		return append(opts, store.WithPostgresDSN(f.DSN))
	}
	slog.Debug("Detected SQLite DSN, configuring SQLite store", "db_path", f.DSN)
	return append(opts, store.WithSQLiteDSN(f.DSN))
}

// buildAnalyzerOptions constructs photo analyzer options
func buildAnalyzerOptions(f Flags) []analysis.Option {
	var opts []analysis.Option
	if f.AnalysisDelay > 0 {
		opts = append(opts, analysis.WithDelay(f.AnalysisDelay))
	}
	if f.OpenAIKey != "" {
		opts = append(opts, analysis.WithAPIKey(f.OpenAIKey))
	}
	if f.OpenAIModel != "" {
		opts = append(opts, analysis.WithModel(f.OpenAIModel))
	}
	return opts
}

// buildNotifyOptions constructs Twilio options
func buildNotifyOptions(f Flags) []notify.Option {
	var opts []notify.Option
	if f.TwilioSID != "" {
		opts = append(opts, notify.WithAccountSID(f.TwilioSID))
	}
	if f.TwilioToken != "" {
		opts = append(opts, notify.WithAuthToken(f.TwilioToken))
	}
	if f.TwilioFrom != "" {
		opts = append(opts, notify.WithFrom(f.TwilioFrom))
	}
	return opts
}

// buildAPIOptions constructs API server configuration options
func buildAPIOptions(f Flags) []api.Option {
	opts := []api.Option{
		api.WithAnalyzer(f.Analyzer),
		api.WithNotifier(f.Notifier),
		api.WithSessionTTL(f.SessionTTL),
		api.WithOutboxPoll(f.OutboxPoll),
	}
	if f.APIAddr != "" {
		opts = append(opts, api.WithAddr(f.APIAddr))
	}
	return opts
}
