package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration shared by the order ticket and the
// paper backend.
type Config struct {
	Backend Backend `yaml:"backend"`
	Ticket  Ticket  `yaml:"ticket"`
	Storage Storage `yaml:"storage"`
	Server  Server  `yaml:"server"`
	Alpaca  Alpaca  `yaml:"alpaca"`
	Risk    Risk    `yaml:"risk"`
	Logging Logging `yaml:"logging"`
}

// Backend describes how the ticket reaches the trading backend.
type Backend struct {
	BaseURL         string        `yaml:"base_url"`
	GRPCAddr        string        `yaml:"grpc_addr"`
	Timeout         time.Duration `yaml:"timeout"`
	RetryAttempts   int           `yaml:"retry_attempts"`
	RetryBaseDelay  time.Duration `yaml:"retry_base_delay"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min"`
}

// Ticket tunes the order ticket workflow.
type Ticket struct {
	AnalysisDebounce time.Duration `yaml:"analysis_debounce"`
	SubmitTimeout    time.Duration `yaml:"submit_timeout"`
}

// Storage holds paths for data persistence. SQLitePath is the backend's
// database (templates and submission ledger); HistoryPath is the CLI's local
// order history.
type Storage struct {
	SQLitePath  string `yaml:"sqlite_path"`
	HistoryPath string `yaml:"history_path"`
	ArchiveDir  string `yaml:"archive_dir"`
}

// Server holds network listener configuration for the paper backend.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Alpaca holds credentials for forwarding paper orders to Alpaca. When
// APIKey is empty the backend fills orders with its in-memory simulator.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url"`
}

// Risk bounds the orders the paper backend accepts.
type Risk struct {
	MaxQuantity int     `yaml:"max_quantity"`
	MaxNotional float64 `yaml:"max_notional"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// Default values applied to any field left unset.
const (
	DefaultBaseURL          = "http://localhost:8080"
	DefaultGRPCAddr         = "localhost:9090"
	DefaultTimeout          = 15 * time.Second
	DefaultRetryAttempts    = 3
	DefaultRetryBaseDelay   = 200 * time.Millisecond
	DefaultAnalysisDebounce = 800 * time.Millisecond
	DefaultSubmitTimeout    = 30 * time.Second
	DefaultSQLitePath       = "orderdesk.db"
	DefaultHistoryPath      = "orderdesk-history.db"
	DefaultArchiveDir       = "archive"
	DefaultPort             = 8080
	DefaultGRPCPort         = 9090
	DefaultAlpacaBaseURL    = "https://paper-api.alpaca.markets"
	DefaultMaxQuantity      = 10000
	DefaultMaxNotional      = 1000000
)

// Defaults returns a Config with every default applied.
func Defaults() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBaseURL
	}
	if cfg.Backend.GRPCAddr == "" {
		cfg.Backend.GRPCAddr = DefaultGRPCAddr
	}
	if cfg.Backend.Timeout <= 0 {
		cfg.Backend.Timeout = DefaultTimeout
	}
	if cfg.Backend.RetryAttempts <= 0 {
		cfg.Backend.RetryAttempts = DefaultRetryAttempts
	}
	if cfg.Backend.RetryBaseDelay <= 0 {
		cfg.Backend.RetryBaseDelay = DefaultRetryBaseDelay
	}
	if cfg.Ticket.AnalysisDebounce <= 0 {
		cfg.Ticket.AnalysisDebounce = DefaultAnalysisDebounce
	}
	if cfg.Ticket.SubmitTimeout <= 0 {
		cfg.Ticket.SubmitTimeout = DefaultSubmitTimeout
	}
	if cfg.Storage.SQLitePath == "" {
		cfg.Storage.SQLitePath = DefaultSQLitePath
	}
	if cfg.Storage.HistoryPath == "" {
		cfg.Storage.HistoryPath = DefaultHistoryPath
	}
	if cfg.Storage.ArchiveDir == "" {
		cfg.Storage.ArchiveDir = DefaultArchiveDir
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.GRPCPort == 0 {
		cfg.Server.GRPCPort = DefaultGRPCPort
	}
	if cfg.Alpaca.BaseURL == "" {
		cfg.Alpaca.BaseURL = DefaultAlpacaBaseURL
	}
	if cfg.Risk.MaxQuantity <= 0 {
		cfg.Risk.MaxQuantity = DefaultMaxQuantity
	}
	if cfg.Risk.MaxNotional <= 0 {
		cfg.Risk.MaxNotional = DefaultMaxNotional
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path, parses it into a
// Config struct, applies environment variable overrides and then fills in
// defaults. A missing file is not an error: the result is built from the
// environment and defaults alone.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err):
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ORDERDESK_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("ORDERDESK_GRPC_ADDR"); v != "" {
		cfg.Backend.GRPCAddr = v
	}
	if v := os.Getenv("ORDERDESK_ANALYSIS_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Ticket.AnalysisDebounce = d
		}
	}
	if v := os.Getenv("ORDERDESK_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = n
		}
	}

	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("HISTORY_PATH"); v != "" {
		cfg.Storage.HistoryPath = v
	}
	if v := os.Getenv("ARCHIVE_DIR"); v != "" {
		cfg.Storage.ArchiveDir = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}
	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// Standard Alpaca env vars take precedence.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
