package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "orderdesk.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"ORDERDESK_BACKEND_URL", "ORDERDESK_GRPC_ADDR", "ORDERDESK_ANALYSIS_DEBOUNCE", "ORDERDESK_PORT",
		"SQLITE_PATH", "HISTORY_PATH", "ARCHIVE_DIR", "ALPACA_API_KEY", "ALPACA_API_SECRET", "ALPACA_BASE_URL",
		"APCA_API_KEY_ID", "APCA_API_SECRET_KEY", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
backend:
  base_url: "http://backend:8000"
  grpc_addr: "backend:9000"
  timeout: 5s
  retry_attempts: 4
  rate_limit_per_min: 120
ticket:
  analysis_debounce: 500ms
  submit_timeout: 10s
storage:
  sqlite_path: "/tmp/orderdesk/orderdesk.db"
  history_path: "/tmp/orderdesk/history.db"
  archive_dir: "/tmp/orderdesk/archive"
server:
  host: "0.0.0.0"
  port: 8000
  grpc_port: 9000
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
risk:
  max_quantity: 500
  max_notional: 250000
logging:
  level: "debug"
  format: "text"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Backend --
	if cfg.Backend.BaseURL != "http://backend:8000" {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, "http://backend:8000")
	}
	if cfg.Backend.GRPCAddr != "backend:9000" {
		t.Errorf("Backend.GRPCAddr = %q, want %q", cfg.Backend.GRPCAddr, "backend:9000")
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("Backend.Timeout = %v, want 5s", cfg.Backend.Timeout)
	}
	if cfg.Backend.RetryAttempts != 4 {
		t.Errorf("Backend.RetryAttempts = %d, want 4", cfg.Backend.RetryAttempts)
	}
	if cfg.Backend.RetryBaseDelay != DefaultRetryBaseDelay {
		t.Errorf("Backend.RetryBaseDelay = %v, want default %v", cfg.Backend.RetryBaseDelay, DefaultRetryBaseDelay)
	}
	if cfg.Backend.RateLimitPerMin != 120 {
		t.Errorf("Backend.RateLimitPerMin = %d, want 120", cfg.Backend.RateLimitPerMin)
	}

	// -- Ticket --
	if cfg.Ticket.AnalysisDebounce != 500*time.Millisecond {
		t.Errorf("Ticket.AnalysisDebounce = %v, want 500ms", cfg.Ticket.AnalysisDebounce)
	}
	if cfg.Ticket.SubmitTimeout != 10*time.Second {
		t.Errorf("Ticket.SubmitTimeout = %v, want 10s", cfg.Ticket.SubmitTimeout)
	}

	// -- Storage --
	if cfg.Storage.SQLitePath != "/tmp/orderdesk/orderdesk.db" {
		t.Errorf("Storage.SQLitePath = %q", cfg.Storage.SQLitePath)
	}
	if cfg.Storage.HistoryPath != "/tmp/orderdesk/history.db" {
		t.Errorf("Storage.HistoryPath = %q", cfg.Storage.HistoryPath)
	}
	if cfg.Storage.ArchiveDir != "/tmp/orderdesk/archive" {
		t.Errorf("Storage.ArchiveDir = %q", cfg.Storage.ArchiveDir)
	}

	// -- Server --
	if cfg.Server.Port != 8000 || cfg.Server.GRPCPort != 9000 {
		t.Errorf("Server ports = %d/%d, want 8000/9000", cfg.Server.Port, cfg.Server.GRPCPort)
	}

	// -- Alpaca --
	if cfg.Alpaca.APIKey != "test-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q", cfg.Alpaca.APIKey, "test-key")
	}
	if cfg.Alpaca.BaseURL != DefaultAlpacaBaseURL {
		t.Errorf("Alpaca.BaseURL = %q, want default %q", cfg.Alpaca.BaseURL, DefaultAlpacaBaseURL)
	}

	// -- Risk --
	if cfg.Risk.MaxQuantity != 500 {
		t.Errorf("Risk.MaxQuantity = %d, want 500", cfg.Risk.MaxQuantity)
	}
	if cfg.Risk.MaxNotional != 250000 {
		t.Errorf("Risk.MaxNotional = %f, want 250000", cfg.Risk.MaxNotional)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("Logging = %+v, want debug/text", cfg.Logging)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Backend.BaseURL != DefaultBaseURL {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, DefaultBaseURL)
	}
	if cfg.Ticket.AnalysisDebounce != 800*time.Millisecond {
		t.Errorf("Ticket.AnalysisDebounce = %v, want 800ms", cfg.Ticket.AnalysisDebounce)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
	if cfg.Storage.HistoryPath == cfg.Storage.SQLitePath {
		t.Errorf("CLI history and backend database share %q", cfg.Storage.SQLitePath)
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "backend: [unterminated")
	if _, err := Load(path); err == nil {
		t.Fatal("Load() should fail on malformed YAML")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
backend:
  base_url: "http://yaml:8000"
alpaca:
  api_key: "yaml-key"
  api_secret: "yaml-secret"
`)

	t.Setenv("ORDERDESK_BACKEND_URL", "http://env:9999")
	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("ORDERDESK_ANALYSIS_DEBOUNCE", "250ms")
	t.Setenv("APCA_API_SECRET_KEY", "canonical-secret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	if cfg.Backend.BaseURL != "http://env:9999" {
		t.Errorf("Backend.BaseURL = %q, want %q (env override)", cfg.Backend.BaseURL, "http://env:9999")
	}
	if cfg.Alpaca.APIKey != "env-key" {
		t.Errorf("Alpaca.APIKey = %q, want %q (env override)", cfg.Alpaca.APIKey, "env-key")
	}
	if cfg.Alpaca.APISecret != "canonical-secret" {
		t.Errorf("Alpaca.APISecret = %q, want %q (APCA override)", cfg.Alpaca.APISecret, "canonical-secret")
	}
	if cfg.Ticket.AnalysisDebounce != 250*time.Millisecond {
		t.Errorf("Ticket.AnalysisDebounce = %v, want 250ms", cfg.Ticket.AnalysisDebounce)
	}
}
