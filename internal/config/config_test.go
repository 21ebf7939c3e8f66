package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultCarriesAlpacaEndpoints(t *testing.T) {
	cfg := Default()
	alpaca, ok := cfg.Providers["alpaca"]
	if !ok {
		t.Fatal("alpaca defaults missing")
	}
	if alpaca.BaseURL != "https://data.alpaca.markets" {
		t.Fatalf("unexpected base url %q", alpaca.BaseURL)
	}
	if alpaca.StreamURL != "wss://stream.data.alpaca.markets/v2/iex" {
		t.Fatalf("unexpected stream url %q", alpaca.StreamURL)
	}
	if _, ok := cfg.Providers["etrade"]; !ok {
		t.Fatal("etrade entry missing")
	}
	if cfg.Telemetry.ServiceName != "marketdata" {
		t.Fatalf("unexpected service name %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFileMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
providers:
  alpaca:
    apiKey: file-key
    apiSecret: file-secret
    baseUrl: https://paper.example.com
    httpTimeout: 5s
    requestsPerSecond: 3
database:
  dsn: postgres://localhost/marketdata
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	alpaca := cfg.Providers["alpaca"]
	if alpaca.APIKey != "file-key" || alpaca.BaseURL != "https://paper.example.com" {
		t.Fatalf("file values not applied: %+v", alpaca)
	}
	if alpaca.HTTPTimeout != 5*time.Second {
		t.Fatalf("unexpected timeout %v", alpaca.HTTPTimeout)
	}
	if alpaca.RequestsPerSecond != 3 {
		t.Fatalf("unexpected rate limit %v", alpaca.RequestsPerSecond)
	}
	if cfg.Database.DSN != "postgres://localhost/marketdata" {
		t.Fatalf("database dsn not applied: %q", cfg.Database.DSN)
	}
	if cfg.Telemetry.ServiceName != "marketdata" {
		t.Fatalf("default lost during merge: %q", cfg.Telemetry.ServiceName)
	}
}

func TestLoadFileMissingPathFails(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestFromEnvOverridesWin(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "env-key")
	t.Setenv("ALPACA_API_SECRET", "env-secret")
	t.Setenv("ALPACA_BASE_URL", "https://env.example.com")
	t.Setenv("ALPACA_HTTP_TIMEOUT", "30s")
	t.Setenv("ALPACA_REQUESTS_PER_SECOND", "7.5")
	t.Setenv("MARKETDATA_DATABASE_DSN", "postgres://env/marketdata")
	t.Setenv("MARKETDATA_SERVICE_NAME", "marketdata-staging")

	cfg := FromEnv(Default())
	alpaca := cfg.Providers["alpaca"]
	if alpaca.APIKey != "env-key" || alpaca.APISecret != "env-secret" {
		t.Fatalf("credentials not overridden: %+v", alpaca)
	}
	if alpaca.BaseURL != "https://env.example.com" {
		t.Fatalf("base url not overridden: %q", alpaca.BaseURL)
	}
	if alpaca.RequestsPerSecond != 7.5 {
		t.Fatalf("rate limit not overridden: %v", alpaca.RequestsPerSecond)
	}
	if alpaca.HTTPTimeout != 30*time.Second {
		t.Fatalf("http timeout not overridden: %v", alpaca.HTTPTimeout)
	}
	// Untouched defaults survive.
	if alpaca.StreamURL != "wss://stream.data.alpaca.markets/v2/iex" {
		t.Fatalf("stream url default lost: %q", alpaca.StreamURL)
	}
	if cfg.Database.DSN != "postgres://env/marketdata" {
		t.Fatalf("database dsn not overridden: %q", cfg.Database.DSN)
	}
	if cfg.Telemetry.ServiceName != "marketdata-staging" {
		t.Fatalf("service name not overridden: %q", cfg.Telemetry.ServiceName)
	}
}

func TestFromEnvIgnoresInvalidRateLimit(t *testing.T) {
	t.Setenv("ALPACA_REQUESTS_PER_SECOND", "not-a-number")
	cfg := FromEnv(Default())
	if got := cfg.Providers["alpaca"].RequestsPerSecond; got != 10 {
		t.Fatalf("invalid override applied: %v", got)
	}
}

func TestFromEnvIgnoresInvalidHTTPTimeout(t *testing.T) {
	t.Setenv("ALPACA_HTTP_TIMEOUT", "soon")
	cfg := FromEnv(Default())
	if got := cfg.Providers["alpaca"].HTTPTimeout; got != 10*time.Second {
		t.Fatalf("invalid override applied: %v", got)
	}
}

func TestProviderSpec(t *testing.T) {
	cfg := Default()
	alpaca := cfg.Providers["alpaca"]
	alpaca.APIKey = "key-id"
	alpaca.APISecret = "secret"
	cfg.Providers["alpaca"] = alpaca

	spec, ok := cfg.ProviderSpec("  ALPACA ")
	if !ok {
		t.Fatal("expected configured vendor")
	}
	if spec.Vendor != "alpaca" {
		t.Fatalf("vendor not normalized: %q", spec.Vendor)
	}
	if spec.Credentials.Key != "key-id" || spec.Credentials.Secret != "secret" {
		t.Fatalf("credentials not carried: %+v", spec.Credentials)
	}
	if spec.BaseURL != alpaca.BaseURL || spec.StreamURL != alpaca.StreamURL {
		t.Fatalf("endpoints not carried: %+v", spec)
	}

	if _, ok := cfg.ProviderSpec("polygon"); ok {
		t.Fatal("unconfigured vendor reported as present")
	}
}
