// Package config centralises runtime configuration for the ingestion core.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/quotelab/marketdata/internal/provider"
)

// ProviderSettings configures one vendor integration.
type ProviderSettings struct {
	APIKey            string        `yaml:"apiKey"`
	APISecret         string        `yaml:"apiSecret"`
	BaseURL           string        `yaml:"baseUrl"`
	StreamURL         string        `yaml:"streamUrl"`
	HTTPTimeout       time.Duration `yaml:"httpTimeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
}

// DatabaseSettings configures the bar store.
type DatabaseSettings struct {
	DSN string `yaml:"dsn"`
}

// TelemetrySettings configures the OTLP metric exporter.
type TelemetrySettings struct {
	OTLPEndpoint string `yaml:"otlpEndpoint"`
	ServiceName  string `yaml:"serviceName"`
}

// Settings is the configuration tree loaded from defaults, an optional yaml
// file, and environment overrides, in that order.
type Settings struct {
	Providers map[string]ProviderSettings `yaml:"providers"`
	Database  DatabaseSettings            `yaml:"database"`
	Telemetry TelemetrySettings           `yaml:"telemetry"`
}

// Default returns the built-in configuration.
func Default() Settings {
	return Settings{
		Providers: map[string]ProviderSettings{
			"alpaca": {
				BaseURL:           "https://data.alpaca.markets",
				StreamURL:         "wss://stream.data.alpaca.markets/v2/iex",
				HTTPTimeout:       10 * time.Second,
				RequestsPerSecond: 10,
			},
			"etrade": {},
		},
		Database:  DatabaseSettings{},
		Telemetry: TelemetrySettings{ServiceName: "marketdata"},
	}
}

// LoadFile merges a yaml configuration file over the defaults.
func LoadFile(path string) (Settings, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Settings{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// FromEnv applies environment overrides on top of cfg.
func FromEnv(cfg Settings) Settings {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]ProviderSettings)
	}

	alpaca := cfg.Providers["alpaca"]
	if v := strings.TrimSpace(os.Getenv("ALPACA_API_KEY")); v != "" {
		alpaca.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ALPACA_API_SECRET")); v != "" {
		alpaca.APISecret = v
	}
	if v := strings.TrimSpace(os.Getenv("ALPACA_BASE_URL")); v != "" {
		alpaca.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ALPACA_STREAM_URL")); v != "" {
		alpaca.StreamURL = v
	}
	if v := strings.TrimSpace(os.Getenv("ALPACA_HTTP_TIMEOUT")); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			alpaca.HTTPTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv("ALPACA_REQUESTS_PER_SECOND")); v != "" {
		if rps, err := strconv.ParseFloat(v, 64); err == nil && rps > 0 {
			alpaca.RequestsPerSecond = rps
		}
	}
	cfg.Providers["alpaca"] = alpaca

	if v := strings.TrimSpace(os.Getenv("MARKETDATA_DATABASE_DSN")); v != "" {
		cfg.Database.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("MARKETDATA_OTLP_ENDPOINT")); v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v := strings.TrimSpace(os.Getenv("MARKETDATA_SERVICE_NAME")); v != "" {
		cfg.Telemetry.ServiceName = v
	}
	return cfg
}

// ProviderSpec materialises the registry specification for the vendor.
// The second return reports whether the vendor is configured.
func (s Settings) ProviderSpec(vendor string) (provider.Spec, bool) {
	vendor = strings.ToLower(strings.TrimSpace(vendor))
	settings, ok := s.Providers[vendor]
	if !ok {
		return provider.Spec{}, false
	}
	return provider.Spec{
		Vendor: vendor,
		Credentials: provider.Credentials{
			Key:    settings.APIKey,
			Secret: settings.APISecret,
		},
		BaseURL:           settings.BaseURL,
		StreamURL:         settings.StreamURL,
		HTTPTimeout:       settings.HTTPTimeout,
		RequestsPerSecond: settings.RequestsPerSecond,
	}, true
}
