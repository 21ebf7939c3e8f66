// Package etrade stubs the E*TRADE vendor. The vendor is recognized by the
// factory, but the OAuth 1.0a integration is not wired, so every REST
// capability fails with a not_implemented envelope. Trade streaming fails
// with capability_not_supported because the vendor offers no public trade
// websocket at all.
package etrade

import (
	"context"
	"time"

	"github.com/quotelab/marketdata/errs"
	"github.com/quotelab/marketdata/internal/observability"
	"github.com/quotelab/marketdata/internal/provider"
	"github.com/quotelab/marketdata/internal/schema"
)

// VendorName identifies the E*TRADE stub in the registry.
const VendorName = "etrade"

// Provider is the stub instance. Construction succeeds so callers can probe
// capabilities; each missing capability fails distinguishably instead of
// returning empty data.
type Provider struct {
	log observability.Logger
}

// NewProvider constructs the stub.
func NewProvider(log observability.Logger) *Provider {
	return &Provider{log: observability.OrNop(log)}
}

// RegisterFactory installs the E*TRADE stub into the registry.
func RegisterFactory(reg *provider.Registry) {
	reg.Register(VendorName, func(spec provider.Spec) (provider.Provider, error) {
		return NewProvider(spec.Logger), nil
	})
}

func (p *Provider) Name() string { return VendorName }

func (p *Provider) Close() error { return nil }

// FetchBars fails until the OAuth 1.0a request signing is implemented.
func (p *Provider) FetchBars(ctx context.Context, symbol string, start, end time.Time, timeframe schema.Timeframe) ([]schema.MarketData, error) {
	p.log.Warn("etrade bars require OAuth 1.0a signing", observability.F("symbol", symbol))
	return nil, errs.NotImplemented(VendorName, "fetch_bars")
}

// FetchLatestQuote fails until the OAuth 1.0a request signing is implemented.
func (p *Provider) FetchLatestQuote(ctx context.Context, symbol string) (schema.MarketData, error) {
	p.log.Warn("etrade quotes require OAuth 1.0a signing", observability.F("symbol", symbol))
	return schema.MarketData{}, errs.NotImplemented(VendorName, "fetch_latest_quote")
}

// StreamTrades always fails: the vendor exposes no trade websocket.
func (p *Provider) StreamTrades(ctx context.Context, symbols []string, sink provider.Sink) error {
	return errs.NotSupported(VendorName, "stream_trades")
}

// FetchOptionsChain fails until the OAuth 1.0a request signing is implemented.
func (p *Provider) FetchOptionsChain(ctx context.Context, symbol string, expiration *time.Time) ([]schema.OptionsQuote, error) {
	p.log.Warn("etrade options require OAuth 1.0a signing", observability.F("symbol", symbol))
	return nil, errs.NotImplemented(VendorName, "fetch_options_chain")
}
