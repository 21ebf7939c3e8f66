// Package provider defines the capability interface every market-data source
// implements, and the registry that constructs providers from vendor ids.
package provider

import (
	"context"
	"time"

	"github.com/quotelab/marketdata/internal/schema"
)

// Sink receives normalized trade records from a streaming subscription, in
// the order the transport delivered them.
type Sink func(schema.MarketData)

// Credentials carries the API key pair for a vendor. The core treats it as
// opaque and passes it through to transport headers and handshakes.
type Credentials struct {
	Key    string
	Secret string
}

// Provider is the capability set every data source must answer for.
//
// A provider that lacks a capability fails the call with a distinguishable
// errs.CodeCapability or errs.CodeNotImplemented envelope instead of silently
// returning empty data, so callers can tell "unsupported" from "no data".
type Provider interface {
	// Name returns the vendor identifier tagged onto produced records.
	Name() string

	// FetchBars returns historical bars for symbol in ascending timestamp
	// order, one record per reported interval. start must not be after end.
	// An empty slice is a valid result, distinct from a transport failure.
	FetchBars(ctx context.Context, symbol string, start, end time.Time, timeframe schema.Timeframe) ([]schema.MarketData, error)

	// FetchLatestQuote returns a single record whose Close is the current
	// bid/ask midpoint. OHLV fields are zero-filled.
	FetchLatestQuote(ctx context.Context, symbol string) (schema.MarketData, error)

	// StreamTrades subscribes to real-time trades for the symbols and pushes
	// one normalized record per trade event to sink until ctx is cancelled or
	// the connection terminates. The call blocks for the life of the stream.
	StreamTrades(ctx context.Context, symbols []string, sink Sink) error

	// FetchOptionsChain returns the options chain for symbol, filtered to the
	// expiration when non-nil. Vendors whose subscription tier lacks options
	// data return an empty slice, distinct from CodeCapability which means the
	// vendor never exposes options.
	FetchOptionsChain(ctx context.Context, symbol string, expiration *time.Time) ([]schema.OptionsQuote, error)

	// Close releases the provider's transport resources. Safe to call more
	// than once.
	Close() error
}
