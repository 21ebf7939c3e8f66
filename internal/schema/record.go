// Package schema defines the canonical market-data record types.
package schema

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quotelab/marketdata/errs"
)

// Timeframe identifies a bar aggregation interval in vendor notation.
type Timeframe string

const (
	// Timeframe1Min aggregates one-minute bars.
	Timeframe1Min Timeframe = "1Min"
	// Timeframe5Min aggregates five-minute bars.
	Timeframe5Min Timeframe = "5Min"
	// Timeframe1Hour aggregates hourly bars.
	Timeframe1Hour Timeframe = "1H"
	// Timeframe1Day aggregates daily bars.
	Timeframe1Day Timeframe = "1D"
)

// Interval returns the wall-clock duration covered by one bar of the timeframe.
// Unknown timeframes default to one day.
func (tf Timeframe) Interval() time.Duration {
	switch tf {
	case Timeframe1Min:
		return time.Minute
	case Timeframe5Min:
		return 5 * time.Minute
	case Timeframe1Hour:
		return time.Hour
	case Timeframe1Day:
		return 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// MarketData is one normalized bar, quote midpoint, or trade tick.
//
// Quote- and trade-derived records zero-fill the fields a single observation
// cannot carry (OHLV for quotes, OHL for trades). Callers must treat zero
// values in those fields as "not applicable", never as real zero prices.
type MarketData struct {
	Symbol     string           `json:"symbol"`
	Timestamp  time.Time        `json:"timestamp"`
	Open       decimal.Decimal  `json:"open"`
	High       decimal.Decimal  `json:"high"`
	Low        decimal.Decimal  `json:"low"`
	Close      decimal.Decimal  `json:"close"`
	Volume     int64            `json:"volume"`
	VWAP       *decimal.Decimal `json:"vwap,omitempty"`
	TradeCount *int64           `json:"trade_count,omitempty"`
	Provider   string           `json:"provider,omitempty"`
}

// Validate checks the record invariants: a symbol, a timestamp, non-negative
// prices and volume, and High >= Low.
func (m MarketData) Validate() error {
	if strings.TrimSpace(m.Symbol) == "" {
		return errs.New(m.Provider, errs.CodeInvalid, errs.WithMessage("symbol required"))
	}
	if m.Timestamp.IsZero() {
		return errs.New(m.Provider, errs.CodeInvalid, errs.WithSymbol(m.Symbol), errs.WithMessage("timestamp required"))
	}
	if m.Volume < 0 {
		return errs.New(m.Provider, errs.CodeInvalid, errs.WithSymbol(m.Symbol), errs.WithMessage("volume must be non-negative"))
	}
	for _, price := range []decimal.Decimal{m.Open, m.High, m.Low, m.Close} {
		if price.IsNegative() {
			return errs.New(m.Provider, errs.CodeInvalid, errs.WithSymbol(m.Symbol), errs.WithMessage("prices must be non-negative"))
		}
	}
	if m.High.LessThan(m.Low) {
		return errs.New(m.Provider, errs.CodeInvalid, errs.WithSymbol(m.Symbol), errs.WithMessage("high must not be below low"))
	}
	return nil
}

// QuoteOnly reports whether the record carries only a quote midpoint, with
// OHLV zero-filled.
func (m MarketData) QuoteOnly() bool {
	return m.Open.IsZero() && m.High.IsZero() && m.Low.IsZero() && m.Volume == 0 && !m.Close.IsZero()
}
