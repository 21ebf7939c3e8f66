package alpaca

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/quotelab/marketdata/internal/schema"
)

// Wire types for the Alpaca market-data REST surface. Prices decode as
// json.Number so decimal conversion never round-trips through float64.

type barsResponse struct {
	Bars          []barEntry `json:"bars"`
	Symbol        string     `json:"symbol"`
	NextPageToken *string    `json:"next_page_token"`
}

type barEntry struct {
	Timestamp  string      `json:"t"`
	Open       json.Number `json:"o"`
	High       json.Number `json:"h"`
	Low        json.Number `json:"l"`
	Close      json.Number `json:"c"`
	Volume     int64       `json:"v"`
	VWAP       json.Number `json:"vw"`
	TradeCount int64       `json:"n"`
}

type quoteResponse struct {
	Symbol string     `json:"symbol"`
	Quote  quoteEntry `json:"quote"`
}

type quoteEntry struct {
	Timestamp string      `json:"t"`
	BidPrice  json.Number `json:"bp"`
	AskPrice  json.Number `json:"ap"`
}

type optionsSnapshotResponse struct {
	Snapshots map[string]optionSnapshot `json:"snapshots"`
}

type optionSnapshot struct {
	LatestQuote       *optionQuoteEntry  `json:"latestQuote"`
	LatestTrade       *optionTradeEntry  `json:"latestTrade"`
	ImpliedVolatility *float64           `json:"impliedVolatility"`
	Greeks            map[string]float64 `json:"greeks"`
}

type optionQuoteEntry struct {
	Timestamp string      `json:"t"`
	BidPrice  json.Number `json:"bp"`
	AskPrice  json.Number `json:"ap"`
}

type optionTradeEntry struct {
	Price json.Number `json:"p"`
	Size  int64       `json:"s"`
}

func parseBar(symbol string, entry barEntry) (schema.MarketData, error) {
	ts, err := time.Parse(time.RFC3339, entry.Timestamp)
	if err != nil {
		return schema.MarketData{}, fmt.Errorf("bar timestamp %q: %w", entry.Timestamp, err)
	}
	open, err := parseDecimal(entry.Open)
	if err != nil {
		return schema.MarketData{}, fmt.Errorf("bar open: %w", err)
	}
	high, err := parseDecimal(entry.High)
	if err != nil {
		return schema.MarketData{}, fmt.Errorf("bar high: %w", err)
	}
	low, err := parseDecimal(entry.Low)
	if err != nil {
		return schema.MarketData{}, fmt.Errorf("bar low: %w", err)
	}
	closePx, err := parseDecimal(entry.Close)
	if err != nil {
		return schema.MarketData{}, fmt.Errorf("bar close: %w", err)
	}

	record := schema.MarketData{
		Symbol:    symbol,
		Timestamp: ts.UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closePx,
		Volume:    entry.Volume,
		Provider:  VendorName,
	}
	if entry.VWAP != "" {
		if vwap, err := parseDecimal(entry.VWAP); err == nil {
			record.VWAP = &vwap
		}
	}
	if entry.TradeCount > 0 {
		count := entry.TradeCount
		record.TradeCount = &count
	}
	if err := record.Validate(); err != nil {
		return schema.MarketData{}, err
	}
	return record, nil
}

func parseQuote(symbol string, entry quoteEntry) (schema.MarketData, error) {
	ts, err := time.Parse(time.RFC3339, entry.Timestamp)
	if err != nil {
		return schema.MarketData{}, fmt.Errorf("quote timestamp %q: %w", entry.Timestamp, err)
	}
	bid, err := parseDecimal(entry.BidPrice)
	if err != nil {
		return schema.MarketData{}, fmt.Errorf("quote bid: %w", err)
	}
	ask, err := parseDecimal(entry.AskPrice)
	if err != nil {
		return schema.MarketData{}, fmt.Errorf("quote ask: %w", err)
	}

	// Quote midpoint rides in Close; OHLV stay zero-filled by contract.
	return schema.MarketData{
		Symbol:    symbol,
		Timestamp: ts.UTC(),
		Close:     bid.Add(ask).Div(decimal.NewFromInt(2)),
		Provider:  VendorName,
	}, nil
}

func parseOptionSnapshot(underlying, contract string, snap optionSnapshot) (schema.OptionsQuote, error) {
	strike, expiration, optType, err := parseContractSymbol(contract)
	if err != nil {
		return schema.OptionsQuote{}, err
	}

	quote := schema.OptionsQuote{
		Underlying:        underlying,
		ContractSymbol:    contract,
		Strike:            strike,
		Expiration:        expiration,
		Type:              optType,
		ImpliedVolatility: snap.ImpliedVolatility,
	}
	if snap.LatestQuote != nil {
		if ts, err := time.Parse(time.RFC3339, snap.LatestQuote.Timestamp); err == nil {
			quote.Timestamp = ts.UTC()
		}
		if bid, err := parseDecimal(snap.LatestQuote.BidPrice); err == nil {
			quote.Bid = bid
		}
		if ask, err := parseDecimal(snap.LatestQuote.AskPrice); err == nil {
			quote.Ask = ask
		}
	}
	if snap.LatestTrade != nil {
		if last, err := parseDecimal(snap.LatestTrade.Price); err == nil {
			quote.Last = last
		}
		quote.Volume = snap.LatestTrade.Size
	}
	if len(snap.Greeks) > 0 {
		quote.Greeks = make(map[schema.Greek]float64, len(snap.Greeks))
		for name, value := range snap.Greeks {
			switch schema.Greek(strings.ToLower(name)) {
			case schema.GreekDelta, schema.GreekGamma, schema.GreekTheta, schema.GreekVega, schema.GreekRho:
				quote.Greeks[schema.Greek(strings.ToLower(name))] = value
			}
		}
	}
	if quote.Timestamp.IsZero() {
		quote.Timestamp = time.Now().UTC()
	}
	if err := quote.Validate(); err != nil {
		return schema.OptionsQuote{}, err
	}
	return quote, nil
}

// parseContractSymbol decodes an OCC option symbol such as
// AAPL240119C00150000: underlying, yymmdd expiration, C/P, strike*1000.
func parseContractSymbol(contract string) (decimal.Decimal, time.Time, schema.OptionType, error) {
	const suffixLen = 15 // 6 date digits + 1 type char + 8 strike digits
	trimmed := strings.TrimSpace(contract)
	if len(trimmed) <= suffixLen {
		return decimal.Decimal{}, time.Time{}, "", fmt.Errorf("contract symbol %q too short", contract)
	}
	suffix := trimmed[len(trimmed)-suffixLen:]

	expiration, err := time.Parse("060102", suffix[:6])
	if err != nil {
		return decimal.Decimal{}, time.Time{}, "", fmt.Errorf("contract %q expiration: %w", contract, err)
	}

	var optType schema.OptionType
	switch suffix[6] {
	case 'C':
		optType = schema.OptionCall
	case 'P':
		optType = schema.OptionPut
	default:
		return decimal.Decimal{}, time.Time{}, "", fmt.Errorf("contract %q type %q", contract, suffix[6])
	}

	raw, err := strconv.ParseInt(suffix[7:], 10, 64)
	if err != nil {
		return decimal.Decimal{}, time.Time{}, "", fmt.Errorf("contract %q strike: %w", contract, err)
	}
	strike := decimal.NewFromInt(raw).Div(decimal.NewFromInt(1000))

	return strike, expiration.UTC(), optType, nil
}

func parseDecimal(num json.Number) (decimal.Decimal, error) {
	if num == "" {
		return decimal.Decimal{}, fmt.Errorf("empty number")
	}
	return decimal.NewFromString(num.String())
}
