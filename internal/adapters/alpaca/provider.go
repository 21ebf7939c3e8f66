// Package alpaca implements the Alpaca market-data provider: REST bars,
// latest quotes, options snapshots, and websocket trade streaming.
package alpaca

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"time"

	json "github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/quotelab/marketdata/errs"
	"github.com/quotelab/marketdata/internal/observability"
	"github.com/quotelab/marketdata/internal/provider"
	"github.com/quotelab/marketdata/internal/schema"
	"github.com/quotelab/marketdata/internal/stream"
	"github.com/quotelab/marketdata/internal/telemetry"
)

// VendorName tags records produced by this provider.
const VendorName = "alpaca"

const (
	defaultBaseURL   = "https://data.alpaca.markets"
	defaultStreamURL = "wss://stream.data.alpaca.markets/v2/iex"

	headerKeyID     = "APCA-API-KEY-ID"
	headerSecretKey = "APCA-API-SECRET-KEY"
)

// Options configures an Alpaca provider instance.
type Options struct {
	Credentials       provider.Credentials
	BaseURL           string
	StreamURL         string
	HTTPTimeout       time.Duration
	RequestsPerSecond float64
	Logger            observability.Logger
	Metrics           *telemetry.Ingest
}

// Provider owns one HTTP client for REST calls; each streaming subscription
// owns its own websocket. The two transports are independent, so REST calls
// run concurrently with an active stream.
type Provider struct {
	creds     provider.Credentials
	baseURL   string
	streamURL string
	httpc     *http.Client
	limiter   *rate.Limiter
	log       observability.Logger
	metrics   *telemetry.Ingest
}

// NewProvider wires an Alpaca provider. Pure construction, no I/O.
func NewProvider(opts Options) *Provider {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	streamURL := opts.StreamURL
	if streamURL == "" {
		streamURL = defaultStreamURL
	}
	timeout := opts.HTTPTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	rps := opts.RequestsPerSecond
	if rps <= 0 {
		rps = 10
	}
	client := new(http.Client)
	client.Timeout = timeout
	return &Provider{
		creds:     opts.Credentials,
		baseURL:   baseURL,
		streamURL: streamURL,
		httpc:     client,
		limiter:   rate.NewLimiter(rate.Limit(rps), 1),
		log:       observability.OrNop(opts.Logger),
		metrics:   opts.Metrics,
	}
}

// RegisterFactory installs the Alpaca provider into the registry.
func RegisterFactory(reg *provider.Registry) {
	reg.Register(VendorName, func(spec provider.Spec) (provider.Provider, error) {
		return NewProvider(Options{
			Credentials:       spec.Credentials,
			BaseURL:           spec.BaseURL,
			StreamURL:         spec.StreamURL,
			HTTPTimeout:       spec.HTTPTimeout,
			RequestsPerSecond: spec.RequestsPerSecond,
			Logger:            spec.Logger,
			Metrics:           spec.Metrics,
		}), nil
	})
}

func (p *Provider) Name() string { return VendorName }

// Close releases the idle HTTP connections. Streams hold no state here.
func (p *Provider) Close() error {
	p.httpc.CloseIdleConnections()
	return nil
}

// FetchBars retrieves split/dividend-adjusted historical bars, following
// pagination until the vendor reports no further pages.
func (p *Provider) FetchBars(ctx context.Context, symbol string, start, end time.Time, timeframe schema.Timeframe) ([]schema.MarketData, error) {
	if start.After(end) {
		return nil, errs.New(VendorName, errs.CodeInvalid, errs.WithOp("fetch_bars"), errs.WithSymbol(symbol), errs.WithMessage("start must not be after end"))
	}

	var bars []schema.MarketData
	pageToken := ""
	for {
		params := url.Values{}
		params.Set("start", start.UTC().Format(time.RFC3339))
		params.Set("end", end.UTC().Format(time.RFC3339))
		params.Set("timeframe", string(timeframe))
		params.Set("adjustment", "all")
		if pageToken != "" {
			params.Set("page_token", pageToken)
		}

		body, status, err := p.get(ctx, "/v2/stocks/"+url.PathEscape(symbol)+"/bars", params)
		if err != nil {
			return nil, errs.New(VendorName, errs.CodeNetwork, errs.WithOp("fetch_bars"), errs.WithSymbol(symbol), errs.WithMessage("bars request failed"), errs.WithCause(err))
		}
		if status < 200 || status >= 300 {
			return nil, errs.New(VendorName, errs.CodeNetwork, errs.WithOp("fetch_bars"), errs.WithSymbol(symbol), errs.WithHTTP(status), errs.WithMessage("bars request rejected"))
		}

		var resp barsResponse
		if err := decodeJSON(body, &resp); err != nil {
			return nil, errs.New(VendorName, errs.CodeNetwork, errs.WithOp("fetch_bars"), errs.WithSymbol(symbol), errs.WithMessage("bars response malformed"), errs.WithCause(err))
		}

		for _, entry := range resp.Bars {
			record, err := parseBar(symbol, entry)
			if err != nil {
				// One malformed bar must not abort the batch; the gap is
				// externally detectable.
				p.log.Warn("bar entry skipped",
					observability.F("symbol", symbol),
					observability.F("error", err.Error()))
				continue
			}
			bars = append(bars, record)
		}

		if resp.NextPageToken == nil || *resp.NextPageToken == "" {
			break
		}
		pageToken = *resp.NextPageToken
	}

	p.log.Info("bars fetched",
		observability.F("symbol", symbol),
		observability.F("timeframe", string(timeframe)),
		observability.F("count", len(bars)))
	p.metrics.AddBars(ctx, VendorName, len(bars))
	return bars, nil
}

// FetchLatestQuote returns the current bid/ask midpoint as Close with OHLV
// zero-filled.
func (p *Provider) FetchLatestQuote(ctx context.Context, symbol string) (schema.MarketData, error) {
	body, status, err := p.get(ctx, "/v2/stocks/"+url.PathEscape(symbol)+"/quotes/latest", nil)
	if err != nil {
		return schema.MarketData{}, errs.New(VendorName, errs.CodeNetwork, errs.WithOp("fetch_latest_quote"), errs.WithSymbol(symbol), errs.WithMessage("quote request failed"), errs.WithCause(err))
	}
	if status < 200 || status >= 300 {
		return schema.MarketData{}, errs.New(VendorName, errs.CodeNetwork, errs.WithOp("fetch_latest_quote"), errs.WithSymbol(symbol), errs.WithHTTP(status), errs.WithMessage("quote request rejected"))
	}

	var resp quoteResponse
	if err := decodeJSON(body, &resp); err != nil {
		return schema.MarketData{}, errs.New(VendorName, errs.CodeNetwork, errs.WithOp("fetch_latest_quote"), errs.WithSymbol(symbol), errs.WithMessage("quote response malformed"), errs.WithCause(err))
	}

	record, err := parseQuote(symbol, resp.Quote)
	if err != nil {
		return schema.MarketData{}, errs.New(VendorName, errs.CodeNetwork, errs.WithOp("fetch_latest_quote"), errs.WithSymbol(symbol), errs.WithMessage("quote payload malformed"), errs.WithCause(err))
	}
	return record, nil
}

// FetchOptionsChain retrieves the options snapshot chain. A 404 means the
// vendor has no options surface for the symbol and yields an empty chain;
// every other transport failure is a typed error.
func (p *Provider) FetchOptionsChain(ctx context.Context, symbol string, expiration *time.Time) ([]schema.OptionsQuote, error) {
	params := url.Values{}
	if expiration != nil {
		params.Set("expiration_date", expiration.UTC().Format("2006-01-02"))
	}

	body, status, err := p.get(ctx, "/v1beta1/options/snapshots/"+url.PathEscape(symbol), params)
	if err != nil {
		return nil, errs.New(VendorName, errs.CodeNetwork, errs.WithOp("fetch_options_chain"), errs.WithSymbol(symbol), errs.WithMessage("options request failed"), errs.WithCause(err))
	}
	if status == http.StatusNotFound {
		p.log.Warn("options data not available", observability.F("symbol", symbol))
		return []schema.OptionsQuote{}, nil
	}
	if status < 200 || status >= 300 {
		return nil, errs.New(VendorName, errs.CodeNetwork, errs.WithOp("fetch_options_chain"), errs.WithSymbol(symbol), errs.WithHTTP(status), errs.WithMessage("options request rejected"))
	}

	var resp optionsSnapshotResponse
	if err := decodeJSON(body, &resp); err != nil {
		return nil, errs.New(VendorName, errs.CodeNetwork, errs.WithOp("fetch_options_chain"), errs.WithSymbol(symbol), errs.WithMessage("options response malformed"), errs.WithCause(err))
	}

	chain := make([]schema.OptionsQuote, 0, len(resp.Snapshots))
	for contract, snapshot := range resp.Snapshots {
		quote, err := parseOptionSnapshot(symbol, contract, snapshot)
		if err != nil {
			p.log.Warn("option snapshot skipped",
				observability.F("symbol", symbol),
				observability.F("contract", contract),
				observability.F("error", err.Error()))
			continue
		}
		if expiration != nil && !sameDate(quote.Expiration, *expiration) {
			continue
		}
		chain = append(chain, quote)
	}
	return chain, nil
}

// StreamTrades runs a websocket session pushing normalized trade records to
// sink until ctx is cancelled or the connection fails. No reconnects.
func (p *Provider) StreamTrades(ctx context.Context, symbols []string, sink provider.Sink) error {
	codec := newTradeCodec(p.creds, p.log)
	session, err := stream.NewSession(stream.Options{
		Provider: VendorName,
		URL:      p.streamURL,
		Codec:    codec,
		Logger:   p.log,
		OnTrade:  func() { p.metrics.AddTrade(context.Background(), VendorName) },
	})
	if err != nil {
		return err
	}
	err = session.Run(ctx, symbols, func(record schema.MarketData) { sink(record) })
	if err != nil {
		p.metrics.AddStreamFailure(context.Background(), VendorName)
	}
	return err
}

// get performs one authenticated GET under the provider rate limit.
func (p *Provider) get(ctx context.Context, path string, params url.Values) ([]byte, int, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, 0, err
	}

	target := p.baseURL + path
	if len(params) > 0 {
		target += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set(headerKeyID, p.creds.Key)
	req.Header.Set(headerSecretKey, p.creds.Secret)

	resp, err := p.httpc.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func decodeJSON(body []byte, out any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	return dec.Decode(out)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
