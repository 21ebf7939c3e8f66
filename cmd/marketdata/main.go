// Command marketdata is the operations entrypoint for the ingestion core:
// fetch bars, fetch quotes, stream trades, and run quality checks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"

	"github.com/quotelab/marketdata/internal/config"
	"github.com/quotelab/marketdata/internal/observability"
	"github.com/quotelab/marketdata/internal/provider"
	"github.com/quotelab/marketdata/internal/provider/factories"
	"github.com/quotelab/marketdata/internal/quality"
	"github.com/quotelab/marketdata/internal/schema"
	"github.com/quotelab/marketdata/internal/storage/postgres"
	"github.com/quotelab/marketdata/internal/stream"
	"github.com/quotelab/marketdata/internal/telemetry"
)

const telemetryShutdownTimeout = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func usage() string {
	return strings.TrimSpace(`
usage: marketdata [-config path] [-debug] <command> [flags]

commands:
  bars     fetch historical bars
  quote    fetch the latest quote midpoint
  stream   stream real-time trades
  quality  run data-quality checks against the bar store
`)
}

func run() error {
	var (
		configPath = flag.String("config", "", "Path to yaml configuration file (optional)")
		debug      = flag.Bool("debug", false, "Emit debug logs")
	)
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		return errors.New(usage())
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := observability.NewStdLogger(log.New(os.Stderr, "marketdata ", log.LstdFlags), *debug)

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadFile(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	cfg = config.FromEnv(cfg)

	mp, shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		OTLPEndpoint: cfg.Telemetry.OTLPEndpoint,
		ServiceName:  cfg.Telemetry.ServiceName,
	})
	if err != nil {
		return fmt.Errorf("initialise telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer shutdownCancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", observability.F("error", err.Error()))
		}
	}()
	metrics, err := telemetry.NewIngest(mp)
	if err != nil {
		return fmt.Errorf("initialise metrics: %w", err)
	}

	app := &application{cfg: cfg, log: logger, metrics: metrics}

	switch args[0] {
	case "bars":
		return app.bars(ctx, args[1:])
	case "quote":
		return app.quote(ctx, args[1:])
	case "stream":
		return app.stream(ctx, args[1:])
	case "quality":
		return app.quality(ctx, args[1:])
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage())
	}
}

type application struct {
	cfg     config.Settings
	log     observability.Logger
	metrics *telemetry.Ingest
}

func (a *application) newProvider(vendor string) (provider.Provider, error) {
	spec, ok := a.cfg.ProviderSpec(vendor)
	if !ok {
		return nil, fmt.Errorf("vendor %q not configured", vendor)
	}
	spec.Logger = a.log
	spec.Metrics = a.metrics

	reg := provider.NewRegistry()
	factories.Register(reg)
	return reg.New(spec)
}

func (a *application) bars(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bars", flag.ContinueOnError)
	var (
		vendor    = fs.String("provider", "alpaca", "Vendor identifier")
		symbol    = fs.String("symbol", "", "Stock symbol")
		timeframe = fs.String("timeframe", "1D", "Bar timeframe (1Min|5Min|1H|1D)")
		startFlag = fs.String("start", "", "Range start (RFC 3339)")
		endFlag   = fs.String("end", "", "Range end (RFC 3339, default now)")
		store     = fs.Bool("store", false, "Persist fetched bars to the configured database")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *symbol == "" {
		return errors.New("-symbol is required")
	}

	end := time.Now().UTC()
	if *endFlag != "" {
		parsed, err := time.Parse(time.RFC3339, *endFlag)
		if err != nil {
			return fmt.Errorf("invalid -end: %w", err)
		}
		end = parsed
	}
	start := end.Add(-7 * 24 * time.Hour)
	if *startFlag != "" {
		parsed, err := time.Parse(time.RFC3339, *startFlag)
		if err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
		start = parsed
	}

	p, err := a.newProvider(*vendor)
	if err != nil {
		return err
	}
	defer func() {
		_ = p.Close()
	}()

	tf := schema.Timeframe(*timeframe)
	bars, err := p.FetchBars(ctx, *symbol, start, end, tf)
	if err != nil {
		return err
	}
	if err := printRecords(bars); err != nil {
		return err
	}

	if *store {
		if a.cfg.Database.DSN == "" {
			return errors.New("-store requires a configured database DSN")
		}
		pool, err := postgres.Connect(ctx, a.cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := postgres.NewBarStore(pool).UpsertBars(ctx, tf, bars); err != nil {
			return err
		}
		a.log.Info("bars persisted",
			observability.F("symbol", *symbol),
			observability.F("count", len(bars)))
	}
	return nil
}

func (a *application) quote(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("quote", flag.ContinueOnError)
	var (
		vendor = fs.String("provider", "alpaca", "Vendor identifier")
		symbol = fs.String("symbol", "", "Stock symbol")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *symbol == "" {
		return errors.New("-symbol is required")
	}

	p, err := a.newProvider(*vendor)
	if err != nil {
		return err
	}
	defer func() {
		_ = p.Close()
	}()

	quote, err := p.FetchLatestQuote(ctx, *symbol)
	if err != nil {
		return err
	}
	return printRecords([]schema.MarketData{quote})
}

func (a *application) stream(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("stream", flag.ContinueOnError)
	var (
		vendor  = fs.String("provider", "alpaca", "Vendor identifier")
		symbols = fs.String("symbols", "", "Comma-separated stock symbols")
		redial  = fs.Bool("redial", false, "Re-establish the stream with backoff after transport failures")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	list := splitSymbols(*symbols)
	if len(list) == 0 {
		return errors.New("-symbols is required")
	}

	p, err := a.newProvider(*vendor)
	if err != nil {
		return err
	}
	defer func() {
		_ = p.Close()
	}()

	sink := func(record schema.MarketData) {
		if err := printRecords([]schema.MarketData{record}); err != nil {
			a.log.Warn("trade output", observability.F("error", err.Error()))
		}
	}

	if *redial {
		return stream.Redial(ctx, a.log, func(ctx context.Context) error {
			return p.StreamTrades(ctx, list, sink)
		})
	}
	return p.StreamTrades(ctx, list, sink)
}

func (a *application) quality(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("quality", flag.ContinueOnError)
	var (
		symbols = fs.String("symbols", "", "Comma-separated stock symbols")
		output  = fs.String("out", "", "Write the markdown report to this file instead of stdout")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	list := splitSymbols(*symbols)
	if len(list) == 0 {
		return errors.New("-symbols is required")
	}
	if a.cfg.Database.DSN == "" {
		return errors.New("quality checks require a configured database DSN")
	}

	pool, err := postgres.Connect(ctx, a.cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	monitor := quality.NewMonitor(postgres.NewBarStore(pool), quality.Config{}, a.log, a.metrics)
	found, err := monitor.RunFullCheck(ctx, list)
	if err != nil {
		return err
	}

	report := quality.Report(found, time.Now())
	if *output != "" {
		if err := os.WriteFile(*output, []byte(report), 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
		a.log.Info("quality report written", observability.F("path", *output))
		return nil
	}
	fmt.Println(report)
	return nil
}

func printRecords(records []schema.MarketData) error {
	enc := json.NewEncoder(os.Stdout)
	for _, record := range records {
		if err := enc.Encode(record); err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
	}
	return nil
}

func splitSymbols(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, strings.ToUpper(trimmed))
		}
	}
	return out
}
