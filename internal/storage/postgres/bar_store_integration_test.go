package postgres_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/quotelab/marketdata/internal/observability"
	"github.com/quotelab/marketdata/internal/schema"
	"github.com/quotelab/marketdata/internal/storage/migrations"
	"github.com/quotelab/marketdata/internal/storage/postgres"
)

func TestBarStoreRoundTrip(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "marketdata"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() {
		_ = container.Terminate(ctx)
	})

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/marketdata?sslmode=disable", host, port.Port())

	if err := migrations.Apply(ctx, dsn, observability.NopLogger{}); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	pool, err := postgres.Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(pool.Close)

	store := postgres.NewBarStore(pool)
	base := time.Date(2024, 3, 4, 14, 30, 0, 0, time.UTC)
	vwap := decimal.RequireFromString("187.41")
	trades := int64(912)
	bars := []schema.MarketData{
		{
			Symbol:     "AAPL",
			Timestamp:  base,
			Open:       decimal.RequireFromString("187.15"),
			High:       decimal.RequireFromString("187.80"),
			Low:        decimal.RequireFromString("187.02"),
			Close:      decimal.RequireFromString("187.55"),
			Volume:     120500,
			VWAP:       &vwap,
			TradeCount: &trades,
			Provider:   "alpaca",
		},
		{
			Symbol:    "AAPL",
			Timestamp: base.Add(time.Minute),
			Open:      decimal.RequireFromString("187.55"),
			High:      decimal.RequireFromString("188.10"),
			Low:       decimal.RequireFromString("187.40"),
			Close:     decimal.RequireFromString("188.05"),
			Volume:    98400,
			Provider:  "alpaca",
		},
	}
	if err := store.UpsertBars(ctx, schema.Timeframe1Min, bars); err != nil {
		t.Fatalf("upsert bars: %v", err)
	}

	got, err := store.QueryBars(ctx, "AAPL", schema.Timeframe1Min, base.Add(-time.Minute), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("query bars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bars, got %d", len(got))
	}
	if !got[0].Timestamp.Equal(base) || !got[1].Timestamp.Equal(base.Add(time.Minute)) {
		t.Fatalf("bars out of order: %v, %v", got[0].Timestamp, got[1].Timestamp)
	}
	if !got[0].Close.Equal(decimal.RequireFromString("187.55")) {
		t.Fatalf("unexpected close %s", got[0].Close)
	}
	if got[0].VWAP == nil || !got[0].VWAP.Equal(vwap) {
		t.Fatalf("unexpected vwap %v", got[0].VWAP)
	}
	if got[1].VWAP != nil {
		t.Fatalf("expected nil vwap, got %v", got[1].VWAP)
	}

	// Conflicting write replaces the existing row instead of duplicating it.
	updated := bars[0]
	updated.Close = decimal.RequireFromString("187.60")
	if err := store.UpsertBars(ctx, schema.Timeframe1Min, []schema.MarketData{updated}); err != nil {
		t.Fatalf("upsert conflicting bar: %v", err)
	}
	got, err = store.QueryBars(ctx, "AAPL", schema.Timeframe1Min, base.Add(-time.Minute), base.Add(time.Hour))
	if err != nil {
		t.Fatalf("query bars after update: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 bars after update, got %d", len(got))
	}
	if !got[0].Close.Equal(decimal.RequireFromString("187.60")) {
		t.Fatalf("conflicting write not applied, close %s", got[0].Close)
	}

	latest, ok, err := store.LatestTimestamp(ctx, "AAPL")
	if err != nil {
		t.Fatalf("latest timestamp: %v", err)
	}
	if !ok {
		t.Fatal("expected latest timestamp to exist")
	}
	if !latest.Equal(base.Add(time.Minute)) {
		t.Fatalf("unexpected latest timestamp %v", latest)
	}

	_, ok, err = store.LatestTimestamp(ctx, "MSFT")
	if err != nil {
		t.Fatalf("latest timestamp for unknown symbol: %v", err)
	}
	if ok {
		t.Fatal("expected no bars for unknown symbol")
	}
}
