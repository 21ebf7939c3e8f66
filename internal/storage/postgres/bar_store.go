package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quotelab/marketdata/internal/schema"
)

// BarStore persists and queries canonical bars. Prices travel as strings so
// NUMERIC columns never round-trip through binary floating point.
type BarStore struct {
	pool *pgxpool.Pool
}

// NewBarStore constructs a BarStore backed by the provided pgx pool.
func NewBarStore(pool *pgxpool.Pool) *BarStore {
	return &BarStore{pool: pool}
}

const (
	barUpsertSQL = `
INSERT INTO stock_bars (
    symbol, timeframe, ts, open, high, low, close, volume, vwap, trade_count, provider
)
VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8, $9::numeric, $10, $11)
ON CONFLICT (symbol, timeframe, ts) DO UPDATE SET
    open = EXCLUDED.open,
    high = EXCLUDED.high,
    low = EXCLUDED.low,
    close = EXCLUDED.close,
    volume = EXCLUDED.volume,
    vwap = EXCLUDED.vwap,
    trade_count = EXCLUDED.trade_count,
    provider = EXCLUDED.provider;
`
	barQuerySQL = `
SELECT symbol, ts, open::text, high::text, low::text, close::text, volume, vwap::text, trade_count, provider
FROM stock_bars
WHERE symbol = $1 AND timeframe = $2 AND ts BETWEEN $3 AND $4
ORDER BY ts;
`
	barLatestSQL = `SELECT MAX(ts) FROM stock_bars WHERE symbol = $1;`
)

// UpsertBars writes the batch under one pgx batch round trip.
func (s *BarStore) UpsertBars(ctx context.Context, timeframe schema.Timeframe, bars []schema.MarketData) error {
	if s.pool == nil {
		return fmt.Errorf("bar store: nil pool")
	}
	if len(bars) == 0 {
		return nil
	}

	batch := new(pgx.Batch)
	for _, bar := range bars {
		symbol := strings.TrimSpace(bar.Symbol)
		if symbol == "" {
			return fmt.Errorf("bar store: symbol required")
		}
		var vwap *string
		if bar.VWAP != nil {
			v := bar.VWAP.String()
			vwap = &v
		}
		batch.Queue(barUpsertSQL,
			symbol,
			string(timeframe),
			bar.Timestamp.UTC(),
			bar.Open.String(),
			bar.High.String(),
			bar.Low.String(),
			bar.Close.String(),
			bar.Volume,
			vwap,
			bar.TradeCount,
			bar.Provider,
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer func() {
		_ = results.Close()
	}()
	for range bars {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("upsert bar: %w", err)
		}
	}
	return nil
}

// QueryBars returns bars for the symbol and timeframe inside [start, end], in
// ascending timestamp order.
func (s *BarStore) QueryBars(ctx context.Context, symbol string, timeframe schema.Timeframe, start, end time.Time) ([]schema.MarketData, error) {
	if s.pool == nil {
		return nil, fmt.Errorf("bar store: nil pool")
	}

	rows, err := s.pool.Query(ctx, barQuerySQL, symbol, string(timeframe), start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []schema.MarketData
	for rows.Next() {
		var (
			record     schema.MarketData
			open       string
			high       string
			low        string
			closePx    string
			vwap       *string
			tradeCount *int64
		)
		if err := rows.Scan(&record.Symbol, &record.Timestamp, &open, &high, &low, &closePx, &record.Volume, &vwap, &tradeCount, &record.Provider); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		if record.Open, err = decimal.NewFromString(open); err != nil {
			return nil, fmt.Errorf("decode open: %w", err)
		}
		if record.High, err = decimal.NewFromString(high); err != nil {
			return nil, fmt.Errorf("decode high: %w", err)
		}
		if record.Low, err = decimal.NewFromString(low); err != nil {
			return nil, fmt.Errorf("decode low: %w", err)
		}
		if record.Close, err = decimal.NewFromString(closePx); err != nil {
			return nil, fmt.Errorf("decode close: %w", err)
		}
		if vwap != nil {
			v, err := decimal.NewFromString(*vwap)
			if err != nil {
				return nil, fmt.Errorf("decode vwap: %w", err)
			}
			record.VWAP = &v
		}
		record.TradeCount = tradeCount
		record.Timestamp = record.Timestamp.UTC()
		bars = append(bars, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}
	return bars, nil
}

// LatestTimestamp returns the most recent bar timestamp for the symbol. The
// second return reports whether any bar exists.
func (s *BarStore) LatestTimestamp(ctx context.Context, symbol string) (time.Time, bool, error) {
	if s.pool == nil {
		return time.Time{}, false, fmt.Errorf("bar store: nil pool")
	}

	var latest *time.Time
	if err := s.pool.QueryRow(ctx, barLatestSQL, symbol).Scan(&latest); err != nil {
		return time.Time{}, false, fmt.Errorf("query latest timestamp: %w", err)
	}
	if latest == nil {
		return time.Time{}, false, nil
	}
	return latest.UTC(), true, nil
}
