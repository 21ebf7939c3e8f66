package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/quotelab/marketdata"

// Ingest groups the ingestion instruments. A nil *Ingest is valid and records
// nothing, so components never need to guard their metric calls.
type Ingest struct {
	barsFetched    metric.Int64Counter
	tradesStreamed metric.Int64Counter
	streamFailures metric.Int64Counter
	qualityIssues  metric.Int64Counter
}

// NewIngest builds the ingestion instruments on the supplied meter provider.
func NewIngest(mp metric.MeterProvider) (*Ingest, error) {
	meter := mp.Meter(meterName)

	barsFetched, err := meter.Int64Counter("marketdata.bars.fetched",
		metric.WithDescription("Historical bars fetched across providers"))
	if err != nil {
		return nil, fmt.Errorf("create bars counter: %w", err)
	}
	tradesStreamed, err := meter.Int64Counter("marketdata.trades.streamed",
		metric.WithDescription("Trade events delivered to streaming sinks"))
	if err != nil {
		return nil, fmt.Errorf("create trades counter: %w", err)
	}
	streamFailures, err := meter.Int64Counter("marketdata.stream.failures",
		metric.WithDescription("Streaming sessions terminated by transport failure"))
	if err != nil {
		return nil, fmt.Errorf("create stream failure counter: %w", err)
	}
	qualityIssues, err := meter.Int64Counter("marketdata.quality.issues",
		metric.WithDescription("Data-quality issues detected"))
	if err != nil {
		return nil, fmt.Errorf("create quality counter: %w", err)
	}

	return &Ingest{
		barsFetched:    barsFetched,
		tradesStreamed: tradesStreamed,
		streamFailures: streamFailures,
		qualityIssues:  qualityIssues,
	}, nil
}

// AddBars records fetched bar counts for the provider.
func (i *Ingest) AddBars(ctx context.Context, provider string, count int) {
	if i == nil || count <= 0 {
		return
	}
	i.barsFetched.Add(ctx, int64(count), metric.WithAttributes(attribute.String("provider", provider)))
}

// AddTrade records one streamed trade for the provider.
func (i *Ingest) AddTrade(ctx context.Context, provider string) {
	if i == nil {
		return
	}
	i.tradesStreamed.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// AddStreamFailure records one failed streaming session for the provider.
func (i *Ingest) AddStreamFailure(ctx context.Context, provider string) {
	if i == nil {
		return
	}
	i.streamFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", provider)))
}

// AddQualityIssues records detected data-quality issues by severity.
func (i *Ingest) AddQualityIssues(ctx context.Context, severity string, count int) {
	if i == nil || count <= 0 {
		return
	}
	i.qualityIssues.Add(ctx, int64(count), metric.WithAttributes(attribute.String("severity", severity)))
}
