// Package quality runs data-quality checks over persisted bars: coverage
// gaps, staleness, return outliers, and volume anomalies.
package quality

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/sourcegraph/conc/pool"

	"github.com/quotelab/marketdata/internal/observability"
	"github.com/quotelab/marketdata/internal/schema"
	"github.com/quotelab/marketdata/internal/telemetry"
)

// Severity ranks how urgently an issue needs attention.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// Kind identifies the check that raised an issue.
type Kind string

const (
	KindNoData        Kind = "no_data"
	KindMissingBars   Kind = "missing_bars"
	KindStaleData     Kind = "stale_data"
	KindPriceOutlier  Kind = "price_outlier"
	KindVolumeAnomaly Kind = "volume_anomaly"
)

// Issue describes a single quality finding.
type Issue struct {
	Severity    Severity
	Kind        Kind
	Symbol      string
	Timestamp   time.Time
	Description string
	Metadata    map[string]any
}

// BarSource supplies the bars under inspection. *postgres.BarStore satisfies
// it; tests use in-memory fakes.
type BarSource interface {
	QueryBars(ctx context.Context, symbol string, timeframe schema.Timeframe, start, end time.Time) ([]schema.MarketData, error)
	LatestTimestamp(ctx context.Context, symbol string) (time.Time, bool, error)
}

// Config tunes check thresholds. The zero value is replaced with defaults.
type Config struct {
	// GapTolerance scales the expected bar interval before a gap is flagged.
	GapTolerance float64
	// MaxAge is the staleness threshold for the newest bar.
	MaxAge time.Duration
	// Lookback bounds the history inspected by outlier and volume checks.
	Lookback time.Duration
	// ZScoreThreshold flags daily returns beyond this many standard deviations.
	ZScoreThreshold float64
	// VolumeMultiplier flags volume beyond this multiple of the rolling mean.
	VolumeMultiplier float64
	// MinSamples is the minimum bar count before statistical checks run.
	MinSamples int
	// VolumeWindow is the rolling-mean window for the volume check.
	VolumeWindow int
}

func (c Config) withDefaults() Config {
	if c.GapTolerance <= 0 {
		c.GapTolerance = 1.5
	}
	if c.MaxAge <= 0 {
		c.MaxAge = time.Hour
	}
	if c.Lookback <= 0 {
		c.Lookback = 30 * 24 * time.Hour
	}
	if c.ZScoreThreshold <= 0 {
		c.ZScoreThreshold = 5.0
	}
	if c.VolumeMultiplier <= 0 {
		c.VolumeMultiplier = 3.0
	}
	if c.MinSamples <= 0 {
		c.MinSamples = 10
	}
	if c.VolumeWindow <= 0 {
		c.VolumeWindow = 20
	}
	return c
}

// Monitor executes quality checks against a BarSource.
type Monitor struct {
	source  BarSource
	cfg     Config
	log     observability.Logger
	metrics *telemetry.Ingest
	now     func() time.Time
}

// NewMonitor constructs a Monitor. Metrics may be nil.
func NewMonitor(source BarSource, cfg Config, log observability.Logger, metrics *telemetry.Ingest) *Monitor {
	return &Monitor{
		source:  source,
		cfg:     cfg.withDefaults(),
		log:     observability.OrNop(log),
		metrics: metrics,
		now:     time.Now,
	}
}

// CheckMissingBars flags gaps in the series larger than the expected interval
// scaled by the gap tolerance. An empty range is a critical no-data issue.
func (m *Monitor) CheckMissingBars(ctx context.Context, symbol string, start, end time.Time, timeframe schema.Timeframe) ([]Issue, error) {
	bars, err := m.source.QueryBars(ctx, symbol, timeframe, start, end)
	if err != nil {
		return nil, fmt.Errorf("query bars for gap check: %w", err)
	}
	if len(bars) == 0 {
		return []Issue{{
			Severity:    SeverityCritical,
			Kind:        KindNoData,
			Symbol:      symbol,
			Timestamp:   m.now().UTC(),
			Description: fmt.Sprintf("no data found for %s in specified range", symbol),
			Metadata: map[string]any{
				"start":     start.UTC(),
				"end":       end.UTC(),
				"timeframe": string(timeframe),
			},
		}}, nil
	}

	expected := timeframe.Interval()
	tolerance := time.Duration(float64(expected) * m.cfg.GapTolerance)
	var issues []Issue
	for i := 1; i < len(bars); i++ {
		gap := bars[i].Timestamp.Sub(bars[i-1].Timestamp)
		if gap <= tolerance {
			continue
		}
		issues = append(issues, Issue{
			Severity:    SeverityWarning,
			Kind:        KindMissingBars,
			Symbol:      symbol,
			Timestamp:   bars[i].Timestamp,
			Description: fmt.Sprintf("gap detected: %s", gap),
			Metadata: map[string]any{
				"expected":     expected.String(),
				"actual":       gap.String(),
				"previous_bar": bars[i-1].Timestamp.UTC(),
			},
		})
	}
	return issues, nil
}

// CheckStaleData reports when the newest bar is older than the configured
// maximum age. A symbol with no bars at all is critical.
func (m *Monitor) CheckStaleData(ctx context.Context, symbol string) (*Issue, error) {
	latest, ok, err := m.source.LatestTimestamp(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("query latest bar for staleness check: %w", err)
	}
	if !ok {
		return &Issue{
			Severity:    SeverityCritical,
			Kind:        KindNoData,
			Symbol:      symbol,
			Timestamp:   m.now().UTC(),
			Description: fmt.Sprintf("no data found for %s", symbol),
			Metadata:    map[string]any{},
		}, nil
	}
	age := m.now().Sub(latest)
	if age <= m.cfg.MaxAge {
		return nil, nil
	}
	return &Issue{
		Severity:    SeverityWarning,
		Kind:        KindStaleData,
		Symbol:      symbol,
		Timestamp:   m.now().UTC(),
		Description: fmt.Sprintf("data is %s old (threshold: %s)", age, m.cfg.MaxAge),
		Metadata: map[string]any{
			"last_update": latest.UTC(),
			"age":         age.String(),
		},
	}, nil
}

// CheckPriceOutliers flags daily returns whose z-score exceeds the threshold.
// Fewer samples than the minimum yields no findings.
func (m *Monitor) CheckPriceOutliers(ctx context.Context, symbol string) ([]Issue, error) {
	bars, err := m.dailyBars(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("query bars for outlier check: %w", err)
	}
	if len(bars) < m.cfg.MinSamples {
		return nil, nil
	}

	returns := make([]float64, 0, len(bars)-1)
	for i := 1; i < len(bars); i++ {
		prev := bars[i-1].Close.InexactFloat64()
		if prev == 0 {
			returns = append(returns, 0)
			continue
		}
		returns = append(returns, bars[i].Close.InexactFloat64()/prev-1)
	}

	mean, err := stats.Mean(returns)
	if err != nil {
		return nil, fmt.Errorf("mean of returns: %w", err)
	}
	std, err := stats.StandardDeviationSample(returns)
	if err != nil {
		return nil, fmt.Errorf("stddev of returns: %w", err)
	}
	if std == 0 {
		return nil, nil
	}

	var issues []Issue
	for i, ret := range returns {
		z := (ret - mean) / std
		if z < 0 {
			z = -z
		}
		if z <= m.cfg.ZScoreThreshold {
			continue
		}
		bar := bars[i+1]
		issues = append(issues, Issue{
			Severity:    SeverityWarning,
			Kind:        KindPriceOutlier,
			Symbol:      symbol,
			Timestamp:   bar.Timestamp,
			Description: fmt.Sprintf("abnormal return: %.2f%% (z-score: %.2f)", ret*100, (ret-mean)/std),
			Metadata: map[string]any{
				"close":   bar.Close.InexactFloat64(),
				"return":  ret,
				"z_score": (ret - mean) / std,
			},
		})
	}
	return issues, nil
}

// CheckVolumeAnomalies flags bars whose volume exceeds the rolling mean by
// the configured multiplier. The rolling window must be full before a bar is
// eligible.
func (m *Monitor) CheckVolumeAnomalies(ctx context.Context, symbol string) ([]Issue, error) {
	bars, err := m.dailyBars(ctx, symbol)
	if err != nil {
		return nil, fmt.Errorf("query bars for volume check: %w", err)
	}
	if len(bars) < m.cfg.MinSamples {
		return nil, nil
	}

	window := m.cfg.VolumeWindow
	var issues []Issue
	for i := window - 1; i < len(bars); i++ {
		var sum int64
		for j := i - window + 1; j <= i; j++ {
			sum += bars[j].Volume
		}
		avg := float64(sum) / float64(window)
		if avg == 0 {
			continue
		}
		ratio := float64(bars[i].Volume) / avg
		if ratio <= m.cfg.VolumeMultiplier {
			continue
		}
		issues = append(issues, Issue{
			Severity:    SeverityInfo,
			Kind:        KindVolumeAnomaly,
			Symbol:      symbol,
			Timestamp:   bars[i].Timestamp,
			Description: fmt.Sprintf("volume %.1fx average", ratio),
			Metadata: map[string]any{
				"volume":     bars[i].Volume,
				"avg_volume": int64(avg),
				"ratio":      ratio,
			},
		})
	}
	return issues, nil
}

// RunFullCheck runs every check for each symbol concurrently and returns the
// findings keyed by symbol. Symbols without findings are omitted.
func (m *Monitor) RunFullCheck(ctx context.Context, symbols []string) (map[string][]Issue, error) {
	workers := runtime.GOMAXPROCS(0)
	if workers > len(symbols) {
		workers = len(symbols)
	}
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	found := make(map[string][]Issue)
	var checkErrs []error

	p := pool.New().WithMaxGoroutines(workers)
	for _, symbol := range symbols {
		sym := symbol
		p.Go(func() {
			issues, err := m.checkSymbol(ctx, sym)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				checkErrs = append(checkErrs, fmt.Errorf("%s: %w", sym, err))
				return
			}
			if len(issues) > 0 {
				found[sym] = issues
			}
		})
	}
	p.Wait()

	if len(checkErrs) > 0 {
		return found, fmt.Errorf("quality check failed for %d symbol(s): %w", len(checkErrs), errors.Join(checkErrs...))
	}
	return found, nil
}

func (m *Monitor) checkSymbol(ctx context.Context, symbol string) ([]Issue, error) {
	end := m.now()
	start := end.Add(-7 * 24 * time.Hour)

	issues, err := m.CheckMissingBars(ctx, symbol, start, end, schema.Timeframe1Day)
	if err != nil {
		return nil, err
	}
	stale, err := m.CheckStaleData(ctx, symbol)
	if err != nil {
		return nil, err
	}
	if stale != nil {
		issues = append(issues, *stale)
	}
	outliers, err := m.CheckPriceOutliers(ctx, symbol)
	if err != nil {
		return nil, err
	}
	issues = append(issues, outliers...)
	anomalies, err := m.CheckVolumeAnomalies(ctx, symbol)
	if err != nil {
		return nil, err
	}
	issues = append(issues, anomalies...)

	for _, issue := range issues {
		fields := []observability.Field{
			observability.F("symbol", symbol),
			observability.F("kind", string(issue.Kind)),
		}
		switch issue.Severity {
		case SeverityCritical:
			m.log.Error(issue.Description, fields...)
		case SeverityWarning:
			m.log.Warn(issue.Description, fields...)
		default:
			m.log.Info(issue.Description, fields...)
		}
	}
	m.recordMetrics(ctx, issues)
	return issues, nil
}

func (m *Monitor) recordMetrics(ctx context.Context, issues []Issue) {
	if m.metrics == nil || len(issues) == 0 {
		return
	}
	counts := make(map[Severity]int64)
	for _, issue := range issues {
		counts[issue.Severity]++
	}
	severities := make([]Severity, 0, len(counts))
	for severity := range counts {
		severities = append(severities, severity)
	}
	sort.Slice(severities, func(i, j int) bool { return severities[i] < severities[j] })
	for _, severity := range severities {
		m.metrics.AddQualityIssues(ctx, string(severity), int(counts[severity]))
	}
}

func (m *Monitor) dailyBars(ctx context.Context, symbol string) ([]schema.MarketData, error) {
	end := m.now()
	return m.source.QueryBars(ctx, symbol, schema.Timeframe1Day, end.Add(-m.cfg.Lookback), end)
}
