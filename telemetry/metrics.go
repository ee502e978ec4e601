package telemetry

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.37.0"
)

const (
	meterName = "github.com/wolfeidau/vid-cache"
)

// MetricsConfig configures the metrics system.
type MetricsConfig struct {
	// ServiceName is the name of the service for resource attributes.
	ServiceName string

	// ServiceVersion is the version of the service.
	ServiceVersion string

	// OTLPEndpoint is the OTLP gRPC endpoint (e.g., "localhost:4317").
	// If empty, OTLP export is disabled.
	OTLPEndpoint string

	// EnablePrometheus enables the Prometheus /metrics endpoint.
	EnablePrometheus bool

	// FlushInterval is how often to export metrics (default: 10s).
	FlushInterval time.Duration
}

// Metrics holds the OpenTelemetry metric instruments.
type Metrics struct {
	fetchTotal metric.Int64Counter

	produceTotal    metric.Int64Counter
	produceDuration metric.Float64Histogram
	produceBytes    metric.Int64Counter

	storeOpsTotal   metric.Int64Counter
	storeOpDuration metric.Float64Histogram
	storeEntries    metric.Int64Gauge

	saveTotal        metric.Int64Counter
	saveEntriesTotal metric.Int64Counter
	saveDuration     metric.Float64Histogram

	updateRunsTotal   metric.Int64Counter
	updatePathsTotal  metric.Int64Counter
	updateErrorsTotal metric.Int64Counter
	updateRunDuration metric.Float64Histogram

	pruneEvictedTotal metric.Int64Counter
	pruneDuration     metric.Float64Histogram

	meterProvider *sdkmetric.MeterProvider
	promHandler   http.Handler
}

var (
	globalMetrics *Metrics
	initOnce      sync.Once
	initErr       error
)

// InitMetrics initializes the OpenTelemetry metrics system.
// Returns a shutdown function that should be called on application exit.
// Uses sync.Once to ensure single initialisation.
func InitMetrics(ctx context.Context, cfg MetricsConfig) (shutdown func(context.Context) error, err error) {
	initOnce.Do(func() {
		initErr = doInitMetrics(ctx, cfg)
	})

	if initErr != nil {
		return nil, initErr
	}

	return shutdownMetrics, nil
}

func doInitMetrics(ctx context.Context, cfg MetricsConfig) error {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "vidcache"
	}
	if cfg.FlushInterval == 0 {
		cfg.FlushInterval = 10 * time.Second
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return err
	}

	var readers []sdkmetric.Reader
	var promHandler http.Handler

	if cfg.OTLPEndpoint != "" {
		otlpExporter, err := otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
			otlpmetricgrpc.WithInsecure(),
		)
		if err != nil {
			return err
		}
		readers = append(readers, sdkmetric.NewPeriodicReader(otlpExporter,
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	if cfg.EnablePrometheus {
		promExp, err := promexporter.New()
		if err != nil {
			return err
		}
		readers = append(readers, promExp)
		promHandler = promhttp.Handler()
	}

	// Instruments still need a reader when nothing is exported.
	if len(readers) == 0 {
		readers = append(readers, sdkmetric.NewPeriodicReader(noopExporter{},
			sdkmetric.WithInterval(cfg.FlushInterval),
		))
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	for _, r := range readers {
		opts = append(opts, sdkmetric.WithReader(r))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	m, err := newMetrics(mp.Meter(meterName))
	if err != nil {
		return err
	}
	m.meterProvider = mp
	m.promHandler = promHandler

	globalMetrics = m
	return nil
}

var durationBuckets = []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}

func newMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)

	m.fetchTotal, err = meter.Int64Counter(
		"vidcache_fetch_total",
		metric.WithDescription("Total cache lookups by result"),
		metric.WithUnit("{lookup}"),
	)
	if err != nil {
		return nil, err
	}

	m.produceTotal, err = meter.Int64Counter(
		"vidcache_produce_total",
		metric.WithDescription("Total fingerprints produced by outcome"),
		metric.WithUnit("{file}"),
	)
	if err != nil {
		return nil, err
	}

	m.produceDuration, err = meter.Float64Histogram(
		"vidcache_produce_duration_seconds",
		metric.WithDescription("Time taken to fingerprint a file"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	m.produceBytes, err = meter.Int64Counter(
		"vidcache_produce_bytes_total",
		metric.WithDescription("Total bytes of video fingerprinted"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	m.storeOpsTotal, err = meter.Int64Counter(
		"vidcache_store_ops_total",
		metric.WithDescription("Total store operations"),
		metric.WithUnit("{op}"),
	)
	if err != nil {
		return nil, err
	}

	m.storeOpDuration, err = meter.Float64Histogram(
		"vidcache_store_op_duration_seconds",
		metric.WithDescription("Duration of store operations"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	m.storeEntries, err = meter.Int64Gauge(
		"vidcache_store_entries",
		metric.WithDescription("Current store entries by record state"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	m.saveTotal, err = meter.Int64Counter(
		"vidcache_save_total",
		metric.WithDescription("Total store saves"),
		metric.WithUnit("{save}"),
	)
	if err != nil {
		return nil, err
	}

	m.saveEntriesTotal, err = meter.Int64Counter(
		"vidcache_save_entries_total",
		metric.WithDescription("Total entries written or deleted by saves"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	m.saveDuration, err = meter.Float64Histogram(
		"vidcache_save_duration_seconds",
		metric.WithDescription("Duration of store saves"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	m.updateRunsTotal, err = meter.Int64Counter(
		"vidcache_update_runs_total",
		metric.WithDescription("Total bulk update runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, err
	}

	m.updatePathsTotal, err = meter.Int64Counter(
		"vidcache_update_paths_total",
		metric.WithDescription("Total paths visited by bulk updates"),
		metric.WithUnit("{path}"),
	)
	if err != nil {
		return nil, err
	}

	m.updateErrorsTotal, err = meter.Int64Counter(
		"vidcache_update_errors_total",
		metric.WithDescription("Total non-fatal errors reported by bulk updates"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	m.updateRunDuration, err = meter.Float64Histogram(
		"vidcache_update_run_duration_seconds",
		metric.WithDescription("Duration of bulk update runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	m.pruneEvictedTotal, err = meter.Int64Counter(
		"vidcache_prune_evicted_total",
		metric.WithDescription("Total entries evicted because their file vanished"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return nil, err
	}

	m.pruneDuration, err = meter.Float64Histogram(
		"vidcache_prune_duration_seconds",
		metric.WithDescription("Duration of prune runs"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	)
	if err != nil {
		return nil, err
	}

	return &m, nil
}

func shutdownMetrics(ctx context.Context) error {
	if globalMetrics == nil {
		return nil
	}
	err := globalMetrics.meterProvider.Shutdown(ctx)
	globalMetrics = nil
	return err
}

// RecordFetch records the result of a cache lookup.
func RecordFetch(ctx context.Context, result FetchResult) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.fetchTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("result", string(result))))
}

// RecordProduce records a Producer run. outcome is "success" or a failure kind.
func RecordProduce(ctx context.Context, outcome string, duration time.Duration, bytes int64) {
	if globalMetrics == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	globalMetrics.produceTotal.Add(ctx, 1, attrs)
	globalMetrics.produceDuration.Record(ctx, duration.Seconds(), attrs)
	if bytes > 0 {
		globalMetrics.produceBytes.Add(ctx, bytes, attrs)
	}
}

// RecordStoreOp records a store operation.
func RecordStoreOp(ctx context.Context, op, outcome string, duration time.Duration) {
	if globalMetrics == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("outcome", outcome),
	)
	globalMetrics.storeOpsTotal.Add(ctx, 1, attrs)
	globalMetrics.storeOpDuration.Record(ctx, duration.Seconds(), attrs)
}

// UpdateStoreEntries sets the current number of successful and failed records.
func UpdateStoreEntries(ctx context.Context, success, failure int) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.storeEntries.Record(ctx, int64(success), metric.WithAttributes(attribute.String("state", "success")))
	globalMetrics.storeEntries.Record(ctx, int64(failure), metric.WithAttributes(attribute.String("state", "failure")))
}

// RecordSave records a store save that flushed entries.
func RecordSave(ctx context.Context, entries int, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.saveTotal.Add(ctx, 1)
	globalMetrics.saveEntriesTotal.Add(ctx, int64(entries))
	globalMetrics.saveDuration.Record(ctx, duration.Seconds())
}

// RecordUpdateRun records a bulk update run. mode is "sequential" or "parallel".
func RecordUpdateRun(ctx context.Context, mode string, paths, errs int, duration time.Duration) {
	if globalMetrics == nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("mode", mode))
	globalMetrics.updateRunsTotal.Add(ctx, 1, attrs)
	globalMetrics.updatePathsTotal.Add(ctx, int64(paths), attrs)
	globalMetrics.updateErrorsTotal.Add(ctx, int64(errs), attrs)
	globalMetrics.updateRunDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordPrune records a prune run.
func RecordPrune(ctx context.Context, evicted int, duration time.Duration) {
	if globalMetrics == nil {
		return
	}
	globalMetrics.pruneEvictedTotal.Add(ctx, int64(evicted))
	globalMetrics.pruneDuration.Record(ctx, duration.Seconds())
}

// PrometheusHandler returns the Prometheus metrics HTTP handler.
// Returns a handler that returns 404 if Prometheus export is not enabled,
// allowing safe registration regardless of initialization order.
func PrometheusHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if globalMetrics == nil || globalMetrics.promHandler == nil {
			http.NotFound(w, r)
			return
		}
		globalMetrics.promHandler.ServeHTTP(w, r)
	})
}

// noopExporter is a no-op metrics exporter for when no exporters are configured.
type noopExporter struct{}

func (noopExporter) Temporality(_ sdkmetric.InstrumentKind) metricdata.Temporality {
	return metricdata.CumulativeTemporality
}

func (noopExporter) Aggregation(_ sdkmetric.InstrumentKind) sdkmetric.Aggregation {
	return nil
}

func (noopExporter) Export(_ context.Context, _ *metricdata.ResourceMetrics) error {
	return nil
}

func (noopExporter) ForceFlush(_ context.Context) error {
	return nil
}

func (noopExporter) Shutdown(_ context.Context) error {
	return nil
}
