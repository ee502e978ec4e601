package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// setupTestMetrics installs a Metrics instance backed by a ManualReader.
func setupTestMetrics(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	m, err := newMetrics(mp.Meter(meterName))
	require.NoError(t, err)
	m.meterProvider = mp
	globalMetrics = m

	t.Cleanup(func() {
		_ = mp.Shutdown(context.Background())
		globalMetrics = nil
	})

	return reader
}

// collectMetrics reads all metrics from the ManualReader.
func collectMetrics(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	return rm
}

// findCounter finds a counter metric by name and returns its data points.
func findCounter(rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
					return sum.DataPoints
				}
			}
		}
	}
	return nil
}

// findHistogram finds a histogram metric by name and returns its data points.
func findHistogram(rm metricdata.ResourceMetrics, name string) []metricdata.HistogramDataPoint[float64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if hist, ok := m.Data.(metricdata.Histogram[float64]); ok {
					return hist.DataPoints
				}
			}
		}
	}
	return nil
}

func findGauge(rm metricdata.ResourceMetrics, name string) []metricdata.DataPoint[int64] {
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name == name {
				if g, ok := m.Data.(metricdata.Gauge[int64]); ok {
					return g.DataPoints
				}
			}
		}
	}
	return nil
}

// hasAttr checks if a data point's attribute set contains the given key-value pair.
func hasAttr(attrs attribute.Set, key, value string) bool {
	v, ok := attrs.Value(attribute.Key(key))
	return ok && v.AsString() == value
}

func TestRecordFetch(t *testing.T) {
	reader := setupTestMetrics(t)
	ctx := context.Background()

	RecordFetch(ctx, FetchHit)
	RecordFetch(ctx, FetchHit)
	RecordFetch(ctx, FetchMiss)

	rm := collectMetrics(t, reader)
	dps := findCounter(rm, "vidcache_fetch_total")
	require.Len(t, dps, 2)

	for _, dp := range dps {
		switch {
		case hasAttr(dp.Attributes, "result", "hit"):
			require.EqualValues(t, 2, dp.Value)
		case hasAttr(dp.Attributes, "result", "miss"):
			require.EqualValues(t, 1, dp.Value)
		default:
			t.Fatalf("unexpected attributes %v", dp.Attributes)
		}
	}
}

func TestRecordProduce(t *testing.T) {
	reader := setupTestMetrics(t)
	ctx := context.Background()

	RecordProduce(ctx, "success", 20*time.Millisecond, 4096)
	RecordProduce(ctx, "video_length", time.Millisecond, 0)

	rm := collectMetrics(t, reader)

	dps := findCounter(rm, "vidcache_produce_total")
	require.Len(t, dps, 2)

	bytesDps := findCounter(rm, "vidcache_produce_bytes_total")
	require.Len(t, bytesDps, 1, "zero byte runs are not counted")
	require.EqualValues(t, 4096, bytesDps[0].Value)
	require.True(t, hasAttr(bytesDps[0].Attributes, "outcome", "success"))

	histDps := findHistogram(rm, "vidcache_produce_duration_seconds")
	require.Len(t, histDps, 2)
}

func TestRecordStoreOp(t *testing.T) {
	reader := setupTestMetrics(t)

	RecordStoreOp(context.Background(), "put", "success", time.Millisecond)

	rm := collectMetrics(t, reader)
	dps := findCounter(rm, "vidcache_store_ops_total")
	require.Len(t, dps, 1)
	require.True(t, hasAttr(dps[0].Attributes, "op", "put"))
	require.True(t, hasAttr(dps[0].Attributes, "outcome", "success"))

	hist := findHistogram(rm, "vidcache_store_op_duration_seconds")
	require.Len(t, hist, 1)
	require.EqualValues(t, 1, hist[0].Count)
}

func TestUpdateStoreEntries(t *testing.T) {
	reader := setupTestMetrics(t)

	UpdateStoreEntries(context.Background(), 7, 2)

	rm := collectMetrics(t, reader)
	dps := findGauge(rm, "vidcache_store_entries")
	require.Len(t, dps, 2)
	for _, dp := range dps {
		if hasAttr(dp.Attributes, "state", "success") {
			require.EqualValues(t, 7, dp.Value)
		} else {
			require.True(t, hasAttr(dp.Attributes, "state", "failure"))
			require.EqualValues(t, 2, dp.Value)
		}
	}
}

func TestRecordSave(t *testing.T) {
	reader := setupTestMetrics(t)
	ctx := context.Background()

	RecordSave(ctx, 10, 5*time.Millisecond)
	RecordSave(ctx, 3, 5*time.Millisecond)

	rm := collectMetrics(t, reader)
	saves := findCounter(rm, "vidcache_save_total")
	require.Len(t, saves, 1)
	require.EqualValues(t, 2, saves[0].Value)

	entries := findCounter(rm, "vidcache_save_entries_total")
	require.Len(t, entries, 1)
	require.EqualValues(t, 13, entries[0].Value)
}

func TestRecordUpdateRun(t *testing.T) {
	reader := setupTestMetrics(t)

	RecordUpdateRun(context.Background(), "parallel", 12, 3, time.Second)

	rm := collectMetrics(t, reader)
	paths := findCounter(rm, "vidcache_update_paths_total")
	require.Len(t, paths, 1)
	require.EqualValues(t, 12, paths[0].Value)
	require.True(t, hasAttr(paths[0].Attributes, "mode", "parallel"))

	errs := findCounter(rm, "vidcache_update_errors_total")
	require.Len(t, errs, 1)
	require.EqualValues(t, 3, errs[0].Value)
}

func TestRecordPrune(t *testing.T) {
	reader := setupTestMetrics(t)

	RecordPrune(context.Background(), 4, 10*time.Millisecond)

	rm := collectMetrics(t, reader)
	dps := findCounter(rm, "vidcache_prune_evicted_total")
	require.Len(t, dps, 1)
	require.EqualValues(t, 4, dps[0].Value)
}

func TestRecordFunctions_NilMetrics(t *testing.T) {
	globalMetrics = nil
	ctx := context.Background()

	require.NotPanics(t, func() {
		RecordFetch(ctx, FetchHit)
		RecordProduce(ctx, "success", time.Second, 1)
		RecordStoreOp(ctx, "get", "success", time.Second)
		UpdateStoreEntries(ctx, 1, 1)
		RecordSave(ctx, 1, time.Second)
		RecordUpdateRun(ctx, "sequential", 1, 0, time.Second)
		RecordPrune(ctx, 1, time.Second)
	})
}

func TestPrometheusHandler_NotEnabled(t *testing.T) {
	globalMetrics = nil

	rec := httptest.NewRecorder()
	PrometheusHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)
}
