package poolapi

import (
	"fmt"
	"io"
	"time"

	"github.com/arcdb/pagepool/pkg/bufferpool"
)

// metricsExporter writes pool occupancy as Prometheus text-format
// gauges and counters, the same exposition shape as the teacher codebase's
// PrometheusExporter, reduced to the metrics a buffer pool actually has
// (no histograms: there's no query latency distribution at this layer).
type metricsExporter struct {
	pool      *bufferpool.Manager
	namespace string
	startTime time.Time
}

func newMetricsExporter(pool *bufferpool.Manager) *metricsExporter {
	return &metricsExporter{pool: pool, namespace: "pagepool", startTime: time.Now()}
}

func (e *metricsExporter) writeMetrics(w io.Writer) error {
	if err := e.writeGauge(w, "uptime_seconds", "Process uptime in seconds", time.Since(e.startTime).Seconds()); err != nil {
		return err
	}

	stats := e.pool.Stats()
	if err := e.writeGauge(w, "capacity_frames", "Total number of frames in the pool", float64(stats.Capacity)); err != nil {
		return err
	}
	if err := e.writeGauge(w, "resident_frames", "Number of frames currently bound to a page", float64(stats.Resident)); err != nil {
		return err
	}
	if err := e.writeGauge(w, "free_frames", "Number of frames on the free list, holding no page", float64(stats.Free)); err != nil {
		return err
	}
	if err := e.writeGauge(w, "pinned_frames", "Number of frames with a nonzero pin count", float64(stats.Pinned)); err != nil {
		return err
	}
	if err := e.writeGauge(w, "evictable_frames", "Number of unpinned, evictable frames", float64(stats.Evictable)); err != nil {
		return err
	}
	if err := e.writeCounter(w, "fetch_hits_total", "Total number of FetchPage calls served without a store read", uint64(stats.Hits)); err != nil {
		return err
	}
	if err := e.writeCounter(w, "fetch_misses_total", "Total number of FetchPage calls that loaded a page from the store", uint64(stats.Misses)); err != nil {
		return err
	}
	if err := e.writeCounter(w, "evictions_total", "Total number of frames evicted to make room for another page", uint64(stats.Evictions)); err != nil {
		return err
	}
	return nil
}

func (e *metricsExporter) writeCounter(w io.Writer, name, help string, value uint64) error {
	metricName := e.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s counter\n%s %d\n", metricName, help, metricName, metricName, value)
	return err
}

func (e *metricsExporter) writeGauge(w io.Writer, name, help string, value float64) error {
	metricName := e.namespace + "_" + name
	_, err := fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s gauge\n%s %g\n", metricName, help, metricName, metricName, value)
	return err
}
