// Package metrics records Prometheus collectors for one pipeline run and pushes
// them to a Pushgateway when the run ends.
package metrics

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/JakeFAU/world-population-etl/internal/population"
)

// Recorder owns a private registry so repeated runs in one process (and tests)
// never collide on the default registerer. A nil *Recorder is a no-op.
type Recorder struct {
	registry *prometheus.Registry

	fetchTotal      *prometheus.CounterVec
	fetchBytesTotal *prometheus.CounterVec
	rowsExtracted   prometheus.Counter
	rowsDropped     *prometheus.CounterVec
	recordsWritten  prometheus.Counter
	rowsLoaded      prometheus.Counter
	warehouseTotal  *prometheus.CounterVec
	runsTotal       *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	lastSuccess     prometheus.Gauge
}

// New registers all collectors on a fresh registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Recorder{
		registry: reg,
		fetchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "popetl_fetch_total",
				Help: "Source page fetches, labeled by site and status code.",
			},
			[]string{"site", "code"},
		),
		fetchBytesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "popetl_fetch_bytes_total",
				Help: "Bytes fetched from the source page, labeled by site.",
			},
			[]string{"site"},
		),
		rowsExtracted: f.NewCounter(prometheus.CounterOpts{
			Name: "popetl_rows_extracted_total",
			Help: "Table rows returned by the extractor.",
		}),
		rowsDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "popetl_rows_dropped_total",
				Help: "Rows discarded by the normalizer, labeled by reason.",
			},
			[]string{"reason"},
		),
		recordsWritten: f.NewCounter(prometheus.CounterOpts{
			Name: "popetl_records_written_total",
			Help: "Records written to the CSV file.",
		}),
		rowsLoaded: f.NewCounter(prometheus.CounterOpts{
			Name: "popetl_rows_loaded_total",
			Help: "Rows inserted into the warehouse.",
		}),
		warehouseTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "popetl_warehouse_loads_total",
				Help: "Warehouse load attempts, labeled by outcome.",
			},
			[]string{"status"},
		),
		runsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "popetl_runs_total",
				Help: "Pipeline runs, labeled by result.",
			},
			[]string{"result"},
		),
		stageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "popetl_stage_duration_seconds",
				Help:    "Duration of each pipeline stage.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage"},
		),
		lastSuccess: f.NewGauge(prometheus.GaugeOpts{
			Name: "popetl_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run.",
		}),
	}
}

// Registry exposes the gatherer, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}

// ObserveFetch records one page fetch.
func (r *Recorder) ObserveFetch(rawURL string, statusCode int, bytesFetched int) {
	if r == nil {
		return
	}
	site := SanitizeSite(rawURL)
	r.fetchTotal.WithLabelValues(site, strconv.Itoa(statusCode)).Inc()
	if bytesFetched > 0 {
		r.fetchBytesTotal.WithLabelValues(site).Add(float64(bytesFetched))
	}
}

// ObserveRows records extractor output and normalizer drops.
func (r *Recorder) ObserveRows(extracted int, dropped map[population.DropReason]int) {
	if r == nil {
		return
	}
	r.rowsExtracted.Add(float64(extracted))
	for reason, n := range dropped {
		r.rowsDropped.WithLabelValues(string(reason)).Add(float64(n))
	}
}

// ObserveWritten records the number of records in the CSV file.
func (r *Recorder) ObserveWritten(n int) {
	if r == nil {
		return
	}
	r.recordsWritten.Add(float64(n))
}

// ObserveLoad records the warehouse outcome.
func (r *Recorder) ObserveLoad(status population.WarehouseStatus, rows int64) {
	if r == nil {
		return
	}
	r.warehouseTotal.WithLabelValues(string(status)).Inc()
	if rows > 0 {
		r.rowsLoaded.Add(float64(rows))
	}
}

// ObserveStage records how long a stage took.
func (r *Recorder) ObserveStage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// ObserveRun records the final result of a run.
func (r *Recorder) ObserveRun(err error, finishedAt time.Time) {
	if r == nil {
		return
	}
	if err != nil {
		r.runsTotal.WithLabelValues("failure").Inc()
		return
	}
	r.runsTotal.WithLabelValues("success").Inc()
	r.lastSuccess.Set(float64(finishedAt.Unix()))
}

// Push sends every collector to the Pushgateway at gatewayURL under job,
// grouped by run_id.
func (r *Recorder) Push(ctx context.Context, gatewayURL, job, runID string) error {
	if r == nil || gatewayURL == "" {
		return nil
	}
	p := push.New(gatewayURL, job).Gatherer(r.registry)
	if runID != "" {
		p = p.Grouping("run_id", runID)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics to %s: %w", gatewayURL, err)
	}
	return nil
}
