package observability

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/yungbote/healthgraph-etl/internal/platform/logger"
)

// Metrics holds the ETL collectors on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	reg *prometheus.Registry

	subjects         *prometheus.CounterVec
	runDuration      prometheus.Histogram
	runs             *prometheus.CounterVec
	skipped          *prometheus.CounterVec
	providerRequests *prometheus.CounterVec
	watermark        prometheus.Gauge
	ingestDuration   prometheus.Histogram
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		reg: reg,
		subjects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_subjects_total",
			Help: "Subject ingestion attempts by outcome.",
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "etl_run_duration_seconds",
			Help:    "Wall time of a scheduler run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_runs_total",
			Help: "Scheduler runs by terminal state.",
		}, []string{"state"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_fragments_skipped_total",
			Help: "Document fragments dropped by data-quality gates.",
		}, []string{"concept", "reason"}),
		providerRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "etl_provider_requests_total",
			Help: "Provider fetches by status.",
		}, []string{"status"}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "etl_watermark_timestamp_seconds",
			Help: "Unix time of the last committed watermark.",
		}),
		ingestDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "etl_ingest_duration_seconds",
			Help:    "Graph write time per subject.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
	}
	reg.MustRegister(
		m.subjects, m.runDuration, m.runs, m.skipped, m.providerRequests, m.watermark, m.ingestDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *Metrics) IncSubject(outcome string) {
	if m == nil {
		return
	}
	m.subjects.WithLabelValues(orUnknown(outcome)).Inc()
}

func (m *Metrics) ObserveRun(state string, dur time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(orUnknown(state)).Inc()
	m.runDuration.Observe(dur.Seconds())
}

func (m *Metrics) IncSkipped(concept, reason string) {
	if m == nil {
		return
	}
	m.skipped.WithLabelValues(orUnknown(concept), orUnknown(reason)).Inc()
}

func (m *Metrics) IncProviderRequest(status string) {
	if m == nil {
		return
	}
	m.providerRequests.WithLabelValues(orUnknown(status)).Inc()
}

func (m *Metrics) SetWatermark(t time.Time) {
	if m == nil || t.IsZero() {
		return
	}
	m.watermark.Set(float64(t.Unix()))
}

func (m *Metrics) ObserveIngest(dur time.Duration) {
	if m == nil {
		return
	}
	m.ingestDuration.Observe(dur.Seconds())
}

// Push sends the registry to a Pushgateway. One-shot runs exit before a
// scrape could see them.
func (m *Metrics) Push(ctx context.Context, log *logger.Logger, url, job string) {
	if m == nil {
		return
	}
	url = strings.TrimSpace(url)
	if url == "" {
		return
	}
	if job == "" {
		job = "healthgraph_etl"
	}
	if err := push.New(url, job).Gatherer(m.reg).PushContext(ctx); err != nil && log != nil {
		log.Warn("metrics push failed", "error", err, "url", url)
	}
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}
