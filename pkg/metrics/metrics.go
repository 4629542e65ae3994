// Package metrics holds the indexer's Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sync phases used as the "phase" label.
const (
	PhaseInitial = "initial"
	PhaseCatchup = "catchup"
	PhaseLive    = "live"
)

type Metrics struct {
	registry *prometheus.Registry

	BlocksProcessed *prometheus.CounterVec
	BlockDuration   prometheus.Histogram
	HeadBlock       prometheus.Gauge
	Forks           prometheus.Counter
	BlocksPopped    prometheus.Counter
	AccountsFlushed prometheus.Counter
	PostsFlushed    *prometheus.CounterVec
	AuditRows       *prometheus.CounterVec
}

// New builds the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		BlocksProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "worthx_blocks_processed_total", Help: "Blocks applied"},
			[]string{"phase"},
		),
		BlockDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "worthx_live_block_duration_seconds",
			Help:    "Time to apply and flush one live block",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		HeadBlock: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "worthx_head_block",
			Help: "Last committed block height",
		}),
		Forks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worthx_forks_total",
			Help: "Stream forks recovered from",
		}),
		BlocksPopped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worthx_blocks_popped_total",
			Help: "Stored blocks removed by fork recovery",
		}),
		AccountsFlushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "worthx_accounts_flushed_total",
			Help: "Account cache rows refreshed from the chain",
		}),
		PostsFlushed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "worthx_posts_flushed_total", Help: "Post cache rows refreshed, by dirty level"},
			[]string{"level"},
		),
		AuditRows: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "worthx_audit_rows_total", Help: "Rows handled by consistency audits"},
			[]string{"job", "outcome"},
		),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.BlocksProcessed,
		m.BlockDuration,
		m.HeadBlock,
		m.Forks,
		m.BlocksPopped,
		m.AccountsFlushed,
		m.PostsFlushed,
		m.AuditRows,
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Committed records blocks committed up to head.
func (m *Metrics) Committed(phase string, blocks int, head uint64) {
	m.BlocksProcessed.WithLabelValues(phase).Add(float64(blocks))
	m.HeadBlock.Set(float64(head))
}

// LiveBlock records the latency of one live block.
func (m *Metrics) LiveBlock(d time.Duration) {
	m.BlockDuration.Observe(d.Seconds())
}

// PostLevels adds flushed post counts keyed by level name.
func (m *Metrics) PostLevels(counts map[string]int) {
	for level, n := range counts {
		if n > 0 {
			m.PostsFlushed.WithLabelValues(level).Add(float64(n))
		}
	}
}

// Audit records audit outcomes for a job.
func (m *Metrics) Audit(job string, repaired, failed int) {
	m.AuditRows.WithLabelValues(job, "repaired").Add(float64(repaired))
	m.AuditRows.WithLabelValues(job, "failed").Add(float64(failed))
}

// Fork records a recovered fork and the stored blocks it removed.
func (m *Metrics) Fork(popped int) {
	m.Forks.Inc()
	m.BlocksPopped.Add(float64(popped))
}

func (m *Metrics) Accounts(n int) {
	m.AccountsFlushed.Add(float64(n))
}
