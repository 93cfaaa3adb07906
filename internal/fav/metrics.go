package fav

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics counts sync engine activity. A nil *Metrics records nothing.
type Metrics struct {
	merges        prometheus.Counter
	mergeFailures prometheus.Counter
	migrated      prometheus.Counter
	readFailures  *prometheus.CounterVec
	writes        *prometheus.CounterVec
	writeFailures *prometheus.CounterVec
	snapshotSize  prometheus.Gauge
}

// NewMetrics registers the engine's collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		merges: f.NewCounter(prometheus.CounterOpts{
			Namespace: "favsync",
			Name:      "merges_total",
			Help:      "Successful migrations of local favorites into the remote tier.",
		}),
		mergeFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "favsync",
			Name:      "merge_failures_total",
			Help:      "Merge batch commits that failed and left local favorites in place.",
		}),
		migrated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "favsync",
			Name:      "migrated_records_total",
			Help:      "Local favorites written to the remote tier by merges.",
		}),
		readFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "favsync",
			Name:      "tier_read_failures_total",
			Help:      "Tier reads that failed and fell back to best-available data.",
		}, []string{"tier"}),
		writes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "favsync",
			Name:      "tier_writes_total",
			Help:      "Confirmed add/remove writes per tier.",
		}, []string{"op", "tier"}),
		writeFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "favsync",
			Name:      "tier_write_failures_total",
			Help:      "Add/remove writes that failed and were reported to the caller.",
		}, []string{"op", "tier"}),
		snapshotSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "favsync",
			Name:      "snapshot_size",
			Help:      "Number of favorites in the current snapshot.",
		}),
	}
}

func (m *Metrics) mergeSucceeded(n int) {
	if m == nil {
		return
	}
	m.merges.Inc()
	m.migrated.Add(float64(n))
}

func (m *Metrics) mergeFailed() {
	if m == nil {
		return
	}
	m.mergeFailures.Inc()
}

func (m *Metrics) readFailed(tier Tier) {
	if m == nil {
		return
	}
	m.readFailures.WithLabelValues(string(tier)).Inc()
}

func (m *Metrics) wrote(op string, tier Tier, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.writeFailures.WithLabelValues(op, string(tier)).Inc()
		return
	}
	m.writes.WithLabelValues(op, string(tier)).Inc()
}

func (m *Metrics) observeSnapshot(n int) {
	if m == nil {
		return
	}
	m.snapshotSize.Set(float64(n))
}
