package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/quantlake/histkeeper/internal/model"
)

// Metrics contains Prometheus collectors for the storage monitor.
type Metrics struct {
	documents   prometheus.Gauge
	sizeBytes   prometheus.Gauge
	dailyGrowth prometheus.Gauge
	alerts      *prometheus.CounterVec
	collections prometheus.Counter
}

// NewMetrics creates monitor collectors registered on reg. Pass
// prometheus.DefaultRegisterer for production use or a fresh registry
// in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		documents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "histkeeper_storage_documents",
			Help: "Total number of analysis records in the store",
		}),

		sizeBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "histkeeper_storage_size_bytes",
			Help: "Estimated payload size of the record collection in bytes",
		}),

		dailyGrowth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "histkeeper_storage_daily_growth",
			Help: "Average records created per day over the trailing window",
		}),

		alerts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "histkeeper_storage_alerts_total",
			Help: "Total threshold breaches observed, by severity",
		}, []string{"severity"}),

		collections: factory.NewCounter(prometheus.CounterOpts{
			Name: "histkeeper_storage_stats_collections_total",
			Help: "Total number of statistics collections performed",
		}),
	}
}

// ObserveStats records one statistics snapshot.
func (m *Metrics) ObserveStats(stats *model.StorageStatistics) {
	m.documents.Set(float64(stats.TotalDocuments))
	m.sizeBytes.Set(float64(stats.TotalSizeBytes))
	m.dailyGrowth.Set(stats.AvgDailyGrowth)
	m.collections.Inc()
}

// RecordAlert counts one threshold breach.
func (m *Metrics) RecordAlert(severity model.AlertSeverity) {
	m.alerts.WithLabelValues(string(severity)).Inc()
}
