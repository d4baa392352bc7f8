// Package monitor computes storage usage statistics and evaluates
// threshold alerts. It never mutates data; remediation is up to the
// caller.
package monitor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quantlake/histkeeper/internal/common"
	"github.com/quantlake/histkeeper/internal/model"
	"github.com/quantlake/histkeeper/internal/service"
)

// DefaultGrowthWindowDays is the trailing window used for the average
// daily growth estimate.
const DefaultGrowthWindowDays = 7

// Monitor collects storage statistics and checks alert thresholds.
type Monitor struct {
	store            service.RecordStore
	logger           *slog.Logger
	metrics          *Metrics
	growthWindowDays int
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithGrowthWindow overrides the trailing growth window in days.
func WithGrowthWindow(days int) Option {
	return func(m *Monitor) {
		if days > 0 {
			m.growthWindowDays = days
		}
	}
}

// WithMetrics attaches Prometheus collectors updated on each stats
// collection and alert check.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Monitor) {
		m.metrics = metrics
	}
}

// NewMonitor creates a monitor over the given record store.
func NewMonitor(store service.RecordStore, opts ...Option) *Monitor {
	m := &Monitor{
		store:            store,
		logger:           common.ComponentLogger("monitor"),
		growthWindowDays: DefaultGrowthWindowDays,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// StorageStatistics returns a point-in-time usage snapshot.
func (m *Monitor) StorageStatistics(ctx context.Context) (*model.StorageStatistics, error) {
	stats, err := m.store.CollectStorageStats(ctx, m.growthWindowDays)
	if err != nil {
		return nil, fmt.Errorf("record store unavailable: %w", err)
	}

	if m.metrics != nil {
		m.metrics.ObserveStats(stats)
	}

	m.logger.Debug("storage statistics collected",
		"documents", stats.TotalDocuments,
		"size_bytes", stats.TotalSizeBytes,
		"daily_growth", stats.AvgDailyGrowth)

	return stats, nil
}

// CheckStorageAlerts collects statistics and evaluates them against the
// supplied thresholds. The three checks (size, document count, daily
// growth) are independent: one breach never suppresses the others.
func (m *Monitor) CheckStorageAlerts(ctx context.Context, thresholds model.AlertThresholds) (*model.AlertReport, error) {
	if err := thresholds.Validate(); err != nil {
		return nil, err
	}

	stats, err := m.StorageStatistics(ctx)
	if err != nil {
		return nil, err
	}

	report := EvaluateThresholds(stats, thresholds)

	if m.metrics != nil {
		for _, d := range report.Descriptors {
			m.metrics.RecordAlert(d.Severity)
		}
	}

	if report.AlertCount > 0 || report.WarningCount > 0 {
		m.logger.Warn("storage thresholds breached",
			"alerts", report.AlertCount,
			"warnings", report.WarningCount)
	}

	return report, nil
}

// EvaluateThresholds applies the ratio rule to a statistics snapshot:
// observed/threshold >= 1.0 raises an alert, >= the warning ratio a
// warning, anything below produces no descriptor. A zero threshold
// disables its check.
func EvaluateThresholds(stats *model.StorageStatistics, thresholds model.AlertThresholds) *model.AlertReport {
	report := &model.AlertReport{CheckedAt: stats.CollectedAt}
	warnRatio := thresholds.EffectiveWarningRatio()

	checks := []struct {
		metric    string
		observed  float64
		threshold float64
	}{
		{"storage_size_bytes", float64(stats.TotalSizeBytes), float64(thresholds.MaxSizeBytes)},
		{"document_count", float64(stats.TotalDocuments), float64(thresholds.MaxDocuments)},
		{"daily_growth", stats.AvgDailyGrowth, thresholds.MaxDailyGrowth},
	}

	for _, c := range checks {
		if d := checkRatio(c.metric, c.observed, c.threshold, warnRatio); d != nil {
			report.Descriptors = append(report.Descriptors, *d)
			switch d.Severity {
			case model.SeverityAlert:
				report.AlertCount++
			case model.SeverityWarning:
				report.WarningCount++
			}
		}
	}

	return report
}

func checkRatio(metric string, observed, threshold, warnRatio float64) *model.AlertDescriptor {
	if threshold <= 0 {
		return nil
	}

	ratio := observed / threshold
	desc := &model.AlertDescriptor{
		Metric:    metric,
		Observed:  observed,
		Threshold: threshold,
		Ratio:     ratio,
	}

	switch {
	case ratio >= 1.0:
		desc.Severity = model.SeverityAlert
		desc.Message = fmt.Sprintf("%s (%.2f) exceeds limit (%.2f)", metric, observed, threshold)
	case ratio >= warnRatio:
		desc.Severity = model.SeverityWarning
		desc.Message = fmt.Sprintf("%s (%.2f) approaching limit (%.2f)", metric, observed, threshold)
	default:
		return nil
	}

	return desc
}
