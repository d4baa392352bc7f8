package model

import "time"

// StorageStatistics is a point-in-time snapshot of collection usage.
// It is computed on demand and never persisted.
type StorageStatistics struct {
	TotalDocuments     int64                    `json:"total_documents"`
	TotalSizeBytes     int64                    `json:"total_size_bytes"`
	FileSizeBytes      int64                    `json:"file_size_bytes"`
	IndexOverheadBytes int64                    `json:"index_overhead_bytes"`
	AvgDocSizeBytes    int64                    `json:"avg_doc_size_bytes"`
	StatusCounts       map[AnalysisStatus]int64 `json:"status_counts"`
	MarketCounts       map[MarketType]int64     `json:"market_counts"`
	AvgDailyGrowth     float64                  `json:"avg_daily_growth"`
	GrowthWindowDays   int                      `json:"growth_window_days"`
	OldestRecord       *time.Time               `json:"oldest_record,omitempty"`
	NewestRecord       *time.Time               `json:"newest_record,omitempty"`
	CollectedAt        time.Time                `json:"collected_at"`
}

// AlertSeverity grades a threshold breach.
type AlertSeverity string

// Alert severities.
const (
	SeverityWarning AlertSeverity = "warning"
	SeverityAlert   AlertSeverity = "alert"
)

// AlertDescriptor describes one metric at or near its threshold.
type AlertDescriptor struct {
	Metric    string        `json:"metric"`
	Observed  float64       `json:"observed"`
	Threshold float64       `json:"threshold"`
	Ratio     float64       `json:"ratio"`
	Severity  AlertSeverity `json:"severity"`
	Message   string        `json:"message"`
}

// AlertReport aggregates the outcome of one alert check.
type AlertReport struct {
	AlertCount   int               `json:"alert_count"`
	WarningCount int               `json:"warning_count"`
	Descriptors  []AlertDescriptor `json:"descriptors,omitempty"`
	CheckedAt    time.Time         `json:"checked_at"`
}
