package model

import (
	"errors"
	"fmt"
	"time"
)

// Configuration errors. Both fail fast before any store query runs.
var (
	ErrInvalidPolicy     = errors.New("invalid retention policy")
	ErrInvalidThresholds = errors.New("invalid alert thresholds")
)

// DefaultMaxBatches bounds a single cleanup run. The candidate re-query
// strategy would otherwise loop forever against a store that keeps
// failing a batch.
const DefaultMaxBatches = 1000

// RetentionPolicy determines which records a cleanup run may delete.
type RetentionPolicy struct {
	// MaxAge is how old a record must be before it is eligible.
	MaxAge time.Duration

	// Statuses restricts cleanup to the listed statuses. Empty means
	// all statuses are eligible.
	Statuses []AnalysisStatus

	// BatchSize is the number of records deleted per store call.
	BatchSize int

	// DryRun counts eligible records without deleting anything.
	DryRun bool

	// MaxBatches caps the number of batches in one run. Zero selects
	// DefaultMaxBatches.
	MaxBatches int
}

// Validate checks the policy invariants.
func (p RetentionPolicy) Validate() error {
	if p.MaxAge <= 0 {
		return fmt.Errorf("%w: max_age must be positive, got %s", ErrInvalidPolicy, p.MaxAge)
	}
	if p.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidPolicy, p.BatchSize)
	}
	if p.MaxBatches < 0 {
		return fmt.Errorf("%w: max_batches cannot be negative, got %d", ErrInvalidPolicy, p.MaxBatches)
	}
	for _, s := range p.Statuses {
		if !s.IsValid() {
			return fmt.Errorf("%w: %q", ErrUnknownAnalysisStatus, s)
		}
	}
	return nil
}

// EffectiveMaxBatches resolves the batch cap, applying the default.
func (p RetentionPolicy) EffectiveMaxBatches() int {
	if p.MaxBatches > 0 {
		return p.MaxBatches
	}
	return DefaultMaxBatches
}

// BatchError records a store-level failure for one batch of a cleanup
// run. Cleanup is best-effort: the run continues past these.
type BatchError struct {
	Batch   int    `json:"batch"`
	Message string `json:"message"`
}

func (e BatchError) String() string {
	return fmt.Sprintf("batch %d: %s", e.Batch, e.Message)
}

// CleanupResult summarizes one cleanup run.
type CleanupResult struct {
	TotalFound       int64         `json:"total_found"`
	TotalDeleted     int64         `json:"total_deleted"`
	BatchesProcessed int           `json:"batches_processed"`
	DryRun           bool          `json:"dry_run"`
	Duration         time.Duration `json:"duration"`
	Errors           []BatchError  `json:"errors,omitempty"`
}

// DefaultWarningRatio is the fraction of a hard limit at which a
// warning (rather than an alert) is raised.
const DefaultWarningRatio = 0.8

// AlertThresholds configures the storage alert checks. A zero value for
// any limit disables that check.
type AlertThresholds struct {
	MaxSizeBytes   int64
	MaxDocuments   int64
	MaxDailyGrowth float64

	// WarningRatio is the observed/threshold ratio at which a warning
	// fires. Zero selects DefaultWarningRatio.
	WarningRatio float64
}

// Validate checks the threshold invariants.
func (t AlertThresholds) Validate() error {
	if t.MaxSizeBytes < 0 || t.MaxDocuments < 0 || t.MaxDailyGrowth < 0 {
		return fmt.Errorf("%w: limits cannot be negative", ErrInvalidThresholds)
	}
	if t.WarningRatio < 0 || t.WarningRatio > 1 {
		return fmt.Errorf("%w: warning_ratio must be within (0, 1], got %g", ErrInvalidThresholds, t.WarningRatio)
	}
	return nil
}

// EffectiveWarningRatio resolves the warning ratio, applying the default.
func (t AlertThresholds) EffectiveWarningRatio() float64 {
	if t.WarningRatio > 0 {
		return t.WarningRatio
	}
	return DefaultWarningRatio
}
