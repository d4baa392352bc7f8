package model

import (
	"errors"
	"testing"
	"time"
)

func TestRetentionPolicy_Validate(t *testing.T) {
	tests := []struct {
		name    string
		policy  RetentionPolicy
		wantErr error
	}{
		{
			name:   "valid policy",
			policy: RetentionPolicy{MaxAge: 365 * 24 * time.Hour, BatchSize: 100},
		},
		{
			name:    "zero max age",
			policy:  RetentionPolicy{BatchSize: 100},
			wantErr: ErrInvalidPolicy,
		},
		{
			name:    "negative max age",
			policy:  RetentionPolicy{MaxAge: -time.Hour, BatchSize: 100},
			wantErr: ErrInvalidPolicy,
		},
		{
			name:    "zero batch size",
			policy:  RetentionPolicy{MaxAge: time.Hour},
			wantErr: ErrInvalidPolicy,
		},
		{
			name:    "negative max batches",
			policy:  RetentionPolicy{MaxAge: time.Hour, BatchSize: 10, MaxBatches: -1},
			wantErr: ErrInvalidPolicy,
		},
		{
			name: "unknown status in filter",
			policy: RetentionPolicy{
				MaxAge:    time.Hour,
				BatchSize: 10,
				Statuses:  []AnalysisStatus{StatusFailed, "paused"},
			},
			wantErr: ErrUnknownAnalysisStatus,
		},
		{
			name: "status filter with known values",
			policy: RetentionPolicy{
				MaxAge:    time.Hour,
				BatchSize: 10,
				Statuses:  FailureStatuses(),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRetentionPolicy_EffectiveMaxBatches(t *testing.T) {
	var p RetentionPolicy
	if got := p.EffectiveMaxBatches(); got != DefaultMaxBatches {
		t.Errorf("EffectiveMaxBatches() = %d, want default %d", got, DefaultMaxBatches)
	}

	p.MaxBatches = 5
	if got := p.EffectiveMaxBatches(); got != 5 {
		t.Errorf("EffectiveMaxBatches() = %d, want 5", got)
	}
}

func TestAlertThresholds_Validate(t *testing.T) {
	tests := []struct {
		name       string
		thresholds AlertThresholds
		wantErr    bool
	}{
		{name: "zero value is valid", thresholds: AlertThresholds{}},
		{
			name:       "full limits",
			thresholds: AlertThresholds{MaxSizeBytes: 1 << 30, MaxDocuments: 100000, MaxDailyGrowth: 1000, WarningRatio: 0.8},
		},
		{name: "negative size", thresholds: AlertThresholds{MaxSizeBytes: -1}, wantErr: true},
		{name: "negative documents", thresholds: AlertThresholds{MaxDocuments: -1}, wantErr: true},
		{name: "negative growth", thresholds: AlertThresholds{MaxDailyGrowth: -0.5}, wantErr: true},
		{name: "ratio above one", thresholds: AlertThresholds{WarningRatio: 1.2}, wantErr: true},
		{name: "ratio of one", thresholds: AlertThresholds{WarningRatio: 1.0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.thresholds.Validate()
			if tt.wantErr && !errors.Is(err, ErrInvalidThresholds) {
				t.Fatalf("Validate() = %v, want ErrInvalidThresholds", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("Validate() unexpected error: %v", err)
			}
		})
	}
}

func TestAlertThresholds_EffectiveWarningRatio(t *testing.T) {
	var th AlertThresholds
	if got := th.EffectiveWarningRatio(); got != DefaultWarningRatio {
		t.Errorf("EffectiveWarningRatio() = %g, want %g", got, DefaultWarningRatio)
	}

	th.WarningRatio = 0.9
	if got := th.EffectiveWarningRatio(); got != 0.9 {
		t.Errorf("EffectiveWarningRatio() = %g, want 0.9", got)
	}
}

func TestBatchError_String(t *testing.T) {
	e := BatchError{Batch: 3, Message: "delete failed"}
	if got := e.String(); got != "batch 3: delete failed" {
		t.Errorf("String() = %q", got)
	}
}
