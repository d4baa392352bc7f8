package model

import (
	"errors"
	"testing"
	"time"
)

func TestBackupManifest_CheckVersion(t *testing.T) {
	tests := []struct {
		version string
		wantErr bool
	}{
		{version: "1.0"},
		{version: "1.5"},
		{version: "1"},
		{version: "2.0", wantErr: true},
		{version: "0.9", wantErr: true},
		{version: "", wantErr: true},
		{version: "garbage", wantErr: true},
	}

	for _, tt := range tests {
		t.Run("version "+tt.version, func(t *testing.T) {
			m := BackupManifest{FormatVersion: tt.version}
			err := m.CheckVersion()
			if tt.wantErr && !errors.Is(err, ErrUnsupportedSnapshot) {
				t.Fatalf("CheckVersion() = %v, want ErrUnsupportedSnapshot", err)
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("CheckVersion() unexpected error: %v", err)
			}
		})
	}
}

func TestExportFilter_Describe(t *testing.T) {
	status := StatusCompleted
	market := MarketUSStock
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		filter ExportFilter
		want   string
	}{
		{name: "empty filter", filter: ExportFilter{}, want: "all"},
		{
			name:   "status only",
			filter: ExportFilter{Status: &status},
			want:   "status=completed",
		},
		{
			name:   "status and market",
			filter: ExportFilter{Status: &status, MarketType: &market},
			want:   "status=completed,market_type=us_stock",
		},
		{
			name:   "date bound",
			filter: ExportFilter{DateFrom: &from},
			want:   "from=2024-01-01T00:00:00Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Describe(); got != tt.want {
				t.Errorf("Describe() = %q, want %q", got, tt.want)
			}
		})
	}
}
