package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// SnapshotFormatVersion is the manifest version written by export.
// Import accepts any 1.x snapshot and rejects newer majors.
const SnapshotFormatVersion = "1.0"

// ErrUnsupportedSnapshot marks a snapshot whose format version is newer
// than this build understands.
var ErrUnsupportedSnapshot = errors.New("unsupported snapshot format version")

// BackupManifest is the first line of every snapshot. TotalRecords is
// computed eagerly before streaming, so it always matches a complete
// export; import compares it against the lines actually read.
type BackupManifest struct {
	ExportTimestamp time.Time `json:"export_timestamp"`
	TotalRecords    int64     `json:"total_records"`
	FormatVersion   string    `json:"format_version"`
	Filter          string    `json:"filters_applied"`
}

// CheckVersion rejects snapshots from a newer major format.
func (m BackupManifest) CheckVersion() error {
	major, _, _ := strings.Cut(m.FormatVersion, ".")
	if major != "1" {
		return fmt.Errorf("%w: %q", ErrUnsupportedSnapshot, m.FormatVersion)
	}
	return nil
}

// ExportFilter narrows an export to a subset of records. All fields are
// optional; the date interval is half-open: [DateFrom, DateTo).
type ExportFilter struct {
	Status     *AnalysisStatus
	MarketType *MarketType
	DateFrom   *time.Time
	DateTo     *time.Time
}

// Describe renders the filter for the manifest. An unfiltered export
// reads "all".
func (f ExportFilter) Describe() string {
	var parts []string
	if f.Status != nil {
		parts = append(parts, "status="+string(*f.Status))
	}
	if f.MarketType != nil {
		parts = append(parts, "market_type="+string(*f.MarketType))
	}
	if f.DateFrom != nil {
		parts = append(parts, "from="+f.DateFrom.Format(time.RFC3339))
	}
	if f.DateTo != nil {
		parts = append(parts, "to="+f.DateTo.Format(time.RFC3339))
	}
	if len(parts) == 0 {
		return "all"
	}
	return strings.Join(parts, ",")
}

// ExportResult summarizes one export run.
type ExportResult struct {
	ExportedCount int64         `json:"exported_count"`
	BytesWritten  int64         `json:"bytes_written"`
	Path          string        `json:"path"`
	Compressed    bool          `json:"compressed"`
	Duration      time.Duration `json:"duration"`
}

// ImportResult summarizes one import run. Errors holds skipped-record
// causes; Warnings holds non-fatal integrity findings such as a
// manifest count mismatch.
type ImportResult struct {
	ImportedCount int64         `json:"imported_count"`
	SkippedCount  int64         `json:"skipped_count"`
	Errors        []string      `json:"errors,omitempty"`
	Warnings      []string      `json:"warnings,omitempty"`
	Duration      time.Duration `json:"duration"`
}
