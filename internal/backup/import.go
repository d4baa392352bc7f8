package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"

	"github.com/quantlake/histkeeper/internal/model"
)

// maxLineBytes bounds a single snapshot line. Result blobs can be
// large, but anything past this is a corrupt stream.
const maxLineBytes = 16 * 1024 * 1024

// gzipMagic is the two-byte gzip stream header.
var gzipMagic = []byte{0x1f, 0x8b}

// Import reads a snapshot at path and upserts its records by ID, so
// importing the same snapshot twice is a no-op update rather than
// duplication. Compression is auto-detected. Invalid records are
// skipped and recorded; a manifest/stream count mismatch is reported
// as a non-fatal integrity warning. Only an unreadable source or an
// unsupported snapshot format aborts the run.
func (e *Engine) Import(ctx context.Context, path string, skipValidation bool) (*model.ImportResult, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("import path cannot be empty")
	}

	start := e.now()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader, err := snapshotReader(f)
	if err != nil {
		return nil, err
	}

	result := &model.ImportResult{}

	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	// totalExpected is -1 when the snapshot carries no usable manifest.
	totalExpected := int64(-1)
	var recordsRead int64
	sawManifest := false
	lineNum := 0
	cancelled := false

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			cancelled = true
		default:
		}
		if cancelled {
			break
		}

		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if !sawManifest {
			sawManifest = true
			manifest, ok := parseManifest(line)
			if ok {
				if err := manifest.CheckVersion(); err != nil {
					return nil, err
				}
				totalExpected = manifest.TotalRecords
				e.logger.Info("importing snapshot",
					"path", path,
					"exported_at", manifest.ExportTimestamp,
					"declared_records", manifest.TotalRecords,
					"filter", manifest.Filter)
				continue
			}
			// First line is not a manifest; treat it as a record and
			// give up on count verification.
			result.Warnings = append(result.Warnings,
				"snapshot has no manifest line; record count cannot be verified")
		}

		recordsRead++
		e.importLine(ctx, line, lineNum, skipValidation, result)
	}

	if err := scanner.Err(); err != nil {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("snapshot stream ended abnormally: %v", err))
	}

	if cancelled {
		result.Warnings = append(result.Warnings, "import cancelled before end of snapshot")
	} else if totalExpected >= 0 && recordsRead != totalExpected {
		if missing := totalExpected - recordsRead; missing > 0 {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("manifest declares %d records but only %d were read (%d missing)",
					totalExpected, recordsRead, missing))
		} else {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("manifest declares %d records but %d were read (%d extra)",
					totalExpected, recordsRead, -missing))
		}
	}

	result.Duration = e.now().Sub(start)

	e.logger.Info("import complete",
		"path", path,
		"imported", result.ImportedCount,
		"skipped", result.SkippedCount,
		"warnings", len(result.Warnings),
		"duration", result.Duration)

	return result, nil
}

// importLine decodes, validates, and upserts one record line. Failures
// skip the record and accumulate; they never abort the run.
func (e *Engine) importLine(ctx context.Context, line string, lineNum int, skipValidation bool, result *model.ImportResult) {
	var record model.AnalysisRecord
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		result.SkippedCount++
		result.Errors = append(result.Errors,
			fmt.Sprintf("line %d: invalid JSON: %v", lineNum, err))
		return
	}

	if !skipValidation {
		if err := record.Validate(); err != nil {
			result.SkippedCount++
			result.Errors = append(result.Errors,
				fmt.Sprintf("line %d: validation failed: %v", lineNum, err))
			return
		}
	}

	if _, err := e.store.UpsertRecord(ctx, &record); err != nil {
		result.SkippedCount++
		result.Errors = append(result.Errors,
			fmt.Sprintf("line %d: upsert failed for %s: %v", lineNum, record.ID, err))
		return
	}

	result.ImportedCount++
}

// snapshotReader sniffs the stream for the gzip magic bytes and wraps
// it in a transparent decompressor when present.
func snapshotReader(f io.Reader) (io.Reader, error) {
	br := bufio.NewReader(f)

	head, err := br.Peek(2)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read snapshot header: %w", err)
	}
	if len(head) == 2 && head[0] == gzipMagic[0] && head[1] == gzipMagic[1] {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open compressed snapshot: %w", err)
		}
		return gz, nil
	}
	return br, nil
}

// parseManifest attempts to interpret a line as a snapshot manifest.
// Older snapshots (and hand-built ones) may start directly with a
// record, which also parses as JSON, so the format version field is
// the discriminator.
func parseManifest(line string) (model.BackupManifest, bool) {
	var manifest model.BackupManifest
	if err := json.Unmarshal([]byte(line), &manifest); err != nil {
		return manifest, false
	}
	if manifest.FormatVersion == "" {
		return manifest, false
	}
	return manifest, true
}
