package model

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// AnalysisStatus tracks the lifecycle state of an analysis record.
type AnalysisStatus string

// Analysis status values.
const (
	StatusPending   AnalysisStatus = "pending"
	StatusRunning   AnalysisStatus = "running"
	StatusCompleted AnalysisStatus = "completed"
	StatusFailed    AnalysisStatus = "failed"
	StatusCancelled AnalysisStatus = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s AnalysisStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	case StatusPending, StatusRunning:
		return false
	default:
		return false
	}
}

// IsValid reports whether the status is a known value.
func (s AnalysisStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// FailureStatuses are the statuses targeted by failed-record cleanup.
func FailureStatuses() []AnalysisStatus {
	return []AnalysisStatus{StatusFailed, StatusCancelled}
}

// MarketType classifies the market a symbol trades on.
type MarketType string

// Market type values.
const (
	MarketUSStock MarketType = "us_stock"
	MarketHKStock MarketType = "hk_stock"
	MarketAShare  MarketType = "a_share"
)

// IsValid reports whether the market type is a known value.
func (m MarketType) IsValid() bool {
	switch m {
	case MarketUSStock, MarketHKStock, MarketAShare:
		return true
	default:
		return false
	}
}

// TokenUsage captures LLM token consumption and cost for one analysis.
type TokenUsage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	TotalTokens  int64   `json:"total_tokens"`
	TotalCost    float64 `json:"total_cost"`
}

// AnalysisRecord is a single analysis run stored in the history collection.
// The core fields below are validated; Metadata is an open extension map
// carried through untouched.
type AnalysisRecord struct {
	ID               string         `json:"analysis_id"`
	Symbol           string         `json:"stock_symbol"`
	Name             string         `json:"stock_name"`
	MarketType       MarketType     `json:"market_type"`
	Status           AnalysisStatus `json:"status"`
	AnalysisType     string         `json:"analysis_type"`
	Analysts         []string       `json:"analysts_used"`
	ResearchDepth    int            `json:"research_depth"`
	LLMProvider      string         `json:"llm_provider"`
	LLMModel         string         `json:"llm_model"`
	CreatedAt        time.Time      `json:"created_at"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
	ExecutionSeconds float64        `json:"execution_time"`
	TokenUsage       TokenUsage     `json:"token_usage"`
	RawResults       map[string]any `json:"raw_results,omitempty"`
	FormattedResults map[string]any `json:"formatted_results,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
}

// Validation errors for analysis records.
var (
	ErrInvalidRecord          = errors.New("invalid analysis record")
	ErrInvalidStatusChange    = errors.New("invalid status transition")
	ErrUnknownAnalysisStatus  = errors.New("unknown analysis status")
	ErrUnknownMarketType      = errors.New("unknown market type")
	ErrInvalidSymbol          = errors.New("invalid symbol for market type")
	ErrInconsistentTimestamps = errors.New("created_at is after completed_at")
)

var (
	usSymbolPattern     = regexp.MustCompile(`^[A-Z]{1,5}$`)
	hkSymbolPattern     = regexp.MustCompile(`^\d{4,5}(\.HK)?$`)
	aShareSymbolPattern = regexp.MustCompile(`^\d{6}$`)
)

var validAnalysts = map[string]bool{
	"market":       true,
	"fundamentals": true,
	"news":         true,
	"social":       true,
}

// NewRecordID generates a unique analysis record identifier. IDs are
// time-prefixed so lexical order roughly matches creation order.
func NewRecordID(now time.Time) string {
	return fmt.Sprintf("analysis_%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
}

// Validate checks the core fields of the record. Metadata and result
// blobs are opaque and pass through unchecked.
func (r *AnalysisRecord) Validate() error {
	if r == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("%w: missing analysis_id", ErrInvalidRecord)
	}
	if !r.MarketType.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownMarketType, r.MarketType)
	}
	if err := validateSymbol(r.Symbol, r.MarketType); err != nil {
		return err
	}
	if !r.Status.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownAnalysisStatus, r.Status)
	}
	for _, analyst := range r.Analysts {
		if !validAnalysts[analyst] {
			return fmt.Errorf("%w: unknown analyst %q", ErrInvalidRecord, analyst)
		}
	}
	if r.ResearchDepth != 0 && (r.ResearchDepth < 1 || r.ResearchDepth > 5) {
		return fmt.Errorf("%w: research_depth must be between 1 and 5", ErrInvalidRecord)
	}
	if r.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing created_at", ErrInvalidRecord)
	}
	if r.CompletedAt != nil && r.CreatedAt.After(*r.CompletedAt) {
		return ErrInconsistentTimestamps
	}
	if r.ExecutionSeconds < 0 {
		return fmt.Errorf("%w: execution_time cannot be negative", ErrInvalidRecord)
	}
	if r.TokenUsage.InputTokens < 0 || r.TokenUsage.OutputTokens < 0 ||
		r.TokenUsage.TotalTokens < 0 || r.TokenUsage.TotalCost < 0 {
		return fmt.Errorf("%w: token usage fields must be non-negative", ErrInvalidRecord)
	}
	return nil
}

// validateSymbol enforces the per-market symbol formats.
func validateSymbol(symbol string, market MarketType) error {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return fmt.Errorf("%w: missing symbol", ErrInvalidRecord)
	}
	switch market {
	case MarketUSStock:
		if !usSymbolPattern.MatchString(s) {
			return fmt.Errorf("%w: US symbol must be 1-5 letters, got %q", ErrInvalidSymbol, symbol)
		}
	case MarketHKStock:
		if !hkSymbolPattern.MatchString(s) {
			return fmt.Errorf("%w: HK symbol must be 4-5 digits with optional .HK suffix, got %q", ErrInvalidSymbol, symbol)
		}
	case MarketAShare:
		if !aShareSymbolPattern.MatchString(s) {
			return fmt.Errorf("%w: A-share symbol must be 6 digits, got %q", ErrInvalidSymbol, symbol)
		}
	}
	return nil
}

// UpdateStatus transitions the record to a new status. Terminal statuses
// never regress to non-terminal ones.
func (r *AnalysisRecord) UpdateStatus(next AnalysisStatus, now time.Time) error {
	if !next.IsValid() {
		return fmt.Errorf("%w: %q", ErrUnknownAnalysisStatus, next)
	}
	if r.Status.IsTerminal() && !next.IsTerminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidStatusChange, r.Status, next)
	}
	r.Status = next
	r.UpdatedAt = now
	if next.IsTerminal() && r.CompletedAt == nil {
		t := now
		r.CompletedAt = &t
	}
	return nil
}

// SetTokenUsage records token consumption, clamping negatives to zero.
func (r *AnalysisRecord) SetTokenUsage(inputTokens, outputTokens int64, totalCost float64, now time.Time) {
	r.TokenUsage = TokenUsage{
		InputTokens:  max64(0, inputTokens),
		OutputTokens: max64(0, outputTokens),
		TotalTokens:  max64(0, inputTokens) + max64(0, outputTokens),
		TotalCost:    maxFloat(0, totalCost),
	}
	r.UpdatedAt = now
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
