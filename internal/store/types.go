package store

import (
	"fmt"
	"time"

	"github.com/cwbudde/offloadtest/internal/compare"
	"github.com/google/uuid"
)

// Comparison modes recorded in a report
const (
	ModeExact = "exact"
	ModeCIE76 = "cie76"
)

// RunConfig records how a comparison was invoked
type RunConfig struct {
	Expected  string `json:"expected"`
	Actual    string `json:"actual"`
	Mode      string `json:"mode"` // exact, cie76
	Metric    string `json:"metric,omitempty"`
	RulesPath string `json:"rulesPath,omitempty"`
}

// Report is the persisted outcome of one image comparison.
//
// Summary carries the distance statistics and is only present for cie76
// runs. DiffImage names a file inside the report directory, if one was
// written.
type Report struct {
	// ID is a random UUID assigned by NewReport
	ID string `json:"id"`

	// Timestamp records when the comparison finished
	Timestamp time.Time `json:"timestamp"`

	Config  RunConfig `json:"config"`
	Passed  bool      `json:"passed"`
	Message string    `json:"message,omitempty"`

	Summary   *compare.Summary `json:"summary,omitempty"`
	DiffImage string           `json:"diffImage,omitempty"`
}

// ReportInfo is the listing view of a report without statistics
type ReportInfo struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Passed    bool      `json:"passed"`
	Mode      string    `json:"mode"`
	Expected  string    `json:"expected"`
	Actual    string    `json:"actual"`
	Furthest  float64   `json:"furthest"`
}

// NewReport creates a report with a fresh ID for the given run
func NewReport(config RunConfig, passed bool, message string, summary *compare.Summary) *Report {
	return &Report{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Config:    config,
		Passed:    passed,
		Message:   message,
		Summary:   summary,
	}
}

// ToInfo converts a full Report to ReportInfo
func (r *Report) ToInfo() ReportInfo {
	info := ReportInfo{
		ID:        r.ID,
		Timestamp: r.Timestamp,
		Passed:    r.Passed,
		Mode:      r.Config.Mode,
		Expected:  r.Config.Expected,
		Actual:    r.Config.Actual,
	}
	if r.Summary != nil {
		info.Furthest = r.Summary.Furthest
	}
	return info
}

// Validate checks the report for missing or inconsistent fields
func (r *Report) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if _, err := uuid.Parse(r.ID); err != nil {
		return &ValidationError{Field: "ID", Reason: "must be a UUID"}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	if r.Config.Expected == "" {
		return &ValidationError{Field: "Config.Expected", Reason: "cannot be empty"}
	}
	if r.Config.Actual == "" {
		return &ValidationError{Field: "Config.Actual", Reason: "cannot be empty"}
	}
	switch r.Config.Mode {
	case ModeExact:
		if r.Summary != nil {
			return &ValidationError{Field: "Summary", Reason: "must be empty for exact mode"}
		}
	case ModeCIE76:
		if r.Summary == nil {
			return &ValidationError{Field: "Summary", Reason: "required for cie76 mode"}
		}
		return validateSummary(r.Summary, r.Passed)
	default:
		return &ValidationError{Field: "Config.Mode", Reason: fmt.Sprintf("unknown mode %q", r.Config.Mode)}
	}
	return nil
}

func validateSummary(s *compare.Summary, passed bool) error {
	if s.Passed != passed {
		return &ValidationError{Field: "Summary.Passed", Reason: "disagrees with report verdict"}
	}
	if s.VisibleDiffs > s.Count {
		return &ValidationError{Field: "Summary.VisibleDiffs", Reason: "exceeds pixel count"}
	}
	var total uint64
	for _, n := range s.Histogram {
		total += n
	}
	if total != s.VisibleDiffs {
		return &ValidationError{
			Field:  "Summary.Histogram",
			Reason: fmt.Sprintf("sums to %d, expected %d visible diffs", total, s.VisibleDiffs),
		}
	}
	if s.Furthest < 0 || s.RMS < 0 || s.DiffRMS < 0 {
		return &ValidationError{Field: "Summary", Reason: "distances cannot be negative"}
	}
	return nil
}

// ValidationError represents a report validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
