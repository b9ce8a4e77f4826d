package model

// WarningSeverity grades how seriously a detected issue should be taken.
type WarningSeverity string

const (
	// SeverityInfo is advisory only.
	SeverityInfo WarningSeverity = "info"
	// SeverityWarning suggests the user verify before submitting.
	SeverityWarning WarningSeverity = "warning"
	// SeverityError indicates the expense is very likely wrong.
	SeverityError WarningSeverity = "error"
)

// Warning types emitted by the error detector.
const (
	WarningAmountOutlier  = "amount_outlier"
	WarningDuplicate      = "duplicate"
	WarningMissingReceipt = "missing_receipt"
	WarningMissingNotes   = "missing_notes"
	WarningUnusualTime    = "unusual_time"
)

// Warning flags a potential problem with an expense, independent of any
// category prediction.
type Warning struct {
	Metadata   map[string]any  `json:"metadata,omitempty"`
	Type       string          `json:"type"`
	Message    string          `json:"message"`
	Suggestion string          `json:"suggestion"`
	Severity   WarningSeverity `json:"severity"`
}
