package domain

import (
	"fmt"
	"strings"
)

// MaxCustomMessageChars caps the operator's override message for a batch send.
const MaxCustomMessageChars = 1000

// ExclusionReason explains why the upstream judged a recipient non-sendable.
type ExclusionReason string

const (
	ReasonAlreadySent  ExclusionReason = "already_sent"
	ReasonInvalidPhone ExclusionReason = "invalid_phone"
)

// PreviewMessage is a recipient the upstream judges sendable right now.
type PreviewMessage struct {
	AnalysisID     string `json:"analysisId"`
	PatientName    string `json:"patientName"`
	FormattedPhone string `json:"formattedPhone"`
	AnalysisType   string `json:"analysisType"`
	PDFFilename    string `json:"pdfFilename"`
	RetryCount     int    `json:"retryCount"`
}

// ExcludedMessage is a recipient the upstream refused, with enough detail
// to render the reason.
type ExcludedMessage struct {
	AnalysisID     string `json:"analysisId"`
	PatientName    string `json:"patientName"`
	OriginalPhone  string `json:"originalPhone"`
	FormattedPhone string `json:"formattedPhone"`
	IsValidPhone   bool   `json:"isValidPhone"`
	Status         Status `json:"status"`
}

// Reason derives the exclusion reason: a malformed phone wins over any
// status-based exclusion.
func (m ExcludedMessage) Reason() ExclusionReason {
	if !m.IsValidPhone {
		return ReasonInvalidPhone
	}
	return ReasonAlreadySent
}

// PreviewSummary carries the upstream's counts for a prepared batch.
type PreviewSummary struct {
	TotalFound      int `json:"totalFound"`
	ValidForSending int `json:"validForSending"`
}

// BatchPreview is the upstream's non-binding snapshot of a requested batch.
// It is requested fresh on every dialog open and superseded in full by the
// next preview; it is never cached across sessions.
type BatchPreview struct {
	ValidMessages   []PreviewMessage  `json:"validMessages"`
	InvalidMessages []ExcludedMessage `json:"invalidMessages"`
	Summary         PreviewSummary    `json:"summary"`
}

// BatchConfirmation is the binding submission. AnalysisIDs is the originally
// selected set; SelectedIDs is the subset the operator left checked.
type BatchConfirmation struct {
	AnalysisIDs   []string `json:"analysisIds"`
	SelectedIDs   []string `json:"selectedIds"`
	CustomMessage string   `json:"customMessage"`
}

func (c BatchConfirmation) Validate() error {
	if len(c.AnalysisIDs) == 0 {
		return fmt.Errorf("%w: batch must reference at least one analysis", ErrValidation)
	}
	if len(c.SelectedIDs) == 0 {
		return fmt.Errorf("%w: at least one recipient must be selected", ErrValidation)
	}
	if count := len([]rune(c.CustomMessage)); count > MaxCustomMessageChars {
		return fmt.Errorf("%w: custom message exceeds %d characters (got %d)", ErrValidation, MaxCustomMessageChars, count)
	}
	if strings.TrimSpace(c.CustomMessage) != c.CustomMessage {
		return fmt.Errorf("%w: custom message must be trimmed before submission", ErrValidation)
	}
	return nil
}

// BatchOutcome is the upstream's acknowledgment of a confirmed batch.
type BatchOutcome struct {
	QueuedSuccessfully int `json:"queuedSuccessfully"`
}
