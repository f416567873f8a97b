package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status represents the delivery lifecycle state of an analysis report.
// Transitions happen upstream; the console only reflects them.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
)

func (s Status) String() string { return string(s) }

func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusDelivered, StatusRead, StatusFailed:
		return true
	}
	return false
}

// Eligible reports whether a record in this status can be selected for batch dispatch.
func (s Status) Eligible() bool {
	return s == StatusPending || s == StatusFailed
}

func ParseStatusFromString(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

// AnalysisType represents the laboratory analysis category.
type AnalysisType string

const (
	TypeBlood         AnalysisType = "blood"
	TypeUrine         AnalysisType = "urine"
	TypeBiochemistry  AnalysisType = "biochemistry"
	TypeHematology    AnalysisType = "hematology"
	TypeMicrobiology  AnalysisType = "microbiology"
	TypeImmunology    AnalysisType = "immunology"
	TypeEndocrinology AnalysisType = "endocrinology"
	TypeOther         AnalysisType = "other"
)

func (t AnalysisType) String() string { return string(t) }

func (t AnalysisType) IsValid() bool {
	switch t {
	case TypeBlood, TypeUrine, TypeBiochemistry, TypeHematology,
		TypeMicrobiology, TypeImmunology, TypeEndocrinology, TypeOther:
		return true
	}
	return false
}

// frenchTypeLabels maps the upstream's stored French labels to canonical types.
// Older records carry these labels verbatim.
var frenchTypeLabels = map[string]AnalysisType{
	"analyse sanguine": TypeBlood,
	"analyse urinaire": TypeUrine,
	"biochimie":        TypeBiochemistry,
	"hématologie":      TypeHematology,
	"microbiologie":    TypeMicrobiology,
	"immunologie":      TypeImmunology,
	"hormonologie":     TypeEndocrinology,
	"autre":            TypeOther,
}

// ParseAnalysisTypeFromString accepts canonical tokens and the upstream's
// legacy French labels.
func ParseAnalysisTypeFromString(s string) (AnalysisType, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if t, ok := frenchTypeLabels[normalized]; ok {
		return t, nil
	}
	t := AnalysisType(normalized)
	if !t.IsValid() {
		return "", fmt.Errorf("%w: invalid analysis type %q", ErrValidation, s)
	}
	return t, nil
}

// AnalysisRecord is an analysis report as served by the upstream laboratory API.
type AnalysisRecord struct {
	ID           string     `json:"id"`
	PatientName  string     `json:"patientName"`
	PatientPhone string     `json:"patientPhone"`
	AnalysisType string     `json:"analysisType"`
	Status       Status     `json:"status"`
	RetryCount   int        `json:"retryCount"`
	PDFFilename  string     `json:"pdfFilename"`
	AnalysisDate *time.Time `json:"analysisDate,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	SentAt       *time.Time `json:"sentAt,omitempty"`
	DeliveredAt  *time.Time `json:"deliveredAt,omitempty"`
}

// CreateAnalysis holds the metadata for a single report upload.
type CreateAnalysis struct {
	PatientName  string
	PatientPhone string
	AnalysisType string
	AnalysisDate string
}

func (c CreateAnalysis) Validate() error {
	if strings.TrimSpace(c.PatientName) == "" {
		return fmt.Errorf("%w: patient name is required", ErrValidation)
	}
	if strings.TrimSpace(c.PatientPhone) == "" {
		return fmt.Errorf("%w: patient phone is required", ErrValidation)
	}
	if _, err := ParseAnalysisTypeFromString(c.AnalysisType); err != nil {
		return err
	}
	return nil
}

// Pagination mirrors the upstream pagination block.
// Invariant: Page stays within [1, max(Pages, 1)].
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// Clamp forces Page back into its valid range.
func (p Pagination) Clamp() Pagination {
	upper := p.Pages
	if upper < 1 {
		upper = 1
	}
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Page > upper {
		p.Page = upper
	}
	return p
}

// StatsSummary is the aggregate view served by the analytics endpoint.
type StatsSummary struct {
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"byStatus"`
	ByType        map[string]int `json:"byType"`
	SentLast7Days int            `json:"sentLast7Days"`
}
