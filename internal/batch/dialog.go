// Package batch drives the two-phase WhatsApp dispatch flow: a non-binding
// preview of the selected analyses, operator adjustments, then a binding
// confirmation. The upstream is the sole authority on final eligibility; the
// dialog only mirrors its verdicts.
package batch

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/ouldcheikh/labconsole/internal/domain"
)

// Collaborator is the slice of the upstream client the dialog drives.
type Collaborator interface {
	PrepareBatch(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error)
	ConfirmBatch(ctx context.Context, confirmation domain.BatchConfirmation) (*domain.BatchOutcome, error)
}

// State names the dialog's position in the dispatch flow.
type State string

const (
	StatePreparing  State = "preparing"
	StateReady      State = "ready"
	StateConfirming State = "confirming"
	StateDone       State = "done"
	StateFailed     State = "failed"
)

// Recipient is one sendable entry plus its checkbox state.
type Recipient struct {
	domain.PreviewMessage
	Checked bool `json:"checked"`
}

// View is an immutable rendering of the dialog for the operator.
type View struct {
	State              State                    `json:"state"`
	Recipients         []Recipient              `json:"recipients"`
	Excluded           []domain.ExcludedMessage `json:"excluded"`
	Summary            domain.PreviewSummary    `json:"summary"`
	CustomMessage      string                   `json:"customMessage"`
	CheckedCount       int                      `json:"checkedCount"`
	QueuedSuccessfully int                      `json:"queuedSuccessfully"`
	Error              string                   `json:"error,omitempty"`
}

// Dialog is one batch-send conversation. It is created by Open, which runs
// the preview synchronously, so a live dialog always starts in Ready with
// every sendable recipient pre-checked.
type Dialog struct {
	collaborator Collaborator
	onDone       func(ctx context.Context, queued int)

	mu          sync.Mutex
	state       State
	analysisIDs []string
	preview     domain.BatchPreview
	checked     map[string]bool
	message     string
	queued      int
	lastError   string
}

// Open requests a fresh preview for the selected ids and returns a Ready
// dialog. A preview failure yields no dialog at all; the caller stays where
// it was. onDone runs once after a successful confirmation.
func Open(ctx context.Context, collaborator Collaborator, analysisIDs []string, onDone func(ctx context.Context, queued int)) (*Dialog, error) {
	if collaborator == nil {
		return nil, fmt.Errorf("upstream collaborator is required")
	}
	if len(analysisIDs) == 0 {
		return nil, fmt.Errorf("%w: selection is empty", domain.ErrValidation)
	}

	preview, err := collaborator.PrepareBatch(ctx, analysisIDs)
	if err != nil {
		return nil, err
	}

	// The upstream's validity verdict is the default: everything sendable
	// starts checked.
	checked := make(map[string]bool, len(preview.ValidMessages))
	for _, message := range preview.ValidMessages {
		checked[message.AnalysisID] = true
	}

	ids := make([]string, len(analysisIDs))
	copy(ids, analysisIDs)

	return &Dialog{
		collaborator: collaborator,
		onDone:       onDone,
		state:        StateReady,
		analysisIDs:  ids,
		preview:      *preview,
		checked:      checked,
	}, nil
}

// ToggleRecipient flips one sendable recipient's checkbox. Excluded
// recipients cannot be checked.
func (d *Dialog) ToggleRecipient(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.editableLocked(); err != nil {
		return err
	}
	if _, ok := d.checked[id]; !ok {
		return fmt.Errorf("%w: recipient %s is not sendable", domain.ErrValidation, id)
	}

	d.checked[id] = !d.checked[id]
	return nil
}

// ToggleAll checks every sendable recipient, or unchecks all when every one
// is already checked.
func (d *Dialog) ToggleAll() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.editableLocked(); err != nil {
		return err
	}

	allChecked := true
	for _, isChecked := range d.checked {
		if !isChecked {
			allChecked = false
			break
		}
	}
	for id := range d.checked {
		d.checked[id] = !allChecked
	}
	return nil
}

// SetMessage stores the override message, rejecting anything beyond the
// 1000-character cap. Trimming happens at submission, not here, so the
// operator can keep typing around the edges.
func (d *Dialog) SetMessage(message string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.editableLocked(); err != nil {
		return err
	}
	if count := len([]rune(message)); count > domain.MaxCustomMessageChars {
		return fmt.Errorf("%w: custom message exceeds %d characters (got %d)", domain.ErrValidation, domain.MaxCustomMessageChars, count)
	}

	d.message = message
	return nil
}

// Confirm submits the binding confirmation: the originally selected ids, the
// checked subset, and the trimmed override message. Zero checked recipients
// is rejected before any request leaves the console. On upstream failure the
// dialog stays open in Failed, and Confirm may be called again without a new
// preview.
func (d *Dialog) Confirm(ctx context.Context) (*domain.BatchOutcome, error) {
	d.mu.Lock()
	switch d.state {
	case StateReady, StateFailed:
	case StateConfirming:
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: confirmation already in flight", domain.ErrConflict)
	default:
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: dialog is %s", domain.ErrConflict, d.state)
	}

	selected := d.checkedIDsLocked()
	if len(selected) == 0 {
		d.mu.Unlock()
		return nil, fmt.Errorf("%w: no recipient is checked", domain.ErrValidation)
	}

	confirmation := domain.BatchConfirmation{
		AnalysisIDs:   append([]string(nil), d.analysisIDs...),
		SelectedIDs:   selected,
		CustomMessage: strings.TrimSpace(d.message),
	}
	d.state = StateConfirming
	d.lastError = ""
	d.mu.Unlock()

	outcome, err := d.collaborator.ConfirmBatch(ctx, confirmation)

	d.mu.Lock()
	if err != nil {
		d.state = StateFailed
		d.lastError = errorText(err)
		d.mu.Unlock()
		return nil, err
	}
	d.state = StateDone
	d.queued = outcome.QueuedSuccessfully
	onDone := d.onDone
	d.onDone = nil
	d.mu.Unlock()

	if onDone != nil {
		onDone(ctx, outcome.QueuedSuccessfully)
	}
	return outcome, nil
}

// View renders the dialog with recipients in preview order.
func (d *Dialog) View() View {
	d.mu.Lock()
	defer d.mu.Unlock()

	recipients := make([]Recipient, 0, len(d.preview.ValidMessages))
	checkedCount := 0
	for _, message := range d.preview.ValidMessages {
		isChecked := d.checked[message.AnalysisID]
		if isChecked {
			checkedCount++
		}
		recipients = append(recipients, Recipient{
			PreviewMessage: message,
			Checked:        isChecked,
		})
	}

	excluded := make([]domain.ExcludedMessage, len(d.preview.InvalidMessages))
	copy(excluded, d.preview.InvalidMessages)

	return View{
		State:              d.state,
		Recipients:         recipients,
		Excluded:           excluded,
		Summary:            d.preview.Summary,
		CustomMessage:      d.message,
		CheckedCount:       checkedCount,
		QueuedSuccessfully: d.queued,
		Error:              d.lastError,
	}
}

// checkedIDsLocked returns the checked subset in preview order.
func (d *Dialog) checkedIDsLocked() []string {
	selected := make([]string, 0, len(d.checked))
	for _, message := range d.preview.ValidMessages {
		if d.checked[message.AnalysisID] {
			selected = append(selected, message.AnalysisID)
		}
	}
	return selected
}

func (d *Dialog) editableLocked() error {
	switch d.state {
	case StateReady, StateFailed:
		return nil
	default:
		return fmt.Errorf("%w: dialog is %s", domain.ErrConflict, d.state)
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
