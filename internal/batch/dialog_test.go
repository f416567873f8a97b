package batch

import (
	"context"
	"errors"
	"testing"

	"github.com/ouldcheikh/labconsole/internal/domain"
)

type fakeCollaborator struct {
	PrepareBatchFn func(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error)
	ConfirmBatchFn func(ctx context.Context, confirmation domain.BatchConfirmation) (*domain.BatchOutcome, error)

	prepareCalls  int
	confirmCalls  int
	confirmations []domain.BatchConfirmation
}

func (f *fakeCollaborator) PrepareBatch(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error) {
	f.prepareCalls++
	if f.PrepareBatchFn == nil {
		return &domain.BatchPreview{}, nil
	}
	return f.PrepareBatchFn(ctx, analysisIDs)
}

func (f *fakeCollaborator) ConfirmBatch(ctx context.Context, confirmation domain.BatchConfirmation) (*domain.BatchOutcome, error) {
	f.confirmCalls++
	f.confirmations = append(f.confirmations, confirmation)
	if f.ConfirmBatchFn == nil {
		return &domain.BatchOutcome{QueuedSuccessfully: len(confirmation.SelectedIDs)}, nil
	}
	return f.ConfirmBatchFn(ctx, confirmation)
}

func previewFor(valid []string, invalid []string) *domain.BatchPreview {
	preview := &domain.BatchPreview{
		Summary: domain.PreviewSummary{
			TotalFound:      len(valid) + len(invalid),
			ValidForSending: len(valid),
		},
	}
	for _, id := range valid {
		preview.ValidMessages = append(preview.ValidMessages, domain.PreviewMessage{
			AnalysisID:     id,
			PatientName:    "Patient " + id,
			FormattedPhone: "+22241234567",
			AnalysisType:   "blood",
		})
	}
	for _, id := range invalid {
		preview.InvalidMessages = append(preview.InvalidMessages, domain.ExcludedMessage{
			AnalysisID:    id,
			PatientName:   "Patient " + id,
			OriginalPhone: "12345",
			IsValidPhone:  false,
			Status:        domain.StatusPending,
		})
	}
	return preview
}

func TestOpenPreChecksAllSendableRecipients(t *testing.T) {
	t.Parallel()

	collaborator := &fakeCollaborator{
		PrepareBatchFn: func(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error) {
			return previewFor([]string{"a1", "a2"}, []string{"a3"}), nil
		},
	}

	dialog, err := Open(context.Background(), collaborator, []string{"a1", "a2", "a3"}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	view := dialog.View()
	if view.State != StateReady {
		t.Fatalf("state = %s, want ready", view.State)
	}
	if view.CheckedCount != 2 {
		t.Fatalf("checkedCount = %d, want 2", view.CheckedCount)
	}
	for _, recipient := range view.Recipients {
		if !recipient.Checked {
			t.Fatalf("recipient %s should start checked", recipient.AnalysisID)
		}
	}
	if len(view.Excluded) != 1 || view.Excluded[0].Reason() != domain.ReasonInvalidPhone {
		t.Fatalf("excluded = %+v, want one invalid-phone entry", view.Excluded)
	}
}

func TestOpenFailurePropagatesWithoutDialog(t *testing.T) {
	t.Parallel()

	collaborator := &fakeCollaborator{
		PrepareBatchFn: func(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error) {
			return nil, errors.New("boom")
		},
	}

	if _, err := Open(context.Background(), collaborator, []string{"a1"}, nil); err == nil {
		t.Fatal("expected prepare failure to surface")
	}
}

func TestDialogExcludedRecipientCannotBeChecked(t *testing.T) {
	t.Parallel()

	collaborator := &fakeCollaborator{
		PrepareBatchFn: func(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error) {
			return previewFor([]string{"a1"}, []string{"a2"}), nil
		},
	}
	dialog, err := Open(context.Background(), collaborator, []string{"a1", "a2"}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := dialog.ToggleRecipient("a2"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("ToggleRecipient(excluded) error = %v, want ErrValidation", err)
	}
}

func TestDialogConfirmSubmitsOriginalIDsAndCheckedSubset(t *testing.T) {
	t.Parallel()

	collaborator := &fakeCollaborator{
		PrepareBatchFn: func(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error) {
			return previewFor([]string{"a1", "a2"}, []string{"a3"}), nil
		},
	}
	dialog, err := Open(context.Background(), collaborator, []string{"a1", "a2", "a3"}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := dialog.ToggleRecipient("a2"); err != nil {
		t.Fatalf("ToggleRecipient() error = %v", err)
	}

	outcome, err := dialog.Confirm(context.Background())
	if err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if outcome.QueuedSuccessfully != 1 {
		t.Fatalf("queuedSuccessfully = %d, want 1", outcome.QueuedSuccessfully)
	}

	if len(collaborator.confirmations) != 1 {
		t.Fatalf("confirm calls = %d, want 1", len(collaborator.confirmations))
	}
	got := collaborator.confirmations[0]
	if len(got.AnalysisIDs) != 3 || got.AnalysisIDs[0] != "a1" || got.AnalysisIDs[1] != "a2" || got.AnalysisIDs[2] != "a3" {
		t.Fatalf("analysisIds = %v, want the original selection in order", got.AnalysisIDs)
	}
	if len(got.SelectedIDs) != 1 || got.SelectedIDs[0] != "a1" {
		t.Fatalf("selectedIds = %v, want [a1]", got.SelectedIDs)
	}
	if got.CustomMessage != "" {
		t.Fatalf("customMessage = %q, want empty", got.CustomMessage)
	}
}

func TestDialogConfirmZeroCheckedRejectedWithoutRequest(t *testing.T) {
	t.Parallel()

	collaborator := &fakeCollaborator{
		PrepareBatchFn: func(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error) {
			return previewFor([]string{"a1"}, nil), nil
		},
	}
	dialog, err := Open(context.Background(), collaborator, []string{"a1"}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := dialog.ToggleRecipient("a1"); err != nil {
		t.Fatalf("ToggleRecipient() error = %v", err)
	}

	if _, err := dialog.Confirm(context.Background()); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("Confirm() error = %v, want ErrValidation", err)
	}
	if collaborator.confirmCalls != 0 {
		t.Fatalf("confirm calls = %d, want 0 (rejected before any request)", collaborator.confirmCalls)
	}
	if got := dialog.View().State; got != StateReady {
		t.Fatalf("state = %s, want ready", got)
	}
}

func TestDialogToggleAllIsInvolution(t *testing.T) {
	t.Parallel()

	collaborator := &fakeCollaborator{
		PrepareBatchFn: func(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error) {
			return previewFor([]string{"a1", "a2"}, nil), nil
		},
	}
	dialog, err := Open(context.Background(), collaborator, []string{"a1", "a2"}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if err := dialog.ToggleAll(); err != nil {
		t.Fatalf("ToggleAll() error = %v", err)
	}
	if got := dialog.View().CheckedCount; got != 0 {
		t.Fatalf("checkedCount after uncheck-all = %d, want 0", got)
	}

	if err := dialog.ToggleAll(); err != nil {
		t.Fatalf("ToggleAll() error = %v", err)
	}
	if got := dialog.View().CheckedCount; got != 2 {
		t.Fatalf("checkedCount after re-check-all = %d, want 2", got)
	}
}

func TestDialogSetMessageEnforcesCap(t *testing.T) {
	t.Parallel()

	collaborator := &fakeCollaborator{
		PrepareBatchFn: func(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error) {
			return previewFor([]string{"a1"}, nil), nil
		},
	}
	dialog, err := Open(context.Background(), collaborator, []string{"a1"}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	long := make([]rune, domain.MaxCustomMessageChars+1)
	for i := range long {
		long[i] = 'م'
	}
	if err := dialog.SetMessage(string(long)); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("SetMessage(overflow) error = %v, want ErrValidation", err)
	}

	if err := dialog.SetMessage("  Résultats disponibles  "); err != nil {
		t.Fatalf("SetMessage() error = %v", err)
	}

	if _, err := dialog.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}
	if got := collaborator.confirmations[0].CustomMessage; got != "Résultats disponibles" {
		t.Fatalf("customMessage = %q, want trimmed", got)
	}
}

func TestDialogConfirmFailureStaysOpenForRetry(t *testing.T) {
	t.Parallel()

	attempts := 0
	collaborator := &fakeCollaborator{
		PrepareBatchFn: func(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error) {
			return previewFor([]string{"a1"}, nil), nil
		},
		ConfirmBatchFn: func(ctx context.Context, confirmation domain.BatchConfirmation) (*domain.BatchOutcome, error) {
			attempts++
			if attempts == 1 {
				return nil, errors.New("upstream unavailable")
			}
			return &domain.BatchOutcome{QueuedSuccessfully: 1}, nil
		},
	}

	reconciled := 0
	dialog, err := Open(context.Background(), collaborator, []string{"a1"}, func(ctx context.Context, queued int) {
		reconciled++
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := dialog.Confirm(context.Background()); err == nil {
		t.Fatal("expected first confirm to fail")
	}

	view := dialog.View()
	if view.State != StateFailed {
		t.Fatalf("state = %s, want failed", view.State)
	}
	if view.Error == "" {
		t.Fatal("failed dialog should carry an error")
	}
	if reconciled != 0 {
		t.Fatal("reconciliation must not run on failure")
	}

	outcome, err := dialog.Confirm(context.Background())
	if err != nil {
		t.Fatalf("retry Confirm() error = %v", err)
	}
	if outcome.QueuedSuccessfully != 1 {
		t.Fatalf("queuedSuccessfully = %d, want 1", outcome.QueuedSuccessfully)
	}
	if collaborator.prepareCalls != 1 {
		t.Fatalf("prepare calls = %d, retry must not re-run the preview", collaborator.prepareCalls)
	}
	if reconciled != 1 {
		t.Fatalf("reconciliations = %d, want exactly 1", reconciled)
	}
	if got := dialog.View().State; got != StateDone {
		t.Fatalf("state = %s, want done", got)
	}
}

func TestDialogDoneRejectsFurtherEdits(t *testing.T) {
	t.Parallel()

	collaborator := &fakeCollaborator{
		PrepareBatchFn: func(ctx context.Context, analysisIDs []string) (*domain.BatchPreview, error) {
			return previewFor([]string{"a1"}, nil), nil
		},
	}
	dialog, err := Open(context.Background(), collaborator, []string{"a1"}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	if _, err := dialog.Confirm(context.Background()); err != nil {
		t.Fatalf("Confirm() error = %v", err)
	}

	if err := dialog.ToggleRecipient("a1"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("ToggleRecipient() after done error = %v, want ErrConflict", err)
	}
	if _, err := dialog.Confirm(context.Background()); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("Confirm() after done error = %v, want ErrConflict", err)
	}
}
