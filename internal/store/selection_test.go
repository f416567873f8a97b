package store

import (
	"testing"

	"github.com/ouldcheikh/labconsole/internal/domain"
)

func TestSelectionToggle(t *testing.T) {
	t.Parallel()

	selection := NewSelectionSet()

	selection.Toggle("a1")
	selection.Toggle("a2")
	if !selection.Contains("a1") || !selection.Contains("a2") {
		t.Fatal("toggled ids should be selected")
	}
	if got := selection.Count(); got != 2 {
		t.Fatalf("Count() = %d, want 2", got)
	}

	selection.Toggle("a1")
	if selection.Contains("a1") {
		t.Fatal("second toggle should remove the id")
	}
	if got := selection.IDs(); len(got) != 1 || got[0] != "a2" {
		t.Fatalf("IDs() = %v, want [a2]", got)
	}
}

func TestSelectionKeepsInsertionOrder(t *testing.T) {
	t.Parallel()

	selection := NewSelectionSet()
	selection.Toggle("a3")
	selection.Toggle("a1")
	selection.Toggle("a2")

	got := selection.IDs()
	want := []string{"a3", "a1", "a2"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("IDs() = %v, want %v", got, want)
		}
	}
}

func TestSelectAllEligibleTogglesAll(t *testing.T) {
	t.Parallel()

	records := []domain.AnalysisRecord{
		record("a1", domain.StatusPending),
		record("a2", domain.StatusSent),
		record("a3", domain.StatusFailed),
		record("a4", domain.StatusDelivered),
	}

	selection := NewSelectionSet()
	selection.SelectAllEligible(records)

	got := selection.IDs()
	if len(got) != 2 || got[0] != "a1" || got[1] != "a3" {
		t.Fatalf("IDs() = %v, want pending and failed only", got)
	}

	// Involution: with the eligible set unchanged, a second call empties it.
	selection.SelectAllEligible(records)
	if got := selection.Count(); got != 0 {
		t.Fatalf("Count() after second toggle-all = %d, want 0", got)
	}
}

func TestSelectAllEligibleReplacesPartialSelection(t *testing.T) {
	t.Parallel()

	records := []domain.AnalysisRecord{
		record("a1", domain.StatusPending),
		record("a2", domain.StatusFailed),
	}

	selection := NewSelectionSet()
	selection.Toggle("a1")

	selection.SelectAllEligible(records)
	if got := selection.Count(); got != 2 {
		t.Fatalf("Count() = %d, want the full eligible set", got)
	}
}

func TestSelectionPruneDropsIneligible(t *testing.T) {
	t.Parallel()

	selection := NewSelectionSet()
	selection.Toggle("a1")
	selection.Toggle("a2")
	selection.Toggle("a3")

	selection.Prune([]domain.AnalysisRecord{
		record("a1", domain.StatusSent),
		record("a2", domain.StatusFailed),
	})

	got := selection.IDs()
	if len(got) != 1 || got[0] != "a2" {
		t.Fatalf("IDs() = %v, want only the still-eligible a2", got)
	}
}

func TestSelectionClear(t *testing.T) {
	t.Parallel()

	selection := NewSelectionSet()
	selection.Toggle("a1")
	selection.Clear()

	if got := selection.Count(); got != 0 {
		t.Fatalf("Count() = %d, want 0", got)
	}
}
