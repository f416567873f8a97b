package store

import (
	"sync"

	"github.com/ouldcheikh/labconsole/internal/domain"
)

// SelectionSet tracks which eligible analyses are marked for batch dispatch.
// Eligibility means status pending or failed; ids keep insertion order so a
// batch submission carries them as originally selected.
type SelectionSet struct {
	mu    sync.Mutex
	order []string
	ids   map[string]struct{}
}

func NewSelectionSet() *SelectionSet {
	return &SelectionSet{
		ids: map[string]struct{}{},
	}
}

// Toggle adds the id when absent and removes it when present.
func (s *SelectionSet) Toggle(id string) {
	if id == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		s.removeLocked(id)
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
}

// SelectAllEligible is a toggle-all: when the selection already equals the
// full eligible set it clears, otherwise it replaces the selection with every
// eligible record. It is never an additive union.
func (s *SelectionSet) SelectAllEligible(records []domain.AnalysisRecord) {
	eligible := make([]string, 0, len(records))
	for _, record := range records {
		if record.Status.Eligible() {
			eligible = append(eligible, record.ID)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.equalsLocked(eligible) {
		s.clearLocked()
		return
	}

	s.clearLocked()
	for _, id := range eligible {
		s.ids[id] = struct{}{}
		s.order = append(s.order, id)
	}
}

// Prune drops selected ids that are no longer eligible in the given records.
// An id absent from the records is dropped too; the page has moved past it.
func (s *SelectionSet) Prune(records []domain.AnalysisRecord) {
	eligible := make(map[string]struct{}, len(records))
	for _, record := range records {
		if record.Status.Eligible() {
			eligible[record.ID] = struct{}{}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	for _, id := range s.order {
		if _, ok := eligible[id]; ok {
			kept = append(kept, id)
			continue
		}
		delete(s.ids, id)
	}
	s.order = kept
}

func (s *SelectionSet) Contains(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.ids[id]
	return ok
}

func (s *SelectionSet) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// IDs returns the selected ids in insertion order.
func (s *SelectionSet) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, len(s.order))
	copy(ids, s.order)
	return ids
}

func (s *SelectionSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *SelectionSet) removeLocked(id string) {
	delete(s.ids, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

func (s *SelectionSet) clearLocked() {
	s.order = s.order[:0]
	s.ids = map[string]struct{}{}
}

func (s *SelectionSet) equalsLocked(ids []string) bool {
	if len(ids) != len(s.ids) {
		return false
	}
	for _, id := range ids {
		if _, ok := s.ids[id]; !ok {
			return false
		}
	}
	return true
}
