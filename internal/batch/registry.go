package batch

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ouldcheikh/labconsole/internal/domain"
	"github.com/ouldcheikh/labconsole/internal/store"
	"go.uber.org/zap"
)

// PageRefresher re-fetches the record store's current page after a confirmed
// batch so statuses reflect whatever the upstream already applied.
type PageRefresher interface {
	Refresh(ctx context.Context) store.Result
}

// Registry tracks live batch dialogs per operator action. Dialogs left idle
// are purged, standing in for view teardown; a purged dialog simply no longer
// accepts edits or confirmation.
type Registry struct {
	collaborator Collaborator
	refresher    PageRefresher
	selection    *store.SelectionSet
	logger       *zap.Logger
	now          func() time.Time

	mu      sync.Mutex
	dialogs map[string]*registryEntry
}

type registryEntry struct {
	dialog      *Dialog
	lastTouched time.Time
}

func NewRegistry(collaborator Collaborator, refresher PageRefresher, selection *store.SelectionSet, logger *zap.Logger) (*Registry, error) {
	return newRegistry(collaborator, refresher, selection, logger, time.Now)
}

func newRegistry(
	collaborator Collaborator,
	refresher PageRefresher,
	selection *store.SelectionSet,
	logger *zap.Logger,
	nowFn func() time.Time,
) (*Registry, error) {
	if collaborator == nil {
		return nil, fmt.Errorf("upstream collaborator is required")
	}
	if refresher == nil {
		return nil, fmt.Errorf("page refresher is required")
	}
	if selection == nil {
		return nil, fmt.Errorf("selection set is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if nowFn == nil {
		nowFn = time.Now
	}

	return &Registry{
		collaborator: collaborator,
		refresher:    refresher,
		selection:    selection,
		logger:       logger,
		now:          nowFn,
		dialogs:      map[string]*registryEntry{},
	}, nil
}

// Open starts a dialog for the current selection and returns its id with the
// initial view. A successful confirmation later refreshes the record page and
// clears the selection exactly once.
func (r *Registry) Open(ctx context.Context) (string, View, error) {
	analysisIDs := r.selection.IDs()
	if len(analysisIDs) == 0 {
		return "", View{}, fmt.Errorf("%w: no analysis is selected", domain.ErrValidation)
	}

	dialog, err := Open(ctx, r.collaborator, analysisIDs, r.reconcile)
	if err != nil {
		return "", View{}, err
	}

	id := uuid.NewString()

	r.mu.Lock()
	r.dialogs[id] = &registryEntry{
		dialog:      dialog,
		lastTouched: r.now(),
	}
	r.mu.Unlock()

	r.logger.Info("batch dialog opened",
		zap.String("dialogId", id),
		zap.Int("selected", len(analysisIDs)),
	)

	return id, dialog.View(), nil
}

// Get returns a live dialog and refreshes its idle clock.
func (r *Registry) Get(id string) (*Dialog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.dialogs[id]
	if !ok {
		return nil, fmt.Errorf("%w: dialog %s", domain.ErrNotFound, id)
	}
	entry.lastTouched = r.now()
	return entry.dialog, nil
}

// Cancel drops a dialog and clears the selection, mirroring an explicit
// dialog close. Cancelling an unknown id is not an error.
func (r *Registry) Cancel(id string) {
	r.mu.Lock()
	_, existed := r.dialogs[id]
	delete(r.dialogs, id)
	r.mu.Unlock()

	if existed {
		r.selection.Clear()
		r.logger.Info("batch dialog cancelled", zap.String("dialogId", id))
	}
}

// Remove drops a finished dialog without touching the selection.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	delete(r.dialogs, id)
	r.mu.Unlock()
}

// Purge evicts dialogs idle for longer than maxIdle and returns how many
// were dropped.
func (r *Registry) Purge(maxIdle time.Duration) int {
	cutoff := r.now().Add(-maxIdle)

	r.mu.Lock()
	defer r.mu.Unlock()

	purged := 0
	for id, entry := range r.dialogs {
		if entry.lastTouched.Before(cutoff) {
			delete(r.dialogs, id)
			purged++
		}
	}
	if purged > 0 {
		r.logger.Info("purged idle batch dialogs", zap.Int("count", purged))
	}
	return purged
}

// reconcile runs once per confirmed batch: full page re-fetch instead of
// piecemeal merging, then selection reset. The queued count is surfaced by
// the dialog view once and never persisted.
func (r *Registry) reconcile(ctx context.Context, queued int) {
	if result := r.refresher.Refresh(ctx); !result.Success {
		r.logger.Warn("post-batch refresh failed", zap.String("error", result.Error))
	}
	r.selection.Clear()

	r.logger.Info("batch confirmed", zap.Int("queuedSuccessfully", queued))
}
