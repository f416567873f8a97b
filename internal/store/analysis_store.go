// Package store owns the console's cached view of the upstream analysis list:
// one page of records, the active filter set, pagination, the current detail
// selection, and the batch selection set. All mutations flow through command
// methods; views observe immutable snapshots.
package store

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/ouldcheikh/labconsole/internal/domain"
	"github.com/ouldcheikh/labconsole/internal/upstream"
	"go.uber.org/zap"
)

// Collaborator is the slice of the upstream client the store drives.
type Collaborator interface {
	ListAnalyses(ctx context.Context, query upstream.ListQuery) (*upstream.AnalysisPage, error)
	GetAnalysis(ctx context.Context, id string) (*domain.AnalysisRecord, error)
	CreateAnalysis(ctx context.Context, meta domain.CreateAnalysis, filename string, file io.Reader) (*domain.AnalysisRecord, error)
	SendAnalysis(ctx context.Context, id string) (*domain.AnalysisRecord, error)
	RetryAnalysis(ctx context.Context, id string) error
	DeleteAnalysis(ctx context.Context, id string) error
	Stats(ctx context.Context) (*domain.StatsSummary, error)
}

// Result is the non-throwing outcome every store command returns. Error holds
// the upstream's verbatim message when one exists; callers branch on the
// wrapped sentinel via Err.
type Result struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	err     error
}

func (r Result) Err() error {
	return r.err
}

func okResult() Result {
	return Result{Success: true}
}

func failResult(err error) Result {
	return Result{
		Success: false,
		Error:   upstream.ServerMessage(err),
		err:     err,
	}
}

// Snapshot is an immutable copy of the store state handed to observers.
type Snapshot struct {
	Records    []domain.AnalysisRecord `json:"records"`
	Pagination domain.Pagination       `json:"pagination"`
	Filters    map[string]string       `json:"filters"`
	CurrentID  string                  `json:"currentId,omitempty"`
	Loading    bool                    `json:"loading"`
	Stats      *domain.StatsSummary    `json:"stats,omitempty"`
}

// AnalysisStore caches one page of analysis records. Commands call the
// collaborator outside the lock and fold the response back in; a sequence
// guard discards list responses that were overtaken by a newer request.
type AnalysisStore struct {
	collaborator Collaborator
	logger       *zap.Logger
	defaultLimit int

	mu          sync.Mutex
	records     []domain.AnalysisRecord
	pagination  domain.Pagination
	filters     map[string]string
	currentID   string
	loading     int
	stats       *domain.StatsSummary
	listSeq     uint64
	appliedSeq  uint64
	subscribers []chan Snapshot
}

func NewAnalysisStore(collaborator Collaborator, defaultLimit int, logger *zap.Logger) (*AnalysisStore, error) {
	if collaborator == nil {
		return nil, errors.New("upstream collaborator is required")
	}
	if defaultLimit <= 0 {
		defaultLimit = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AnalysisStore{
		collaborator: collaborator,
		logger:       logger,
		defaultLimit: defaultLimit,
		pagination:   domain.Pagination{Page: 1, Limit: defaultLimit},
		filters:      map[string]string{},
	}, nil
}

// ListParams addresses one page. A zero Limit keeps the current one; Filters
// are merged into the active set, with empty values removing their key.
type ListParams struct {
	Page    int
	Limit   int
	Filters map[string]string
}

// List fetches a page and replaces the cached one. A response that resolves
// after a newer List call is discarded rather than applied last-write-wins.
func (s *AnalysisStore) List(ctx context.Context, params ListParams) Result {
	s.mu.Lock()
	s.mergeFiltersLocked(params.Filters)

	limit := s.pagination.Limit
	if params.Limit > 0 && params.Limit != limit {
		limit = params.Limit
		params.Page = 1
	}
	page := params.Page
	if page < 1 {
		page = 1
	}

	query := upstream.ListQuery{
		Page:    page,
		Limit:   limit,
		Filters: copyFilters(s.filters),
	}
	s.listSeq++
	seq := s.listSeq
	s.setLoadingLocked(true)
	s.mu.Unlock()

	defer s.doneLoading()

	result, err := s.collaborator.ListAnalyses(ctx, query)
	if err != nil {
		s.logger.Warn("list analyses failed", zap.Error(err))
		return failResult(err)
	}

	s.mu.Lock()
	if seq < s.appliedSeq {
		s.mu.Unlock()
		s.logger.Debug("discarding stale list response")
		return okResult()
	}
	s.appliedSeq = seq
	s.records = result.Analyses
	s.pagination = result.Pagination
	s.pagination.Limit = limit
	s.pagination = s.pagination.Clamp()
	s.notifyLocked()
	s.mu.Unlock()

	return okResult()
}

// Refresh re-fetches the current page with the active filters.
func (s *AnalysisStore) Refresh(ctx context.Context) Result {
	s.mu.Lock()
	page := s.pagination.Page
	s.mu.Unlock()

	return s.List(ctx, ListParams{Page: page})
}

// UpdateFilters merges new filter values and re-lists from page 1.
func (s *AnalysisStore) UpdateFilters(ctx context.Context, filters map[string]string) Result {
	return s.List(ctx, ListParams{Page: 1, Filters: filters})
}

// ClearFilters drops the whole filter set and re-lists from page 1.
func (s *AnalysisStore) ClearFilters(ctx context.Context) Result {
	s.mu.Lock()
	s.filters = map[string]string{}
	s.mu.Unlock()

	return s.List(ctx, ListParams{Page: 1})
}

// Create uploads a new analysis. The record joins the head of the cache only
// after the upstream acknowledges it; there is no optimistic insert.
func (s *AnalysisStore) Create(ctx context.Context, meta domain.CreateAnalysis, filename string, file io.Reader) (*domain.AnalysisRecord, Result) {
	s.startLoading()
	defer s.doneLoading()

	created, err := s.collaborator.CreateAnalysis(ctx, meta, filename, file)
	if err != nil {
		s.logger.Warn("create analysis failed", zap.Error(err))
		return nil, failResult(err)
	}

	s.mu.Lock()
	s.records = append([]domain.AnalysisRecord{*created}, s.records...)
	s.pagination.Total++
	s.notifyLocked()
	s.mu.Unlock()

	return created, okResult()
}

// Get fetches one record without touching the cached page, and marks it as
// the current detail selection.
func (s *AnalysisStore) Get(ctx context.Context, id string) (*domain.AnalysisRecord, Result) {
	s.startLoading()
	defer s.doneLoading()

	record, err := s.collaborator.GetAnalysis(ctx, id)
	if err != nil {
		s.logger.Warn("get analysis failed", zap.String("id", id), zap.Error(err))
		return nil, failResult(err)
	}

	s.mu.Lock()
	s.currentID = record.ID
	s.replaceRecordLocked(*record)
	s.notifyLocked()
	s.mu.Unlock()

	return record, okResult()
}

// Send dispatches one analysis and mirrors the upstream's returned record.
// The status transition itself happens server-side.
func (s *AnalysisStore) Send(ctx context.Context, id string) (*domain.AnalysisRecord, Result) {
	s.startLoading()
	defer s.doneLoading()

	record, err := s.collaborator.SendAnalysis(ctx, id)
	if err != nil {
		s.logger.Warn("send analysis failed", zap.String("id", id), zap.Error(err))
		return nil, failResult(err)
	}

	s.mu.Lock()
	s.replaceRecordLocked(*record)
	if s.currentID == id {
		s.currentID = record.ID
	}
	s.notifyLocked()
	s.mu.Unlock()

	return record, okResult()
}

// Retry asks the upstream to retry a failed dispatch, then re-fetches the
// current page because the retry endpoint acknowledges without a record body.
func (s *AnalysisStore) Retry(ctx context.Context, id string) Result {
	s.startLoading()

	err := s.collaborator.RetryAnalysis(ctx, id)
	s.doneLoading()
	if err != nil {
		s.logger.Warn("retry analysis failed", zap.String("id", id), zap.Error(err))
		return failResult(err)
	}

	return s.Refresh(ctx)
}

// Remove deletes one analysis and evicts it from the cache. Deleting the
// current detail selection clears that selection too.
func (s *AnalysisStore) Remove(ctx context.Context, id string) Result {
	s.startLoading()
	defer s.doneLoading()

	if err := s.collaborator.DeleteAnalysis(ctx, id); err != nil {
		s.logger.Warn("delete analysis failed", zap.String("id", id), zap.Error(err))
		return failResult(err)
	}

	s.mu.Lock()
	kept := s.records[:0]
	for _, record := range s.records {
		if record.ID != id {
			kept = append(kept, record)
		}
	}
	s.records = kept
	if s.pagination.Total > 0 {
		s.pagination.Total--
	}
	if s.currentID == id {
		s.currentID = ""
	}
	s.notifyLocked()
	s.mu.Unlock()

	return okResult()
}

// Stats fetches the analytics summary. It lives beside the record cache, not
// inside it.
func (s *AnalysisStore) Stats(ctx context.Context) (*domain.StatsSummary, Result) {
	s.startLoading()
	defer s.doneLoading()

	stats, err := s.collaborator.Stats(ctx)
	if err != nil {
		s.logger.Warn("stats fetch failed", zap.Error(err))
		return nil, failResult(err)
	}

	s.mu.Lock()
	s.stats = stats
	s.notifyLocked()
	s.mu.Unlock()

	return stats, okResult()
}

// SetCurrent marks a cached record as the detail selection.
func (s *AnalysisStore) SetCurrent(id string) {
	s.mu.Lock()
	s.currentID = id
	s.notifyLocked()
	s.mu.Unlock()
}

// Snapshot returns a copy of the store state.
func (s *AnalysisStore) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers a latest-wins observer channel. A slow reader only ever
// misses intermediate snapshots, never the newest one.
func (s *AnalysisStore) Subscribe() <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	s.mu.Lock()
	s.subscribers = append(s.subscribers, ch)
	s.mu.Unlock()

	return ch
}

func (s *AnalysisStore) snapshotLocked() Snapshot {
	records := make([]domain.AnalysisRecord, len(s.records))
	copy(records, s.records)

	var stats *domain.StatsSummary
	if s.stats != nil {
		statsCopy := *s.stats
		stats = &statsCopy
	}

	return Snapshot{
		Records:    records,
		Pagination: s.pagination,
		Filters:    copyFilters(s.filters),
		CurrentID:  s.currentID,
		Loading:    s.loading > 0,
		Stats:      stats,
	}
}

func (s *AnalysisStore) notifyLocked() {
	snapshot := s.snapshotLocked()
	for _, ch := range s.subscribers {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snapshot:
			default:
			}
		}
	}
}

func (s *AnalysisStore) mergeFiltersLocked(filters map[string]string) {
	for key, value := range filters {
		if value == "" {
			delete(s.filters, key)
			continue
		}
		s.filters[key] = value
	}
}

func (s *AnalysisStore) replaceRecordLocked(record domain.AnalysisRecord) {
	for i := range s.records {
		if s.records[i].ID == record.ID {
			s.records[i] = record
			return
		}
	}
}

func (s *AnalysisStore) startLoading() {
	s.mu.Lock()
	s.setLoadingLocked(true)
	s.mu.Unlock()
}

func (s *AnalysisStore) doneLoading() {
	s.mu.Lock()
	s.setLoadingLocked(false)
	s.notifyLocked()
	s.mu.Unlock()
}

func (s *AnalysisStore) setLoadingLocked(on bool) {
	if on {
		s.loading++
		return
	}
	if s.loading > 0 {
		s.loading--
	}
}

func copyFilters(filters map[string]string) map[string]string {
	copied := make(map[string]string, len(filters))
	for key, value := range filters {
		copied[key] = value
	}
	return copied
}
