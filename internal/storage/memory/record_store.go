package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JakeFAU/pdp-auditor/internal/audit"
)

// RecordStore implements audit.RecordStore in memory. Upserts replace the
// whole record stored under its key.
type RecordStore struct {
	mu        sync.RWMutex
	products  map[string]audit.ProductRecord
	snapshots map[string]audit.SnapshotRecord
	sources   map[string]audit.SourceRecord
	runs      map[string]audit.RunRecord
	jobs      map[string]audit.JobRecord
}

// NewRecordStore constructs an empty RecordStore.
func NewRecordStore() *RecordStore {
	return &RecordStore{
		products:  make(map[string]audit.ProductRecord),
		snapshots: make(map[string]audit.SnapshotRecord),
		sources:   make(map[string]audit.SourceRecord),
		runs:      make(map[string]audit.RunRecord),
		jobs:      make(map[string]audit.JobRecord),
	}
}

// UpsertProduct stores rec under its product key.
func (s *RecordStore) UpsertProduct(_ context.Context, rec audit.ProductRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("product key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[rec.Key] = rec
	return nil
}

// UpsertSnapshot stores rec under its snapshot key.
func (s *RecordStore) UpsertSnapshot(_ context.Context, rec audit.SnapshotRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("snapshot key is required")
	}
	rec.Viewports = append([]audit.Viewport(nil), rec.Viewports...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[rec.Key] = rec
	return nil
}

// UpsertSource stores rec under its snapshot key and viewport.
func (s *RecordStore) UpsertSource(_ context.Context, rec audit.SourceRecord) error {
	if rec.SnapshotKey == "" || rec.Viewport == "" {
		return fmt.Errorf("source needs a snapshot key and viewport")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sources[sourceKey(rec.SnapshotKey, rec.Viewport)] = rec
	return nil
}

// UpsertRun stores rec under its run key.
func (s *RecordStore) UpsertRun(_ context.Context, rec audit.RunRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("run key is required")
	}
	rec.Errors = append([]audit.Error(nil), rec.Errors...)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[rec.Key] = rec
	return nil
}

// UpsertJob stores rec under its audit key.
func (s *RecordStore) UpsertJob(_ context.Context, rec audit.JobRecord) error {
	if rec.Key == "" {
		return fmt.Errorf("audit key is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[rec.Key] = rec
	return nil
}

// GetRun fetches a run by key.
func (s *RecordStore) GetRun(_ context.Context, runKey string) (audit.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.runs[runKey]
	if !ok {
		return audit.RunRecord{}, fmt.Errorf("run %s: %w", runKey, audit.ErrNotFound)
	}
	rec.Errors = append([]audit.Error(nil), rec.Errors...)
	return rec, nil
}

// GetJob fetches a job by audit key.
func (s *RecordStore) GetJob(_ context.Context, auditKey string) (audit.JobRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.jobs[auditKey]
	if !ok {
		return audit.JobRecord{}, fmt.Errorf("job %s: %w", auditKey, audit.ErrNotFound)
	}
	return rec, nil
}

// Product returns a stored product record.
func (s *RecordStore) Product(key string) (audit.ProductRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.products[key]
	return rec, ok
}

// Snapshot returns a stored snapshot record.
func (s *RecordStore) Snapshot(key string) (audit.SnapshotRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.snapshots[key]
	return rec, ok
}

// Sources lists the source records of a snapshot ordered by viewport.
func (s *RecordStore) Sources(snapshotKey string) []audit.SourceRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []audit.SourceRecord
	for _, rec := range s.sources {
		if rec.SnapshotKey == snapshotKey {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Viewport < out[j].Viewport })
	return out
}

func sourceKey(snapshotKey string, vp audit.Viewport) string {
	return snapshotKey + "/" + string(vp)
}
