package core

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryTenantStore is a process-local TenantStore with the same version
// semantics as the SQL store.
type MemoryTenantStore struct {
	mu      sync.RWMutex
	records map[string]TenantRecord
}

func NewMemoryTenantStore() *MemoryTenantStore {
	return &MemoryTenantStore{records: map[string]TenantRecord{}}
}

func (s *MemoryTenantStore) Get(_ context.Context, id string) (TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[strings.TrimSpace(id)]
	if !ok {
		return TenantRecord{}, ErrTenantNotFound
	}
	return record.Clone(), nil
}

// Save stores record when record.Version equals the stored version (zero for
// a new tenant) and returns it with the version bumped.
func (s *MemoryTenantStore) Save(_ context.Context, record TenantRecord) (TenantRecord, error) {
	id := strings.TrimSpace(record.ID)
	if id == "" {
		return TenantRecord{}, ErrTenantNotFound
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, exists := s.records[id]
	storedVersion := 0
	if exists {
		storedVersion = current.Version
	}
	if record.Version != storedVersion {
		return TenantRecord{}, ErrVersionConflict
	}
	next := record.Clone()
	next.ID = id
	next.Version = storedVersion + 1
	if exists && !current.CreatedAt.IsZero() {
		next.CreatedAt = current.CreatedAt
	}
	s.records[id] = next
	return next.Clone(), nil
}

func (s *MemoryTenantStore) List(context.Context) ([]TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TenantRecord, 0, len(s.records))
	for _, record := range s.records {
		out = append(out, record.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryAssignmentStore keeps assignment history in insertion order.
type MemoryAssignmentStore struct {
	mu    sync.Mutex
	items []Assignment
}

func NewMemoryAssignmentStore() *MemoryAssignmentStore {
	return &MemoryAssignmentStore{}
}

func (s *MemoryAssignmentStore) Record(_ context.Context, assignment Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = append(s.items, assignment)
	return nil
}

// ListAssignments returns matching assignments, newest first.
func (s *MemoryAssignmentStore) ListAssignments(_ context.Context, filter AssignmentFilter) ([]Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []Assignment{}
	for i := len(s.items) - 1; i >= 0; i-- {
		item := s.items[i]
		if filter.TenantID != "" && item.TenantID != filter.TenantID {
			continue
		}
		if filter.WorkflowID != "" && item.WorkflowID != filter.WorkflowID {
			continue
		}
		out = append(out, item)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

var (
	_ TenantStore        = (*MemoryTenantStore)(nil)
	_ TenantLister       = (*MemoryTenantStore)(nil)
	_ AssignmentRecorder = (*MemoryAssignmentStore)(nil)
	_ AssignmentLister   = (*MemoryAssignmentStore)(nil)
)
