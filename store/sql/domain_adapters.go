package sqlstore

import (
	"strings"
	"time"

	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/rotation"
)

func newTenantRecord(in core.TenantRecord, now time.Time) *tenantRecord {
	workflows := make(map[string]rotation.State, len(in.Workflows))
	for id, state := range in.Workflows {
		workflows[id] = state.Clone()
	}
	created := in.CreatedAt.UTC()
	if created.IsZero() {
		created = now
	}
	return &tenantRecord{
		ID:        strings.TrimSpace(in.ID),
		Auth:      copyAnyMap(in.Auth),
		Workflows: workflows,
		Version:   in.Version,
		CreatedAt: created,
		UpdatedAt: now,
	}
}

func (r *tenantRecord) toDomain() core.TenantRecord {
	if r == nil {
		return core.TenantRecord{}
	}
	out := core.NewTenantRecord(r.ID)
	for key, value := range r.Auth {
		out.Auth[key] = value
	}
	for id, state := range r.Workflows {
		out.Workflows[id] = state.Clone()
	}
	out.Version = r.Version
	out.CreatedAt = r.CreatedAt.UTC()
	out.UpdatedAt = r.UpdatedAt.UTC()
	return out
}

func newAssignmentRecord(in core.Assignment, id string, now time.Time) *assignmentRecord {
	created := in.CreatedAt.UTC()
	if created.IsZero() {
		created = now
	}
	return &assignmentRecord{
		ID:         id,
		TenantID:   strings.TrimSpace(in.TenantID),
		WorkflowID: strings.TrimSpace(in.WorkflowID),
		UserID:     strings.TrimSpace(in.UserID),
		Action:     strings.TrimSpace(in.Action),
		SkipDepth:  in.SkipDepth,
		CreatedAt:  created,
	}
}

func (r *assignmentRecord) toDomain() core.Assignment {
	if r == nil {
		return core.Assignment{}
	}
	return core.Assignment{
		ID:         r.ID,
		TenantID:   r.TenantID,
		WorkflowID: r.WorkflowID,
		UserID:     r.UserID,
		Action:     r.Action,
		SkipDepth:  r.SkipDepth,
		CreatedAt:  r.CreatedAt.UTC(),
	}
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func timePointer(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}
