package query

import (
	"context"

	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/rotation"
)

type RotationReader interface {
	GetRotation(ctx context.Context, req core.TurnRequest) (rotation.State, error)
}

type TenantReader interface {
	GetTenant(ctx context.Context, tenantID string) (core.TenantRecord, error)
}

type GetRotationQuery struct {
	reader RotationReader
}

func NewGetRotationQuery(reader RotationReader) *GetRotationQuery {
	return &GetRotationQuery{reader: reader}
}

func (q *GetRotationQuery) Query(ctx context.Context, msg GetRotationMessage) (rotation.State, error) {
	if q == nil || q.reader == nil {
		return rotation.State{}, queryDependencyError("query: rotation reader is required")
	}
	if err := msg.Validate(); err != nil {
		return rotation.State{}, err
	}
	return q.reader.GetRotation(ctx, msg.Request)
}

type ListAssignmentsQuery struct {
	lister core.AssignmentLister
}

func NewListAssignmentsQuery(lister core.AssignmentLister) *ListAssignmentsQuery {
	return &ListAssignmentsQuery{lister: lister}
}

func (q *ListAssignmentsQuery) Query(ctx context.Context, msg ListAssignmentsMessage) ([]core.Assignment, error) {
	if q == nil || q.lister == nil {
		return nil, queryDependencyError("query: assignment lister is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.lister.ListAssignments(ctx, msg.Filter)
}

type GetTenantQuery struct {
	reader TenantReader
}

func NewGetTenantQuery(reader TenantReader) *GetTenantQuery {
	return &GetTenantQuery{reader: reader}
}

func (q *GetTenantQuery) Query(ctx context.Context, msg GetTenantMessage) (core.TenantRecord, error) {
	if q == nil || q.reader == nil {
		return core.TenantRecord{}, queryDependencyError("query: tenant reader is required")
	}
	if err := msg.Validate(); err != nil {
		return core.TenantRecord{}, err
	}
	return q.reader.GetTenant(ctx, msg.TenantID)
}
