package query

import (
	"strings"

	"github.com/goliatone/go-turns/core"
)

const (
	TypeGetRotation     = "turns.query.rotation.get"
	TypeListAssignments = "turns.query.assignments.list"
	TypeGetTenant       = "turns.query.tenant.get"
)

type GetRotationMessage struct {
	Request core.TurnRequest
}

func (GetRotationMessage) Type() string { return TypeGetRotation }

func (m GetRotationMessage) Validate() error {
	if strings.TrimSpace(m.Request.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(m.Request.WorkflowID) == "" {
		return queryValidationError("workflow_id", "workflow id is required")
	}
	return nil
}

type ListAssignmentsMessage struct {
	Filter core.AssignmentFilter
}

func (ListAssignmentsMessage) Type() string { return TypeListAssignments }

func (m ListAssignmentsMessage) Validate() error {
	if strings.TrimSpace(m.Filter.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	if m.Filter.Limit < 0 {
		return queryValidationError("limit", "limit must be zero or positive")
	}
	return nil
}

type GetTenantMessage struct {
	TenantID string
}

func (GetTenantMessage) Type() string { return TypeGetTenant }

func (m GetTenantMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return queryValidationError("tenant_id", "tenant id is required")
	}
	return nil
}
