package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-turns/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const defaultAssignmentLimit = 50

// AssignmentStore is the append-only history of assign and skip operations.
type AssignmentStore struct {
	db   *bun.DB
	repo repository.Repository[*assignmentRecord]
}

func NewAssignmentStore(db *bun.DB) (*AssignmentStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*assignmentRecord](db, assignmentHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid assignment repository wiring: %w", err)
		}
	}
	return &AssignmentStore{db: db, repo: repo}, nil
}

func (s *AssignmentStore) Record(ctx context.Context, assignment core.Assignment) error {
	if s == nil || s.repo == nil {
		return fmt.Errorf("sqlstore: assignment store is not configured")
	}
	if strings.TrimSpace(assignment.TenantID) == "" || strings.TrimSpace(assignment.WorkflowID) == "" {
		return fmt.Errorf("sqlstore: assignment requires tenant_id and workflow_id")
	}
	id := strings.TrimSpace(assignment.ID)
	if id == "" {
		id = uuid.NewString()
	}
	record := newAssignmentRecord(assignment, id, time.Now().UTC())
	if record.Action == "" {
		record.Action = core.AssignmentActionAssign
	}
	_, err := s.repo.Create(ctx, record)
	return err
}

// ListAssignments returns the newest entries first.
func (s *AssignmentStore) ListAssignments(ctx context.Context, filter core.AssignmentFilter) ([]core.Assignment, error) {
	if s == nil || s.repo == nil {
		return nil, fmt.Errorf("sqlstore: assignment store is not configured")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultAssignmentLimit
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(limit, 0),
	}
	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" {
		selectors = append(selectors, repository.SelectBy("tenant_id", "=", tenantID))
	}
	if workflowID := strings.TrimSpace(filter.WorkflowID); workflowID != "" {
		selectors = append(selectors, repository.SelectBy("workflow_id", "=", workflowID))
	}
	records, _, err := s.repo.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Assignment, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}
