package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-turns/rotation"
	"github.com/google/uuid"
)

// Service runs the rotation use-cases against a TenantStore. Every mutation
// is an optimistic read-modify-write retried on ErrVersionConflict.
type Service struct {
	config             Config
	logger             Logger
	loggerProvider     LoggerProvider
	metricsRecorder    MetricsRecorder
	errorMapper        ErrorMapper
	configProvider     ConfigProvider
	optionsResolver    OptionsResolver
	tenantStore        TenantStore
	assignmentRecorder AssignmentRecorder
	conflictBackoff    BackoffFactory
	now                func() time.Time
}

type ServiceDependencies struct {
	Logger             Logger
	LoggerProvider     LoggerProvider
	MetricsRecorder    MetricsRecorder
	ErrorMapper        ErrorMapper
	ConfigProvider     ConfigProvider
	OptionsResolver    OptionsResolver
	TenantStore        TenantStore
	AssignmentRecorder AssignmentRecorder
}

// TurnResult is the outcome of an assign or skip. Previous is the rotation
// before the turn and State the rotation after it.
type TurnResult struct {
	TenantID   string
	WorkflowID string
	UserID     string
	Skipped    string
	State      rotation.State
	Previous   rotation.State
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	builder := defaultServiceBuilder(cfg)
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&builder)
	}

	provider, logger := glog.Resolve(defaultServiceName, builder.loggerProvider, builder.logger)
	logger = glog.Ensure(logger)
	if provider != nil {
		if named := provider.GetLogger(defaultServiceName); named != nil {
			logger = glog.Ensure(named)
		}
	}

	if builder.metricsRecorder == nil {
		builder.metricsRecorder = NopMetricsRecorder{}
	}
	if builder.errorMapper == nil {
		builder.errorMapper = defaultErrorMapper
	}
	if builder.configProvider == nil {
		builder.configProvider = NewCfgxConfigProvider(nil)
	}
	if builder.optionsResolver == nil {
		builder.optionsResolver = GoOptionsResolver{}
	}
	if builder.tenantStore == nil {
		builder.tenantStore = NewMemoryTenantStore()
	}
	if builder.conflictBackoff == nil {
		builder.conflictBackoff = DefaultConflictBackoff
	}
	if builder.now == nil {
		builder.now = func() time.Time { return time.Now().UTC() }
	}

	defaults := DefaultConfig()
	loaded, err := builder.configProvider.Load(context.Background(), defaults)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}
	finalConfig, err := builder.optionsResolver.Resolve(defaults, loaded, builder.runtimeConfig)
	if err != nil {
		return nil, mapBuildError(builder.errorMapper, err)
	}

	return &Service{
		config:             finalConfig,
		logger:             logger,
		loggerProvider:     provider,
		metricsRecorder:    builder.metricsRecorder,
		errorMapper:        builder.errorMapper,
		configProvider:     builder.configProvider,
		optionsResolver:    builder.optionsResolver,
		tenantStore:        builder.tenantStore,
		assignmentRecorder: builder.assignmentRecorder,
		conflictBackoff:    builder.conflictBackoff,
		now:                builder.now,
	}, nil
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return NewService(cfg, opts...)
}

func mapBuildError(mapper ErrorMapper, err error) error {
	if err == nil {
		return nil
	}
	if mapper == nil {
		return err
	}
	mapped := mapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}

func (s *Service) Config() Config {
	if s == nil {
		return Config{}
	}
	return s.config
}

func (s *Service) Dependencies() ServiceDependencies {
	if s == nil {
		return ServiceDependencies{}
	}
	return ServiceDependencies{
		Logger:             s.logger,
		LoggerProvider:     s.loggerProvider,
		MetricsRecorder:    s.metricsRecorder,
		ErrorMapper:        s.errorMapper,
		ConfigProvider:     s.configProvider,
		OptionsResolver:    s.optionsResolver,
		TenantStore:        s.tenantStore,
		AssignmentRecorder: s.assignmentRecorder,
	}
}

func (s *Service) TenantStore() TenantStore {
	if s == nil {
		return nil
	}
	return s.tenantStore
}

func (s *Service) GetTenant(ctx context.Context, tenantID string) (TenantRecord, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return TenantRecord{}, s.mapError(fmt.Errorf("core: tenant id is required"))
	}
	record, err := s.tenantStore.Get(ctx, tenantID)
	if err != nil {
		return TenantRecord{}, s.mapError(err)
	}
	return record, nil
}

// SaveInstallation upserts the auth fields of a tenant. Configured workflows
// survive a reinstall.
func (s *Service) SaveInstallation(ctx context.Context, tenantID string, auth map[string]any) (record TenantRecord, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{"tenant_id": tenantID}
	defer func() {
		s.observeOperation(ctx, startedAt, "save_installation", err, fields)
	}()

	record, err = s.mutateTenant(ctx, tenantID, true, func(current *TenantRecord) error {
		current.Auth = copyAnyMap(auth)
		delete(current.Auth, "id")
		delete(current.Auth, "workflows")
		return nil
	})
	return record, err
}

// ConfigureRotation sets the participants of a workflow rotation. users is in
// turn order. An existing rotation keeps its order for retained users.
func (s *Service) ConfigureRotation(ctx context.Context, req ConfigureRotationRequest) (state rotation.State, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":   req.TenantID,
		"workflow_id": req.WorkflowID,
		"users":       len(req.Users),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "configure_rotation", err, fields)
	}()

	if err = validateTurnRequest(req.TenantID, req.WorkflowID); err != nil {
		err = s.mapError(err)
		return rotation.State{}, err
	}
	if len(req.Users) == 0 {
		err = s.mapError(rotation.ErrEmptyRotation)
		return rotation.State{}, err
	}

	record, err := s.mutateTenant(ctx, req.TenantID, false, func(current *TenantRecord) error {
		existing, ok := current.Workflow(req.WorkflowID)
		var next rotation.State
		var buildErr error
		if ok {
			next, buildErr = existing.Reconcile(req.Users)
		} else {
			next, buildErr = rotation.New(req.Users)
		}
		if buildErr != nil {
			return buildErr
		}
		current.SetWorkflow(req.WorkflowID, next)
		return nil
	})
	if err != nil {
		return rotation.State{}, err
	}
	state, _ = record.Workflow(req.WorkflowID)
	return state, nil
}

func (s *Service) GetRotation(ctx context.Context, req TurnRequest) (rotation.State, error) {
	if err := validateTurnRequest(req.TenantID, req.WorkflowID); err != nil {
		return rotation.State{}, s.mapError(err)
	}
	record, err := s.tenantStore.Get(ctx, req.TenantID)
	if err != nil {
		return rotation.State{}, s.mapError(err)
	}
	state, ok := record.Workflow(req.WorkflowID)
	if !ok {
		return rotation.State{}, s.mapError(workflowNotConfigured(req))
	}
	return state, nil
}

// AssignTurn hands the turn to the participant next up.
func (s *Service) AssignTurn(ctx context.Context, req TurnRequest) (result TurnResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":   req.TenantID,
		"workflow_id": req.WorkflowID,
	}
	defer func() {
		if result.UserID != "" {
			fields["user_id"] = result.UserID
		}
		s.observeOperation(ctx, startedAt, "assign_turn", err, fields)
	}()

	result, err = s.turn(ctx, req, func(state *rotation.State, out *TurnResult) error {
		userID, assignErr := state.Assign()
		if assignErr != nil {
			return assignErr
		}
		out.UserID = userID
		return nil
	})
	if err != nil {
		return TurnResult{}, err
	}
	s.recordAssignment(ctx, result, AssignmentActionAssign)
	return result, nil
}

// SkipTurn rewinds the most recent assignment and assigns the participant
// before it. Consecutive skips keep walking back through the rotation.
func (s *Service) SkipTurn(ctx context.Context, req TurnRequest) (result TurnResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":   req.TenantID,
		"workflow_id": req.WorkflowID,
	}
	defer func() {
		if result.UserID != "" {
			fields["user_id"] = result.UserID
			fields["skipped_user_id"] = result.Skipped
		}
		s.observeOperation(ctx, startedAt, "skip_turn", err, fields)
	}()

	result, err = s.turn(ctx, req, func(state *rotation.State, out *TurnResult) error {
		out.Skipped, _ = state.Current()
		if skipErr := state.Skip(); skipErr != nil {
			return skipErr
		}
		userID, assignErr := state.Assign()
		if assignErr != nil {
			return assignErr
		}
		out.UserID = userID
		return nil
	})
	if err != nil {
		return TurnResult{}, err
	}
	s.recordAssignment(ctx, result, AssignmentActionSkip)
	return result, nil
}

// RevertTurn hands the turn in result back: the rotation returns to
// result.Previous. It fails with ErrTurnMoved when the rotation changed after
// result was produced, so a later assignment is never undone.
func (s *Service) RevertTurn(ctx context.Context, result TurnResult) (reverted TurnResult, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"tenant_id":   result.TenantID,
		"workflow_id": result.WorkflowID,
		"user_id":     result.UserID,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "revert_turn", err, fields)
	}()

	if strings.TrimSpace(result.UserID) == "" {
		err = s.mapError(fmt.Errorf("core: assigned user is required to revert a turn"))
		return TurnResult{}, err
	}
	req := TurnRequest{TenantID: result.TenantID, WorkflowID: result.WorkflowID}
	reverted, err = s.turn(ctx, req, func(state *rotation.State, out *TurnResult) error {
		if !sameRotation(*state, result.State) {
			return ErrTurnMoved
		}
		*state = result.Previous.Clone()
		out.UserID = result.UserID
		return nil
	})
	if err != nil {
		return TurnResult{}, err
	}
	s.recordAssignment(ctx, reverted, AssignmentActionRevert)
	return reverted, nil
}

func sameRotation(a, b rotation.State) bool {
	return slices.Equal(a.Users, b.Users) &&
		a.Assigned == b.Assigned &&
		a.SkipDepth == b.SkipDepth &&
		a.Skipped == b.Skipped
}

func (s *Service) turn(
	ctx context.Context,
	req TurnRequest,
	apply func(state *rotation.State, out *TurnResult) error,
) (TurnResult, error) {
	if err := validateTurnRequest(req.TenantID, req.WorkflowID); err != nil {
		return TurnResult{}, s.mapError(err)
	}
	var result TurnResult
	record, err := s.mutateTenant(ctx, req.TenantID, false, func(current *TenantRecord) error {
		state, ok := current.Workflow(req.WorkflowID)
		if !ok {
			return workflowNotConfigured(req)
		}
		result = TurnResult{TenantID: req.TenantID, WorkflowID: req.WorkflowID, Previous: state.Clone()}
		if applyErr := apply(&state, &result); applyErr != nil {
			return applyErr
		}
		current.SetWorkflow(req.WorkflowID, state)
		return nil
	})
	if err != nil {
		return TurnResult{}, err
	}
	result.State, _ = record.Workflow(req.WorkflowID)
	return result, nil
}

// mutateTenant loads the tenant, applies mutate to a copy and saves it. A
// lost race (ErrVersionConflict) reloads and reapplies under the conflict
// backoff; every other error stops the loop.
func (s *Service) mutateTenant(
	ctx context.Context,
	tenantID string,
	createMissing bool,
	mutate func(record *TenantRecord) error,
) (TenantRecord, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return TenantRecord{}, s.mapError(fmt.Errorf("core: tenant id is required"))
	}

	var saved TenantRecord
	attempts := 0
	operation := func() error {
		attempts++
		current, err := s.tenantStore.Get(ctx, tenantID)
		if err != nil {
			if !errors.Is(err, ErrTenantNotFound) || !createMissing {
				return backoff.Permanent(err)
			}
			current = NewTenantRecord(tenantID)
		}
		next := current.Clone()
		if err := mutate(&next); err != nil {
			return backoff.Permanent(err)
		}
		next.UpdatedAt = s.now()
		if next.CreatedAt.IsZero() {
			next.CreatedAt = next.UpdatedAt
		}
		saved, err = s.tenantStore.Save(ctx, next)
		if err != nil {
			if errors.Is(err, ErrVersionConflict) {
				s.logWarn(ctx, "tenant write conflict, retrying", map[string]any{
					"tenant_id": tenantID,
					"attempt":   attempts,
				})
				return err
			}
			return backoff.Permanent(err)
		}
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(s.conflictBackoff(), ctx)); err != nil {
		return TenantRecord{}, s.mapError(err)
	}
	return saved, nil
}

func (s *Service) recordAssignment(ctx context.Context, result TurnResult, action string) {
	if s.assignmentRecorder == nil {
		return
	}
	assignment := Assignment{
		ID:         uuid.NewString(),
		TenantID:   result.TenantID,
		WorkflowID: result.WorkflowID,
		UserID:     result.UserID,
		Action:     action,
		SkipDepth:  result.State.SkipDepth,
		CreatedAt:  s.now(),
	}
	if err := s.assignmentRecorder.Record(ctx, assignment); err != nil {
		s.logError(ctx, "assignment history write failed", map[string]any{
			"tenant_id":   result.TenantID,
			"workflow_id": result.WorkflowID,
			"error":       err.Error(),
		})
	}
}

func validateTurnRequest(tenantID, workflowID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return fmt.Errorf("core: tenant id is required")
	}
	if strings.TrimSpace(workflowID) == "" {
		return fmt.Errorf("core: workflow id is required")
	}
	return nil
}

func workflowNotConfigured(req TurnRequest) error {
	return WrapError(
		ErrWorkflowNotConfigured,
		goerrors.CategoryNotFound,
		"workflow rotation is not configured",
		ErrorNotFound,
		map[string]any{"tenant_id": req.TenantID, "workflow_id": req.WorkflowID},
	)
}

func (s *Service) mapError(err error) error {
	if err == nil {
		return nil
	}
	if s == nil || s.errorMapper == nil {
		return err
	}
	mapped := s.errorMapper(err)
	if mapped == nil {
		return err
	}
	return mapped
}
