package workflow

import (
	"context"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/inbound"
	"github.com/goliatone/go-turns/rotation"
)

const (
	CallbackCreateList     = "create_list_in_channel"
	CallbackSelectFromList = "select_one_from_list"
	ActionSkipAssignment   = "skip_assignment"
	DefaultSlashCommand    = "/turns"

	KeyShortcut            = "shortcut"
	KeyWorkflowStepEdit    = "workflow_step_edit"
	KeyViewSubmission      = "view_submission"
	KeyWorkflowStepExecute = "workflow_step_execute"
	KeyBlockActions        = "block_actions"

	OutputAssignedUser = "assigned_user"
)

// TurnService is the rotation API the subscribers drive. core.Service
// implements it.
type TurnService interface {
	ConfigureRotation(ctx context.Context, req core.ConfigureRotationRequest) (rotation.State, error)
	GetRotation(ctx context.Context, req core.TurnRequest) (rotation.State, error)
	AssignTurn(ctx context.Context, req core.TurnRequest) (core.TurnResult, error)
	SkipTurn(ctx context.Context, req core.TurnRequest) (core.TurnResult, error)
	RevertTurn(ctx context.Context, result core.TurnResult) (core.TurnResult, error)
}

type Option func(*Subscribers)

// WithJobEnqueuer sets where step failure notifications go when the
// platform could not be told directly.
func WithJobEnqueuer(enqueuer core.JobEnqueuer) Option {
	return func(s *Subscribers) {
		s.enqueuer = enqueuer
	}
}

func WithSlashCommand(command string) Option {
	return func(s *Subscribers) {
		if command = strings.TrimSpace(command); command != "" {
			s.slashCommand = command
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(s *Subscribers) {
		s.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(s *Subscribers) {
		if recorder != nil {
			s.metrics = recorder
		}
	}
}

type Subscribers struct {
	service      TurnService
	enqueuer     core.JobEnqueuer
	slashCommand string
	logger       core.Logger
	metrics      core.MetricsRecorder
}

func New(service TurnService, opts ...Option) (*Subscribers, error) {
	if service == nil {
		return nil, workflowError("workflow: turn service is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	s := &Subscribers{
		service:      service,
		slashCommand: DefaultSlashCommand,
		metrics:      core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	_, s.logger = glog.Resolve("turns.workflow", nil, s.logger)
	s.logger = glog.Ensure(s.logger)
	return s, nil
}

// Register subscribes every handler on router. The returned func removes
// them again.
func (s *Subscribers) Register(router *inbound.Router) (func(), error) {
	if router == nil {
		return nil, workflowError("workflow: router is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	routes := []struct {
		key     string
		handler inbound.HandlerFunc
	}{
		{KeyShortcut, s.HandleShortcut},
		{KeyWorkflowStepEdit, s.HandleStepEdit},
		{KeyViewSubmission, s.HandleViewSubmission},
		{KeyWorkflowStepExecute, s.HandleStepExecute},
		{KeyBlockActions, s.HandleBlockActions},
		{s.slashCommand, s.HandleSlashCommand},
	}
	cancels := make([]func(), 0, len(routes))
	unsubscribe := func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
	for _, route := range routes {
		cancel, err := router.Subscribe(route.key, route.handler)
		if err != nil {
			unsubscribe()
			return nil, err
		}
		cancels = append(cancels, cancel)
	}
	return unsubscribe, nil
}

func tenantOf(event inbound.Event) string {
	if event.Tenant != nil && strings.TrimSpace(event.Tenant.ID) != "" {
		return event.Tenant.ID
	}
	return event.Payload.TenantID()
}
