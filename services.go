package turns

import "github.com/goliatone/go-turns/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type TenantStore = core.TenantStore
type TenantRecord = core.TenantRecord
type AssignmentRecorder = core.AssignmentRecorder
type AssignmentLister = core.AssignmentLister
type MetricsRecorder = core.MetricsRecorder

type ConfigureRotationRequest = core.ConfigureRotationRequest

type TurnRequest = core.TurnRequest

type TurnResult = core.TurnResult

var (
	WithLogger             = core.WithLogger
	WithLoggerProvider     = core.WithLoggerProvider
	WithMetricsRecorder    = core.WithMetricsRecorder
	WithErrorMapper        = core.WithErrorMapper
	WithConfigProvider     = core.WithConfigProvider
	WithOptionsResolver    = core.WithOptionsResolver
	WithTenantStore        = core.WithTenantStore
	WithAssignmentRecorder = core.WithAssignmentRecorder
	WithConflictBackoff    = core.WithConflictBackoff
	WithClock              = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
