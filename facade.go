package turns

import (
	"fmt"

	turnscommand "github.com/goliatone/go-turns/command"
	"github.com/goliatone/go-turns/core"
	turnsquery "github.com/goliatone/go-turns/query"
)

type CommandQueryService interface {
	turnscommand.RotationService
	turnsquery.RotationReader
	turnsquery.TenantReader
}

type Commands struct {
	ConfigureRotation *turnscommand.ConfigureRotationCommand
	AssignTurn        *turnscommand.AssignTurnCommand
	SkipTurn          *turnscommand.SkipTurnCommand
	SaveInstallation  *turnscommand.SaveInstallationCommand
}

type Queries struct {
	GetRotation     *turnsquery.GetRotationQuery
	ListAssignments *turnsquery.ListAssignmentsQuery
	GetTenant       *turnsquery.GetTenantQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	assignmentLister core.AssignmentLister
}

func WithAssignmentLister(lister core.AssignmentLister) FacadeOption {
	return func(options *facadeOptions) {
		options.assignmentLister = lister
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("turns: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	lister := cfg.assignmentLister
	if lister == nil {
		lister = resolveAssignmentLister(service)
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		ConfigureRotation: turnscommand.NewConfigureRotationCommand(service),
		AssignTurn:        turnscommand.NewAssignTurnCommand(service),
		SkipTurn:          turnscommand.NewSkipTurnCommand(service),
		SaveInstallation:  turnscommand.NewSaveInstallationCommand(service),
	}
	facade.queries = Queries{
		GetRotation:     turnsquery.NewGetRotationQuery(service),
		ListAssignments: turnsquery.NewListAssignmentsQuery(lister),
		GetTenant:       turnsquery.NewGetTenantQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveAssignmentLister falls back to the service's assignment recorder
// when it can also list history.
func resolveAssignmentLister(service CommandQueryService) core.AssignmentLister {
	if lister, ok := service.(core.AssignmentLister); ok {
		return lister
	}
	provider, ok := service.(interface {
		Dependencies() core.ServiceDependencies
	})
	if !ok {
		return nil
	}
	lister, _ := provider.Dependencies().AssignmentRecorder.(core.AssignmentLister)
	return lister
}
