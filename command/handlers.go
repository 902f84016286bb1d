package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/rotation"
)

// RotationService is the mutating side of core.Service.
type RotationService interface {
	ConfigureRotation(ctx context.Context, req core.ConfigureRotationRequest) (rotation.State, error)
	AssignTurn(ctx context.Context, req core.TurnRequest) (core.TurnResult, error)
	SkipTurn(ctx context.Context, req core.TurnRequest) (core.TurnResult, error)
	SaveInstallation(ctx context.Context, tenantID string, auth map[string]any) (core.TenantRecord, error)
}

type ConfigureRotationCommand struct {
	service RotationService
}

func NewConfigureRotationCommand(service RotationService) *ConfigureRotationCommand {
	return &ConfigureRotationCommand{service: service}
}

func (c *ConfigureRotationCommand) Execute(ctx context.Context, msg ConfigureRotationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: rotation service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.ConfigureRotation(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AssignTurnCommand struct {
	service RotationService
}

func NewAssignTurnCommand(service RotationService) *AssignTurnCommand {
	return &AssignTurnCommand{service: service}
}

func (c *AssignTurnCommand) Execute(ctx context.Context, msg AssignTurnMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: rotation service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.AssignTurn(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SkipTurnCommand struct {
	service RotationService
}

func NewSkipTurnCommand(service RotationService) *SkipTurnCommand {
	return &SkipTurnCommand{service: service}
}

func (c *SkipTurnCommand) Execute(ctx context.Context, msg SkipTurnMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: rotation service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.SkipTurn(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SaveInstallationCommand struct {
	service RotationService
}

func NewSaveInstallationCommand(service RotationService) *SaveInstallationCommand {
	return &SaveInstallationCommand{service: service}
}

func (c *SaveInstallationCommand) Execute(ctx context.Context, msg SaveInstallationMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: installation service is required")
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	out, err := c.service.SaveInstallation(ctx, msg.TenantID, msg.Auth)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
