package command

import (
	"strings"

	"github.com/goliatone/go-turns/core"
)

const (
	TypeConfigureRotation = "turns.command.rotation.configure"
	TypeAssignTurn        = "turns.command.rotation.assign"
	TypeSkipTurn          = "turns.command.rotation.skip"
	TypeSaveInstallation  = "turns.command.installation.save"
)

type ConfigureRotationMessage struct {
	Request core.ConfigureRotationRequest
}

func (ConfigureRotationMessage) Type() string { return TypeConfigureRotation }

func (m ConfigureRotationMessage) Validate() error {
	if err := validateTurnRequest(m.Request.TenantID, m.Request.WorkflowID); err != nil {
		return err
	}
	if len(m.Request.Users) == 0 {
		return commandValidationError("users", "at least one user is required")
	}
	for _, user := range m.Request.Users {
		if strings.TrimSpace(user) == "" {
			return commandValidationError("users", "user ids must not be blank")
		}
	}
	return nil
}

type AssignTurnMessage struct {
	Request core.TurnRequest
}

func (AssignTurnMessage) Type() string { return TypeAssignTurn }

func (m AssignTurnMessage) Validate() error {
	return validateTurnRequest(m.Request.TenantID, m.Request.WorkflowID)
}

type SkipTurnMessage struct {
	Request core.TurnRequest
}

func (SkipTurnMessage) Type() string { return TypeSkipTurn }

func (m SkipTurnMessage) Validate() error {
	return validateTurnRequest(m.Request.TenantID, m.Request.WorkflowID)
}

type SaveInstallationMessage struct {
	TenantID string
	Auth     map[string]any
}

func (SaveInstallationMessage) Type() string { return TypeSaveInstallation }

func (m SaveInstallationMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if len(m.Auth) == 0 {
		return commandValidationError("auth", "auth fields are required")
	}
	return nil
}

func validateTurnRequest(tenantID, workflowID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return commandValidationError("tenant_id", "tenant id is required")
	}
	if strings.TrimSpace(workflowID) == "" {
		return commandValidationError("workflow_id", "workflow id is required")
	}
	return nil
}
