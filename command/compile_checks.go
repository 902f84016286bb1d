package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[ConfigureRotationMessage] = (*ConfigureRotationCommand)(nil)
	_ gocmd.Commander[AssignTurnMessage]        = (*AssignTurnCommand)(nil)
	_ gocmd.Commander[SkipTurnMessage]          = (*SkipTurnCommand)(nil)
	_ gocmd.Commander[SaveInstallationMessage]  = (*SaveInstallationCommand)(nil)
)
