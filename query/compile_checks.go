package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/rotation"
)

var (
	_ gocmd.Querier[GetRotationMessage, rotation.State]        = (*GetRotationQuery)(nil)
	_ gocmd.Querier[ListAssignmentsMessage, []core.Assignment] = (*ListAssignmentsQuery)(nil)
	_ gocmd.Querier[GetTenantMessage, core.TenantRecord]       = (*GetTenantQuery)(nil)

	_ RotationReader = (*core.Service)(nil)
	_ TenantReader   = (*core.Service)(nil)
)
