package sqlstore

import "github.com/goliatone/go-turns/core"

var (
	_ core.TenantStore           = (*TenantStore)(nil)
	_ core.TenantLister          = (*TenantStore)(nil)
	_ core.TenantStore           = (*CachedTenantStore)(nil)
	_ core.TenantLister          = (*CachedTenantStore)(nil)
	_ core.AssignmentRecorder    = (*AssignmentStore)(nil)
	_ core.AssignmentLister      = (*AssignmentStore)(nil)
	_ core.IdempotencyClaimStore = (*DeliveryClaimStore)(nil)
)
