package webhooks

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/inbound"
)

// Router is the part of inbound.Router the dispatcher needs.
type Router interface {
	Dispatch(ctx context.Context, payload core.Payload, collab inbound.Collaborators) inbound.DispatchResult
}

// InstallHandler serves GET deliveries (the OAuth install flow).
type InstallHandler interface {
	Handle(ctx context.Context, req core.InboundRequest) core.Response
}

type Option func(*Dispatcher)

func WithVerifier(verifier Verifier) Option {
	return func(d *Dispatcher) {
		d.verifier = verifier
	}
}

func WithClaimStore(store core.IdempotencyClaimStore) Option {
	return func(d *Dispatcher) {
		d.claims = store
	}
}

func WithBurstController(controller BurstController) Option {
	return func(d *Dispatcher) {
		d.burst = controller
	}
}

func WithInstallHandler(handler InstallHandler) Option {
	return func(d *Dispatcher) {
		d.installer = handler
	}
}

func WithSenderFactory(factory core.SenderFactory) Option {
	return func(d *Dispatcher) {
		d.senders = factory
	}
}

func WithIgnoreBots(ignore bool) Option {
	return func(d *Dispatcher) {
		d.ignoreBots = ignore
	}
}

func WithClaimLease(lease time.Duration) Option {
	return func(d *Dispatcher) {
		if lease > 0 {
			d.claimLease = lease
		}
	}
}

func WithRetryDelay(delay time.Duration) Option {
	return func(d *Dispatcher) {
		if delay >= 0 {
			d.retryDelay = delay
		}
	}
}

func WithLogger(logger core.Logger) Option {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) Option {
	return func(d *Dispatcher) {
		if recorder != nil {
			d.metrics = recorder
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// Dispatcher is the entry point for platform deliveries. POST deliveries go
// through parse, verify, challenge, bot filter, dedupe, tenant load and
// router dispatch; GET deliveries go to the install handler.
//
// A dedupe claim moves processing -> complete when every handler succeeded,
// and processing -> retry_ready when any failed, so a platform retry of the
// same event runs again instead of being acknowledged as a duplicate.
type Dispatcher struct {
	router     Router
	store      core.TenantStore
	senders    core.SenderFactory
	installer  InstallHandler
	verifier   Verifier
	claims     core.IdempotencyClaimStore
	burst      BurstController
	ignoreBots bool
	claimLease time.Duration
	retryDelay time.Duration
	logger     core.Logger
	metrics    core.MetricsRecorder
	now        func() time.Time
}

func NewDispatcher(router Router, store core.TenantStore, opts ...Option) (*Dispatcher, error) {
	if router == nil {
		return nil, webhookError("webhooks: router is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	if store == nil {
		return nil, webhookError("webhooks: tenant store is required", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	d := &Dispatcher{
		router:     router,
		store:      store,
		ignoreBots: true,
		claimLease: core.DefaultDedupeTTL,
		metrics:    core.NopMetricsRecorder{},
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	_, d.logger = glog.Resolve("turns.webhooks", nil, d.logger)
	d.logger = glog.Ensure(d.logger)
	return d, nil
}

// Handle processes one delivery. The returned response is always usable;
// err carries the failure that produced a non-2xx response.
func (d *Dispatcher) Handle(ctx context.Context, req core.InboundRequest) (core.Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	switch strings.ToUpper(strings.TrimSpace(req.Method)) {
	case http.MethodGet:
		if d.installer == nil {
			return d.finish(ctx, "install", errorResponse(http.StatusMethodNotAllowed),
				webhookError("webhooks: install flow is not configured", goerrors.CategoryBadInput, core.ErrorBadInput, nil))
		}
		return d.finish(ctx, "install", d.installer.Handle(ctx, req), nil)
	case http.MethodPost, "":
	default:
		return d.finish(ctx, "rejected", errorResponse(http.StatusMethodNotAllowed),
			webhookError("webhooks: method not allowed", goerrors.CategoryBadInput, core.ErrorBadInput, map[string]any{"method": req.Method}))
	}

	payload, err := ParsePayload(req)
	if err != nil {
		return d.finish(ctx, "rejected", errorResponse(http.StatusBadRequest), err)
	}

	if d.verifier != nil {
		if verifyErr := d.verifier.Verify(ctx, payload); verifyErr != nil {
			return d.finish(ctx, "unauthorized", errorResponse(http.StatusUnauthorized), verifyErr)
		}
	}

	if challenge := payload.String("challenge"); challenge != "" {
		return d.finish(ctx, "challenge", core.TextResponse(http.StatusOK, challenge), nil)
	}

	if d.ignoreBots && payload.IsBotMessage() {
		return d.finish(ctx, "ignored", core.OK(), nil)
	}

	claimID := ""
	if d.claims != nil {
		if key, ok := DeliveryID(payload); ok {
			id, accepted, claimErr := d.claims.Claim(ctx, key, d.claimLease)
			if claimErr != nil {
				return d.finish(ctx, "failed", errorResponse(http.StatusInternalServerError), claimErr)
			}
			if !accepted {
				d.metrics.IncCounter(ctx, core.MetricDeliveryDuplicates, 1, nil)
				core.LogWithLevel(ctx, d.logger, "debug", "duplicate delivery acknowledged", map[string]any{
					"idempotency_key": key,
				})
				return d.finish(ctx, "duplicate", core.OK(), nil)
			}
			claimID = id
		}
	}

	if d.burst != nil {
		decision, burstErr := d.burst.Allow(ctx, payload)
		if burstErr != nil {
			d.release(ctx, claimID, burstErr)
			return d.finish(ctx, "failed", errorResponse(http.StatusInternalServerError), burstErr)
		}
		if !decision.Allow {
			d.complete(ctx, claimID)
			core.LogWithLevel(ctx, d.logger, "debug", "interaction debounced", decision.Metadata)
			return d.finish(ctx, "debounced", core.OK(), nil)
		}
	}

	tenant, err := d.loadTenant(ctx, payload)
	if err != nil {
		d.release(ctx, claimID, err)
		return d.finish(ctx, "failed", errorResponse(http.StatusInternalServerError), err)
	}

	collab := inbound.Collaborators{Tenant: tenant, Store: d.store}
	if d.senders != nil {
		collab.Sender = d.senders(tenant, payload)
	}
	result := d.router.Dispatch(ctx, payload, collab)

	if dispatchErr := result.Err(); dispatchErr != nil {
		d.release(ctx, claimID, dispatchErr)
		core.LogWithLevel(ctx, d.logger, "error", "dispatch finished with handler failures", map[string]any{
			"dispatch_id": result.ID,
			"tenant_id":   payload.TenantID(),
			"keys":        result.Keys,
			"failures":    len(result.Failures),
			"error":       dispatchErr.Error(),
		})
		if !result.HasResponse() {
			return d.finish(ctx, "failed", errorResponse(http.StatusInternalServerError), dispatchErr)
		}
		return d.finish(ctx, "partial", *result.Response, nil)
	}

	d.complete(ctx, claimID)
	if !result.HasResponse() {
		return d.finish(ctx, "dispatched", core.OK(), nil)
	}
	return d.finish(ctx, "dispatched", *result.Response, nil)
}

// loadTenant returns nil (not an error) for payloads from tenants that never
// installed; handlers decide whether they can work without auth.
func (d *Dispatcher) loadTenant(ctx context.Context, payload core.Payload) (*core.TenantRecord, error) {
	tenantID := payload.TenantID()
	if tenantID == "" {
		return nil, nil
	}
	record, err := d.store.Get(ctx, tenantID)
	if err != nil {
		if errors.Is(err, core.ErrTenantNotFound) {
			core.LogWithLevel(ctx, d.logger, "warn", "delivery from unknown tenant", map[string]any{
				"tenant_id": tenantID,
			})
			return nil, nil
		}
		return nil, core.WrapError(err, goerrors.CategoryInternal, "webhooks: load tenant", core.ErrorInternal, map[string]any{
			"tenant_id": tenantID,
		})
	}
	return &record, nil
}

func (d *Dispatcher) complete(ctx context.Context, claimID string) {
	if claimID == "" || d.claims == nil {
		return
	}
	if err := d.claims.Complete(ctx, claimID); err != nil {
		core.LogWithLevel(ctx, d.logger, "warn", "dedupe claim completion failed", map[string]any{"error": err.Error()})
	}
}

func (d *Dispatcher) release(ctx context.Context, claimID string, cause error) {
	if claimID == "" || d.claims == nil {
		return
	}
	if err := d.claims.Fail(ctx, claimID, cause, d.now().Add(d.retryDelay)); err != nil {
		core.LogWithLevel(ctx, d.logger, "warn", "dedupe claim release failed", map[string]any{"error": err.Error()})
	}
}

func (d *Dispatcher) finish(ctx context.Context, outcome string, res core.Response, err error) (core.Response, error) {
	d.metrics.IncCounter(ctx, core.MetricWebhookTotal, 1, map[string]string{"outcome": outcome})
	if err != nil {
		mapped := core.MapError(err)
		var rich *goerrors.Error
		if goerrors.As(mapped, &rich) && res.StatusCode == 0 {
			res.StatusCode = rich.Code
		}
		core.LogWithLevel(ctx, d.logger, "warn", "delivery rejected", map[string]any{
			"outcome":     outcome,
			"status_code": res.StatusCode,
			"error":       mapped.Error(),
		})
		return res, mapped
	}
	if res.StatusCode == 0 {
		res.StatusCode = http.StatusOK
	}
	return res, nil
}

func errorResponse(status int) core.Response {
	return core.Response{StatusCode: status}
}
