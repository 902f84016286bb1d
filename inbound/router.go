package inbound

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-turns/core"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/goliatone/go-turns/inbound"

// Event is the per-handler dispatch context. Payload is shared between the
// handlers of a dispatch and must not be mutated. Tenant is a private copy
// for each handler; persisted changes go through Store.
type Event struct {
	DispatchID string
	Key        string
	Payload    core.Payload
	Tenant     *core.TenantRecord
	Sender     core.MessageSender
	Store      core.TenantStore
	Logger     core.Logger
}

// HandlerFunc handles one routed payload. A nil response leaves the
// aggregate response untouched.
type HandlerFunc func(ctx context.Context, event Event) (*core.Response, error)

// Collaborators are the side channels handed to every handler of a dispatch.
type Collaborators struct {
	Tenant *core.TenantRecord
	Sender core.MessageSender
	Store  core.TenantStore
}

// HandlerFailure is one handler error (or recovered panic) collected during
// a dispatch.
type HandlerFailure struct {
	Key   string
	Index int
	Err   error
}

func (f HandlerFailure) Error() string {
	return fmt.Sprintf("inbound: handler %d for %q failed: %v", f.Index, f.Key, f.Err)
}

func (f HandlerFailure) Unwrap() error {
	return f.Err
}

// DispatchResult is the settled outcome of one dispatch.
type DispatchResult struct {
	ID       string
	Keys     []string
	Invoked  int
	Response *core.Response
	Failures []HandlerFailure
}

func (r DispatchResult) HasResponse() bool {
	return r.Response != nil
}

// Err joins the handler failures into a TURNS_HANDLER_FAILED error, or
// returns nil when every handler succeeded.
func (r DispatchResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failures))
	for _, failure := range r.Failures {
		errs = append(errs, failure)
	}
	return core.WrapError(
		errors.Join(errs...),
		goerrors.CategoryOperation,
		fmt.Sprintf("inbound: %d of %d handlers failed", len(r.Failures), r.Invoked),
		core.ErrorHandlerFailed,
		map[string]any{"dispatch_id": r.ID, "keys": append([]string(nil), r.Keys...)},
	)
}

type subscription struct {
	id      uint64
	handler HandlerFunc
}

type RouterOption func(*Router)

func WithTracer(tracer trace.Tracer) RouterOption {
	return func(r *Router) {
		if tracer != nil {
			r.tracer = tracer
		}
	}
}

func WithLogger(logger core.Logger) RouterOption {
	return func(r *Router) {
		r.logger = logger
	}
}

func WithMetricsRecorder(recorder core.MetricsRecorder) RouterOption {
	return func(r *Router) {
		if recorder != nil {
			r.metrics = recorder
		}
	}
}

// Router maps event keys to ordered handler lists and fans payloads out to
// every matching handler concurrently.
type Router struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	nextID   uint64

	tracer  trace.Tracer
	logger  core.Logger
	metrics core.MetricsRecorder
}

func NewRouter(opts ...RouterOption) *Router {
	router := &Router{
		handlers: map[string][]subscription{},
		tracer:   otel.Tracer(tracerName),
		metrics:  core.NopMetricsRecorder{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(router)
		}
	}
	_, router.logger = glog.Resolve("turns.inbound", nil, router.logger)
	router.logger = glog.Ensure(router.logger)
	return router
}

// Subscribe registers handler under key and returns a function that removes
// exactly this registration. Calling it more than once is a no-op.
func (r *Router) Subscribe(key string, handler HandlerFunc) (func(), error) {
	if r == nil {
		return nil, inboundInternal("inbound: router is nil", nil)
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, inboundBadInput("inbound: event key is required", nil)
	}
	if handler == nil {
		return nil, inboundBadInput("inbound: handler is nil", map[string]any{"key": key})
	}

	r.mu.Lock()
	r.nextID++
	id := r.nextID
	r.handlers[key] = append(r.handlers[key], subscription{id: id, handler: handler})
	r.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { r.unsubscribe(key, id) })
	}, nil
}

func (r *Router) unsubscribe(key string, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	subs := r.handlers[key]
	for i, sub := range subs {
		if sub.id != id {
			continue
		}
		next := make([]subscription, 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(r.handlers, key)
		} else {
			r.handlers[key] = next
		}
		return
	}
}

// Subscribers reports how many handlers are registered under key.
func (r *Router) Subscribers(key string) int {
	if r == nil {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[strings.TrimSpace(key)])
}

type invocation struct {
	key     string
	index   int
	handler HandlerFunc
}

type outcome struct {
	response *core.Response
	err      error
}

// Dispatch classifies payload and invokes every matching handler
// concurrently, returning once all of them have settled. The response is
// the last non-nil one in invocation order (keys in Classify order, then
// registration order), whatever order the handlers finish in.
func (r *Router) Dispatch(ctx context.Context, payload core.Payload, collab Collaborators) DispatchResult {
	if ctx == nil {
		ctx = context.Background()
	}
	startedAt := time.Now()
	result := DispatchResult{ID: uuid.NewString(), Keys: Classify(payload)}
	if r == nil {
		return result
	}

	ctx, span := r.tracer.Start(ctx, "turns.dispatch",
		trace.WithAttributes(
			attribute.String("dispatch.id", result.ID),
			attribute.StringSlice("dispatch.keys", result.Keys),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer span.End()
	span.AddEvent("classified", trace.WithAttributes(attribute.Int("keys", len(result.Keys))))

	invocations := r.snapshot(result.Keys)
	result.Invoked = len(invocations)
	span.AddEvent("fanned_out", trace.WithAttributes(attribute.Int("handlers", len(invocations))))

	outcomes := make([]outcome, len(invocations))
	var wg sync.WaitGroup
	for i, inv := range invocations {
		wg.Add(1)
		go func(slot int, inv invocation) {
			defer wg.Done()
			outcomes[slot] = r.invoke(ctx, result.ID, inv, payload, collab)
		}(i, inv)
	}
	wg.Wait()

	for i, out := range outcomes {
		if out.err != nil {
			result.Failures = append(result.Failures, HandlerFailure{
				Key:   invocations[i].key,
				Index: invocations[i].index,
				Err:   out.err,
			})
			continue
		}
		if out.response != nil {
			result.Response = out.response
		}
	}

	span.AddEvent("settled", trace.WithAttributes(
		attribute.Int("failures", len(result.Failures)),
		attribute.Bool("response", result.Response != nil),
	))
	span.SetAttributes(attribute.Int("dispatch.handlers", result.Invoked))
	if len(result.Failures) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d handler failures", len(result.Failures)))
	} else {
		span.SetStatus(codes.Ok, "")
	}

	status := "success"
	if len(result.Failures) > 0 {
		status = "failure"
		r.metrics.IncCounter(ctx, core.MetricHandlerFailures, int64(len(result.Failures)), nil)
	}
	tags := map[string]string{"status": status}
	r.metrics.IncCounter(ctx, core.MetricDispatchTotal, 1, tags)
	r.metrics.ObserveHistogram(ctx, core.MetricDispatchDuration, float64(time.Since(startedAt).Milliseconds()), tags)
	return result
}

func (r *Router) snapshot(keys []string) []invocation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []invocation{}
	for _, key := range keys {
		for index, sub := range r.handlers[key] {
			out = append(out, invocation{key: key, index: index, handler: sub.handler})
		}
	}
	return out
}

func (r *Router) invoke(
	ctx context.Context,
	dispatchID string,
	inv invocation,
	payload core.Payload,
	collab Collaborators,
) (out outcome) {
	ctx, span := r.tracer.Start(ctx, "turns.handler",
		trace.WithAttributes(
			attribute.String("handler.key", inv.key),
			attribute.Int("handler.index", inv.index),
		),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
	defer func() {
		if recovered := recover(); recovered != nil {
			out = outcome{err: core.NewError(
				fmt.Sprintf("inbound: handler panic: %v", recovered),
				goerrors.CategoryInternal,
				core.ErrorHandlerFailed,
				map[string]any{"key": inv.key, "stack": string(debug.Stack())},
			)}
		}
		if out.err != nil {
			span.RecordError(out.err)
			span.SetStatus(codes.Error, out.err.Error())
			core.LogWithLevel(ctx, r.logger, "error", "handler failed", map[string]any{
				"dispatch_id": dispatchID,
				"key":         inv.key,
				"index":       inv.index,
				"error":       out.err.Error(),
			})
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.End()
	}()

	event := Event{
		DispatchID: dispatchID,
		Key:        inv.key,
		Payload:    payload,
		Sender:     collab.Sender,
		Store:      collab.Store,
		Logger:     r.logger,
	}
	if collab.Tenant != nil {
		tenant := collab.Tenant.Clone()
		event.Tenant = &tenant
	}
	response, err := inv.handler(ctx, event)
	return outcome{response: response, err: err}
}
