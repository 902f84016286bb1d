package workflow

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"
	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/inbound"
	"github.com/goliatone/go-turns/transport"
)

const defaultNotifyRetryDelay = 30 * time.Second

// reportStepFailure tells the platform the step failed and returns cause
// wrapped as TURNS_WORKFLOW_STEP_FAILED. When the notification itself
// fails it is queued for StepFailureRetrier.
func (s *Subscribers) reportStepFailure(
	ctx context.Context,
	event inbound.Event,
	req core.TurnRequest,
	executeID string,
	cause error,
) error {
	fields := map[string]any{
		"tenant_id":                req.TenantID,
		"workflow_id":              req.WorkflowID,
		"workflow_step_execute_id": executeID,
		"error":                    cause.Error(),
	}
	s.metrics.IncCounter(ctx, core.MetricStepFailures, 1, map[string]string{"workflow_id": req.WorkflowID})

	if executeID != "" {
		var notifyErr error
		if event.Sender == nil {
			notifyErr = missingSenderError(event.Key)
		} else {
			_, notifyErr = event.Sender.Send(ctx, transport.MethodStepFailed, stepFailedMessage(executeID, cause.Error()))
		}
		if notifyErr != nil {
			fields["notify_error"] = notifyErr.Error()
			if queueErr := s.enqueueStepFailure(ctx, req, executeID, cause.Error()); queueErr != nil {
				fields["enqueue_error"] = queueErr.Error()
			}
		}
	}
	core.LogWithLevel(ctx, s.logger, "error", "workflow step failed", fields)
	return stepFailedError(cause, map[string]any{
		"tenant_id":                req.TenantID,
		"workflow_id":              req.WorkflowID,
		"workflow_step_execute_id": executeID,
	})
}

func (s *Subscribers) enqueueStepFailure(ctx context.Context, req core.TurnRequest, executeID, message string) error {
	if s.enqueuer == nil {
		return workflowError("workflow: no job enqueuer for step failure notifications", goerrors.CategoryInternal, core.ErrorInternal, nil)
	}
	return s.enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          core.JobIDStepFailureNotify,
		IdempotencyKey: executeID,
		Parameters: map[string]any{
			"tenant_id":                req.TenantID,
			"workflow_id":              req.WorkflowID,
			"workflow_step_execute_id": executeID,
			"error":                    message,
		},
	})
}

func stepFailedMessage(executeID, message string) map[string]any {
	return map[string]any{
		"workflow_step_execute_id": executeID,
		"error": map[string]any{
			"message": message,
		},
	}
}

// attemptNacker is implemented by deliveries that bound retries by attempt.
type attemptNacker interface {
	NackForAttempt(ctx context.Context, opts core.JobNackOptions, attempt int) error
}

type RetrierOption func(*StepFailureRetrier)

func WithRetrierHook(hook core.JobWorkerHook) RetrierOption {
	return func(r *StepFailureRetrier) {
		r.hook = hook
	}
}

func WithRetrierDelay(delay time.Duration) RetrierOption {
	return func(r *StepFailureRetrier) {
		if delay >= 0 {
			r.retryDelay = delay
		}
	}
}

// WithRetrierMaxAttempts makes the given attempt the last one: it is dead
// lettered and reported as a failure instead of a retry. Zero means no
// limit.
func WithRetrierMaxAttempts(attempts int) RetrierOption {
	return func(r *StepFailureRetrier) {
		if attempts >= 0 {
			r.maxAttempts = attempts
		}
	}
}

func WithRetrierLogger(logger core.Logger) RetrierOption {
	return func(r *StepFailureRetrier) {
		r.logger = logger
	}
}

func WithRetrierClock(now func() time.Time) RetrierOption {
	return func(r *StepFailureRetrier) {
		if now != nil {
			r.now = now
		}
	}
}

// StepFailureRetrier delivers queued workflows.stepFailed notifications.
// Failed sends are nacked for redelivery after the retry delay. Jobs that
// can never succeed (unknown tenant, malformed parameters) or that used up
// their attempts go to the dead letter queue.
type StepFailureRetrier struct {
	dequeuer    core.JobDequeuer
	store       core.TenantStore
	senders     core.SenderFactory
	hook        core.JobWorkerHook
	retryDelay  time.Duration
	maxAttempts int
	logger      core.Logger
	now         func() time.Time

	mu       sync.Mutex
	attempts map[string]int
}

func NewStepFailureRetrier(
	dequeuer core.JobDequeuer,
	store core.TenantStore,
	senders core.SenderFactory,
	opts ...RetrierOption,
) (*StepFailureRetrier, error) {
	if dequeuer == nil || store == nil || senders == nil {
		return nil, workflowError("workflow: retrier needs a dequeuer, tenant store and sender factory", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	r := &StepFailureRetrier{
		dequeuer:   dequeuer,
		store:      store,
		senders:    senders,
		retryDelay: defaultNotifyRetryDelay,
		now:        func() time.Time { return time.Now().UTC() },
		attempts:   map[string]int{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	_, r.logger = glog.Resolve("turns.workflow.retrier", nil, r.logger)
	r.logger = glog.Ensure(r.logger)
	return r, nil
}

// Run processes deliveries until ctx is done or the dequeuer fails.
func (r *StepFailureRetrier) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		if err := r.ProcessNext(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// ProcessNext handles one delivery. Only dequeue and ack/nack errors are
// returned; a failed notification is a retry, not an error.
func (r *StepFailureRetrier) ProcessNext(ctx context.Context) error {
	delivery, err := r.dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	if msg == nil || msg.JobID != core.JobIDStepFailureNotify {
		return delivery.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "unexpected job"})
	}

	key := attemptKey(msg)
	attempt := r.nextAttempt(key)
	event := core.JobWorkerEvent{Message: msg, Attempt: attempt, StartedAt: r.now()}
	r.onStart(ctx, event)

	sendErr := r.notify(ctx, msg)
	event.Duration = r.now().Sub(event.StartedAt)
	if sendErr == nil {
		r.forget(key)
		r.onSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	event.Err = sendErr
	opts := core.JobNackOptions{Delay: r.retryDelay, Requeue: true, Reason: sendErr.Error()}
	if isPermanent(sendErr) || r.exhausted(attempt) {
		opts = core.JobNackOptions{DeadLetter: true, Reason: sendErr.Error()}
		r.forget(key)
		r.onFailure(ctx, event)
	} else {
		event.Delay = r.retryDelay
		r.onRetry(ctx, event)
	}
	core.LogWithLevel(ctx, r.logger, "warn", "step failure notification not delivered", map[string]any{
		"idempotency_key": msg.IdempotencyKey,
		"attempt":         attempt,
		"error":           sendErr.Error(),
	})
	if nacker, ok := delivery.(attemptNacker); ok {
		return nacker.NackForAttempt(ctx, opts, attempt)
	}
	return delivery.Nack(ctx, opts)
}

func (r *StepFailureRetrier) notify(ctx context.Context, msg *core.JobExecutionMessage) error {
	tenantID := paramString(msg.Parameters, "tenant_id")
	executeID := paramString(msg.Parameters, "workflow_step_execute_id")
	if executeID == "" {
		executeID = strings.TrimSpace(msg.IdempotencyKey)
	}
	if tenantID == "" || executeID == "" {
		return workflowError("workflow: step failure job is missing tenant or execute id", goerrors.CategoryBadInput, core.ErrorBadInput, nil)
	}
	record, err := r.store.Get(ctx, tenantID)
	if err != nil {
		return err
	}
	sender := r.senders(&record, core.Payload{"team_id": tenantID})
	if sender == nil {
		return missingSenderError(core.JobIDStepFailureNotify)
	}
	message := paramString(msg.Parameters, "error")
	if message == "" {
		message = "workflow step failed"
	}
	_, err = sender.Send(ctx, transport.MethodStepFailed, stepFailedMessage(executeID, message))
	return err
}

func (r *StepFailureRetrier) exhausted(attempt int) bool {
	return r.maxAttempts > 0 && attempt >= r.maxAttempts
}

func isPermanent(err error) bool {
	if errors.Is(err, core.ErrTenantNotFound) {
		return true
	}
	var rich *goerrors.Error
	return goerrors.As(err, &rich) && rich.Category == goerrors.CategoryBadInput
}

func attemptKey(msg *core.JobExecutionMessage) string {
	if key := strings.TrimSpace(msg.IdempotencyKey); key != "" {
		return key
	}
	return paramString(msg.Parameters, "workflow_step_execute_id")
}

func (r *StepFailureRetrier) nextAttempt(key string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[key]++
	return r.attempts[key]
}

func (r *StepFailureRetrier) forget(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.attempts, key)
}

func (r *StepFailureRetrier) onStart(ctx context.Context, event core.JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnStart(ctx, event)
	}
}

func (r *StepFailureRetrier) onSuccess(ctx context.Context, event core.JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnSuccess(ctx, event)
	}
}

func (r *StepFailureRetrier) onFailure(ctx context.Context, event core.JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnFailure(ctx, event)
	}
}

func (r *StepFailureRetrier) onRetry(ctx context.Context, event core.JobWorkerEvent) {
	if r.hook != nil {
		r.hook.OnRetry(ctx, event)
	}
}

func paramString(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}
