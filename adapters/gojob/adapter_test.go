package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-turns/core"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"
)

func TestMessageMappingRoundTrip(t *testing.T) {
	original := &core.JobExecutionMessage{
		JobID:          core.JobIDStepFailureNotify,
		ScriptPath:     "workflows.stepFailed",
		Parameters:     map[string]any{"tenant_id": "T1"},
		IdempotencyKey: "Wfe1",
		DedupPolicy:    "drop",
	}

	converted := ToExecutionMessage(original)
	if converted == nil {
		t.Fatalf("expected converted message")
	}
	roundTrip := FromExecutionMessage(converted)
	if roundTrip.JobID != original.JobID {
		t.Fatalf("expected job id %q, got %q", original.JobID, roundTrip.JobID)
	}
	if roundTrip.ScriptPath != original.ScriptPath {
		t.Fatalf("expected script path %q, got %q", original.ScriptPath, roundTrip.ScriptPath)
	}
	if roundTrip.IdempotencyKey != original.IdempotencyKey {
		t.Fatalf("expected idempotency key %q, got %q", original.IdempotencyKey, roundTrip.IdempotencyKey)
	}
	if roundTrip.DedupPolicy != original.DedupPolicy {
		t.Fatalf("expected dedup policy %q, got %q", original.DedupPolicy, roundTrip.DedupPolicy)
	}
	if roundTrip.Parameters["tenant_id"] != "T1" {
		t.Fatalf("expected parameters to survive mapping")
	}
}

func TestEnqueueAndDequeueAdapters(t *testing.T) {
	ctx := context.Background()
	enqueuer := &stubQueueEnqueuer{}
	enqueueAdapter := NewEnqueuerAdapter(enqueuer)

	msg := &core.JobExecutionMessage{
		JobID:          core.JobIDStepFailureNotify,
		ScriptPath:     "workflows.stepFailed",
		Parameters:     map[string]any{"workflow_step_execute_id": "Wfe2"},
		IdempotencyKey: "Wfe2",
		DedupPolicy:    "merge",
	}
	if err := enqueueAdapter.Enqueue(ctx, msg); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if enqueuer.last == nil || enqueuer.last.JobID != core.JobIDStepFailureNotify {
		t.Fatalf("expected mapped go-job message")
	}

	dequeuer := &stubQueueDequeuer{delivery: &stubQueueDelivery{msg: enqueuer.last}}
	dequeueAdapter := NewDequeuerAdapter(dequeuer, RetryPolicy{})
	delivery, err := dequeueAdapter.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	got := delivery.Message()
	if got == nil || got.JobID != core.JobIDStepFailureNotify {
		t.Fatalf("expected mapped core message")
	}
	if err := delivery.Ack(ctx); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if !dequeuer.delivery.(*stubQueueDelivery).acked {
		t.Fatalf("expected ack on underlying delivery")
	}
}

func TestNackRetryPolicyBoundaries(t *testing.T) {
	ctx := context.Background()
	rawDelivery := &stubQueueDelivery{
		msg: &job.ExecutionMessage{
			JobID:      core.JobIDStepFailureNotify,
			ScriptPath: "workflows.stepFailed",
		},
	}
	adapter := NewDeliveryAdapter(rawDelivery, RetryPolicy{
		MaxAttempts:     3,
		MaxDelay:        10 * time.Second,
		DeadLetterOnMax: true,
	})

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{
		Delay:   30 * time.Second,
		Requeue: true,
		Reason:  "transient",
	}, 1); err != nil {
		t.Fatalf("nack attempt 1: %v", err)
	}
	if rawDelivery.nackOpts.Delay != 10*time.Second {
		t.Fatalf("expected delay to be bounded, got %s", rawDelivery.nackOpts.Delay)
	}
	if !rawDelivery.nackOpts.Requeue {
		t.Fatalf("expected message to be requeued before max attempts")
	}

	if err := adapter.NackForAttempt(ctx, core.JobNackOptions{
		Delay:   time.Second,
		Requeue: true,
		Reason:  "still failing",
	}, 3); err != nil {
		t.Fatalf("nack max attempt: %v", err)
	}
	if rawDelivery.nackOpts.Requeue {
		t.Fatalf("expected no requeue once max attempts is reached")
	}
	if !rawDelivery.nackOpts.DeadLetter {
		t.Fatalf("expected dead letter on max attempts")
	}
}

func TestWorkerHookAdapterForwardsToGoJobHook(t *testing.T) {
	now := time.Now().UTC().Add(-time.Second)
	var got worker.Event
	calls := 0
	adapter := NewWorkerHookAdapter(worker.HookFuncs{
		OnRetryFunc: func(_ context.Context, event worker.Event) {
			calls++
			got = event
		},
	})

	adapter.OnStart(context.Background(), core.JobWorkerEvent{})
	adapter.OnRetry(context.Background(), core.JobWorkerEvent{
		Message: &core.JobExecutionMessage{
			JobID:          core.JobIDStepFailureNotify,
			ScriptPath:     "workflows.stepFailed",
			IdempotencyKey: "Wfe3",
		},
		Attempt:   2,
		Delay:     5 * time.Second,
		Err:       errors.New("retry"),
		StartedAt: now,
		Duration:  250 * time.Millisecond,
	})
	if calls != 1 {
		t.Fatalf("expected only the retry callback, got %d calls", calls)
	}
	if got.Message == nil || got.Message.JobID != core.JobIDStepFailureNotify || got.Message.IdempotencyKey != "Wfe3" {
		t.Fatalf("expected go-job message mapping, got %#v", got.Message)
	}
	if got.Attempt != 2 || got.Delay != 5*time.Second || got.Duration != 250*time.Millisecond {
		t.Fatalf("unexpected event mapping %#v", got)
	}
	if !got.StartedAt.Equal(now) {
		t.Fatalf("expected started_at mapping")
	}
	if got.Err == nil || got.Err.Error() != "retry" {
		t.Fatalf("expected error mapping")
	}

	var nilAdapter *WorkerHookAdapter
	nilAdapter.OnFailure(context.Background(), core.JobWorkerEvent{})
}

func TestMetricsHookCountsOutcomes(t *testing.T) {
	recorder := &recordingMetrics{}
	hook := NewWorkerHookAdapter(MetricsHook(recorder))
	event := core.JobWorkerEvent{
		Message:  &core.JobExecutionMessage{JobID: core.JobIDStepFailureNotify},
		Attempt:  5,
		Duration: 40 * time.Millisecond,
	}
	hook.OnStart(context.Background(), event)
	hook.OnFailure(context.Background(), event)

	if len(recorder.counters) != 2 {
		t.Fatalf("expected two counters, got %#v", recorder.counters)
	}
	failure := recorder.counters[1]
	if failure.name != core.MetricJobEvents || failure.tags["outcome"] != "failure" || failure.tags["job_id"] != core.JobIDStepFailureNotify {
		t.Fatalf("unexpected failure counter %#v", failure)
	}
	if len(recorder.histograms) != 1 || recorder.histograms[0].value != 40 {
		t.Fatalf("expected one duration observation, got %#v", recorder.histograms)
	}
}

type metricSample struct {
	name  string
	value float64
	tags  map[string]string
}

type recordingMetrics struct {
	counters   []metricSample
	histograms []metricSample
}

func (r *recordingMetrics) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	r.counters = append(r.counters, metricSample{name: name, value: float64(value), tags: tags})
}

func (r *recordingMetrics) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	r.histograms = append(r.histograms, metricSample{name: name, value: value, tags: tags})
}

type stubQueueEnqueuer struct {
	last *job.ExecutionMessage
}

func (s *stubQueueEnqueuer) Enqueue(_ context.Context, msg *job.ExecutionMessage) error {
	s.last = msg
	return nil
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}
