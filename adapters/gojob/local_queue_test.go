package gojob

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-turns/core"
)

func TestLocalQueue_RoundTripsThroughAdapters(t *testing.T) {
	ctx := context.Background()
	local := NewLocalQueue(4)
	defer local.Close()

	enqueuer := NewEnqueuerAdapter(local)
	if err := enqueuer.Enqueue(ctx, &core.JobExecutionMessage{
		JobID:          core.JobIDStepFailureNotify,
		IdempotencyKey: "Ex1",
		Parameters:     map[string]any{"tenant_id": "T1"},
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	dequeuer := NewDequeuerAdapter(local, RetryPolicy{MaxAttempts: 2, DeadLetterOnMax: true})
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if delivery.Message().JobID != core.JobIDStepFailureNotify || delivery.Message().Parameters["tenant_id"] != "T1" {
		t.Fatalf("unexpected delivery %#v", delivery.Message())
	}

	if err := delivery.Nack(ctx, core.JobNackOptions{Requeue: true}); err != nil {
		t.Fatalf("nack: %v", err)
	}
	redelivered, err := dequeuer.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue redelivery: %v", err)
	}
	if redelivered.Message().IdempotencyKey != "Ex1" {
		t.Fatalf("expected the requeued message back, got %#v", redelivered.Message())
	}
	if err := redelivered.Nack(ctx, core.JobNackOptions{DeadLetter: true, Reason: "tenant gone"}); err != nil {
		t.Fatalf("dead letter: %v", err)
	}
	if got := local.DeadLetters(); len(got) != 1 || got[0].IdempotencyKey != "Ex1" {
		t.Fatalf("expected one dead letter, got %#v", got)
	}
}

func TestLocalQueue_DelayedRequeue(t *testing.T) {
	local := NewLocalQueue(1)
	defer local.Close()
	ctx := context.Background()

	if err := NewEnqueuerAdapter(local).Enqueue(ctx, &core.JobExecutionMessage{JobID: core.JobIDStepFailureNotify}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := NewEnqueuerAdapter(local).Enqueue(ctx, &core.JobExecutionMessage{JobID: core.JobIDStepFailureNotify}); err == nil {
		t.Fatalf("expected full queue to reject the second message")
	}

	delivery, err := local.Dequeue(ctx)
	if err != nil {
		t.Fatalf("dequeue: %v", err)
	}
	if err := delivery.Nack(ctx, ToNackOptions(core.JobNackOptions{Requeue: true, Delay: 20 * time.Millisecond})); err != nil {
		t.Fatalf("nack: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if _, err := local.Dequeue(waitCtx); err != nil {
		t.Fatalf("expected delayed redelivery, got %v", err)
	}
}

func TestLocalQueue_DequeueHonoursContext(t *testing.T) {
	local := NewLocalQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := local.Dequeue(ctx); err == nil {
		t.Fatalf("expected cancelled dequeue to fail")
	}
	local.Close()
	if err := local.Enqueue(context.Background(), nil); err == nil {
		t.Fatalf("expected nil message to be rejected")
	}
}
