package gojob

import (
	"context"
	"fmt"
	"sync"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
)

const defaultLocalQueueSize = 256

// LocalQueue is an in-process go-job queue for single-node deployments.
// Requeued deliveries come back after their nack delay; dead-lettered ones
// are kept for inspection.
type LocalQueue struct {
	items chan *job.ExecutionMessage

	mu          sync.Mutex
	deadLetters []*job.ExecutionMessage
	closed      bool
}

func NewLocalQueue(size int) *LocalQueue {
	if size <= 0 {
		size = defaultLocalQueueSize
	}
	return &LocalQueue{items: make(chan *job.ExecutionMessage, size)}
}

func (q *LocalQueue) Enqueue(ctx context.Context, msg *job.ExecutionMessage) error {
	if msg == nil {
		return fmt.Errorf("gojob: message is required")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("gojob: local queue is closed")
	}
	select {
	case q.items <- msg:
		return nil
	default:
		return fmt.Errorf("gojob: local queue is full")
	}
}

func (q *LocalQueue) Dequeue(ctx context.Context) (queue.Delivery, error) {
	select {
	case msg, ok := <-q.items:
		if !ok {
			return nil, context.Canceled
		}
		return &localDelivery{queue: q, msg: msg}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// DeadLetters returns the messages nacked without requeue.
func (q *LocalQueue) DeadLetters() []*job.ExecutionMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]*job.ExecutionMessage(nil), q.deadLetters...)
}

func (q *LocalQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.items)
}

func (q *LocalQueue) requeue(msg *job.ExecutionMessage, delay time.Duration) {
	push := func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if q.closed {
			return
		}
		select {
		case q.items <- msg:
		default:
			q.deadLetters = append(q.deadLetters, msg)
		}
	}
	if delay <= 0 {
		push()
		return
	}
	time.AfterFunc(delay, push)
}

func (q *LocalQueue) deadLetter(msg *job.ExecutionMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.deadLetters = append(q.deadLetters, msg)
}

type localDelivery struct {
	queue *LocalQueue
	msg   *job.ExecutionMessage
	once  sync.Once
}

func (d *localDelivery) Message() *job.ExecutionMessage {
	return d.msg
}

func (d *localDelivery) Ack(context.Context) error {
	d.once.Do(func() {})
	return nil
}

func (d *localDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	d.once.Do(func() {
		if opts.Requeue && !opts.DeadLetter {
			d.queue.requeue(d.msg, opts.Delay)
			return
		}
		d.queue.deadLetter(d.msg)
	})
	return nil
}

var (
	_ queue.Enqueuer = (*LocalQueue)(nil)
	_ queue.Dequeuer = (*LocalQueue)(nil)
	_ queue.Delivery = (*localDelivery)(nil)
)
