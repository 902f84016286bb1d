package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

// TenantStore persists tenant records. Get returns ErrTenantNotFound when
// absent. Save overwrites the whole record and fails with ErrVersionConflict
// when record.Version no longer matches the stored version.
type TenantStore interface {
	Get(ctx context.Context, id string) (TenantRecord, error)
	Save(ctx context.Context, record TenantRecord) (TenantRecord, error)
}

type TenantLister interface {
	List(ctx context.Context) ([]TenantRecord, error)
}

// MessageSender posts a message to a platform API method or to an absolute
// URL and returns the response data without the success envelope.
type MessageSender interface {
	Send(ctx context.Context, endpoint string, message map[string]any) (map[string]any, error)
}

// SenderFactory binds an outbound sender to the tenant auth and the payload
// being handled.
type SenderFactory func(tenant *TenantRecord, payload Payload) MessageSender

// SecretProvider seals tenant credentials before they are persisted.
type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type AssignmentRecorder interface {
	Record(ctx context.Context, assignment Assignment) error
}

type AssignmentLister interface {
	ListAssignments(ctx context.Context, filter AssignmentFilter) ([]Assignment, error)
}

type IdempotencyClaimStore interface {
	Claim(ctx context.Context, key string, lease time.Duration) (claimID string, accepted bool, err error)
	Complete(ctx context.Context, claimID string) error
	Fail(ctx context.Context, claimID string, cause error, retryAt time.Time) error
}

// JobIDStepFailureNotify retries a workflows.stepFailed notification that
// could not be delivered inline.
const JobIDStepFailureNotify = "turns.workflow_step.failure_notify"

type JobExecutionMessage struct {
	JobID          string
	ScriptPath     string
	Parameters     map[string]any
	IdempotencyKey string
	DedupPolicy    string
}

type JobEnqueuer interface {
	Enqueue(ctx context.Context, msg *JobExecutionMessage) error
}

type JobNackOptions struct {
	Delay      time.Duration
	Requeue    bool
	DeadLetter bool
	Reason     string
}

type JobDelivery interface {
	Message() *JobExecutionMessage
	Ack(ctx context.Context) error
	Nack(ctx context.Context, opts JobNackOptions) error
}

type JobDequeuer interface {
	Dequeue(ctx context.Context) (JobDelivery, error)
}

type JobWorkerEvent struct {
	Message   *JobExecutionMessage
	Attempt   int
	Delay     time.Duration
	Err       error
	StartedAt time.Time
	Duration  time.Duration
}

type JobWorkerHook interface {
	OnStart(ctx context.Context, event JobWorkerEvent)
	OnSuccess(ctx context.Context, event JobWorkerEvent)
	OnFailure(ctx context.Context, event JobWorkerEvent)
	OnRetry(ctx context.Context, event JobWorkerEvent)
}

// InboundRequest is the transport-neutral shape of one webhook delivery.
type InboundRequest struct {
	Method   string
	Headers  map[string]string
	Query    map[string]string
	Body     []byte
	Metadata map[string]any
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
}
