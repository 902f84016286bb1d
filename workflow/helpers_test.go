package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/goliatone/go-turns/core"
	"github.com/goliatone/go-turns/inbound"
)

type sentMessage struct {
	endpoint string
	message  map[string]any
}

type recordingSender struct {
	mu      sync.Mutex
	sent    []sentMessage
	failOn  map[string]error
	replies []map[string]any
}

func (s *recordingSender) Send(_ context.Context, endpoint string, message map[string]any) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentMessage{endpoint: endpoint, message: message})
	if err := s.failOn[endpoint]; err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

func (s *recordingSender) endpoints() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, item := range s.sent {
		out = append(out, item.endpoint)
	}
	return out
}

func (s *recordingSender) last(endpoint string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.sent) - 1; i >= 0; i-- {
		if s.sent[i].endpoint == endpoint {
			return s.sent[i].message
		}
	}
	return nil
}

type replyingSender struct {
	recordingSender
}

func (s *replyingSender) Reply(_ context.Context, message map[string]any, ephemeral bool) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reply := map[string]any{"ephemeral": ephemeral}
	for key, value := range message {
		reply[key] = value
	}
	s.replies = append(s.replies, reply)
	return map[string]any{}, nil
}

type recordingEnqueuer struct {
	messages []*core.JobExecutionMessage
	err      error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, msg *core.JobExecutionMessage) error {
	if e.err != nil {
		return e.err
	}
	e.messages = append(e.messages, msg)
	return nil
}

type panickingService struct {
	TurnService
}

func (panickingService) AssignTurn(context.Context, core.TurnRequest) (core.TurnResult, error) {
	panic("store exploded")
}

var errPlatformDown = errors.New("platform down")

func newTestService(t *testing.T) (*core.Service, core.TenantStore) {
	t.Helper()
	store := core.NewMemoryTenantStore()
	svc, err := core.NewService(core.DefaultConfig(), core.WithTenantStore(store))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.SaveInstallation(context.Background(), "T1", map[string]any{"access_token": "xoxb-1"}); err != nil {
		t.Fatalf("seed tenant: %v", err)
	}
	return svc, store
}

func configure(t *testing.T, svc *core.Service, workflowID string, users ...string) {
	t.Helper()
	if _, err := svc.ConfigureRotation(context.Background(), core.ConfigureRotationRequest{
		TenantID:   "T1",
		WorkflowID: workflowID,
		Users:      users,
	}); err != nil {
		t.Fatalf("configure %s: %v", workflowID, err)
	}
}

func newTestSubscribers(t *testing.T, svc TurnService, opts ...Option) *Subscribers {
	t.Helper()
	subs, err := New(svc, opts...)
	if err != nil {
		t.Fatalf("new subscribers: %v", err)
	}
	return subs
}

func dispatch(t *testing.T, subs *Subscribers, payload core.Payload, sender core.MessageSender) inbound.DispatchResult {
	t.Helper()
	router := inbound.NewRouter()
	if _, err := subs.Register(router); err != nil {
		t.Fatalf("register: %v", err)
	}
	return router.Dispatch(context.Background(), payload, inbound.Collaborators{Sender: sender})
}
