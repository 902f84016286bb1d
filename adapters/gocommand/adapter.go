package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	turnscommand "github.com/goliatone/go-turns/command"
	turnsquery "github.com/goliatone/go-turns/query"
)

// ValidateMessageContract checks that msg has a non-empty Type() and, when
// it implements Validate(), that it validates.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// RegistryAdapter wraps a go-command registry so rotation handlers can be
// mirrored into resolvers such as the go-job queue registry.
type RegistryAdapter struct {
	registry *command.Registry
}

func NewRegistryAdapter(registry *command.Registry) *RegistryAdapter {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &RegistryAdapter{registry: registry}
}

func (a *RegistryAdapter) Registry() *command.Registry {
	if a == nil {
		return nil
	}
	return a.registry
}

func (a *RegistryAdapter) register(handler any) error {
	if a == nil || a.registry == nil {
		return errRegistryMissing
	}
	return a.registry.RegisterCommand(handler)
}

func (a *RegistryAdapter) RegisterCommand(cmd any) error {
	return a.register(cmd)
}

// RegisterQuery stores queries in the same registry as commands; go-command
// resolves both by message type.
func (a *RegistryAdapter) RegisterQuery(qry any) error {
	return a.register(qry)
}

func (a *RegistryAdapter) AddResolver(key string, resolver command.Resolver) error {
	if a == nil || a.registry == nil {
		return errRegistryMissing
	}
	return a.registry.AddResolver(strings.TrimSpace(key), resolver)
}

// AddQueueResolver mirrors every registered handler into queueRegistry so
// rotation commands can also run as queued jobs.
func (a *RegistryAdapter) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return a.AddResolver(key, jobqueuecommand.QueueResolver(queueRegistry))
}

func (a *RegistryAdapter) HasResolver(key string) bool {
	if a == nil || a.registry == nil {
		return false
	}
	return a.registry.HasResolver(strings.TrimSpace(key))
}

func (a *RegistryAdapter) Initialize() error {
	if a == nil || a.registry == nil {
		return errRegistryMissing
	}
	return a.registry.Initialize()
}

var errRegistryMissing = fmt.Errorf("gocommand: registry is not configured")

func Dispatch[T any](ctx context.Context, msg T) error {
	return commanddispatcher.Dispatch(ctx, msg)
}

// DispatchResult runs a command and returns the value its handler stored in
// the go-command result collector. ok is false when the handler stored
// nothing.
func DispatchResult[T any, R any](ctx context.Context, msg T) (out R, ok bool, err error) {
	collector := command.NewResult[R]()
	if err = commanddispatcher.Dispatch(command.ContextWithResult(ctx, collector), msg); err != nil {
		return out, false, err
	}
	out, ok = collector.Load()
	return out, ok, nil
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	return commanddispatcher.Query[T, R](ctx, msg)
}

func RegisterAndSubscribe[T any](
	adapter *RegistryAdapter,
	cmd command.Commander[T],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, errRegistryMissing
	}
	if cmd == nil {
		return nil, fmt.Errorf("gocommand: command is required")
	}
	subscription := commanddispatcher.SubscribeCommand(cmd, runnerOpts...)
	if err := adapter.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

func RegisterAndSubscribeQuery[T any, R any](
	adapter *RegistryAdapter,
	qry command.Querier[T, R],
	runnerOpts ...runner.Option,
) (commanddispatcher.Subscription, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, errRegistryMissing
	}
	if qry == nil {
		return nil, fmt.Errorf("gocommand: query is required")
	}
	subscription := commanddispatcher.SubscribeQuery(qry, runnerOpts...)
	if err := adapter.RegisterQuery(qry); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return nil, err
	}
	return subscription, nil
}

// RotationHandlers lists the rotation commands and queries to expose on the
// dispatcher. Nil fields are skipped.
type RotationHandlers struct {
	SaveInstallation  *turnscommand.SaveInstallationCommand
	ConfigureRotation *turnscommand.ConfigureRotationCommand
	AssignTurn        *turnscommand.AssignTurnCommand
	SkipTurn          *turnscommand.SkipTurnCommand

	GetRotation     *turnsquery.GetRotationQuery
	ListAssignments *turnsquery.ListAssignmentsQuery
	GetTenant       *turnsquery.GetTenantQuery
}

// Bindings holds dispatcher subscriptions so they can be released together.
type Bindings struct {
	mu   sync.Mutex
	subs []commanddispatcher.Subscription
}

func (b *Bindings) add(sub commanddispatcher.Subscription, err error) error {
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

func (b *Bindings) Len() int {
	if b == nil {
		return 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unsubscribes every handler. It is safe to call more than once.
func (b *Bindings) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, sub := range subs {
		if sub != nil {
			sub.Unsubscribe()
		}
	}
}

// BindRotation registers and subscribes the given handlers, then
// initializes the registry. On failure every subscription made so far is
// released.
func BindRotation(adapter *RegistryAdapter, handlers RotationHandlers, runnerOpts ...runner.Option) (*Bindings, error) {
	if adapter == nil || adapter.registry == nil {
		return nil, errRegistryMissing
	}
	b := &Bindings{}
	steps := []func() error{}
	if handlers.SaveInstallation != nil {
		steps = append(steps, func() error {
			return b.add(RegisterAndSubscribe(adapter, handlers.SaveInstallation, runnerOpts...))
		})
	}
	if handlers.ConfigureRotation != nil {
		steps = append(steps, func() error {
			return b.add(RegisterAndSubscribe(adapter, handlers.ConfigureRotation, runnerOpts...))
		})
	}
	if handlers.AssignTurn != nil {
		steps = append(steps, func() error {
			return b.add(RegisterAndSubscribe(adapter, handlers.AssignTurn, runnerOpts...))
		})
	}
	if handlers.SkipTurn != nil {
		steps = append(steps, func() error {
			return b.add(RegisterAndSubscribe(adapter, handlers.SkipTurn, runnerOpts...))
		})
	}
	if handlers.GetRotation != nil {
		steps = append(steps, func() error {
			return b.add(RegisterAndSubscribeQuery(adapter, handlers.GetRotation, runnerOpts...))
		})
	}
	if handlers.ListAssignments != nil {
		steps = append(steps, func() error {
			return b.add(RegisterAndSubscribeQuery(adapter, handlers.ListAssignments, runnerOpts...))
		})
	}
	if handlers.GetTenant != nil {
		steps = append(steps, func() error {
			return b.add(RegisterAndSubscribeQuery(adapter, handlers.GetTenant, runnerOpts...))
		})
	}
	for _, step := range steps {
		if err := step(); err != nil {
			b.Close()
			return nil, err
		}
	}
	if err := adapter.Initialize(); err != nil {
		b.Close()
		return nil, err
	}
	return b, nil
}
