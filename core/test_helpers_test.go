package core

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

// racingTenantStore lets a concurrent writer win the first conflicts Save
// calls by bumping the stored version underneath the caller.
type racingTenantStore struct {
	*MemoryTenantStore
	mu        sync.Mutex
	conflicts int
	saves     int
}

func (s *racingTenantStore) Save(ctx context.Context, record TenantRecord) (TenantRecord, error) {
	s.mu.Lock()
	s.saves++
	inject := s.conflicts > 0
	if inject {
		s.conflicts--
	}
	s.mu.Unlock()
	if inject {
		current, err := s.MemoryTenantStore.Get(ctx, record.ID)
		if err == nil {
			current.Auth["touched"] = true
			if _, err := s.MemoryTenantStore.Save(ctx, current); err != nil {
				return TenantRecord{}, err
			}
		}
	}
	return s.MemoryTenantStore.Save(ctx, record)
}

func fastBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Millisecond
	bo.MaxInterval = 2 * time.Millisecond
	bo.MaxElapsedTime = time.Second
	return bo
}

func seedTenant(store TenantStore, id string) TenantRecord {
	record := NewTenantRecord(id)
	record.Auth["access_token"] = "xoxp-1"
	saved, err := store.Save(context.Background(), record)
	if err != nil {
		panic(err)
	}
	return saved
}
