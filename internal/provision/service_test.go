package provision

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ipv6-provision-backend/config"
	"ipv6-provision-backend/internal/db"
	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/provider"
	"ipv6-provision-backend/internal/store"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeDispatcher records requests and answers with the configured results.
// A nil func accepts with an empty JSON body.
type fakeDispatcher struct {
	mu       sync.Mutex
	bindings []provider.BindingRequest
	offlines []provider.OfflineRequest
	configs  []provider.ConfigRequest

	bindingFunc func(provider.BindingRequest) provider.Result
	offlineFunc func(provider.OfflineRequest) provider.Result
	configFunc  func(provider.ConfigRequest) provider.Result
}

func (f *fakeDispatcher) Dispatch(_ context.Context, req provider.BindingRequest) provider.Result {
	f.mu.Lock()
	f.bindings = append(f.bindings, req)
	f.mu.Unlock()
	if f.bindingFunc == nil {
		return accepted(map[string]any{"success": true})
	}
	return f.bindingFunc(req)
}

func (f *fakeDispatcher) DispatchOffline(_ context.Context, req provider.OfflineRequest) provider.Result {
	f.mu.Lock()
	f.offlines = append(f.offlines, req)
	f.mu.Unlock()
	if f.offlineFunc == nil {
		return accepted(map[string]any{"success": true})
	}
	return f.offlineFunc(req)
}

func (f *fakeDispatcher) DispatchConfig(_ context.Context, req provider.ConfigRequest) provider.Result {
	f.mu.Lock()
	f.configs = append(f.configs, req)
	f.mu.Unlock()
	if f.configFunc == nil {
		return accepted(map[string]any{"queued": true})
	}
	return f.configFunc(req)
}

func accepted(fields map[string]any) provider.Result {
	code := 200
	return provider.Result{
		Accepted:   true,
		StatusCode: &code,
		Body:       provider.Body{Kind: provider.BodyJSON, Fields: fields},
	}
}

func rejected(code int) provider.Result {
	return provider.Result{
		StatusCode: &code,
		Body:       provider.Body{Kind: provider.BodyRaw, Raw: "bad gateway"},
	}
}

func unreachable() provider.Result {
	return provider.Result{Err: &provider.TransportError{Kind: provider.KindConnection}}
}

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	gdb, err := db.Init(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          fmt.Sprintf("file:provision_%s?mode=memory&cache=shared", name),
		MaxOpenConns: 1,
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	s := store.NewGormStore(gdb)
	require.NoError(t, s.UpsertDepartment(context.Background(), &model.Department{ID: 3, Title: "信息中心"}))
	return s
}

func newTestService(t *testing.T) (*Service, store.Store, *fakeDispatcher) {
	t.Helper()
	s := newTestStore(t)
	f := &fakeDispatcher{}
	svc := NewService(s, f, 4)
	svc.now = func() time.Time { return fixedNow }
	return svc, s, f
}
