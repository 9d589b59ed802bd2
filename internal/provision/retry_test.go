package provision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/provider"
)

func TestRetryFailed(t *testing.T) {
	svc, s, f := newTestService(t)
	ctx := context.Background()

	ok := newBinding(t, s, "::a", "00:00:00:00:00:0a", model.BindingFailed)
	refused := newBinding(t, s, "::b", "00:00:00:00:00:0b", model.BindingRetrying)
	down := newBinding(t, s, "::c", "00:00:00:00:00:0c", model.BindingFailed)
	pending := newBinding(t, s, "::d", "00:00:00:00:00:0d", model.BindingPending)
	bound := newBinding(t, s, "::e", "00:00:00:00:00:0e", model.BindingBound)

	f.bindingFunc = func(req provider.BindingRequest) provider.Result {
		switch req.RecordID {
		case ok.ID:
			return accepted(map[string]any{"status": "success"})
		case refused.ID:
			return accepted(map[string]any{"status": "error"})
		}
		return unreachable()
	}

	summary, err := svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{Total: 3, Succeeded: 1, Failed: 2, Skipped: 0}, summary)

	require.Len(t, f.bindings, 3)
	for _, req := range f.bindings {
		assert.Empty(t, req.CallbackURL)
	}

	want := map[int64]model.BindingStatus{
		ok.ID:      model.BindingSuccess,
		refused.ID: model.BindingFailed,
		down.ID:    model.BindingFailed,
		pending.ID: model.BindingPending,
		bound.ID:   model.BindingBound,
	}
	for id, status := range want {
		b, err := s.GetBinding(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, status, b.SendStatus, "binding %d", id)
	}

	got, err := s.GetBinding(ctx, ok.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.RetryCount)
	assert.JSONEq(t, `{"status":"success"}`, got.APIResponse)

	got, err = s.GetBinding(ctx, down.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.RetryCount)
	assert.JSONEq(t, `{"error":"unable to connect to provider"}`, got.APIResponse)

	got, err = s.GetBinding(ctx, pending.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
}

func TestRetryFailed_RespectsDispatchLease(t *testing.T) {
	svc, s, f := newTestService(t)
	ctx := context.Background()

	held := &model.AddressBinding{
		Owner:         "alice",
		IPv6Address:   "::a",
		MACAddress:    "00:00:00:00:00:0a",
		SendStatus:    model.BindingRetrying,
		DispatchUntil: fixedNow.Add(time.Minute).Unix(),
	}
	require.NoError(t, s.CreateBinding(ctx, held))
	stale := &model.AddressBinding{
		Owner:         "alice",
		IPv6Address:   "::b",
		MACAddress:    "00:00:00:00:00:0b",
		SendStatus:    model.BindingRetrying,
		DispatchUntil: fixedNow.Add(-time.Minute).Unix(),
	}
	require.NoError(t, s.CreateBinding(ctx, stale))
	f.bindingFunc = func(provider.BindingRequest) provider.Result {
		return accepted(map[string]any{"success": float64(1)})
	}

	summary, err := svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{Total: 2, Succeeded: 1, Skipped: 1}, summary)
	require.Len(t, f.bindings, 1)
	assert.Equal(t, stale.ID, f.bindings[0].RecordID)

	got, err := s.GetBinding(ctx, held.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BindingRetrying, got.SendStatus)

	got, err = s.GetBinding(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BindingSuccess, got.SendStatus)
	assert.Zero(t, got.DispatchUntil)
}

func TestRetryFailed_Empty(t *testing.T) {
	svc, _, f := newTestService(t)

	summary, err := svc.RetryFailed(context.Background())
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{}, summary)
	assert.Empty(t, f.bindings)
}

func TestClearFailed(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	failed := newBinding(t, s, "::a", "00:00:00:00:00:0a", model.BindingFailed)
	bound := newBinding(t, s, "::b", "00:00:00:00:00:0b", model.BindingBound)

	n, err := svc.ClearFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetBinding(ctx, failed.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.RetryCount)
	assert.Equal(t, model.BindingFailed, got.SendStatus)

	got, err = s.GetBinding(ctx, bound.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.RetryCount)
}
