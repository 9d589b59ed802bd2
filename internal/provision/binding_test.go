package provision

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/provider"
	"ipv6-provision-backend/internal/reconcile"
	"ipv6-provision-backend/internal/store"
)

func newBinding(t *testing.T, s store.Store, ipv6, mac string, status model.BindingStatus) *model.AddressBinding {
	t.Helper()
	b := &model.AddressBinding{Owner: "alice", IPv6Address: ipv6, MACAddress: mac, SendStatus: status, RetryCount: 2}
	require.NoError(t, s.CreateBinding(context.Background(), b))
	return b
}

func TestSendBinding(t *testing.T) {
	tests := []struct {
		name       string
		result     provider.Result
		wantStatus model.BindingStatus
		wantErr    error
		archive    string
	}{
		{"accepted", accepted(map[string]any{"code": float64(0)}), model.BindingPending, nil, `{"code":0}`},
		{"http error", rejected(500), model.BindingFailed, ErrDispatch, `{"raw_response":"bad gateway"}`},
		{"unreachable", unreachable(), model.BindingFailed, ErrDispatch, `{"error":"unable to connect to provider"}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, s, f := newTestService(t)
			ctx := context.Background()
			f.bindingFunc = func(provider.BindingRequest) provider.Result { return tc.result }
			b := newBinding(t, s, "240c:c901:a:a:3052:11:2233:4455", "00:11:22:33:44:55", model.BindingBindFailed)

			got, err := svc.SendBinding(ctx, b.ID, callback)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.NotNil(t, got)

			stored, err := s.GetBinding(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, stored.SendStatus)
			assert.Equal(t, 0, stored.RetryCount)
			assert.Nil(t, stored.NextRetryTime)
			assert.JSONEq(t, tc.archive, stored.APIResponse)

			require.Len(t, f.bindings, 1)
			assert.Nil(t, f.bindings[0].DUID)
			assert.Equal(t, callback, f.bindings[0].CallbackURL)
		})
	}
}

func TestSendBinding_Refused(t *testing.T) {
	svc, s, f := newTestService(t)
	ctx := context.Background()

	noMAC := newBinding(t, s, "::2", "", model.BindingFailed)
	_, err := svc.SendBinding(ctx, noMAC.ID, callback)
	assert.ErrorIs(t, err, ErrValidation)

	busy := newBinding(t, s, "::3", "00:11:22:33:44:66", model.BindingRetrying)
	_, err = svc.SendBinding(ctx, busy.ID, callback)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.SendBinding(ctx, 999, callback)
	assert.ErrorIs(t, err, store.ErrNotFound)

	assert.Empty(t, f.bindings)
}

func TestSendBinding_OneDispatchInFlight(t *testing.T) {
	svc, s, f := newTestService(t)
	ctx := context.Background()
	b := newBinding(t, s, "::a", "00:00:00:00:00:0a", model.BindingFailed)

	var (
		mu          sync.Mutex
		inFlight    int
		maxInFlight int
		enterOnce   sync.Once
	)
	entered := make(chan struct{})
	release := make(chan struct{})
	f.bindingFunc = func(req provider.BindingRequest) provider.Result {
		mu.Lock()
		inFlight++
		maxInFlight = max(maxInFlight, inFlight)
		mu.Unlock()
		defer func() {
			mu.Lock()
			inFlight--
			mu.Unlock()
		}()

		if req.CallbackURL != "" {
			enterOnce.Do(func() { close(entered) })
			<-release
		}
		return accepted(map[string]any{"success": true})
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.SendBinding(ctx, b.ID, callback)
		done <- err
	}()
	<-entered

	summary, err := svc.RetryFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, RetrySummary{}, summary)

	_, err = svc.SendBinding(ctx, b.ID, callback)
	assert.ErrorIs(t, err, ErrConflict)

	close(release)
	require.NoError(t, <-done)

	assert.Equal(t, 1, maxInFlight)
	assert.Len(t, f.bindings, 1)

	stored, err := s.GetBinding(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, model.BindingPending, stored.SendStatus)
	assert.Zero(t, stored.DispatchUntil)

	// Once settled the record can be sent again.
	_, err = svc.SendBinding(ctx, b.ID, callback)
	require.NoError(t, err)
	assert.Len(t, f.bindings, 2)
}

func TestSendBinding_CallbackBeforeResponseIsKept(t *testing.T) {
	tests := []struct {
		name    string
		result  provider.Result
		wantErr error
	}{
		{"accepted", accepted(map[string]any{"success": true}), nil},
		{"http error", rejected(504), ErrDispatch},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			svc, s, f := newTestService(t)
			ctx := context.Background()
			rec := reconcile.New(s, nil)
			b := newBinding(t, s, "::a", "00:00:00:00:00:0a", model.BindingFailed)

			f.bindingFunc = func(req provider.BindingRequest) provider.Result {
				ack, err := rec.Binding(ctx, reconcile.Payload{"success": float64(1), "record_id": float64(req.RecordID), "message": "bound early"})
				require.NoError(t, err)
				require.True(t, ack.Success)
				return tc.result
			}

			got, err := svc.SendBinding(ctx, b.ID, callback)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
			}
			require.NotNil(t, got)
			assert.Equal(t, model.BindingBound, got.SendStatus)

			stored, err := s.GetBinding(ctx, b.ID)
			require.NoError(t, err)
			assert.Equal(t, model.BindingBound, stored.SendStatus)
			assert.Contains(t, stored.APIResponse, "bound early")
			assert.Zero(t, stored.DispatchUntil)
		})
	}
}

func TestDeleteBinding(t *testing.T) {
	svc, s, _ := newTestService(t)
	ctx := context.Background()
	b := newBinding(t, s, "::2", "00:11:22:33:44:55", model.BindingFailed)

	require.NoError(t, svc.DeleteBinding(ctx, b.ID))
	assert.ErrorIs(t, svc.DeleteBinding(ctx, b.ID), store.ErrNotFound)
}
