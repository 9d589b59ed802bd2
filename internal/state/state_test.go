package state

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipv6-provision-backend/internal/model"
)

func TestApplyBinding_Table(t *testing.T) {
	testCases := []struct {
		from    model.BindingStatus
		event   BindingEvent
		want    model.BindingStatus
		illegal bool
	}{
		{model.BindingPending, BindingDispatchAccepted, model.BindingPending, false},
		{model.BindingPending, BindingDispatchFailed, model.BindingFailed, false},
		{model.BindingFailed, BindingDispatchAccepted, model.BindingPending, false},
		{model.BindingPending, BindingCallbackBound, model.BindingBound, false},
		{model.BindingPending, BindingCallbackFailed, model.BindingBindFailed, false},
		{model.BindingBindFailed, BindingCallbackBound, model.BindingBound, false},
		{model.BindingBound, BindingCallbackFailed, model.BindingBindFailed, false},
		{model.BindingFailed, BindingRetryClaimed, model.BindingRetrying, false},
		{model.BindingRetrying, BindingRetryClaimed, model.BindingRetrying, false},
		{model.BindingRetrying, BindingRetryAccepted, model.BindingSuccess, false},
		{model.BindingRetrying, BindingRetryFailed, model.BindingFailed, false},
		{model.BindingPending, BindingRetryClaimed, model.BindingPending, true},
		{model.BindingBound, BindingRetryClaimed, model.BindingBound, true},
		{model.BindingBindFailed, BindingRetryClaimed, model.BindingRetrying, false},
		{model.BindingFailed, BindingRetryAccepted, model.BindingFailed, true},
		{model.BindingRetrying, BindingDispatchAccepted, model.BindingRetrying, true},
		{model.BindingRetrying, BindingQueued, model.BindingRetrying, true},
	}

	now := time.Now()
	for _, tc := range testCases {
		t.Run(string(tc.from)+"/"+string(tc.event), func(t *testing.T) {
			b := &model.AddressBinding{ID: 1, SendStatus: tc.from}
			err := ApplyBinding(b, tc.event, now)
			if tc.illegal {
				assert.True(t, errors.Is(err, ErrIllegalTransition))
				assert.Nil(t, b.LastSendTime)
			} else {
				require.NoError(t, err)
				require.NotNil(t, b.LastSendTime)
			}
			assert.Equal(t, tc.want, b.SendStatus)
		})
	}
}

func TestApplyBinding_RetryCounters(t *testing.T) {
	past := time.Now().Add(time.Hour)
	b := &model.AddressBinding{SendStatus: model.BindingFailed, RetryCount: 2, NextRetryTime: &past}

	require.NoError(t, ApplyBinding(b, BindingRetryClaimed, time.Now()))
	assert.Equal(t, 3, b.RetryCount)
	assert.Nil(t, b.NextRetryTime)

	require.NoError(t, ApplyBinding(b, BindingRetryFailed, time.Now()))
	assert.Equal(t, 3, b.RetryCount)

	b.NextRetryTime = &past
	require.NoError(t, ApplyBinding(b, BindingDispatchFailed, time.Now()))
	assert.Equal(t, 0, b.RetryCount)
	assert.Nil(t, b.NextRetryTime)
}

func TestApplyBinding_CallbackIdempotent(t *testing.T) {
	b := &model.AddressBinding{SendStatus: model.BindingPending}
	require.NoError(t, ApplyBinding(b, BindingCallbackBound, time.Now()))
	require.NoError(t, ApplyBinding(b, BindingCallbackBound, time.Now()))
	assert.Equal(t, model.BindingBound, b.SendStatus)
}

func TestCanApplyBinding(t *testing.T) {
	assert.True(t, CanApplyBinding(model.BindingFailed, BindingRetryClaimed))
	assert.False(t, CanApplyBinding(model.BindingPending, BindingRetryClaimed))
	assert.False(t, CanApplyBinding(model.BindingPending, BindingEvent("bogus")))
}

func TestApplyDevice(t *testing.T) {
	d := &model.Device{Status: model.DeviceOnline}
	require.NoError(t, ApplyDevice(d, DeviceOfflineAccepted))
	assert.Equal(t, model.DeviceOffline, d.Status)

	require.NoError(t, ApplyDevice(d, DeviceOfflineReverted))
	assert.Equal(t, model.DeviceOnline, d.Status)

	require.NoError(t, ApplyDevice(d, DeviceOfflineConfirmed))
	assert.Equal(t, model.DeviceOffline, d.Status)
}

func TestApplyApproval(t *testing.T) {
	a := &model.DeviceApproval{Status: model.ApprovalPending}
	require.NoError(t, ApplyApproval(a, ApprovalGranted))
	assert.Equal(t, model.ApprovalApproved, a.Status)

	err := ApplyApproval(a, ApprovalDenied)
	assert.True(t, errors.Is(err, ErrIllegalTransition))
	assert.Equal(t, model.ApprovalApproved, a.Status)

	r := &model.DeviceApproval{Status: model.ApprovalRejected}
	assert.Error(t, ApplyApproval(r, ApprovalGranted))
}

func TestApplyConfig(t *testing.T) {
	c := &model.NetworkConfig{SendStatus: model.ConfigPending}
	require.NoError(t, ApplyConfig(c, ConfigDispatchAccepted))
	assert.Equal(t, model.ConfigSent, c.SendStatus)
	require.NoError(t, ApplyConfig(c, ConfigCallbackFailed))
	assert.Equal(t, model.ConfigFailed, c.SendStatus)
	require.NoError(t, ApplyConfig(c, ConfigCallbackSucceeded))
	assert.Equal(t, model.ConfigSuccess, c.SendStatus)
}
