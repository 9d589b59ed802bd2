// Package state holds the transition tables for every provisioned record.
//
// Each record kind has its own event set. An event names who caused the
// change (a dispatch, a provider callback, the manual retry pass or an
// administrator) and the table lists the statuses it may be applied from.
// Callback events accept every status: duplicate and out-of-order callbacks
// are resolved last-writer-wins.
package state

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"ipv6-provision-backend/internal/model"
)

// ErrIllegalTransition is returned when an event is not allowed from the
// record's current status.
var ErrIllegalTransition = errors.New("illegal state transition")

type rule[S comparable] struct {
	from []S // empty accepts every status
	to   S
}

func (r rule[S]) allows(s S) bool {
	return len(r.from) == 0 || slices.Contains(r.from, s)
}

func next[E ~string, S comparable](rules map[E]rule[S], ev E, current S) (S, error) {
	r, ok := rules[ev]
	if !ok {
		return current, fmt.Errorf("%w: unknown event %q", ErrIllegalTransition, ev)
	}
	if !r.allows(current) {
		return current, fmt.Errorf("%w: %q from %v", ErrIllegalTransition, ev, current)
	}
	return r.to, nil
}

// BindingEvent drives an AddressBinding.
type BindingEvent string

const (
	// BindingQueued re-arms a binding before it is dispatched again.
	BindingQueued BindingEvent = "queued"
	// BindingDispatchAccepted is an HTTP 200 from the provider.
	BindingDispatchAccepted BindingEvent = "dispatch_accepted"
	// BindingDispatchFailed is a transport failure or a non-200 response.
	BindingDispatchFailed BindingEvent = "dispatch_failed"
	BindingCallbackBound  BindingEvent = "callback_bound"
	BindingCallbackFailed BindingEvent = "callback_failed"
	// BindingRetryClaimed marks a record as owned by the manual retry pass.
	BindingRetryClaimed  BindingEvent = "retry_claimed"
	BindingRetryAccepted BindingEvent = "retry_accepted"
	BindingRetryFailed   BindingEvent = "retry_failed"
)

// Statuses a new dispatch may start from. A retrying record already has a
// dispatch in flight.
var dispatchable = []model.BindingStatus{
	model.BindingPending,
	model.BindingBound,
	model.BindingFailed,
	model.BindingBindFailed,
	model.BindingSuccess,
}

// RetryCandidates are the statuses the manual retry pass selects. Pending is
// deliberately absent: it means a callback is still outstanding.
var RetryCandidates = []model.BindingStatus{model.BindingFailed, model.BindingRetrying}

// A retry claim is also legal on bind_failed, though the batch never selects it.
var retryClaimable = []model.BindingStatus{model.BindingFailed, model.BindingRetrying, model.BindingBindFailed}

var bindingRules = map[BindingEvent]rule[model.BindingStatus]{
	BindingQueued:           {from: dispatchable, to: model.BindingPending},
	BindingDispatchAccepted: {from: dispatchable, to: model.BindingPending},
	BindingDispatchFailed:   {from: dispatchable, to: model.BindingFailed},
	BindingCallbackBound:    {to: model.BindingBound},
	BindingCallbackFailed:   {to: model.BindingBindFailed},
	BindingRetryClaimed:     {from: retryClaimable, to: model.BindingRetrying},
	BindingRetryAccepted:    {from: []model.BindingStatus{model.BindingRetrying}, to: model.BindingSuccess},
	BindingRetryFailed:      {from: []model.BindingStatus{model.BindingRetrying}, to: model.BindingFailed},
}

// CanApplyBinding reports whether ev is legal from status.
func CanApplyBinding(status model.BindingStatus, ev BindingEvent) bool {
	r, ok := bindingRules[ev]
	return ok && r.allows(status)
}

// ApplyBinding moves b to the status ev leads to and stamps last_send_time.
// The retry counter is reset on every event except those of the retry pass,
// which increments it on claim and keeps it on the outcome. next_retry_time
// is always cleared.
func ApplyBinding(b *model.AddressBinding, ev BindingEvent, now time.Time) error {
	to, err := next(bindingRules, ev, b.SendStatus)
	if err != nil {
		return fmt.Errorf("binding %d: %w", b.ID, err)
	}

	switch ev {
	case BindingRetryClaimed:
		b.RetryCount++
	case BindingRetryAccepted, BindingRetryFailed:
	default:
		b.RetryCount = 0
	}
	b.SendStatus = to
	b.NextRetryTime = nil
	b.LastSendTime = &now
	return nil
}

// DeviceEvent drives a Device.
type DeviceEvent string

const (
	DeviceOfflineAccepted  DeviceEvent = "offline_accepted"
	DeviceOfflineConfirmed DeviceEvent = "offline_confirmed"
	DeviceOfflineReverted  DeviceEvent = "offline_reverted"
)

var deviceRules = map[DeviceEvent]rule[model.DeviceStatus]{
	DeviceOfflineAccepted:  {from: []model.DeviceStatus{model.DeviceOnline, model.DeviceOffline}, to: model.DeviceOffline},
	DeviceOfflineConfirmed: {to: model.DeviceOffline},
	DeviceOfflineReverted:  {to: model.DeviceOnline},
}

func ApplyDevice(d *model.Device, ev DeviceEvent) error {
	to, err := next(deviceRules, ev, d.Status)
	if err != nil {
		return fmt.Errorf("device %d: %w", d.ID, err)
	}
	d.Status = to
	return nil
}

// ApprovalEvent drives a DeviceApproval. Decisions are final.
type ApprovalEvent string

const (
	ApprovalGranted ApprovalEvent = "granted"
	ApprovalDenied  ApprovalEvent = "denied"
)

var approvalRules = map[ApprovalEvent]rule[model.ApprovalStatus]{
	ApprovalGranted: {from: []model.ApprovalStatus{model.ApprovalPending}, to: model.ApprovalApproved},
	ApprovalDenied:  {from: []model.ApprovalStatus{model.ApprovalPending}, to: model.ApprovalRejected},
}

func ApplyApproval(a *model.DeviceApproval, ev ApprovalEvent) error {
	to, err := next(approvalRules, ev, a.Status)
	if err != nil {
		return fmt.Errorf("approval %d: %w", a.ID, err)
	}
	a.Status = to
	return nil
}

// ConfigEvent drives a NetworkConfig.
type ConfigEvent string

const (
	ConfigDispatchAccepted  ConfigEvent = "dispatch_accepted"
	ConfigDispatchFailed    ConfigEvent = "dispatch_failed"
	ConfigCallbackSucceeded ConfigEvent = "callback_succeeded"
	ConfigCallbackFailed    ConfigEvent = "callback_failed"
)

var configRules = map[ConfigEvent]rule[model.ConfigStatus]{
	ConfigDispatchAccepted:  {to: model.ConfigSent},
	ConfigDispatchFailed:    {to: model.ConfigFailed},
	ConfigCallbackSucceeded: {to: model.ConfigSuccess},
	ConfigCallbackFailed:    {to: model.ConfigFailed},
}

func ApplyConfig(c *model.NetworkConfig, ev ConfigEvent) error {
	to, err := next(configRules, ev, c.SendStatus)
	if err != nil {
		return fmt.Errorf("config %d: %w", c.ID, err)
	}
	c.SendStatus = to
	return nil
}
