// Package provision implements the approval, dispatch and retry workflows
// that drive address bindings, devices and network configurations.
package provision

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ipv6-provision-backend/internal/logger"
	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/provider"
	"ipv6-provision-backend/internal/state"
	"ipv6-provision-backend/internal/store"
)

// dispatchLease bounds how long a dispatch that never settles, for example
// after a crash, keeps its record locked.
const dispatchLease = 2 * time.Minute

// Dispatcher is the outbound side of the provider. *provider.Client
// satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req provider.BindingRequest) provider.Result
	DispatchOffline(ctx context.Context, req provider.OfflineRequest) provider.Result
	DispatchConfig(ctx context.Context, req provider.ConfigRequest) provider.Result
}

// Service runs the provisioning workflows.
type Service struct {
	store            store.Store
	client           Dispatcher
	retryConcurrency int
	log              zerolog.Logger
	now              func() time.Time
}

// NewService creates a Service. retryConcurrency bounds the number of
// parallel dispatches in RetryFailed.
func NewService(s store.Store, client Dispatcher, retryConcurrency int) *Service {
	if retryConcurrency <= 0 {
		retryConcurrency = 1
	}
	return &Service{
		store:            s,
		client:           client,
		retryConcurrency: retryConcurrency,
		log:              logger.WithComponent("provision"),
		now:              time.Now,
	}
}

// conflict maps illegal transitions onto ErrConflict.
func conflict(err error) error {
	if errors.Is(err, state.ErrIllegalTransition) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// claim applies ev to b and takes the record for a single dispatch. It fails
// with ErrConflict when the stored status moved since b was read or another
// dispatch holds the record.
func (s *Service) claim(ctx context.Context, st store.Store, b *model.AddressBinding, ev state.BindingEvent) error {
	expected := b.SendStatus
	now := s.now()
	if err := state.ApplyBinding(b, ev, now); err != nil {
		return conflict(err)
	}
	b.DispatchUntil = now.Add(dispatchLease).Unix()

	ok, err := st.ClaimBinding(ctx, b, expected, now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: binding %d is already being dispatched", ErrConflict, b.ID)
	}
	return nil
}

// settle records the outcome of the dispatch that claimed b and releases it.
// A callback that finalized the record while the request was in flight wins;
// the stored record is returned in that case.
func (s *Service) settle(ctx context.Context, st store.Store, b *model.AddressBinding, ev state.BindingEvent, res provider.Result) (*model.AddressBinding, error) {
	claimed := b.SendStatus
	if err := state.ApplyBinding(b, ev, s.now()); err != nil {
		return nil, conflict(err)
	}
	b.APIResponse = res.Archive()
	b.DispatchUntil = 0

	ok, err := st.SettleBinding(ctx, b, claimed)
	if err != nil {
		return nil, err
	}
	if ok {
		return b, nil
	}
	s.log.Info().Int64("binding_id", b.ID).Str("event", string(ev)).Msg("Binding finalized by callback during dispatch, keeping callback result")
	return st.GetBinding(ctx, b.ID)
}
