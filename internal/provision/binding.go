package provision

import (
	"context"

	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/provider"
	"ipv6-provision-backend/internal/state"
)

// SendBinding manually dispatches an existing binding. The record is claimed
// as pending before the request goes out, so a concurrent retry pass or
// manual send is refused with ErrConflict. An accepted request leaves it
// pending for the callback; anything else marks it failed. The provider
// result is archived either way.
func (s *Service) SendBinding(ctx context.Context, id int64, callbackURL string) (*model.AddressBinding, error) {
	b, err := s.store.GetBinding(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.MACAddress == "" {
		return nil, &FieldError{Field: "mac_address", Message: "MAC地址为空，无法发送到API"}
	}
	if err := s.claim(ctx, s.store, b, state.BindingQueued); err != nil {
		return nil, err
	}

	res := s.client.Dispatch(ctx, provider.BindingRequest{
		RecordID:    b.ID,
		IPv6Address: b.IPv6Address,
		MACAddress:  b.MACAddress,
		CallbackURL: callbackURL,
	})

	ev := state.BindingDispatchAccepted
	if !res.Accepted {
		ev = state.BindingDispatchFailed
	}
	b, err = s.settle(ctx, s.store, b, ev, res)
	if err != nil {
		return nil, err
	}

	if !res.Accepted {
		s.log.Warn().Int64("binding_id", b.ID).Str("error", res.ErrorText()).Msg("Binding dispatch rejected")
		return b, &DispatchError{Result: res}
	}
	s.log.Info().Int64("binding_id", b.ID).Str("ipv6", b.IPv6Address).Msg("Binding dispatched, awaiting callback")
	return b, nil
}

// DeleteBinding removes a binding record.
func (s *Service) DeleteBinding(ctx context.Context, id int64) error {
	if err := s.store.DeleteBinding(ctx, id); err != nil {
		return err
	}
	s.log.Info().Int64("binding_id", id).Msg("Binding deleted")
	return nil
}
