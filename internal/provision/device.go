package provision

import (
	"context"
	"time"

	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/provider"
	"ipv6-provision-backend/internal/reconcile"
	"ipv6-provision-backend/internal/state"
	"ipv6-provision-backend/internal/store"
)

// OfflineDevice asks the provider to withdraw a device. Once the request is
// accepted the device is marked offline and its bindings are annotated; the
// callback later confirms or reverts that.
func (s *Service) OfflineDevice(ctx context.Context, deviceID int64, callbackURL string) (*model.Device, error) {
	d, err := s.store.GetDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	res := s.client.DispatchOffline(ctx, provider.OfflineRequest{
		DeviceID:    d.ID,
		DUID:        d.DUID,
		MACAddress:  d.MACAddress,
		CallbackURL: callbackURL,
	})
	if !res.Accepted {
		s.log.Warn().Int64("device_id", d.ID).Str("error", res.ErrorText()).Msg("Offline dispatch rejected")
		return d, &DispatchError{Result: res}
	}

	if err := state.ApplyDevice(d, state.DeviceOfflineAccepted); err != nil {
		return nil, conflict(err)
	}
	d.APIResponse = res.Archive()

	note := reconcile.NewOfflineNote(d.ID, s.now().Format(time.RFC3339))
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.SaveDevice(ctx, d); err != nil {
			return err
		}
		n, err := tx.AnnotateBindingsByMAC(ctx, d.MACAddress, note)
		if err != nil {
			return err
		}
		s.log.Info().Int64("device_id", d.ID).Int64("bindings", n).Msg("Device marked offline")
		return nil
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}
