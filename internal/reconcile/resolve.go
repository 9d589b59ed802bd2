package reconcile

import (
	"context"
	"errors"

	"ipv6-provision-backend/internal/addr"
	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/store"
)

// RecentPendingWindow bounds how many pending bindings the last-resort
// resolver inspects.
const RecentPendingWindow = 3

// resolver is one step of the binding lookup chain. A nil binding with a nil
// error means "no match, try the next step".
type resolver struct {
	name    string
	resolve func(ctx context.Context, s store.Store, id int64, p Payload) (*model.AddressBinding, error)
}

func defaultResolvers() []resolver {
	return []resolver{
		{name: "record_id", resolve: byID},
		{name: "processed_mac", resolve: byProcessedMAC},
		{name: "recent_pending", resolve: byRecentPending},
	}
}

func notFound(b *model.AddressBinding, err error) (*model.AddressBinding, error) {
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return b, err
}

func byID(ctx context.Context, s store.Store, id int64, _ Payload) (*model.AddressBinding, error) {
	return notFound(s.GetBinding(ctx, id))
}

// processedMAC returns the callback's hardware address in stored form.
func processedMAC(p Payload) (string, bool) {
	raw := p.String("processed_mac")
	if raw == "" {
		return "", false
	}
	if mac, err := addr.NormalizeMAC(raw); err == nil {
		return mac, true
	}
	return raw, true
}

func byProcessedMAC(ctx context.Context, s store.Store, _ int64, p Payload) (*model.AddressBinding, error) {
	mac, ok := processedMAC(p)
	if !ok {
		return nil, nil
	}
	return notFound(s.FindBindingByMAC(ctx, mac))
}

func byRecentPending(ctx context.Context, s store.Store, _ int64, p Payload) (*model.AddressBinding, error) {
	mac, ok := processedMAC(p)
	if !ok {
		return nil, nil
	}
	recent, err := s.RecentPendingBindings(ctx, RecentPendingWindow)
	if err != nil {
		return nil, err
	}
	for i := range recent {
		if recent[i].MACAddress == mac {
			return &recent[i], nil
		}
	}
	return nil, nil
}
