package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ipv6-provision-backend/config"
	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/store"
)

// mockLookup is a mock implementation of the Lookup interface.
type mockLookup struct {
	FindDeviceByMACFunc   func(ctx context.Context, mac string) (*model.Device, error)
	FindApprovedByMACFunc func(ctx context.Context, mac string) (*model.DeviceApproval, error)
	FindBindingByMACFunc  func(ctx context.Context, mac string) (*model.AddressBinding, error)
}

func (m *mockLookup) FindDeviceByMAC(ctx context.Context, mac string) (*model.Device, error) {
	if m.FindDeviceByMACFunc == nil {
		return nil, store.ErrNotFound
	}
	return m.FindDeviceByMACFunc(ctx, mac)
}

func (m *mockLookup) FindApprovedByMAC(ctx context.Context, mac string) (*model.DeviceApproval, error) {
	if m.FindApprovedByMACFunc == nil {
		return nil, store.ErrNotFound
	}
	return m.FindApprovedByMACFunc(ctx, mac)
}

func (m *mockLookup) FindBindingByMAC(ctx context.Context, mac string) (*model.AddressBinding, error) {
	if m.FindBindingByMACFunc == nil {
		return nil, store.ErrNotFound
	}
	return m.FindBindingByMACFunc(ctx, mac)
}

type captured struct {
	path    string
	headers http.Header
	body    map[string]any
}

// newUpstream starts a fake provider answering every request with status/body.
func newUpstream(t *testing.T, status int, body string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.path = r.URL.Path
		got.headers = r.Header.Clone()
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got.body))
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server, got
}

func newTestClient(baseURL string, lookup Lookup) *Client {
	cfg := config.Config{Provider: config.ProviderConfig{BaseURL: baseURL}}
	cfg.ApplyDefaults()
	c := NewClient(cfg.Provider, lookup)
	c.now = func() time.Time { return time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC) }
	return c
}

func TestDispatch_ResolvesDUIDFromOnlineDevice(t *testing.T) {
	server, got := newUpstream(t, http.StatusOK, `{"success": 1, "message": "queued"}`)
	duid := "00:03:00:01:aa"
	lookup := &mockLookup{
		FindDeviceByMACFunc: func(ctx context.Context, mac string) (*model.Device, error) {
			return &model.Device{MACAddress: mac, DUID: &duid, Status: model.DeviceOnline}, nil
		},
	}
	c := newTestClient(server.URL, lookup)

	res := c.Dispatch(context.Background(), BindingRequest{
		RecordID:    12,
		IPv6Address: "240c:c901:a:a:30c1:11:2233:4455",
		MACAddress:  "00:11:22:33:44:55",
		CallbackURL: "http://me/api/kea/callback/",
	})

	assert.True(t, res.Accepted)
	assert.True(t, res.BusinessSuccess())
	require.NotNil(t, res.StatusCode)
	assert.Equal(t, 200, *res.StatusCode)
	assert.Nil(t, res.Err)

	assert.Equal(t, "/webhook/kea", got.path)
	assert.Equal(t, "application/json", got.headers.Get("Content-Type"))
	assert.Equal(t, "IoT-IPv6-Management-System/1.0", got.headers.Get("User-Agent"))
	assert.Equal(t, float64(12), got.body["record_id"])
	assert.Equal(t, "240c:c901:a:a:30c1:11:2233:4455", got.body["ipv6_address"])
	assert.Equal(t, duid, got.body["duid"])
	assert.Equal(t, "2025-03-01T08:00:00Z", got.body["timestamp"])
	assert.Equal(t, "http://me/api/kea/callback/", got.body["callback_url"])
}

func TestDispatch_DUIDFallbacks(t *testing.T) {
	duid := "dev-duid"
	testCases := []struct {
		name   string
		lookup *mockLookup
		want   any
	}{
		{
			name: "offline device falls through to approval",
			lookup: &mockLookup{
				FindDeviceByMACFunc: func(ctx context.Context, mac string) (*model.Device, error) {
					return &model.Device{DUID: &duid, Status: model.DeviceOffline}, nil
				},
				FindApprovedByMACFunc: func(ctx context.Context, mac string) (*model.DeviceApproval, error) {
					return &model.DeviceApproval{DUID: "approval-duid", Status: model.ApprovalApproved}, nil
				},
			},
			want: "approval-duid",
		},
		{
			name:   "nothing found sends null",
			lookup: &mockLookup{},
			want:   nil,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newUpstream(t, http.StatusOK, `{}`)
			c := newTestClient(server.URL, tc.lookup)

			res := c.Dispatch(context.Background(), BindingRequest{RecordID: 1, MACAddress: "aa:bb:cc:dd:ee:ff"})
			assert.True(t, res.Accepted)
			assert.False(t, res.BusinessSuccess())
			assert.Equal(t, tc.want, got.body["duid"])
			_, hasCallback := got.body["callback_url"]
			assert.False(t, hasCallback)
		})
	}
}

func TestDispatch_ExplicitDUIDSkipsLookup(t *testing.T) {
	server, got := newUpstream(t, http.StatusOK, `{}`)
	lookup := &mockLookup{
		FindDeviceByMACFunc: func(ctx context.Context, mac string) (*model.Device, error) {
			t.Fatal("lookup must not run when a DUID is supplied")
			return nil, nil
		},
	}
	c := newTestClient(server.URL, lookup)
	duid := "given"

	c.Dispatch(context.Background(), BindingRequest{RecordID: 1, MACAddress: "aa:bb:cc:dd:ee:ff", DUID: &duid})
	assert.Equal(t, "given", got.body["duid"])
}

func TestDispatch_RawAndRejected(t *testing.T) {
	server, _ := newUpstream(t, http.StatusBadGateway, "upstream down")
	c := newTestClient(server.URL, &mockLookup{})

	res := c.Dispatch(context.Background(), BindingRequest{RecordID: 3})
	assert.False(t, res.Accepted)
	require.NotNil(t, res.StatusCode)
	assert.Equal(t, 502, *res.StatusCode)
	assert.Equal(t, BodyRaw, res.Body.Kind)
	assert.JSONEq(t, `{"raw_response":"upstream down"}`, res.Archive())
	assert.Equal(t, "provider returned HTTP 502", res.ErrorText())
}

func TestDispatch_NonObjectJSONKeptRaw(t *testing.T) {
	server, _ := newUpstream(t, http.StatusOK, `["queued"]`)
	c := newTestClient(server.URL, &mockLookup{})

	res := c.Dispatch(context.Background(), BindingRequest{RecordID: 6})
	assert.True(t, res.Accepted)
	assert.False(t, res.BusinessSuccess())
	assert.Equal(t, BodyRaw, res.Body.Kind)
	assert.JSONEq(t, `{"raw_response":"[\"queued\"]"}`, res.Archive())
}

func TestDispatch_Timeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	c := newTestClient(server.URL, &mockLookup{})
	c.http.Timeout = 50 * time.Millisecond

	res := c.Dispatch(context.Background(), BindingRequest{RecordID: 4})
	assert.False(t, res.Accepted)
	assert.Nil(t, res.StatusCode)
	require.NotNil(t, res.Err)
	assert.Equal(t, KindTimeout, res.Err.Kind)
	assert.JSONEq(t, `{"error":"provider request timed out"}`, res.Archive())
}

func TestDispatch_ConnectionRefused(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := newTestClient(url, &mockLookup{})
	res := c.Dispatch(context.Background(), BindingRequest{RecordID: 5})
	require.NotNil(t, res.Err)
	assert.Equal(t, KindConnection, res.Err.Kind)
	assert.Nil(t, res.StatusCode)
}

func TestDispatchOffline_Payload(t *testing.T) {
	server, got := newUpstream(t, http.StatusOK, `{"success": true, "result": "success"}`)
	lookup := &mockLookup{
		FindBindingByMACFunc: func(ctx context.Context, mac string) (*model.AddressBinding, error) {
			return &model.AddressBinding{IPv6Address: "240c:c901:a:a::1"}, nil
		},
	}
	c := newTestClient(server.URL, lookup)
	duid := "d1"

	res := c.DispatchOffline(context.Background(), OfflineRequest{DeviceID: 9, DUID: &duid, MACAddress: "aa:bb:cc:dd:ee:ff"})
	assert.True(t, res.Accepted)
	assert.True(t, res.OfflineConfirmed())
	assert.Equal(t, "/webhook/kea", got.path)
	assert.Equal(t, "delete", got.body["offline"])
	assert.Equal(t, "240c:c901:a:a::1", got.body["ipv6_address"])
	assert.Equal(t, float64(9), got.body["device_id"])
}

func TestDispatchConfig_Payload(t *testing.T) {
	server, got := newUpstream(t, http.StatusOK, `{"ok": true}`)
	c := newTestClient(server.URL, &mockLookup{})

	res := c.DispatchConfig(context.Background(), ConfigRequest{
		ConfigID: 2, AdminName: "root", VLANID: 100, Gateway: "2001:db8::1/64", DHCPRelay: "2001:db8::2",
	})
	assert.True(t, res.Accepted)
	assert.Equal(t, "/webhook/kea-add", got.path)
	assert.Equal(t, float64(100), got.body["vlan_id"])
	assert.Equal(t, "2001:db8::1/64", got.body["gateway"])
	assert.Equal(t, "2001:db8::2", got.body["dhcp_relay"])
}

func TestResult_Heuristics(t *testing.T) {
	ok := 200
	testCases := []struct {
		name      string
		fields    map[string]any
		business  bool
		confirmed bool
	}{
		{"success 1", map[string]any{"success": float64(1)}, true, true},
		{"status Success", map[string]any{"status": "Success"}, true, false},
		{"code string 1", map[string]any{"code": "1"}, true, false},
		{"result success only", map[string]any{"result": "success"}, true, false},
		{"success true, result failed", map[string]any{"success": true, "result": "failed"}, true, false},
		{"success 'true', result 1", map[string]any{"success": "true", "result": float64(1)}, true, true},
		{"code 0", map[string]any{"code": float64(0)}, false, false},
		{"success 'True' is a flag, not an indicator", map[string]any{"success": "True"}, false, true},
		{"empty", map[string]any{}, false, false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := Result{Accepted: true, StatusCode: &ok, Body: Body{Kind: BodyJSON, Fields: tc.fields}}
			assert.Equal(t, tc.business, r.BusinessSuccess())
			assert.Equal(t, tc.confirmed, r.OfflineConfirmed())
		})
	}

	rejected := Result{StatusCode: &ok, Body: Body{Kind: BodyJSON, Fields: map[string]any{"success": true}}}
	assert.False(t, rejected.BusinessSuccess())
}
