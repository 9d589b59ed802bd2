// Package provider sends provisioning requests to the external KEA service.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ipv6-provision-backend/config"
	"ipv6-provision-backend/internal/logger"
	"ipv6-provision-backend/internal/metrics"
	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/store"
)

// Lookup is the read access the client needs to fill in missing DUIDs and
// addresses. store.Store satisfies it.
type Lookup interface {
	FindDeviceByMAC(ctx context.Context, mac string) (*model.Device, error)
	FindApprovedByMAC(ctx context.Context, mac string) (*model.DeviceApproval, error)
	FindBindingByMAC(ctx context.Context, mac string) (*model.AddressBinding, error)
}

// Client dispatches binding, offline and network-config requests.
type Client struct {
	cfg    config.ProviderConfig
	lookup Lookup
	http   *http.Client
	log    zerolog.Logger
	now    func() time.Time
}

// NewClient creates a provider client. A zero cfg.Timeout falls back to 10s.
func NewClient(cfg config.ProviderConfig, lookup Lookup) *Client {
	log := logger.WithComponent("provider")

	var transport http.RoundTripper = &http.Transport{}
	if cfg.HTTPProxy != "" {
		proxyURL, err := url.Parse(cfg.HTTPProxy)
		if err != nil {
			log.Warn().Err(err).Str("proxy", cfg.HTTPProxy).Msg("Invalid proxy URL, provider calls will not use a proxy")
		} else {
			transport = &http.Transport{Proxy: http.ProxyURL(proxyURL)}
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		cfg:    cfg,
		lookup: lookup,
		http: &http.Client{
			Transport: transport,
			Timeout:   timeout,
		},
		log: log,
		now: time.Now,
	}
}

// BindingRequest asks the provider to bind an address to a device.
type BindingRequest struct {
	RecordID    int64
	IPv6Address string
	MACAddress  string
	// DUID is resolved from the device tables when nil.
	DUID        *string
	CallbackURL string
}

type bindingPayload struct {
	RecordID    int64   `json:"record_id"`
	IPv6Address string  `json:"ipv6_address"`
	MACAddress  string  `json:"mac_address"`
	DUID        *string `json:"duid"`
	Timestamp   string  `json:"timestamp"`
	CallbackURL string  `json:"callback_url,omitempty"`
}

// Dispatch sends a binding request. Transport failures are reported in the
// returned Result, never as a Go error.
func (c *Client) Dispatch(ctx context.Context, req BindingRequest) Result {
	duid := req.DUID
	if duid == nil {
		duid = c.ResolveDUID(ctx, req.MACAddress)
	}

	payload := bindingPayload{
		RecordID:    req.RecordID,
		IPv6Address: req.IPv6Address,
		MACAddress:  req.MACAddress,
		DUID:        duid,
		Timestamp:   c.timestamp(),
		CallbackURL: req.CallbackURL,
	}

	res := c.post(ctx, "binding", c.cfg.BindingPath, payload)
	c.log.Info().
		Int64("record_id", req.RecordID).
		Str("ipv6", req.IPv6Address).
		Str("mac", req.MACAddress).
		Bool("accepted", res.Accepted).
		Bool("business_success", res.BusinessSuccess()).
		Msg("Binding dispatched")
	if res.Accepted && !res.BusinessSuccess() {
		c.log.Warn().Int64("record_id", req.RecordID).Str("body", res.Archive()).Msg("Provider accepted binding without a success indicator")
	}
	return res
}

// OfflineRequest asks the provider to withdraw a device's address.
type OfflineRequest struct {
	DeviceID    int64
	DUID        *string
	MACAddress  string
	CallbackURL string
}

type offlinePayload struct {
	DeviceID    int64   `json:"device_id"`
	DUID        *string `json:"duid"`
	MACAddress  string  `json:"mac_address"`
	IPv6Address *string `json:"ipv6_address"`
	Offline     string  `json:"offline"`
	Timestamp   string  `json:"timestamp"`
	CallbackURL string  `json:"callback_url,omitempty"`
}

// DispatchOffline sends an offline request carrying the device's current
// address, looked up by hardware address.
func (c *Client) DispatchOffline(ctx context.Context, req OfflineRequest) Result {
	var ipv6 *string
	if req.MACAddress != "" {
		b, err := c.lookup.FindBindingByMAC(ctx, req.MACAddress)
		switch {
		case err == nil && b.IPv6Address != "":
			ipv6 = &b.IPv6Address
		case err != nil && !errors.Is(err, store.ErrNotFound):
			c.log.Warn().Err(err).Str("mac", req.MACAddress).Msg("Address lookup failed")
		default:
			c.log.Info().Str("mac", req.MACAddress).Msg("No address bound to hardware address")
		}
	}

	payload := offlinePayload{
		DeviceID:    req.DeviceID,
		DUID:        req.DUID,
		MACAddress:  req.MACAddress,
		IPv6Address: ipv6,
		Offline:     "delete",
		Timestamp:   c.timestamp(),
		CallbackURL: req.CallbackURL,
	}

	res := c.post(ctx, "offline", c.cfg.BindingPath, payload)
	c.log.Info().
		Int64("device_id", req.DeviceID).
		Bool("accepted", res.Accepted).
		Bool("confirmed", res.OfflineConfirmed()).
		Msg("Offline dispatched")
	return res
}

// ConfigRequest pushes a VLAN network configuration.
type ConfigRequest struct {
	ConfigID    int64
	AdminName   string
	VLANID      int
	Gateway     string
	DHCPRelay   string
	CallbackURL string
}

type configPayload struct {
	ConfigID    int64  `json:"config_id"`
	AdminName   string `json:"admin_name"`
	VLANID      int    `json:"vlan_id"`
	Gateway     string `json:"gateway"`
	DHCPRelay   string `json:"dhcp_relay"`
	Timestamp   string `json:"timestamp"`
	CallbackURL string `json:"callback_url,omitempty"`
}

func (c *Client) DispatchConfig(ctx context.Context, req ConfigRequest) Result {
	payload := configPayload{
		ConfigID:    req.ConfigID,
		AdminName:   req.AdminName,
		VLANID:      req.VLANID,
		Gateway:     req.Gateway,
		DHCPRelay:   req.DHCPRelay,
		Timestamp:   c.timestamp(),
		CallbackURL: req.CallbackURL,
	}

	res := c.post(ctx, "config", c.cfg.ConfigPath, payload)
	c.log.Info().
		Int64("config_id", req.ConfigID).
		Int("vlan_id", req.VLANID).
		Bool("accepted", res.Accepted).
		Msg("Network config dispatched")
	return res
}

// ResolveDUID looks up the DUID for mac: an online device first, then an
// approved request. A miss is logged and yields nil.
func (c *Client) ResolveDUID(ctx context.Context, mac string) *string {
	if mac == "" {
		return nil
	}
	if d, err := c.lookup.FindDeviceByMAC(ctx, mac); err == nil {
		if d.Status == model.DeviceOnline && d.DUID != nil && *d.DUID != "" {
			return d.DUID
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		c.log.Warn().Err(err).Str("mac", mac).Msg("Device lookup failed")
	}

	if a, err := c.lookup.FindApprovedByMAC(ctx, mac); err == nil {
		if a.DUID != "" {
			duid := a.DUID
			return &duid
		}
	} else if !errors.Is(err, store.ErrNotFound) {
		c.log.Warn().Err(err).Str("mac", mac).Msg("Approval lookup failed")
	}

	c.log.Info().Str("mac", mac).Msg("No DUID found for hardware address, sending null")
	return nil
}

func (c *Client) timestamp() string {
	return c.now().Format(time.RFC3339)
}

func (c *Client) endpoint(path string) string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + path
}

// post performs one JSON POST and folds every outcome into a Result.
func (c *Client) post(ctx context.Context, kind, path string, payload any) Result {
	start := time.Now()
	res := c.do(ctx, c.endpoint(path), payload)
	metrics.DispatchDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())

	outcome := "rejected"
	switch {
	case res.Err != nil:
		outcome = string(res.Err.Kind)
		c.log.Error().Err(res.Err.Err).Str("kind", kind).Str("class", outcome).Msg("Provider request failed")
	case res.Accepted:
		outcome = "accepted"
	}
	metrics.DispatchTotal.WithLabelValues(kind, outcome).Inc()
	return res
}

func (c *Client) do(ctx context.Context, endpoint string, payload any) Result {
	jsonBody, err := json.Marshal(payload)
	if err != nil {
		return Result{Err: &TransportError{Kind: KindOther, Err: fmt.Errorf("failed to marshal request payload: %w", err)}}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return Result{Err: &TransportError{Kind: KindOther, Err: fmt.Errorf("failed to create request: %w", err)}}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.UserAgent != "" {
		req.Header.Set("User-Agent", c.cfg.UserAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{Err: classify(err)}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return Result{Err: classify(fmt.Errorf("failed to read response body: %w", err))}
	}

	status := resp.StatusCode
	return Result{
		Accepted:   status == http.StatusOK,
		StatusCode: &status,
		Body:       parseBody(data),
	}
}
