package provision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"ipv6-provision-backend/internal/addr"
	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/provider"
	"ipv6-provision-backend/internal/state"
)

const (
	minVLAN = 2
	maxVLAN = 4094
)

// ConfigInput is the editable part of a network configuration.
type ConfigInput struct {
	AdminName string `json:"admin_name"`
	VLANID    int    `json:"vlan_id"`
	Gateway   string `json:"gateway"`
	DHCPRelay string `json:"dhcp_relay"`
}

func (s *Service) validateConfig(ctx context.Context, in *ConfigInput, excludeID int64) error {
	in.AdminName = strings.TrimSpace(in.AdminName)
	in.Gateway = strings.TrimSpace(in.Gateway)
	in.DHCPRelay = strings.TrimSpace(in.DHCPRelay)

	if in.AdminName == "" || utf8.RuneCountInString(in.AdminName) > 32 {
		return &FieldError{Field: "admin_name", Message: "管理员名不能为空且不超过32个字符"}
	}
	if in.VLANID < minVLAN || in.VLANID > maxVLAN {
		return &FieldError{Field: "vlan_id", Message: "请输入正确的VLAN(2-4094)"}
	}
	if in.Gateway == "" {
		return &FieldError{Field: "gateway", Message: "业务网关不能为空"}
	}
	if err := addr.ValidateGateway(in.Gateway); err != nil {
		return &FieldError{Field: "gateway", Message: "格式错误请重新输入"}
	}
	if in.DHCPRelay == "" || utf8.RuneCountInString(in.DHCPRelay) > 64 {
		return &FieldError{Field: "dhcp_relay", Message: "DHCP服务器中继地址不能为空且不超过64个字符"}
	}

	taken, err := s.store.VLANInUse(ctx, in.VLANID, excludeID)
	if err != nil {
		return err
	}
	if taken {
		return &FieldError{Field: "vlan_id", Message: fmt.Sprintf("VLAN %d 已存在", in.VLANID)}
	}
	return nil
}

// CreateConfig stores a new pending configuration.
func (s *Service) CreateConfig(ctx context.Context, in ConfigInput) (*model.NetworkConfig, error) {
	if err := s.validateConfig(ctx, &in, 0); err != nil {
		return nil, err
	}
	c := &model.NetworkConfig{
		AdminName:  in.AdminName,
		VLANID:     in.VLANID,
		Gateway:    in.Gateway,
		DHCPRelay:  in.DHCPRelay,
		SendStatus: model.ConfigPending,
	}
	if err := s.store.CreateConfig(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info().Int64("config_id", c.ID).Int("vlan_id", c.VLANID).Msg("Network config created")
	return c, nil
}

// UpdateConfig edits a configuration without changing its send status.
func (s *Service) UpdateConfig(ctx context.Context, id int64, in ConfigInput) (*model.NetworkConfig, error) {
	c, err := s.store.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validateConfig(ctx, &in, c.ID); err != nil {
		return nil, err
	}
	c.AdminName = in.AdminName
	c.VLANID = in.VLANID
	c.Gateway = in.Gateway
	c.DHCPRelay = in.DHCPRelay
	if err := s.store.SaveConfig(ctx, c); err != nil {
		return nil, err
	}
	s.log.Info().Int64("config_id", c.ID).Int("vlan_id", c.VLANID).Msg("Network config updated")
	return c, nil
}

type configArchive struct {
	StatusCode   *int          `json:"status_code"`
	ResponseData provider.Body `json:"response_data"`
	Error        *string       `json:"error"`
	Timestamp    string        `json:"timestamp"`
}

// SendConfig dispatches a configuration. Accepted requests become sent and
// await the callback; anything else becomes failed.
func (s *Service) SendConfig(ctx context.Context, id int64, callbackURL string) (*model.NetworkConfig, error) {
	c, err := s.store.GetConfig(ctx, id)
	if err != nil {
		return nil, err
	}

	res := s.client.DispatchConfig(ctx, provider.ConfigRequest{
		ConfigID:    c.ID,
		AdminName:   c.AdminName,
		VLANID:      c.VLANID,
		Gateway:     c.Gateway,
		DHCPRelay:   c.DHCPRelay,
		CallbackURL: callbackURL,
	})

	archive := configArchive{
		StatusCode:   res.StatusCode,
		ResponseData: res.Body,
		Timestamp:    s.now().Format(time.RFC3339),
	}
	if text := res.ErrorText(); text != "" {
		archive.Error = &text
	}
	data, err := json.Marshal(archive)
	if err != nil {
		return nil, err
	}
	c.APIResponse = string(data)

	ev := state.ConfigDispatchAccepted
	if !res.Accepted {
		ev = state.ConfigDispatchFailed
	}
	if err := state.ApplyConfig(c, ev); err != nil {
		return nil, conflict(err)
	}
	if err := s.store.SaveConfig(ctx, c); err != nil {
		return nil, err
	}

	if !res.Accepted {
		s.log.Warn().Int64("config_id", c.ID).Str("error", res.ErrorText()).Msg("Config dispatch rejected")
		return c, &DispatchError{Result: res}
	}
	s.log.Info().Int64("config_id", c.ID).Int("vlan_id", c.VLANID).Msg("Config dispatched, awaiting callback")
	return c, nil
}
