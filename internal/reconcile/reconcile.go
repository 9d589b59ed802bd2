// Package reconcile applies provider callbacks to the records they refer to.
package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ipv6-provision-backend/internal/addr"
	"ipv6-provision-backend/internal/diag"
	"ipv6-provision-backend/internal/logger"
	"ipv6-provision-backend/internal/metrics"
	"ipv6-provision-backend/internal/model"
	"ipv6-provision-backend/internal/state"
	"ipv6-provision-backend/internal/store"
	"ipv6-provision-backend/internal/success"
)

// MsgPostOnly is acknowledged to callbacks delivered with any other method.
const MsgPostOnly = "只接受POST请求"

// Notifier receives the id of every binding a callback finalized.
type Notifier interface {
	Dispatch(bindingID int64)
}

// Reconciler handles the binding, device-offline and network-config
// callback channels.
type Reconciler struct {
	store     store.Store
	notifier  Notifier
	resolvers []resolver
	log       zerolog.Logger
	now       func() time.Time
}

// New creates a Reconciler. notifier may be nil.
func New(s store.Store, notifier Notifier) *Reconciler {
	return &Reconciler{
		store:     s,
		notifier:  notifier,
		resolvers: defaultResolvers(),
		log:       logger.WithComponent("reconcile"),
		now:       time.Now,
	}
}

// BindingAck is returned to the provider for a binding callback. Success is
// the transport acknowledgement; Result carries the binding outcome.
type BindingAck struct {
	Success             bool     `json:"success"`
	Message             string   `json:"message"`
	RecordID            string   `json:"record_id,omitempty"`
	ProcessedIPv6Suffix *string  `json:"processed_ipv6_suffix,omitempty"`
	ProcessedMAC        *string  `json:"processed_mac,omitempty"`
	Result              string   `json:"result,omitempty"`
	SearchedRecordID    *int64   `json:"searched_record_id,omitempty"`
	SearchedBy          []string `json:"searched_by,omitempty"`
	CallbackData        Payload  `json:"callback_data,omitempty"`
	ReceivedData        Payload  `json:"received_data,omitempty"`
}

// Binding reconciles an address-binding callback. Correlation failures and
// unresolved records are acknowledged with Success false and never returned
// as errors; the error result is reserved for persistence failures.
func (r *Reconciler) Binding(ctx context.Context, p Payload) (BindingAck, error) {
	ok := success.Flag(p["success"])
	message := p.String("message")

	id, err := BindingRecordID(p)
	if err != nil {
		metrics.CallbackTotal.WithLabelValues("binding", "invalid").Inc()
		r.log.Warn().Err(err).RawJSON("payload", p.JSON()).Msg("Binding callback without usable record_id")
		msg := "record_id格式错误"
		if errors.Is(err, errMissingID) {
			msg = "缺少必要参数：record_id"
		}
		return BindingAck{Message: msg, ReceivedData: p}, nil
	}

	b, tried, err := r.resolveBinding(ctx, id, p)
	if err != nil {
		return BindingAck{Message: "处理回调出错"}, err
	}
	if b == nil {
		metrics.CallbackTotal.WithLabelValues("binding", "unresolved").Inc()
		r.log.Warn().
			Int64("record_id", id).
			Strs("searched_by", tried).
			Str("processed_mac", p.String("processed_mac")).
			Err(ErrNotResolved).
			Msg("Binding callback matched no record")
		return BindingAck{
			Message:          "未找到对应记录",
			SearchedRecordID: &id,
			SearchedBy:       tried,
			CallbackData:     p,
		}, nil
	}

	event := state.BindingCallbackBound
	archive := string(p.JSON())
	result := "success"
	if !ok {
		event = state.BindingCallbackFailed
		result = "failed"
		failure, _ := json.Marshal(model.BindFailure{ErrorMessage: message, CallbackData: p.JSON()})
		archive = string(failure)
	}

	previous := b.SendStatus
	if err := state.ApplyBinding(b, event, r.now()); err != nil {
		return BindingAck{Message: "处理回调出错"}, err
	}
	b.APIResponse = archive
	if err := r.store.SaveBinding(ctx, b); err != nil {
		return BindingAck{Message: "处理回调出错"}, err
	}

	metrics.CallbackTotal.WithLabelValues("binding", result).Inc()
	r.log.Info().
		Int64("record_id", id).
		Int64("binding_id", b.ID).
		Str("from", string(previous)).
		Str("to", string(b.SendStatus)).
		Str("message", message).
		Msg("Binding callback applied")

	if r.notifier != nil {
		r.notifier.Dispatch(b.ID)
	}

	suffix := addr.InterfaceSuffix(b.IPv6Address)
	mac := b.MACAddress
	return BindingAck{
		Success:             true,
		Message:             "回调处理完成",
		RecordID:            fmt.Sprint(id),
		ProcessedIPv6Suffix: &suffix,
		ProcessedMAC:        &mac,
		Result:              result,
	}, nil
}

func (r *Reconciler) resolveBinding(ctx context.Context, id int64, p Payload) (*model.AddressBinding, []string, error) {
	tried := make([]string, 0, len(r.resolvers))
	for _, res := range r.resolvers {
		tried = append(tried, res.name)
		b, err := res.resolve(ctx, r.store, id, p)
		if err != nil {
			return nil, tried, fmt.Errorf("resolve by %s: %w", res.name, err)
		}
		if b != nil {
			if res.name != "record_id" {
				r.log.Info().Int64("record_id", id).Int64("binding_id", b.ID).Str("resolver", res.name).Msg("Binding resolved by fallback")
			}
			return b, tried, nil
		}
	}
	return nil, tried, nil
}

// OfflineAck is returned for a device-offline callback. Unlike BindingAck,
// Success reports the offline outcome.
type OfflineAck struct {
	Success          bool    `json:"success"`
	Message          string  `json:"message"`
	DeviceID         *int64  `json:"device_id,omitempty"`
	SearchedDeviceID *int64  `json:"searched_device_id,omitempty"`
	ReceivedData     Payload `json:"received_data,omitempty"`
}

// OfflineNote is archived on every binding of a device confirmed offline.
type OfflineNote struct {
	Status    string `json:"status"`
	DeviceID  int64  `json:"device_id"`
	Timestamp string `json:"timestamp"`
	Message   string `json:"message"`
}

// NewOfflineNote builds the device_offline annotation for deviceID.
func NewOfflineNote(deviceID int64, timestamp string) string {
	data, _ := json.Marshal(OfflineNote{
		Status:    "device_offline",
		DeviceID:  deviceID,
		Timestamp: timestamp,
		Message:   fmt.Sprintf("设备%d已下线", deviceID),
	})
	return string(data)
}

// Offline reconciles a device-offline callback, correlated by device_id or
// record_id. Success requires a truthy success flag and, when present, a
// success result.
func (r *Reconciler) Offline(ctx context.Context, p Payload) (OfflineAck, error) {
	message := p.String("message")
	ok := success.Flag(p["success"])
	if res, has := p["result"]; has && res != nil {
		ok = ok && success.Indicator(res)
	}

	id, err := FirstID(p, "device_id", "record_id")
	if err != nil {
		metrics.CallbackTotal.WithLabelValues("offline", "invalid").Inc()
		r.log.Warn().Err(err).RawJSON("payload", p.JSON()).Msg("Offline callback without usable device_id")
		msg := "device_id格式错误"
		if errors.Is(err, errMissingID) {
			msg = "缺少必要参数：device_id"
		}
		return OfflineAck{Message: msg, ReceivedData: p}, nil
	}

	d, err := r.store.GetDevice(ctx, id)
	if err != nil {
		if isNotFound(err) {
			metrics.CallbackTotal.WithLabelValues("offline", "unresolved").Inc()
			r.log.Warn().Int64("device_id", id).Msg("Offline callback matched no device")
			return OfflineAck{Message: "未找到对应设备记录", SearchedDeviceID: &id}, nil
		}
		return OfflineAck{Message: "处理设备下线回调出错"}, err
	}

	d.APIResponse = string(p.JSON())
	event := state.DeviceOfflineConfirmed
	if !ok {
		event = state.DeviceOfflineReverted
	}
	if err := state.ApplyDevice(d, event); err != nil {
		return OfflineAck{Message: "处理设备下线回调出错"}, err
	}

	err = r.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.SaveDevice(ctx, d); err != nil {
			return err
		}
		if ok && d.MACAddress != "" {
			n, err := tx.AnnotateBindingsByMAC(ctx, d.MACAddress, NewOfflineNote(d.ID, p.String("timestamp")))
			if err != nil {
				return err
			}
			r.log.Info().Int64("device_id", d.ID).Int64("bindings", n).Msg("Bindings annotated as device offline")
		}
		return nil
	})
	if err != nil {
		return OfflineAck{Message: "处理设备下线回调出错"}, err
	}

	if !ok {
		metrics.CallbackTotal.WithLabelValues("offline", "failed").Inc()
		r.log.Warn().Int64("device_id", d.ID).Str("message", message).Msg("Device offline rejected, device kept online")
		return OfflineAck{Message: "设备下线失败: " + message, DeviceID: &id}, nil
	}

	metrics.CallbackTotal.WithLabelValues("offline", "success").Inc()
	r.log.Info().Int64("device_id", d.ID).Str("message", message).Msg("Device offline confirmed")
	return OfflineAck{Success: true, Message: "设备下线成功: " + message, DeviceID: &id}, nil
}

// ConfigAck is returned for a network-config callback.
type ConfigAck struct {
	Success          bool    `json:"success"`
	Message          string  `json:"message"`
	SearchedConfigID *int64  `json:"searched_config_id,omitempty"`
	ReceivedData     Payload `json:"received_data,omitempty"`
}

// Config reconciles a network-config callback correlated by config_id. A
// failure surfaces the provider's conflict list through diag.
func (r *Reconciler) Config(ctx context.Context, p Payload) (ConfigAck, error) {
	ok := success.Flag(p["success"])
	message := p.String("message")

	id, err := FirstID(p, "config_id")
	if err != nil {
		metrics.CallbackTotal.WithLabelValues("config", "invalid").Inc()
		r.log.Warn().Err(err).RawJSON("payload", p.JSON()).Msg("Config callback without usable config_id")
		msg := "config_id格式错误"
		if errors.Is(err, errMissingID) {
			msg = "缺少必要参数：config_id"
		}
		return ConfigAck{Message: msg, ReceivedData: p}, nil
	}

	c, err := r.store.GetConfig(ctx, id)
	if err != nil {
		if isNotFound(err) {
			metrics.CallbackTotal.WithLabelValues("config", "unresolved").Inc()
			r.log.Warn().Int64("config_id", id).Msg("Config callback matched no config")
			return ConfigAck{Message: "未找到对应配置记录", SearchedConfigID: &id}, nil
		}
		return ConfigAck{Message: "处理回调出错"}, err
	}

	event := state.ConfigCallbackSucceeded
	if !ok {
		event = state.ConfigCallbackFailed
	}
	if err := state.ApplyConfig(c, event); err != nil {
		return ConfigAck{Message: "处理回调出错"}, err
	}
	c.APIResponse = string(p.JSON())
	if err := r.store.SaveConfig(ctx, c); err != nil {
		return ConfigAck{Message: "处理回调出错"}, err
	}

	if ok {
		metrics.CallbackTotal.WithLabelValues("config", "success").Inc()
		r.log.Info().Int64("config_id", id).Str("message", message).Msg("Network config applied")
		return ConfigAck{Success: true, Message: "IPv6配置发送成功"}, nil
	}

	detail := message
	if conflicts := p.Strings("conflicts"); len(conflicts) > 0 {
		detail = diag.FormatConflicts(conflicts)
	} else if detail == "" {
		detail = diag.SendFailed
	}
	metrics.CallbackTotal.WithLabelValues("config", "failed").Inc()
	r.log.Warn().Int64("config_id", id).Str("detail", detail).Msg("Network config rejected")
	return ConfigAck{Message: "发送失败：" + detail}, nil
}
