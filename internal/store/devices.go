package store

import (
	"context"
	"fmt"

	"ipv6-provision-backend/internal/model"
)

func (s *gormStore) GetDevice(ctx context.Context, id int64) (*model.Device, error) {
	var d model.Device
	if err := first(s.db.WithContext(ctx).Where("id = ?", id), &d, fmt.Sprintf("device %d", id)); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *gormStore) FindDeviceByMAC(ctx context.Context, mac string) (*model.Device, error) {
	var d model.Device
	if err := first(s.db.WithContext(ctx).Where("mac_address = ?", mac), &d, fmt.Sprintf("device %s", mac)); err != nil {
		return nil, err
	}
	return &d, nil
}

// SaveDevice inserts d when it has no ID and updates it otherwise.
func (s *gormStore) SaveDevice(ctx context.Context, d *model.Device) error {
	if err := s.db.WithContext(ctx).Save(d).Error; err != nil {
		return fmt.Errorf("failed to save device %s: %w", d.MACAddress, err)
	}
	return nil
}

// ListDevices returns devices newest approval first.
func (s *gormStore) ListDevices(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	if err := s.db.WithContext(ctx).Order("create_time DESC").Find(&devices).Error; err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	return devices, nil
}

func (s *gormStore) CreateApproval(ctx context.Context, a *model.DeviceApproval) error {
	if err := s.db.WithContext(ctx).Create(a).Error; err != nil {
		return fmt.Errorf("failed to create approval for %s: %w", a.MACAddress, err)
	}
	return nil
}

func (s *gormStore) GetApproval(ctx context.Context, id int64) (*model.DeviceApproval, error) {
	var a model.DeviceApproval
	if err := first(s.db.WithContext(ctx).Where("id = ?", id), &a, fmt.Sprintf("approval %d", id)); err != nil {
		return nil, err
	}
	return &a, nil
}

// FindApprovedByMAC returns the newest approved request for mac.
func (s *gormStore) FindApprovedByMAC(ctx context.Context, mac string) (*model.DeviceApproval, error) {
	var a model.DeviceApproval
	q := s.db.WithContext(ctx).
		Where("mac_address = ? AND status = ?", mac, model.ApprovalApproved).
		Order("id DESC")
	if err := first(q, &a, fmt.Sprintf("approved request for %s", mac)); err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *gormStore) ListApprovals(ctx context.Context, status *model.ApprovalStatus) ([]model.DeviceApproval, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	var approvals []model.DeviceApproval
	if err := q.Find(&approvals).Error; err != nil {
		return nil, fmt.Errorf("failed to list approvals: %w", err)
	}
	return approvals, nil
}

func (s *gormStore) SaveApproval(ctx context.Context, a *model.DeviceApproval) error {
	if err := s.db.WithContext(ctx).Save(a).Error; err != nil {
		return fmt.Errorf("failed to save approval %d: %w", a.ID, err)
	}
	return nil
}
