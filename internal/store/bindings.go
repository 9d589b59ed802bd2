package store

import (
	"context"
	"fmt"
	"time"

	"ipv6-provision-backend/internal/model"
)

func (s *gormStore) CreateBinding(ctx context.Context, b *model.AddressBinding) error {
	if err := s.db.WithContext(ctx).Create(b).Error; err != nil {
		return fmt.Errorf("failed to create binding for %s: %w", b.IPv6Address, err)
	}
	return nil
}

// SaveBinding writes every column except the dispatch lease, which only
// ClaimBinding and SettleBinding touch.
func (s *gormStore) SaveBinding(ctx context.Context, b *model.AddressBinding) error {
	if err := s.db.WithContext(ctx).Omit("dispatch_until").Save(b).Error; err != nil {
		return fmt.Errorf("failed to save binding %d: %w", b.ID, err)
	}
	return nil
}

func (s *gormStore) ClaimBinding(ctx context.Context, b *model.AddressBinding, expected model.BindingStatus, now time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.AddressBinding{}).
		Where("id = ? AND send_status = ? AND dispatch_until <= ?", b.ID, expected, now.Unix()).
		Updates(map[string]any{
			"owner":           b.Owner,
			"ipv6_address":    b.IPv6Address,
			"department_id":   b.DepartmentID,
			"building":        b.Building,
			"send_status":     b.SendStatus,
			"retry_count":     b.RetryCount,
			"last_send_time":  b.LastSendTime,
			"next_retry_time": nil,
			"dispatch_until":  b.DispatchUntil,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim binding %d: %w", b.ID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

func (s *gormStore) SettleBinding(ctx context.Context, b *model.AddressBinding, claimed model.BindingStatus) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&model.AddressBinding{}).
		Where("id = ? AND send_status = ?", b.ID, claimed).
		Updates(map[string]any{
			"send_status":     b.SendStatus,
			"retry_count":     b.RetryCount,
			"last_send_time":  b.LastSendTime,
			"next_retry_time": nil,
			"api_response":    b.APIResponse,
			"dispatch_until":  0,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to settle binding %d: %w", b.ID, res.Error)
	}
	if res.RowsAffected == 1 {
		return true, nil
	}

	// A callback moved the record during the dispatch. Its result stands; only
	// the lease is released.
	if err := s.db.WithContext(ctx).
		Model(&model.AddressBinding{}).
		Where("id = ?", b.ID).
		Update("dispatch_until", 0).Error; err != nil {
		return false, fmt.Errorf("failed to release binding %d: %w", b.ID, err)
	}
	return false, nil
}

func (s *gormStore) GetBinding(ctx context.Context, id int64) (*model.AddressBinding, error) {
	var b model.AddressBinding
	if err := first(s.db.WithContext(ctx).Where("id = ?", id), &b, fmt.Sprintf("binding %d", id)); err != nil {
		return nil, err
	}
	return &b, nil
}

// FindBindingByMAC returns the newest binding for mac.
func (s *gormStore) FindBindingByMAC(ctx context.Context, mac string) (*model.AddressBinding, error) {
	var b model.AddressBinding
	q := s.db.WithContext(ctx).Where("mac_address = ?", mac).Order("id DESC")
	if err := first(q, &b, fmt.Sprintf("binding for %s", mac)); err != nil {
		return nil, err
	}
	return &b, nil
}

// RecentPendingBindings returns up to limit pending bindings, newest first.
func (s *gormStore) RecentPendingBindings(ctx context.Context, limit int) ([]model.AddressBinding, error) {
	var bindings []model.AddressBinding
	if err := s.db.WithContext(ctx).
		Where("send_status = ?", model.BindingPending).
		Order("id DESC").
		Limit(limit).
		Find(&bindings).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch pending bindings: %w", err)
	}
	return bindings, nil
}

func (s *gormStore) ListBindings(ctx context.Context, filter BindingFilter) ([]model.AddressBinding, error) {
	q := s.db.WithContext(ctx).Order("id DESC")
	if len(filter.Statuses) > 0 {
		q = q.Where("send_status IN ?", filter.Statuses)
	}
	if filter.Owner != "" {
		q = q.Where("owner = ?", filter.Owner)
	}
	if filter.MAC != "" {
		q = q.Where("mac_address = ?", filter.MAC)
	}

	var bindings []model.AddressBinding
	if err := q.Find(&bindings).Error; err != nil {
		return nil, fmt.Errorf("failed to list bindings: %w", err)
	}
	return bindings, nil
}

func (s *gormStore) DeleteBinding(ctx context.Context, id int64) error {
	res := s.db.WithContext(ctx).Delete(&model.AddressBinding{}, id)
	if res.Error != nil {
		return fmt.Errorf("failed to delete binding %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("binding %d: %w", id, ErrNotFound)
	}
	return nil
}

// ClearFailedRetries resets the retry bookkeeping of every failed binding.
func (s *gormStore) ClearFailedRetries(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&model.AddressBinding{}).
		Where("send_status = ?", model.BindingFailed).
		Updates(map[string]any{"retry_count": 0, "next_retry_time": nil})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to clear failed retries: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// AnnotateBindingsByMAC overwrites the response archive of every binding for
// mac with note. Statuses are left untouched.
func (s *gormStore) AnnotateBindingsByMAC(ctx context.Context, mac, note string) (int64, error) {
	res := s.db.WithContext(ctx).
		Model(&model.AddressBinding{}).
		Where("mac_address = ?", mac).
		Update("api_response", note)
	if res.Error != nil {
		return 0, fmt.Errorf("failed to annotate bindings for %s: %w", mac, res.Error)
	}
	return res.RowsAffected, nil
}
