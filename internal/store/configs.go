package store

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"ipv6-provision-backend/internal/model"
)

func (s *gormStore) CreateConfig(ctx context.Context, c *model.NetworkConfig) error {
	if err := s.db.WithContext(ctx).Create(c).Error; err != nil {
		return fmt.Errorf("failed to create config for vlan %d: %w", c.VLANID, err)
	}
	return nil
}

func (s *gormStore) GetConfig(ctx context.Context, id int64) (*model.NetworkConfig, error) {
	var c model.NetworkConfig
	if err := first(s.db.WithContext(ctx).Where("id = ?", id), &c, fmt.Sprintf("config %d", id)); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *gormStore) SaveConfig(ctx context.Context, c *model.NetworkConfig) error {
	if err := s.db.WithContext(ctx).Save(c).Error; err != nil {
		return fmt.Errorf("failed to save config %d: %w", c.ID, err)
	}
	return nil
}

func (s *gormStore) ListConfigs(ctx context.Context) ([]model.NetworkConfig, error) {
	var configs []model.NetworkConfig
	if err := s.db.WithContext(ctx).Order("create_time DESC").Find(&configs).Error; err != nil {
		return nil, fmt.Errorf("failed to list configs: %w", err)
	}
	return configs, nil
}

// VLANInUse reports whether another config already claims vlanID.
func (s *gormStore) VLANInUse(ctx context.Context, vlanID int, excludeID int64) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).
		Model(&model.NetworkConfig{}).
		Where("vlan_id = ? AND id <> ?", vlanID, excludeID).
		Count(&count).Error; err != nil {
		return false, fmt.Errorf("failed to check vlan %d: %w", vlanID, err)
	}
	return count > 0, nil
}

func (s *gormStore) UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "owner"}),
	}).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}

func (s *gormStore) GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error) {
	var sub model.PushSubscription
	if err := first(s.db.WithContext(ctx).Where("endpoint = ?", endpoint), &sub, "subscription"); err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint string) error {
	if err := s.db.WithContext(ctx).Delete(&model.PushSubscription{Endpoint: endpoint}).Error; err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	return nil
}

// SubscriptionsForOwner returns subscriptions registered for owner plus the
// catch-all ones with no owner.
func (s *gormStore) SubscriptionsForOwner(ctx context.Context, owner string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).
		Where("owner = ? OR owner = ''", owner).
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch subscriptions for %q: %w", owner, err)
	}
	return subs, nil
}
