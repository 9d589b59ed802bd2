package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"ipv6-provision-backend/internal/model"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// BindingFilter narrows ListBindings. Zero values match everything.
type BindingFilter struct {
	Statuses []model.BindingStatus
	Owner    string
	MAC      string
}

// Store defines the interface for all database operations.
type Store interface {
	CreateBinding(ctx context.Context, b *model.AddressBinding) error
	SaveBinding(ctx context.Context, b *model.AddressBinding) error
	// ClaimBinding persists b's status, addressing and retry bookkeeping and
	// takes the dispatch lease b.DispatchUntil, but only if the stored status
	// still equals expected and no other dispatch holds an unexpired lease at
	// now. It reports false when another writer got there first.
	ClaimBinding(ctx context.Context, b *model.AddressBinding, expected model.BindingStatus, now time.Time) (bool, error)
	// SettleBinding records a dispatch outcome and releases the lease. The
	// outcome is written only while the status still equals claimed; false
	// means a callback finalized the record first and its result was kept.
	SettleBinding(ctx context.Context, b *model.AddressBinding, claimed model.BindingStatus) (bool, error)
	GetBinding(ctx context.Context, id int64) (*model.AddressBinding, error)
	FindBindingByMAC(ctx context.Context, mac string) (*model.AddressBinding, error)
	RecentPendingBindings(ctx context.Context, limit int) ([]model.AddressBinding, error)
	ListBindings(ctx context.Context, filter BindingFilter) ([]model.AddressBinding, error)
	DeleteBinding(ctx context.Context, id int64) error
	ClearFailedRetries(ctx context.Context) (int64, error)
	AnnotateBindingsByMAC(ctx context.Context, mac, note string) (int64, error)

	GetDevice(ctx context.Context, id int64) (*model.Device, error)
	FindDeviceByMAC(ctx context.Context, mac string) (*model.Device, error)
	SaveDevice(ctx context.Context, d *model.Device) error
	ListDevices(ctx context.Context) ([]model.Device, error)

	CreateApproval(ctx context.Context, a *model.DeviceApproval) error
	GetApproval(ctx context.Context, id int64) (*model.DeviceApproval, error)
	FindApprovedByMAC(ctx context.Context, mac string) (*model.DeviceApproval, error)
	ListApprovals(ctx context.Context, status *model.ApprovalStatus) ([]model.DeviceApproval, error)
	SaveApproval(ctx context.Context, a *model.DeviceApproval) error

	UpsertDepartment(ctx context.Context, d *model.Department) error
	GetDepartment(ctx context.Context, id int64) (*model.Department, error)
	ListDepartments(ctx context.Context) ([]model.Department, error)

	CreateConfig(ctx context.Context, c *model.NetworkConfig) error
	GetConfig(ctx context.Context, id int64) (*model.NetworkConfig, error)
	SaveConfig(ctx context.Context, c *model.NetworkConfig) error
	ListConfigs(ctx context.Context) ([]model.NetworkConfig, error)
	VLANInUse(ctx context.Context, vlanID int, excludeID int64) (bool, error)

	UpsertSubscription(ctx context.Context, sub *model.PushSubscription) error
	GetSubscription(ctx context.Context, endpoint string) (*model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint string) error
	SubscriptionsForOwner(ctx context.Context, owner string) ([]model.PushSubscription, error)

	// WithTx runs fn against a Store bound to a single transaction.
	WithTx(ctx context.Context, fn func(tx Store) error) error
	DB() *gorm.DB
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

func (s *gormStore) WithTx(ctx context.Context, fn func(tx Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormStore{db: tx})
	})
}

// first loads a single row into dest and maps gorm's not-found error.
func first(q *gorm.DB, dest any, what string) error {
	if err := q.First(dest).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%s: %w", what, ErrNotFound)
		}
		return fmt.Errorf("failed to load %s: %w", what, err)
	}
	return nil
}

func (s *gormStore) UpsertDepartment(ctx context.Context, d *model.Department) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title"}),
	}).Create(d).Error; err != nil {
		return fmt.Errorf("failed to upsert department %d: %w", d.ID, err)
	}
	return nil
}

func (s *gormStore) GetDepartment(ctx context.Context, id int64) (*model.Department, error) {
	var d model.Department
	if err := first(s.db.WithContext(ctx).Where("id = ?", id), &d, fmt.Sprintf("department %d", id)); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *gormStore) ListDepartments(ctx context.Context) ([]model.Department, error) {
	var departments []model.Department
	if err := s.db.WithContext(ctx).Order("id").Find(&departments).Error; err != nil {
		return nil, fmt.Errorf("failed to list departments: %w", err)
	}
	return departments, nil
}
