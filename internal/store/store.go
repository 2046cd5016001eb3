package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"society-gate-backend/internal/model"
)

// Store defines the interface for all database operations.
type Store interface {
	DB() *gorm.DB

	FindResidentByUnit(ctx context.Context, unitNumber string) (*model.Resident, error)
	GetResident(ctx context.Context, id string) (*model.Resident, error)
	UpsertResidents(ctx context.Context, residents []model.Resident) error

	CreateVisitor(ctx context.Context, v *model.Visitor) error
	GetVisitor(ctx context.Context, id string) (*model.Visitor, error)
	ListVisitors(ctx context.Context, f VisitorFilter) ([]model.Visitor, error)
	RespondToRequest(ctx context.Context, id, ownerID string, status model.ApprovalStatus, at time.Time) (*model.Visitor, error)
	CheckIn(ctx context.Context, id string, upd CheckInUpdate) (*model.Visitor, error)
	CheckOut(ctx context.Context, id, guardID string, at time.Time) (*model.Visitor, error)

	SaveSubscription(ctx context.Context, sub *model.PushSubscription) error
	DeleteSubscription(ctx context.Context, endpoint, residentID string) error
	ListSubscriptions(ctx context.Context, residentID string) ([]model.PushSubscription, error)
}

// Option configures a gormStore.
type Option func(*gormStore)

// WithResidentCache caches unit-owner lookups for ttl.
func WithResidentCache(ttl time.Duration) Option {
	return func(s *gormStore) {
		if ttl > 0 {
			s.units = cache.New(ttl, 2*ttl)
		}
	}
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db    *gorm.DB
	units *cache.Cache
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB, opts ...Option) Store {
	s := &gormStore{db: db}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB exposes the underlying connection for migrations and tests.
func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// FindResidentByUnit returns the resident owning unitNumber, or ErrNotFound.
func (s *gormStore) FindResidentByUnit(ctx context.Context, unitNumber string) (*model.Resident, error) {
	if s.units != nil {
		if cached, ok := s.units.Get(unitNumber); ok {
			r := cached.(model.Resident)
			return &r, nil
		}
	}

	var resident model.Resident
	err := s.db.WithContext(ctx).
		Where("unit_number = ? AND role = ?", unitNumber, model.RoleResident).
		First(&resident).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find resident for unit %q: %w", unitNumber, err)
	}

	if s.units != nil {
		s.units.SetDefault(unitNumber, resident)
	}
	return &resident, nil
}

// GetResident returns the directory entry with the given id, or ErrNotFound.
func (s *gormStore) GetResident(ctx context.Context, id string) (*model.Resident, error) {
	var resident model.Resident
	err := s.db.WithContext(ctx).First(&resident, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get resident %s: %w", id, err)
	}
	return &resident, nil
}

// UpsertResidents mirrors directory entries into the local table, keyed by id.
func (s *gormStore) UpsertResidents(ctx context.Context, residents []model.Resident) error {
	if len(residents) == 0 {
		return nil
	}
	slog.Info("batch upserting residents", "count", len(residents))
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "role", "unit_number", "phone", "phone_secondary", "updated_at"}),
		}).Create(&residents).Error
	})
	if err != nil {
		return fmt.Errorf("batch upsert residents failed: %w", err)
	}
	if s.units != nil {
		s.units.Flush()
	}
	return nil
}

// CreateVisitor inserts a new visitor record.
func (s *gormStore) CreateVisitor(ctx context.Context, v *model.Visitor) error {
	if err := s.db.WithContext(ctx).Create(v).Error; err != nil {
		return fmt.Errorf("create visitor: %w", err)
	}
	return nil
}

// GetVisitor returns the visitor record with the given id, or ErrNotFound.
func (s *gormStore) GetVisitor(ctx context.Context, id string) (*model.Visitor, error) {
	return getVisitor(s.db.WithContext(ctx), id)
}

// ListVisitors returns visitor records matching f.
func (s *gormStore) ListVisitors(ctx context.Context, f VisitorFilter) ([]model.Visitor, error) {
	q := s.db.WithContext(ctx).Model(&model.Visitor{})
	if f.UnitOwnerID != "" {
		q = q.Where("unit_owner_id = ?", f.UnitOwnerID)
	}
	if f.Status != "" {
		q = q.Where("approval_status = ?", f.Status)
	}
	if f.CheckedIn != nil {
		if *f.CheckedIn {
			q = q.Where("check_in_time IS NOT NULL")
		} else {
			q = q.Where("check_in_time IS NULL")
		}
	}
	if f.CheckedOut != nil {
		if *f.CheckedOut {
			q = q.Where("check_out_time IS NOT NULL")
		} else {
			q = q.Where("check_out_time IS NULL")
		}
	}
	switch f.Order {
	case OrderCheckInDesc:
		q = q.Order("check_in_time IS NULL").Order("check_in_time DESC").Order("created_at DESC")
	default:
		q = q.Order("created_at DESC")
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.WithOwner {
		q = q.Preload("UnitOwner")
	}

	visitors := make([]model.Visitor, 0)
	if err := q.Find(&visitors).Error; err != nil {
		return nil, fmt.Errorf("list visitors: %w", err)
	}
	return visitors, nil
}

// RespondToRequest moves a pending record owned by ownerID to status in a
// single conditional write.
func (s *gormStore) RespondToRequest(ctx context.Context, id, ownerID string, status model.ApprovalStatus, at time.Time) (*model.Visitor, error) {
	var out *model.Visitor
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Visitor{}).
			Where("id = ? AND unit_owner_id = ? AND approval_status = ? AND check_in_time IS NULL", id, ownerID, model.StatusPending).
			Updates(map[string]any{
				"approval_status": status,
				"responded_at":    at,
			})
		if res.Error != nil {
			return fmt.Errorf("respond to request %s: %w", id, res.Error)
		}

		current, err := getVisitor(tx, id)
		if err != nil {
			return err
		}
		out = current
		if current.UnitOwnerID != ownerID {
			return ErrNotFound
		}
		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}
		return nil
	})
	return visitorResult(out, err)
}

// CheckIn stamps checkInTime on an approved record that has not checked in yet.
// The guard is part of the UPDATE so concurrent check-ins cannot both succeed.
func (s *gormStore) CheckIn(ctx context.Context, id string, upd CheckInUpdate) (*model.Visitor, error) {
	fields := map[string]any{
		"check_in_time":    upd.At,
		"checked_in_by_id": upd.GuardID,
	}
	if upd.VehicleNo != "" {
		fields["vehicle_no"] = upd.VehicleNo
	}

	var out *model.Visitor
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Visitor{}).
			Where("id = ? AND approval_status = ? AND check_in_time IS NULL", id, model.StatusApproved).
			Updates(fields)
		if res.Error != nil {
			return fmt.Errorf("check in visitor %s: %w", id, res.Error)
		}

		current, err := getVisitor(tx, id)
		if err != nil {
			return err
		}
		out = current
		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}
		return nil
	})
	return visitorResult(out, err)
}

// CheckOut stamps checkOutTime on a checked-in record that has not left yet.
func (s *gormStore) CheckOut(ctx context.Context, id, guardID string, at time.Time) (*model.Visitor, error) {
	var out *model.Visitor
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.Visitor{}).
			Where("id = ? AND check_in_time IS NOT NULL AND check_out_time IS NULL", id).
			Updates(map[string]any{
				"check_out_time":    at,
				"checked_out_by_id": guardID,
			})
		if res.Error != nil {
			return fmt.Errorf("check out visitor %s: %w", id, res.Error)
		}

		current, err := getVisitor(tx, id)
		if err != nil {
			return err
		}
		out = current
		if res.RowsAffected == 0 {
			return ErrConditionFailed
		}
		return nil
	})
	return visitorResult(out, err)
}

// SaveSubscription creates or replaces a push subscription for a resident.
func (s *gormStore) SaveSubscription(ctx context.Context, sub *model.PushSubscription) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"resident_id", "p256dh", "auth"}),
	}).Create(sub).Error
	if err != nil {
		return fmt.Errorf("save subscription: %w", err)
	}
	return nil
}

// DeleteSubscription removes a push subscription. An empty residentID matches any owner.
func (s *gormStore) DeleteSubscription(ctx context.Context, endpoint, residentID string) error {
	q := s.db.WithContext(ctx).Where("endpoint = ?", endpoint)
	if residentID != "" {
		q = q.Where("resident_id = ?", residentID)
	}
	if err := q.Delete(&model.PushSubscription{}).Error; err != nil {
		return fmt.Errorf("delete subscription: %w", err)
	}
	return nil
}

// ListSubscriptions returns every push subscription registered by a resident.
func (s *gormStore) ListSubscriptions(ctx context.Context, residentID string) ([]model.PushSubscription, error) {
	var subs []model.PushSubscription
	if err := s.db.WithContext(ctx).Where("resident_id = ?", residentID).Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("list subscriptions for %s: %w", residentID, err)
	}
	return subs, nil
}

func getVisitor(db *gorm.DB, id string) (*model.Visitor, error) {
	var v model.Visitor
	err := db.Where("id = ?", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get visitor %s: %w", id, err)
	}
	return &v, nil
}

// visitorResult keeps the current record on a failed condition so callers can
// explain the conflict; every other error drops it.
func visitorResult(v *model.Visitor, err error) (*model.Visitor, error) {
	switch {
	case err == nil:
		return v, nil
	case errors.Is(err, ErrConditionFailed):
		return v, err
	default:
		return nil, err
	}
}
