package repository

import (
	"context"
	"time"

	"github.com/quocanhngo/managex/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DeviceRepository is the durable presence store. Every mutation is a single
// atomic statement scoped to one device row.
type DeviceRepository struct {
	db *gorm.DB
}

func NewDeviceRepository(db *gorm.DB) *DeviceRepository {
	return &DeviceRepository{db: db}
}

// UpsertRegistration creates the device or refreshes its identity fields and
// credential digest. Location and lock state are never touched here.
func (r *DeviceRepository) UpsertRegistration(ctx context.Context, device *model.Device) error {
	if device.LockState == "" {
		device.LockState = model.LockStateUnlocked
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "device_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"username", "os", "model", "token_hash", "online", "last_seen", "updated_at",
		}),
	}).Create(device).Error
}

// FindByID finds a device by its identifier
func (r *DeviceRepository) FindByID(ctx context.Context, deviceID string) (*model.Device, error) {
	var device model.Device
	err := r.db.WithContext(ctx).Where("device_id = ?", deviceID).First(&device).Error
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// List returns every device, most recently updated first
func (r *DeviceRepository) List(ctx context.Context) ([]model.Device, error) {
	var devices []model.Device
	err := r.db.WithContext(ctx).Order("updated_at DESC").Find(&devices).Error
	return devices, err
}

// RecordHeartbeat marks the device seen at now and merges the observed
// location fields, leaving absent fields untouched
func (r *DeviceRepository) RecordHeartbeat(ctx context.Context, deviceID string, now time.Time, observed *model.Location) (*model.Device, error) {
	updates := map[string]interface{}{
		"online":    true,
		"last_seen": now,
	}
	if observed != nil {
		for col, v := range observed.Columns() {
			updates[col] = v
		}
	}
	return r.update(ctx, deviceID, updates)
}

// MergeLocation writes only the location fields present in observed
func (r *DeviceRepository) MergeLocation(ctx context.Context, deviceID string, observed model.Location) (*model.Device, error) {
	return r.update(ctx, deviceID, observed.Columns())
}

// SetLockState persists the intended lock state
func (r *DeviceRepository) SetLockState(ctx context.Context, deviceID string, state model.LockState) error {
	res := r.db.WithContext(ctx).Model(&model.Device{}).
		Where("device_id = ?", deviceID).
		Update("lock_state", state)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TransitionOnline flips the cached online flag only if it still holds the
// opposite value and last_seen still agrees with the new state at cutoff.
// It reports whether the row changed, so concurrent sweeps and heartbeats
// never produce a wrong or duplicate transition.
func (r *DeviceRepository) TransitionOnline(ctx context.Context, deviceID string, online bool, cutoff time.Time) (bool, error) {
	q := r.db.WithContext(ctx).Model(&model.Device{}).
		Where("device_id = ? AND online = ?", deviceID, !online)
	if online {
		q = q.Where("last_seen >= ?", cutoff)
	} else {
		q = q.Where("(last_seen IS NULL OR last_seen < ?)", cutoff)
	}

	res := q.Update("online", online)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *DeviceRepository) update(ctx context.Context, deviceID string, updates map[string]interface{}) (*model.Device, error) {
	if len(updates) > 0 {
		res := r.db.WithContext(ctx).Model(&model.Device{}).
			Where("device_id = ?", deviceID).
			Updates(updates)
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 0 {
			return nil, gorm.ErrRecordNotFound
		}
	}
	return r.FindByID(ctx, deviceID)
}
