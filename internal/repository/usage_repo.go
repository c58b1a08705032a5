package repository

import (
	"context"
	"time"

	"github.com/quocanhngo/managex/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UsageRepository handles software usage records and daily summaries
type UsageRepository struct {
	db *gorm.DB
}

func NewUsageRepository(db *gorm.DB) *UsageRepository {
	return &UsageRepository{db: db}
}

// Touch upserts the (device, software, date) record: first_seen is written on
// insert only, last_seen on every observation
func (r *UsageRepository) Touch(ctx context.Context, deviceID, softwareName, date string, now time.Time) error {
	usage := model.SoftwareUsage{
		DeviceID:     deviceID,
		SoftwareName: softwareName,
		Date:         date,
		FirstSeen:    now,
		LastSeen:     now,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "software_name"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_seen", "updated_at"}),
	}).Create(&usage).Error
}

// CountForDay counts distinct usage records of a device on a day
func (r *UsageRepository) CountForDay(ctx context.Context, deviceID, date string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.SoftwareUsage{}).
		Where("device_id = ? AND date = ?", deviceID, date).
		Count(&count).Error
	return count, err
}

// UpsertSummary stores the recomputed software count for a device/day
func (r *UsageRepository) UpsertSummary(ctx context.Context, deviceID, date string, count int64) error {
	summary := model.DailySummary{
		DeviceID:      deviceID,
		Date:          date,
		SoftwareCount: count,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "device_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{"software_count", "updated_at"}),
	}).Create(&summary).Error
}

// FindSummary returns the daily summary, or gorm.ErrRecordNotFound
func (r *UsageRepository) FindSummary(ctx context.Context, deviceID, date string) (*model.DailySummary, error) {
	var summary model.DailySummary
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND date = ?", deviceID, date).
		First(&summary).Error
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// ListByActivity lists a day's usage, most active then most recent first
func (r *UsageRepository) ListByActivity(ctx context.Context, deviceID, date string) ([]model.SoftwareUsage, error) {
	return r.list(ctx, deviceID, date, "total_minutes DESC, last_seen DESC")
}

// ListByName lists a day's usage sorted by software name
func (r *UsageRepository) ListByName(ctx context.Context, deviceID, date string) ([]model.SoftwareUsage, error) {
	return r.list(ctx, deviceID, date, "software_name ASC")
}

func (r *UsageRepository) list(ctx context.Context, deviceID, date, order string) ([]model.SoftwareUsage, error) {
	usage := []model.SoftwareUsage{}
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND date = ?", deviceID, date).
		Order(order).
		Find(&usage).Error
	return usage, err
}
