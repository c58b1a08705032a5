package model

import "time"

// DateLayout is the calendar-day bucket format (UTC)
const DateLayout = "2006-01-02"

// DayOf returns the UTC calendar-day bucket for t
func DayOf(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// SoftwareUsage records that a program was observed on a device during one day
type SoftwareUsage struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	DeviceID     string    `json:"deviceId" gorm:"size:191;not null;uniqueIndex:idx_usage_device_software_date,priority:1"`
	SoftwareName string    `json:"softwareName" gorm:"size:255;not null;uniqueIndex:idx_usage_device_software_date,priority:2"`
	Date         string    `json:"date" gorm:"size:10;not null;uniqueIndex:idx_usage_device_software_date,priority:3;index"`
	FirstSeen    time.Time `json:"firstSeen"` // set on insert only
	LastSeen     time.Time `json:"lastSeen"`
	TotalMinutes int       `json:"totalMinutes" gorm:"not null;default:0"` // never derived, see DESIGN.md
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// DailySummary caches the number of distinct SoftwareUsage rows for a device/day
type DailySummary struct {
	DeviceID      string    `json:"deviceId" gorm:"primaryKey;size:191"`
	Date          string    `json:"date" gorm:"primaryKey;size:10"`
	SoftwareCount int64     `json:"softwareCount" gorm:"not null;default:0"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
