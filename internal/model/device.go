package model

import (
	"time"
)

// LockState is the administrator-intended lock state of a device
type LockState string

const (
	LockStateLocked   LockState = "LOCKED"
	LockStateUnlocked LockState = "UNLOCKED"
)

// LocationMethod tags where a location observation came from
type LocationMethod string

const (
	LocationMethodIP  LocationMethod = "IP"  // server-side IP geolocation
	LocationMethodWIN LocationMethod = "WIN" // device-reported coordinates
)

// Location is the last known location of a device. Every field is optional so
// that observations can be merged column by column.
type Location struct {
	Method         LocationMethod `json:"method,omitempty" gorm:"size:8"`
	IP             *string        `json:"ip,omitempty" gorm:"size:64"`
	City           *string        `json:"city,omitempty" gorm:"size:128"`
	Region         *string        `json:"region,omitempty" gorm:"size:128"`
	Country        *string        `json:"country,omitempty" gorm:"size:64"`
	Lat            *float64       `json:"lat,omitempty"`
	Lng            *float64       `json:"lng,omitempty"`
	AccuracyMeters *float64       `json:"accuracyMeters,omitempty"`
	Timestamp      *time.Time     `json:"timestamp,omitempty"`
}

// IsZero reports whether no location was ever recorded
func (l Location) IsZero() bool {
	return l.Method == ""
}

// Columns returns the loc_* column assignments for the fields present in l
func (l Location) Columns() map[string]interface{} {
	cols := map[string]interface{}{}
	if l.Method != "" {
		cols["loc_method"] = l.Method
	}
	if l.IP != nil {
		cols["loc_ip"] = *l.IP
	}
	if l.City != nil {
		cols["loc_city"] = *l.City
	}
	if l.Region != nil {
		cols["loc_region"] = *l.Region
	}
	if l.Country != nil {
		cols["loc_country"] = *l.Country
	}
	if l.Lat != nil {
		cols["loc_lat"] = *l.Lat
	}
	if l.Lng != nil {
		cols["loc_lng"] = *l.Lng
	}
	if l.AccuracyMeters != nil {
		cols["loc_accuracy_meters"] = *l.AccuracyMeters
	}
	if l.Timestamp != nil {
		cols["loc_timestamp"] = *l.Timestamp
	}
	return cols
}

// Device is a managed endpoint. Online is a cache of the freshness of LastSeen
// and must be recomputed before it is shown to anyone.
type Device struct {
	DeviceID  string     `json:"deviceId" gorm:"primaryKey;size:191"`
	Username  string     `json:"username" gorm:"size:255"`
	OS        string     `json:"os" gorm:"column:os;size:255"`
	Model     string     `json:"model" gorm:"size:255"`
	TokenHash string     `json:"-" gorm:"size:64"`
	Online    bool       `json:"online" gorm:"not null;default:false"`
	LastSeen  *time.Time `json:"lastSeen"`
	// Last known location, flattened into loc_* columns
	LastLocation Location  `json:"-" gorm:"embedded;embeddedPrefix:loc_"`
	LockState    LockState `json:"lockState" gorm:"size:16;not null;default:'UNLOCKED'"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// PresenceStatus is the presence sub-record of a device
type PresenceStatus struct {
	Online   bool       `json:"online"`
	LastSeen *time.Time `json:"lastSeen"`
}

// DeviceResponse is the safe version of Device for API responses
type DeviceResponse struct {
	DeviceID     string         `json:"deviceId"`
	Username     string         `json:"username"`
	OS           string         `json:"os"`
	Model        string         `json:"model"`
	Status       PresenceStatus `json:"status"`
	LastLocation *Location      `json:"lastLocation"`
	LockState    LockState      `json:"lockState"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// Location returns the last location or nil when none was recorded
func (d *Device) Location() *Location {
	if d.LastLocation.IsZero() {
		return nil
	}
	loc := d.LastLocation
	return &loc
}

// ToResponse converts Device to a DeviceResponse, reporting the stored Online flag
func (d *Device) ToResponse() DeviceResponse {
	return DeviceResponse{
		DeviceID:     d.DeviceID,
		Username:     d.Username,
		OS:           d.OS,
		Model:        d.Model,
		Status:       PresenceStatus{Online: d.Online, LastSeen: d.LastSeen},
		LastLocation: d.Location(),
		LockState:    d.LockState,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
	}
}

// ToUpdateEvent builds the admins-channel payload for this device
func (d *Device) ToUpdateEvent() DeviceUpdateEvent {
	return DeviceUpdateEvent{
		DeviceID:     d.DeviceID,
		Online:       d.Online,
		LastSeen:     d.LastSeen,
		LastLocation: d.Location(),
		LockState:    d.LockState,
	}
}
