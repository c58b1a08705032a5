package model

// ========== Admin Auth DTOs ==========

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=6"`
}

type LoginResponse struct {
	Token string        `json:"token"`
	Admin AdminResponse `json:"admin"`
}

// ========== Device (agent) DTOs ==========

type RegisterDeviceRequest struct {
	DeviceID string `json:"deviceId" binding:"required,max=191"`
	Username string `json:"username" binding:"max=255"`
	OS       string `json:"os" binding:"max=255"`
	Model    string `json:"model" binding:"max=255"`
}

type RegisterDeviceResponse struct {
	DeviceToken string    `json:"deviceToken"`
	Device      DeviceRef `json:"device"`
}

type DeviceRef struct {
	DeviceID string `json:"deviceId"`
}

// DeviceAuthRequest carries the device identity in agent request bodies
type DeviceAuthRequest struct {
	DeviceID string `json:"deviceId"`
}

// LocationRequest uses pointers so missing or non-numeric coordinates are rejected
type LocationRequest struct {
	DeviceID       string   `json:"deviceId"`
	Lat            *float64 `json:"lat" binding:"required"`
	Lng            *float64 `json:"lng" binding:"required"`
	AccuracyMeters *float64 `json:"accuracyMeters"`
}

type SnapshotRequest struct {
	DeviceID  string   `json:"deviceId"`
	Processes []string `json:"processes" binding:"required"`
}

type SnapshotResponse struct {
	OK            bool  `json:"ok"`
	SoftwareCount int64 `json:"softwareCount"`
}

// ========== Admin device DTOs ==========

type CommandRequest struct {
	Command string `json:"command" binding:"required"`
}

type DeviceListResponse struct {
	Devices []DeviceResponse `json:"devices"`
}

type DeviceDetailResponse struct {
	Device  DeviceResponse  `json:"device"`
	Today   string          `json:"today"`
	Summary DailySummary    `json:"summary"`
	Usage   []SoftwareUsage `json:"usage"`
}

type SoftwareTodayResponse struct {
	DeviceID string          `json:"deviceId"`
	Date     string          `json:"date"`
	Usage    []SoftwareUsage `json:"usage"`
}

// ========== Common ==========

type OKResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}
