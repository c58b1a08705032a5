package model

import "time"

// ========== WebSocket Event DTOs ==========

type WSEvent struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// WebSocket event types
const (
	WSEventDeviceUpdate = "device-update"
	WSEventCommand      = "command"
)

// Command is an administrator directive sent to a device
type Command string

const (
	CommandLock   Command = "LOCK"
	CommandUnlock Command = "UNLOCK"
)

// Valid reports whether c is a known command
func (c Command) Valid() bool {
	return c == CommandLock || c == CommandUnlock
}

// LockState returns the state an endpoint should end up in after c
func (c Command) LockState() LockState {
	if c == CommandLock {
		return LockStateLocked
	}
	return LockStateUnlocked
}

// DeviceUpdateEvent is pushed to the admins channel on heartbeats, location
// reports and presence transitions
type DeviceUpdateEvent struct {
	DeviceID     string     `json:"deviceId"`
	Online       bool       `json:"online"`
	LastSeen     *time.Time `json:"lastSeen"`
	LastLocation *Location  `json:"lastLocation"`
	LockState    LockState  `json:"lockState"`
}

// CommandEvent is pushed to a single device's channel
type CommandEvent struct {
	Command Command `json:"command"`
	Message string  `json:"message"`
}
