// Package presence derives device online/offline state from heartbeat
// timestamps and broadcasts transitions.
package presence

import (
	"time"

	"github.com/quocanhngo/managex/internal/model"
)

// DefaultWindow is the maximum heartbeat age for a device to count as online
const DefaultWindow = 2 * time.Minute

// IsFresh is the single definition of "online": lastSeen exists and is no
// older than window at now.
func IsFresh(lastSeen *time.Time, now time.Time, window time.Duration) bool {
	if lastSeen == nil {
		return false
	}
	return now.Sub(*lastSeen) <= window
}

// Cutoff returns the oldest lastSeen that is still fresh at now
func Cutoff(now time.Time, window time.Duration) time.Time {
	return now.Add(-window)
}

// Evaluator recomputes the cached online flag of devices
type Evaluator struct {
	window time.Duration
	now    func() time.Time
}

// NewEvaluator creates an evaluator; a non-positive window uses DefaultWindow
func NewEvaluator(window time.Duration, now func() time.Time) *Evaluator {
	if window <= 0 {
		window = DefaultWindow
	}
	if now == nil {
		now = time.Now
	}
	return &Evaluator{window: window, now: now}
}

// Window returns the freshness window
func (e *Evaluator) Window() time.Duration { return e.window }

// Now returns the evaluator's current time in UTC
func (e *Evaluator) Now() time.Time { return e.now().UTC() }

// Online derives the presence of d at the current time
func (e *Evaluator) Online(d *model.Device) bool {
	return IsFresh(d.LastSeen, e.Now(), e.window)
}

// Apply overrides the stored Online flag of every device with a fresh
// derivation. The devices are modified in place.
func (e *Evaluator) Apply(devices []model.Device) []model.Device {
	now := e.Now()
	for i := range devices {
		devices[i].Online = IsFresh(devices[i].LastSeen, now, e.window)
	}
	return devices
}
