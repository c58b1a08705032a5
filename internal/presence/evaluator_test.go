package presence

import (
	"testing"
	"time"

	"github.com/quocanhngo/managex/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestIsFresh(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	at := func(ago time.Duration) *time.Time {
		ts := now.Add(-ago)
		return &ts
	}

	tests := []struct {
		name     string
		lastSeen *time.Time
		want     bool
	}{
		{"never seen", nil, false},
		{"just now", at(0), true},
		{"inside window", at(time.Minute), true},
		{"exactly at window", at(DefaultWindow), true},
		{"one nanosecond past window", at(DefaultWindow + time.Nanosecond), false},
		{"long gone", at(time.Hour), false},
		{"clock skew into the future", at(-time.Minute), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsFresh(tt.lastSeen, now, DefaultWindow))
		})
	}
}

func TestEvaluatorApplyOverridesStoredFlag(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	stale := now.Add(-10 * time.Minute)
	recent := now.Add(-30 * time.Second)

	devices := []model.Device{
		{DeviceID: "stale-but-flagged", Online: true, LastSeen: &stale},
		{DeviceID: "recent-but-unflagged", Online: false, LastSeen: &recent},
		{DeviceID: "never-seen", Online: true},
	}

	e := NewEvaluator(0, func() time.Time { return now })
	e.Apply(devices)

	assert.False(t, devices[0].Online)
	assert.True(t, devices[1].Online)
	assert.False(t, devices[2].Online)
	assert.Equal(t, DefaultWindow, e.Window())
}
