// Package fanout routes events to named channels: one per device and a shared
// administrators channel. Delivery is best effort and at most once: there is
// no acknowledgment, persistence or replay, and a subscriber that is not
// connected simply misses the event.
package fanout

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/quocanhngo/managex/internal/model"
)

// Channel names a pub/sub destination
type Channel string

// AdminsChannel is shared by every connected administrator
const AdminsChannel Channel = "admins"

const devicePrefix = "device:"

// DeviceChannel returns the channel of a single device
func DeviceChannel(deviceID string) Channel {
	return Channel(devicePrefix + deviceID)
}

// DeviceID returns the device a channel belongs to, if any
func (c Channel) DeviceID() (string, bool) {
	if !strings.HasPrefix(string(c), devicePrefix) {
		return "", false
	}
	return strings.TrimPrefix(string(c), devicePrefix), true
}

// Subscriber receives encoded events. Send must not block; it returns false
// when the event was dropped.
type Subscriber interface {
	Send(data []byte) bool
}

// Broker is the pub/sub abstraction injected into services, the sweeper and
// the websocket handler
type Broker interface {
	Subscribe(ch Channel, sub Subscriber)
	Unsubscribe(ch Channel, sub Subscriber)
	Publish(ctx context.Context, ch Channel, event *model.WSEvent)
}

// Runner is implemented by brokers that need a background receive loop
type Runner interface {
	Run(ctx context.Context)
}

// envelope is the wire format between instances
type envelope struct {
	Channel Channel         `json:"channel"`
	Event   json.RawMessage `json:"event"`
}

func encodeEnvelope(ch Channel, event *model.WSEvent) ([]byte, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope{Channel: ch, Event: data})
}
