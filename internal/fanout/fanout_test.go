package fanout

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recorder is a Subscriber that keeps everything it receives
type recorder struct {
	mu       sync.Mutex
	messages [][]byte
	full     bool
}

func (r *recorder) Send(data []byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return false
	}
	r.messages = append(r.messages, data)
	return true
}

func (r *recorder) events(t *testing.T) []model.WSEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]model.WSEvent, 0, len(r.messages))
	for _, m := range r.messages {
		var ev model.WSEvent
		require.NoError(t, json.Unmarshal(m, &ev))
		out = append(out, ev)
	}
	return out
}

func TestDeviceChannel(t *testing.T) {
	ch := DeviceChannel("D1")
	assert.Equal(t, Channel("device:D1"), ch)

	id, ok := ch.DeviceID()
	assert.True(t, ok)
	assert.Equal(t, "D1", id)

	_, ok = AdminsChannel.DeviceID()
	assert.False(t, ok)
}

func TestLocalPublishReachesOnlyAddressedChannel(t *testing.T) {
	broker := NewLocal(logger.Nop())
	admin := &recorder{}
	d1 := &recorder{}
	d2 := &recorder{}

	broker.Subscribe(AdminsChannel, admin)
	broker.Subscribe(DeviceChannel("D1"), d1)
	broker.Subscribe(DeviceChannel("D2"), d2)

	broker.Publish(context.Background(), DeviceChannel("D1"), &model.WSEvent{
		Type:    model.WSEventCommand,
		Payload: model.CommandEvent{Command: model.CommandLock, Message: "locked"},
	})

	require.Len(t, d1.events(t), 1)
	assert.Equal(t, model.WSEventCommand, d1.events(t)[0].Type)
	assert.Empty(t, d2.events(t))
	assert.Empty(t, admin.events(t))
}

func TestPublishWithoutSubscribersIsDropped(t *testing.T) {
	broker := NewLocal(logger.Nop())
	assert.NotPanics(t, func() {
		broker.Publish(context.Background(), DeviceChannel("offline"), &model.WSEvent{Type: model.WSEventCommand})
	})
	assert.Zero(t, broker.Count(DeviceChannel("offline")))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	broker := NewLocal(logger.Nop())
	sub := &recorder{}

	broker.Subscribe(AdminsChannel, sub)
	broker.Publish(context.Background(), AdminsChannel, &model.WSEvent{Type: model.WSEventDeviceUpdate})
	broker.Unsubscribe(AdminsChannel, sub)
	broker.Unsubscribe(AdminsChannel, sub)
	broker.Publish(context.Background(), AdminsChannel, &model.WSEvent{Type: model.WSEventDeviceUpdate})

	assert.Len(t, sub.events(t), 1)
	assert.Zero(t, broker.Count(AdminsChannel))
}

func TestDeliverSkipsFullSubscribers(t *testing.T) {
	reg := NewRegistry(logger.Nop())
	ok := &recorder{}
	full := &recorder{full: true}

	reg.Subscribe(AdminsChannel, ok)
	reg.Subscribe(AdminsChannel, full)

	assert.Equal(t, 1, reg.Deliver(AdminsChannel, []byte(`{"type":"device-update"}`)))
}

func TestRegistryConcurrentAccess(t *testing.T) {
	reg := NewRegistry(logger.Nop())
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(2)
		sub := &recorder{}
		go func() {
			defer wg.Done()
			reg.Subscribe(AdminsChannel, sub)
			reg.Unsubscribe(AdminsChannel, sub)
		}()
		go func() {
			defer wg.Done()
			reg.Deliver(AdminsChannel, []byte(`{}`))
		}()
	}
	wg.Wait()

	assert.Zero(t, reg.Count(AdminsChannel))
}

func TestRelayDispatchDeliversEnvelope(t *testing.T) {
	relay := NewRedisRelay(nil, logger.Nop())
	sub := &recorder{}
	relay.Subscribe(DeviceChannel("D1"), sub)

	data, err := encodeEnvelope(DeviceChannel("D1"), &model.WSEvent{
		Type:    model.WSEventCommand,
		Payload: model.CommandEvent{Command: model.CommandUnlock},
	})
	require.NoError(t, err)

	relay.dispatch(data)
	relay.dispatch([]byte("not json"))

	events := sub.events(t)
	require.Len(t, events, 1)
	payload, ok := events[0].Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "UNLOCK", payload["command"])
}
