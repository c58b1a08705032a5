package fanout

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// relayPair is two instances sharing one bus: events published on one must
// reach subscribers of the other
type relayPair struct {
	publisher  Broker
	subscriber Broker
}

func assertCrossInstanceDelivery(t *testing.T, pair relayPair) {
	t.Helper()

	device := &recorder{}
	other := &recorder{}
	pair.subscriber.Subscribe(DeviceChannel("D1"), device)
	pair.subscriber.Subscribe(DeviceChannel("D2"), other)

	event := &model.WSEvent{
		Type:    model.WSEventCommand,
		Payload: model.CommandEvent{Command: model.CommandLock, Message: "locked"},
	}

	// The bus subscription is asynchronous, so publish until the first delivery.
	require.Eventually(t, func() bool {
		pair.publisher.Publish(context.Background(), DeviceChannel("D1"), event)
		device.mu.Lock()
		defer device.mu.Unlock()
		return len(device.messages) > 0
	}, 5*time.Second, 50*time.Millisecond)

	got := device.events(t)[0]
	assert.Equal(t, model.WSEventCommand, got.Type)
	payload, ok := got.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "LOCK", payload["command"])
	assert.Empty(t, other.events(t))
}

func TestRedisRelayRoundTrip(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })
	require.NoError(t, rdb.Ping(context.Background()).Err())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	a := NewRedisRelay(rdb, logger.Nop())
	b := NewRedisRelay(rdb, logger.Nop())
	go a.Run(ctx)
	go b.Run(ctx)

	assertCrossInstanceDelivery(t, relayPair{publisher: a, subscriber: b})
}

func TestNATSRelayRoundTrip(t *testing.T) {
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("NATS_URL not set")
	}

	ncA, err := ConnectNATS(url, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(ncA.Close)
	ncB, err := ConnectNATS(url, logger.Nop())
	require.NoError(t, err)
	t.Cleanup(ncB.Close)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	a := NewNATSRelay(ncA, logger.Nop())
	b := NewNATSRelay(ncB, logger.Nop())
	go a.Run(ctx)
	go b.Run(ctx)

	assertCrossInstanceDelivery(t, relayPair{publisher: a, subscriber: b})
}
