package ws

import (
	"testing"

	"github.com/quocanhngo/managex/internal/fanout"
	"github.com/quocanhngo/managex/pkg/logger"
	"github.com/stretchr/testify/assert"
)

func TestSendIsNonBlocking(t *testing.T) {
	broker := fanout.NewLocal(logger.Nop())
	c := NewClient(nil, broker, fanout.AdminsChannel, logger.Nop())

	for i := 0; i < sendBuffer; i++ {
		assert.True(t, c.Send([]byte(`{}`)))
	}
	assert.False(t, c.Send([]byte(`{}`)), "full buffer drops")
}

func TestClosedClientRejectsAndLeavesChannel(t *testing.T) {
	broker := fanout.NewLocal(logger.Nop())
	c := NewClient(nil, broker, fanout.DeviceChannel("D1"), logger.Nop())

	broker.Subscribe(c.Channel(), c)
	assert.Equal(t, 1, broker.Count(c.Channel()))

	c.Close()
	c.Close()

	assert.False(t, c.Send([]byte(`{}`)))
	assert.Zero(t, broker.Count(c.Channel()))
}
