// Package ws connects websocket peers to fanout channels
package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/quocanhngo/managex/internal/fanout"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/rs/zerolog"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	// Events buffered per connection before new ones are dropped
	sendBuffer = 64
)

// MessageHandler is a callback for events a peer sends up the socket
type MessageHandler func(client *Client, event model.WSEvent)

// Client is one websocket connection subscribed to a single channel. It
// implements fanout.Subscriber.
type Client struct {
	conn    *websocket.Conn
	broker  fanout.Broker
	channel fanout.Channel
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	log     zerolog.Logger
}

// NewClient creates a client for channel. Call Start to subscribe and pump.
func NewClient(conn *websocket.Conn, broker fanout.Broker, channel fanout.Channel, log zerolog.Logger) *Client {
	return &Client{
		conn:    conn,
		broker:  broker,
		channel: channel,
		send:    make(chan []byte, sendBuffer),
		done:    make(chan struct{}),
		log:     log.With().Str("channel", string(channel)).Logger(),
	}
}

// Channel returns the channel the client listens on
func (c *Client) Channel() fanout.Channel {
	return c.channel
}

// Send queues data without blocking. It returns false when the buffer is
// full or the connection is gone.
func (c *Client) Send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// Start subscribes the client and runs both pumps in their own goroutines
func (c *Client) Start(handler MessageHandler) {
	c.broker.Subscribe(c.channel, c)
	c.log.Debug().Msg("websocket connected")

	go c.writePump()
	go c.readPump(handler)
}

// Close unsubscribes and stops the pumps. Safe to call more than once.
func (c *Client) Close() {
	c.once.Do(func() {
		c.broker.Unsubscribe(c.channel, c)
		close(c.done)
		if c.conn != nil {
			_ = c.conn.Close()
		}
		c.log.Debug().Msg("websocket disconnected")
	})
}

func (c *Client) readPump(handler MessageHandler) {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn().Err(err).Msg("websocket read error")
			}
			return
		}

		var event model.WSEvent
		if err := json.Unmarshal(message, &event); err != nil {
			c.log.Debug().Err(err).Msg("ignoring malformed websocket message")
			continue
		}

		if handler != nil {
			handler(c, event)
		}
	}
}

// writePump writes one frame per event so every frame is a complete JSON document
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
