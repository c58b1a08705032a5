package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/quocanhngo/managex/internal/fanout"
	"github.com/quocanhngo/managex/internal/middleware"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/quocanhngo/managex/internal/ws"
	"github.com/rs/zerolog"
)

// WSHandler attaches websocket peers to fanout channels. Authentication is
// done by middleware before the upgrade.
type WSHandler struct {
	broker   fanout.Broker
	upgrader websocket.Upgrader
	log      zerolog.Logger
}

// NewWSHandler creates the handler. An empty origins list, or "*", accepts any origin.
func NewWSHandler(broker fanout.Broker, origins []string, log zerolog.Logger) *WSHandler {
	return &WSHandler{
		broker: broker,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(origins),
		},
		log: log,
	}
}

// Admin subscribes an administrator to device updates
// Client connects with: ws://host/ws/admin?token=<jwt>
func (h *WSHandler) Admin(c *gin.Context) {
	h.serve(c, fanout.AdminsChannel, nil)
}

// Device subscribes an agent to its own command channel
// Client connects with: ws://host/ws/device?deviceId=<id>&token=<device token>
func (h *WSHandler) Device(c *gin.Context) {
	deviceID := c.GetString(middleware.KeyDeviceID)
	h.serve(c, fanout.DeviceChannel(deviceID), func(client *ws.Client, event model.WSEvent) {
		h.log.Debug().
			Str("device_id", deviceID).
			Str("type", event.Type).
			Msg("device message ignored")
	})
}

func (h *WSHandler) serve(c *gin.Context, channel fanout.Channel, handler ws.MessageHandler) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn().Err(err).Str("channel", string(channel)).Msg("websocket upgrade failed")
		return
	}

	ws.NewClient(conn, h.broker, channel, h.log).Start(handler)
}

func originChecker(origins []string) func(r *http.Request) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		o = strings.TrimSpace(o)
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			allowed[o] = struct{}{}
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		// agents are not browsers and send no Origin
		if origin == "" || len(allowed) == 0 {
			return true
		}
		_, ok := allowed[origin]
		return ok
	}
}
