package fanout

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/rs/zerolog"
)

const natsSubject = "managex.fanout"

// NATSRelay is the NATS core equivalent of RedisRelay. Core NATS has no
// persistence, which matches the at-most-once contract.
type NATSRelay struct {
	*Registry
	nc *nats.Conn
}

// NewNATSRelay creates a NATS-backed Broker
func NewNATSRelay(nc *nats.Conn, log zerolog.Logger) *NATSRelay {
	return &NATSRelay{
		Registry: NewRegistry(log),
		nc:       nc,
	}
}

// ConnectNATS dials a NATS server with logging connection handlers
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, error) {
	return nats.Connect(url,
		nats.Name("managex-api"),
		nats.MaxReconnects(-1),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Error().Err(err).Msg("nats error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
}

// Publish sends the event to all instances. Errors are logged, never returned.
func (n *NATSRelay) Publish(_ context.Context, ch Channel, event *model.WSEvent) {
	data, err := encodeEnvelope(ch, event)
	if err != nil {
		n.log.Error().Err(err).Str("channel", string(ch)).Msg("failed to marshal event")
		return
	}

	if err := n.nc.Publish(natsSubject, data); err != nil {
		n.log.Error().Err(err).Str("channel", string(ch)).Msg("failed to publish to nats")
	}
}

// Run subscribes to the fanout subject until ctx is done
func (n *NATSRelay) Run(ctx context.Context) {
	sub, err := n.nc.Subscribe(natsSubject, func(msg *nats.Msg) {
		var env envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			n.log.Warn().Err(err).Msg("discarding malformed fanout envelope")
			return
		}
		n.Deliver(env.Channel, env.Event)
	})
	if err != nil {
		n.log.Error().Err(err).Msg("failed to subscribe to nats")
		return
	}
	n.log.Info().Str("subject", natsSubject).Msg("nats relay started")

	<-ctx.Done()
	if err := sub.Unsubscribe(); err != nil {
		n.log.Warn().Err(err).Msg("nats unsubscribe failed")
	}
}
