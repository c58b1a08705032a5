package presence

import (
	"context"
	"time"

	"github.com/quocanhngo/managex/internal/fanout"
	"github.com/quocanhngo/managex/internal/model"
	"github.com/rs/zerolog"
)

// DefaultSweepInterval is how often the sweeper re-derives presence
const DefaultSweepInterval = 30 * time.Second

// Store is the part of the device repository the sweeper needs
type Store interface {
	List(ctx context.Context) ([]model.Device, error)
	TransitionOnline(ctx context.Context, deviceID string, online bool, cutoff time.Time) (bool, error)
}

// SweepResult summarizes one pass
type SweepResult struct {
	Checked     int
	Transitions int
	Failures    int
}

// Sweeper periodically persists presence transitions and announces them on
// the admins channel
type Sweeper struct {
	store     Store
	broker    fanout.Broker
	evaluator *Evaluator
	interval  time.Duration
	log       zerolog.Logger
}

func NewSweeper(store Store, broker fanout.Broker, evaluator *Evaluator, interval time.Duration, log zerolog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{
		store:     store,
		broker:    broker,
		evaluator: evaluator,
		interval:  interval,
		log:       log,
	}
}

// Run sweeps on every tick until ctx is done. A slow sweep delays the next
// tick instead of overlapping it.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info().Dur("interval", s.interval).Dur("window", s.evaluator.Window()).Msg("presence sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("presence sweeper stopped")
			return
		case <-ticker.C:
			res := s.SweepOnce(ctx)
			if res.Transitions > 0 || res.Failures > 0 {
				s.log.Info().
					Int("checked", res.Checked).
					Int("transitions", res.Transitions).
					Int("failures", res.Failures).
					Msg("presence sweep")
			}
		}
	}
}

// SweepOnce checks every device once
func (s *Sweeper) SweepOnce(ctx context.Context) SweepResult {
	var res SweepResult

	devices, err := s.store.List(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to list devices")
		res.Failures++
		return res
	}

	now := s.evaluator.Now()
	cutoff := Cutoff(now, s.evaluator.Window())

	for i := range devices {
		d := &devices[i]
		res.Checked++

		online := IsFresh(d.LastSeen, now, s.evaluator.Window())
		if online == d.Online {
			continue
		}

		changed, err := s.store.TransitionOnline(ctx, d.DeviceID, online, cutoff)
		if err != nil {
			s.log.Error().Err(err).Str("device_id", d.DeviceID).Msg("failed to persist presence transition")
			res.Failures++
			continue
		}
		if !changed {
			// a concurrent heartbeat or sweep got there first
			continue
		}

		res.Transitions++
		d.Online = online
		ev := d.ToUpdateEvent()
		s.broker.Publish(ctx, fanout.AdminsChannel, &model.WSEvent{
			Type:    model.WSEventDeviceUpdate,
			Payload: ev,
		})
	}

	return res
}
