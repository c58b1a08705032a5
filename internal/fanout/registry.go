package fanout

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/quocanhngo/managex/internal/model"
	"github.com/rs/zerolog"
)

// Registry holds the subscribers connected to this process. It is safe for
// concurrent subscribe, unsubscribe and delivery.
type Registry struct {
	mu   sync.RWMutex
	subs map[Channel]map[Subscriber]struct{}
	log  zerolog.Logger
}

// NewRegistry creates an empty subscriber registry
func NewRegistry(log zerolog.Logger) *Registry {
	return &Registry{
		subs: make(map[Channel]map[Subscriber]struct{}),
		log:  log,
	}
}

// Subscribe adds sub to ch
func (r *Registry) Subscribe(ch Channel, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[ch]
	if !ok {
		set = make(map[Subscriber]struct{})
		r.subs[ch] = set
	}
	set[sub] = struct{}{}
	r.log.Debug().Str("channel", string(ch)).Int("subscribers", len(set)).Msg("subscribed")
}

// Unsubscribe removes sub from ch. Removing an unknown subscriber is a no-op.
func (r *Registry) Unsubscribe(ch Channel, sub Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.subs[ch]
	if !ok {
		return
	}
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subs, ch)
	}
	r.log.Debug().Str("channel", string(ch)).Msg("unsubscribed")
}

// Count returns the number of local subscribers on ch
func (r *Registry) Count(ch Channel) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs[ch])
}

// snapshot copies the current subscriber set of ch
func (r *Registry) snapshot(ch Channel) []Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.subs[ch]
	out := make([]Subscriber, 0, len(set))
	for sub := range set {
		out = append(out, sub)
	}
	return out
}

// Deliver sends data to every subscriber of ch at call time and returns how
// many accepted it. Sends happen outside the lock.
func (r *Registry) Deliver(ch Channel, data []byte) int {
	delivered := 0
	for _, sub := range r.snapshot(ch) {
		if sub.Send(data) {
			delivered++
			continue
		}
		r.log.Warn().Str("channel", string(ch)).Msg("subscriber buffer full, event dropped")
	}
	return delivered
}

// Local is a single-process Broker
type Local struct {
	*Registry
}

// NewLocal creates a Broker that delivers only to subscribers of this process
func NewLocal(log zerolog.Logger) *Local {
	return &Local{Registry: NewRegistry(log)}
}

// Publish delivers event to the local subscribers of ch
func (l *Local) Publish(_ context.Context, ch Channel, event *model.WSEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		l.log.Error().Err(err).Str("channel", string(ch)).Msg("failed to marshal event")
		return
	}
	l.Deliver(ch, data)
}
