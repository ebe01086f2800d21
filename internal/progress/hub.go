// Package progress fans run events out to live subscribers.
package progress

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/snippets/internal/models"
)

const subscriberBuffer = 32

// Hub is an in-process publish/subscribe point for run events. Publishing never blocks: a
// subscriber whose buffer is full misses the event.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan models.Event]struct{}
}

// NewHub creates an empty Hub
func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[chan models.Event]struct{})}
}

// Subscribe returns a channel of events for runID and a function that ends the subscription.
// The channel is closed after a final event or on cancel.
func (h *Hub) Subscribe(runID uuid.UUID) (<-chan models.Event, func()) {
	ch := make(chan models.Event, subscriberBuffer)
	h.mu.Lock()
	set, ok := h.subs[runID]
	if !ok {
		set = make(map[chan models.Event]struct{})
		h.subs[runID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() { h.remove(runID, ch) })
	}
}

func (h *Hub) remove(runID uuid.UUID, ch chan models.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.subs[runID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subs, runID)
	}
}

// PublishEvent delivers ev to the run's subscribers.
func (h *Hub) PublishEvent(ctx context.Context, ev models.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[ev.RunID]
	for ch := range set {
		select {
		case ch <- ev:
		default:
			log.Warn().
				Str("run_id", ev.RunID.String()).
				Str("event", ev.Type).
				Msg("Progress subscriber too slow, event dropped")
		}
	}
	if ev.Final() {
		for ch := range set {
			close(ch)
		}
		delete(h.subs, ev.RunID)
	}
	return nil
}

// HandleEvent feeds events consumed from Kafka into the hub.
func (h *Hub) HandleEvent(ctx context.Context, ev *models.Event) error {
	return h.PublishEvent(ctx, *ev)
}

// Subscribers reports how many subscriptions are open for runID.
func (h *Hub) Subscribers(runID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[runID])
}
