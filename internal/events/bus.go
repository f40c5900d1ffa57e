// Package events delivers PDF job status notifications. The in-process Bus
// serves live subscribers (the SSE endpoint); the Kafka Publisher mirrors
// the same events to a topic for external consumers. Both sinks are derived
// views: the job row in Postgres is the source of truth, and delivery is
// fire-and-forget so a slow consumer can never block a queue worker.
package events

import (
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/observability"
)

// subscriberBuffer is the per-subscription channel capacity. A subscriber
// that falls this far behind starts losing events.
const subscriberBuffer = 16

// Subscription receives events for one job.
type Subscription struct {
	// C carries the job's status events.
	C <-chan domain.JobStatusEvent

	cancel func()
}

// Close detaches the subscription from the bus and closes C.
func (s *Subscription) Close() {
	s.cancel()
}

// Bus fans job status events out to per-job subscribers.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uuid.UUID]map[int]chan domain.JobStatusEvent
	nextID  int
	closed  bool
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(metrics *observability.Metrics, logger zerolog.Logger) *Bus {
	return &Bus{
		subs:    make(map[uuid.UUID]map[int]chan domain.JobStatusEvent),
		metrics: metrics,
		logger:  logger.With().Str("component", "event_bus").Logger(),
	}
}

// Subscribe registers for events about one job. Callers must Close the
// subscription when done.
func (b *Bus) Subscribe(jobID uuid.UUID) *Subscription {
	ch := make(chan domain.JobStatusEvent, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return &Subscription{C: ch, cancel: func() {}}
	}

	id := b.nextID
	b.nextID++
	if b.subs[jobID] == nil {
		b.subs[jobID] = make(map[int]chan domain.JobStatusEvent)
	}
	b.subs[jobID][id] = ch

	return &Subscription{
		C: ch,
		cancel: func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[jobID]; ok {
				if ch, ok := subs[id]; ok {
					delete(subs, id)
					close(ch)
				}
				if len(subs) == 0 {
					delete(b.subs, jobID)
				}
			}
		},
	}
}

// Publish delivers the event to every subscriber of its job without
// blocking. Events to subscribers with full buffers are dropped.
func (b *Bus) Publish(event domain.JobStatusEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	subs := b.subs[event.JobID]
	if len(subs) == 0 {
		return
	}

	for _, ch := range subs {
		select {
		case ch <- event:
			b.metrics.EventsPublished.WithLabelValues("bus").Inc()
		default:
			b.metrics.EventsDropped.Inc()
			b.logger.Warn().
				Str("job_id", event.JobID.String()).
				Str("event_type", event.EventType).
				Msg("dropping event for slow subscriber")
		}
	}
}

// Close shuts the bus down and closes every subscription channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for jobID, subs := range b.subs {
		for id, ch := range subs {
			delete(subs, id)
			close(ch)
		}
		delete(b.subs, jobID)
	}
}
