package events

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/observability"
)

// Prometheus collectors register globally, so the package shares one set.
var testMetrics = observability.NewMetrics("events_bus_test")

func newTestBus() *Bus {
	return NewBus(testMetrics, zerolog.Nop())
}

func jobEvent(jobID uuid.UUID, eventType string) domain.JobStatusEvent {
	return domain.JobStatusEvent{
		EventType: eventType,
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
	}
}

func TestBusDeliversToJobSubscribers(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	jobID := uuid.New()
	sub := bus.Subscribe(jobID)
	defer sub.Close()

	bus.Publish(jobEvent(jobID, domain.EventTypeJobStarted))

	select {
	case event := <-sub.C:
		assert.Equal(t, domain.EventTypeJobStarted, event.EventType)
		assert.Equal(t, jobID, event.JobID)
	case <-time.After(time.Second):
		t.Fatal("expected event was not delivered")
	}
}

func TestBusIsolatesJobs(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	sub := bus.Subscribe(uuid.New())
	defer sub.Close()

	bus.Publish(jobEvent(uuid.New(), domain.EventTypeJobStarted))

	select {
	case event := <-sub.C:
		t.Fatalf("received event for foreign job: %v", event)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusMultipleSubscribersSameJob(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	jobID := uuid.New()
	first := bus.Subscribe(jobID)
	defer first.Close()
	second := bus.Subscribe(jobID)
	defer second.Close()

	bus.Publish(jobEvent(jobID, domain.EventTypeJobCompleted))

	for _, sub := range []*Subscription{first, second} {
		select {
		case event := <-sub.C:
			assert.Equal(t, domain.EventTypeJobCompleted, event.EventType)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusDropsWhenSubscriberIsFull(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	jobID := uuid.New()
	sub := bus.Subscribe(jobID)
	defer sub.Close()

	// Publish past the buffer without reading; the overflow must be
	// dropped rather than blocking.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < subscriberBuffer+10; i++ {
			bus.Publish(jobEvent(jobID, domain.EventTypeJobProgress))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.Len(t, sub.C, subscriberBuffer)
}

func TestBusSubscriptionClose(t *testing.T) {
	bus := newTestBus()
	defer bus.Close()

	jobID := uuid.New()
	sub := bus.Subscribe(jobID)
	sub.Close()

	// Closing twice is safe.
	sub.Close()

	_, open := <-sub.C
	assert.False(t, open)

	// Publishing after unsubscribe must not panic.
	bus.Publish(jobEvent(jobID, domain.EventTypeJobProgress))
}

func TestBusCloseClosesSubscriptions(t *testing.T) {
	bus := newTestBus()
	sub := bus.Subscribe(uuid.New())

	bus.Close()

	_, open := <-sub.C
	require.False(t, open)

	// Subscribing after close yields a closed channel.
	late := bus.Subscribe(uuid.New())
	_, open = <-late.C
	assert.False(t, open)
}
