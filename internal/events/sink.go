package events

import (
	"github.com/helixir/paper-discovery-service/internal/domain"
)

// Sink consumes job status events. Bus and KafkaPublisher both implement it.
type Sink interface {
	Publish(event domain.JobStatusEvent)
}

// MultiSink fans one event out to several sinks.
type MultiSink []Sink

// Publish delivers the event to every sink in order.
func (m MultiSink) Publish(event domain.JobStatusEvent) {
	for _, sink := range m {
		sink.Publish(event)
	}
}
