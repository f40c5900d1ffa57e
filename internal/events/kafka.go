package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/helixir/paper-discovery-service/internal/config"
	"github.com/helixir/paper-discovery-service/internal/domain"
	"github.com/helixir/paper-discovery-service/internal/observability"
)

// publishTimeout bounds one fire-and-forget write to the brokers.
const publishTimeout = 5 * time.Second

// KafkaPublisher mirrors job status events to a Kafka topic. Publishing is
// best effort: a broker outage is logged, never propagated to the caller.
type KafkaPublisher struct {
	writer  *kafka.Writer
	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewKafkaPublisher creates a publisher for the configured topic.
func NewKafkaPublisher(cfg config.KafkaConfig, metrics *observability.Metrics, logger zerolog.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		BatchTimeout: cfg.BatchTimeout,
		Async:        true,
		RequiredAcks: kafka.RequireOne,
	}

	return &KafkaPublisher{
		writer:  writer,
		metrics: metrics,
		logger:  logger.With().Str("component", "kafka_publisher").Logger(),
	}
}

// Publish writes the event to the topic, keyed by job ID so one job's
// events stay ordered within a partition.
func (p *KafkaPublisher) Publish(event domain.JobStatusEvent) {
	value, err := json.Marshal(event)
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to marshal job status event")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.JobID.String()),
		Value: value,
	})
	if err != nil {
		p.logger.Warn().
			Err(err).
			Str("job_id", event.JobID.String()).
			Str("event_type", event.EventType).
			Msg("failed to publish job status event to kafka")
		return
	}
	p.metrics.EventsPublished.WithLabelValues("kafka").Inc()
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
