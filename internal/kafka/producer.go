package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/snappy-loop/snippets/internal/models"
)

// RunMessage asks a worker to execute a queued run
type RunMessage struct {
	RunID   uuid.UUID `json:"run_id"`
	TraceID string    `json:"trace_id,omitempty"`
}

// Producer wraps a Kafka producer writing to the runs and events topics
type Producer struct {
	writer      *kafka.Writer
	runsTopic   string
	eventsTopic string
}

// NewProducer creates a new Kafka producer
func NewProducer(brokers []string, runsTopic, eventsTopic string) *Producer {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Async:                  false,
	}

	log.Info().
		Strs("brokers", brokers).
		Str("runs_topic", runsTopic).
		Str("events_topic", eventsTopic).
		Msg("Kafka producer initialized")

	return &Producer{
		writer:      writer,
		runsTopic:   runsTopic,
		eventsTopic: eventsTopic,
	}
}

// PublishRun publishes a run message to the runs topic
func (p *Producer) PublishRun(ctx context.Context, runID uuid.UUID, traceID string) error {
	data, err := json.Marshal(RunMessage{RunID: runID, TraceID: traceID})
	if err != nil {
		return fmt.Errorf("failed to marshal run message: %w", err)
	}

	if err := p.write(ctx, p.runsTopic, runID, data); err != nil {
		return fmt.Errorf("failed to write run message to kafka: %w", err)
	}

	log.Info().
		Str("run_id", runID.String()).
		Str("topic", p.runsTopic).
		Msg("Run message published to Kafka")

	return nil
}

// PublishEvent publishes a progress event to the events topic. Events of one run share a
// partition, so consumers see them in order.
func (p *Producer) PublishEvent(ctx context.Context, ev models.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := p.write(ctx, p.eventsTopic, ev.RunID, data); err != nil {
		return fmt.Errorf("failed to write event to kafka: %w", err)
	}

	log.Debug().
		Str("run_id", ev.RunID.String()).
		Str("event", ev.Type).
		Str("topic", p.eventsTopic).
		Msg("Run event published to Kafka")

	return nil
}

func (p *Producer) write(ctx context.Context, topic string, key uuid.UUID, value []byte) error {
	return p.writer.WriteMessages(ctx, kafka.Message{
		Topic: topic,
		Key:   []byte(key.String()),
		Value: value,
	})
}

// Close closes the producer
func (p *Producer) Close() error {
	log.Info().Msg("Closing Kafka producer")
	return p.writer.Close()
}
