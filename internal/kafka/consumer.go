package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"github.com/snappy-loop/snippets/internal/models"
)

// RunHandler executes run messages
type RunHandler interface {
	HandleRun(ctx context.Context, msg *RunMessage) error
}

// EventHandler receives run progress events
type EventHandler interface {
	HandleEvent(ctx context.Context, ev *models.Event) error
}

// maxHandleAttempts bounds retries of one message before it is skipped so a poison message
// cannot block its partition.
const maxHandleAttempts = 10

// Fetch errors back off from fetchRetryInitial up to fetchRetryMax until a fetch succeeds.
const (
	fetchRetryInitial = 500 * time.Millisecond
	fetchRetryMax     = 30 * time.Second
)

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Consumer wraps a Kafka consumer
type Consumer struct {
	reader       messageReader
	handle       func(ctx context.Context, value []byte) error
	fetchBackoff backoff.BackOff
}

// NewRunConsumer creates a consumer for the runs topic. A new group starts from the earliest
// offset so runs queued before the first worker started are not lost.
func NewRunConsumer(brokers []string, topic, groupID string, h RunHandler) *Consumer {
	return newConsumer(brokers, topic, groupID, kafka.FirstOffset, func(ctx context.Context, value []byte) error {
		var msg RunMessage
		if err := json.Unmarshal(value, &msg); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to unmarshal run message: %w", err))
		}
		return h.HandleRun(ctx, &msg)
	})
}

// NewEventConsumer creates a consumer for the events topic. With fromLatest set a new group only
// sees events published after it joined.
func NewEventConsumer(brokers []string, topic, groupID string, fromLatest bool, h EventHandler) *Consumer {
	start := kafka.FirstOffset
	if fromLatest {
		start = kafka.LastOffset
	}
	return newConsumer(brokers, topic, groupID, start, func(ctx context.Context, value []byte) error {
		var ev models.Event
		if err := json.Unmarshal(value, &ev); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to unmarshal event: %w", err))
		}
		return h.HandleEvent(ctx, &ev)
	})
}

func newConsumer(brokers []string, topic, groupID string, startOffset int64, handle func(context.Context, []byte) error) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       1,
		MaxBytes:       10e6, // 10MB
		CommitInterval: 0,    // manual commits
		StartOffset:    startOffset,
	})

	log.Info().
		Strs("brokers", brokers).
		Str("topic", topic).
		Str("group_id", groupID).
		Msg("Kafka consumer initialized")

	return &Consumer{reader: reader, handle: handle, fetchBackoff: newFetchBackoff()}
}

func newFetchBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = fetchRetryInitial
	b.MaxInterval = fetchRetryMax
	return b
}

// Start consumes messages until ctx is cancelled
func (c *Consumer) Start(ctx context.Context) error {
	log.Info().Msg("Starting Kafka consumer")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("Consumer context cancelled, stopping")
				return ctx.Err()
			}
			wait := c.fetchBackoff.NextBackOff()
			log.Error().Err(err).Dur("retry_in", wait).Msg("Failed to fetch message")
			select {
			case <-ctx.Done():
				log.Info().Msg("Consumer context cancelled, stopping")
				return ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		c.fetchBackoff.Reset()

		if err := c.processWithRetry(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Error().
				Err(err).
				Str("topic", msg.Topic).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("CRITICAL: Message processing failed after all retries - SKIPPING MESSAGE")
		}

		// Commit processed and skipped messages alike; handlers are idempotent on redelivery.
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			log.Error().Err(err).Msg("Failed to commit message")
		}
	}
}

func (c *Consumer) processWithRetry(ctx context.Context, msg kafka.Message) error {
	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		log.Debug().
			Str("topic", msg.Topic).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Int("attempt", attempt).
			Msg("Processing message")
		err := c.handle(ctx, msg.Value)
		if err != nil && ctx.Err() != nil {
			return struct{}{}, backoff.Permanent(ctx.Err())
		}
		return struct{}{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = time.Second
	b.MaxInterval = 5 * time.Minute

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxHandleAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Error().
				Err(err).
				Str("topic", msg.Topic).
				Int64("offset", msg.Offset).
				Int("attempt", attempt).
				Dur("retry_in", wait).
				Msg("Failed to process message - will retry")
		}),
	)
	return err
}

// Close closes the consumer
func (c *Consumer) Close() error {
	log.Info().Msg("Closing Kafka consumer")
	return c.reader.Close()
}
