package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/snippets/internal/app"
	"github.com/snappy-loop/snippets/internal/config"
	"github.com/snappy-loop/snippets/internal/kafka"
)

const dispatcherGroup = "snippets-webhook-dispatcher"

func main() {
	// Setup logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	level, err := zerolog.ParseLevel(logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().Msg("Starting Snippets Webhook Dispatcher")

	// Load configuration
	cfg := config.Load()
	if !cfg.KafkaEnabled() || cfg.DatabaseURL == "" {
		log.Fatal().Msg("KAFKA_BROKERS and DATABASE_URL are required for the dispatcher")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	// Final run events trigger delivery; the rest are skipped by the handler.
	consumer := kafka.NewEventConsumer(cfg.KafkaBrokers, cfg.KafkaTopicEvents, dispatcherGroup, false, a.Webhooks)
	defer consumer.Close()

	// Start Kafka consumer in goroutine
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Start(ctx); err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("Kafka consumer error")
		}
	}()

	log.Info().Msg("Dispatcher started, waiting for run events...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down dispatcher...")

	// Cancel context to stop consumer
	cancel()

	// Wait for consumer to finish with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("Consumer shutdown complete")
	case <-time.After(30 * time.Second):
		log.Warn().Msg("Consumer shutdown timeout")
	}

	log.Info().Msg("Dispatcher exited")
}
