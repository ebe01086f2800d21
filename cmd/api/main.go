package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/snippets/internal/app"
	"github.com/snappy-loop/snippets/internal/config"
	"github.com/snappy-loop/snippets/internal/handlers"
	"github.com/snappy-loop/snippets/internal/kafka"
	"github.com/snappy-loop/snippets/internal/processor"
)

func main() {
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

	log.Info().Msg("Starting Snippets API")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	// Form submits always execute here. With Kafka, events go through the events topic and come
	// back to the hub through the consumer below.
	var events []processor.EventPublisher
	if a.Producer != nil {
		events = append(events, a.Producer)
	} else {
		events = append(events, a.Hub, a.Webhooks)
	}
	proc, err := a.NewProcessor(ctx, events...)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize run processor")
	}
	go a.WarmIndex(ctx)

	var eventConsumer *kafka.Consumer
	if cfg.KafkaEnabled() {
		eventConsumer = kafka.NewEventConsumer(cfg.KafkaBrokers, cfg.KafkaTopicEvents, apiConsumerGroup(), true, a.Hub)
		go func() {
			if err := eventConsumer.Start(ctx); err != nil && err != context.Canceled {
				log.Error().Err(err).Msg("Event consumer error")
			}
		}()
	}

	runService := a.NewRunService(proc)
	h := handlers.NewHandler(runService, a.Hub, a.Health)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h.Router(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Bool("kafka", cfg.KafkaEnabled()).Msg("API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down API...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	cancel()
	if eventConsumer != nil {
		eventConsumer.Close()
	}
	runService.Wait()
	log.Info().Msg("API exited")
}

// apiConsumerGroup is unique per instance so every API replica sees every event.
func apiConsumerGroup() string {
	host, err := os.Hostname()
	if err != nil {
		host = fmt.Sprintf("pid-%d", os.Getpid())
	}
	return "snippets-api-" + host
}
