// Package webhook notifies run owners when a run finishes.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/snappy-loop/snippets/internal/config"
	"github.com/snappy-loop/snippets/internal/models"
)

// Signature headers sent with every delivery
const (
	HeaderTimestamp = "X-Snippets-Timestamp"
	HeaderSignature = "X-Snippets-Signature"
)

// RunReader loads runs for delivery
type RunReader interface {
	GetByID(ctx context.Context, runID uuid.UUID) (*models.Run, error)
}

// DeliveryService handles webhook delivery with retries
type DeliveryService struct {
	runs       RunReader
	httpClient *http.Client
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// NewDeliveryService creates a new webhook delivery service
func NewDeliveryService(runs RunReader, cfg *config.Config) *DeliveryService {
	return &DeliveryService{
		runs: runs,
		httpClient: &http.Client{
			Timeout: cfg.WebhookTimeout,
		},
		maxRetries: cfg.WebhookMaxRetries,
		baseDelay:  cfg.WebhookRetryBaseDelay,
		maxDelay:   cfg.WebhookRetryMaxDelay,
	}
}

// Payload is the JSON body posted to the webhook URL
type Payload struct {
	RunID           uuid.UUID  `json:"run_id"`
	Status          string     `json:"status"`
	FinishedAt      time.Time  `json:"finished_at"`
	PodcastDuration *float64   `json:"podcast_duration_seconds,omitempty"`
	FailedStage     *string    `json:"failed_stage,omitempty"`
	Error           *ErrorInfo `json:"error,omitempty"`
}

// ErrorInfo represents error information in the webhook
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// DeliveryError wraps webhook delivery errors with HTTP status code
type DeliveryError struct {
	StatusCode int
	Message    string
	Body       string
}

func (e *DeliveryError) Error() string {
	return e.Message
}

// IsRetryable reports whether the receiver may accept a later attempt: 429 and 5xx are retried,
// other 4xx are not.
func (e *DeliveryError) IsRetryable() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if e.StatusCode >= 400 && e.StatusCode < 500 {
		return false
	}
	return true
}

// NewPayload builds the webhook body for a finished run.
func NewPayload(run *models.Run) Payload {
	finishedAt := time.Now()
	if run.FinishedAt != nil {
		finishedAt = *run.FinishedAt
	}
	p := Payload{
		RunID:           run.ID,
		Status:          run.Status,
		FinishedAt:      finishedAt,
		PodcastDuration: run.PodcastDuration,
		FailedStage:     run.FailedStage,
	}
	if run.ErrorCode != nil && run.ErrorMessage != nil {
		p.Error = &ErrorInfo{Code: *run.ErrorCode, Message: *run.ErrorMessage}
	}
	return p
}

// Deliver posts the run's outcome to its webhook, retrying transient failures with exponential
// backoff. Delivery failures are logged, not returned; only failing to load the run is an error.
func (s *DeliveryService) Deliver(ctx context.Context, runID uuid.UUID) error {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	if run.WebhookURL == nil || *run.WebhookURL == "" {
		log.Debug().Str("run_id", runID.String()).Msg("No webhook configured for run")
		return nil
	}
	if !run.Terminal() {
		log.Warn().Str("run_id", runID.String()).Str("status", run.Status).Msg("Run not finished, webhook skipped")
		return nil
	}

	body, err := json.Marshal(NewPayload(run))
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := *run.WebhookURL
	attempt := 0
	op := func() (struct{}, error) {
		attempt++
		err := s.send(ctx, url, body, run.WebhookSecret)
		var deliveryErr *DeliveryError
		if errors.As(err, &deliveryErr) && !deliveryErr.IsRetryable() {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.baseDelay
	b.MaxInterval = s.maxDelay

	_, err = backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(s.maxRetries)+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn().
				Err(err).
				Str("run_id", runID.String()).
				Str("url", url).
				Int("attempt", attempt).
				Dur("retry_in", wait).
				Msg("Webhook delivery failed, retrying")
		}),
	)
	if err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID.String()).
			Str("url", url).
			Int("attempts", attempt).
			Msg("Webhook delivery failed permanently")
		return nil
	}

	log.Info().
		Str("run_id", runID.String()).
		Str("url", url).
		Int("attempts", attempt).
		Msg("Webhook delivered successfully")
	return nil
}

// HandleEvent delivers the webhook when a run's final event arrives.
func (s *DeliveryService) HandleEvent(ctx context.Context, ev *models.Event) error {
	if !ev.Final() {
		return nil
	}
	return s.Deliver(ctx, ev.RunID)
}

// PublishEvent starts delivery in the background for in-process runs so retries never hold up
// the run that finished.
func (s *DeliveryService) PublishEvent(ctx context.Context, ev models.Event) error {
	if !ev.Final() {
		return nil
	}
	go func() {
		if err := s.Deliver(context.WithoutCancel(ctx), ev.RunID); err != nil {
			log.Error().Err(err).Str("run_id", ev.RunID.String()).Msg("Webhook delivery aborted")
		}
	}()
	return nil
}

func (s *DeliveryService) send(ctx context.Context, url string, body []byte, secret *string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Snippets-Webhook/1.0")
	req.Header.Set(HeaderTimestamp, timestamp)
	if secret != nil && *secret != "" {
		req.Header.Set(HeaderSignature, Sign(*secret, timestamp, body))
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &DeliveryError{
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("webhook returned status %d", resp.StatusCode),
			Body:       string(respBody),
		}
	}
	return nil
}

// Sign returns the hex HMAC-SHA256 of "<timestamp>.<body>" keyed by secret.
func Sign(secret, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
