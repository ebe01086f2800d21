package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	elevenLabsBaseURL        = "https://api.elevenlabs.io/v1"
	defaultElevenLabsTimeout = 60 * time.Second
)

// ElevenLabs synthesizes speech through the ElevenLabs REST API.
type ElevenLabs struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

// ElevenLabsOption configures the ElevenLabs client.
type ElevenLabsOption func(*ElevenLabs)

// WithElevenLabsBaseURL sets a custom base URL.
func WithElevenLabsBaseURL(u string) ElevenLabsOption {
	return func(s *ElevenLabs) {
		s.baseURL = strings.TrimSuffix(u, "/")
	}
}

// WithElevenLabsClient sets a custom HTTP client.
func WithElevenLabsClient(client *http.Client) ElevenLabsOption {
	return func(s *ElevenLabs) {
		s.client = client
	}
}

// NewElevenLabs creates an ElevenLabs synthesizer.
func NewElevenLabs(apiKey string, opts ...ElevenLabsOption) *ElevenLabs {
	s := &ElevenLabs{
		apiKey:  apiKey,
		baseURL: elevenLabsBaseURL,
		client:  &http.Client{Timeout: defaultElevenLabsTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the provider identifier.
func (s *ElevenLabs) Name() string {
	return "elevenlabs"
}

type elevenLabsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id,omitempty"`
	VoiceSettings VoiceSettings `json:"voice_settings"`
}

type elevenLabsErrorResponse struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

// Synthesize converts text to audio. The caller closes the returned Speech.Data.
func (s *ElevenLabs) Synthesize(ctx context.Context, req SynthesisRequest) (*Speech, error) {
	if strings.TrimSpace(req.Text) == "" {
		return nil, ErrEmptyText
	}
	if req.VoiceID == "" {
		return nil, ErrInvalidVoice
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:          req.Text,
		ModelID:       req.ModelID,
		VoiceSettings: req.VoiceSettings,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/text-to-speech/%s", s.baseURL, url.PathEscape(req.VoiceID))
	if req.OutputFormat != "" {
		endpoint += "?output_format=" + url.QueryEscape(req.OutputFormat)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("xi-api-key", s.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, NewSynthesisError(s.Name(), "", "request failed", err, true)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		return nil, s.handleError(resp)
	}

	return &Speech{Data: resp.Body, MimeType: elevenLabsMimeType(req.OutputFormat)}, nil
}

// elevenLabsMimeType maps an output_format such as "mp3_22050_32" or "pcm_24000" to a MIME type.
func elevenLabsMimeType(format string) string {
	codec, rest, _ := strings.Cut(format, "_")
	switch codec {
	case "pcm":
		rate, _, _ := strings.Cut(rest, "_")
		return "audio/L16;rate=" + rate
	case "wav":
		return "audio/wav"
	default:
		return "audio/mpeg"
	}
}

func (s *ElevenLabs) handleError(resp *http.Response) error {
	retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError
	code := fmt.Sprintf("%d", resp.StatusCode)

	var errResp elevenLabsErrorResponse
	if err := json.NewDecoder(resp.Body).Decode(&errResp); err != nil {
		return NewSynthesisError(s.Name(), code, "unknown error", err, retryable)
	}

	var cause error
	switch resp.StatusCode {
	case http.StatusTooManyRequests:
		cause = ErrRateLimited
	case http.StatusUnauthorized:
		cause = fmt.Errorf("invalid API key")
	case http.StatusBadRequest:
		cause = fmt.Errorf("bad request")
	case http.StatusNotFound:
		cause = ErrInvalidVoice
	}
	if errResp.Detail.Status != "" {
		code = errResp.Detail.Status
	}
	return NewSynthesisError(s.Name(), code, errResp.Detail.Message, cause, retryable)
}
