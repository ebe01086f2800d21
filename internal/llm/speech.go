package llm

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
	unifiedgenai "google.golang.org/genai"

	"github.com/snappy-loop/snippets/internal/audio"
)

// Speaker adapts the Gemini TTS model to audio.Synthesizer. VoiceID is a prebuilt voice name
// such as "Puck".
type Speaker struct {
	client *Client
}

// Speaker returns a synthesizer backed by this client's TTS model.
func (c *Client) Speaker() *Speaker {
	return &Speaker{client: c}
}

// Name returns the provider identifier.
func (s *Speaker) Name() string {
	return "gemini"
}

// Synthesize streams TTS audio for one line. The result is raw PCM as reported by the API.
func (s *Speaker) Synthesize(ctx context.Context, req audio.SynthesisRequest) (*audio.Speech, error) {
	c := s.client
	if c.unifiedClient == nil {
		return nil, audio.NewSynthesisError(s.Name(), "", "unified genai client not initialized", nil, false)
	}
	if strings.TrimSpace(req.Text) == "" {
		return nil, audio.ErrEmptyText
	}

	contents := []*unifiedgenai.Content{
		{
			Role:  "user",
			Parts: []*unifiedgenai.Part{unifiedgenai.NewPartFromText(req.Text)},
		},
	}

	temp := float32(1.0)
	config := &unifiedgenai.GenerateContentConfig{
		Temperature:        &temp,
		ResponseModalities: []string{"audio"},
		SpeechConfig: &unifiedgenai.SpeechConfig{
			VoiceConfig: &unifiedgenai.VoiceConfig{
				PrebuiltVoiceConfig: &unifiedgenai.PrebuiltVoiceConfig{
					VoiceName: req.VoiceID,
				},
			},
		},
	}

	model := c.modelTTS
	if req.ModelID != "" && strings.Contains(req.ModelID, "tts") {
		model = req.ModelID
	}

	// Collect audio data from streaming response
	var audioBuffer bytes.Buffer
	var lastMimeType string

	for resp, err := range c.unifiedClient.Models.GenerateContentStream(ctx, model, contents, config) {
		if err != nil {
			return nil, classifyTTSError(s.Name(), ctx, err)
		}
		if len(resp.Candidates) == 0 {
			continue
		}
		cand := resp.Candidates[0]
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if part.InlineData != nil && len(part.InlineData.Data) > 0 {
				audioBuffer.Write(part.InlineData.Data)
				if part.InlineData.MIMEType != "" {
					lastMimeType = part.InlineData.MIMEType
				}
			}
		}
	}

	if audioBuffer.Len() == 0 {
		return nil, audio.NewSynthesisError(s.Name(), "", "TTS returned no audio data", audio.ErrEmptyAudio, true)
	}
	if lastMimeType == "" {
		lastMimeType = "audio/L16;codec=pcm;rate=24000"
	}

	log.Debug().
		Str("model", model).
		Str("voice", req.VoiceID).
		Str("mime_type", lastMimeType).
		Int("audio_size_bytes", audioBuffer.Len()).
		Msg("TTS audio generated")

	return &audio.Speech{Data: io.NopCloser(&audioBuffer), MimeType: lastMimeType}, nil
}

// classifyTTSError treats every stream failure other than cancellation as transient.
func classifyTTSError(provider string, ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return audio.NewSynthesisError(provider, "", "TTS stream error", err, true)
}
