// Package audio turns Host/Expert scripts into voiced clips and assembles them into a podcast.
package audio

import (
	"context"
	"errors"
	"io"
)

// Common synthesis and assembly errors.
var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrEmptyAudio        = errors.New("synthesizer returned no audio data")
	ErrRateLimited       = errors.New("rate limit exceeded")
	ErrInvalidVoice      = errors.New("invalid or unsupported voice")
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	ErrNoClips           = errors.New("no clips to assemble")
)

// VoiceSettings tunes a synthesized voice.
type VoiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

// SynthesisRequest is one text-to-speech call.
type SynthesisRequest struct {
	Text          string
	VoiceID       string
	ModelID       string
	OutputFormat  string
	VoiceSettings VoiceSettings
}

// Speech is synthesized audio. MimeType is "audio/mpeg", "audio/wav" or a raw PCM type
// such as "audio/L16;rate=24000".
type Speech struct {
	Data     io.ReadCloser
	MimeType string
}

// Synthesizer converts text into speech.
type Synthesizer interface {
	Name() string
	Synthesize(ctx context.Context, req SynthesisRequest) (*Speech, error)
}

// SynthesisError provides detailed error information from TTS providers.
type SynthesisError struct {
	Provider  string
	Code      string
	Message   string
	Cause     error
	Retryable bool
}

func (e *SynthesisError) Error() string {
	if e.Cause != nil {
		return e.Provider + ": " + e.Message + ": " + e.Cause.Error()
	}
	return e.Provider + ": " + e.Message
}

func (e *SynthesisError) Unwrap() error {
	return e.Cause
}

// NewSynthesisError creates a new SynthesisError.
func NewSynthesisError(provider, code, message string, cause error, retryable bool) *SynthesisError {
	return &SynthesisError{
		Provider:  provider,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: retryable,
	}
}

// IsRetryable reports whether err is a transient synthesis failure.
func IsRetryable(err error) bool {
	var se *SynthesisError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// AssemblyError reports a clip that could not be decoded or the output that could not be written.
type AssemblyError struct {
	Clip string
	Err  error
}

func (e *AssemblyError) Error() string {
	if e.Clip == "" {
		return "assemble podcast: " + e.Err.Error()
	}
	return "assemble podcast: clip " + e.Clip + ": " + e.Err.Error()
}

func (e *AssemblyError) Unwrap() error {
	return e.Err
}
