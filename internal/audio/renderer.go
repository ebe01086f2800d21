package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/snappy-loop/snippets/internal/markup"
	"github.com/snappy-loop/snippets/internal/script"
)

// Clip is one synthesized dialogue line on disk.
type Clip struct {
	Index    int
	Line     int
	Role     script.Role
	Text     string
	Path     string
	MimeType string
}

// RendererConfig holds voices and synthesis parameters.
type RendererConfig struct {
	HostVoice      string
	ExpertVoice    string
	ModelID        string
	OutputFormat   string
	VoiceSettings  VoiceSettings
	Concurrency    int
	MaxAttempts    int
	CallTimeout    time.Duration
	RetryBaseDelay time.Duration
	// StripMarkdown speaks "**word**" as "word". Clip.Text keeps the original line.
	StripMarkdown bool
}

// Renderer synthesizes every dialogue line of a script into its own clip.
type Renderer struct {
	synth Synthesizer
	cfg   RendererConfig
}

// NewRenderer creates a renderer over synth.
func NewRenderer(synth Synthesizer, cfg RendererConfig) *Renderer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	return &Renderer{synth: synth, cfg: cfg}
}

func (r *Renderer) voiceFor(role script.Role) (string, error) {
	switch role {
	case script.Host:
		return r.cfg.HostVoice, nil
	case script.Expert:
		return r.cfg.ExpertVoice, nil
	default:
		return "", fmt.Errorf("no voice for role %s", role)
	}
}

// RenderLine synthesizes text with the role's voice into a new file under dir.
func (r *Renderer) RenderLine(ctx context.Context, dir, text string, role script.Role) (Clip, error) {
	voice, err := r.voiceFor(role)
	if err != nil {
		return Clip{}, err
	}

	callCtx := ctx
	if r.cfg.CallTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.cfg.CallTimeout)
		defer cancel()
	}

	spoken := text
	if r.cfg.StripMarkdown {
		spoken = markup.PlainText(text)
	}
	speech, err := r.synth.Synthesize(callCtx, SynthesisRequest{
		Text:          spoken,
		VoiceID:       voice,
		ModelID:       r.cfg.ModelID,
		OutputFormat:  r.cfg.OutputFormat,
		VoiceSettings: r.cfg.VoiceSettings,
	})
	if err != nil {
		return Clip{}, err
	}
	defer speech.Data.Close()

	path, mimeType, err := writeClip(dir, speech)
	if err != nil {
		return Clip{}, err
	}
	return Clip{Role: role, Text: text, Path: path, MimeType: mimeType}, nil
}

// writeClip stores speech as <dir>/<uuid>.<ext>, wrapping raw PCM in a WAV header.
func writeClip(dir string, speech *Speech) (string, string, error) {
	var (
		ext      string
		mimeType = speech.MimeType
		src      io.Reader = speech.Data
	)
	switch {
	case mimeType == "audio/mpeg" || mimeType == "audio/mp3":
		ext, mimeType = ".mp3", "audio/mpeg"
	case mimeType == "audio/wav" || mimeType == "audio/x-wav" || mimeType == "audio/wave":
		ext, mimeType = ".wav", "audio/wav"
	case IsPCMMimeType(mimeType):
		pcm, err := io.ReadAll(speech.Data)
		if err != nil {
			return "", "", NewSynthesisError("audio", "", "read speech", err, true)
		}
		if len(pcm) == 0 {
			return "", "", NewSynthesisError("audio", "", "empty speech", ErrEmptyAudio, true)
		}
		src = bytes.NewReader(EncodeWAV(pcm, ParsePCMMimeType(mimeType)))
		ext, mimeType = ".wav", "audio/wav"
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, mimeType)
	}

	path := filepath.Join(dir, uuid.New().String()+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", "", fmt.Errorf("create clip: %w", err)
	}
	n, copyErr := io.Copy(f, src)
	closeErr := f.Close()
	if copyErr != nil || closeErr != nil || n == 0 {
		os.Remove(path)
		switch {
		case copyErr != nil:
			return "", "", NewSynthesisError("audio", "", "read speech", copyErr, true)
		case closeErr != nil:
			return "", "", fmt.Errorf("write clip: %w", closeErr)
		default:
			return "", "", NewSynthesisError("audio", "", "empty speech", ErrEmptyAudio, true)
		}
	}
	return path, mimeType, nil
}

// RenderOption configures a single RenderScript call.
type RenderOption func(*renderOptions)

type renderOptions struct {
	progress func(done, total int)
}

// WithProgress reports each finished clip. fn may be called from several goroutines.
func WithProgress(fn func(done, total int)) RenderOption {
	return func(o *renderOptions) {
		o.progress = fn
	}
}

// RenderScript synthesizes every Host/Expert line of text into dir and returns the clips in
// script order. Unrecognized lines are skipped. On failure every clip written so far is removed.
func (r *Renderer) RenderScript(ctx context.Context, dir, text string, opts ...RenderOption) ([]Clip, error) {
	var o renderOptions
	for _, opt := range opts {
		opt(&o)
	}

	lines := script.Dialogue(text)
	if len(lines) == 0 {
		return nil, script.ErrNoDialogue
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create clip dir: %w", err)
	}

	clips := make([]Clip, len(lines))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)
	for i, line := range lines {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			clip, err := r.renderWithRetry(gctx, dir, line)
			if err != nil {
				return fmt.Errorf("render line %d (%s): %w", line.Number, line.Role, err)
			}
			clip.Index = i
			clip.Line = line.Number
			clips[i] = clip
			if o.progress != nil {
				o.progress(int(done.Add(1)), len(lines))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		RemoveClips(clips)
		return nil, err
	}
	return clips, nil
}

func (r *Renderer) renderWithRetry(ctx context.Context, dir string, line script.Line) (Clip, error) {
	attempt := 0
	op := func() (Clip, error) {
		attempt++
		clip, err := r.RenderLine(ctx, dir, line.Text, line.Role)
		if err == nil {
			return clip, nil
		}
		if ctx.Err() != nil {
			return Clip{}, backoff.Permanent(ctx.Err())
		}
		if IsRetryable(err) || errors.Is(err, context.DeadlineExceeded) {
			return Clip{}, err
		}
		return Clip{}, backoff.Permanent(err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryBaseDelay
	b.MaxInterval = 30 * time.Second

	return backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.cfg.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Warn().Err(err).
				Int("line", line.Number).
				Int("attempt", attempt).
				Dur("retry_in", wait).
				Str("provider", r.synth.Name()).
				Msg("Speech synthesis failed, retrying")
		}),
	)
}

// RemoveClips deletes clip files, ignoring clips that were never written.
func RemoveClips(clips []Clip) {
	for _, c := range clips {
		if c.Path == "" {
			continue
		}
		if err := os.Remove(c.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("path", c.Path).Msg("Failed to remove clip")
		}
	}
}
