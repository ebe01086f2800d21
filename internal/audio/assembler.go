package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Format is the container of the assembled podcast.
type Format string

const (
	FormatMP3 Format = "mp3"
	FormatWAV Format = "wav"
)

// ParseFormat validates a podcast format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatMP3, FormatWAV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, s)
	}
}

// MimeType returns the MIME type of the format.
func (f Format) MimeType() string {
	if f == FormatWAV {
		return "audio/wav"
	}
	return "audio/mpeg"
}

// Ext returns the file extension including the dot.
func (f Format) Ext() string {
	return "." + string(f)
}

// Podcast is the assembled output file.
type Podcast struct {
	Path      string
	MimeType  string
	SizeBytes int64
	Duration  float64 // seconds
	Clips     int
}

// Assembler concatenates clips, in order and without gaps, into one file.
type Assembler struct {
	format Format
}

// NewAssembler creates an assembler producing format.
func NewAssembler(format Format) *Assembler {
	return &Assembler{format: format}
}

// Format returns the output format.
func (a *Assembler) Format() Format {
	return a.format
}

// Assemble decodes every clip, concatenates them in the given order and writes the result to
// dest. The clips are deleted whether or not assembly succeeds.
func (a *Assembler) Assemble(ctx context.Context, clips []Clip, dest string) (*Podcast, error) {
	defer RemoveClips(clips)

	if len(clips) == 0 {
		return nil, &AssemblyError{Err: ErrNoClips}
	}

	var (
		out      []byte
		duration float64
		err      error
	)
	switch a.format {
	case FormatMP3:
		out, duration, err = concatMP3(ctx, clips)
	case FormatWAV:
		out, duration, err = concatWAV(ctx, clips)
	default:
		err = &AssemblyError{Err: fmt.Errorf("%w: %q", ErrUnsupportedFormat, a.format)}
	}
	if err != nil {
		return nil, err
	}

	if err := writeFileAtomic(dest, out); err != nil {
		return nil, &AssemblyError{Err: err}
	}

	log.Debug().
		Str("path", dest).
		Int("clips", len(clips)).
		Float64("duration_seconds", duration).
		Int("size_bytes", len(out)).
		Msg("Podcast assembled")

	return &Podcast{
		Path:      dest,
		MimeType:  a.format.MimeType(),
		SizeBytes: int64(len(out)),
		Duration:  duration,
		Clips:     len(clips),
	}, nil
}

func concatMP3(ctx context.Context, clips []Clip) ([]byte, float64, error) {
	var (
		buf        bytes.Buffer
		duration   float64
		sampleRate int
	)
	for _, c := range clips {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		if clipFormat(c) != FormatMP3 {
			return nil, 0, &AssemblyError{Clip: c.Path, Err: fmt.Errorf("%w: %s clip in mp3 podcast", ErrUnsupportedFormat, c.MimeType)}
		}
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, 0, &AssemblyError{Clip: c.Path, Err: err}
		}
		s, err := scanMP3(data)
		if err != nil {
			return nil, 0, &AssemblyError{Clip: c.Path, Err: err}
		}
		if sampleRate == 0 {
			sampleRate = s.sampleRate
		} else if s.sampleRate != sampleRate {
			return nil, 0, &AssemblyError{Clip: c.Path, Err: fmt.Errorf("%w: sample rate %d, want %d", ErrUnsupportedFormat, s.sampleRate, sampleRate)}
		}
		buf.Write(s.frames)
		duration += s.duration()
	}
	return buf.Bytes(), duration, nil
}

func concatWAV(ctx context.Context, clips []Clip) ([]byte, float64, error) {
	var (
		pcm    bytes.Buffer
		format PCMFormat
	)
	for i, c := range clips {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		data, err := os.ReadFile(c.Path)
		if err != nil {
			return nil, 0, &AssemblyError{Clip: c.Path, Err: err}
		}
		var (
			samples []byte
			f       PCMFormat
		)
		switch clipFormat(c) {
		case FormatWAV:
			samples, f, err = DecodeWAV(data)
		case FormatMP3:
			samples, f, err = decodeMP3(data)
		default:
			err = fmt.Errorf("%w: %s", ErrUnsupportedFormat, c.MimeType)
		}
		if err != nil {
			return nil, 0, &AssemblyError{Clip: c.Path, Err: err}
		}
		if i == 0 {
			format = f
		} else if f != format {
			return nil, 0, &AssemblyError{Clip: c.Path, Err: fmt.Errorf("%w: clip format %+v differs from %+v", ErrUnsupportedFormat, f, format)}
		}
		pcm.Write(samples)
	}
	return EncodeWAV(pcm.Bytes(), format), format.Duration(pcm.Len()), nil
}

func clipFormat(c Clip) Format {
	switch {
	case c.MimeType == "audio/mpeg" || strings.EqualFold(filepath.Ext(c.Path), ".mp3"):
		return FormatMP3
	case c.MimeType == "audio/wav" || strings.EqualFold(filepath.Ext(c.Path), ".wav"):
		return FormatWAV
	default:
		return ""
	}
}

// writeFileAtomic replaces path with data via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".podcast-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write podcast: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("write podcast: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("move podcast into place: %w", err)
	}
	return nil
}
