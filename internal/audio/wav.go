package audio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

const wavHeaderSize = 44

// PCMFormat describes interleaved little-endian PCM samples.
type PCMFormat struct {
	SampleRate    int
	Channels      int
	BitsPerSample int
}

func (f PCMFormat) bytesPerSecond() int {
	return f.SampleRate * f.Channels * f.BitsPerSample / 8
}

// Duration returns the play time in seconds of n bytes of PCM in this format.
func (f PCMFormat) Duration(n int) float64 {
	bps := f.bytesPerSecond()
	if bps == 0 {
		return 0
	}
	return float64(n) / float64(bps)
}

// EncodeWAV wraps raw PCM in a canonical 44-byte RIFF header.
func EncodeWAV(pcm []byte, f PCMFormat) []byte {
	header := wavHeader(len(pcm), f)
	return append(header, pcm...)
}

func wavHeader(dataSize int, f PCMFormat) []byte {
	blockAlign := f.Channels * f.BitsPerSample / 8
	byteRate := f.SampleRate * blockAlign

	header := new(bytes.Buffer)
	binary.Write(header, binary.LittleEndian, []byte("RIFF"))
	binary.Write(header, binary.LittleEndian, uint32(36+dataSize))
	binary.Write(header, binary.LittleEndian, []byte("WAVE"))
	binary.Write(header, binary.LittleEndian, []byte("fmt "))
	binary.Write(header, binary.LittleEndian, uint32(16))
	binary.Write(header, binary.LittleEndian, uint16(1))
	binary.Write(header, binary.LittleEndian, uint16(f.Channels))
	binary.Write(header, binary.LittleEndian, uint32(f.SampleRate))
	binary.Write(header, binary.LittleEndian, uint32(byteRate))
	binary.Write(header, binary.LittleEndian, uint16(blockAlign))
	binary.Write(header, binary.LittleEndian, uint16(f.BitsPerSample))
	binary.Write(header, binary.LittleEndian, []byte("data"))
	binary.Write(header, binary.LittleEndian, uint32(dataSize))
	return header.Bytes()
}

// DecodeWAV returns the PCM payload and format of a RIFF/WAVE file, skipping non-data chunks.
func DecodeWAV(data []byte) ([]byte, PCMFormat, error) {
	var f PCMFormat
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, f, errors.New("not a RIFF/WAVE file")
	}
	pos := 12
	haveFmt := false
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		switch id {
		case "fmt ":
			if size < 16 || body+16 > len(data) {
				return nil, f, errors.New("truncated fmt chunk")
			}
			if format := binary.LittleEndian.Uint16(data[body:]); format != 1 {
				return nil, f, fmt.Errorf("%w: wav encoding %d", ErrUnsupportedFormat, format)
			}
			f.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			f.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			f.BitsPerSample = int(binary.LittleEndian.Uint16(data[body+14:]))
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, f, errors.New("data chunk before fmt chunk")
			}
			end := body + size
			if end > len(data) {
				// streamed WAVs may carry a placeholder size
				end = len(data)
			}
			return data[body:end], f, nil
		}
		pos = body + size + size%2
	}
	return nil, f, errors.New("missing data chunk")
}

var pcmBitsPattern = regexp.MustCompile(`audio/L(\d+)`)

// ParsePCMMimeType parses bits per sample and rate from a raw audio MIME type such as
// "audio/L16;codec=pcm;rate=24000". Defaults are 16-bit mono 24 kHz.
func ParsePCMMimeType(mimeType string) PCMFormat {
	f := PCMFormat{SampleRate: 24000, Channels: 1, BitsPerSample: 16}
	for _, part := range strings.Split(mimeType, ";") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(strings.ToLower(part), "rate="):
			if rate, err := strconv.Atoi(part[len("rate="):]); err == nil {
				f.SampleRate = rate
			}
		case strings.HasPrefix(strings.ToLower(part), "channels="):
			if ch, err := strconv.Atoi(part[len("channels="):]); err == nil && ch > 0 {
				f.Channels = ch
			}
		case strings.HasPrefix(part, "audio/L"):
			if m := pcmBitsPattern.FindStringSubmatch(part); len(m) > 1 {
				if bits, err := strconv.Atoi(m[1]); err == nil {
					f.BitsPerSample = bits
				}
			}
		}
	}
	return f
}

// IsPCMMimeType reports whether mimeType names headerless PCM.
func IsPCMMimeType(mimeType string) bool {
	return strings.HasPrefix(mimeType, "audio/L") || strings.HasPrefix(mimeType, "audio/pcm")
}
