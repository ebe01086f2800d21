package audio

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/hajimehoshi/go-mp3"
)

var (
	mpeg1Layer3Bitrates = [16]int{0, 32, 40, 48, 56, 64, 80, 96, 112, 128, 160, 192, 224, 256, 320, 0}
	mpeg2Layer3Bitrates = [16]int{0, 8, 16, 24, 32, 40, 48, 56, 64, 80, 96, 112, 128, 144, 160, 0}
	mpegSampleRates     = map[int][3]int{
		3: {44100, 48000, 32000}, // MPEG-1
		2: {22050, 24000, 16000}, // MPEG-2
		0: {11025, 12000, 8000},  // MPEG-2.5
	}
)

// frameHeader is a decoded MPEG audio Layer III frame header.
type frameHeader struct {
	version    int // 3 = MPEG-1, 2 = MPEG-2, 0 = MPEG-2.5
	sampleRate int
	channels   int
	length     int
	samples    int
}

func parseFrameHeader(b []byte) (frameHeader, bool) {
	var h frameHeader
	if len(b) < 4 || b[0] != 0xFF || b[1]&0xE0 != 0xE0 {
		return h, false
	}
	h.version = int(b[1]>>3) & 3
	layer := int(b[1]>>1) & 3
	if h.version == 1 || layer != 1 {
		return h, false
	}
	bitrateIdx := int(b[2] >> 4)
	srIdx := int(b[2]>>2) & 3
	padding := int(b[2]>>1) & 1
	if srIdx == 3 {
		return h, false
	}
	h.sampleRate = mpegSampleRates[h.version][srIdx]
	h.channels = 2
	if b[3]>>6 == 3 {
		h.channels = 1
	}
	var kbps int
	if h.version == 3 {
		kbps = mpeg1Layer3Bitrates[bitrateIdx]
		h.samples = 1152
		h.length = 144*kbps*1000/h.sampleRate + padding
	} else {
		kbps = mpeg2Layer3Bitrates[bitrateIdx]
		h.samples = 576
		h.length = 72*kbps*1000/h.sampleRate + padding
	}
	if kbps == 0 {
		return h, false
	}
	return h, true
}

// isInfoFrame reports whether the frame at b carries a Xing/Info/VBRI header instead of audio.
func isInfoFrame(b []byte, h frameHeader) bool {
	sideInfo := 32
	switch {
	case h.version == 3 && h.channels == 1:
		sideInfo = 17
	case h.version != 3 && h.channels == 2:
		sideInfo = 17
	case h.version != 3:
		sideInfo = 9
	}
	if off := 4 + sideInfo; off+4 <= len(b) {
		if tag := string(b[off : off+4]); tag == "Xing" || tag == "Info" {
			return true
		}
	}
	return len(b) >= 40 && string(b[36:40]) == "VBRI"
}

// stripID3 removes leading ID3v2 tags and a trailing ID3v1 tag.
func stripID3(data []byte) []byte {
	for len(data) >= 10 && string(data[:3]) == "ID3" {
		size := int(data[6]&0x7F)<<21 | int(data[7]&0x7F)<<14 | int(data[8]&0x7F)<<7 | int(data[9]&0x7F)
		total := 10 + size
		if data[5]&0x10 != 0 {
			total += 10 // footer
		}
		if total > len(data) {
			return nil
		}
		data = data[total:]
	}
	if len(data) >= 128 && string(data[len(data)-128:len(data)-125]) == "TAG" {
		data = data[:len(data)-128]
	}
	return data
}

// mp3Stream is the audio frames of one MP3 file with tags and info frames removed.
type mp3Stream struct {
	frames     []byte
	sampleRate int
	channels   int
	samples    int
}

func (s mp3Stream) duration() float64 {
	if s.sampleRate == 0 {
		return 0
	}
	return float64(s.samples) / float64(s.sampleRate)
}

// scanMP3 walks the frame chain of data. Bytes between frames that do not form a valid
// header are skipped.
func scanMP3(data []byte) (mp3Stream, error) {
	var s mp3Stream
	data = stripID3(data)
	var out bytes.Buffer
	first := true
	for pos := 0; pos+4 <= len(data); {
		h, ok := parseFrameHeader(data[pos:])
		if !ok || pos+h.length > len(data) {
			pos++
			continue
		}
		frame := data[pos : pos+h.length]
		pos += h.length
		if first {
			first = false
			s.sampleRate, s.channels = h.sampleRate, h.channels
			if isInfoFrame(frame, h) {
				continue
			}
		}
		if h.sampleRate != s.sampleRate {
			return s, fmt.Errorf("%w: sample rate changes mid-stream (%d -> %d)", ErrUnsupportedFormat, s.sampleRate, h.sampleRate)
		}
		out.Write(frame)
		s.samples += h.samples
	}
	if s.samples == 0 {
		return s, errors.New("no MPEG audio frames found")
	}
	s.frames = out.Bytes()
	return s, nil
}

// decodeMP3 decodes MP3 data to 16-bit stereo PCM.
func decodeMP3(data []byte) ([]byte, PCMFormat, error) {
	d, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, PCMFormat{}, fmt.Errorf("decode mp3: %w", err)
	}
	pcm, err := io.ReadAll(d)
	if err != nil {
		return nil, PCMFormat{}, fmt.Errorf("decode mp3: %w", err)
	}
	return pcm, PCMFormat{SampleRate: d.SampleRate(), Channels: 2, BitsPerSample: 16}, nil
}
