// Package output writes synthesized speech delivered by sessions to disk.
package output

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"s2s-stream-client/internal/service/s2s"
)

// Sink receives synthesized audio for one session.
//
// Files are created lazily on the first Write, so a session that never
// delivers audio leaves nothing behind.
type Sink interface {
	Write(p []byte) error
	// Close finalizes the file. Safe to call more than once.
	Close() error
	// Path is the file written, or "" when nothing was written.
	Path() string
	// Bytes is the number of synthesized bytes received.
	Bytes() int
}

// NewSink returns a sink for the encoding. EncodingNone yields a sink that
// discards everything.
func NewSink(enc s2s.Encoding, path string, sampleRate int) (Sink, error) {
	switch enc {
	case s2s.EncodingNone:
		return &discardSink{}, nil
	case s2s.EncodingPCM:
		if sampleRate <= 0 {
			return nil, fmt.Errorf("invalid tts sample rate %d", sampleRate)
		}
		return &wavSink{path: path, sampleRate: sampleRate}, nil
	case s2s.EncodingOpus:
		return &rawSink{path: path}, nil
	default:
		return nil, fmt.Errorf("unsupported tts encoding %q", enc)
	}
}

// UnitPath returns the output file for unit index of total. Runs with more
// than one unit get a zero-padded index before the extension.
func UnitPath(base string, index, total int) string {
	if total <= 1 {
		return base
	}
	ext := filepath.Ext(base)
	return fmt.Sprintf("%s_%03d%s", strings.TrimSuffix(base, ext), index, ext)
}

type discardSink struct {
	n int
}

func (s *discardSink) Write(p []byte) error { s.n += len(p); return nil }
func (s *discardSink) Close() error         { return nil }
func (s *discardSink) Path() string         { return "" }
func (s *discardSink) Bytes() int           { return s.n }

// rawSink writes bytes as delivered (Ogg/Opus pages).
type rawSink struct {
	path   string
	f      *os.File
	n      int
	closed bool
}

func (s *rawSink) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if s.f == nil {
		f, err := os.Create(s.path)
		if err != nil {
			return fmt.Errorf("create tts output: %w", err)
		}
		s.f = f
	}
	if _, err := s.f.Write(p); err != nil {
		return fmt.Errorf("write tts output: %w", err)
	}
	s.n += len(p)
	return nil
}

func (s *rawSink) Close() error {
	if s.f == nil || s.closed {
		return nil
	}
	s.closed = true
	return s.f.Close()
}

func (s *rawSink) Path() string {
	if s.f == nil {
		return ""
	}
	return s.path
}

func (s *rawSink) Bytes() int { return s.n }

// wavSink wraps 16-bit little-endian mono PCM in a WAV container.
type wavSink struct {
	path       string
	sampleRate int
	f          *os.File
	enc        *wav.Encoder
	carry      []byte
	n          int
	closed     bool
}

func (s *wavSink) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	if s.f == nil {
		f, err := os.Create(s.path)
		if err != nil {
			return fmt.Errorf("create tts output: %w", err)
		}
		s.f = f
		s.enc = wav.NewEncoder(f, s.sampleRate, 16, 1, 1)
	}
	s.n += len(p)

	// Samples can straddle deliveries.
	data := append(s.carry, p...)
	whole := len(data) &^ 1
	s.carry = append([]byte{}, data[whole:]...)

	samples := make([]int, whole/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(data[2*i:])))
	}
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: s.sampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := s.enc.Write(buf); err != nil {
		return fmt.Errorf("write tts output: %w", err)
	}
	return nil
}

func (s *wavSink) Close() error {
	if s.f == nil || s.closed {
		return nil
	}
	s.closed = true
	if err := s.enc.Close(); err != nil {
		s.f.Close()
		return fmt.Errorf("finalize tts output: %w", err)
	}
	return s.f.Close()
}

func (s *wavSink) Path() string {
	if s.f == nil {
		return ""
	}
	return s.path
}

func (s *wavSink) Bytes() int { return s.n }
