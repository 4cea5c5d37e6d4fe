// Package s2s defines the streaming speech-to-speech session contract that the
// session driver runs against, and the configuration shared by every session.
package s2s

import (
	"context"
	"fmt"
	"time"

	"s2s-stream-client/internal/service/audio"
)

// Encoding selects the synthesized audio encoding.
type Encoding string

const (
	// EncodingNone disables synthesized audio output.
	EncodingNone Encoding = ""
	// EncodingPCM requests 16-bit linear PCM.
	EncodingPCM Encoding = "pcm"
	// EncodingOpus requests Ogg/Opus.
	EncodingOpus Encoding = "opus"
)

// ParseEncoding validates a TTS encoding name.
func ParseEncoding(s string) (Encoding, bool) {
	switch Encoding(s) {
	case EncodingNone, EncodingPCM, EncodingOpus:
		return Encoding(s), true
	default:
		return "", false
	}
}

// Config is the immutable session configuration shared by all drivers.
type Config struct {
	SourceLanguage       string
	TargetLanguage       string
	ProfanityFilter      bool
	AutomaticPunctuation bool
	VerbatimTranscripts  bool
	BoostedWords         []string
	BoostedWordsScore    float32
	TTSVoice             string
	TTSEncoding          Encoding
	TTSSampleRate        int
	ChunkDuration        time.Duration
}

// Input identifies the audio a session carries.
type Input struct {
	UnitID string
	Name   string
	Format audio.Format
}

// ResultKind classifies a session result.
type ResultKind string

const (
	ResultPartial ResultKind = "partial"
	ResultFinal   ResultKind = "final"
	ResultAudio   ResultKind = "audio"
)

// Result is one unit of output delivered by a session.
type Result struct {
	Kind       ResultKind
	Text       string
	Confidence float64
	Audio      []byte
}

// Session is an open bidirectional streaming session.
//
// Send and Finish are called from the driver goroutine; Recv is called from a
// single receive goroutine. Close may be called from either and must be idempotent.
type Session interface {
	// Send transmits one chunk of input audio.
	Send(ctx context.Context, chunk audio.Chunk) error

	// Finish signals end of input.
	Finish() error

	// Recv returns the next result in delivery order, or io.EOF once the
	// service has delivered everything.
	Recv() (Result, error)

	// Close releases the session and its resources.
	Close() error
}

// Dialer opens sessions. Implementations must allow concurrent Open calls.
type Dialer interface {
	Open(ctx context.Context, cfg Config, in Input) (Session, error)
	Name() string
}

// SessionError wraps a failure that happened while a session was open.
type SessionError struct {
	Op  string
	Err error
}

func (e *SessionError) Error() string {
	return fmt.Sprintf("session %s: %v", e.Op, e.Err)
}

func (e *SessionError) Unwrap() error {
	return e.Err
}
