// Package riva implements the streaming speech-to-speech session over the Riva
// translation gRPC service, plus a loopback server that speaks the same protocol.
package riva

import (
	"context"
	"errors"
	"io"
	"sync"

	"google.golang.org/grpc"

	"s2s-stream-client/internal/service/audio"
	"s2s-stream-client/internal/service/s2s"
)

var streamDesc = grpc.StreamDesc{
	StreamName:    methodName,
	ServerStreams: true,
	ClientStreams: true,
}

// Dialer opens translation sessions on a shared connection.
type Dialer struct {
	conn grpc.ClientConnInterface
}

// NewDialer creates a dialer over conn. The connection is shared by every session.
func NewDialer(conn grpc.ClientConnInterface) *Dialer {
	return &Dialer{conn: conn}
}

// Name returns the backend name.
func (d *Dialer) Name() string {
	return "riva"
}

// Open starts the bidirectional stream and sends the streaming config.
func (d *Dialer) Open(ctx context.Context, cfg s2s.Config, in s2s.Input) (s2s.Session, error) {
	sctx, cancel := context.WithCancel(ctx)

	stream, err := d.conn.NewStream(sctx, &streamDesc, fullMethod, grpc.ForceCodec(Codec()))
	if err != nil {
		cancel()
		return nil, &s2s.SessionError{Op: "open", Err: err}
	}

	if err := stream.SendMsg(&streamingRequest{config: newStreamingConfig(cfg, in)}); err != nil {
		cancel()
		return nil, &s2s.SessionError{Op: "send config", Err: err}
	}

	return &session{stream: stream, cancel: cancel}, nil
}

func newStreamingConfig(cfg s2s.Config, in s2s.Input) *streamingConfig {
	c := &streamingConfig{
		sampleRate:      int32(in.Format.SampleRate),
		channelCount:    int32(in.Format.Channels),
		languageCode:    cfg.SourceLanguage,
		profanityFilter: cfg.ProfanityFilter,
		punctuation:     cfg.AutomaticPunctuation,
		verbatim:        cfg.VerbatimTranscripts,
		boostedWords:    cfg.BoostedWords,
		boostScore:      cfg.BoostedWordsScore,
		interimResults:  true,
		ttsSampleRate:   int32(cfg.TTSSampleRate),
		voiceName:       cfg.TTSVoice,
		ttsLanguage:     cfg.TargetLanguage,
		sourceLanguage:  cfg.SourceLanguage,
		targetLanguage:  cfg.TargetLanguage,
	}
	switch cfg.TTSEncoding {
	case s2s.EncodingPCM:
		c.ttsEncoding = encodingLinearPCM
	case s2s.EncodingOpus:
		c.ttsEncoding = encodingOggOpus
	default:
		c.ttsEncoding = encodingUnspecified
	}
	return c
}

type session struct {
	stream    grpc.ClientStream
	cancel    context.CancelFunc
	closeOnce sync.Once
}

func (s *session) Send(ctx context.Context, chunk audio.Chunk) error {
	if err := ctx.Err(); err != nil {
		return &s2s.SessionError{Op: "send", Err: err}
	}
	if err := s.stream.SendMsg(&streamingRequest{audio: chunk.Audio}); err != nil {
		return &s2s.SessionError{Op: "send", Err: err}
	}
	return nil
}

func (s *session) Finish() error {
	if err := s.stream.CloseSend(); err != nil {
		return &s2s.SessionError{Op: "finish", Err: err}
	}
	return nil
}

// Recv skips responses that carry no audio.
func (s *session) Recv() (s2s.Result, error) {
	for {
		var resp streamingResponse
		err := s.stream.RecvMsg(&resp)
		if errors.Is(err, io.EOF) {
			return s2s.Result{}, io.EOF
		}
		if err != nil {
			return s2s.Result{}, &s2s.SessionError{Op: "recv", Err: err}
		}
		if len(resp.audio) == 0 {
			continue
		}
		return s2s.Result{Kind: s2s.ResultAudio, Audio: resp.audio}, nil
	}
}

func (s *session) Close() error {
	s.closeOnce.Do(s.cancel)
	return nil
}
