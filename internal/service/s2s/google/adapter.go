// Package google provides a Google Cloud Speech-to-Text session backend.
//
// Cloud Speech only transcribes, so sessions opened here yield partial and final
// transcripts in the source language and never synthesized audio.
package google

import (
	"context"
	"errors"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"

	"s2s-stream-client/internal/observability/logging"
	"s2s-stream-client/internal/service/audio"
	"s2s-stream-client/internal/service/s2s"
)

// Dialer implements s2s.Dialer using Google Cloud Speech-to-Text.
type Dialer struct {
	client *speech.Client
}

// New creates a new Google dialer.
// Requires GOOGLE_APPLICATION_CREDENTIALS environment variable to be set.
func New(ctx context.Context) (*Dialer, error) {
	c, err := speech.NewClient(ctx)
	if err != nil {
		return nil, err
	}
	return &Dialer{client: c}, nil
}

// Name returns the backend name.
func (d *Dialer) Name() string {
	return "google"
}

// Close releases the underlying client connection.
func (d *Dialer) Close() error {
	return d.client.Close()
}

// Open begins a streaming recognition session and sends the initial config.
func (d *Dialer) Open(ctx context.Context, cfg s2s.Config, in s2s.Input) (s2s.Session, error) {
	if ignored := IgnoredOptions(cfg); len(ignored) > 0 {
		log := logging.WithComponent("google")
		log.Warn().
			Str("unitId", in.UnitID).
			Strs("ignored", ignored).
			Msg("Google backend only transcribes the source language, options ignored")
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := d.client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		return nil, &s2s.SessionError{Op: "open", Err: err}
	}

	// Send streaming config as the first message
	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: StreamingConfig(cfg, in.Format),
		},
	})
	if err != nil {
		cancel()
		return nil, &s2s.SessionError{Op: "open", Err: err}
	}

	return &session{stream: stream, cancel: cancel}, nil
}

// IgnoredOptions lists the configured options this backend cannot honour:
// speech synthesis, translation to another language, and verbatim output.
func IgnoredOptions(cfg s2s.Config) []string {
	var ignored []string
	if cfg.TTSEncoding != s2s.EncodingNone {
		ignored = append(ignored, "tts_encoding")
	}
	if cfg.TargetLanguage != "" && cfg.TargetLanguage != cfg.SourceLanguage {
		ignored = append(ignored, "target_language_code")
	}
	if cfg.VerbatimTranscripts {
		ignored = append(ignored, "verbatim_transcripts")
	}
	return ignored
}

// StreamingConfig builds the recognition config for a session.
func StreamingConfig(cfg s2s.Config, format audio.Format) *speechpb.StreamingRecognitionConfig {
	rc := &speechpb.RecognitionConfig{
		Encoding:                   speechpb.RecognitionConfig_LINEAR16,
		SampleRateHertz:            int32(format.SampleRate),
		AudioChannelCount:          int32(format.Channels),
		LanguageCode:               cfg.SourceLanguage,
		MaxAlternatives:            1,
		ProfanityFilter:            cfg.ProfanityFilter,
		EnableAutomaticPunctuation: cfg.AutomaticPunctuation,
	}
	if len(cfg.BoostedWords) > 0 {
		rc.SpeechContexts = []*speechpb.SpeechContext{{
			Phrases: cfg.BoostedWords,
			Boost:   cfg.BoostedWordsScore,
		}}
	}
	return &speechpb.StreamingRecognitionConfig{
		Config:         rc,
		InterimResults: true,
	}
}

// Results maps one streaming response to session results.
func Results(resp *speechpb.StreamingRecognizeResponse) []s2s.Result {
	var out []s2s.Result
	for _, r := range resp.GetResults() {
		if len(r.Alternatives) == 0 {
			continue
		}
		alt := r.Alternatives[0]
		if r.IsFinal {
			out = append(out, s2s.Result{
				Kind:       s2s.ResultFinal,
				Text:       alt.Transcript,
				Confidence: float64(alt.Confidence),
			})
		} else {
			out = append(out, s2s.Result{Kind: s2s.ResultPartial, Text: alt.Transcript})
		}
	}
	return out
}

type session struct {
	stream  speechpb.Speech_StreamingRecognizeClient
	cancel  context.CancelFunc
	pending []s2s.Result
	once    sync.Once
}

// Send sends audio bytes to Google Speech-to-Text.
func (s *session) Send(ctx context.Context, chunk audio.Chunk) error {
	err := s.stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk.Audio,
		},
	})
	if err != nil {
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

func (s *session) Recv() (s2s.Result, error) {
	for len(s.pending) == 0 {
		resp, err := s.stream.Recv()
		if errors.Is(err, io.EOF) {
			return s2s.Result{}, io.EOF
		}
		if err != nil {
			return s2s.Result{}, &s2s.SessionError{Op: "recv", Err: err}
		}
		if st := resp.GetError(); st != nil && st.GetCode() != 0 {
			return s2s.Result{}, &s2s.SessionError{Op: "recv", Err: errors.New(st.GetMessage())}
		}
		s.pending = Results(resp)
	}
	r := s.pending[0]
	s.pending = s.pending[1:]
	return r, nil
}

func (s *session) Close() error {
	s.once.Do(s.cancel)
	return nil
}
