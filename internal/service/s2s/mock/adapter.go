// Package mock provides a scripted translation backend for tests and dry runs.
// Every chunk yields a progressive partial translation (and, with TTS enabled,
// the chunk echoed back as synthesized audio); Finish yields one final translation.
package mock

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"s2s-stream-client/internal/service/audio"
	"s2s-stream-client/internal/service/s2s"
)

// SimulatedUtterance is a scripted translation with progressive partials.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial translations
	Final      string   // Final translation text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample translations for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"Ich möchte", "Ich möchte mein", "Ich möchte mein Abonnement"},
		Final:      "Ich möchte mein Abonnement kündigen",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Ja", "Ja bitte"},
		Final:      "Ja bitte, machen Sie weiter",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"Können Sie", "Können Sie mir", "Können Sie mir helfen"},
		Final:      "Können Sie mir mit meinem Konto helfen",
		Confidence: 0.91,
	},
	{
		Partials:   []string{"Vielen Dank"},
		Final:      "Vielen Dank",
		Confidence: 0.98,
	},
}

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("mock session closed")

// Options scripts the behaviour of every session opened by a Dialer.
type Options struct {
	Utterances []SimulatedUtterance
	EchoAudio  bool          // Echo chunks as audio results when TTS is enabled
	FailOpen   error         // Returned by Open
	FailSendAt int           // Fail the Send of this chunk index; negative disables
	FailRecv   error         // Returned by Recv instead of io.EOF after Finish
	SendDelay  time.Duration // Simulated network time per Send
}

// DefaultOptions returns options for a well-behaved echoing backend.
func DefaultOptions() Options {
	return Options{
		Utterances: DefaultUtterances,
		EchoAudio:  true,
		FailSendAt: -1,
	}
}

// Dialer implements s2s.Dialer with scripted sessions.
type Dialer struct {
	opts Options

	mu        sync.Mutex
	sessions  []*Session
	counter   int
	active    int
	maxActive int
}

// New creates a mock dialer.
func New(opts Options) *Dialer {
	if len(opts.Utterances) == 0 {
		opts.Utterances = DefaultUtterances
	}
	return &Dialer{opts: opts}
}

// Name returns the backend name.
func (d *Dialer) Name() string {
	return "mock"
}

// Open creates a scripted session.
func (d *Dialer) Open(ctx context.Context, cfg s2s.Config, in s2s.Input) (s2s.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, &s2s.SessionError{Op: "open", Err: err}
	}
	if d.opts.FailOpen != nil {
		return nil, &s2s.SessionError{Op: "open", Err: d.opts.FailOpen}
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	s := &Session{
		Input:     in,
		Config:    cfg,
		dialer:    d,
		utterance: d.opts.Utterances[d.counter%len(d.opts.Utterances)],
		notify:    make(chan struct{}, 1),
	}
	d.counter++
	d.sessions = append(d.sessions, s)
	d.active++
	if d.active > d.maxActive {
		d.maxActive = d.active
	}
	return s, nil
}

// Sessions returns every session opened so far, in open order.
func (d *Dialer) Sessions() []*Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Session{}, d.sessions...)
}

// MaxActive returns the highest number of simultaneously open sessions.
func (d *Dialer) MaxActive() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxActive
}

func (d *Dialer) release() {
	d.mu.Lock()
	d.active--
	d.mu.Unlock()
}

// Session is a scripted s2s.Session.
type Session struct {
	Input  s2s.Input
	Config s2s.Config

	dialer    *Dialer
	utterance SimulatedUtterance
	notify    chan struct{}

	mu           sync.Mutex
	sent         []audio.Chunk
	pending      []s2s.Result
	partialIndex int
	finished     bool
	closed       bool
}

// Send records the chunk and queues the scripted results for it.
func (s *Session) Send(ctx context.Context, chunk audio.Chunk) error {
	if d := s.dialer.opts.SendDelay; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return &s2s.SessionError{Op: "send", Err: ctx.Err()}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &s2s.SessionError{Op: "send", Err: ErrClosed}
	}
	if s.finished {
		return &s2s.SessionError{Op: "send", Err: errors.New("send after finish")}
	}
	if at := s.dialer.opts.FailSendAt; at >= 0 && len(s.sent) == at {
		return &s2s.SessionError{Op: "send", Err: io.ErrUnexpectedEOF}
	}

	s.sent = append(s.sent, chunk)
	if s.partialIndex < len(s.utterance.Partials) {
		s.pending = append(s.pending, s2s.Result{
			Kind: s2s.ResultPartial,
			Text: s.utterance.Partials[s.partialIndex],
		})
		s.partialIndex++
	}
	if s.dialer.opts.EchoAudio && s.Config.TTSEncoding != s2s.EncodingNone {
		s.pending = append(s.pending, s2s.Result{
			Kind:  s2s.ResultAudio,
			Audio: append([]byte{}, chunk.Audio...),
		})
	}
	s.signal()
	return nil
}

// Finish queues the final translation.
func (s *Session) Finish() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return &s2s.SessionError{Op: "finish", Err: ErrClosed}
	}
	if !s.finished {
		s.finished = true
		s.pending = append(s.pending, s2s.Result{
			Kind:       s2s.ResultFinal,
			Text:       s.utterance.Final,
			Confidence: s.utterance.Confidence,
		})
		s.signal()
	}
	return nil
}

// Recv blocks until a result is queued, the session is finished and drained, or closed.
func (s *Session) Recv() (s2s.Result, error) {
	for {
		s.mu.Lock()
		if len(s.pending) > 0 {
			r := s.pending[0]
			s.pending = s.pending[1:]
			s.mu.Unlock()
			return r, nil
		}
		closed, finished := s.closed, s.finished
		s.mu.Unlock()

		switch {
		case closed:
			return s2s.Result{}, &s2s.SessionError{Op: "recv", Err: ErrClosed}
		case finished && s.dialer.opts.FailRecv != nil:
			return s2s.Result{}, &s2s.SessionError{Op: "recv", Err: s.dialer.opts.FailRecv}
		case finished:
			return s2s.Result{}, io.EOF
		}
		<-s.notify
	}
}

// Close releases the session.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.signal()
	s.mu.Unlock()

	s.dialer.release()
	return nil
}

// Sent returns the chunks received so far, in arrival order.
func (s *Session) Sent() []audio.Chunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]audio.Chunk{}, s.sent...)
}

// Finished reports whether end of input was signalled.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

// Closed reports whether the session was released.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Session) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}
