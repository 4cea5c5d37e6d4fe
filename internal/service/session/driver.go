package session

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"

	"s2s-stream-client/internal/models"
	"s2s-stream-client/internal/observability/logging"
	"s2s-stream-client/internal/observability/metrics"
	"s2s-stream-client/internal/service/audio"
	"s2s-stream-client/internal/service/output"
	"s2s-stream-client/internal/service/s2s"
	"s2s-stream-client/internal/shutdown"
)

// ErrStreamEnded is returned when the service ends a session before the
// client has finished sending input.
var ErrStreamEnded = errors.New("service ended the stream before end of input")

// SourceFactory opens the audio source for a unit.
type SourceFactory func(u Unit) (audio.Source, error)

// SinkFactory creates the synthesized audio sink for a unit.
type SinkFactory func(u Unit) (output.Sink, error)

// Publisher receives session events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishTranscript(ctx context.Context, event models.TranscriptFinal) error
	PublishOutcome(ctx context.Context, event models.SessionOutcome) error
}

// Options configures a Driver. Sinks, Publisher and Metrics are optional.
type Options struct {
	Dialer    s2s.Dialer
	Config    s2s.Config
	Sources   SourceFactory
	Sinks     SinkFactory
	Publisher Publisher
	Token     shutdown.Token
	Metrics   *metrics.Metrics
}

// Driver runs units one session at a time. A single Driver is shared by all
// concurrent workers; Run holds no state between calls.
type Driver struct {
	dialer    s2s.Dialer
	cfg       s2s.Config
	sources   SourceFactory
	sinks     SinkFactory
	publisher Publisher
	token     shutdown.Token
	metrics   *metrics.Metrics
}

// NewDriver creates a session driver.
func NewDriver(opts Options) *Driver {
	d := &Driver{
		dialer:    opts.Dialer,
		cfg:       opts.Config,
		sources:   opts.Sources,
		sinks:     opts.Sinks,
		publisher: opts.Publisher,
		token:     opts.Token,
		metrics:   opts.Metrics,
	}
	if d.sinks == nil {
		d.sinks = func(Unit) (output.Sink, error) {
			return output.NewSink(s2s.EncodingNone, "", 0)
		}
	}
	if d.metrics == nil {
		d.metrics = metrics.DefaultMetrics
	}
	return d
}

// received is what the receive goroutine hands back once the session is drained.
type received struct {
	results []s2s.Result
	err     error
}

// Run executes one unit through Opening, Streaming, Draining and Closed.
// Any error moves the session to Failed; the error is recorded on the
// returned Outcome and never propagated, so sibling sessions are unaffected.
func (d *Driver) Run(ctx context.Context, u Unit) (out Outcome) {
	start := time.Now()
	lc := NewLifecycle(u.ID)
	out = Outcome{Unit: u, Backend: d.dialer.Name()}
	log := logging.WithUnit(u.ID, u.Name(), u.Iteration)

	streaming := false
	defer func() {
		out.State = lc.State()
		out.Elapsed = time.Since(start)
		if streaming {
			d.metrics.RecordSessionEnd(out.Success(), out.Stage, out.Elapsed.Seconds())
		} else if out.Err != nil {
			d.metrics.RecordSetupFailure(out.Stage)
		}
		d.publishOutcome(ctx, &out, log)
	}()

	fail := func(stage string, err error) {
		lc.Fail()
		out.Stage = stage
		out.Err = err
		log.Error().Err(err).Str("stage", stage).Msg("Session failed")
	}

	if err := lc.Advance(StateOpening); err != nil {
		fail("state", err)
		return out
	}

	src, err := d.sources(u)
	if err != nil {
		fail("source", err)
		return out
	}
	defer src.Close()

	sink, err := d.sinks(u)
	if err != nil {
		fail("sink", err)
		return out
	}
	defer sink.Close()

	out.SessionID = NewSessionId()
	log = logging.WithSession(u.ID, out.SessionID, d.dialer.Name())

	sess, err := d.dialer.Open(ctx, d.cfg, s2s.Input{
		UnitID: u.ID,
		Name:   u.Name(),
		Format: src.Format(),
	})
	if err != nil {
		fail("open", err)
		return out
	}
	defer sess.Close()

	if err := lc.Advance(StateStreaming); err != nil {
		fail("state", err)
		return out
	}
	streaming = true
	d.metrics.RecordSessionStart()
	log.Info().Str("input", u.Name()).Int("iteration", u.Iteration).Msg("Session streaming")

	// The receive goroutine is the only writer of the result list and the sink
	// until recvDone is closed.
	var rcv received
	recvDone := make(chan struct{})
	go func() {
		defer close(recvDone)
		rcv = d.receive(ctx, sess, sink, &out, log)
	}()

	sendErr := d.stream(ctx, src, sess, &out, recvDone, &log)
	if sendErr != nil {
		sess.Close()
		<-recvDone
		out.Results = rcv.results
		// A broken stream surfaces as io.EOF on send or as the receive side
		// ending early; the cause is whatever Recv reported.
		if rcv.err != nil && (errors.Is(sendErr, io.EOF) || errors.Is(sendErr, ErrStreamEnded)) {
			fail("recv", rcv.err)
			return out
		}
		fail("send", sendErr)
		return out
	}

	if err := lc.Advance(StateDraining); err != nil {
		sess.Close()
		<-recvDone
		out.Results = rcv.results
		fail("state", err)
		return out
	}
	if err := sess.Finish(); err != nil {
		sess.Close()
		<-recvDone
		out.Results = rcv.results
		fail("finish", err)
		return out
	}

	<-recvDone
	out.Results = rcv.results
	if rcv.err != nil {
		fail("recv", rcv.err)
		return out
	}

	if err := sink.Close(); err != nil {
		fail("sink", err)
		return out
	}
	out.TTSAudioFile = sink.Path()
	out.TTSAudioBytes = sink.Bytes()

	if err := lc.Advance(StateClosed); err != nil {
		fail("state", err)
		return out
	}
	log.Info().
		Int("chunksSent", out.ChunksSent).
		Int("results", len(out.Results)).
		Int("ttsBytes", out.TTSAudioBytes).
		Bool("interrupted", out.Interrupted).
		Msg("Session closed")
	return out
}

// stream forwards chunks in sequence order until end of input, shutdown, or
// the receive side stopping early. No new send begins once shutdown is requested.
func (d *Driver) stream(ctx context.Context, src audio.Source, sess s2s.Session, out *Outcome, recvDone <-chan struct{}, log *zerolog.Logger) error {
	for {
		if d.shutdownRequested() {
			out.Interrupted = true
			log.Info().Int("chunksSent", out.ChunksSent).Msg("Shutdown requested, draining session")
			return nil
		}

		chunk, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			if d.shutdownRequested() {
				out.Interrupted = true
			}
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case <-recvDone:
			return ErrStreamEnded
		default:
		}
		if d.shutdownRequested() {
			out.Interrupted = true
			return nil
		}

		if err := sess.Send(ctx, chunk); err != nil {
			return err
		}
		out.ChunksSent++
		out.AudioSent += chunk.Duration
		d.metrics.RecordChunkSent(len(chunk.Audio), chunk.Duration.Seconds())
	}
}

// receive reads results until the session reports io.EOF or fails.
func (d *Driver) receive(ctx context.Context, sess s2s.Session, sink output.Sink, out *Outcome, log zerolog.Logger) received {
	var r received
	for {
		res, err := sess.Recv()
		if errors.Is(err, io.EOF) {
			return r
		}
		if err != nil {
			r.err = err
			return r
		}

		d.metrics.RecordResult(string(res.Kind), len(res.Audio))
		switch res.Kind {
		case s2s.ResultAudio:
			if err := sink.Write(res.Audio); err != nil {
				r.err = err
				return r
			}
			res.Audio = nil
		case s2s.ResultPartial:
			log.Debug().Str("text", res.Text).Msg("Partial")
		case s2s.ResultFinal:
			log.Info().Str("text", res.Text).Float64("confidence", res.Confidence).Msg("Final")
			d.publishTranscript(ctx, out, res, log)
		}
		r.results = append(r.results, res)
	}
}

func (d *Driver) shutdownRequested() bool {
	return d.token != nil && d.token.Requested()
}

// publishTranscript reads only fields fixed before the receive goroutine starts.
func (d *Driver) publishTranscript(ctx context.Context, out *Outcome, res s2s.Result, log zerolog.Logger) {
	if d.publisher == nil {
		return
	}
	err := d.publisher.PublishTranscript(ctx, models.TranscriptFinal{
		EventType:      models.EventTypeTranscriptFinal,
		UnitID:         out.Unit.ID,
		SessionID:      out.SessionID,
		Input:          out.Unit.Name(),
		Iteration:      out.Unit.Iteration,
		Timestamp:      time.Now().UnixMilli(),
		SourceLanguage: d.cfg.SourceLanguage,
		TargetLanguage: d.cfg.TargetLanguage,
		Text:           res.Text,
		Confidence:     res.Confidence,
	})
	if err != nil {
		log.Warn().Err(err).Msg("Failed to publish transcript")
	}
}

func (d *Driver) publishOutcome(ctx context.Context, out *Outcome, log zerolog.Logger) {
	if d.publisher == nil {
		return
	}
	event := models.SessionOutcome{
		EventType:     models.EventTypeSessionOutcome,
		UnitID:        out.Unit.ID,
		SessionID:     out.SessionID,
		Input:         out.Unit.Name(),
		Iteration:     out.Unit.Iteration,
		Timestamp:     time.Now().UnixMilli(),
		Backend:       out.Backend,
		State:         out.State.String(),
		Success:       out.Success(),
		Interrupted:   out.Interrupted,
		ChunksSent:    out.ChunksSent,
		AudioSeconds:  out.AudioSent.Seconds(),
		ElapsedMs:     out.Elapsed.Milliseconds(),
		Transcript:    out.Transcript(),
		TTSAudioFile:  out.TTSAudioFile,
		TTSAudioBytes: out.TTSAudioBytes,
	}
	if out.Err != nil {
		event.Error = out.Err.Error()
	}
	if err := d.publisher.PublishOutcome(ctx, event); err != nil {
		log.Warn().Err(err).Msg("Failed to publish outcome")
	}
}
