package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"s2s-stream-client/internal/config"
	"s2s-stream-client/internal/events"
	"s2s-stream-client/internal/observability"
	"s2s-stream-client/internal/observability/logging"
	"s2s-stream-client/internal/observability/metrics"
	"s2s-stream-client/internal/service/audio"
	"s2s-stream-client/internal/service/audio/microphone"
	"s2s-stream-client/internal/service/coordinator"
	"s2s-stream-client/internal/service/output"
	"s2s-stream-client/internal/service/s2s"
	"s2s-stream-client/internal/service/s2s/google"
	"s2s-stream-client/internal/service/s2s/mock"
	"s2s-stream-client/internal/service/s2s/riva"
	"s2s-stream-client/internal/service/session"
	"s2s-stream-client/internal/shutdown"
	"s2s-stream-client/internal/transport"
)

// Application holds process-wide state for the client.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Configuration

	stdout io.Writer
	ready  atomic.Bool
}

// New constructs a new Application and initializes logging from cfg.
func New(cfg *config.Configuration, stdout io.Writer) *Application {
	a := &Application{
		Cfg:    cfg,
		stdout: stdout,
	}
	a.setupLogger()

	appLogger := a.Logger.With().
		Str("method", "New").
		Logger()

	appLogger.Debug().Msg("Speech-to-speech client application created")
	return a
}

// setupLogger configures zerolog for the client.
func (a *Application) setupLogger() {
	logging.Init(logging.Config{
		Level:  a.Cfg.Observability.LogLevel,
		Format: a.Cfg.Observability.LogFormat,
	})
	a.Logger = logging.WithComponent("application")

	a.Logger.Debug().
		Str("logLevel", zerolog.GlobalLevel().String()).
		Str("logFormat", a.Cfg.Observability.LogFormat).
		Msg("Logger setup completed")
}

// Run validates the configuration, builds the backend and runs every input
// unit. Configuration and transport errors are returned before any session
// starts; session failures are reported on the returned Report instead.
func (a *Application) Run(ctx context.Context, token shutdown.Token) (*coordinator.Report, error) {
	runLogger := a.Logger.With().
		Str("method", "Run").
		Logger()

	a.StartupTime = time.Now().UTC()
	cfg := a.Cfg

	mode, err := cfg.Validate()
	if errors.Is(err, config.ErrNoInput) {
		fmt.Fprintln(a.stdout, "No audio files or audio device specified, exiting")
		return nil, err
	}
	if err != nil {
		runLogger.Error().Err(err).Msg("Invalid configuration")
		return nil, err
	}
	if mode == config.ModeFile && cfg.Input.AudioDevice != "" {
		runLogger.Warn().
			Str("audioFile", cfg.Input.AudioFile).
			Str("audioDevice", cfg.Input.AudioDevice).
			Msg("Both audio_file and audio_device set, streaming files and ignoring audio_device")
	}

	sessionCfg, err := cfg.SessionConfig()
	if err != nil {
		runLogger.Error().Err(err).Msg("Invalid configuration")
		return nil, err
	}

	gen := session.NewGenerator()
	var units []session.Unit
	if mode == config.ModeFile {
		files, err := audio.ListInputs(cfg.Input.AudioFile)
		if err != nil {
			runLogger.Error().Err(err).Msg("Cannot read audio input")
			return nil, &config.ConfigurationError{Flag: "audio_file", Reason: err.Error()}
		}
		units = coordinator.FileUnits(files, cfg.Orchestration.Iterations, gen)
	} else {
		units = coordinator.LiveUnit(cfg.Input.AudioDevice, gen)
	}

	if addr := cfg.Observability.MetricsAddr; addr != "" {
		srv := observability.NewServer(addr, a.ready.Load)
		srv.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	dialer, closeDialer, err := a.newDialer(ctx, runLogger)
	if err != nil {
		runLogger.Error().Err(err).Msg("Error creating session backend, exiting")
		return nil, err
	}
	defer closeDialer()
	a.ready.Store(true)

	publisher := events.New(&events.Config{
		Enabled:         len(cfg.Kafka.Brokers) > 0,
		Brokers:         cfg.Kafka.Brokers,
		TopicTranscript: cfg.Kafka.TopicTranscript,
		TopicOutcome:    cfg.Kafka.TopicOutcome,
		Principal:       cfg.Kafka.Principal,
	})
	defer publisher.Close()

	driver := session.NewDriver(session.Options{
		Dialer:    dialer,
		Config:    sessionCfg,
		Sources:   a.sources(sessionCfg, token),
		Sinks:     a.sinks(sessionCfg, len(units)),
		Publisher: publisher,
		Token:     token,
		Metrics:   metrics.DefaultMetrics,
	})

	runLogger.Info().
		Str("mode", string(mode)).
		Str("backend", dialer.Name()).
		Int("units", len(units)).
		Time("startupTime", a.StartupTime).
		Msg("Speech-to-speech client starting")

	report := coordinator.New(driver, cfg.Orchestration.Parallelism, token).Run(ctx, units)
	PrintSummary(a.stdout, report)
	return &report, nil
}

// newDialer builds the configured backend and the function that releases it.
func (a *Application) newDialer(ctx context.Context, logger zerolog.Logger) (s2s.Dialer, func() error, error) {
	cfg := a.Cfg.Transport
	switch cfg.Backend {
	case config.BackendMock:
		return mock.New(mock.DefaultOptions()), func() error { return nil }, nil

	case config.BackendGoogle:
		d, err := google.New(ctx)
		if err != nil {
			return nil, nil, &transport.SetupError{Target: "speech.googleapis.com", Err: err}
		}
		return d, d.Close, nil

	default:
		if cfg.URIFromEnv {
			fmt.Fprintf(a.stdout, "Using environment for %s\n", cfg.URI)
			logger.Info().Str("uri", cfg.URI).Msg("Using environment for " + cfg.URI)
		}
		conn, err := transport.Dial(ctx, transport.Config{
			URI:            cfg.URI,
			UseSSL:         cfg.UseSSL,
			SSLCert:        cfg.SSLCert,
			Metadata:       cfg.Metadata,
			ConnectTimeout: cfg.ConnectTimeout,
		}, metrics.DefaultMetrics)
		if err != nil {
			return nil, nil, err
		}
		return riva.NewDialer(conn), conn.Close, nil
	}
}

func (a *Application) sources(sc s2s.Config, token shutdown.Token) session.SourceFactory {
	realtime := a.Cfg.Orchestration.SimulateRealtime
	return func(u session.Unit) (audio.Source, error) {
		if u.Live {
			return microphone.Open(u.Device, microphone.Options{
				ChunkDuration: sc.ChunkDuration,
				Token:         token,
			})
		}
		return audio.NewFileSource([]string{u.Path}, audio.FileOptions{
			ChunkDuration:    sc.ChunkDuration,
			Iterations:       1,
			SimulateRealtime: realtime,
			Token:            token,
		})
	}
}

func (a *Application) sinks(sc s2s.Config, total int) session.SinkFactory {
	base := a.Cfg.TTS.AudioFile
	return func(u session.Unit) (output.Sink, error) {
		return output.NewSink(sc.TTSEncoding, output.UnitPath(base, u.Index, total), sc.TTSSampleRate)
	}
}
