// Package config defines the client's flags and resolves them, together with
// the environment, into a validated Configuration.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"s2s-stream-client/internal/service/s2s"
)

// Environment variables consulted when the matching flag is not set.
const (
	EnvRivaURI  = "RIVA_URI"
	EnvLogLevel = "LOG_LEVEL"
)

// DefaultRivaURI is used when neither the flag nor RIVA_URI is set.
const DefaultRivaURI = "localhost:50051"

// Backends accepted by the backend flag.
const (
	BackendRiva   = "riva"
	BackendGoogle = "google"
	BackendMock   = "mock"
)

// Mode selects how input units are produced.
type Mode string

const (
	ModeFile       Mode = "file"
	ModeMicrophone Mode = "microphone"
)

var (
	// ErrNoInput means neither audio_file nor audio_device was given.
	ErrNoInput = errors.New("no audio files or audio device specified")
	// ErrUnsupportedEncoding means tts_encoding is not pcm, opus or empty.
	ErrUnsupportedEncoding = errors.New("unsupported encoding")
)

// ConfigurationError is an invalid flag value or combination.
type ConfigurationError struct {
	Flag   string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s %s", e.Flag, e.Reason)
}

// Configuration holds all client configuration.
type Configuration struct {
	Input         InputConfig
	Orchestration OrchestrationConfig
	Session       SessionConfig
	TTS           TTSConfig
	Transport     TransportConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
}

// InputConfig selects the audio input.
type InputConfig struct {
	AudioFile   string
	AudioDevice string
}

// OrchestrationConfig controls scheduling and pacing.
type OrchestrationConfig struct {
	Iterations       int
	Parallelism      int
	ChunkDuration    time.Duration
	SimulateRealtime bool
}

// SessionConfig holds recognition and translation options.
type SessionConfig struct {
	SourceLanguage       string
	TargetLanguage       string
	ProfanityFilter      bool
	AutomaticPunctuation bool
	VerbatimTranscripts  bool
	BoostedWordsFile     string
	BoostedWordsScore    float64
}

// TTSConfig holds synthesized speech options.
type TTSConfig struct {
	Encoding   string
	AudioFile  string
	SampleRate int
	VoiceName  string
}

// TransportConfig holds backend and channel settings.
type TransportConfig struct {
	Backend        string
	URI            string
	URIFromEnv     bool
	UseSSL         bool
	SSLCert        string
	Metadata       string
	ConnectTimeout time.Duration
}

// KafkaConfig holds outcome publishing settings. Publishing is disabled when
// Brokers is empty.
type KafkaConfig struct {
	Brokers         []string
	TopicOutcome    string
	TopicTranscript string
	Principal       string
}

// ObservabilityConfig holds logging and metrics settings.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	MetricsAddr string
}

// BindFlags registers every flag on fs and binds it, plus its environment
// override where one exists, to v.
func BindFlags(fs *pflag.FlagSet, v *viper.Viper) error {
	fs.String("audio_file", "", "Folder that contains audio files to translate or individual audio file name")
	fs.String("audio_device", "", "Name or index of audio capture device to use")
	fs.String("riva_uri", DefaultRivaURI, "URI to access the translation server (env "+EnvRivaURI+")")
	fs.Int("num_iterations", 1, "Number of times to loop over audio files")
	fs.Int("num_parallel_requests", 1, "Number of parallel requests to keep in flight")
	fs.Int("chunk_duration_ms", 100, "Chunk duration in milliseconds")
	fs.Bool("simulate_realtime", false, "Send audio files at realtime speed")
	fs.String("source_language_code", "en-US", "Language code for the input speech")
	fs.String("target_language_code", "en-US", "Language code for the output speech")
	fs.Bool("profanity_filter", false, "Filter generated transcripts for profane words")
	fs.Bool("automatic_punctuation", true, "Punctuate transcripts")
	fs.Bool("verbatim_transcripts", true, "Return text exactly as said, without inverse normalization")
	fs.String("boosted_words_file", "", "File with a list of words to boost, one per line")
	fs.Float64("boosted_words_score", 10, "Score by which to boost the boosted words")
	fs.String("tts_encoding", "", "TTS output encoding, either pcm or opus")
	fs.String("tts_audio_file", "s2s_output.wav", "File receiving translated audio")
	fs.Int("tts_sample_rate", 44100, "TTS sample rate in Hz")
	fs.String("tts_voice_name", "English-US.Female-1", "Desired TTS voice name")
	fs.Bool("use_ssl", false, "Use SSL credentials; implied when ssl_cert is set")
	fs.String("ssl_cert", "", "Path to SSL root certificates file")
	fs.String("metadata", "", "Comma separated key,value pairs of metadata sent with every request")

	fs.String("backend", BackendRiva, "Session backend: riva, google or mock")
	fs.Duration("connect_timeout", 10*time.Second, "Time allowed to establish the channel")
	fs.String("log_level", "info", "Log level: debug, info, warn, error (env "+EnvLogLevel+")")
	fs.String("log_format", "json", "Log format: json or console")
	fs.String("metrics_addr", "", "Serve /metrics, /healthz and /readyz on this address; empty disables")
	fs.StringSlice("kafka_brokers", nil, "Kafka brokers for outcome events; empty disables publishing")
	fs.String("kafka_topic_outcome", "translation.session.outcome", "Kafka topic for session outcomes")
	fs.String("kafka_topic_transcript", "translation.transcript.final", "Kafka topic for final transcripts")
	fs.String("kafka_principal", "s2s-stream-client", "Principal header on published events")

	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	if err := v.BindEnv("riva_uri", EnvRivaURI); err != nil {
		return err
	}
	return v.BindEnv("log_level", EnvLogLevel)
}

// Load reads the bound values. A flag set on the command line wins over its
// environment variable, which wins over the flag default.
func Load(fs *pflag.FlagSet, v *viper.Viper) *Configuration {
	cfg := &Configuration{
		Input: InputConfig{
			AudioFile:   v.GetString("audio_file"),
			AudioDevice: v.GetString("audio_device"),
		},
		Orchestration: OrchestrationConfig{
			Iterations:       v.GetInt("num_iterations"),
			Parallelism:      v.GetInt("num_parallel_requests"),
			ChunkDuration:    time.Duration(v.GetInt("chunk_duration_ms")) * time.Millisecond,
			SimulateRealtime: v.GetBool("simulate_realtime"),
		},
		Session: SessionConfig{
			SourceLanguage:       v.GetString("source_language_code"),
			TargetLanguage:       v.GetString("target_language_code"),
			ProfanityFilter:      v.GetBool("profanity_filter"),
			AutomaticPunctuation: v.GetBool("automatic_punctuation"),
			VerbatimTranscripts:  v.GetBool("verbatim_transcripts"),
			BoostedWordsFile:     v.GetString("boosted_words_file"),
			BoostedWordsScore:    v.GetFloat64("boosted_words_score"),
		},
		TTS: TTSConfig{
			Encoding:   v.GetString("tts_encoding"),
			AudioFile:  v.GetString("tts_audio_file"),
			SampleRate: v.GetInt("tts_sample_rate"),
			VoiceName:  v.GetString("tts_voice_name"),
		},
		Transport: TransportConfig{
			Backend:        v.GetString("backend"),
			URI:            v.GetString("riva_uri"),
			UseSSL:         v.GetBool("use_ssl"),
			SSLCert:        v.GetString("ssl_cert"),
			Metadata:       v.GetString("metadata"),
			ConnectTimeout: v.GetDuration("connect_timeout"),
		},
		Kafka: KafkaConfig{
			Brokers:         v.GetStringSlice("kafka_brokers"),
			TopicOutcome:    v.GetString("kafka_topic_outcome"),
			TopicTranscript: v.GetString("kafka_topic_transcript"),
			Principal:       v.GetString("kafka_principal"),
		},
		Observability: ObservabilityConfig{
			LogLevel:    v.GetString("log_level"),
			LogFormat:   v.GetString("log_format"),
			MetricsAddr: v.GetString("metrics_addr"),
		},
	}

	if f := fs.Lookup("riva_uri"); f != nil && !f.Changed {
		if env, ok := os.LookupEnv(EnvRivaURI); ok && env != "" {
			cfg.Transport.URIFromEnv = true
		}
	}
	return cfg
}

// Validate checks flag combinations and returns the dispatch mode.
func (c *Configuration) Validate() (Mode, error) {
	if _, ok := s2s.ParseEncoding(c.TTS.Encoding); !ok {
		return "", fmt.Errorf("%w: '%s'", ErrUnsupportedEncoding, c.TTS.Encoding)
	}

	var mode Mode
	// audio_file wins when both inputs are given; audio_device is ignored.
	switch {
	case c.Input.AudioFile != "":
		mode = ModeFile
	case c.Input.AudioDevice != "":
		mode = ModeMicrophone
	default:
		return "", ErrNoInput
	}

	o := c.Orchestration
	if mode == ModeMicrophone {
		if o.Parallelism != 1 {
			return "", &ConfigurationError{Flag: "num_parallel_requests", Reason: "must be set to 1 with microphone input"}
		}
		if o.SimulateRealtime {
			return "", &ConfigurationError{Flag: "simulate_realtime", Reason: "must be set to false with microphone input"}
		}
		if o.Iterations != 1 {
			return "", &ConfigurationError{Flag: "num_iterations", Reason: "must be set to 1 with microphone input"}
		}
	}

	switch {
	case o.Iterations < 1:
		return "", &ConfigurationError{Flag: "num_iterations", Reason: "must be at least 1"}
	case o.Parallelism < 1:
		return "", &ConfigurationError{Flag: "num_parallel_requests", Reason: "must be at least 1"}
	case o.ChunkDuration <= 0:
		return "", &ConfigurationError{Flag: "chunk_duration_ms", Reason: "must be positive"}
	case c.TTS.Encoding != "" && c.TTS.SampleRate <= 0:
		return "", &ConfigurationError{Flag: "tts_sample_rate", Reason: "must be positive when tts_encoding is set"}
	case c.TTS.Encoding != "" && c.TTS.AudioFile == "":
		return "", &ConfigurationError{Flag: "tts_audio_file", Reason: "is required when tts_encoding is set"}
	}

	switch c.Transport.Backend {
	case BackendRiva, BackendGoogle, BackendMock:
	default:
		return "", &ConfigurationError{Flag: "backend", Reason: fmt.Sprintf("%q is not one of riva, google, mock", c.Transport.Backend)}
	}

	switch c.Observability.LogFormat {
	case "json", "console":
	default:
		return "", &ConfigurationError{Flag: "log_format", Reason: fmt.Sprintf("%q is not one of json, console", c.Observability.LogFormat)}
	}

	return mode, nil
}

// SessionConfig builds the shared session configuration, reading the boosted
// words file if one is set.
func (c *Configuration) SessionConfig() (s2s.Config, error) {
	enc, _ := s2s.ParseEncoding(c.TTS.Encoding)
	cfg := s2s.Config{
		SourceLanguage:       c.Session.SourceLanguage,
		TargetLanguage:       c.Session.TargetLanguage,
		ProfanityFilter:      c.Session.ProfanityFilter,
		AutomaticPunctuation: c.Session.AutomaticPunctuation,
		VerbatimTranscripts:  c.Session.VerbatimTranscripts,
		BoostedWordsScore:    float32(c.Session.BoostedWordsScore),
		TTSVoice:             c.TTS.VoiceName,
		TTSEncoding:          enc,
		TTSSampleRate:        c.TTS.SampleRate,
		ChunkDuration:        c.Orchestration.ChunkDuration,
	}

	if c.Session.BoostedWordsFile != "" {
		words, err := LoadBoostedWords(c.Session.BoostedWordsFile)
		if err != nil {
			return s2s.Config{}, &ConfigurationError{Flag: "boosted_words_file", Reason: err.Error()}
		}
		cfg.BoostedWords = words
	}
	return cfg, nil
}

// LoadBoostedWords reads one word or phrase per line, skipping blank lines.
func LoadBoostedWords(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if w := strings.TrimSpace(sc.Text()); w != "" {
			words = append(words, w)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return words, nil
}
