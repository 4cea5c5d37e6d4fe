package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"s2s-stream-client/internal/service/s2s"
)

func load(t *testing.T, args ...string) *Configuration {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := viper.New()
	if err := BindFlags(fs, v); err != nil {
		t.Fatalf("BindFlags() error = %v", err)
	}
	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return Load(fs, v)
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv(EnvRivaURI, "")
	t.Setenv(EnvLogLevel, "")
	os.Unsetenv(EnvRivaURI)
	os.Unsetenv(EnvLogLevel)

	cfg := load(t)

	if cfg.Transport.URI != DefaultRivaURI {
		t.Errorf("expected default uri %s, got %s", DefaultRivaURI, cfg.Transport.URI)
	}
	if cfg.Transport.URIFromEnv {
		t.Error("expected URIFromEnv false")
	}
	if cfg.Transport.Backend != BackendRiva {
		t.Errorf("expected default backend riva, got %s", cfg.Transport.Backend)
	}
	if cfg.Orchestration.Iterations != 1 || cfg.Orchestration.Parallelism != 1 {
		t.Errorf("expected 1 iteration and 1 parallel request, got %d/%d", cfg.Orchestration.Iterations, cfg.Orchestration.Parallelism)
	}
	if cfg.Orchestration.ChunkDuration != 100*time.Millisecond {
		t.Errorf("expected 100ms chunks, got %v", cfg.Orchestration.ChunkDuration)
	}
	if cfg.Session.SourceLanguage != "en-US" || cfg.Session.TargetLanguage != "en-US" {
		t.Errorf("unexpected default languages %s/%s", cfg.Session.SourceLanguage, cfg.Session.TargetLanguage)
	}
	if !cfg.Session.AutomaticPunctuation || !cfg.Session.VerbatimTranscripts || cfg.Session.ProfanityFilter {
		t.Errorf("unexpected default session flags %+v", cfg.Session)
	}
	if cfg.Session.BoostedWordsScore != 10 {
		t.Errorf("expected boosted words score 10, got %v", cfg.Session.BoostedWordsScore)
	}
	if cfg.TTS.Encoding != "" || cfg.TTS.AudioFile != "s2s_output.wav" || cfg.TTS.SampleRate != 44100 {
		t.Errorf("unexpected default tts config %+v", cfg.TTS)
	}
	if cfg.TTS.VoiceName != "English-US.Female-1" {
		t.Errorf("unexpected default voice %s", cfg.TTS.VoiceName)
	}
	if cfg.Observability.LogLevel != "info" || cfg.Observability.LogFormat != "json" {
		t.Errorf("unexpected observability defaults %+v", cfg.Observability)
	}
	if len(cfg.Kafka.Brokers) != 0 {
		t.Errorf("expected kafka disabled by default, got %v", cfg.Kafka.Brokers)
	}
}

func TestLoad_RivaURIPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		env     string
		args    []string
		want    string
		fromEnv bool
	}{
		{"default", "", nil, DefaultRivaURI, false},
		{"env overrides default", "riva.example:443", nil, "riva.example:443", true},
		{"flag overrides env", "riva.example:443", []string{"--riva_uri=flag:50051"}, "flag:50051", false},
		{"flag set to default value still wins", "riva.example:443", []string{"--riva_uri=" + DefaultRivaURI}, DefaultRivaURI, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.env == "" {
				t.Setenv(EnvRivaURI, "")
				os.Unsetenv(EnvRivaURI)
			} else {
				t.Setenv(EnvRivaURI, tt.env)
			}

			cfg := load(t, tt.args...)
			if cfg.Transport.URI != tt.want {
				t.Errorf("expected uri %s, got %s", tt.want, cfg.Transport.URI)
			}
			if cfg.Transport.URIFromEnv != tt.fromEnv {
				t.Errorf("expected URIFromEnv %v, got %v", tt.fromEnv, cfg.Transport.URIFromEnv)
			}
		})
	}
}

func TestLoad_LogLevelFromEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "debug")

	if cfg := load(t); cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level from env, got %s", cfg.Observability.LogLevel)
	}
	if cfg := load(t, "--log_level=warn"); cfg.Observability.LogLevel != "warn" {
		t.Errorf("expected flag to win, got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_Flags(t *testing.T) {
	cfg := load(t,
		"--audio_file=/data/clips",
		"--num_iterations=2",
		"--num_parallel_requests=4",
		"--chunk_duration_ms=80",
		"--simulate_realtime",
		"--tts_encoding=opus",
		"--kafka_brokers=k1:9092,k2:9092",
		"--connect_timeout=3s",
	)

	if cfg.Input.AudioFile != "/data/clips" {
		t.Errorf("unexpected audio file %s", cfg.Input.AudioFile)
	}
	if cfg.Orchestration.Iterations != 2 || cfg.Orchestration.Parallelism != 4 {
		t.Errorf("unexpected orchestration %+v", cfg.Orchestration)
	}
	if cfg.Orchestration.ChunkDuration != 80*time.Millisecond || !cfg.Orchestration.SimulateRealtime {
		t.Errorf("unexpected pacing %+v", cfg.Orchestration)
	}
	if cfg.TTS.Encoding != "opus" {
		t.Errorf("unexpected encoding %s", cfg.TTS.Encoding)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("unexpected brokers %v", cfg.Kafka.Brokers)
	}
	if cfg.Transport.ConnectTimeout != 3*time.Second {
		t.Errorf("unexpected connect timeout %v", cfg.Transport.ConnectTimeout)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		mode    Mode
		flag    string // expected ConfigurationError flag
		wantErr error  // expected sentinel
	}{
		{"file", []string{"--audio_file=a.wav"}, ModeFile, "", nil},
		{"microphone", []string{"--audio_device=default"}, ModeMicrophone, "", nil},
		{"no input", nil, "", "", ErrNoInput},
		{"both inputs prefer file", []string{"--audio_file=a.wav", "--audio_device=default"}, ModeFile, "", nil},
		{"both inputs skip microphone checks", []string{"--audio_file=a.wav", "--audio_device=default", "--num_iterations=2"}, ModeFile, "", nil},
		{"mic with parallelism", []string{"--audio_device=default", "--num_parallel_requests=2"}, "", "num_parallel_requests", nil},
		{"mic with realtime", []string{"--audio_device=default", "--simulate_realtime"}, "", "simulate_realtime", nil},
		{"mic with iterations", []string{"--audio_device=default", "--num_iterations=3"}, "", "num_iterations", nil},
		{"wav encoding", []string{"--audio_file=a.wav", "--tts_encoding=wav"}, "", "", ErrUnsupportedEncoding},
		{"uppercase encoding", []string{"--audio_file=a.wav", "--tts_encoding=PCM"}, "", "", ErrUnsupportedEncoding},
		{"pcm encoding", []string{"--audio_file=a.wav", "--tts_encoding=pcm"}, ModeFile, "", nil},
		{"zero iterations", []string{"--audio_file=a.wav", "--num_iterations=0"}, "", "num_iterations", nil},
		{"zero parallelism", []string{"--audio_file=a.wav", "--num_parallel_requests=0"}, "", "num_parallel_requests", nil},
		{"zero chunk", []string{"--audio_file=a.wav", "--chunk_duration_ms=0"}, "", "chunk_duration_ms", nil},
		{"zero tts rate", []string{"--audio_file=a.wav", "--tts_encoding=pcm", "--tts_sample_rate=0"}, "", "tts_sample_rate", nil},
		{"zero tts rate without tts", []string{"--audio_file=a.wav", "--tts_sample_rate=0"}, ModeFile, "", nil},
		{"unknown backend", []string{"--audio_file=a.wav", "--backend=azure"}, "", "backend", nil},
		{"unknown log format", []string{"--audio_file=a.wav", "--log_format=xml"}, "", "log_format", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, err := load(t, tt.args...).Validate()

			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("expected %v, got %v", tt.wantErr, err)
				}
			case tt.flag != "":
				var ce *ConfigurationError
				if !errors.As(err, &ce) {
					t.Fatalf("expected ConfigurationError, got %v", err)
				}
				if ce.Flag != tt.flag {
					t.Errorf("expected error on %s, got %s", tt.flag, ce.Flag)
				}
			default:
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				if mode != tt.mode {
					t.Errorf("expected mode %s, got %s", tt.mode, mode)
				}
			}
		})
	}
}

func TestSessionConfig(t *testing.T) {
	words := filepath.Join(t.TempDir(), "boost.txt")
	if err := os.WriteFile(words, []byte("Riva\n\n  speech to speech  \nNVIDIA\n"), 0o644); err != nil {
		t.Fatalf("write boosted words: %v", err)
	}

	cfg := load(t,
		"--audio_file=a.wav",
		"--source_language_code=en-US",
		"--target_language_code=de-DE",
		"--boosted_words_file="+words,
		"--boosted_words_score=20",
		"--tts_encoding=pcm",
		"--tts_sample_rate=22050",
		"--tts_voice_name=German-DE.Male-1",
	)

	sc, err := cfg.SessionConfig()
	if err != nil {
		t.Fatalf("SessionConfig() error = %v", err)
	}

	want := []string{"Riva", "speech to speech", "NVIDIA"}
	if len(sc.BoostedWords) != len(want) {
		t.Fatalf("expected %d boosted words, got %v", len(want), sc.BoostedWords)
	}
	for i := range want {
		if sc.BoostedWords[i] != want[i] {
			t.Errorf("boosted word %d = %q, want %q", i, sc.BoostedWords[i], want[i])
		}
	}
	if sc.BoostedWordsScore != 20 {
		t.Errorf("expected score 20, got %v", sc.BoostedWordsScore)
	}
	if sc.TTSEncoding != s2s.EncodingPCM || sc.TTSSampleRate != 22050 || sc.TTSVoice != "German-DE.Male-1" {
		t.Errorf("unexpected tts session config %+v", sc)
	}
	if sc.TargetLanguage != "de-DE" || sc.ChunkDuration != 100*time.Millisecond {
		t.Errorf("unexpected session config %+v", sc)
	}
}

func TestSessionConfig_MissingBoostedWordsFile(t *testing.T) {
	cfg := load(t, "--audio_file=a.wav", "--boosted_words_file=/nonexistent/boost.txt")

	_, err := cfg.SessionConfig()
	var ce *ConfigurationError
	if !errors.As(err, &ce) || ce.Flag != "boosted_words_file" {
		t.Errorf("expected boosted_words_file ConfigurationError, got %v", err)
	}
}
