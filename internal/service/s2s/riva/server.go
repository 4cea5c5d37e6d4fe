package riva

import (
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ServiceName is the fully qualified gRPC service name, as used for health checks.
const ServiceName = serviceName

// TranslationServer is the server side of the streaming translation service.
type TranslationServer interface {
	StreamingTranslateSpeechToSpeech(stream grpc.ServerStream) error
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*TranslationServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName: methodName,
			Handler: func(srv any, stream grpc.ServerStream) error {
				return srv.(TranslationServer).StreamingTranslateSpeechToSpeech(stream)
			},
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "riva/proto/riva_nmt.proto",
}

// RegisterTranslationServer registers srv. The server must be created with
// grpc.ForceServerCodec(Codec()).
func RegisterTranslationServer(r grpc.ServiceRegistrar, srv TranslationServer) {
	r.RegisterService(&serviceDesc, srv)
}

// EchoServer is a loopback translation service: every audio chunk comes back as
// synthesized speech, unless the client disabled TTS output.
type EchoServer struct {
	logger zerolog.Logger

	mu      sync.Mutex
	configs []streamingConfig
}

// NewEchoServer creates a loopback server.
func NewEchoServer() *EchoServer {
	return &EchoServer{
		logger: log.With().Str("component", "echo-server").Logger(),
	}
}

// StreamingTranslateSpeechToSpeech handles one session.
func (s *EchoServer) StreamingTranslateSpeechToSpeech(stream grpc.ServerStream) error {
	var first streamingRequest
	if err := stream.RecvMsg(&first); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	if first.config == nil {
		return status.Error(codes.InvalidArgument, "first request must carry the streaming config")
	}
	cfg := *first.config
	if cfg.sampleRate <= 0 {
		return status.Error(codes.InvalidArgument, "sample rate must be positive")
	}

	s.mu.Lock()
	s.configs = append(s.configs, cfg)
	s.mu.Unlock()

	logger := s.logger.With().
		Str("sourceLanguage", cfg.sourceLanguage).
		Str("targetLanguage", cfg.targetLanguage).
		Int32("sampleRate", cfg.sampleRate).
		Logger()
	logger.Info().Msg("Session opened")

	var chunks, bytes int
	for {
		var req streamingRequest
		err := stream.RecvMsg(&req)
		if errors.Is(err, io.EOF) {
			logger.Info().Int("chunks", chunks).Int("bytes", bytes).Msg("Session finished")
			return nil
		}
		if err != nil {
			return err
		}
		if req.config != nil {
			return status.Error(codes.InvalidArgument, "streaming config may only be sent once")
		}

		chunks++
		bytes += len(req.audio)
		if cfg.ttsEncoding == encodingUnspecified {
			continue
		}
		if err := stream.SendMsg(&streamingResponse{audio: req.audio}); err != nil {
			return err
		}
	}
}

func (s *EchoServer) sessionConfigs() []streamingConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]streamingConfig{}, s.configs...)
}
