// Command s2sserver is a loopback speech-to-speech server for local runs of
// s2sclient: every audio chunk it receives comes back as synthesized speech.
package main

import (
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"s2s-stream-client/internal/observability/logging"
	"s2s-stream-client/internal/service/s2s/riva"
)

func main() {
	var listen, logLevel, logFormat string

	cmd := &cobra.Command{
		Use:           "s2sserver",
		Short:         "Loopback streaming speech-to-speech translation server",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logging.Init(logging.Config{Level: logLevel, Format: logFormat})
			return serve(listen)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", ":50051", "Address to listen on")
	cmd.Flags().StringVar(&logLevel, "log_level", "info", "Log level: debug, info, warn, error")
	cmd.Flags().StringVar(&logFormat, "log_format", "console", "Log format: json or console")

	if err := cmd.Execute(); err != nil {
		log.Error().Err(err).Msg("s2sserver failed")
		os.Exit(1)
	}
}

func serve(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	server := grpc.NewServer(grpc.ForceServerCodec(riva.Codec()))

	// Register gRPC health check service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(server, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(riva.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	riva.RegisterTranslationServer(server, riva.NewEchoServer())

	// Enable gRPC reflection for debugging tools like grpcurl
	reflection.Register(server)

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", lis.Addr().String()).Msg("Loopback translation server started")
		errCh <- server.Serve(lis)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errCh:
		return err
	case <-sig:
	}

	log.Info().Msg("Shutting down gRPC server")
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	server.GracefulStop()
	return nil
}
