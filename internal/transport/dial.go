// Package transport builds the gRPC channel shared by every session.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"s2s-stream-client/internal/observability"
	"s2s-stream-client/internal/observability/metrics"
)

// Config holds channel settings.
type Config struct {
	URI            string
	UseSSL         bool
	SSLCert        string
	Metadata       string
	ConnectTimeout time.Duration
}

// SetupError is returned when the channel cannot be built or connected.
type SetupError struct {
	Target string
	Err    error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("transport setup for %s: %v", e.Target, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}

// ParseMetadata parses "key1,value1,key2,value2" into key/value pairs.
func ParseMetadata(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	if len(parts)%2 != 0 {
		return nil, fmt.Errorf("metadata %q must be key,value pairs", s)
	}
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
		if i%2 == 0 && parts[i] == "" {
			return nil, fmt.Errorf("metadata %q has an empty key", s)
		}
	}
	return parts, nil
}

// Credentials selects channel security: a root bundle implies TLS, use_ssl
// uses the system roots, otherwise plaintext.
func Credentials(cfg Config) (credentials.TransportCredentials, error) {
	switch {
	case cfg.SSLCert != "":
		return credentials.NewClientTLSFromFile(cfg.SSLCert, "")
	case cfg.UseSSL:
		return credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12}), nil
	default:
		return insecure.NewCredentials(), nil
	}
}

// Dial creates the channel and blocks until it is ready or ConnectTimeout
// elapses. Extra options are appended after the defaults.
func Dial(ctx context.Context, cfg Config, m *metrics.Metrics, extra ...grpc.DialOption) (*grpc.ClientConn, error) {
	fail := func(err error) error { return &SetupError{Target: cfg.URI, Err: err} }

	if cfg.URI == "" {
		return nil, fail(errors.New("empty server address"))
	}
	creds, err := Credentials(cfg)
	if err != nil {
		return nil, fail(err)
	}
	md, err := ParseMetadata(cfg.Metadata)
	if err != nil {
		return nil, fail(err)
	}

	opts := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithChainStreamInterceptor(
			metadataInterceptor(md),
			observability.StreamClientInterceptor(m),
		),
	}
	opts = append(opts, extra...)

	conn, err := grpc.NewClient(cfg.URI, opts...)
	if err != nil {
		return nil, fail(err)
	}

	if err := waitReady(ctx, conn, cfg.ConnectTimeout); err != nil {
		conn.Close()
		return nil, fail(err)
	}

	log.Info().
		Str("target", cfg.URI).
		Bool("tls", cfg.UseSSL || cfg.SSLCert != "").
		Int("metadataPairs", len(md)/2).
		Msg("Channel ready")
	return conn, nil
}

func waitReady(ctx context.Context, conn *grpc.ClientConn, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	conn.Connect()
	for {
		state := conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.Shutdown:
			return errors.New("channel shut down")
		}
		if !conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("not ready after %v (last state %s): %w", timeout, state, ctx.Err())
		}
	}
}

func metadataInterceptor(md []string) grpc.StreamClientInterceptor {
	return func(
		ctx context.Context,
		desc *grpc.StreamDesc,
		cc *grpc.ClientConn,
		method string,
		streamer grpc.Streamer,
		opts ...grpc.CallOption,
	) (grpc.ClientStream, error) {
		if len(md) > 0 {
			ctx = metadata.AppendToOutgoingContext(ctx, md...)
		}
		return streamer(ctx, desc, cc, method, opts...)
	}
}
