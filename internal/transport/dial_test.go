package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"

	"s2s-stream-client/internal/observability/metrics"
	"s2s-stream-client/internal/service/audio"
	"s2s-stream-client/internal/service/s2s"
	"s2s-stream-client/internal/service/s2s/riva"
)

func TestParseMetadata(t *testing.T) {
	tests := []struct {
		in      string
		want    []string
		wantErr bool
	}{
		{"", nil, false},
		{"  ", nil, false},
		{"function-id,abc", []string{"function-id", "abc"}, false},
		{"a, 1 ,b,2", []string{"a", "1", "b", "2"}, false},
		{"a,1,b", nil, true},
		{",1", nil, true},
	}

	for _, tt := range tests {
		got, err := ParseMetadata(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseMetadata(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if len(got) != len(tt.want) {
			t.Errorf("ParseMetadata(%q) = %v, want %v", tt.in, got, tt.want)
			continue
		}
		for i := range got {
			if got[i] != tt.want[i] {
				t.Errorf("ParseMetadata(%q)[%d] = %q, want %q", tt.in, i, got[i], tt.want[i])
			}
		}
	}
}

func TestCredentials(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		protocol string
		wantErr  bool
	}{
		{"plaintext", Config{}, "insecure", false},
		{"system roots", Config{UseSSL: true}, "tls", false},
		{"missing bundle", Config{SSLCert: "/nonexistent/ca.pem"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds, err := Credentials(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Credentials() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && creds.Info().SecurityProtocol != tt.protocol {
				t.Errorf("expected %s, got %s", tt.protocol, creds.Info().SecurityProtocol)
			}
		})
	}
}

func TestDial_Errors(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"empty address", Config{}},
		{"bad metadata", Config{URI: "localhost:1", Metadata: "k"}},
		{"bad cert", Config{URI: "localhost:1", SSLCert: "/nonexistent/ca.pem"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Dial(context.Background(), tt.cfg, metrics.DefaultMetrics)
			var se *SetupError
			if !errors.As(err, &se) {
				t.Errorf("expected SetupError, got %v", err)
			}
		})
	}
}

func TestDial_UnreachableTimesOut(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := lis.Addr().String()
	lis.Close()

	start := time.Now()
	_, err = Dial(context.Background(), Config{URI: addr, ConnectTimeout: 200 * time.Millisecond}, metrics.DefaultMetrics)

	var se *SetupError
	if !errors.As(err, &se) {
		t.Fatalf("expected SetupError, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("dial took %v, expected to honour the connect timeout", elapsed)
	}
}

type metadataServer struct {
	mu sync.Mutex
	md metadata.MD
}

func (s *metadataServer) StreamingTranslateSpeechToSpeech(stream grpc.ServerStream) error {
	md, _ := metadata.FromIncomingContext(stream.Context())
	s.mu.Lock()
	s.md = md
	s.mu.Unlock()

	// Read until the client half-closes; message bodies are not inspected.
	for {
		if err := stream.RecvMsg(&emptypb.Empty{}); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

func TestDial_AttachesMetadata(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := &metadataServer{}
	server := grpc.NewServer(grpc.ForceServerCodec(riva.Codec()))
	riva.RegisterTranslationServer(server, srv)
	go func() {
		_ = server.Serve(lis)
	}()
	defer server.Stop()

	conn, err := Dial(context.Background(), Config{
		URI:            "passthrough:///bufnet",
		Metadata:       "function-id,abc-123,tenant,acme",
		ConnectTimeout: 2 * time.Second,
	}, metrics.DefaultMetrics, grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	sess, err := riva.NewDialer(conn).Open(context.Background(), s2s.Config{
		SourceLanguage: "en-US",
		TargetLanguage: "de-DE",
	}, s2s.Input{Format: audioFormat()})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	sess.Finish()
	for {
		if _, err := sess.Recv(); err != nil {
			break
		}
	}
	sess.Close()

	srv.mu.Lock()
	defer srv.mu.Unlock()
	if got := srv.md.Get("function-id"); len(got) != 1 || got[0] != "abc-123" {
		t.Errorf("function-id metadata = %v", got)
	}
	if got := srv.md.Get("tenant"); len(got) != 1 || got[0] != "acme" {
		t.Errorf("tenant metadata = %v", got)
	}
}

func audioFormat() audio.Format {
	return audio.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
}
