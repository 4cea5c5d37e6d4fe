// Package microphone captures live audio through PortAudio.
package microphone

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/gordonklaus/portaudio"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"s2s-stream-client/internal/service/audio"
	"s2s-stream-client/internal/shutdown"
)

// DefaultSampleRate is the capture rate used when none is configured.
const DefaultSampleRate = 16000

// Options controls device capture.
type Options struct {
	ChunkDuration time.Duration
	SampleRate    int
	Token         shutdown.Token
}

// Source reads mono 16-bit frames from a capture device, one chunk per read.
type Source struct {
	device string
	stream *portaudio.Stream
	buf    []int16
	format audio.Format
	token  shutdown.Token
	seq    int
	logger zerolog.Logger
}

// Open initialises PortAudio and starts capturing from device. The name may be
// "default", a device index, or a (sub)string of the device name.
func Open(device string, opts Options) (*Source, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultSampleRate
	}
	format := audio.Format{SampleRate: opts.SampleRate, Channels: 1, BitDepth: 16}
	frames := format.ChunkBytes(opts.ChunkDuration) / format.FrameBytes()

	if err := portaudio.Initialize(); err != nil {
		return nil, &audio.DeviceError{Device: device, Err: fmt.Errorf("initialize portaudio: %w", err)}
	}

	info, err := lookup(device)
	if err != nil {
		portaudio.Terminate()
		return nil, &audio.DeviceError{Device: device, Err: err}
	}

	params := portaudio.LowLatencyParameters(info, nil)
	params.Input.Channels = 1
	params.Output.Channels = 0
	params.SampleRate = float64(opts.SampleRate)
	params.FramesPerBuffer = frames

	buf := make([]int16, frames)
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, &audio.DeviceError{Device: device, Err: fmt.Errorf("open stream: %w", err)}
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, &audio.DeviceError{Device: device, Err: fmt.Errorf("start stream: %w", err)}
	}

	logger := log.With().
		Str("component", "microphone").
		Str("device", info.Name).
		Int("sampleRate", opts.SampleRate).
		Logger()
	logger.Info().Int("framesPerChunk", frames).Msg("Capture started")

	return &Source{
		device: device,
		stream: stream,
		buf:    buf,
		format: format,
		token:  opts.Token,
		logger: logger,
	}, nil
}

// Format returns the capture format.
func (s *Source) Format() audio.Format {
	return s.format
}

// Next blocks until one chunk of audio has been captured. Shutdown is checked
// before each capture starts.
func (s *Source) Next(ctx context.Context) (audio.Chunk, error) {
	if s.token != nil && s.token.Requested() {
		return audio.Chunk{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return audio.Chunk{}, err
	}

	if err := s.stream.Read(); err != nil {
		if !errors.Is(err, portaudio.InputOverflowed) {
			return audio.Chunk{}, &audio.DeviceError{Device: s.device, Err: err}
		}
		s.logger.Warn().Int("seq", s.seq).Msg("Input overflowed, samples were dropped")
	}

	pcm := make([]byte, len(s.buf)*2)
	for i, v := range s.buf {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(v))
	}
	chunk := audio.Chunk{Seq: s.seq, Audio: pcm, Duration: s.format.Duration(len(pcm))}
	s.seq++
	return chunk, nil
}

// Close stops the stream and terminates PortAudio.
func (s *Source) Close() error {
	var err error
	if e := s.stream.Stop(); e != nil {
		err = e
	}
	if e := s.stream.Close(); e != nil && err == nil {
		err = e
	}
	if e := portaudio.Terminate(); e != nil && err == nil {
		err = e
	}
	s.logger.Info().Int("chunks", s.seq).Msg("Capture stopped")
	return err
}

func lookup(name string) (*portaudio.DeviceInfo, error) {
	if name == "" || name == "default" {
		return portaudio.DefaultInputDevice()
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if idx, err := strconv.Atoi(name); err == nil {
		if idx < 0 || idx >= len(devices) {
			return nil, fmt.Errorf("device index %d out of range (%d devices)", idx, len(devices))
		}
		return devices[idx], nil
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && d.Name == name {
			return d, nil
		}
	}
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(d.Name, name) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input device matches %q", name)
}
