// Package audio provides the chunked audio sources that feed streaming sessions.
package audio

import (
	"context"
	"fmt"
	"time"
)

// Format describes linear PCM audio.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Validate checks that the format is mono 16-bit linear PCM with a usable sample rate.
func (f Format) Validate() error {
	switch {
	case f.SampleRate <= 0:
		return fmt.Errorf("sample rate must be positive, got %d", f.SampleRate)
	case f.Channels != 1:
		return fmt.Errorf("unsupported channel count %d (only mono is supported)", f.Channels)
	case f.BitDepth != 16:
		return fmt.Errorf("unsupported bit depth %d (only 16-bit PCM is supported)", f.BitDepth)
	}
	return nil
}

// FrameBytes is the size of one sample across all channels.
func (f Format) FrameBytes() int {
	return f.Channels * f.BitDepth / 8
}

// ChunkBytes returns the byte size of a chunk of duration d, never less than one frame.
func (f Format) ChunkBytes(d time.Duration) int {
	frames := int(int64(f.SampleRate) * int64(d) / int64(time.Second))
	if frames < 1 {
		frames = 1
	}
	return frames * f.FrameBytes()
}

// Duration returns the playback duration of n bytes.
func (f Format) Duration(n int) time.Duration {
	fb := f.FrameBytes()
	if fb == 0 || f.SampleRate == 0 {
		return 0
	}
	frames := int64(n / fb)
	return time.Duration(frames * int64(time.Second) / int64(f.SampleRate))
}

// Chunk is one fixed-duration slice of 16-bit little-endian PCM.
// Seq starts at zero and increases by one per chunk within a source.
type Chunk struct {
	Seq      int
	Audio    []byte
	Duration time.Duration
}

// Source yields chunks until it returns io.EOF.
type Source interface {
	// Next returns the next chunk, or io.EOF when the stream is exhausted
	// or shutdown was requested before the chunk started.
	Next(ctx context.Context) (Chunk, error)

	// Format describes the audio carried by every chunk.
	Format() Format

	// Close releases files or devices held by the source.
	Close() error
}

// FormatError reports audio that cannot be streamed.
type FormatError struct {
	Path   string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("audio format error: %s: %s", e.Path, e.Reason)
}

// DeviceError reports a capture device that cannot be opened or read.
type DeviceError struct {
	Device string
	Err    error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("audio device %q: %v", e.Device, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}
