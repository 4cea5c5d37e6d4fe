package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"s2s-stream-client/internal/observability/metrics"
	"s2s-stream-client/internal/shutdown"
)

var errStopped = errors.New("shutdown requested")

// FileOptions controls how files are replayed.
type FileOptions struct {
	ChunkDuration    time.Duration
	Iterations       int
	SimulateRealtime bool
	Token            shutdown.Token
}

// FileSource replays one or more WAV files as a single chunk stream.
type FileSource struct {
	paths  []string
	clips  [][]byte
	format Format
	opts   FileOptions

	chunkBytes int
	pacer      *Pacer

	iter    int
	fileIdx int
	offset  int
	seq     int
}

// NewFileSource decodes every file up front. All files must share one format.
func NewFileSource(paths []string, opts FileOptions) (*FileSource, error) {
	if len(paths) == 0 {
		return nil, errors.New("no audio files given")
	}
	if opts.Iterations < 1 {
		opts.Iterations = 1
	}
	if opts.ChunkDuration <= 0 {
		return nil, fmt.Errorf("chunk duration must be positive, got %v", opts.ChunkDuration)
	}

	s := &FileSource{paths: paths, opts: opts}
	for i, p := range paths {
		format, pcm, err := LoadWAV(p)
		if err != nil {
			return nil, err
		}
		if i > 0 && format != s.format {
			return nil, &FormatError{
				Path:   p,
				Reason: fmt.Sprintf("format %+v differs from %s (%+v)", format, paths[0], s.format),
			}
		}
		s.format = format
		s.clips = append(s.clips, pcm)
	}

	s.chunkBytes = s.format.ChunkBytes(opts.ChunkDuration)
	if opts.SimulateRealtime {
		s.pacer = NewPacer(opts.ChunkDuration)
	}
	return s, nil
}

// Format returns the format shared by all files.
func (s *FileSource) Format() Format {
	return s.format
}

// Next returns the next chunk in file order, then iteration order.
func (s *FileSource) Next(ctx context.Context) (Chunk, error) {
	if s.stopRequested() {
		return Chunk{}, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return Chunk{}, err
	}

	for s.iter < s.opts.Iterations {
		for s.fileIdx < len(s.clips) {
			clip := s.clips[s.fileIdx]
			if s.offset >= len(clip) {
				s.fileIdx++
				s.offset = 0
				continue
			}

			end := s.offset + s.chunkBytes
			if end > len(clip) {
				end = len(clip)
			}
			chunk := Chunk{
				Seq:      s.seq,
				Audio:    clip[s.offset:end],
				Duration: s.format.Duration(end - s.offset),
			}

			if s.pacer != nil {
				lag, err := s.pacer.Wait(ctx, chunk.Seq, s.stop())
				if errors.Is(err, errStopped) {
					return Chunk{}, io.EOF
				}
				if err != nil {
					return Chunk{}, err
				}
				metrics.DefaultMetrics.RecordPacingLag(lag.Seconds())
			}

			s.offset = end
			s.seq++
			return chunk, nil
		}
		s.iter++
		s.fileIdx = 0
		s.offset = 0
	}
	return Chunk{}, io.EOF
}

// Close is a no-op; files are fully read at construction.
func (s *FileSource) Close() error {
	return nil
}

func (s *FileSource) stopRequested() bool {
	return s.opts.Token != nil && s.opts.Token.Requested()
}

func (s *FileSource) stop() <-chan struct{} {
	if s.opts.Token == nil {
		return nil
	}
	return s.opts.Token.Done()
}

// ListInputs expands path into the files to stream. A directory yields its regular
// files in lexical order; a file yields itself.
func ListInputs(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("audio input: %w", err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read audio directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		files = append(files, filepath.Join(path, e.Name()))
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("audio directory %s contains no files", path)
	}
	return files, nil
}
