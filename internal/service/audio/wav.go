package audio

import (
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// wavFormatPCM is the WAVE format tag for uncompressed integer PCM.
const wavFormatPCM = 1

// LoadWAV decodes a WAV file into 16-bit little-endian PCM bytes.
func LoadWAV(path string) (Format, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return Format{}, nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return Format{}, nil, &FormatError{Path: path, Reason: "not a valid PCM WAV file"}
	}

	format := Format{
		SampleRate: int(d.SampleRate),
		Channels:   int(d.NumChans),
		BitDepth:   int(d.BitDepth),
	}
	if d.WavAudioFormat != wavFormatPCM {
		return Format{}, nil, &FormatError{
			Path:   path,
			Reason: fmt.Sprintf("compressed WAV (format tag %d) is not supported", d.WavAudioFormat),
		}
	}
	if err := format.Validate(); err != nil {
		return Format{}, nil, &FormatError{Path: path, Reason: err.Error()}
	}

	buf, err := d.FullPCMBuffer()
	if err != nil {
		return Format{}, nil, &FormatError{Path: path, Reason: fmt.Sprintf("read samples: %v", err)}
	}

	pcm := make([]byte, len(buf.Data)*2)
	for i, s := range buf.Data {
		binary.LittleEndian.PutUint16(pcm[i*2:], uint16(int16(s)))
	}
	return format, pcm, nil
}
