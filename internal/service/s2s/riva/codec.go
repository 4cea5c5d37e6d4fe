package riva

import (
	"fmt"
	"math"

	"google.golang.org/grpc/encoding"
	"google.golang.org/protobuf/encoding/protowire"
	"google.golang.org/protobuf/proto"
)

const (
	serviceName = "nvidia.riva.nmt.RivaTranslation"
	methodName  = "StreamingTranslateSpeechToSpeech"
	fullMethod  = "/" + serviceName + "/" + methodName
)

// AudioEncoding values of riva_audio.proto.
const (
	encodingUnspecified = 0
	encodingLinearPCM   = 1
	encodingOggOpus     = 4
)

// streamingRequest is StreamingTranslateSpeechToSpeechRequest: exactly one of
// config (field 1) or audio_content (field 2).
type streamingRequest struct {
	config *streamingConfig
	audio  []byte
}

// streamingConfig flattens StreamingTranslateSpeechToSpeechConfig:
// asr_config (1), tts_config (2), translation_config (3).
type streamingConfig struct {
	// asr_config.config (RecognitionConfig)
	sampleRate      int32
	channelCount    int32
	languageCode    string
	profanityFilter bool
	punctuation     bool
	verbatim        bool
	boostedWords    []string
	boostScore      float32
	// asr_config.interim_results
	interimResults bool

	// tts_config (SynthesizeSpeechConfig)
	ttsEncoding   int32
	ttsSampleRate int32
	voiceName     string
	ttsLanguage   string

	// translation_config
	sourceLanguage string
	targetLanguage string
}

// streamingResponse is StreamingTranslateSpeechToSpeechResponse; only speech.audio is kept.
type streamingResponse struct {
	audio []byte
}

type message interface {
	marshal() []byte
	unmarshal(b []byte) error
}

// Codec returns the gRPC codec for the translation stream. Messages it does not
// own are delegated to the protobuf runtime so the same server can also host
// health and reflection services.
func Codec() encoding.Codec {
	return wireCodec{}
}

type wireCodec struct{}

func (wireCodec) Name() string { return "proto" }

func (wireCodec) Marshal(v any) ([]byte, error) {
	switch m := v.(type) {
	case message:
		return m.marshal(), nil
	case proto.Message:
		return proto.Marshal(m)
	default:
		return nil, fmt.Errorf("riva codec: cannot marshal %T", v)
	}
}

func (wireCodec) Unmarshal(data []byte, v any) error {
	switch m := v.(type) {
	case message:
		return m.unmarshal(data)
	case proto.Message:
		return proto.Unmarshal(data, m)
	default:
		return fmt.Errorf("riva codec: cannot unmarshal into %T", v)
	}
}

func (r *streamingRequest) marshal() []byte {
	var b []byte
	if r.config != nil {
		b = appendMessage(b, 1, r.config.marshal())
	}
	if r.audio != nil {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendBytes(b, r.audio)
	}
	return b
}

func (r *streamingRequest) unmarshal(b []byte) error {
	*r = streamingRequest{}
	return walk(b, func(num protowire.Number, v field) error {
		switch num {
		case 1:
			r.config = &streamingConfig{}
			return r.config.unmarshal(v.bytes)
		case 2:
			r.audio = append([]byte{}, v.bytes...)
		}
		return nil
	})
}

func (c *streamingConfig) marshal() []byte {
	var rc []byte
	rc = appendVarint(rc, 1, encodingLinearPCM)
	rc = appendVarint(rc, 2, uint64(c.sampleRate))
	rc = appendString(rc, 3, c.languageCode)
	rc = appendVarint(rc, 4, 1)
	rc = appendBool(rc, 5, c.profanityFilter)
	if len(c.boostedWords) > 0 {
		var sc []byte
		for _, w := range c.boostedWords {
			sc = appendString(sc, 1, w)
		}
		sc = protowire.AppendTag(sc, 4, protowire.Fixed32Type)
		sc = protowire.AppendFixed32(sc, math.Float32bits(c.boostScore))
		rc = appendMessage(rc, 6, sc)
	}
	rc = appendVarint(rc, 7, uint64(c.channelCount))
	rc = appendBool(rc, 11, c.punctuation)
	rc = appendBool(rc, 14, c.verbatim)

	var asr []byte
	asr = appendMessage(asr, 1, rc)
	asr = appendBool(asr, 2, c.interimResults)

	var tts []byte
	tts = appendVarint(tts, 1, uint64(c.ttsEncoding))
	tts = appendVarint(tts, 2, uint64(c.ttsSampleRate))
	tts = appendString(tts, 3, c.voiceName)
	tts = appendString(tts, 4, c.ttsLanguage)

	var tr []byte
	tr = appendString(tr, 1, c.sourceLanguage)
	tr = appendString(tr, 2, c.targetLanguage)

	var b []byte
	b = appendMessage(b, 1, asr)
	b = appendMessage(b, 2, tts)
	b = appendMessage(b, 3, tr)
	return b
}

func (c *streamingConfig) unmarshal(b []byte) error {
	return walk(b, func(num protowire.Number, v field) error {
		switch num {
		case 1:
			return walk(v.bytes, func(num protowire.Number, v field) error {
				switch num {
				case 1:
					return c.unmarshalRecognition(v.bytes)
				case 2:
					c.interimResults = protowire.DecodeBool(v.varint)
				}
				return nil
			})
		case 2:
			return walk(v.bytes, func(num protowire.Number, v field) error {
				switch num {
				case 1:
					c.ttsEncoding = int32(v.varint)
				case 2:
					c.ttsSampleRate = int32(v.varint)
				case 3:
					c.voiceName = string(v.bytes)
				case 4:
					c.ttsLanguage = string(v.bytes)
				}
				return nil
			})
		case 3:
			return walk(v.bytes, func(num protowire.Number, v field) error {
				switch num {
				case 1:
					c.sourceLanguage = string(v.bytes)
				case 2:
					c.targetLanguage = string(v.bytes)
				}
				return nil
			})
		}
		return nil
	})
}

func (c *streamingConfig) unmarshalRecognition(b []byte) error {
	return walk(b, func(num protowire.Number, v field) error {
		switch num {
		case 2:
			c.sampleRate = int32(v.varint)
		case 3:
			c.languageCode = string(v.bytes)
		case 5:
			c.profanityFilter = protowire.DecodeBool(v.varint)
		case 6:
			return walk(v.bytes, func(num protowire.Number, v field) error {
				switch num {
				case 1:
					c.boostedWords = append(c.boostedWords, string(v.bytes))
				case 4:
					c.boostScore = math.Float32frombits(v.fixed32)
				}
				return nil
			})
		case 7:
			c.channelCount = int32(v.varint)
		case 11:
			c.punctuation = protowire.DecodeBool(v.varint)
		case 14:
			c.verbatim = protowire.DecodeBool(v.varint)
		}
		return nil
	})
}

func (r *streamingResponse) marshal() []byte {
	var speech []byte
	speech = protowire.AppendTag(speech, 1, protowire.BytesType)
	speech = protowire.AppendBytes(speech, r.audio)
	return appendMessage(nil, 1, speech)
}

func (r *streamingResponse) unmarshal(b []byte) error {
	*r = streamingResponse{}
	return walk(b, func(num protowire.Number, v field) error {
		if num != 1 {
			return nil
		}
		return walk(v.bytes, func(num protowire.Number, v field) error {
			if num == 1 {
				r.audio = append(r.audio, v.bytes...)
			}
			return nil
		})
	})
}

// field holds one decoded value; which member is set depends on the wire type.
type field struct {
	varint  uint64
	fixed32 uint32
	bytes   []byte
}

// walk calls fn for every known-typed field in b; groups and fixed64 are skipped.
func walk(b []byte, fn func(protowire.Number, field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		var f field
		switch typ {
		case protowire.VarintType:
			f.varint, n = protowire.ConsumeVarint(b)
		case protowire.Fixed32Type:
			f.fixed32, n = protowire.ConsumeFixed32(b)
		case protowire.BytesType:
			f.bytes, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			continue
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := fn(num, f); err != nil {
			return err
		}
	}
	return nil
}

func appendMessage(b []byte, num protowire.Number, m []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	return appendVarint(b, num, protowire.EncodeBool(v))
}
