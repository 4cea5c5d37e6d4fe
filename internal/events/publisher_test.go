package events

import (
	"context"
	"errors"
	"testing"

	"s2s-stream-client/internal/models"
	"s2s-stream-client/internal/schema"
)

func TestNew_DisabledMode(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{"nil config", nil},
		{"disabled", &Config{Enabled: false, Brokers: []string{"localhost:9092"}}},
		{"no brokers", &Config{Enabled: true, Brokers: []string{}}},
		{"empty brokers", &Config{Enabled: true, Brokers: nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.cfg)
			if p == nil {
				t.Fatal("expected non-nil publisher")
			}
			if p.enabled {
				t.Error("expected publisher to be disabled")
			}
			if p.writerTranscript != nil {
				t.Error("expected nil transcript writer when disabled")
			}
			if p.writerOutcome != nil {
				t.Error("expected nil outcome writer when disabled")
			}
		})
	}
}

func TestNew_ConfigValues(t *testing.T) {
	cfg := &Config{
		Enabled:         false,
		Brokers:         []string{"localhost:9092"},
		TopicTranscript: "test.transcript",
		TopicOutcome:    "test.outcome",
		Principal:       "test-principal",
	}

	p := New(cfg)

	if p.principal != "test-principal" {
		t.Errorf("expected principal 'test-principal', got %s", p.principal)
	}
	if p.topicTranscript != "test.transcript" {
		t.Errorf("expected topic transcript 'test.transcript', got %s", p.topicTranscript)
	}
	if p.topicOutcome != "test.outcome" {
		t.Errorf("expected topic outcome 'test.outcome', got %s", p.topicOutcome)
	}
}

func TestNew_Enabled(t *testing.T) {
	p := New(&Config{
		Enabled:         true,
		Brokers:         []string{"localhost:9092"},
		TopicTranscript: "t",
		TopicOutcome:    "o",
	})
	defer p.Close()

	if !p.enabled {
		t.Error("expected publisher to be enabled")
	}
	if p.writerTranscript == nil || p.writerOutcome == nil {
		t.Fatal("expected both writers")
	}
	if p.writerTranscript.Topic != "t" || p.writerOutcome.Topic != "o" {
		t.Errorf("unexpected writer topics %q / %q", p.writerTranscript.Topic, p.writerOutcome.Topic)
	}
}

func TestPublisher_PublishTranscript_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicTranscript: "test.transcript"})

	err := p.PublishTranscript(context.Background(), models.TranscriptFinal{
		EventType:  models.EventTypeTranscriptFinal,
		UnitID:     "unit-0",
		SessionID:  "sess-1",
		Timestamp:  1700000000000,
		Text:       "Hallo Welt",
		Confidence: 0.9,
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_PublishOutcome_Disabled(t *testing.T) {
	p := New(&Config{Enabled: false, TopicOutcome: "test.outcome"})

	err := p.PublishOutcome(context.Background(), models.SessionOutcome{
		EventType: models.EventTypeSessionOutcome,
		UnitID:    "unit-0",
		SessionID: "sess-1",
		Timestamp: 1700000000000,
		State:     "CLOSED",
		Success:   true,
	})
	if err != nil {
		t.Errorf("expected no error when disabled, got %v", err)
	}
}

func TestPublisher_RejectsInvalidEvents(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.PublishTranscript(context.Background(), models.TranscriptFinal{Text: "missing ids"})
	var ve *schema.ValidationError
	if !errors.As(err, &ve) {
		t.Errorf("expected validation error for transcript, got %v", err)
	}

	err = p.PublishOutcome(context.Background(), models.SessionOutcome{EventType: models.EventTypeSessionOutcome})
	if !errors.As(err, &ve) {
		t.Errorf("expected validation error for outcome, got %v", err)
	}
}

func TestPublisher_Publish_InvalidJSON(t *testing.T) {
	p := New(&Config{Enabled: false})

	// Create an unmarshalable value (channel)
	err := p.publish(context.Background(), nil, "test", "transcript", "key", make(chan int))
	if err == nil {
		t.Error("expected error for unmarshalable event")
	}
}

func TestPublisher_Close_NoWriters(t *testing.T) {
	p := New(&Config{Enabled: false})

	err := p.Close()
	if err != nil {
		t.Errorf("expected no error closing disabled publisher, got %v", err)
	}
}
