// Package models defines the events published for translation sessions.
package models

// Event types carried in the eventType field.
const (
	EventTypeTranscriptFinal = "translation.transcript.final"
	EventTypeSessionOutcome  = "translation.session.outcome"
)

// TranscriptFinal is a final transcript delivered by a session.
type TranscriptFinal struct {
	EventType      string  `json:"eventType"`
	UnitID         string  `json:"unitId"`
	SessionID      string  `json:"sessionId"`
	Input          string  `json:"input"`
	Iteration      int     `json:"iteration"`
	Timestamp      int64   `json:"timestamp"`
	SourceLanguage string  `json:"sourceLanguage"`
	TargetLanguage string  `json:"targetLanguage"`
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
}

// SessionOutcome summarizes one finished session.
type SessionOutcome struct {
	EventType     string  `json:"eventType"`
	UnitID        string  `json:"unitId"`
	SessionID     string  `json:"sessionId"`
	Input         string  `json:"input"`
	Iteration     int     `json:"iteration"`
	Timestamp     int64   `json:"timestamp"`
	Backend       string  `json:"backend"`
	State         string  `json:"state"`
	Success       bool    `json:"success"`
	Interrupted   bool    `json:"interrupted"`
	ChunksSent    int     `json:"chunksSent"`
	AudioSeconds  float64 `json:"audioSeconds"`
	ElapsedMs     int64   `json:"elapsedMs"`
	Transcript    string  `json:"transcript,omitempty"`
	TTSAudioFile  string  `json:"ttsAudioFile,omitempty"`
	TTSAudioBytes int     `json:"ttsAudioBytes"`
	Error         string  `json:"error,omitempty"`
}
