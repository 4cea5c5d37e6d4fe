// Package schema checks published events for required fields before they
// leave the process.
package schema

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"s2s-stream-client/internal/models"
)

// ValidationError describes the first field that failed validation.
type ValidationError struct {
	Event  string
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s event: %s %s", e.Event, e.Field, e.Reason)
}

type Validator struct{}

func New() *Validator {
	return &Validator{}
}

// Validate checks a known event type. Unknown types are rejected.
func (v *Validator) Validate(event any) error {
	var err error
	switch e := event.(type) {
	case models.TranscriptFinal:
		err = validateTranscript(&e)
	case *models.TranscriptFinal:
		err = validateTranscript(e)
	case models.SessionOutcome:
		err = validateOutcome(&e)
	case *models.SessionOutcome:
		err = validateOutcome(e)
	default:
		err = &ValidationError{Event: fmt.Sprintf("%T", event), Field: "type", Reason: "is not a known event"}
	}
	if err != nil {
		return err
	}

	log.Debug().Interface("event", event).Msg("Schema validated")
	return nil
}

func validateTranscript(e *models.TranscriptFinal) error {
	const name = "transcript"
	switch {
	case e.EventType != models.EventTypeTranscriptFinal:
		return &ValidationError{Event: name, Field: "eventType", Reason: fmt.Sprintf("must be %q", models.EventTypeTranscriptFinal)}
	case e.UnitID == "":
		return &ValidationError{Event: name, Field: "unitId", Reason: "is required"}
	case e.SessionID == "":
		return &ValidationError{Event: name, Field: "sessionId", Reason: "is required"}
	case e.Timestamp <= 0:
		return &ValidationError{Event: name, Field: "timestamp", Reason: "must be positive"}
	case e.Confidence < 0 || e.Confidence > 1:
		return &ValidationError{Event: name, Field: "confidence", Reason: "must be within [0, 1]"}
	}
	return nil
}

func validateOutcome(e *models.SessionOutcome) error {
	const name = "outcome"
	switch {
	case e.EventType != models.EventTypeSessionOutcome:
		return &ValidationError{Event: name, Field: "eventType", Reason: fmt.Sprintf("must be %q", models.EventTypeSessionOutcome)}
	case e.UnitID == "":
		return &ValidationError{Event: name, Field: "unitId", Reason: "is required"}
	case e.State == "":
		return &ValidationError{Event: name, Field: "state", Reason: "is required"}
	case e.Timestamp <= 0:
		return &ValidationError{Event: name, Field: "timestamp", Reason: "must be positive"}
	case e.ChunksSent < 0:
		return &ValidationError{Event: name, Field: "chunksSent", Reason: "must not be negative"}
	case !e.Success && e.Error == "" && !e.Interrupted:
		return &ValidationError{Event: name, Field: "error", Reason: "is required for a failed session"}
	}
	return nil
}
