package session

import (
	"path/filepath"
	"strings"
	"time"

	"s2s-stream-client/internal/service/s2s"
)

// Unit is one session's worth of input: a file replayed for one iteration, or
// the live capture device.
type Unit struct {
	Index     int
	ID        string
	Path      string
	Device    string
	Iteration int
	Live      bool
}

// Name is a short human-readable label for logs and summaries.
func (u Unit) Name() string {
	if u.Live {
		return "mic:" + u.Device
	}
	return filepath.Base(u.Path)
}

// Outcome is the result of running one unit.
type Outcome struct {
	Unit      Unit
	SessionID string
	Backend   string
	State     State
	// Stage names the step that failed, empty on success.
	Stage string
	Err   error

	Elapsed    time.Duration
	ChunksSent int
	AudioSent  time.Duration

	// Results in arrival order. Audio payloads go to the TTS sink and are not retained.
	Results []s2s.Result

	TTSAudioFile  string
	TTSAudioBytes int

	// Interrupted is set when shutdown cut the input short.
	Interrupted bool
	// Skipped is set for units never started because shutdown was requested first.
	Skipped bool
}

// Success reports whether the unit ran to a clean close.
func (o Outcome) Success() bool {
	return !o.Skipped && o.Err == nil && o.State == StateClosed
}

// Transcript joins the final transcripts in arrival order.
func (o Outcome) Transcript() string {
	var finals []string
	for _, r := range o.Results {
		if r.Kind == s2s.ResultFinal && r.Text != "" {
			finals = append(finals, r.Text)
		}
	}
	return strings.Join(finals, " ")
}
