package audio

import (
	"context"
	"time"
)

// Pacer releases chunk N no earlier than start + N*interval.
//
// Deadlines are absolute offsets from the first Wait call and are compared on the
// monotonic clock, so a slow consumer makes later chunks due immediately instead
// of pushing every following deadline back.
type Pacer struct {
	interval time.Duration
	start    time.Time
	started  bool
	now      func() time.Time
}

// NewPacer creates a pacer for chunks of the given duration.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval, now: time.Now}
}

// Deadline returns the earliest delivery time of chunk seq. It starts the
// stream clock if needed.
func (p *Pacer) Deadline(seq int) time.Time {
	if !p.started {
		p.start = p.now()
		p.started = true
	}
	return p.start.Add(time.Duration(seq) * p.interval)
}

// Wait blocks until chunk seq is due. It returns how late the chunk is relative
// to its deadline, or ctx.Err() / errStopped if the wait was cut short.
func (p *Pacer) Wait(ctx context.Context, seq int, stop <-chan struct{}) (time.Duration, error) {
	deadline := p.Deadline(seq)
	wait := deadline.Sub(p.now())
	if wait <= 0 {
		return -wait, nil
	}

	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return 0, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	case <-stop:
		return 0, errStopped
	}
}
