// Package coordinator fans input units across a bounded pool of session drivers.
package coordinator

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"s2s-stream-client/internal/observability/logging"
	"s2s-stream-client/internal/service/session"
	"s2s-stream-client/internal/shutdown"
)

// Runner executes one unit. session.Driver satisfies it.
type Runner interface {
	Run(ctx context.Context, u session.Unit) session.Outcome
}

// Coordinator runs units with at most Parallelism active at once.
type Coordinator struct {
	runner      Runner
	parallelism int
	token       shutdown.Token
}

// New creates a coordinator. Parallelism below one is treated as one.
func New(runner Runner, parallelism int, token shutdown.Token) *Coordinator {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Coordinator{runner: runner, parallelism: parallelism, token: token}
}

// Report aggregates the outcomes of a run, indexed like the input units.
type Report struct {
	Outcomes []session.Outcome
	Elapsed  time.Duration
}

// Success is true when every executed unit succeeded. Skipped units do not count.
func (r Report) Success() bool {
	for _, o := range r.Outcomes {
		if !o.Skipped && !o.Success() {
			return false
		}
	}
	return true
}

// Counts returns the number of succeeded, failed and skipped units.
func (r Report) Counts() (succeeded, failed, skipped int) {
	for _, o := range r.Outcomes {
		switch {
		case o.Skipped:
			skipped++
		case o.Success():
			succeeded++
		default:
			failed++
		}
	}
	return
}

// AudioProcessed is the total duration of audio sent across all sessions.
func (r Report) AudioProcessed() time.Duration {
	var total time.Duration
	for _, o := range r.Outcomes {
		total += o.AudioSent
	}
	return total
}

// Run schedules units in order, each onto the next free slot, and waits for
// all started units to finish. Once shutdown is requested no further unit is
// started and the remainder are reported as skipped.
func (c *Coordinator) Run(ctx context.Context, units []session.Unit) Report {
	start := time.Now()
	log := logging.WithComponent("coordinator")
	outcomes := make([]session.Outcome, len(units))

	log.Info().
		Int("units", len(units)).
		Int("parallelism", c.parallelism).
		Msg("Starting sessions")

	var g errgroup.Group
	g.SetLimit(c.parallelism)

	for i, u := range units {
		if c.shutdownRequested() {
			outcomes[i] = skipped(u)
			continue
		}
		// Blocks until a slot frees up.
		g.Go(func() error {
			if c.shutdownRequested() {
				outcomes[i] = skipped(u)
				return nil
			}
			outcomes[i] = c.runner.Run(ctx, u)
			return nil
		})
	}
	g.Wait()

	report := Report{Outcomes: outcomes, Elapsed: time.Since(start)}
	succeeded, failed, skippedN := report.Counts()
	log.Info().
		Int("succeeded", succeeded).
		Int("failed", failed).
		Int("skipped", skippedN).
		Dur("elapsed", report.Elapsed).
		Msg("All sessions finished")
	return report
}

func (c *Coordinator) shutdownRequested() bool {
	return c.token != nil && c.token.Requested()
}

func skipped(u session.Unit) session.Outcome {
	return session.Outcome{Unit: u, Skipped: true, State: session.StateIdle}
}
