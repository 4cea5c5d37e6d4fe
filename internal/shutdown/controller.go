// Package shutdown implements the two-stage interrupt handling used by the client:
// the first interrupt asks every session to drain, the second exits the process.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Token is the read side of the shutdown state. Sources and drivers check it
// at chunk boundaries.
type Token interface {
	// Requested reports whether a graceful shutdown has been requested.
	Requested() bool
	// Done is closed when a graceful shutdown is requested.
	Done() <-chan struct{}
}

// Controller owns the process-wide shutdown flag.
type Controller struct {
	requested  atomic.Bool
	interrupts atomic.Int32
	done       chan struct{}
	once       sync.Once

	sig      chan os.Signal
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	exit     func(code int)
	logger zerolog.Logger
}

// New creates a controller. exit is called on the second interrupt; nil means os.Exit.
func New(exit func(code int)) *Controller {
	if exit == nil {
		exit = os.Exit
	}
	return &Controller{
		done:   make(chan struct{}),
		exit:   exit,
		logger: log.With().Str("component", "shutdown").Logger(),
	}
}

// Listen installs the SIGINT/SIGTERM handler. The listening goroutine exits on Stop.
func (c *Controller) Listen() {
	c.sig = make(chan os.Signal, 2)
	c.stop = make(chan struct{})
	c.stopped = make(chan struct{})
	signal.Notify(c.sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer close(c.stopped)
		for {
			select {
			case <-c.sig:
				c.Interrupt()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop removes the signal handler and waits for the listener to exit.
func (c *Controller) Stop() {
	if c.sig == nil {
		return
	}
	c.stopOnce.Do(func() {
		signal.Stop(c.sig)
		close(c.stop)
		<-c.stopped
	})
}

// Interrupt handles one interrupt. The first raises the flag and returns; any later
// one terminates the process without further cleanup.
func (c *Controller) Interrupt() {
	if c.interrupts.Add(1) > 1 {
		c.logger.Warn().Msg("Force exit")
		c.exit(1)
		return
	}
	c.logger.Info().Msg("Stopping capture, draining active sessions (interrupt again to force exit)")
	c.Request()
}

// Request raises the flag without counting as an interrupt.
func (c *Controller) Request() {
	c.once.Do(func() {
		c.requested.Store(true)
		close(c.done)
	})
}

// Requested reports whether a graceful shutdown has been requested.
func (c *Controller) Requested() bool {
	return c.requested.Load()
}

// Done is closed once shutdown is requested.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}
