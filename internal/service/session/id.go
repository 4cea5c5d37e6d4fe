package session

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Generator hands out unit IDs scoped to one run.
type Generator struct {
	runId   string
	counter uint64
}

func NewGenerator() *Generator {
	return &Generator{runId: uuid.NewString()[:8]}
}

// RunId returns the short run prefix shared by every unit ID.
func (g *Generator) RunId() string {
	return g.runId
}

func (g *Generator) Next() string {
	n := atomic.AddUint64(&g.counter, 1)
	return fmt.Sprintf("%s-unit-%d", g.runId, n)
}

// NewSessionId returns a globally unique session ID.
func NewSessionId() string {
	return uuid.NewString()
}
