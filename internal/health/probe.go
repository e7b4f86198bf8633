package health

import (
	"context"
	"sync"

	"github.com/keithlinneman/listwebserver/internal/xerrors"
)

// Probe is evaluated per request. nil means pass.
type Probe interface{ Check(context.Context) error }

// CheckFunc adapts a function into a Probe.
type CheckFunc func(context.Context) error

func (f CheckFunc) Check(ctx context.Context) error { return f(ctx) }

// Fixed always passes, or always fails with reason ("unhealthy" if empty).
func Fixed(ok bool, reason string) CheckFunc {
	if ok {
		return func(context.Context) error { return nil }
	}
	if reason == "" {
		reason = "unhealthy"
	}
	err := xerrors.New(reason)
	return func(context.Context) error { return err }
}

// All passes only when every non-nil probe passes and returns the first
// failure otherwise.
func All(ps ...Probe) CheckFunc {
	return func(ctx context.Context) error {
		for _, p := range ps {
			if p == nil {
				continue
			}
			if err := p.Check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

// ShutdownGate fails readiness while the server drains. The zero value is
// open.
type ShutdownGate struct {
	mu       sync.RWMutex
	draining bool
	reason   string
}

// Drain closes the gate. An empty reason reports as "draining".
func (g *ShutdownGate) Drain(reason string) {
	if reason == "" {
		reason = "draining"
	}
	g.mu.Lock()
	g.draining, g.reason = true, reason
	g.mu.Unlock()
}

// Resume reopens the gate.
func (g *ShutdownGate) Resume() {
	g.mu.Lock()
	g.draining, g.reason = false, ""
	g.mu.Unlock()
}

// Draining reports whether Drain has been called without a later Resume.
func (g *ShutdownGate) Draining() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.draining
}

func (g *ShutdownGate) Check(context.Context) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if !g.draining {
		return nil
	}
	return xerrors.New(g.reason)
}
