package worker

import (
	"context"
	"sync"
)

// PauseGate blocks callers while paused and releases them all on Resume.
// Workers call Wait at every suspension point; Wait also returns promptly
// if ctx is cancelled so a paused job can still be cancelled.
type PauseGate struct {
	mu     sync.Mutex
	paused bool
	ch     chan struct{}
}

// NewPauseGate creates a gate that starts open (not paused).
func NewPauseGate() *PauseGate {
	ch := make(chan struct{})
	close(ch)
	return &PauseGate{ch: ch}
}

// Pause closes the gate; every future Wait call blocks until Resume.
func (g *PauseGate) Pause() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.paused {
		return
	}
	g.paused = true
	g.ch = make(chan struct{})
}

// Resume opens the gate, releasing every blocked Wait call.
func (g *PauseGate) Resume() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.paused {
		return
	}
	g.paused = false
	close(g.ch)
}

// Wait blocks while the gate is paused, or returns early if ctx is done.
func (g *PauseGate) Wait(ctx context.Context) error {
	g.mu.Lock()
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
