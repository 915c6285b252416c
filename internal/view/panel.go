package view

import (
	"context"
	"sync"
)

// panel tracks the in-flight render of one dashboard panel. A new render
// cancels the previous one, and only the most recently issued render may
// commit its output.
type panel struct {
	name   string
	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
}

// begin starts a render and returns its context and sequence number. The
// returned done func must be called when the render finishes.
func (p *panel) begin(parent context.Context) (context.Context, uint64, func()) {
	ctx, cancel := context.WithCancel(parent)

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.seq++
	seq := p.seq
	p.cancel = cancel
	p.mu.Unlock()

	return ctx, seq, func() {
		p.mu.Lock()
		if p.seq == seq {
			p.cancel = nil
		}
		p.mu.Unlock()
		cancel()
	}
}

// commit runs apply only if seq is still the latest render. The check and
// the apply happen under the panel lock, so a stale render can never
// overwrite a newer one.
func (p *panel) commit(seq uint64, apply func()) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.seq != seq {
		return false
	}
	apply()
	return true
}

// current reports whether seq is still the latest render.
func (p *panel) current(seq uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.seq == seq
}
