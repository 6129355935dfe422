package workflow

import (
	"context"
	"sync"
)

// Gate admits at most one running workflow instance per user key. A second
// acquisition for the same key queues FIFO behind the first; different keys
// proceed in parallel. This is a single slot per user, not a global semaphore.
type Gate struct {
	mu    sync.Mutex
	slots map[string]*gateSlot
}

type gateSlot struct {
	busy    bool
	waiters []chan struct{}
}

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{
		slots: make(map[string]*gateSlot),
	}
}

// Acquire blocks until the slot for key is free or ctx is done. Callers must
// Release with the same key after the workflow reaches a terminal state.
func (g *Gate) Acquire(ctx context.Context, key string) error {
	g.mu.Lock()
	s, ok := g.slots[key]
	if !ok {
		s = &gateSlot{}
		g.slots[key] = s
	}

	if !s.busy {
		s.busy = true
		g.mu.Unlock()
		return nil
	}

	ready := make(chan struct{})
	s.waiters = append(s.waiters, ready)
	g.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		g.mu.Lock()
		defer g.mu.Unlock()
		select {
		case <-ready:
			// Release granted the slot between ctx.Done and the lock; pass
			// it on rather than leaking it.
			g.releaseLocked(key)
			return ctx.Err()
		default:
		}
		for i, w := range s.waiters {
			if w == ready {
				s.waiters = append(s.waiters[:i], s.waiters[i+1:]...)
				break
			}
		}
		return ctx.Err()
	}
}

// Release frees the slot for key, handing it to the oldest waiter if any.
func (g *Gate) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.releaseLocked(key)
}

func (g *Gate) releaseLocked(key string) {
	s, ok := g.slots[key]
	if !ok {
		return
	}
	if len(s.waiters) > 0 {
		next := s.waiters[0]
		s.waiters = s.waiters[1:]
		close(next)
		return
	}
	delete(g.slots, key)
}
