package engine

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// actionGate is the single explicit lock serializing advance() and
// selectChoice(). It replaces scattered boolean flags: acquire fails
// instead of blocking, and the caller treats a failed acquire as a
// silent no-op.
type actionGate struct {
	held atomic.Bool
}

// TryAcquire takes the gate if it is free.
func (g *actionGate) TryAcquire() bool {
	return g.held.CompareAndSwap(false, true)
}

// Release frees the gate.
func (g *actionGate) Release() {
	g.held.Store(false)
}

// Held reports whether an action is mid-flight.
func (g *actionGate) Held() bool {
	return g.held.Load()
}

// keyedGate prevents duplicate asynchronous operations per key, e.g.
// duplicate generation triggers for the same "workID:chapterIndex".
type keyedGate struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyedGate() *keyedGate {
	return &keyedGate{held: make(map[string]struct{})}
}

// GenerationKey builds the lock key for a chapter or ending generation
// request.
func GenerationKey(workID string, kind string, index int) string {
	return fmt.Sprintf("%s:%s:%d", workID, kind, index)
}

// TryAcquire takes the key if no operation holds it.
func (g *keyedGate) TryAcquire(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.held[key]; busy {
		return false
	}
	g.held[key] = struct{}{}
	return true
}

// Release frees the key.
func (g *keyedGate) Release(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
}
