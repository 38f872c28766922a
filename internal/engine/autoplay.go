package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Autoplay drives periodic Advance calls for one engine. The ticker
// never fires an advance while the gating predicate holds (choice
// displayed, overlay open, load in flight) — Advance itself refuses —
// and the controller additionally stops ticking entirely while a choice
// awaits selection, restarting once the predicate clears.
type Autoplay struct {
	engine   *Engine
	log      *zap.Logger
	interval time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	gen     uint64
}

// NewAutoplay builds an autoplay controller for an engine.
func NewAutoplay(e *Engine, interval time.Duration, logger *zap.Logger) *Autoplay {
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Autoplay{
		engine:   e,
		log:      logger.Named("Autoplay"),
		interval: interval,
	}
}

// Start begins ticking. Idempotent. The context scopes the run: it must
// outlive individual requests (a session context, not a request
// context), and its cancellation stops ticking.
func (a *Autoplay) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.running {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.running = true
	a.gen++

	go a.run(ctx, a.gen)
	a.log.Debug("Autoplay started", zap.Duration("interval", a.interval))
}

// Stop halts ticking. Idempotent. Must be called before handing control
// to the player for a decision.
func (a *Autoplay) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.running {
		return
	}
	a.cancel()
	a.running = false
	a.log.Debug("Autoplay stopped")
}

// Running reports whether the controller is ticking.
func (a *Autoplay) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

func (a *Autoplay) run(ctx context.Context, gen uint64) {
	defer a.exitRun(gen)
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := a.engine.State()
			if st == StateAwaitingChoice {
				// Hand control to the player; the UI restarts autoplay
				// after the choice is consumed.
				return
			}
			if st == StateSettlement {
				return
			}
			if err := a.engine.Advance(ctx); err != nil {
				a.log.Debug("Auto-advance failed", zap.Error(err))
			}
		}
	}
}

// exitRun resets the running flag when the goroutine carrying gen
// exits. A newer run owns the flag by then and is left alone.
func (a *Autoplay) exitRun(gen uint64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.gen != gen || !a.running {
		return
	}
	a.cancel()
	a.running = false
	a.log.Debug("Autoplay stopped")
}
