// Package engine implements the single cooperative dispatch loop spec.md
// §5 mandates: the event bus, command dispatcher, trigger engine, and
// timer scheduler are all touched from exactly one goroutine. Network
// readers (one per client, one for the mud) and the timer ticker run on
// their own goroutines but only ever post a work item onto the Loop;
// nothing outside Run's own goroutine calls into those four subsystems
// directly (spec.md §5: "an I/O ready callback posts a work item; the
// main loop drains work items to completion before returning to I/O").
//
// Grounded on the teacher's runtime.Reconciler.Run ticker/select shape
// (internal/ruriko/runtime/reconciler.go), extended with a buffered work
// channel so submitters outside the loop's goroutine never touch shared
// state themselves.
package engine

import (
	"context"
	"log/slog"
)

// Loop is the sole goroutine permitted to mutate the event bus, command
// dispatcher, trigger engine, or timer scheduler.
type Loop struct {
	log  *slog.Logger
	work chan func()
}

// New creates a Loop with a work queue buffered against a burst of nearly
// simultaneous client lines arriving before the loop drains the previous
// one.
func New() *Loop {
	return &Loop{
		log:  slog.With("component", "engine"),
		work: make(chan func(), 256),
	}
}

// Post submits fn to run on the loop's goroutine. Safe to call from any
// goroutine; fn itself must never be invoked by the caller directly, and
// must not block (it runs to completion before the next posted item is
// picked up, per spec.md §5's "bus is re-entrant, not reconcurrent"
// guarantee).
func (l *Loop) Post(fn func()) {
	l.work <- fn
}

// Run drains posted work items one at a time until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.log.Info("starting")
	for {
		select {
		case <-ctx.Done():
			l.log.Info("stopping")
			return
		case fn := <-l.work:
			fn()
		}
	}
}
