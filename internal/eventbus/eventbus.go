// Package eventbus is the intra-process publish/subscribe layer: explicit
// phase registrations (BEFORE_COMMIT, AFTER_COMMIT) drained by a
// transaction-scoped Collector the orchestrator passes down the call chain
// rather than relying on thread-local magic (spec §9).
package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Phase is when a handler runs relative to the producing transaction.
type Phase int

const (
	// BeforeCommit handlers run inline inside the producer's transaction;
	// a handler error rolls the transaction back.
	BeforeCommit Phase = iota
	// AfterCommit handlers run once the transaction has committed and may
	// be dispatched to the worker pool.
	AfterCommit
)

// Event is anything published on the bus; Type is the dispatch key.
type Event struct {
	Type string
	Data any
}

// Handler processes one event; BeforeCommit handlers returning an error
// abort the enclosing transaction.
type Handler func(ctx context.Context, ev Event) error

// Bus is a registry of handlers keyed by (phase, event type).
type Bus struct {
	mu       sync.RWMutex
	handlers map[Phase]map[string][]Handler
	pool     *workerPool
	log      zerolog.Logger
}

func New(log zerolog.Logger, asyncWorkers int) *Bus {
	return &Bus{
		handlers: map[Phase]map[string][]Handler{
			BeforeCommit: {},
			AfterCommit:  {},
		},
		pool: newWorkerPool(asyncWorkers),
		log:  log,
	}
}

// Subscribe registers h to run for events of eventType in the given phase.
func (b *Bus) Subscribe(phase Phase, eventType string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[phase][eventType] = append(b.handlers[phase][eventType], h)
}

// Collector accumulates events raised during a single transaction and is
// passed explicitly through the call chain (never stored in a
// context.Context value or thread-local) so the orchestrator controls
// exactly when each phase drains.
type Collector struct {
	bus    *Bus
	events []Event
}

func (b *Bus) NewCollector() *Collector {
	return &Collector{bus: b}
}

// Raise records an event to be dispatched when the collector is drained.
func (c *Collector) Raise(ev Event) {
	c.events = append(c.events, ev)
}

// DrainBeforeCommit runs BEFORE_COMMIT handlers inline; the first error
// aborts and is returned so the caller rolls back its transaction.
func (c *Collector) DrainBeforeCommit(ctx context.Context) error {
	for _, ev := range c.events {
		for _, h := range c.bus.handlers[BeforeCommit][ev.Type] {
			if err := h(ctx, ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// DrainAfterCommit dispatches AFTER_COMMIT handlers to the worker pool.
// Handlers must not assume success of sibling handlers; each runs as its
// own task on a pool worker, with panics recovered and errors logged
// (spec §4.3).
func (c *Collector) DrainAfterCommit(ctx context.Context) {
	for _, ev := range c.events {
		for _, h := range c.bus.handlers[AfterCommit][ev.Type] {
			h, ev := h, ev
			c.bus.pool.submit(func() {
				defer func() {
					if r := recover(); r != nil {
						c.bus.log.Error().Interface("panic", r).Str("event_type", ev.Type).Msg("after-commit handler panicked")
					}
				}()
				if err := h(ctx, ev); err != nil {
					c.bus.log.Error().Err(err).Str("event_type", ev.Type).Msg("after-commit handler failed")
				}
			})
		}
	}
}

// workerPool is a fixed-size pool; handlers carry no shared mutable state
// so submission order across handlers is unspecified (spec §4.3: sized to
// CPU*2 by default).
type workerPool struct {
	tasks chan func()
}

func newWorkerPool(workers int) *workerPool {
	if workers < 1 {
		workers = 1
	}
	p := &workerPool{tasks: make(chan func(), 1024)}
	for i := 0; i < workers; i++ {
		go func() {
			for task := range p.tasks {
				task()
			}
		}()
	}
	return p
}

func (p *workerPool) submit(task func()) {
	p.tasks <- task
}
