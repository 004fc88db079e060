package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/guildbot/internal/action"
	"github.com/roach88/guildbot/internal/data"
)

// Metrics receives dispatch observations.
type Metrics interface {
	ObserveInvocation(action string, success bool, elapsed time.Duration)
	ObserveUnhandled(kind string)
}

// ResultHandler receives the result of every event processed by Run.
type ResultHandler func(ev action.Event, res action.Result)

// Dispatcher routes events to actions.
//
// Thread-safety model:
//   - Dispatch(): safe from any goroutine
//   - Enqueue(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
type Dispatcher struct {
	registry *action.Registry
	store    *data.Store
	platform action.Platform
	ids      IDGenerator
	queue    *eventQueue
	metrics  Metrics
	onResult ResultHandler
	log      *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithIDGenerator sets the invocation id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(d *Dispatcher) {
		d.ids = g
	}
}

// WithPlatform sets the client actions reply through.
func WithPlatform(p action.Platform) Option {
	return func(d *Dispatcher) {
		d.platform = p
	}
}

// WithMetrics records invocation outcomes.
func WithMetrics(m Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

// WithResultHandler receives results produced by the Run loop.
func WithResultHandler(h ResultHandler) Option {
	return func(d *Dispatcher) {
		d.onResult = h
	}
}

// WithLogger sets the logger passed to action callbacks.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		d.log = l
	}
}

// New creates a Dispatcher over a built registry and store.
func New(reg *action.Registry, s *data.Store, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		store:    s,
		ids:      UUIDv7Generator{},
		queue:    newEventQueue(),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.log == nil {
		d.log = slog.Default()
	}
	return d
}

// Dispatch resolves ev to an action and invokes it.
//
// It never panics and never returns an error: every event yields exactly one
// Result. An event without an id is assigned one.
func (d *Dispatcher) Dispatch(ctx context.Context, ev action.Event) action.Result {
	if ev.ID == "" {
		ev.ID = d.ids.Generate()
	}

	if ev.Bot {
		err := NewBotEventError(ev)
		d.log.Debug("ignoring bot event", "id", ev.ID, "name", ev.Name)
		return action.Result{ID: ev.ID, Unhandled: true, Reason: err.Error()}
	}

	if _, err := action.ParseKind(string(ev.Kind)); err != nil || ev.Key() == "" {
		derr := NewInvalidEventError(ev, "event needs a known kind and a name")
		d.log.Warn("invalid event", "id", ev.ID, "kind", ev.Kind, "name", ev.Name)
		d.observeUnhandled(ev.Kind)
		return action.Result{ID: ev.ID, Unhandled: true, Reason: derr.Error()}
	}

	a, ok := d.registry.Match(ev)
	if !ok {
		err := NewMissingActionError(ev)
		d.log.Warn("unhandled event", "id", ev.ID, "kind", ev.Kind, "name", ev.Name)
		d.observeUnhandled(ev.Kind)
		return action.Result{ID: ev.ID, Action: ev.ActionName(), Unhandled: true, Reason: err.Error()}
	}

	inv := &action.Invocation{
		ID:       ev.ID,
		Event:    ev,
		Store:    d.store,
		Platform: d.platform,
		Logger:   d.log,
	}
	start := time.Now()
	res := a.Invoke(ctx, inv)
	if d.metrics != nil {
		d.metrics.ObserveInvocation(a.Name(), res.Success, time.Since(start))
	}
	return res
}

func (d *Dispatcher) observeUnhandled(kind action.Kind) {
	if d.metrics != nil {
		d.metrics.ObserveUnhandled(string(kind))
	}
}

// Enqueue submits an event for the Run loop.
// Returns false if the dispatcher has been stopped.
func (d *Dispatcher) Enqueue(ev action.Event) bool {
	return d.queue.Enqueue(ev)
}

// Pending returns the number of queued events.
func (d *Dispatcher) Pending() int {
	return d.queue.Len()
}

// Run processes queued events one at a time until ctx is cancelled or Stop
// is called. Events still queued when Stop is called are drained first.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info("dispatcher starting", "actions", d.registry.Len())

	for {
		if ev, ok := d.queue.TryDequeue(); ok {
			res := d.Dispatch(ctx, ev)
			if d.onResult != nil {
				d.onResult(ev, res)
			}
			continue
		}

		select {
		case <-ctx.Done():
			d.log.Info("dispatcher stopping: context cancelled")
			d.queue.Close()
			return ctx.Err()

		case <-d.queue.Wait():
			// The signal channel closes with the queue, so this fires
			// immediately once stopped.
			if d.queue.Len() == 0 && d.stopped() {
				d.log.Info("dispatcher stopping: queue closed")
				return nil
			}
		}
	}
}

func (d *Dispatcher) stopped() bool {
	d.queue.mu.Lock()
	defer d.queue.mu.Unlock()
	return d.queue.closed
}

// Stop closes the queue. Run returns once the queue is drained.
func (d *Dispatcher) Stop() {
	d.queue.Close()
}
