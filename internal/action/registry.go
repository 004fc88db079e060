package action

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/roach88/guildbot/internal/data"
)

// Registry is the dispatch table: kind -> key -> Action.
// It is built at startup and read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	table map[Kind]map[string]*Action
	order []*Action
}

func NewRegistry() *Registry {
	table := make(map[Kind]map[string]*Action, len(Kinds))
	for _, k := range Kinds {
		table[k] = make(map[string]*Action)
	}
	return &Registry{table: table}
}

// Register adds a new action named "<kind>/<key>". A name collision fails
// with ErrDuplicateAction and leaves the first registration in place.
func (r *Registry) Register(name string, fn Func) (*Action, error) {
	a, err := newAction(name, fn)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.table[a.kind][a.key]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateAction, name)
	}
	slog.Debug("registering action", "name", name)
	r.table[a.kind][a.key] = a
	r.order = append(r.order, a)
	return a, nil
}

// MustRegister is Register that panics on error. Meant for static wiring.
func (r *Registry) MustRegister(name string, fn Func) *Action {
	a, err := r.Register(name, fn)
	if err != nil {
		panic(fmt.Sprintf("register action: %v", err))
	}
	return a
}

// Lookup finds the action for kind and key.
func (r *Registry) Lookup(kind Kind, key string) (*Action, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.table[kind][key]
	return a, ok
}

// Match finds the action an event resolves to.
func (r *Registry) Match(ev Event) (*Action, bool) {
	return r.Lookup(ev.Kind, ev.Key())
}

// OfKind returns the actions of one kind ordered by key.
func (r *Registry) OfKind(kind Kind) []*Action {
	r.mu.RLock()
	out := make([]*Action, 0, len(r.table[kind]))
	for _, a := range r.table[kind] {
		out = append(out, a)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// Actions returns every action in registration order.
func (r *Registry) Actions() []*Action {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Action, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// LoadData reads each action's data blob from the document named after the
// action ("command/ping" and so on). Actions without a document keep no
// data. Returns the number of actions that received data.
func (r *Registry) LoadData(ctx context.Context, s *data.Store) int {
	loaded := 0
	for _, a := range r.Actions() {
		raw, ok := data.Read[json.RawMessage](ctx, s, a.name)
		if !ok {
			slog.Debug("no action data", "action", a.name)
			continue
		}
		a.SetData(raw)
		loaded++
		slog.Debug("loaded action data", "action", a.name, "bytes", len(raw))
	}
	return loaded
}
