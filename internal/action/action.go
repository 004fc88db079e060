package action

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/roach88/guildbot/internal/data"
)

// Func is an action callback. A non-nil error marks the invocation failed.
type Func func(ctx context.Context, inv *Invocation) error

// Invocation is everything a callback gets to work with.
type Invocation struct {
	ID       string
	Event    Event
	Store    *data.Store
	Data     json.RawMessage
	Platform Platform
	Logger   *slog.Logger
}

// Reply sends content back to the invoking user.
func (inv *Invocation) Reply(ctx context.Context, content string) error {
	return inv.send(ctx, Message{Content: content})
}

// ReplyPrivate sends content visible only to the invoking user.
func (inv *Invocation) ReplyPrivate(ctx context.Context, content string) error {
	return inv.send(ctx, Message{Content: content, Ephemeral: true})
}

func (inv *Invocation) send(ctx context.Context, msg Message) error {
	if inv.Platform == nil {
		inv.logger().Debug("reply dropped, no platform", "content", msg.Content)
		return nil
	}
	if err := inv.Platform.Reply(ctx, inv.Event, msg); err != nil {
		return fmt.Errorf("reply: %w", err)
	}
	return nil
}

// Roles returns the platform's role capability, if it has one.
func (inv *Invocation) Roles() (RoleManager, bool) {
	rm, ok := inv.Platform.(RoleManager)
	return rm, ok
}

// Channels returns the platform's channel capability, if it has one.
func (inv *Invocation) Channels() (ChannelManager, bool) {
	cm, ok := inv.Platform.(ChannelManager)
	return cm, ok
}

// Send delivers a fully built message.
func (inv *Invocation) Send(ctx context.Context, msg Message) error {
	return inv.send(ctx, msg)
}

func (inv *Invocation) logger() *slog.Logger {
	if inv.Logger != nil {
		return inv.Logger
	}
	return slog.Default()
}

// DataInto decodes the action's data blob into v. It reports false when the
// action has no data or the blob does not fit v.
func (inv *Invocation) DataInto(v any) bool {
	if len(inv.Data) == 0 {
		return false
	}
	return json.Unmarshal(inv.Data, v) == nil
}

// Result is the outcome of one invocation. Exactly one is produced per event.
type Result struct {
	ID        string `json:"id"`
	Action    string `json:"action,omitempty"`
	Success   bool   `json:"success"`
	Reason    string `json:"reason,omitempty"`
	Unhandled bool   `json:"unhandled,omitempty"`
}

// Action binds a name to its callback and optional data blob.
type Action struct {
	name string
	kind Kind
	key  string
	fn   Func

	mu   sync.RWMutex
	data json.RawMessage
}

func newAction(name string, fn Func) (*Action, error) {
	prefix, key, ok := strings.Cut(name, "/")
	if !ok || key == "" || strings.Contains(key, Delimiter) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	kind, err := ParseKind(prefix)
	if err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, fmt.Errorf("%w: %q has no callback", ErrInvalidName, name)
	}
	return &Action{name: name, kind: kind, key: key, fn: fn}, nil
}

func (a *Action) Name() string { return a.name }
func (a *Action) Kind() Kind   { return a.kind }
func (a *Action) Key() string  { return a.key }

// Data returns the action's data blob, or nil.
func (a *Action) Data() json.RawMessage {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.data
}

// SetData replaces the action's data blob.
func (a *Action) SetData(raw json.RawMessage) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.data = raw
}

// Invoke runs the callback and converts its outcome into a Result.
//
// inv.Data is filled from the action when the caller left it empty. One log
// line is written per call, carrying the invocation id.
func (a *Action) Invoke(ctx context.Context, inv *Invocation) (res Result) {
	if inv.Data == nil {
		inv.Data = a.Data()
	}
	log := inv.logger()
	res = Result{ID: inv.ID, Action: a.name}

	defer func() {
		if r := recover(); r != nil {
			res.Success = false
			res.Reason = fmt.Sprintf("panic: %v", r)
			log.Error("invoke", "id", inv.ID, "action", a.name, "success", false, "reason", res.Reason)
		}
	}()

	if err := a.fn(ctx, inv); err != nil {
		res.Reason = err.Error()
		log.Error("invoke", "id", inv.ID, "action", a.name, "success", false, "reason", res.Reason)
		return res
	}
	res.Success = true
	log.Info("invoke", "id", inv.ID, "action", a.name, "success", true)
	return res
}
