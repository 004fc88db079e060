package action

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/guildbot/internal/data"
)

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return slog.New(slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelInfo})), buf
}

func lines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimSpace(buf.String()), "\n")
}

func TestEvent_KeyAndArgs(t *testing.T) {
	ev := Event{Kind: KindButton, Name: "role-add;123;x"}
	assert.Equal(t, "role-add", ev.Key())
	assert.Equal(t, []string{"123", "x"}, ev.Args())
	assert.Equal(t, "123", ev.Arg(0))
	assert.Equal(t, "", ev.Arg(5))
	assert.Equal(t, "button/role-add", ev.ActionName())

	plain := Event{Kind: KindCommand, Name: "ping"}
	assert.Equal(t, "ping", plain.Key())
	assert.Nil(t, plain.Args())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("modal")
	require.NoError(t, err)
	assert.Equal(t, KindModal, k)

	_, err = ParseKind("select")
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	a, err := r.Register("command/ping", func(context.Context, *Invocation) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, KindCommand, a.Kind())
	assert.Equal(t, "ping", a.Key())
	assert.Equal(t, "command/ping", a.Name())

	got, ok := r.Lookup(KindCommand, "ping")
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = r.Lookup(KindButton, "ping")
	assert.False(t, ok, "kinds are separate namespaces")
}

func TestRegistry_DuplicateFails(t *testing.T) {
	r := NewRegistry()
	first := r.MustRegister("button/role-add", func(context.Context, *Invocation) error { return nil })

	_, err := r.Register("button/role-add", func(context.Context, *Invocation) error { return errors.New("second") })
	assert.ErrorIs(t, err, ErrDuplicateAction)

	got, _ := r.Lookup(KindButton, "role-add")
	assert.Same(t, first, got)
	assert.Equal(t, 1, r.Len())

	assert.Panics(t, func() {
		r.MustRegister("button/role-add", func(context.Context, *Invocation) error { return nil })
	})
}

func TestRegistry_InvalidNames(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, *Invocation) error { return nil }

	_, err := r.Register("ping", noop)
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = r.Register("command/", noop)
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = r.Register("button/a;b", noop)
	assert.ErrorIs(t, err, ErrInvalidName)
	_, err = r.Register("select/menu", noop)
	assert.ErrorIs(t, err, ErrUnknownKind)
	_, err = r.Register("command/nil", nil)
	assert.ErrorIs(t, err, ErrInvalidName)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_MatchUsesFirstSegment(t *testing.T) {
	r := NewRegistry()
	a := r.MustRegister("button/role-add", func(context.Context, *Invocation) error { return nil })

	got, ok := r.Match(Event{Kind: KindButton, Name: "role-add;42"})
	require.True(t, ok)
	assert.Same(t, a, got)

	_, ok = r.Match(Event{Kind: KindButton, Name: "role-remove;42"})
	assert.False(t, ok)
}

func TestRegistry_OfKindAndOrder(t *testing.T) {
	r := NewRegistry()
	noop := func(context.Context, *Invocation) error { return nil }
	r.MustRegister("command/zeta", noop)
	r.MustRegister("button/x", noop)
	r.MustRegister("command/alpha", noop)

	var keys []string
	for _, a := range r.OfKind(KindCommand) {
		keys = append(keys, a.Key())
	}
	assert.Equal(t, []string{"alpha", "zeta"}, keys)

	var names []string
	for _, a := range r.Actions() {
		names = append(names, a.Name())
	}
	assert.Equal(t, []string{"command/zeta", "button/x", "command/alpha"}, names)
}

func TestAction_InvokeSuccessLogsOnce(t *testing.T) {
	log, buf := bufferLogger()
	r := NewRegistry()
	a := r.MustRegister("command/ping", func(context.Context, *Invocation) error { return nil })

	res := a.Invoke(context.Background(), &Invocation{ID: "inv-1", Event: Event{Kind: KindCommand, Name: "ping"}, Logger: log})
	assert.Equal(t, Result{ID: "inv-1", Action: "command/ping", Success: true}, res)

	out := lines(buf)
	require.Len(t, out, 1)
	assert.Contains(t, out[0], "id=inv-1")
}

func TestAction_InvokeErrorBecomesResult(t *testing.T) {
	log, buf := bufferLogger()
	a, err := newAction("command/fail", func(context.Context, *Invocation) error {
		return errors.New("no such record")
	})
	require.NoError(t, err)

	res := a.Invoke(context.Background(), &Invocation{ID: "inv-2", Logger: log})
	assert.False(t, res.Success)
	assert.Equal(t, "no such record", res.Reason)
	assert.Len(t, lines(buf), 1)
	assert.Contains(t, buf.String(), "level=ERROR")
}

func TestAction_InvokeRecoversPanic(t *testing.T) {
	log, buf := bufferLogger()
	a, err := newAction("modal/boom", func(context.Context, *Invocation) error {
		panic("exploded")
	})
	require.NoError(t, err)

	res := a.Invoke(context.Background(), &Invocation{ID: "inv-3", Logger: log})
	assert.False(t, res.Success)
	assert.Equal(t, "panic: exploded", res.Reason)
	assert.Len(t, lines(buf), 1)
}

func TestAction_DataPassedToCallback(t *testing.T) {
	a, err := newAction("command/ping", func(_ context.Context, inv *Invocation) error {
		var cfg struct {
			Reply string `json:"reply"`
		}
		if !inv.DataInto(&cfg) {
			return errors.New("missing data")
		}
		if cfg.Reply != "pong" {
			return errors.New("wrong data")
		}
		return nil
	})
	require.NoError(t, err)
	a.SetData(json.RawMessage(`{"reply":"pong"}`))

	res := a.Invoke(context.Background(), &Invocation{ID: "x"})
	assert.True(t, res.Success, res.Reason)
}

func TestInvocation_Reply(t *testing.T) {
	var got []Message
	p := PlatformFunc(func(_ context.Context, ev Event, msg Message) error {
		assert.Equal(t, "ping", ev.Name)
		got = append(got, msg)
		return nil
	})
	inv := &Invocation{Event: Event{Name: "ping"}, Platform: p}
	require.NoError(t, inv.Reply(context.Background(), "pong"))
	require.NoError(t, inv.ReplyPrivate(context.Background(), "secret"))
	assert.Equal(t, []Message{{Content: "pong"}, {Content: "secret", Ephemeral: true}}, got)

	failing := &Invocation{Platform: PlatformFunc(func(context.Context, Event, Message) error {
		return errors.New("rate limited")
	})}
	assert.ErrorContains(t, failing.Reply(context.Background(), "x"), "rate limited")

	assert.NoError(t, (&Invocation{}).Reply(context.Background(), "nowhere"))
}

func TestRegistry_LoadData(t *testing.T) {
	ctx := context.Background()
	s := data.NewStore(data.NewMemoryBackend())
	require.True(t, data.Write(ctx, s, "command/ping", map[string]string{"reply": "pong"}).Result)

	r := NewRegistry()
	ping := r.MustRegister("command/ping", func(context.Context, *Invocation) error { return nil })
	other := r.MustRegister("command/other", func(context.Context, *Invocation) error { return nil })

	assert.Equal(t, 1, r.LoadData(ctx, s))
	assert.JSONEq(t, `{"reply":"pong"}`, string(ping.Data()))
	assert.Nil(t, other.Data())
}

func TestRegistry_ConcurrentLookup(t *testing.T) {
	r := NewRegistry()
	r.MustRegister("command/ping", func(context.Context, *Invocation) error { return nil })

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, ok := r.Lookup(KindCommand, "ping")
			assert.True(t, ok)
		}()
	}
	wg.Wait()
}
