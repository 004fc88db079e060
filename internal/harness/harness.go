package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/guildbot/internal/action"
	"github.com/roach88/guildbot/internal/actions"
	"github.com/roach88/guildbot/internal/data"
	"github.com/roach88/guildbot/internal/engine"
	"github.com/roach88/guildbot/internal/testutil"
)

// Harness is the scenario execution engine.
// It runs scenarios with a frozen clock and a fixed invocation id.
type Harness struct {
	store      *data.Store
	dispatcher *engine.Dispatcher
	guild      *testutil.FakeGuild
	clock      *testutil.FakeClock
	logger     *slog.Logger
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory store, fake guild and clock
// 2. Register built-in actions
// 3. Write seed documents and load command data
// 4. Execute steps, checking expect clauses
// 5. Evaluate assertions
func Run(scenario *Scenario) (*Result, error) {
	backend, err := data.OpenSQLite(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	st := data.NewStore(backend)
	defer st.Close()

	start := DefaultClock
	if scenario.Clock != "" {
		start = scenario.Clock
	}
	startAt, err := time.Parse(time.RFC3339, start)
	if err != nil {
		return nil, fmt.Errorf("parse clock: %w", err)
	}
	clock := testutil.NewFakeClock(startAt)

	owner := scenario.OwnerID
	if owner == "" {
		owner = DefaultOwner
	}

	reg := action.NewRegistry()
	if err := actions.Register(reg, actions.Deps{OwnerID: owner, Now: clock.Now}); err != nil {
		return nil, err
	}

	// Suppress logs in tests
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guild := testutil.NewFakeGuild()
	h := &Harness{
		store: st,
		dispatcher: engine.New(reg, st,
			engine.WithPlatform(guild),
			engine.WithIDGenerator(testutil.NewFixedIDGenerator("scenario")),
			engine.WithLogger(logger),
		),
		guild:  guild,
		clock:  clock,
		logger: logger,
	}

	ctx := context.Background()
	for i, doc := range scenario.Seed {
		if !data.Write(ctx, st, doc.ID, doc.Value).Result {
			return nil, fmt.Errorf("seed[%d]: failed to write %s", i, doc.ID)
		}
	}
	reg.LoadData(ctx, st)

	result := NewResult()
	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("failed to execute steps: %w", err)
		}
	}

	for _, msg := range EvaluateAssertions(ctx, result, scenario.Assertions, st) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeStep(ctx context.Context, index int, step Step, result *Result) error {
	if step.Advance != "" {
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("step %d: %w", index, err)
		}
		h.clock.Advance(d)
	}

	switch {
	case step.Event != nil:
		h.executeEvent(ctx, index, step, result)
	case step.Post != nil:
		p := step.Post
		h.guild.Post(p.Guild, p.Channel, p.User, p.Content, h.clock.Now())
		result.add(TraceEvent{Type: TracePost, Args: map[string]string{"channel": p.Channel, "user": p.User}, Content: p.Content})
	case step.Sweep:
		closed, err := actions.SweepIdle(ctx, h.store, h.guild, h.clock.Now())
		ev := TraceEvent{Type: TraceSweep, Closed: &closed}
		if err != nil {
			ev.Reason = err.Error()
		}
		result.add(ev)
		if step.Expect != nil && step.Expect.Closed != nil && *step.Expect.Closed != closed {
			result.AddError(fmt.Sprintf("steps[%d]: expected sweep to close %d tickets, closed %d",
				index, *step.Expect.Closed, closed))
		}
	}
	return nil
}

func (h *Harness) executeEvent(ctx context.Context, index int, step Step, result *Result) {
	es := step.Event
	ev := action.Event{
		Kind:      action.Kind(es.Kind),
		Name:      es.Name,
		GuildID:   es.Guild,
		ChannelID: es.Channel,
		UserID:    es.User,
		Bot:       es.Bot,
		Options:   es.Options,
	}
	result.add(TraceEvent{Type: TraceEventDispatched, Action: ev.ActionName(), Args: es.Options})

	before := len(h.guild.Replies())
	res := h.dispatcher.Dispatch(ctx, ev)
	replies := h.guild.Replies()[before:]

	for _, r := range replies {
		te := TraceEvent{Type: TraceReply, Content: r.Message.Content, Private: r.Message.Ephemeral}
		for _, b := range r.Message.Buttons {
			te.Buttons = append(te.Buttons, b.CustomID)
		}
		result.add(te)
	}

	success := res.Success
	result.add(TraceEvent{
		Type:      TraceResult,
		Action:    res.Action,
		Success:   &success,
		Unhandled: res.Unhandled,
		Reason:    res.Reason,
	})

	h.logger.Info("step completed", "step", index, "action", ev.ActionName(), "success", res.Success)

	exp := step.Expect
	if exp == nil {
		return
	}
	if exp.Success != nil && *exp.Success != res.Success {
		result.AddError(fmt.Sprintf("steps[%d]: %s expected success=%v, got %v (%s)",
			index, ev.ActionName(), *exp.Success, res.Success, res.Reason))
	}
	if exp.Unhandled != res.Unhandled {
		result.AddError(fmt.Sprintf("steps[%d]: %s expected unhandled=%v, got %v",
			index, ev.ActionName(), exp.Unhandled, res.Unhandled))
	}
	if exp.Reason != "" && !strings.Contains(res.Reason, exp.Reason) {
		result.AddError(fmt.Sprintf("steps[%d]: %s expected reason containing %q, got %q",
			index, ev.ActionName(), exp.Reason, res.Reason))
	}
	if exp.Reply != "" {
		last := ""
		if len(replies) > 0 {
			last = replies[len(replies)-1].Message.Content
		}
		if last != exp.Reply {
			result.AddError(fmt.Sprintf("steps[%d]: %s expected reply %q, got %q",
				index, ev.ActionName(), exp.Reply, last))
		}
	}
}
