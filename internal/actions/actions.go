package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/guildbot/internal/action"
)

var (
	ErrNotOwner          = errors.New("only the bot owner can do that")
	ErrUnknownSubcommand = errors.New("unknown subcommand")
	ErrMissingOption     = errors.New("missing option")
	ErrSaveFailed        = errors.New("could not save, try again")
	ErrNoRoleManager     = errors.New("platform cannot manage roles")
	ErrNoChannelManager  = errors.New("platform cannot manage channels")
)

// Deps carries what the built-ins need beyond an invocation.
type Deps struct {
	// OwnerID is the user allowed to run owner-only commands. Empty means
	// nobody is.
	OwnerID string

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

type builtins struct {
	deps Deps
}

// Register adds every built-in action to reg.
func Register(reg *action.Registry, deps Deps) error {
	b := &builtins{deps: deps}
	table := []struct {
		name string
		fn   action.Func
	}{
		{"command/ping", b.ping},
		{"command/data", b.dataCommand},
		{"command/role", b.role},
		{"button/role-add", b.roleToggle},
		{"command/mail", b.mail},
		{"button/mail-new", b.mailNew},
		{"button/mail-close", b.mailClose},
		{"button/mail-info", b.mailInfo},
	}
	for _, e := range table {
		if _, err := reg.Register(e.name, e.fn); err != nil {
			return fmt.Errorf("register built-ins: %w", err)
		}
	}
	return nil
}

// fail tells the user what went wrong and returns err so the invocation is
// recorded as failed.
func fail(ctx context.Context, inv *action.Invocation, err error) error {
	if rerr := inv.ReplyPrivate(ctx, err.Error()); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

func (b *builtins) requireOwner(ctx context.Context, inv *action.Invocation) error {
	if b.deps.OwnerID == "" || inv.Event.UserID != b.deps.OwnerID {
		return fail(ctx, inv, ErrNotOwner)
	}
	return nil
}

func requireOption(ctx context.Context, inv *action.Invocation, name string) (string, error) {
	v := inv.Event.Option(name)
	if v == "" {
		return "", fail(ctx, inv, fmt.Errorf("%w: %s", ErrMissingOption, name))
	}
	return v, nil
}
