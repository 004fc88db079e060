package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/guildbot/internal/action"
	"github.com/roach88/guildbot/internal/actions"
	"github.com/roach88/guildbot/internal/engine"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Options []string // key=value pairs
	User    string
	Guild   string
	Channel string
	Owner   string
}

// InvokeResult is the output of the invoke command.
type InvokeResult struct {
	Result  action.Result    `json:"result"`
	Replies []action.Message `json:"replies"`
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <kind>/<name>",
		Short: "Dispatch a single event against the store",
		Long: `Dispatch one event to the built-in actions and print the result.

The name may carry a payload after ";" the way component custom ids do.

Example:
  guildbot invoke command/ping
  guildbot invoke command/data --user 42 --owner 42 -o subcommand=view -o id=bot/config
  guildbot invoke "button/role-add;123" --guild 1 --user 42`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeAction(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Options, "option", "o", nil, "event option as key=value (repeatable)")
	cmd.Flags().StringVar(&opts.User, "user", "", "invoking user id")
	cmd.Flags().StringVar(&opts.Guild, "guild", "", "guild id")
	cmd.Flags().StringVar(&opts.Channel, "channel", "", "channel id")
	cmd.Flags().StringVar(&opts.Owner, "owner", "", "owner user id (env "+EnvOwner+", then bot/config)")

	return cmd
}

func invokeAction(opts *InvokeOptions, name string, cmd *cobra.Command) error {
	ev, err := parseEvent(name, opts)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid event", err)
	}

	st, err := openStore(opts.RootOptions)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := commandContext(cmd)
	cfg := actions.LoadBotConfig(ctx, st)
	reg := action.NewRegistry()
	if err := actions.Register(reg, actions.Deps{OwnerID: resolveOwner(opts.Owner, cfg)}); err != nil {
		return WrapExitError(ExitCommandError, "failed to register actions", err)
	}
	reg.LoadData(ctx, st)

	replies := &collectingPlatform{}
	d := engine.New(reg, st, engine.WithPlatform(replies))
	res := d.Dispatch(ctx, ev)

	f := formatter(cmd, opts.RootOptions)
	out := InvokeResult{Result: res, Replies: replies.messages}
	if opts.Format == "json" {
		if err := f.Success(out); err != nil {
			return err
		}
	} else {
		printInvokeText(f, out)
	}

	if !res.Success {
		return NewExitError(ExitFailure, fmt.Sprintf("%s failed: %s", ev.ActionName(), res.Reason))
	}
	return nil
}

func parseEvent(name string, opts *InvokeOptions) (action.Event, error) {
	kind, rest, ok := strings.Cut(name, "/")
	if !ok || rest == "" {
		return action.Event{}, fmt.Errorf("%w: %q (want <kind>/<name>)", action.ErrInvalidName, name)
	}
	k, err := action.ParseKind(kind)
	if err != nil {
		return action.Event{}, err
	}

	ev := action.Event{
		Kind:      k,
		Name:      rest,
		GuildID:   opts.Guild,
		ChannelID: opts.Channel,
		UserID:    opts.User,
	}
	for _, kv := range opts.Options {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return action.Event{}, fmt.Errorf("option %q must be key=value", kv)
		}
		if ev.Options == nil {
			ev.Options = make(map[string]string)
		}
		ev.Options[key] = value
	}
	return ev, nil
}

func printInvokeText(f *OutputFormatter, out InvokeResult) {
	for _, m := range out.Replies {
		prefix := ""
		if m.Ephemeral {
			prefix = "(private) "
		}
		fmt.Fprintf(f.Writer, "%s%s\n", prefix, m.Content)
		for _, b := range m.Buttons {
			fmt.Fprintf(f.Writer, "  [%s %s] %s\n", b.Emoji, b.Label, b.CustomID)
		}
	}
	res := out.Result
	if res.Success {
		fmt.Fprintf(f.Writer, "✓ %s (%s)\n", res.Action, res.ID)
		return
	}
	fmt.Fprintf(f.Writer, "✗ %s (%s): %s\n", res.Action, res.ID, res.Reason)
	f.VerboseLog("unhandled=%v", res.Unhandled)
}
