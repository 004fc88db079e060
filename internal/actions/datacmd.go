package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roach88/guildbot/internal/action"
	"github.com/roach88/guildbot/internal/data"
)

const notStored = `{"error":"Data not stored!"}`

// dataCommand lets the owner inspect the store: view <id>, dump, clear.
func (b *builtins) dataCommand(ctx context.Context, inv *action.Invocation) error {
	if err := b.requireOwner(ctx, inv); err != nil {
		return err
	}

	switch sub := inv.Event.Option("subcommand"); sub {
	case "view":
		id, err := requireOption(ctx, inv, "id")
		if err != nil {
			return err
		}
		raw, ok := data.Read[json.RawMessage](ctx, inv.Store, id)
		if !ok {
			return inv.ReplyPrivate(ctx, codeBlock(notStored))
		}
		pretty, err := json.MarshalIndent(raw, "", "\t")
		if err != nil {
			return fmt.Errorf("format %s: %w", id, err)
		}
		return inv.ReplyPrivate(ctx, codeBlock(string(pretty)))

	case "dump":
		ids := inv.Store.CachedIDs()
		if len(ids) == 0 {
			return inv.ReplyPrivate(ctx, "Cache is empty.")
		}
		return inv.ReplyPrivate(ctx, codeBlock(strings.Join(ids, "\n")))

	case "clear":
		inv.Store.ClearCache()
		return inv.ReplyPrivate(ctx, "Cache cleared.")

	default:
		return fail(ctx, inv, fmt.Errorf("%w: %q", ErrUnknownSubcommand, sub))
	}
}

func codeBlock(s string) string {
	return "```json\n" + s + "\n```"
}
