package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/guildbot/internal/action"
	"github.com/roach88/guildbot/internal/data"
)

var (
	ErrRoleListed    = errors.New("that role is already in the draft")
	ErrRoleNotListed = errors.New("that role is not in the draft")
	ErrEmptyDraft    = errors.New("no roles drafted")
	ErrBadButton     = errors.New("button has no role attached")
)

// RoleOption is one button in a role selector draft.
type RoleOption struct {
	RoleID string `json:"role_id"`
	Emoji  string `json:"emoji,omitempty"`
	Label  string `json:"label,omitempty"`
}

// RoleDraftID is where a member's draft for a guild is stored.
func RoleDraftID(guildID, userID string) string {
	return "role/" + guildID + "_" + userID
}

// role manages the invoking member's selector draft: add, remove, list, post.
func (b *builtins) role(ctx context.Context, inv *action.Invocation) error {
	ev := inv.Event
	id := RoleDraftID(ev.GuildID, ev.UserID)
	draft, _ := data.Read[[]RoleOption](ctx, inv.Store, id)

	switch sub := ev.Option("subcommand"); sub {
	case "add":
		roleID, err := requireOption(ctx, inv, "role")
		if err != nil {
			return err
		}
		for _, r := range draft {
			if r.RoleID == roleID {
				return fail(ctx, inv, ErrRoleListed)
			}
		}
		draft = append(draft, RoleOption{RoleID: roleID, Emoji: ev.Option("emoji"), Label: ev.Option("label")})
		if !data.Write(ctx, inv.Store, id, draft).Result {
			return fail(ctx, inv, ErrSaveFailed)
		}
		return inv.ReplyPrivate(ctx, fmt.Sprintf("Added <@&%s> to the draft.", roleID))

	case "remove":
		roleID, err := requireOption(ctx, inv, "role")
		if err != nil {
			return err
		}
		kept := make([]RoleOption, 0, len(draft))
		for _, r := range draft {
			if r.RoleID != roleID {
				kept = append(kept, r)
			}
		}
		if len(kept) == len(draft) {
			return fail(ctx, inv, ErrRoleNotListed)
		}
		if !data.Write(ctx, inv.Store, id, kept).Result {
			return fail(ctx, inv, ErrSaveFailed)
		}
		return inv.ReplyPrivate(ctx, fmt.Sprintf("Removed <@&%s> from the draft.", roleID))

	case "list":
		if len(draft) == 0 {
			return inv.ReplyPrivate(ctx, ErrEmptyDraft.Error())
		}
		lines := make([]string, len(draft))
		for i, r := range draft {
			lines[i] = strings.TrimSpace(fmt.Sprintf("%s %s (<@&%s>)", r.Emoji, r.Label, r.RoleID))
		}
		return inv.ReplyPrivate(ctx, strings.Join(lines, "\n"))

	case "post":
		if len(draft) == 0 {
			return fail(ctx, inv, ErrEmptyDraft)
		}
		title := ev.Option("title")
		if title == "" {
			title = "Pick your roles"
		}
		msg := action.Message{Content: title}
		for _, r := range draft {
			msg.Buttons = append(msg.Buttons, action.Button{
				CustomID: "role-add" + action.Delimiter + r.RoleID,
				Label:    r.Label,
				Emoji:    r.Emoji,
			})
		}
		if err := inv.Send(ctx, msg); err != nil {
			return err
		}
		if !inv.Store.Remove(ctx, id).Result {
			slog.Warn("draft not removed after post", "id", inv.ID, "doc", id)
		}
		return nil

	default:
		return fail(ctx, inv, fmt.Errorf("%w: %q", ErrUnknownSubcommand, sub))
	}
}

// roleToggle gives or takes the role named by the button's custom id.
func (b *builtins) roleToggle(ctx context.Context, inv *action.Invocation) error {
	ev := inv.Event
	roleID := ev.Arg(0)
	if roleID == "" {
		return fail(ctx, inv, ErrBadButton)
	}
	rm, ok := inv.Roles()
	if !ok {
		return fail(ctx, inv, ErrNoRoleManager)
	}

	has, err := rm.HasRole(ctx, ev.GuildID, ev.UserID, roleID)
	if err != nil {
		return fmt.Errorf("check role %s: %w", roleID, err)
	}
	if has {
		if err := rm.RemoveRole(ctx, ev.GuildID, ev.UserID, roleID); err != nil {
			return fmt.Errorf("remove role %s: %w", roleID, err)
		}
		return inv.ReplyPrivate(ctx, fmt.Sprintf("Removed <@&%s>.", roleID))
	}
	if err := rm.AddRole(ctx, ev.GuildID, ev.UserID, roleID); err != nil {
		return fmt.Errorf("add role %s: %w", roleID, err)
	}
	return inv.ReplyPrivate(ctx, fmt.Sprintf("Added <@&%s>.", roleID))
}
