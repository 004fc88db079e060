package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/guildbot/internal/action"
	"github.com/roach88/guildbot/internal/data"
)

var (
	ErrNoMailConfig = errors.New("mail is not set up in this server")
	ErrTicketOpen   = errors.New("you already have an open ticket")
	ErrNoTicket     = errors.New("no open ticket here")
	ErrNoArchive    = errors.New("no archive for that channel")
)

// DefaultTimeoutMinutes is how long a ticket may sit idle before the sweep
// closes it.
const DefaultTimeoutMinutes = 720

// MailConfig is a guild's ModMail setup and its open tickets.
type MailConfig struct {
	GuildID        string   `json:"guild_id"`
	ChannelID      string   `json:"channel_id"`
	CategoryID     string   `json:"category_id,omitempty"`
	TimeoutMinutes int      `json:"timeout_minutes"`
	Tickets        []Ticket `json:"tickets"`
}

// Timeout returns the idle timeout, falling back to the default.
func (c MailConfig) Timeout() time.Duration {
	m := c.TimeoutMinutes
	if m <= 0 {
		m = DefaultTimeoutMinutes
	}
	return time.Duration(m) * time.Minute
}

func (c MailConfig) ticketFor(userID string) (Ticket, bool) {
	for _, t := range c.Tickets {
		if t.UserID == userID {
			return t, true
		}
	}
	return Ticket{}, false
}

func (c MailConfig) ticketIn(channelID string) (Ticket, bool) {
	for _, t := range c.Tickets {
		if t.ChannelID == channelID {
			return t, true
		}
	}
	return Ticket{}, false
}

// Ticket is an open ModMail conversation.
type Ticket struct {
	UserID    string    `json:"user_id"`
	ChannelID string    `json:"channel_id"`
	OpenedAt  time.Time `json:"opened_at"`
}

// MailArchive is the transcript saved when a ticket closes.
type MailArchive struct {
	GuildID   string               `json:"guild_id"`
	ChannelID string               `json:"channel_id"`
	UserID    string               `json:"user_id"`
	OpenedAt  time.Time            `json:"opened_at"`
	ClosedAt  time.Time            `json:"closed_at"`
	Messages  []action.ChatMessage `json:"messages"`
}

func MailConfigID(guildID string) string {
	return "mail/config/" + guildID
}

func MailArchiveDir(guildID string) string {
	return "mail/archive/" + guildID
}

func MailArchiveID(guildID, channelID string) string {
	return MailArchiveDir(guildID) + "/" + channelID
}

// mail handles setup, list, view and delete.
func (b *builtins) mail(ctx context.Context, inv *action.Invocation) error {
	ev := inv.Event
	switch sub := ev.Option("subcommand"); sub {
	case "setup":
		return b.mailSetup(ctx, inv)

	case "list":
		seen := make(map[string]bool)
		data.ForEachUnder(ctx, inv.Store, MailArchiveDir(ev.GuildID), func(_ json.RawMessage, path string) error {
			seen[path] = true
			return nil
		})
		cfg, _ := data.Read[MailConfig](ctx, inv.Store, MailConfigID(ev.GuildID))
		return inv.ReplyPrivate(ctx, fmt.Sprintf("%d archived, %d open.", len(seen), len(cfg.Tickets)))

	case "view":
		channelID, err := requireOption(ctx, inv, "channel")
		if err != nil {
			return err
		}
		archive, ok := data.Read[MailArchive](ctx, inv.Store, MailArchiveID(ev.GuildID, channelID))
		if !ok {
			return fail(ctx, inv, ErrNoArchive)
		}
		return inv.ReplyPrivate(ctx, transcript(archive))

	case "delete":
		return b.mailDelete(ctx, inv)

	default:
		return fail(ctx, inv, fmt.Errorf("%w: %q", ErrUnknownSubcommand, sub))
	}
}

// mailDelete removes an archived transcript. Owner only.
func (b *builtins) mailDelete(ctx context.Context, inv *action.Invocation) error {
	if err := b.requireOwner(ctx, inv); err != nil {
		return err
	}
	channelID, err := requireOption(ctx, inv, "channel")
	if err != nil {
		return err
	}
	id := MailArchiveID(inv.Event.GuildID, channelID)
	if !inv.Store.Exists(ctx, id).Result {
		return fail(ctx, inv, ErrNoArchive)
	}
	// Only the backend decides: the archive may never have been cached.
	if !inv.Store.Remove(ctx, id).File {
		return fail(ctx, inv, ErrSaveFailed)
	}
	return inv.ReplyPrivate(ctx, fmt.Sprintf("Archive for <#%s> deleted.", channelID))
}

func (b *builtins) mailSetup(ctx context.Context, inv *action.Invocation) error {
	if err := b.requireOwner(ctx, inv); err != nil {
		return err
	}
	ev := inv.Event
	cfg, _ := data.Read[MailConfig](ctx, inv.Store, MailConfigID(ev.GuildID))
	cfg.GuildID = ev.GuildID
	cfg.ChannelID = ev.ChannelID
	if ch := ev.Option("channel"); ch != "" {
		cfg.ChannelID = ch
	}
	if cat := ev.Option("category"); cat != "" {
		cfg.CategoryID = cat
	}
	cfg.TimeoutMinutes = DefaultTimeoutMinutes
	if raw := ev.Option("timeout"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil || m <= 0 {
			return fail(ctx, inv, fmt.Errorf("timeout must be a positive number of minutes, got %q", raw))
		}
		cfg.TimeoutMinutes = m
	}
	if cfg.Tickets == nil {
		cfg.Tickets = []Ticket{}
	}
	if !data.Write(ctx, inv.Store, MailConfigID(ev.GuildID), cfg).Result {
		return fail(ctx, inv, ErrSaveFailed)
	}
	return inv.Send(ctx, action.Message{
		Content: "Need to talk to the staff? Open a ticket below.",
		Buttons: []action.Button{
			{CustomID: "mail-new", Label: "Open ticket", Emoji: "📨"},
			{CustomID: "mail-info", Label: "Info"},
		},
	})
}

// mailNew opens a private ticket channel for the invoking member.
func (b *builtins) mailNew(ctx context.Context, inv *action.Invocation) error {
	ev := inv.Event
	cfg, ok := data.Read[MailConfig](ctx, inv.Store, MailConfigID(ev.GuildID))
	if !ok {
		return fail(ctx, inv, ErrNoMailConfig)
	}
	if t, open := cfg.ticketFor(ev.UserID); open {
		return fail(ctx, inv, fmt.Errorf("%w: <#%s>", ErrTicketOpen, t.ChannelID))
	}
	cm, ok := inv.Channels()
	if !ok {
		return fail(ctx, inv, ErrNoChannelManager)
	}

	channelID, err := cm.CreateChannel(ctx, ev.GuildID, cfg.CategoryID, "ticket-"+ev.UserID, ev.UserID)
	if err != nil {
		return fmt.Errorf("create ticket channel: %w", err)
	}
	cfg.Tickets = append(cfg.Tickets, Ticket{UserID: ev.UserID, ChannelID: channelID, OpenedAt: b.deps.now()})
	if !data.Write(ctx, inv.Store, MailConfigID(ev.GuildID), cfg).Result {
		if err := cm.DeleteChannel(ctx, ev.GuildID, channelID); err != nil {
			slog.Error("orphaned ticket channel", "guild", ev.GuildID, "channel", channelID, "error", err)
		}
		return fail(ctx, inv, ErrSaveFailed)
	}
	return inv.ReplyPrivate(ctx, fmt.Sprintf("Ticket opened in <#%s>.", channelID))
}

// mailClose archives the ticket in the current channel, or the member's own.
func (b *builtins) mailClose(ctx context.Context, inv *action.Invocation) error {
	ev := inv.Event
	cfg, ok := data.Read[MailConfig](ctx, inv.Store, MailConfigID(ev.GuildID))
	if !ok {
		return fail(ctx, inv, ErrNoMailConfig)
	}
	t, ok := cfg.ticketIn(ev.ChannelID)
	if !ok {
		t, ok = cfg.ticketFor(ev.UserID)
	}
	if !ok {
		return fail(ctx, inv, ErrNoTicket)
	}
	cm, ok := inv.Channels()
	if !ok {
		return fail(ctx, inv, ErrNoChannelManager)
	}
	if err := closeTicket(ctx, inv.Store, cm, ev.GuildID, t, b.deps.now()); err != nil {
		return fail(ctx, inv, err)
	}
	return inv.ReplyPrivate(ctx, "Ticket closed.")
}

func (b *builtins) mailInfo(ctx context.Context, inv *action.Invocation) error {
	cfg, ok := data.Read[MailConfig](ctx, inv.Store, MailConfigID(inv.Event.GuildID))
	if !ok {
		return fail(ctx, inv, ErrNoMailConfig)
	}
	return inv.ReplyPrivate(ctx, fmt.Sprintf("Tickets close after %s without activity.", cfg.Timeout()))
}

// closeTicket saves the channel history when there is a conversation to
// keep, drops the ticket from the guild config and deletes the channel. A
// channel that cannot be read or is already gone still gets its ticket
// dropped, just without an archive.
func closeTicket(ctx context.Context, s *data.Store, cm action.ChannelManager, guildID string, t Ticket, now time.Time) error {
	history, err := cm.History(ctx, guildID, t.ChannelID)
	if err != nil {
		slog.Warn("ticket history unavailable, closing without archive",
			"guild", guildID, "channel", t.ChannelID, "error", err)
	}
	if len(history) > 1 {
		archive := MailArchive{
			GuildID:   guildID,
			ChannelID: t.ChannelID,
			UserID:    t.UserID,
			OpenedAt:  t.OpenedAt,
			ClosedAt:  now,
			Messages:  history,
		}
		if !data.Write(ctx, s, MailArchiveID(guildID, t.ChannelID), archive).Result {
			return fmt.Errorf("archive %s: %w", t.ChannelID, ErrSaveFailed)
		}
	}

	if err := dropTicket(ctx, s, guildID, t.ChannelID); err != nil {
		return err
	}

	if err := cm.DeleteChannel(ctx, guildID, t.ChannelID); err != nil && !errors.Is(err, action.ErrUnknownChannel) {
		return fmt.Errorf("delete ticket channel: %w", err)
	}
	slog.Info("ticket closed", "guild", guildID, "channel", t.ChannelID, "messages", len(history))
	return nil
}

// dropTicket removes the ticket in channelID from the guild's open tickets.
func dropTicket(ctx context.Context, s *data.Store, guildID, channelID string) error {
	id := MailConfigID(guildID)
	cfg, ok := data.Read[MailConfig](ctx, s, id)
	if !ok {
		return nil
	}
	kept := make([]Ticket, 0, len(cfg.Tickets))
	for _, open := range cfg.Tickets {
		if open.ChannelID != channelID {
			kept = append(kept, open)
		}
	}
	cfg.Tickets = kept
	if !data.Write(ctx, s, id, cfg).Result {
		return fmt.Errorf("update mail config: %w", ErrSaveFailed)
	}
	return nil
}

// SweepIdle closes every ticket whose last activity is at least its guild's
// timeout before now, and drops tickets whose channel no longer exists. It
// returns the number of tickets closed or dropped.
func SweepIdle(ctx context.Context, s *data.Store, cm action.ChannelManager, now time.Time) (int, error) {
	seen := make(map[string]bool)
	var configs []MailConfig
	data.ForEachUnder(ctx, s, "mail/config", func(cfg MailConfig, path string) error {
		if seen[path] {
			return nil
		}
		seen[path] = true
		configs = append(configs, cfg)
		return nil
	})

	var errs []error
	closed := 0
	for _, cfg := range configs {
		for _, t := range cfg.Tickets {
			last, err := lastActivity(ctx, cm, cfg.GuildID, t)
			if errors.Is(err, action.ErrUnknownChannel) {
				// Deleted outside the bot; nothing left to archive.
				if err := dropTicket(ctx, s, cfg.GuildID, t.ChannelID); err != nil {
					errs = append(errs, fmt.Errorf("drop ticket %s: %w", t.ChannelID, err))
					continue
				}
				slog.Info("ticket dropped, channel is gone", "guild", cfg.GuildID, "channel", t.ChannelID)
				closed++
				continue
			}
			if err != nil {
				errs = append(errs, err)
				continue
			}
			if now.Sub(last) < cfg.Timeout() {
				continue
			}
			if err := closeTicket(ctx, s, cm, cfg.GuildID, t, now); err != nil {
				errs = append(errs, fmt.Errorf("close idle ticket %s: %w", t.ChannelID, err))
				continue
			}
			closed++
		}
	}
	return closed, errors.Join(errs...)
}

func lastActivity(ctx context.Context, cm action.ChannelManager, guildID string, t Ticket) (time.Time, error) {
	history, err := cm.History(ctx, guildID, t.ChannelID)
	if err != nil {
		return time.Time{}, fmt.Errorf("read ticket %s: %w", t.ChannelID, err)
	}
	last := t.OpenedAt
	for _, m := range history {
		if m.CreatedAt.After(last) {
			last = m.CreatedAt
		}
	}
	return last, nil
}

func transcript(a MailArchive) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticket <#%s> from <@%s>, %s to %s\n",
		a.ChannelID, a.UserID, a.OpenedAt.Format(time.RFC3339), a.ClosedAt.Format(time.RFC3339))
	for _, m := range a.Messages {
		author := m.AuthorTag
		if author == "" {
			author = m.AuthorID
		}
		fmt.Fprintf(&sb, "[%s] %s: %s", m.CreatedAt.Format(time.RFC3339), author, m.Content)
		if m.Attachments > 0 {
			fmt.Fprintf(&sb, " (+%d attachments)", m.Attachments)
		}
		sb.WriteString("\n")
	}
	return strings.TrimRight(sb.String(), "\n")
}
