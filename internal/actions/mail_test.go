package actions_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/guildbot/internal/action"
	"github.com/roach88/guildbot/internal/actions"
	"github.com/roach88/guildbot/internal/data"
	"github.com/roach88/guildbot/internal/testutil"
)

func setupMail(t *testing.T, b *bot, timeout string) {
	t.Helper()
	opts := map[string]string{"subcommand": "setup", "category": "cat"}
	if timeout != "" {
		opts["timeout"] = timeout
	}
	res := b.command("mail", "owner", opts)
	require.True(t, res.Success, res.Reason)
}

func mailConfig(t *testing.T, b *bot) actions.MailConfig {
	t.Helper()
	cfg, ok := data.Read[actions.MailConfig](context.Background(), b.store, actions.MailConfigID("G"))
	require.True(t, ok)
	return cfg
}

func TestMailSetup(t *testing.T) {
	b := newBot(t, nil)

	res := b.command("mail", "someone", map[string]string{"subcommand": "setup"})
	assert.False(t, res.Success)
	assert.Equal(t, actions.ErrNotOwner.Error(), res.Reason)

	setupMail(t, b, "")
	cfg := mailConfig(t, b)
	assert.Equal(t, actions.MailConfig{
		GuildID: "G", ChannelID: "lobby", CategoryID: "cat",
		TimeoutMinutes: actions.DefaultTimeoutMinutes, Tickets: []actions.Ticket{},
	}, cfg)

	buttons := b.guild.LastReply().Message.Buttons
	require.Len(t, buttons, 2)
	assert.Equal(t, "mail-new", buttons[0].CustomID)
	assert.Equal(t, "mail-info", buttons[1].CustomID)

	res = b.command("mail", "owner", map[string]string{"subcommand": "setup", "timeout": "soon"})
	assert.False(t, res.Success)
}

func TestMailInfo(t *testing.T) {
	b := newBot(t, nil)

	res := b.button("mail-info", "lobby", "U")
	assert.False(t, res.Success)
	assert.Equal(t, actions.ErrNoMailConfig.Error(), res.Reason)

	setupMail(t, b, "90")
	require.True(t, b.button("mail-info", "lobby", "U").Success)
	assert.Equal(t, "Tickets close after 1h30m0s without activity.", b.lastReply())
}

func TestMailTicketLifecycle(t *testing.T) {
	ctx := context.Background()
	b := newBot(t, nil)

	res := b.button("mail-new", "lobby", "U")
	assert.False(t, res.Success, "no config yet")

	setupMail(t, b, "")
	require.True(t, b.button("mail-new", "lobby", "U").Success)
	cfg := mailConfig(t, b)
	require.Len(t, cfg.Tickets, 1)
	ticket := cfg.Tickets[0]
	assert.Equal(t, "U", ticket.UserID)
	assert.Equal(t, epoch, ticket.OpenedAt)
	assert.True(t, b.guild.HasChannel("G", ticket.ChannelID))

	res = b.button("mail-new", "lobby", "U")
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, actions.ErrTicketOpen.Error())
	assert.Len(t, mailConfig(t, b).Tickets, 1, "second ticket refused")

	b.guild.Post("G", ticket.ChannelID, "U", "help", epoch.Add(time.Minute))
	b.guild.Post("G", ticket.ChannelID, "mod", "on it", epoch.Add(2*time.Minute))
	b.clock.Advance(time.Hour)

	require.True(t, b.button("mail-close", ticket.ChannelID, "mod").Success)
	assert.Empty(t, mailConfig(t, b).Tickets)
	assert.False(t, b.guild.HasChannel("G", ticket.ChannelID))

	archive, ok := data.Read[actions.MailArchive](ctx, b.store, actions.MailArchiveID("G", ticket.ChannelID))
	require.True(t, ok)
	assert.Equal(t, "U", archive.UserID)
	assert.Equal(t, epoch.Add(time.Hour), archive.ClosedAt)
	assert.Len(t, archive.Messages, 2)

	require.True(t, b.command("mail", "mod", map[string]string{"subcommand": "list"}).Success)
	assert.Equal(t, "1 archived, 0 open.", b.lastReply())

	require.True(t, b.command("mail", "mod", map[string]string{"subcommand": "view", "channel": ticket.ChannelID}).Success)
	assert.Contains(t, b.lastReply(), "U: help")
	assert.Contains(t, b.lastReply(), "mod: on it")

	res = b.command("mail", "mod", map[string]string{"subcommand": "view", "channel": "gone"})
	assert.False(t, res.Success)
	assert.Equal(t, actions.ErrNoArchive.Error(), res.Reason)
}

func TestMailClose_ShortConversationNotArchived(t *testing.T) {
	ctx := context.Background()
	b := newBot(t, nil)
	setupMail(t, b, "")
	require.True(t, b.button("mail-new", "lobby", "U").Success)
	ticket := mailConfig(t, b).Tickets[0]
	b.guild.Post("G", ticket.ChannelID, "U", "never mind", epoch)

	// Closed by the member from outside the ticket channel.
	require.True(t, b.button("mail-close", "lobby", "U").Success)
	assert.False(t, b.store.Exists(ctx, actions.MailArchiveID("G", ticket.ChannelID)).Result)
	assert.Empty(t, mailConfig(t, b).Tickets)

	res := b.button("mail-close", "lobby", "U")
	assert.False(t, res.Success)
	assert.Equal(t, actions.ErrNoTicket.Error(), res.Reason)
}

func TestMailNew_NeedsChannelManager(t *testing.T) {
	b := newBot(t, replyOnly{})
	setupMail(t, b, "")
	res := b.button("mail-new", "lobby", "U")
	assert.False(t, res.Success)
	assert.Equal(t, actions.ErrNoChannelManager.Error(), res.Reason)
}

func TestSweepIdle(t *testing.T) {
	ctx := context.Background()
	b := newBot(t, nil)
	setupMail(t, b, "60")

	require.True(t, b.button("mail-new", "lobby", "quiet").Success)
	require.True(t, b.button("mail-new", "lobby", "chatty").Success)
	tickets := mailConfig(t, b).Tickets
	require.Len(t, tickets, 2)
	quiet, chatty := tickets[0], tickets[1]

	b.guild.Post("G", chatty.ChannelID, "chatty", "still here", epoch.Add(50*time.Minute))

	n, err := actions.SweepIdle(ctx, b.store, b.guild, epoch.Add(59*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n, "nothing idle yet")

	n, err = actions.SweepIdle(ctx, b.store, b.guild, epoch.Add(60*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.False(t, b.guild.HasChannel("G", quiet.ChannelID))
	assert.True(t, b.guild.HasChannel("G", chatty.ChannelID))

	left := mailConfig(t, b).Tickets
	require.Len(t, left, 1)
	assert.Equal(t, chatty.ChannelID, left[0].ChannelID)

	n, err = actions.SweepIdle(ctx, b.store, b.guild, epoch.Add(110*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, mailConfig(t, b).Tickets)
}

// unreadableChannels fails every history read with a transient error.
type unreadableChannels struct {
	*testutil.FakeGuild
}

func (unreadableChannels) History(context.Context, string, string) ([]action.ChatMessage, error) {
	return nil, errors.New("gateway timeout")
}

func TestSweepIdle_ReportsErrors(t *testing.T) {
	ctx := context.Background()
	b := newBot(t, nil)
	setupMail(t, b, "1")
	require.True(t, b.button("mail-new", "lobby", "U").Success)

	n, err := actions.SweepIdle(ctx, b.store, unreadableChannels{b.guild}, epoch.Add(time.Hour))
	assert.Equal(t, 0, n)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gateway timeout")
	assert.Len(t, mailConfig(t, b).Tickets, 1, "a transient failure keeps the ticket")
}

func TestSweepIdle_DropsTicketWhoseChannelIsGone(t *testing.T) {
	ctx := context.Background()
	b := newBot(t, nil)
	setupMail(t, b, "")
	require.True(t, b.button("mail-new", "lobby", "U").Success)
	ticket := mailConfig(t, b).Tickets[0]
	require.NoError(t, b.guild.DeleteChannel(ctx, "G", ticket.ChannelID))

	// Not idle yet, but the channel no longer exists.
	n, err := actions.SweepIdle(ctx, b.store, b.guild, epoch.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Empty(t, mailConfig(t, b).Tickets)
	assert.False(t, b.store.Exists(ctx, actions.MailArchiveID("G", ticket.ChannelID)).Result)

	n, err = actions.SweepIdle(ctx, b.store, b.guild, epoch.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	require.True(t, b.button("mail-new", "lobby", "U").Success, "member can open a new ticket")
}

func TestMailClose_ChannelAlreadyGone(t *testing.T) {
	ctx := context.Background()
	b := newBot(t, nil)
	setupMail(t, b, "")
	require.True(t, b.button("mail-new", "lobby", "U").Success)
	ticket := mailConfig(t, b).Tickets[0]
	require.NoError(t, b.guild.DeleteChannel(ctx, "G", ticket.ChannelID))

	res := b.button("mail-close", "lobby", "U")
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, "Ticket closed.", b.lastReply())
	assert.Empty(t, mailConfig(t, b).Tickets)

	res = b.button("mail-new", "lobby", "U")
	require.True(t, res.Success, res.Reason)
	assert.Len(t, mailConfig(t, b).Tickets, 1)
}

func TestMailDelete(t *testing.T) {
	ctx := context.Background()
	b := newBot(t, nil)
	archive := actions.MailArchive{GuildID: "G", ChannelID: "C1", UserID: "U"}
	require.True(t, data.Write(ctx, b.store, actions.MailArchiveID("G", "C1"), archive).Result)
	b.store.ClearCache()

	res := b.command("mail", "mod", map[string]string{"subcommand": "delete", "channel": "C1"})
	assert.False(t, res.Success)
	assert.Equal(t, actions.ErrNotOwner.Error(), res.Reason)

	res = b.command("mail", "owner", map[string]string{"subcommand": "delete"})
	assert.False(t, res.Success)
	assert.Equal(t, "missing option: channel", res.Reason)

	res = b.command("mail", "owner", map[string]string{"subcommand": "delete", "channel": "C1"})
	require.True(t, res.Success, res.Reason)
	assert.Equal(t, "Archive for <#C1> deleted.", b.lastReply())
	assert.False(t, b.store.Exists(ctx, actions.MailArchiveID("G", "C1")).Result)

	res = b.command("mail", "owner", map[string]string{"subcommand": "delete", "channel": "C1"})
	assert.False(t, res.Success)
	assert.Equal(t, actions.ErrNoArchive.Error(), res.Reason)
}
