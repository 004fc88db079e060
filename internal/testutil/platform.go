package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/guildbot/internal/action"
)

// ErrUnknownChannel is returned by FakeGuild for channels it never created
// or already deleted.
var ErrUnknownChannel = action.ErrUnknownChannel

// Reply is one message sent through a FakeGuild.
type Reply struct {
	EventID string         `json:"event_id,omitempty"`
	Event   string         `json:"event"`
	Message action.Message `json:"message"`
}

// FakeGuild is an in-memory chat platform. It records replies and keeps
// member roles and channel histories so built-in actions can run without a
// network client. It implements action.Platform, action.RoleManager and
// action.ChannelManager.
type FakeGuild struct {
	mu       sync.Mutex
	replies  []Reply
	roles    map[string]map[string]bool // guild/user -> role set
	channels map[string][]action.ChatMessage
	nextID   int

	// ReplyErr, when set, is returned from every Reply call.
	ReplyErr error
}

func NewFakeGuild() *FakeGuild {
	return &FakeGuild{
		roles:    make(map[string]map[string]bool),
		channels: make(map[string][]action.ChatMessage),
		nextID:   1000,
	}
}

func (g *FakeGuild) Reply(_ context.Context, ev action.Event, msg action.Message) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.ReplyErr != nil {
		return g.ReplyErr
	}
	g.replies = append(g.replies, Reply{EventID: ev.ID, Event: ev.ActionName(), Message: msg})
	return nil
}

// Replies returns a copy of everything sent so far.
func (g *FakeGuild) Replies() []Reply {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Reply, len(g.replies))
	copy(out, g.replies)
	return out
}

// LastReply returns the most recent reply, or a zero Reply.
func (g *FakeGuild) LastReply() Reply {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.replies) == 0 {
		return Reply{}
	}
	return g.replies[len(g.replies)-1]
}

func memberKey(guildID, userID string) string {
	return guildID + "/" + userID
}

func (g *FakeGuild) HasRole(_ context.Context, guildID, userID, roleID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.roles[memberKey(guildID, userID)][roleID], nil
}

func (g *FakeGuild) AddRole(_ context.Context, guildID, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := memberKey(guildID, userID)
	if g.roles[key] == nil {
		g.roles[key] = make(map[string]bool)
	}
	g.roles[key][roleID] = true
	return nil
}

func (g *FakeGuild) RemoveRole(_ context.Context, guildID, userID, roleID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.roles[memberKey(guildID, userID)], roleID)
	return nil
}

// MemberRoles lists a member's roles in sorted order.
func (g *FakeGuild) MemberRoles(guildID, userID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for r := range g.roles[memberKey(guildID, userID)] {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}

func (g *FakeGuild) CreateChannel(_ context.Context, guildID, _, _, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextID++
	id := fmt.Sprintf("%d", g.nextID)
	g.channels[memberKey(guildID, id)] = nil
	return id, nil
}

func (g *FakeGuild) History(_ context.Context, guildID, channelID string) ([]action.ChatMessage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	msgs, ok := g.channels[memberKey(guildID, channelID)]
	if !ok {
		return nil, ErrUnknownChannel
	}
	out := make([]action.ChatMessage, len(msgs))
	copy(out, msgs)
	return out, nil
}

func (g *FakeGuild) DeleteChannel(_ context.Context, guildID, channelID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := memberKey(guildID, channelID)
	if _, ok := g.channels[key]; !ok {
		return ErrUnknownChannel
	}
	delete(g.channels, key)
	return nil
}

// Post appends a message to a channel's history.
func (g *FakeGuild) Post(guildID, channelID, authorID, content string, at time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	key := memberKey(guildID, channelID)
	g.channels[key] = append(g.channels[key], action.ChatMessage{
		AuthorID:  authorID,
		Content:   content,
		CreatedAt: at,
	})
}

// HasChannel reports whether a channel exists.
func (g *FakeGuild) HasChannel(guildID, channelID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.channels[memberKey(guildID, channelID)]
	return ok
}
