package action

import (
	"context"
	"time"
)

// Message is an outbound reply.
type Message struct {
	Content string `json:"content"`
	// Ephemeral replies are visible only to the invoking user.
	Ephemeral bool     `json:"ephemeral,omitempty"`
	Buttons   []Button `json:"buttons,omitempty"`
}

// Button is a clickable component. Clicking it produces a button Event whose
// Name is CustomID.
type Button struct {
	CustomID string `json:"custom_id"`
	Label    string `json:"label,omitempty"`
	Emoji    string `json:"emoji,omitempty"`
}

// Platform is the chat client as seen by actions.
type Platform interface {
	Reply(ctx context.Context, ev Event, msg Message) error
}

// PlatformFunc adapts a function to Platform.
type PlatformFunc func(ctx context.Context, ev Event, msg Message) error

func (f PlatformFunc) Reply(ctx context.Context, ev Event, msg Message) error {
	return f(ctx, ev, msg)
}

// RoleManager is implemented by platforms that can change member roles.
type RoleManager interface {
	HasRole(ctx context.Context, guildID, userID, roleID string) (bool, error)
	AddRole(ctx context.Context, guildID, userID, roleID string) error
	RemoveRole(ctx context.Context, guildID, userID, roleID string) error
}

// ChannelManager is implemented by platforms that can create, read and
// delete text channels. History and DeleteChannel wrap ErrUnknownChannel for
// a channel that is gone.
type ChannelManager interface {
	CreateChannel(ctx context.Context, guildID, parentID, name, memberID string) (string, error)
	History(ctx context.Context, guildID, channelID string) ([]ChatMessage, error)
	DeleteChannel(ctx context.Context, guildID, channelID string) error
}

// ChatMessage is one message of a channel history, oldest first.
type ChatMessage struct {
	AuthorID    string    `json:"author_id"`
	AuthorTag   string    `json:"author_tag,omitempty"`
	Content     string    `json:"content"`
	Attachments int       `json:"attachments,omitempty"`
	Mentions    []string  `json:"mentions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
