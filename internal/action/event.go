package action

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the category of an inbound interaction.
type Kind string

const (
	KindCommand Kind = "command"
	KindButton  Kind = "button"
	KindModal   Kind = "modal"
)

// Kinds lists every dispatchable kind.
var Kinds = []Kind{KindCommand, KindButton, KindModal}

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// Delimiter separates a component key from its payload in a custom id.
const Delimiter = ";"

// Event is a platform-neutral inbound interaction.
type Event struct {
	ID        string            `json:"id,omitempty"`
	Kind      Kind              `json:"kind"`
	Name      string            `json:"name"`
	GuildID   string            `json:"guild_id,omitempty"`
	ChannelID string            `json:"channel_id,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	Bot       bool              `json:"bot,omitempty"`
	Options   map[string]string `json:"options,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty"`
}

// Key returns the registry key: the name up to the first delimiter.
func (e Event) Key() string {
	key, _, _ := strings.Cut(e.Name, Delimiter)
	return key
}

// Args returns the delimiter-separated payload after the key.
func (e Event) Args() []string {
	_, rest, ok := strings.Cut(e.Name, Delimiter)
	if !ok {
		return nil
	}
	return strings.Split(rest, Delimiter)
}

// Arg returns the i-th payload segment, or "" when absent.
func (e Event) Arg(i int) string {
	args := e.Args()
	if i < 0 || i >= len(args) {
		return ""
	}
	return args[i]
}

// Option returns a named command option or modal field.
func (e Event) Option(name string) string {
	return e.Options[name]
}

// ActionName is the registry name this event resolves to.
func (e Event) ActionName() string {
	return string(e.Kind) + "/" + e.Key()
}
