package cli

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/roach88/guildbot/internal/action"
)

// Line is one JSON line written by the run command.
type Line struct {
	Type    string          `json:"type"` // "reply" or "result"
	EventID string          `json:"event_id,omitempty"`
	Action  string          `json:"action,omitempty"`
	Message *action.Message `json:"message,omitempty"`
	Result  *action.Result  `json:"result,omitempty"`
}

// lineWriter serialises JSON lines from concurrent writers.
type lineWriter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newLineWriter(w io.Writer) *lineWriter {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return &lineWriter{enc: enc}
}

func (w *lineWriter) write(l Line) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.enc.Encode(l)
}

// linePlatform delivers replies as JSON lines, making stdout the chat
// surface. It has no role or channel capabilities.
type linePlatform struct {
	out *lineWriter
}

func (p linePlatform) Reply(_ context.Context, ev action.Event, msg action.Message) error {
	return p.out.write(Line{Type: "reply", EventID: ev.ID, Action: ev.ActionName(), Message: &msg})
}

// collectingPlatform keeps replies in memory for one-shot commands.
type collectingPlatform struct {
	mu       sync.Mutex
	messages []action.Message
}

func (p *collectingPlatform) Reply(_ context.Context, _ action.Event, msg action.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}
