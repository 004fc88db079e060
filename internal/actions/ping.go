package actions

import (
	"context"
	"fmt"

	"github.com/roach88/guildbot/internal/action"
)

type pingData struct {
	Reply string `json:"reply"`
}

func (b *builtins) ping(ctx context.Context, inv *action.Invocation) error {
	reply := "Pong!"
	var d pingData
	if inv.DataInto(&d) && d.Reply != "" {
		reply = d.Reply
	}
	if created := inv.Event.CreatedAt; !created.IsZero() {
		ms := b.deps.now().Sub(created).Milliseconds()
		if ms < 0 {
			ms = 0
		}
		reply = fmt.Sprintf("%s (%dms)", reply, ms)
	}
	return inv.Reply(ctx, reply)
}
