package actions

import (
	"context"
	"time"

	"github.com/roach88/guildbot/internal/data"
)

// BotConfigID is where runtime settings live in the store.
const BotConfigID = "bot/config"

const defaultMailInterval = 60

// BotConfig holds runtime settings read at startup.
type BotConfig struct {
	Dev          bool   `json:"dev"`
	MailInterval int    `json:"mail_interval"` // seconds between idle sweeps
	OwnerID      string `json:"owner_id,omitempty"`
}

// LoadBotConfig reads the bot/config document. Missing fields take their
// defaults and a missing document yields the zero config with defaults.
func LoadBotConfig(ctx context.Context, s *data.Store) BotConfig {
	cfg, _ := data.Read[BotConfig](ctx, s, BotConfigID)
	if cfg.MailInterval <= 0 {
		cfg.MailInterval = defaultMailInterval
	}
	return cfg
}

// MailEvery is the idle sweep interval.
func (c BotConfig) MailEvery() time.Duration {
	if c.MailInterval <= 0 {
		return defaultMailInterval * time.Second
	}
	return time.Duration(c.MailInterval) * time.Second
}
