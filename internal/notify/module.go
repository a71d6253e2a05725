package notify

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"scalper/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			NewFromConfig,
		),
	)
}

// NewFromConfig registers every sink that has credentials. A sink that
// fails to initialise is skipped with a warning.
func NewFromConfig(lc fx.Lifecycle, cfg *config.Config, log *zap.Logger) *Hub {
	log = log.Named("notify")

	sinks := map[string]Sink{Console: NewConsole(log)}
	if cfg.Env.SlackWebhookURL != "" {
		sinks[Slack] = NewSlack(cfg.Env.SlackWebhookURL)
	}
	if cfg.Env.TelegramBotToken != "" && cfg.Env.TelegramChatID != 0 {
		tg, err := NewTelegram(cfg.Env.TelegramBotToken, cfg.Env.TelegramChatID, "")
		if err != nil {
			log.Warn("telegram notifications disabled", zap.Error(err))
		} else {
			sinks[Telegram] = tg
		}
	}

	var defaults []string
	for _, name := range cfg.Notify {
		if _, ok := sinks[name]; !ok {
			log.Warn("notification destination not configured", zap.String("dest", name))
			continue
		}
		defaults = append(defaults, name)
	}

	h := NewHub(log, defaults)
	for name, s := range sinks {
		h.Register(name, s)
	}

	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			h.Wait()
			return nil
		},
	})
	return h
}
