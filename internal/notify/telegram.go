package notify

import (
	"context"

	tgbot "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

// TelegramSink sends plain messages to one chat.
type TelegramSink struct {
	bot    *tgbot.BotAPI
	chatID int64
}

// NewTelegram connects the bot. An empty endpoint uses the public Bot API.
func NewTelegram(token string, chatID int64, endpoint string) (*TelegramSink, error) {
	if endpoint == "" {
		endpoint = tgbot.APIEndpoint
	}
	b, err := tgbot.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "telegram bot")
	}
	return &TelegramSink{bot: b, chatID: chatID}, nil
}

func (t *TelegramSink) Send(_ context.Context, msg string) error {
	if t == nil || t.bot == nil || t.chatID == 0 {
		return nil
	}
	_, err := t.bot.Send(tgbot.NewMessage(t.chatID, msg))
	return err
}
