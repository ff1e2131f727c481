package bot

import (
	"context"

	"github.com/mrleo1nid/TaxCollectionTelegramBot/internal/notify"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Transport delivers collection notifications as Telegram chat messages.
type Transport struct {
	api Sender
}

func NewTransport(api Sender) *Transport {
	return &Transport{api: api}
}

func (t *Transport) Deliver(ctx context.Context, m notify.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	text, markup := renderNotification(m)
	if text == "" {
		return nil
	}

	msg := tgbotapi.NewMessage(m.Recipient, truncate(text))
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := t.api.Send(msg)
	return err
}
