package notify

import (
	"context"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// TelegramNotifier sends notifications to a single chat. The bot is used
// send-only; no poller runs.
type TelegramNotifier struct {
	bot    *tele.Bot
	chatID int64
}

// NewTelegramNotifier creates a Telegram notifier for the given bot token
// and chat.
func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	if strings.TrimSpace(token) == "" {
		return nil, fmt.Errorf("telegram token is empty")
	}
	if chatID == 0 {
		return nil, fmt.Errorf("telegram chat id is empty")
	}
	bot, err := tele.NewBot(tele.Settings{Token: token})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (t *TelegramNotifier) Send(ctx context.Context, title, body string) error {
	text := title
	if body != "" {
		text = title + "\n\n" + body
	}
	_, err := t.bot.Send(&tele.Chat{ID: t.chatID}, text)
	if err != nil {
		return fmt.Errorf("send telegram notification: %w", err)
	}
	return nil
}
