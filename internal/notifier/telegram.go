package notifier

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramConfig configures the Bot API sender. URL overrides the API
// endpoint and is empty in production.
type TelegramConfig struct {
	Token   string
	URL     string
	Timeout time.Duration
}

// TelegramSender sends plain text through the Telegram Bot API. It never
// polls for updates.
type TelegramSender struct {
	bot *tele.Bot
}

func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		URL:     cfg.URL,
		Token:   strings.TrimSpace(cfg.Token),
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSender{bot: b}, nil
}

// SendText honors ctx only before the request starts; the HTTP client
// timeout bounds the call itself.
func (s *TelegramSender) SendText(ctx context.Context, chatID int64, threadID int, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(&tele.Chat{ID: chatID}, text, &tele.SendOptions{
		ThreadID:              threadID,
		DisableWebPagePreview: true,
	})
	return err
}
