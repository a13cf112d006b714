package notifier

import (
	"context"

	tele "gopkg.in/telebot.v4"

	logx "taskd/pkg/logx"
)

// LogSink writes notifications to the structured log. It is always
// available and never fails, which keeps "report outcome" meaningful even
// with no external channel configured.
type LogSink struct {
	log logx.Logger
}

func NewLogSink(log logx.Logger) *LogSink {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Name() string { return "log" }

func (s *LogSink) Send(ctx context.Context, text string) error {
	_ = ctx
	s.log.Info(text)
	return nil
}

// TelegramSink posts notifications to a Telegram chat via telebot.
type TelegramSink struct {
	bot  *tele.Bot
	chat tele.ChatID
}

// NewTelegramSink connects to the Bot API. Construction validates the token
// (getMe), so a misconfigured sink fails at startup rather than on first
// report.
func NewTelegramSink(token string, chatID int64) (*TelegramSink, error) {
	b, err := tele.NewBot(tele.Settings{
		Token:  token,
		Client: nil,
		Poller: nil,
	})
	if err != nil {
		return nil, err
	}
	return &TelegramSink{bot: b, chat: tele.ChatID(chatID)}, nil
}

func (s *TelegramSink) Name() string { return "telegram" }

func (s *TelegramSink) Send(ctx context.Context, text string) error {
	// telebot has no per-call context; honor cancellation before the call
	// and rely on the HTTP client timeout for the rest.
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	_, err := s.bot.Send(s.chat, text, &tele.SendOptions{DisableWebPagePreview: true})
	return err
}
