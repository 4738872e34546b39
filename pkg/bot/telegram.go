package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// maxMessageLen stays under Telegram's 4096 character limit.
const maxMessageLen = 4000

// Telegram connects the router to the Telegram Bot API with long polling.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

func NewTelegram(token string, logger *zap.Logger) (*Telegram, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram login: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("Authorized on Telegram", zap.String("account", api.Self.UserName))
	return &Telegram{api: api, logger: logger}, nil
}

// Send delivers text, split into several messages when it is too long.
func (t *Telegram) Send(_ context.Context, chatID, text string) error {
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("bad chat id %q: %w", chatID, err)
	}
	for _, part := range Chunks(text, maxMessageLen) {
		if _, err := t.api.Send(tgbotapi.NewMessage(id, part)); err != nil {
			return fmt.Errorf("send to %s: %w", chatID, err)
		}
	}
	return nil
}

// Run polls for messages and hands them to the router until ctx is done.
func (t *Telegram) Run(ctx context.Context, r *Router) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 60
	updates := t.api.GetUpdatesChan(cfg)
	defer t.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			if u.Message == nil {
				continue
			}
			upd := Update{
				ChatID: strconv.FormatInt(u.Message.Chat.ID, 10),
				Text:   u.Message.Text,
			}
			if u.Message.From != nil {
				upd.Locale = u.Message.From.LanguageCode
			}
			if err := r.Handle(ctx, upd); err != nil {
				t.logger.Error("Update failed", zap.String("chat", upd.ChatID), zap.Error(err))
			}
		}
	}
}

// Chunks splits text on line boundaries into parts of at most limit bytes.
// A single longer line is cut at rune boundaries.
func Chunks(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var (
		parts []string
		cur   strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			parts = append(parts, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
		}
	}
	for _, line := range strings.SplitAfter(text, "\n") {
		for len(line) > limit {
			flush()
			cut := limit
			for cut > 0 && !utf8.RuneStart(line[cut]) {
				cut--
			}
			parts = append(parts, line[:cut])
			line = line[cut:]
		}
		if cur.Len()+len(line) > limit {
			flush()
		}
		cur.WriteString(line)
	}
	flush()
	return parts
}
