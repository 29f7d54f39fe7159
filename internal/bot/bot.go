// Package bot — Telegram-транспорт арены.
// bot.go запускает long polling, фильтрует чат, ограничивает частоту
// и передаёт текст команд в commands.Router.
//
// Сессия у процесса одна, поэтому бот рассчитан на одного игрока
// в личном чате. Команды с паролем в группах не выполняются.
package bot

import (
	"context"
	"fmt"
	"slices"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/bot/filters"
	"cyberarena.app/arena/internal/bot/middleware"
	"cyberarena.app/arena/internal/commands"
	"cyberarena.app/arena/internal/config"
)

// команды, в аргументах которых есть пароль
var credentialCommands = []string{"signin", "signup", "upgrade"}

const privateOnlyReply = "🔒 Passwords are accepted only in a private chat with the bot."

// Sender — отправка ответа в чат.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api    *telego.Bot
	sender Sender
	cfg    *config.Config
	router *commands.Router

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter
	parser      *commands.Parser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// NewAPI создаёт клиент Telegram Bot API с логами через logrus.
func NewAPI(cfg *config.Config) (*telego.Bot, error) {
	api, err := telego.NewBot(cfg.TelegramBotToken, telego.WithLogger(log.StandardLogger()))
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	return api, nil
}

// New создаёт бота.
func New(api *telego.Bot, cfg *config.Config, router *commands.Router, chatFilter *filters.ChatFilter, limiter *middleware.RateLimiter) *Bot {
	b := newBot(api, cfg, router, chatFilter, limiter)
	b.api = api
	return b
}

func newBot(sender Sender, cfg *config.Config, router *commands.Router, chatFilter *filters.ChatFilter, limiter *middleware.RateLimiter) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 16
	}

	return &Bot{
		sender:      sender,
		cfg:         cfg,
		router:      router,
		chatFilter:  chatFilter,
		rateLimiter: limiter,
		parser:      commands.NewParser(),
		inflight:    make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling и блокируется до отмены ctx.
func (b *Bot) Start(ctx context.Context) error {
	me, err := b.api.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("getMe: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)

	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout:        b.cfg.BotUpdateTimeoutSeconds,
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return fmt.Errorf("long polling: %w", err)
	}

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
		"chat_id":      b.cfg.TelegramChatID,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			return nil

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return nil
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd telego.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverFromPanic()

	message := update.Message
	if message == nil || message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	if !b.chatFilter.CheckAccess(message) {
		return
	}

	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	if message.Chat.Type != telego.ChatTypePrivate && b.isCredentialCommand(message.Text) {
		log.WithFields(log.Fields{
			"chat_id": message.Chat.ID,
			"user_id": message.From.ID,
		}).Warn("Команда с паролем вне личного чата отклонена")
		b.sendMessage(ctx, message.Chat.ID, privateOnlyReply)
		return
	}

	reply := b.router.Handle(ctx, message.Text)
	if reply == "" {
		return
	}
	b.sendMessage(ctx, message.Chat.ID, reply)
}

func (b *Bot) isCredentialCommand(text string) bool {
	cmd, _, ok := b.parser.Parse(text)
	return ok && slices.Contains(credentialCommands, cmd)
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := b.sender.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}
