// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// maxLoggedText — сколько символов текста попадает в лог.
const maxLoggedText = 50

// LogMessage логирует входящее сообщение.
// Аргументы команд (в том числе пароли) не пишутся: только сама команда.
func LogMessage(message *telego.Message) {
	if message == nil {
		return
	}

	fields := log.Fields{
		"chat_id": message.Chat.ID,
		"text":    redact(message.Text),
	}
	if message.From != nil {
		fields["user_id"] = message.From.ID
		fields["username"] = message.From.Username
	}
	log.WithFields(fields).Debug("Входящее сообщение")
}

// redact оставляет первое слово сообщения и обрезает его по длине.
func redact(text string) string {
	runes := []rune(text)
	for i, r := range runes {
		if r == ' ' || r == '\n' {
			runes = append(runes[:i:i], []rune(" …")...)
			break
		}
	}
	if len(runes) > maxLoggedText {
		return string(runes[:maxLoggedText]) + "..."
	}
	return string(runes)
}
