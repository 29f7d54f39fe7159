package filters

import (
	"slices"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// ChatFilter пропускает только сообщения из чата арены
// и, если список задан, только от разрешённых пользователей.
// Сессия одна на процесс, поэтому чужие чаты игнорируются.
type ChatFilter struct {
	chatID         int64
	allowedUserIDs []int64
}

func NewChatFilter(chatID int64, allowedUserIDs []int64) *ChatFilter {
	return &ChatFilter{
		chatID:         chatID,
		allowedUserIDs: allowedUserIDs,
	}
}

func (f *ChatFilter) CheckAccess(message *telego.Message) bool {
	if message == nil {
		log.WithField("component", "ChatFilter").Warn("nil message")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Warn("nil message.From (service/channel message?)")
		return false
	}
	if f.chatID == 0 {
		log.WithField("component", "ChatFilter").Error("chatID is 0 (config bug)")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "ChatFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	if message.Chat.ID != f.chatID {
		logger.Info("deny: not the arena chat")
		return false
	}

	if len(f.allowedUserIDs) > 0 && !slices.Contains(f.allowedUserIDs, message.From.ID) {
		logger.Info("deny: user not in allow list")
		return false
	}

	logger.Debug("allow: arena chat")
	return true
}
