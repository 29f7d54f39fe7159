package identity

import (
	"strings"
	"unicode/utf8"

	"cyberarena.app/arena/internal/backend"
	"cyberarena.app/arena/internal/common"
)

const (
	minPasswordLen = 6
	minUsernameLen = 3
	maxUsernameLen = 24
)

func validateEmail(email string) error {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return common.InvalidInput("Please enter a valid email address.")
	}
	return nil
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < minPasswordLen {
		return common.InvalidInput("Password must be at least 6 characters long.")
	}
	return nil
}

func validateUsername(username string) error {
	n := utf8.RuneCountInString(strings.TrimSpace(username))
	if n < minUsernameLen || n > maxUsernameLen {
		return common.InvalidInput("Username must be between 3 and 24 characters.")
	}
	return nil
}

// mapBackendError переводит известные ответы бэкенда в ошибки аутентификации.
// Остальное возвращается как есть.
func mapBackendError(err error) error {
	be, ok := backend.AsError(err)
	if !ok {
		return err
	}
	switch be.Message {
	case backend.MsgInvalidCredentials:
		return common.ErrInvalidCredentials
	case backend.MsgEmailNotConfirmed:
		return common.ErrEmailUnconfirmed
	case backend.MsgUserExists:
		return common.ErrEmailTaken
	case backend.MsgWeakPassword:
		return common.InvalidInput("Password must be at least 6 characters long.")
	}
	return err
}

// emailPrefix — имя по умолчанию для профиля, созданного при входе.
func emailPrefix(email string) string {
	prefix, _, _ := strings.Cut(email, "@")
	if utf8.RuneCountInString(prefix) < minUsernameLen {
		return "player_" + prefix
	}
	return prefix
}
