// Package commands — текстовые команды поверх менеджера личности и
// координатора экономики. Не зависит от транспорта: бот и консоль
// передают сюда строку и отправляют обратно ответ.
package commands

import (
	"context"
	"errors"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/backend"
	"cyberarena.app/arena/internal/common"
	"cyberarena.app/arena/internal/features/economy"
	"cyberarena.app/arena/internal/features/identity"
)

type handlerFunc func(ctx context.Context, args []string) (string, error)

// Router маршрутизирует команды к сервисам.
type Router struct {
	identity *identity.Service
	economy  *economy.Service
	clock    clock.Clock
	parser   *Parser
	handlers map[string]handlerFunc
}

// NewRouter создаёт маршрутизатор команд.
func NewRouter(ids *identity.Service, econ *economy.Service, clk clock.Clock) *Router {
	r := &Router{
		identity: ids,
		economy:  econ,
		clock:    clk,
		parser:   NewParser(),
	}
	r.handlers = map[string]handlerFunc{
		"start":       r.help,
		"help":        r.help,
		"signup":      r.signUp,
		"signin":      r.signIn,
		"guest":       r.guest,
		"upgrade":     r.upgrade,
		"signout":     r.signOut,
		"mode":        r.mode,
		"me":          r.me,
		"games":       r.games,
		"play":        r.play,
		"leave":       r.leave,
		"result":      r.result,
		"mine":        r.mine,
		"withdraw":    r.withdraw,
		"deposit":     r.deposit,
		"history":     r.history,
		"leaderboard": r.leaderboard,
		"tournaments": r.tournaments,
		"join":        r.join,
		"spectate":    r.spectate,
		"room":        r.room,
	}
	return r
}

// Handle выполняет команду и возвращает ответ.
// Для текста без префикса команды ответ пустой.
func (r *Router) Handle(ctx context.Context, text string) string {
	cmd, args, ok := r.parser.Parse(text)
	if !ok {
		return ""
	}
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": len(args),
	}).Debug("routing command")

	h, ok := r.handlers[cmd]
	if !ok {
		return "❓ Unknown command. Type /help for the list."
	}

	reply, err := h(ctx, args)
	if err != nil {
		return errorText(cmd, err)
	}
	return reply
}

// errorText превращает ошибку в ответ игроку.
// Доменные ошибки показываются как есть, остальные только в лог.
func errorText(cmd string, err error) string {
	var (
		authErr    *common.AuthError
		matchErr   *common.MatchError
		econErr    *common.EconomyError
		backendErr *backend.Error
		usageErr   usageError
		storageErr *common.StorageError
	)
	switch {
	case errors.As(err, &usageErr):
		return "ℹ️ Usage: " + string(usageErr)
	case errors.As(err, &authErr), errors.As(err, &matchErr), errors.As(err, &econErr), errors.As(err, &backendErr):
		return "❌ " + err.Error()
	case errors.As(err, &storageErr):
		log.WithError(err).WithField("cmd", cmd).Error("Ошибка хранилища")
		return "❌ Storage is unavailable right now. Please try again."
	default:
		log.WithError(err).WithField("cmd", cmd).Error("Ошибка выполнения команды")
		return "❌ Something went wrong. Please try again."
	}
}

// usageError — неверные аргументы команды, текст — подсказка.
type usageError string

func (e usageError) Error() string { return "usage: " + string(e) }
