// Package console — транспорт для терминала, когда токен Telegram не задан.
// Каждая строка ввода — команда; префикс "/" можно не писать.
package console

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/bot/middleware"
)

// Handler выполняет команду и возвращает ответ.
type Handler interface {
	Handle(ctx context.Context, text string) string
}

const (
	prompt     = "arena> "
	panicReply = "❌ Something went wrong. Please try again."
)

// Run читает команды из in до EOF, "exit" или отмены ctx.
func Run(ctx context.Context, h Handler, in io.Reader, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- scanner.Err()
	}()

	fmt.Fprint(out, prompt)
	for {
		select {
		case <-ctx.Done():
			return nil

		case line, ok := <-lines:
			if !ok {
				fmt.Fprintln(out)
				select {
				case err := <-errc:
					return err
				default:
					return nil
				}
			}

			line = strings.TrimSpace(line)
			switch line {
			case "":
				fmt.Fprint(out, prompt)
				continue
			case "exit", "quit":
				log.Info("Консоль закрыта по команде")
				return nil
			}
			if !strings.ContainsAny(line[:1], "/!.") {
				line = "/" + line
			}

			if reply := handle(ctx, h, line); reply != "" {
				fmt.Fprintln(out, reply)
			}
			fmt.Fprint(out, prompt)
		}
	}
}

// handle выполняет одну команду; паника в ней не завершает консоль.
// При панике остаётся ответ panicReply.
func handle(ctx context.Context, h Handler, line string) (reply string) {
	reply = panicReply
	defer middleware.RecoverFromPanic()
	return h.Handle(ctx, line)
}
