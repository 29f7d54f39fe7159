package pgbackend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/backend"
)

// Таблицы, на изменения которых можно подписаться (триггеры в 004_realtime.sql).
var realtimeTables = map[string]bool{
	"transactions": true,
	"tournaments":  true,
}

// notifyPayload — тело pg_notify из arena_notify_change().
type notifyPayload struct {
	Table  string `json:"table"`
	Op     string `json:"op"`
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

// Subscribe держит отдельное соединение с LISTEN arena_<table>
// и вызывает fn на каждое уведомление, пока ctx не отменён.
func (c *Client) Subscribe(ctx context.Context, table string, fn func(backend.Change)) error {
	if !realtimeTables[table] {
		return fmt.Errorf("подписка на таблицу %q не поддерживается", table)
	}

	conn, err := c.pool.Acquire(ctx)
	if err != nil {
		return c.fail(ctx, "subscribe", err)
	}

	channel := pgx.Identifier{"arena_" + table}.Sanitize()
	listenCtx, cancel := c.bounded(ctx)
	_, err = conn.Exec(listenCtx, "LISTEN "+channel)
	cancel()
	if err != nil {
		conn.Release()
		return c.fail(listenCtx, "subscribe", err)
	}

	log.WithField("table", table).Info("Подписка на изменения установлена")

	go func() {
		defer conn.Release()
		for {
			n, err := conn.Conn().WaitForNotification(ctx)
			if err != nil {
				if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
					log.WithError(err).WithField("table", table).Error("Подписка прервана")
				}
				return
			}

			var p notifyPayload
			if err := json.Unmarshal([]byte(n.Payload), &p); err != nil {
				log.WithError(err).WithField("payload", n.Payload).Warn("Некорректное уведомление")
				continue
			}
			fn(backend.Change{Table: p.Table, Op: p.Op, RowID: p.ID, UserID: p.UserID})
		}
	}()
	return nil
}
