// Package pgbackend — реализация backend.Client поверх PostgreSQL.
//
// Аутентификация: таблица auth_users (пароли Argon2id) и JWT-токены HS256,
// выданные токены учитываются в auth_sessions, чтобы выход их отзывал.
// Realtime: LISTEN/NOTIFY на каналах arena_<таблица> (триггеры в миграциях).
//
// Каждый вызов ограничен таймаутом; истечение превращается
// в backend.Error{"request timed out"}.
package pgbackend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/backend"
)

// Код ошибки PostgreSQL unique_violation
const pgUniqueViolation = "23505"

// Options — параметры клиента.
type Options struct {
	JWTSecret  string
	SessionTTL time.Duration
	Timeout    time.Duration
	Clock      clock.Clock
}

// Client работает с базой бэкенда.
type Client struct {
	pool    *pgxpool.Pool
	secret  []byte
	ttl     time.Duration
	timeout time.Duration
	clock   clock.Clock
}

var _ backend.Client = (*Client)(nil)

// New создаёт клиент бэкенда поверх готового пула.
func New(pool *pgxpool.Pool, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 7 * 24 * time.Hour
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Client{
		pool:    pool,
		secret:  []byte(opts.JWTSecret),
		ttl:     opts.SessionTTL,
		timeout: opts.Timeout,
		clock:   opts.Clock,
	}
}

// bounded ограничивает вызов таймаутом клиента.
func (c *Client) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

// Ping проверяет доступность базы.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()
	return c.fail(ctx, "ping", c.pool.Ping(ctx))
}

// fail приводит ошибку базы к backend.Error.
// ErrNotFound и уже готовые backend.Error проходят как есть.
func (c *Client) fail(ctx context.Context, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, backend.ErrNotFound) {
		return err
	}
	if _, ok := backend.AsError(err); ok {
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		log.WithFields(log.Fields{
			"op":      op,
			"timeout": c.timeout,
		}).Warn("Бэкенд не ответил вовремя")
		return backend.NewError(backend.MsgTimeout)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		log.WithFields(log.Fields{
			"op":         op,
			"code":       pgErr.Code,
			"constraint": pgErr.ConstraintName,
		}).WithError(err).Warn("Ошибка запроса к бэкенду")
		return backend.NewError(pgErr.Message)
	}

	log.WithField("op", op).WithError(err).Error("Бэкенд недоступен")
	return backend.NewError(fmt.Sprintf("%s: %v", backend.MsgUnavailable, err))
}

// isUniqueViolation — нарушение уникального индекса (email, username).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// notFound переводит pgx.ErrNoRows в backend.ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return backend.ErrNotFound
	}
	return err
}
