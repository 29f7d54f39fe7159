// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: локальное хранилище, бэкенд (если настроен),
// менеджер личности, координатор экономики, планировщик и транспорт.
package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/benbjohnson/clock"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/backend"
	"cyberarena.app/arena/internal/backend/pgbackend"
	"cyberarena.app/arena/internal/bot"
	"cyberarena.app/arena/internal/bot/filters"
	"cyberarena.app/arena/internal/bot/middleware"
	"cyberarena.app/arena/internal/commands"
	"cyberarena.app/arena/internal/config"
	"cyberarena.app/arena/internal/console"
	"cyberarena.app/arena/internal/db/postgres"
	"cyberarena.app/arena/internal/db/sqlite"
	"cyberarena.app/arena/internal/features/account"
	"cyberarena.app/arena/internal/features/economy"
	"cyberarena.app/arena/internal/features/identity"
	"cyberarena.app/arena/internal/jobs"
)

// App содержит все компоненты приложения.
type App struct {
	Store     *sqlite.Store
	DB        *pgxpool.Pool // nil без бэкенда
	Identity  *identity.Service
	Economy   *economy.Service
	Scheduler *jobs.Scheduler
	Router    *commands.Router
	Bot       *bot.Bot // nil, если работает консоль

	cfg     *config.Config
	limiter *middleware.RateLimiter
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	clk := clock.New()

	// === 1. Локальное хранилище ===
	store, err := sqlite.Open(cfg.LocalDBPath)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия локального хранилища: %w", err)
	}
	a := &App{Store: store, cfg: cfg}

	// === 2. Бэкенд (необязателен) ===
	var client backend.Client
	if cfg.RemoteConfigured() {
		pool, err := connectBackend(ctx, cfg)
		if err != nil {
			log.WithError(err).Warn("Бэкенд недоступен, удалённый режим будет откатываться в локальный")
		} else {
			a.DB = pool
			client = pgbackend.New(pool, pgbackend.Options{
				JWTSecret:  cfg.AuthJWTSecret,
				SessionTTL: cfg.AuthSessionTTL,
				Timeout:    cfg.BackendTimeout,
				Clock:      clk,
			})
		}
	}

	// === 3. Сервисы ===
	session := account.NewSession(account.ModeLocal)
	a.Scheduler = jobs.NewScheduler(economy.MiningTickInterval)
	a.Economy = economy.NewService(session, economy.Options{
		Clock:    clk,
		Ticker:   a.Scheduler,
		Realtime: cfg.FeatureRealtimeEnabled,
	})
	a.Identity = identity.NewService(store, client, session, clk)
	a.Identity.AddListener(a.Economy)

	// === 4. Команды ===
	a.Router = commands.NewRouter(a.Identity, a.Economy, clk)

	// === 5. Планировщик: периодическое обновление данных сессии ===
	refresh := func(ctx context.Context) error {
		if _, ok := a.Identity.Current(); !ok {
			return nil
		}
		return a.Economy.RefreshData(ctx)
	}
	if err := a.Scheduler.ScheduleRefresh(ctx, cfg.RefreshSchedule, refresh); err != nil {
		a.Close()
		return nil, fmt.Errorf("некорректный REFRESH_SCHEDULE: %w", err)
	}

	// === 6. Telegram (если задан токен) ===
	if cfg.TelegramEnabled() {
		api, err := bot.NewAPI(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.limiter = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, clk)
		chatFilter := filters.NewChatFilter(cfg.TelegramChatID, cfg.AllowedUserIDs)
		a.Bot = bot.New(api, cfg, a.Router, chatFilter, a.limiter)
	}

	return a, nil
}

func connectBackend(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}
	if err := postgres.RunMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}
	return pool, nil
}

// Run восстанавливает прошлую сессию, запускает планировщик и транспорт.
// Блокируется до отмены ctx (или до конца ввода в консоли).
func (a *App) Run(ctx context.Context) error {
	if err := a.Identity.Restore(ctx); err != nil {
		log.WithError(err).Warn("Не удалось восстановить сессию")
	}
	if id, ok := a.Identity.Current(); ok {
		log.WithFields(log.Fields{
			"identity_id": id.ID,
			"kind":        id.Kind,
			"mode":        a.Identity.Mode(),
		}).Info("Сессия восстановлена")
	}

	a.Scheduler.Start()

	if a.Bot != nil {
		return a.Bot.Start(ctx)
	}
	err := console.Run(ctx, a.Router, os.Stdin, os.Stdout)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close останавливает фоновые задачи и закрывает хранилища.
func (a *App) Close() {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
	if err := a.Store.Close(); err != nil {
		log.WithError(err).Warn("Ошибка закрытия локального хранилища")
	}
}
