// Package main — точка входа арены.
// Загружает конфигурацию, инициализирует приложение и запускает транспорт:
// Telegram-бота, если задан токен, иначе консоль.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/app"
	"cyberarena.app/arena/internal/config"
)

func main() {
	// Настраиваем логирование
	setupLogging()

	log.Info("=== Арена запускается ===")

	// Загружаем конфигурацию из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	// Устанавливаем уровень логирования из конфига
	level, err := log.ParseLevel(cfg.AppLogLevel)
	if err == nil {
		log.SetLevel(level)
	}

	// Контекст с отменой для graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}
	defer application.Close()

	// Обрабатываем сигналы остановки (Ctrl+C, docker stop)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)
	go func() { done <- application.Run(ctx) }()

	log.Info("=== Арена готова к работе ===")

	select {
	case sig := <-quit:
		log.Infof("Получен сигнал %s, останавливаемся...", sig)
		cancel()
		<-done
	case err := <-done:
		if err != nil {
			log.WithError(err).Error("Транспорт остановился с ошибкой")
		}
	}

	log.Info("=== Арена остановлена ===")
}

// setupLogging настраивает формат логов.
// Консольный режим пишет логи в stderr, чтобы не мешать вводу.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stderr)
	log.SetLevel(log.DebugLevel)
}
