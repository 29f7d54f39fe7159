// Package config загружает конфигурацию арены из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- Local storage ---
	// Файл sqlite с key-value хранилищем устройства (гость, локальные аккаунты, флаг режима)
	LocalDBPath string `envconfig:"LOCAL_DB_PATH" default:"arena.db"`

	// --- Hosted backend (PostgreSQL) ---
	// Пустой DB_HOST = бэкенда нет, удалённый режим всегда откатывается в локальный.
	DBHost     string `envconfig:"DB_HOST" default:""`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"arena"`
	DBPassword string `envconfig:"DB_PASSWORD" default:""`
	DBName     string `envconfig:"DB_NAME" default:"arena"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"10"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"1"`

	// Ограничение на каждый вызов бэкенда
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`

	// --- Auth ---
	AuthJWTSecret  string        `envconfig:"AUTH_JWT_SECRET" default:""`
	AuthSessionTTL time.Duration `envconfig:"AUTH_SESSION_TTL" default:"168h"`

	// --- Telegram (необязательно: без токена работает консоль) ---
	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN" default:""`
	// Единственный чат, который обслуживает бот
	TelegramChatID int64 `envconfig:"TELEGRAM_CHAT_ID" default:"0"`
	// Кому разрешено писать боту (пусто = всем в чате)
	AllowedUserIDsRaw string  `envconfig:"BOT_ALLOWED_USER_IDS" default:""`
	AllowedUserIDs    []int64 `envconfig:"-"` // заполним вручную

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"16"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"20"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Jobs ---
	// cron-выражение обновления каталога, лидерборда и турниров
	RefreshSchedule string `envconfig:"REFRESH_SCHEDULE" default:"@every 5m"`

	// --- Feature Flags ---
	FeatureRemoteEnabled   bool `envconfig:"FEATURE_REMOTE_ENABLED" default:"true"`
	FeatureRealtimeEnabled bool `envconfig:"FEATURE_REALTIME_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// RemoteConfigured — есть ли вообще куда подключаться в удалённом режиме.
func (c *Config) RemoteConfigured() bool {
	return c.FeatureRemoteEnabled && c.DBHost != ""
}

// TelegramEnabled — запускать бота вместо консоли.
func (c *Config) TelegramEnabled() bool {
	return c.TelegramBotToken != ""
}

func (c *Config) Validate() error {
	if c.LocalDBPath == "" {
		return fmt.Errorf("LOCAL_DB_PATH не задан")
	}
	if c.BackendTimeout <= 0 {
		return fmt.Errorf("BACKEND_TIMEOUT должен быть > 0")
	}
	if c.RemoteConfigured() {
		if c.AuthJWTSecret == "" {
			return fmt.Errorf("AUTH_JWT_SECRET обязателен при заданном DB_HOST")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	}
	if c.TelegramEnabled() {
		if c.TelegramChatID == 0 {
			return fmt.Errorf("TELEGRAM_CHAT_ID не задан или равен 0")
		}
		if c.BotMaxInflight <= 0 {
			return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
		}
		if c.BotUpdateTimeoutSeconds <= 0 {
			return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
		}
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("некорректные RATE_LIMIT_REQUESTS/RATE_LIMIT_WINDOW")
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AllowedUserIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("BOT_ALLOWED_USER_IDS parse: %w", err)
	}
	cfg.AllowedUserIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
