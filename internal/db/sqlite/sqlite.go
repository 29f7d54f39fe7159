// Package sqlite — локальное key-value хранилище устройства.
// Заменяет платформенное хранилище клиента: строковые ключи, значения —
// JSON-строки. Всё лежит в одной таблице kv одного sqlite-файла.
//
// Пул ограничен одним соединением: sqlite всё равно сериализует запись,
// а так транзакция Update видит и блокирует единственное соединение.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

// Store — локальное хранилище «ключ → значение».
type Store struct {
	db *sql.DB
}

// Open открывает (или создаёт) файл хранилища и применяет схему.
//
// Параметры:
//   - path: путь к файлу; ":memory:" — временное хранилище (для тестов)
//
// Пример:
//
//	store, err := sqlite.Open("arena.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer store.Close()
func Open(path string) (*Store, error) {
	dsn := path
	inMemory := path == ":memory:" || strings.Contains(path, "mode=memory")
	if !inMemory {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("ошибка пути хранилища: %w", err)
		}
		dsn = abs
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("ошибка открытия sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if !inMemory {
		// WAL переживает падение процесса посреди записи
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("ошибка включения WAL: %w", err)
		}
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	log.WithField("path", path).Info("Локальное хранилище открыто")
	return &Store{db: db}, nil
}

// migrate создаёт таблицу kv, если её нет.
func migrate(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("ошибка создания таблицы kv: %w", err)
	}
	return nil
}

// Close закрывает хранилище.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get возвращает значение ключа. ok=false, если ключа нет.
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	return get(ctx, s.db, key)
}

// Set записывает значение ключа (insert или replace).
func (s *Store) Set(ctx context.Context, key, value string) error {
	return set(ctx, s.db, key, value)
}

// Remove удаляет ключ. Отсутствующий ключ — не ошибка.
func (s *Store) Remove(ctx context.Context, key string) error {
	return remove(ctx, s.db, key)
}

// Update выполняет fn в одной транзакции sqlite.
// Все чтения и записи через tx видят одно согласованное состояние;
// если fn вернула ошибку — ничего не сохраняется.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Tx{ctx: ctx, tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("ошибка фиксации транзакции: %w", err)
	}
	return nil
}

// View — только чтение внутри транзакции (для согласованного снимка нескольких ключей).
func (s *Store) View(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer sqlTx.Rollback()
	return fn(&Tx{ctx: ctx, tx: sqlTx})
}

// queryer — общее между *sql.DB и *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func get(ctx context.Context, q queryer, key string) (string, bool, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("ошибка чтения ключа %s: %w", key, err)
	}
	return value, true, nil
}

func set(ctx context.Context, q queryer, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	if err != nil {
		return fmt.Errorf("ошибка записи ключа %s: %w", key, err)
	}
	return nil
}

func remove(ctx context.Context, q queryer, key string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("ошибка удаления ключа %s: %w", key, err)
	}
	return nil
}
