package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Tx — доступ к хранилищу внутри транзакции Update/View.
type Tx struct {
	ctx context.Context
	tx  *sql.Tx
}

// Get возвращает значение ключа. ok=false, если ключа нет.
func (t *Tx) Get(key string) (string, bool, error) {
	return get(t.ctx, t.tx, key)
}

// Set записывает значение ключа.
func (t *Tx) Set(key, value string) error {
	return set(t.ctx, t.tx, key, value)
}

// Remove удаляет ключ.
func (t *Tx) Remove(key string) error {
	return remove(t.ctx, t.tx, key)
}

// GetJSON читает ключ и декодирует JSON в dst.
// Возвращает false, если ключа нет (dst не трогается).
func (t *Tx) GetJSON(key string, dst any) (bool, error) {
	raw, ok, err := t.Get(key)
	if err != nil || !ok {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("повреждённое значение %s: %w", key, err)
	}
	return true, nil
}

// SetJSON кодирует v в JSON и записывает под ключом.
func (t *Tx) SetJSON(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("ошибка сериализации %s: %w", key, err)
	}
	return t.Set(key, string(raw))
}
