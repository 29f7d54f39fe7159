package pgbackend

import (
	"context"
	"errors"

	"cyberarena.app/arena/internal/backend"
)

// ActiveMiningSession — активная сессия майнинга или nil.
func (c *Client) ActiveMiningSession(ctx context.Context, userID string) (*backend.MiningSessionRow, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	var m backend.MiningSessionRow
	err := c.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, hash_rate, start_time, end_time, coins_earned, status, efficiency
		FROM mining_sessions
		WHERE user_id = $1 AND status = 'active'
	`, userID).Scan(&m.ID, &m.UserID, &m.HashRate, &m.StartTime, &m.EndTime, &m.CoinsEarned, &m.Status, &m.Efficiency)
	if err := notFound(err); errors.Is(err, backend.ErrNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, c.fail(ctx, "active_mining_session", err)
	}
	return &m, nil
}

// InsertMiningSession сохраняет новую сессию и возвращает её с id из базы.
func (c *Client) InsertMiningSession(ctx context.Context, m backend.MiningSessionRow) (*backend.MiningSessionRow, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	err := c.pool.QueryRow(ctx, `
		INSERT INTO mining_sessions (user_id, hash_rate, start_time, coins_earned, status, efficiency)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id::text
	`, m.UserID, m.HashRate, m.StartTime, m.CoinsEarned, m.Status, m.Efficiency).Scan(&m.ID)
	if isUniqueViolation(err) {
		return nil, backend.NewError("Mining session already active")
	}
	if err != nil {
		return nil, c.fail(ctx, "insert_mining_session", err)
	}
	return &m, nil
}

// UpdateMiningSession записывает накопленное и статус.
func (c *Client) UpdateMiningSession(ctx context.Context, m backend.MiningSessionRow) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	_, err := c.pool.Exec(ctx, `
		UPDATE mining_sessions
		SET coins_earned = $2, status = $3, end_time = $4, updated_at = NOW()
		WHERE id = $1
	`, m.ID, m.CoinsEarned, m.Status, m.EndTime)
	return c.fail(ctx, "update_mining_session", err)
}
