package pgbackend

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/backend"
)

const selectUser = `
	SELECT id::text, email, username, balance, debt, rank, level, xp,
	       total_wins, total_losses, win_streak, mining_power, achievements,
	       last_active, created_at
	FROM users`

func scanUser(row pgx.Row) (*backend.UserRow, error) {
	var u backend.UserRow
	err := row.Scan(
		&u.ID, &u.Email, &u.Username, &u.Balance, &u.Debt, &u.Rank, &u.Level, &u.XP,
		&u.TotalWins, &u.TotalLosses, &u.WinStreak, &u.MiningPower, &u.Achievements,
		&u.LastActive, &u.CreatedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &u, nil
}

// FetchProfile возвращает профиль. Нет строки — backend.ErrNotFound.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*backend.UserRow, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	u, err := scanUser(c.pool.QueryRow(ctx, selectUser+` WHERE id = $1`, userID))
	if err != nil {
		return nil, c.fail(ctx, "fetch_profile", err)
	}
	return u, nil
}

// UsernameExists — занято ли имя (без учёта регистра).
func (c *Client) UsernameExists(ctx context.Context, username string) (bool, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	var exists bool
	err := c.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE lower(username) = lower($1))`, username,
	).Scan(&exists)
	if err != nil {
		return false, c.fail(ctx, "username_exists", err)
	}
	return exists, nil
}

// InsertUser создаёт профиль игрока.
func (c *Client) InsertUser(ctx context.Context, u backend.UserRow) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	achievements := u.Achievements
	if achievements == nil {
		achievements = []string{}
	}

	_, err := c.pool.Exec(ctx, `
		INSERT INTO users (
			id, email, username, balance, debt, rank, level, xp,
			total_wins, total_losses, win_streak, mining_power, achievements, last_active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		u.ID, u.Email, u.Username, u.Balance, u.Debt, u.Rank, u.Level, u.XP,
		u.TotalWins, u.TotalLosses, u.WinStreak, u.MiningPower, achievements, c.clock.Now(),
	)
	if isUniqueViolation(err) {
		return backend.NewError("Username is already taken")
	}
	if err != nil {
		return c.fail(ctx, "insert_user", err)
	}

	log.WithFields(log.Fields{
		"user_id":  u.ID,
		"username": u.Username,
	}).Info("Создан профиль игрока")
	return nil
}

// UpdateUser — атомарное чтение-изменение-запись профиля.
// Строка блокируется SELECT ... FOR UPDATE, так что тик майнинга
// и результат игры не затирают друг друга.
func (c *Client) UpdateUser(ctx context.Context, userID string, fn backend.UpdateFunc) (*backend.UserRow, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, c.fail(ctx, "update_user", err)
	}
	defer tx.Rollback(ctx)

	u, err := scanUser(tx.QueryRow(ctx, selectUser+` WHERE id = $1 FOR UPDATE`, userID))
	if err != nil {
		return nil, c.fail(ctx, "update_user", err)
	}

	entry, err := fn(u)
	if err != nil {
		// Ошибки бизнес-правил отдаём как есть
		return nil, err
	}

	u.LastActive = c.clock.Now()
	_, err = tx.Exec(ctx, `
		UPDATE users SET
			username = $2, balance = $3, debt = $4, rank = $5, level = $6, xp = $7,
			total_wins = $8, total_losses = $9, win_streak = $10, mining_power = $11,
			achievements = $12, last_active = $13, updated_at = NOW()
		WHERE id = $1
	`,
		u.ID, u.Username, u.Balance, u.Debt, u.Rank, u.Level, u.XP,
		u.TotalWins, u.TotalLosses, u.WinStreak, u.MiningPower, u.Achievements, u.LastActive,
	)
	if err != nil {
		return nil, c.fail(ctx, "update_user", err)
	}

	if entry != nil {
		entry.UserID = u.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO transactions (user_id, type, amount, fee, description, status)
			VALUES ($1, $2, $3, $4, $5, $6)
			RETURNING id::text, created_at
		`, entry.UserID, entry.Type, entry.Amount, entry.Fee, entry.Description, entry.Status,
		).Scan(&entry.ID, &entry.CreatedAt)
		if err != nil {
			return nil, c.fail(ctx, "insert_transaction", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, c.fail(ctx, "update_user", fmt.Errorf("commit: %w", err))
	}
	return u, nil
}

// ListTransactions — последние операции игрока, новые первыми.
func (c *Client) ListTransactions(ctx context.Context, userID string, limit int) ([]backend.TransactionRow, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx, `
		SELECT id::text, user_id::text, type, amount, fee, description, status, created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, c.fail(ctx, "list_transactions", err)
	}
	defer rows.Close()

	var out []backend.TransactionRow
	for rows.Next() {
		var t backend.TransactionRow
		if err := rows.Scan(&t.ID, &t.UserID, &t.Type, &t.Amount, &t.Fee, &t.Description, &t.Status, &t.CreatedAt); err != nil {
			return nil, c.fail(ctx, "list_transactions", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, c.fail(ctx, "list_transactions", err)
	}
	return out, nil
}
