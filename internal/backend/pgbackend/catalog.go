package pgbackend

import (
	"context"

	"cyberarena.app/arena/internal/backend"
)

// Games — каталог игр по имени.
func (c *Client) Games(ctx context.Context) ([]backend.GameRow, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx, `
		SELECT id::text, name, type, description, icon, min_bet, max_players, duration, difficulty, category
		FROM games
		ORDER BY name
	`)
	if err != nil {
		return nil, c.fail(ctx, "games", err)
	}
	defer rows.Close()

	var out []backend.GameRow
	for rows.Next() {
		var g backend.GameRow
		if err := rows.Scan(&g.ID, &g.Name, &g.Type, &g.Description, &g.Icon, &g.MinBet,
			&g.MaxPlayers, &g.Duration, &g.Difficulty, &g.Category); err != nil {
			return nil, c.fail(ctx, "games", err)
		}
		out = append(out, g)
	}
	if err := rows.Err(); err != nil {
		return nil, c.fail(ctx, "games", err)
	}
	return out, nil
}

// Leaderboard — первые limit строк представления leaderboard.
func (c *Client) Leaderboard(ctx context.Context, limit int) ([]backend.LeaderboardRow, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx, `
		SELECT rank, username, wins, win_rate::float8, total_earnings, level
		FROM leaderboard
		ORDER BY rank
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, c.fail(ctx, "leaderboard", err)
	}
	defer rows.Close()

	var out []backend.LeaderboardRow
	for rows.Next() {
		var r backend.LeaderboardRow
		if err := rows.Scan(&r.Rank, &r.Username, &r.Wins, &r.WinRate, &r.TotalEarnings, &r.Level); err != nil {
			return nil, c.fail(ctx, "leaderboard", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, c.fail(ctx, "leaderboard", err)
	}
	return out, nil
}

// LiveTournaments — предстоящие и идущие турниры по времени старта.
func (c *Client) LiveTournaments(ctx context.Context) ([]backend.TournamentRow, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	rows, err := c.pool.Query(ctx, `
		SELECT t.id::text, t.name, t.game_id::text, COALESCE(g.name, ''), t.entry_fee, t.prize_pool,
		       t.max_participants, t.current_participants, t.status, t.start_time, t.rounds, t.difficulty
		FROM tournaments t
		LEFT JOIN games g ON g.id = t.game_id
		WHERE t.status IN ('upcoming', 'active')
		ORDER BY t.start_time
	`)
	if err != nil {
		return nil, c.fail(ctx, "live_tournaments", err)
	}
	defer rows.Close()

	var out []backend.TournamentRow
	for rows.Next() {
		var t backend.TournamentRow
		if err := rows.Scan(&t.ID, &t.Name, &t.GameID, &t.GameName, &t.EntryFee, &t.PrizePool,
			&t.MaxParticipants, &t.CurrentParticipants, &t.Status, &t.StartTime, &t.Rounds, &t.Difficulty); err != nil {
			return nil, c.fail(ctx, "live_tournaments", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, c.fail(ctx, "live_tournaments", err)
	}
	return out, nil
}
