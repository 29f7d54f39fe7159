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

// rpcResult — JSON-ответ функций create_room/join_room.
type rpcResult struct {
	Success  bool   `json:"success"`
	RoomID   string `json:"room_id"`
	RoomCode string `json:"room_code"`
	Error    string `json:"error"`
}

// CreateRoom вызывает create_room.
func (c *Client) CreateRoom(ctx context.Context, p backend.CreateRoomParams) (*backend.RoomResult, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	var raw []byte
	err := c.pool.QueryRow(ctx, `SELECT create_room($1::uuid, $2::uuid, $3, $4, $5, $6)`,
		p.GameID, p.HostID, p.HostUsername, p.MaxPlayers, p.IsPrivate, p.SpectatorsAllowed,
	).Scan(&raw)
	if err != nil {
		return nil, c.fail(ctx, "create_room", err)
	}
	return decodeRPC("create_room", raw, "Failed to create room")
}

// JoinRoom вызывает join_room.
func (c *Client) JoinRoom(ctx context.Context, p backend.JoinRoomParams) (*backend.RoomResult, error) {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	var raw []byte
	err := c.pool.QueryRow(ctx, `SELECT join_room($1, $2::uuid, $3, $4)`,
		p.RoomCode, p.UserID, p.Username, p.Role,
	).Scan(&raw)
	if err != nil {
		return nil, c.fail(ctx, "join_room", err)
	}
	return decodeRPC("join_room", raw, "Failed to join room")
}

func decodeRPC(name string, raw []byte, fallback string) (*backend.RoomResult, error) {
	var res rpcResult
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("неожиданный ответ %s: %w", name, err)
	}
	if !res.Success {
		if res.Error == "" {
			res.Error = fallback
		}
		return nil, backend.NewError(res.Error)
	}
	if res.RoomID == "" {
		return nil, fmt.Errorf("неожиданный ответ %s: нет room_id", name)
	}
	return &backend.RoomResult{RoomID: res.RoomID, RoomCode: res.RoomCode}, nil
}

// JoinTournament записывает игрока в турнир.
// Ошибки («Tournament is full» и т.п.) показываются игроку как есть.
func (c *Client) JoinTournament(ctx context.Context, tournamentID, userID string) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return c.fail(ctx, "join_tournament", err)
	}
	defer tx.Rollback(ctx)

	var (
		maxParticipants int
		current         int
		status          string
	)
	err = tx.QueryRow(ctx, `
		SELECT max_participants, current_participants, status
		FROM tournaments WHERE id = $1 FOR UPDATE
	`, tournamentID).Scan(&maxParticipants, &current, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return backend.NewError("Tournament not found")
	}
	if err != nil {
		return c.fail(ctx, "join_tournament", err)
	}

	if status != "upcoming" && status != "active" {
		return backend.NewError("Tournament is not open for registration")
	}
	if current >= maxParticipants {
		return backend.NewError("Tournament is full")
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO tournament_participants (tournament_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, tournamentID, userID)
	if err != nil {
		return c.fail(ctx, "join_tournament", err)
	}
	if tag.RowsAffected() == 0 {
		return backend.NewError("Already joined this tournament")
	}

	if _, err := tx.Exec(ctx, `
		UPDATE tournaments SET current_participants = current_participants + 1, updated_at = NOW()
		WHERE id = $1
	`, tournamentID); err != nil {
		return c.fail(ctx, "join_tournament", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return c.fail(ctx, "join_tournament", err)
	}

	log.WithFields(log.Fields{
		"tournament_id": tournamentID,
		"user_id":       userID,
	}).Info("Игрок записан в турнир")
	return nil
}

// SpectateMatch добавляет зрителя турнира. Повторный вызов не ошибка.
func (c *Client) SpectateMatch(ctx context.Context, tournamentID, userID string) error {
	ctx, cancel := c.bounded(ctx)
	defer cancel()

	var exists bool
	if err := c.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM tournaments WHERE id = $1)`, tournamentID,
	).Scan(&exists); err != nil {
		return c.fail(ctx, "spectate_match", err)
	}
	if !exists {
		return backend.NewError("Tournament not found")
	}

	_, err := c.pool.Exec(ctx, `
		INSERT INTO tournament_spectators (tournament_id, user_id) VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, tournamentID, userID)
	return c.fail(ctx, "spectate_match", err)
}
