package pgbackend

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cyberarena.app/arena/internal/backend"
	"cyberarena.app/arena/internal/db/postgres"
)

func TestTokenRoundTrip(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC))
	c := New(nil, Options{JWTSecret: "secret", SessionTTL: time.Hour, Clock: mock})

	token, err := c.issueToken("user-1", "neo@matrix.io", "jti-1")
	require.NoError(t, err)

	claims, err := c.parseToken(token)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "jti-1", claims.ID)
	require.Equal(t, "neo@matrix.io", claims.Email)

	mock.Add(2 * time.Hour)
	_, err = c.parseToken(token)
	require.Error(t, err)

	other := New(nil, Options{JWTSecret: "other", Clock: mock})
	_, err = other.parseToken(token)
	require.Error(t, err)
}

func TestDecodeRPC(t *testing.T) {
	res, err := decodeRPC("create_room", []byte(`{"success":true,"room_id":"r1","room_code":"ABC123"}`), "x")
	require.NoError(t, err)
	require.Equal(t, &backend.RoomResult{RoomID: "r1", RoomCode: "ABC123"}, res)

	_, err = decodeRPC("join_room", []byte(`{"success":false,"error":"Room is full"}`), "x")
	be, ok := backend.AsError(err)
	require.True(t, ok)
	require.Equal(t, "Room is full", be.Message)

	_, err = decodeRPC("join_room", []byte(`{"success":false}`), "Failed to join room")
	require.EqualError(t, err, "Failed to join room")

	_, err = decodeRPC("join_room", []byte(`not json`), "x")
	require.Error(t, err)
}

// Интеграционный тест: нужен живой PostgreSQL в ARENA_TEST_DSN.
func TestPostgresBackend(t *testing.T) {
	dsn := os.Getenv("ARENA_TEST_DSN")
	if dsn == "" {
		t.Skip("ARENA_TEST_DSN не задан")
	}
	ctx := context.Background()

	pool, err := postgres.Connect(ctx, dsn, 4, 0)
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	require.NoError(t, postgres.RunMigrations(ctx, pool))

	c := New(pool, Options{JWTSecret: "integration", Timeout: 5 * time.Second})
	suffix := uuid.NewString()[:8]
	email := fmt.Sprintf("neo_%s@matrix.io", suffix)

	id, err := c.SignUp(ctx, email, "secret1")
	require.NoError(t, err)

	_, err = c.SignUp(ctx, email, "secret1")
	be, ok := backend.AsError(err)
	require.True(t, ok)
	require.Equal(t, backend.MsgUserExists, be.Message)

	_, err = c.SignInWithPassword(ctx, email, "wrong-password")
	be, ok = backend.AsError(err)
	require.True(t, ok)
	require.Equal(t, backend.MsgInvalidCredentials, be.Message)

	session, err := c.SignInWithPassword(ctx, email, "secret1")
	require.NoError(t, err)
	require.Equal(t, id, session.UserID)

	_, err = c.FetchProfile(ctx, id)
	require.ErrorIs(t, err, backend.ErrNotFound)

	require.NoError(t, c.InsertUser(ctx, backend.UserRow{
		ID: id, Email: email, Username: "neo_" + suffix,
		Balance: decimal.NewFromInt(5), Rank: 999999, Level: 1, MiningPower: 500,
	}))
	exists, err := c.UsernameExists(ctx, "NEO_"+suffix)
	require.NoError(t, err)
	require.True(t, exists)

	updated, err := c.UpdateUser(ctx, id, func(u *backend.UserRow) (*backend.TransactionRow, error) {
		u.Balance = u.Balance.Add(decimal.NewFromInt(1))
		u.TotalWins++
		return &backend.TransactionRow{Type: "win", Amount: decimal.NewFromInt(1), Description: "Won", Status: "completed"}, nil
	})
	require.NoError(t, err)
	require.True(t, updated.Balance.Equal(decimal.NewFromInt(6)))

	txs, err := c.ListTransactions(ctx, id, 20)
	require.NoError(t, err)
	require.Len(t, txs, 1)
	require.Equal(t, "win", txs[0].Type)

	games, err := c.Games(ctx)
	require.NoError(t, err)
	require.Len(t, games, 11)

	room, err := c.CreateRoom(ctx, backend.CreateRoomParams{
		GameID: games[0].ID, HostID: id, HostUsername: "neo", MaxPlayers: 2, SpectatorsAllowed: true,
	})
	require.NoError(t, err)
	require.Len(t, room.RoomCode, 6)

	restored, err := c.GetSession(ctx, session.AccessToken)
	require.NoError(t, err)
	require.NotNil(t, restored)

	require.NoError(t, c.SignOut(ctx, session.AccessToken))
	restored, err = c.GetSession(ctx, session.AccessToken)
	require.NoError(t, err)
	require.Nil(t, restored)
}
