package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/mymmrac/telego"
	"github.com/stretchr/testify/require"

	"cyberarena.app/arena/internal/bot/filters"
	"cyberarena.app/arena/internal/bot/middleware"
	"cyberarena.app/arena/internal/commands"
	"cyberarena.app/arena/internal/config"
	"cyberarena.app/arena/internal/db/sqlite"
	"cyberarena.app/arena/internal/features/account"
	"cyberarena.app/arena/internal/features/economy"
	"cyberarena.app/arena/internal/features/identity"
)

const arenaChat = int64(-1001)

type recordingSender struct {
	mu   sync.Mutex
	sent []*telego.SendMessageParams
}

func (s *recordingSender) SendMessage(_ context.Context, params *telego.SendMessageParams) (*telego.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, params)
	return &telego.Message{}, nil
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, p := range s.sent {
		out = append(out, p.Text)
	}
	return out
}

func newTestBot(t *testing.T, limit int) (*Bot, *recordingSender) {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := clock.NewMock()
	session := account.NewSession(account.ModeLocal)
	econ := economy.NewService(session, economy.Options{Clock: clk})
	ids := identity.NewService(store, nil, session, clk)
	ids.AddListener(econ)

	limiter := middleware.NewRateLimiter(limit, time.Minute, clk)
	t.Cleanup(limiter.Close)

	sender := &recordingSender{}
	cfg := &config.Config{TelegramChatID: arenaChat, BotMaxInflight: 4}
	b := newBot(sender, cfg, commands.NewRouter(ids, econ, clk), filters.NewChatFilter(arenaChat, nil), limiter)
	return b, sender
}

func message(chatID, userID int64, text string) telego.Update {
	return telego.Update{Message: &telego.Message{
		Chat: telego.Chat{ID: chatID, Type: telego.ChatTypeGroup},
		From: &telego.User{ID: userID, Username: "neo"},
		Text: text,
	}}
}

func TestHandleUpdateRepliesInArenaChat(t *testing.T) {
	b, sender := newTestBot(t, 10)
	ctx := context.Background()

	b.handleUpdate(ctx, message(arenaChat, 7, "/guest Neo"))
	b.handleUpdate(ctx, message(arenaChat, 7, "hello there"))
	b.handleUpdate(ctx, message(555, 7, "/me"))
	b.handleUpdate(ctx, telego.Update{})

	texts := sender.texts()
	require.Len(t, texts, 1)
	require.Contains(t, texts[0], "Hi, Neo!")
	require.Equal(t, arenaChat, sender.sent[0].ChatID.ID)
}

func TestCredentialCommandsOnlyInPrivateChat(t *testing.T) {
	b, sender := newTestBot(t, 10)
	ctx := context.Background()

	b.handleUpdate(ctx, message(arenaChat, 7, "/signup neo@matrix.io redpill Neo"))
	b.handleUpdate(ctx, message(arenaChat, 7, "/SignIn@arena_bot neo@matrix.io redpill"))

	private := message(arenaChat, 7, "/signup neo@matrix.io redpill Neo")
	private.Message.Chat.Type = telego.ChatTypePrivate
	b.handleUpdate(ctx, private)

	texts := sender.texts()
	require.Len(t, texts, 3)
	require.Equal(t, privateOnlyReply, texts[0])
	require.Equal(t, privateOnlyReply, texts[1])
	require.Contains(t, texts[2], "Account Neo created")
}

func TestHandleUpdateRateLimited(t *testing.T) {
	b, sender := newTestBot(t, 2)
	ctx := context.Background()

	for range 4 {
		b.handleUpdate(ctx, message(arenaChat, 7, "/help"))
	}
	require.Len(t, sender.texts(), 2)
}

func TestChatFilterAllowList(t *testing.T) {
	f := filters.NewChatFilter(arenaChat, []int64{7})

	require.True(t, f.CheckAccess(message(arenaChat, 7, "/me").Message))
	require.False(t, f.CheckAccess(message(arenaChat, 8, "/me").Message))
	require.False(t, f.CheckAccess(&telego.Message{Chat: telego.Chat{ID: arenaChat}}))
	require.False(t, f.CheckAccess(nil))
}
