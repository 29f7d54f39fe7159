package economy

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cyberarena.app/arena/internal/backend"
	"cyberarena.app/arena/internal/backend/backendtest"
	"cyberarena.app/arena/internal/common"
	"cyberarena.app/arena/internal/db/sqlite"
	"cyberarena.app/arena/internal/features/account"
	"cyberarena.app/arena/internal/features/identity"
)

const (
	reactionGame = "550e8400-e29b-41d4-a716-446655440001" // min bet 0.33
	chessGame    = "550e8400-e29b-41d4-a716-446655440007" // min bet 0.50
)

// switchRandom возвращает заданное значение; 0 — всегда победа, 0.99 — всегда поражение.
type switchRandom struct {
	mu sync.Mutex
	v  float64
}

func (r *switchRandom) Float64() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.v
}

func (r *switchRandom) set(v float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.v = v
}

type manualTicker struct {
	mu     sync.Mutex
	fn     func()
	starts int
	stops  int
}

func (t *manualTicker) StartMining(fn func()) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fn = fn
	t.starts++
	return nil
}

func (t *manualTicker) StopMining() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fn = nil
	t.stops++
}

func (t *manualTicker) active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fn != nil
}

func (t *manualTicker) tick() {
	t.mu.Lock()
	fn := t.fn
	t.mu.Unlock()
	if fn != nil {
		fn()
	}
}

type fixture struct {
	econ     *Service
	identity *identity.Service
	session  *account.Session
	clock    *clock.Mock
	random   *switchRandom
	ticker   *manualTicker
}

func newFixture(t *testing.T, client backend.Client, mode account.Mode) *fixture {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := clock.NewMock()
	session := account.NewSession(mode)
	rnd := &switchRandom{}
	ticker := &manualTicker{}
	econ := NewService(session, Options{
		Clock:    clk,
		Random:   rnd,
		Ticker:   ticker,
		Realtime: true,
	})
	ids := identity.NewService(store, client, session, clk)
	ids.AddListener(econ)

	return &fixture{econ: econ, identity: ids, session: session, clock: clk, random: rnd, ticker: ticker}
}

func (f *fixture) me(t *testing.T) account.Identity {
	t.Helper()
	id, ok := f.session.Identity()
	require.True(t, ok)
	return id
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func requireMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.True(t, money(want).Equal(got), "want %s, got %s", want, got)
}

func TestWinChanceBounds(t *testing.T) {
	cases := map[float64]float64{
		-100:  0.10,
		0:     0.10,
		100:   0.10,
		500:   0.50,
		1000:  0.90,
		50000: 0.90,
	}
	for score, want := range cases {
		require.InDelta(t, want, WinChance(score), 1e-9, "score %v", score)
	}
}

func TestWinStreakBonusOnThirdWin(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()
	_, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	want := []struct {
		balance string
		bonus   bool
	}{
		{"6.00", false},
		{"7.00", false},
		{"9.00", true},
		{"10.00", false},
	}
	for i, w := range want {
		out, err := f.econ.SubmitGameResult(ctx, 1000, GameData{GameID: reactionGame})
		require.NoError(t, err)
		require.True(t, out.Won)
		require.Equal(t, w.bonus, out.StreakBonus, "win %d", i+1)
		requireMoney(t, w.balance, f.me(t).Balance)
	}
	require.Equal(t, 4, f.me(t).WinStreak)
}

func TestLossResetsStreakAndDebitsMinBet(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()
	_, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	for range 2 {
		_, err := f.econ.SubmitGameResult(ctx, 900, GameData{GameID: reactionGame})
		require.NoError(t, err)
	}
	require.Equal(t, 2, f.me(t).WinStreak)

	f.random.set(0.99)
	out, err := f.econ.SubmitGameResult(ctx, 900, GameData{GameID: reactionGame})
	require.NoError(t, err)
	require.False(t, out.Won)
	requireMoney(t, "-0.33", out.Amount)

	me := f.me(t)
	require.Zero(t, me.WinStreak)
	require.Equal(t, 1, me.TotalLosses)
	require.Equal(t, 225, me.XP)
	requireMoney(t, "6.67", me.Balance)

	txs := f.econ.Transactions()
	require.Len(t, txs, 3)
	require.Equal(t, account.TxLoss, txs[0].Type)
	require.Contains(t, txs[0].Description, "Lost Reaction Master")
}

func TestPracticeAndUnknownGame(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()
	_, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	out, err := f.econ.SubmitGameResult(ctx, 1000, GameData{GameID: reactionGame, IsPractice: true})
	require.NoError(t, err)
	require.True(t, out.Practice)

	out, err = f.econ.SubmitGameResult(ctx, 1000, GameData{GameID: "no-such-game"})
	require.NoError(t, err)
	require.Nil(t, out)

	requireMoney(t, "5.00", f.me(t).Balance)
	require.Empty(t, f.econ.Transactions())
}

func TestNonFiniteScoresSettle(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()
	_, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	scores := []struct {
		score float64
		text  string
	}{
		{math.NaN(), "NaN"},
		{math.Inf(1), "+Inf"},
		{math.Inf(-1), "-Inf"},
	}
	for _, sc := range scores {
		require.NotPanics(t, func() {
			out, err := f.econ.SubmitGameResult(ctx, sc.score, GameData{GameID: reactionGame})
			require.NoError(t, err)
			require.True(t, out.Won)
		}, "score %s", sc.text)
	}

	txs := f.econ.Transactions()
	require.Len(t, txs, 3)
	for i, sc := range scores {
		tx := txs[len(txs)-1-i]
		require.Equal(t, account.TxWin, tx.Type)
		require.Contains(t, tx.Description, "(Score: "+sc.text+")")
	}
	// третья победа подряд приносит бонус
	requireMoney(t, "9.00", f.me(t).Balance)
}

func TestConcurrentPayoutsAreSerialized(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()
	_, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	_, err = f.econ.ToggleMining(ctx)
	require.NoError(t, err)

	const (
		games    = 12
		deposits = 6
		ticks    = 20
	)
	var (
		wg      sync.WaitGroup
		stopped account.MiningSession
		stopErr error
	)
	for range games {
		wg.Go(func() {
			_, err := f.econ.SubmitGameResult(ctx, 1000, GameData{GameID: reactionGame})
			assert.NoError(t, err)
		})
	}
	for range deposits {
		wg.Go(func() {
			_, err := f.econ.DepositCrypto(ctx, money("1"))
			assert.NoError(t, err)
		})
	}
	for range ticks {
		wg.Go(f.ticker.tick)
	}
	wg.Go(func() {
		stopped, stopErr = f.econ.ToggleMining(ctx)
	})
	wg.Wait()

	require.NoError(t, stopErr)
	require.Equal(t, account.MiningStopped, stopped.Status)
	require.Nil(t, f.econ.MiningSession())

	// 5.00 + 12 побед по 1.00 + бонус серии + 6 депозитов + выплата майнинга
	want := money("24.00").Add(stopped.CoinsEarned)
	me := f.me(t)
	requireMoney(t, want.String(), me.Balance)
	require.Equal(t, games, me.TotalWins)
	require.Equal(t, games, me.WinStreak)

	entries := games + deposits
	if stopped.CoinsEarned.IsPositive() {
		entries++
	}
	require.Len(t, f.econ.Transactions(), entries)
}

func TestMiningAccrualAndPayout(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()
	_, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	m, err := f.econ.ToggleMining(ctx)
	require.NoError(t, err)
	require.Equal(t, account.MiningActive, m.Status)
	require.Equal(t, 500, m.HashRate)
	require.True(t, f.ticker.active())

	prev := decimal.Zero
	for range 3 {
		f.clock.Add(MiningTickInterval)
		f.ticker.tick()
		coins := f.econ.MiningSession().CoinsEarned
		require.True(t, coins.GreaterThan(prev))
		requireMoney(t, "0.00025", coins.Sub(prev))
		prev = coins
	}

	stopped, err := f.econ.ToggleMining(ctx)
	require.NoError(t, err)
	require.Equal(t, account.MiningStopped, stopped.Status)
	requireMoney(t, "0.00075", stopped.CoinsEarned)
	require.False(t, f.ticker.active())
	require.Nil(t, f.econ.MiningSession())

	requireMoney(t, "5.00075", f.me(t).Balance)
	txs := f.econ.Transactions()
	require.Len(t, txs, 1)
	require.Equal(t, account.TxMining, txs[0].Type)
	requireMoney(t, "0.00075", txs[0].Amount)
}

func TestStopWithoutEarningsAddsNoTransaction(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()
	_, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	_, err = f.econ.ToggleMining(ctx)
	require.NoError(t, err)
	_, err = f.econ.ToggleMining(ctx)
	require.NoError(t, err)

	// Повторный старт регистрирует тик заново, а не второй раз поверх
	_, err = f.econ.ToggleMining(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, f.ticker.starts)
	require.Empty(t, f.econ.Transactions())
	requireMoney(t, "5.00", f.me(t).Balance)
}

func TestMiningSurvivesSignOut(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()
	_, err := f.identity.SignUp(ctx, "neo@matrix.io", "redpill", "Neo")
	require.NoError(t, err)
	_, err = f.identity.SignIn(ctx, "neo@matrix.io", "redpill")
	require.NoError(t, err)

	_, err = f.econ.ToggleMining(ctx)
	require.NoError(t, err)
	f.ticker.tick()

	require.NoError(t, f.identity.SignOut(ctx))
	require.False(t, f.ticker.active())
	require.Nil(t, f.econ.MiningSession())

	_, err = f.identity.SignIn(ctx, "neo@matrix.io", "redpill")
	require.NoError(t, err)
	require.True(t, f.ticker.active())
	m := f.econ.MiningSession()
	require.NotNil(t, m)
	requireMoney(t, "0.00025", m.CoinsEarned)
}

func TestWithdrawal(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()

	_, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)
	res := f.econ.WithdrawCrypto(ctx, money("1"))
	require.False(t, res.Success)
	require.True(t, res.Fee.IsZero())
	require.ErrorIs(t, res.Reason, common.ErrGuestWithdrawal)

	_, err = f.identity.SignUp(ctx, "neo@matrix.io", "redpill", "Thomas")
	require.NoError(t, err)
	_, err = f.identity.SignIn(ctx, "neo@matrix.io", "redpill")
	require.NoError(t, err)

	res = f.econ.WithdrawCrypto(ctx, money("4.99"))
	require.False(t, res.Success)
	requireMoney(t, "0.02", res.Fee)
	require.ErrorIs(t, res.Reason, common.ErrInsufficientFunds)
	requireMoney(t, "5.00", f.me(t).Balance)
	require.Empty(t, f.econ.Transactions())

	res = f.econ.WithdrawCrypto(ctx, money("4.98"))
	require.True(t, res.Success)
	requireMoney(t, "0.02", res.Fee)
	requireMoney(t, "0", f.me(t).Balance)

	txs := f.econ.Transactions()
	require.Len(t, txs, 1)
	require.Equal(t, account.TxWithdrawal, txs[0].Type)
	requireMoney(t, "-4.98", txs[0].Amount)
	require.NotNil(t, txs[0].Fee)
	requireMoney(t, "0.02", *txs[0].Fee)
}

func TestDeposit(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()
	_, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	res, err := f.econ.DepositCrypto(ctx, money("12.5"))
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Regexp(t, `^dep_\d+_[0-9a-z]{9}$`, res.TransactionID)
	requireMoney(t, "17.5", f.me(t).Balance)

	txs := f.econ.Transactions()
	require.Len(t, txs, 1)
	require.Equal(t, "Crypto deposit - "+res.TransactionID, txs[0].Description)
}

func TestMatchmaking(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()
	_, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	require.ErrorIs(t, f.econ.JoinMatchmaking(ctx, "no-such-game"), common.ErrGameNotFound)

	require.NoError(t, f.econ.JoinMatchmaking(ctx, chessGame))
	state := f.econ.Matchmaking()
	require.True(t, state.Queued)
	require.Equal(t, chessGame, state.GameID)
	require.Nil(t, f.econ.GameSession())

	f.clock.Add(MatchmakingDelay)
	require.Eventually(t, func() bool { return f.econ.GameSession() != nil }, time.Second, 5*time.Millisecond)

	gs := f.econ.GameSession()
	require.Equal(t, account.SessionWaiting, gs.Status)
	require.Len(t, gs.Players, 1)
	require.Equal(t, f.me(t).ID, gs.Players[0].ID)
	requireMoney(t, "2.00", gs.PrizePool)
	require.Equal(t, 1, gs.MaxRounds)
	require.False(t, f.econ.Matchmaking().Queued)

	// Результат без явного id игры берёт игру из сессии
	out, err := f.econ.SubmitGameResult(ctx, 1000, GameData{})
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Nil(t, f.econ.GameSession())
}

func TestLeaveMatchmakingCancelsPendingMatch(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()
	_, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	require.NoError(t, f.econ.JoinMatchmaking(ctx, reactionGame))
	f.clock.Add(time.Second)
	f.econ.LeaveMatchmaking()
	f.clock.Add(5 * time.Second)

	require.Never(t, func() bool { return f.econ.GameSession() != nil }, 100*time.Millisecond, 10*time.Millisecond)
	require.False(t, f.econ.Matchmaking().Queued)
}

func TestMatchmakingRejections(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()

	require.ErrorIs(t, f.econ.JoinMatchmaking(ctx, reactionGame), common.ErrNotSignedIn)

	guest, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)
	_, strategy, _ := f.session.Current()

	setEconomy := func(balance, debt string) {
		updated, _, err := strategy.Mutate(ctx, guest.ID, func(id *account.Identity) (*account.Transaction, error) {
			id.Balance = money(balance)
			id.Debt = money(debt)
			return nil, nil
		})
		require.NoError(t, err)
		f.session.Update(updated)
	}

	setEconomy("0.40", "0")
	require.ErrorIs(t, f.econ.JoinMatchmaking(ctx, chessGame), common.ErrInsufficientBalance)
	require.NoError(t, f.econ.JoinMatchmaking(ctx, reactionGame))
	f.econ.LeaveMatchmaking()

	setEconomy("50", "10")
	err = f.econ.JoinMatchmaking(ctx, reactionGame)
	require.ErrorIs(t, err, common.ErrAccountLocked)
	require.EqualError(t, err, "Account locked due to debt over $10")
}

func TestLocalTournamentsAndRooms(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()
	_, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	require.Len(t, f.econ.LiveTournaments(), 2)
	require.Len(t, f.econ.Leaderboard(), 5)

	require.NoError(t, f.econ.JoinTournament(ctx, "mock-tournament-1"))
	require.NoError(t, f.econ.SpectateMatch(ctx, "mock-tournament-2"))
	state := f.econ.TournamentState()
	require.Equal(t, []string{"mock-tournament-1"}, state.Joined)
	require.Equal(t, []string{"mock-tournament-2"}, state.Spectating)

	room, err := f.econ.CreateGameRoom(ctx, chessGame, account.RoomSettings{})
	require.NoError(t, err)
	require.Len(t, room.Code, 6)
	require.Equal(t, 2, room.MaxPlayers)

	joined, err := f.econ.JoinGameRoom(ctx, " "+room.Code+" ")
	require.NoError(t, err)
	require.Equal(t, room.ID, joined.ID)

	_, err = f.econ.JoinGameRoom(ctx, "ZZZZZZ")
	require.ErrorIs(t, err, common.ErrRoomNotFound)

	_, err = f.econ.CreateGameRoom(ctx, "no-such-game", account.RoomSettings{})
	require.ErrorIs(t, err, common.ErrGameNotFound)
}

func TestRemoteEconomy(t *testing.T) {
	fake := backendtest.New()
	f := newFixture(t, fake, account.ModeRemote)
	ctx := context.Background()

	_, err := f.identity.SignUp(ctx, "neo@matrix.io", "redpill", "Neo")
	require.NoError(t, err)
	me, err := f.identity.SignIn(ctx, "neo@matrix.io", "redpill")
	require.NoError(t, err)

	// Каталог бэкенда: две игры
	require.Len(t, f.econ.Games(), 2)

	out, err := f.econ.SubmitGameResult(ctx, 1000, GameData{GameID: "game-reaction"})
	require.NoError(t, err)
	require.True(t, out.Won)
	row, ok := fake.User(me.ID)
	require.True(t, ok)
	requireMoney(t, "6", row.Balance)
	require.Equal(t, 550, row.MiningPower)

	res := f.econ.WithdrawCrypto(ctx, money("1"))
	require.True(t, res.Success)
	row, _ = fake.User(me.ID)
	requireMoney(t, "4.98", row.Balance)

	require.Eventually(t, func() bool { return len(f.econ.Transactions()) == 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, f.econ.JoinTournament(ctx, "t-1"))
	err = f.econ.JoinTournament(ctx, "t-1")
	require.EqualError(t, err, "Already joined this tournament")

	room, err := f.econ.CreateGameRoom(ctx, "game-chess", account.RoomSettings{MaxPlayers: 2})
	require.NoError(t, err)
	require.Len(t, room.Code, 6)
}

func TestNeoScenario(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()

	neo, err := f.identity.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)
	requireMoney(t, "5.00", neo.Balance)
	require.Equal(t, 500, neo.MiningPower)

	for range 3 {
		require.NoError(t, f.econ.JoinMatchmaking(ctx, reactionGame))
		f.clock.Add(MatchmakingDelay)
		require.Eventually(t, func() bool { return f.econ.GameSession() != nil }, time.Second, 5*time.Millisecond)

		out, err := f.econ.SubmitGameResult(ctx, 950, GameData{GameID: reactionGame})
		require.NoError(t, err)
		require.True(t, out.Won)
	}

	me := f.me(t)
	requireMoney(t, "9.00", me.Balance)
	require.Equal(t, 3, me.WinStreak)
	require.Equal(t, 650, me.MiningPower)
	require.Equal(t, 3, me.TotalWins)

	_, err = f.econ.ToggleMining(ctx)
	require.NoError(t, err)
	for range 2 {
		f.clock.Add(MiningTickInterval)
		f.ticker.tick()
	}
	requireMoney(t, "0.00065", f.econ.MiningSession().CoinsEarned)

	_, err = f.econ.ToggleMining(ctx)
	require.NoError(t, err)
	requireMoney(t, "9.00065", f.me(t).Balance)

	var mining []account.Transaction
	for _, tx := range f.econ.Transactions() {
		if tx.Type == account.TxMining {
			mining = append(mining, tx)
		}
	}
	require.Len(t, mining, 1)
	requireMoney(t, "0.00065", mining[0].Amount)
}
