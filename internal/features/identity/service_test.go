package identity

import (
	"context"
	"sync"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"cyberarena.app/arena/internal/backend"
	"cyberarena.app/arena/internal/backend/backendtest"
	"cyberarena.app/arena/internal/common"
	"cyberarena.app/arena/internal/db/sqlite"
	"cyberarena.app/arena/internal/features/account"
)

type recorder struct {
	mu      sync.Mutex
	started []string
	ended   []string
}

func (r *recorder) SessionStarted(_ context.Context, id account.Identity, _ account.Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, id.ID)
}

func (r *recorder) SessionEnded(_ context.Context, id account.Identity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = append(r.ended, id.ID)
}

type fixture struct {
	svc     *Service
	store   *sqlite.Store
	session *account.Session
	clock   *clock.Mock
	events  *recorder
}

func newFixture(t *testing.T, client backend.Client, mode account.Mode) *fixture {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clk := clock.NewMock()
	session := account.NewSession(mode)
	svc := NewService(store, client, session, clk)
	events := &recorder{}
	svc.AddListener(events)
	return &fixture{svc: svc, store: store, session: session, clock: clk, events: events}
}

func TestLocalSignUpThenSignIn(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()

	created, err := f.svc.SignUp(ctx, "Neo@Matrix.io", "redpill", "Neo")
	require.NoError(t, err)
	require.Equal(t, account.KindLocal, created.Kind)
	require.True(t, created.Balance.Equal(account.StartingBalance))
	require.Equal(t, 500, created.MiningPower)

	_, ok := f.svc.Current()
	require.False(t, ok, "sign-up must not establish a session")

	_, err = f.svc.SignIn(ctx, "neo@matrix.io", "bluepill")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)

	_, err = f.svc.SignIn(ctx, "smith@matrix.io", "redpill")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)

	id, err := f.svc.SignIn(ctx, "NEO@matrix.io", "redpill")
	require.NoError(t, err)
	require.Equal(t, created.ID, id.ID)
	require.Equal(t, []string{created.ID}, f.events.started)
}

func TestLocalSignUpConflicts(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "neo@matrix.io", "redpill", "Neo")
	require.NoError(t, err)

	_, err = f.svc.SignUp(ctx, "NEO@MATRIX.IO", "redpill", "Thomas")
	require.ErrorIs(t, err, common.ErrEmailTaken)

	_, err = f.svc.SignUp(ctx, "thomas@matrix.io", "redpill", "neo")
	require.ErrorIs(t, err, common.ErrUsernameTaken)
}

func TestValidation(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "not-an-email", "redpill", "Neo")
	require.Error(t, err)
	require.Contains(t, err.Error(), "valid email")

	_, err = f.svc.SignUp(ctx, "neo@matrix.io", "123", "Neo")
	require.EqualError(t, err, "Password must be at least 6 characters long.")

	_, err = f.svc.SignInAsGuest(ctx, "N")
	require.Error(t, err)
}

func TestGuestSignOutDeletesSnapshot(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()

	guest, err := f.svc.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)
	require.Equal(t, account.KindGuest, guest.Kind)

	require.NoError(t, f.svc.SignOut(ctx))
	_, ok, err := f.store.Get(ctx, account.KeyGuestUser)
	require.NoError(t, err)
	require.False(t, ok)
	require.Equal(t, []string{guest.ID}, f.events.ended)

	// Повторный выход без сессии — не ошибка
	require.NoError(t, f.svc.SignOut(ctx))
}

func TestUpgradeRequiresGuest(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()

	_, err := f.svc.UpgradeGuestAccount(ctx, "neo@matrix.io", "redpill")
	require.ErrorIs(t, err, common.ErrNotAGuest)

	_, err = f.svc.SignUp(ctx, "neo@matrix.io", "redpill", "Neo")
	require.NoError(t, err)
	_, err = f.svc.SignIn(ctx, "neo@matrix.io", "redpill")
	require.NoError(t, err)

	_, err = f.svc.UpgradeGuestAccount(ctx, "other@matrix.io", "redpill")
	require.ErrorIs(t, err, common.ErrNotAGuest)
}

func playSomeGames(t *testing.T, f *fixture, guest account.Identity) {
	t.Helper()
	_, strategy, ok := f.session.Current()
	require.True(t, ok)
	updated, _, err := strategy.Mutate(context.Background(), guest.ID, func(id *account.Identity) (*account.Transaction, error) {
		id.Balance = decimal.RequireFromString("7.34")
		id.Debt = decimal.RequireFromString("0.66")
		id.TotalWins = 3
		id.TotalLosses = 2
		id.WinStreak = 1
		id.MiningPower = 650
		id.Level = 2
		id.XP = 350
		return &account.Transaction{Type: account.TxWin, Amount: decimal.NewFromInt(1), Status: account.TxCompleted}, nil
	})
	require.NoError(t, err)
	f.session.Update(updated)
}

func requireSameEconomy(t *testing.T, want, got account.Identity) {
	t.Helper()
	require.True(t, want.Balance.Equal(got.Balance), "balance %s != %s", want.Balance, got.Balance)
	require.True(t, want.Debt.Equal(got.Debt))
	require.Equal(t, want.TotalWins, got.TotalWins)
	require.Equal(t, want.TotalLosses, got.TotalLosses)
	require.Equal(t, want.WinStreak, got.WinStreak)
	require.Equal(t, want.MiningPower, got.MiningPower)
	require.Equal(t, want.Level, got.Level)
	require.Equal(t, want.XP, got.XP)
}

func TestLocalGuestUpgradePreservesEconomy(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()

	guest, err := f.svc.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)
	playSomeGames(t, f, guest)
	before, _ := f.svc.Current()

	upgraded, err := f.svc.UpgradeGuestAccount(ctx, "neo@matrix.io", "redpill")
	require.NoError(t, err)
	require.Equal(t, account.KindLocal, upgraded.Kind)
	require.NotEqual(t, guest.ID, upgraded.ID)
	require.Equal(t, "Neo", upgraded.Username)
	requireSameEconomy(t, before, upgraded)

	_, ok, err := f.store.Get(ctx, account.KeyGuestUser)
	require.NoError(t, err)
	require.False(t, ok)

	// Журнал гостя переехал на новый id
	_, strategy, _ := f.session.Current()
	ledger, err := strategy.Transactions(ctx, upgraded.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 1)
	require.Equal(t, upgraded.ID, ledger[0].UserID)

	// Экономика сохранилась и в справочнике
	require.NoError(t, f.svc.SignOut(ctx))
	again, err := f.svc.SignIn(ctx, "neo@matrix.io", "redpill")
	require.NoError(t, err)
	requireSameEconomy(t, before, again)
}

func TestLocalGuestUpgradeEmailTakenKeepsGuest(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "neo@matrix.io", "redpill", "Thomas")
	require.NoError(t, err)

	guest, err := f.svc.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	_, err = f.svc.UpgradeGuestAccount(ctx, "neo@matrix.io", "redpill")
	require.ErrorIs(t, err, common.ErrEmailTaken)

	current, ok := f.svc.Current()
	require.True(t, ok)
	require.Equal(t, guest.ID, current.ID)
	require.True(t, current.IsGuest())
}

func TestRemoteGuestUpgradePreservesEconomy(t *testing.T) {
	fake := backendtest.New()
	f := newFixture(t, fake, account.ModeRemote)
	ctx := context.Background()

	guest, err := f.svc.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)
	playSomeGames(t, f, guest)
	before, _ := f.svc.Current()

	upgraded, err := f.svc.UpgradeGuestAccount(ctx, "neo@matrix.io", "redpill")
	require.NoError(t, err)
	require.Equal(t, account.KindRemote, upgraded.Kind)
	requireSameEconomy(t, before, upgraded)

	row, ok := fake.User(upgraded.ID)
	require.True(t, ok)
	require.True(t, row.Balance.Equal(before.Balance))
	require.Equal(t, before.TotalWins, row.TotalWins)
	require.NotEmpty(t, f.session.Token())
}

func TestRemoteSignInErrors(t *testing.T) {
	fake := backendtest.New()
	f := newFixture(t, fake, account.ModeRemote)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "neo@matrix.io", "redpill", "Neo")
	require.NoError(t, err)

	_, err = f.svc.SignUp(ctx, "neo@matrix.io", "redpill", "Thomas")
	require.ErrorIs(t, err, common.ErrEmailTaken)

	_, err = f.svc.SignUp(ctx, "trinity@matrix.io", "redpill", "NEO")
	require.ErrorIs(t, err, common.ErrUsernameTaken)

	_, err = f.svc.SignIn(ctx, "neo@matrix.io", "bluepill")
	require.ErrorIs(t, err, common.ErrInvalidCredentials)

	fake.RequireConfirmation("neo@matrix.io")
	_, err = f.svc.SignIn(ctx, "neo@matrix.io", "redpill")
	require.ErrorIs(t, err, common.ErrEmailUnconfirmed)
}

func TestRemoteSignInCreatesDefaultProfile(t *testing.T) {
	fake := backendtest.New()
	f := newFixture(t, fake, account.ModeRemote)
	ctx := context.Background()

	userID, err := fake.SignUp(ctx, "morpheus@matrix.io", "redpill")
	require.NoError(t, err)

	id, err := f.svc.SignIn(ctx, "morpheus@matrix.io", "redpill")
	require.NoError(t, err)
	require.Equal(t, userID, id.ID)
	require.Equal(t, "morpheus", id.Username)
	require.True(t, id.Balance.Equal(account.StartingBalance))

	_, ok := fake.User(userID)
	require.True(t, ok)
}

func TestBackendErrorPassesThrough(t *testing.T) {
	fake := backendtest.New()
	f := newFixture(t, fake, account.ModeRemote)
	fake.SetDown(true)

	_, err := f.svc.SignIn(context.Background(), "neo@matrix.io", "redpill")
	be, ok := backend.AsError(err)
	require.True(t, ok)
	require.Equal(t, backend.MsgUnavailable, be.Message)
}

func TestSwitchToRemoteFallsBackToLocal(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil, account.ModeLocal)
	mode, err := f.svc.SwitchToRemoteMode(ctx)
	require.NoError(t, err)
	require.Equal(t, account.ModeLocal, mode)

	fake := backendtest.New()
	fake.SetDown(true)
	f = newFixture(t, fake, account.ModeLocal)
	_, err = f.svc.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	mode, err = f.svc.SwitchToRemoteMode(ctx)
	require.NoError(t, err)
	require.Equal(t, account.ModeLocal, mode)
	require.Equal(t, account.ModeLocal, f.svc.Mode())
	_, ok := f.svc.Current()
	require.False(t, ok, "switching mode signs out")

	raw, _, err := f.store.Get(ctx, account.KeyLocalMode)
	require.NoError(t, err)
	require.Equal(t, "true", raw)

	fake.SetDown(false)
	mode, err = f.svc.SwitchToRemoteMode(ctx)
	require.NoError(t, err)
	require.Equal(t, account.ModeRemote, mode)
	raw, _, _ = f.store.Get(ctx, account.KeyLocalMode)
	require.Equal(t, "false", raw)

	require.NoError(t, f.svc.SwitchToLocalMode(ctx))
	require.Equal(t, account.ModeLocal, f.svc.Mode())
}

func TestRestoreGuest(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()

	guest, err := f.svc.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	// Новый процесс поверх того же хранилища
	restarted := NewService(f.store, nil, account.NewSession(account.ModeRemote), f.clock)
	require.NoError(t, restarted.Restore(ctx))
	require.Equal(t, account.ModeLocal, restarted.Mode())
	current, ok := restarted.Current()
	require.True(t, ok)
	require.Equal(t, guest.ID, current.ID)
}

func TestRestoreRemoteSession(t *testing.T) {
	fake := backendtest.New()
	f := newFixture(t, fake, account.ModeRemote)
	ctx := context.Background()

	_, err := f.svc.SignUp(ctx, "neo@matrix.io", "redpill", "Neo")
	require.NoError(t, err)
	id, err := f.svc.SignIn(ctx, "neo@matrix.io", "redpill")
	require.NoError(t, err)

	restarted := NewService(f.store, fake, account.NewSession(account.ModeRemote), f.clock)
	require.NoError(t, restarted.Restore(ctx))
	current, ok := restarted.Current()
	require.True(t, ok)
	require.Equal(t, id.ID, current.ID)
	require.Equal(t, account.KindRemote, current.Kind)

	// Бэкенд пропал — старт в локальном режиме без сессии
	fake.SetDown(true)
	offline := NewService(f.store, fake, account.NewSession(account.ModeRemote), f.clock)
	require.NoError(t, offline.Restore(ctx))
	require.Equal(t, account.ModeLocal, offline.Mode())
	_, ok = offline.Current()
	require.False(t, ok)
}

func TestRefreshReloadsIdentity(t *testing.T) {
	f := newFixture(t, nil, account.ModeLocal)
	ctx := context.Background()

	guest, err := f.svc.SignInAsGuest(ctx, "Neo")
	require.NoError(t, err)

	_, strategy, _ := f.session.Current()
	_, _, err = strategy.Mutate(ctx, guest.ID, func(id *account.Identity) (*account.Transaction, error) {
		id.TotalWins = 7
		return nil, nil
	})
	require.NoError(t, err)

	fresh, err := f.svc.Refresh(ctx)
	require.NoError(t, err)
	require.Equal(t, 7, fresh.TotalWins)
	current, _ := f.svc.Current()
	require.Equal(t, 7, current.TotalWins)
}
