// Package backendtest — бэкенд в памяти для тестов удалённого режима.
package backendtest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"cyberarena.app/arena/internal/backend"
)

type authUser struct {
	id        string
	password  string
	confirmed bool
}

// Fake реализует backend.Client в памяти.
type Fake struct {
	mu sync.Mutex

	// Down — все вызовы падают, как при недоступном бэкенде.
	Down bool

	auth        map[string]*authUser // email → учётка
	sessions    map[string]string    // token → user id
	users       map[string]*backend.UserRow
	txs         map[string][]backend.TransactionRow // новые первыми
	mining      map[string]*backend.MiningSessionRow
	games       []backend.GameRow
	tournaments map[string]*backend.TournamentRow
	joined      map[string]map[string]bool
	spectators  map[string]map[string]bool
	rooms       map[string]*fakeRoom // code → room
	subs        map[string][]func(backend.Change)
}

type fakeRoom struct {
	id      string
	code    string
	max     int
	players map[string]bool
}

var _ backend.Client = (*Fake)(nil)

// New создаёт пустой бэкенд с каталогом из двух игр и одним турниром.
func New() *Fake {
	return &Fake{
		auth:     make(map[string]*authUser),
		sessions: make(map[string]string),
		users:    make(map[string]*backend.UserRow),
		txs:      make(map[string][]backend.TransactionRow),
		mining:   make(map[string]*backend.MiningSessionRow),
		games: []backend.GameRow{
			{ID: "game-reaction", Name: "Reaction Master", Type: "reaction", MinBet: decimal.RequireFromString("0.33"), MaxPlayers: 4, Duration: 30},
			{ID: "game-chess", Name: "Chess Master", Type: "chess", MinBet: decimal.RequireFromString("0.50"), MaxPlayers: 2, Duration: 1800},
		},
		tournaments: map[string]*backend.TournamentRow{
			"t-1": {ID: "t-1", Name: "Daily Reaction Challenge", GameID: "game-reaction", GameName: "Reaction Master",
				EntryFee: decimal.NewFromInt(1), PrizePool: decimal.NewFromInt(16), MaxParticipants: 1, Status: "upcoming",
				StartTime: time.Now().Add(time.Hour), Rounds: 4},
		},
		joined:     make(map[string]map[string]bool),
		spectators: make(map[string]map[string]bool),
		rooms:      make(map[string]*fakeRoom),
		subs:       make(map[string][]func(backend.Change)),
	}
}

// SetGames заменяет каталог.
func (f *Fake) SetGames(games []backend.GameRow) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.games = games
}

// SetDown включает или выключает имитацию недоступности.
func (f *Fake) SetDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Down = down
}

// RequireConfirmation помечает email как неподтверждённый.
func (f *Fake) RequireConfirmation(email string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if a, ok := f.auth[strings.ToLower(email)]; ok {
		a.confirmed = false
	}
}

// User возвращает копию профиля (для проверок в тестах).
func (f *Fake) User(id string) (backend.UserRow, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return backend.UserRow{}, false
	}
	return *u, true
}

func (f *Fake) down() error {
	if f.Down {
		return backend.NewError(backend.MsgUnavailable)
	}
	return nil
}

func (f *Fake) SignInWithPassword(_ context.Context, email, password string) (*backend.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	a, ok := f.auth[strings.ToLower(strings.TrimSpace(email))]
	if !ok || a.password != password {
		return nil, backend.NewError(backend.MsgInvalidCredentials)
	}
	if !a.confirmed {
		return nil, backend.NewError(backend.MsgEmailNotConfirmed)
	}
	token := "token-" + uuid.NewString()
	f.sessions[token] = a.id
	return &backend.Session{AccessToken: token, UserID: a.id, Email: strings.ToLower(email)}, nil
}

func (f *Fake) SignUp(_ context.Context, email, password string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return "", err
	}
	key := strings.ToLower(strings.TrimSpace(email))
	if _, ok := f.auth[key]; ok {
		return "", backend.NewError(backend.MsgUserExists)
	}
	if len(password) < 6 {
		return "", backend.NewError(backend.MsgWeakPassword)
	}
	id := uuid.NewString()
	f.auth[key] = &authUser{id: id, password: password, confirmed: true}
	return id, nil
}

func (f *Fake) SignOut(_ context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return err
	}
	delete(f.sessions, accessToken)
	return nil
}

func (f *Fake) GetSession(_ context.Context, accessToken string) (*backend.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	id, ok := f.sessions[accessToken]
	if !ok {
		return nil, nil
	}
	return &backend.Session{AccessToken: accessToken, UserID: id}, nil
}

func (f *Fake) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down()
}

func (f *Fake) FetchProfile(_ context.Context, userID string) (*backend.UserRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	u, ok := f.users[userID]
	if !ok {
		return nil, backend.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (f *Fake) UsernameExists(_ context.Context, username string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return false, err
	}
	for _, u := range f.users {
		if strings.EqualFold(u.Username, username) {
			return true, nil
		}
	}
	return false, nil
}

func (f *Fake) InsertUser(_ context.Context, row backend.UserRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return err
	}
	if _, ok := f.users[row.ID]; ok {
		return backend.NewError("duplicate key value violates unique constraint \"users_pkey\"")
	}
	row.CreatedAt = time.Now()
	f.users[row.ID] = &row
	return nil
}

func (f *Fake) UpdateUser(_ context.Context, userID string, fn backend.UpdateFunc) (*backend.UserRow, error) {
	f.mu.Lock()
	if err := f.down(); err != nil {
		f.mu.Unlock()
		return nil, err
	}
	u, ok := f.users[userID]
	if !ok {
		f.mu.Unlock()
		return nil, backend.ErrNotFound
	}
	working := *u
	entry, err := fn(&working)
	if err != nil {
		f.mu.Unlock()
		return nil, err
	}
	*u = working
	var notify []func(backend.Change)
	var change backend.Change
	if entry != nil {
		entry.ID = uuid.NewString()
		entry.UserID = userID
		entry.CreatedAt = time.Now()
		f.txs[userID] = append([]backend.TransactionRow{*entry}, f.txs[userID]...)
		notify = append(notify, f.subs["transactions"]...)
		change = backend.Change{Table: "transactions", Op: "INSERT", RowID: entry.ID, UserID: userID}
	}
	out := working
	f.mu.Unlock()

	// Как и LISTEN/NOTIFY, уведомления приходят асинхронно
	for _, fn := range notify {
		go fn(change)
	}
	return &out, nil
}

func (f *Fake) ListTransactions(_ context.Context, userID string, limit int) ([]backend.TransactionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	txs := f.txs[userID]
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return append([]backend.TransactionRow(nil), txs...), nil
}

func (f *Fake) ActiveMiningSession(_ context.Context, userID string) (*backend.MiningSessionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	m, ok := f.mining[userID]
	if !ok || m.Status != "active" {
		return nil, nil
	}
	cp := *m
	return &cp, nil
}

func (f *Fake) InsertMiningSession(_ context.Context, row backend.MiningSessionRow) (*backend.MiningSessionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	if m, ok := f.mining[row.UserID]; ok && m.Status == "active" {
		return nil, backend.NewError("Mining session already active")
	}
	row.ID = uuid.NewString()
	f.mining[row.UserID] = &row
	cp := row
	return &cp, nil
}

func (f *Fake) UpdateMiningSession(_ context.Context, row backend.MiningSessionRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return err
	}
	for _, m := range f.mining {
		if m.ID == row.ID {
			m.CoinsEarned = row.CoinsEarned
			m.Status = row.Status
			m.EndTime = row.EndTime
			return nil
		}
	}
	return backend.ErrNotFound
}

func (f *Fake) Games(context.Context) ([]backend.GameRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	return append([]backend.GameRow(nil), f.games...), nil
}

func (f *Fake) Leaderboard(_ context.Context, limit int) ([]backend.LeaderboardRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	users := make([]*backend.UserRow, 0, len(f.users))
	for _, u := range f.users {
		users = append(users, u)
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].TotalWins != users[j].TotalWins {
			return users[i].TotalWins > users[j].TotalWins
		}
		return users[i].Username < users[j].Username
	})
	var out []backend.LeaderboardRow
	for i, u := range users {
		if i >= limit {
			break
		}
		rate := 0.0
		if games := u.TotalWins + u.TotalLosses; games > 0 {
			rate = float64(u.TotalWins) * 100 / float64(games)
		}
		out = append(out, backend.LeaderboardRow{Rank: i + 1, Username: u.Username, Wins: u.TotalWins, WinRate: rate, Level: u.Level})
	}
	return out, nil
}

func (f *Fake) LiveTournaments(context.Context) ([]backend.TournamentRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	var out []backend.TournamentRow
	for _, t := range f.tournaments {
		if t.Status == "upcoming" || t.Status == "active" {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (f *Fake) CreateRoom(_ context.Context, p backend.CreateRoomParams) (*backend.RoomResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	code := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:6]
	r := &fakeRoom{id: uuid.NewString(), code: code, max: p.MaxPlayers, players: map[string]bool{p.HostID: true}}
	f.rooms[code] = r
	return &backend.RoomResult{RoomID: r.id, RoomCode: code}, nil
}

func (f *Fake) JoinRoom(_ context.Context, p backend.JoinRoomParams) (*backend.RoomResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return nil, err
	}
	r, ok := f.rooms[strings.ToUpper(p.RoomCode)]
	if !ok {
		return nil, backend.NewError("Room not found")
	}
	if !r.players[p.UserID] {
		if len(r.players) >= r.max {
			return nil, backend.NewError("Room is full")
		}
		r.players[p.UserID] = true
	}
	return &backend.RoomResult{RoomID: r.id, RoomCode: r.code}, nil
}

func (f *Fake) JoinTournament(_ context.Context, tournamentID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return err
	}
	t, ok := f.tournaments[tournamentID]
	if !ok {
		return backend.NewError("Tournament not found")
	}
	if f.joined[tournamentID][userID] {
		return backend.NewError("Already joined this tournament")
	}
	if t.CurrentParticipants >= t.MaxParticipants {
		return backend.NewError("Tournament is full")
	}
	if f.joined[tournamentID] == nil {
		f.joined[tournamentID] = make(map[string]bool)
	}
	f.joined[tournamentID][userID] = true
	t.CurrentParticipants++
	return nil
}

func (f *Fake) SpectateMatch(_ context.Context, tournamentID, userID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return err
	}
	if _, ok := f.tournaments[tournamentID]; !ok {
		return backend.NewError("Tournament not found")
	}
	if f.spectators[tournamentID] == nil {
		f.spectators[tournamentID] = make(map[string]bool)
	}
	f.spectators[tournamentID][userID] = true
	return nil
}

func (f *Fake) Subscribe(_ context.Context, table string, fn func(backend.Change)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.down(); err != nil {
		return err
	}
	if table != "transactions" && table != "tournaments" {
		return fmt.Errorf("unsupported table %q", table)
	}
	f.subs[table] = append(f.subs[table], fn)
	return nil
}
