package account

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/backend"
	"cyberarena.app/arena/internal/common"
)

// LeaderboardLimit — сколько строк лидерборда запрашивается у бэкенда.
const LeaderboardLimit = 10

// RemoteStrategy работает через удалённый бэкенд.
// Изменения экономики идут через UpdateUser: строка блокируется
// на время fn, операция журнала пишется в ту же транзакцию.
type RemoteStrategy struct {
	client backend.Client
	clock  clock.Clock

	mu          sync.Mutex
	tournaments map[string]*TournamentState // userID → состояние за процесс
}

var _ Strategy = (*RemoteStrategy)(nil)

// NewRemoteStrategy создаёт стратегию поверх клиента бэкенда.
func NewRemoteStrategy(client backend.Client, clk clock.Clock) *RemoteStrategy {
	return &RemoteStrategy{
		client:      client,
		clock:       clk,
		tournaments: make(map[string]*TournamentState),
	}
}

// IdentityFromRow собирает удалённую личность из строки users.
func IdentityFromRow(u backend.UserRow) Identity {
	achievements := append([]string{}, u.Achievements...)
	return Identity{
		ID:       u.ID,
		Kind:     KindRemote,
		Email:    u.Email,
		Username: u.Username,
		Profile: Profile{
			Level:        u.Level,
			XP:           u.XP,
			Rank:         u.Rank,
			Achievements: achievements,
		},
		Economy: Economy{
			Balance:     u.Balance,
			Debt:        u.Debt,
			WinStreak:   u.WinStreak,
			MiningPower: u.MiningPower,
			TotalWins:   u.TotalWins,
			TotalLosses: u.TotalLosses,
		},
		LastActive: u.LastActive,
	}
}

// RowFromIdentity — обратное преобразование для вставки профиля.
func RowFromIdentity(id Identity) backend.UserRow {
	u := backend.UserRow{ID: id.ID, Email: id.Email}
	applyIdentity(&u, id)
	return u
}

func applyIdentity(u *backend.UserRow, id Identity) {
	u.Username = id.Username
	u.Balance = id.Balance
	u.Debt = id.Debt
	u.Rank = id.Rank
	u.Level = id.Level
	u.XP = id.XP
	u.TotalWins = id.TotalWins
	u.TotalLosses = id.TotalLosses
	u.WinStreak = id.WinStreak
	u.MiningPower = id.MiningPower
	u.Achievements = append([]string{}, id.Achievements...)
}

func txToRow(t Transaction) backend.TransactionRow {
	row := backend.TransactionRow{
		Type:        string(t.Type),
		Amount:      t.Amount,
		Description: t.Description,
		Status:      string(t.Status),
	}
	if t.Fee != nil {
		row.Fee = decimal.NewNullDecimal(*t.Fee)
	}
	return row
}

func txFromRow(r backend.TransactionRow) Transaction {
	t := Transaction{
		ID:          r.ID,
		UserID:      r.UserID,
		Type:        TxType(r.Type),
		Amount:      r.Amount,
		Timestamp:   r.CreatedAt,
		Description: r.Description,
		Status:      TxStatus(r.Status),
	}
	if r.Fee.Valid {
		fee := r.Fee.Decimal
		t.Fee = &fee
	}
	return t
}

func miningFromRow(r backend.MiningSessionRow) MiningSession {
	return MiningSession{
		ID:          r.ID,
		UserID:      r.UserID,
		HashRate:    r.HashRate,
		StartTime:   r.StartTime,
		EndTime:     r.EndTime,
		CoinsEarned: r.CoinsEarned,
		Status:      MiningStatus(r.Status),
		Efficiency:  r.Efficiency,
	}
}

func miningToRow(m MiningSession) backend.MiningSessionRow {
	return backend.MiningSessionRow{
		ID:          m.ID,
		UserID:      m.UserID,
		HashRate:    m.HashRate,
		StartTime:   m.StartTime,
		EndTime:     m.EndTime,
		CoinsEarned: m.CoinsEarned,
		Status:      string(m.Status),
		Efficiency:  m.Efficiency,
	}
}

// Load перечитывает профиль. Нет профиля — ErrNotSignedIn.
func (s *RemoteStrategy) Load(ctx context.Context, userID string) (Identity, error) {
	u, err := s.client.FetchProfile(ctx, userID)
	if errors.Is(err, backend.ErrNotFound) {
		return Identity{}, common.ErrNotSignedIn
	}
	if err != nil {
		return Identity{}, err
	}
	return IdentityFromRow(*u), nil
}

// Mutate — атомарное изменение через блокирующее обновление строки.
func (s *RemoteStrategy) Mutate(ctx context.Context, userID string, fn MutateFunc) (Identity, *Transaction, error) {
	var entryRow *backend.TransactionRow
	u, err := s.client.UpdateUser(ctx, userID, func(u *backend.UserRow) (*backend.TransactionRow, error) {
		id := IdentityFromRow(*u)
		entry, err := fn(&id)
		if err != nil {
			return nil, err
		}
		applyIdentity(u, id)
		if entry == nil {
			entryRow = nil
			return nil, nil
		}
		row := txToRow(*entry)
		entryRow = &row
		return entryRow, nil
	})
	if errors.Is(err, backend.ErrNotFound) {
		return Identity{}, nil, common.ErrNotSignedIn
	}
	if err != nil {
		return Identity{}, nil, err
	}

	id := IdentityFromRow(*u)
	if entryRow == nil {
		return id, nil, nil
	}
	entry := txFromRow(*entryRow)
	return id, &entry, nil
}

// Transactions — последние LedgerLimit операций.
func (s *RemoteStrategy) Transactions(ctx context.Context, userID string) ([]Transaction, error) {
	rows, err := s.client.ListTransactions(ctx, userID, LedgerLimit)
	if err != nil {
		return nil, err
	}
	out := make([]Transaction, 0, len(rows))
	for _, r := range rows {
		out = append(out, txFromRow(r))
	}
	return out, nil
}

// MiningSession — активная сессия или nil.
func (s *RemoteStrategy) MiningSession(ctx context.Context, userID string) (*MiningSession, error) {
	row, err := s.client.ActiveMiningSession(ctx, userID)
	if err != nil || row == nil {
		return nil, err
	}
	m := miningFromRow(*row)
	return &m, nil
}

// StartMining создаёт строку сессии.
func (s *RemoteStrategy) StartMining(ctx context.Context, m MiningSession) (MiningSession, error) {
	row, err := s.client.InsertMiningSession(ctx, miningToRow(m))
	if err != nil {
		return MiningSession{}, err
	}
	return miningFromRow(*row), nil
}

// SaveMiningSession сохраняет накопленное.
func (s *RemoteStrategy) SaveMiningSession(ctx context.Context, m MiningSession) error {
	return s.client.UpdateMiningSession(ctx, miningToRow(m))
}

// StopMiningSession закрывает строку сессии.
func (s *RemoteStrategy) StopMiningSession(ctx context.Context, m MiningSession) error {
	return s.client.UpdateMiningSession(ctx, miningToRow(m))
}

// Games — каталог бэкенда. Пустой или недоступный каталог
// заменяется каталогом по умолчанию.
func (s *RemoteStrategy) Games(ctx context.Context) ([]Game, error) {
	rows, err := s.client.Games(ctx)
	if err != nil {
		log.WithError(err).Warn("Каталог игр недоступен, используем встроенный")
		return DefaultGames(), nil
	}
	if len(rows) == 0 {
		return DefaultGames(), nil
	}
	games := make([]Game, 0, len(rows))
	for _, r := range rows {
		games = append(games, Game{
			ID:          r.ID,
			Name:        r.Name,
			Type:        r.Type,
			Description: r.Description,
			Icon:        r.Icon,
			MinBet:      r.MinBet,
			MaxPlayers:  r.MaxPlayers,
			Duration:    r.Duration,
			Difficulty:  r.Difficulty,
			Category:    r.Category,
		})
	}
	return games, nil
}

// Leaderboard — верх таблицы лидеров.
func (s *RemoteStrategy) Leaderboard(ctx context.Context, _ Identity) ([]LeaderboardEntry, error) {
	rows, err := s.client.Leaderboard(ctx, LeaderboardLimit)
	if err != nil {
		return nil, err
	}
	out := make([]LeaderboardEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, LeaderboardEntry{
			Rank:          r.Rank,
			Username:      r.Username,
			Wins:          r.Wins,
			WinRate:       r.WinRate,
			TotalEarnings: r.TotalEarnings,
			Level:         r.Level,
		})
	}
	return out, nil
}

// LiveTournaments — предстоящие и идущие турниры.
func (s *RemoteStrategy) LiveTournaments(ctx context.Context) ([]Tournament, error) {
	rows, err := s.client.LiveTournaments(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Tournament, 0, len(rows))
	for _, r := range rows {
		out = append(out, Tournament{
			ID:                  r.ID,
			Name:                r.Name,
			GameID:              r.GameID,
			GameName:            r.GameName,
			EntryFee:            r.EntryFee,
			PrizePool:           r.PrizePool,
			MaxParticipants:     r.MaxParticipants,
			CurrentParticipants: r.CurrentParticipants,
			Status:              r.Status,
			StartTime:           r.StartTime,
			Rounds:              r.Rounds,
			Difficulty:          r.Difficulty,
		})
	}
	return out, nil
}

// Tournaments — турниры, в которые игрок записался за этот процесс.
func (s *RemoteStrategy) Tournaments(_ context.Context, userID string) (TournamentState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tournaments[userID]
	if !ok {
		return TournamentState{}, nil
	}
	return TournamentState{
		Joined:     slices.Clone(st.Joined),
		Spectating: slices.Clone(st.Spectating),
	}, nil
}

func (s *RemoteStrategy) remember(userID string, fn func(*TournamentState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tournaments[userID]
	if !ok {
		st = &TournamentState{}
		s.tournaments[userID] = st
	}
	fn(st)
}

// JoinTournament записывает игрока в турнир на бэкенде.
func (s *RemoteStrategy) JoinTournament(ctx context.Context, self Identity, tournamentID string) error {
	if err := s.client.JoinTournament(ctx, tournamentID, self.ID); err != nil {
		return err
	}
	s.remember(self.ID, func(st *TournamentState) {
		if !slices.Contains(st.Joined, tournamentID) {
			st.Joined = append(st.Joined, tournamentID)
		}
	})
	return nil
}

// SpectateMatch добавляет игрока в зрители.
func (s *RemoteStrategy) SpectateMatch(ctx context.Context, self Identity, tournamentID string) error {
	if err := s.client.SpectateMatch(ctx, tournamentID, self.ID); err != nil {
		return err
	}
	s.remember(self.ID, func(st *TournamentState) {
		if !slices.Contains(st.Spectating, tournamentID) {
			st.Spectating = append(st.Spectating, tournamentID)
		}
	})
	return nil
}

// CreateRoom вызывает RPC create_room.
func (s *RemoteStrategy) CreateRoom(ctx context.Context, self Identity, gameID string, settings RoomSettings) (Room, error) {
	res, err := s.client.CreateRoom(ctx, backend.CreateRoomParams{
		GameID:            gameID,
		HostID:            self.ID,
		HostUsername:      self.Username,
		MaxPlayers:        settings.MaxPlayers,
		IsPrivate:         settings.IsPrivate,
		SpectatorsAllowed: settings.SpectatorsAllowed,
	})
	if err != nil {
		return Room{}, err
	}
	return Room{
		ID:                res.RoomID,
		Code:              res.RoomCode,
		GameID:            gameID,
		HostID:            self.ID,
		HostUsername:      self.Username,
		MaxPlayers:        settings.MaxPlayers,
		CurrentPlayers:    1,
		Status:            "waiting",
		IsPrivate:         settings.IsPrivate,
		SpectatorsAllowed: settings.SpectatorsAllowed,
		CreatedAt:         s.clock.Now(),
	}, nil
}

// JoinRoom вызывает RPC join_room игроком.
func (s *RemoteStrategy) JoinRoom(ctx context.Context, self Identity, roomCode string) (Room, error) {
	res, err := s.client.JoinRoom(ctx, backend.JoinRoomParams{
		RoomCode: roomCode,
		UserID:   self.ID,
		Username: self.Username,
		Role:     "player",
	})
	if err != nil {
		if be, ok := backend.AsError(err); ok {
			switch be.Message {
			case "Room not found":
				return Room{}, common.ErrRoomNotFound
			case "Room is full":
				return Room{}, common.ErrRoomFull
			}
		}
		return Room{}, err
	}
	return Room{ID: res.RoomID, Code: res.RoomCode, Status: "waiting"}, nil
}

// Subscribe подписывается на изменения таблицы. Для transactions
// чужие строки отфильтровываются.
func (s *RemoteStrategy) Subscribe(ctx context.Context, self Identity, table string, fn func()) error {
	return s.client.Subscribe(ctx, table, func(ch backend.Change) {
		if table == "transactions" && ch.UserID != self.ID {
			return
		}
		fn()
	})
}
