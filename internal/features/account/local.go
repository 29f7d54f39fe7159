package account

import (
	"context"
	"slices"
	"time"

	"github.com/benbjohnson/clock"
	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/common"
	"cyberarena.app/arena/internal/db/sqlite"
)

// roomTTL — через сколько локальная комната считается брошенной.
const roomTTL = time.Hour

// LocalStrategy хранит гостя или локального игрока в хранилище устройства.
// Каждое изменение экономики — одна транзакция sqlite: снимок личности,
// запись справочника и журнал пишутся вместе.
type LocalStrategy struct {
	store *sqlite.Store
	kind  Kind
	clock clock.Clock
}

var _ Strategy = (*LocalStrategy)(nil)

// NewLocalStrategy создаёт стратегию для гостя (KindGuest) или локального игрока (KindLocal).
func NewLocalStrategy(store *sqlite.Store, kind Kind, clk clock.Clock) *LocalStrategy {
	return &LocalStrategy{store: store, kind: kind, clock: clk}
}

// Kind — тип личностей, которые обслуживает стратегия.
func (s *LocalStrategy) Kind() Kind { return s.kind }

func (s *LocalStrategy) loadSnapshot(tx *sqlite.Tx, userID string) (Identity, error) {
	var id Identity
	ok, err := tx.GetJSON(SnapshotKey(s.kind), &id)
	if err != nil {
		return Identity{}, common.WrapStorage("read identity", err)
	}
	if !ok || id.ID != userID {
		return Identity{}, common.ErrNotSignedIn
	}
	return id, nil
}

// Load перечитывает снимок личности.
func (s *LocalStrategy) Load(ctx context.Context, userID string) (Identity, error) {
	var id Identity
	err := s.store.View(ctx, func(tx *sqlite.Tx) error {
		var err error
		id, err = s.loadSnapshot(tx, userID)
		return err
	})
	return id, err
}

// Mutate применяет fn к снимку и сохраняет всё одной транзакцией.
// Локальный игрок дополнительно синхронизирует запись справочника.
func (s *LocalStrategy) Mutate(ctx context.Context, userID string, fn MutateFunc) (Identity, *Transaction, error) {
	var (
		result Identity
		entry  *Transaction
	)
	err := s.store.Update(ctx, func(tx *sqlite.Tx) error {
		id, err := s.loadSnapshot(tx, userID)
		if err != nil {
			return err
		}

		entry, err = fn(&id)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		id.LastActive = now
		if err := tx.SetJSON(SnapshotKey(s.kind), id); err != nil {
			return common.WrapStorage("save identity", err)
		}

		if s.kind == KindLocal {
			if err := s.syncDirectory(tx, id); err != nil {
				return err
			}
		}

		if entry != nil {
			entry.ID = common.StampedID(string(s.kind)+"_tx", now)
			entry.UserID = id.ID
			if entry.Timestamp.IsZero() {
				entry.Timestamp = now
			}
			if err := s.appendLedger(tx, id.ID, *entry); err != nil {
				return err
			}
		}

		result = id
		return nil
	})
	if err != nil {
		return Identity{}, nil, err
	}
	return result, entry, nil
}

func (s *LocalStrategy) syncDirectory(tx *sqlite.Tx, id Identity) error {
	dir, err := LoadDirectory(tx)
	if err != nil {
		return common.WrapStorage("read directory", err)
	}
	key := EmailKey(id.Email)
	rec, ok := dir[key]
	if !ok {
		log.WithField("identity_id", id.ID).Warn("Нет записи справочника для локального игрока")
		return nil
	}
	rec.Sync(id)
	dir[key] = rec
	if err := SaveDirectory(tx, dir); err != nil {
		return common.WrapStorage("save directory", err)
	}
	return nil
}

// appendLedger добавляет операцию в начало журнала и обрезает его до LedgerLimit.
func (s *LocalStrategy) appendLedger(tx *sqlite.Tx, userID string, entry Transaction) error {
	var ledger []Transaction
	if _, err := tx.GetJSON(LedgerKey(s.kind, userID), &ledger); err != nil {
		return common.WrapStorage("read ledger", err)
	}
	ledger = append([]Transaction{entry}, ledger...)
	if len(ledger) > LedgerLimit {
		ledger = ledger[:LedgerLimit]
	}
	if err := tx.SetJSON(LedgerKey(s.kind, userID), ledger); err != nil {
		return common.WrapStorage("save ledger", err)
	}
	return nil
}

// Transactions — журнал, новые первыми.
func (s *LocalStrategy) Transactions(ctx context.Context, userID string) ([]Transaction, error) {
	var ledger []Transaction
	err := s.store.View(ctx, func(tx *sqlite.Tx) error {
		_, err := tx.GetJSON(LedgerKey(s.kind, userID), &ledger)
		return err
	})
	if err != nil {
		return nil, common.WrapStorage("read ledger", err)
	}
	return ledger, nil
}

// MiningSession — сохранённая сессия майнинга или nil.
func (s *LocalStrategy) MiningSession(ctx context.Context, userID string) (*MiningSession, error) {
	var (
		m  MiningSession
		ok bool
	)
	err := s.store.View(ctx, func(tx *sqlite.Tx) error {
		var err error
		ok, err = tx.GetJSON(MiningKey(s.kind, userID), &m)
		return err
	})
	if err != nil {
		return nil, common.WrapStorage("read mining session", err)
	}
	if !ok {
		return nil, nil
	}
	return &m, nil
}

// StartMining сохраняет новую сессию.
func (s *LocalStrategy) StartMining(ctx context.Context, m MiningSession) (MiningSession, error) {
	m.ID = common.StampedID(string(s.kind)+"_mining", m.StartTime)
	return m, s.SaveMiningSession(ctx, m)
}

// SaveMiningSession перезаписывает снимок сессии.
func (s *LocalStrategy) SaveMiningSession(ctx context.Context, m MiningSession) error {
	err := s.store.Update(ctx, func(tx *sqlite.Tx) error {
		return tx.SetJSON(MiningKey(s.kind, m.UserID), m)
	})
	return common.WrapStorage("save mining session", err)
}

// StopMiningSession удаляет снимок: остановленная сессия локально не хранится.
func (s *LocalStrategy) StopMiningSession(ctx context.Context, m MiningSession) error {
	return common.WrapStorage("remove mining session", s.store.Remove(ctx, MiningKey(s.kind, m.UserID)))
}

// Games — каталог по умолчанию.
func (s *LocalStrategy) Games(context.Context) ([]Game, error) {
	return DefaultGames(), nil
}

// Leaderboard — тестовый лидерборд с игроком в конце.
func (s *LocalStrategy) Leaderboard(_ context.Context, self Identity) ([]LeaderboardEntry, error) {
	return mockLeaderboard(self), nil
}

// LiveTournaments — тестовые турниры.
func (s *LocalStrategy) LiveTournaments(context.Context) ([]Tournament, error) {
	return mockTournaments(s.clock.Now()), nil
}

// Tournaments — куда игрок записан и что смотрит.
func (s *LocalStrategy) Tournaments(ctx context.Context, userID string) (TournamentState, error) {
	var state TournamentState
	err := s.store.View(ctx, func(tx *sqlite.Tx) error {
		_, err := tx.GetJSON(TournamentsKey(s.kind, userID), &state)
		return err
	})
	if err != nil {
		return TournamentState{}, common.WrapStorage("read tournaments", err)
	}
	return state, nil
}

// JoinTournament — локально просто запоминаем турнир.
func (s *LocalStrategy) JoinTournament(ctx context.Context, self Identity, tournamentID string) error {
	return s.updateTournaments(ctx, self.ID, func(st *TournamentState) {
		if !slices.Contains(st.Joined, tournamentID) {
			st.Joined = append(st.Joined, tournamentID)
		}
	})
}

// SpectateMatch — локально просто запоминаем турнир.
func (s *LocalStrategy) SpectateMatch(ctx context.Context, self Identity, tournamentID string) error {
	return s.updateTournaments(ctx, self.ID, func(st *TournamentState) {
		if !slices.Contains(st.Spectating, tournamentID) {
			st.Spectating = append(st.Spectating, tournamentID)
		}
	})
}

func (s *LocalStrategy) updateTournaments(ctx context.Context, userID string, fn func(*TournamentState)) error {
	err := s.store.Update(ctx, func(tx *sqlite.Tx) error {
		var st TournamentState
		if _, err := tx.GetJSON(TournamentsKey(s.kind, userID), &st); err != nil {
			return err
		}
		fn(&st)
		return tx.SetJSON(TournamentsKey(s.kind, userID), st)
	})
	return common.WrapStorage("save tournaments", err)
}

// CreateRoom создаёт комнату в хранилище устройства.
func (s *LocalStrategy) CreateRoom(ctx context.Context, self Identity, gameID string, settings RoomSettings) (Room, error) {
	now := s.clock.Now()
	room := Room{
		ID:                common.StampedID("room", now),
		GameID:            gameID,
		HostID:            self.ID,
		HostUsername:      self.Username,
		MaxPlayers:        settings.MaxPlayers,
		CurrentPlayers:    1,
		Status:            "waiting",
		IsPrivate:         settings.IsPrivate,
		SpectatorsAllowed: settings.SpectatorsAllowed,
		CreatedAt:         now,
	}

	err := s.store.Update(ctx, func(tx *sqlite.Tx) error {
		rooms, err := s.liveRooms(tx, now)
		if err != nil {
			return err
		}
		for {
			room.Code = common.RoomCode()
			if _, taken := rooms[room.Code]; !taken {
				break
			}
		}
		rooms[room.Code] = room
		return tx.SetJSON(KeyGameRooms, rooms)
	})
	if err != nil {
		return Room{}, common.WrapStorage("save room", err)
	}
	return room, nil
}

// JoinRoom занимает место в локальной комнате по коду.
func (s *LocalStrategy) JoinRoom(ctx context.Context, self Identity, roomCode string) (Room, error) {
	var joined Room
	err := s.store.Update(ctx, func(tx *sqlite.Tx) error {
		rooms, err := s.liveRooms(tx, s.clock.Now())
		if err != nil {
			return err
		}
		room, ok := rooms[roomCode]
		if !ok {
			return common.ErrRoomNotFound
		}
		if room.HostID != self.ID {
			if room.CurrentPlayers >= room.MaxPlayers {
				return common.ErrRoomFull
			}
			room.CurrentPlayers++
			rooms[roomCode] = room
			if err := tx.SetJSON(KeyGameRooms, rooms); err != nil {
				return err
			}
		}
		joined = room
		return nil
	})
	return joined, err
}

// liveRooms читает комнаты, выбрасывая старше часа.
func (s *LocalStrategy) liveRooms(tx *sqlite.Tx, now time.Time) (map[string]Room, error) {
	rooms := map[string]Room{}
	if _, err := tx.GetJSON(KeyGameRooms, &rooms); err != nil {
		return nil, err
	}
	for code, r := range rooms {
		if now.Sub(r.CreatedAt) >= roomTTL {
			delete(rooms, code)
		}
	}
	return rooms, nil
}

// Subscribe — локально менять состояние извне некому.
func (s *LocalStrategy) Subscribe(context.Context, Identity, string, func()) error {
	return nil
}
