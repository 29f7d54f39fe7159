package economy

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/features/account"
)

// Таблицы, на изменения которых подписывается удалённый режим
const (
	tableTransactions = "transactions"
	tableTournaments  = "tournaments"
)

// SessionStarted загружает кэши новой сессии и продолжает майнинг,
// если у личности есть активная сессия.
func (s *Service) SessionStarted(ctx context.Context, id account.Identity, strategy account.Strategy) {
	s.mu.Lock()
	s.identityID = id.ID
	s.transactions = nil
	s.mining = nil
	s.leaderboard = nil
	s.tournaments = nil
	s.tournamentState = account.TournamentState{}
	s.resetMatchLocked()
	s.mu.Unlock()

	if err := s.load(ctx, id, strategy); err != nil {
		log.WithError(err).WithField("identity_id", id.ID).Warn("Данные сессии загружены не полностью")
	}

	if m := s.MiningSession(); m != nil && m.Status == account.MiningActive {
		if err := s.startTicker(); err != nil {
			log.WithError(err).WithField("identity_id", id.ID).Error("Не удалось продолжить майнинг")
		} else {
			log.WithFields(log.Fields{
				"identity_id": id.ID,
				"coins":       m.CoinsEarned.String(),
			}).Info("Майнинг продолжен")
		}
	}

	if s.realtime && id.Kind == account.KindRemote {
		s.subscribe(id, strategy)
	}
}

// SessionEnded сохраняет накопленный майнинг и сбрасывает кэши.
// Активная сессия майнинга остаётся в хранилище и продолжится при следующем входе.
func (s *Service) SessionEnded(ctx context.Context, id account.Identity) {
	unlock := s.locks.Lock(id.ID)
	defer unlock()

	s.stopTicker()

	s.mu.Lock()
	mining := s.mining
	strategy := s.session.Strategy()
	if s.stopRealtime != nil {
		s.stopRealtime()
		s.stopRealtime = nil
	}
	s.identityID = ""
	s.transactions = nil
	s.mining = nil
	s.leaderboard = nil
	s.tournaments = nil
	s.tournamentState = account.TournamentState{}
	s.resetMatchLocked()
	s.mu.Unlock()

	if mining != nil && mining.Status == account.MiningActive && strategy != nil {
		if err := strategy.SaveMiningSession(ctx, *mining); err != nil {
			log.WithError(err).WithField("identity_id", id.ID).Error("Не удалось сохранить сессию майнинга")
		}
	}
}

// RefreshData перечитывает личность и все кэши.
func (s *Service) RefreshData(ctx context.Context) error {
	id, strategy, err := s.current()
	if err != nil {
		return err
	}

	fresh, err := strategy.Load(ctx, id.ID)
	if err != nil {
		return err
	}
	s.session.Update(fresh)
	return s.load(ctx, fresh, strategy)
}

// load заполняет кэши. Ошибки отдельных источников не мешают остальным.
func (s *Service) load(ctx context.Context, id account.Identity, strategy account.Strategy) error {
	var errs []error

	games, err := strategy.Games(ctx)
	if err != nil || len(games) == 0 {
		games = account.DefaultGames()
		errs = append(errs, err)
	}

	txs, err := strategy.Transactions(ctx, id.ID)
	errs = append(errs, err)

	mining, err := strategy.MiningSession(ctx, id.ID)
	errs = append(errs, err)

	board, err := strategy.Leaderboard(ctx, id)
	if err != nil {
		board = nil
		errs = append(errs, err)
	}

	s.mu.Lock()
	stale := s.identityID != id.ID
	if !stale {
		s.games = games
		s.transactions = txs
		// Свежие монеты в памяти важнее снимка в хранилище
		if s.mining == nil || mining == nil || s.mining.ID != mining.ID {
			s.mining = mining
		}
		s.leaderboard = board
	}
	s.mu.Unlock()

	if !stale {
		s.refreshTournaments(ctx, id, strategy)
	}
	return errors.Join(errs...)
}

func (s *Service) refreshTournaments(ctx context.Context, id account.Identity, strategy account.Strategy) {
	live, err := strategy.LiveTournaments(ctx)
	if err != nil {
		log.WithError(err).Warn("Не удалось загрузить турниры")
		live = nil
	}
	state, err := strategy.Tournaments(ctx, id.ID)
	if err != nil {
		log.WithError(err).Warn("Не удалось загрузить турниры игрока")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identityID != id.ID {
		return
	}
	s.tournaments = live
	s.tournamentState = state
}

func (s *Service) refreshLedger(id account.Identity, strategy account.Strategy) {
	ctx := context.Background()

	unlock := s.locks.Lock(id.ID)
	fresh, err := strategy.Load(ctx, id.ID)
	if err == nil {
		s.session.Update(fresh)
	}
	unlock()
	if err != nil {
		log.WithError(err).WithField("identity_id", id.ID).Warn("Не удалось обновить профиль")
		return
	}

	txs, err := strategy.Transactions(ctx, id.ID)
	if err != nil {
		log.WithError(err).WithField("identity_id", id.ID).Warn("Не удалось обновить журнал")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identityID == id.ID {
		s.transactions = txs
	}
}

// subscribe подписывается на журнал игрока и турниры до конца сессии.
func (s *Service) subscribe(id account.Identity, strategy account.Strategy) {
	ctx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	if s.stopRealtime != nil {
		s.stopRealtime()
	}
	s.stopRealtime = cancel
	s.mu.Unlock()

	err := strategy.Subscribe(ctx, id, tableTransactions, func() {
		s.refreshLedger(id, strategy)
	})
	if err != nil {
		log.WithError(err).WithField("identity_id", id.ID).Warn("Подписка на журнал не установлена")
	}

	err = strategy.Subscribe(ctx, id, tableTournaments, func() {
		s.refreshTournaments(context.Background(), id, strategy)
	})
	if err != nil {
		log.WithError(err).WithField("identity_id", id.ID).Warn("Подписка на турниры не установлена")
	}
}
