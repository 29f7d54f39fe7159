// Package economy — координатор экономики и матчей: результаты игр,
// майнинг, вывод и пополнение, матчмейкинг, турниры и комнаты.
//
// Все изменения баланса, долга, серии и мощности майнинга идут через
// Strategy.Mutate под мьютексом личности, так что тик майнинга и
// результат игры не затирают друг друга.
package economy

import (
	"context"
	"errors"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"cyberarena.app/arena/internal/common"
	"cyberarena.app/arena/internal/features/account"
)

// Random — источник случайности для исхода игры.
type Random interface {
	Float64() float64
}

type defaultRandom struct{}

func (defaultRandom) Float64() float64 { return rand.Float64() }

// MiningTicker регистрирует периодический тик майнинга.
// Повторный StartMining заменяет прежнюю регистрацию.
type MiningTicker interface {
	StartMining(fn func()) error
	StopMining()
}

// Options — зависимости координатора.
type Options struct {
	Clock  clock.Clock
	Random Random
	Ticker MiningTicker
	// Realtime — подписываться на изменения бэкенда в удалённом режиме
	Realtime bool
}

// GameData — что экран игры передаёт вместе со счётом.
type GameData struct {
	GameID     string
	IsPractice bool
}

// GameOutcome — итог обработанной игры.
type GameOutcome struct {
	Practice    bool
	Won         bool
	StreakBonus bool
	Amount      decimal.Decimal
	Transaction *account.Transaction
}

// WithdrawResult — результат вывода. Отказ не ошибка: причина в Reason.
type WithdrawResult struct {
	Success bool
	Fee     decimal.Decimal
	Reason  error
}

// DepositResult — результат пополнения.
type DepositResult struct {
	Success       bool
	TransactionID string
}

// MatchmakingState — состояние очереди матчмейкинга.
type MatchmakingState struct {
	Queued   bool
	GameID   string
	JoinedAt time.Time
}

// Service — координатор экономики.
type Service struct {
	session  *account.Session
	clock    clock.Clock
	random   Random
	ticker   MiningTicker
	realtime bool
	locks    *keyedMutex

	mu              sync.Mutex // кэши ниже
	identityID      string
	games           []account.Game
	transactions    []account.Transaction
	mining          *account.MiningSession
	gameSession     *account.GameSession
	queue           *MatchmakingState
	matchTimer      *clock.Timer
	matchGen        uint64
	leaderboard     []account.LeaderboardEntry
	tournaments     []account.Tournament
	tournamentState account.TournamentState
	stopRealtime    context.CancelFunc
}

// NewService создаёт координатор.
func NewService(session *account.Session, opts Options) *Service {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Random == nil {
		opts.Random = defaultRandom{}
	}
	return &Service{
		session:  session,
		clock:    opts.Clock,
		random:   opts.Random,
		ticker:   opts.Ticker,
		realtime: opts.Realtime,
		locks:    newKeyedMutex(),
		games:    account.DefaultGames(),
	}
}

// current — текущая личность и её стратегия.
func (s *Service) current() (account.Identity, account.Strategy, error) {
	id, strategy, ok := s.session.Current()
	if !ok {
		return account.Identity{}, nil, common.ErrNotSignedIn
	}
	return id, strategy, nil
}

// mutate — изменение экономики под мьютексом личности.
// Кэши журнала и снимок сессии обновляются после успешной записи.
func (s *Service) mutate(ctx context.Context, id account.Identity, strategy account.Strategy, fn account.MutateFunc) (account.Identity, *account.Transaction, error) {
	unlock := s.locks.Lock(id.ID)
	defer unlock()
	return s.mutateLocked(ctx, id, strategy, fn)
}

func (s *Service) mutateLocked(ctx context.Context, id account.Identity, strategy account.Strategy, fn account.MutateFunc) (account.Identity, *account.Transaction, error) {
	updated, entry, err := strategy.Mutate(ctx, id.ID, fn)
	if err != nil {
		return account.Identity{}, nil, err
	}
	s.session.Update(updated)

	if entry != nil {
		s.mu.Lock()
		if s.identityID == id.ID {
			s.transactions = append([]account.Transaction{*entry}, s.transactions...)
			if len(s.transactions) > account.LedgerLimit {
				s.transactions = s.transactions[:account.LedgerLimit]
			}
		}
		s.mu.Unlock()
	}
	return updated, entry, nil
}

func (s *Service) findGame(gameID string) (account.Game, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, g := range s.games {
		if g.ID == gameID {
			return g, true
		}
	}
	return account.Game{}, false
}

// SubmitGameResult обрабатывает счёт законченной игры.
// Тренировка только закрывает сессию. Неизвестная игра игнорируется.
func (s *Service) SubmitGameResult(ctx context.Context, score float64, data GameData) (*GameOutcome, error) {
	id, strategy, err := s.current()
	if err != nil {
		return nil, err
	}

	gameID := data.GameID
	if gameID == "" {
		s.mu.Lock()
		if s.gameSession != nil {
			gameID = s.gameSession.GameID
		}
		s.mu.Unlock()
	}
	game, ok := s.findGame(gameID)
	if !ok {
		log.WithFields(log.Fields{
			"identity_id": id.ID,
			"game_id":     gameID,
		}).Warn("Результат для неизвестной игры пропущен")
		return nil, nil
	}

	if data.IsPractice {
		s.clearGameSession()
		return &GameOutcome{Practice: true}, nil
	}

	won := s.random.Float64() < WinChance(score)
	outcome := &GameOutcome{Won: won}

	updated, entry, err := s.mutate(ctx, id, strategy, func(cur *account.Identity) (*account.Transaction, error) {
		now := s.clock.Now()
		if won {
			outcome.StreakBonus = cur.WinStreak == streakBonusAt
			return applyWin(cur, game, score, now), nil
		}
		return applyLoss(cur, game, score, now), nil
	})
	if err != nil {
		return nil, err
	}
	outcome.Transaction = entry
	outcome.Amount = entry.Amount
	s.clearGameSession()

	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"game":        game.Name,
		"score":       formatScore(score),
		"won":         won,
		"amount":      entry.Amount.String(),
		"balance":     updated.Balance.String(),
		"streak":      updated.WinStreak,
	}).Info("Результат игры обработан")
	return outcome, nil
}

func (s *Service) clearGameSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gameSession = nil
}

// ToggleMining запускает майнинг или останавливает его с выплатой.
// Возвращает сессию после переключения.
func (s *Service) ToggleMining(ctx context.Context) (account.MiningSession, error) {
	id, strategy, err := s.current()
	if err != nil {
		return account.MiningSession{}, err
	}

	unlock := s.locks.Lock(id.ID)
	defer unlock()

	s.mu.Lock()
	active := s.mining
	s.mu.Unlock()

	if active != nil && active.Status == account.MiningActive {
		return s.stopMining(ctx, id, strategy, *active)
	}
	return s.startMining(ctx, id, strategy)
}

func (s *Service) startMining(ctx context.Context, id account.Identity, strategy account.Strategy) (account.MiningSession, error) {
	m, err := strategy.StartMining(ctx, account.MiningSession{
		UserID:      id.ID,
		HashRate:    id.MiningPower,
		StartTime:   s.clock.Now(),
		CoinsEarned: decimal.Zero,
		Status:      account.MiningActive,
		Efficiency:  account.Efficiency(id.MiningPower),
	})
	if err != nil {
		return account.MiningSession{}, err
	}

	s.mu.Lock()
	s.mining = &m
	s.mu.Unlock()

	if err := s.startTicker(); err != nil {
		return m, err
	}

	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"hash_rate":   m.HashRate,
	}).Info("Майнинг запущен")
	return m, nil
}

func (s *Service) startTicker() error {
	if s.ticker == nil {
		return nil
	}
	return s.ticker.StartMining(func() {
		if err := s.MiningTick(context.Background()); err != nil {
			log.WithError(err).Error("Ошибка тика майнинга")
		}
	})
}

func (s *Service) stopTicker() {
	if s.ticker != nil {
		s.ticker.StopMining()
	}
}

func (s *Service) stopMining(ctx context.Context, id account.Identity, strategy account.Strategy, m account.MiningSession) (account.MiningSession, error) {
	now := s.clock.Now()
	m.Status = account.MiningStopped
	m.EndTime = &now

	// Сначала закрываем сессию: повторной выплаты за те же монеты не будет
	if err := strategy.StopMiningSession(ctx, m); err != nil {
		return account.MiningSession{}, err
	}
	s.stopTicker()
	s.mu.Lock()
	s.mining = nil
	s.mu.Unlock()

	earned := m.CoinsEarned
	if earned.IsPositive() {
		_, _, err := s.mutateLocked(ctx, id, strategy, func(cur *account.Identity) (*account.Transaction, error) {
			cur.Balance = cur.Balance.Add(earned)
			return &account.Transaction{
				Type:        account.TxMining,
				Amount:      earned,
				Timestamp:   now,
				Description: miningDescription(m.StartTime, now),
				Status:      account.TxCompleted,
			}, nil
		})
		if err != nil {
			return m, err
		}
	}

	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"earned":      earned.String(),
	}).Info("Майнинг остановлен")
	return m, nil
}

// MiningTick начисляет монеты активной сессии за один период.
func (s *Service) MiningTick(ctx context.Context) error {
	id, strategy, err := s.current()
	if err != nil {
		return nil
	}

	unlock := s.locks.Lock(id.ID)
	defer unlock()

	s.mu.Lock()
	if s.mining == nil || s.mining.Status != account.MiningActive || s.mining.UserID != id.ID {
		s.mu.Unlock()
		return nil
	}
	m := *s.mining
	s.mu.Unlock()

	m.CoinsEarned = m.CoinsEarned.Add(MiningIncrement(m.HashRate))
	if err := strategy.SaveMiningSession(ctx, m); err != nil {
		return err
	}

	s.mu.Lock()
	if s.mining != nil && s.mining.ID == m.ID {
		s.mining = &m
	}
	s.mu.Unlock()

	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"coins":       m.CoinsEarned.String(),
	}).Debug("Тик майнинга")
	return nil
}

// WithdrawCrypto выводит amount с комиссией. Гостям вывод закрыт.
// Любой отказ возвращается в WithdrawResult, а не ошибкой.
func (s *Service) WithdrawCrypto(ctx context.Context, amount decimal.Decimal) WithdrawResult {
	id, strategy, err := s.current()
	if err != nil {
		return WithdrawResult{Fee: decimal.Zero, Reason: err}
	}
	if id.IsGuest() {
		return WithdrawResult{Fee: decimal.Zero, Reason: common.ErrGuestWithdrawal}
	}
	if !amount.IsPositive() {
		return WithdrawResult{Fee: WithdrawalFee, Reason: common.ErrInvalidAmount}
	}

	total := amount.Add(WithdrawalFee)
	updated, _, err := s.mutate(ctx, id, strategy, func(cur *account.Identity) (*account.Transaction, error) {
		if cur.Balance.LessThan(total) {
			return nil, common.ErrInsufficientFunds
		}
		cur.Balance = cur.Balance.Sub(total)
		fee := WithdrawalFee
		return &account.Transaction{
			Type:        account.TxWithdrawal,
			Amount:      amount.Neg(),
			Fee:         &fee,
			Timestamp:   s.clock.Now(),
			Description: "Crypto withdrawal",
			Status:      account.TxCompleted,
		}, nil
	})
	if err != nil {
		if !errors.Is(err, common.ErrInsufficientFunds) {
			log.WithError(err).WithField("identity_id", id.ID).Error("Ошибка вывода средств")
		}
		return WithdrawResult{Fee: WithdrawalFee, Reason: err}
	}

	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"amount":      amount.String(),
		"balance":     updated.Balance.String(),
	}).Info("Вывод средств выполнен")
	return WithdrawResult{Success: true, Fee: WithdrawalFee}
}

// DepositCrypto зачисляет amount и возвращает id операции.
// Проверка минимальной суммы — на стороне вызывающего.
func (s *Service) DepositCrypto(ctx context.Context, amount decimal.Decimal) (DepositResult, error) {
	id, strategy, err := s.current()
	if err != nil {
		return DepositResult{}, err
	}

	now := s.clock.Now()
	txID := common.StampedID("dep", now)
	_, _, err = s.mutate(ctx, id, strategy, func(cur *account.Identity) (*account.Transaction, error) {
		cur.Balance = cur.Balance.Add(amount)
		return &account.Transaction{
			Type:        account.TxDeposit,
			Amount:      amount,
			Timestamp:   now,
			Description: "Crypto deposit - " + txID,
			Status:      account.TxCompleted,
		}, nil
	})
	if err != nil {
		return DepositResult{}, err
	}

	log.WithFields(log.Fields{
		"identity_id":    id.ID,
		"amount":         amount.String(),
		"transaction_id": txID,
	}).Info("Пополнение зачислено")
	return DepositResult{Success: true, TransactionID: txID}, nil
}

// JoinMatchmaking ставит игрока в очередь. Через MatchmakingDelay
// появляется сессия с одним игроком, если очередь не покинута раньше.
func (s *Service) JoinMatchmaking(_ context.Context, gameID string) error {
	id, _, err := s.current()
	if err != nil {
		return err
	}
	if id.IsLocked() {
		return common.ErrAccountLocked
	}
	game, ok := s.findGame(gameID)
	if !ok {
		return common.ErrGameNotFound
	}
	if id.Balance.LessThan(game.MinBet) {
		return common.ErrInsufficientBalance
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.matchTimer != nil {
		s.matchTimer.Stop()
	}
	s.matchGen++
	gen := s.matchGen
	s.queue = &MatchmakingState{Queued: true, GameID: gameID, JoinedAt: s.clock.Now()}
	s.matchTimer = s.clock.AfterFunc(MatchmakingDelay, func() {
		s.matchFound(gen, id, game)
	})

	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"game_id":     gameID,
	}).Info("Игрок в очереди матчмейкинга")
	return nil
}

func (s *Service) matchFound(gen uint64, id account.Identity, game account.Game) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.matchGen != gen || s.queue == nil || s.identityID != id.ID {
		return
	}

	now := s.clock.Now()
	s.gameSession = &account.GameSession{
		ID:     common.StampedID("session", now),
		GameID: game.ID,
		Players: []account.Player{
			{ID: id.ID, Username: id.Username},
		},
		Status:    account.SessionWaiting,
		StartTime: now,
		PrizePool: game.MinBet.Mul(decimal.NewFromInt(PrizePoolPlayers)),
		MaxRounds: 1,
	}
	s.queue = nil
	s.matchTimer = nil

	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"game_id":     game.ID,
		"session_id":  s.gameSession.ID,
	}).Info("Матч найден")
}

// LeaveMatchmaking покидает очередь и закрывает сессию. Всегда успешен.
func (s *Service) LeaveMatchmaking() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetMatchLocked()
}

func (s *Service) resetMatchLocked() {
	if s.matchTimer != nil {
		s.matchTimer.Stop()
		s.matchTimer = nil
	}
	s.matchGen++
	s.queue = nil
	s.gameSession = nil
}

// JoinTournament записывает игрока в турнир.
func (s *Service) JoinTournament(ctx context.Context, tournamentID string) error {
	id, strategy, err := s.current()
	if err != nil {
		return err
	}
	if err := strategy.JoinTournament(ctx, id, tournamentID); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"identity_id":   id.ID,
		"tournament_id": tournamentID,
	}).Info("Игрок записан в турнир")
	s.refreshTournaments(ctx, id, strategy)
	return nil
}

// SpectateMatch добавляет игрока в зрители турнира.
func (s *Service) SpectateMatch(ctx context.Context, tournamentID string) error {
	id, strategy, err := s.current()
	if err != nil {
		return err
	}
	if err := strategy.SpectateMatch(ctx, id, tournamentID); err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"identity_id":   id.ID,
		"tournament_id": tournamentID,
	}).Info("Игрок смотрит турнир")
	s.refreshTournaments(ctx, id, strategy)
	return nil
}

// CreateGameRoom создаёт комнату для игры с друзьями.
// MaxPlayers по умолчанию берётся из каталога.
func (s *Service) CreateGameRoom(ctx context.Context, gameID string, settings account.RoomSettings) (account.Room, error) {
	id, strategy, err := s.current()
	if err != nil {
		return account.Room{}, err
	}
	game, ok := s.findGame(gameID)
	if !ok {
		return account.Room{}, common.ErrGameNotFound
	}
	if settings.MaxPlayers <= 0 || settings.MaxPlayers > game.MaxPlayers {
		settings.MaxPlayers = game.MaxPlayers
	}

	room, err := strategy.CreateRoom(ctx, id, gameID, settings)
	if err != nil {
		return account.Room{}, err
	}
	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"room_id":     room.ID,
		"room_code":   room.Code,
	}).Info("Комната создана")
	return room, nil
}

// JoinGameRoom входит в комнату по коду.
func (s *Service) JoinGameRoom(ctx context.Context, roomCode string) (account.Room, error) {
	id, strategy, err := s.current()
	if err != nil {
		return account.Room{}, err
	}
	room, err := strategy.JoinRoom(ctx, id, strings.ToUpper(strings.TrimSpace(roomCode)))
	if err != nil {
		return account.Room{}, err
	}
	log.WithFields(log.Fields{
		"identity_id": id.ID,
		"room_id":     room.ID,
	}).Info("Игрок вошёл в комнату")
	return room, nil
}

// Games — каталог игр.
func (s *Service) Games() []account.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.games)
}

// Transactions — журнал текущей личности, новые первыми.
func (s *Service) Transactions() []account.Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.transactions)
}

// MiningSession — активная сессия майнинга или nil.
func (s *Service) MiningSession() *account.MiningSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mining == nil {
		return nil
	}
	m := *s.mining
	return &m
}

// GameSession — найденный матч или nil.
func (s *Service) GameSession() *account.GameSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gameSession == nil {
		return nil
	}
	gs := *s.gameSession
	gs.Players = slices.Clone(gs.Players)
	return &gs
}

// Matchmaking — состояние очереди.
func (s *Service) Matchmaking() MatchmakingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue == nil {
		return MatchmakingState{}
	}
	return *s.queue
}

// Leaderboard — таблица лидеров.
func (s *Service) Leaderboard() []account.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.leaderboard)
}

// LiveTournaments — предстоящие и идущие турниры.
func (s *Service) LiveTournaments() []account.Tournament {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.tournaments)
}

// TournamentState — турниры игрока.
func (s *Service) TournamentState() account.TournamentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return account.TournamentState{
		Joined:     slices.Clone(s.tournamentState.Joined),
		Spectating: slices.Clone(s.tournamentState.Spectating),
	}
}
