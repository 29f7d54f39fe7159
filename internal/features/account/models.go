// Package account — общая модель данных аккаунта: личность игрока,
// экономическое состояние, журнал операций, майнинг и игровые сессии,
// а также контекст сессии и стратегии хранения (локальная и удалённая).
package account

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kind — тип личности. Определяет, где хранится всё остальное.
type Kind string

const (
	KindGuest  Kind = "guest"
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// Mode — глобальный режим хранения.
type Mode string

const (
	ModeLocal  Mode = "local"
	ModeRemote Mode = "remote"
)

// Стартовое состояние и пороги экономики
var (
	StartingBalance = decimal.RequireFromString("5.00")
	LockThreshold   = decimal.RequireFromString("10.00")
)

const (
	StartingMiningPower = 500
	StartingLevel       = 1
	StartingRank        = 999999

	// LedgerLimit — сколько последних операций хранится локально
	LedgerLimit = 20
)

// Profile — игровой профиль.
type Profile struct {
	Level        int      `json:"level"`
	XP           int      `json:"xp"`
	Rank         int      `json:"rank"`
	Achievements []string `json:"achievements"`
}

// Economy — экономическое состояние. Меняется только целиком.
type Economy struct {
	Balance     decimal.Decimal `json:"balance"`
	Debt        decimal.Decimal `json:"debt"`
	WinStreak   int             `json:"winStreak"`
	MiningPower int             `json:"miningPower"`
	TotalWins   int             `json:"totalWins"`
	TotalLosses int             `json:"totalLosses"`
}

// IsLocked — долг достиг порога блокировки. Вычисляется при каждом чтении.
func (e Economy) IsLocked() bool {
	return e.Debt.GreaterThanOrEqual(LockThreshold)
}

// Identity — текущий игрок.
// Profile и Economy встроены: в JSON-снимке поля лежат плоско.
type Identity struct {
	ID       string `json:"id"`
	Kind     Kind   `json:"kind"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username"`
	Profile
	Economy
	LastActive time.Time `json:"lastActive"`
}

// NewIdentity создаёт личность со стартовым состоянием:
// баланс 5.00, мощность майнинга 500, уровень 1, счётчики по нулям.
func NewIdentity(kind Kind, id, email, username string, now time.Time) Identity {
	return Identity{
		ID:       id,
		Kind:     kind,
		Email:    email,
		Username: username,
		Profile: Profile{
			Level:        StartingLevel,
			Rank:         StartingRank,
			Achievements: []string{},
		},
		Economy: Economy{
			Balance:     StartingBalance,
			Debt:        decimal.Zero,
			MiningPower: StartingMiningPower,
		},
		LastActive: now,
	}
}

// IsGuest — гостевая личность.
func (i Identity) IsGuest() bool { return i.Kind == KindGuest }

// Clone — копия без общих срезов.
func (i Identity) Clone() Identity {
	i.Achievements = append([]string(nil), i.Achievements...)
	return i
}

// TxType — тип операции в журнале.
type TxType string

const (
	TxWin        TxType = "win"
	TxLoss       TxType = "loss"
	TxMining     TxType = "mining"
	TxWithdrawal TxType = "withdrawal"
	TxDeposit    TxType = "deposit"
	TxFee        TxType = "fee"
)

// TxStatus — статус операции.
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxCompleted TxStatus = "completed"
	TxFailed    TxStatus = "failed"
)

// Transaction — запись журнала. После создания не меняется.
type Transaction struct {
	ID          string           `json:"id"`
	UserID      string           `json:"userId"`
	Type        TxType           `json:"type"`
	Amount      decimal.Decimal  `json:"amount"`
	Fee         *decimal.Decimal `json:"fee,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
	Description string           `json:"description"`
	Status      TxStatus         `json:"status"`
}

// MiningStatus — состояние майнинга.
type MiningStatus string

const (
	MiningActive  MiningStatus = "active"
	MiningStopped MiningStatus = "stopped"
)

// MiningSession — сессия майнинга, не больше одной активной на игрока.
type MiningSession struct {
	ID          string          `json:"id"`
	UserID      string          `json:"userId"`
	HashRate    int             `json:"hashRate"`
	StartTime   time.Time       `json:"startTime"`
	EndTime     *time.Time      `json:"endTime,omitempty"`
	CoinsEarned decimal.Decimal `json:"coinsEarned"`
	Status      MiningStatus    `json:"status"`
	Efficiency  float64         `json:"efficiency"`
}

// Efficiency — процент эффективности майнинга для мощности power, не выше 100.
func Efficiency(power int) float64 {
	e := float64(power) / 2000 * 100
	if e > 100 {
		return 100
	}
	return e
}

// SessionStatus — статус игровой сессии.
type SessionStatus string

const (
	SessionWaiting  SessionStatus = "waiting"
	SessionStarting SessionStatus = "starting"
	SessionPlaying  SessionStatus = "playing"
	SessionFinished SessionStatus = "finished"
)

// Player — участник игровой сессии.
type Player struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Score    int    `json:"score"`
	IsReady  bool   `json:"isReady"`
}

// GameSession — найденный матч.
type GameSession struct {
	ID           string          `json:"id"`
	GameID       string          `json:"gameId"`
	Players      []Player        `json:"players"`
	Status       SessionStatus   `json:"status"`
	StartTime    time.Time       `json:"startTime"`
	PrizePool    decimal.Decimal `json:"prizePool"`
	CurrentRound int             `json:"currentRound"`
	MaxRounds    int             `json:"maxRounds"`
}

// Game — игра каталога.
type Game struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description string          `json:"description"`
	Icon        string          `json:"icon"`
	MinBet      decimal.Decimal `json:"minBet"`
	MaxPlayers  int             `json:"maxPlayers"`
	Duration    int             `json:"duration"`
	Difficulty  string          `json:"difficulty"`
	Category    string          `json:"category"`
}

// Tournament — турнир из списка живых.
type Tournament struct {
	ID                  string          `json:"id"`
	Name                string          `json:"name"`
	GameID              string          `json:"gameId"`
	GameName            string          `json:"gameName"`
	EntryFee            decimal.Decimal `json:"entryFee"`
	PrizePool           decimal.Decimal `json:"prizePool"`
	MaxParticipants     int             `json:"maxParticipants"`
	CurrentParticipants int             `json:"currentParticipants"`
	Status              string          `json:"status"`
	StartTime           time.Time       `json:"startTime"`
	Rounds              int             `json:"rounds"`
	Difficulty          string          `json:"difficulty"`
}

// TournamentState — турниры, в которые игрок записался или которые смотрит.
type TournamentState struct {
	Joined     []string `json:"joined"`
	Spectating []string `json:"spectating"`
}

// LeaderboardEntry — строка лидерборда.
type LeaderboardEntry struct {
	Rank          int             `json:"rank"`
	Username      string          `json:"username"`
	Wins          int             `json:"wins"`
	WinRate       float64         `json:"winRate"`
	TotalEarnings decimal.Decimal `json:"totalEarnings"`
	Level         int             `json:"level"`
}

// RoomSettings — параметры новой комнаты.
type RoomSettings struct {
	MaxPlayers        int
	IsPrivate         bool
	SpectatorsAllowed bool
}

// Room — комната для игры с друзьями.
type Room struct {
	ID                string    `json:"id"`
	Code              string    `json:"roomCode"`
	GameID            string    `json:"gameId"`
	HostID            string    `json:"hostId"`
	HostUsername      string    `json:"hostUsername"`
	MaxPlayers        int       `json:"maxPlayers"`
	CurrentPlayers    int       `json:"currentPlayers"`
	Status            string    `json:"status"`
	IsPrivate         bool      `json:"isPrivate"`
	SpectatorsAllowed bool      `json:"spectatorsAllowed"`
	CreatedAt         time.Time `json:"createdAt"`
}
