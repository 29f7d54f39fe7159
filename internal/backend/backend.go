// Package backend описывает удалённый бэкенд, с которым работает ядро:
// аутентификация, таблицы users/transactions/mining_sessions, каталог,
// RPC create_room/join_room и подписки на изменения.
//
// Все строки типизированы: ядро не видит «сырых» ответов бэкенда.
package backend

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Тексты ошибок бэкенда, которые ядро распознаёт и переводит в свои категории.
const (
	MsgInvalidCredentials = "Invalid login credentials"
	MsgEmailNotConfirmed  = "Email not confirmed"
	MsgUserExists         = "User already registered"
	MsgWeakPassword       = "Password should be at least 6 characters"
	MsgTimeout            = "request timed out"
	MsgUnavailable        = "backend unavailable"
)

// Error — ошибка бэкенда с текстом для показа (BackendError).
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError создаёт ошибку бэкенда.
func NewError(message string) *Error {
	return &Error{Message: message}
}

// AsError достаёт *Error из цепочки.
func AsError(err error) (*Error, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}

// Session — установленная сессия бэкенда.
type Session struct {
	AccessToken string
	UserID      string
	Email       string
	ExpiresAt   time.Time
}

// UserRow — строка таблицы users.
type UserRow struct {
	ID           string
	Email        string
	Username     string
	Balance      decimal.Decimal
	Debt         decimal.Decimal
	Rank         int
	Level        int
	XP           int
	TotalWins    int
	TotalLosses  int
	WinStreak    int
	MiningPower  int
	Achievements []string
	LastActive   time.Time
	CreatedAt    time.Time
}

// TransactionRow — строка таблицы transactions.
type TransactionRow struct {
	ID          string
	UserID      string
	Type        string
	Amount      decimal.Decimal
	Fee         decimal.NullDecimal
	Description string
	Status      string
	CreatedAt   time.Time
}

// MiningSessionRow — строка таблицы mining_sessions.
type MiningSessionRow struct {
	ID          string
	UserID      string
	HashRate    int
	StartTime   time.Time
	EndTime     *time.Time
	CoinsEarned decimal.Decimal
	Status      string
	Efficiency  float64
}

// GameRow — строка каталога games.
type GameRow struct {
	ID          string
	Name        string
	Type        string
	Description string
	Icon        string
	MinBet      decimal.Decimal
	MaxPlayers  int
	Duration    int
	Difficulty  string
	Category    string
}

// TournamentRow — турнир вместе с названием игры.
type TournamentRow struct {
	ID                  string
	Name                string
	GameID              string
	GameName            string
	EntryFee            decimal.Decimal
	PrizePool           decimal.Decimal
	MaxParticipants     int
	CurrentParticipants int
	Status              string
	StartTime           time.Time
	Rounds              int
	Difficulty          string
}

// LeaderboardRow — строка представления leaderboard.
type LeaderboardRow struct {
	Rank          int
	Username      string
	Wins          int
	WinRate       float64
	TotalEarnings decimal.Decimal
	Level         int
}

// CreateRoomParams — аргументы RPC create_room.
type CreateRoomParams struct {
	GameID            string
	HostID            string
	HostUsername      string
	MaxPlayers        int
	IsPrivate         bool
	SpectatorsAllowed bool
}

// JoinRoomParams — аргументы RPC join_room.
type JoinRoomParams struct {
	RoomCode string
	UserID   string
	Username string
	Role     string
}

// RoomResult — ответ create_room/join_room.
type RoomResult struct {
	RoomID   string
	RoomCode string
}

// Change — уведомление realtime-подписки.
type Change struct {
	Table  string
	Op     string
	RowID  string
	UserID string
}

// UpdateFunc меняет строку пользователя внутри заблокированной транзакции.
// Возвращённая транзакция (если не nil) записывается в ту же транзакцию БД.
type UpdateFunc func(u *UserRow) (*TransactionRow, error)

// Client — набор возможностей удалённого бэкенда.
type Client interface {
	// Аутентификация
	SignInWithPassword(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) (userID string, err error)
	SignOut(ctx context.Context, accessToken string) error
	GetSession(ctx context.Context, accessToken string) (*Session, error)
	Ping(ctx context.Context) error

	// Профили и экономика
	FetchProfile(ctx context.Context, userID string) (*UserRow, error)
	UsernameExists(ctx context.Context, username string) (bool, error)
	InsertUser(ctx context.Context, row UserRow) error
	UpdateUser(ctx context.Context, userID string, fn UpdateFunc) (*UserRow, error)
	ListTransactions(ctx context.Context, userID string, limit int) ([]TransactionRow, error)

	// Майнинг
	ActiveMiningSession(ctx context.Context, userID string) (*MiningSessionRow, error)
	InsertMiningSession(ctx context.Context, row MiningSessionRow) (*MiningSessionRow, error)
	UpdateMiningSession(ctx context.Context, row MiningSessionRow) error

	// Каталог
	Games(ctx context.Context) ([]GameRow, error)
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardRow, error)
	LiveTournaments(ctx context.Context) ([]TournamentRow, error)

	// RPC и турниры
	CreateRoom(ctx context.Context, p CreateRoomParams) (*RoomResult, error)
	JoinRoom(ctx context.Context, p JoinRoomParams) (*RoomResult, error)
	JoinTournament(ctx context.Context, tournamentID, userID string) error
	SpectateMatch(ctx context.Context, tournamentID, userID string) error

	// Subscribe слушает изменения таблицы до отмены ctx.
	// Возвращает управление, как только подписка установлена.
	Subscribe(ctx context.Context, table string, fn func(Change)) error
}

// ErrNotFound — строки нет (профиль ещё не создан и т.п.).
var ErrNotFound = errors.New("backend: not found")
