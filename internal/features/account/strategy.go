package account

import "context"

// MutateFunc меняет личность внутри атомарного чтения-изменения-записи.
// Возвращённая операция (если не nil) добавляется в журнал той же записью.
type MutateFunc func(id *Identity) (*Transaction, error)

// Strategy — где живёт состояние личности. Гость и локальный игрок
// работают через LocalStrategy, удалённый через RemoteStrategy.
type Strategy interface {
	// Load перечитывает личность из хранилища.
	Load(ctx context.Context, userID string) (Identity, error)
	// Mutate — атомарное изменение экономики с записью в журнал.
	Mutate(ctx context.Context, userID string, fn MutateFunc) (Identity, *Transaction, error)
	// Transactions — журнал, новые первыми.
	Transactions(ctx context.Context, userID string) ([]Transaction, error)

	MiningSession(ctx context.Context, userID string) (*MiningSession, error)
	StartMining(ctx context.Context, m MiningSession) (MiningSession, error)
	SaveMiningSession(ctx context.Context, m MiningSession) error
	StopMiningSession(ctx context.Context, m MiningSession) error

	Games(ctx context.Context) ([]Game, error)
	Leaderboard(ctx context.Context, self Identity) ([]LeaderboardEntry, error)
	LiveTournaments(ctx context.Context) ([]Tournament, error)
	Tournaments(ctx context.Context, userID string) (TournamentState, error)
	JoinTournament(ctx context.Context, self Identity, tournamentID string) error
	SpectateMatch(ctx context.Context, self Identity, tournamentID string) error

	CreateRoom(ctx context.Context, self Identity, gameID string, settings RoomSettings) (Room, error)
	JoinRoom(ctx context.Context, self Identity, roomCode string) (Room, error)

	// Subscribe вызывает fn при изменениях таблицы для этого игрока.
	// Локальная стратегия изменений извне не получает.
	Subscribe(ctx context.Context, self Identity, table string, fn func()) error
}
