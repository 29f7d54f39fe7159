package account

import (
	"time"

	"github.com/shopspring/decimal"
)

func bet(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// DefaultGames — каталог, с которым приложение работает без бэкенда
// и когда таблица games пуста или недоступна.
func DefaultGames() []Game {
	return []Game{
		{ID: "550e8400-e29b-41d4-a716-446655440001", Name: "Reaction Master", Type: "reaction", Description: "Test your reflexes against other players in lightning-fast challenges", Icon: "zap", MinBet: bet("0.33"), MaxPlayers: 4, Duration: 30, Difficulty: "easy", Category: "reflex"},
		{ID: "550e8400-e29b-41d4-a716-446655440002", Name: "Crypto Puzzle", Type: "puzzle", Description: "Solve blockchain-themed puzzles faster than your opponents", Icon: "puzzle", MinBet: bet("0.33"), MaxPlayers: 6, Duration: 120, Difficulty: "medium", Category: "strategy"},
		{ID: "550e8400-e29b-41d4-a716-446655440003", Name: "Precision Strike", Type: "aim", Description: "Hit targets with perfect accuracy in this skill-based shooter", Icon: "target", MinBet: bet("0.33"), MaxPlayers: 8, Duration: 60, Difficulty: "medium", Category: "skill"},
		{ID: "550e8400-e29b-41d4-a716-446655440004", Name: "Neon Runner", Type: "runner", Description: "Race through cyberpunk landscapes avoiding obstacles", Icon: "rocket", MinBet: bet("0.33"), MaxPlayers: 10, Duration: 90, Difficulty: "hard", Category: "reflex"},
		{ID: "550e8400-e29b-41d4-a716-446655440005", Name: "Memory Matrix", Type: "memory", Description: "Remember and reproduce complex patterns under pressure", Icon: "brain", MinBet: bet("0.33"), MaxPlayers: 4, Duration: 45, Difficulty: "medium", Category: "strategy"},
		{ID: "550e8400-e29b-41d4-a716-446655440006", Name: "Code Racer", Type: "typing", Description: "Type code snippets faster and more accurately than competitors", Icon: "keyboard", MinBet: bet("0.33"), MaxPlayers: 6, Duration: 60, Difficulty: "easy", Category: "skill"},
		{ID: "550e8400-e29b-41d4-a716-446655440007", Name: "Chess Master", Type: "chess", Description: "Classic chess with real-time multiplayer and spectating", Icon: "crown", MinBet: bet("0.50"), MaxPlayers: 2, Duration: 1800, Difficulty: "hard", Category: "strategy"},
		{ID: "550e8400-e29b-41d4-a716-446655440008", Name: "Tic-Tac-Toe Blitz", Type: "tictactoe", Description: "Fast-paced tic-tac-toe with multiple rounds", Icon: "grid-3x3", MinBet: bet("0.25"), MaxPlayers: 2, Duration: 180, Difficulty: "easy", Category: "strategy"},
		{ID: "550e8400-e29b-41d4-a716-446655440009", Name: "Word Battle", Type: "word", Description: "Create words faster than your opponent", Icon: "type", MinBet: bet("0.40"), MaxPlayers: 4, Duration: 300, Difficulty: "medium", Category: "skill"},
		{ID: "550e8400-e29b-41d4-a716-446655440010", Name: "Number Crunch", Type: "math", Description: "Solve math problems under pressure", Icon: "calculator", MinBet: bet("0.30"), MaxPlayers: 6, Duration: 240, Difficulty: "medium", Category: "skill"},
		{ID: "550e8400-e29b-41d4-a716-446655440011", Name: "Color Match", Type: "color", Description: "Match colors and patterns quickly", Icon: "palette", MinBet: bet("0.25"), MaxPlayers: 8, Duration: 120, Difficulty: "easy", Category: "reflex"},
	}
}

// mockLeaderboard — лидерборд локального режима.
// Игрок добавляется шестым, если у него есть победы.
func mockLeaderboard(self Identity) []LeaderboardEntry {
	board := []LeaderboardEntry{
		{Rank: 1, Username: "CyberChamp", Wins: 150, WinRate: 85.5, TotalEarnings: bet("250.75"), Level: 15},
		{Rank: 2, Username: "DigitalWarrior", Wins: 120, WinRate: 82.1, TotalEarnings: bet("198.50"), Level: 12},
		{Rank: 3, Username: "NeonMaster", Wins: 95, WinRate: 79.8, TotalEarnings: bet("156.25"), Level: 10},
		{Rank: 4, Username: "QuantumGamer", Wins: 88, WinRate: 76.3, TotalEarnings: bet("142.10"), Level: 9},
		{Rank: 5, Username: "TechNinja", Wins: 75, WinRate: 73.5, TotalEarnings: bet("125.80"), Level: 8},
	}
	if self.TotalWins > 0 {
		board = append(board, LeaderboardEntry{
			Rank:          6,
			Username:      self.Username,
			Wins:          self.TotalWins,
			WinRate:       float64(self.TotalWins) / float64(self.TotalWins+self.TotalLosses) * 100,
			TotalEarnings: decimal.Zero,
			Level:         self.Level,
		})
	}
	return board
}

// mockTournaments — два предстоящих турнира локального режима.
func mockTournaments(now time.Time) []Tournament {
	return []Tournament{
		{
			ID: "mock-tournament-1", Name: "Daily Reaction Challenge",
			GameID: "550e8400-e29b-41d4-a716-446655440001", GameName: "Reaction Master",
			EntryFee: bet("1.00"), PrizePool: bet("16.00"), MaxParticipants: 16, CurrentParticipants: 8,
			Status: "upcoming", StartTime: now.Add(time.Hour), Rounds: 4, Difficulty: "easy",
		},
		{
			ID: "mock-tournament-2", Name: "Puzzle Masters Championship",
			GameID: "550e8400-e29b-41d4-a716-446655440002", GameName: "Crypto Puzzle",
			EntryFee: bet("2.00"), PrizePool: bet("32.00"), MaxParticipants: 16, CurrentParticipants: 12,
			Status: "upcoming", StartTime: now.Add(2 * time.Hour), Rounds: 4, Difficulty: "medium",
		},
	}
}
