package economy

import (
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"cyberarena.app/arena/internal/features/account"
)

// Константы экономики
var (
	WinPayout     = decimal.RequireFromString("1.00")
	StreakBonus   = decimal.RequireFromString("1.00")
	WithdrawalFee = decimal.RequireFromString("0.02")

	// hashRateDivisor — монет за тик на единицу мощности: hashRate / 2 000 000
	hashRateDivisor = decimal.NewFromInt(2_000_000)
)

const (
	MiningPowerPerWin = 50
	XPPerWin          = 100
	XPPerLoss         = 25

	// streakBonusAt — серия до победы, при которой платится бонус (третья победа подряд)
	streakBonusAt = 2

	MiningTickInterval = 30 * time.Second
	MatchmakingDelay   = 2 * time.Second
	PrizePoolPlayers   = 4

	minWinChance = 0.10
	maxWinChance = 0.90
)

// WinChance — вероятность победы для счёта: score/1000 в пределах [0.10, 0.90].
func WinChance(score float64) float64 {
	if math.IsNaN(score) {
		return minWinChance
	}
	return math.Min(maxWinChance, math.Max(minWinChance, score/1000))
}

// MiningIncrement — прирост монет за один тик.
func MiningIncrement(hashRate int) decimal.Decimal {
	return decimal.NewFromInt(int64(hashRate)).Div(hashRateDivisor)
}

// applyWin начисляет победу. Бонус платится, только если до победы серия была ровно 2.
func applyWin(id *account.Identity, game account.Game, score float64, now time.Time) *account.Transaction {
	bonus := id.WinStreak == streakBonusAt
	amount := WinPayout
	description := fmt.Sprintf("Won %s (Score: %s)", game.Name, formatScore(score))
	if bonus {
		amount = amount.Add(StreakBonus)
		description = fmt.Sprintf("Won %s - 3 win streak bonus! (Score: %s)", game.Name, formatScore(score))
	}

	id.Balance = id.Balance.Add(amount)
	id.TotalWins++
	id.WinStreak++
	id.MiningPower += MiningPowerPerWin
	id.XP += XPPerWin

	return &account.Transaction{
		Type:        account.TxWin,
		Amount:      amount,
		Timestamp:   now,
		Description: description,
		Status:      account.TxCompleted,
	}
}

// applyLoss списывает минимальную ставку игры и сбрасывает серию.
func applyLoss(id *account.Identity, game account.Game, score float64, now time.Time) *account.Transaction {
	id.Balance = id.Balance.Sub(game.MinBet)
	id.TotalLosses++
	id.WinStreak = 0
	id.XP += XPPerLoss

	return &account.Transaction{
		Type:        account.TxLoss,
		Amount:      game.MinBet.Neg(),
		Timestamp:   now,
		Description: fmt.Sprintf("Lost %s (Score: %s)", game.Name, formatScore(score)),
		Status:      account.TxCompleted,
	}
}

// formatScore печатает счёт как есть, включая NaN и ±Inf.
func formatScore(score float64) string {
	return strconv.FormatFloat(score, 'f', -1, 64)
}

// miningDescription — описание выплаты за сессию, длительность в целых часах.
func miningDescription(started, now time.Time) string {
	hours := math.Round(now.Sub(started).Hours())
	return fmt.Sprintf("Mining rewards - %.0fh session", hours)
}
