package account

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"cyberarena.app/arena/internal/db/sqlite"
)

// CredentialRecord — запись локального справочника учётных записей.
// Кроме пароля хранит последний снимок экономики игрока.
type CredentialRecord struct {
	ID           string          `json:"id"`
	Email        string          `json:"email"`
	Username     string          `json:"username"`
	PasswordHash string          `json:"passwordHash"`
	Balance      decimal.Decimal `json:"balance"`
	Debt         decimal.Decimal `json:"debt"`
	TotalWins    int             `json:"totalWins"`
	TotalLosses  int             `json:"totalLosses"`
	WinStreak    int             `json:"winStreak"`
	MiningPower  int             `json:"miningPower"`
	Level        int             `json:"level"`
	XP           int             `json:"xp"`
	Rank         int             `json:"rank"`
	Achievements []string        `json:"achievements"`
	CreatedAt    time.Time       `json:"createdAt"`
}

// Directory — справочник: нормализованный email → запись.
type Directory map[string]CredentialRecord

// EmailKey — ключ справочника для email.
func EmailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// LoadDirectory читает справочник внутри транзакции.
func LoadDirectory(tx *sqlite.Tx) (Directory, error) {
	dir := Directory{}
	if _, err := tx.GetJSON(KeyLocalUsers, &dir); err != nil {
		return nil, err
	}
	return dir, nil
}

// SaveDirectory записывает справочник внутри транзакции.
func SaveDirectory(tx *sqlite.Tx, dir Directory) error {
	return tx.SetJSON(KeyLocalUsers, dir)
}

// UsernameTaken — имя уже занято (без учёта регистра).
func (d Directory) UsernameTaken(username string) bool {
	for _, r := range d {
		if strings.EqualFold(r.Username, username) {
			return true
		}
	}
	return false
}

// NewCredentialRecord создаёт запись из личности и хеша пароля.
func NewCredentialRecord(id Identity, passwordHash string, now time.Time) CredentialRecord {
	r := CredentialRecord{
		ID:           id.ID,
		Email:        EmailKey(id.Email),
		Username:     id.Username,
		PasswordHash: passwordHash,
		CreatedAt:    now,
	}
	r.Sync(id)
	return r
}

// Sync переносит в запись экономику и профиль личности.
func (r *CredentialRecord) Sync(id Identity) {
	r.Balance = id.Balance
	r.Debt = id.Debt
	r.TotalWins = id.TotalWins
	r.TotalLosses = id.TotalLosses
	r.WinStreak = id.WinStreak
	r.MiningPower = id.MiningPower
	r.Level = id.Level
	r.XP = id.XP
	r.Rank = id.Rank
	r.Achievements = append([]string(nil), id.Achievements...)
}

// Identity собирает локальную личность из сохранённой записи как есть.
func (r CredentialRecord) Identity(now time.Time) Identity {
	achievements := r.Achievements
	if achievements == nil {
		achievements = []string{}
	}
	return Identity{
		ID:       r.ID,
		Kind:     KindLocal,
		Email:    r.Email,
		Username: r.Username,
		Profile: Profile{
			Level:        r.Level,
			XP:           r.XP,
			Rank:         r.Rank,
			Achievements: append([]string(nil), achievements...),
		},
		Economy: Economy{
			Balance:     r.Balance,
			Debt:        r.Debt,
			WinStreak:   r.WinStreak,
			MiningPower: r.MiningPower,
			TotalWins:   r.TotalWins,
			TotalLosses: r.TotalLosses,
		},
		LastActive: now,
	}
}
