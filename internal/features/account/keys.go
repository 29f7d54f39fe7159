package account

import "fmt"

// Ключи локального хранилища
const (
	KeyLocalMode     = "local_mode_enabled"
	KeyGuestUser     = "guest_user"
	KeyLocalUser     = "local_user"
	KeyLocalUsers    = "local_users"
	KeyRemoteSession = "remote_session"
	KeyGameRooms     = "game_rooms"
)

// SnapshotKey — ключ снимка текущей личности для гостя или локального игрока.
func SnapshotKey(kind Kind) string {
	if kind == KindGuest {
		return KeyGuestUser
	}
	return KeyLocalUser
}

// LedgerKey — журнал операций личности.
func LedgerKey(kind Kind, userID string) string {
	return fmt.Sprintf("%s_transactions_%s", kind, userID)
}

// MiningKey — снимок сессии майнинга.
func MiningKey(kind Kind, userID string) string {
	return fmt.Sprintf("%s_mining_%s", kind, userID)
}

// TournamentsKey — турниры, в которые игрок записался или которые смотрит.
func TournamentsKey(kind Kind, userID string) string {
	return fmt.Sprintf("%s_tournaments_%s", kind, userID)
}

// PerIdentityKeys — все ключи, принадлежащие одной личности.
func PerIdentityKeys(kind Kind, userID string) []string {
	return []string{
		LedgerKey(kind, userID),
		MiningKey(kind, userID),
		TournamentsKey(kind, userID),
	}
}
