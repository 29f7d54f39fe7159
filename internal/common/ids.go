// Package common — ids.go: идентификаторы локальных сущностей.
package common

import (
	"fmt"
	"math/rand/v2"
	"time"
)

const (
	base36    = "0123456789abcdefghijklmnopqrstuvwxyz"
	roomChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// RandomString — n случайных символов из alphabet.
func RandomString(n int, alphabet string) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}

// StampedID собирает id вида <prefix>_<ms>_<9 символов base36>.
// Пример: StampedID("dep", now) → "dep_1718000000000_k3j9x0abc"
func StampedID(prefix string, now time.Time) string {
	return fmt.Sprintf("%s_%d_%s", prefix, now.UnixMilli(), RandomString(9, base36))
}

// RoomCode — код комнаты из 6 символов A-Z0-9.
func RoomCode() string {
	return RandomString(6, roomChars)
}
