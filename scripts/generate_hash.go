//go:build ignore

// generate_hash.go — утилита для генерации Argon2id хеша пароля
// в формате auth_users.password_hash и локального справочника аккаунтов.
// Запуск: go run scripts/generate_hash.go ваш_пароль
//
// Пригодится, чтобы завести тестового игрока в базе бэкенда вручную.
package main

import (
	"fmt"
	"os"

	"cyberarena.app/arena/internal/common"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Использование: go run scripts/generate_hash.go <пароль>")
		os.Exit(1)
	}

	hash, err := common.HashPassword(os.Args[1])
	if err != nil {
		fmt.Printf("Ошибка генерации хеша: %v\n", err)
		os.Exit(1)
	}
	if !common.VerifyPassword(os.Args[1], hash) {
		fmt.Println("Хеш не прошёл проверку")
		os.Exit(1)
	}

	fmt.Println(hash)
}
