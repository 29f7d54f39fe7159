// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: форматирование сумм, разбор сумм из текста, работа со временем.
package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// cent — минимальная сумма, которую показываем с двумя знаками.
var cent = decimal.New(1, -2)

// FormatMoney форматирует сумму в долларах.
// Дробные доли меньше цента (начисления майнинга) показываются полностью.
//
// Примеры:
//
//	FormatMoney(5)        → "$5.00"
//	FormatMoney(9.00065)  → "$9.00065"
//	FormatMoney(0.000325) → "$0.000325"
func FormatMoney(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	if d.Exponent() < -2 && !d.Mod(cent).IsZero() {
		return sign + "$" + d.String()
	}
	return sign + "$" + d.StringFixed(2)
}

// FormatSignedMoney добавляет «+» к положительным суммам.
// Пример: FormatSignedMoney(1) → "+$1.00"
func FormatSignedMoney(d decimal.Decimal) string {
	if d.IsPositive() {
		return "+" + FormatMoney(d)
	}
	return FormatMoney(d)
}

// ParseAmount разбирает сумму из текста команды ("1.5", "$2", "0,25").
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad amount %q: %w", s, err)
	}
	if !d.IsPositive() {
		return decimal.Zero, ErrInvalidAmount
	}
	return d, nil
}

// FormatDateTime форматирует время в формат "02.01.2006 15:04" в UTC.
// Используется для отображения дат транзакций.
func FormatDateTime(t time.Time) string {
	return t.UTC().Format("02.01.2006 15:04")
}

// FormatDuration округляет длительность до часов, как в описании майнинга.
// Пример: 90 минут → "2h"
func FormatDuration(d time.Duration) string {
	hours := (d + 30*time.Minute) / time.Hour
	return fmt.Sprintf("%dh", hours)
}
