// Package common — pluralize.go содержит склонение английских
// существительных для ответов игроку и форматирование больших чисел.
package common

import "fmt"

// Pluralize возвращает "1 win" / "3 wins".
// Для неправильных форм передайте plural явно через PluralizeForm.
func Pluralize(n int, noun string) string {
	return PluralizeForm(n, noun, noun+"s")
}

// PluralizeForm — вариант Pluralize с явной формой множественного числа.
//
// Примеры:
//
//	PluralizeForm(1, "match", "matches") → "1 match"
//	PluralizeForm(0, "match", "matches") → "0 matches"
func PluralizeForm(n int, singular, plural string) string {
	if n == 1 || n == -1 {
		return fmt.Sprintf("%d %s", n, singular)
	}
	return fmt.Sprintf("%d %s", n, plural)
}

// FormatNumber форматирует число с разделителями тысяч (запятыми).
// Пример: FormatNumber(999999) → "999,999"
func FormatNumber(n int64) string {
	if n < 0 {
		// -MinInt64 не помещается в int64, поэтому модуль считаем в uint64
		return "-" + formatUnsigned(uint64(-(n + 1))+1)
	}
	return formatUnsigned(uint64(n))
}

func formatUnsigned(n uint64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	// Рекурсивно добавляем разделители
	return fmt.Sprintf("%s,%03d", formatUnsigned(n/1000), n%1000)
}
