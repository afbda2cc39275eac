package domain

import (
	"strings"
	"time"
)

// DateLayout — формат календарной даты, который хранится в заказах.
const DateLayout = "2006-01-02"

// NormalizeDate отбрасывает время суток, оставляя только календарную дату.
// "2023-11-01T18:30:00.000Z" превращается в "2023-11-01"; уже нормализованная
// дата возвращается без изменений.
func NormalizeDate(value string) string {
	date, _, _ := strings.Cut(strings.TrimSpace(value), "T")
	return date
}

// FormatDate переводит момент времени в календарную дату.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ValidDate проверяет, что строка является календарной датой (допускается время после "T").
func ValidDate(value string) bool {
	_, err := time.Parse(DateLayout, NormalizeDate(value))
	return err == nil
}
