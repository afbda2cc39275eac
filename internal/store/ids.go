package store

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/crowngate/internal/domain"
)

const (
	orderIDPrefix   = "ORD-"
	productIDPrefix = "PROD-"

	// maxIDAttempts ограничивает перегенерацию при совпадении идентификатора.
	maxIDAttempts = 8
)

// IDGenerator возвращает случайную часть идентификатора.
type IDGenerator func() string

func defaultIDGenerator() string {
	return uuid.NewString()
}

// uniqueID подбирает идентификатор с префиксом, не занятый в коллекции.
// Вызывается под блокировкой записи.
func uniqueID(gen IDGenerator, prefix string, taken func(string) bool) (string, error) {
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := prefix + gen()
		if !taken(id) {
			return id, nil
		}
	}
	return "", fmt.Errorf("%s after %d attempts: %w", prefix, maxIDAttempts, domain.ErrIDExhausted)
}
