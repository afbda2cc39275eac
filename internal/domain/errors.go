package domain

import "errors"

var (
	// ErrOrderNotFound возвращается, если заказа с таким ID нет в хранилище.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если позиции каталога с таким ID нет.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidStatus — статус не входит в производственный конвейер.
	ErrInvalidStatus = errors.New("invalid order status")
	// ErrInvalidPriority — приоритет не Normal и не Urgent.
	ErrInvalidPriority = errors.New("invalid order priority")
	// ErrProductNameRequired — пустое название позиции каталога.
	ErrProductNameRequired = errors.New("product name is required")
	// ErrUserManagementRestricted — пользователи редактируются только в удалённой таблице.
	ErrUserManagementRestricted = errors.New("user management is restricted to the remote sheet")
	// ErrIDExhausted — генератор не смог подобрать свободный идентификатор.
	ErrIDExhausted = errors.New("could not generate a unique identifier")

	// ErrRemoteUnavailable — транспортная ошибка при обращении к удалённой таблице.
	ErrRemoteUnavailable = errors.New("remote backend unavailable")
	// ErrMalformedResponse — ответ read не является массивом записей.
	ErrMalformedResponse = errors.New("malformed remote response")
	// ErrSlotCorrupted — сохранённый слот не удалось декодировать.
	ErrSlotCorrupted = errors.New("fallback slot corrupted")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// IsNotFound проверяет, что ошибка означает отсутствие сущности.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrProductNotFound)
}

// IsInvalidInput проверяет, что ошибка вызвана некорректными входными данными.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrInvalidPriority) ||
		errors.Is(err, ErrProductNameRequired)
}
