// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrForbidden — операция запрещена для роли или владельца.
	ErrForbidden = errors.New("доступ запрещён")
	// ErrUnauthenticated — вызывающий не аутентифицирован или не существует.
	ErrUnauthenticated = errors.New("требуется аутентификация")
	// ErrAlreadyAnswered — на заявку уже дан ответ (политика single).
	ErrAlreadyAnswered = errors.New("на заявку уже дан ответ")
)
