// Пакет access — единая точка авторизации операций над заявками.
// Роль и владение проверяются заново при каждой операции, результат не кэшируется.
// Отказ всегда возвращается явной ошибкой ErrDenied, частичной выдачи полей нет.
package access

import (
	"errors"

	"github.com/bigkaa/requestdesk/internal/domain/model"
)

// ErrDenied — операция запрещена. Текст не раскрывает, какая проверка не прошла.
var ErrDenied = errors.New("доступ запрещён")

// Action — вид операции, проверяемой шлюзом.
type Action string

const (
	// ActionListAll — просмотр всех заявок.
	ActionListAll Action = "list_all"
	// ActionRead — чтение конкретной заявки.
	ActionRead Action = "read"
	// ActionReply — ответ на заявку.
	ActionReply Action = "reply"
	// ActionCreateRequest — создание заявки.
	ActionCreateRequest Action = "create_request"
)

// CanListAll — только admin.
func CanListAll(caller *model.User) bool {
	return caller.IsAdmin()
}

// CanRead — admin или владелец заявки.
func CanRead(caller *model.User, request *model.Request) bool {
	if caller == nil || request == nil {
		return false
	}
	return caller.IsAdmin() || request.UserID == caller.ID
}

// CanReply — только admin.
func CanReply(caller *model.User) bool {
	return caller.IsAdmin()
}

// CanCreateRequest — любой аутентифицированный пользователь с допустимой ролью.
func CanCreateRequest(caller *model.User) bool {
	return caller != nil && caller.Role.IsValid()
}

// Allowed сообщает, разрешено ли caller выполнить action над target.
// target используется только для ActionRead.
func Allowed(caller *model.User, action Action, target *model.Request) bool {
	switch action {
	case ActionListAll:
		return CanListAll(caller)
	case ActionRead:
		return CanRead(caller, target)
	case ActionReply:
		return CanReply(caller)
	case ActionCreateRequest:
		return CanCreateRequest(caller)
	default:
		return false
	}
}

// Authorize возвращает nil, если операция разрешена, иначе ErrDenied.
func Authorize(caller *model.User, action Action, target *model.Request) error {
	if !Allowed(caller, action, target) {
		return ErrDenied
	}
	return nil
}
