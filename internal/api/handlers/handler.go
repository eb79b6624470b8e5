// handler.go — основной обработчик API Request Desk.
// Разбирает HTTP-запросы, передаёт id вызывающего из сессии в сервисный
// слой и переводит ошибки сервисов в HTTP-ответы.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/oapi-codegen/runtime"

	apierrors "github.com/bigkaa/requestdesk/internal/api/errors"
	"github.com/bigkaa/requestdesk/internal/domain/model"
	"github.com/bigkaa/requestdesk/internal/service"
)

// Identity — каталог пользователей.
type Identity interface {
	ResolveOrCreate(ctx context.Context, fullName, militaryID string) (*model.User, error)
	Caller(ctx context.Context, userID string) (*model.User, error)
}

// Requests — хранилище заявок.
type Requests interface {
	Create(ctx context.Context, callerID string, in service.CreateRequestInput) (*model.Request, error)
	List(ctx context.Context, callerID string) ([]*model.RequestWithDetails, error)
	Get(ctx context.Context, callerID, id string) (*model.RequestWithDetails, error)
}

// Replies — запись ответов.
type Replies interface {
	Submit(ctx context.Context, callerID, requestID, content string) (*model.Reply, error)
}

// Sessions — открытие и закрытие сессий.
type Sessions interface {
	Open(ctx context.Context, userID string) (string, time.Time, error)
	Close(ctx context.Context, token string) error
	SetCookie(w http.ResponseWriter, token string, expiresAt time.Time)
	ClearCookie(w http.ResponseWriter)
}

// APIHandler — обработчик /api.
type APIHandler struct {
	identity Identity
	requests Requests
	replies  Replies
	sessions Sessions
	logger   *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(
	identity Identity,
	requests Requests,
	replies Replies,
	sessions Sessions,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		identity: identity,
		requests: requests,
		replies:  replies,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "api_handler")),
	}
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// decodeJSON читает тело запроса в dst. Неизвестные поля отклоняются.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// requestIDParam извлекает {id} из пути.
func requestIDParam(raw string) (string, error) {
	var id string
	err := runtime.BindStyledParameterWithOptions("simple", "id", raw, &id,
		runtime.BindStyledParameterOptions{
			ParamLocation: runtime.ParamLocationPath,
			Explode:       false,
			Required:      true,
		})
	return id, err
}

// writeServiceError переводит ошибку сервисного слоя в HTTP-ответ.
// Внутренние ошибки логируются, клиенту возвращается обобщённое сообщение.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrUnauthenticated):
		apierrors.Unauthorized(w, "Требуется вход в систему")
	case errors.Is(err, service.ErrForbidden):
		apierrors.Forbidden(w, "Недостаточно прав")
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, err.Error())
	case errors.Is(err, service.ErrAlreadyAnswered):
		apierrors.Conflict(w, err.Error())
	default:
		h.logger.Error("Ошибка обработки запроса",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, "Внутренняя ошибка сервера")
	}
}
