// Пакет middleware — HTTP middleware Request Desk: сессии, метрики,
// логирование запросов и проверка по OpenAPI-контракту.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/requestdesk/internal/api/errors"
	"github.com/bigkaa/requestdesk/internal/session"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

const (
	// ContextKeyUserID — ключ контекста для id пользователя сессии.
	ContextKeyUserID contextKey = "user_id"
	// ContextKeyToken — ключ контекста для токена сессии.
	ContextKeyToken contextKey = "session_token"
)

// SessionResolver — разрешение токена сессии в id пользователя.
// Реализуется session.Manager.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (string, error)
}

// SessionAuth возвращает middleware, требующее активную сессию.
// Токен берётся из Authorization: Bearer или cookie rd_session.
// Без валидной сессии запрос завершается 401.
func SessionAuth(resolver SessionResolver, logger *slog.Logger) func(http.Handler) http.Handler {
	logger = logger.With(slog.String("component", "session_auth"))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := session.TokenFromRequest(r)
			if token == "" {
				apierrors.Unauthorized(w, "Требуется вход в систему")
				return
			}

			userID, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				if errors.Is(err, session.ErrInvalidToken) {
					logger.Debug("Сессия отклонена",
						slog.String("error", err.Error()),
						slog.String("remote_addr", r.RemoteAddr),
					)
					apierrors.Unauthorized(w, "Невалидная или закрытая сессия")
					return
				}
				logger.Error("Ошибка хранилища сессий", slog.String("error", err.Error()))
				apierrors.InternalError(w, "Внутренняя ошибка сервера")
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, userID)
			ctx = context.WithValue(ctx, ContextKeyToken, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UserIDFromContext извлекает id пользователя сессии.
// Возвращает пустую строку вне SessionAuth.
func UserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ContextKeyUserID).(string)
	return id
}

// TokenFromContext извлекает токен сессии.
func TokenFromContext(ctx context.Context) string {
	token, _ := ctx.Value(ContextKeyToken).(string)
	return token
}

// WithUserID кладёт id пользователя в контекст (для тестов обработчиков).
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ContextKeyUserID, userID)
}
