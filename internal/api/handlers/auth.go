package handlers

import (
	"log/slog"
	"net/http"
	"time"

	apierrors "github.com/bigkaa/requestdesk/internal/api/errors"
	"github.com/bigkaa/requestdesk/internal/api/middleware"
	"github.com/bigkaa/requestdesk/internal/domain/model"
)

type loginRequest struct {
	FullName   string `json:"fullName"`
	MilitaryID string `json:"militaryId"`
}

type loginResponse struct {
	User      *model.User `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// Login — POST /api/auth/login. Находит или создаёт пользователя по military ID
// и открывает сессию: токен возвращается в теле и в cookie.
func (h *APIHandler) Login(w http.ResponseWriter, r *http.Request) {
	var body loginRequest
	if err := decodeJSON(r, &body); err != nil {
		apierrors.ValidationError(w, "Некорректное тело запроса")
		return
	}

	user, err := h.identity.ResolveOrCreate(r.Context(), body.FullName, body.MilitaryID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	token, expiresAt, err := h.sessions.Open(r.Context(), user.ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.sessions.SetCookie(w, token, expiresAt)

	h.logger.Info("Вход выполнен",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)),
	)
	writeJSON(w, http.StatusOK, loginResponse{User: user, Token: token, ExpiresAt: expiresAt})
}

// Logout — POST /api/auth/logout. Закрывает сессию и удаляет cookie.
func (h *APIHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Close(r.Context(), middleware.TokenFromContext(r.Context())); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	h.sessions.ClearCookie(w)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Me — GET /api/auth/me. Возвращает пользователя текущей сессии.
func (h *APIHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.identity.Caller(r.Context(), middleware.UserIDFromContext(r.Context()))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}
