package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/bigkaa/requestdesk/internal/session"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// mockResolver — мок для SessionResolver.
type mockResolver struct {
	sessions map[string]string
	err      error
}

func (m *mockResolver) Resolve(_ context.Context, token string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	userID, ok := m.sessions[token]
	if !ok {
		return "", session.ErrInvalidToken
	}
	return userID, nil
}

// errorCode извлекает code из тела ответа ошибки.
func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("тело ответа не JSON: %v (%s)", err, rec.Body.String())
	}
	return body.Error.Code
}

func TestSessionAuth_ValidBearer(t *testing.T) {
	resolver := &mockResolver{sessions: map[string]string{"tok-1": "user-1"}}

	var gotUser, gotToken string
	handler := SessionAuth(resolver, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotToken = TokenFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ожидался статус 200, получен %d, тело: %s", rec.Code, rec.Body.String())
	}
	if gotUser != "user-1" {
		t.Errorf("ожидался user_id=user-1, получен %q", gotUser)
	}
	if gotToken != "tok-1" {
		t.Errorf("ожидался token=tok-1, получен %q", gotToken)
	}
}

func TestSessionAuth_ValidCookie(t *testing.T) {
	resolver := &mockResolver{sessions: map[string]string{"tok-2": "user-2"}}

	handler := SessionAuth(resolver, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := UserIDFromContext(r.Context()); got != "user-2" {
			t.Errorf("ожидался user_id=user-2, получен %q", got)
		}
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: "tok-2"})
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("ожидался статус 200, получен %d", rec.Code)
	}
}

func TestSessionAuth_Rejects(t *testing.T) {
	tests := []struct {
		name       string
		resolver   *mockResolver
		header     string
		wantStatus int
		wantCode   string
	}{
		{
			name:       "нет токена",
			resolver:   &mockResolver{},
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "неизвестная сессия",
			resolver:   &mockResolver{sessions: map[string]string{}},
			header:     "Bearer unknown",
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "не Bearer схема",
			resolver:   &mockResolver{sessions: map[string]string{"tok": "u"}},
			header:     "Basic dG9rOg==",
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
		},
		{
			name:       "сбой хранилища",
			resolver:   &mockResolver{err: errors.New("redis: connection refused")},
			header:     "Bearer tok",
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := SessionAuth(tt.resolver, testLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
			}))

			req := httptest.NewRequest(http.MethodGet, "/api/requests", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if called {
				t.Error("обработчик не должен вызываться")
			}
			if rec.Code != tt.wantStatus {
				t.Errorf("ожидался статус %d, получен %d", tt.wantStatus, rec.Code)
			}
			if code := errorCode(t, rec); code != tt.wantCode {
				t.Errorf("ожидался code=%s, получен %s", tt.wantCode, code)
			}
		})
	}
}

func TestUserIDFromContext_Empty(t *testing.T) {
	if got := UserIDFromContext(context.Background()); got != "" {
		t.Errorf("ожидалась пустая строка, получено %q", got)
	}
	ctx := WithUserID(context.Background(), "user-9")
	if got := UserIDFromContext(ctx); got != "user-9" {
		t.Errorf("ожидался user-9, получено %q", got)
	}
}
