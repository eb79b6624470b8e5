// Пакет session — сессии Request Desk.
// Токен сессии — JWT HS256 с id сессии (jti) и id пользователя (sub).
// Сессия действительна, пока её id есть в серверном хранилище, поэтому
// выход из системы отзывает токен до истечения его срока.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName — имя cookie с токеном сессии.
const CookieName = "rd_session"

// ErrInvalidToken — токен отсутствует, повреждён, просрочен или отозван.
var ErrInvalidToken = errors.New("невалидная или закрытая сессия")

// issuer — значение iss в токенах сессии.
const issuer = "request-desk"

// Manager выдаёт, проверяет и закрывает сессии.
type Manager struct {
	secret []byte
	ttl    time.Duration
	store  Store
	secure bool
	now    func() time.Time
}

// NewManager создаёт менеджер сессий. secure — Secure flag для cookie.
func NewManager(secret string, ttl time.Duration, store Store, secure bool) *Manager {
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		store:  store,
		secure: secure,
		now:    time.Now,
	}
}

// TTL возвращает время жизни сессии.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Open создаёт сессию для пользователя и возвращает подписанный токен.
func (m *Manager) Open(ctx context.Context, userID string) (token string, expiresAt time.Time, err error) {
	sid := uuid.New().String()
	now := m.now()
	expiresAt = now.Add(m.ttl)

	claims := jwt.RegisteredClaims{
		ID:        sid,
		Subject:   userID,
		Issuer:    issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("подпись токена сессии: %w", err)
	}

	if err := m.store.Save(ctx, sid, userID); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// parse проверяет подпись и сроки токена.
func (m *Manager) parse(token string) (*jwt.RegisteredClaims, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return m.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(m.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, fmt.Errorf("%w: нет jti или sub", ErrInvalidToken)
	}
	return claims, nil
}

// Resolve возвращает id пользователя активной сессии.
func (m *Manager) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	claims, err := m.parse(token)
	if err != nil {
		return "", err
	}

	userID, err := m.store.Lookup(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return "", fmt.Errorf("%w: сессия закрыта", ErrInvalidToken)
		}
		return "", err
	}
	if userID != claims.Subject {
		return "", fmt.Errorf("%w: пользователь сессии не совпадает", ErrInvalidToken)
	}
	return userID, nil
}

// Close закрывает сессию токена. Невалидный токен закрывать нечего.
func (m *Manager) Close(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	claims, err := m.parse(token)
	if err != nil {
		return nil
	}
	return m.store.Delete(ctx, claims.ID)
}

// TokenFromRequest извлекает токен из заголовка Authorization: Bearer
// или, при его отсутствии, из cookie сессии.
func TokenFromRequest(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			return strings.TrimSpace(parts[1])
		}
		return ""
	}
	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}
	return ""
}

// SetCookie устанавливает cookie сессии.
func (m *Manager) SetCookie(w http.ResponseWriter, token string, expiresAt time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(m.ttl.Seconds()),
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie удаляет cookie сессии (logout).
func (m *Manager) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
