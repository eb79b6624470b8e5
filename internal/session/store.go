package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

// ErrSessionNotFound — сессия отсутствует, истекла или закрыта.
var ErrSessionNotFound = errors.New("сессия не найдена")

// Store — серверное хранилище сессий: sid → id пользователя.
type Store interface {
	// Save сохраняет сессию на время жизни хранилища.
	Save(ctx context.Context, sid, userID string) error
	// Lookup возвращает id пользователя сессии или ErrSessionNotFound.
	Lookup(ctx context.Context, sid string) (string, error)
	// Delete удаляет сессию. Отсутствие сессии не является ошибкой.
	Delete(ctx context.Context, sid string) error
}

// MemoryStore — хранилище сессий в памяти процесса (LRU с TTL).
// Используется без Redis; сессии теряются при рестарте.
type MemoryStore struct {
	cache *expirable.LRU[string, string]
}

// NewMemoryStore создаёт хранилище на maxSessions записей с временем жизни ttl.
func NewMemoryStore(maxSessions int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{cache: expirable.NewLRU[string, string](maxSessions, nil, ttl)}
}

func (m *MemoryStore) Save(_ context.Context, sid, userID string) error {
	m.cache.Add(sid, userID)
	return nil
}

func (m *MemoryStore) Lookup(_ context.Context, sid string) (string, error) {
	userID, ok := m.cache.Get(sid)
	if !ok {
		return "", ErrSessionNotFound
	}
	return userID, nil
}

func (m *MemoryStore) Delete(_ context.Context, sid string) error {
	m.cache.Remove(sid)
	return nil
}

// keyPrefix — префикс ключей сессий в Redis.
const keyPrefix = "rd:session:"

// RedisStore — хранилище сессий в Redis. Позволяет нескольким
// экземплярам сервиса разделять сессии.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore создаёт хранилище поверх готового клиента Redis.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, sid, userID string) error {
	if err := s.client.Set(ctx, keyPrefix+sid, userID, s.ttl).Err(); err != nil {
		return fmt.Errorf("сохранение сессии в Redis: %w", err)
	}
	return nil
}

func (s *RedisStore) Lookup(ctx context.Context, sid string) (string, error) {
	userID, err := s.client.Get(ctx, keyPrefix+sid).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrSessionNotFound
	}
	if err != nil {
		return "", fmt.Errorf("чтение сессии из Redis: %w", err)
	}
	return userID, nil
}

func (s *RedisStore) Delete(ctx context.Context, sid string) error {
	if err := s.client.Del(ctx, keyPrefix+sid).Err(); err != nil {
		return fmt.Errorf("удаление сессии из Redis: %w", err)
	}
	return nil
}

// CheckReady проверяет доступность Redis для /health/ready.
func (s *RedisStore) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := s.client.Ping(ctx).Err(); err != nil {
		return "fail", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "подключение активно"
}
