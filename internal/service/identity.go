// identity.go — каталог пользователей: вход по military ID с автоматическим
// созданием учётной записи и разрешение вызывающего по id сессии.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/requestdesk/internal/domain/model"
	"github.com/bigkaa/requestdesk/internal/repository"
)

var (
	usersProvisionedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rd_users_provisioned_total",
		Help: "Количество учётных записей, созданных при первом входе.",
	}, []string{"role"})
	userCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rd_user_cache_hits_total",
		Help: "Попадания в LRU-кэш пользователей.",
	})
	userCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rd_user_cache_misses_total",
		Help: "Промахи LRU-кэша пользователей.",
	})
)

// IdentityService — каталог пользователей.
// Пользователи неизменяемы, поэтому записи можно кэшировать по id.
type IdentityService struct {
	users  repository.UserRepository
	admins map[string]struct{}
	cache  *expirable.LRU[string, *model.User]
	logger *slog.Logger
}

// NewIdentityService создаёт каталог пользователей.
// adminMilitaryIDs — military ID, получающие роль admin при первом входе.
// cacheSize 0 отключает кэш.
func NewIdentityService(
	users repository.UserRepository,
	adminMilitaryIDs []string,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *IdentityService {
	admins := make(map[string]struct{}, len(adminMilitaryIDs))
	for _, id := range adminMilitaryIDs {
		admins[strings.TrimSpace(id)] = struct{}{}
	}

	s := &IdentityService{
		users:  users,
		admins: admins,
		logger: logger.With(slog.String("component", "identity")),
	}
	if cacheSize > 0 {
		s.cache = expirable.NewLRU[string, *model.User](cacheSize, nil, cacheTTL)
	}
	return s
}

// roleFor возвращает роль для нового пользователя.
func (s *IdentityService) roleFor(militaryID string) model.Role {
	if _, ok := s.admins[militaryID]; ok {
		return model.RoleAdmin
	}
	return model.RoleOfficer
}

// ResolveOrCreate возвращает пользователя с данным military ID, создавая его
// при первом входе. Для существующего пользователя fullName игнорируется.
func (s *IdentityService) ResolveOrCreate(ctx context.Context, fullName, militaryID string) (*model.User, error) {
	fullName = strings.TrimSpace(fullName)
	militaryID = strings.TrimSpace(militaryID)
	if fullName == "" || militaryID == "" {
		return nil, fmt.Errorf("%w: требуются ФИО и military ID", ErrValidation)
	}

	u, err := s.users.GetByMilitaryID(ctx, militaryID)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("поиск пользователя: %w", err)
	}

	u = &model.User{
		ID:         uuid.New().String(),
		FullName:   fullName,
		MilitaryID: militaryID,
		Role:       s.roleFor(militaryID),
	}
	if err := s.users.Create(ctx, u); err != nil {
		if !errors.Is(err, repository.ErrConflict) {
			return nil, fmt.Errorf("создание пользователя: %w", err)
		}
		// Параллельный первый вход с тем же military ID: запись уже создана.
		existing, getErr := s.users.GetByMilitaryID(ctx, militaryID)
		if getErr != nil {
			return nil, fmt.Errorf("повторный поиск после конфликта: %w", errors.Join(err, getErr))
		}
		return existing, nil
	}

	usersProvisionedTotal.WithLabelValues(string(u.Role)).Inc()
	s.logger.Info("Пользователь создан при первом входе",
		slog.String("user_id", u.ID),
		slog.String("role", string(u.Role)),
	)
	return u, nil
}

// GetByID возвращает пользователя по id или ErrNotFound.
func (s *IdentityService) GetByID(ctx context.Context, id string) (*model.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: пользователь не найден", ErrNotFound)
	}

	if s.cache != nil {
		if cached, ok := s.cache.Get(id); ok {
			userCacheHitsTotal.Inc()
			u := *cached
			return &u, nil
		}
		userCacheMissesTotal.Inc()
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: пользователь не найден", ErrNotFound)
		}
		return nil, fmt.Errorf("получение пользователя: %w", err)
	}

	if s.cache != nil {
		cached := *u
		s.cache.Add(id, &cached)
	}
	return u, nil
}

// Caller разрешает id пользователя из сессии в учётную запись.
// Пустой id или неизвестный пользователь — ErrUnauthenticated.
func (s *IdentityService) Caller(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, ErrUnauthenticated
	}
	u, err := s.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, err
	}
	return u, nil
}

// HasUsers сообщает, есть ли в каталоге хотя бы один пользователь.
func (s *IdentityService) HasUsers(ctx context.Context) (bool, error) {
	n, err := s.users.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("подсчёт пользователей: %w", err)
	}
	return n > 0, nil
}
