// Точка входа Request Desk — сервиса заявок офицеров и ответов администраторов.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// выбирает хранилище сессий (Redis или память процесса), создаёт сервисный
// слой и API handlers, запускает topologymetrics и HTTP-сервер с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/bigkaa/requestdesk/internal/api/handlers"
	"github.com/bigkaa/requestdesk/internal/api/openapi"
	"github.com/bigkaa/requestdesk/internal/config"
	"github.com/bigkaa/requestdesk/internal/database"
	"github.com/bigkaa/requestdesk/internal/repository"
	"github.com/bigkaa/requestdesk/internal/server"
	"github.com/bigkaa/requestdesk/internal/service"
	"github.com/bigkaa/requestdesk/internal/session"
)

// memorySessionLimit — максимум сессий во встроенном хранилище.
const memorySessionLimit = 100_000

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Request Desk запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("reply_policy", cfg.ReplyPolicy),
	)
	if len(cfg.AdminMilitaryIDs) == 0 {
		logger.Warn("RD_ADMIN_MILITARY_IDS не задана, новые пользователи получат роль officer")
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics: проверка идёт
	// через тот же пул соединений.
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Хранилище сессий
	var (
		store          session.Store
		sessionChecker handlers.ReadinessChecker
	)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		pingErr := rdb.Ping(pingCtx).Err()
		cancel()
		if pingErr != nil {
			logger.Error("Redis недоступен", slog.String("addr", cfg.RedisAddr), slog.String("error", pingErr.Error()))
			os.Exit(1)
		}

		redisStore := session.NewRedisStore(rdb, cfg.SessionTTL)
		store = redisStore
		sessionChecker = redisStore
		logger.Info("Сессии хранятся в Redis", slog.String("addr", cfg.RedisAddr))
	} else {
		store = session.NewMemoryStore(memorySessionLimit, cfg.SessionTTL)
		logger.Info("Сессии хранятся в памяти процесса")
	}
	sessions := session.NewManager(cfg.SessionSecret, cfg.SessionTTL, store, cfg.SecureCookie)

	// 6. Repositories и транзакции
	repos := repository.New(pool)
	txRunner := repository.NewTxRunner(pool)

	// 7. Services
	identitySvc := service.NewIdentityService(
		repos.Users,
		cfg.AdminMilitaryIDs,
		cfg.UserCacheSize, cfg.UserCacheTTL,
		logger,
	)
	requestsSvc := service.NewRequestService(identitySvc, txRunner, cfg.ConcealForbidden, logger)
	repliesSvc := service.NewReplyService(identitySvc, txRunner, cfg.ReplyPolicy, logger)

	// 8. Демонстрационные данные
	if cfg.SeedDemo {
		if err := service.SeedDemo(ctx, identitySvc, requestsSvc, cfg.AdminMilitaryIDs, logger); err != nil {
			logger.Error("Ошибка заполнения демонстрационных данных", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	// 9. topologymetrics (мониторинг зависимостей)
	dephealthSvc, dephealthErr := service.NewDephealthService(
		"request-desk",
		cfg.DephealthGroup,
		pgDB,
		cfg.DatabaseURL(),
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			defer dephealthSvc.Stop()
			logger.Info("topologymetrics запущен",
				slog.String("group", cfg.DephealthGroup),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 10. Проверка запросов по OpenAPI-контракту
	validator, err := openapi.NewValidator(logger)
	if err != nil {
		logger.Error("Ошибка загрузки OpenAPI-контракта", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 11. HTTP handlers
	apiHandler := handlers.NewAPIHandler(identitySvc, requestsSvc, repliesSvc, sessions, logger)
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool), sessionChecker)

	// 12. HTTP-сервер
	srv := server.New(cfg, logger, server.Deps{
		API:       apiHandler,
		Health:    healthHandler,
		Sessions:  sessions,
		Validator: validator,
	})
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("Request Desk остановлен")
}
