// Пакет config — загрузка и валидация конфигурации Request Desk
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Политики обработки повторного ответа на уже отвеченную заявку.
const (
	// ReplyPolicyAddendum — повторный ответ принимается как дополнение.
	ReplyPolicyAddendum = "addendum"
	// ReplyPolicySingle — на заявку допускается ровно один ответ.
	ReplyPolicySingle = "single"
)

// Config содержит все параметры конфигурации Request Desk.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- PostgreSQL ---

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Redis (хранилище сессий) ---

	// Адрес Redis (host:port). Пустой — сессии хранятся в памяти процесса.
	RedisAddr string
	// Пароль Redis
	RedisPassword string
	// Номер базы Redis
	RedisDB int

	// --- Сессии ---

	// Секрет подписи сессионных токенов (HS256)
	SessionSecret string
	// Время жизни сессии
	SessionTTL time.Duration
	// Secure flag для cookie сессии (true за HTTPS)
	SecureCookie bool

	// --- Жизненный цикл заявок ---

	// Military ID, получающие роль admin при первом входе
	AdminMilitaryIDs []string
	// Политика повторных ответов (addendum, single)
	ReplyPolicy string
	// Отвечать 404 вместо 403 при чтении чужой заявки
	ConcealForbidden bool

	// --- Кэш пользователей ---

	// Размер LRU-кэша пользователей (0 — кэш отключён)
	UserCacheSize int
	// TTL записи кэша пользователей
	UserCacheTTL time.Duration

	// --- HTTP-периметр ---

	// Разрешённые CORS origins
	CORSOrigins []string
	// Лимит попыток входа в минуту с одного IP
	LoginRateLimit int

	// --- Начальные данные ---

	// Заполнить пустую БД демонстрационными данными
	SeedDemo bool

	// --- topologymetrics ---

	// Имя группы в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// RD_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("RD_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("RD_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("RD_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("RD_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("RD_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("RD_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("RD_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	if cfg.HTTPReadTimeout, err = getEnvDuration("RD_HTTP_READ_TIMEOUT", 30*time.Second); err != nil {
		return nil, fmt.Errorf("RD_HTTP_READ_TIMEOUT: %w", err)
	}
	if cfg.HTTPWriteTimeout, err = getEnvDuration("RD_HTTP_WRITE_TIMEOUT", 60*time.Second); err != nil {
		return nil, fmt.Errorf("RD_HTTP_WRITE_TIMEOUT: %w", err)
	}
	if cfg.HTTPIdleTimeout, err = getEnvDuration("RD_HTTP_IDLE_TIMEOUT", 120*time.Second); err != nil {
		return nil, fmt.Errorf("RD_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- PostgreSQL ---

	if cfg.DBHost, err = getEnvRequired("RD_DB_HOST"); err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("RD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("RD_DB_PORT: %w", err)
	}

	if cfg.DBName, err = getEnvRequired("RD_DB_NAME"); err != nil {
		return nil, err
	}
	if cfg.DBUser, err = getEnvRequired("RD_DB_USER"); err != nil {
		return nil, err
	}
	if cfg.DBPassword, err = getEnvRequired("RD_DB_PASSWORD"); err != nil {
		return nil, err
	}

	// RD_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("RD_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("RD_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// --- Redis ---

	cfg.RedisAddr = getEnvDefault("RD_REDIS_ADDR", "")
	cfg.RedisPassword = getEnvDefault("RD_REDIS_PASSWORD", "")
	cfg.RedisDB, err = getEnvInt("RD_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("RD_REDIS_DB: %w", err)
	}
	if cfg.RedisDB < 0 {
		return nil, fmt.Errorf("RD_REDIS_DB: отрицательный номер базы %d", cfg.RedisDB)
	}

	// --- Сессии ---

	// RD_SESSION_SECRET — обязательный, ключ подписи токенов
	if cfg.SessionSecret, err = getEnvRequired("RD_SESSION_SECRET"); err != nil {
		return nil, err
	}
	if len(cfg.SessionSecret) < 16 {
		return nil, fmt.Errorf("RD_SESSION_SECRET: длина секрета должна быть не меньше 16 символов")
	}

	// RD_SESSION_TTL — время жизни сессии (по умолчанию 24h)
	cfg.SessionTTL, err = getEnvDuration("RD_SESSION_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("RD_SESSION_TTL: %w", err)
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("RD_SESSION_TTL: значение должно быть положительным")
	}

	cfg.SecureCookie, err = getEnvBool("RD_SECURE_COOKIE", false)
	if err != nil {
		return nil, fmt.Errorf("RD_SECURE_COOKIE: %w", err)
	}

	// --- Жизненный цикл заявок ---

	// RD_ADMIN_MILITARY_IDS — список привилегированных military ID (через запятую)
	cfg.AdminMilitaryIDs = parseCSV(getEnvDefault("RD_ADMIN_MILITARY_IDS", ""))

	// RD_REPLY_POLICY — политика повторных ответов (по умолчанию addendum)
	cfg.ReplyPolicy = getEnvDefault("RD_REPLY_POLICY", ReplyPolicyAddendum)
	if cfg.ReplyPolicy != ReplyPolicyAddendum && cfg.ReplyPolicy != ReplyPolicySingle {
		return nil, fmt.Errorf("RD_REPLY_POLICY: недопустимое значение %q, допустимые: addendum, single", cfg.ReplyPolicy)
	}

	cfg.ConcealForbidden, err = getEnvBool("RD_CONCEAL_FORBIDDEN", false)
	if err != nil {
		return nil, fmt.Errorf("RD_CONCEAL_FORBIDDEN: %w", err)
	}

	// --- Кэш пользователей ---

	cfg.UserCacheSize, err = getEnvInt("RD_USER_CACHE_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("RD_USER_CACHE_SIZE: %w", err)
	}
	if cfg.UserCacheSize < 0 {
		return nil, fmt.Errorf("RD_USER_CACHE_SIZE: отрицательный размер %d", cfg.UserCacheSize)
	}
	cfg.UserCacheTTL, err = getEnvDuration("RD_USER_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("RD_USER_CACHE_TTL: %w", err)
	}

	// --- HTTP-периметр ---

	cfg.CORSOrigins = parseCSV(getEnvDefault("RD_CORS_ORIGINS", ""))
	for _, origin := range cfg.CORSOrigins {
		if origin == "*" {
			continue
		}
		if u, parseErr := url.Parse(origin); parseErr != nil || u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("RD_CORS_ORIGINS: некорректный origin %q", origin)
		}
	}

	cfg.LoginRateLimit, err = getEnvInt("RD_LOGIN_RATE_LIMIT", 20)
	if err != nil {
		return nil, fmt.Errorf("RD_LOGIN_RATE_LIMIT: %w", err)
	}
	if cfg.LoginRateLimit < 1 {
		return nil, fmt.Errorf("RD_LOGIN_RATE_LIMIT: значение должно быть положительным")
	}

	cfg.SeedDemo, err = getEnvBool("RD_SEED_DEMO", false)
	if err != nil {
		return nil, fmt.Errorf("RD_SEED_DEMO: %w", err)
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("RD_DEPHEALTH_GROUP", "request-desk")
	cfg.DephealthCheckInterval, err = getEnvDuration("RD_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RD_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- Graceful shutdown ---

	cfg.ShutdownTimeout, err = getEnvDuration("RD_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("RD_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL для лейблов topologymetrics.
// Пароль в URL не включается.
func (c *Config) DatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.User(c.DBUser),
		Host:   fmt.Sprintf("%s:%d", c.DBHost, c.DBPort),
		Path:   "/" + c.DBName,
	}
	return u.String()
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q", val)
	}
	return b, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
