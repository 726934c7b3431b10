// Пакет config — загрузка и валидация конфигурации Pressroom
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Pressroom.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

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
	// Максимальный размер пула подключений
	DBMaxConns int

	// --- JWT ---

	// Секрет подписи HS256 для bearer-токенов админки
	JWTSecret string
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration

	// --- Storage element ---

	// Базовый URL storage element (хранилище изображений)
	StorageURL string
	// Bearer-токен для запросов к storage element (опционально)
	StorageToken string
	// Путь к CA-сертификату для TLS-соединений со storage element (опционально)
	StorageCACertPath string
	// Таймаут HTTP-запросов к storage element
	StorageTimeout time.Duration

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

	// PR_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("PR_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("PR_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PR_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// PR_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PR_LOG_LEVEL: %w", err)
	}

	// PR_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PR_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- PostgreSQL ---

	// PR_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("PR_DB_HOST")
	if err != nil {
		return nil, err
	}

	// PR_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("PR_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("PR_DB_PORT: %w", err)
	}

	// PR_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("PR_DB_NAME")
	if err != nil {
		return nil, err
	}

	// PR_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("PR_DB_USER")
	if err != nil {
		return nil, err
	}

	// PR_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("PR_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// PR_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("PR_DB_SSL_MODE", "disable")
	validSSLModes := map[string]bool{
		"disable": true, "require": true, "verify-ca": true, "verify-full": true,
	}
	if !validSSLModes[cfg.DBSSLMode] {
		return nil, fmt.Errorf("PR_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
	}

	// PR_DB_MAX_CONNS — максимальный размер пула подключений (по умолчанию 10)
	cfg.DBMaxConns, err = getEnvInt("PR_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("PR_DB_MAX_CONNS: %w", err)
	}
	if cfg.DBMaxConns < 1 {
		return nil, fmt.Errorf("PR_DB_MAX_CONNS: значение %d должно быть не меньше 1", cfg.DBMaxConns)
	}

	// --- JWT ---

	// PR_JWT_SECRET — обязательный
	cfg.JWTSecret, err = getEnvRequired("PR_JWT_SECRET")
	if err != nil {
		return nil, err
	}
	if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("PR_JWT_SECRET: секрет короче 32 символов")
	}

	// PR_JWT_LEEWAY — допустимое отклонение времени (по умолчанию 30s)
	cfg.JWTLeeway, err = getEnvDuration("PR_JWT_LEEWAY", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PR_JWT_LEEWAY: %w", err)
	}

	// --- Storage element ---

	// PR_STORAGE_URL — обязательный
	cfg.StorageURL, err = getEnvRequired("PR_STORAGE_URL")
	if err != nil {
		return nil, err
	}
	// Убираем trailing slash
	cfg.StorageURL = strings.TrimRight(cfg.StorageURL, "/")

	// PR_STORAGE_TOKEN — bearer-токен storage element (опционально)
	cfg.StorageToken = getEnvDefault("PR_STORAGE_TOKEN", "")

	// PR_STORAGE_CA_CERT_PATH — CA-сертификат storage element (опционально)
	cfg.StorageCACertPath = getEnvDefault("PR_STORAGE_CA_CERT_PATH", "")

	// PR_STORAGE_TIMEOUT — таймаут запросов к storage element (по умолчанию 30s)
	cfg.StorageTimeout, err = getEnvDuration("PR_STORAGE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PR_STORAGE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	// PR_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("PR_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PR_SHUTDOWN_TIMEOUT: %w", err)
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
