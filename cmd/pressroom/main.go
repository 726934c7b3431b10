// Точка входа pressroom — backend админки новостей.
// Загружает конфигурацию, подключается к PostgreSQL, применяет миграции,
// создаёт клиент storage element, сервисный слой и API handlers,
// запускает HTTP-сервер с JWT middleware и graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/arturkryukov/pressroom/internal/api/handlers"
	"github.com/arturkryukov/pressroom/internal/api/middleware"
	"github.com/arturkryukov/pressroom/internal/blobstore"
	"github.com/arturkryukov/pressroom/internal/config"
	"github.com/arturkryukov/pressroom/internal/database"
	"github.com/arturkryukov/pressroom/internal/repository"
	"github.com/arturkryukov/pressroom/internal/server"
	"github.com/arturkryukov/pressroom/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("pressroom запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

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

	// 5. Клиент storage element (хранилище изображений)
	blobClient, err := blobstore.New(
		cfg.StorageURL,
		cfg.StorageCACertPath,
		cfg.StorageTimeout,
		blobstore.StaticTokenProvider(cfg.StorageToken),
		logger,
	)
	if err != nil {
		logger.Error("Ошибка создания клиента storage element", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Клиент storage element создан", slog.String("url", cfg.StorageURL))

	// 6. Repository и сервисный слой
	newsRepo := repository.NewNewsRepository(pool)
	newsSvc := service.NewNewsService(newsRepo, blobClient, logger)

	// 7. Readiness checkers (PostgreSQL + storage element)
	pgChecker := database.NewReadinessChecker(pool)
	healthHandler := handlers.NewHealthHandler(pgChecker, blobClient)

	// 8. API handler
	apiHandler := handlers.NewAPIHandler(healthHandler, newsSvc, logger)

	// 9. JWT middleware
	jwtAuth := middleware.NewJWTAuth(cfg.JWTSecret, cfg.JWTLeeway, logger)
	logger.Info("JWT middleware инициализирован",
		slog.String("leeway", cfg.JWTLeeway.String()),
	)

	// 10. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, apiHandler, jwtAuth)
	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("pressroom остановлен")
}
