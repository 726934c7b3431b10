// news.go — сервис жизненного цикла новостей.
// Оркестрирует две независимо отказывающие подсистемы: реестр метаданных
// (PostgreSQL) и хранилище изображений (storage element). Частичные сбои
// компенсируются удалением уже загруженного блоба; исход записи метаданных
// всегда авторитетен.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/arturkryukov/pressroom/internal/blobstore"
	"github.com/arturkryukov/pressroom/internal/domain/model"
	"github.com/arturkryukov/pressroom/internal/repository"
)

// MaxImageSize — максимальный размер изображения (5 MiB).
const MaxImageSize = 5 << 20

// compensateTimeout — таймаут компенсирующего удаления блоба.
const compensateTimeout = 30 * time.Second

// allowedImageTypes — допустимые MIME-типы изображений.
var allowedImageTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
}

// BlobStore — операции хранилища изображений, нужные сервису.
// Реализуется *blobstore.Client.
type BlobStore interface {
	// Upload загружает изображение и возвращает публичный URL и ключ.
	Upload(ctx context.Context, filename, contentType string, data []byte) (*blobstore.UploadResult, error)
	// Delete удаляет изображение по ключу. Идемпотентно.
	Delete(ctx context.Context, key string) error
}

// CreateParams — входные данные создания новости.
type CreateParams struct {
	// Image — содержимое изображения.
	Image []byte
	// ImageName — имя файла изображения (для multipart storage element).
	ImageName string
	// ContentType — MIME-тип изображения (image/png или image/jpeg).
	ContentType string
	// DriveLink — ссылка на внешний документ.
	DriveLink string
	// PublishedOn — календарная дата новости.
	PublishedOn time.Time
}

// UpdateParams — входные данные обновления новости.
// Пустой Image — изображение не меняется; nil DriveLink — ссылка не меняется.
type UpdateParams struct {
	Image       []byte
	ImageName   string
	ContentType string
	DriveLink   *string
}

// NewsService — сервис жизненного цикла новостей.
type NewsService struct {
	repo   repository.NewsRepository
	blobs  BlobStore
	logger *slog.Logger
}

// NewNewsService создаёт сервис новостей.
func NewNewsService(repo repository.NewsRepository, blobs BlobStore, logger *slog.Logger) *NewsService {
	return &NewsService{
		repo:   repo,
		blobs:  blobs,
		logger: logger.With(slog.String("component", "news_service")),
	}
}

// Create создаёт новость: загружает изображение, затем пишет метаданные.
// Если запись метаданных не удалась (конфликт уникальности, недоступность БД,
// отмена запроса) — уже загруженное изображение удаляется компенсацией.
// Запись никогда не ссылается на несуществующий блоб.
func (s *NewsService) Create(ctx context.Context, p CreateParams) (*model.News, error) {
	if err := validateImage(p.Image, p.ContentType); err != nil {
		return nil, err
	}
	if p.DriveLink == "" {
		return nil, fmt.Errorf("%w: ссылка на документ обязательна", ErrValidation)
	}
	if p.PublishedOn.IsZero() {
		return nil, fmt.Errorf("%w: дата новости обязательна", ErrValidation)
	}
	day := dateOnly(p.PublishedOn)
	if day.After(dateOnly(time.Now().UTC())) {
		return nil, fmt.Errorf("%w: дата новости не может быть в будущем", ErrValidation)
	}

	uploaded, err := s.blobs.Upload(ctx, p.ImageName, p.ContentType, p.Image)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err)
	}

	n := &model.News{
		ImageURL:    uploaded.URL,
		ImageKey:    uploaded.Key,
		DriveLink:   p.DriveLink,
		PublishedOn: day,
	}

	if err := s.repo.Create(ctx, n); err != nil {
		// Компенсация: метаданные не записаны, блоб не должен осиротеть
		s.compensateBlob(ctx, uploaded.Key)

		if errors.Is(err, repository.ErrConflict) {
			return nil, conflictError(err)
		}
		return nil, fmt.Errorf("сохранение новости: %w", err)
	}

	s.logger.Info("Новость создана",
		slog.String("id", n.ID),
		slog.String("image_key", n.ImageKey),
		slog.Time("published_on", n.PublishedOn),
	)

	return n, nil
}

// Update обновляет новость. Новое изображение (если передано) загружается
// до записи метаданных; старый блоб удаляется только после успешного
// обновления — в любой наблюдаемый момент запись ссылается на живой блоб.
func (s *NewsService) Update(ctx context.Context, id string, p UpdateParams) (*model.News, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение новости для обновления: %w", err)
	}

	oldKey := ""
	if len(p.Image) > 0 {
		if err := validateImage(p.Image, p.ContentType); err != nil {
			return nil, err
		}

		uploaded, err := s.blobs.Upload(ctx, p.ImageName, p.ContentType, p.Image)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrStorageUnavailable, err)
		}
		oldKey = n.ImageKey
		n.ImageURL = uploaded.URL
		n.ImageKey = uploaded.Key
	}

	if p.DriveLink != nil && *p.DriveLink != "" {
		n.DriveLink = *p.DriveLink
	}

	if err := s.repo.Update(ctx, n); err != nil {
		// Метаданные не обновлены — новый блоб не должен осиротеть,
		// старая запись остаётся нетронутой
		if oldKey != "" {
			s.compensateBlob(ctx, n.ImageKey)
		}

		switch {
		case errors.Is(err, repository.ErrNotFound):
			return nil, ErrNotFound
		case errors.Is(err, repository.ErrConflict):
			return nil, conflictError(err)
		}
		return nil, fmt.Errorf("обновление новости: %w", err)
	}

	// Запись уже ссылается на новый блоб — старый можно удалять.
	// Сбой здесь оставляет безвредную сироту, об этом только лог.
	if oldKey != "" {
		s.removeBlob(ctx, oldKey, "удаление заменённого изображения")
	}

	s.logger.Info("Новость обновлена", slog.String("id", n.ID))

	return n, nil
}

// Delete удаляет новость: сначала метаданные, затем блоб.
// Сбой удаления блоба не откатывает операцию — состояние реестра
// авторитетно, осиротевший блоб фиксируется в логе для ручной очистки.
func (s *NewsService) Delete(ctx context.Context, id string) error {
	imageKey, err := s.repo.Delete(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("удаление новости: %w", err)
	}

	s.removeBlob(ctx, imageKey, "удаление изображения удалённой новости")

	s.logger.Info("Новость удалена",
		slog.String("id", id),
		slog.String("image_key", imageKey),
	)

	return nil
}

// Get возвращает новость по ID.
func (s *NewsService) Get(ctx context.Context, id string) (*model.News, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("получение новости: %w", err)
	}
	return n, nil
}

// validateImage проверяет содержимое, тип и размер изображения.
func validateImage(data []byte, contentType string) error {
	if len(data) == 0 {
		return fmt.Errorf("%w: изображение обязательно", ErrValidation)
	}
	if len(data) > MaxImageSize {
		return fmt.Errorf("%w: изображение больше 5 MiB", ErrValidation)
	}
	if !allowedImageTypes[contentType] {
		return fmt.Errorf("%w: недопустимый тип изображения %q, допустимые: image/png, image/jpeg", ErrValidation, contentType)
	}
	return nil
}

// dateOnly отбрасывает время, оставляя календарную дату в UTC.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// conflictError переводит конфликт репозитория в сервисный,
// сохраняя человекочитаемую причину.
func conflictError(err error) error {
	reason := strings.TrimPrefix(err.Error(), repository.ErrConflict.Error())
	reason = strings.TrimPrefix(reason, ": ")
	if reason == "" {
		return ErrConflict
	}
	return fmt.Errorf("%w: %s", ErrConflict, reason)
}

// compensateBlob удаляет загруженный блоб после сбоя записи метаданных.
// Выполняется и при отменённом контексте запроса: отмена после загрузки
// трактуется как сбой записи. Сбой компенсации логируется, но не меняет
// ошибку операции — исход записи метаданных авторитетен.
func (s *NewsService) compensateBlob(ctx context.Context, key string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	if err := s.blobs.Delete(dctx, key); err != nil {
		s.logger.Error("Компенсация не удалась — изображение осиротело, требуется ручная очистка",
			slog.String("image_key", key),
			slog.String("error", err.Error()),
		)
	}
}

// removeBlob удаляет блоб best-effort после успешной операции над метаданными.
func (s *NewsService) removeBlob(ctx context.Context, key string, what string) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	if err := s.blobs.Delete(dctx, key); err != nil {
		s.logger.Warn("Изображение осиротело, требуется ручная очистка",
			slog.String("operation", what),
			slog.String("image_key", key),
			slog.String("error", err.Error()),
		)
	}
}
