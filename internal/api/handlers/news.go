// news.go — обработчики /news endpoints.
// Список с фильтрацией и пагинацией — публичный; создание, обновление
// и удаление — только для аутентифицированных операторов.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	apierrors "github.com/arturkryukov/pressroom/internal/api/errors"
	"github.com/arturkryukov/pressroom/internal/api/middleware"
	"github.com/arturkryukov/pressroom/internal/service"
)

// defaultPageSize — размер страницы по умолчанию для GET /news.
const defaultPageSize = 12

// multipartMemoryLimit — буфер парсинга multipart form (5 MiB файла + запас).
const multipartMemoryLimit = 8 << 20

// ListNews — GET /news?page=&limit=&month=&year=.
// Возвращает страницу новостей от новых к старым. Без авторизации.
func (h *APIHandler) ListNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	page, err := parseIntDefault(q.Get("page"), 1)
	if err != nil {
		apierrors.ValidationError(w, "Параметр page должен быть целым числом")
		return
	}
	limit, err := parseIntDefault(q.Get("limit"), defaultPageSize)
	if err != nil {
		apierrors.ValidationError(w, "Параметр limit должен быть целым числом")
		return
	}
	month, err := parseIntOptional(q.Get("month"))
	if err != nil {
		apierrors.ValidationError(w, "Параметр month должен быть целым числом")
		return
	}
	year, err := parseIntOptional(q.Get("year"))
	if err != nil {
		apierrors.ValidationError(w, "Параметр year должен быть целым числом")
		return
	}

	result, err := h.news.List(r.Context(), service.ListParams{
		Page:     page,
		PageSize: limit,
		Month:    month,
		Year:     year,
	})
	if err != nil {
		if errors.Is(err, service.ErrValidation) {
			apierrors.ValidationError(w, err.Error())
			return
		}
		h.logger.Error("Ошибка получения списка новостей", "error", err)
		apierrors.InternalError(w, "Ошибка сервера, попробуйте позже")
		return
	}

	writeJSON(w, http.StatusOK, listResponse{
		Success:     true,
		Data:        result.Items,
		TotalPages:  result.TotalPages,
		CurrentPage: result.CurrentPage,
		TotalItems:  result.TotalItems,
	})
}

// GetNews — GET /news/{id}.
// Возвращает одну новость. Без авторизации, как и список.
func (h *APIHandler) GetNews(w http.ResponseWriter, r *http.Request) {
	id, ok := newsID(w, r)
	if !ok {
		return
	}

	n, err := h.news.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			apierrors.NotFound(w, "Новость не найдена")
			return
		}
		h.logger.Error("Ошибка получения новости", "id", id, "error", err)
		apierrors.InternalError(w, "Ошибка сервера, попробуйте позже")
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: n})
}

// CreateNews — POST /news.
// Multipart form: image (обязательно), driveLink (обязательно),
// customDate (обязательно, календарная дата не в будущем).
func (h *APIHandler) CreateNews(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	image, imageName, contentType, ok := formImage(w, r, true)
	if !ok {
		return
	}

	driveLink := r.FormValue("driveLink")
	if driveLink == "" {
		apierrors.ValidationError(w, "Ссылка на документ (driveLink) обязательна")
		return
	}

	rawDate := r.FormValue("customDate")
	if rawDate == "" {
		apierrors.ValidationError(w, "Дата новости (customDate) обязательна")
		return
	}
	publishedOn, err := parseCustomDate(rawDate)
	if err != nil {
		apierrors.ValidationError(w, "Некорректный формат даты (customDate), ожидается YYYY-MM-DD")
		return
	}

	n, err := h.news.Create(r.Context(), service.CreateParams{
		Image:       image,
		ImageName:   imageName,
		ContentType: contentType,
		DriveLink:   driveLink,
		PublishedOn: publishedOn,
	})
	if err != nil {
		h.writeNewsError(w, err, "Ошибка создания новости")
		return
	}

	h.logger.Info("Новость создана оператором",
		"id", n.ID,
		"subject", claims.Subject,
	)

	writeJSON(w, http.StatusCreated, successResponse{
		Success: true,
		Message: "Новость успешно добавлена!",
		Data:    n,
	})
}

// UpdateNews — PUT /news/{id}.
// Multipart form: image (опционально — заменяет изображение),
// driveLink (опционально — заменяет ссылку на документ).
func (h *APIHandler) UpdateNews(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	id, ok := newsID(w, r)
	if !ok {
		return
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		apierrors.ValidationError(w, fmt.Sprintf("Ошибка парсинга multipart: %s", err.Error()))
		return
	}

	image, imageName, contentType, ok := formImage(w, r, false)
	if !ok {
		return
	}

	var driveLink *string
	if v := r.FormValue("driveLink"); v != "" {
		driveLink = &v
	}

	n, err := h.news.Update(r.Context(), id, service.UpdateParams{
		Image:       image,
		ImageName:   imageName,
		ContentType: contentType,
		DriveLink:   driveLink,
	})
	if err != nil {
		h.writeNewsError(w, err, "Ошибка обновления новости")
		return
	}

	h.logger.Info("Новость обновлена оператором",
		"id", n.ID,
		"subject", claims.Subject,
	)

	writeJSON(w, http.StatusOK, successResponse{
		Success: true,
		Message: "Новость успешно обновлена!",
		Data:    n,
	})
}

// DeleteNews — DELETE /news/{id}.
func (h *APIHandler) DeleteNews(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		apierrors.Unauthorized(w, "Отсутствуют claims")
		return
	}

	id, ok := newsID(w, r)
	if !ok {
		return
	}

	if err := h.news.Delete(r.Context(), id); err != nil {
		h.writeNewsError(w, err, "Ошибка удаления новости")
		return
	}

	h.logger.Info("Новость удалена оператором",
		"id", id,
		"subject", claims.Subject,
	)

	writeJSON(w, http.StatusOK, successResponse{
		Success: true,
		Message: "Новость успешно удалена!",
	})
}

// --- Вспомогательные функции ---

// writeNewsError маппит ошибки сервисного слоя в HTTP-ответы.
func (h *APIHandler) writeNewsError(w http.ResponseWriter, err error, logMessage string) {
	switch {
	case errors.Is(err, service.ErrValidation):
		apierrors.ValidationError(w, err.Error())
	case errors.Is(err, service.ErrNotFound):
		apierrors.NotFound(w, "Новость не найдена")
	case errors.Is(err, service.ErrConflict):
		apierrors.Conflict(w, err.Error())
	case errors.Is(err, service.ErrStorageUnavailable):
		h.logger.Error(logMessage, "error", err)
		apierrors.InternalError(w, "Хранилище изображений недоступно, попробуйте позже")
	default:
		h.logger.Error(logMessage, "error", err)
		apierrors.InternalError(w, "Ошибка сервера, попробуйте позже")
	}
}

// newsID извлекает и валидирует UUID новости из пути.
// Некорректный UUID заведомо не указывает ни на одну запись,
// поэтому отвечаем 404 без обращения к базе.
func newsID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		apierrors.NotFound(w, "Новость не найдена")
		return "", false
	}
	return id, true
}

// formImage извлекает изображение из multipart form.
// required=false: отсутствие файла — не ошибка (изображение не меняется).
// При ошибке пишет ответ и возвращает ok=false.
func formImage(w http.ResponseWriter, r *http.Request, required bool) (data []byte, name, contentType string, ok bool) {
	file, header, err := r.FormFile("image")
	if err != nil {
		if !required && errors.Is(err, http.ErrMissingFile) {
			return nil, "", "", true
		}
		apierrors.ValidationError(w, "Изображение (image) обязательно")
		return nil, "", "", false
	}
	defer file.Close()

	// Читаем не больше лимита + 1 байт: превышение обнаружит сервис
	data, err = io.ReadAll(io.LimitReader(file, service.MaxImageSize+1))
	if err != nil {
		apierrors.ValidationError(w, "Ошибка чтения изображения")
		return nil, "", "", false
	}

	// Поле передано, но файл пустой. Отличаем от отсутствия поля:
	// пустой файл — ошибка клиента, а не «оставить изображение как есть».
	if len(data) == 0 {
		apierrors.ValidationError(w, "Файл изображения пустой")
		return nil, "", "", false
	}

	return data, header.Filename, header.Header.Get("Content-Type"), true
}

// parseIntDefault разбирает целочисленный query-параметр
// со значением по умолчанию для пустой строки.
func parseIntDefault(raw string, defaultVal int) (int, error) {
	if raw == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(raw)
}

// parseIntOptional разбирает опциональный целочисленный query-параметр.
// Пустая строка — nil.
func parseIntOptional(raw string) (*int, error) {
	if raw == "" {
		return nil, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// parseCustomDate разбирает дату новости.
// Основной формат — YYYY-MM-DD; RFC3339 принимается для совместимости
// с клиентами, отправляющими полную метку времени.
func parseCustomDate(raw string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, raw)
}
