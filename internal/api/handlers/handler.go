// handler.go — основной обработчик API Pressroom.
// Объединяет доменные обработчики и делегирует запросы в сервисный слой.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/arturkryukov/pressroom/internal/domain/model"
	"github.com/arturkryukov/pressroom/internal/service"
)

// APIHandler — основной обработчик API Pressroom.
type APIHandler struct {
	health *HealthHandler
	news   *service.NewsService
	logger *slog.Logger
}

// NewAPIHandler создаёт основной обработчик API.
func NewAPIHandler(health *HealthHandler, news *service.NewsService, logger *slog.Logger) *APIHandler {
	return &APIHandler{
		health: health,
		news:   news,
		logger: logger.With(slog.String("component", "api_handler")),
	}
}

// HealthLive — liveness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthLive(w http.ResponseWriter, r *http.Request) {
	h.health.HealthLive(w, r)
}

// HealthReady — readiness probe (делегируется в HealthHandler).
func (h *APIHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	h.health.HealthReady(w, r)
}

// GetMetrics — Prometheus метрики (делегируется в HealthHandler).
func (h *APIHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	h.health.GetMetrics(w, r)
}

// --- Конверты ответов ---

// successResponse — конверт успешного ответа с одной записью.
type successResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    *model.News `json:"data,omitempty"`
}

// listResponse — конверт списка новостей с пагинацией.
type listResponse struct {
	Success     bool          `json:"success"`
	Data        []*model.News `json:"data"`
	TotalPages  int           `json:"totalPages"`
	CurrentPage int           `json:"currentPage"`
	TotalItems  int           `json:"totalItems"`
}

// --- Вспомогательные функции ---

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
