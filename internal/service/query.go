// query.go — выборка новостей: фильтрация по месяцу/году и пагинация.
// Только чтение, состояние реестра не меняется.
package service

import (
	"context"
	"fmt"

	"github.com/arturkryukov/pressroom/internal/domain/model"
	"github.com/arturkryukov/pressroom/internal/repository"
)

// ListParams — параметры выборки новостей.
type ListParams struct {
	// Page — номер страницы, начиная с 1.
	Page int
	// PageSize — размер страницы, минимум 1.
	PageSize int
	// Month — месяц (1-12); учитывается только вместе с Year.
	Month *int
	// Year — год.
	Year *int
}

// ListResult — страница новостей с метаданными пагинации.
type ListResult struct {
	Items       []*model.News
	TotalItems  int
	TotalPages  int
	CurrentPage int
}

// List возвращает страницу новостей от новых к старым.
// Сортировка: published_on DESC, затем created_at DESC (детерминированно).
// totalPages = ceil(totalItems / pageSize).
func (s *NewsService) List(ctx context.Context, p ListParams) (*ListResult, error) {
	if p.Page < 1 {
		return nil, fmt.Errorf("%w: номер страницы должен быть не меньше 1", ErrValidation)
	}
	if p.PageSize < 1 {
		return nil, fmt.Errorf("%w: размер страницы должен быть не меньше 1", ErrValidation)
	}
	if p.Month != nil && (*p.Month < 1 || *p.Month > 12) {
		return nil, fmt.Errorf("%w: месяц должен быть от 1 до 12", ErrValidation)
	}

	filters := repository.NewsListFilters{
		Month: p.Month,
		Year:  p.Year,
	}

	offset := (p.Page - 1) * p.PageSize

	items, err := s.repo.List(ctx, filters, p.PageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("получение списка новостей: %w", err)
	}

	total, err := s.repo.Count(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("подсчёт новостей: %w", err)
	}

	if items == nil {
		items = []*model.News{}
	}

	return &ListResult{
		Items:       items,
		TotalItems:  total,
		TotalPages:  (total + p.PageSize - 1) / p.PageSize,
		CurrentPage: p.Page,
	}, nil
}
