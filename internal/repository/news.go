package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/arturkryukov/pressroom/internal/domain/model"
)

// newsColumns — список столбцов таблицы news для SELECT-запросов.
// DRY: одно место для всех SELECT'ов.
const newsColumns = `id, image_url, image_key, drive_link, published_on, created_at, updated_at`

// Имена ограничений уникальности таблицы news (см. миграцию 0001).
const (
	constraintDriveLink   = "news_drive_link_key"
	constraintPublishedOn = "news_published_on_key"
)

// NewsListFilters — фильтры для списка новостей.
// Все поля — указатели, nil = фильтр не применяется.
type NewsListFilters struct {
	// Month — месяц (1-12); учитывается только вместе с Year.
	Month *int
	// Year — год.
	Year *int
}

// NewsRepository — интерфейс CRUD для таблицы news.
// Уникальность drive_link и published_on обеспечивается constraint'ами БД,
// а не предварительными проверками: гонка двух конкурентных Create
// разрешается самой БД — ровно один успех и один ErrConflict.
type NewsRepository interface {
	// Create создаёт новую запись новости.
	Create(ctx context.Context, n *model.News) error
	// GetByID возвращает новость по UUID.
	GetByID(ctx context.Context, id string) (*model.News, error)
	// List возвращает список новостей от новых к старым.
	List(ctx context.Context, filters NewsListFilters, limit, offset int) ([]*model.News, error)
	// Count возвращает количество новостей с теми же фильтрами.
	Count(ctx context.Context, filters NewsListFilters) (int, error)
	// Update обновляет запись (image_url, image_key, drive_link) одним UPDATE.
	Update(ctx context.Context, n *model.News) error
	// Delete удаляет запись и возвращает image_key удалённой записи.
	Delete(ctx context.Context, id string) (imageKey string, err error)
}

// newsRepo — реализация NewsRepository через pgx.
type newsRepo struct {
	db DBTX
}

// NewNewsRepository создаёт репозиторий новостей.
func NewNewsRepository(db DBTX) NewsRepository {
	return &newsRepo{db: db}
}

func (r *newsRepo) Create(ctx context.Context, n *model.News) error {
	query := `
		INSERT INTO news (image_url, image_key, drive_link, published_on)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query,
		n.ImageURL, n.ImageKey, n.DriveLink, n.PublishedOn,
	).Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if conflictErr := mapUniqueViolation(err); conflictErr != nil {
			return conflictErr
		}
		return fmt.Errorf("ошибка создания новости: %w", err)
	}
	return nil
}

func (r *newsRepo) GetByID(ctx context.Context, id string) (*model.News, error) {
	query := fmt.Sprintf(`SELECT %s FROM news WHERE id = $1`, newsColumns)

	n := &model.News{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&n.ID, &n.ImageURL, &n.ImageKey, &n.DriveLink,
		&n.PublishedOn, &n.CreatedAt, &n.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения новости: %w", err)
	}
	return n, nil
}

func (r *newsRepo) List(ctx context.Context, filters NewsListFilters, limit, offset int) ([]*model.News, error) {
	where, args := buildNewsWhere(filters, 1)
	argNum := len(args) + 1

	query := fmt.Sprintf(`
		SELECT %s FROM news
		%s
		ORDER BY published_on DESC, created_at DESC
		LIMIT $%d OFFSET $%d`, newsColumns, where, argNum, argNum+1)

	args = append(args, limit, offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка новостей: %w", err)
	}
	defer rows.Close()

	var result []*model.News
	for rows.Next() {
		n := &model.News{}
		if err := rows.Scan(
			&n.ID, &n.ImageURL, &n.ImageKey, &n.DriveLink,
			&n.PublishedOn, &n.CreatedAt, &n.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("ошибка сканирования новости: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}

func (r *newsRepo) Count(ctx context.Context, filters NewsListFilters) (int, error) {
	where, args := buildNewsWhere(filters, 1)
	query := fmt.Sprintf(`SELECT COUNT(*) FROM news %s`, where)

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта новостей: %w", err)
	}
	return count, nil
}

func (r *newsRepo) Update(ctx context.Context, n *model.News) error {
	query := `
		UPDATE news
		SET image_url = $2, image_key = $3, drive_link = $4, updated_at = now()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		n.ID, n.ImageURL, n.ImageKey, n.DriveLink,
	).Scan(&n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		if conflictErr := mapUniqueViolation(err); conflictErr != nil {
			return conflictErr
		}
		return fmt.Errorf("ошибка обновления новости: %w", err)
	}
	return nil
}

func (r *newsRepo) Delete(ctx context.Context, id string) (string, error) {
	query := `DELETE FROM news WHERE id = $1 RETURNING image_key`

	var imageKey string
	err := r.db.QueryRow(ctx, query, id).Scan(&imageKey)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("ошибка удаления новости: %w", err)
	}
	return imageKey, nil
}

// mapUniqueViolation преобразует нарушение уникальности в ErrConflict
// с сообщением, зависящим от нарушенного ограничения.
// Возвращает nil, если ошибка не о нарушении уникальности.
func mapUniqueViolation(err error) error {
	switch uniqueViolation(err) {
	case constraintDriveLink:
		return fmt.Errorf("%w: новость с такой ссылкой на документ уже существует", ErrConflict)
	case constraintPublishedOn:
		return fmt.Errorf("%w: новость на эту дату уже существует", ErrConflict)
	case "":
		return nil
	default:
		return fmt.Errorf("%w: нарушено ограничение уникальности", ErrConflict)
	}
}

// buildNewsWhere строит WHERE-условие и аргументы для фильтрации новостей
// по месяцу/году. startArg — номер первого $-параметра.
// Месяц без года не сужает выборку (поведение публичного API).
func buildNewsWhere(filters NewsListFilters, startArg int) (string, []any) {
	var conditions []string
	var args []any
	argNum := startArg

	var from, to time.Time
	switch {
	case filters.Month != nil && filters.Year != nil:
		// [первый день месяца, первый день следующего месяца)
		from = time.Date(*filters.Year, time.Month(*filters.Month), 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(0, 1, 0)
	case filters.Year != nil:
		// [1 января, 1 января следующего года)
		from = time.Date(*filters.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
		to = from.AddDate(1, 0, 0)
	}

	if !from.IsZero() {
		conditions = append(conditions, fmt.Sprintf("published_on >= $%d", argNum))
		args = append(args, from)
		argNum++
		conditions = append(conditions, fmt.Sprintf("published_on < $%d", argNum))
		args = append(args, to)
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	return where, args
}
