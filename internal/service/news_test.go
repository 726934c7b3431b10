package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/arturkryukov/pressroom/internal/blobstore"
	"github.com/arturkryukov/pressroom/internal/domain/model"
	"github.com/arturkryukov/pressroom/internal/repository"
)

// --- Mock repository ---

// mockNewsRepo — мок NewsRepository для unit-тестов.
type mockNewsRepo struct {
	createFn  func(ctx context.Context, n *model.News) error
	getByIDFn func(ctx context.Context, id string) (*model.News, error)
	listFn    func(ctx context.Context, filters repository.NewsListFilters, limit, offset int) ([]*model.News, error)
	countFn   func(ctx context.Context, filters repository.NewsListFilters) (int, error)
	updateFn  func(ctx context.Context, n *model.News) error
	deleteFn  func(ctx context.Context, id string) (string, error)
}

func (m *mockNewsRepo) Create(ctx context.Context, n *model.News) error {
	if m.createFn != nil {
		return m.createFn(ctx, n)
	}
	n.ID = "11111111-1111-1111-1111-111111111111"
	n.CreatedAt = time.Now()
	n.UpdatedAt = n.CreatedAt
	return nil
}

func (m *mockNewsRepo) GetByID(ctx context.Context, id string) (*model.News, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, repository.ErrNotFound
}

func (m *mockNewsRepo) List(ctx context.Context, filters repository.NewsListFilters, limit, offset int) ([]*model.News, error) {
	if m.listFn != nil {
		return m.listFn(ctx, filters, limit, offset)
	}
	return nil, nil
}

func (m *mockNewsRepo) Count(ctx context.Context, filters repository.NewsListFilters) (int, error) {
	if m.countFn != nil {
		return m.countFn(ctx, filters)
	}
	return 0, nil
}

func (m *mockNewsRepo) Update(ctx context.Context, n *model.News) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, n)
	}
	return nil
}

func (m *mockNewsRepo) Delete(ctx context.Context, id string) (string, error) {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, id)
	}
	return "", repository.ErrNotFound
}

// --- Mock blob store ---

// mockBlobStore — мок BlobStore, считает вызовы Upload/Delete.
type mockBlobStore struct {
	uploadFn func(ctx context.Context, filename, contentType string, data []byte) (*blobstore.UploadResult, error)
	deleteFn func(ctx context.Context, key string) error

	uploads int
	deletes []string
}

func (m *mockBlobStore) Upload(ctx context.Context, filename, contentType string, data []byte) (*blobstore.UploadResult, error) {
	m.uploads++
	if m.uploadFn != nil {
		return m.uploadFn(ctx, filename, contentType, data)
	}
	key := fmt.Sprintf("blob-%d", m.uploads)
	return &blobstore.UploadResult{
		Key: key,
		URL: "https://storage.kryukov.lan/api/v1/files/" + key + "/download",
	}, nil
}

func (m *mockBlobStore) Delete(ctx context.Context, key string) error {
	m.deletes = append(m.deletes, key)
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

// --- Вспомогательные функции ---

func newTestService(repo repository.NewsRepository, blobs BlobStore) *NewsService {
	return NewNewsService(repo, blobs, slog.Default())
}

func validCreateParams() CreateParams {
	return CreateParams{
		Image:       []byte("png-bytes"),
		ImageName:   "photo.png",
		ContentType: "image/png",
		DriveLink:   "https://drive.example.com/doc/1",
		PublishedOn: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
	}
}

// --- Тесты Create ---

// TestCreate_Success проверяет happy path: загрузка блоба, запись метаданных.
func TestCreate_Success(t *testing.T) {
	repo := &mockNewsRepo{}
	blobs := &mockBlobStore{}
	svc := newTestService(repo, blobs)

	n, err := svc.Create(context.Background(), validCreateParams())
	if err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}

	if n.ID == "" {
		t.Error("ID не присвоен")
	}
	if n.ImageKey != "blob-1" {
		t.Errorf("ImageKey = %q, ожидался blob-1", n.ImageKey)
	}
	if !strings.Contains(n.ImageURL, "blob-1") {
		t.Errorf("ImageURL = %q, ожидался URL блоба", n.ImageURL)
	}
	if blobs.uploads != 1 {
		t.Errorf("uploads = %d, ожидался 1", blobs.uploads)
	}
	if len(blobs.deletes) != 0 {
		t.Errorf("deletes = %v, компенсация не должна была выполняться", blobs.deletes)
	}
}

// TestCreate_ValidationNoSideEffects проверяет, что при ошибке валидации
// ни хранилище, ни реестр не затрагиваются.
func TestCreate_ValidationNoSideEffects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*CreateParams)
	}{
		{"пустое изображение", func(p *CreateParams) { p.Image = nil }},
		{"изображение больше лимита", func(p *CreateParams) { p.Image = make([]byte, MaxImageSize+1) }},
		{"недопустимый тип", func(p *CreateParams) { p.ContentType = "image/gif" }},
		{"пустая ссылка", func(p *CreateParams) { p.DriveLink = "" }},
		{"нулевая дата", func(p *CreateParams) { p.PublishedOn = time.Time{} }},
		{"дата в будущем", func(p *CreateParams) { p.PublishedOn = time.Now().UTC().AddDate(0, 0, 2) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			created := false
			repo := &mockNewsRepo{
				createFn: func(_ context.Context, _ *model.News) error {
					created = true
					return nil
				},
			}
			blobs := &mockBlobStore{}
			svc := newTestService(repo, blobs)

			p := validCreateParams()
			tt.mutate(&p)

			_, err := svc.Create(context.Background(), p)
			if !errors.Is(err, ErrValidation) {
				t.Fatalf("err = %v, ожидался ErrValidation", err)
			}
			if blobs.uploads != 0 {
				t.Errorf("uploads = %d, ожидался 0", blobs.uploads)
			}
			if created {
				t.Error("репозиторий не должен был вызываться")
			}
		})
	}
}

// TestCreate_StorageUnavailable проверяет, что при сбое загрузки
// метаданные не пишутся.
func TestCreate_StorageUnavailable(t *testing.T) {
	created := false
	repo := &mockNewsRepo{
		createFn: func(_ context.Context, _ *model.News) error {
			created = true
			return nil
		},
	}
	blobs := &mockBlobStore{
		uploadFn: func(_ context.Context, _, _ string, _ []byte) (*blobstore.UploadResult, error) {
			return nil, errors.New("connection refused")
		},
	}
	svc := newTestService(repo, blobs)

	_, err := svc.Create(context.Background(), validCreateParams())
	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("err = %v, ожидался ErrStorageUnavailable", err)
	}
	if created {
		t.Error("репозиторий не должен был вызываться")
	}
}

// TestCreate_ConflictCompensation проверяет компенсацию: при конфликте
// уникальности загруженный блоб удаляется.
func TestCreate_ConflictCompensation(t *testing.T) {
	repo := &mockNewsRepo{
		createFn: func(_ context.Context, _ *model.News) error {
			return fmt.Errorf("%w: новость на эту дату уже существует", repository.ErrConflict)
		},
	}
	blobs := &mockBlobStore{}
	svc := newTestService(repo, blobs)

	_, err := svc.Create(context.Background(), validCreateParams())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, ожидался ErrConflict", err)
	}
	if !strings.Contains(err.Error(), "новость на эту дату уже существует") {
		t.Errorf("err = %q, причина конфликта потеряна", err.Error())
	}

	if len(blobs.deletes) != 1 || blobs.deletes[0] != "blob-1" {
		t.Errorf("deletes = %v, ожидалась компенсация blob-1", blobs.deletes)
	}
}

// TestCreate_CompensationOnCanceledContext проверяет, что компенсация
// выполняется даже если контекст запроса уже отменён.
func TestCreate_CompensationOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	repo := &mockNewsRepo{
		createFn: func(ctx context.Context, _ *model.News) error {
			// Имитация отмены запроса между загрузкой и записью метаданных
			cancel()
			return ctx.Err()
		},
	}

	var deleteCtxErr error
	blobs := &mockBlobStore{
		deleteFn: func(ctx context.Context, _ string) error {
			deleteCtxErr = ctx.Err()
			return nil
		},
	}
	svc := newTestService(repo, blobs)

	_, err := svc.Create(ctx, validCreateParams())
	if err == nil {
		t.Fatal("Create должен был вернуть ошибку")
	}

	if len(blobs.deletes) != 1 {
		t.Fatalf("deletes = %v, ожидалась компенсация", blobs.deletes)
	}
	if deleteCtxErr != nil {
		t.Errorf("контекст компенсации отменён: %v, ожидался живой контекст", deleteCtxErr)
	}
}

// TestCreate_CompensationFailureKeepsError проверяет, что сбой компенсации
// не подменяет исходную ошибку операции.
func TestCreate_CompensationFailureKeepsError(t *testing.T) {
	repo := &mockNewsRepo{
		createFn: func(_ context.Context, _ *model.News) error {
			return fmt.Errorf("%w: новость с такой ссылкой на документ уже существует", repository.ErrConflict)
		},
	}
	blobs := &mockBlobStore{
		deleteFn: func(_ context.Context, _ string) error {
			return errors.New("storage element недоступен")
		},
	}
	svc := newTestService(repo, blobs)

	_, err := svc.Create(context.Background(), validCreateParams())
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, ожидался ErrConflict несмотря на сбой компенсации", err)
	}
}

// TestCreate_DateTruncated проверяет, что время отбрасывается до календарной даты.
func TestCreate_DateTruncated(t *testing.T) {
	var saved *model.News
	repo := &mockNewsRepo{
		createFn: func(_ context.Context, n *model.News) error {
			saved = n
			return nil
		},
	}
	svc := newTestService(repo, &mockBlobStore{})

	p := validCreateParams()
	p.PublishedOn = time.Date(2025, 3, 15, 18, 45, 12, 0, time.UTC)

	if _, err := svc.Create(context.Background(), p); err != nil {
		t.Fatalf("Create ошибка: %v", err)
	}

	expected := time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC)
	if !saved.PublishedOn.Equal(expected) {
		t.Errorf("PublishedOn = %v, ожидался %v", saved.PublishedOn, expected)
	}
}

// --- Тесты Update ---

func existingNews() *model.News {
	return &model.News{
		ID:          "11111111-1111-1111-1111-111111111111",
		ImageURL:    "https://storage.kryukov.lan/api/v1/files/old-key/download",
		ImageKey:    "old-key",
		DriveLink:   "https://drive.example.com/doc/1",
		PublishedOn: time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
	}
}

// TestUpdate_NotFound проверяет обновление несуществующей новости.
func TestUpdate_NotFound(t *testing.T) {
	svc := newTestService(&mockNewsRepo{}, &mockBlobStore{})

	_, err := svc.Update(context.Background(), "22222222-2222-2222-2222-222222222222", UpdateParams{})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, ожидался ErrNotFound", err)
	}
}

// TestUpdate_ReplaceImage проверяет порядок замены изображения:
// новый блоб загружается до UPDATE, старый удаляется после.
func TestUpdate_ReplaceImage(t *testing.T) {
	var updatedKey string
	repo := &mockNewsRepo{
		getByIDFn: func(_ context.Context, _ string) (*model.News, error) {
			return existingNews(), nil
		},
		updateFn: func(_ context.Context, n *model.News) error {
			updatedKey = n.ImageKey
			return nil
		},
	}
	blobs := &mockBlobStore{}
	svc := newTestService(repo, blobs)

	n, err := svc.Update(context.Background(), existingNews().ID, UpdateParams{
		Image:       []byte("new-png"),
		ImageName:   "new.png",
		ContentType: "image/png",
	})
	if err != nil {
		t.Fatalf("Update ошибка: %v", err)
	}

	if updatedKey != "blob-1" {
		t.Errorf("в UPDATE ушёл ключ %q, ожидался blob-1", updatedKey)
	}
	if n.ImageKey != "blob-1" {
		t.Errorf("ImageKey = %q, ожидался blob-1", n.ImageKey)
	}
	if len(blobs.deletes) != 1 || blobs.deletes[0] != "old-key" {
		t.Errorf("deletes = %v, ожидалось удаление old-key после успешного UPDATE", blobs.deletes)
	}
}

// TestUpdate_ConflictCompensatesNewBlob проверяет, что при конфликте UPDATE
// компенсируется НОВЫЙ блоб, а старый остаётся нетронутым.
func TestUpdate_ConflictCompensatesNewBlob(t *testing.T) {
	repo := &mockNewsRepo{
		getByIDFn: func(_ context.Context, _ string) (*model.News, error) {
			return existingNews(), nil
		},
		updateFn: func(_ context.Context, _ *model.News) error {
			return fmt.Errorf("%w: новость с такой ссылкой на документ уже существует", repository.ErrConflict)
		},
	}
	blobs := &mockBlobStore{}
	svc := newTestService(repo, blobs)

	_, err := svc.Update(context.Background(), existingNews().ID, UpdateParams{
		Image:       []byte("new-png"),
		ImageName:   "new.png",
		ContentType: "image/png",
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("err = %v, ожидался ErrConflict", err)
	}

	if len(blobs.deletes) != 1 || blobs.deletes[0] != "blob-1" {
		t.Errorf("deletes = %v, ожидалась компенсация только нового блоба blob-1", blobs.deletes)
	}
}

// TestUpdate_DriveLinkOnly проверяет обновление без изображения:
// хранилище не затрагивается.
func TestUpdate_DriveLinkOnly(t *testing.T) {
	var updated *model.News
	repo := &mockNewsRepo{
		getByIDFn: func(_ context.Context, _ string) (*model.News, error) {
			return existingNews(), nil
		},
		updateFn: func(_ context.Context, n *model.News) error {
			updated = n
			return nil
		},
	}
	blobs := &mockBlobStore{}
	svc := newTestService(repo, blobs)

	newLink := "https://drive.example.com/doc/2"
	_, err := svc.Update(context.Background(), existingNews().ID, UpdateParams{
		DriveLink: &newLink,
	})
	if err != nil {
		t.Fatalf("Update ошибка: %v", err)
	}

	if updated.DriveLink != newLink {
		t.Errorf("DriveLink = %q, ожидался %q", updated.DriveLink, newLink)
	}
	if updated.ImageKey != "old-key" {
		t.Errorf("ImageKey = %q, изображение не должно было меняться", updated.ImageKey)
	}
	if blobs.uploads != 0 || len(blobs.deletes) != 0 {
		t.Errorf("uploads = %d, deletes = %v, хранилище не должно было затрагиваться",
			blobs.uploads, blobs.deletes)
	}
}

// TestUpdate_InvalidImage проверяет валидацию нового изображения.
func TestUpdate_InvalidImage(t *testing.T) {
	repo := &mockNewsRepo{
		getByIDFn: func(_ context.Context, _ string) (*model.News, error) {
			return existingNews(), nil
		},
	}
	blobs := &mockBlobStore{}
	svc := newTestService(repo, blobs)

	_, err := svc.Update(context.Background(), existingNews().ID, UpdateParams{
		Image:       []byte("gif-bytes"),
		ContentType: "image/gif",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("err = %v, ожидался ErrValidation", err)
	}
	if blobs.uploads != 0 {
		t.Errorf("uploads = %d, ожидался 0", blobs.uploads)
	}
}

// --- Тесты Delete ---

// TestDelete_Success проверяет удаление: метаданные, затем блоб.
func TestDelete_Success(t *testing.T) {
	repo := &mockNewsRepo{
		deleteFn: func(_ context.Context, _ string) (string, error) {
			return "old-key", nil
		},
	}
	blobs := &mockBlobStore{}
	svc := newTestService(repo, blobs)

	if err := svc.Delete(context.Background(), existingNews().ID); err != nil {
		t.Fatalf("Delete ошибка: %v", err)
	}

	if len(blobs.deletes) != 1 || blobs.deletes[0] != "old-key" {
		t.Errorf("deletes = %v, ожидалось удаление old-key", blobs.deletes)
	}
}

// TestDelete_BlobFailureStillSucceeds проверяет best-effort очистку:
// сбой удаления блоба не откатывает удаление новости.
func TestDelete_BlobFailureStillSucceeds(t *testing.T) {
	repo := &mockNewsRepo{
		deleteFn: func(_ context.Context, _ string) (string, error) {
			return "old-key", nil
		},
	}
	blobs := &mockBlobStore{
		deleteFn: func(_ context.Context, _ string) error {
			return errors.New("storage element недоступен")
		},
	}
	svc := newTestService(repo, blobs)

	if err := svc.Delete(context.Background(), existingNews().ID); err != nil {
		t.Fatalf("Delete ошибка: %v, сбой блоба не должен влиять на результат", err)
	}
}

// TestDelete_NotFound проверяет удаление несуществующей новости.
func TestDelete_NotFound(t *testing.T) {
	blobs := &mockBlobStore{}
	svc := newTestService(&mockNewsRepo{}, blobs)

	err := svc.Delete(context.Background(), "22222222-2222-2222-2222-222222222222")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, ожидался ErrNotFound", err)
	}
	if len(blobs.deletes) != 0 {
		t.Errorf("deletes = %v, хранилище не должно было затрагиваться", blobs.deletes)
	}
}

// --- Тесты Get ---

func TestGet_NotFound(t *testing.T) {
	svc := newTestService(&mockNewsRepo{}, &mockBlobStore{})

	_, err := svc.Get(context.Background(), "22222222-2222-2222-2222-222222222222")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, ожидался ErrNotFound", err)
	}
}

func TestGet_Success(t *testing.T) {
	repo := &mockNewsRepo{
		getByIDFn: func(_ context.Context, id string) (*model.News, error) {
			n := existingNews()
			n.ID = id
			return n, nil
		},
	}
	svc := newTestService(repo, &mockBlobStore{})

	n, err := svc.Get(context.Background(), "11111111-1111-1111-1111-111111111111")
	if err != nil {
		t.Fatalf("Get ошибка: %v", err)
	}
	if n.ImageKey != "old-key" {
		t.Errorf("ImageKey = %q, ожидался old-key", n.ImageKey)
	}
}
