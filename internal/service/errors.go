// errors.go — ошибки бизнес-логики сервисного слоя.
package service

import "errors"

var (
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
	// ErrNotFound — новость не найдена.
	ErrNotFound = errors.New("новость не найдена")
	// ErrConflict — конфликт уникальности (дублирующаяся ссылка или дата).
	ErrConflict = errors.New("конфликт — ресурс уже существует")
	// ErrStorageUnavailable — хранилище изображений недоступно.
	ErrStorageUnavailable = errors.New("хранилище изображений недоступно")
)
