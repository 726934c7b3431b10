// news.go — доменная модель новости.
package model

import "time"

// News — запись новости в реестре.
// Метаданные хранятся в PostgreSQL, само изображение — на storage element.
type News struct {
	// ID — UUID записи (генерируется БД).
	ID string `json:"id"`
	// ImageURL — публичный URL изображения на storage element.
	ImageURL string `json:"imageUrl"`
	// ImageKey — ключ изображения на storage element.
	// Служебное поле: используется только для удаления/замены блоба,
	// наружу через API не отдаётся.
	ImageKey string `json:"-"`
	// DriveLink — ссылка на внешний документ (уникальна среди всех записей).
	DriveLink string `json:"driveLink"`
	// PublishedOn — календарная дата новости (не более одной записи в день).
	PublishedOn time.Time `json:"customDate"`
	// CreatedAt — время создания записи (ставится БД).
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt — время последнего обновления записи (ставится БД).
	UpdatedAt time.Time `json:"updatedAt"`
}
