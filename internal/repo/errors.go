package repo

import "github.com/shaiso/Forge/internal/store"

// Репозитории возвращают те же sentinel-ошибки, что и контракты store,
// чтобы вызывающие могли проверять errors.Is без знания о реализации.
var (
	// ErrNotFound — запись не найдена в БД.
	ErrNotFound = store.ErrNotFound

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = store.ErrAlreadyExists

	// ErrInvalidTransition — условная запись отклонена: текущее состояние
	// не входит в разрешённый набор.
	ErrInvalidTransition = store.ErrInvalidTransition
)
