package store

import "errors"

// Общие ошибки хранилища.
var (
	// ErrNotFound — запись не найдена.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists — запись уже существует (конфликт уникальности).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidTransition — персистентное состояние экземпляра не входит
	// в допустимые from-состояния перехода. Указывает на гонку или
	// логическую ошибку оркестратора; никогда не игнорируется молча.
	ErrInvalidTransition = errors.New("invalid state transition")
)
