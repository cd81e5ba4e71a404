package repo

import "errors"

// Общие ошибки репозиториев.
var (
	// ErrAlreadyExists — команда с таким ID уже сохранена.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidLimit — лимит выборки вне допустимого диапазона.
	ErrInvalidLimit = errors.New("invalid limit")
)
