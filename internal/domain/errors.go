package domain

import "errors"

// Ошибки модели жизненного цикла.
var (
	// ErrInvalidTransition — переход не соответствует маршруту продукта.
	ErrInvalidTransition = errors.New("invalid product transition")

	// ErrProductTerminal — продукт уже в финальном статусе.
	ErrProductTerminal = errors.New("product is in terminal status")

	// ErrUnknownPoint — точка не входит в топологию фабрики.
	ErrUnknownPoint = errors.New("unknown factory point")
)
