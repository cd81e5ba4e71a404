package directory

import "errors"

// Ошибки справочника заказов.
var (
	// ErrMalformedPayload — сообщение заказа не удалось разобрать.
	ErrMalformedPayload = errors.New("malformed order payload")

	// ErrMissingOrderID — в сообщении нет order_id.
	ErrMissingOrderID = errors.New("order payload missing order_id")

	// ErrInvalidItem — позиция заказа некорректна (не список, нет класса, плохое количество).
	ErrInvalidItem = errors.New("invalid order item")

	// ErrEmptyOrder — заказ не содержит ни одного продукта.
	ErrEmptyOrder = errors.New("order has no products")

	// ErrOrderNotFound — заказ не найден.
	ErrOrderNotFound = errors.New("order not found")

	// ErrProductNotFound — продукт не найден.
	ErrProductNotFound = errors.New("product not found")

	// ErrUnknownLine — линия не входит в ротацию.
	ErrUnknownLine = errors.New("unknown line")

	// ErrOrderTerminal — заказ уже завершён или отменён.
	ErrOrderTerminal = errors.New("order is already completed or cancelled")
)
