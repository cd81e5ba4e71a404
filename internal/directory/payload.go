package directory

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// OrderPayload — входящее сообщение заказа ({root}/orders/new).
type OrderPayload struct {
	// OrderID — идентификатор заказа.
	OrderID string `json:"order_id"`

	// Items — позиции заказа.
	Items []OrderItem `json:"items"`

	// Deadline — срок в секундах от момента создания.
	Deadline *float64 `json:"deadline,omitempty"`
}

// OrderItem — позиция заказа: класс и количество.
type OrderItem struct {
	Class    string `json:"class"`
	Quantity int    `json:"quantity"`
}

// rawPayload — сырые поля до валидации.
type rawPayload struct {
	OrderID  json.RawMessage `json:"order_id"`
	Items    json.RawMessage `json:"items"`
	Deadline json.RawMessage `json:"deadline"`
}

// rawItem — позиция в любом из трёх форматов источников.
type rawItem struct {
	Class        *string         `json:"class"`
	ProductClass *string         `json:"product_class"`
	ProductType  *string         `json:"product_type"`
	Quantity     json.RawMessage `json:"quantity"`
}

// DecodeOrderPayload разбирает и валидирует сообщение заказа.
//
// Отклоняет: не-JSON, отсутствие order_id, items не-список,
// позиции без класса или с неположительным количеством.
// Некорректный deadline игнорируется.
func DecodeOrderPayload(body []byte) (OrderPayload, error) {
	var raw rawPayload
	if err := json.Unmarshal(body, &raw); err != nil {
		return OrderPayload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	var p OrderPayload

	// 1. order_id: строка или число
	id, err := decodeOrderID(raw.OrderID)
	if err != nil {
		return OrderPayload{}, err
	}
	p.OrderID = id

	// 2. items: обязательно список
	items, err := decodeItems(raw.Items)
	if err != nil {
		return OrderPayload{}, err
	}
	p.Items = items

	// 3. deadline: число секунд
	if d, ok := decodeSeconds(raw.Deadline); ok {
		p.Deadline = &d
	}

	return p, nil
}

func decodeOrderID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", ErrMissingOrderID
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		s = strings.TrimSpace(s)
		if s == "" {
			return "", ErrMissingOrderID
		}
		return s, nil
	}

	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String(), nil
	}

	return "", fmt.Errorf("%w: order_id must be a string", ErrMalformedPayload)
}

func decodeItems(raw json.RawMessage) ([]OrderItem, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return nil, fmt.Errorf("%w: items must be a list", ErrInvalidItem)
	}

	var rawItems []json.RawMessage
	if err := json.Unmarshal(raw, &rawItems); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}

	items := make([]OrderItem, 0, len(rawItems))
	for i, ri := range rawItems {
		var it rawItem
		if err := json.Unmarshal(ri, &it); err != nil {
			return nil, fmt.Errorf("%w: item %d: %v", ErrInvalidItem, i, err)
		}

		class := firstNonEmpty(it.Class, it.ProductClass, it.ProductType)
		if class == "" {
			return nil, fmt.Errorf("%w: item %d: missing class", ErrInvalidItem, i)
		}

		qty := 1
		if q := bytes.TrimSpace(it.Quantity); len(q) > 0 && !bytes.Equal(q, []byte("null")) {
			var n int
			if err := json.Unmarshal(q, &n); err != nil {
				return nil, fmt.Errorf("%w: item %d: quantity must be an integer", ErrInvalidItem, i)
			}
			qty = n
		}
		if qty <= 0 {
			return nil, fmt.Errorf("%w: item %d: quantity must be positive", ErrInvalidItem, i)
		}

		items = append(items, OrderItem{Class: class, Quantity: qty})
	}

	return items, nil
}

func firstNonEmpty(values ...*string) string {
	for _, v := range values {
		if v != nil && strings.TrimSpace(*v) != "" {
			return strings.TrimSpace(*v)
		}
	}
	return ""
}

func decodeSeconds(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}

	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f, true
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if f, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err == nil {
			return f, true
		}
	}

	return 0, false
}

// validate проверяет payload, собранный вручную (не через DecodeOrderPayload).
func (p OrderPayload) validate() error {
	if strings.TrimSpace(p.OrderID) == "" {
		return ErrMissingOrderID
	}
	if p.Items == nil {
		return fmt.Errorf("%w: items must be a list", ErrInvalidItem)
	}
	total := 0
	for i, it := range p.Items {
		if strings.TrimSpace(it.Class) == "" {
			return fmt.Errorf("%w: item %d: missing class", ErrInvalidItem, i)
		}
		if it.Quantity <= 0 {
			return fmt.Errorf("%w: item %d: quantity must be positive", ErrInvalidItem, i)
		}
		total += it.Quantity
	}
	if total == 0 {
		return ErrEmptyOrder
	}
	return nil
}
