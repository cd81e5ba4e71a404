package domain

import (
	"time"
)

// Order — заказ, владеющий списком продуктов.
//
// Продукт принадлежит ровно одному заказу. Продукт может быть
// назначен не более чем на одну линию (LineAssignments).
type Order struct {
	// ID — уникальный идентификатор заказа.
	ID string `json:"order_id"`

	// Products — продукты заказа в порядке создания.
	Products []*Product `json:"products"`

	// Status — текущий статус заказа.
	Status OrderStatus `json:"status"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// Deadline — абсолютный срок (время создания + запрошенное смещение).
	Deadline *time.Time `json:"deadline,omitempty"`

	// LineAssignments — line_id → product_id.
	LineAssignments map[string][]string `json:"line_assignments"`
}

// NewOrder создаёт пустой заказ в статусе pending.
func NewOrder(id string, at time.Time) *Order {
	return &Order{
		ID:              id,
		Status:          OrderStatusPending,
		CreatedAt:       at,
		LineAssignments: make(map[string][]string),
	}
}

// AddProduct добавляет продукт в заказ.
func (o *Order) AddProduct(p *Product) {
	o.Products = append(o.Products, p)
}

// Product возвращает продукт заказа по ID.
func (o *Order) Product(id string) *Product {
	for _, p := range o.Products {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// PendingProducts возвращает продукты, которые ещё не в финальном статусе.
func (o *Order) PendingProducts() []*Product {
	var result []*Product
	for _, p := range o.Products {
		if !p.Status.IsTerminal() {
			result = append(result, p)
		}
	}
	return result
}

// LineOf возвращает линию, на которую назначен продукт.
func (o *Order) LineOf(productID string) (string, bool) {
	for line, ids := range o.LineAssignments {
		for _, id := range ids {
			if id == productID {
				return line, true
			}
		}
	}
	return "", false
}

// AssignProduct назначает продукт на линию.
//
// Повторное назначение на ту же линию ничего не делает.
// Продукт, уже назначенный на другую линию, не переназначается.
// Возвращает true, если назначение добавлено.
func (o *Order) AssignProduct(productID, lineID string) bool {
	if o.Product(productID) == nil {
		return false
	}
	if _, assigned := o.LineOf(productID); assigned {
		return false
	}
	if o.LineAssignments == nil {
		o.LineAssignments = make(map[string][]string)
	}
	o.LineAssignments[lineID] = append(o.LineAssignments[lineID], productID)
	return true
}

// ProductsForLine возвращает продукты, назначенные на линию.
func (o *Order) ProductsForLine(lineID string) []*Product {
	ids := o.LineAssignments[lineID]
	result := make([]*Product, 0, len(ids))
	for _, id := range ids {
		if p := o.Product(id); p != nil {
			result = append(result, p)
		}
	}
	return result
}

// AllTerminal проверяет, что все продукты в финальном статусе.
// Заказ без продуктов не считается завершённым.
func (o *Order) AllTerminal() bool {
	if len(o.Products) == 0 {
		return false
	}
	for _, p := range o.Products {
		if !p.Status.IsTerminal() {
			return false
		}
	}
	return true
}

// CompletionRate — доля доставленных продуктов.
func (o *Order) CompletionRate() float64 {
	if len(o.Products) == 0 {
		return 0
	}
	delivered := 0
	for _, p := range o.Products {
		if p.Status == ProductStatusDelivered {
			delivered++
		}
	}
	return float64(delivered) / float64(len(o.Products))
}

// IsOverdue проверяет, просрочен ли незавершённый заказ.
func (o *Order) IsOverdue(now time.Time) bool {
	if o.Deadline == nil || o.Status.IsTerminal() {
		return false
	}
	return now.After(*o.Deadline)
}

// Clone возвращает глубокую копию заказа вместе с продуктами.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	if o.Deadline != nil {
		t := *o.Deadline
		c.Deadline = &t
	}
	c.Products = make([]*Product, len(o.Products))
	for i, p := range o.Products {
		c.Products[i] = p.Clone()
	}
	c.LineAssignments = make(map[string][]string, len(o.LineAssignments))
	for line, ids := range o.LineAssignments {
		c.LineAssignments[line] = append([]string(nil), ids...)
	}
	return &c
}
