package domain

import (
	"fmt"
	"strings"
	"time"
)

// ProductClass — класс продукта, определяющий количество проходов.
type ProductClass string

const (
	// ProductClassA — однопроходный продукт.
	ProductClassA ProductClass = "A"

	// ProductClassB — однопроходный продукт.
	ProductClassB ProductClass = "B"

	// ProductClassC — двухпроходный продукт (station_2 и station_3 повторяются).
	ProductClassC ProductClass = "C"
)

// IsDoublePass возвращает true для классов со вторым проходом.
func (c ProductClass) IsDoublePass() bool {
	return c == ProductClassC
}

// ParseProductClass парсит класс продукта.
// Принимает как буквы A/B/C, так и имена симулятора P1/P2/P3.
// Для неизвестного значения возвращает (A, false).
func ParseProductClass(s string) (ProductClass, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "A", "P1":
		return ProductClassA, true
	case "B", "P2":
		return ProductClassB, true
	case "C", "P3":
		return ProductClassC, true
	default:
		return ProductClassA, false
	}
}

// ClassFromProductID угадывает класс по соглашению об идентификаторах:
// prod_{class}_... для собственных продуктов и prod_{1|2|3}_... для симулятора.
func ClassFromProductID(id string) (ProductClass, bool) {
	rest, ok := strings.CutPrefix(strings.ToLower(id), "prod_")
	if !ok {
		return "", false
	}
	tag, _, _ := strings.Cut(rest, "_")
	switch tag {
	case "a", "p1", "1":
		return ProductClassA, true
	case "b", "p2", "2":
		return ProductClassB, true
	case "c", "p3", "3":
		return ProductClassC, true
	}
	// prod_3abc123 без разделителя
	switch {
	case strings.HasPrefix(rest, "3"):
		return ProductClassC, true
	case strings.HasPrefix(rest, "2"):
		return ProductClassB, true
	case strings.HasPrefix(rest, "1"):
		return ProductClassA, true
	}
	return "", false
}

// Действия в истории продукта.
const (
	ActionOrderReceived      = "order_received"
	ActionArrived            = "arrived"
	ActionDelivered          = "delivered"
	ActionQualityCheckFailed = "quality_check_failed"
	ActionVehicleAssigned    = "vehicle_assigned"
	ActionVehicleReleased    = "vehicle_released"
)

// HistoryEntry — запись в истории продукта.
type HistoryEntry struct {
	Location  string        `json:"location"`
	Action    string        `json:"action"`
	Timestamp time.Time     `json:"timestamp"`
	Status    ProductStatus `json:"status"`
}

// Product — единица продукции в заказе.
//
// Статус меняется только через Transition, история растёт только добавлением.
// Конкурентный доступ сериализуется владельцем (Order Directory).
type Product struct {
	// ID — глобально уникальный идентификатор.
	ID string `json:"product_id"`

	// Class — класс продукта.
	Class ProductClass `json:"product_class"`

	// Status — текущий статус жизненного цикла.
	Status ProductStatus `json:"status"`

	// CurrentLocation — последнее известное местоположение.
	CurrentLocation string `json:"current_location"`

	// AssignedVehicle — AGV, который сейчас везёт продукт.
	AssignedVehicle string `json:"assigned_vehicle,omitempty"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// CompletedAt — время доставки, выставляется один раз.
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// History — журнал перемещений.
	History []HistoryEntry `json:"history"`
}

// NewProduct создаёт продукт в статусе pending на складе сырья.
func NewProduct(id string, class ProductClass, at time.Time) *Product {
	p := &Product{
		ID:              id,
		Class:           class,
		Status:          ProductStatusPending,
		CurrentLocation: LocationRawMaterial,
		CreatedAt:       at,
	}
	p.History = append(p.History, HistoryEntry{
		Location:  LocationRawMaterial,
		Action:    ActionOrderReceived,
		Timestamp: at,
		Status:    ProductStatusPending,
	})
	return p
}

// NextStep вычисляет следующий пункт маршрута.
// Чистая функция: не изменяет состояние, для финальных статусов возвращает StepNone.
func NextStep(class ProductClass, status ProductStatus, history []HistoryEntry) Step {
	switch status {
	case ProductStatusPending:
		return StepStation1
	case ProductStatusAtStation1:
		return StepStation2
	case ProductStatusAtStation2:
		// Оба прохода продолжаются на station_3, развилка происходит там.
		return StepStation3
	case ProductStatusAtStation3:
		if class.IsDoublePass() && countArrivals(history, ProductStatusAtStation3) < 2 {
			return StepStation2
		}
		return StepQualityCheck
	case ProductStatusAtQualityCheck:
		return StepWarehouse
	default:
		return StepNone
	}
}

// countArrivals считает прибытия в статус по истории.
func countArrivals(history []HistoryEntry, status ProductStatus) int {
	n := 0
	for _, h := range history {
		if h.Action == ActionArrived && h.Status == status {
			n++
		}
	}
	return n
}

// NextStep возвращает следующий пункт маршрута продукта.
func (p *Product) NextStep() Step {
	return NextStep(p.Class, p.Status, p.History)
}

// NextStatus возвращает статус, в который продукт перейдёт на следующем шаге.
func (p *Product) NextStatus() ProductStatus {
	return p.NextStep().Status()
}

// Visits возвращает количество прибытий в указанный статус.
func (p *Product) Visits(status ProductStatus) int {
	return countArrivals(p.History, status)
}

// CanTransition проверяет допустимость перехода.
func (p *Product) CanTransition(to ProductStatus) bool {
	if p.Status.IsTerminal() || !to.IsValid() {
		return false
	}
	if p.Status == ProductStatusAtQualityCheck && to == ProductStatusFailedQualityCheck {
		return true
	}
	return to == p.NextStatus()
}

// Transition переводит продукт в новый статус.
//
// Записывает ровно одну запись в историю. CompletedAt выставляется
// только при переходе в delivered.
func (p *Product) Transition(to ProductStatus, location string, at time.Time) error {
	if !p.CanTransition(to) {
		return fmt.Errorf("%w: %s %s → %s", ErrInvalidTransition, p.ID, p.Status, to)
	}

	action := ActionArrived
	switch to {
	case ProductStatusDelivered:
		action = ActionDelivered
	case ProductStatusFailedQualityCheck:
		action = ActionQualityCheckFailed
	}
	if location == "" {
		location = LocationForStatus(to)
	}

	p.Status = to
	p.CurrentLocation = location
	p.History = append(p.History, HistoryEntry{
		Location:  location,
		Action:    action,
		Timestamp: at,
		Status:    to,
	})

	if to == ProductStatusDelivered && p.CompletedAt == nil {
		t := at
		p.CompletedAt = &t
	}
	if to.IsTerminal() {
		p.AssignedVehicle = ""
	}

	return nil
}

// AssignVehicle закрепляет AGV за продуктом.
func (p *Product) AssignVehicle(vehicleID string, at time.Time) error {
	if p.Status.IsTerminal() {
		return fmt.Errorf("%w: %s is %s", ErrProductTerminal, p.ID, p.Status)
	}
	if p.AssignedVehicle == vehicleID {
		return nil
	}
	p.AssignedVehicle = vehicleID
	p.History = append(p.History, HistoryEntry{
		Location:  p.CurrentLocation,
		Action:    ActionVehicleAssigned,
		Timestamp: at,
		Status:    p.Status,
	})
	return nil
}

// ReleaseVehicle снимает AGV с продукта.
func (p *Product) ReleaseVehicle(at time.Time) {
	if p.AssignedVehicle == "" {
		return
	}
	p.AssignedVehicle = ""
	p.History = append(p.History, HistoryEntry{
		Location:  p.CurrentLocation,
		Action:    ActionVehicleReleased,
		Timestamp: at,
		Status:    p.Status,
	})
}

// Clone возвращает глубокую копию продукта.
func (p *Product) Clone() *Product {
	if p == nil {
		return nil
	}
	c := *p
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		c.CompletedAt = &t
	}
	c.History = make([]HistoryEntry, len(p.History))
	copy(c.History, p.History)
	return &c
}
