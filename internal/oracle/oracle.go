package oracle

import (
	"context"
	"errors"
	"time"

	"github.com/shaiso/Factoria/internal/domain"
	"github.com/shaiso/Factoria/internal/state"
)

// Ошибки оракула.
var (
	// ErrNoProposals — в ответе не найдено ни одной команды в JSON.
	ErrNoProposals = errors.New("no command proposals in oracle output")

	// ErrOracleUnavailable — оракул временно отключён после серии сбоев.
	ErrOracleUnavailable = errors.New("oracle unavailable")
)

// Mode — режим цикла решения.
type Mode string

const (
	ModePlanned  Mode = "planned"
	ModeReactive Mode = "reactive"
)

// Oracle предлагает команды для AGV по контексту линии.
type Oracle interface {
	Propose(ctx context.Context, c Context) ([]domain.Command, error)
}

// Func — адаптер функции к Oracle.
type Func func(ctx context.Context, c Context) ([]domain.Command, error)

// Propose реализует Oracle.
func (f Func) Propose(ctx context.Context, c Context) ([]domain.Command, error) {
	return f(ctx, c)
}

// Context — контекст решения для оракула.
type Context struct {
	Mode     Mode                   `json:"operation_type"`
	LineID   string                 `json:"line_id"`
	Now      time.Time              `json:"current_time"`
	Snapshot state.Snapshot         `json:"factory_state"`
	Orders   []OrderView            `json:"orders_to_process,omitempty"`
	Pending  []ProductView          `json:"products_needing_transport,omitempty"`
	Recent   []domain.CommandRecord `json:"recent_commands"`
	Trigger  *domain.Event          `json:"trigger_event,omitempty"`
	Vehicles []string               `json:"available_agvs"`

	// SecondPassVehicle — AGV с доступом к upper_buffer Conveyor_CQ.
	SecondPassVehicle string `json:"second_pass_vehicle,omitempty"`

	// MaxCommands — лимит команд за цикл (0 — без лимита).
	MaxCommands int `json:"max_commands,omitempty"`
}

// ProductView — продукт в том виде, в каком его видит оракул.
type ProductView struct {
	ProductID       string               `json:"product_id"`
	Class           domain.ProductClass  `json:"product_type"`
	Status          domain.ProductStatus `json:"status"`
	CurrentLocation string               `json:"current_location"`
	NextStep        domain.Step          `json:"next_step"`
	AssignedVehicle string               `json:"assigned_vehicle,omitempty"`
}

// NewProductView строит ProductView.
func NewProductView(p *domain.Product) ProductView {
	return ProductView{
		ProductID:       p.ID,
		Class:           p.Class,
		Status:          p.Status,
		CurrentLocation: p.CurrentLocation,
		NextStep:        p.NextStep(),
		AssignedVehicle: p.AssignedVehicle,
	}
}

// OrderView — заказ без истории продуктов.
type OrderView struct {
	OrderID  string             `json:"order_id"`
	Status   domain.OrderStatus `json:"status"`
	Deadline *time.Time         `json:"deadline,omitempty"`
	Products []ProductView      `json:"products"`
}

// NewOrderView строит OrderView по продуктам линии.
func NewOrderView(o *domain.Order, lineID string) OrderView {
	v := OrderView{
		OrderID:  o.ID,
		Status:   o.Status,
		Deadline: o.Deadline,
		Products: []ProductView{},
	}
	for _, p := range o.ProductsForLine(lineID) {
		v.Products = append(v.Products, NewProductView(p))
	}
	return v
}

// products индексирует все продукты контекста по ID.
func (c Context) products() map[string]ProductView {
	out := make(map[string]ProductView)
	for _, o := range c.Orders {
		for _, p := range o.Products {
			out[p.ProductID] = p
		}
	}
	for _, p := range c.Pending {
		out[p.ProductID] = p
	}
	return out
}
