package api

import (
	"slices"
	"time"

	"github.com/shaiso/Factoria/internal/directory"
	"github.com/shaiso/Factoria/internal/domain"
)

// Order DTOs

// OrderSummary — заказ в списке.
type OrderSummary struct {
	OrderID        string             `json:"order_id"`
	Status         domain.OrderStatus `json:"status"`
	Products       int                `json:"products"`
	CompletionRate float64            `json:"completion_rate"`
	Lines          []string           `json:"lines"`
	CreatedAt      time.Time          `json:"created_at"`
	Deadline       *time.Time         `json:"deadline,omitempty"`
	Overdue        bool               `json:"overdue"`
}

// OrderSummaryFromDomain конвертирует domain.Order в OrderSummary.
func OrderSummaryFromDomain(o *domain.Order, now time.Time) OrderSummary {
	lines := make([]string, 0, len(o.LineAssignments))
	for line, ids := range o.LineAssignments {
		if len(ids) > 0 {
			lines = append(lines, line)
		}
	}
	slices.Sort(lines)

	return OrderSummary{
		OrderID:        o.ID,
		Status:         o.Status,
		Products:       len(o.Products),
		CompletionRate: o.CompletionRate(),
		Lines:          lines,
		CreatedAt:      o.CreatedAt,
		Deadline:       o.Deadline,
		Overdue:        o.IsOverdue(now),
	}
}

// ProductResponse — продукт заказа.
type ProductResponse struct {
	ProductID       string                `json:"product_id"`
	Class           domain.ProductClass   `json:"product_class"`
	Status          domain.ProductStatus  `json:"status"`
	CurrentLocation string                `json:"current_location"`
	AssignedVehicle string                `json:"assigned_vehicle,omitempty"`
	NextStep        domain.Step           `json:"next_step"`
	Line            string                `json:"line,omitempty"`
	History         []domain.HistoryEntry `json:"history"`
}

// OrderResponse — заказ с продуктами.
type OrderResponse struct {
	OrderSummary
	ProductsDetail []ProductResponse `json:"products_detail"`
}

// OrderFromDomain конвертирует domain.Order в OrderResponse.
func OrderFromDomain(o *domain.Order, now time.Time) OrderResponse {
	resp := OrderResponse{
		OrderSummary:   OrderSummaryFromDomain(o, now),
		ProductsDetail: make([]ProductResponse, 0, len(o.Products)),
	}
	for _, p := range o.Products {
		line, _ := o.LineOf(p.ID)
		resp.ProductsDetail = append(resp.ProductsDetail, ProductResponse{
			ProductID:       p.ID,
			Class:           p.Class,
			Status:          p.Status,
			CurrentLocation: p.CurrentLocation,
			AssignedVehicle: p.AssignedVehicle,
			NextStep:        p.NextStep(),
			Line:            line,
			History:         p.History,
		})
	}
	return resp
}

// SubmitOrderResponse — ответ на приём заказа.
type SubmitOrderResponse struct {
	OrderID string `json:"order_id"`

	// Published — заказ отправлен на шину; линии назначат его сами.
	Published bool `json:"published"`

	// Order — назначенный заказ, если шины нет.
	Order *OrderResponse `json:"order,omitempty"`
}

// Line DTOs

// LineSummary — состояние командира линии.
type LineSummary struct {
	LineID       string   `json:"line_id"`
	Vehicles     []string `json:"vehicles"`
	QueuedEvents int      `json:"queued_events"`
	History      int      `json:"history"`
	Stopped      bool     `json:"stopped"`
}

// HistoryResponse — журнал команд и ответов линии.
type HistoryResponse struct {
	LineID    string                   `json:"line_id"`
	Source    string                   `json:"source"` // memory | store
	Commands  []domain.CommandRecord   `json:"commands"`
	Responses []domain.CommandResponse `json:"responses"`
}

// StatsResponse — сводная статистика.
type StatsResponse struct {
	Orders directory.Stats `json:"orders"`
	Lines  []LineSummary   `json:"lines"`
}
