package api

import (
	"io"
	"net/http"

	"github.com/shaiso/Factoria/internal/directory"
	"github.com/shaiso/Factoria/internal/domain"
	"github.com/shaiso/Factoria/internal/telemetry"
)

const maxOrderBody = 1 << 20

// ListOrders возвращает заказы в порядке поступления.
// GET /api/v1/orders?status=...
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	status := domain.OrderStatus(r.URL.Query().Get("status"))
	now := h.now()

	orders := h.dir.Orders()
	result := make([]OrderSummary, 0, len(orders))
	for _, o := range orders {
		if status != "" && o.Status != status {
			continue
		}
		result = append(result, OrderSummaryFromDomain(o, now))
	}

	List(w, result, len(result))
}

// GetOrder возвращает заказ с продуктами.
// GET /api/v1/orders/{id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.dir.Order(r.PathValue("id"))
	if HandleDirectoryError(w, h.logger, err) {
		return
	}
	Success(w, OrderFromDomain(order, h.now()))
}

// SubmitOrder принимает заказ в формате топика {root}/orders/new.
// POST /api/v1/orders
//
// С шиной заказ публикуется, и линии назначают его сами (202).
// Без шины заказ сразу назначается каталогом (201).
func (h *Handler) SubmitOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxOrderBody))
	if err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	payload, err := directory.DecodeOrderPayload(body)
	if err == nil {
		err = h.dir.ValidatePayload(payload)
	}
	if HandleDirectoryError(w, h.logger, err) {
		return
	}
	logger := telemetry.WithOrderID(telemetry.FromContext(r.Context()), payload.OrderID)

	if h.submitter != nil {
		if err := h.submitter.PublishOrder(r.Context(), body); err != nil {
			logger.Error("failed to publish order", "error", err)
			Unavailable(w, "order bus unavailable")
			return
		}
		logger.Info("order submitted to bus")
		Accepted(w, SubmitOrderResponse{OrderID: payload.OrderID, Published: true})
		return
	}

	order, err := h.dir.ProcessOrder(payload, "")
	if HandleDirectoryError(w, h.logger, err) {
		return
	}
	logger.Info("order assigned directly", "lines", order.LineAssignments)

	resp := OrderFromDomain(order, h.now())
	Created(w, SubmitOrderResponse{OrderID: order.ID, Order: &resp})
}

// CancelOrder отменяет незавершённый заказ.
// POST /api/v1/orders/{id}/cancel
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.dir.CancelOrder(r.PathValue("id"))
	if HandleDirectoryError(w, h.logger, err) {
		return
	}
	Success(w, OrderFromDomain(order, h.now()))
}

// GetStats возвращает статистику заказов и линий.
// GET /api/v1/stats
func (h *Handler) GetStats(w http.ResponseWriter, _ *http.Request) {
	Success(w, StatsResponse{
		Orders: h.dir.Stats(),
		Lines:  h.lineSummaries(),
	})
}

