package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)

	// Orders
	mux.Handle("GET /api/v1/orders", chain(http.HandlerFunc(h.ListOrders)))
	mux.Handle("POST /api/v1/orders", chain(http.HandlerFunc(h.SubmitOrder)))
	mux.Handle("GET /api/v1/orders/{id}", chain(http.HandlerFunc(h.GetOrder)))
	mux.Handle("POST /api/v1/orders/{id}/cancel", chain(http.HandlerFunc(h.CancelOrder)))

	// Lines
	mux.Handle("GET /api/v1/lines", chain(http.HandlerFunc(h.ListLines)))
	mux.Handle("GET /api/v1/lines/{line}/snapshot", chain(http.HandlerFunc(h.GetSnapshot)))
	mux.Handle("GET /api/v1/lines/{line}/history", chain(http.HandlerFunc(h.GetHistory)))

	// Stats
	mux.Handle("GET /api/v1/stats", chain(http.HandlerFunc(h.GetStats)))
}
