package api

import (
	"net/http"
	"strconv"

	"github.com/shaiso/Factoria/internal/commander"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// ListLines возвращает командиров линий.
// GET /api/v1/lines
func (h *Handler) ListLines(w http.ResponseWriter, _ *http.Request) {
	lines := h.lineSummaries()
	List(w, lines, len(lines))
}

// GetSnapshot возвращает снимок состояния линии.
// GET /api/v1/lines/{line}/snapshot
func (h *Handler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	c, ok := h.line(w, r)
	if !ok {
		return
	}
	Success(w, c.Snapshot())
}

// GetHistory возвращает последние команды линии.
// GET /api/v1/lines/{line}/history?limit=...&source=memory|store
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	c, ok := h.line(w, r)
	if !ok {
		return
	}

	limit := defaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxHistoryLimit {
			BadRequest(w, "limit must be an integer in [1, 200]")
			return
		}
		limit = n
	}

	resp := HistoryResponse{
		LineID:    c.LineID(),
		Source:    "memory",
		Responses: c.History().Responses(limit),
	}

	switch r.URL.Query().Get("source") {
	case "", "memory":
		resp.Commands = c.History().Recent(limit)
	case "store":
		if h.store == nil {
			Unavailable(w, "persistent history is not configured")
			return
		}
		records, err := h.store.ListRecent(r.Context(), c.LineID(), limit)
		if HandleDirectoryError(w, h.logger, err) {
			return
		}
		resp.Source = "store"
		resp.Commands = records
	default:
		BadRequest(w, "source must be memory or store")
		return
	}

	Success(w, resp)
}

func (h *Handler) line(w http.ResponseWriter, r *http.Request) (*commander.Commander, bool) {
	id := r.PathValue("line")
	c, ok := h.fleet.Line(id)
	if !ok {
		NotFound(w, "line not found: "+id)
		return nil, false
	}
	return c, true
}

func (h *Handler) lineSummaries() []LineSummary {
	ids := h.fleet.Lines()
	result := make([]LineSummary, 0, len(ids))
	for _, id := range ids {
		c, _ := h.fleet.Line(id)
		result = append(result, LineSummary{
			LineID:       id,
			Vehicles:     c.Vehicles(),
			QueuedEvents: c.Queue().Len(),
			History:      c.History().Len(),
			Stopped:      c.IsStopped(),
		})
	}
	return result
}
