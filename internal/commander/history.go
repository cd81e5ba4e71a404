package commander

import (
	"context"
	"sync"

	"github.com/shaiso/Factoria/internal/domain"
)

// HistoryStore — постоянное хранилище истории команд.
type HistoryStore interface {
	SaveCommand(ctx context.Context, rec domain.CommandRecord) error
	SaveResponse(ctx context.Context, resp domain.CommandResponse) error
}

// History — ограниченный журнал команд и ответов линии.
//
// Хранит последние limit записей. ID вытесненных команд забываются
// вместе с записью.
type History struct {
	mu        sync.RWMutex
	limit     int
	commands  []domain.CommandRecord
	responses []domain.CommandResponse
	ids       map[string]struct{}
}

// NewHistory создаёт журнал на limit записей.
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &History{
		limit: limit,
		ids:   make(map[string]struct{}),
	}
}

// Record добавляет команду. Возвращает false, если ID уже в журнале.
func (h *History) Record(rec domain.CommandRecord) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := rec.Command.CommandID
	if _, dup := h.ids[id]; dup {
		return false
	}
	h.ids[id] = struct{}{}
	h.commands = append(h.commands, rec)

	if len(h.commands) > h.limit {
		evicted := len(h.commands) - h.limit
		for _, old := range h.commands[:evicted] {
			delete(h.ids, old.Command.CommandID)
		}
		h.commands = append([]domain.CommandRecord(nil), h.commands[evicted:]...)
	}
	return true
}

// Dispatched проверяет, была ли команда отправлена.
func (h *History) Dispatched(commandID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.ids[commandID]
	return ok
}

// Recent возвращает последние n команд (n <= 0 — все), от старых к новым.
func (h *History) Recent(n int) []domain.CommandRecord {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.commands
	if n > 0 && len(list) > n {
		list = list[len(list)-n:]
	}
	return append([]domain.CommandRecord{}, list...)
}

// RecordResponse добавляет ответ исполнителя.
func (h *History) RecordResponse(resp domain.CommandResponse) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.responses = append(h.responses, resp)
	if len(h.responses) > h.limit {
		h.responses = append([]domain.CommandResponse(nil), h.responses[len(h.responses)-h.limit:]...)
	}
}

// Responses возвращает последние n ответов (n <= 0 — все).
func (h *History) Responses(n int) []domain.CommandResponse {
	h.mu.RLock()
	defer h.mu.RUnlock()

	list := h.responses
	if n > 0 && len(list) > n {
		list = list[len(list)-n:]
	}
	return append([]domain.CommandResponse{}, list...)
}

// Len возвращает число команд в журнале.
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.commands)
}
