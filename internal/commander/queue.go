package commander

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/shaiso/Factoria/internal/domain"
)

// EventQueue — ограниченная очередь событий с приоритетом.
//
// Порядок: severity (critical первым), затем порядок поступления.
// TryPush не блокируется: при переполнении новое событие отбрасывается.
type EventQueue struct {
	mu       sync.Mutex
	items    eventHeap
	seq      uint64
	capacity int
	ready    chan struct{}
}

// NewEventQueue создаёт очередь вместимостью capacity.
func NewEventQueue(capacity int) *EventQueue {
	if capacity <= 0 {
		capacity = defaultQueueCapacity
	}
	return &EventQueue{
		capacity: capacity,
		ready:    make(chan struct{}, 1),
	}
}

// TryPush добавляет событие. Возвращает ErrQueueFull, если места нет.
func (q *EventQueue) TryPush(e domain.Event) error {
	q.mu.Lock()
	if len(q.items) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.seq++
	heap.Push(&q.items, queued{event: e, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return nil
}

// Pop ждёт событие не дольше timeout.
// Возвращает false по таймауту или отмене контекста.
func (q *EventQueue) Pop(ctx context.Context, timeout time.Duration) (domain.Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if e, ok := q.tryPop(); ok {
			return e, true
		}

		select {
		case <-q.ready:
		case <-timer.C:
			return domain.Event{}, false
		case <-ctx.Done():
			return domain.Event{}, false
		}
	}
}

func (q *EventQueue) tryPop() (domain.Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return domain.Event{}, false
	}
	item := heap.Pop(&q.items).(queued)
	return item.event, true
}

// Len возвращает число событий в очереди.
func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap возвращает вместимость очереди.
func (q *EventQueue) Cap() int {
	return q.capacity
}

type queued struct {
	event domain.Event
	seq   uint64
}

// eventHeap реализует heap.Interface.
type eventHeap []queued

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	ri, rj := h[i].event.Severity.Rank(), h[j].event.Severity.Rank()
	if ri != rj {
		return ri < rj
	}
	return h[i].seq < h[j].seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) { *h = append(*h, x.(queued)) }

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
