package commander

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shaiso/Factoria/internal/domain"
	"github.com/shaiso/Factoria/internal/telemetry"
)

// persistJob — одна запись для HistoryStore: команда или ответ.
type persistJob struct {
	command  *domain.CommandRecord
	response *domain.CommandResponse
}

func (j persistJob) kind() string {
	if j.command != nil {
		return "command"
	}
	return "response"
}

// storeWriter пишет историю в HistoryStore в отдельной горутине.
//
// Submit не блокируется: при заполненном буфере запись отбрасывается.
// Close дожидается записи буфера не дольше timeout, оставшееся отбрасывается.
type storeWriter struct {
	store   HistoryStore
	lineID  string
	timeout time.Duration
	logger  *slog.Logger

	jobs chan persistJob
	done chan struct{}

	mu      sync.Mutex
	running bool
	closed  bool

	ctx    context.Context
	cancel context.CancelFunc
}

func newStoreWriter(store HistoryStore, lineID string, capacity int, timeout time.Duration, logger *slog.Logger) *storeWriter {
	ctx, cancel := context.WithCancel(context.Background())
	return &storeWriter{
		store:   store,
		lineID:  lineID,
		timeout: timeout,
		logger:  logger,
		jobs:    make(chan persistJob, capacity),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start запускает горутину записи. Повторный вызов ничего не делает.
func (w *storeWriter) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running || w.closed {
		return
	}
	w.running = true
	go w.run()
}

// Submit ставит запись в буфер.
func (w *storeWriter) Submit(job persistJob) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrCommanderStopped
	}

	select {
	case w.jobs <- job:
		return nil
	default:
		telemetry.HistoryWritesDropped.WithLabelValues(w.lineID, job.kind()).Inc()
		w.logger.Warn("history write dropped",
			"kind", job.kind(),
			"buffer", cap(w.jobs),
			"error", ErrStoreBacklog,
		)
		return ErrStoreBacklog
	}
}

// Close закрывает буфер и ждёт записи оставшегося. Повторный вызов ничего не делает.
func (w *storeWriter) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.jobs)
	running := w.running
	w.running = true
	w.mu.Unlock()

	// Start не вызывался: буфер пишется здесь же.
	if !running {
		go w.run()
	}

	select {
	case <-w.done:
	case <-time.After(w.timeout):
		w.cancel()
		<-w.done
	}
	w.cancel()
}

func (w *storeWriter) run() {
	defer close(w.done)

	discarded := 0
	for job := range w.jobs {
		if w.ctx.Err() != nil {
			discarded++
			continue
		}
		w.write(job)
	}

	if discarded > 0 {
		telemetry.HistoryWritesDropped.WithLabelValues(w.lineID, "shutdown").Add(float64(discarded))
		w.logger.Warn("history writes discarded on shutdown", "count", discarded)
	}
}

func (w *storeWriter) write(job persistJob) {
	ctx, cancel := context.WithTimeout(w.ctx, w.timeout)
	defer cancel()

	var err error
	switch {
	case job.command != nil:
		err = w.store.SaveCommand(ctx, *job.command)
	case job.response != nil:
		err = w.store.SaveResponse(ctx, *job.response)
	}
	if err != nil {
		w.logger.Warn("failed to persist history", "kind", job.kind(), "error", err)
	}
}
