package commander

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Fleet объединяет командиров всех линий над общим каталогом заказов.
type Fleet struct {
	lines  map[string]*Commander
	order  []string
	logger *slog.Logger

	mu      sync.Mutex
	stopped bool
}

// NewFleet создаёт Fleet. Линии с повторяющимся ID отклоняются.
func NewFleet(logger *slog.Logger, commanders ...*Commander) (*Fleet, error) {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Fleet{
		lines:  make(map[string]*Commander, len(commanders)),
		logger: logger,
	}
	for _, c := range commanders {
		if _, dup := f.lines[c.LineID()]; dup {
			return nil, fmt.Errorf("duplicate line %q", c.LineID())
		}
		f.lines[c.LineID()] = c
		f.order = append(f.order, c.LineID())
	}
	return f, nil
}

// Start запускает все линии.
func (f *Fleet) Start(ctx context.Context) error {
	for _, id := range f.order {
		if err := f.lines[id].Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", id, err)
		}
	}
	f.logger.Info("fleet started", "lines", f.order)
	return nil
}

// Stop останавливает все линии параллельно. Повторный вызов ничего не делает.
func (f *Fleet) Stop() {
	f.mu.Lock()
	if f.stopped {
		f.mu.Unlock()
		return
	}
	f.stopped = true
	f.mu.Unlock()

	var wg sync.WaitGroup
	for _, c := range f.lines {
		wg.Add(1)
		go func(c *Commander) {
			defer wg.Done()
			c.Stop()
		}(c)
	}
	wg.Wait()

	f.logger.Info("fleet stopped")
}

// Line возвращает командира линии.
func (f *Fleet) Line(id string) (*Commander, bool) {
	c, ok := f.lines[id]
	return c, ok
}

// Lines возвращает ID линий в порядке конфигурации.
func (f *Fleet) Lines() []string {
	return append([]string(nil), f.order...)
}
