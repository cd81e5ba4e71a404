package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/shaiso/Factoria/internal/directory"
	"github.com/shaiso/Factoria/internal/domain"
	"github.com/shaiso/Factoria/internal/telemetry"
)

const defaultSchedule = "@every 5s"

// Directory — операции каталога, которые обслуживает Sweeper.
type Directory interface {
	MarkCompletedOrders() []string
	OverdueOrders(now time.Time) []*domain.Order
	Stats() directory.Stats
}

// TickResult — итог одного прохода.
type TickResult struct {
	Completed []string
	Overdue   []string
}

// Sweeper — периодический обход каталога заказов.
type Sweeper struct {
	dir      Directory
	schedule cron.Schedule
	spec     string
	logger   *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	reported map[string]struct{} // уже залогированные просроченные заказы

	cron *cron.Cron
}

// Config — конфигурация Sweeper.
type Config struct {
	Directory Directory

	// Schedule — cron-выражение или дескриптор (default: @every 5s).
	Schedule string

	Logger *slog.Logger

	// Clock (default: time.Now)
	Clock func() time.Time
}

// New создаёт Sweeper. Некорректное расписание — ошибка.
func New(cfg Config) (*Sweeper, error) {
	spec := cfg.Schedule
	if spec == "" {
		spec = defaultSchedule
	}

	schedule, err := ParseSchedule(spec)
	if err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Sweeper{
		dir:      cfg.Directory,
		schedule: schedule,
		spec:     spec,
		logger:   logger,
		now:      now,
		reported: make(map[string]struct{}),
	}, nil
}

// Start запускает обход по расписанию.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return
	}

	s.cron = cron.New(cron.WithParser(cronParser))
	s.cron.Schedule(s.schedule, cron.FuncJob(func() { s.Tick(context.Background()) }))
	s.cron.Start()

	s.logger.Info("sweeper started", "schedule", s.spec)
}

// Stop останавливает расписание и ждёт текущий проход.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("sweeper stopped")
}

// Tick выполняет один проход.
//
// 1. Завершает заказы, все продукты которых финальны
// 2. Логирует новые просроченные заказы
// 3. Обновляет метрики
func (s *Sweeper) Tick(ctx context.Context) TickResult {
	var result TickResult
	if ctx.Err() != nil {
		return result
	}

	// 1. Завершение
	result.Completed = s.dir.MarkCompletedOrders()
	for _, id := range result.Completed {
		telemetry.OrdersCompleted.Inc()
		s.logger.Info("order completed", "order_id", id)
	}

	// 2. Просрочка
	overdue := s.dir.OverdueOrders(s.now())
	s.mu.Lock()
	current := make(map[string]struct{}, len(overdue))
	for _, o := range overdue {
		result.Overdue = append(result.Overdue, o.ID)
		current[o.ID] = struct{}{}
		if _, seen := s.reported[o.ID]; seen {
			continue
		}
		s.logger.Warn("order overdue",
			"order_id", o.ID,
			"deadline", o.Deadline,
			"completion_rate", o.CompletionRate(),
		)
	}
	s.reported = current
	s.mu.Unlock()

	// 3. Метрики
	stats := s.dir.Stats()
	telemetry.OrdersActive.Set(float64(stats.ActiveOrders))
	telemetry.OrdersOverdue.Set(float64(len(overdue)))
	telemetry.ProductsDelivered.Set(float64(stats.DeliveredProducts))

	if len(result.Completed) > 0 || len(overdue) > 0 {
		s.logger.Debug("sweeper tick completed",
			"completed", len(result.Completed),
			"overdue", len(overdue),
			"active", stats.ActiveOrders,
		)
	}

	return result
}
