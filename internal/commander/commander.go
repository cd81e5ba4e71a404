package commander

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Factoria/internal/directory"
	"github.com/shaiso/Factoria/internal/domain"
	"github.com/shaiso/Factoria/internal/oracle"
	"github.com/shaiso/Factoria/internal/state"
	"github.com/shaiso/Factoria/internal/telemetry"
)

// Default configuration values.
const (
	defaultPlannedInterval   = 8 * time.Second
	defaultReactiveTimeout   = 2 * time.Second
	defaultDeferDelay        = 1 * time.Second
	defaultOracleTimeout     = 90 * time.Second
	defaultQueueCapacity     = 100
	defaultHistoryLimit      = 200
	defaultMaxOrdersPerCycle = 2

	plannedRecentCommands  = 5
	reactiveRecentCommands = 3
	reactiveMaxCommands    = 3
	defaultStoreTimeout    = 5 * time.Second
	defaultStoreBuffer     = 256
)

// Directory — операции каталога заказов, которые использует командир.
type Directory interface {
	ProductDirectory
	ProcessOrder(p directory.OrderPayload, requestingLine string) (*domain.Order, error)
	OrdersForLine(lineID string, limit int) []*domain.Order
	ProductsNeedingTransport(lineID string) []*domain.Product
	ProductClass(productID string) (domain.ProductClass, bool)
}

// Source — источник телеметрии линии.
type Source interface {
	Subscribe(category state.Category, fn state.Listener) func()
	Snapshot() state.Snapshot
}

// Publisher публикует команды в топик линии.
type Publisher interface {
	PublishCommand(ctx context.Context, lineID string, cmd domain.Command) error
}

// Commander — конвейер решений одной линии.
//
// Commander:
//   - Классифицирует телеметрию в события и кладёт их в очередь
//   - Раз в PlannedInterval запускает плановый цикл
//   - Обрабатывает события реактивным циклом
//   - Проверяет и отправляет команды оракула
//   - Ведёт журнал команд и ответов
//
// Пока идёт плановый цикл, реактивный откладывает события.
type Commander struct {
	lineID     string
	vehicles   []string
	secondPass string

	// Dependencies
	dir       Directory
	source    Source
	oracle    oracle.Oracle
	publisher Publisher
	writer    *storeWriter

	validator *Validator
	queue     *EventQueue
	history   *History
	tracker   *Tracker

	// Configuration
	plannedInterval time.Duration
	reactiveTimeout time.Duration
	deferDelay      time.Duration
	oracleTimeout   time.Duration
	maxOrders       int

	planning    atomic.Bool
	unsubscribe []func()

	// Lifecycle
	logger     *slog.Logger
	now        func() time.Time
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
	started    bool
	stopped    bool
	stoppedMu  sync.RWMutex
}

// Config — конфигурация Commander.
type Config struct {
	LineID string

	// Vehicles — AGV линии; команды для других отбрасываются.
	Vehicles []string

	// SecondPassVehicle — AGV для второго прохода класса C.
	SecondPassVehicle string

	// Dependencies
	Directory Directory
	Source    Source
	Oracle    oracle.Oracle
	Publisher Publisher
	Store     HistoryStore // опционально

	// Loop configuration
	PlannedInterval time.Duration // интервал планового цикла (default: 8s)
	ReactiveTimeout time.Duration // ожидание события (default: 2s)
	DeferDelay      time.Duration // пауза перед повторной постановкой (default: 1s)
	OracleTimeout   time.Duration // таймаут вызова оракула (default: 90s)

	QueueCapacity     int // вместимость очереди событий (default: 100)
	HistoryLimit      int // размер журнала команд (default: 200)
	MaxOrdersPerCycle int // заказов в плановом контексте (default: 2)

	StoreTimeout time.Duration // таймаут записи в Store (default: 5s)
	StoreBuffer  int           // буфер записей в Store (default: 256)

	// Logger
	Logger *slog.Logger

	// Clock (default: time.Now)
	Clock func() time.Time
}

// New создаёт Commander и подписывает его на телеметрию линии.
func New(cfg Config) *Commander {
	plannedInterval := cfg.PlannedInterval
	if plannedInterval <= 0 {
		plannedInterval = defaultPlannedInterval
	}

	reactiveTimeout := cfg.ReactiveTimeout
	if reactiveTimeout <= 0 {
		reactiveTimeout = defaultReactiveTimeout
	}

	deferDelay := cfg.DeferDelay
	if deferDelay <= 0 {
		deferDelay = defaultDeferDelay
	}

	oracleTimeout := cfg.OracleTimeout
	if oracleTimeout <= 0 {
		oracleTimeout = defaultOracleTimeout
	}

	maxOrders := cfg.MaxOrdersPerCycle
	if maxOrders <= 0 {
		maxOrders = defaultMaxOrdersPerCycle
	}

	storeTimeout := cfg.StoreTimeout
	if storeTimeout <= 0 {
		storeTimeout = defaultStoreTimeout
	}

	storeBuffer := cfg.StoreBuffer
	if storeBuffer <= 0 {
		storeBuffer = defaultStoreBuffer
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = telemetry.WithLineID(logger, cfg.LineID)

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	validator := NewValidator(cfg.Vehicles)

	c := &Commander{
		lineID:          cfg.LineID,
		vehicles:        validator.Vehicles(),
		secondPass:      cfg.SecondPassVehicle,
		dir:             cfg.Directory,
		source:          cfg.Source,
		oracle:          cfg.Oracle,
		publisher:       cfg.Publisher,
		validator:       validator,
		queue:           NewEventQueue(cfg.QueueCapacity),
		history:         NewHistory(cfg.HistoryLimit),
		tracker:         NewTracker(cfg.Directory, logger),
		plannedInterval: plannedInterval,
		reactiveTimeout: reactiveTimeout,
		deferDelay:      deferDelay,
		oracleTimeout:   oracleTimeout,
		maxOrders:       maxOrders,
		logger:          logger,
		now:             now,
	}
	if cfg.Store != nil {
		c.writer = newStoreWriter(cfg.Store, cfg.LineID, storeBuffer, storeTimeout, logger)
	}

	for _, cat := range []state.Category{
		state.CategoryStation, state.CategoryAGV, state.CategoryConveyor, state.CategoryWarehouse,
		state.CategoryAlert,
	} {
		c.unsubscribe = append(c.unsubscribe, c.source.Subscribe(cat, c.handleTelemetry))
	}
	c.unsubscribe = append(c.unsubscribe,
		c.source.Subscribe(state.CategoryOrder, c.handleOrder),
		c.source.Subscribe(state.CategoryResponse, c.handleResponse),
	)

	return c
}

// LineID возвращает линию командира.
func (c *Commander) LineID() string { return c.lineID }

// Vehicles возвращает AGV линии.
func (c *Commander) Vehicles() []string { return append([]string(nil), c.vehicles...) }

// Queue возвращает очередь событий.
func (c *Commander) Queue() *EventQueue { return c.queue }

// History возвращает журнал команд.
func (c *Commander) History() *History { return c.history }

// Snapshot возвращает снимок состояния линии.
func (c *Commander) Snapshot() state.Snapshot { return c.source.Snapshot() }

// Start запускает плановый и реактивный циклы.
// Повторный вызов ничего не делает.
func (c *Commander) Start(ctx context.Context) error {
	c.stoppedMu.Lock()
	if c.stopped {
		c.stoppedMu.Unlock()
		return ErrCommanderStopped
	}
	if c.started {
		c.stoppedMu.Unlock()
		return nil
	}
	c.started = true
	ctx, cancel := context.WithCancel(ctx)
	c.cancelFunc = cancel
	c.stoppedMu.Unlock()

	c.logger.Info("starting line commander",
		"vehicles", c.vehicles,
		"planned_interval", c.plannedInterval,
		"reactive_timeout", c.reactiveTimeout,
		"queue_capacity", c.queue.Cap(),
	)

	if c.writer != nil {
		c.writer.Start()
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.plannedLoop(ctx)
	}()
	go func() {
		defer c.wg.Done()
		c.reactiveLoop(ctx)
	}()

	return nil
}

// Stop останавливает циклы и отписывается от телеметрии.
//
// Идущий вызов оракула не прерывается: Stop дожидается его,
// а результат отбрасывается. Повторный вызов ничего не делает.
func (c *Commander) Stop() {
	c.stoppedMu.Lock()
	if c.stopped {
		c.stoppedMu.Unlock()
		return
	}
	c.stopped = true
	cancel := c.cancelFunc
	c.stoppedMu.Unlock()

	c.logger.Info("stopping line commander...")

	for _, unsubscribe := range c.unsubscribe {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}

	c.wg.Wait()

	if c.writer != nil {
		c.writer.Close()
	}

	c.logger.Info("line commander stopped",
		"queued_events", c.queue.Len(),
		"history", c.history.Len(),
	)
}

// IsStopped проверяет, остановлен ли Commander.
func (c *Commander) IsStopped() bool {
	c.stoppedMu.RLock()
	defer c.stoppedMu.RUnlock()
	return c.stopped
}

// --- Подписчики телеметрии ---

func (c *Commander) handleTelemetry(u state.Update) error {
	c.tracker.Observe(u)
	c.Enqueue(Classify(c.lineID, u, c.dir.ProductClass, c.now())...)
	return nil
}

func (c *Commander) handleOrder(u state.Update) error {
	msg, ok := u.Record.(state.OrderMessage)
	if !ok {
		return fmt.Errorf("unexpected order record %T", u.Record)
	}

	payload, err := directory.DecodeOrderPayload(msg.Body)
	if err != nil {
		return fmt.Errorf("decode order: %w", err)
	}

	order, err := c.dir.ProcessOrder(payload, c.lineID)
	if err != nil {
		return fmt.Errorf("process order: %w", err)
	}

	// Реагирует только линия, получившая продукты заказа.
	if len(order.LineAssignments[c.lineID]) == 0 {
		return nil
	}

	events := Classify(c.lineID, u, c.dir.ProductClass, c.now())
	for i := range events {
		events[i].Details = map[string]any{
			"order_id": order.ID,
			"products": order.LineAssignments[c.lineID],
		}
	}
	c.Enqueue(events...)
	return nil
}

func (c *Commander) handleResponse(u state.Update) error {
	rec, ok := u.Record.(state.ResponseRecord)
	if !ok {
		return fmt.Errorf("unexpected response record %T", u.Record)
	}

	resp := domain.CommandResponse{
		LineID:     c.lineID,
		CommandID:  rec.CommandID,
		Response:   rec.Response,
		ReceivedAt: rec.ReceivedAt,
	}
	c.history.RecordResponse(resp)

	// В хранилище ответ уходит через буфер writer.
	if c.writer != nil {
		if err := c.writer.Submit(persistJob{response: &resp}); err != nil {
			return fmt.Errorf("save response: %w", err)
		}
	}
	return nil
}

// Enqueue ставит события в очередь без блокировки.
// При переполнении событие отбрасывается и логируется.
func (c *Commander) Enqueue(events ...domain.Event) {
	for _, ev := range events {
		telemetry.EventsClassified.WithLabelValues(c.lineID, string(ev.Kind), string(ev.Severity)).Inc()

		if err := c.queue.TryPush(ev); err != nil {
			telemetry.EventsDropped.WithLabelValues(c.lineID, string(ev.Kind)).Inc()
			c.logger.Warn("event dropped",
				"event_id", ev.ID,
				"kind", ev.Kind,
				"severity", ev.Severity,
				"queue_len", c.queue.Len(),
				"error", err,
			)
			continue
		}

		c.logger.Debug("event queued",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"severity", ev.Severity,
			"device_id", ev.DeviceID,
		)
	}
	telemetry.EventQueueDepth.WithLabelValues(c.lineID).Set(float64(c.queue.Len()))
}

// --- Циклы ---

// plannedLoop запускает плановый цикл по тикеру.
func (c *Commander) plannedLoop(ctx context.Context) {
	ticker := time.NewTicker(c.plannedInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.runPlanned(ctx)
		}
	}
}

// reactiveLoop ждёт события с таймаутом; таймаут — проверка остановки.
func (c *Commander) reactiveLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		ev, ok := c.queue.Pop(ctx, c.reactiveTimeout)
		if !ok {
			continue
		}
		telemetry.EventQueueDepth.WithLabelValues(c.lineID).Set(float64(c.queue.Len()))

		if c.planning.Load() {
			c.deferEvent(ctx, ev)
			continue
		}

		c.runReactive(ctx, ev)
	}
}

// deferEvent возвращает событие в очередь после паузы.
func (c *Commander) deferEvent(ctx context.Context, ev domain.Event) {
	select {
	case <-ctx.Done():
		return
	case <-time.After(c.deferDelay):
	}

	ev.Attempts++
	if err := c.queue.TryPush(ev); err != nil {
		telemetry.EventsDropped.WithLabelValues(c.lineID, string(ev.Kind)).Inc()
		c.logger.Warn("deferred event dropped",
			"event_id", ev.ID,
			"kind", ev.Kind,
			"severity", ev.Severity,
			"attempts", ev.Attempts,
			"error", err,
		)
		return
	}
	c.logger.Debug("event deferred during planned cycle",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"attempts", ev.Attempts,
	)
}

// runPlanned выполняет один плановый цикл. Ошибки только логируются.
func (c *Commander) runPlanned(ctx context.Context) {
	if !c.planning.CompareAndSwap(false, true) {
		return
	}
	defer c.planning.Store(false)

	start := time.Now()
	defer func() {
		telemetry.CycleDuration.WithLabelValues(c.lineID, string(oracle.ModePlanned)).Observe(time.Since(start).Seconds())
	}()

	oc := c.plannedContext()
	c.logger.Debug("planned cycle",
		"orders", len(oc.Orders),
		"pending_products", len(oc.Pending),
	)

	c.decide(ctx, oc)
}

// runReactive обрабатывает одно событие.
func (c *Commander) runReactive(ctx context.Context, ev domain.Event) {
	start := time.Now()
	defer func() {
		telemetry.CycleDuration.WithLabelValues(c.lineID, string(oracle.ModeReactive)).Observe(time.Since(start).Seconds())
	}()

	c.logger.Info("reactive cycle",
		"event_id", ev.ID,
		"kind", ev.Kind,
		"severity", ev.Severity,
		"device_id", ev.DeviceID,
	)

	c.decide(ctx, c.reactiveContext(ev))
}

// decide вызывает оракул, фильтрует и отправляет команды.
func (c *Commander) decide(ctx context.Context, oc oracle.Context) []domain.Command {
	cmds, err := c.propose(ctx, oc)
	if err != nil {
		c.logger.Error("oracle failed, no commands this cycle",
			"mode", oc.Mode,
			"error", err,
		)
		return nil
	}

	if c.IsStopped() {
		c.logger.Info("discarding oracle result after stop",
			"mode", oc.Mode,
			"commands", len(cmds),
		)
		return nil
	}

	accepted, rejected := c.validator.Filter(cmds)
	for _, err := range rejected {
		telemetry.CommandsRejected.WithLabelValues(c.lineID, rejectReason(err)).Inc()
		c.logger.Warn("command rejected", "mode", oc.Mode, "error", err)
	}

	return c.Dispatch(ctx, oc.Mode, accepted)
}

// propose вызывает оракул. Отмена ctx не прерывает идущий вызов.
func (c *Commander) propose(ctx context.Context, oc oracle.Context) (cmds []domain.Command, err error) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.oracleTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("oracle panic: %v", r)
			c.logger.Error("oracle panic recovered", "error", r, "stack", string(debug.Stack()))
		}
		result := "ok"
		if err != nil {
			result = "error"
		}
		telemetry.OracleRequests.WithLabelValues(c.lineID, string(oc.Mode), result).Inc()
	}()

	return c.oracle.Propose(callCtx, oc)
}

// Dispatch отправляет проверенные команды.
//
// Команде без ID назначается UUID. Команда с уже отправленным ID
// пропускается. Каждая команда попадает в журнал и публикуется один раз.
// Возвращает отправленные команды.
func (c *Commander) Dispatch(ctx context.Context, mode oracle.Mode, cmds []domain.Command) []domain.Command {
	var dispatched []domain.Command

	for _, cmd := range cmds {
		if cmd.CommandID == "" {
			cmd.CommandID = uuid.NewString()
		}
		logger := telemetry.WithCommandID(c.logger, cmd.CommandID)

		rec := domain.CommandRecord{
			LineID:       c.lineID,
			Command:      cmd,
			Mode:         string(mode),
			DispatchedAt: c.now(),
		}
		if !c.history.Record(rec) {
			telemetry.CommandsRejected.WithLabelValues(c.lineID, rejectReason(ErrDuplicateCommand)).Inc()
			logger.Info("command skipped",
				"mode", mode,
				"action", cmd.Action,
				"target", cmd.Target,
				"error", ErrDuplicateCommand,
			)
			continue
		}

		if err := c.publisher.PublishCommand(ctx, c.lineID, cmd); err != nil {
			logger.Error("failed to publish command",
				"action", cmd.Action,
				"target", cmd.Target,
				"error", err,
			)
			continue
		}
		telemetry.CommandsDispatched.WithLabelValues(c.lineID, string(mode), string(cmd.Action)).Inc()

		logger.Info("command dispatched",
			"mode", mode,
			"action", cmd.Action,
			"target", cmd.Target,
			"target_point", cmd.Params.TargetPoint,
			"product_id", cmd.Params.ProductID,
			"reasoning", cmd.Reasoning,
		)

		if cmd.Action == domain.ActionLoad && cmd.Params.ProductID != "" {
			err := c.dir.AssignVehicle(cmd.Params.ProductID, cmd.Target)
			if err != nil && !errors.Is(err, directory.ErrProductNotFound) {
				logger.Warn("failed to assign vehicle", "product_id", cmd.Params.ProductID, "error", err)
			}
		}

		if c.writer != nil {
			record := rec
			if err := c.writer.Submit(persistJob{command: &record}); err != nil {
				logger.Warn("failed to persist command", "error", err)
			}
		}

		dispatched = append(dispatched, cmd)
	}

	return dispatched
}

// --- Контекст оракула ---

func (c *Commander) plannedContext() oracle.Context {
	orders := c.dir.OrdersForLine(c.lineID, c.maxOrders)
	views := make([]oracle.OrderView, 0, len(orders))
	for _, o := range orders {
		views = append(views, oracle.NewOrderView(o, c.lineID))
	}

	return oracle.Context{
		Mode:              oracle.ModePlanned,
		LineID:            c.lineID,
		Now:               c.now(),
		Snapshot:          c.source.Snapshot(),
		Orders:            views,
		Pending:           c.pendingViews(),
		Recent:            c.history.Recent(plannedRecentCommands),
		Vehicles:          c.Vehicles(),
		SecondPassVehicle: c.secondPass,
	}
}

func (c *Commander) reactiveContext(ev domain.Event) oracle.Context {
	oc := c.plannedContext()
	oc.Mode = oracle.ModeReactive
	oc.Trigger = &ev
	oc.Recent = c.history.Recent(reactiveRecentCommands)
	oc.MaxCommands = reactiveMaxCommands
	return oc
}

func (c *Commander) pendingViews() []oracle.ProductView {
	products := c.dir.ProductsNeedingTransport(c.lineID)
	views := make([]oracle.ProductView, 0, len(products))
	for _, p := range products {
		views = append(views, oracle.NewProductView(p))
	}
	return views
}
