package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/shaiso/Factoria/internal/telemetry"
)

// Default configuration values.
const (
	defaultAlertLimit    = 50
	defaultResponseLimit = 50
)

// Ошибки агрегатора.
var (
	// ErrMalformedMessage — тело сообщения не удалось разобрать.
	ErrMalformedMessage = errors.New("malformed telemetry message")

	// ErrUnknownTopic — топик не относится к телеметрии.
	ErrUnknownTopic = errors.New("unknown telemetry topic")

	// ErrForeignLine — сообщение другой линии.
	ErrForeignLine = errors.New("telemetry for another line")
)

// Snapshot — снимок состояния линии.
type Snapshot struct {
	LineID     string                     `json:"line_id"`
	Stations   map[string]StationRecord   `json:"stations"`
	AGVs       map[string]AGVRecord       `json:"agvs"`
	Conveyors  map[string]ConveyorRecord  `json:"conveyors"`
	Warehouses map[string]WarehouseRecord `json:"warehouses"`
	Alerts     []AlertRecord              `json:"alerts"`
	Responses  []ResponseRecord           `json:"responses"`
	UpdatedAt  time.Time                  `json:"updated_at"`
}

func newSnapshot(lineID string) Snapshot {
	return Snapshot{
		LineID:     lineID,
		Stations:   make(map[string]StationRecord),
		AGVs:       make(map[string]AGVRecord),
		Conveyors:  make(map[string]ConveyorRecord),
		Warehouses: make(map[string]WarehouseRecord),
		Alerts:     []AlertRecord{},
		Responses:  []ResponseRecord{},
	}
}

// Clone возвращает глубокую копию снимка.
func (s Snapshot) Clone() Snapshot {
	c := newSnapshot(s.LineID)
	c.UpdatedAt = s.UpdatedAt
	for id, r := range s.Stations {
		c.Stations[id] = r.Clone()
	}
	for id, r := range s.AGVs {
		c.AGVs[id] = r.Clone()
	}
	for id, r := range s.Conveyors {
		c.Conveyors[id] = r.Clone()
	}
	for id, r := range s.Warehouses {
		c.Warehouses[id] = r.Clone()
	}
	for _, a := range s.Alerts {
		c.Alerts = append(c.Alerts, a.Clone())
	}
	for _, r := range s.Responses {
		c.Responses = append(c.Responses, r.Clone())
	}
	return c
}

// Update — типизированное обновление для подписчиков.
//
// Record — копия записи: StationRecord, AGVRecord, ConveyorRecord,
// WarehouseRecord, AlertRecord, OrderMessage или ResponseRecord.
type Update struct {
	Category Category
	DeviceID string
	Record   any
}

// Listener — подписчик на обновления категории.
type Listener func(Update) error

type listenerEntry struct {
	id int
	fn Listener
}

// Aggregator зеркалирует телеметрию одной линии.
//
// Aggregator:
//   - Декодирует и нормализует сообщения по категориям
//   - Хранит записи по ID устройства
//   - Рассылает обновления подписчикам
//
// Ошибка или паника одного подписчика не мешает остальным.
type Aggregator struct {
	lineID        string
	root          string
	alertLimit    int
	responseLimit int

	mu   sync.RWMutex
	snap Snapshot

	listenersMu sync.RWMutex
	listeners   map[Category][]listenerEntry
	nextID      int

	logger *slog.Logger
	now    func() time.Time
}

// Config — конфигурация Aggregator.
type Config struct {
	// LineID — линия, телеметрию которой собирает агрегатор.
	LineID string

	// TopicRoot — корень топиков (default: AgenticFactoria).
	TopicRoot string

	// AlertLimit — максимум хранимых тревог (default: 50).
	AlertLimit int

	// ResponseLimit — максимум хранимых ответов (default: 50).
	ResponseLimit int

	// Logger
	Logger *slog.Logger

	// Clock — источник времени (default: time.Now).
	Clock func() time.Time
}

// NewAggregator создаёт новый Aggregator.
func NewAggregator(cfg Config) *Aggregator {
	root := cfg.TopicRoot
	if root == "" {
		root = DefaultTopicRoot
	}

	alertLimit := cfg.AlertLimit
	if alertLimit <= 0 {
		alertLimit = defaultAlertLimit
	}

	responseLimit := cfg.ResponseLimit
	if responseLimit <= 0 {
		responseLimit = defaultResponseLimit
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	return &Aggregator{
		lineID:        cfg.LineID,
		root:          root,
		alertLimit:    alertLimit,
		responseLimit: responseLimit,
		snap:          newSnapshot(cfg.LineID),
		listeners:     make(map[Category][]listenerEntry),
		logger:        telemetry.WithLineID(logger, cfg.LineID),
		now:           now,
	}
}

// LineID возвращает линию агрегатора.
func (a *Aggregator) LineID() string {
	return a.lineID
}

// TopicRoot возвращает корень топиков.
func (a *Aggregator) TopicRoot() string {
	return a.root
}

// Subscribe регистрирует подписчика категории.
// Возвращает функцию отписки.
func (a *Aggregator) Subscribe(category Category, fn Listener) func() {
	a.listenersMu.Lock()
	defer a.listenersMu.Unlock()

	a.nextID++
	id := a.nextID
	a.listeners[category] = append(a.listeners[category], listenerEntry{id: id, fn: fn})

	return func() {
		a.listenersMu.Lock()
		defer a.listenersMu.Unlock()

		entries := a.listeners[category]
		for i, e := range entries {
			if e.id == id {
				a.listeners[category] = append(entries[:i:i], entries[i+1:]...)
				return
			}
		}
	}
}

// Ingest разбирает сообщение по топику и применяет его.
func (a *Aggregator) Ingest(topic string, body []byte) error {
	t, ok := ParseTopic(a.root, topic)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
	if t.LineID != "" && t.LineID != a.lineID {
		return fmt.Errorf("%w: %s", ErrForeignLine, topic)
	}

	switch t.Category {
	case CategoryStation:
		return a.IngestStation(t.DeviceID, body)
	case CategoryAGV:
		return a.IngestAGV(t.DeviceID, body)
	case CategoryConveyor:
		return a.IngestConveyor(t.DeviceID, body)
	case CategoryWarehouse:
		return a.IngestWarehouse(t.DeviceID, body)
	case CategoryAlert:
		return a.IngestAlert(body)
	case CategoryOrder:
		return a.IngestOrder(body)
	case CategoryResponse:
		return a.IngestResponse(body)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownTopic, topic)
	}
}

// IngestStation применяет статус станции.
func (a *Aggregator) IngestStation(id string, body []byte) error {
	rec, err := decodeStation(id, body, a.now())
	if err != nil {
		return a.malformed(CategoryStation, id, err)
	}

	a.mu.Lock()
	a.snap.Stations[id] = rec
	a.snap.UpdatedAt = rec.UpdatedAt
	a.mu.Unlock()

	a.logger.Debug("station status",
		"station_id", id,
		"status", rec.Status,
		"buffer", len(rec.Buffer),
		"output_buffer", len(rec.OutputBuffer),
	)

	a.notify(Update{Category: CategoryStation, DeviceID: id, Record: rec.Clone()})
	return nil
}

// IngestAGV применяет статус AGV.
func (a *Aggregator) IngestAGV(id string, body []byte) error {
	rec, err := decodeAGV(id, body, a.now())
	if err != nil {
		return a.malformed(CategoryAGV, id, err)
	}

	a.mu.Lock()
	a.snap.AGVs[id] = rec
	a.snap.UpdatedAt = rec.UpdatedAt
	a.mu.Unlock()

	a.logger.Debug("agv status",
		"agv_id", id,
		"status", rec.Status,
		"point", rec.CurrentPoint,
		"battery", rec.BatteryLevel,
		"payload", len(rec.Payload),
	)

	a.notify(Update{Category: CategoryAGV, DeviceID: id, Record: rec.Clone()})
	return nil
}

// IngestConveyor применяет статус конвейера.
func (a *Aggregator) IngestConveyor(id string, body []byte) error {
	rec, err := decodeConveyor(id, body, a.now())
	if err != nil {
		return a.malformed(CategoryConveyor, id, err)
	}

	a.mu.Lock()
	a.snap.Conveyors[id] = rec
	a.snap.UpdatedAt = rec.UpdatedAt
	a.mu.Unlock()

	a.logger.Debug("conveyor status",
		"conveyor_id", id,
		"status", rec.Status,
		"buffer", len(rec.Buffer),
		"upper_buffer", len(rec.UpperBuffer),
		"lower_buffer", len(rec.LowerBuffer),
	)

	a.notify(Update{Category: CategoryConveyor, DeviceID: id, Record: rec.Clone()})
	return nil
}

// IngestWarehouse применяет статус склада.
func (a *Aggregator) IngestWarehouse(id string, body []byte) error {
	rec, err := decodeWarehouse(id, body, a.now())
	if err != nil {
		return a.malformed(CategoryWarehouse, id, err)
	}

	a.mu.Lock()
	a.snap.Warehouses[id] = rec
	a.snap.UpdatedAt = rec.UpdatedAt
	a.mu.Unlock()

	a.logger.Debug("warehouse status", "warehouse_id", id, "buffer", len(rec.Buffer))

	a.notify(Update{Category: CategoryWarehouse, DeviceID: id, Record: rec.Clone()})
	return nil
}

// IngestAlert добавляет тревогу; старые вытесняются после лимита.
func (a *Aggregator) IngestAlert(body []byte) error {
	rec, err := decodeAlert(a.lineID, body, a.now())
	if err != nil {
		return a.malformed(CategoryAlert, "", err)
	}

	a.mu.Lock()
	a.snap.Alerts = appendBounded(a.snap.Alerts, rec, a.alertLimit)
	a.snap.UpdatedAt = rec.ReceivedAt
	a.mu.Unlock()

	a.logger.Warn("factory alert",
		"device_id", rec.DeviceID,
		"alert_type", rec.AlertType,
		"message", rec.Message,
	)

	a.notify(Update{Category: CategoryAlert, DeviceID: rec.DeviceID, Record: rec.Clone()})
	return nil
}

// IngestOrder рассылает сообщение о новом заказе.
// Заказ не хранится в снимке: им владеет Order Directory.
func (a *Aggregator) IngestOrder(body []byte) error {
	if !json.Valid(body) || !jsonObject(body) {
		return a.malformed(CategoryOrder, "", errors.New("order body is not a JSON object"))
	}

	msg := OrderMessage{
		Body:       append([]byte(nil), body...),
		ReceivedAt: a.now(),
	}

	a.logger.Info("new order message received")

	a.notify(Update{Category: CategoryOrder, Record: msg})
	return nil
}

// IngestResponse сохраняет ответ на команду.
func (a *Aggregator) IngestResponse(body []byte) error {
	rec, err := decodeResponse(a.lineID, body, a.now())
	if err != nil {
		return a.malformed(CategoryResponse, "", err)
	}

	a.mu.Lock()
	a.snap.Responses = appendBounded(a.snap.Responses, rec, a.responseLimit)
	a.mu.Unlock()

	a.logger.Info("command response",
		"command_id", rec.CommandID,
		"response", rec.Response,
	)

	a.notify(Update{Category: CategoryResponse, DeviceID: rec.CommandID, Record: rec.Clone()})
	return nil
}

// --- Чтение ---

// Snapshot возвращает глубокую копию снимка.
func (a *Aggregator) Snapshot() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.snap.Clone()
}

// Station возвращает запись станции.
func (a *Aggregator) Station(id string) (StationRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.snap.Stations[id]
	return r.Clone(), ok
}

// AGV возвращает запись AGV.
func (a *Aggregator) AGV(id string) (AGVRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.snap.AGVs[id]
	return r.Clone(), ok
}

// Conveyor возвращает запись конвейера.
func (a *Aggregator) Conveyor(id string) (ConveyorRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.snap.Conveyors[id]
	return r.Clone(), ok
}

// Warehouse возвращает запись склада.
func (a *Aggregator) Warehouse(id string) (WarehouseRecord, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	r, ok := a.snap.Warehouses[id]
	return r.Clone(), ok
}

// RecentAlerts возвращает последние n тревог (n <= 0 — все).
func (a *Aggregator) RecentAlerts(n int) []AlertRecord {
	a.mu.RLock()
	defer a.mu.RUnlock()

	alerts := a.snap.Alerts
	if n > 0 && len(alerts) > n {
		alerts = alerts[len(alerts)-n:]
	}
	out := make([]AlertRecord, len(alerts))
	for i, r := range alerts {
		out[i] = r.Clone()
	}
	return out
}

// --- Внутреннее ---

// notify вызывает подписчиков категории вне блокировки снимка.
func (a *Aggregator) notify(u Update) {
	telemetry.TelemetryMessages.WithLabelValues(a.lineID, string(u.Category)).Inc()

	a.listenersMu.RLock()
	entries := append([]listenerEntry(nil), a.listeners[u.Category]...)
	a.listenersMu.RUnlock()

	for _, e := range entries {
		a.callListener(e.fn, u)
	}
}

func (a *Aggregator) callListener(fn Listener, u Update) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.ListenerErrors.WithLabelValues(a.lineID, string(u.Category)).Inc()
			a.logger.Error("listener panic recovered",
				"category", u.Category,
				"device_id", u.DeviceID,
				"error", r,
				"stack", string(debug.Stack()),
			)
		}
	}()

	if err := fn(u); err != nil {
		telemetry.ListenerErrors.WithLabelValues(a.lineID, string(u.Category)).Inc()
		a.logger.Error("listener failed",
			"category", u.Category,
			"device_id", u.DeviceID,
			"error", err,
		)
	}
}

func (a *Aggregator) malformed(category Category, deviceID string, err error) error {
	telemetry.TelemetryMalformed.WithLabelValues(a.lineID, string(category)).Inc()
	a.logger.Error("dropping malformed telemetry",
		"category", category,
		"device_id", deviceID,
		"error", err,
	)
	return fmt.Errorf("%w: %s: %v", ErrMalformedMessage, category, err)
}

func appendBounded[T any](list []T, item T, limit int) []T {
	list = append(list, item)
	if len(list) > limit {
		trimmed := make([]T, limit)
		copy(trimmed, list[len(list)-limit:])
		list = trimmed
	}
	return list
}

func jsonObject(body []byte) bool {
	for _, b := range body {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{':
			return true
		default:
			return false
		}
	}
	return false
}
