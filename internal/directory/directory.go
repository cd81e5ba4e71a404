package directory

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Factoria/internal/domain"
)

// DefaultLines — ротация линий по умолчанию.
var DefaultLines = []string{"line1", "line2", "line3"}

// DefaultMaxItemQuantity — предел количества в одной позиции заказа.
const DefaultMaxItemQuantity = 1000

// Directory — справочник заказов и продуктов, общий для всех линий.
//
// Directory:
//   - Владеет всеми Order и Product (order_id → Order, product_id → Product)
//   - Назначает заказы на линии по round robin
//   - Сериализует все изменения жизненного цикла через один мьютекс
//
// Создаётся один раз и передаётся линиям по ссылке.
// Все методы чтения возвращают копии.
type Directory struct {
	mu sync.Mutex

	lines []string

	orders    map[string]*domain.Order
	orderSeq  []string // order_id в порядке создания
	products  map[string]*domain.Product
	productOf map[string]string // product_id → order_id
	active    map[string]struct{}
	processed map[string]struct{}
	rrCounter uint64
	maxQty    int

	logger *slog.Logger
	now    func() time.Time
}

// Config — конфигурация Directory.
type Config struct {
	// Lines — ротация линий (default: line1, line2, line3).
	Lines []string

	// Logger
	Logger *slog.Logger

	// Clock — источник времени (default: time.Now).
	Clock func() time.Time

	// MaxItemQuantity — предел quantity позиции (default: 1000).
	MaxItemQuantity int
}

// New создаёт новый Directory.
func New(cfg Config) *Directory {
	lines := cfg.Lines
	if len(lines) == 0 {
		lines = DefaultLines
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Clock
	if now == nil {
		now = time.Now
	}

	maxQty := cfg.MaxItemQuantity
	if maxQty <= 0 {
		maxQty = DefaultMaxItemQuantity
	}

	return &Directory{
		lines:     slices.Clone(lines),
		orders:    make(map[string]*domain.Order),
		products:  make(map[string]*domain.Product),
		productOf: make(map[string]string),
		active:    make(map[string]struct{}),
		processed: make(map[string]struct{}),
		maxQty:    maxQty,
		logger:    logger,
		now:       now,
	}
}

// Lines возвращает ротацию линий.
func (d *Directory) Lines() []string {
	return slices.Clone(d.lines)
}

// ValidatePayload проверяет payload и предел количества позиций.
func (d *Directory) ValidatePayload(p OrderPayload) error {
	if err := p.validate(); err != nil {
		return err
	}
	for i, it := range p.Items {
		if it.Quantity > d.maxQty {
			return fmt.Errorf("%w: item %d: quantity %d exceeds limit %d", ErrInvalidItem, i, it.Quantity, d.maxQty)
		}
	}
	return nil
}

// HasLine проверяет, что линия входит в ротацию.
func (d *Directory) HasLine(lineID string) bool {
	return slices.Contains(d.lines, lineID)
}

// --- Создание и назначение ---

// CreateOrder создаёт заказ из payload.
//
// Идемпотентна: если order_id уже есть, возвращает существующий заказ.
// Некорректный payload логируется и не меняет состояние.
func (d *Directory) CreateOrder(p OrderPayload) (*domain.Order, error) {
	if err := d.ValidatePayload(p); err != nil {
		d.logger.Error("rejected order payload", "order_id", p.OrderID, "error", err)
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	order, _ := d.createLocked(p)
	return order.Clone(), nil
}

// createLocked создаёт заказ. Возвращает true, если заказ новый.
func (d *Directory) createLocked(p OrderPayload) (*domain.Order, bool) {
	if existing, ok := d.orders[p.OrderID]; ok {
		d.logger.Warn("order already exists", "order_id", p.OrderID)
		return existing, false
	}

	now := d.now()
	order := domain.NewOrder(p.OrderID, now)

	if p.Deadline != nil {
		deadline := now.Add(time.Duration(*p.Deadline * float64(time.Second)))
		order.Deadline = &deadline
	}

	counter := 1
	for _, item := range p.Items {
		class, known := domain.ParseProductClass(item.Class)
		if !known {
			d.logger.Warn("unknown product class, defaulting to A",
				"order_id", p.OrderID,
				"class", item.Class,
			)
		}

		for range item.Quantity {
			id := fmt.Sprintf("prod_%s_%s_%03d", strings.ToLower(string(class)), p.OrderID, counter)
			product := domain.NewProduct(id, class, now)
			order.AddProduct(product)
			d.products[id] = product
			d.productOf[id] = p.OrderID
			counter++
		}
	}

	d.orders[p.OrderID] = order
	d.orderSeq = append(d.orderSeq, p.OrderID)
	d.active[p.OrderID] = struct{}{}

	d.logger.Info("created order",
		"order_id", p.OrderID,
		"products", len(order.Products),
	)

	return order, true
}

// AssignToLine назначает продукты заказа на линию.
// Без productIDs назначаются все продукты не в финальном статусе.
func (d *Directory) AssignToLine(orderID, lineID string, productIDs ...string) error {
	if !d.HasLine(lineID) {
		return fmt.Errorf("%w: %s", ErrUnknownLine, lineID)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	order, ok := d.orders[orderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}

	if len(productIDs) == 0 {
		productIDs = productIDsOf(order.PendingProducts())
	}

	d.assignLocked(order, lineID, productIDs)
	return nil
}

func (d *Directory) assignLocked(order *domain.Order, lineID string, productIDs []string) int {
	assigned := 0
	for _, id := range productIDs {
		if order.AssignProduct(id, lineID) {
			assigned++
		}
	}

	if assigned > 0 && order.Status == domain.OrderStatusPending {
		order.Status = domain.OrderStatusInProgress
	}

	d.logger.Debug("assigned products to line",
		"order_id", order.ID,
		"line_id", lineID,
		"assigned", assigned,
	)

	return assigned
}

// NextLineRoundRobin возвращает следующую линию ротации.
// Каждый вызов сдвигает счётчик ровно на один.
func (d *Directory) NextLineRoundRobin() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextLineLocked()
}

func (d *Directory) nextLineLocked() string {
	line := d.lines[d.rrCounter%uint64(len(d.lines))]
	d.rrCounter++
	return line
}

// ProcessOrder — единственная внешняя точка приёма заказа.
//
// Под одним мьютексом:
//  1. Проверяет, обработан ли заказ (повтор возвращает существующий)
//  2. Создаёт заказ
//  3. Назначает все незавершённые продукты на одну линию по round robin
//  4. Помечает заказ обработанным
func (d *Directory) ProcessOrder(p OrderPayload, requestingLine string) (*domain.Order, error) {
	if err := d.ValidatePayload(p); err != nil {
		d.logger.Error("rejected order payload",
			"order_id", p.OrderID,
			"requesting_line", requestingLine,
			"error", err,
		)
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// 1. Уже обработан
	if _, done := d.processed[p.OrderID]; done {
		d.logger.Debug("order already processed",
			"order_id", p.OrderID,
			"requesting_line", requestingLine,
		)
		return d.orders[p.OrderID].Clone(), nil
	}

	// 2. Создаём
	order, _ := d.createLocked(p)

	// 3. Назначаем
	pending := productIDsOf(order.PendingProducts())
	line := d.nextLineLocked()
	d.assignLocked(order, line, pending)

	// 4. Помечаем
	d.processed[p.OrderID] = struct{}{}

	d.logger.Info("order assigned",
		"order_id", order.ID,
		"line_id", line,
		"requesting_line", requestingLine,
		"products", len(pending),
	)

	return order.Clone(), nil
}

// --- Жизненный цикл продуктов ---

// TransitionProduct переводит продукт в новый статус.
func (d *Directory) TransitionProduct(productID string, to domain.ProductStatus, location string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	product, ok := d.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}

	if err := product.Transition(to, location, d.now()); err != nil {
		return err
	}

	d.logger.Info("product transitioned",
		"product_id", productID,
		"status", to,
		"location", product.CurrentLocation,
	)

	d.completeIfDoneLocked(d.productOf[productID])
	return nil
}

// ObserveProductAt применяет наблюдение «продукт находится на устройстве».
//
// Переход выполняется, только если он следующий по маршруту.
// Повторное наблюдение того же места ничего не меняет.
// Возвращает true, если статус изменился.
func (d *Directory) ObserveProductAt(productID, location string) (bool, error) {
	status, ok := domain.StatusForLocation(location)
	if !ok {
		return false, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	product, ok := d.products[productID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}

	if product.Status == status || !product.CanTransition(status) {
		return false, nil
	}

	if err := product.Transition(status, location, d.now()); err != nil {
		return false, err
	}

	d.logger.Info("product observed",
		"product_id", productID,
		"status", status,
		"location", location,
	)

	d.completeIfDoneLocked(d.productOf[productID])
	return true, nil
}

// completeIfDoneLocked завершает заказ, если все продукты финальны.
func (d *Directory) completeIfDoneLocked(orderID string) bool {
	if _, isActive := d.active[orderID]; !isActive {
		return false
	}

	order := d.orders[orderID]
	if order == nil || !order.AllTerminal() {
		return false
	}

	order.Status = domain.OrderStatusCompleted
	delete(d.active, orderID)

	d.logger.Info("order completed",
		"order_id", orderID,
		"success_rate", order.CompletionRate(),
	)
	return true
}

// AssignVehicle закрепляет AGV за продуктом.
func (d *Directory) AssignVehicle(productID, vehicleID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	product, ok := d.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}

	return product.AssignVehicle(vehicleID, d.now())
}

// ReleaseVehicle снимает AGV с продукта.
func (d *Directory) ReleaseVehicle(productID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	product, ok := d.products[productID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}

	product.ReleaseVehicle(d.now())
	return nil
}

// MarkCompletedOrders завершает активные заказы, все продукты которых финальны.
// Возвращает ID завершённых заказов.
func (d *Directory) MarkCompletedOrders() []string {
	d.mu.Lock()
	defer d.mu.Unlock()

	var completed []string
	for _, id := range d.orderSeq {
		if d.completeIfDoneLocked(id) {
			completed = append(completed, id)
		}
	}
	return completed
}

// CancelOrder отменяет заказ и убирает его из активных.
func (d *Directory) CancelOrder(orderID string) (*domain.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	order, ok := d.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	if order.Status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrOrderTerminal, orderID, order.Status)
	}

	order.Status = domain.OrderStatusCancelled
	delete(d.active, orderID)
	d.processed[orderID] = struct{}{}

	d.logger.Info("order cancelled", "order_id", orderID)
	return order.Clone(), nil
}

// --- Чтение ---

// ProductsNeedingTransport возвращает продукты линии, ожидающие забора:
// статус pending или at_quality_check и без назначенного AGV.
func (d *Directory) ProductsNeedingTransport(lineID string) []*domain.Product {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result []*domain.Product
	for _, id := range d.orderSeq {
		if _, isActive := d.active[id]; !isActive {
			continue
		}
		for _, p := range d.orders[id].ProductsForLine(lineID) {
			if p.AssignedVehicle != "" {
				continue
			}
			if p.Status == domain.ProductStatusPending || p.Status == domain.ProductStatusAtQualityCheck {
				result = append(result, p.Clone())
			}
		}
	}
	return result
}

// OrdersForLine возвращает активные заказы с продуктами на линии.
// limit <= 0 — без ограничения.
func (d *Directory) OrdersForLine(lineID string, limit int) []*domain.Order {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result []*domain.Order
	for _, id := range d.orderSeq {
		if _, isActive := d.active[id]; !isActive {
			continue
		}
		order := d.orders[id]
		if len(order.LineAssignments[lineID]) == 0 {
			continue
		}
		result = append(result, order.Clone())
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result
}

// Order возвращает заказ по ID.
func (d *Directory) Order(orderID string) (*domain.Order, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	order, ok := d.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	return order.Clone(), nil
}

// Orders возвращает все заказы в порядке создания.
func (d *Directory) Orders() []*domain.Order {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make([]*domain.Order, 0, len(d.orderSeq))
	for _, id := range d.orderSeq {
		result = append(result, d.orders[id].Clone())
	}
	return result
}

// Product возвращает продукт по ID.
func (d *Directory) Product(productID string) (*domain.Product, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	product, ok := d.products[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	return product.Clone(), nil
}

// ProductClass возвращает класс известного продукта.
func (d *Directory) ProductClass(productID string) (domain.ProductClass, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	product, ok := d.products[productID]
	if !ok {
		return "", false
	}
	return product.Class, true
}

// OverdueOrders возвращает незавершённые заказы с истёкшим сроком.
func (d *Directory) OverdueOrders(now time.Time) []*domain.Order {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result []*domain.Order
	for _, id := range d.orderSeq {
		order := d.orders[id]
		if order.IsOverdue(now) {
			result = append(result, order.Clone())
		}
	}
	return result
}

// Stats — сводная статистика справочника.
type Stats struct {
	TotalOrders           int            `json:"total_orders"`
	ActiveOrders          int            `json:"active_orders"`
	CompletedOrders       int            `json:"completed_orders"`
	CancelledOrders       int            `json:"cancelled_orders"`
	CompletionRate        float64        `json:"completion_rate"`
	TotalProducts         int            `json:"total_products"`
	DeliveredProducts     int            `json:"delivered_products"`
	FailedProducts        int            `json:"failed_products"`
	ProductCompletionRate float64        `json:"product_completion_rate"`
	LineProducts          map[string]int `json:"line_products"`
}

// Stats возвращает статистику по заказам и продуктам.
func (d *Directory) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := Stats{
		TotalOrders:   len(d.orders),
		ActiveOrders:  len(d.active),
		TotalProducts: len(d.products),
		LineProducts:  make(map[string]int, len(d.lines)),
	}

	for _, order := range d.orders {
		switch order.Status {
		case domain.OrderStatusCompleted:
			s.CompletedOrders++
		case domain.OrderStatusCancelled:
			s.CancelledOrders++
		}
		for line, ids := range order.LineAssignments {
			s.LineProducts[line] += len(ids)
		}
	}

	for _, p := range d.products {
		switch p.Status {
		case domain.ProductStatusDelivered:
			s.DeliveredProducts++
		case domain.ProductStatusFailedQualityCheck:
			s.FailedProducts++
		}
	}

	if s.TotalOrders > 0 {
		s.CompletionRate = float64(s.CompletedOrders) / float64(s.TotalOrders)
	}
	if s.TotalProducts > 0 {
		s.ProductCompletionRate = float64(s.DeliveredProducts) / float64(s.TotalProducts)
	}

	return s
}

func productIDsOf(products []*domain.Product) []string {
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	return ids
}
