package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "factoria"

// Метрики телеметрии.
var (
	// TelemetryMessages — принятые сообщения телеметрии.
	TelemetryMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_messages_total",
		Help:      "Telemetry messages ingested by category.",
	}, []string{"line", "category"})

	// TelemetryMalformed — отброшенные некорректные сообщения.
	TelemetryMalformed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "telemetry_malformed_total",
		Help:      "Telemetry messages dropped as malformed.",
	}, []string{"line", "category"})

	// ListenerErrors — ошибки и паники подписчиков.
	ListenerErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "listener_errors_total",
		Help:      "Errors returned or panics raised by update listeners.",
	}, []string{"line", "category"})
)

// Метрики конвейера решений.
var (
	// EventsClassified — события, выделенные классификатором.
	EventsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_classified_total",
		Help:      "Decision events produced by the classifier.",
	}, []string{"line", "kind", "severity"})

	// EventsDropped — события, отброшенные из-за переполнения очереди.
	EventsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "events_dropped_total",
		Help:      "Decision events dropped because the queue was full.",
	}, []string{"line", "kind"})

	// HistoryWritesDropped — записи истории, не дошедшие до хранилища.
	HistoryWritesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "history_writes_dropped_total",
		Help:      "Command history writes dropped because the store backlog was full or the line stopped.",
	}, []string{"line", "kind"})

	// EventQueueDepth — текущая длина очереди событий.
	EventQueueDepth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "event_queue_depth",
		Help:      "Current number of queued decision events.",
	}, []string{"line"})

	// CommandsDispatched — опубликованные команды.
	CommandsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_dispatched_total",
		Help:      "Commands published to vehicles.",
	}, []string{"line", "mode", "action"})

	// CommandsRejected — отфильтрованные команды.
	CommandsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_rejected_total",
		Help:      "Oracle proposals rejected by validation.",
	}, []string{"line", "reason"})

	// OracleRequests — вызовы оракула по результату.
	OracleRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "oracle_requests_total",
		Help:      "Decision oracle calls by mode and result.",
	}, []string{"line", "mode", "result"})

	// CycleDuration — длительность цикла решения.
	CycleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "decision_cycle_duration_seconds",
		Help:      "Duration of planned and reactive decision cycles.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
	}, []string{"line", "mode"})
)

// Метрики заказов.
var (
	// OrdersActive — активные заказы.
	OrdersActive = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "orders_active",
		Help:      "Orders not yet completed or cancelled.",
	})

	// OrdersOverdue — активные заказы с истёкшим сроком.
	OrdersOverdue = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "orders_overdue",
		Help:      "Active orders past their deadline.",
	})

	// OrdersCompleted — заказы, завершённые сборщиком.
	OrdersCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "orders_completed_total",
		Help:      "Orders marked completed by the sweeper.",
	})

	// ProductsDelivered — доставленные продукты.
	ProductsDelivered = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "products_delivered",
		Help:      "Products delivered to the warehouse.",
	})
)
