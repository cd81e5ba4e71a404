package domain

import "time"

// EventKind — тип события решения.
type EventKind string

const (
	EventStationBlocked        EventKind = "station_blocked"
	EventFinishedProductsReady EventKind = "finished_products_ready"
	EventAGVCriticalBattery    EventKind = "agv_critical_battery"
	EventAGVLoadedIdle         EventKind = "agv_loaded_idle"
	EventAGVNeedsCharging      EventKind = "agv_needs_charging"
	EventConveyorCongestion    EventKind = "conveyor_congestion"
	EventSecondPassReady       EventKind = "second_pass_ready"
	EventRawMaterialsAvailable EventKind = "raw_materials_available"
	EventNewOrder              EventKind = "new_order"
	EventFactoryAlert          EventKind = "factory_alert"
)

// Event — событие, требующее реактивного решения.
type Event struct {
	// ID — идентификатор события.
	ID string `json:"id"`

	// Kind — тип события.
	Kind EventKind `json:"type"`

	// Severity — приоритет в очереди.
	Severity Severity `json:"severity"`

	// LineID — линия, где произошло событие.
	LineID string `json:"line_id"`

	// DeviceID — устройство-источник (пусто для заказов).
	DeviceID string `json:"device_id,omitempty"`

	// Details — контекст для оракула.
	Details map[string]any `json:"details,omitempty"`

	// DetectedAt — время классификации.
	DetectedAt time.Time `json:"detected_at"`

	// Attempts — сколько раз событие откладывалось.
	Attempts int `json:"attempts,omitempty"`
}

// Clone возвращает копию события.
func (e Event) Clone() Event {
	if e.Details != nil {
		details := make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			details[k] = v
		}
		e.Details = details
	}
	return e
}
