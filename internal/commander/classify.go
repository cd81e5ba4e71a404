package commander

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Factoria/internal/domain"
	"github.com/shaiso/Factoria/internal/state"
)

// Пороги классификатора.
const (
	criticalBattery    = 20.0
	lowBattery         = 40.0
	congestionBuffer   = 5
	secondPassConveyor = domain.LocationConveyorCQ
	rawWarehouse       = domain.LocationRawMaterial
)

// ClassLookup возвращает класс продукта по ID.
type ClassLookup func(productID string) (domain.ProductClass, bool)

// Classify превращает обновление телеметрии в события решения.
//
// На одно обновление — не больше одного события; правила проверяются
// в порядке таблицы:
//
//	station blocked                              → station_blocked (critical)
//	QualityCheck output_buffer непустой          → finished_products_ready (high)
//	AGV battery < 20 и не заряжается             → agv_critical_battery (critical)
//	AGV idle и payload непустой                  → agv_loaded_idle (high)
//	AGV idle, battery 20..40, payload пустой     → agv_needs_charging (medium)
//	conveyor blocked или buffer > 5              → conveyor_congestion (high)
//	класс C в буфере второго прохода             → second_pass_ready (high)
//	склад сырья непустой                         → raw_materials_available (high)
//	новый заказ                                  → new_order (high)
//	тревога                                      → factory_alert (severity из тревоги, по умолчанию medium)
func Classify(lineID string, u state.Update, lookup ClassLookup, now time.Time) []domain.Event {
	ev, ok := classify(u, lookup)
	if !ok {
		return nil
	}
	ev.ID = uuid.NewString()
	ev.LineID = lineID
	ev.DeviceID = u.DeviceID
	ev.DetectedAt = now
	return []domain.Event{ev}
}

func classify(u state.Update, lookup ClassLookup) (domain.Event, bool) {
	switch rec := u.Record.(type) {
	case state.StationRecord:
		return classifyStation(rec)
	case state.AGVRecord:
		return classifyAGV(rec)
	case state.ConveyorRecord:
		return classifyConveyor(rec, lookup)
	case state.WarehouseRecord:
		return classifyWarehouse(rec)
	case state.OrderMessage:
		return domain.Event{
			Kind:     domain.EventNewOrder,
			Severity: domain.SeverityHigh,
		}, true
	case state.AlertRecord:
		return classifyAlert(rec), true
	default:
		return domain.Event{}, false
	}
}

func classifyStation(rec state.StationRecord) (domain.Event, bool) {
	if rec.Status == state.DeviceBlocked {
		return domain.Event{
			Kind:     domain.EventStationBlocked,
			Severity: domain.SeverityCritical,
			Details: map[string]any{
				"status":  rec.Status,
				"buffer":  []string(rec.Buffer),
				"message": rec.Message,
			},
		}, true
	}
	if rec.ID == domain.LocationQualityCheck && len(rec.OutputBuffer) > 0 {
		return domain.Event{
			Kind:     domain.EventFinishedProductsReady,
			Severity: domain.SeverityHigh,
			Details: map[string]any{
				"output_buffer": []string(rec.OutputBuffer),
				"pickup_point":  domain.PointQualityCheckOut,
			},
		}, true
	}
	return domain.Event{}, false
}

func classifyAGV(rec state.AGVRecord) (domain.Event, bool) {
	details := map[string]any{
		"battery_level": rec.BatteryLevel,
		"current_point": rec.CurrentPoint,
		"status":        rec.Status,
		"payload":       []string(rec.Payload),
	}

	switch {
	case rec.BatteryLevel < criticalBattery && rec.Status != state.DeviceCharging:
		return domain.Event{Kind: domain.EventAGVCriticalBattery, Severity: domain.SeverityCritical, Details: details}, true
	case rec.Status == state.DeviceIdle && len(rec.Payload) > 0:
		return domain.Event{Kind: domain.EventAGVLoadedIdle, Severity: domain.SeverityHigh, Details: details}, true
	case rec.Status == state.DeviceIdle && rec.BatteryLevel < lowBattery && len(rec.Payload) == 0:
		return domain.Event{Kind: domain.EventAGVNeedsCharging, Severity: domain.SeverityMedium, Details: details}, true
	}
	return domain.Event{}, false
}

func classifyConveyor(rec state.ConveyorRecord, lookup ClassLookup) (domain.Event, bool) {
	if rec.Status == state.DeviceBlocked || len(rec.Buffer) > congestionBuffer {
		return domain.Event{
			Kind:     domain.EventConveyorCongestion,
			Severity: domain.SeverityHigh,
			Details: map[string]any{
				"status": rec.Status,
				"buffer": []string(rec.Buffer),
			},
		}, true
	}

	if rec.ID != secondPassConveyor {
		return domain.Event{}, false
	}
	var waiting []string
	for _, buf := range []state.IDList{rec.UpperBuffer, rec.LowerBuffer} {
		for _, pid := range buf {
			if isDoublePass(pid, lookup) {
				waiting = append(waiting, pid)
			}
		}
	}
	if len(waiting) == 0 {
		return domain.Event{}, false
	}
	return domain.Event{
		Kind:     domain.EventSecondPassReady,
		Severity: domain.SeverityHigh,
		Details: map[string]any{
			"products":     waiting,
			"upper_buffer": []string(rec.UpperBuffer),
			"lower_buffer": []string(rec.LowerBuffer),
			"pickup_point": domain.PointConveyorCQ,
		},
	}, true
}

func classifyWarehouse(rec state.WarehouseRecord) (domain.Event, bool) {
	if rec.ID != rawWarehouse || len(rec.Buffer) == 0 {
		return domain.Event{}, false
	}
	return domain.Event{
		Kind:     domain.EventRawMaterialsAvailable,
		Severity: domain.SeverityHigh,
		Details: map[string]any{
			"buffer":       []string(rec.Buffer),
			"pickup_point": domain.PointRawMaterial,
		},
	}, true
}

// isDoublePass определяет класс C по каталогу заказов, затем по ID.
func isDoublePass(pid string, lookup ClassLookup) bool {
	if lookup != nil {
		if class, ok := lookup(pid); ok {
			return class.IsDoublePass()
		}
	}
	class, ok := domain.ClassFromProductID(pid)
	return ok && class.IsDoublePass()
}

func classifyAlert(rec state.AlertRecord) domain.Event {
	severity := alertSeverity(rec.Fields["severity"])
	details := map[string]any{"severity": severity}
	if rec.AlertType != "" {
		details["alert_type"] = rec.AlertType
	}
	if rec.Message != "" {
		details["message"] = rec.Message
	}

	return domain.Event{
		Kind:     domain.EventFactoryAlert,
		Severity: severity,
		Details:  details,
	}
}

// alertSeverity читает severity тревоги; неизвестное значение — medium.
func alertSeverity(v any) domain.Severity {
	s, _ := v.(string)
	switch sev := domain.Severity(strings.ToLower(strings.TrimSpace(s))); sev {
	case domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow:
		return sev
	default:
		return domain.SeverityMedium
	}
}
