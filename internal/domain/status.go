package domain

// ProductStatus — статус продукта на производственной линии.
//
// Жизненный цикл (классы A/B):
//
//	pending → at_station_1 → at_station_2 → at_station_3 → at_quality_check → delivered
//	                                                                         ↘ failed_quality_check
//
// Класс C проходит station_2 и station_3 дважды (см. NextStep).
type ProductStatus string

const (
	// ProductStatusPending — продукт создан и ждёт на складе сырья.
	ProductStatusPending ProductStatus = "pending"

	// ProductStatusAtStation1 — продукт на первой станции (StationA).
	ProductStatusAtStation1 ProductStatus = "at_station_1"

	// ProductStatusAtStation2 — продукт на второй станции (StationB).
	ProductStatusAtStation2 ProductStatus = "at_station_2"

	// ProductStatusAtStation3 — продукт на третьей станции (StationC).
	ProductStatusAtStation3 ProductStatus = "at_station_3"

	// ProductStatusAtQualityCheck — продукт на контроле качества.
	ProductStatusAtQualityCheck ProductStatus = "at_quality_check"

	// ProductStatusDelivered — продукт доставлен на склад готовой продукции.
	ProductStatusDelivered ProductStatus = "delivered"

	// ProductStatusFailedQualityCheck — продукт не прошёл контроль качества.
	ProductStatusFailedQualityCheck ProductStatus = "failed_quality_check"
)

// IsTerminal возвращает true, если статус финальный.
func (s ProductStatus) IsTerminal() bool {
	switch s {
	case ProductStatusDelivered, ProductStatusFailedQualityCheck:
		return true
	default:
		return false
	}
}

// IsValid проверяет, что статус входит в перечисление.
func (s ProductStatus) IsValid() bool {
	switch s {
	case ProductStatusPending,
		ProductStatusAtStation1,
		ProductStatusAtStation2,
		ProductStatusAtStation3,
		ProductStatusAtQualityCheck,
		ProductStatusDelivered,
		ProductStatusFailedQualityCheck:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление ProductStatus.
func (s ProductStatus) String() string {
	return string(s)
}

// OrderStatus — статус заказа.
//
// Жизненный цикл:
//
//	pending → in_progress → completed
//	        ↘ cancelled (из pending или in_progress)
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, но ещё не назначен на линию.
	OrderStatusPending OrderStatus = "pending"

	// OrderStatusInProgress — продукты заказа назначены на линию.
	OrderStatusInProgress OrderStatus = "in_progress"

	// OrderStatusCompleted — все продукты в финальном статусе.
	OrderStatusCompleted OrderStatus = "completed"

	// OrderStatusCancelled — заказ отменён оператором.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsTerminal возвращает true, если заказ больше не обрабатывается.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled:
		return true
	default:
		return false
	}
}

// Step — следующий пункт маршрута продукта.
type Step string

const (
	StepNone         Step = ""
	StepStation1     Step = "station_1"
	StepStation2     Step = "station_2"
	StepStation3     Step = "station_3"
	StepQualityCheck Step = "quality_check"
	StepWarehouse    Step = "warehouse"
)

// Status возвращает статус, в который продукт переходит по прибытии на шаг.
func (s Step) Status() ProductStatus {
	switch s {
	case StepStation1:
		return ProductStatusAtStation1
	case StepStation2:
		return ProductStatusAtStation2
	case StepStation3:
		return ProductStatusAtStation3
	case StepQualityCheck:
		return ProductStatusAtQualityCheck
	case StepWarehouse:
		return ProductStatusDelivered
	default:
		return ""
	}
}

// StepForStatus возвращает шаг, соответствующий статусу пребывания.
func StepForStatus(s ProductStatus) Step {
	switch s {
	case ProductStatusAtStation1:
		return StepStation1
	case ProductStatusAtStation2:
		return StepStation2
	case ProductStatusAtStation3:
		return StepStation3
	case ProductStatusAtQualityCheck:
		return StepQualityCheck
	case ProductStatusDelivered:
		return StepWarehouse
	default:
		return StepNone
	}
}
