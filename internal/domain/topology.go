package domain

import "fmt"

// Point — точка навигации AGV на линии.
type Point string

// Точки фиксированной топологии фабрики.
const (
	PointRawMaterial     Point = "P0"
	PointStationA        Point = "P1"
	PointConveyorAB      Point = "P2"
	PointStationB        Point = "P3"
	PointConveyorBC      Point = "P4"
	PointStationC        Point = "P5"
	PointConveyorCQ      Point = "P6"
	PointQualityCheckIn  Point = "P7"
	PointQualityCheckOut Point = "P8"
	PointWarehouse       Point = "P9"
)

// Имена устройств, которые присылают телеметрию.
const (
	LocationRawMaterial  = "RawMaterial"
	LocationStationA     = "StationA"
	LocationStationB     = "StationB"
	LocationStationC     = "StationC"
	LocationQualityCheck = "QualityCheck"
	LocationWarehouse    = "Warehouse"
	LocationConveyorAB   = "Conveyor_AB"
	LocationConveyorBC   = "Conveyor_BC"
	LocationConveyorCQ   = "Conveyor_CQ"
)

// points — точка → устройство, к которому она ведёт.
var points = map[Point]string{
	PointRawMaterial:     LocationRawMaterial,
	PointStationA:        LocationStationA,
	PointConveyorAB:      LocationConveyorAB,
	PointStationB:        LocationStationB,
	PointConveyorBC:      LocationConveyorBC,
	PointStationC:        LocationStationC,
	PointConveyorCQ:      LocationConveyorCQ,
	PointQualityCheckIn:  LocationQualityCheck,
	PointQualityCheckOut: LocationQualityCheck,
	PointWarehouse:       LocationWarehouse,
}

// AllPoints возвращает точки в порядке нумерации.
func AllPoints() []Point {
	return []Point{
		PointRawMaterial, PointStationA, PointConveyorAB, PointStationB, PointConveyorBC,
		PointStationC, PointConveyorCQ, PointQualityCheckIn, PointQualityCheckOut, PointWarehouse,
	}
}

// ParsePoint проверяет, что строка — точка топологии.
func ParsePoint(s string) (Point, error) {
	p := Point(s)
	if _, ok := points[p]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPoint, s)
	}
	return p, nil
}

// IsValid проверяет принадлежность точки топологии.
func (p Point) IsValid() bool {
	_, ok := points[p]
	return ok
}

// Location возвращает имя устройства у точки.
func (p Point) Location() string {
	return points[p]
}

// LocationForStatus возвращает устройство, где находится продукт в статусе.
func LocationForStatus(s ProductStatus) string {
	switch s {
	case ProductStatusPending:
		return LocationRawMaterial
	case ProductStatusAtStation1:
		return LocationStationA
	case ProductStatusAtStation2:
		return LocationStationB
	case ProductStatusAtStation3:
		return LocationStationC
	case ProductStatusAtQualityCheck, ProductStatusFailedQualityCheck:
		return LocationQualityCheck
	case ProductStatusDelivered:
		return LocationWarehouse
	default:
		return ""
	}
}

// StatusForLocation возвращает статус пребывания на станции или складе.
func StatusForLocation(location string) (ProductStatus, bool) {
	switch location {
	case LocationStationA:
		return ProductStatusAtStation1, true
	case LocationStationB:
		return ProductStatusAtStation2, true
	case LocationStationC:
		return ProductStatusAtStation3, true
	case LocationQualityCheck:
		return ProductStatusAtQualityCheck, true
	case LocationWarehouse:
		return ProductStatusDelivered, true
	default:
		return "", false
	}
}

// DropPoint возвращает точку, куда AGV выгружает продукт для шага.
func DropPoint(s Step) (Point, bool) {
	switch s {
	case StepStation1:
		return PointStationA, true
	case StepStation2:
		return PointStationB, true
	case StepStation3:
		return PointStationC, true
	case StepQualityCheck:
		return PointQualityCheckIn, true
	case StepWarehouse:
		return PointWarehouse, true
	default:
		return "", false
	}
}
