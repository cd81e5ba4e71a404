package commander

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/Factoria/internal/directory"
	"github.com/shaiso/Factoria/internal/domain"
	"github.com/shaiso/Factoria/internal/state"
)

// ProductDirectory — операции каталога заказов, нужные трекеру.
type ProductDirectory interface {
	ObserveProductAt(productID, location string) (bool, error)
	AssignVehicle(productID, vehicleID string) error
	ReleaseVehicle(productID string) error
	Product(productID string) (*domain.Product, error)
}

// Tracker продвигает жизненный цикл продуктов по телеметрии.
//
// Tracker:
//   - Продукт в буфере StationA/B/C, QualityCheck или Warehouse — прибытие
//   - Продукт в payload AGV — закрепление AGV
//   - Продукт пропал из payload — AGV снимается
//
// Неизвестные каталогу продукты игнорируются.
type Tracker struct {
	dir    ProductDirectory
	logger *slog.Logger

	mu      sync.Mutex
	payload map[string]map[string]struct{} // AGV → продукты в прошлом обновлении
}

// NewTracker создаёт Tracker.
func NewTracker(dir ProductDirectory, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		dir:     dir,
		logger:  logger,
		payload: make(map[string]map[string]struct{}),
	}
}

// Observe применяет обновление телеметрии.
func (t *Tracker) Observe(u state.Update) {
	switch rec := u.Record.(type) {
	case state.StationRecord:
		t.observeBuffers(rec.ID, rec.Buffer, rec.OutputBuffer)
	case state.WarehouseRecord:
		t.observeBuffers(rec.ID, rec.Buffer)
	case state.AGVRecord:
		t.observePayload(rec.ID, rec.Payload)
	}
}

func (t *Tracker) observeBuffers(location string, buffers ...state.IDList) {
	if _, ok := domain.StatusForLocation(location); !ok {
		return
	}
	for _, buf := range buffers {
		for _, pid := range buf {
			if _, err := t.dir.ObserveProductAt(pid, location); err != nil && !errors.Is(err, directory.ErrProductNotFound) {
				t.logger.Warn("failed to advance product",
					"product_id", pid,
					"location", location,
					"error", err,
				)
			}
		}
	}
}

func (t *Tracker) observePayload(vehicle string, payload state.IDList) {
	current := make(map[string]struct{}, len(payload))
	for _, pid := range payload {
		current[pid] = struct{}{}
	}

	t.mu.Lock()
	previous := t.payload[vehicle]
	t.payload[vehicle] = current
	t.mu.Unlock()

	for pid := range current {
		if _, seen := previous[pid]; seen {
			continue
		}
		if err := t.dir.AssignVehicle(pid, vehicle); err != nil && !errors.Is(err, directory.ErrProductNotFound) {
			t.logger.Warn("failed to assign vehicle",
				"product_id", pid,
				"agv_id", vehicle,
				"error", err,
			)
		}
	}

	for pid := range previous {
		if _, still := current[pid]; still {
			continue
		}
		p, err := t.dir.Product(pid)
		if err != nil || p.AssignedVehicle != vehicle {
			continue
		}
		if err := t.dir.ReleaseVehicle(pid); err != nil {
			t.logger.Warn("failed to release vehicle",
				"product_id", pid,
				"agv_id", vehicle,
				"error", err,
			)
		}
	}
}
