package oracle

import (
	"context"
	"fmt"

	"github.com/shaiso/Factoria/internal/domain"
	"github.com/shaiso/Factoria/internal/state"
)

// Default battery thresholds, %.
const (
	defaultCriticalBattery = 20.0
	defaultLowBattery      = 40.0
)

// RulesConfig — пороги детерминированного планировщика.
type RulesConfig struct {
	// CriticalBattery — ниже этого уровня AGV заряжается в первую очередь (default: 20).
	CriticalBattery float64

	// LowBattery — профилактическая зарядка свободного AGV (default: 40).
	LowBattery float64

	// ChargeLevel — целевой уровень зарядки (default: 80).
	ChargeLevel float64
}

// Rules — детерминированный оракул без внешних вызовов.
//
// На каждый свободный AGV выдаёт не больше одной команды:
//  1. Гружёный AGV везёт продукт к следующей точке маршрута и выгружает его
//  2. Критический заряд — зарядка
//  3. Готовая продукция на выходе QualityCheck — забрать с P8
//  4. Класс C в upper_buffer Conveyor_CQ — забрать с P6 (только SecondPassVehicle)
//  5. Сырьё линии на складе — забрать с P0
//  6. Низкий заряд — зарядка
//
// Задачу у одной точки берёт один AGV.
type Rules struct {
	critical float64
	low      float64
	level    float64
}

// NewRules создаёт Rules.
func NewRules(cfg RulesConfig) *Rules {
	critical := cfg.CriticalBattery
	if critical <= 0 {
		critical = defaultCriticalBattery
	}
	low := cfg.LowBattery
	if low <= 0 {
		low = defaultLowBattery
	}
	level := cfg.ChargeLevel
	if level <= 0 {
		level = domain.DefaultChargeLevel
	}
	return &Rules{critical: critical, low: low, level: level}
}

// Propose реализует Oracle.
func (r *Rules) Propose(ctx context.Context, c Context) ([]domain.Command, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p := planner{
		rules:    r,
		c:        c,
		products: c.products(),
		taken:    make(map[domain.Point]bool),
	}

	// Точки, куда уже едут другие AGV, считаются занятыми.
	for _, v := range c.Vehicles {
		agv, ok := c.Snapshot.AGVs[v]
		if !ok || agv.Status != state.DeviceMoving || len(agv.Payload) > 0 {
			continue
		}
		if pt, err := domain.ParsePoint(agv.TargetPoint); err == nil {
			p.taken[pt] = true
		}
	}

	var cmds []domain.Command
	for _, v := range c.Vehicles {
		if c.MaxCommands > 0 && len(cmds) >= c.MaxCommands {
			break
		}
		agv, ok := c.Snapshot.AGVs[v]
		if !ok || agv.Status != state.DeviceIdle {
			continue
		}
		if cmd, ok := p.next(v, agv); ok {
			cmds = append(cmds, cmd)
		}
	}
	return cmds, nil
}

type planner struct {
	rules    *Rules
	c        Context
	products map[string]ProductView
	taken    map[domain.Point]bool
}

func (p *planner) next(vehicle string, agv state.AGVRecord) (domain.Command, bool) {
	if len(agv.Payload) > 0 {
		return p.deliver(vehicle, agv), true
	}

	if agv.BatteryLevel < p.rules.critical {
		return p.charge(vehicle, domain.SeverityCritical,
			fmt.Sprintf("battery critically low: %.0f%%", agv.BatteryLevel)), true
	}

	if pid, ok := p.finishedProduct(); ok {
		if cmd, ok := p.pickup(vehicle, agv, domain.PointQualityCheckOut, pid, "finished product ready at QualityCheck"); ok {
			return cmd, true
		}
	}

	if vehicle == p.c.SecondPassVehicle {
		if pid, ok := p.secondPassProduct(); ok {
			if cmd, ok := p.pickup(vehicle, agv, domain.PointConveyorCQ, pid, "class C product waiting for second pass"); ok {
				return cmd, true
			}
		}
	}

	if pid, ok := p.rawProduct(); ok {
		if cmd, ok := p.pickup(vehicle, agv, domain.PointRawMaterial, pid, "raw material ready for StationA"); ok {
			return cmd, true
		}
	}

	if agv.BatteryLevel < p.rules.low {
		return p.charge(vehicle, domain.SeverityMedium,
			fmt.Sprintf("preventive charging at %.0f%%", agv.BatteryLevel)), true
	}
	return domain.Command{}, false
}

// deliver везёт продукт к точке следующего шага или выгружает на месте.
func (p *planner) deliver(vehicle string, agv state.AGVRecord) domain.Command {
	pid := agv.Payload[0]
	dest := p.destination(pid, agv.CurrentPoint)

	if agv.CurrentPoint == string(dest) {
		return domain.Command{
			Action:    domain.ActionUnload,
			Target:    vehicle,
			Params:    domain.CommandParams{ProductID: pid},
			Priority:  string(domain.SeverityHigh),
			Reasoning: fmt.Sprintf("unload %s at %s", pid, dest.Location()),
		}
	}
	return domain.Command{
		Action:    domain.ActionMove,
		Target:    vehicle,
		Params:    domain.CommandParams{TargetPoint: string(dest)},
		Priority:  string(domain.SeverityHigh),
		Reasoning: fmt.Sprintf("carry %s to %s", pid, dest.Location()),
	}
}

// destination — точка выгрузки продукта. Если продукт неизвестен,
// точка выводится из места погрузки.
func (p *planner) destination(pid, loadedAt string) domain.Point {
	if pv, ok := p.products[pid]; ok {
		if pt, ok := domain.DropPoint(pv.NextStep); ok {
			return pt
		}
	}
	switch domain.Point(loadedAt) {
	case domain.PointRawMaterial:
		return domain.PointStationA
	case domain.PointConveyorCQ:
		return domain.PointStationB
	default:
		return domain.PointWarehouse
	}
}

func (p *planner) pickup(vehicle string, agv state.AGVRecord, at domain.Point, pid, reason string) (domain.Command, bool) {
	if p.taken[at] {
		return domain.Command{}, false
	}
	p.taken[at] = true

	if agv.CurrentPoint == string(at) {
		return domain.Command{
			Action:    domain.ActionLoad,
			Target:    vehicle,
			Params:    domain.CommandParams{ProductID: pid},
			Priority:  string(domain.SeverityHigh),
			Reasoning: fmt.Sprintf("load %s: %s", pid, reason),
		}, true
	}
	return domain.Command{
		Action:    domain.ActionMove,
		Target:    vehicle,
		Params:    domain.CommandParams{TargetPoint: string(at)},
		Priority:  string(domain.SeverityHigh),
		Reasoning: reason,
	}, true
}

func (p *planner) charge(vehicle string, severity domain.Severity, reason string) domain.Command {
	level := p.rules.level
	return domain.Command{
		Action:    domain.ActionCharge,
		Target:    vehicle,
		Params:    domain.CommandParams{TargetLevel: &level},
		Priority:  string(severity),
		Reasoning: reason,
	}
}

func (p *planner) finishedProduct() (string, bool) {
	qc, ok := p.c.Snapshot.Stations[domain.LocationQualityCheck]
	if !ok || len(qc.OutputBuffer) == 0 {
		return "", false
	}
	return qc.OutputBuffer[0], true
}

func (p *planner) secondPassProduct() (string, bool) {
	cq, ok := p.c.Snapshot.Conveyors[domain.LocationConveyorCQ]
	if !ok {
		return "", false
	}
	for _, pid := range cq.UpperBuffer {
		if p.isDoublePass(pid) {
			return pid, true
		}
	}
	return "", false
}

// rawProduct выбирает первый продукт этой линии, который уже лежит на складе сырья.
func (p *planner) rawProduct() (string, bool) {
	raw, ok := p.c.Snapshot.Warehouses[domain.LocationRawMaterial]
	if !ok || len(raw.Buffer) == 0 {
		return "", false
	}
	for _, pv := range p.c.Pending {
		if pv.Status == domain.ProductStatusPending && pv.AssignedVehicle == "" && raw.Buffer.Contains(pv.ProductID) {
			return pv.ProductID, true
		}
	}
	return "", false
}

func (p *planner) isDoublePass(pid string) bool {
	if pv, ok := p.products[pid]; ok {
		return pv.Class.IsDoublePass()
	}
	class, ok := domain.ClassFromProductID(pid)
	return ok && class.IsDoublePass()
}
