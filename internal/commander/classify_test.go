package commander

import (
	"errors"
	"testing"
	"time"

	"github.com/shaiso/Factoria/internal/directory"
	"github.com/shaiso/Factoria/internal/domain"
	"github.com/shaiso/Factoria/internal/state"
)

// --- Classify Tests ---

func TestClassify(t *testing.T) {
	lookup := func(pid string) (domain.ProductClass, bool) {
		if pid == "custom_c" {
			return domain.ProductClassC, true
		}
		return "", false
	}

	tests := []struct {
		name     string
		update   state.Update
		wantKind domain.EventKind
		wantSev  domain.Severity
	}{
		{
			name:     "station blocked",
			update:   state.Update{Category: state.CategoryStation, DeviceID: "StationA", Record: state.StationRecord{ID: "StationA", Status: state.DeviceBlocked}},
			wantKind: domain.EventStationBlocked,
			wantSev:  domain.SeverityCritical,
		},
		{
			name:   "station processing",
			update: state.Update{Category: state.CategoryStation, DeviceID: "StationA", Record: state.StationRecord{ID: "StationA", Status: state.DeviceProcessing}},
		},
		{
			name:     "quality check output",
			update:   state.Update{Category: state.CategoryStation, DeviceID: "QualityCheck", Record: state.StationRecord{ID: "QualityCheck", Status: state.DeviceIdle, OutputBuffer: state.IDList{"prod_a_1"}}},
			wantKind: domain.EventFinishedProductsReady,
			wantSev:  domain.SeverityHigh,
		},
		{
			name:     "agv critical battery",
			update:   state.Update{Category: state.CategoryAGV, DeviceID: "AGV_1", Record: state.AGVRecord{ID: "AGV_1", Status: state.DeviceMoving, BatteryLevel: 15}},
			wantKind: domain.EventAGVCriticalBattery,
			wantSev:  domain.SeverityCritical,
		},
		{
			name:   "agv charging with low battery",
			update: state.Update{Category: state.CategoryAGV, DeviceID: "AGV_1", Record: state.AGVRecord{ID: "AGV_1", Status: state.DeviceCharging, BatteryLevel: 15}},
		},
		{
			name:     "agv loaded idle",
			update:   state.Update{Category: state.CategoryAGV, DeviceID: "AGV_1", Record: state.AGVRecord{ID: "AGV_1", Status: state.DeviceIdle, BatteryLevel: 90, Payload: state.IDList{"prod_a_1"}}},
			wantKind: domain.EventAGVLoadedIdle,
			wantSev:  domain.SeverityHigh,
		},
		{
			name:     "agv needs charging",
			update:   state.Update{Category: state.CategoryAGV, DeviceID: "AGV_1", Record: state.AGVRecord{ID: "AGV_1", Status: state.DeviceIdle, BatteryLevel: 30}},
			wantKind: domain.EventAGVNeedsCharging,
			wantSev:  domain.SeverityMedium,
		},
		{
			name:   "agv healthy idle",
			update: state.Update{Category: state.CategoryAGV, DeviceID: "AGV_1", Record: state.AGVRecord{ID: "AGV_1", Status: state.DeviceIdle, BatteryLevel: 90}},
		},
		{
			name:     "conveyor blocked",
			update:   state.Update{Category: state.CategoryConveyor, DeviceID: "Conveyor_AB", Record: state.ConveyorRecord{ID: "Conveyor_AB", Status: state.DeviceBlocked}},
			wantKind: domain.EventConveyorCongestion,
			wantSev:  domain.SeverityHigh,
		},
		{
			name:     "conveyor overfull",
			update:   state.Update{Category: state.CategoryConveyor, DeviceID: "Conveyor_BC", Record: state.ConveyorRecord{ID: "Conveyor_BC", Status: state.DeviceWorking, Buffer: state.IDList{"1", "2", "3", "4", "5", "6"}}},
			wantKind: domain.EventConveyorCongestion,
			wantSev:  domain.SeverityHigh,
		},
		{
			name:   "conveyor five items",
			update: state.Update{Category: state.CategoryConveyor, DeviceID: "Conveyor_BC", Record: state.ConveyorRecord{ID: "Conveyor_BC", Status: state.DeviceWorking, Buffer: state.IDList{"1", "2", "3", "4", "5"}}},
		},
		{
			name:     "second pass by id",
			update:   state.Update{Category: state.CategoryConveyor, DeviceID: "Conveyor_CQ", Record: state.ConveyorRecord{ID: "Conveyor_CQ", Status: state.DeviceWorking, UpperBuffer: state.IDList{"prod_c_o1_001"}}},
			wantKind: domain.EventSecondPassReady,
			wantSev:  domain.SeverityHigh,
		},
		{
			name:     "second pass by directory",
			update:   state.Update{Category: state.CategoryConveyor, DeviceID: "Conveyor_CQ", Record: state.ConveyorRecord{ID: "Conveyor_CQ", Status: state.DeviceWorking, LowerBuffer: state.IDList{"custom_c"}}},
			wantKind: domain.EventSecondPassReady,
			wantSev:  domain.SeverityHigh,
		},
		{
			name:   "class A on second pass conveyor",
			update: state.Update{Category: state.CategoryConveyor, DeviceID: "Conveyor_CQ", Record: state.ConveyorRecord{ID: "Conveyor_CQ", Status: state.DeviceWorking, UpperBuffer: state.IDList{"prod_a_o1_001"}}},
		},
		{
			name:     "raw materials",
			update:   state.Update{Category: state.CategoryWarehouse, DeviceID: "RawMaterial", Record: state.WarehouseRecord{ID: "RawMaterial", Buffer: state.IDList{"prod_a_o1_001"}}},
			wantKind: domain.EventRawMaterialsAvailable,
			wantSev:  domain.SeverityHigh,
		},
		{
			name:   "finished warehouse",
			update: state.Update{Category: state.CategoryWarehouse, DeviceID: "Warehouse", Record: state.WarehouseRecord{ID: "Warehouse", Buffer: state.IDList{"prod_a_o1_001"}}},
		},
		{
			name:     "new order",
			update:   state.Update{Category: state.CategoryOrder, Record: state.OrderMessage{Body: []byte(`{}`)}},
			wantKind: domain.EventNewOrder,
			wantSev:  domain.SeverityHigh,
		},
		{
			name:     "alert without severity",
			update:   state.Update{Category: state.CategoryAlert, Record: state.AlertRecord{}},
			wantKind: domain.EventFactoryAlert,
			wantSev:  domain.SeverityMedium,
		},
		{
			name:     "alert with severity",
			update:   state.Update{Category: state.CategoryAlert, DeviceID: "StationB", Record: state.AlertRecord{DeviceID: "StationB", AlertType: "device_fault", Fields: map[string]any{"severity": "Critical"}}},
			wantKind: domain.EventFactoryAlert,
			wantSev:  domain.SeverityCritical,
		},
		{
			name:     "alert with unknown severity",
			update:   state.Update{Category: state.CategoryAlert, Record: state.AlertRecord{Fields: map[string]any{"severity": 3}}},
			wantKind: domain.EventFactoryAlert,
			wantSev:  domain.SeverityMedium,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events := Classify("line1", tt.update, lookup, t0)

			if tt.wantKind == "" {
				if len(events) != 0 {
					t.Fatalf("expected no event, got %+v", events)
				}
				return
			}

			if len(events) != 1 {
				t.Fatalf("expected exactly one event, got %d", len(events))
			}
			ev := events[0]
			if ev.Kind != tt.wantKind || ev.Severity != tt.wantSev {
				t.Errorf("event = %s/%s, want %s/%s", ev.Kind, ev.Severity, tt.wantKind, tt.wantSev)
			}
			if ev.ID == "" || ev.LineID != "line1" || !ev.DetectedAt.Equal(t0) {
				t.Errorf("unexpected metadata: %+v", ev)
			}
		})
	}
}

func TestClassify_BlockedStationWinsOverOutput(t *testing.T) {
	u := state.Update{
		Category: state.CategoryStation,
		DeviceID: "QualityCheck",
		Record:   state.StationRecord{ID: "QualityCheck", Status: state.DeviceBlocked, OutputBuffer: state.IDList{"prod_a_1"}},
	}
	events := Classify("line1", u, nil, t0)
	if len(events) != 1 || events[0].Kind != domain.EventStationBlocked {
		t.Fatalf("expected a single station_blocked event, got %+v", events)
	}
}

// --- Validator Tests ---

func TestValidator_Validate(t *testing.T) {
	v := NewValidator([]string{"AGV_1", "AGV_2"})

	tests := []struct {
		name    string
		cmd     domain.Command
		wantErr error
	}{
		{"valid move", domain.Command{Action: domain.ActionMove, Target: "AGV_1", Params: domain.CommandParams{TargetPoint: "P9"}}, nil},
		{"valid load", domain.Command{Action: domain.ActionLoad, Target: "AGV_1", Params: domain.CommandParams{ProductID: "prod_a_1"}}, nil},
		{"valid unload", domain.Command{Action: domain.ActionUnload, Target: "AGV_2"}, nil},
		{"valid charge", domain.Command{Action: domain.ActionCharge, Target: "AGV_2", Params: domain.CommandParams{TargetLevel: level(100)}}, nil},
		{"zero charge", domain.Command{Action: domain.ActionCharge, Target: "AGV_2", Params: domain.CommandParams{TargetLevel: level(0)}}, nil},
		{"bad action", domain.Command{Action: "fly", Target: "AGV_1"}, ErrInvalidAction},
		{"unknown vehicle", domain.Command{Action: domain.ActionUnload, Target: "AGV_9"}, ErrUnknownVehicle},
		{"point out of topology", domain.Command{Action: domain.ActionMove, Target: "AGV_1", Params: domain.CommandParams{TargetPoint: "P99"}}, ErrInvalidTargetPoint},
		{"missing point", domain.Command{Action: domain.ActionMove, Target: "AGV_1"}, ErrInvalidTargetPoint},
		{"charge above 100", domain.Command{Action: domain.ActionCharge, Target: "AGV_1", Params: domain.CommandParams{TargetLevel: level(150)}}, ErrInvalidTargetLevel},
		{"charge negative", domain.Command{Action: domain.ActionCharge, Target: "AGV_1", Params: domain.CommandParams{TargetLevel: level(-1)}}, ErrInvalidTargetLevel},
		{"charge without level", domain.Command{Action: domain.ActionCharge, Target: "AGV_1"}, ErrInvalidTargetLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.cmd)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			var ve *ValidationError
			if !errors.As(err, &ve) || ve.Target != tt.cmd.Target {
				t.Errorf("expected *ValidationError for %q, got %#v", tt.cmd.Target, err)
			}
		})
	}
}

func TestValidator_FilterOneCommandPerVehicle(t *testing.T) {
	v := NewValidator([]string{"AGV_2", "AGV_1"})

	if got := v.Vehicles(); len(got) != 2 || got[0] != "AGV_1" {
		t.Errorf("vehicles = %v, want sorted", got)
	}

	accepted, rejected := v.Filter([]domain.Command{
		{CommandID: "1", Action: domain.ActionMove, Target: "AGV_1", Params: domain.CommandParams{TargetPoint: "P0"}},
		{CommandID: "2", Action: domain.ActionMove, Target: "AGV_1", Params: domain.CommandParams{TargetPoint: "P1"}},
		{CommandID: "3", Action: domain.ActionUnload, Target: "AGV_2"},
	})

	if len(accepted) != 2 || accepted[0].CommandID != "1" || accepted[1].CommandID != "3" {
		t.Errorf("accepted = %+v", accepted)
	}
	if len(rejected) != 1 || !errors.Is(rejected[0], ErrDuplicateTarget) {
		t.Errorf("rejected = %v", rejected)
	}
	if got := rejectReason(rejected[0]); got != "duplicate_target" {
		t.Errorf("reason = %q", got)
	}
}

// --- History Tests ---

func TestHistory_BoundedAndForgetsEvicted(t *testing.T) {
	h := NewHistory(2)

	for _, id := range []string{"a", "b", "c"} {
		if !h.Record(domain.CommandRecord{Command: domain.Command{CommandID: id}}) {
			t.Fatalf("record %q rejected", id)
		}
	}
	if h.Record(domain.CommandRecord{Command: domain.Command{CommandID: "c"}}) {
		t.Error("duplicate id must be rejected")
	}

	if h.Len() != 2 {
		t.Fatalf("len = %d, want 2", h.Len())
	}
	if h.Dispatched("a") {
		t.Error("evicted id must be forgotten")
	}
	if !h.Dispatched("b") || !h.Dispatched("c") {
		t.Error("retained ids must be remembered")
	}

	recent := h.Recent(1)
	if len(recent) != 1 || recent[0].Command.CommandID != "c" {
		t.Errorf("recent = %+v", recent)
	}
}

func TestHistory_Responses(t *testing.T) {
	h := NewHistory(2)
	for _, id := range []string{"a", "b", "c"} {
		h.RecordResponse(domain.CommandResponse{CommandID: id})
	}

	got := h.Responses(0)
	if len(got) != 2 || got[0].CommandID != "b" {
		t.Errorf("responses = %+v", got)
	}
}

// --- Tracker Tests ---

func TestTracker(t *testing.T) {
	dir := directory.New(directory.Config{
		Lines:  []string{"line1"},
		Logger: discardLogger(),
		Clock:  func() time.Time { return t0 },
	})
	p, _ := directory.DecodeOrderPayload([]byte(`{"order_id":"o1","items":[{"class":"A","quantity":1}]}`))
	if _, err := dir.ProcessOrder(p, "line1"); err != nil {
		t.Fatalf("ProcessOrder: %v", err)
	}
	const pid = "prod_a_o1_001"

	tr := NewTracker(dir, discardLogger())

	// Неизвестный продукт не ломает трекер.
	tr.Observe(state.Update{Record: state.StationRecord{ID: domain.LocationStationA, Buffer: state.IDList{"ghost", pid}}})

	product, _ := dir.Product(pid)
	if product.Status != domain.ProductStatusAtStation1 {
		t.Fatalf("status = %q, want at_station_1", product.Status)
	}

	tr.Observe(state.Update{Record: state.AGVRecord{ID: "AGV_1", Payload: state.IDList{pid}}})
	product, _ = dir.Product(pid)
	if product.AssignedVehicle != "AGV_1" {
		t.Fatalf("assigned = %q, want AGV_1", product.AssignedVehicle)
	}

	// Другой AGV не снимает чужое закрепление.
	tr.Observe(state.Update{Record: state.AGVRecord{ID: "AGV_2", Payload: state.IDList{}}})
	product, _ = dir.Product(pid)
	if product.AssignedVehicle != "AGV_1" {
		t.Fatalf("assigned = %q after foreign update", product.AssignedVehicle)
	}

	tr.Observe(state.Update{Record: state.AGVRecord{ID: "AGV_1", Payload: state.IDList{}}})
	product, _ = dir.Product(pid)
	if product.AssignedVehicle != "" {
		t.Errorf("assigned = %q, want released", product.AssignedVehicle)
	}
}
