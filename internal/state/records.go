package state

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DeviceStatus — состояние устройства из телеметрии.
type DeviceStatus string

const (
	DeviceIdle        DeviceStatus = "idle"
	DeviceProcessing  DeviceStatus = "processing"
	DeviceWorking     DeviceStatus = "working"
	DeviceBlocked     DeviceStatus = "blocked"
	DeviceMoving      DeviceStatus = "moving"
	DeviceInteracting DeviceStatus = "interacting"
	DeviceCharging    DeviceStatus = "charging"
	DeviceError       DeviceStatus = "error"
	DeviceUnknown     DeviceStatus = "unknown"
)

// ParseDeviceStatus нормализует статус. Всё неизвестное — DeviceUnknown.
func ParseDeviceStatus(s string) DeviceStatus {
	switch st := DeviceStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case DeviceIdle, DeviceProcessing, DeviceWorking, DeviceBlocked, DeviceMoving,
		DeviceInteracting, DeviceCharging, DeviceError:
		return st
	default:
		return DeviceUnknown
	}
}

// UnmarshalJSON нормализует статус при декодировании.
func (s *DeviceStatus) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		*s = DeviceUnknown
		return nil
	}
	*s = ParseDeviceStatus(raw)
	return nil
}

// IDList — список идентификаторов продуктов в буфере.
//
// Принимает строки, числа и объекты с полем product_id или id.
// null и отсутствие поля дают пустой список.
type IDList []string

// UnmarshalJSON реализует json.Unmarshaler.
func (l *IDList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*l = IDList{}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return fmt.Errorf("buffer must be a list: %w", err)
	}

	out := make(IDList, 0, len(items))
	for _, item := range items {
		if id := decodeID(item); id != "" {
			out = append(out, id)
		}
	}
	*l = out
	return nil
}

func decodeID(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	var obj struct {
		ProductID string `json:"product_id"`
		ID        string `json:"id"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		if obj.ProductID != "" {
			return obj.ProductID
		}
		return obj.ID
	}
	return ""
}

// Contains проверяет наличие идентификатора.
func (l IDList) Contains(id string) bool {
	for _, v := range l {
		if v == id {
			return true
		}
	}
	return false
}

func (l IDList) clone() IDList {
	if l == nil {
		return IDList{}
	}
	return append(IDList{}, l...)
}

// Position — координаты AGV.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StationRecord — нормализованный статус станции.
type StationRecord struct {
	ID           string         `json:"id"`
	Timestamp    float64        `json:"timestamp"`
	SourceID     string         `json:"source_id"`
	Status       DeviceStatus   `json:"status"`
	Message      string         `json:"message"`
	Buffer       IDList         `json:"buffer"`
	OutputBuffer IDList         `json:"output_buffer"`
	Stats        map[string]any `json:"stats"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Clone возвращает глубокую копию.
func (r StationRecord) Clone() StationRecord {
	r.Buffer = r.Buffer.clone()
	r.OutputBuffer = r.OutputBuffer.clone()
	r.Stats = cloneMap(r.Stats)
	return r
}

// AGVRecord — нормализованный статус AGV.
type AGVRecord struct {
	ID            string       `json:"id"`
	Timestamp     float64      `json:"timestamp"`
	SourceID      string       `json:"source_id"`
	Status        DeviceStatus `json:"status"`
	SpeedMPS      float64      `json:"speed_mps"`
	CurrentPoint  string       `json:"current_point"`
	Position      Position     `json:"position"`
	TargetPoint   string       `json:"target_point,omitempty"`
	EstimatedTime float64      `json:"estimated_time"`
	Payload       IDList       `json:"payload"`
	BatteryLevel  float64      `json:"battery_level"`
	Message       string       `json:"message"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// Clone возвращает глубокую копию.
func (r AGVRecord) Clone() AGVRecord {
	r.Payload = r.Payload.clone()
	return r
}

// ConveyorRecord — нормализованный статус конвейера.
type ConveyorRecord struct {
	ID          string       `json:"id"`
	Timestamp   float64      `json:"timestamp"`
	SourceID    string       `json:"source_id"`
	Status      DeviceStatus `json:"status"`
	Message     string       `json:"message"`
	Buffer      IDList       `json:"buffer"`
	UpperBuffer IDList       `json:"upper_buffer"`
	LowerBuffer IDList       `json:"lower_buffer"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Clone возвращает глубокую копию.
func (r ConveyorRecord) Clone() ConveyorRecord {
	r.Buffer = r.Buffer.clone()
	r.UpperBuffer = r.UpperBuffer.clone()
	r.LowerBuffer = r.LowerBuffer.clone()
	return r
}

// WarehouseRecord — нормализованный статус склада.
type WarehouseRecord struct {
	ID        string         `json:"id"`
	Timestamp float64        `json:"timestamp"`
	SourceID  string         `json:"source_id"`
	Message   string         `json:"message"`
	Buffer    IDList         `json:"buffer"`
	Stats     map[string]any `json:"stats"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Clone возвращает глубокую копию.
func (r WarehouseRecord) Clone() WarehouseRecord {
	r.Buffer = r.Buffer.clone()
	r.Stats = cloneMap(r.Stats)
	return r
}

// AlertRecord — тревога линии.
type AlertRecord struct {
	LineID     string         `json:"line_id"`
	DeviceID   string         `json:"device_id,omitempty"`
	AlertType  string         `json:"alert_type,omitempty"`
	Message    string         `json:"message,omitempty"`
	Fields     map[string]any `json:"fields"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Clone возвращает глубокую копию.
func (r AlertRecord) Clone() AlertRecord {
	r.Fields = cloneMap(r.Fields)
	return r
}

// OrderMessage — сырое сообщение о новом заказе.
type OrderMessage struct {
	Body       json.RawMessage `json:"body"`
	ReceivedAt time.Time       `json:"received_at"`
}

// ResponseRecord — ответ исполнителя на команду.
type ResponseRecord struct {
	LineID     string         `json:"line_id"`
	CommandID  string         `json:"command_id,omitempty"`
	Response   string         `json:"response,omitempty"`
	Fields     map[string]any `json:"fields"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Clone возвращает глубокую копию.
func (r ResponseRecord) Clone() ResponseRecord {
	r.Fields = cloneMap(r.Fields)
	return r
}

// --- wire-форматы с необязательными полями ---

type stationWire struct {
	Timestamp    *float64       `json:"timestamp"`
	SourceID     *string        `json:"source_id"`
	Status       *DeviceStatus  `json:"status"`
	Message      *string        `json:"message"`
	Buffer       IDList         `json:"buffer"`
	OutputBuffer IDList         `json:"output_buffer"`
	Stats        map[string]any `json:"stats"`
}

type agvWire struct {
	Timestamp     *float64      `json:"timestamp"`
	SourceID      *string       `json:"source_id"`
	Status        *DeviceStatus `json:"status"`
	SpeedMPS      *float64      `json:"speed_mps"`
	CurrentPoint  *string       `json:"current_point"`
	Position      *Position     `json:"position"`
	TargetPoint   *string       `json:"target_point"`
	EstimatedTime *float64      `json:"estimated_time"`
	Payload       IDList        `json:"payload"`
	BatteryLevel  *float64      `json:"battery_level"`
	Message       *string       `json:"message"`
}

type conveyorWire struct {
	Timestamp   *float64      `json:"timestamp"`
	SourceID    *string       `json:"source_id"`
	Status      *DeviceStatus `json:"status"`
	Message     *string       `json:"message"`
	Buffer      IDList        `json:"buffer"`
	UpperBuffer IDList        `json:"upper_buffer"`
	LowerBuffer IDList        `json:"lower_buffer"`
}

type warehouseWire struct {
	Timestamp *float64       `json:"timestamp"`
	SourceID  *string        `json:"source_id"`
	Message   *string        `json:"message"`
	Buffer    IDList         `json:"buffer"`
	Stats     map[string]any `json:"stats"`
}

// Значения по умолчанию.
const (
	defaultBattery = 100.0
	unknownPoint   = "unknown"
)

func decodeStation(id string, body []byte, at time.Time) (StationRecord, error) {
	var w stationWire
	if err := json.Unmarshal(body, &w); err != nil {
		return StationRecord{}, err
	}
	return StationRecord{
		ID:           id,
		Timestamp:    deref(w.Timestamp, 0),
		SourceID:     deref(w.SourceID, id),
		Status:       deref(w.Status, DeviceUnknown),
		Message:      deref(w.Message, ""),
		Buffer:       w.Buffer.clone(),
		OutputBuffer: w.OutputBuffer.clone(),
		Stats:        nonNilMap(w.Stats),
		UpdatedAt:    at,
	}, nil
}

func decodeAGV(id string, body []byte, at time.Time) (AGVRecord, error) {
	var w agvWire
	if err := json.Unmarshal(body, &w); err != nil {
		return AGVRecord{}, err
	}
	return AGVRecord{
		ID:            id,
		Timestamp:     deref(w.Timestamp, 0),
		SourceID:      deref(w.SourceID, id),
		Status:        deref(w.Status, DeviceUnknown),
		SpeedMPS:      deref(w.SpeedMPS, 0),
		CurrentPoint:  deref(w.CurrentPoint, unknownPoint),
		Position:      deref(w.Position, Position{}),
		TargetPoint:   deref(w.TargetPoint, ""),
		EstimatedTime: deref(w.EstimatedTime, 0),
		Payload:       w.Payload.clone(),
		BatteryLevel:  deref(w.BatteryLevel, defaultBattery),
		Message:       deref(w.Message, ""),
		UpdatedAt:     at,
	}, nil
}

func decodeConveyor(id string, body []byte, at time.Time) (ConveyorRecord, error) {
	var w conveyorWire
	if err := json.Unmarshal(body, &w); err != nil {
		return ConveyorRecord{}, err
	}
	return ConveyorRecord{
		ID:          id,
		Timestamp:   deref(w.Timestamp, 0),
		SourceID:    deref(w.SourceID, id),
		Status:      deref(w.Status, DeviceUnknown),
		Message:     deref(w.Message, ""),
		Buffer:      w.Buffer.clone(),
		UpperBuffer: w.UpperBuffer.clone(),
		LowerBuffer: w.LowerBuffer.clone(),
		UpdatedAt:   at,
	}, nil
}

func decodeWarehouse(id string, body []byte, at time.Time) (WarehouseRecord, error) {
	var w warehouseWire
	if err := json.Unmarshal(body, &w); err != nil {
		return WarehouseRecord{}, err
	}
	return WarehouseRecord{
		ID:        id,
		Timestamp: deref(w.Timestamp, 0),
		SourceID:  deref(w.SourceID, id),
		Message:   deref(w.Message, ""),
		Buffer:    w.Buffer.clone(),
		Stats:     nonNilMap(w.Stats),
		UpdatedAt: at,
	}, nil
}

func decodeAlert(lineID string, body []byte, at time.Time) (AlertRecord, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return AlertRecord{}, err
	}
	return AlertRecord{
		LineID:     lineID,
		DeviceID:   firstString(fields, "device_id", "source_id"),
		AlertType:  firstString(fields, "alert_type", "type"),
		Message:    firstString(fields, "message", "details"),
		Fields:     nonNilMap(fields),
		ReceivedAt: at,
	}, nil
}

func decodeResponse(lineID string, body []byte, at time.Time) (ResponseRecord, error) {
	var fields map[string]any
	if err := json.Unmarshal(body, &fields); err != nil {
		return ResponseRecord{}, err
	}
	return ResponseRecord{
		LineID:     lineID,
		CommandID:  firstString(fields, "command_id"),
		Response:   firstString(fields, "response", "message", "status"),
		Fields:     nonNilMap(fields),
		ReceivedAt: at,
	}, nil
}

func deref[T any](p *T, def T) T {
	if p == nil {
		return def
	}
	return *p
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := m[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// cloneMap копирует вложенные map и slice из JSON-декодирования.
func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	default:
		return v
	}
}
