package domain

import "time"

// Action — действие AGV.
type Action string

const (
	ActionMove   Action = "move"
	ActionLoad   Action = "load"
	ActionUnload Action = "unload"
	ActionCharge Action = "charge"
)

// IsValid проверяет, что действие входит в перечисление.
func (a Action) IsValid() bool {
	switch a {
	case ActionMove, ActionLoad, ActionUnload, ActionCharge:
		return true
	default:
		return false
	}
}

// DefaultChargeLevel — целевой уровень заряда по умолчанию, %.
const DefaultChargeLevel = 80.0

// CommandParams — параметры команды.
type CommandParams struct {
	TargetPoint string   `json:"target_point,omitempty"`
	ProductID   string   `json:"product_id,omitempty"`
	TargetLevel *float64 `json:"target_level,omitempty"`
}

// Command — команда для AGV.
//
// Формат совпадает с сообщением на топике {root}/{line}/command.
type Command struct {
	CommandID string        `json:"command_id"`
	Action    Action        `json:"action"`
	Target    string        `json:"target"`
	Params    CommandParams `json:"params"`
	Priority  string        `json:"priority,omitempty"`
	Reasoning string        `json:"reasoning,omitempty"`
}

// Severity — приоритет события решения.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Rank возвращает порядок приоритета: меньше — важнее.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// CommandRecord — запись в истории команд линии.
type CommandRecord struct {
	LineID       string    `json:"line_id"`
	Command      Command   `json:"command"`
	Mode         string    `json:"mode"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// CommandResponse — ответ исполнителя на команду ({root}/response/{line}).
type CommandResponse struct {
	LineID     string    `json:"line_id"`
	CommandID  string    `json:"command_id,omitempty"`
	Response   string    `json:"response"`
	ReceivedAt time.Time `json:"received_at"`
}
