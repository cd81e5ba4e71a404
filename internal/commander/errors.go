package commander

import "errors"

// Ошибки валидации команд.
var (
	// ErrInvalidAction — действие вне перечисления move/load/unload/charge.
	ErrInvalidAction = errors.New("invalid command action")

	// ErrUnknownVehicle — target не является AGV этой линии.
	ErrUnknownVehicle = errors.New("unknown vehicle")

	// ErrInvalidTargetPoint — move без точки топологии.
	ErrInvalidTargetPoint = errors.New("invalid target point")

	// ErrInvalidTargetLevel — charge без числового target_level в [0, 100].
	ErrInvalidTargetLevel = errors.New("invalid target level")

	// ErrDuplicateTarget — вторая команда для того же AGV в одном цикле.
	ErrDuplicateTarget = errors.New("duplicate command target in cycle")
)

// Ошибки конвейера решений.
var (
	// ErrQueueFull — очередь событий заполнена, событие отброшено.
	ErrQueueFull = errors.New("event queue full")

	// ErrDuplicateCommand — команда с таким ID уже отправлена.
	ErrDuplicateCommand = errors.New("command already dispatched")

	// ErrStoreBacklog — буфер записи истории заполнен, запись отброшена.
	ErrStoreBacklog = errors.New("history store backlog full")

	// ErrCommanderStopped — командир линии остановлен.
	ErrCommanderStopped = errors.New("commander stopped")
)

// ValidationError — ошибка валидации команды с контекстом.
type ValidationError struct {
	CommandID string // ID команды, если есть
	Target    string // AGV из команды
	Field     string // поле, вызвавшее ошибку
	Message   string // описание ошибки
	Err       error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *ValidationError) Error() string {
	if e.Target != "" {
		return "command for " + e.Target + ": " + e.Message
	}
	return "command: " + e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError создаёт новую ошибку валидации.
func NewValidationError(commandID, target, field, message string, err error) *ValidationError {
	return &ValidationError{
		CommandID: commandID,
		Target:    target,
		Field:     field,
		Message:   message,
		Err:       err,
	}
}

// rejectReason возвращает метку причины отказа для метрик.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrInvalidAction):
		return "invalid_action"
	case errors.Is(err, ErrUnknownVehicle):
		return "unknown_vehicle"
	case errors.Is(err, ErrInvalidTargetPoint):
		return "invalid_target_point"
	case errors.Is(err, ErrInvalidTargetLevel):
		return "invalid_target_level"
	case errors.Is(err, ErrDuplicateTarget):
		return "duplicate_target"
	case errors.Is(err, ErrDuplicateCommand):
		return "duplicate_command"
	default:
		return "other"
	}
}
