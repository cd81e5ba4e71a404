package commander

import (
	"fmt"
	"math"
	"slices"

	"github.com/shaiso/Factoria/internal/domain"
)

// Validator проверяет команды оракула перед отправкой.
type Validator struct {
	vehicles map[string]struct{}
}

// NewValidator создаёт Validator для AGV линии.
func NewValidator(vehicles []string) *Validator {
	v := &Validator{vehicles: make(map[string]struct{}, len(vehicles))}
	for _, id := range vehicles {
		v.vehicles[id] = struct{}{}
	}
	return v
}

// Vehicles возвращает известные AGV в отсортированном порядке.
func (v *Validator) Vehicles() []string {
	out := make([]string, 0, len(v.vehicles))
	for id := range v.vehicles {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Validate проверяет одну команду.
//
// Правила:
//   - action ∈ {move, load, unload, charge}
//   - target — AGV этой линии
//   - move: target_point из топологии P0..P9
//   - charge: target_level — число в [0, 100]
func (v *Validator) Validate(cmd domain.Command) error {
	if !cmd.Action.IsValid() {
		return NewValidationError(cmd.CommandID, cmd.Target, "action",
			fmt.Sprintf("action %q is not one of move, load, unload, charge", cmd.Action), ErrInvalidAction)
	}

	if _, ok := v.vehicles[cmd.Target]; !ok {
		return NewValidationError(cmd.CommandID, cmd.Target, "target",
			fmt.Sprintf("vehicle %q is not on this line", cmd.Target), ErrUnknownVehicle)
	}

	switch cmd.Action {
	case domain.ActionMove:
		if _, err := domain.ParsePoint(cmd.Params.TargetPoint); err != nil {
			return NewValidationError(cmd.CommandID, cmd.Target, "params.target_point",
				fmt.Sprintf("target_point %q is not a factory point", cmd.Params.TargetPoint), ErrInvalidTargetPoint)
		}
	case domain.ActionCharge:
		level := cmd.Params.TargetLevel
		if level == nil || math.IsNaN(*level) || *level < 0 || *level > 100 {
			return NewValidationError(cmd.CommandID, cmd.Target, "params.target_level",
				"target_level must be a number in [0, 100]", ErrInvalidTargetLevel)
		}
	}

	return nil
}

// Filter возвращает допустимые команды в исходном порядке.
// Для каждого AGV остаётся только первая команда.
func (v *Validator) Filter(cmds []domain.Command) ([]domain.Command, []error) {
	var (
		accepted []domain.Command
		rejected []error
		seen     = make(map[string]struct{})
	)

	for _, cmd := range cmds {
		if err := v.Validate(cmd); err != nil {
			rejected = append(rejected, err)
			continue
		}
		if _, dup := seen[cmd.Target]; dup {
			rejected = append(rejected, NewValidationError(cmd.CommandID, cmd.Target, "target",
				"vehicle already has a command in this cycle", ErrDuplicateTarget))
			continue
		}
		seen[cmd.Target] = struct{}{}
		accepted = append(accepted, cmd)
	}

	return accepted, rejected
}
