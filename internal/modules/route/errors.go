package route

import (
	"errors"
	"fmt"
	"strings"

	"lastmile/internal/modules/eligibility"
	"lastmile/internal/modules/pricing"
	"lastmile/internal/types"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind string
	ID   types.ID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// TransitionError is returned when an operation is attempted from a state
// that does not allow it.
type TransitionError struct {
	Op   Operation
	From string
	To   string
}

func (e *TransitionError) Error() string {
	if e.To == "" {
		return fmt.Sprintf("invalid transition: %s from %s", e.Op, e.From)
	}
	return fmt.Sprintf("invalid transition: %s from %s to %s", e.Op, e.From, e.To)
}

func (e *TransitionError) Is(target error) bool { return target == ErrConflict }

// SlotConflictError is returned when the driver already holds the exclusivity slot.
type SlotConflictError struct {
	Slot   SlotKey
	Holder types.ID
}

func (e *SlotConflictError) Error() string {
	return fmt.Sprintf("driver %s already holds offer %s for %s/%s/%s",
		e.Slot.DriverID, e.Holder, e.Slot.Date, e.Slot.Cycle, e.Slot.VehicleType)
}

func (e *SlotConflictError) Is(target error) bool { return target == ErrConflict }

// EligibilityWarning is informational: the offer was still created.
type EligibilityWarning struct {
	DriverID types.ID             `json:"driver_id"`
	Reasons  []eligibility.Reason `json:"reasons"`
}

func (w *EligibilityWarning) Error() string {
	rs := make([]string, len(w.Reasons))
	for i, r := range w.Reasons {
		rs[i] = string(r)
	}
	return fmt.Sprintf("driver %s is not eligible: %s", w.DriverID, strings.Join(rs, ", "))
}

// Outcome classifies err for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, pricing.ErrNoPriceTable):
		return "no_price_table"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "error"
	}
}
