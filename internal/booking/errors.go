package booking

import (
	"errors"
	"fmt"
)

// Class groups error codes by how a caller should react.
type Class string

const (
	ClassValidation    Class = "validation"
	ClassFeasibility   Class = "feasibility"
	ClassDataIntegrity Class = "data_integrity"
	ClassInventory     Class = "inventory"
	ClassConcurrency   Class = "concurrency"
)

type Code string

const (
	CodeInvalidDay        Code = "INVALID_DAY"
	CodeDayNotAllowed     Code = "DAY_NOT_ALLOWED"
	CodeInvalidZone       Code = "INVALID_ZONE"
	CodeSlotNotInWindow   Code = "SLOT_NOT_IN_WINDOW"
	CodeEmptyCart         Code = "EMPTY_CART"
	CodeInvalidItem       Code = "INVALID_ITEM"
	CodeNoteTooLong       Code = "NOTE_TOO_LONG"
	CodeProductNotFound   Code = "PRODUCT_NOT_FOUND"
	CodeProductInactive   Code = "PRODUCT_INACTIVE"
	CodeInsufficientStock Code = "INSUFFICIENT_STOCK"
	CodeSlotFull          Code = "SLOT_FULL"
	CodeSlotTooEarly      Code = "SLOT_TOO_EARLY"
	CodeMissingTravelTime Code = "MISSING_TRAVEL_TIME"
	CodeConflict          Code = "CONFLICT"
)

var classOf = map[Code]Class{
	CodeInvalidDay:        ClassValidation,
	CodeDayNotAllowed:     ClassValidation,
	CodeInvalidZone:       ClassValidation,
	CodeSlotNotInWindow:   ClassValidation,
	CodeEmptyCart:         ClassValidation,
	CodeInvalidItem:       ClassValidation,
	CodeNoteTooLong:       ClassValidation,
	CodeProductNotFound:   ClassInventory,
	CodeProductInactive:   ClassInventory,
	CodeInsufficientStock: ClassInventory,
	CodeSlotFull:          ClassFeasibility,
	CodeSlotTooEarly:      ClassFeasibility,
	CodeMissingTravelTime: ClassDataIntegrity,
	CodeConflict:          ClassConcurrency,
}

func (c Code) Class() Class { return classOf[c] }

// Error is a classified placement or preview failure. Two Errors match
// under errors.Is when their codes are equal, so the Err* values below can
// be used as sentinels.
type Error struct {
	Code    Code
	Message string
	Detail  map[string]any
	cause   error
}

func (e *Error) Class() Class { return e.Code.Class() }

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrInvalidDay        = &Error{Code: CodeInvalidDay}
	ErrDayNotAllowed     = &Error{Code: CodeDayNotAllowed}
	ErrInvalidZone       = &Error{Code: CodeInvalidZone}
	ErrSlotNotInWindow   = &Error{Code: CodeSlotNotInWindow}
	ErrEmptyCart         = &Error{Code: CodeEmptyCart}
	ErrInvalidItem       = &Error{Code: CodeInvalidItem}
	ErrNoteTooLong       = &Error{Code: CodeNoteTooLong}
	ErrProductNotFound   = &Error{Code: CodeProductNotFound}
	ErrProductInactive   = &Error{Code: CodeProductInactive}
	ErrInsufficientStock = &Error{Code: CodeInsufficientStock}
	ErrSlotFull          = &Error{Code: CodeSlotFull}
	ErrSlotTooEarly      = &Error{Code: CodeSlotTooEarly}
	ErrMissingTravelTime = &Error{Code: CodeMissingTravelTime}
	ErrConflict          = &Error{Code: CodeConflict}
)

func newError(code Code, cause error, detail map[string]any, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), Detail: detail, cause: cause}
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
