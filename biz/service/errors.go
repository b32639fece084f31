package service

import (
	"errors"

	"l2book/biz/model"
)

// Book engine errors. Every engine operation returns one of these instead of
// panicking; the book is left untouched whenever an operation fails.
var (
	ErrDuplicateOrderID = errors.New("order id already active")
	ErrUnknownOrderID   = errors.New("order id not active")
	ErrOvertrade        = errors.New("trade quantity exceeds resting quantity")
	ErrNoSuchPriceLevel = errors.New("price level does not exist")
	ErrEmptyBook        = errors.New("side has no price levels")
	ErrInvalidQuantity  = errors.New("quantity must be positive")
)

// ErrorCodeFor maps an engine error onto the wire-level error code.
func ErrorCodeFor(err error) model.ErrorCode {
	switch {
	case errors.Is(err, ErrDuplicateOrderID):
		return model.CodeDuplicateOrderID
	case errors.Is(err, ErrUnknownOrderID):
		return model.CodeUnknownOrderID
	case errors.Is(err, ErrOvertrade):
		return model.CodeOvertrade
	case errors.Is(err, ErrNoSuchPriceLevel):
		return model.CodeNoSuchPriceLevel
	case errors.Is(err, ErrEmptyBook):
		return model.CodeEmptyBook
	case errors.Is(err, ErrInvalidQuantity):
		return model.CodeInvalidQuantity
	default:
		return model.CodeUnknown
	}
}
