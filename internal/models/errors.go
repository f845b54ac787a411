package models

import "errors"

// ErrorKind classifies failures for the transport layer
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindNotFound
	KindForbidden
	KindConflict
)

// Error is a classified domain error. Instances are sentinels; callers wrap them with %w.
type Error struct {
	Kind    ErrorKind
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

func newError(kind ErrorKind, code, msg string) *Error {
	return &Error{Kind: kind, Code: code, Message: msg}
}

var (
	ErrValidation         = newError(KindValidation, "VALIDATION", "invalid request")
	ErrQuantityOutOfRange = newError(KindValidation, "QUANTITY_OUT_OF_RANGE", "quantity out of range")
	ErrBelowMinimumOrder  = newError(KindValidation, "BELOW_MINIMUM_ORDER", "order below vendor minimum")
	ErrReasonRequired     = newError(KindValidation, "VALIDATION", "override reason is required")

	ErrNotFound             = newError(KindNotFound, "NOT_FOUND", "not found")
	ErrOrderNotFound        = newError(KindNotFound, "NOT_FOUND", "order not found")
	ErrVendorNotFound       = newError(KindNotFound, "NOT_FOUND", "vendor not found")
	ErrProductNotFound      = newError(KindNotFound, "NOT_FOUND", "product not found")
	ErrDriverNotFound       = newError(KindNotFound, "NOT_FOUND", "driver not found")
	ErrNotificationNotFound = newError(KindNotFound, "NOT_FOUND", "notification not found")

	ErrNotPermitted = newError(KindForbidden, "NOT_PERMITTED", "not permitted")

	ErrVendorUnavailable  = newError(KindConflict, "VENDOR_UNAVAILABLE", "vendor unavailable")
	ErrProductUnavailable = newError(KindConflict, "PRODUCT_UNAVAILABLE", "product unavailable")
	ErrInsufficientStock  = newError(KindConflict, "INSUFFICIENT_STOCK", "insufficient stock")
	ErrIllegalTransition  = newError(KindConflict, "ILLEGAL_TRANSITION", "illegal status transition")
	ErrDriverUnavailable  = newError(KindConflict, "DRIVER_UNAVAILABLE", "driver unavailable")
	ErrConcurrentUpdate   = newError(KindConflict, "CONCURRENT_UPDATE", "order was modified concurrently")
	ErrDuplicateRequest   = newError(KindConflict, "DUPLICATE_REQUEST", "duplicate request in progress")
)

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// CodeOf returns the code of the first classified error in err's chain.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL"
}
